package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Reply is the dialogue engine's answer for one turn. Done signals that the
// conversation is complete and the call should end after this turn; any
// business side effects (booking, lead capture) already happened behind the
// dialogue service.
type Reply struct {
	Text string
	Done bool
}

// Dialogue generates the agent's reply to a caller utterance.
type Dialogue interface {
	Reply(ctx context.Context, history []Message, userText, correlationID string) (Reply, error)
}

// Message is one entry of the per-session conversation history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// DialogueClient talks to an OpenAI-compatible chat completions endpoint.
// On transient failure it retries once against a fallback model when one is
// configured.
type DialogueClient struct {
	URL           string
	AuthToken     string
	Model         string
	FallbackModel string
	Timeout       time.Duration
	Client        *http.Client
}

func NewDialogueClient(url, authToken, model, fallbackModel string, timeout time.Duration) *DialogueClient {
	return &DialogueClient{
		URL:           url,
		AuthToken:     authToken,
		Model:         model,
		FallbackModel: fallbackModel,
		Timeout:       timeout,
		Client:        &http.Client{Timeout: timeout},
	}
}

// doneMarker is appended by the dialogue service's prompt when it considers
// the conversation finished. It is stripped from the spoken reply.
const doneMarker = "[END_CALL]"

func (c *DialogueClient) Reply(ctx context.Context, history []Message, userText, correlationID string) (Reply, error) {
	if c.URL == "" {
		return Reply{}, fmt.Errorf("%w: DIALOGUE_URL not configured", ErrPermanent)
	}
	reply, err := c.call(ctx, c.Model, history, userText, correlationID)
	if err == nil {
		return reply, nil
	}
	if c.FallbackModel != "" && c.FallbackModel != c.Model && errors.Is(err, ErrTransient) {
		time.Sleep(250 * time.Millisecond)
		return c.call(ctx, c.FallbackModel, history, userText, correlationID)
	}
	return Reply{}, err
}

func (c *DialogueClient) call(ctx context.Context, model string, history []Message, userText, correlationID string) (Reply, error) {
	msgs := make([]Message, 0, len(history)+1)
	msgs = append(msgs, history...)
	msgs = append(msgs, Message{Role: "user", Content: userText})
	payload := map[string]interface{}{
		"messages":       msgs,
		"correlation_id": correlationID,
	}
	if model != "" {
		payload["model"] = model
	}
	body, _ := json.Marshal(payload)

	resp, err := postWithRetries(ctx, c.Client, c.URL, "application/json", body, c.AuthToken, c.Timeout, 2, correlationID)
	if err != nil {
		return Reply{}, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return Reply{}, fmt.Errorf("%w: status %d", ErrPermanent, resp.StatusCode)
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		ConversationComplete bool `json:"conversation_complete"`
	}
	if derr := json.NewDecoder(resp.Body).Decode(&out); derr != nil {
		return Reply{}, fmt.Errorf("%w: decode error: %v", ErrTransient, derr)
	}
	if len(out.Choices) == 0 {
		return Reply{}, fmt.Errorf("%w: empty choices", ErrTransient)
	}
	text := strings.TrimSpace(out.Choices[0].Message.Content)
	done := out.ConversationComplete
	if strings.Contains(text, doneMarker) {
		done = true
		text = strings.TrimSpace(strings.ReplaceAll(text, doneMarker, ""))
	}
	return Reply{Text: text, Done: done}, nil
}
