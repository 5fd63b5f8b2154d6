package session

import (
	"context"
	"regexp"
	"strings"
)

// LeadInfo accumulates contact details surfaced across the turns of a call.
// Fields are optional; Merge applies the one rule "new non-empty value
// overwrites old".
type LeadInfo struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
	Date    string `json:"date,omitempty"`
	Time    string `json:"time,omitempty"`
}

// Merge overlays non-empty fields of other onto l.
func (l *LeadInfo) Merge(other LeadInfo) {
	if other.Name != "" {
		l.Name = other.Name
	}
	if other.Email != "" {
		l.Email = other.Email
	}
	if other.Phone != "" {
		l.Phone = other.Phone
	}
	if other.Address != "" {
		l.Address = other.Address
	}
	if other.Date != "" {
		l.Date = other.Date
	}
	if other.Time != "" {
		l.Time = other.Time
	}
}

// Empty reports whether no field has been captured.
func (l LeadInfo) Empty() bool {
	return l == LeadInfo{}
}

// Extractor pulls lead details out of a turn's transcript text. It runs as
// detached best-effort work; the session never waits on it and only logs
// its failures.
type Extractor interface {
	Extract(ctx context.Context, text string) (LeadInfo, error)
}

// PatternExtractor recognizes emails, phone numbers and date/time mentions
// with plain patterns. It covers the common dictated formats; anything more
// nuanced belongs to the dialogue service.
type PatternExtractor struct{}

var (
	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phoneRe = regexp.MustCompile(`\+?\d[\d\- ]{8,14}\d`)
	dateRe  = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
	timeRe  = regexp.MustCompile(`\b([01]?\d|2[0-3]):[0-5]\d\b`)
)

func (PatternExtractor) Extract(_ context.Context, text string) (LeadInfo, error) {
	var info LeadInfo
	if m := emailRe.FindString(text); m != "" {
		info.Email = m
	}
	if m := phoneRe.FindString(text); m != "" {
		info.Phone = strings.TrimSpace(m)
	}
	if m := dateRe.FindString(text); m != "" {
		info.Date = m
	}
	if m := timeRe.FindString(text); m != "" {
		info.Time = m
	}
	return info, nil
}
