package ingest

import (
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestParseNetworkLink(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		wantID   string
		wantType string
	}{
		{"analysis service format", "Linked via PHONE (9876543210) to 2 other entity(s)", "9876543210", "PHONE"},
		{"multi-word column", "Linked via BANK ACCOUNT (ac-55) to 1 other entity(s)", "ac-55", "BANK"},
		{"no parentheses", "suspicious", "suspicious", DefaultLinkType},
		{"empty", "", "", DefaultLinkType},
		{"empty parentheses", "Shared vendor id () here", "Shared vendor id () here", "id"},
		{"unclosed", "Shared vendor id (V-100", "V-100", "id"},
		{"nested open", "a b c (x (y) z", "x ", "c"},
		{"two tokens", "Shared (ACC1)", "ACC1", DefaultLinkType},
		{"repeated spaces", "Linked  via   PAN (abcde1234f)", "abcde1234f", "PAN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			link := ParseNetworkLink(tt.value)
			if link.Identifier != tt.wantID {
				t.Errorf("identifier: expected %q, got %q", tt.wantID, link.Identifier)
			}
			if link.Type != tt.wantType {
				t.Errorf("type: expected %q, got %q", tt.wantType, link.Type)
			}
			if link.RawDescription != tt.value {
				t.Errorf("raw description: expected %q, got %q", tt.value, link.RawDescription)
			}
		})
	}
}

func TestLinkOfPrefersStructuredLink(t *testing.T) {
	structured := &domain.NetworkLink{Identifier: "ACC-1", Type: "ACCOUNT", RawDescription: "x"}
	e := domain.Evidence{Description: domain.NetworkLinkTag, Value: "Linked via PHONE (123) to 1", Link: structured}

	if got := LinkOf(e); got != *structured {
		t.Errorf("expected structured link, got %+v", got)
	}

	e.Link = nil
	if got := LinkOf(e); got.Identifier != "123" || got.Type != "PHONE" {
		t.Errorf("expected parsed link, got %+v", got)
	}
}
