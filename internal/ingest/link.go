package ingest

import (
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// DefaultLinkType labels identifiers whose description carries no type token.
const DefaultLinkType = "ID"

// ParseNetworkLink extracts the correlation key from a free-text link
// description such as "Linked via PHONE (9876543210) to 2 other entity(s)".
//
// The identifier is the text after the first "(" up to the next ")" (or the
// next "(" when no ")" follows first). Without a usable parenthesised part the
// whole value is the identifier. The type is the third whitespace-separated
// token, or DefaultLinkType. ParseNetworkLink never fails.
func ParseNetworkLink(value string) domain.NetworkLink {
	return domain.NetworkLink{
		Identifier:     linkIdentifier(value),
		Type:           linkType(value),
		RawDescription: value,
	}
}

func linkIdentifier(value string) string {
	_, rest, ok := strings.Cut(value, "(")
	if !ok {
		return value
	}
	rest, _, _ = strings.Cut(rest, "(")
	id, _, _ := strings.Cut(rest, ")")
	if id == "" {
		return value
	}
	return id
}

func linkType(value string) string {
	fields := strings.Fields(value)
	if len(fields) < 3 {
		return DefaultLinkType
	}
	return fields[2]
}

// LinkOf returns the structured link of a network-link evidence entry,
// parsing the raw value for entries persisted without one.
func LinkOf(e domain.Evidence) domain.NetworkLink {
	if e.Link != nil {
		return *e.Link
	}
	return ParseNetworkLink(e.Value)
}
