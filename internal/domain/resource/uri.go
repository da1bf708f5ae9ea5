// Package resource defines the ELN resource URI grammar and the MCP
// resource/content shapes returned to the client.
package resource

import (
	"fmt"
	"strings"
)

// Scheme is the URI scheme identifying an ELN resource reference,
// matching the upstream product identifier.
const Scheme = "eln"

// MaxURILength is the maximum accepted length of a resource URI string.
// Longer values are rejected before any upstream call is attempted.
const MaxURILength = 2048

// Kind identifies what a URI refers to.
type Kind int

const (
	// KindNotebook identifies a notebook-level resource.
	KindNotebook Kind = iota
	// KindPage identifies a page within a notebook.
	KindPage
	// KindEntry identifies an entry within a page.
	KindEntry
)

// String returns a human-readable name for k, used in metadata and logs.
func (k Kind) String() string {
	switch k {
	case KindNotebook:
		return "notebook"
	case KindPage:
		return "page"
	case KindEntry:
		return "entry"
	default:
		return "unknown"
	}
}

// URI is a parsed, immutable reference to an ELN notebook, page, or
// entry. The grammar is:
//
//	eln://notebook/<notebook_id>
//	eln://notebook/<notebook_id>/page/<page_id>
//	eln://notebook/<notebook_id>/page/<page_id>/entry/<entry_id>
type URI struct {
	Kind       Kind
	NotebookID string
	PageID     string
	EntryID    string
}

// ParseError reports a grammar violation when parsing a resource URI.
// It is mapped to JSON-RPC InvalidParams by the dispatcher.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid resource uri %q: %s", e.Input, e.Reason)
}

// Parse validates and decomposes a resource URI string. Identifiers
// must be non-empty; the grammar must match exactly one of the three
// forms; and the input must not exceed MaxURILength. Every other
// failure mode returns a *ParseError.
func Parse(s string) (URI, error) {
	if len(s) > MaxURILength {
		return URI{}, &ParseError{Input: truncate(s, 64), Reason: "uri exceeds maximum length"}
	}

	prefix := Scheme + "://notebook/"
	if !strings.HasPrefix(s, prefix) {
		return URI{}, &ParseError{Input: s, Reason: "missing or unrecognized scheme"}
	}

	rest := strings.TrimPrefix(s, prefix)
	segments := strings.Split(rest, "/")

	switch len(segments) {
	case 1:
		if segments[0] == "" {
			return URI{}, &ParseError{Input: s, Reason: "empty notebook id"}
		}
		return URI{Kind: KindNotebook, NotebookID: segments[0]}, nil

	case 3:
		if segments[0] == "" || segments[2] == "" {
			return URI{}, &ParseError{Input: s, Reason: "empty notebook or page id"}
		}
		if segments[1] != "page" {
			return URI{}, &ParseError{Input: s, Reason: "expected /page/<id> segment"}
		}
		return URI{Kind: KindPage, NotebookID: segments[0], PageID: segments[2]}, nil

	case 5:
		if segments[0] == "" || segments[2] == "" || segments[4] == "" {
			return URI{}, &ParseError{Input: s, Reason: "empty notebook, page, or entry id"}
		}
		if segments[1] != "page" || segments[3] != "entry" {
			return URI{}, &ParseError{Input: s, Reason: "expected /page/<id>/entry/<id> segments"}
		}
		return URI{Kind: KindEntry, NotebookID: segments[0], PageID: segments[2], EntryID: segments[4]}, nil

	default:
		return URI{}, &ParseError{Input: s, Reason: "unrecognized uri shape"}
	}
}

// String renders u back into its canonical wire form. Parsing then
// re-serializing a valid URI yields a byte-identical string.
func (u URI) String() string {
	switch u.Kind {
	case KindNotebook:
		return fmt.Sprintf("%s://notebook/%s", Scheme, u.NotebookID)
	case KindPage:
		return fmt.Sprintf("%s://notebook/%s/page/%s", Scheme, u.NotebookID, u.PageID)
	case KindEntry:
		return fmt.Sprintf("%s://notebook/%s/page/%s/entry/%s", Scheme, u.NotebookID, u.PageID, u.EntryID)
	default:
		return ""
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
