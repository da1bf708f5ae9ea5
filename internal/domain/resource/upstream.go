package resource

import (
	"fmt"
	"time"
)

// Notebook is the upstream-resolved shape of a notebook summary, as
// returned by the notebooks/list endpoint.
type Notebook struct {
	ID   string
	Name string
}

// Page is the upstream-resolved shape of a page summary, as returned by
// the pages/list endpoint.
type Page struct {
	ID         string
	NotebookID string
	Title      string
	FolderPath string
}

// Entry is the upstream-resolved shape of a page entry, as returned by
// the entries/get endpoint.
type Entry struct {
	ID         string
	PageID     string
	Kind       string
	Content    string
	CreatedAt  time.Time
	ModifiedAt time.Time
	Owner      string
}

// DecodeNotebooks extracts the "notebooks" array from an upstream
// notebooks/list response body.
func DecodeNotebooks(body map[string]any) ([]Notebook, error) {
	raw, ok := body["notebooks"].([]any)
	if !ok {
		return nil, fmt.Errorf("response missing notebooks array")
	}
	notebooks := make([]Notebook, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		notebooks = append(notebooks, Notebook{
			ID:   stringField(m, "id"),
			Name: stringField(m, "name"),
		})
	}
	return notebooks, nil
}

// DecodePages extracts the "pages" array from an upstream pages/list
// response body.
func DecodePages(body map[string]any) ([]Page, error) {
	raw, ok := body["pages"].([]any)
	if !ok {
		return nil, fmt.Errorf("response missing pages array")
	}
	pages := make([]Page, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		pages = append(pages, Page{
			ID:         stringField(m, "id"),
			NotebookID: stringField(m, "notebook_id"),
			Title:      stringField(m, "title"),
			FolderPath: stringField(m, "folder_path"),
		})
	}
	return pages, nil
}

// DecodeEntries extracts the "entries" array from an upstream
// entries/get response body.
func DecodeEntries(body map[string]any) ([]Entry, error) {
	raw, ok := body["entries"].([]any)
	if !ok {
		return nil, fmt.Errorf("response missing entries array")
	}
	entries := make([]Entry, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		entries = append(entries, Entry{
			ID:         stringField(m, "id"),
			PageID:     stringField(m, "page_id"),
			Kind:       stringField(m, "kind"),
			Content:    stringField(m, "content"),
			CreatedAt:  timeField(m, "created_at"),
			ModifiedAt: timeField(m, "modified_at"),
			Owner:      stringField(m, "owner"),
		})
	}
	return entries, nil
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func timeField(m map[string]any, key string) time.Time {
	v, ok := m[key].(string)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}
	}
	return t
}
