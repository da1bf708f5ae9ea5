package resource

import "testing"

func TestDecodeNotebooks(t *testing.T) {
	body := map[string]any{
		"notebooks": []any{
			map[string]any{"id": "nb1", "name": "Chemistry"},
			map[string]any{"id": "nb2", "name": "Biology"},
		},
	}
	notebooks, err := DecodeNotebooks(body)
	if err != nil {
		t.Fatalf("DecodeNotebooks: %v", err)
	}
	if len(notebooks) != 2 || notebooks[0].Name != "Chemistry" {
		t.Fatalf("got %+v", notebooks)
	}
}

func TestDecodeNotebooks_MissingArray(t *testing.T) {
	if _, err := DecodeNotebooks(map[string]any{}); err == nil {
		t.Fatal("expected error for missing notebooks array")
	}
}

func TestDecodePages(t *testing.T) {
	body := map[string]any{
		"pages": []any{
			map[string]any{"id": "p1", "notebook_id": "nb1", "title": "Page One", "folder_path": "Chem/2026"},
		},
	}
	pages, err := DecodePages(body)
	if err != nil {
		t.Fatalf("DecodePages: %v", err)
	}
	if len(pages) != 1 || pages[0].FolderPath != "Chem/2026" {
		t.Fatalf("got %+v", pages)
	}
}

func TestDecodeEntries(t *testing.T) {
	body := map[string]any{
		"entries": []any{
			map[string]any{
				"id": "e1", "page_id": "p1", "kind": "text", "content": "hello",
				"created_at": "2026-01-01T00:00:00Z", "modified_at": "2026-01-02T00:00:00Z", "owner": "alice",
			},
		},
	}
	entries, err := DecodeEntries(body)
	if err != nil {
		t.Fatalf("DecodeEntries: %v", err)
	}
	if len(entries) != 1 || entries[0].Owner != "alice" {
		t.Fatalf("got %+v", entries)
	}
	if entries[0].CreatedAt.IsZero() {
		t.Fatal("expected created_at to parse")
	}
}

func TestDecodeEntries_MalformedItemSkipped(t *testing.T) {
	body := map[string]any{"entries": []any{"not-a-map", map[string]any{"id": "e1"}}}
	entries, err := DecodeEntries(body)
	if err != nil {
		t.Fatalf("DecodeEntries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected malformed item skipped, got %+v", entries)
	}
}
