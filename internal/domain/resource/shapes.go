package resource

import "time"

// MCPResource is the listing-response shape (MCP "resources/list").
type MCPResource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// Metadata preserves the provenance fields every MCPResourceContent
// carries regardless of resource kind.
type Metadata struct {
	CreatedAt    time.Time `json:"created_at"`
	ModifiedAt   time.Time `json:"modified_at"`
	Owner        string    `json:"owner"`
	NotebookID   string    `json:"notebook_id"`
	NotebookName string    `json:"notebook_name,omitempty"`
	PageTitle    string    `json:"page_title,omitempty"`
	FolderPath   string    `json:"folder_path,omitempty"`
	EntryKind    string    `json:"entry_kind,omitempty"`
}

// MCPResourceContent is the read-response shape (MCP "resources/read").
// Exactly one of Text or Blob is populated.
type MCPResourceContent struct {
	URI      string   `json:"uri"`
	MimeType string   `json:"mimeType"`
	Text     string   `json:"text,omitempty"`
	Blob     string   `json:"blob,omitempty"`
	Metadata Metadata `json:"metadata"`
	Context  any      `json:"context,omitempty"`
}
