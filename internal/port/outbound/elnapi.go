package outbound

import "context"

// ELNResponse is a decoded upstream response body plus the Content-Type
// it was parsed under, preserved so callers that need to distinguish
// shapes (e.g. ResourceManager picking a mimeType) can inspect it.
type ELNResponse struct {
	Body        map[string]any
	ContentType string
}

// ELNRequester is the outbound port for issuing one authenticated GET
// against the upstream ELN API. AuthManager uses it to call the
// user-info endpoint; ResourceManager uses it to list and read
// notebooks, pages, and entries. Both consumers depend only on this
// interface, never on the concrete HTTP adapter.
type ELNRequester interface {
	Get(ctx context.Context, path string, params map[string]string) (*ELNResponse, error)
}
