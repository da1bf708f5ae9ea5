package service

import (
	"context"
	"fmt"
	"time"

	"github.com/elnmcp/gateway/internal/domain/audit"
	"github.com/elnmcp/gateway/internal/domain/elnerrors"
	"github.com/elnmcp/gateway/internal/domain/folderpath"
	"github.com/elnmcp/gateway/internal/domain/resource"
	"github.com/elnmcp/gateway/internal/domain/scope"
	"github.com/elnmcp/gateway/internal/port/outbound"
)

// ResourceManager discovers and reads ELN resources, enforcing scope at
// every step. Every operation is read-only.
type ResourceManager struct {
	scopeCfg  scope.Config
	auth      outbound.Authenticator
	requester outbound.ELNRequester
	emitter   *AuditEmitter

	notebooksPath string
	pagesPath     string
	entriesPath   string
}

// NewResourceManager builds a ResourceManager bound to scopeCfg.
func NewResourceManager(scopeCfg scope.Config, auth outbound.Authenticator, requester outbound.ELNRequester, emitter *AuditEmitter) *ResourceManager {
	return &ResourceManager{
		scopeCfg:      scopeCfg,
		auth:          auth,
		requester:     requester,
		emitter:       emitter,
		notebooksPath: "/notebooks/list",
		pagesPath:     "/pages/list",
		entriesPath:   "/entries/get",
	}
}

// ParseResourceURI parses and validates a resource URI string.
func (m *ResourceManager) ParseResourceURI(s string) (resource.URI, error) {
	return resource.Parse(s)
}

// ListResources resolves the effective starting point from the
// configured scope and returns the MCPResource listing.
func (m *ResourceManager) ListResources(ctx context.Context) ([]resource.MCPResource, error) {
	if err := m.auth.EnsureAuthenticated(ctx); err != nil {
		return nil, err
	}
	creds, err := m.auth.CurrentCredentials(ctx)
	if err != nil {
		return nil, err
	}
	uid := creds.UserID

	out, err := m.listForScope(ctx, uid)
	if err != nil {
		return nil, err
	}
	m.recordScopeEvent(ctx, audit.EventResourceList, audit.OutcomeOK, "", fmt.Sprintf("listed %d resources", len(out)))
	return out, nil
}

func (m *ResourceManager) listForScope(ctx context.Context, uid string) ([]resource.MCPResource, error) {
	switch m.scopeCfg.Mode {
	case scope.ModeNone:
		return m.listAllNotebooks(ctx, uid)

	case scope.ModeNotebookID:
		return m.listPagesOf(ctx, uid, m.scopeCfg.NotebookID)

	case scope.ModeNotebookName:
		notebooks, err := m.fetchNotebooks(ctx, uid)
		if err != nil {
			return nil, err
		}
		matches := make([]resource.Notebook, 0, 1)
		for _, nb := range notebooks {
			if nb.Name == m.scopeCfg.NotebookName {
				matches = append(matches, nb)
			}
		}
		switch len(matches) {
		case 0:
			m.recordScopeEvent(ctx, audit.EventResourceList, audit.OutcomeDenied, "",
				fmt.Sprintf("configured notebook name %q matched no visible notebook", m.scopeCfg.NotebookName))
			return []resource.MCPResource{}, nil
		case 1:
			return m.listPagesOf(ctx, uid, matches[0].ID)
		default:
			return nil, &elnerrors.ConfigurationError{
				Reason: fmt.Sprintf("notebook name %q is ambiguous: %d visible notebooks match", m.scopeCfg.NotebookName, len(matches)),
			}
		}

	case scope.ModeFolderPath:
		return m.listByFolderScope(ctx, uid)

	default:
		return nil, &elnerrors.ConfigurationError{Reason: "unrecognized scope mode"}
	}
}

func (m *ResourceManager) listAllNotebooks(ctx context.Context, uid string) ([]resource.MCPResource, error) {
	notebooks, err := m.fetchNotebooks(ctx, uid)
	if err != nil {
		return nil, err
	}
	out := make([]resource.MCPResource, 0, len(notebooks))
	for _, nb := range notebooks {
		out = append(out, resource.MCPResource{
			URI:  resource.URI{Kind: resource.KindNotebook, NotebookID: nb.ID}.String(),
			Name: nb.Name,
		})
	}
	return out, nil
}

func (m *ResourceManager) listPagesOf(ctx context.Context, uid, notebookID string) ([]resource.MCPResource, error) {
	pages, err := m.fetchPages(ctx, uid, notebookID)
	if err != nil {
		return nil, err
	}
	out := make([]resource.MCPResource, 0, len(pages))
	for _, p := range pages {
		out = append(out, resource.MCPResource{
			URI:  resource.URI{Kind: resource.KindPage, NotebookID: notebookID, PageID: p.ID}.String(),
			Name: p.Title,
		})
	}
	return out, nil
}

// listByFolderScope implements the two-phase listing algorithm: list all
// notebooks, then list each notebook's pages and keep only the pages
// whose folder path falls under the configured folder scope. A notebook
// that contributes zero in-scope pages is never listed.
func (m *ResourceManager) listByFolderScope(ctx context.Context, uid string) ([]resource.MCPResource, error) {
	notebooks, err := m.fetchNotebooks(ctx, uid)
	if err != nil {
		return nil, err
	}
	filter := scope.ValidateList(m.scopeCfg)

	out := make([]resource.MCPResource, 0)
	for _, nb := range notebooks {
		pages, err := m.fetchPages(ctx, uid, nb.ID)
		if err != nil {
			return nil, err
		}
		for _, p := range pages {
			if filter(folderpath.FromRaw(p.FolderPath)) {
				out = append(out, resource.MCPResource{
					URI:  resource.URI{Kind: resource.KindPage, NotebookID: nb.ID, PageID: p.ID}.String(),
					Name: p.Title,
				})
			}
		}
	}
	return out, nil
}

// ReadResource resolves, scope-checks, and fetches the content for uri,
// in the order mandated by the failure-ordering contract: URI parse (by
// the caller), session freshness, upstream parent resolution, scope
// validation, content fetch.
func (m *ResourceManager) ReadResource(ctx context.Context, uri resource.URI) (*resource.MCPResourceContent, error) {
	if err := m.auth.EnsureAuthenticated(ctx); err != nil {
		return nil, err
	}
	creds, err := m.auth.CurrentCredentials(ctx)
	if err != nil {
		return nil, err
	}
	uid := creds.UserID

	parents, err := m.resolveParents(ctx, uid, uri)
	if err != nil {
		return nil, err
	}

	if err := scope.ValidateRead(m.scopeCfg, uri, parents); err != nil {
		m.recordScopeEvent(ctx, audit.EventScopeViolation, audit.OutcomeDenied, uri.String(), err.Error())
		return nil, err
	}

	content, err := m.fetchContent(ctx, uid, uri, parents)
	if err != nil {
		return nil, err
	}
	m.recordScopeEvent(ctx, audit.EventResourceRead, audit.OutcomeOK, uri.String(), "")
	return content, nil
}

// resolveParents fetches the upstream facts ScopeValidator needs to
// evaluate uri, scoped to exactly what each resource kind requires.
func (m *ResourceManager) resolveParents(ctx context.Context, uid string, uri resource.URI) (scope.ResolvedParents, error) {
	var parents scope.ResolvedParents

	if m.scopeCfg.Mode == scope.ModeNotebookName {
		notebooks, err := m.fetchNotebooks(ctx, uid)
		if err != nil {
			return parents, err
		}
		matches := 0
		for _, nb := range notebooks {
			if nb.Name == m.scopeCfg.NotebookName {
				parents.ResolvedNotebookID = nb.ID
				matches++
			}
		}
		if matches > 1 {
			return parents, &elnerrors.ConfigurationError{
				Reason: fmt.Sprintf("notebook name %q is ambiguous: %d visible notebooks match", m.scopeCfg.NotebookName, matches),
			}
		}
	}

	switch uri.Kind {
	case resource.KindNotebook:
		if m.scopeCfg.Mode == scope.ModeFolderPath {
			pages, err := m.fetchPages(ctx, uid, uri.NotebookID)
			if err != nil {
				return parents, err
			}
			folders := make([]folderpath.Path, len(pages))
			for i, p := range pages {
				folders[i] = folderpath.FromRaw(p.FolderPath)
			}
			parents.NotebookPageFolders = folders
		}

	case resource.KindPage:
		page, err := m.findPage(ctx, uid, uri.NotebookID, uri.PageID)
		if err != nil {
			return parents, err
		}
		parents.PageFolderPath = folderpath.FromRaw(page.FolderPath)
		parents.PageNotebookID = page.NotebookID

	case resource.KindEntry:
		page, err := m.findPage(ctx, uid, uri.NotebookID, uri.PageID)
		if err != nil {
			return parents, err
		}
		parents.PageFolderPath = folderpath.FromRaw(page.FolderPath)
		parents.PageNotebookID = page.NotebookID
	}

	return parents, nil
}

func (m *ResourceManager) fetchContent(ctx context.Context, uid string, uri resource.URI, parents scope.ResolvedParents) (*resource.MCPResourceContent, error) {
	switch uri.Kind {
	case resource.KindNotebook:
		return &resource.MCPResourceContent{
			URI:      uri.String(),
			MimeType: "application/json",
			Metadata: resource.Metadata{NotebookID: uri.NotebookID},
		}, nil

	case resource.KindPage:
		page, err := m.findPage(ctx, uid, uri.NotebookID, uri.PageID)
		if err != nil {
			return nil, err
		}
		return &resource.MCPResourceContent{
			URI:      uri.String(),
			MimeType: "application/json",
			Metadata: resource.Metadata{
				NotebookID: page.NotebookID,
				PageTitle:  page.Title,
				FolderPath: page.FolderPath,
			},
		}, nil

	case resource.KindEntry:
		entries, err := m.fetchEntries(ctx, uid, uri.PageID)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.ID != uri.EntryID {
				continue
			}
			if parents.PageNotebookID != uri.NotebookID {
				return nil, &elnerrors.NotFoundError{Resource: uri.String()}
			}
			return &resource.MCPResourceContent{
				URI:      uri.String(),
				MimeType: mimeTypeForEntryKind(e.Kind),
				Text:     e.Content,
				Metadata: resource.Metadata{
					CreatedAt:  e.CreatedAt,
					ModifiedAt: e.ModifiedAt,
					Owner:      e.Owner,
					NotebookID: uri.NotebookID,
					FolderPath: parents.PageFolderPath.String(),
					EntryKind:  e.Kind,
				},
			}, nil
		}
		return nil, &elnerrors.NotFoundError{Resource: uri.String()}

	default:
		return nil, &elnerrors.NotFoundError{Resource: uri.String()}
	}
}

func mimeTypeForEntryKind(kind string) string {
	switch kind {
	case "text", "":
		return "text/plain"
	default:
		return "application/json"
	}
}

func (m *ResourceManager) findPage(ctx context.Context, uid, notebookID, pageID string) (resource.Page, error) {
	pages, err := m.fetchPages(ctx, uid, notebookID)
	if err != nil {
		return resource.Page{}, err
	}
	for _, p := range pages {
		if p.ID == pageID {
			return p, nil
		}
	}
	return resource.Page{}, &elnerrors.NotFoundError{Resource: fmt.Sprintf("page %s in notebook %s", pageID, notebookID)}
}

func (m *ResourceManager) fetchNotebooks(ctx context.Context, uid string) ([]resource.Notebook, error) {
	resp, err := m.requester.Get(ctx, m.notebooksPath, map[string]string{"uid": uid})
	if err != nil {
		return nil, err
	}
	notebooks, err := resource.DecodeNotebooks(resp.Body)
	if err != nil {
		return nil, &elnerrors.UpstreamUnavailableError{Path: m.notebooksPath, Err: err}
	}
	return notebooks, nil
}

func (m *ResourceManager) fetchPages(ctx context.Context, uid, notebookID string) ([]resource.Page, error) {
	resp, err := m.requester.Get(ctx, m.pagesPath, map[string]string{"uid": uid, "notebook_id": notebookID})
	if err != nil {
		return nil, err
	}
	pages, err := resource.DecodePages(resp.Body)
	if err != nil {
		return nil, &elnerrors.UpstreamUnavailableError{Path: m.pagesPath, Err: err}
	}
	return pages, nil
}

func (m *ResourceManager) fetchEntries(ctx context.Context, uid, pageID string) ([]resource.Entry, error) {
	resp, err := m.requester.Get(ctx, m.entriesPath, map[string]string{"uid": uid, "page_id": pageID})
	if err != nil {
		return nil, err
	}
	entries, err := resource.DecodeEntries(resp.Body)
	if err != nil {
		return nil, &elnerrors.UpstreamUnavailableError{Path: m.entriesPath, Err: err}
	}
	return entries, nil
}

func (m *ResourceManager) recordScopeEvent(ctx context.Context, eventType audit.EventType, outcome audit.Outcome, resourceURI, message string) {
	if m.emitter == nil {
		return
	}
	m.emitter.Record(audit.Event{
		Timestamp:     time.Now().UTC(),
		CorrelationID: audit.CorrelationIDFromContext(ctx),
		Type:          eventType,
		Outcome:       outcome,
		ResourceURI:   resourceURI,
		Message:       message,
	})
}
