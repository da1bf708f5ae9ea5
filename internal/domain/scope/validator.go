// Package scope decides, for a given resource URI and the configured
// Config, whether access is permitted. It is fail-secure: any case the
// validator cannot prove is in-scope is denied.
package scope

import (
	"github.com/elnmcp/gateway/internal/domain/folderpath"
	"github.com/elnmcp/gateway/internal/domain/resource"
)

// PageFilter is the predicate ResourceManager uses during two-phase
// listing to decide whether a page's folder falls under the configured
// folder scope. It is meaningful only when cfg.Mode == ModeFolderPath;
// for every other mode it always returns true, since notebook
// selection for those modes happens before any page is listed.
type PageFilter func(pageFolder folderpath.Path) bool

// ValidateList returns the page-level filter predicate for cfg.
func ValidateList(cfg Config) PageFilter {
	if cfg.Mode != ModeFolderPath {
		return func(folderpath.Path) bool { return true }
	}
	return func(pageFolder folderpath.Path) bool {
		return cfg.FolderPath.IsParentOf(pageFolder)
	}
}

// ResolvedParents carries the upstream-resolved facts ScopeValidator
// needs to evaluate a read request. The caller (ResourceManager) fetches
// these before calling ValidateRead; fetching happens strictly after
// URI parse and session-freshness checks and strictly before the scope
// check (spec §4.7 ordering).
type ResolvedParents struct {
	// ResolvedNotebookID is the notebook ID a notebook-name scope
	// resolved to (ModeNotebookName only).
	ResolvedNotebookID string

	// PageFolderPath is the stored folder path of the target page
	// (PAGE and ENTRY requests).
	PageFolderPath folderpath.Path

	// PageNotebookID is the notebook ID the target page actually
	// belongs to, as resolved from upstream (ENTRY requests) — used to
	// prevent cross-notebook entry-ID guessing.
	PageNotebookID string

	// NotebookPageFolders lists the folder path of every page in the
	// requested notebook (NOTEBOOK requests under a folder-path scope
	// only). ValidateRead allows the notebook only if some listed folder
	// is in scope, so a nil or empty slice is a denial.
	NotebookPageFolders []folderpath.Path
}

// ValidateRead decides whether uri is in scope under cfg, given the
// upstream facts in parents. It returns nil if allowed, or a *Violation
// if denied.
func ValidateRead(cfg Config, uri resource.URI, parents ResolvedParents) error {
	switch cfg.Mode {
	case ModeNone:
		return nil

	case ModeNotebookID:
		if uri.NotebookID != cfg.NotebookID {
			return newViolation(KindNotebookOutsideConfiguredNotebook,
				"requested notebook "+uri.NotebookID+" is not the configured notebook "+cfg.NotebookID)
		}
		return nil

	case ModeNotebookName:
		if uri.NotebookID != parents.ResolvedNotebookID {
			return newViolation(KindNotebookOutsideConfiguredNotebook,
				"requested notebook "+uri.NotebookID+" is not the notebook resolved for name "+cfg.NotebookName)
		}
		return nil

	case ModeFolderPath:
		return validateFolderScope(cfg, uri, parents)

	default:
		// Unknown mode: fail secure.
		return newViolation(KindNotebookOutsideConfiguredNotebook, "unrecognized scope mode")
	}
}

func validateFolderScope(cfg Config, uri resource.URI, parents ResolvedParents) error {
	switch uri.Kind {
	case resource.KindNotebook:
		// Fail-secure: absence of evidence (nil slice) is treated the
		// same as "no in-scope pages found" — an empty notebook is
		// denied, never allowed by default.
		for _, pf := range parents.NotebookPageFolders {
			if cfg.FolderPath.IsParentOf(pf) {
				return nil
			}
		}
		return newViolation(KindNotebookOutsideFolderScope,
			"notebook "+uri.NotebookID+" has no page under folder scope "+cfg.FolderPath.String())

	case resource.KindPage:
		if cfg.FolderPath.IsParentOf(parents.PageFolderPath) {
			return nil
		}
		return newViolation(KindPageOutsideFolderScope,
			"page folder "+parents.PageFolderPath.String()+" is outside folder scope "+cfg.FolderPath.String())

	case resource.KindEntry:
		if !cfg.FolderPath.IsParentOf(parents.PageFolderPath) {
			return newViolation(KindPageOutsideFolderScope,
				"entry's parent page folder "+parents.PageFolderPath.String()+" is outside folder scope "+cfg.FolderPath.String())
		}
		if parents.PageNotebookID != uri.NotebookID {
			return newViolation(KindEntryOutsideNotebookScope,
				"entry's parent page belongs to notebook "+parents.PageNotebookID+", not requested notebook "+uri.NotebookID)
		}
		return nil

	default:
		return newViolation(KindNotebookOutsideFolderScope, "unrecognized resource kind")
	}
}
