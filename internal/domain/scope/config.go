package scope

import "github.com/elnmcp/gateway/internal/domain/folderpath"

// Mode identifies which scope variant is active. At most one of
// notebook-id / notebook-name / folder-path may be configured; modeling
// this as a sum type makes the mutual-exclusion invariant
// unrepresentable rather than merely validated at startup.
type Mode int

const (
	// ModeNone means every resource visible to the authenticated user is
	// in scope.
	ModeNone Mode = iota
	// ModeNotebookID restricts scope to a single notebook by ID.
	ModeNotebookID
	// ModeNotebookName restricts scope to a single notebook resolved by
	// exact name match.
	ModeNotebookName
	// ModeFolderPath restricts scope to pages (and the notebooks that
	// contain them) whose folder path falls under a configured prefix.
	ModeFolderPath
)

// Config is the process-wide authorization boundary. It is constructed
// once at startup and never mutated.
type Config struct {
	Mode         Mode
	NotebookID   string
	NotebookName string
	FolderPath   folderpath.Path
}

// None is the unconfigured scope: every resource is in scope.
var None = Config{Mode: ModeNone}

// ByNotebookID scopes access to a single notebook by ID.
func ByNotebookID(id string) Config {
	return Config{Mode: ModeNotebookID, NotebookID: id}
}

// ByNotebookName scopes access to a single notebook resolved by exact
// name match.
func ByNotebookName(name string) Config {
	return Config{Mode: ModeNotebookName, NotebookName: name}
}

// ByFolderPath scopes access to pages under the given folder path
// (and the notebooks that contain at least one such page).
func ByFolderPath(p folderpath.Path) Config {
	return Config{Mode: ModeFolderPath, FolderPath: p}
}
