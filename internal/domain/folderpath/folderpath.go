// Package folderpath provides the normalized folder-path value type used
// to express and evaluate scope boundaries against ELN page/notebook
// folder assignments.
package folderpath

import "strings"

// Path is an ordered, normalized sequence of folder name components.
// The zero value is the root path (no components) and is a parent of
// every Path, including itself.
//
// Path is immutable once constructed: FromRaw is the only constructor
// and callers never mutate the returned value's backing slice.
type Path struct {
	components []string
}

// FromRaw splits s on "/" and discards empty components, so that
// leading, trailing, and doubled slashes all collapse away. Every
// string maps to some Path; there is no error case.
func FromRaw(s string) Path {
	parts := strings.Split(s, "/")
	components := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		components = append(components, p)
	}
	return Path{components: components}
}

// Components returns the ordered component slice. Callers must not
// mutate the returned slice.
func (p Path) Components() []string {
	return p.components
}

// IsRoot reports whether p is the empty/root path.
func (p Path) IsRoot() bool {
	return len(p.components) == 0
}

// String renders p as a "/"-joined string for display purposes (e.g.
// MCPResourceContent.metadata.folder_path). The root path renders as "".
func (p Path) String() string {
	return strings.Join(p.components, "/")
}

// IsParentOf reports whether p is a proper-or-equal, component-wise
// prefix of other. Matching is case-sensitive and never crosses partial
// components: FromRaw("Chem").IsParentOf(FromRaw("Chemistry")) is false
// because "Chem" and "Chemistry" are different components at index 0,
// not because "Chem" is a string prefix of "Chemistry".
//
// The root path (p.IsRoot()) is a parent of every Path, including
// itself, which is the mechanism by which a root-folder scope includes
// resources with no folder assignment.
func (p Path) IsParentOf(other Path) bool {
	if len(p.components) > len(other.components) {
		return false
	}
	for i, c := range p.components {
		if other.components[i] != c {
			return false
		}
	}
	return true
}

// Equals reports component-wise equality between p and other.
func (p Path) Equals(other Path) bool {
	if len(p.components) != len(other.components) {
		return false
	}
	for i, c := range p.components {
		if other.components[i] != c {
			return false
		}
	}
	return true
}
