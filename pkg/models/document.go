package models

import "time"

// Permission is the ordinal role a user holds on a document
type Permission string

// Permission levels, ordered owner > editor > viewer > commenter
const (
	PermissionOwner     Permission = "owner"
	PermissionEditor    Permission = "editor"
	PermissionViewer    Permission = "viewer"
	PermissionCommenter Permission = "commenter"
)

// permissionRank orders permissions for gating. The ordering is ordinal only;
// the numeric values carry no meaning beyond comparison.
var permissionRank = map[Permission]int{
	PermissionCommenter: 0,
	PermissionViewer:    1,
	PermissionEditor:    2,
	PermissionOwner:     3,
}

// AtLeast reports whether p grants at least the rights of other
func (p Permission) AtLeast(other Permission) bool {
	return permissionRank[p] >= permissionRank[other]
}

// CanEdit reports whether the permission allows mutating document state
func (p Permission) CanEdit() bool {
	return p.AtLeast(PermissionEditor)
}

// Valid reports whether p is one of the defined levels
func (p Permission) Valid() bool {
	_, ok := permissionRank[p]
	return ok
}

// DocumentState is the mutable canvas content of a document
type DocumentState struct {
	Elements   map[string]*Element `json:"elements"`
	Width      float64             `json:"width"`
	Height     float64             `json:"height"`
	Background string              `json:"background"`
}

// NewDocumentState returns an empty canvas with default dimensions
func NewDocumentState() *DocumentState {
	return &DocumentState{
		Elements:   make(map[string]*Element),
		Width:      1920,
		Height:     1080,
		Background: "#ffffff",
	}
}

// Clone returns a structurally independent deep copy of the state. Version
// snapshots depend on this: later live mutation must never show through a
// stored snapshot.
func (s *DocumentState) Clone() *DocumentState {
	if s == nil {
		return nil
	}

	clone := &DocumentState{
		Elements:   make(map[string]*Element, len(s.Elements)),
		Width:      s.Width,
		Height:     s.Height,
		Background: s.Background,
	}
	for id, el := range s.Elements {
		clone.Elements[id] = el.Clone()
	}
	return clone
}

// Version is an immutable point-in-time snapshot of document state
type Version struct {
	ID          string         `json:"id"`
	Timestamp   time.Time      `json:"timestamp"`
	UserID      string         `json:"user_id"`
	UserName    string         `json:"user_name"`
	Description string         `json:"description"`
	Snapshot    *DocumentState `json:"snapshot"`
}

// Document is the authoritative server-side record for one canvas. The
// permission map is never empty once the document exists; the creating user
// always holds an owner entry.
type Document struct {
	ID          string                `json:"id"`
	Title       string                `json:"title"`
	State       *DocumentState        `json:"state"`
	Permissions map[string]Permission `json:"permissions"`
	Versions    []*Version            `json:"versions,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
	ModifiedAt  time.Time             `json:"modified_at"`
	ModifiedBy  string                `json:"modified_by,omitempty"`
}

// PermissionFor returns the permission held by a user, if any
func (d *Document) PermissionFor(userID string) (Permission, bool) {
	p, ok := d.Permissions[userID]
	return p, ok
}
