package models

import (
	"fmt"
	"time"
)

// OperationKind enumerates the closed set of edit operations
type OperationKind string

// Operation kinds
const (
	OpCreateElement     OperationKind = "create_element"
	OpUpdateElement     OperationKind = "update_element"
	OpDeleteElement     OperationKind = "delete_element"
	OpMoveElement       OperationKind = "move_element"
	OpResizeElement     OperationKind = "resize_element"
	OpUpdateText        OperationKind = "update_text"
	OpUpdatePermissions OperationKind = "update_permissions"
	OpCreateVersion     OperationKind = "create_version"
	OpRestoreVersion    OperationKind = "restore_version"
)

// CreateElementPayload inserts (or overwrites by id) an element
type CreateElementPayload struct {
	Element *Element `json:"element"`
}

// TextPatch is the typed partial update for text elements. Nil fields are
// left untouched.
type TextPatch struct {
	Content    *string  `json:"content,omitempty"`
	FontFamily *string  `json:"font_family,omitempty"`
	FontSize   *float64 `json:"font_size,omitempty"`
	FontWeight *string  `json:"font_weight,omitempty"`
	Color      *string  `json:"color,omitempty"`
	Align      *string  `json:"align,omitempty"`
}

// ImagePatch is the typed partial update for image elements
type ImagePatch struct {
	Source  *string  `json:"source,omitempty"`
	AltText *string  `json:"alt_text,omitempty"`
	Opacity *float64 `json:"opacity,omitempty"`
	Filter  *string  `json:"filter,omitempty"`
}

// VideoPatch is the typed partial update for video elements
type VideoPatch struct {
	Source    *string  `json:"source,omitempty"`
	TrimStart *float64 `json:"trim_start,omitempty"`
	TrimEnd   *float64 `json:"trim_end,omitempty"`
	Muted     *bool    `json:"muted,omitempty"`
	Loop      *bool    `json:"loop,omitempty"`
}

// MoodboardPatch is the typed partial update for moodboard elements. Items,
// when present, replaces the item list wholesale.
type MoodboardPatch struct {
	Items  *[]MoodboardItem `json:"items,omitempty"`
	Layout *string          `json:"layout,omitempty"`
}

// TemplatePatch is the typed partial update for template elements. SlotValues
// entries are merged key by key into the existing slot values.
type TemplatePatch struct {
	SlotValues map[string]string `json:"slot_values,omitempty"`
}

// UpdateElementPayload shallow-merges the supplied fields into an existing
// element. Variant patches are typed per element kind so fields of one
// variant can never bleed into another.
type UpdateElementPayload struct {
	ElementID string `json:"element_id"`

	Locked  *bool `json:"locked,omitempty"`
	Visible *bool `json:"visible,omitempty"`
	ZIndex  *int  `json:"z_index,omitempty"`

	Text      *TextPatch      `json:"text,omitempty"`
	Image     *ImagePatch     `json:"image,omitempty"`
	Video     *VideoPatch     `json:"video,omitempty"`
	Moodboard *MoodboardPatch `json:"moodboard,omitempty"`
	Template  *TemplatePatch  `json:"template,omitempty"`
}

// DeleteElementPayload removes an element by id. Deletion is a hard delete;
// the server keeps no tombstone.
type DeleteElementPayload struct {
	ElementID string `json:"element_id"`
}

// MoveElementPayload repositions an element
type MoveElementPayload struct {
	ElementID string   `json:"element_id"`
	X         float64  `json:"x"`
	Y         float64  `json:"y"`
	Rotation  *float64 `json:"rotation,omitempty"`
}

// ResizeElementPayload resizes an element
type ResizeElementPayload struct {
	ElementID string  `json:"element_id"`
	Width     float64 `json:"width"`
	Height    float64 `json:"height"`
}

// UpdateTextPayload replaces the content of a text element. It is a no-op
// against any other element kind.
type UpdateTextPayload struct {
	ElementID string `json:"element_id"`
	Content   string `json:"content"`
}

// UpdatePermissionsPayload grants or changes a user's permission on the
// document. Submitting it requires owner permission.
type UpdatePermissionsPayload struct {
	TargetUserID string     `json:"target_user_id"`
	Permission   Permission `json:"permission"`
}

// CreateVersionPayload captures a named snapshot of the current state
type CreateVersionPayload struct {
	Description string `json:"description"`
}

// RestoreVersionPayload replaces live state with a stored snapshot
type RestoreVersionPayload struct {
	VersionID string `json:"version_id"`
}

// Operation is a single attributable edit intent. Kind selects exactly one of
// the payload pointers; application dispatches over Kind exhaustively, so a
// new kind is a compile-surfaced addition in the processor.
type Operation struct {
	ID         string        `json:"id"`
	DocumentID string        `json:"document_id"`
	UserID     string        `json:"user_id"`
	Timestamp  time.Time     `json:"timestamp"`
	Sequence   int64         `json:"sequence"`
	Kind       OperationKind `json:"kind"`

	CreateElement     *CreateElementPayload     `json:"create_element,omitempty"`
	UpdateElement     *UpdateElementPayload     `json:"update_element,omitempty"`
	DeleteElement     *DeleteElementPayload     `json:"delete_element,omitempty"`
	MoveElement       *MoveElementPayload       `json:"move_element,omitempty"`
	ResizeElement     *ResizeElementPayload     `json:"resize_element,omitempty"`
	UpdateText        *UpdateTextPayload        `json:"update_text,omitempty"`
	UpdatePermissions *UpdatePermissionsPayload `json:"update_permissions,omitempty"`
	CreateVersion     *CreateVersionPayload     `json:"create_version,omitempty"`
	RestoreVersion    *RestoreVersionPayload    `json:"restore_version,omitempty"`
}

// Validate checks that the operation names a document and carries the payload
// its kind requires
func (op *Operation) Validate() error {
	if op.DocumentID == "" {
		return fmt.Errorf("operation %s missing document id", op.ID)
	}

	var ok bool
	switch op.Kind {
	case OpCreateElement:
		ok = op.CreateElement != nil && op.CreateElement.Element != nil && op.CreateElement.Element.ID != ""
	case OpUpdateElement:
		ok = op.UpdateElement != nil && op.UpdateElement.ElementID != ""
	case OpDeleteElement:
		ok = op.DeleteElement != nil && op.DeleteElement.ElementID != ""
	case OpMoveElement:
		ok = op.MoveElement != nil && op.MoveElement.ElementID != ""
	case OpResizeElement:
		ok = op.ResizeElement != nil && op.ResizeElement.ElementID != ""
	case OpUpdateText:
		ok = op.UpdateText != nil && op.UpdateText.ElementID != ""
	case OpUpdatePermissions:
		ok = op.UpdatePermissions != nil && op.UpdatePermissions.TargetUserID != "" && op.UpdatePermissions.Permission.Valid()
	case OpCreateVersion:
		ok = op.CreateVersion != nil
	case OpRestoreVersion:
		ok = op.RestoreVersion != nil && op.RestoreVersion.VersionID != ""
	default:
		return fmt.Errorf("unknown operation kind %q", op.Kind)
	}

	if !ok {
		return fmt.Errorf("operation %s has no valid %s payload", op.ID, op.Kind)
	}
	return nil
}
