package models

import "time"

// ElementKind enumerates the closed set of canvas element variants
type ElementKind string

// Element kinds
const (
	ElementKindText      ElementKind = "text"
	ElementKindImage     ElementKind = "image"
	ElementKindVideo     ElementKind = "video"
	ElementKindMoodboard ElementKind = "moodboard"
	ElementKindTemplate  ElementKind = "template"
)

// Transform holds position, size, rotation and stacking order of an element
type Transform struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Rotation float64 `json:"rotation"`
	ZIndex   int     `json:"z_index"`
}

// TextProps carries the text-variant payload
type TextProps struct {
	Content    string  `json:"content"`
	FontFamily string  `json:"font_family,omitempty"`
	FontSize   float64 `json:"font_size,omitempty"`
	FontWeight string  `json:"font_weight,omitempty"`
	Color      string  `json:"color,omitempty"`
	Align      string  `json:"align,omitempty"`
}

// ImageProps carries the image-variant payload
type ImageProps struct {
	Source  string  `json:"source"`
	AltText string  `json:"alt_text,omitempty"`
	Opacity float64 `json:"opacity,omitempty"`
	Filter  string  `json:"filter,omitempty"`
}

// VideoProps carries the video-variant payload
type VideoProps struct {
	Source    string  `json:"source"`
	TrimStart float64 `json:"trim_start,omitempty"`
	TrimEnd   float64 `json:"trim_end,omitempty"`
	Muted     bool    `json:"muted,omitempty"`
	Loop      bool    `json:"loop,omitempty"`
}

// MoodboardItem is a single entry inside a moodboard element
type MoodboardItem struct {
	ID      string `json:"id"`
	Kind    string `json:"kind"`
	Source  string `json:"source,omitempty"`
	Caption string `json:"caption,omitempty"`
}

// MoodboardProps carries the moodboard-variant payload
type MoodboardProps struct {
	Items  []MoodboardItem `json:"items"`
	Layout string          `json:"layout,omitempty"`
}

// TemplateProps carries the template-variant payload. SlotValues maps slot
// names of the referenced catalog template to the values filled in by users.
type TemplateProps struct {
	TemplateID string            `json:"template_id"`
	SlotValues map[string]string `json:"slot_values,omitempty"`
}

// Element is one item on the canvas. Exactly one of the variant payload
// pointers matching Kind is non-nil.
type Element struct {
	ID        string      `json:"id"`
	Kind      ElementKind `json:"kind"`
	Transform Transform   `json:"transform"`
	Locked    bool        `json:"locked"`
	Visible   bool        `json:"visible"`

	CreatedAt  time.Time `json:"created_at"`
	CreatedBy  string    `json:"created_by"`
	ModifiedAt time.Time `json:"modified_at"`
	ModifiedBy string    `json:"modified_by"`

	Text      *TextProps      `json:"text,omitempty"`
	Image     *ImageProps     `json:"image,omitempty"`
	Video     *VideoProps     `json:"video,omitempty"`
	Moodboard *MoodboardProps `json:"moodboard,omitempty"`
	Template  *TemplateProps  `json:"template,omitempty"`
}

// Clone returns a structurally independent copy of the element. Snapshots
// rely on this: a cloned element must never alias the live one.
func (e *Element) Clone() *Element {
	if e == nil {
		return nil
	}

	clone := *e

	if e.Text != nil {
		t := *e.Text
		clone.Text = &t
	}
	if e.Image != nil {
		img := *e.Image
		clone.Image = &img
	}
	if e.Video != nil {
		v := *e.Video
		clone.Video = &v
	}
	if e.Moodboard != nil {
		mb := MoodboardProps{Layout: e.Moodboard.Layout}
		if e.Moodboard.Items != nil {
			mb.Items = make([]MoodboardItem, len(e.Moodboard.Items))
			copy(mb.Items, e.Moodboard.Items)
		}
		clone.Moodboard = &mb
	}
	if e.Template != nil {
		tpl := TemplateProps{TemplateID: e.Template.TemplateID}
		if e.Template.SlotValues != nil {
			tpl.SlotValues = make(map[string]string, len(e.Template.SlotValues))
			for k, v := range e.Template.SlotValues {
				tpl.SlotValues[k] = v
			}
		}
		clone.Template = &tpl
	}

	return &clone
}
