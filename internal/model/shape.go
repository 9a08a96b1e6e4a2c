package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// The variant tag of a shape, as it appears on the wire
type ShapeType string

const (
	ShapeRect   ShapeType = "rect"
	ShapeCircle ShapeType = "circle"
	ShapeLine   ShapeType = "line"
	ShapePath   ShapeType = "path"
	ShapeText   ShapeType = "text"
)

var (
	ErrMissingShapeID   = errors.New("shape id is required")
	ErrUnknownShapeType = errors.New("unknown shape type")
)

// Valid reports whether t is one of the five drawable kinds.
func (t ShapeType) Valid() bool {
	switch t {
	case ShapeRect, ShapeCircle, ShapeLine, ShapePath, ShapeText:
		return true
	}
	return false
}

// Shape is a drawable object on the shared canvas. Only the fields relevant to
// Type are meaningful; Points are offsets relative to (X, Y).
type Shape struct {
	ID          string    `json:"id"`
	Type        ShapeType `json:"type"`
	X           float64   `json:"x"`
	Y           float64   `json:"y"`
	Width       float64   `json:"width,omitempty"`
	Height      float64   `json:"height,omitempty"`
	Radius      float64   `json:"radius,omitempty"`
	Points      []float64 `json:"points,omitempty"`
	Fill        string    `json:"fill,omitempty"`
	Stroke      string    `json:"stroke,omitempty"`
	StrokeWidth float64   `json:"strokeWidth,omitempty"`
	Text        string    `json:"text,omitempty"`
	FontSize    float64   `json:"fontSize,omitempty"`
}

func (s Shape) Validate() error {
	if s.ID == "" {
		return ErrMissingShapeID
	}
	if !s.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownShapeType, s.Type)
	}
	return nil
}

// Clone returns a copy that shares no backing array with s.
func (s Shape) Clone() Shape {
	if s.Points != nil {
		pts := make([]float64, len(s.Points))
		copy(pts, s.Points)
		s.Points = pts
	}
	return s
}

// ShapePatch is a partial set of shape fields keyed by their wire names.
type ShapePatch map[string]json.RawMessage

// Merge shallow-merges p over s. The id key is never applied, so a patch
// cannot rename a shape. On a malformed value s is returned unchanged.
func (s Shape) Merge(p ShapePatch) (Shape, error) {
	if len(p) == 0 {
		return s.Clone(), nil
	}

	base, err := json.Marshal(s)
	if err != nil {
		return s, err
	}

	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(base, &fields); err != nil {
		return s, err
	}
	for k, v := range p {
		if k == "id" {
			continue
		}
		fields[k] = v
	}

	merged, err := json.Marshal(fields)
	if err != nil {
		return s, fmt.Errorf("encode patched shape: %w", err)
	}

	var out Shape
	if err := json.Unmarshal(merged, &out); err != nil {
		return s, fmt.Errorf("decode patched shape: %w", err)
	}
	out.ID = s.ID
	return out, nil
}
