package model

// GeometryType discriminates the two spot shapes supported on the
// site map. The values match the serialized snapshot format.
type GeometryType string

const (
	// GeometryRect is an axis-aligned rectangle positioned by its
	// top-left corner.
	GeometryRect GeometryType = "rect"
	// GeometryCircle is a circle positioned by its center.
	GeometryCircle GeometryType = "circle"
)

// Spot describes a bookable vendor location on the site map. Spots
// are persisted as one flat JSON snapshot, so the geometry variant is
// encoded inline with a type tag rather than as a nested object.
//
// Fields:
//
//	ID          – unique identifier, stable across edits unless renamed.
//	Type        – geometry variant ("rect" or "circle").
//	X, Y, W, H  – rectangle position and size (rect only).
//	CX, CY, R   – circle center and radius (circle only).
//	Price       – non-negative base price before add-ons.
//	Description – optional free text shown to visitors.
type Spot struct {
	ID          string       `json:"id"`
	Type        GeometryType `json:"type"`
	X           float64      `json:"x,omitempty"`
	Y           float64      `json:"y,omitempty"`
	W           float64      `json:"w,omitempty"`
	H           float64      `json:"h,omitempty"`
	CX          float64      `json:"cx,omitempty"`
	CY          float64      `json:"cy,omitempty"`
	R           float64      `json:"r,omitempty"`
	Price       float64      `json:"price"`
	Description string       `json:"description,omitempty"`
}

// Validate reports whether the spot carries a usable id, a known
// geometry variant and a non-negative price.
func (s Spot) Validate() bool {
	if s.ID == "" || s.Price < 0 {
		return false
	}
	switch s.Type {
	case GeometryRect:
		return s.W > 0 && s.H > 0
	case GeometryCircle:
		return s.R > 0
	}
	return false
}

// MoveTo repositions the spot so its anchor (top-left corner for
// rects, center for circles) lands at the given point.
func (s *Spot) MoveTo(x, y float64) {
	switch s.Type {
	case GeometryRect:
		s.X, s.Y = x, y
	case GeometryCircle:
		s.CX, s.CY = x, y
	}
}

// Anchor returns the coordinate used when capturing a pointer offset
// at the start of a drag: the top-left corner for rects and the
// center for circles.
func (s Spot) Anchor() (x, y float64) {
	if s.Type == GeometryCircle {
		return s.CX, s.CY
	}
	return s.X, s.Y
}
