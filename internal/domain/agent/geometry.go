package agent

import "math"

// Vec2 is a 2-D point or displacement in arena units.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (a Vec2) Add(b Vec2) Vec2 {
	return Vec2{X: a.X + b.X, Y: a.Y + b.Y}
}

func (a Vec2) Sub(b Vec2) Vec2 {
	return Vec2{X: a.X - b.X, Y: a.Y - b.Y}
}

func (a Vec2) MagSq() float64 {
	return a.X*a.X + a.Y*a.Y
}

func (a Vec2) Mag() float64 {
	return math.Sqrt(a.MagSq())
}

// Dist returns the Euclidean distance between two points.
func (a Vec2) Dist(b Vec2) float64 {
	return a.Sub(b).Mag()
}

// Rect is an axis-aligned region given by its top-left corner and size.
type Rect struct {
	Min  Vec2 `json:"min"`
	Size Vec2 `json:"size"`
}

// NewRect builds a rectangle from corner coordinates and dimensions.
func NewRect(x, y, w, h float64) Rect {
	return Rect{Min: Vec2{X: x, Y: y}, Size: Vec2{X: w, Y: h}}
}

func (r Rect) Max() Vec2 {
	return r.Min.Add(r.Size)
}

// Inset shrinks the rectangle by m on every side. The result may have a
// non-positive size; callers validate before sampling from it.
func (r Rect) Inset(m float64) Rect {
	return Rect{
		Min:  Vec2{X: r.Min.X + m, Y: r.Min.Y + m},
		Size: Vec2{X: r.Size.X - 2*m, Y: r.Size.Y - 2*m},
	}
}

func (r Rect) Contains(p Vec2) bool {
	max := r.Max()
	return p.X >= r.Min.X && p.X <= max.X && p.Y >= r.Min.Y && p.Y <= max.Y
}

// ContainsRect reports whether o lies entirely inside r.
func (r Rect) ContainsRect(o Rect) bool {
	return r.Contains(o.Min) && r.Contains(o.Max())
}

func (r Rect) Empty() bool {
	return r.Size.X <= 0 || r.Size.Y <= 0
}
