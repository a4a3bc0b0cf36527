package spatialmath

import (
	"math"
	"sort"

	"github.com/golang/geo/r2"
)

// defaultContainmentEpsilon is the distance within which a boundary point counts as inside.
const defaultContainmentEpsilon = 1e-9

// HalfPlane is the set {x : Normal·x <= Offset}. Normal is a unit vector pointing out of the set.
type HalfPlane struct {
	Normal r2.Point
	Offset float64
}

// Violation returns how far p lies outside the half plane. Negative values are inside.
func (h HalfPlane) Violation(p r2.Point) float64 {
	return h.Normal.Dot(p) - h.Offset
}

// ConvexPolygon is a planar convex polygon with counterclockwise vertices. Polygons with fewer
// than three vertices are allowed and describe a point or a line segment (e.g. a toe line).
type ConvexPolygon struct {
	vertices []r2.Point
}

// NewConvexPolygon returns the convex hull of the given points.
func NewConvexPolygon(points ...r2.Point) ConvexPolygon {
	return ConvexPolygon{vertices: convexHull(points)}
}

// convexHull is Andrew's monotone chain. Collinear and duplicate points are dropped.
func convexHull(points []r2.Point) []r2.Point {
	pts := make([]r2.Point, len(points))
	copy(pts, points)
	sort.Slice(pts, func(i, j int) bool {
		if pts[i].X != pts[j].X {
			return pts[i].X < pts[j].X
		}
		return pts[i].Y < pts[j].Y
	})
	unique := pts[:0]
	for i, p := range pts {
		if i == 0 || Distance(p, unique[len(unique)-1]) > defaultContainmentEpsilon {
			unique = append(unique, p)
		}
	}
	if len(unique) < 3 {
		return append([]r2.Point(nil), unique...)
	}

	cross := func(o, a, b r2.Point) float64 {
		return a.Sub(o).Cross(b.Sub(o))
	}
	hull := make([]r2.Point, 0, 2*len(unique))
	for _, p := range unique {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= defaultContainmentEpsilon {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(unique) - 2; i >= 0; i-- {
		p := unique[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= defaultContainmentEpsilon {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	hull = hull[:len(hull)-1]
	if len(hull) < 3 {
		// all points collinear; keep the two extremes
		return []r2.Point{unique[0], unique[len(unique)-1]}
	}
	return hull
}

// Vertices returns a copy of the counterclockwise vertex list.
func (p ConvexPolygon) Vertices() []r2.Point {
	return append([]r2.Point(nil), p.vertices...)
}

// NumVertices returns the number of hull vertices.
func (p ConvexPolygon) NumVertices() int {
	return len(p.vertices)
}

// IsEmpty reports whether the polygon has no vertices.
func (p ConvexPolygon) IsEmpty() bool {
	return len(p.vertices) == 0
}

// Area returns the enclosed area, zero for degenerate polygons.
func (p ConvexPolygon) Area() float64 {
	if len(p.vertices) < 3 {
		return 0
	}
	area := 0.
	for i, v := range p.vertices {
		area += v.Cross(p.vertices[(i+1)%len(p.vertices)])
	}
	return area / 2
}

// Centroid returns the area centroid, or the vertex mean for degenerate polygons.
func (p ConvexPolygon) Centroid() r2.Point {
	if len(p.vertices) == 0 {
		return r2.Point{}
	}
	area := p.Area()
	if area <= defaultContainmentEpsilon {
		sum := r2.Point{}
		for _, v := range p.vertices {
			sum = sum.Add(v)
		}
		return sum.Mul(1 / float64(len(p.vertices)))
	}
	c := r2.Point{}
	for i, v := range p.vertices {
		next := p.vertices[(i+1)%len(p.vertices)]
		c = c.Add(v.Add(next).Mul(v.Cross(next)))
	}
	return c.Mul(1 / (6 * area))
}

// Edges returns the boundary segments in counterclockwise order.
func (p ConvexPolygon) Edges() []LineSegment {
	switch len(p.vertices) {
	case 0:
		return nil
	case 1:
		return []LineSegment{{p.vertices[0], p.vertices[0]}}
	case 2:
		return []LineSegment{{p.vertices[0], p.vertices[1]}}
	}
	edges := make([]LineSegment, len(p.vertices))
	for i, v := range p.vertices {
		edges[i] = LineSegment{v, p.vertices[(i+1)%len(p.vertices)]}
	}
	return edges
}

// ClosestBoundaryPoint returns the point on the polygon boundary closest to pt.
func (p ConvexPolygon) ClosestBoundaryPoint(pt r2.Point) r2.Point {
	best := pt
	bestDist := math.Inf(1)
	for _, e := range p.Edges() {
		candidate := e.ClosestPoint(pt)
		if d := Distance(candidate, pt); d < bestDist {
			best, bestDist = candidate, d
		}
	}
	return best
}

// SignedDistance returns the distance from pt to the polygon boundary, negative when pt is
// strictly inside. It is +Inf for an empty polygon.
func (p ConvexPolygon) SignedDistance(pt r2.Point) float64 {
	if len(p.vertices) == 0 {
		return math.Inf(1)
	}
	boundary := Distance(p.ClosestBoundaryPoint(pt), pt)
	if len(p.vertices) >= 3 && p.strictlyInside(pt) {
		return -boundary
	}
	return boundary
}

func (p ConvexPolygon) strictlyInside(pt r2.Point) bool {
	for i, v := range p.vertices {
		next := p.vertices[(i+1)%len(p.vertices)]
		if next.Sub(v).Cross(pt.Sub(v)) <= 0 {
			return false
		}
	}
	return true
}

// Contains reports whether pt lies inside or on the polygon.
func (p ConvexPolygon) Contains(pt r2.Point) bool {
	return p.ContainsWithMargin(pt, defaultContainmentEpsilon)
}

// ContainsWithMargin reports whether pt lies inside the polygon grown by margin. A negative
// margin requires pt to be at least -margin inside.
func (p ConvexPolygon) ContainsWithMargin(pt r2.Point, margin float64) bool {
	return p.SignedDistance(pt) <= margin
}

// ClosestPoint projects pt onto the polygon; points already inside are returned unchanged.
func (p ConvexPolygon) ClosestPoint(pt r2.Point) r2.Point {
	if p.Contains(pt) {
		return pt
	}
	return p.ClosestBoundaryPoint(pt)
}

// HalfPlanes returns the outward half planes whose intersection is the polygon. Degenerate
// polygons are described by the thin box around the segment or point.
func (p ConvexPolygon) HalfPlanes() []HalfPlane {
	switch len(p.vertices) {
	case 0:
		return nil
	case 1:
		v := p.vertices[0]
		return []HalfPlane{
			{r2.Point{X: 1}, v.X},
			{r2.Point{X: -1}, -v.X},
			{r2.Point{Y: 1}, v.Y},
			{r2.Point{Y: -1}, -v.Y},
		}
	case 2:
		a, b := p.vertices[0], p.vertices[1]
		along := b.Sub(a).Normalize()
		perp := along.Ortho()
		return []HalfPlane{
			{along, along.Dot(b)},
			{along.Mul(-1), -along.Dot(a)},
			{perp, perp.Dot(a)},
			{perp.Mul(-1), -perp.Dot(a)},
		}
	}
	planes := make([]HalfPlane, len(p.vertices))
	for i, v := range p.vertices {
		d := p.vertices[(i+1)%len(p.vertices)].Sub(v)
		n := r2.Point{X: d.Y, Y: -d.X}.Normalize()
		planes[i] = HalfPlane{Normal: n, Offset: n.Dot(v)}
	}
	return planes
}

// GrowBox returns the Minkowski sum of the polygon with a box of half extents forward and lateral
// whose forward axis points along yaw.
func (p ConvexPolygon) GrowBox(yaw, forward, lateral float64) ConvexPolygon {
	if forward == 0 && lateral == 0 {
		return p
	}
	fwd := Rotate(r2.Point{X: forward}, yaw)
	lat := Rotate(r2.Point{Y: lateral}, yaw)
	points := make([]r2.Point, 0, 4*len(p.vertices))
	for _, v := range p.vertices {
		points = append(points,
			v.Add(fwd).Add(lat),
			v.Add(fwd).Sub(lat),
			v.Sub(fwd).Add(lat),
			v.Sub(fwd).Sub(lat),
		)
	}
	return NewConvexPolygon(points...)
}

// Translate returns the polygon shifted by d.
func (p ConvexPolygon) Translate(d r2.Point) ConvexPolygon {
	out := make([]r2.Point, len(p.vertices))
	for i, v := range p.vertices {
		out[i] = v.Add(d)
	}
	return ConvexPolygon{vertices: out}
}

// TransformToWorld maps a polygon expressed in pose's frame into the world frame.
func (p ConvexPolygon) TransformToWorld(pose Pose) ConvexPolygon {
	out := make([]r2.Point, len(p.vertices))
	for i, v := range p.vertices {
		out[i] = pose.TransformToWorld(v)
	}
	return NewConvexPolygon(out...)
}

// Union returns the convex hull of both polygons.
func (p ConvexPolygon) Union(other ConvexPolygon) ConvexPolygon {
	return NewConvexPolygon(append(p.Vertices(), other.vertices...)...)
}

// ExtremePoint returns the vertex maximizing dir·v.
func (p ConvexPolygon) ExtremePoint(dir r2.Point) r2.Point {
	best := r2.Point{}
	bestVal := math.Inf(-1)
	for _, v := range p.vertices {
		if val := dir.Dot(v); val > bestVal {
			best, bestVal = v, val
		}
	}
	return best
}
