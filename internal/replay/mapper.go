package replay

// Point is a position on a drawing surface, in surface units with the origin
// at the top-left corner.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// MapToDrawing maps a sample's world coordinates into drawing-surface
// coordinates. X interpolates linearly from [MinX, MaxX] to
// [padding, width-padding]; Y is inverted so MaxY lands at the top of the
// surface. The same function backs both the live chart path and the export
// renderer so the two stay visually identical.
func MapToDrawing(x, y float64, b Bounds, width, height, padding float64) Point {
	return Point{
		X: padding + normalize(x, b.MinX, b.MaxX)*(width-2*padding),
		Y: padding + (1-normalize(y, b.MinY, b.MaxY))*(height-2*padding),
	}
}

// normalize maps v from [min, max] to [0, 1], clamping values outside the
// range. A zero-width range centers the value rather than dividing by zero.
func normalize(v, min, max float64) float64 {
	if max == min {
		return 0.5
	}
	f := (v - min) / (max - min)
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
