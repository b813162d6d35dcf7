package common

// ParabolicVertex fits a parabola through (x-1, s0), (x, s1), (x+1, s2)
// and returns the abscissa of its vertex. A flat or degenerate fit returns
// x unchanged.
func ParabolicVertex(x int, s0, s1, s2 float64) float64 {
	denom := 2 * (2*s1 - s2 - s0)
	if denom == 0 {
		return float64(x)
	}
	return float64(x) + (s2-s0)/denom
}

// RefinePeak refines the integer index i of data using its neighbours.
// Indices on the edge of data have no neighbour on one side, so the fit
// degenerates and i is returned as is.
func RefinePeak(data []float64, i int) float64 {
	if i <= 0 || i >= len(data)-1 {
		return float64(i)
	}
	return ParabolicVertex(i, data[i-1], data[i], data[i+1])
}
