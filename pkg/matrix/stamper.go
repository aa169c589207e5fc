package matrix

// Stamper receives nodal contributions, 1-based with 0 as the reference node.
type Stamper interface {
	AddElement(i, j int, value float64)
	AddRHS(i int, value float64)
	AddConductance(i, j int, g float64)
}

var _ Stamper = (*NodalMatrix)(nil)
