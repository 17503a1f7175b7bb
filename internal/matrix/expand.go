package matrix

// Expand produces one ExecutionUnit per (project, version) pair.
//
// The product is per-project only: a project's version set is expanded
// against that project, never against other projects' versions. Order is
// deterministic: table order, then declared version order. Determinism
// matters because unit keys index into the store and golden traces.
//
// The ProjectSpec is copied into each unit so later mutation of the source
// slice cannot leak into scheduled units.
func Expand(specs []ProjectSpec) []ExecutionUnit {
	var units []ExecutionUnit
	for _, s := range specs {
		for _, v := range s.Versions {
			units = append(units, ExecutionUnit{
				Key:     UnitKey(s.Name, v),
				Project: s,
				Version: v,
			})
		}
	}
	return units
}
