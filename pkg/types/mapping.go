package types

import "sort"

// Unassigned marks an annotated fragment the linker skipped.
const Unassigned = "N/A"

// Assignment links one fragment to an entity with the similarity that put it
// there (1.0 when the fragment seeded the entity).
type Assignment struct {
	EntityID   string  `json:"entity_id"`
	Confidence float64 `json:"confidence"`
}

// Mapping is keyed by the fragment's index in the linked fragment list.
type Mapping map[int]Assignment

// EntityIDs returns the distinct entity IDs of the mapping in sorted order.
func (m Mapping) EntityIDs() []string {
	seen := make(map[string]bool, len(m))
	ids := make([]string, 0, len(m))
	for _, a := range m {
		if seen[a.EntityID] {
			continue
		}
		seen[a.EntityID] = true
		ids = append(ids, a.EntityID)
	}
	sort.Strings(ids)
	return ids
}

// Indices returns the mapped fragment indices in ascending order.
func (m Mapping) Indices() []int {
	idx := make([]int, 0, len(m))
	for i := range m {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	return idx
}

// AnnotatedFragment is one row of the linker's annotated table: the input
// fragment with its resolved entity (or Unassigned) and score.
type AnnotatedFragment struct {
	Fragment
	EntityID string  `json:"entity_id"`
	Score    float64 `json:"score"`
}
