package linker

import (
	"strings"

	"github.com/mesh-intelligence/piilink/pkg/types"
)

// ClusterSummary describes one entity of a linking pass.
type ClusterSummary struct {
	EntityID      string  `json:"entity_id"`
	FragmentCount int     `json:"fragment_count"`
	Names         string  `json:"names"`
	Emails        string  `json:"emails"`
	AvgConfidence float64 `json:"avg_confidence"`
}

const summaryValues = 3

// Summarize returns one row per entity in mapping, sorted by entity ID.
// Names and Emails list up to three distinct PERSON and EMAIL_ADDRESS values,
// or Unassigned when the entity has none.
func Summarize(mapping types.Mapping, table []types.AnnotatedFragment) []ClusterSummary {
	ids := mapping.EntityIDs()
	byID := make(map[string][]types.AnnotatedFragment, len(ids))
	for _, row := range table {
		if row.EntityID == types.Unassigned {
			continue
		}
		byID[row.EntityID] = append(byID[row.EntityID], row)
	}

	out := make([]ClusterSummary, 0, len(ids))
	for _, id := range ids {
		rows := byID[id]
		if len(rows) == 0 {
			continue
		}
		sum := 0.0
		for _, r := range rows {
			sum += r.Score
		}
		out = append(out, ClusterSummary{
			EntityID:      id,
			FragmentCount: len(rows),
			Names:         distinctValues(rows, types.TypePerson),
			Emails:        distinctValues(rows, types.TypeEmail),
			AvgConfidence: round2(sum / float64(len(rows))),
		})
	}
	return out
}

func distinctValues(rows []types.AnnotatedFragment, fragType string) string {
	var vals []string
	seen := make(map[string]bool)
	for _, r := range rows {
		if r.Type != fragType || seen[r.Value] {
			continue
		}
		seen[r.Value] = true
		vals = append(vals, r.Value)
		if len(vals) == summaryValues {
			break
		}
	}
	if len(vals) == 0 {
		return types.Unassigned
	}
	return strings.Join(vals, ", ")
}
