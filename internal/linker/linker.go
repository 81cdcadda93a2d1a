// Package linker groups fragments into entities by fuzzy string similarity.
//
// Clustering is greedy and single pass: each fragment joins the first
// existing cluster (in creation order) holding a member at least threshold
// similar to it, or seeds a new cluster. The result depends only on the input
// order and the threshold.
package linker

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"

	"github.com/mesh-intelligence/piilink/pkg/types"
)

// EntityIDFormat renders the per-pass entity counter.
const EntityIDFormat = "E-%06d"

type cluster struct {
	id      string
	members []string
}

// Cluster links fragments into entities. The mapping is keyed by the
// fragment's index in fragments; fragments whose value normalizes to the
// empty string are left out of it and appear in the table as Unassigned.
// The annotated table has one row per input fragment, in input order.
func Cluster(fragments []types.Fragment, threshold float64) (types.Mapping, []types.AnnotatedFragment) {
	mapping := make(types.Mapping, len(fragments))
	table := make([]types.AnnotatedFragment, len(fragments))

	var clusters []*cluster
	fold := cases.Fold()

	for i, f := range fragments {
		table[i] = types.AnnotatedFragment{Fragment: f, EntityID: types.Unassigned}

		val := normalize(fold, f.Value)
		if val == "" {
			continue
		}

		var (
			target *cluster
			score  float64
		)
		for _, c := range clusters {
			best := 0.0
			for _, m := range c.members {
				if s := Similarity(val, m); s > best {
					best = s
				}
			}
			if best >= threshold {
				target, score = c, round2(best)
				break
			}
		}

		if target == nil {
			target = &cluster{id: fmt.Sprintf(EntityIDFormat, len(clusters)+1)}
			clusters = append(clusters, target)
			score = 1.0
		}
		target.members = append(target.members, val)

		mapping[i] = types.Assignment{EntityID: target.id, Confidence: score}
		table[i].EntityID = target.id
		table[i].Score = score
		table[i].Confidence = score
	}
	return mapping, table
}

// Normalize case-folds and trims a fragment value the way Cluster compares
// it.
func Normalize(s string) string {
	return normalize(cases.Fold(), s)
}

func normalize(fold cases.Caser, s string) string {
	return strings.TrimSpace(fold.String(s))
}

// Similarity returns 1 - editDistance(a, b) / max(len(a), len(b)) measured
// in runes. Two empty strings are identical.
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	n := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if n == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(n)
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
