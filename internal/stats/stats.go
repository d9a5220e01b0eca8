// Package stats derives dashboard statistics from a case collection.
// Every function here is a pure read and safe to call concurrently.
package stats

import (
	"fmt"
	"math"
	"sort"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// PhaseCount is the number of buckets in a risk phase series.
const PhaseCount = 8

// Palette is cycled over programs in first-seen order.
var Palette = []string{"#003366", "#FF9933", "#138808", "#000080", "#555555"}

// PhasePoint is one bucket of the risk phase series.
type PhasePoint struct {
	Name string `json:"name"`
	Risk int    `json:"risk"`
}

// ProgramShare is the number of cases in one program.
type ProgramShare struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
	Color string `json:"color"`
}

// StatusCount is the number of cases in one status.
type StatusCount struct {
	Status domain.Status `json:"status"`
	Count  int           `json:"count"`
}

// FallbackPhases is returned when there are too few cases to bucket. It is a
// placeholder, not a trend.
func FallbackPhases() []PhasePoint {
	return []PhasePoint{{Name: "Jan", Risk: 40}, {Name: "Feb", Risk: 30}}
}

// RiskPhases sorts cases by risk score and splits them into PhaseCount
// contiguous buckets of ceil(n/PhaseCount) cases, reporting each bucket's
// rounded mean score. Empty trailing buckets report 0.
func RiskPhases(cases []domain.Case) []PhasePoint {
	n := len(cases)
	if n < PhaseCount {
		return FallbackPhases()
	}

	scores := make([]int, n)
	for i, c := range cases {
		scores[i] = c.RiskScore
	}
	sort.Ints(scores)

	chunk := (n + PhaseCount - 1) / PhaseCount
	points := make([]PhasePoint, PhaseCount)
	for i := range points {
		lo := min(i*chunk, n)
		hi := min(lo+chunk, n)

		risk := 0
		if hi > lo {
			sum := 0
			for _, s := range scores[lo:hi] {
				sum += s
			}
			risk = roundHalfUp(float64(sum) / float64(hi-lo))
		}
		points[i] = PhasePoint{Name: fmt.Sprintf("Phase %d", i+1), Risk: risk}
	}
	return points
}

// ProgramDistribution counts cases per program in first-seen order and
// assigns palette colors by that order.
func ProgramDistribution(cases []domain.Case) []ProgramShare {
	pos := make(map[string]int)
	var shares []ProgramShare
	for _, c := range cases {
		i, ok := pos[c.Program]
		if !ok {
			i = len(shares)
			pos[c.Program] = i
			shares = append(shares, ProgramShare{
				Name:  c.Program,
				Color: Palette[i%len(Palette)],
			})
		}
		shares[i].Value++
	}
	if shares == nil {
		return []ProgramShare{}
	}
	return shares
}

// StatusBreakdown counts cases per status, in a fixed status order. Statuses
// with no cases are included with a zero count.
func StatusBreakdown(cases []domain.Case) []StatusCount {
	order := []domain.Status{
		domain.StatusPending,
		domain.StatusConfirmedFraud,
		domain.StatusLegitimate,
		domain.StatusEscalated,
	}
	counts := make(map[domain.Status]int, len(order))
	for _, c := range cases {
		counts[c.Status]++
	}
	out := make([]StatusCount, len(order))
	for i, s := range order {
		out[i] = StatusCount{Status: s, Count: counts[s]}
	}
	return out
}

func roundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}
