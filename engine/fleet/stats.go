package fleet

import (
	"slices"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/obdpulse/obdpulse/engine/analyzer"
)

// NeedsAttentionBelow is the health score under which a vehicle is counted
// as needing attention.
const NeedsAttentionBelow = 60

// Distribution summarizes one metric across the fleet. StdDev is the
// sample standard deviation and is 0 for fewer than two vehicles.
type Distribution struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Median float64 `json:"median"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// ComponentCount is how many vehicles have a component flagged.
type ComponentCount struct {
	Component string `json:"component"`
	Vehicles  int    `json:"vehicles"`
}

// Stats aggregates reports over a fleet.
type Stats struct {
	Vehicles       int              `json:"vehicles"`
	HealthScore    Distribution     `json:"health_score"`
	MarketValue    Distribution     `json:"market_value"`
	RepairCost     float64          `json:"repair_cost"`
	NeedsAttention []string         `json:"needs_attention"`
	Components     []ComponentCount `json:"components"`
}

// Summarize analyzes every vehicle in f with a.
func Summarize(f *Fleet, a *analyzer.Analyzer) Stats {
	vehicles := f.List()
	st := Stats{Vehicles: len(vehicles), NeedsAttention: []string{}, Components: []ComponentCount{}}
	if len(vehicles) == 0 {
		return st
	}

	scores := make([]float64, 0, len(vehicles))
	values := make([]float64, 0, len(vehicles))
	flagged := map[string]int{}
	for _, snap := range vehicles {
		r := a.Analyze(snap)
		scores = append(scores, float64(r.Health.Score))
		values = append(values, r.Resale.MarketValue)
		if r.Health.Score < NeedsAttentionBelow {
			st.NeedsAttention = append(st.NeedsAttention, snap.Vehicle.VIN)
		}
		seen := map[string]bool{}
		for _, p := range r.DamagedParts {
			st.RepairCost += p.RepairCost
			if !seen[p.Component] {
				seen[p.Component] = true
				flagged[p.Component]++
			}
		}
	}

	st.HealthScore = describe(scores)
	st.MarketValue = describe(values)
	for c, n := range flagged {
		st.Components = append(st.Components, ComponentCount{Component: c, Vehicles: n})
	}
	sort.Slice(st.Components, func(i, j int) bool {
		if st.Components[i].Vehicles != st.Components[j].Vehicles {
			return st.Components[i].Vehicles > st.Components[j].Vehicles
		}
		return st.Components[i].Component < st.Components[j].Component
	})
	return st
}

func describe(x []float64) Distribution {
	if len(x) == 0 {
		return Distribution{}
	}
	sorted := slices.Clone(x)
	slices.Sort(sorted)
	d := Distribution{
		Median: median(sorted),
		Min:    floats.Min(sorted),
		Max:    floats.Max(sorted),
	}
	if len(x) < 2 {
		d.Mean = x[0]
		return d
	}
	d.Mean, d.StdDev = stat.MeanStdDev(x, nil)
	return d
}

// median of sorted data, averaging the two middle values for even counts.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
