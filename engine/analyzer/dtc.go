package analyzer

import "github.com/obdpulse/obdpulse/engine/domain"

// DTCSummary aggregates the trouble codes of a snapshot.
type DTCSummary struct {
	Total         int                     `json:"total"`
	BySeverity    map[domain.Severity]int `json:"by_severity"`
	Known         []DTCInfo               `json:"known"`
	Unknown       []string                `json:"unknown"`
	EstimatedCost float64                 `json:"estimated_cost"`
}

// SummarizeDTCs resolves codes against the catalog, preserving list order
// and duplicates.
func SummarizeDTCs(codes []string) DTCSummary {
	sum := DTCSummary{
		Total: len(codes),
		BySeverity: map[domain.Severity]int{
			domain.SeverityHigh:   0,
			domain.SeverityMedium: 0,
			domain.SeverityLow:    0,
		},
		Known:   []DTCInfo{},
		Unknown: []string{},
	}
	for _, code := range codes {
		info, ok := LookupDTC(code)
		if !ok {
			sum.Unknown = append(sum.Unknown, code)
			continue
		}
		sum.Known = append(sum.Known, info)
		sum.BySeverity[info.Severity]++
		sum.EstimatedCost += info.EstimatedCost
	}
	return sum
}
