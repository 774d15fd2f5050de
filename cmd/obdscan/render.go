package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/obdpulse/obdpulse/engine/analyzer"
)

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func render(out io.Writer, o options, r analyzer.Report) error {
	if o.format == "json" {
		switch o.section {
		case "health":
			return writeJSON(out, r.Health)
		case "parts":
			return writeJSON(out, r.DamagedParts)
		case "maintenance":
			return writeJSON(out, r.Maintenance)
		case "resale":
			return writeJSON(out, r.Resale)
		case "dtcs":
			return writeJSON(out, r.DTCs)
		}
		return writeJSON(out, r)
	}

	all := o.section == "all"
	fmt.Fprintf(out, "%d %s %s", r.Vehicle.Year, r.Vehicle.Make, r.Vehicle.Model)
	if r.Vehicle.VIN != "" {
		fmt.Fprintf(out, " (%s)", r.Vehicle.VIN)
	}
	fmt.Fprintf(out, "\n\n")
	if all || o.section == "health" {
		printHealth(out, r.Health)
	}
	if all || o.section == "parts" {
		printParts(out, r.DamagedParts)
	}
	if all || o.section == "maintenance" {
		printMaintenance(out, r.Maintenance)
	}
	if all || o.section == "resale" {
		printResale(out, r.Resale)
	}
	if all || o.section == "dtcs" {
		printDTCs(out, r.DTCs)
	}
	return nil
}

func printHealth(out io.Writer, h analyzer.Health) {
	fmt.Fprintf(out, "HEALTH %d/100  %s\n", h.Score, h.Label)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, s := range h.Systems {
		fmt.Fprintf(tw, "  %s\t%d\t%s\n", s.System, s.Score, s.Status)
	}
	tw.Flush()
	fmt.Fprintln(out)
}

func printParts(out io.Writer, parts []analyzer.DamagedPart) {
	fmt.Fprintf(out, "DAMAGED PARTS (%d)\n", len(parts))
	if len(parts) == 0 {
		fmt.Fprintf(out, "  none\n\n")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "  COMPONENT\tSTATUS\tISSUE\tVALUE\tNORMAL\tCOST\tURGENCY\n")
	for _, p := range parts {
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\t$%.0f\t%s\n",
			p.Component, p.Status, p.Issue, p.CurrentValue, p.NormalRange, p.RepairCost, p.Urgency)
	}
	tw.Flush()
	fmt.Fprintln(out)
}

func printMaintenance(out io.Writer, items []analyzer.MaintenanceItem) {
	fmt.Fprintf(out, "MAINTENANCE\n")
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "  COMPONENT\tDUE IN\tREMAINING\tCONDITION\tPRIORITY\tCOST\n")
	for _, m := range items {
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\t$%.0f\n",
			m.Component, m.TimeToService, m.Remaining, m.Condition, m.Priority, m.EstimatedCost)
	}
	tw.Flush()
	fmt.Fprintln(out)
}

func printResale(out io.Writer, v analyzer.ResaleValuation) {
	fmt.Fprintf(out, "RESALE\n")
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "  base\t$%.0f\t\n", v.BaseValue)
	fmt.Fprintf(tw, "  market\t$%.0f\t\n", v.MarketValue)
	fmt.Fprintf(tw, "  trade-in\t$%.0f\t\n", v.TradeInValue)
	fmt.Fprintf(tw, "  private party\t$%.0f\t\n", v.PrivatePartyValue)
	fmt.Fprintf(tw, "  depreciation\t$%.0f\t\n", v.Depreciation.Total)
	tw.Flush()
	fmt.Fprintln(out)
}

func printDTCs(out io.Writer, d analyzer.DTCSummary) {
	fmt.Fprintf(out, "TROUBLE CODES (%d)\n", d.Total)
	for _, info := range d.Known {
		fmt.Fprintf(out, "  %s  %s [%s, %s]\n", info.Code, info.Description, info.Severity, info.Complexity)
	}
	for _, code := range d.Unknown {
		fmt.Fprintf(out, "  %s  not in catalog\n", code)
	}
	if d.EstimatedCost > 0 {
		fmt.Fprintf(out, "  estimated repairs $%.0f\n", d.EstimatedCost)
	}
}
