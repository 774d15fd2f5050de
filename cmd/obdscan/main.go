// Command obdscan analyzes a vehicle snapshot from a file or the fixture
// fleet and prints the report.
//
//	obdscan snapshot.json
//	obdscan -fleet fleet.yaml -vin 4T1B11HK5LU123456 -section parts
//	obdscan -vehicle "2019 chevy silverado" -mileage 60000
//	obdscan -nats nats://localhost:4222 snapshot.yaml
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"gopkg.in/yaml.v3"

	"github.com/obdpulse/obdpulse/engine/analyzer"
	"github.com/obdpulse/obdpulse/engine/domain"
	"github.com/obdpulse/obdpulse/engine/fleet"
	"github.com/obdpulse/obdpulse/engine/pipeline"
	"github.com/obdpulse/obdpulse/pkg/natsutil"
	"github.com/obdpulse/obdpulse/pkg/vehiclenlp"
)

var sections = []string{"all", "health", "parts", "maintenance", "resale", "dtcs"}

type options struct {
	fleetFile string
	vin       string
	section   string
	format    string
	now       string
	natsURL   string
	vehicle   string
	mileage   float64
	timeout   time.Duration
	args      []string
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		logger.Error("obdscan failed", "err", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("obdscan", flag.ContinueOnError)
	fs.StringVar(&o.fleetFile, "fleet", os.Getenv("FLEET_FILE"), "fleet YAML file (used with -vin)")
	fs.StringVar(&o.vin, "vin", "", "analyze this VIN from the fleet")
	fs.StringVar(&o.section, "section", "all", "output section: "+strings.Join(sections, "|"))
	fs.StringVar(&o.format, "format", "text", "output format: text|json")
	fs.StringVar(&o.now, "now", "", "pin the analysis clock (RFC 3339 or YYYY-MM-DD)")
	fs.StringVar(&o.natsURL, "nats", "", "send the snapshot to the analyzer worker at this NATS URL")
	fs.StringVar(&o.vehicle, "vehicle", "", `quote resale for a free-text vehicle, e.g. "2019 chevy silverado"`)
	fs.Float64Var(&o.mileage, "mileage", 0, "odometer reading for -vehicle")
	fs.DurationVar(&o.timeout, "timeout", 10*time.Second, "request timeout for -nats")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	o.args = fs.Args()

	if !contains(sections, o.section) {
		return o, fmt.Errorf("unknown section %q", o.section)
	}
	if o.format != "text" && o.format != "json" {
		return o, fmt.Errorf("unknown format %q", o.format)
	}
	sources := 0
	if o.vin != "" {
		sources++
	}
	if o.vehicle != "" {
		sources++
	}
	if len(o.args) > 0 {
		sources++
	}
	if sources != 1 {
		return o, errors.New("give exactly one of: a snapshot file, -vin, -vehicle")
	}
	if o.vin != "" && o.fleetFile == "" {
		return o, errors.New("-vin requires -fleet or FLEET_FILE")
	}
	return o, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func parseNow(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid -now %q", s)
	}
	return t, nil
}

func run(args []string, out io.Writer) error {
	o, err := parseFlags(args)
	if err != nil {
		return err
	}

	var opts []analyzer.Option
	if o.now != "" {
		t, err := parseNow(o.now)
		if err != nil {
			return err
		}
		opts = append(opts, analyzer.At(t))
	}
	a := analyzer.New(opts...)

	if o.vehicle != "" {
		return quote(a, o, out)
	}

	snap, err := loadSnapshot(o)
	if err != nil {
		return err
	}
	if err := domain.ValidateSnapshot(snap); err != nil {
		return err
	}

	var report analyzer.Report
	if o.natsURL != "" {
		report, err = remoteReport(o, snap)
		if err != nil {
			return err
		}
	} else {
		report = a.Analyze(snap)
	}
	return render(out, o, report)
}

func loadSnapshot(o options) (domain.VehicleSnapshot, error) {
	if o.vin != "" {
		f, err := fleet.Load(o.fleetFile)
		if err != nil {
			return domain.VehicleSnapshot{}, err
		}
		snap, ok := f.Get(o.vin)
		if !ok {
			return domain.VehicleSnapshot{}, fmt.Errorf("vin %s not in %s", o.vin, o.fleetFile)
		}
		return snap, nil
	}
	return readSnapshotFile(o.args[0])
}

// readSnapshotFile decodes YAML for .yaml/.yml files and JSON otherwise.
func readSnapshotFile(path string) (domain.VehicleSnapshot, error) {
	var snap domain.VehicleSnapshot
	data, err := os.ReadFile(path)
	if err != nil {
		return snap, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &snap)
	default:
		err = json.Unmarshal(data, &snap)
	}
	if err != nil {
		return snap, fmt.Errorf("decode %s: %w", path, err)
	}
	return snap, nil
}

func remoteReport(o options, snap domain.VehicleSnapshot) (analyzer.Report, error) {
	nc, err := nats.Connect(o.natsURL, nats.Name("obdscan"))
	if err != nil {
		return analyzer.Report{}, fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()
	reply, err := natsutil.Request[domain.VehicleSnapshot, pipeline.Reply](ctx, nc, pipeline.SnapshotSubject, snap)
	if err != nil {
		return analyzer.Report{}, err
	}
	if reply.Error != "" {
		return analyzer.Report{}, fmt.Errorf("worker: %s", reply.Error)
	}
	if reply.Record == nil {
		return analyzer.Report{}, errors.New("worker: empty reply")
	}
	return reply.Record.Report, nil
}

func quote(a *analyzer.Analyzer, o options, out io.Writer) error {
	v, ok := vehiclenlp.ParseVehicle(o.vehicle)
	if !ok {
		return fmt.Errorf("could not read year, make and model from %q", o.vehicle)
	}
	if err := domain.ValidateKnownVehicle(v); err != nil {
		return err
	}
	snap := domain.VehicleSnapshot{
		Vehicle: v,
		Sensors: domain.Sensors{
			EngineTemp:     90,
			CoolantLevel:   90,
			BatteryVoltage: 12.6,
			EngineLoad:     40,
			IntakeTemp:     25,
			Mileage:        o.mileage,
		},
	}
	val := a.EstimateResaleValue(snap)
	if o.format == "json" {
		return writeJSON(out, map[string]any{"vehicle": v, "valuation": val})
	}
	fmt.Fprintf(out, "%d %s %s, %.0f miles\n\n", v.Year, v.Make, v.Model, o.mileage)
	printResale(out, val)
	return nil
}
