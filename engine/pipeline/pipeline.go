// Package pipeline runs vehicle snapshots received over NATS through
// validation, the rule engine and report history.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/obdpulse/obdpulse/engine/analyzer"
	"github.com/obdpulse/obdpulse/engine/domain"
	"github.com/obdpulse/obdpulse/engine/history"
	"github.com/obdpulse/obdpulse/pkg/fn"
	"github.com/obdpulse/obdpulse/pkg/metrics"
	"github.com/obdpulse/obdpulse/pkg/resilience"
)

const (
	// SnapshotSubject carries incoming snapshots.
	SnapshotSubject = "vehicle.snapshot"
	// ReportSubject receives every completed record.
	ReportSubject = "vehicle.report"
	// DLQSubject receives snapshots that could not be processed.
	DLQSubject = "vehicle.snapshot.dlq"
	// MaxRetries before a snapshot goes to the DLQ.
	MaxRetries = 3
)

// ReportSaver is satisfied by *history.Store.
type ReportSaver interface {
	SaveReport(ctx context.Context, rec history.Record) error
}

// Deps holds the pipeline's collaborators. History may be nil, in which
// case records are produced but not stored.
type Deps struct {
	Analyzer *analyzer.Analyzer
	History  ReportSaver
	Breaker  *resilience.Breaker
	Retry    fn.RetryOpts
	Metrics  *metrics.Set
	Logger   *slog.Logger
}

// Validate rejects snapshots that fail domain validation.
var Validate fn.Stage[domain.VehicleSnapshot, domain.VehicleSnapshot] = func(_ context.Context, snap domain.VehicleSnapshot) fn.Result[domain.VehicleSnapshot] {
	if err := domain.ValidateSnapshot(snap); err != nil {
		return fn.Err[domain.VehicleSnapshot](err)
	}
	return fn.Ok(snap)
}

// NewAnalyze runs the full report and wraps it in a history record.
func NewAnalyze(a *analyzer.Analyzer, m *metrics.Set) fn.Stage[domain.VehicleSnapshot, history.Record] {
	return fn.MapStage(func(snap domain.VehicleSnapshot) history.Record {
		start := time.Now()
		report := a.Analyze(snap)
		if m != nil {
			m.Analysis("pipeline", start)
			for _, p := range report.DamagedParts {
				m.PartsFlagged(string(p.Status), 1)
			}
			m.DTCHits.Add(int64(len(report.DTCs.Known)))
			m.DTCMisses.Add(int64(len(report.DTCs.Unknown)))
		}
		return history.NewRecord(snap, report)
	})
}

// NewRecord stores rec through saver, guarded by breaker and retried with
// opts. Records without a VIN pass through unsaved, as does everything
// when saver is nil.
func NewRecord(saver ReportSaver, breaker *resilience.Breaker, opts fn.RetryOpts, m *metrics.Set) fn.Stage[history.Record, history.Record] {
	if saver == nil {
		return func(_ context.Context, rec history.Record) fn.Result[history.Record] { return fn.Ok(rec) }
	}
	save := fn.Stage[history.Record, history.Record](func(ctx context.Context, rec history.Record) fn.Result[history.Record] {
		if err := saver.SaveReport(ctx, rec); err != nil {
			return fn.Err[history.Record](err)
		}
		return fn.Ok(rec)
	})
	if breaker != nil {
		save = resilience.BreakerStage(breaker, save)
	}
	if opts.Retryable == nil {
		opts.Retryable = func(err error) bool { return !errors.Is(err, resilience.ErrCircuitOpen) }
	}
	if opts.MaxAttempts > 0 {
		save = fn.RetryStage(opts, save)
	}
	return func(ctx context.Context, rec history.Record) fn.Result[history.Record] {
		if rec.VIN == "" {
			return fn.Ok(rec)
		}
		res := save(ctx, rec)
		if res.IsErr() {
			_, err := res.Unwrap()
			return fn.Err[history.Record](fmt.Errorf("record %s: %w", rec.ID, err))
		}
		if m != nil {
			m.ReportsSaved.Inc()
		}
		return res
	}
}

// NewPipeline composes Validate, Analyze and Record, each in its own span.
func NewPipeline(deps Deps) fn.Stage[domain.VehicleSnapshot, history.Record] {
	a := deps.Analyzer
	if a == nil {
		a = analyzer.New()
	}
	validated := fn.TracedStage("pipeline.validate", Validate)
	analyzed := fn.Then(validated, fn.TracedStage("pipeline.analyze", NewAnalyze(a, deps.Metrics)))
	if deps.Logger != nil {
		analyzed = fn.Then(analyzed, fn.TapStage(func(_ context.Context, rec history.Record) {
			deps.Logger.Debug("pipeline: report generated", "vin", rec.VIN, "report_id", rec.ID, "issues", rec.IssueCount, "dtcs", rec.DTCCount)
		}))
	}
	return fn.Then(analyzed, fn.TracedStage("pipeline.record", NewRecord(deps.History, deps.Breaker, deps.Retry, deps.Metrics)))
}
