// Package analyzer is the vehicle health rule engine. It derives damaged
// parts, a maintenance schedule and a resale valuation from a single
// domain.VehicleSnapshot. Every operation is a pure function of the snapshot
// and the injected clock.
package analyzer

import "time"

// AnnualDistance is the assumed distance driven per year.
const AnnualDistance = 12000

// Analyzer evaluates snapshots. The zero value is not usable; call New.
type Analyzer struct {
	now func() time.Time
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithClock overrides the time source used for vehicle age and oil service
// intervals.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) {
		if now != nil {
			a.now = now
		}
	}
}

// At pins the clock to t.
func At(t time.Time) Option {
	return WithClock(func() time.Time { return t })
}

// New creates an Analyzer. Without options it reads time.Now.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{now: time.Now}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *Analyzer) currentYear() int { return a.now().Year() }
