package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/obdpulse/obdpulse/engine/domain"
	"github.com/obdpulse/obdpulse/engine/history"
	"github.com/obdpulse/obdpulse/pkg/fn"
	"github.com/obdpulse/obdpulse/pkg/metrics"
	"github.com/obdpulse/obdpulse/pkg/natsutil"
)

// Reply answers request/reply callers on SnapshotSubject.
type Reply struct {
	Record *history.Record `json:"record,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Message outcomes, as counted by metrics.Set.PipelineMessage.
const (
	OutcomeOK        = "ok"
	OutcomeRetry     = "retry"
	OutcomeDLQ       = "dlq"
	OutcomeMalformed = "malformed"
)

// Consumer handles snapshot messages.
type Consumer struct {
	pipe    fn.Stage[domain.VehicleSnapshot, history.Record]
	pub     natsutil.Publisher
	metrics *metrics.Set
	logger  *slog.Logger
}

// NewConsumer creates a Consumer that runs pipe and publishes through pub.
func NewConsumer(pipe fn.Stage[domain.VehicleSnapshot, history.Record], pub natsutil.Publisher, m *metrics.Set, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{pipe: pipe, pub: pub, metrics: m, logger: logger}
}

// StartConsumer subscribes the pipeline built from deps to SnapshotSubject.
func StartConsumer(nc *nats.Conn, deps Deps) (*nats.Subscription, error) {
	c := NewConsumer(NewPipeline(deps), nc, deps.Metrics, deps.Logger)
	return natsutil.Subscribe(nc, SnapshotSubject, c.Handle, c.Malformed)
}

// Handle processes one decoded snapshot. Validation failures go straight
// to the DLQ; other failures are redelivered until MaxRetries.
func (c *Consumer) Handle(ctx context.Context, msg *nats.Msg, snap domain.VehicleSnapshot) {
	rec, err := c.pipe(ctx, snap).Unwrap()
	if err == nil {
		if err := natsutil.Publish(ctx, c.pub, ReportSubject, rec); err != nil {
			c.logger.Error("pipeline: publish report", "vin", rec.VIN, "err", err)
		}
		c.reply(ctx, msg, Reply{Record: &rec})
		c.count(OutcomeOK)
		c.logger.Info("pipeline: snapshot analyzed", "vin", rec.VIN, "report_id", rec.ID, "health_score", rec.HealthScore)
		return
	}

	var verr *domain.ValidationError
	retries := natsutil.RetryCount(msg) + 1
	if errors.As(err, &verr) || retries >= MaxRetries {
		c.deadLetter(ctx, msg, retries, err)
		return
	}

	next := natsutil.Redeliver(msg, SnapshotSubject, retries)
	next.Reply = msg.Reply
	if perr := c.pub.PublishMsg(next); perr != nil {
		c.logger.Error("pipeline: redeliver", "err", perr)
		c.deadLetter(ctx, msg, retries, err)
		return
	}
	c.count(OutcomeRetry)
	c.logger.Warn("pipeline: snapshot failed, retrying", "vin", snap.Vehicle.VIN, "retry", retries, "err", err)
}

func (c *Consumer) deadLetter(ctx context.Context, msg *nats.Msg, retries int, cause error) {
	if err := c.pub.PublishMsg(natsutil.Redeliver(msg, DLQSubject, retries)); err != nil {
		c.logger.Error("pipeline: publish dlq", "err", err)
	}
	c.reply(ctx, msg, Reply{Error: cause.Error()})
	c.count(OutcomeDLQ)
	c.logger.Error("pipeline: snapshot sent to dlq", "retries", retries, "err", cause)
}

// Malformed logs and drops a message that is not a snapshot.
func (c *Consumer) Malformed(msg *nats.Msg, err error) {
	c.count(OutcomeMalformed)
	c.logger.Error("pipeline: malformed snapshot dropped", "subject", msg.Subject, "err", err)
	if msg.Reply != "" {
		c.reply(context.Background(), msg, Reply{Error: err.Error()})
	}
}

func (c *Consumer) reply(ctx context.Context, msg *nats.Msg, r Reply) {
	if msg.Reply == "" {
		return
	}
	if err := natsutil.Publish(ctx, c.pub, msg.Reply, r); err != nil {
		c.logger.Error("pipeline: reply", "err", err)
	}
}

func (c *Consumer) count(outcome string) {
	if c.metrics != nil {
		c.metrics.PipelineMessage(outcome)
	}
}
