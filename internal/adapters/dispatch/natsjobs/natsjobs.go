// Package natsjobs hands deep evaluation jobs to a JetStream work queue so
// they survive process restarts, and runs the consumer side.
package natsjobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/randomtoy/tarot-reading/internal/safety"
)

type Config struct {
	Stream  string
	Subject string
	Durable string
	MaxAge  time.Duration
	// Timeout bounds one job run on the worker.
	Timeout time.Duration
}

// EnsureStream creates the work queue stream, or adds the subject to an
// existing one.
func EnsureStream(js nats.JetStreamContext, cfg Config, logger *slog.Logger) error {
	info, err := js.StreamInfo(cfg.Stream)
	if errors.Is(err, nats.ErrStreamNotFound) {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:      cfg.Stream,
			Subjects:  []string{cfg.Subject},
			MaxAge:    cfg.MaxAge,
			Storage:   nats.FileStorage,
			Retention: nats.WorkQueuePolicy,
		})
		if err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
		logger.Info("created NATS stream", "name", cfg.Stream)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get stream info: %w", err)
	}

	for _, s := range info.Config.Subjects {
		if s == cfg.Subject {
			return nil
		}
	}
	next := info.Config
	next.Subjects = append(next.Subjects, cfg.Subject)
	if _, err := js.UpdateStream(&next); err != nil {
		return fmt.Errorf("update stream with subject: %w", err)
	}
	logger.Info("updated NATS stream with new subject", "name", cfg.Stream, "subject", cfg.Subject)
	return nil
}

type asyncPublisher interface {
	PublishAsync(subj string, data []byte, opts ...nats.PubOpt) (nats.PubAckFuture, error)
}

// Publisher implements safety.Scheduler on JetStream.
type Publisher struct {
	js      asyncPublisher
	subject string
	logger  *slog.Logger
}

func NewPublisher(js nats.JetStreamContext, subject string, logger *slog.Logger) *Publisher {
	return &Publisher{js: js, subject: subject, logger: logger}
}

// Schedule publishes without waiting for the ack. The request id doubles as
// the JetStream message id, so retried publishes are deduplicated.
func (p *Publisher) Schedule(job safety.Job) {
	data, err := json.Marshal(job)
	if err != nil {
		p.logger.Error("encode deep evaluation job", "request_id", job.Record.RequestID, "error", err)
		return
	}
	if _, err := p.js.PublishAsync(p.subject, data, nats.MsgId(job.Record.RequestID)); err != nil {
		p.logger.Warn("publish deep evaluation job failed", "request_id", job.Record.RequestID, "error", err)
	}
}

// Worker pulls jobs and runs them.
type Worker struct {
	sub     *nats.Subscription
	run     safety.Runner
	timeout time.Duration
	logger  *slog.Logger
}

func NewWorker(js nats.JetStreamContext, cfg Config, run safety.Runner, logger *slog.Logger) (*Worker, error) {
	sub, err := js.PullSubscribe(cfg.Subject, cfg.Durable, nats.ManualAck())
	if err != nil {
		return nil, fmt.Errorf("create pull consumer: %w", err)
	}
	return &Worker{sub: sub, run: run, timeout: cfg.Timeout, logger: logger}, nil
}

// Run fetches until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("deep evaluation worker starting")
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("deep evaluation worker shutting down")
			return
		default:
		}

		msgs, err := w.sub.Fetch(1, nats.MaxWait(time.Second))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			w.logger.Error("fetch deep evaluation jobs failed", "error", err)
			time.Sleep(time.Second)
			continue
		}
		for _, msg := range msgs {
			if err := handle(ctx, msg.Data, w.run, w.timeout); err != nil {
				w.logger.Error("dropping malformed deep evaluation job", "error", err)
				_ = msg.Term()
				continue
			}
			_ = msg.Ack()
		}
	}
}

// handle decodes and runs one job. Only decoding errors are returned; the
// runner reports its own failures.
func handle(ctx context.Context, data []byte, run safety.Runner, timeout time.Duration) error {
	var job safety.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return fmt.Errorf("decode job: %w", err)
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	run(ctx, job)
	return nil
}
