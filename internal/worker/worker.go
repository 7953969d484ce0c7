// Package worker bootstraps the River job queue and the email delivery job.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"

	"github.com/datacove/datacove/internal/mailer"
)

// EmailArgs is a queued transactional email delivery.
type EmailArgs struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html"`
}

// Kind returns the unique job type identifier for email jobs.
func (EmailArgs) Kind() string { return "email_send" }

type emailWorker struct {
	river.WorkerDefaults[EmailArgs]
	sender mailer.Sender
	log    *slog.Logger
}

func (w *emailWorker) Work(ctx context.Context, job *river.Job[EmailArgs]) error {
	err := w.sender.Send(ctx, mailer.Message{
		To:      job.Args.To,
		Subject: job.Args.Subject,
		Text:    job.Args.Text,
		HTML:    job.Args.HTML,
	})
	if err != nil {
		w.log.Warn("email delivery failed", "to", job.Args.To, "error", err)
		return err
	}
	return nil
}

// Queue is the interface exposed by both the real River client and noopQueue.
type Queue interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Enqueue(ctx context.Context, args EmailArgs) error
}

// Client wraps river.Client and exposes a Start/Stop lifecycle.
type Client struct {
	client *river.Client[pgx.Tx]
	log    *slog.Logger
}

// Start begins processing queued jobs.
func (c *Client) Start(ctx context.Context) error { return c.client.Start(ctx) }

// Stop gracefully shuts down the worker client.
func (c *Client) Stop(ctx context.Context) error { return c.client.Stop(ctx) }

// Enqueue inserts an email job for asynchronous delivery.
func (c *Client) Enqueue(ctx context.Context, args EmailArgs) error {
	if _, err := c.client.Insert(ctx, args, nil); err != nil {
		return fmt.Errorf("enqueue email job: %w", err)
	}
	return nil
}

// noopQueue is used when River is unavailable (e.g. DB_DRIVER=sqlite).
// Enqueue falls back to delivering the message synchronously.
type noopQueue struct {
	sender mailer.Sender
	log    *slog.Logger
}

func (n *noopQueue) Start(_ context.Context) error {
	n.log.Info("worker queue disabled (sqlite driver; River requires postgres), email delivery is synchronous")
	return nil
}
func (n *noopQueue) Stop(_ context.Context) error { return nil }

func (n *noopQueue) Enqueue(ctx context.Context, args EmailArgs) error {
	return n.sender.Send(ctx, mailer.Message{
		To:      args.To,
		Subject: args.Subject,
		Text:    args.Text,
		HTML:    args.HTML,
	})
}

// New creates a queue implementation appropriate for the given driver.
//   - "postgres": returns a fully-functional River client backed by pool.
//   - anything else: returns a no-op queue that sends email inline.
//
// pool may be nil when driver != "postgres".
func New(ctx context.Context, pool *pgxpool.Pool, driver string, concurrency int, sender mailer.Sender, log *slog.Logger) (Queue, error) {
	if driver != "postgres" {
		return &noopQueue{sender: sender, log: log}, nil
	}
	workers := river.NewWorkers()
	river.AddWorker(workers, &emailWorker{sender: sender, log: log})

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: concurrency},
		},
		Workers: workers,
		Logger:  log,
	})
	if err != nil {
		return nil, fmt.Errorf("create river client: %w", err)
	}
	return &Client{client: client, log: log}, nil
}

// MigrateRiver runs River's built-in schema migrations against the given pool.
// Only call this when DB_DRIVER=postgres.
func MigrateRiver(ctx context.Context, db *pgxpool.Pool) error {
	migrator, err := rivermigrate.New(riverpgxv5.New(db), nil)
	if err != nil {
		return fmt.Errorf("create river migrator: %w", err)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		return fmt.Errorf("run river migrations: %w", err)
	}
	return nil
}
