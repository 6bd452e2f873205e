// Package enrich derives keywords, tags and context for new memories,
// retrying transient oracle failures with exponential backoff.
package enrich

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"

	"github.com/rcliao/assoc-memory/internal/model"
	"github.com/rcliao/assoc-memory/internal/oracle"
	"github.com/rcliao/assoc-memory/internal/ratelimit"
)

const (
	DefaultRetries         = 3
	DefaultInitialInterval = time.Second
)

// Pipeline enriches memories through an oracle. Retries are in memory only;
// a memory that exhausts them keeps empty metadata.
type Pipeline struct {
	enricher oracle.Enricher
	limiter  *ratelimit.Limiter
	retries  uint64
	initial  time.Duration
	logger   *log.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLimiter gates oracle calls through a shared limiter.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(p *Pipeline) { p.limiter = l }
}

// WithBackoff sets the retry count and first retry interval.
func WithBackoff(retries int, initial time.Duration) Option {
	return func(p *Pipeline) {
		if retries >= 0 {
			p.retries = uint64(retries)
		}
		if initial > 0 {
			p.initial = initial
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New creates a Pipeline. A nil enricher makes Enrich a no-op.
func New(e oracle.Enricher, opts ...Option) *Pipeline {
	p := &Pipeline{
		enricher: e,
		retries:  DefaultRetries,
		initial:  DefaultInitialInterval,
		logger:   log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Enabled reports whether an enrichment oracle is configured.
func (p *Pipeline) Enabled() bool {
	return p.enricher != nil
}

// Enrich fills m's keywords, tags and context. On final failure m is left
// unchanged and the last error is returned.
func (p *Pipeline) Enrich(ctx context.Context, m *model.Memory) error {
	if p.enricher == nil {
		return nil
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.initial
	b := backoff.WithContext(backoff.WithMaxRetries(eb, p.retries), ctx)

	var result oracle.Enrichment
	attempt := 0
	op := func() error {
		attempt++
		if p.limiter != nil {
			if err := p.limiter.Acquire(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}
		e, err := p.enricher.Enrich(ctx, m)
		if err != nil {
			return err
		}
		result = e
		return nil
	}
	notify := func(err error, wait time.Duration) {
		p.logger.Debug("enrichment retry", "memory", m.ID, "attempt", attempt, "wait", wait, "err", err)
	}

	if err := backoff.RetryNotify(op, b, notify); err != nil {
		p.logger.Warn("enrichment failed", "memory", m.ID, "attempts", attempt, "err", err)
		return fmt.Errorf("enrich %s: %w", m.ID, err)
	}

	m.Keywords = result.Keywords
	m.Tags = result.Tags
	m.Context = result.Context
	return nil
}
