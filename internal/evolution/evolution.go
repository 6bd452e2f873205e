// Package evolution lets newer related memories refine an older memory's
// metadata, keeping a bounded history so every change can be rolled back.
//
// Evolve and revert are symmetric: both push the current metadata onto the
// history before overwriting it, so a revert can itself be reverted.
package evolution

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/rcliao/assoc-memory/internal/model"
	"github.com/rcliao/assoc-memory/internal/oracle"
	"github.com/rcliao/assoc-memory/internal/ratelimit"
)

// ErrInvalidVersionIndex is returned by Revert when the memory has no
// history or the index is out of range.
var ErrInvalidVersionIndex = errors.New("invalid version index")

// Engine decides and applies metadata evolution.
type Engine struct {
	judge   oracle.EvolutionJudge
	limiter *ratelimit.Limiter
	enabled bool
	logger  *log.Logger
	now     func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLimiter gates oracle calls through a shared limiter.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(e *Engine) { e.limiter = l }
}

// WithEnabled toggles evolution checks. Enabled by default.
func WithEnabled(on bool) Option {
	return func(e *Engine) { e.enabled = on }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an Engine. A nil judge makes every check negative.
func New(judge oracle.EvolutionJudge, opts ...Option) *Engine {
	e := &Engine{
		judge:   judge,
		enabled: true,
		logger:  log.New(io.Discard),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CheckEvolution asks the oracle whether target should evolve given newMem.
// It never fails: errors become a negative decision whose reason starts
// with "Error".
func (e *Engine) CheckEvolution(ctx context.Context, target, newMem *model.Memory) oracle.EvolutionDecision {
	if !e.enabled {
		return oracle.EvolutionDecision{Reason: "Evolution disabled"}
	}
	if e.judge == nil {
		return oracle.EvolutionDecision{Reason: "No evolution oracle configured"}
	}

	if e.limiter != nil {
		if err := e.limiter.Acquire(ctx); err != nil {
			return oracle.EvolutionDecision{Reason: fmt.Sprintf("Error: %v", err)}
		}
	}
	d, err := e.judge.JudgeEvolution(ctx, target, newMem)
	if err != nil {
		e.logger.Warn("evolution check failed", "memory", target.ID, "trigger", newMem.ID, "err", err)
		return oracle.EvolutionDecision{Reason: fmt.Sprintf("Error: %v", err)}
	}
	return d
}

// ApplyEvolution applies d to m and records triggeredBy. It reports whether m
// changed; the caller must then regenerate m's embedding.
func (e *Engine) ApplyEvolution(m *model.Memory, d oracle.EvolutionDecision, triggeredBy string) bool {
	if !d.ShouldEvolve {
		return false
	}
	now := e.now().UTC()
	if m.Evolution == nil {
		m.Evolution = &model.EvolutionState{}
	}
	pushHistory(m, now)

	if d.Keywords != nil {
		m.Keywords = append([]string(nil), d.Keywords...)
	}
	if d.Tags != nil {
		m.Tags = append([]string(nil), d.Tags...)
	}
	if d.Context != nil {
		m.Context = *d.Context
	}

	evo := m.Evolution
	evo.UpdateCount++
	evo.LastUpdated = now
	evo.TriggeredBy = append(evo.TriggeredBy, triggeredBy)
	if n := len(evo.TriggeredBy); n > model.MaxTriggeredBy {
		evo.TriggeredBy = evo.TriggeredBy[n-model.MaxTriggeredBy:]
	}

	e.logger.Debug("memory evolved", "memory", m.ID, "trigger", triggeredBy, "reason", d.Reason)
	return true
}

// RevertEvolution is Revert reporting success as a bool.
func (e *Engine) RevertEvolution(m *model.Memory, versionIndex int) bool {
	return e.Revert(m, versionIndex) == nil
}

// Revert restores m's metadata from history entry versionIndex. Negative
// indices count from the end (-1 is the most recent entry). The pre-revert
// metadata is pushed onto the history first.
func (e *Engine) Revert(m *model.Memory, versionIndex int) error {
	if m.Evolution == nil || len(m.Evolution.History) == 0 {
		return fmt.Errorf("%w: memory %s has no history", ErrInvalidVersionIndex, m.ID)
	}
	n := len(m.Evolution.History)
	i := versionIndex
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		return fmt.Errorf("%w: %d out of range for %d entries", ErrInvalidVersionIndex, versionIndex, n)
	}

	target := m.Evolution.History[i]
	now := e.now().UTC()
	pushHistory(m, now)
	m.Restore(target)
	m.Evolution.LastUpdated = now
	return nil
}

// History returns m's evolution history, oldest first.
func History(m *model.Memory) []model.EvolutionSnapshot {
	if m.Evolution == nil {
		return nil
	}
	return m.Evolution.History
}

func pushHistory(m *model.Memory, now time.Time) {
	evo := m.Evolution
	evo.History = append(evo.History, m.Snapshot(now))
	if n := len(evo.History); n > model.MaxHistory {
		evo.History = evo.History[n-model.MaxHistory:]
	}
}
