package evolution

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/assoc-memory/internal/model"
	"github.com/rcliao/assoc-memory/internal/oracle"
)

type fakeJudge struct {
	decision oracle.EvolutionDecision
	err      error
	calls    int
}

func (f *fakeJudge) JudgeEvolution(ctx context.Context, target, newMem *model.Memory) (oracle.EvolutionDecision, error) {
	f.calls++
	return f.decision, f.err
}

func strPtr(s string) *string { return &s }

func newEngine(j oracle.EvolutionJudge, opts ...Option) *Engine {
	e := New(j, opts...)
	e.now = func() time.Time { return time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC) }
	return e
}

func seeded() *model.Memory {
	return &model.Memory{
		ID:       "m",
		Text:     "OAuth authentication in React",
		Keywords: []string{"oauth", "react"},
		Tags:     []string{"auth"},
		Context:  "login flow",
	}
}

func TestCheckEvolution(t *testing.T) {
	want := oracle.EvolutionDecision{ShouldEvolve: true, Tags: []string{"auth", "jwt"}, Reason: "adds JWT"}
	j := &fakeJudge{decision: want}
	e := newEngine(j)

	got := e.CheckEvolution(context.Background(), seeded(), &model.Memory{ID: "n"})
	assert.Equal(t, want, got)
	assert.Equal(t, 1, j.calls)
}

func TestCheckEvolution_NegativeWithoutOracle(t *testing.T) {
	j := &fakeJudge{decision: oracle.EvolutionDecision{ShouldEvolve: true}}

	d := newEngine(j, WithEnabled(false)).CheckEvolution(context.Background(), seeded(), seeded())
	assert.False(t, d.ShouldEvolve)
	assert.Zero(t, j.calls)

	d = newEngine(nil).CheckEvolution(context.Background(), seeded(), seeded())
	assert.False(t, d.ShouldEvolve)
}

func TestCheckEvolution_OracleErrorIsNegative(t *testing.T) {
	e := newEngine(&fakeJudge{err: fmt.Errorf("%w: malformed JSON", oracle.ErrOracle)})
	d := e.CheckEvolution(context.Background(), seeded(), &model.Memory{ID: "n"})

	assert.False(t, d.ShouldEvolve)
	assert.True(t, strings.HasPrefix(d.Reason, "Error"), d.Reason)
}

func TestApplyEvolution(t *testing.T) {
	e := newEngine(nil)
	m := seeded()

	changed := e.ApplyEvolution(m, oracle.EvolutionDecision{
		ShouldEvolve: true,
		Tags:         []string{"auth", "security"},
		Context:      strPtr("login flow with JWT"),
	}, "n1")
	require.True(t, changed)

	assert.Equal(t, []string{"oauth", "react"}, m.Keywords, "omitted field kept")
	assert.Equal(t, []string{"auth", "security"}, m.Tags)
	assert.Equal(t, "login flow with JWT", m.Context)

	require.NotNil(t, m.Evolution)
	assert.Equal(t, 1, m.Evolution.UpdateCount)
	assert.Equal(t, []string{"n1"}, m.Evolution.TriggeredBy)
	require.Len(t, m.Evolution.History, 1)
	assert.Equal(t, []string{"auth"}, m.Evolution.History[0].Tags)
	assert.Equal(t, "login flow", m.Evolution.History[0].Context)
}

func TestApplyEvolution_NoopWhenNotEvolving(t *testing.T) {
	m := seeded()
	assert.False(t, newEngine(nil).ApplyEvolution(m, oracle.EvolutionDecision{Tags: []string{"x"}}, "n"))
	assert.Nil(t, m.Evolution)
	assert.Equal(t, []string{"auth"}, m.Tags)
}

func TestApplyEvolution_HistoryIsDeepCopy(t *testing.T) {
	e := newEngine(nil)
	m := seeded()
	e.ApplyEvolution(m, oracle.EvolutionDecision{ShouldEvolve: true, Reason: "noop"}, "n")
	m.Keywords[0] = "mutated"
	assert.Equal(t, "oauth", m.Evolution.History[0].Keywords[0])
}

func TestCaps(t *testing.T) {
	e := newEngine(nil)
	m := seeded()
	for i := 0; i < 25; i++ {
		e.ApplyEvolution(m, oracle.EvolutionDecision{
			ShouldEvolve: true,
			Context:      strPtr(fmt.Sprintf("v%d", i)),
		}, fmt.Sprintf("t%d", i))
		if i%4 == 0 {
			e.RevertEvolution(m, -1)
		}
		assert.LessOrEqual(t, len(m.Evolution.History), model.MaxHistory)
		assert.LessOrEqual(t, len(m.Evolution.TriggeredBy), model.MaxTriggeredBy)
	}

	assert.Equal(t, 25, m.Evolution.UpdateCount)
	assert.Equal(t, "t15", m.Evolution.TriggeredBy[0], "oldest triggers dropped")
	assert.Equal(t, "t24", m.Evolution.TriggeredBy[9])
}

func TestRoundTripIsReversible(t *testing.T) {
	e := newEngine(nil)
	m := seeded()
	before := m.Snapshot(time.Time{})

	e.ApplyEvolution(m, oracle.EvolutionDecision{
		ShouldEvolve: true,
		Keywords:     []string{"jwt"},
		Tags:         []string{"tokens"},
		Context:      strPtr("changed"),
	}, "n")
	afterApply := len(m.Evolution.History)

	require.True(t, e.RevertEvolution(m, -1))
	assert.Equal(t, before.Keywords, m.Keywords)
	assert.Equal(t, before.Tags, m.Tags)
	assert.Equal(t, before.Context, m.Context)
	assert.Equal(t, afterApply+1, len(m.Evolution.History))

	// the revert is itself revertible
	require.True(t, e.RevertEvolution(m, -1))
	assert.Equal(t, []string{"jwt"}, m.Keywords)
	assert.Equal(t, "changed", m.Context)
}

func TestRevert_ZeroWithSingleEntry(t *testing.T) {
	e := newEngine(nil)
	m := seeded()
	e.ApplyEvolution(m, oracle.EvolutionDecision{ShouldEvolve: true, Context: strPtr("new")}, "n")
	require.Len(t, m.Evolution.History, 1)

	require.True(t, e.RevertEvolution(m, 0))
	assert.Len(t, m.Evolution.History, 2)
	assert.Equal(t, "login flow", m.Context)
	assert.Equal(t, "new", m.Evolution.History[1].Context)
	assert.Equal(t, 1, m.Evolution.UpdateCount, "revert is not an evolution")
}

func TestRevert_InvalidIndex(t *testing.T) {
	e := newEngine(nil)

	m := seeded()
	assert.False(t, e.RevertEvolution(m, 0), "no evolution state")
	assert.ErrorIs(t, e.Revert(m, -1), ErrInvalidVersionIndex)

	e.ApplyEvolution(m, oracle.EvolutionDecision{ShouldEvolve: true, Context: strPtr("new")}, "n")
	for _, idx := range []int{1, 5, -2, -100} {
		err := e.Revert(m, idx)
		assert.True(t, errors.Is(err, ErrInvalidVersionIndex), "index %d", idx)
	}
	assert.Equal(t, "new", m.Context, "failed reverts leave the memory alone")
	assert.Len(t, m.Evolution.History, 1)
}

func TestHistory(t *testing.T) {
	assert.Nil(t, History(seeded()))

	e := newEngine(nil)
	m := seeded()
	e.ApplyEvolution(m, oracle.EvolutionDecision{ShouldEvolve: true, Context: strPtr("x")}, "n")
	assert.Len(t, History(m), 1)
}
