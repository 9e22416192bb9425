// File: internal/statuspoll/statuspoll_test.go
package statuspoll

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/scalpel-e2e/internal/browser/driver"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scripted replays a status sequence; the last entry repeats.
type scripted struct {
	mu       sync.Mutex
	statuses []string
	hidden   map[int]bool
	reads    int
	acts     int
	reopens  int
	actFires bool
	actErr   error
}

func (s *scripted) Observe(context.Context) (Observation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.reads
	s.reads++
	if s.hidden[i] {
		return Observation{Visible: false}, nil
	}
	if i >= len(s.statuses) {
		i = len(s.statuses) - 1
	}
	return Observation{Status: s.statuses[i], Visible: true}, nil
}

func (s *scripted) Act(context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acts++
	return s.actFires, s.actErr
}

func (s *scripted) Reopen(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reopens++
	return nil
}

var checkIn = Words{DoneWords: []string{"done", "geldi"}, ActionableWords: []string{"pending", "bekliyor"}}

func fastConfig() Config {
	return Config{
		Deadline:       500 * time.Millisecond,
		Window:         150 * time.Millisecond,
		ActionWindow:   60 * time.Millisecond,
		ActionInterval: 5 * time.Millisecond,
		IdleInterval:   5 * time.Millisecond,
		MaxReopens:     3,
	}
}

func TestPoll_ActionFiresOnce(t *testing.T) {
	probe := &scripted{statuses: []string{"pending", "pending", "action-taken", "done"}, actFires: true}

	res, err := New(fastConfig(), zaptest.NewLogger(t)).Poll(context.Background(), probe, checkIn)
	require.NoError(t, err)
	assert.Equal(t, "done", res.Final)
	assert.Equal(t, 1, res.Actions)
	assert.Equal(t, 1, probe.acts)
	assert.Equal(t, 0, res.Reopens)
}

func TestPoll_AlreadyDone(t *testing.T) {
	probe := &scripted{statuses: []string{"Geldi"}}
	res, err := New(fastConfig(), nil).Poll(context.Background(), probe, checkIn)
	require.NoError(t, err)
	assert.Equal(t, 0, probe.acts)
	assert.Equal(t, "Geldi", res.Final)
}

func TestPoll_DisabledActionKeepsObserving(t *testing.T) {
	probe := &scripted{statuses: []string{"bekliyor", "bekliyor", "bekliyor", "geldi"}, actFires: false}
	res, err := New(fastConfig(), nil).Poll(context.Background(), probe, checkIn)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Actions)
	assert.Equal(t, 3, probe.acts)
}

func TestPoll_ReopensWhenSurfaceCloses(t *testing.T) {
	probe := &scripted{statuses: []string{"x", "x", "x", "done"}, hidden: map[int]bool{1: true}}
	res, err := New(fastConfig(), nil).Poll(context.Background(), probe, checkIn)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Reopens)
	assert.Equal(t, 1, probe.reopens)
}

func TestPoll_TimeoutCarriesLastStatus(t *testing.T) {
	probe := &scripted{statuses: []string{"pending"}, actFires: true}
	cfg := fastConfig()
	cfg.MaxReopens = 1

	_, err := New(cfg, nil).Poll(context.Background(), probe, checkIn)
	var te *driver.TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "pending", te.LastObserved)
	assert.Equal(t, 1, probe.reopens)
	// One action per window: the first window and the one after the reopen.
	assert.Equal(t, 2, probe.acts)
}

func TestPoll_DeadlineBoundsTheLoop(t *testing.T) {
	probe := &scripted{statuses: []string{"waiting"}}
	cfg := fastConfig()
	cfg.MaxReopens = 100

	start := time.Now()
	_, err := New(cfg, nil).Poll(context.Background(), probe, checkIn)
	var te *driver.TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, "waiting", te.LastObserved)
}

func TestPoll_ActionErrorStops(t *testing.T) {
	boom := errors.New("boom")
	probe := &scripted{statuses: []string{"pending"}, actFires: true, actErr: boom}
	_, err := New(fastConfig(), nil).Poll(context.Background(), probe, checkIn)
	assert.ErrorIs(t, err, boom)
}

func TestPoll_CallerCancellation(t *testing.T) {
	probe := &scripted{statuses: []string{"waiting"}}
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := New(fastConfig(), nil).Poll(ctx, probe, checkIn)
	assert.ErrorIs(t, err, context.Canceled)
}
