package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/metalhouse/fleshrecord/internal/domain"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// fakeStore serves fixed profiles; ids in badIDs yield config errors.
type fakeStore struct {
	users  map[string]*domain.UserProfile
	badIDs map[string]bool
}

func (s *fakeStore) Get(id string) (*domain.UserProfile, error) {
	if s.badIDs[id] {
		return nil, &domain.ConfigError{UserID: id, Err: assert.AnError}
	}
	u, ok := s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return u, nil
}

func (s *fakeStore) List() ([]string, error) {
	var ids []string
	for id := range s.users {
		ids = append(ids, id)
	}
	for id := range s.badIDs {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *fakeStore) Save(*domain.UserProfile) error { return nil }
func (s *fakeStore) Delete(string) error            { return nil }

// fakeReporter counts invocations per user and fails the first failFirst
// generate calls per user. block, when set, holds Generate until released.
type fakeReporter struct {
	mu        sync.Mutex
	generated map[string]int
	delivered map[string]int
	failFirst map[string]int
	block     chan struct{}
}

func newFakeReporter() *fakeReporter {
	return &fakeReporter{
		generated: make(map[string]int),
		delivered: make(map[string]int),
		failFirst: make(map[string]int),
	}
}

func (r *fakeReporter) Generate(_ context.Context, user *domain.UserProfile, kind domain.ReportKind, now time.Time) (*domain.ReportResult, error) {
	r.mu.Lock()
	r.generated[user.UserID]++
	n := r.generated[user.UserID]
	remaining := r.failFirst[user.UserID]
	block := r.block
	r.mu.Unlock()

	if block != nil {
		<-block
	}
	if n <= remaining {
		return nil, &domain.DataFetchError{Op: "transactions", Err: assert.AnError}
	}
	return &domain.ReportResult{Kind: kind, Period: kind.PeriodKey(now), Message: "ok"}, nil
}

func (r *fakeReporter) Deliver(_ context.Context, user *domain.UserProfile, _ *domain.ReportResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delivered[user.UserID]++
	return nil
}

func (r *fakeReporter) generatedFor(user string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.generated[user]
}

func (r *fakeReporter) deliveredFor(user string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.delivered[user]
}

func dailyUser(id, at string) *domain.UserProfile {
	return &domain.UserProfile{
		UserID:              id,
		FireflyAccessToken:  "tok",
		WebhookURL:          "https://hooks.example.com/" + id,
		NotificationEnabled: true,
		Reports: domain.ReportSchedule{
			Daily: domain.KindSchedule{Enabled: true, At: at},
		},
	}
}

func newEngine(store *fakeStore, rep Reporter, clock Clock) *Engine {
	return New(store, rep, zap.NewNop(), Options{
		TickInterval: time.Minute,
		MaxAttempts:  3,
		Clock:        clock,
	})
}

func tickAndWait(e *Engine, ctx context.Context) {
	e.tick(ctx)
	e.wg.Wait()
}

func day(hh, mm int) time.Time {
	return time.Date(2025, time.June, 10, hh, mm, 0, 0, time.UTC)
}

func TestAtMostOneFirePerPeriod(t *testing.T) {
	clock := &fakeClock{t: day(23, 0)}
	store := &fakeStore{users: map[string]*domain.UserProfile{"dad": dailyUser("dad", "23:00")}}
	rep := newFakeReporter()
	e := newEngine(store, rep, clock)
	ctx := context.Background()

	tickAndWait(e, ctx)
	assert.Equal(t, 1, rep.generatedFor("dad"))
	assert.Equal(t, 1, rep.deliveredFor("dad"))

	// Same tick window again: fired-for-period guard holds.
	tickAndWait(e, ctx)
	assert.Equal(t, 1, rep.generatedFor("dad"))

	// One minute later, outside the window and already fired.
	clock.Set(day(23, 1))
	tickAndWait(e, ctx)
	assert.Equal(t, 1, rep.generatedFor("dad"))
}

func TestTransientFailureRetriesAndSucceedsOnce(t *testing.T) {
	clock := &fakeClock{t: day(23, 0)}
	store := &fakeStore{users: map[string]*domain.UserProfile{"dad": dailyUser("dad", "23:00")}}
	rep := newFakeReporter()
	rep.failFirst["dad"] = 1
	e := newEngine(store, rep, clock)
	ctx := context.Background()

	// 23:00 tick: the ledger fails transiently.
	tickAndWait(e, ctx)
	assert.Equal(t, 1, rep.generatedFor("dad"))
	assert.Equal(t, 0, rep.deliveredFor("dad"))

	// 23:05 tick: past the due window, but the pending retry fires.
	clock.Set(day(23, 5))
	tickAndWait(e, ctx)
	assert.Equal(t, 2, rep.generatedFor("dad"))
	assert.Equal(t, 1, rep.deliveredFor("dad"))

	// No further attempts once the period succeeded.
	clock.Set(day(23, 10))
	tickAndWait(e, ctx)
	assert.Equal(t, 2, rep.generatedFor("dad"))
}

func TestRetryBudgetBoundsAttemptsPerPeriod(t *testing.T) {
	clock := &fakeClock{t: day(23, 0)}
	store := &fakeStore{users: map[string]*domain.UserProfile{"dad": dailyUser("dad", "23:00")}}
	rep := newFakeReporter()
	rep.failFirst["dad"] = 100 // never succeeds
	e := newEngine(store, rep, clock)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		clock.Set(day(23, i))
		tickAndWait(e, ctx)
	}
	assert.Equal(t, 3, rep.generatedFor("dad"), "attempts capped at the per-period budget")
	assert.Equal(t, 0, rep.deliveredFor("dad"))
}

func TestNewPeriodResetsAttemptBudget(t *testing.T) {
	clock := &fakeClock{t: day(23, 0)}
	store := &fakeStore{users: map[string]*domain.UserProfile{"dad": dailyUser("dad", "23:00")}}
	rep := newFakeReporter()
	rep.failFirst["dad"] = 3 // day one burns the whole budget
	e := newEngine(store, rep, clock)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		clock.Set(day(23, i))
		tickAndWait(e, ctx)
	}
	require.Equal(t, 3, rep.generatedFor("dad"))

	// Next day: fresh period, fresh budget, and the stub now succeeds.
	clock.Set(time.Date(2025, time.June, 11, 23, 0, 0, 0, time.UTC))
	tickAndWait(e, ctx)
	assert.Equal(t, 4, rep.generatedFor("dad"))
	assert.Equal(t, 1, rep.deliveredFor("dad"))
}

func TestOverlappingTicksFireOnlyOneAttempt(t *testing.T) {
	clock := &fakeClock{t: day(23, 0)}
	store := &fakeStore{users: map[string]*domain.UserProfile{"dad": dailyUser("dad", "23:00")}}
	rep := newFakeReporter()
	rep.block = make(chan struct{})
	e := newEngine(store, rep, clock)
	ctx := context.Background()

	// First tick starts an attempt that hangs inside Generate.
	e.tick(ctx)

	// Give the goroutine time to enter Generate, then tick again while the
	// first attempt is still in flight.
	require.Eventually(t, func() bool { return rep.generatedFor("dad") == 1 },
		time.Second, 5*time.Millisecond)
	e.tick(ctx)

	close(rep.block)
	e.wg.Wait()
	assert.Equal(t, 1, rep.generatedFor("dad"), "in-flight guard must reject the overlap")
}

func TestUserFailureIsolation(t *testing.T) {
	clock := &fakeClock{t: day(23, 0)}
	store := &fakeStore{
		users: map[string]*domain.UserProfile{
			"alice": dailyUser("alice", "23:00"),
			"carol": dailyUser("carol", "23:00"),
		},
		badIDs: map[string]bool{"bob": true},
	}
	rep := newFakeReporter()
	rep.failFirst["alice"] = 100
	e := newEngine(store, rep, clock)

	tickAndWait(e, context.Background())

	// Bob's broken config and Alice's failure leave Carol untouched.
	assert.Equal(t, 1, rep.deliveredFor("carol"))
	assert.Equal(t, 1, rep.generatedFor("alice"))
	assert.Equal(t, 0, rep.deliveredFor("alice"))
}

func TestNoRetroactiveFireAfterLateStart(t *testing.T) {
	// Process comes up well past the trigger minute with no pending state.
	clock := &fakeClock{t: day(23, 10)}
	store := &fakeStore{users: map[string]*domain.UserProfile{"dad": dailyUser("dad", "23:00")}}
	rep := newFakeReporter()
	e := newEngine(store, rep, clock)

	tickAndWait(e, context.Background())
	assert.Equal(t, 0, rep.generatedFor("dad"))
}

func TestCoarseTickWidensDueWindow(t *testing.T) {
	clock := &fakeClock{t: day(23, 3)}
	store := &fakeStore{users: map[string]*domain.UserProfile{"dad": dailyUser("dad", "23:00")}}
	rep := newFakeReporter()
	e := New(store, rep, zap.NewNop(), Options{
		TickInterval: 5 * time.Minute,
		Clock:        clock,
	})

	tickAndWait(e, context.Background())
	assert.Equal(t, 1, rep.generatedFor("dad"), "late tick inside the interval window fires once")
}
