package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MARistheone/Bother-Bot/internal/models"
	"github.com/MARistheone/Bother-Bot/internal/storage/sqlite"
)

// fakeClock returns a fixed instant.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(now time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type fixture struct {
	engine *Engine
	store  *sqlite.Store
	queue  *IntentQueue
	clock  *fakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := sqlite.Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	clock := &fakeClock{now: date(2026, time.January, 1)}
	queue := NewIntentQueue()
	return &fixture{
		engine: New(store, store, clock, queue, nil),
		store:  store,
		queue:  queue,
		clock:  clock,
	}
}

func (f *fixture) register(t *testing.T, userID string) {
	t.Helper()
	res, err := f.engine.RegisterUser(context.Background(), userID)
	require.NoError(t, err)
	require.Equal(t, OutcomeOK, res.Outcome)
}

func (f *fixture) addTask(t *testing.T, userID, description string, due time.Time, recurrence models.Recurrence) int64 {
	t.Helper()
	res, err := f.engine.AddTask(context.Background(), userID, description, due, recurrence)
	require.NoError(t, err)
	require.Equal(t, OutcomeOK, res.Outcome)
	return res.Task.ID
}

func (f *fixture) score(t *testing.T, userID string) int {
	t.Helper()
	user, err := f.store.GetUser(context.Background(), userID)
	require.NoError(t, err)
	require.NotNil(t, user)
	return user.Score
}

func intentsOfKind(intents []Intent, kind IntentKind) []Intent {
	var out []Intent
	for _, intent := range intents {
		if intent.Kind == kind {
			out = append(out, intent)
		}
	}
	return out
}

func TestRegisterUserIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.engine.RegisterUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, OutcomeOK, res.Outcome)

	res, err = f.engine.RegisterUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyRegistered, res.Outcome)
}

func TestRegisterUserEmptyID(t *testing.T) {
	f := newFixture(t)

	res, err := f.engine.RegisterUser(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeInvalid, res.Outcome)
}

func TestAssignPrivateChannelEmitsWelcomeOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.register(t, "alice")

	res, err := f.engine.AssignPrivateChannel(ctx, "alice", "chan-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeOK, res.Outcome)

	res, err = f.engine.AssignPrivateChannel(ctx, "alice", "chan-2")
	require.NoError(t, err)
	assert.Equal(t, OutcomeOK, res.Outcome)

	welcomes := intentsOfKind(f.queue.Drain(), IntentWelcome)
	require.Len(t, welcomes, 1)
	assert.Equal(t, "chan-1", welcomes[0].ChannelID)
	assert.Equal(t, "alice", welcomes[0].UserID)
}

func TestAssignPrivateChannelUnknownUser(t *testing.T) {
	f := newFixture(t)

	res, err := f.engine.AssignPrivateChannel(context.Background(), "ghost", "chan-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotFound, res.Outcome)
}

func TestAddTaskValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.register(t, "alice")

	res, err := f.engine.AddTask(ctx, "alice", "  ", date(2026, time.March, 1), models.RecurNone)
	require.NoError(t, err)
	assert.Equal(t, OutcomeInvalid, res.Outcome)

	res, err = f.engine.AddTask(ctx, "alice", "real task", date(2026, time.March, 1), models.Recurrence("hourly"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeInvalid, res.Outcome)

	res, err = f.engine.AddTask(ctx, "ghost", "real task", date(2026, time.March, 1), models.RecurNone)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotFound, res.Outcome)
}

func TestAddTaskDefaultsDueTomorrow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.register(t, "alice")

	res, err := f.engine.AddTask(ctx, "alice", "no due given", time.Time{}, models.RecurNone)
	require.NoError(t, err)
	require.Equal(t, OutcomeOK, res.Outcome)
	assert.Equal(t, date(2026, time.January, 2), res.Task.DueDate)
	assert.Equal(t, models.StatusPending, res.Task.Status)

	created := intentsOfKind(f.queue.Drain(), IntentTaskCreated)
	require.Len(t, created, 1)
	assert.Equal(t, res.Task.ID, created[0].Task.ID)
}

func TestMarkDoneAppliesScoreOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.register(t, "alice")
	id := f.addTask(t, "alice", "write report", date(2026, time.March, 1), models.RecurNone)

	res, err := f.engine.MarkDone(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, OutcomeOK, res.Outcome)
	assert.Equal(t, models.StatusCompleted, res.Task.Status)
	assert.Nil(t, res.Successor)
	assert.Equal(t, 10, f.score(t, "alice"))

	// Second completion is a soft no-op with no further delta.
	res, err = f.engine.MarkDone(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyDone, res.Outcome)
	assert.Equal(t, 10, f.score(t, "alice"))

	celebrations := intentsOfKind(f.queue.Drain(), IntentTaskCompleted)
	assert.Len(t, celebrations, 1)
}

func TestMarkDoneUnknownTask(t *testing.T) {
	f := newFixture(t)

	res, err := f.engine.MarkDone(context.Background(), 404)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotFound, res.Outcome)
}

func TestMarkDoneDailyRecurrence(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.register(t, "alice")
	id := f.addTask(t, "alice", "workout", date(2026, time.March, 1), models.RecurDaily)

	res, err := f.engine.MarkDone(ctx, id)
	require.NoError(t, err)
	require.Equal(t, OutcomeOK, res.Outcome)
	require.NotNil(t, res.Successor)

	assert.Equal(t, date(2026, time.March, 2), res.Successor.DueDate)
	assert.Equal(t, models.StatusPending, res.Successor.Status)
	assert.Equal(t, "workout", res.Successor.Description)
	assert.Equal(t, models.RecurDaily, res.Successor.Recurrence)
	assert.Equal(t, "alice", res.Successor.UserID)

	regenerated := intentsOfKind(f.queue.Drain(), IntentRecurringCreated)
	require.Len(t, regenerated, 1)
	assert.Equal(t, res.Successor.ID, regenerated[0].Task.ID)
}

func TestMarkDoneWeeklyRecurrence(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.register(t, "alice")
	id := f.addTask(t, "alice", "groceries", date(2026, time.March, 1), models.RecurWeekly)

	res, err := f.engine.MarkDone(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, res.Successor)
	assert.Equal(t, date(2026, time.March, 8), res.Successor.DueDate)
}

func TestMarkDoneRecurringExcludedFromReset(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.register(t, "alice")
	id := f.addTask(t, "alice", "workout", date(2026, time.March, 1), models.RecurDaily)

	_, err := f.engine.MarkDone(ctx, id)
	require.NoError(t, err)

	// The immediate regeneration already happened; the nightly reset
	// must not create a second successor.
	n, err := f.engine.DailyReset(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	tasks, err := f.store.GetTasksForUser(ctx, "alice", nil)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
}

func TestSnooze(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.register(t, "alice")
	id := f.addTask(t, "alice", "dishes", date(2026, time.March, 1), models.RecurNone)

	res, err := f.engine.Snooze(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, OutcomeOK, res.Outcome)
	assert.Equal(t, date(2026, time.March, 2), res.Task.DueDate)
	assert.Equal(t, models.StatusPending, res.Task.Status)
	assert.Equal(t, -2, f.score(t, "alice"))
}

func TestSnoozeOverdueResetsToPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.register(t, "alice")
	id := f.addTask(t, "alice", "dishes", date(2025, time.December, 30), models.RecurNone)
	require.NoError(t, f.store.UpdateStatus(ctx, id, models.StatusOverdue))

	res, err := f.engine.Snooze(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, OutcomeOK, res.Outcome)

	task, err := f.store.GetTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, task.Status)
	assert.Equal(t, date(2025, time.December, 31), task.DueDate)
}

func TestSnoozeCompletedTask(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.register(t, "alice")
	id := f.addTask(t, "alice", "dishes", date(2026, time.March, 1), models.RecurNone)
	_, err := f.engine.MarkDone(ctx, id)
	require.NoError(t, err)

	res, err := f.engine.Snooze(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyDone, res.Outcome)
	assert.Equal(t, 10, f.score(t, "alice"))
}

func TestEditTask(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.register(t, "alice")
	id := f.addTask(t, "alice", "dishes", date(2026, time.March, 1), models.RecurNone)

	newDesc := "dishes and counters"
	newDue := date(2026, time.April, 1)
	weekly := models.RecurWeekly
	res, err := f.engine.EditTask(ctx, id, EditChanges{
		Description: &newDesc,
		DueDate:     &newDue,
		Recurrence:  &weekly,
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeOK, res.Outcome)
	assert.Equal(t, newDesc, res.Task.Description)
	assert.Equal(t, newDue, res.Task.DueDate)
	assert.Equal(t, weekly, res.Task.Recurrence)
}

func TestEditTaskCompletedImmutable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.register(t, "alice")
	id := f.addTask(t, "alice", "dishes", date(2026, time.March, 1), models.RecurNone)
	_, err := f.engine.MarkDone(ctx, id)
	require.NoError(t, err)

	newDesc := "rewritten"
	res, err := f.engine.EditTask(ctx, id, EditChanges{Description: &newDesc})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyDone, res.Outcome)
}

func TestCheckOverdueSweep(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.register(t, "alice")
	past := f.addTask(t, "alice", "ancient", date(2020, time.January, 1), models.RecurNone)
	future := f.addTask(t, "alice", "far off", date(2099, time.December, 31), models.RecurNone)

	n, err := f.engine.CheckOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	pastTask, err := f.store.GetTask(ctx, past)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOverdue, pastTask.Status)

	futureTask, err := f.store.GetTask(ctx, future)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, futureTask.Status)

	// 2020-01-01 -> 2026-01-01 is 2192 whole days at -5 apiece.
	assert.Equal(t, -10960, f.score(t, "alice"))
}

func TestCheckOverdueIdempotentPerRow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.register(t, "alice")
	f.addTask(t, "alice", "ancient", date(2025, time.December, 30), models.RecurNone)

	n, err := f.engine.CheckOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	penalized := f.score(t, "alice")

	// A later sweep finds no pending candidates and changes nothing,
	// even though more days have elapsed.
	f.clock.Set(date(2026, time.January, 3))
	n, err = f.engine.CheckOverdue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, penalized, f.score(t, "alice"))
}

func TestCheckOverdueEmpty(t *testing.T) {
	f := newFixture(t)

	n, err := f.engine.CheckOverdue(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestWallOfShameGroupsByUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.register(t, "alice")
	f.register(t, "bob")
	require.NoError(t, f.store.SetConfig(ctx, ConfigShameChannel, "grinder"))

	f.addTask(t, "alice", "first chore", date(2020, time.January, 1), models.RecurNone)
	f.addTask(t, "alice", "second chore", date(2020, time.June, 1), models.RecurNone)
	f.addTask(t, "bob", "only chore", date(2020, time.March, 1), models.RecurNone)

	require.NoError(t, f.engine.WallOfShame(ctx))

	shames := intentsOfKind(f.queue.Drain(), IntentShame)
	require.Len(t, shames, 2)

	byUser := map[string]Intent{}
	for _, intent := range shames {
		byUser[intent.UserID] = intent
	}
	assert.ElementsMatch(t, []string{"first chore", "second chore"}, byUser["alice"].Tasks)
	assert.ElementsMatch(t, []string{"only chore"}, byUser["bob"].Tasks)
	assert.Equal(t, "grinder", byUser["alice"].ChannelID)
}

func TestWallOfShameNoChannelConfigured(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.register(t, "alice")
	f.addTask(t, "alice", "chore", date(2020, time.January, 1), models.RecurNone)

	require.NoError(t, f.engine.WallOfShame(ctx))
	assert.Empty(t, intentsOfKind(f.queue.Drain(), IntentShame))
}

func TestDailyResetRegeneratesLegacyRows(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.register(t, "alice")
	id := f.addTask(t, "alice", "workout", date(2026, time.March, 1), models.RecurDaily)

	// Simulate a completion by an older writer that never regenerated.
	require.NoError(t, f.store.UpdateStatus(ctx, id, models.StatusCompleted))
	f.queue.Drain()

	n, err := f.engine.DailyReset(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	regenerated := intentsOfKind(f.queue.Drain(), IntentRecurringCreated)
	require.Len(t, regenerated, 1)
	assert.Equal(t, date(2026, time.March, 2), regenerated[0].Task.DueDate)

	// Running it again finds nothing: the predecessor was cleared.
	n, err = f.engine.DailyReset(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestScoreAccumulation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.register(t, "alice")

	require.NoError(t, f.store.AdjustScore(ctx, "alice", 10))
	require.NoError(t, f.store.AdjustScore(ctx, "alice", 10))
	require.NoError(t, f.store.AdjustScore(ctx, "alice", -5))
	assert.Equal(t, 15, f.score(t, "alice"))
}

func TestConcurrentMarkDoneSingleCredit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.register(t, "alice")
	id := f.addTask(t, "alice", "contested", date(2026, time.March, 1), models.RecurNone)

	const attempts = 8
	outcomes := make([]Outcome, attempts)

	var wg sync.WaitGroup
	wg.Add(attempts)
	for i := 0; i < attempts; i++ {
		go func(i int) {
			defer wg.Done()
			res, err := f.engine.MarkDone(ctx, id)
			require.NoError(t, err)
			outcomes[i] = res.Outcome
		}(i)
	}
	wg.Wait()

	won := 0
	for _, outcome := range outcomes {
		switch outcome {
		case OutcomeOK:
			won++
		case OutcomeAlreadyDone:
		default:
			t.Fatalf("unexpected outcome %q", outcome)
		}
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, 10, f.score(t, "alice"))
}

func TestConcurrentDoneVsOverdueSweep(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.register(t, "alice")
	id := f.addTask(t, "alice", "contested", date(2025, time.December, 31), models.RecurNone)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := f.engine.MarkDone(ctx, id)
		require.NoError(t, err)
	}()
	go func() {
		defer wg.Done()
		_, err := f.engine.CheckOverdue(ctx)
		require.NoError(t, err)
	}()
	wg.Wait()

	task, err := f.store.GetTask(ctx, id)
	require.NoError(t, err)

	// Either order is legal, but the end state is consistent: the task
	// is completed and the completion credit was applied exactly once.
	assert.Equal(t, models.StatusCompleted, task.Status)
	score := f.score(t, "alice")
	assert.True(t, score == 10 || score == 10-5, "score %d", score)
}
