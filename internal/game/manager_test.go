package game

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/code-review-quest/internal/achievements"
	"github.com/terra-clan/code-review-quest/internal/catalog"
	"github.com/terra-clan/code-review-quest/internal/evaluation"
	"github.com/terra-clan/code-review-quest/internal/events"
	"github.com/terra-clan/code-review-quest/internal/guest"
	"github.com/terra-clan/code-review-quest/internal/identity"
	"github.com/terra-clan/code-review-quest/internal/models"
	"github.com/terra-clan/code-review-quest/internal/storage"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	manager   *GameManager
	repo      *storage.SQLiteRepository
	guests    *guest.Service
	clock     *clock
	publisher *recordingPublisher
}

func testProblem() *models.Problem {
	return &models.Problem{
		ID:         "avg",
		Title:      "Average of a list",
		Difficulty: models.DifficultyBeginner,
		Category:   "logic",
		Code:       "def avg(xs):\n    total = 0\n    for i in range(len(xs) - 1):\n        total += xs[i]\n    return total / len(xs)\n",
		Defects: []models.Defect{
			{Line: 3, Type: "off_by_one", Description: "skips the last element"},
			{Line: 5, Type: "division_by_zero", Description: "empty list"},
		},
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	c := &clock{now: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}

	loader := catalog.NewLoader()
	require.NoError(t, loader.Add(testProblem()))

	repo, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "game.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	engine := achievements.NewEngine(loader).WithClock(c.Now)
	guests := guest.NewService(guest.NewMemoryStore().WithClock(c.Now), engine, time.Hour).WithClock(c.Now)
	publisher := &recordingPublisher{}

	m := NewManager(Options{
		Problems:      loader,
		Repo:          repo,
		GuestSessions: guest.NewMemorySessionStore(time.Hour).WithClock(c.Now),
		Guests:        guests,
		Achievements:  engine,
		ProblemStats:  repo,
		Publisher:     publisher,
	}).WithClock(c.Now).WithPicker(func(int) int { return 0 })

	return &fixture{manager: m, repo: repo, guests: guests, clock: c, publisher: publisher}
}

func badgeIDs(awards []models.Award) []string {
	ids := make([]string, 0, len(awards))
	for _, a := range awards {
		ids = append(ids, a.BadgeID)
	}
	return ids
}

func TestStartSession_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := identity.Authenticated{UserID: "u1"}

	_, _, err := f.manager.StartSession(ctx, user, "expert", 0)
	assert.ErrorIs(t, err, ErrInvalidDifficulty)

	_, _, err = f.manager.StartSession(ctx, user, "advanced", 0)
	assert.ErrorIs(t, err, ErrNoProblemsAvailable)
}

func TestStartSession_Routing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, p, err := f.manager.StartSession(ctx, identity.Authenticated{UserID: "u1"}, "beginner", 0)
	require.NoError(t, err)
	assert.Equal(t, "avg", p.ID)
	assert.Equal(t, DefaultTimeLimit, s.TimeLimit)
	assert.Equal(t, models.SessionActive, s.Status)

	stored, err := f.repo.GetSession(ctx, s.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "u1", stored.OwnerID)

	anon, _, err := f.manager.StartSession(ctx, identity.Anonymous{}, "beginner", 600)
	require.NoError(t, err)
	assert.Equal(t, 600, anon.TimeLimit)
	stored, err = f.repo.GetSession(ctx, anon.ID)
	require.NoError(t, err)
	assert.Nil(t, stored)

	_, _, err = f.manager.SessionStatus(ctx, identity.Anonymous{}, anon.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSubmit_User(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := identity.Authenticated{UserID: "u1"}

	s, _, err := f.manager.StartSession(ctx, user, "beginner", 0)
	require.NoError(t, err)

	f.clock.Advance(60 * time.Second)
	res, err := f.manager.Submit(ctx, user, s.ID, []evaluation.Report{{Line: 3}, {Line: 5}})
	require.NoError(t, err)

	assert.Equal(t, 100, res.Score)
	assert.Equal(t, []int{3, 5}, res.Correct)
	assert.Equal(t, models.SessionCompleted, res.Session.Status)
	assert.ElementsMatch(t, []string{"first_bug", "perfect_score", "speed_demon"}, badgeIDs(res.NewBadges))

	stats, err := f.repo.GetUserStats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.SessionsPlayed)
	assert.Equal(t, 100, stats.TotalScore)
	assert.Equal(t, 2, stats.BugsFound)

	// a second submission is rejected without touching stats
	_, err = f.manager.Submit(ctx, user, s.ID, []evaluation.Report{{Line: 3}})
	assert.ErrorIs(t, err, ErrSessionNotActive)
	stats, err = f.repo.GetUserStats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.SessionsPlayed)

	ps, err := f.repo.GetProblemStats(ctx, "avg")
	require.NoError(t, err)
	require.NotNil(t, ps)
	assert.Equal(t, 1, ps.Attempts)

	assert.Equal(t, []string{
		events.TypeSessionCompleted,
		events.TypeBadgeAwarded,
		events.TypeBadgeAwarded,
		events.TypeBadgeAwarded,
	}, f.publisher.types())
}

func TestSubmit_BadgesAreNotAwardedTwice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := identity.Authenticated{UserID: "u1"}

	s1, _, err := f.manager.StartSession(ctx, user, "beginner", 0)
	require.NoError(t, err)
	res, err := f.manager.Submit(ctx, user, s1.ID, []evaluation.Report{{Line: 3}})
	require.NoError(t, err)
	assert.Contains(t, badgeIDs(res.NewBadges), "first_bug")

	s2, _, err := f.manager.StartSession(ctx, user, "beginner", 0)
	require.NoError(t, err)
	res, err = f.manager.Submit(ctx, user, s2.ID, []evaluation.Report{{Line: 3}})
	require.NoError(t, err)
	assert.NotContains(t, badgeIDs(res.NewBadges), "first_bug")
}

func TestSubmit_Guest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	record, err := f.guests.Create(ctx, "")
	require.NoError(t, err)
	g := identity.Guest{Handle: record.Handle}

	s, _, err := f.manager.StartSession(ctx, g, "beginner", 0)
	require.NoError(t, err)
	assert.Equal(t, models.OwnerGuest, s.OwnerKind)

	f.clock.Advance(30 * time.Second)
	res, err := f.manager.Submit(ctx, g, s.ID, []evaluation.Report{{Line: 3}, {Line: 5}})
	require.NoError(t, err)
	assert.ElementsMatch(t,
		[]string{"first_bug", "perfect_score", "speed_demon", "first_session", "score_50", "score_100"},
		badgeIDs(res.NewBadges),
	)

	profile, err := f.guests.Profile(ctx, record.Handle)
	require.NoError(t, err)
	assert.Equal(t, 1, profile.SessionsPlayed)
	assert.Equal(t, 100, profile.TotalScore)
	assert.Equal(t, 30, profile.TimePlayed)
	assert.Len(t, profile.Achievements, 6)

	// guest sessions never reach durable storage
	stored, err := f.repo.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestSubmit_Ownership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, _, err := f.manager.StartSession(ctx, identity.Authenticated{UserID: "u1"}, "beginner", 0)
	require.NoError(t, err)

	_, err = f.manager.Submit(ctx, identity.Authenticated{UserID: "u2"}, s.ID, nil)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = f.manager.Submit(ctx, identity.Anonymous{}, s.ID, nil)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = f.manager.Submit(ctx, identity.Guest{Handle: "guest_x"}, s.ID, nil)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = f.manager.Submit(ctx, identity.Authenticated{UserID: "u1"}, "missing", nil)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSubmit_InvalidReport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := identity.Authenticated{UserID: "u1"}

	s, _, err := f.manager.StartSession(ctx, user, "beginner", 0)
	require.NoError(t, err)

	_, err = f.manager.Submit(ctx, user, s.ID, []evaluation.Report{{Line: 0}})
	assert.ErrorIs(t, err, evaluation.ErrInvalidReport)

	status, _, err := f.manager.SessionStatus(ctx, user, s.ID)
	require.NoError(t, err)
	assert.True(t, status.IsActive())
}

func TestSubmit_ConcurrentOnlyOneWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	record, err := f.guests.Create(ctx, "racer")
	require.NoError(t, err)
	g := identity.Guest{Handle: record.Handle}

	s, _, err := f.manager.StartSession(ctx, g, "beginner", 0)
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.manager.Submit(ctx, g, s.ID, []evaluation.Report{{Line: 3}})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.Is(err, ErrSessionNotActive), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, succeeded)

	profile, err := f.guests.Profile(ctx, record.Handle)
	require.NoError(t, err)
	assert.Equal(t, 1, profile.SessionsPlayed)
}

func TestSubmit_PublishFailureDoesNotFail(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("broker down")
	ctx := context.Background()
	user := identity.Authenticated{UserID: "u1"}

	s, _, err := f.manager.StartSession(ctx, user, "beginner", 0)
	require.NoError(t, err)
	_, err = f.manager.Submit(ctx, user, s.ID, nil)
	require.NoError(t, err)
}

type failingResultRepo struct {
	storage.Repository
}

func (failingResultRepo) RecordUserResult(context.Context, string, models.SessionOutcome) error {
	return errors.New("stats table locked")
}

func TestSubmit_StatsFailureKeepsResult(t *testing.T) {
	f := newFixture(t)
	f.manager.repo = failingResultRepo{Repository: f.repo}
	ctx := context.Background()
	user := identity.Authenticated{UserID: "u1"}

	s, _, err := f.manager.StartSession(ctx, user, "beginner", 0)
	require.NoError(t, err)

	res, err := f.manager.Submit(ctx, user, s.ID, []evaluation.Report{{Line: 3}, {Line: 5}})
	require.NoError(t, err)
	assert.Equal(t, 100, res.Score)
	assert.Equal(t, []int{3, 5}, res.Correct)
	assert.Empty(t, res.NewBadges)
	assert.Equal(t, models.SessionCompleted, res.Session.Status)
	assert.Contains(t, f.publisher.types(), events.TypeSessionCompleted)

	// the session is spent even though the stats were not recorded
	_, err = f.manager.Submit(ctx, user, s.ID, nil)
	assert.ErrorIs(t, err, ErrSessionNotActive)

	stats, err := f.repo.GetUserStats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.SessionsPlayed)
}

func TestSessionStatus_Remaining(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := identity.Authenticated{UserID: "u1"}

	s, _, err := f.manager.StartSession(ctx, user, "beginner", 300)
	require.NoError(t, err)

	f.clock.Advance(100 * time.Second)
	_, remaining, err := f.manager.SessionStatus(ctx, user, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 200*time.Second, remaining)

	f.clock.Advance(time.Hour)
	_, remaining, err = f.manager.SessionStatus(ctx, user, s.ID)
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), remaining)

	// the budget is advisory
	_, err = f.manager.Submit(ctx, user, s.ID, []evaluation.Report{{Line: 5}})
	assert.NoError(t, err)
}

func TestProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.manager.Profile(ctx, identity.Anonymous{})
	assert.ErrorIs(t, err, ErrAnonymous)

	_, err = f.manager.Profile(ctx, identity.Guest{Handle: "guest_gone"})
	assert.ErrorIs(t, err, guest.ErrGuestNotFound)

	user := identity.Authenticated{UserID: "u1"}
	s, _, err := f.manager.StartSession(ctx, user, "beginner", 0)
	require.NoError(t, err)
	_, err = f.manager.Submit(ctx, user, s.ID, []evaluation.Report{{Line: 3}, {Line: 5}})
	require.NoError(t, err)

	p, err := f.manager.Profile(ctx, user)
	require.NoError(t, err)
	require.NotNil(t, p.User)
	assert.Nil(t, p.Guest)
	assert.Equal(t, "user", p.Kind)
	assert.Equal(t, []int{100}, p.User.RecentScores)
	assert.Equal(t, 100.0, p.User.AverageScore)
	assert.NotEmpty(t, p.User.Badges)
}

func TestExplanation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.manager.Explanation(ctx, identity.Anonymous{}, "missing", "")
	assert.ErrorIs(t, err, ErrProblemNotFound)

	exp, err := f.manager.Explanation(ctx, identity.Anonymous{}, "avg", "")
	require.NoError(t, err)
	assert.True(t, exp.Locked)
	assert.Empty(t, exp.Bugs)
	assert.Equal(t, 2, exp.Problem.DefectCount)

	user := identity.Authenticated{UserID: "u1"}
	s, _, err := f.manager.StartSession(ctx, user, "beginner", 0)
	require.NoError(t, err)

	exp, err = f.manager.Explanation(ctx, user, "avg", "")
	require.NoError(t, err)
	assert.True(t, exp.Locked)

	_, err = f.manager.Submit(ctx, user, s.ID, nil)
	require.NoError(t, err)

	exp, err = f.manager.Explanation(ctx, user, "avg", "")
	require.NoError(t, err)
	assert.False(t, exp.Locked)
	assert.Len(t, exp.Bugs, 2)
	assert.Contains(t, exp.Detailed, "### Bug #2 - Line 5")
}

func TestExplanation_Guest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	record, err := f.guests.Create(ctx, "")
	require.NoError(t, err)
	g := identity.Guest{Handle: record.Handle}

	s, _, err := f.manager.StartSession(ctx, g, "beginner", 0)
	require.NoError(t, err)

	exp, err := f.manager.Explanation(ctx, g, "avg", s.ID)
	require.NoError(t, err)
	assert.True(t, exp.Locked)

	_, err = f.manager.Submit(ctx, g, s.ID, []evaluation.Report{{Line: 3}})
	require.NoError(t, err)

	exp, err = f.manager.Explanation(ctx, g, "avg", s.ID)
	require.NoError(t, err)
	assert.False(t, exp.Locked)

	// another guest cannot borrow the session
	other, err := f.guests.Create(ctx, "")
	require.NoError(t, err)
	exp, err = f.manager.Explanation(ctx, identity.Guest{Handle: other.Handle}, "avg", s.ID)
	require.NoError(t, err)
	assert.True(t, exp.Locked)
}

func TestLeaderboardAndProblemStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, u := range []string{"alice", "bob"} {
		id := identity.Authenticated{UserID: u}
		s, _, err := f.manager.StartSession(ctx, id, "beginner", 0)
		require.NoError(t, err)
		reports := []evaluation.Report{{Line: 3}}
		if u == "bob" {
			reports = append(reports, evaluation.Report{Line: 5})
		}
		_, err = f.manager.Submit(ctx, id, s.ID, reports)
		require.NoError(t, err)
	}

	board, err := f.manager.Leaderboard(ctx, 10)
	require.NoError(t, err)
	require.Len(t, board, 2)
	assert.Equal(t, "bob", board[0].UserID)
	assert.Equal(t, 1, board[0].Rank)

	stats, err := f.manager.ProblemStats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 2, stats[0].Attempts)
	assert.Equal(t, 75.0, stats[0].AverageScore)
}
