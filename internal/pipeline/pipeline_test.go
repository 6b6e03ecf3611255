package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/spigell/job-seeker/internal/domain"
	"github.com/spigell/job-seeker/internal/filtering"
	"github.com/spigell/job-seeker/internal/lock"
	"github.com/spigell/job-seeker/internal/notify"
	"github.com/spigell/job-seeker/internal/resume"
	"github.com/spigell/job-seeker/internal/similarity"
	"github.com/spigell/job-seeker/internal/source"
	"github.com/spigell/job-seeker/internal/store"
	"github.com/spigell/job-seeker/internal/store/boltstore"
	"github.com/spigell/job-seeker/internal/textnorm"
)

const pythonPosting = "Python developer wanted. We write Python and SQL daily. Python first."

type memorySource struct {
	mu       sync.Mutex
	pageSize int
	postings map[string][]domain.Posting
	fetches  map[string][]int
	failAt   map[string]int
}

func newMemorySource(pageSize int) *memorySource {
	return &memorySource{
		pageSize: pageSize,
		postings: make(map[string][]domain.Posting),
		fetches:  make(map[string][]int),
		failAt:   make(map[string]int),
	}
}

func (m *memorySource) set(key string, postings ...domain.Posting) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.postings[key] = postings
}

func (m *memorySource) pages(key string) []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.fetches[key])
}

func (m *memorySource) Fetch(_ context.Context, q source.Query, cur domain.Cursor) (source.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.fetches[q.Key] = append(m.fetches[q.Key], cur.Page)
	if page, ok := m.failAt[q.Key]; ok && page == cur.Page {
		delete(m.failAt, q.Key)
		return source.Page{}, errors.New("connection reset by peer")
	}

	all := m.postings[q.Key]
	start := min(cur.Page*m.pageSize, len(all))
	end := min(start+m.pageSize, len(all))
	items := slices.Clone(all[start:end])

	next, more := source.NextCursor(q, cur, items, end < len(all))
	return source.Page{Postings: items, Next: next, HasMore: more}, nil
}

type recordingNotifier struct {
	mu       sync.Mutex
	events   []domain.MatchEvent
	outcomes []outcome
}

type outcome struct {
	result notify.Outcome
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, event domain.MatchEvent) (notify.Outcome, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.events = append(n.events, event)
	if len(n.outcomes) > 0 {
		o := n.outcomes[0]
		n.outcomes = n.outcomes[1:]
		return o.result, o.err
	}
	return notify.Accepted, nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

type fixture struct {
	store    *store.Store
	source   *memorySource
	notifier *recordingNotifier
	dir      string
	cfg      Config
	deps     Deps
}

func newFixture(t *testing.T, resumeText string) *fixture {
	t.Helper()

	root := t.TempDir()
	db, err := boltstore.Open(filepath.Join(root, "state.db"), time.Second)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	dir := filepath.Join(root, "resumes")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}

	f := &fixture{
		store:    store.New(db, 70),
		source:   newMemorySource(1),
		notifier: &recordingNotifier{},
		dir:      dir,
	}
	f.writeResume(t, "alice.txt", resumeText)

	lexicon := textnorm.NewLexicon([]string{"python", "sql", "go"})
	ids := 0
	f.cfg = Config{
		Searches:   []source.Query{{Key: "python"}},
		ResumesDir: dir,
		Workers:    2,
	}
	f.deps = Deps{
		Store:    f.store,
		Source:   f.source,
		Parser:   resume.NewParser(lexicon, 2, nil),
		Engine:   similarity.New(similarity.Config{Threshold: 70, SkillsBonus: 30, ExperienceOverlapRequired: true}, lexicon),
		Notifier: f.notifier,
		Now:      func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) },
		NewID: func() string {
			ids++
			return fmt.Sprintf("run-%d", ids)
		},
	}

	return f
}

func (f *fixture) writeResume(t *testing.T, name, text string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(f.dir, name), []byte(text), 0o600); err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) run(t *testing.T, mode domain.Mode) *Report {
	t.Helper()

	p, err := New(f.cfg, f.deps)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	report, err := p.Run(context.Background(), mode)
	if err != nil {
		t.Fatalf("run %s: %v", mode, err)
	}
	return report
}

func pythonJob(id string, exp domain.ExperienceRange) domain.Posting {
	return domain.Posting{ID: id, Title: "Python developer", Company: "Acme", Description: pythonPosting, Experience: exp}
}

func TestRunFullIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "Python developer with SQL experience, 3 years")
	f.source.set("python", pythonJob("42", domain.ExperienceRange{Min: 2, Max: 5}))

	report := f.run(t, domain.ModeFull)
	if report.Run.State != domain.StateDone || report.Run.Ingested != 1 || report.Run.Scored != 1 {
		t.Fatalf("unexpected first run %+v", report.Run)
	}
	if report.Run.NewlyQualifying != 1 || report.Run.Notified != 1 || report.CreatedPostings != 1 || report.Pending != 0 {
		t.Fatalf("unexpected first run report %+v", report)
	}
	if f.notifier.count() != 1 {
		t.Fatalf("expected one notification, got %d", f.notifier.count())
	}

	event := f.notifier.events[0]
	if event.RunID != "run-1" || event.Posting.ID != "42" || event.ResumeID != "alice.txt" || event.Score < 70 {
		t.Fatalf("unexpected event %+v", event)
	}
	if !slices.Equal(event.Breakdown.MatchedSkills, []string{"python", "sql"}) {
		t.Fatalf("unexpected matched skills %v", event.Breakdown.MatchedSkills)
	}

	rec, err := f.store.GetMatch(context.Background(), "42", "alice.txt")
	if err != nil || !rec.Notified {
		t.Fatalf("expected notified record, got %+v (%v)", rec, err)
	}

	for i := 0; i < 2; i++ {
		report = f.run(t, domain.ModeFull)
		if report.Run.Scored != 0 || report.Run.Notified != 0 || report.Run.Ingested != 1 {
			t.Fatalf("repeated run must not rescore or notify, got %+v", report.Run)
		}
	}
	if f.notifier.count() != 1 {
		t.Fatalf("expected no further notifications, got %d", f.notifier.count())
	}

	cps, err := f.store.ListCheckpoints(context.Background())
	if err != nil || len(cps) != 0 {
		t.Fatalf("expected checkpoints to be reset after a complete run, got %v (%v)", cps, err)
	}

	runs, err := f.store.ListRuns(context.Background(), 0)
	if err != nil || len(runs) != 3 {
		t.Fatalf("expected 3 stored runs, got %d (%v)", len(runs), err)
	}
}

func TestExperienceGateNeverQualifies(t *testing.T) {
	t.Parallel()

	f := newFixture(t, pythonPosting+" 2 years")
	f.source.set("python", pythonJob("7", domain.ExperienceRange{Min: 8, Max: 10}))

	report := f.run(t, domain.ModeFull)
	if report.Run.Scored != 1 || report.Run.NewlyQualifying != 0 || f.notifier.count() != 0 {
		t.Fatalf("unexpected report %+v", report.Run)
	}

	rec, err := f.store.GetMatch(context.Background(), "7", "alice.txt")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Score != 69 || !rec.Breakdown.Capped || rec.Breakdown.ExperienceOK {
		t.Fatalf("expected capped score, got %+v", rec)
	}
}

func TestRunResumesAfterFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "Python developer with SQL experience, 3 years")
	f.cfg.Workers = 1
	f.cfg.Searches = []source.Query{{Key: "a"}, {Key: "b"}}
	f.source.set("a", pythonJob("a1", domain.ExperienceRange{}), pythonJob("a2", domain.ExperienceRange{}))
	f.source.set("b", pythonJob("b1", domain.ExperienceRange{}), pythonJob("b2", domain.ExperienceRange{}))
	f.source.failAt["b"] = 1

	p, err := New(f.cfg, f.deps)
	if err != nil {
		t.Fatal(err)
	}
	report, err := p.Run(context.Background(), domain.ModeScrape)
	if err == nil {
		t.Fatalf("expected the run to fail")
	}
	if report.Run.State != domain.StateFailed || report.Run.Error == "" {
		t.Fatalf("unexpected failed report %+v", report.Run)
	}

	ctx := context.Background()
	cpA, err := f.store.GetCheckpoint(ctx, "a")
	if err != nil || !cpA.Cursor.Exhausted || cpA.Cursor.Page != 2 {
		t.Fatalf("expected exhausted checkpoint for a, got %+v (%v)", cpA, err)
	}
	cpB, err := f.store.GetCheckpoint(ctx, "b")
	if err != nil || cpB.Cursor.Exhausted || cpB.Cursor.Page != 1 || cpB.Cursor.LastPostingID != "b1" {
		t.Fatalf("expected checkpoint after first page of b, got %+v (%v)", cpB, err)
	}
	if _, err := f.store.GetPosting(ctx, "b2"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("b2 must not be stored yet, got %v", err)
	}

	report = f.run(t, domain.ModeScrape)
	if report.Run.Ingested != 1 {
		t.Fatalf("expected only the missing page to be ingested, got %+v", report.Run)
	}
	if got := f.source.pages("a"); !slices.Equal(got, []int{0, 1}) {
		t.Fatalf("query a must not be fetched again, got pages %v", got)
	}
	if got := f.source.pages("b"); !slices.Equal(got, []int{0, 1, 1}) {
		t.Fatalf("query b must resume from its checkpoint, got pages %v", got)
	}

	postings, err := f.store.ListPostings(ctx)
	if err != nil || len(postings) != 4 {
		t.Fatalf("expected 4 postings, got %d (%v)", len(postings), err)
	}
	matches, err := f.store.ListMatches(ctx)
	if err != nil || len(matches) != 0 {
		t.Fatalf("scrape mode must not score, got %d matches (%v)", len(matches), err)
	}

	runs, err := f.store.ListRuns(ctx, 0)
	if err != nil || len(runs) != 2 {
		t.Fatalf("expected both runs to be recorded, got %d (%v)", len(runs), err)
	}
}

func TestContentChangeAllowsSecondNotification(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "Python developer with SQL experience, 3 years")
	f.source.set("python", pythonJob("42", domain.ExperienceRange{Min: 2, Max: 5}))
	f.run(t, domain.ModeFull)

	changed := pythonJob("42", domain.ExperienceRange{Min: 2, Max: 5})
	changed.Description += " Remote friendly."
	f.source.set("python", changed)

	report := f.run(t, domain.ModeFull)
	if report.ChangedPostings != 1 || report.Run.Scored != 1 || report.Run.Notified != 1 {
		t.Fatalf("expected changed posting to be rescored and notified, got %+v", report)
	}
	if f.notifier.count() != 2 {
		t.Fatalf("expected two notifications, got %d", f.notifier.count())
	}
}

func TestResumeChangeRescoresWithoutRenotifying(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "Python developer with SQL experience, 3 years")
	f.source.set("python", pythonJob("42", domain.ExperienceRange{Min: 2, Max: 5}))
	f.run(t, domain.ModeFull)

	f.writeResume(t, "alice.txt", "Senior Python developer with SQL experience, 4 years")
	report := f.run(t, domain.ModeMatch)
	if report.Run.Scored != 1 || report.Run.Notified != 0 {
		t.Fatalf("expected rescore without notification, got %+v", report.Run)
	}

	res, err := f.store.GetResume(context.Background(), "alice.txt")
	if err != nil || res.ExperienceYears != 4 {
		t.Fatalf("expected reparsed resume, got %+v (%v)", res, err)
	}
}

func TestRejectedAndFailedNotificationsStayPending(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "Python developer with SQL experience, 3 years")
	f.source.set("python", pythonJob("42", domain.ExperienceRange{Min: 2, Max: 5}))
	f.notifier.outcomes = []outcome{
		{result: notify.Rejected},
		{result: notify.Rejected, err: errors.New("webhook responded with 502 Bad Gateway")},
		{result: notify.Rejected, err: fmt.Errorf("%w: 422", notify.ErrRejected)},
	}

	report := f.run(t, domain.ModeFull)
	if report.Rejected != 1 || report.Pending != 1 || report.Run.Notified != 0 {
		t.Fatalf("unexpected report %+v", report)
	}

	report = f.run(t, domain.ModeMatch)
	if len(report.Run.Skipped) != 1 || report.Run.Skipped[0].Kind != "notification" || report.Pending != 1 {
		t.Fatalf("expected failed notification to be reported, got %+v", report.Run)
	}

	report = f.run(t, domain.ModeMatch)
	if report.Rejected != 1 || report.Pending != 1 {
		t.Fatalf("unexpected report %+v", report)
	}

	report = f.run(t, domain.ModeMatch)
	if report.Run.Notified != 1 || report.Pending != 0 || f.notifier.count() != 4 {
		t.Fatalf("expected delivery on the fourth attempt, got %+v", report)
	}
}

func TestConfirmAndFilters(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "Python developer with SQL experience, 3 years")
	f.source.set("python",
		pythonJob("42", domain.ExperienceRange{Min: 2, Max: 5}),
		domain.Posting{ID: "43", Title: "Python developer", Company: "Globex", Description: pythonPosting},
	)
	f.deps.Filters = []filtering.Filter{filtering.NewExcludedCompanies([]string{"globex"})}

	asked := 0
	f.deps.Confirm = func(_ context.Context, pending []*domain.MatchRecord) (bool, error) {
		asked++
		return asked > 1, nil
	}

	report := f.run(t, domain.ModeFull)
	if report.Run.Scored != 1 || report.Run.Notified != 0 || report.Pending != 1 || f.notifier.count() != 0 {
		t.Fatalf("expected postponed notification, got %+v", report)
	}
	if len(report.Filters) != 1 || report.Filters[0].Dropped != 1 {
		t.Fatalf("unexpected filter steps %+v", report.Filters)
	}

	report = f.run(t, domain.ModeMatch)
	if report.Run.Notified != 1 || asked != 2 {
		t.Fatalf("expected notification after confirmation, got %+v", report.Run)
	}
}

func postponeOnce(f *fixture) {
	asked := 0
	f.deps.Confirm = func(context.Context, []*domain.MatchRecord) (bool, error) {
		asked++
		return asked > 1, nil
	}
}

func TestFilteredPendingIsHeldBack(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "Python developer with SQL experience, 3 years")
	f.source.set("python", pythonJob("42", domain.ExperienceRange{Min: 2, Max: 5}))
	postponeOnce(f)

	report := f.run(t, domain.ModeFull)
	if report.Pending != 1 || f.notifier.count() != 0 {
		t.Fatalf("expected one postponed match, got %+v", report)
	}

	f.deps.Filters = []filtering.Filter{filtering.NewExcludedCompanies([]string{"acme"})}
	report = f.run(t, domain.ModeMatch)
	if report.Run.Notified != 0 || report.Pending != 0 || f.notifier.count() != 0 {
		t.Fatalf("excluded posting must not be notified, got %+v", report)
	}
	if ok, err := f.store.ShouldNotify(context.Background(), "42", "alice.txt"); err != nil || !ok {
		t.Fatalf("held back match must stay pending in the store, got %v (%v)", ok, err)
	}

	f.deps.Filters = nil
	report = f.run(t, domain.ModeMatch)
	if report.Run.Notified != 1 || f.notifier.count() != 1 {
		t.Fatalf("expected notification once the filter is gone, got %+v", report)
	}
}

func TestRemovedResumeIsNotNotified(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "Python developer with SQL experience, 3 years")
	f.source.set("python", pythonJob("42", domain.ExperienceRange{Min: 2, Max: 5}))
	postponeOnce(f)

	report := f.run(t, domain.ModeFull)
	if report.Pending != 1 {
		t.Fatalf("expected one postponed match, got %+v", report)
	}

	if err := os.Remove(filepath.Join(f.dir, "alice.txt")); err != nil {
		t.Fatal(err)
	}
	report = f.run(t, domain.ModeMatch)
	if report.Resumes != 0 || report.Run.Notified != 0 || f.notifier.count() != 0 {
		t.Fatalf("removed resume must not be notified, got %+v", report)
	}
}

func TestParseFailuresAreSkipped(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "Python developer with SQL experience, 3 years")
	f.writeResume(t, "broken.pdf", "not a pdf")
	f.source.set("python", pythonJob("42", domain.ExperienceRange{Min: 2, Max: 5}))

	report := f.run(t, domain.ModeFull)
	if report.Resumes != 1 || len(report.Run.Skipped) != 1 || report.Run.Skipped[0].Kind != "resume" {
		t.Fatalf("expected the broken resume to be skipped, got %+v", report)
	}
	if report.Run.Notified != 1 {
		t.Fatalf("the remaining resume must still be matched, got %+v", report.Run)
	}
}

type busyLocker struct{}

func (busyLocker) Acquire(context.Context) (context.Context, func(), error) {
	return nil, nil, lock.ErrLocked
}

// lostLocker hands out a lock whose context already ended with ErrLost.
type lostLocker struct{}

func (lostLocker) Acquire(ctx context.Context) (context.Context, func(), error) {
	locked, cancel := context.WithCancelCause(ctx)
	cancel(lock.ErrLost)
	return locked, func() {}, nil
}

func TestRunErrors(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "Python developer")

	locked := f.deps
	locked.Locker = busyLocker{}
	p, err := New(f.cfg, locked)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Run(context.Background(), domain.ModeFull); !errors.Is(err, lock.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}

	lost := f.deps
	lost.Locker = lostLocker{}
	p, err = New(f.cfg, lost)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Run(context.Background(), domain.ModeFull); !errors.Is(err, lock.ErrLost) {
		t.Fatalf("expected ErrLost, got %v", err)
	}
	if f.notifier.count() != 0 {
		t.Fatalf("nothing may be notified without the lock")
	}

	noSource := f.deps
	noSource.Source = nil
	p, err = New(f.cfg, noSource)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Run(context.Background(), domain.ModeScrape); err == nil {
		t.Fatalf("expected error for missing source")
	}
	if _, err := p.Run(context.Background(), domain.Mode("everything")); err == nil {
		t.Fatalf("expected error for unknown mode")
	}

	if _, err := New(f.cfg, Deps{}); err == nil {
		t.Fatalf("expected error for missing store")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p, err = New(f.cfg, f.deps)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Run(ctx, domain.ModeFull); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
