package report

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spigell/job-seeker/internal/domain"
	"github.com/spigell/job-seeker/internal/filtering"
	"github.com/spigell/job-seeker/internal/pipeline"
	"github.com/spigell/job-seeker/internal/store"
	"github.com/spigell/job-seeker/internal/store/boltstore"

	"gopkg.in/yaml.v3"
)

func seededStore(t *testing.T) *store.Store {
	t.Helper()

	db, err := boltstore.Open(filepath.Join(t.TempDir(), "state.db"), time.Second)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	st := store.New(db, 70)
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	for _, p := range []domain.Posting{
		{ID: "1", Title: "Go developer", Company: "Acme", Description: "go"},
		{ID: "2", Title: "SRE", Company: "Globex", Description: "linux"},
	} {
		if _, err := st.UpsertPosting(ctx, p); err != nil {
			t.Fatal(err)
		}
	}
	for _, rec := range []domain.MatchRecord{
		{JobID: "1", ResumeID: "alice.txt", Score: 90},
		{JobID: "2", ResumeID: "alice.txt", Score: 40},
	} {
		if _, err := st.RecordMatch(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}
	if err := st.MarkNotified(ctx, "1", "alice.txt"); err != nil {
		t.Fatal(err)
	}

	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"run-1", "run-2", "run-3"} {
		rec := &domain.RunRecord{
			ID:         id,
			Mode:       domain.ModeFull,
			State:      domain.StateDone,
			StartedAt:  started.Add(time.Duration(i) * time.Hour),
			FinishedAt: started.Add(time.Duration(i)*time.Hour + time.Minute),
		}
		if err := st.SaveRun(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	return st
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		expect  Format
		wantErr bool
	}{
		{in: "", expect: FormatTable},
		{in: "TABLE", expect: FormatTable},
		{in: " json ", expect: FormatJSON},
		{in: "yaml", expect: FormatYAML},
		{in: "csv", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.expect {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestBuildAndWrite(t *testing.T) {
	t.Parallel()

	st := seededStore(t)

	summary, err := Build(context.Background(), st, 2)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if summary.Stats.Postings != 2 || summary.Stats.Qualifying != 1 || summary.Stats.Notified != 1 {
		t.Fatalf("unexpected stats %+v", summary.Stats)
	}
	if len(summary.Runs) != 2 || summary.Runs[0].ID != "run-3" {
		t.Fatalf("expected the two most recent runs, got %+v", summary.Runs)
	}

	t.Run("table", func(t *testing.T) {
		var buf bytes.Buffer
		if err := Write(&buf, summary, FormatTable); err != nil {
			t.Fatal(err)
		}
		out := buf.String()
		for _, want := range []string{"Qualifying (>= 70)", "Average score", "Acme", "run-3", "COMPANY"} {
			if !strings.Contains(out, want) {
				t.Errorf("table output misses %q:\n%s", want, out)
			}
		}
		if strings.Contains(out, "Globex") {
			t.Errorf("non qualifying company must not be listed:\n%s", out)
		}
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		if err := Write(&buf, summary, FormatJSON); err != nil {
			t.Fatal(err)
		}
		var decoded struct {
			Stats struct {
				Matches int `json:"matches"`
			} `json:"stats"`
			Runs []struct {
				ID string `json:"id"`
			} `json:"runs"`
		}
		if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("invalid json: %v", err)
		}
		if decoded.Stats.Matches != 2 || len(decoded.Runs) != 2 {
			t.Fatalf("unexpected json %s", buf.String())
		}
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		if err := Write(&buf, summary, FormatYAML); err != nil {
			t.Fatal(err)
		}
		var decoded map[string]any
		if err := yaml.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("invalid yaml: %v", err)
		}
		if !strings.Contains(buf.String(), "average_score:") || !strings.Contains(buf.String(), "newly_qualifying:") {
			t.Fatalf("expected snake case keys:\n%s", buf.String())
		}
	})
}

func TestWriteRun(t *testing.T) {
	t.Parallel()

	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	r := &pipeline.Report{
		Run: domain.RunRecord{
			ID:         "run-1",
			Mode:       domain.ModeFull,
			State:      domain.StateFailed,
			Ingested:   3,
			StartedAt:  started,
			FinishedAt: started.Add(1500 * time.Millisecond),
			Error:      "ingest: connection reset by peer",
			Skipped:    []domain.SkippedItem{{Kind: "resume", ID: "broken.pdf", Reason: "corrupt document"}},
		},
		CreatedPostings: 2,
		ChangedPostings: 1,
		Filters:         []filtering.Step{{Name: "excluded_companies", Initial: 3, Dropped: 1, Left: 2}},
	}

	var buf bytes.Buffer
	if err := WriteRun(&buf, r, FormatTable); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"3 (2 new, 1 changed)", "1.5s", "connection reset by peer", "excluded_companies", "broken.pdf"} {
		if !strings.Contains(out, want) {
			t.Errorf("run output misses %q:\n%s", want, out)
		}
	}

	buf.Reset()
	if err := WriteRun(&buf, r, FormatYAML); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "created_postings: 2") {
		t.Fatalf("unexpected yaml:\n%s", buf.String())
	}
}

func TestWriteCheckpoints(t *testing.T) {
	t.Parallel()

	cps := []*domain.Checkpoint{{
		QueryKey:  "golang-berlin",
		Cursor:    domain.Cursor{Page: 3, Offset: 300, LastPostingID: "777"},
		UpdatedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}}

	var buf bytes.Buffer
	if err := WriteCheckpoints(&buf, cps, FormatTable); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"LAST POSTING", "golang-berlin", "777", "2026-03-01T10:00:00Z"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("checkpoint table misses %q:\n%s", want, buf.String())
		}
	}

	buf.Reset()
	if err := WriteCheckpoints(&buf, cps, FormatJSON); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"query_key": "golang-berlin"`) {
		t.Fatalf("unexpected json:\n%s", buf.String())
	}
}
