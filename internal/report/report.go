// Package report renders the store statistics and run outcomes for the CLI.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spigell/job-seeker/internal/domain"
	"github.com/spigell/job-seeker/internal/pipeline"
	"github.com/spigell/job-seeker/internal/store"

	"gopkg.in/yaml.v3"
)

type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

const defaultRuns = 10

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatTable:
		return FormatTable, nil
	case FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unknown format %q, expected one of table, json, yaml", s)
	}
}

// Summary is the content of the report command.
type Summary struct {
	Stats *store.Stats        `json:"stats" yaml:"stats"`
	Runs  []*domain.RunRecord `json:"runs" yaml:"runs"`
}

// Build collects the statistics and the last runs. runs <= 0 uses the default.
func Build(ctx context.Context, st *store.Store, runs int) (*Summary, error) {
	if runs <= 0 {
		runs = defaultRuns
	}

	stats, err := st.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("collecting stats: %w", err)
	}

	recent, err := st.ListRuns(ctx, runs)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	return &Summary{Stats: stats, Runs: recent}, nil
}

func Write(w io.Writer, s *Summary, f Format) error {
	switch f {
	case FormatJSON:
		return writeJSON(w, s)
	case FormatYAML:
		return writeYAML(w, s)
	default:
		return writeSummaryTable(w, s)
	}
}

// WriteRun prints the outcome of a single pipeline run.
func WriteRun(w io.Writer, r *pipeline.Report, f Format) error {
	switch f {
	case FormatJSON:
		return writeJSON(w, r)
	case FormatYAML:
		return writeYAML(w, r)
	default:
		return writeRunTable(w, r)
	}
}

// WriteCheckpoints prints the stored search cursors.
func WriteCheckpoints(w io.Writer, cps []*domain.Checkpoint, f Format) error {
	switch f {
	case FormatJSON:
		return writeJSON(w, cps)
	case FormatYAML:
		return writeYAML(w, cps)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "QUERY\tPAGE\tOFFSET\tLAST POSTING\tEXHAUSTED\tUPDATED")
	for _, cp := range cps {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%t\t%s\n",
			cp.QueryKey, cp.Cursor.Page, cp.Cursor.Offset, cp.Cursor.LastPostingID, cp.Cursor.Exhausted, formatTime(cp.UpdatedAt))
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func writeSummaryTable(w io.Writer, s *Summary) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	st := s.Stats

	fmt.Fprintf(tw, "Postings\t%d\n", st.Postings)
	fmt.Fprintf(tw, "Resumes\t%d\n", st.Resumes)
	fmt.Fprintf(tw, "Matches\t%d\n", st.Matches)
	fmt.Fprintf(tw, "Qualifying (>= %d)\t%d\n", st.Threshold, st.Qualifying)
	fmt.Fprintf(tw, "Notified\t%d\n", st.Notified)
	fmt.Fprintf(tw, "Pending\t%d\n", st.Pending)
	fmt.Fprintf(tw, "Stale\t%d\n", st.Stale)
	fmt.Fprintf(tw, "Average score\t%.1f\n", st.AverageScore)

	if len(st.TopCompanies) > 0 {
		fmt.Fprintln(tw, "\nCOMPANY\tQUALIFYING")
		for _, c := range st.TopCompanies {
			fmt.Fprintf(tw, "%s\t%d\n", c.Company, c.Qualifying)
		}
	}

	if len(st.Checkpoints) > 0 {
		fmt.Fprintln(tw, "\nQUERY\tPAGE\tOFFSET\tEXHAUSTED\tUPDATED")
		for _, cp := range st.Checkpoints {
			fmt.Fprintf(tw, "%s\t%d\t%d\t%t\t%s\n",
				cp.QueryKey, cp.Cursor.Page, cp.Cursor.Offset, cp.Cursor.Exhausted, formatTime(cp.UpdatedAt))
		}
	}

	if len(s.Runs) > 0 {
		fmt.Fprintln(tw, "\nRUN\tMODE\tSTATE\tINGESTED\tSCORED\tNEW\tNOTIFIED\tSKIPPED\tSTARTED\tERROR")
		for _, r := range s.Runs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\t%s\n",
				r.ID, r.Mode, r.State, r.Ingested, r.Scored, r.NewlyQualifying, r.Notified,
				len(r.Skipped), formatTime(r.StartedAt), r.Error)
		}
	}

	return tw.Flush()
}

func writeRunTable(w io.Writer, r *pipeline.Report) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	run := r.Run

	fmt.Fprintf(tw, "Run\t%s\n", run.ID)
	fmt.Fprintf(tw, "Mode\t%s\n", run.Mode)
	fmt.Fprintf(tw, "State\t%s\n", run.State)
	fmt.Fprintf(tw, "Ingested\t%d (%d new, %d changed)\n", run.Ingested, r.CreatedPostings, r.ChangedPostings)
	fmt.Fprintf(tw, "Resumes\t%d\n", r.Resumes)
	fmt.Fprintf(tw, "Scored\t%d\n", run.Scored)
	fmt.Fprintf(tw, "Newly qualifying\t%d\n", run.NewlyQualifying)
	fmt.Fprintf(tw, "Notified\t%d\n", run.Notified)
	fmt.Fprintf(tw, "Rejected\t%d\n", r.Rejected)
	fmt.Fprintf(tw, "Pending\t%d\n", r.Pending)
	if !run.FinishedAt.IsZero() {
		fmt.Fprintf(tw, "Duration\t%s\n", run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
	}
	if run.Error != "" {
		fmt.Fprintf(tw, "Error\t%s\n", run.Error)
	}

	if len(r.Filters) > 0 {
		fmt.Fprintln(tw, "\nFILTER\tINITIAL\tDROPPED\tLEFT")
		for _, s := range r.Filters {
			fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", s.Name, s.Initial, s.Dropped, s.Left)
		}
	}

	if len(run.Skipped) > 0 {
		fmt.Fprintln(tw, "\nSKIPPED\tID\tREASON")
		for _, s := range run.Skipped {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Kind, s.ID, s.Reason)
		}
	}

	return tw.Flush()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
