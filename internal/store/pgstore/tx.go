package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/spigell/job-seeker/internal/domain"
	"github.com/spigell/job-seeker/internal/store"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type table struct {
	name string
	keys []string
}

var (
	tablePostings    = table{name: "postings", keys: []string{"id"}}
	tableResumes     = table{name: "resumes", keys: []string{"id"}}
	tableMatches     = table{name: "match_records", keys: []string{"job_id", "resume_id"}}
	tableCheckpoints = table{name: "checkpoints", keys: []string{"query_key"}}
	tableRuns        = table{name: "runs", keys: []string{"id"}}
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type tx struct {
	ctx context.Context
	q   querier
}

var _ store.Tx = (*tx)(nil)

func selectData(t table, where sq.Sqlizer) sq.SelectBuilder {
	b := psql.Select("data").From(t.name).OrderBy(t.keys...)
	if where != nil {
		b = b.Where(where)
	}
	return b
}

// upsertRow inserts a row or overwrites every non-key column of the existing one.
func upsertRow(t table, values map[string]any) sq.InsertBuilder {
	var updates []string
	for _, col := range slices.Sorted(maps.Keys(values)) {
		if !slices.Contains(t.keys, col) {
			updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
		}
	}

	return psql.Insert(t.name).SetMap(values).Suffix(fmt.Sprintf(
		"ON CONFLICT (%s) DO UPDATE SET %s",
		strings.Join(t.keys, ", "), strings.Join(updates, ", "),
	))
}

func deleteRow(t table, where sq.Eq) sq.DeleteBuilder {
	return psql.Delete(t.name).Where(where)
}

func get[T any](t *tx, tbl table, where sq.Eq) (*T, error) {
	query, args, err := selectData(tbl, where).ToSql()
	if err != nil {
		return nil, err
	}

	var data []byte
	if err := t.q.QueryRow(t.ctx, query, args...).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("reading %s: %w", tbl.name, err)
	}

	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", tbl.name, err)
	}
	return &v, nil
}

func list[T any](t *tx, tbl table, where sq.Sqlizer) ([]*T, error) {
	query, args, err := selectData(tbl, where).ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := t.q.Query(t.ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", tbl.name, err)
	}
	docs, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", tbl.name, err)
	}

	out := make([]*T, 0, len(docs))
	for _, data := range docs {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", tbl.name, err)
		}
		out = append(out, &v)
	}
	return out, nil
}

func put(t *tx, tbl table, columns map[string]any, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", tbl.name, err)
	}
	columns["data"] = data

	query, args, err := upsertRow(tbl, columns).ToSql()
	if err != nil {
		return err
	}
	if _, err := t.q.Exec(t.ctx, query, args...); err != nil {
		return fmt.Errorf("writing %s: %w", tbl.name, err)
	}
	return nil
}

func (t *tx) GetPosting(id string) (*domain.Posting, error) {
	return get[domain.Posting](t, tablePostings, sq.Eq{"id": id})
}

func (t *tx) PutPosting(p *domain.Posting) error {
	return put(t, tablePostings, map[string]any{"id": p.ID}, p)
}

func (t *tx) ListPostings() ([]*domain.Posting, error) {
	return list[domain.Posting](t, tablePostings, nil)
}

func (t *tx) GetResume(id string) (*domain.Resume, error) {
	return get[domain.Resume](t, tableResumes, sq.Eq{"id": id})
}

func (t *tx) PutResume(r *domain.Resume) error {
	return put(t, tableResumes, map[string]any{"id": r.ID}, r)
}

func (t *tx) ListResumes() ([]*domain.Resume, error) {
	return list[domain.Resume](t, tableResumes, nil)
}

func (t *tx) GetMatch(jobID, resumeID string) (*domain.MatchRecord, error) {
	return get[domain.MatchRecord](t, tableMatches, sq.Eq{"job_id": jobID, "resume_id": resumeID})
}

func (t *tx) PutMatch(rec *domain.MatchRecord) error {
	return put(t, tableMatches, map[string]any{"job_id": rec.JobID, "resume_id": rec.ResumeID}, rec)
}

func (t *tx) MatchesForJob(jobID string) ([]*domain.MatchRecord, error) {
	return list[domain.MatchRecord](t, tableMatches, sq.Eq{"job_id": jobID})
}

func (t *tx) ListMatches() ([]*domain.MatchRecord, error) {
	return list[domain.MatchRecord](t, tableMatches, nil)
}

func (t *tx) GetCheckpoint(queryKey string) (*domain.Checkpoint, error) {
	return get[domain.Checkpoint](t, tableCheckpoints, sq.Eq{"query_key": queryKey})
}

func (t *tx) PutCheckpoint(cp *domain.Checkpoint) error {
	return put(t, tableCheckpoints, map[string]any{"query_key": cp.QueryKey}, cp)
}

func (t *tx) DeleteCheckpoint(queryKey string) error {
	query, args, err := deleteRow(tableCheckpoints, sq.Eq{"query_key": queryKey}).ToSql()
	if err != nil {
		return err
	}
	if _, err := t.q.Exec(t.ctx, query, args...); err != nil {
		return fmt.Errorf("deleting checkpoint: %w", err)
	}
	return nil
}

func (t *tx) ListCheckpoints() ([]*domain.Checkpoint, error) {
	return list[domain.Checkpoint](t, tableCheckpoints, nil)
}

func (t *tx) PutRun(r *domain.RunRecord) error {
	return put(t, tableRuns, map[string]any{"id": r.ID, "started_at": r.StartedAt}, r)
}

func (t *tx) ListRuns() ([]*domain.RunRecord, error) {
	return list[domain.RunRecord](t, tableRuns, nil)
}
