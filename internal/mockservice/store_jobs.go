package mockservice

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// jobKind distinguishes how a mock job was created.
type jobKind string

const (
	kindSingle    jobKind = "single"
	kindDetection jobKind = "detection"
	kindMulti     jobKind = "multi"
	kindRerun     jobKind = "rerun"
)

type jobRow struct {
	RID          string
	Kind         jobKind
	Tick         int
	Status       string
	MediaURL     string
	MediaName    string
	MediaSize    int64
	Params       []string
	SourceRID    string
	DetectionRID string
	Models       string
	CreatedMS    int64
	ModifiedMS   int64
}

const jobColumns = `rid, kind, tick, status, media_url, media_name, media_size, params,
	source_rid, detection_rid, models, created_ms, modified_ms`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (jobRow, error) {
	var (
		j      jobRow
		kind   string
		params string
	)
	if err := row.Scan(&j.RID, &kind, &j.Tick, &j.Status, &j.MediaURL, &j.MediaName, &j.MediaSize,
		&params, &j.SourceRID, &j.DetectionRID, &j.Models, &j.CreatedMS, &j.ModifiedMS); err != nil {
		return jobRow{}, err
	}
	j.Kind = jobKind(kind)
	if err := json.Unmarshal([]byte(params), &j.Params); err != nil {
		return jobRow{}, fmt.Errorf("decode stored params of %s: %w", j.RID, err)
	}
	return j, nil
}

func (s *Store) insertJob(ctx context.Context, j jobRow) error {
	params, err := json.Marshal(j.Params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	now := nowMillis()
	_, err = s.execWithRetry(ctx, `INSERT INTO jobs (`+jobColumns+`)
		VALUES (?, ?, 0, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.RID, string(j.Kind), j.Status, j.MediaURL, j.MediaName, j.MediaSize, string(params),
		j.SourceRID, j.DetectionRID, j.Models, now, now)
	if err != nil {
		return fmt.Errorf("insert job %s: %w", j.RID, err)
	}
	return nil
}

func (s *Store) job(ctx context.Context, rid string) (jobRow, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE rid = ?`, rid)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return jobRow{}, false, nil
	}
	if err != nil {
		return jobRow{}, false, fmt.Errorf("load job %s: %w", rid, err)
	}
	return j, true, nil
}

// advanceJob moves a job from tick `from` to the next tick. Concurrent
// queries of the same job advance it once.
func (s *Store) advanceJob(ctx context.Context, rid string, from int, status string) error {
	_, err := s.execWithRetry(ctx,
		`UPDATE jobs SET tick = ?, status = ?, modified_ms = ? WHERE rid = ? AND tick = ?`,
		from+1, status, nowMillis(), rid, from)
	if err != nil {
		return fmt.Errorf("advance job %s: %w", rid, err)
	}
	return nil
}

func (s *Store) listJobs(ctx context.Context, statuses []string) ([]jobRow, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (?` + strings.Repeat(", ?", len(statuses)-1) + `)`
		for _, st := range statuses {
			args = append(args, st)
		}
	}
	query += ` ORDER BY created_ms, rid`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []jobRow
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// charge deducts amount from the account balance. It reports false when
// the balance is insufficient.
func (s *Store) charge(ctx context.Context, amount float64) (bool, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE account SET credits = credits - ? WHERE id = 1 AND credits >= ?`, amount, amount)
	if err != nil {
		return false, fmt.Errorf("charge credits: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("charge credits: %w", err)
	}
	return n == 1, nil
}

func (s *Store) credits(ctx context.Context) (float64, error) {
	var credits float64
	err := s.db.QueryRowContext(ctx, `SELECT credits FROM account WHERE id = 1`).Scan(&credits)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read credits: %w", err)
	}
	return credits, nil
}

// seedAccount sets the starting balance once; later opens keep the balance.
func (s *Store) seedAccount(ctx context.Context, credits float64) error {
	_, err := s.execWithRetry(ctx, `INSERT OR IGNORE INTO account (id, credits) VALUES (1, ?)`, credits)
	if err != nil {
		return fmt.Errorf("seed account: %w", err)
	}
	return nil
}
