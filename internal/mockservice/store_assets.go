package mockservice

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

type modelRow struct {
	ID         string
	Name       string
	URL        string
	Thumb      string
	RigID      string
	Platform   string
	CreatedMS  int64
	ModifiedMS int64
}

var stockModels = []modelRow{
	{ID: "stock-ybot", Name: "Y Bot", RigID: "humanoid", Platform: "stock"},
	{ID: "stock-xbot", Name: "X Bot", RigID: "humanoid", Platform: "stock"},
}

func (s *Store) seedModels(ctx context.Context) error {
	now := nowMillis()
	for _, m := range stockModels {
		if _, err := s.execWithRetry(ctx,
			`INSERT OR IGNORE INTO models (id, name, url, thumb, rig_id, platform, created_ms, modified_ms)
			 VALUES (?, ?, '', '', ?, ?, ?, ?)`,
			m.ID, m.Name, m.RigID, m.Platform, now, now); err != nil {
			return fmt.Errorf("seed model %s: %w", m.ID, err)
		}
	}
	return nil
}

type modelFilter struct {
	ID           string
	Search       string
	IncludeStock bool
}

func (s *Store) listModels(ctx context.Context, f modelFilter) ([]modelRow, error) {
	var (
		where []string
		args  []any
	)
	if f.ID != "" {
		where = append(where, "id = ?")
		args = append(args, f.ID)
	}
	if f.Search != "" {
		where = append(where, "LOWER(name) LIKE ?")
		args = append(args, "%"+strings.ToLower(f.Search)+"%")
	}
	if !f.IncludeStock {
		where = append(where, "platform = 'custom'")
	}
	query := `SELECT id, name, url, thumb, rig_id, platform, created_ms, modified_ms FROM models`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY platform DESC, name, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer rows.Close()
	var out []modelRow
	for rows.Next() {
		var m modelRow
		if err := rows.Scan(&m.ID, &m.Name, &m.URL, &m.Thumb, &m.RigID, &m.Platform, &m.CreatedMS, &m.ModifiedMS); err != nil {
			return nil, fmt.Errorf("scan model: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) upsertModel(ctx context.Context, m modelRow) error {
	now := nowMillis()
	_, err := s.execWithRetry(ctx,
		`INSERT INTO models (id, name, url, thumb, rig_id, platform, created_ms, modified_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, url = excluded.url,
		   thumb = excluded.thumb, modified_ms = excluded.modified_ms`,
		m.ID, m.Name, m.URL, m.Thumb, m.RigID, m.Platform, now, now)
	if err != nil {
		return fmt.Errorf("store model %s: %w", m.ID, err)
	}
	return nil
}

// deleteModel removes a custom model. Stock models cannot be deleted.
func (s *Store) deleteModel(ctx context.Context, id string) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM models WHERE id = ? AND platform = 'custom'`, id)
	if err != nil {
		return 0, fmt.Errorf("delete model %s: %w", id, err)
	}
	return res.RowsAffected()
}

func (s *Store) putBlob(ctx context.Context, key, contentType string, data []byte) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO blobs (key, content_type, data) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET content_type = excluded.content_type, data = excluded.data`,
		key, contentType, data)
	if err != nil {
		return fmt.Errorf("store blob %s: %w", key, err)
	}
	return nil
}

func (s *Store) blob(ctx context.Context, key string) ([]byte, string, bool, error) {
	var (
		data        []byte
		contentType string
	)
	err := s.db.QueryRowContext(ctx, `SELECT data, content_type FROM blobs WHERE key = ?`, key).Scan(&data, &contentType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", false, nil
	}
	if err != nil {
		return nil, "", false, fmt.Errorf("load blob %s: %w", key, err)
	}
	return data, contentType, true, nil
}

func (s *Store) blobSize(ctx context.Context, key string) (int64, error) {
	var size int64
	err := s.db.QueryRowContext(ctx, `SELECT LENGTH(data) FROM blobs WHERE key = ?`, key).Scan(&size)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return size, err
}

func (s *Store) insertToken(ctx context.Context, token string, expiresMS int64) error {
	_, err := s.execWithRetry(ctx, `INSERT INTO tokens (token, expires_ms) VALUES (?, ?)`, token, expiresMS)
	if err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	return nil
}

func (s *Store) tokenValid(ctx context.Context, token string, nowMS int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM tokens WHERE token = ? AND expires_ms > ?`, token, nowMS).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check token: %w", err)
	}
	return n > 0, nil
}
