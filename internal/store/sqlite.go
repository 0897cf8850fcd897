package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/yokitheyo/gamdlbot/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS users(
	user_id    INTEGER PRIMARY KEY,
	username   TEXT,
	is_admin   INTEGER,
	is_allowed INTEGER,
	locale     TEXT,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS downloads(
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id    INTEGER,
	url        TEXT,
	title      TEXT,
	artist     TEXT,
	album      TEXT,
	art_url    TEXT,
	preset     TEXT,
	mode       TEXT,
	status     TEXT,
	error      TEXT,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);`

type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies
// the schema.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) RecordUser(ctx context.Context, u model.UserRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users(user_id, username, is_admin, is_allowed, locale, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (user_id) DO UPDATE SET
			username = excluded.username,
			is_admin = excluded.is_admin,
			is_allowed = excluded.is_allowed,
			locale = excluded.locale,
			updated_at = CURRENT_TIMESTAMP`,
		u.UserID, nullString(u.Username), boolInt(u.IsAdmin), boolInt(u.IsAllowed), u.Locale)
	if err != nil {
		return fmt.Errorf("upsert user %d: %w", u.UserID, err)
	}
	return nil
}

func (s *SQLite) RecordDownload(ctx context.Context, d model.DownloadRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO downloads(user_id, url, title, artist, album, art_url, preset, mode, status, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.UserID, d.URL, nullString(d.Title), nullString(d.Artist), nullString(d.Album),
		nullString(d.ArtURL), d.Preset, string(d.Mode), d.Status, nullString(d.Error))
	if err != nil {
		return fmt.Errorf("insert download: %w", err)
	}
	return nil
}

// DownloadCounts returns attempts grouped by status.
func (s *SQLite) DownloadCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM downloads GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var status sql.NullString
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		out[status.String] += n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return out, nil
}

type DownloadRow struct {
	model.DownloadRecord
	CreatedAt time.Time
}

// RecentDownloads lists the newest attempts first.
func (s *SQLite) RecentDownloads(ctx context.Context, limit int) ([]DownloadRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, url, title, artist, album, art_url, preset, mode, status, error, created_at
		FROM downloads ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var out []DownloadRow
	for rows.Next() {
		var r DownloadRow
		var title, artist, album, art, errText sql.NullString
		var mode string
		var created any
		if err := rows.Scan(&r.UserID, &r.URL, &title, &artist, &album, &art, &r.Preset, &mode, &r.Status, &errText, &created); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		r.Title, r.Artist, r.Album, r.ArtURL, r.Error = title.String, artist.String, album.String, art.String, errText.String
		r.Mode = model.SendMode(mode)
		r.CreatedAt = asTime(created)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return out, nil
}

// asTime accepts either a driver-parsed time or SQLite's text timestamp.
func asTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		if ts, err := time.Parse("2006-01-02 15:04:05", t); err == nil {
			return ts
		}
	}
	return time.Time{}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
