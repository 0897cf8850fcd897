package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/yokitheyo/gamdlbot/internal/model"
)

func openTestDB(t *testing.T) *SQLite {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "data", "bot.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRecordUser_Upserts(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	if err := db.RecordUser(ctx, model.UserRecord{UserID: 1, Username: "old", Locale: "en"}); err != nil {
		t.Fatal(err)
	}
	if err := db.RecordUser(ctx, model.UserRecord{UserID: 1, Username: "new", IsAdmin: true, Locale: "en"}); err != nil {
		t.Fatal(err)
	}
	var n int
	var name string
	var admin int
	if err := db.db.QueryRow("SELECT COUNT(*), MAX(username), MAX(is_admin) FROM users").Scan(&n, &name, &admin); err != nil {
		t.Fatal(err)
	}
	if n != 1 || name != "new" || admin != 1 {
		t.Fatalf("upsert result n=%d name=%q admin=%d", n, name, admin)
	}
}

func TestRecordDownload_AndQueries(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	recs := []model.DownloadRecord{
		{UserID: 1, URL: "u1", Title: "A", Preset: "default", Mode: model.ModeFiles, Status: "ok"},
		{UserID: 1, URL: "u2", Preset: "video_4k", Mode: model.ModeZip, Status: "failed", Error: "boom"},
		{UserID: 2, URL: "u3", Preset: "default", Mode: model.ModeFiles, Status: "ok"},
	}
	for _, r := range recs {
		if err := db.RecordDownload(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	counts, err := db.DownloadCounts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if counts["ok"] != 2 || counts["failed"] != 1 {
		t.Fatalf("counts = %v", counts)
	}

	recent, err := db.RecentDownloads(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 || recent[0].URL != "u3" || recent[1].Error != "boom" || recent[1].Mode != model.ModeZip {
		t.Fatalf("recent = %+v", recent)
	}
}

func TestOpenSQLite_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.db")
	db, err := OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	_ = db.RecordDownload(context.Background(), model.DownloadRecord{URL: "x", Status: "ok"})
	db.Close()

	db, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	counts, _ := db.DownloadCounts(context.Background())
	if counts["ok"] != 1 {
		t.Fatalf("data lost across reopen: %v", counts)
	}
}

func TestNop(t *testing.T) {
	var r Recorder = Nop{}
	if r.RecordUser(context.Background(), model.UserRecord{}) != nil || r.RecordDownload(context.Background(), model.DownloadRecord{}) != nil {
		t.Fatal("Nop must never fail")
	}
}
