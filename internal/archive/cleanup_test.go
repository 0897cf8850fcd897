package archive

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func makeWorkspace(t *testing.T, base, name string, age time.Duration) string {
	t.Helper()
	dir := filepath.Join(base, name)
	if err := os.MkdirAll(filepath.Join(dir, "Artist"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "Artist", "a.m4a"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	ts := time.Now().Add(-age)
	if err := os.Chtimes(dir, ts, ts); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestSweepWorkspaces_RemovesOnlyExpiredPrefixedDirs(t *testing.T) {
	base := t.TempDir()
	fresh := makeWorkspace(t, base, "gamdl_fresh", time.Hour)
	old := makeWorkspace(t, base, "gamdl_old", 25*time.Hour)
	older := makeWorkspace(t, base, "gamdl_older", 48*time.Hour)
	foreign := makeWorkspace(t, base, "other_old", 48*time.Hour)

	res := SweepWorkspaces(base, "gamdl_", 24*time.Hour, nil)
	if res.Removed != 2 || res.Errors != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	for _, gone := range []string{old, older} {
		if _, err := os.Stat(gone); !os.IsNotExist(err) {
			t.Fatalf("%s should be removed", gone)
		}
	}
	for _, kept := range []string{fresh, foreign} {
		if _, err := os.Stat(kept); err != nil {
			t.Fatalf("%s should be kept: %v", kept, err)
		}
	}
}

func TestSweepWorkspaces_IgnoresFiles(t *testing.T) {
	base := t.TempDir()
	p := filepath.Join(base, "gamdl_file.zip")
	if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	ts := time.Now().Add(-72 * time.Hour)
	_ = os.Chtimes(p, ts, ts)

	if res := SweepWorkspaces(base, "gamdl_", time.Hour, nil); res.Removed != 0 {
		t.Fatalf("plain files must not be swept: %+v", res)
	}
}

func TestSweepWorkspaces_MissingBase(t *testing.T) {
	res := SweepWorkspaces(filepath.Join(t.TempDir(), "absent"), "gamdl_", time.Hour, nil)
	if res.Removed != 0 || res.Errors != 0 {
		t.Fatalf("missing base should be a no-op: %+v", res)
	}
}

func TestSweeper_RunSweepsAtStartupAndStops(t *testing.T) {
	base := t.TempDir()
	old := makeWorkspace(t, base, "gamdl_x", 48*time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Sweeper{Base: base, FirstDelay: time.Hour}.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := os.Stat(old); os.IsNotExist(err) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("startup sweep did not run")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop on cancel")
	}
}

func TestSweeper_PeriodicRun(t *testing.T) {
	base := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Sweeper{Base: base, FirstDelay: 20 * time.Millisecond, Interval: 20 * time.Millisecond, Retention: time.Hour}.Run(ctx)

	time.Sleep(50 * time.Millisecond)
	late := makeWorkspace(t, base, "gamdl_late", 2*time.Hour)

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := os.Stat(late); os.IsNotExist(err) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("periodic sweep did not pick up the late workspace")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
