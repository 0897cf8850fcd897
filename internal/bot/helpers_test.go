package bot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yokitheyo/gamdlbot/internal/catalog"
	"github.com/yokitheyo/gamdlbot/internal/chat"
	"github.com/yokitheyo/gamdlbot/internal/chat/chattest"
	"github.com/yokitheyo/gamdlbot/internal/delivery"
	"github.com/yokitheyo/gamdlbot/internal/gamdl"
	"github.com/yokitheyo/gamdlbot/internal/model"
	"github.com/yokitheyo/gamdlbot/internal/progress"
)

const testLink = "https://music.apple.com/us/album/name/1440857781"

type fakeDownloader struct {
	mu   sync.Mutex
	jobs []gamdl.Job
	run  func(ctx context.Context, job gamdl.Job, sink progress.Sink) gamdl.Result
}

func (d *fakeDownloader) Run(ctx context.Context, job gamdl.Job, sink progress.Sink) gamdl.Result {
	d.mu.Lock()
	d.jobs = append(d.jobs, job)
	d.mu.Unlock()
	if d.run == nil {
		return gamdl.Result{}
	}
	return d.run(ctx, job, sink)
}

func (d *fakeDownloader) Jobs() []gamdl.Job {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]gamdl.Job(nil), d.jobs...)
}

// writes returns a downloader body that creates the given files.
func writes(names ...string) func(context.Context, gamdl.Job, progress.Sink) gamdl.Result {
	return func(_ context.Context, job gamdl.Job, sink progress.Sink) gamdl.Result {
		for _, n := range names {
			p := filepath.Join(job.OutputDir, filepath.FromSlash(n))
			_ = os.MkdirAll(filepath.Dir(p), 0o755)
			_ = os.WriteFile(p, []byte(strings.Repeat("x", 64)), 0o644)
			sink.Report("Downloading " + n)
		}
		return gamdl.Result{}
	}
}

type fakeResolver struct {
	info     catalog.Info
	fetch    []byte
	fetchErr error
}

func (r *fakeResolver) Resolve(context.Context, string) catalog.Info { return r.info }

func (r *fakeResolver) Fetch(context.Context, string) ([]byte, error) {
	return r.fetch, r.fetchErr
}

type memRecorder struct {
	mu        sync.Mutex
	users     []model.UserRecord
	downloads []model.DownloadRecord
}

func (m *memRecorder) RecordUser(_ context.Context, u model.UserRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = append(m.users, u)
	return nil
}

func (m *memRecorder) RecordDownload(_ context.Context, d model.DownloadRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.downloads = append(m.downloads, d)
	return nil
}

func (m *memRecorder) Downloads() []model.DownloadRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.DownloadRecord(nil), m.downloads...)
}

type titleTags struct{}

func (titleTags) Read(_ context.Context, path string) delivery.Tags {
	return delivery.Tags{Title: filepath.Base(path)}
}

type harness struct {
	flow     *Flow
	chat     *chattest.Recorder
	dl       *fakeDownloader
	resolver *fakeResolver
	rec      *memRecorder
	root     string
}

func newHarness(t *testing.T, mutate ...func(*Deps)) *harness {
	t.Helper()
	h := &harness{
		chat:     chattest.New(),
		dl:       &fakeDownloader{},
		resolver: &fakeResolver{},
		rec:      &memRecorder{},
		root:     filepath.Join(t.TempDir(), "downloads"),
	}
	deps := Deps{
		Messenger:  h.chat,
		Downloader: h.dl,
		Deliverer:  &delivery.Deliverer{Messenger: h.chat, Tags: titleTags{}},
		Catalog:    h.resolver,
		Recorder:   h.rec,
		Settings:   Settings{OutputRoot: h.root, ProgressInterval: time.Hour},
	}
	for _, m := range mutate {
		m(&deps)
	}
	h.flow = NewFlow(deps)
	t.Cleanup(h.flow.Wait)
	return h
}

var userRef = model.MessageRef{ChatID: 100, MessageID: 1}

func (h *harness) sendLink(t *testing.T, userID int64) string {
	t.Helper()
	before := len(h.chat.Calls())
	h.flow.HandleUpdate(context.Background(), chat.Update{Message: &chat.Message{
		Ref:  userRef,
		From: chat.User{ID: userID, Username: "user"},
		Text: "please get " + testLink,
	}})
	for _, c := range h.chat.Calls()[before:] {
		if c.Keyboard != nil && len(c.Keyboard.Rows) > 0 {
			act, err := ParseAction(c.Keyboard.Rows[0][0].Data)
			if err == nil && act.Kind == ActionChoosePreset {
				return act.Token
			}
		}
	}
	t.Fatalf("no quality keyboard sent; calls: %+v", h.chat.Calls()[before:])
	return ""
}

func (h *harness) press(userID int64, data string) {
	h.flow.HandleUpdate(context.Background(), chat.Update{Callback: &chat.Callback{
		ID:      "cb",
		From:    chat.User{ID: userID},
		Message: model.MessageRef{ChatID: userRef.ChatID, MessageID: 50},
		Data:    data,
	}})
}

func (h *harness) command(userID int64, cmd, args string) {
	h.flow.HandleUpdate(context.Background(), chat.Update{Message: &chat.Message{
		Ref:     userRef,
		From:    chat.User{ID: userID},
		Text:    "/" + cmd + " " + args,
		Command: cmd,
		Args:    args,
	}})
}

func (h *harness) workspaceEntries(t *testing.T) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(h.root)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		t.Fatal(err)
	}
	return entries
}

func linkUpdate(userID int64) chat.Update {
	return chat.Update{Message: &chat.Message{Ref: userRef, From: chat.User{ID: userID}, Text: testLink}}
}
