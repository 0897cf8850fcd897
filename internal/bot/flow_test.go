package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yokitheyo/gamdlbot/internal/archive"
	"github.com/yokitheyo/gamdlbot/internal/catalog"
	"github.com/yokitheyo/gamdlbot/internal/chat"
	"github.com/yokitheyo/gamdlbot/internal/chat/chattest"
	"github.com/yokitheyo/gamdlbot/internal/gamdl"
	"github.com/yokitheyo/gamdlbot/internal/limiter"
	"github.com/yokitheyo/gamdlbot/internal/model"
	"github.com/yokitheyo/gamdlbot/internal/progress"
)

const user = int64(7)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// blocking returns a downloader body that signals started and waits for release.
func blocking(started chan<- string, release <-chan struct{}, files ...string) func(context.Context, gamdl.Job, progress.Sink) gamdl.Result {
	write := writes(files...)
	return func(ctx context.Context, job gamdl.Job, sink progress.Sink) gamdl.Result {
		started <- job.OutputDir
		select {
		case <-release:
		case <-ctx.Done():
			return gamdl.Result{ExitCode: -1, Err: ctx.Err()}
		}
		return write(ctx, job, sink)
	}
}

func TestIntake_SendsCardWithQualityKeyboard(t *testing.T) {
	h := newHarness(t)
	h.resolver.info = catalog.Info{Meta: &model.Metadata{ArtistName: "Artist", CollectionName: "Album"}}

	token := h.sendLink(t, user)

	sess, err := h.flow.Store.Get(token)
	if err != nil {
		t.Fatal(err)
	}
	if sess.State != model.StateCollecting || sess.URLs[0] != testLink || sess.Meta.ArtistName != "Artist" {
		t.Fatalf("unexpected session %+v", sess)
	}
	var card *chattest.Call
	for _, c := range h.chat.Calls() {
		if c.Keyboard != nil {
			c := c
			card = &c
		}
	}
	if card == nil || !strings.Contains(card.Text, "Artist") {
		t.Fatalf("card caption missing metadata: %+v", card)
	}
	// four presets two per row plus the cancel row
	if len(card.Keyboard.Rows) != 3 {
		t.Fatalf("keyboard rows = %d, want 3", len(card.Keyboard.Rows))
	}
	if h.chat.Count("SendPhoto") != 0 {
		t.Fatalf("no poster, no photo expected")
	}
}

func TestIntake_PosterFallsBackToUploadedBytes(t *testing.T) {
	h := newHarness(t)
	h.resolver.info = catalog.Info{Poster: "https://img.example/art.jpg"}
	h.resolver.fetch = []byte("jpeg")
	h.chat.PhotoErr = func(photo chat.File) error {
		if photo.URL != "" {
			return &chat.APIError{Kind: chat.KindBadRequest, Code: 400, Description: "wrong file identifier"}
		}
		return nil
	}

	h.sendLink(t, user)

	var photos []chat.File
	for _, c := range h.chat.Calls() {
		if c.Method == "SendPhoto" {
			photos = append(photos, c.File)
		}
	}
	if len(photos) != 2 || photos[0].URL == "" || string(photos[1].Data) != "jpeg" {
		t.Fatalf("unexpected photo attempts %+v", photos)
	}
}

func TestIntake_PosterFailureEndsInTextCard(t *testing.T) {
	h := newHarness(t)
	h.resolver.info = catalog.Info{Poster: "https://img.example/art.jpg"}
	h.resolver.fetchErr = errors.New("unreachable")
	h.chat.PhotoErr = func(chat.File) error { return errors.New("boom") }

	h.sendLink(t, user)

	if h.chat.Count("SendPhoto") != 1 {
		t.Fatalf("photo attempts = %d, want 1", h.chat.Count("SendPhoto"))
	}
}

func TestIntake_IgnoresTextWithoutLinks(t *testing.T) {
	h := newHarness(t)
	h.flow.HandleUpdate(context.Background(), chat.Update{Message: &chat.Message{
		Ref: userRef, From: chat.User{ID: user}, Text: "hello there",
	}})
	if len(h.chat.Calls()) != 0 || h.flow.Store.Len() != 0 {
		t.Fatalf("plain text should be ignored")
	}
}

func TestActions_UnknownTokenReportsSessionNotFound(t *testing.T) {
	h := newHarness(t)
	for _, data := range []string{"q:missing:default", "back:missing", "go:missing:default:files", "cancel:missing"} {
		h.press(user, data)
	}
	n := 0
	for _, txt := range h.chat.Texts() {
		if txt == "Session not found." {
			n++
		}
	}
	if n != 4 {
		t.Fatalf("not-found replies = %d, want 4: %q", n, h.chat.Texts())
	}
	if len(h.dl.Jobs()) != 0 {
		t.Fatalf("no job should run")
	}
}

func TestActions_UnknownPresetRejected(t *testing.T) {
	h := newHarness(t)
	token := h.sendLink(t, user)

	h.press(user, "q:"+token+":lossless")
	h.press(user, "go:"+token+":lossless:files")

	if !h.chat.HasText("Unknown quality preset.") {
		t.Fatalf("expected unknown preset reply, got %q", h.chat.Texts())
	}
	sess, _ := h.flow.Store.Get(token)
	if sess.State != model.StateCollecting || sess.Preset != "" {
		t.Fatalf("session changed by unknown preset: %+v", sess)
	}
	if len(h.dl.Jobs()) != 0 {
		t.Fatalf("unknown preset must not start a job")
	}
}

func TestChoosePresetThenBack(t *testing.T) {
	h := newHarness(t)
	token := h.sendLink(t, user)

	h.press(user, "q:"+token+":audio_aac256")
	sess, _ := h.flow.Store.Get(token)
	if sess.State != model.StatePresetChosen || sess.Preset != "audio_aac256" {
		t.Fatalf("after choose: %+v", sess)
	}
	last := lastKeyboardEdit(h)
	if last == nil || !strings.HasPrefix(last.Rows[0][0].Data, "go:"+token+":audio_aac256:files") {
		t.Fatalf("send-mode keyboard not shown: %+v", last)
	}

	h.press(user, "back:"+token)
	sess, _ = h.flow.Store.Get(token)
	if sess.State != model.StateCollecting || sess.Preset != "" {
		t.Fatalf("after back: %+v", sess)
	}
	last = lastKeyboardEdit(h)
	if last == nil || !strings.HasPrefix(last.Rows[0][0].Data, "q:"+token+":") {
		t.Fatalf("quality keyboard not restored: %+v", last)
	}
}

func lastKeyboardEdit(h *harness) *chat.Keyboard {
	var kb *chat.Keyboard
	for _, c := range h.chat.Calls() {
		if c.Method == "EditKeyboard" {
			kb = c.Keyboard
		}
	}
	return kb
}

func TestJob_FilesDeliveredAndSessionDestroyed(t *testing.T) {
	h := newHarness(t)
	h.resolver.info = catalog.Info{Meta: &model.Metadata{ArtistName: "Artist", CollectionName: "Album"}}
	h.dl.run = writes("Artist/Album/01 Song.m4a")
	token := h.sendLink(t, user)

	h.press(user, "go:"+token+":default:files")
	h.flow.Wait()

	if h.chat.Count("SendAudio") != 1 {
		t.Fatalf("SendAudio = %d, want 1", h.chat.Count("SendAudio"))
	}
	if !h.chat.HasText("Done") {
		t.Fatalf("completion notice missing: %q", h.chat.Texts())
	}
	if h.flow.Store.Alive(token) {
		t.Fatalf("session should be destroyed after the job")
	}
	if n := len(h.workspaceEntries(t)); n != 0 {
		t.Fatalf("workspace not cleaned: %d entries left", n)
	}
	if h.chat.Count("Delete") != 1 {
		t.Fatalf("status message should be deleted once, got %d", h.chat.Count("Delete"))
	}
	recs := h.rec.Downloads()
	if len(recs) != 1 || recs[0].Status != outcomeOK || recs[0].Artist != "Artist" || recs[0].Mode != model.ModeFiles {
		t.Fatalf("unexpected records %+v", recs)
	}

	jobs := h.dl.Jobs()
	if len(jobs) != 1 || jobs[0].URLs[0] != testLink || len(jobs[0].PresetArgs) != 0 {
		t.Fatalf("unexpected job %+v", jobs)
	}
}

func TestJob_PresetArgsPassedToDownloader(t *testing.T) {
	h := newHarness(t)
	token := h.sendLink(t, user)
	h.press(user, "go:"+token+":video_4k:files")
	h.flow.Wait()

	jobs := h.dl.Jobs()
	if len(jobs) != 1 || !strings.Contains(strings.Join(jobs[0].PresetArgs, " "), "2160") {
		t.Fatalf("video_4k args not forwarded: %+v", jobs)
	}
}

func TestJob_FailureRepliesWithTail(t *testing.T) {
	h := newHarness(t)
	h.dl.run = func(context.Context, gamdl.Job, progress.Sink) gamdl.Result {
		return gamdl.Result{ExitCode: 1, Tail: "ERROR: cookies expired"}
	}
	token := h.sendLink(t, user)

	h.press(user, "go:"+token+":default:files")
	h.flow.Wait()

	if !h.chat.HasText("Download failed.\nERROR: cookies expired") {
		t.Fatalf("failure text missing: %q", h.chat.Texts())
	}
	if h.chat.Count("SendAudio")+h.chat.Count("SendMediaGroup") != 0 {
		t.Fatalf("nothing should be delivered after a failure")
	}
	recs := h.rec.Downloads()
	if len(recs) != 1 || recs[0].Status != outcomeFailed || recs[0].Error != "ERROR: cookies expired" {
		t.Fatalf("unexpected records %+v", recs)
	}
	if h.flow.Store.Alive(token) {
		t.Fatalf("session should be destroyed after a failure")
	}
}

func TestJob_ZipModeSendsArchive(t *testing.T) {
	h := newHarness(t)
	h.resolver.info = catalog.Info{Meta: &model.Metadata{ArtistName: "Artist", CollectionName: "Album"}}
	h.dl.run = writes("Artist/Album/01 A.m4a", "Artist/Album/02 B.m4a")
	token := h.sendLink(t, user)

	h.press(user, "go:"+token+":default:zip")
	h.flow.Wait()

	var doc *chat.File
	for _, c := range h.chat.Calls() {
		if c.Method == "SendDocument" {
			f := c.File
			doc = &f
		}
	}
	if doc == nil || doc.Name != "Artist - Album.zip" {
		t.Fatalf("archive not sent: %+v", doc)
	}
	if h.chat.Count("SendMediaGroup") != 0 {
		t.Fatalf("zip mode should not send audio")
	}
	if !h.chat.HasText("Uploading ZIP...") || !h.chat.HasText("Done") {
		t.Fatalf("unexpected texts %q", h.chat.Texts())
	}
	if n := len(h.workspaceEntries(t)); n != 0 {
		t.Fatalf("archive dir not cleaned: %d entries left", n)
	}
}

func TestJob_OversizedZipFallsBackToFiles(t *testing.T) {
	h := newHarness(t, func(d *Deps) { d.Packager = archive.Packager{MaxBytes: 1} })
	h.dl.run = writes("Artist/Album/01 A.m4a", "Artist/Album/02 B.m4a")
	token := h.sendLink(t, user)

	h.press(user, "go:"+token+":default:zip")
	h.flow.Wait()

	if h.chat.Count("SendDocument") != 0 {
		t.Fatalf("oversized archive must not be sent")
	}
	if h.chat.Count("SendMediaGroup") != 1 {
		t.Fatalf("expected files fallback, got %d media groups", h.chat.Count("SendMediaGroup"))
	}
	if !h.chat.HasText("ZIP exceeds the size limit") {
		t.Fatalf("fallback notice missing: %q", h.chat.Texts())
	}
}

func TestStart_OnlyOneConcurrentRun(t *testing.T) {
	h := newHarness(t)
	started := make(chan string, 4)
	release := make(chan struct{})
	h.dl.run = blocking(started, release, "a.m4a")
	token := h.sendLink(t, user)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.press(user, "go:"+token+":default:files")
		}()
	}
	wg.Wait()
	<-started
	close(release)
	h.flow.Wait()

	if got := len(h.dl.Jobs()); got != 1 {
		t.Fatalf("downloader ran %d times, want 1", got)
	}
	busy := 0
	for _, txt := range h.chat.Texts() {
		if txt == "This request is already running." {
			busy++
		}
	}
	if busy != 7 {
		t.Fatalf("busy replies = %d, want 7", busy)
	}
}

func TestCancel_DuringRunDiscardsOutput(t *testing.T) {
	h := newHarness(t)
	started := make(chan string, 1)
	release := make(chan struct{})
	h.dl.run = blocking(started, release, "a.m4a", "b.m4a")
	token := h.sendLink(t, user)

	h.press(user, "go:"+token+":default:files")
	<-started
	h.press(user, "cancel:"+token)
	close(release)
	h.flow.Wait()

	if !h.chat.HasText("Cancelled.") {
		t.Fatalf("cancel not acknowledged: %q", h.chat.Texts())
	}
	if h.chat.Count("SendMediaGroup")+h.chat.Count("SendAudio") != 0 {
		t.Fatalf("output of a cancelled session was delivered")
	}
	recs := h.rec.Downloads()
	if len(recs) != 1 || recs[0].Status != outcomeCancelled {
		t.Fatalf("unexpected records %+v", recs)
	}
	if n := len(h.workspaceEntries(t)); n != 0 {
		t.Fatalf("workspace not cleaned after cancel")
	}
}

func TestCancel_DuringRunDiscardsFailure(t *testing.T) {
	h := newHarness(t)
	started := make(chan string, 1)
	release := make(chan struct{})
	h.dl.run = func(ctx context.Context, job gamdl.Job, sink progress.Sink) gamdl.Result {
		started <- job.OutputDir
		<-release
		return gamdl.Result{ExitCode: 1, Tail: "ERROR: boom"}
	}
	token := h.sendLink(t, user)

	h.press(user, "go:"+token+":default:files")
	<-started
	h.press(user, "cancel:"+token)
	close(release)
	h.flow.Wait()

	if !h.chat.HasText("Cancelled.") {
		t.Fatalf("cancel not acknowledged: %q", h.chat.Texts())
	}
	if h.chat.HasText("Download failed.") || h.chat.HasText("ERROR: boom") {
		t.Fatalf("cancelled session got a failure notice: %q", h.chat.Texts())
	}
	recs := h.rec.Downloads()
	if len(recs) != 1 || recs[0].Status != outcomeCancelled {
		t.Fatalf("unexpected records %+v", recs)
	}
}

func TestCancel_BeforeStartInvalidatesToken(t *testing.T) {
	h := newHarness(t)
	token := h.sendLink(t, user)

	h.press(user, "cancel:"+token)
	h.press(user, "go:"+token+":default:files")
	h.flow.Wait()

	if h.flow.Store.Alive(token) {
		t.Fatalf("cancelled token still alive")
	}
	if !h.chat.HasText("Cancelled.") || !h.chat.HasText("Session not found.") {
		t.Fatalf("unexpected texts %q", h.chat.Texts())
	}
	if len(h.dl.Jobs()) != 0 {
		t.Fatalf("cancelled session must not run")
	}
}

func TestJobs_RespectLimiterCapacity(t *testing.T) {
	lim := limiter.New(1)
	h := newHarness(t, func(d *Deps) { d.Limiter = lim })

	var active, peak atomic.Int32
	release := make(chan struct{})
	h.dl.run = func(ctx context.Context, job gamdl.Job, sink progress.Sink) gamdl.Result {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-release
		active.Add(-1)
		return writes("a.m4a")(ctx, job, sink)
	}

	first := h.sendLink(t, user)
	second := h.sendLink(t, user+1)
	h.press(user, "go:"+first+":default:files")
	h.press(user+1, "go:"+second+":default:files")

	waitFor(t, "second job to queue", func() bool { return lim.InFlight() == 1 && lim.Waiting() == 1 })
	close(release)
	h.flow.Wait()

	if peak.Load() != 1 || lim.Peak() != 1 {
		t.Fatalf("peak concurrency = %d, want 1", peak.Load())
	}
	if len(h.dl.Jobs()) != 2 {
		t.Fatalf("both jobs should eventually run")
	}
}

func TestJob_ProgressEditsAreThrottled(t *testing.T) {
	h := newHarness(t)
	h.dl.run = func(ctx context.Context, job gamdl.Job, sink progress.Sink) gamdl.Result {
		for i := 0; i < 20; i++ {
			sink.Report("Downloading track")
		}
		return writes("a.m4a")(ctx, job, sink)
	}
	token := h.sendLink(t, user)
	h.press(user, "go:"+token+":default:files")
	h.flow.Wait()

	edits := 0
	for _, c := range h.chat.Calls() {
		if c.Method == "EditText" && strings.HasPrefix(c.Text, progressPrefix) {
			edits++
		}
	}
	if edits != 1 {
		t.Fatalf("progress edits = %d, want 1 within one interval", edits)
	}
}

func TestAbort_CancelsRunningJobs(t *testing.T) {
	h := newHarness(t)
	started := make(chan string, 1)
	h.dl.run = blocking(started, make(chan struct{}))
	token := h.sendLink(t, user)

	h.press(user, "go:"+token+":default:files")
	<-started
	h.flow.Abort()
	h.flow.Wait()

	recs := h.rec.Downloads()
	if len(recs) != 1 || recs[0].Status != outcomeFailed {
		t.Fatalf("aborted job should be recorded as failed: %+v", recs)
	}
}

func TestRun_ProcessesUpdatesUntilClosed(t *testing.T) {
	h := newHarness(t)
	updates := make(chan chat.Update, 1)
	updates <- chat.Update{Message: &chat.Message{Ref: userRef, From: chat.User{ID: user}, Text: "/start", Command: "start"}}
	close(updates)

	h.flow.Run(context.Background(), updates)

	if !h.chat.HasText("Send me an Apple Music URL") {
		t.Fatalf("greeting missing: %q", h.chat.Texts())
	}
}
