package bot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yokitheyo/gamdlbot/internal/archive"
	"github.com/yokitheyo/gamdlbot/internal/chat"
	"github.com/yokitheyo/gamdlbot/internal/gamdl"
	"github.com/yokitheyo/gamdlbot/internal/model"
	"github.com/yokitheyo/gamdlbot/internal/progress"
)

const (
	maxFailureText = 1500
	progressPrefix = "⌛ "

	outcomeOK        = "ok"
	outcomeFailed    = "failed"
	outcomeCancelled = "cancelled"
)

// Start claims the session and launches its job in the background. It
// returns once the job is scheduled; the job reports back through chat.
func (f *Flow) Start(ctx context.Context, token, presetID string, mode model.SendMode, card model.MessageRef) error {
	preset, ok := f.Presets.Lookup(presetID)
	if !ok {
		if !f.Store.Alive(token) {
			return model.ErrSessionNotFound
		}
		return model.ErrUnknownPreset
	}
	if _, ok := model.ParseSendMode(string(mode)); !ok {
		return fmt.Errorf("unknown send mode %q", mode)
	}

	sess, err := f.Store.Begin(token, presetID, mode)
	if err != nil {
		return err
	}

	f.editKeyboard(ctx, card, nil)
	f.Logger.Info("job scheduled", "token", token, "preset", presetID, "mode", mode, "queued", f.Limiter.Waiting())

	f.jobs.Add(1)
	go func() {
		defer f.jobs.Done()
		f.runJob(f.jobCtx, sess, preset, card)
	}()
	return nil
}

type jobOutcome struct {
	status  string
	errText string
}

func (f *Flow) runJob(ctx context.Context, sess model.Session, preset model.Preset, card model.MessageRef) {
	logger := f.Logger.With("token", sess.Token, "chat_id", sess.ChatID)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("job panicked", "panic", r)
			f.finish(ctx, sess, jobOutcome{status: outcomeFailed, errText: fmt.Sprint(r)})
		}
	}()

	f.openStatus(ctx, sess.Token, card, f.Texts.T("downloading_with_preset", "preset", f.Presets.Label(preset.ID)))

	out := jobOutcome{status: outcomeOK}
	err := f.Limiter.Do(ctx, func(ctx context.Context) error {
		if !f.Store.Alive(sess.Token) {
			out.status = outcomeCancelled
			return nil
		}
		if err := os.MkdirAll(f.Settings.OutputRoot, 0o755); err != nil {
			return fmt.Errorf("create output root: %w", err)
		}
		workspace, err := os.MkdirTemp(f.Settings.OutputRoot, f.Settings.TempDirPrefix)
		if err != nil {
			return fmt.Errorf("create workspace: %w", err)
		}
		defer func() {
			if err := os.RemoveAll(workspace); err != nil {
				logger.Warn("remove workspace failed", "dir", workspace, "error", err)
			}
		}()

		res := f.Downloader.Run(ctx, gamdl.Job{
			URLs:       sess.URLs,
			OutputDir:  workspace,
			PresetArgs: preset.Args,
		}, f.progressSink(ctx, sess.Token))

		if res.Failed() {
			if !f.Store.Alive(sess.Token) {
				out.status = outcomeCancelled
				logger.Info("session gone after failed download, discarding", "error", res.AsError())
				return nil
			}
			tail := capRunes(res.Tail, maxFailureText)
			text := f.Texts.T("download_failed")
			if tail != "" {
				text += "\n" + tail
			}
			f.reply(ctx, card, text, nil)
			out.status = outcomeFailed
			out.errText = tail
			if out.errText == "" {
				out.errText = outcomeFailed
			}
			logger.Warn("download failed", "error", res.AsError())
			return nil
		}

		// A cancel that arrived while the downloader ran discards the output.
		live, err := f.Store.Get(sess.Token)
		if err != nil {
			out.status = outcomeCancelled
			logger.Info("session gone before delivery, discarding output")
			return nil
		}
		f.deliver(ctx, live, workspace)
		return nil
	})
	if err != nil {
		out = jobOutcome{status: outcomeFailed, errText: err.Error()}
		logger.Error("job aborted", "error", err)
	}
	f.finish(ctx, sess, out)
}

func (f *Flow) deliver(ctx context.Context, sess model.Session, workspace string) {
	if sess.Mode == model.ModeZip && f.sendZip(ctx, sess, workspace) {
		return
	}
	if sess.Mode != model.ModeZip {
		f.setStatus(ctx, sess.Token, f.Texts.T("uploading_files"))
	}
	if _, err := f.Deliverer.Deliver(ctx, sess.ChatID, workspace, sess.PosterURL); err != nil {
		f.Logger.Error("delivery failed", "token", sess.Token, "error", err)
		f.notify(ctx, sess.ChatID, f.Texts.T("send_failed", "error", err.Error()))
	}
}

// sendZip reports whether the archive path handled delivery; false means
// the caller should fall back to individual files.
func (f *Flow) sendZip(ctx context.Context, sess model.Session, workspace string) bool {
	f.setStatus(ctx, sess.Token, f.Texts.T("uploading_zip"))

	dest, err := os.MkdirTemp(f.Settings.OutputRoot, f.Settings.TempDirPrefix)
	if err != nil {
		f.Logger.Error("create archive dir failed", "error", err)
		return false
	}
	defer os.RemoveAll(dest)

	path, size, err := f.Packager.Pack(workspace, dest, archive.ArchiveName(sess.Meta, sess.Page))
	switch {
	case errors.Is(err, model.ErrArchiveTooLarge):
		f.Logger.Info("archive over size ceiling, sending files", "token", sess.Token, "size", size)
		f.setStatus(ctx, sess.Token, f.Texts.T("zip_too_big"))
		f.notify(ctx, sess.ChatID, f.Texts.T("zip_too_big"))
		return false
	case err != nil:
		f.Logger.Error("build archive failed, sending files", "token", sess.Token, "error", err)
		return false
	}

	_ = f.Messenger.SendAction(ctx, sess.ChatID, chat.ActionUploadDocument)
	if err := f.Messenger.SendDocument(ctx, sess.ChatID, chat.Document{File: chat.File{Path: path, Name: filepath.Base(path)}}); err != nil {
		f.Logger.Warn("send archive failed", "token", sess.Token, "error", &model.DeliveryError{Name: filepath.Base(path), Err: err})
		f.notify(ctx, sess.ChatID, f.Texts.T("send_failed", "error", err.Error()))
		return true
	}
	f.notify(ctx, sess.ChatID, f.Texts.T("send_complete"))
	return true
}

// finish clears the status line, records the attempt and destroys the
// session. It runs exactly once per job.
func (f *Flow) finish(ctx context.Context, sess model.Session, out jobOutcome) {
	f.closeStatus(ctx, sess.Token)

	rec := model.DownloadRecord{
		UserID: sess.UserID,
		ArtURL: sess.PosterURL,
		Preset: sess.Preset,
		Mode:   sess.Mode,
		Status: out.status,
		Error:  out.errText,
	}
	if len(sess.URLs) > 0 {
		rec.URL = sess.URLs[0]
	}
	if m := sess.Meta; m != nil {
		rec.Title = m.TrackName
		if rec.Title == "" {
			rec.Title = m.CollectionName
		}
		rec.Artist = m.ArtistName
		rec.Album = m.CollectionName
	}
	if err := f.Recorder.RecordDownload(ctx, rec); err != nil {
		f.Logger.Debug("record download failed", "token", sess.Token, "error", err)
	}

	f.Store.Remove(sess.Token)
	f.Logger.Info("job finished", "token", sess.Token, "status", out.status)
}

func (f *Flow) progressSink(ctx context.Context, token string) progress.Sink {
	return progress.Throttled(progress.SinkFunc(func(line string) {
		f.setStatus(ctx, token, progressPrefix+line)
	}), progress.NewThrottle(f.Settings.ProgressInterval))
}

// openStatus posts the status line under the card and remembers it on the
// session. If the session vanished meanwhile the line is removed again.
func (f *Flow) openStatus(ctx context.Context, token string, card model.MessageRef, text string) {
	ref, err := f.Messenger.SendText(ctx, card.ChatID, text, card.MessageID, nil)
	if err != nil {
		f.Logger.Warn("create status message failed", "token", token, "error", err)
		return
	}
	if _, err := f.Store.Update(token, func(s *model.Session) error {
		s.Status = &ref
		return nil
	}); err != nil {
		f.deleteMessage(ctx, ref)
	}
}

func (f *Flow) setStatus(ctx context.Context, token, text string) {
	sess, err := f.Store.Get(token)
	if err != nil || sess.Status == nil {
		return
	}
	f.editText(ctx, *sess.Status, text)
}

func (f *Flow) closeStatus(ctx context.Context, token string) {
	var ref *model.MessageRef
	if _, err := f.Store.Update(token, func(s *model.Session) error {
		ref, s.Status = s.Status, nil
		return nil
	}); err != nil || ref == nil {
		return
	}
	f.deleteMessage(ctx, *ref)
}

func (f *Flow) notify(ctx context.Context, chatID int64, text string) {
	if _, err := f.Messenger.SendText(ctx, chatID, text, 0, nil); err != nil {
		f.Logger.Warn("send notice failed", "chat_id", chatID, "error", err)
	}
}

func capRunes(s string, n int) string {
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > n {
		return string(r[:n])
	}
	return s
}
