package delivery

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/yokitheyo/gamdlbot/internal/chat"
	"github.com/yokitheyo/gamdlbot/internal/i18n"
	"github.com/yokitheyo/gamdlbot/internal/model"
)

const maxNoticeError = 300

type Deliverer struct {
	Messenger chat.Messenger
	Texts     *i18n.Catalog
	Tags      TagReader
	Thumbs    ThumbFetcher
	MaxBytes  int64
	BatchSize int
	// Workers bounds concurrent tag extraction per batch.
	Workers int
	Logger  *slog.Logger
}

type Report struct {
	Files     int
	Sent      int
	TooLarge  int
	Failed    int
	Fallbacks int
}

func (d *Deliverer) defaults() {
	if d.Texts == nil {
		d.Texts = i18n.Default()
	}
	if d.Tags == nil {
		d.Tags = &FileTagReader{}
	}
	if d.MaxBytes <= 0 {
		d.MaxBytes = MaxFileBytes
	}
	if d.BatchSize <= 0 || d.BatchSize > MaxBatch {
		d.BatchSize = MaxBatch
	}
	if d.Workers <= 0 {
		d.Workers = 4
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
}

// Deliver sends every file under root to chatID. Per-file and per-batch
// failures become notices; only a workspace scan failure is returned.
func (d *Deliverer) Deliver(ctx context.Context, chatID int64, root, posterURL string) (Report, error) {
	d.defaults()
	plan, err := Classify(root, d.MaxBytes)
	if err != nil {
		return Report{}, err
	}
	rep := Report{Files: plan.Total()}
	if rep.Files == 0 {
		d.notify(ctx, chatID, d.Texts.T("no_files_found"))
		return rep, nil
	}

	thumb := d.sharedThumb(ctx, root, posterURL)

	for _, it := range plan.TooLarge {
		rep.TooLarge++
		d.Logger.Warn("file over size ceiling", "file", it.Rel, "size", it.Size)
		d.notify(ctx, chatID, d.Texts.T("file_too_large", "name", it.Name, "size", humanize.IBytes(uint64(it.Size))))
	}

	for _, batch := range Batches(plan.Audio, d.BatchSize) {
		d.sendAudioBatch(ctx, chatID, batch, thumb, &rep)
	}

	for _, it := range plan.Video {
		_ = d.Messenger.SendAction(ctx, chatID, chat.ActionUploadDocument)
		err := d.Messenger.SendVideo(ctx, chatID, chat.Video{File: fileOf(it), Thumb: thumb})
		d.account(ctx, chatID, it.Name, err, &rep)
	}

	for _, it := range plan.Other {
		_ = d.Messenger.SendAction(ctx, chatID, chat.ActionUploadDocument)
		err := d.Messenger.SendDocument(ctx, chatID, chat.Document{File: fileOf(it)})
		d.account(ctx, chatID, it.Name, err, &rep)
	}

	if rep.Sent > 0 {
		d.notify(ctx, chatID, d.Texts.T("send_complete"))
	}
	d.Logger.Info("delivery finished", "chat_id", chatID, "files", rep.Files, "sent", rep.Sent,
		"too_large", rep.TooLarge, "failed", rep.Failed, "fallbacks", rep.Fallbacks)
	return rep, nil
}

// sendAudioBatch tries one grouped upload and, if the platform rejects it
// as a bad request, sends the batch's files one at a time.
func (d *Deliverer) sendAudioBatch(ctx context.Context, chatID int64, batch []Item, thumb *chat.File, rep *Report) {
	audios := d.buildAudios(ctx, batch, thumb)
	_ = d.Messenger.SendAction(ctx, chatID, chat.ActionUploadDocument)

	if len(audios) == 1 {
		d.account(ctx, chatID, batch[0].Name, d.Messenger.SendAudio(ctx, chatID, audios[0]), rep)
		return
	}

	err := d.Messenger.SendMediaGroup(ctx, chatID, audios)
	switch {
	case err == nil:
		rep.Sent += len(audios)
	case chat.IsBadRequest(err):
		rep.Fallbacks++
		d.Logger.Warn("media group rejected, sending files individually", "files", len(batch), "error", err)
		for i, a := range audios {
			d.account(ctx, chatID, batch[i].Name, d.Messenger.SendAudio(ctx, chatID, a), rep)
		}
	default:
		for _, it := range batch {
			d.account(ctx, chatID, it.Name, err, rep)
		}
	}
}

func (d *Deliverer) buildAudios(ctx context.Context, batch []Item, thumb *chat.File) []chat.Audio {
	audios := make([]chat.Audio, len(batch))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.Workers)
	for i, it := range batch {
		i, it := i, it
		g.Go(func() error {
			t := d.Tags.Read(gctx, it.Path)
			audios[i] = chat.Audio{
				File:      fileOf(it),
				Title:     t.Title,
				Performer: t.Performer,
				Duration:  t.Duration,
				Thumb:     thumb,
			}
			return nil
		})
	}
	_ = g.Wait()
	return audios
}

func (d *Deliverer) account(ctx context.Context, chatID int64, name string, err error, rep *Report) {
	if err == nil {
		rep.Sent++
		return
	}
	rep.Failed++
	derr := &model.DeliveryError{Name: name, Err: err}
	if chat.IsForbidden(err) {
		d.Logger.Error("delivery forbidden", "error", derr)
	} else {
		d.Logger.Warn("delivery failed", "error", derr)
	}
	d.notify(ctx, chatID, d.Texts.T("send_failed", "error", shortError(err)))
}

func (d *Deliverer) sharedThumb(ctx context.Context, root, posterURL string) *chat.File {
	if p, ok := FindCover(root); ok {
		return &chat.File{Path: p, Name: filepath.Base(p)}
	}
	if posterURL == "" || d.Thumbs == nil {
		return nil
	}
	data, err := d.Thumbs.Fetch(ctx, posterURL)
	if err != nil {
		d.Logger.Debug("download thumbnail failed", "url", posterURL, "error", err)
		return nil
	}
	return &chat.File{Data: data, Name: "thumb.jpg"}
}

func (d *Deliverer) notify(ctx context.Context, chatID int64, text string) {
	if _, err := d.Messenger.SendText(ctx, chatID, text, 0, nil); err != nil {
		d.Logger.Warn("send notice failed", "chat_id", chatID, "error", err)
	}
}

func fileOf(it Item) chat.File {
	return chat.File{Path: it.Path, Name: it.Name}
}

func shortError(err error) string {
	msg := err.Error()
	var apiErr *chat.APIError
	if errors.As(err, &apiErr) && apiErr.Description != "" {
		msg = apiErr.Description
	}
	if r := []rune(msg); len(r) > maxNoticeError {
		msg = string(r[:maxNoticeError]) + "…"
	}
	return msg
}
