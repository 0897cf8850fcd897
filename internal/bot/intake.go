package bot

import (
	"context"

	"github.com/yokitheyo/gamdlbot/internal/catalog"
	"github.com/yokitheyo/gamdlbot/internal/chat"
	"github.com/yokitheyo/gamdlbot/internal/model"
)

// handleMessage opens a session for every message carrying Apple Music
// links and answers with the artwork card and the quality keyboard.
func (f *Flow) handleMessage(ctx context.Context, msg *chat.Message) {
	urls := catalog.ExtractURLs(msg.Text)
	if len(urls) == 0 {
		return
	}
	if !f.admit(ctx, msg.From, msg.Ref.ChatID, msg.Ref.MessageID) {
		return
	}

	sess := f.Store.Create(msg.Ref.ChatID, msg.From.ID, urls)
	f.Logger.Info("session created", "token", sess.Token, "user_id", msg.From.ID, "urls", len(urls))

	var info catalog.Info
	if f.Catalog != nil {
		info = f.Catalog.Resolve(ctx, urls[0])
	}
	if _, err := f.Store.Update(sess.Token, func(s *model.Session) error {
		s.Meta = info.Meta
		s.Page = info.Page
		s.PosterURL = info.Poster
		return nil
	}); err != nil {
		return
	}

	caption := catalog.BuildCaption(f.Texts, info.Meta, info.Page, urls[0], f.Settings.CaptionShowURL)
	kb := f.qualityKeyboard(sess.Token)
	if info.Poster == "" {
		f.reply(ctx, msg.Ref, caption, kb)
		return
	}
	f.sendCard(ctx, msg.Ref, info.Poster, caption, kb)
}

// sendCard tries the poster by URL, then as uploaded bytes, then falls back
// to a plain text card.
func (f *Flow) sendCard(ctx context.Context, origin model.MessageRef, poster, caption string, kb *chat.Keyboard) {
	_ = f.Messenger.SendAction(ctx, origin.ChatID, chat.ActionUploadPhoto)
	_, err := f.Messenger.SendPhoto(ctx, origin.ChatID, chat.File{URL: poster}, caption, kb)
	if err == nil {
		return
	}
	f.Logger.Debug("send photo by url failed", "url", poster, "error", err)

	if f.Catalog != nil {
		if data, ferr := f.Catalog.Fetch(ctx, poster); ferr == nil && len(data) > 0 {
			if _, err = f.Messenger.SendPhoto(ctx, origin.ChatID, chat.File{Data: data, Name: "art.jpg"}, caption, kb); err == nil {
				return
			}
		}
	}
	f.reply(ctx, origin, caption, kb)
}
