package bot

import (
	"context"

	"github.com/yokitheyo/gamdlbot/internal/chat"
	"github.com/yokitheyo/gamdlbot/internal/model"
)

// ChoosePreset records the preset and swaps the card's keyboard for the
// send-mode choice.
func (f *Flow) ChoosePreset(ctx context.Context, token, presetID string, card model.MessageRef) error {
	if _, ok := f.Presets.Lookup(presetID); !ok {
		if !f.Store.Alive(token) {
			return model.ErrSessionNotFound
		}
		return model.ErrUnknownPreset
	}
	_, err := f.Store.Update(token, func(s *model.Session) error {
		if s.State == model.StateRunning {
			return model.ErrAlreadyRunning
		}
		s.Preset = presetID
		return model.TransitionSession(s, model.StatePresetChosen)
	})
	if err != nil {
		return err
	}
	f.editKeyboard(ctx, card, f.sendModeKeyboard(token, presetID))
	return nil
}

// Back returns to the quality choice.
func (f *Flow) Back(ctx context.Context, token string, card model.MessageRef) error {
	_, err := f.Store.Update(token, func(s *model.Session) error {
		switch s.State {
		case model.StateRunning:
			return model.ErrAlreadyRunning
		case model.StateCollecting:
			return nil
		}
		s.Preset = ""
		return model.TransitionSession(s, model.StateCollecting)
	})
	if err != nil {
		return err
	}
	f.editKeyboard(ctx, card, f.qualityKeyboard(token))
	return nil
}

// Cancel destroys the session. A job that is already running keeps going;
// its output is discarded once it notices the session is gone.
func (f *Flow) Cancel(ctx context.Context, token string, card model.MessageRef) error {
	snap, ok := f.Store.Remove(token)
	if !ok {
		return model.ErrSessionNotFound
	}
	f.editKeyboard(ctx, card, nil)
	if snap.Status != nil {
		f.deleteMessage(ctx, *snap.Status)
	}
	f.reply(ctx, card, f.Texts.T("cancel_ok"), nil)
	f.Logger.Info("session cancelled", "token", token, "was", snap.State)
	return nil
}

func (f *Flow) editKeyboard(ctx context.Context, ref model.MessageRef, kb *chat.Keyboard) {
	if err := f.Messenger.EditKeyboard(ctx, ref, kb); err != nil && !chat.IsBadRequest(err) {
		f.Logger.Warn("edit keyboard failed", "chat_id", ref.ChatID, "message_id", ref.MessageID, "error", err)
	}
}

func (f *Flow) editText(ctx context.Context, ref model.MessageRef, text string) {
	if err := f.Messenger.EditText(ctx, ref, text); err != nil && !chat.IsBadRequest(err) {
		f.Logger.Warn("edit message failed", "chat_id", ref.ChatID, "message_id", ref.MessageID, "error", err)
	}
}

func (f *Flow) deleteMessage(ctx context.Context, ref model.MessageRef) {
	if err := f.Messenger.Delete(ctx, ref); err != nil && !chat.IsBadRequest(err) {
		f.Logger.Warn("delete message failed", "chat_id", ref.ChatID, "message_id", ref.MessageID, "error", err)
	}
}
