// Package chattest provides a recording chat.Messenger for tests.
package chattest

import (
	"context"
	"strings"
	"sync"

	"github.com/yokitheyo/gamdlbot/internal/chat"
	"github.com/yokitheyo/gamdlbot/internal/model"
)

type Call struct {
	Method   string
	ChatID   int64
	Text     string
	Ref      model.MessageRef
	Audios   []chat.Audio
	File     chat.File
	Thumb    *chat.File
	Keyboard *chat.Keyboard
}

// Recorder records every call. Hooks, when set, decide the error returned
// for the matching method.
type Recorder struct {
	mu      sync.Mutex
	calls   []Call
	nextID  int
	Members map[int64]string

	PhotoErr      func(photo chat.File) error
	MediaGroupErr func(items []chat.Audio) error
	AudioErr      func(a chat.Audio) error
	VideoErr      func(v chat.Video) error
	DocumentErr   func(d chat.Document) error
	EditErr       func(ref model.MessageRef) error
	MemberErr     error
}

func New() *Recorder {
	return &Recorder{nextID: 100, Members: map[int64]string{}}
}

func (r *Recorder) record(c Call) model.MessageRef {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	if c.Ref.MessageID == 0 {
		c.Ref = model.MessageRef{ChatID: c.ChatID, MessageID: r.nextID}
	}
	r.calls = append(r.calls, c)
	return c.Ref
}

func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Count returns how many calls were made to method.
func (r *Recorder) Count(method string) int {
	n := 0
	for _, c := range r.Calls() {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Texts returns every text sent or edited, in order.
func (r *Recorder) Texts() []string {
	var out []string
	for _, c := range r.Calls() {
		if c.Method == "SendText" || c.Method == "EditText" {
			out = append(out, c.Text)
		}
	}
	return out
}

// HasText reports whether any sent or edited text contains sub.
func (r *Recorder) HasText(sub string) bool {
	for _, t := range r.Texts() {
		if strings.Contains(t, sub) {
			return true
		}
	}
	return false
}

func (r *Recorder) SendText(_ context.Context, chatID int64, text string, _ int, kb *chat.Keyboard) (model.MessageRef, error) {
	return r.record(Call{Method: "SendText", ChatID: chatID, Text: text, Keyboard: kb}), nil
}

func (r *Recorder) SendPhoto(_ context.Context, chatID int64, photo chat.File, caption string, kb *chat.Keyboard) (model.MessageRef, error) {
	ref := r.record(Call{Method: "SendPhoto", ChatID: chatID, Text: caption, File: photo, Keyboard: kb})
	if r.PhotoErr != nil {
		if err := r.PhotoErr(photo); err != nil {
			return model.MessageRef{}, err
		}
	}
	return ref, nil
}

func (r *Recorder) SendMediaGroup(_ context.Context, chatID int64, items []chat.Audio) error {
	r.record(Call{Method: "SendMediaGroup", ChatID: chatID, Audios: append([]chat.Audio(nil), items...)})
	if r.MediaGroupErr != nil {
		return r.MediaGroupErr(items)
	}
	return nil
}

func (r *Recorder) SendAudio(_ context.Context, chatID int64, a chat.Audio) error {
	r.record(Call{Method: "SendAudio", ChatID: chatID, Audios: []chat.Audio{a}, File: a.File, Thumb: a.Thumb})
	if r.AudioErr != nil {
		return r.AudioErr(a)
	}
	return nil
}

func (r *Recorder) SendVideo(_ context.Context, chatID int64, v chat.Video) error {
	r.record(Call{Method: "SendVideo", ChatID: chatID, File: v.File, Thumb: v.Thumb})
	if r.VideoErr != nil {
		return r.VideoErr(v)
	}
	return nil
}

func (r *Recorder) SendDocument(_ context.Context, chatID int64, d chat.Document) error {
	r.record(Call{Method: "SendDocument", ChatID: chatID, File: d.File})
	if r.DocumentErr != nil {
		return r.DocumentErr(d)
	}
	return nil
}

func (r *Recorder) SendAction(_ context.Context, chatID int64, action chat.Action) error {
	r.record(Call{Method: "SendAction", ChatID: chatID, Text: string(action)})
	return nil
}

func (r *Recorder) EditText(_ context.Context, ref model.MessageRef, text string) error {
	r.record(Call{Method: "EditText", ChatID: ref.ChatID, Ref: ref, Text: text})
	if r.EditErr != nil {
		return r.EditErr(ref)
	}
	return nil
}

func (r *Recorder) EditKeyboard(_ context.Context, ref model.MessageRef, kb *chat.Keyboard) error {
	r.record(Call{Method: "EditKeyboard", ChatID: ref.ChatID, Ref: ref, Keyboard: kb})
	return nil
}

func (r *Recorder) Delete(_ context.Context, ref model.MessageRef) error {
	r.record(Call{Method: "Delete", ChatID: ref.ChatID, Ref: ref})
	return nil
}

func (r *Recorder) AnswerCallback(_ context.Context, callbackID, text string) error {
	r.record(Call{Method: "AnswerCallback", Text: callbackID})
	return nil
}

func (r *Recorder) ChatMember(_ context.Context, channel string, userID int64) (string, error) {
	r.record(Call{Method: "ChatMember", Text: channel, ChatID: userID})
	if r.MemberErr != nil {
		return "", r.MemberErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.Members[userID]; ok {
		return s, nil
	}
	return "left", nil
}

var _ chat.Messenger = (*Recorder)(nil)
