// Package chat is the boundary to the messaging platform. The bot core only
// talks to Messenger; internal/chat/telegram implements it.
package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/yokitheyo/gamdlbot/internal/model"
)

var (
	// ErrBadRequest covers recoverable rejections such as "message is not
	// modified" or "message to edit not found".
	ErrBadRequest = errors.New("chat: bad request")
	// ErrForbidden means the bot lacks rights in the target chat.
	ErrForbidden = errors.New("chat: forbidden")
)

type ErrorKind int

const (
	KindOther ErrorKind = iota
	KindBadRequest
	KindForbidden
)

type APIError struct {
	Kind        ErrorKind
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chat api error %d: %s", e.Code, e.Description)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrBadRequest:
		return e.Kind == KindBadRequest
	case ErrForbidden:
		return e.Kind == KindForbidden
	}
	return false
}

func IsBadRequest(err error) bool { return errors.Is(err, ErrBadRequest) }
func IsForbidden(err error) bool  { return errors.Is(err, ErrForbidden) }

type Button struct {
	Text string
	Data string
	URL  string
}

// Keyboard is an inline keyboard; a nil *Keyboard removes it.
type Keyboard struct {
	Rows [][]Button
}

func NewKeyboard(rows ...[]Button) *Keyboard {
	return &Keyboard{Rows: rows}
}

func Row(buttons ...Button) []Button { return buttons }

// File is an upload source. Exactly one of Path, Data or URL is set.
type File struct {
	Name string
	Path string
	Data []byte
	URL  string
}

func (f *File) Empty() bool {
	return f == nil || (f.Path == "" && len(f.Data) == 0 && f.URL == "")
}

type Audio struct {
	File      File
	Title     string
	Performer string
	Duration  int
	Thumb     *File
}

type Video struct {
	File  File
	Thumb *File
}

type Document struct {
	File File
}

type Action string

const (
	ActionTyping         Action = "typing"
	ActionUploadPhoto    Action = "upload_photo"
	ActionUploadDocument Action = "upload_document"
)

type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string, replyTo int, kb *Keyboard) (model.MessageRef, error)
	SendPhoto(ctx context.Context, chatID int64, photo File, caption string, kb *Keyboard) (model.MessageRef, error)
	SendMediaGroup(ctx context.Context, chatID int64, items []Audio) error
	SendAudio(ctx context.Context, chatID int64, a Audio) error
	SendVideo(ctx context.Context, chatID int64, v Video) error
	SendDocument(ctx context.Context, chatID int64, d Document) error
	SendAction(ctx context.Context, chatID int64, action Action) error
	EditText(ctx context.Context, ref model.MessageRef, text string) error
	EditKeyboard(ctx context.Context, ref model.MessageRef, kb *Keyboard) error
	Delete(ctx context.Context, ref model.MessageRef) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
	ChatMember(ctx context.Context, channel string, userID int64) (string, error)
}

type User struct {
	ID       int64
	Username string
}

// Update is one inbound event: a message or a button press.
type Update struct {
	Message  *Message
	Callback *Callback
}

type Message struct {
	Ref     model.MessageRef
	From    User
	Text    string
	Command string
	Args    string
}

type Callback struct {
	ID      string
	From    User
	Message model.MessageRef
	Data    string
}
