// Package telegram adapts the Telegram Bot API to chat.Messenger.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/yokitheyo/gamdlbot/internal/chat"
	"github.com/yokitheyo/gamdlbot/internal/model"
)

type Client struct {
	api    *tgbotapi.BotAPI
	logger *slog.Logger
}

func New(token string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	_ = tgbotapi.SetLogger(slogAdapter{logger: logger})
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect telegram: %w", translate(err))
	}
	logger.Info("telegram authorised", "bot", api.Self.UserName)
	return &Client{api: api, logger: logger}, nil
}

func (c *Client) Username() string { return c.api.Self.UserName }

// Updates long-polls until ctx is done. Any leftover webhook is removed
// first so polling does not conflict with it.
func (c *Client) Updates(ctx context.Context) <-chan chat.Update {
	if _, err := c.api.Request(tgbotapi.DeleteWebhookConfig{DropPendingUpdates: false}); err != nil {
		c.logger.Debug("delete webhook failed", "error", err)
	}
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 60
	in := c.api.GetUpdatesChan(cfg)

	out := make(chan chat.Update)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				c.api.StopReceivingUpdates()
				return
			case u, ok := <-in:
				if !ok {
					return
				}
				conv, ok := convertUpdate(u)
				if !ok {
					continue
				}
				select {
				case out <- conv:
				case <-ctx.Done():
					c.api.StopReceivingUpdates()
					return
				}
			}
		}
	}()
	return out
}

func convertUpdate(u tgbotapi.Update) (chat.Update, bool) {
	switch {
	case u.CallbackQuery != nil:
		cq := u.CallbackQuery
		cb := &chat.Callback{ID: cq.ID, Data: cq.Data}
		if cq.From != nil {
			cb.From = chat.User{ID: cq.From.ID, Username: cq.From.UserName}
		}
		if cq.Message != nil && cq.Message.Chat != nil {
			cb.Message = model.MessageRef{ChatID: cq.Message.Chat.ID, MessageID: cq.Message.MessageID}
		}
		return chat.Update{Callback: cb}, true
	case u.Message != nil && u.Message.Chat != nil:
		m := u.Message
		msg := &chat.Message{
			Ref:  model.MessageRef{ChatID: m.Chat.ID, MessageID: m.MessageID},
			Text: m.Text,
		}
		if m.From != nil {
			msg.From = chat.User{ID: m.From.ID, Username: m.From.UserName}
		}
		if m.IsCommand() {
			msg.Command = m.Command()
			msg.Args = m.CommandArguments()
		}
		return chat.Update{Message: msg}, true
	}
	return chat.Update{}, false
}

func (c *Client) SendText(_ context.Context, chatID int64, text string, replyTo int, kb *chat.Keyboard) (model.MessageRef, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyToMessageID = replyTo
	if kb != nil {
		msg.ReplyMarkup = markup(kb)
	}
	sent, err := c.api.Send(msg)
	if err != nil {
		return model.MessageRef{}, translate(err)
	}
	return model.MessageRef{ChatID: chatID, MessageID: sent.MessageID}, nil
}

func (c *Client) SendPhoto(_ context.Context, chatID int64, photo chat.File, caption string, kb *chat.Keyboard) (model.MessageRef, error) {
	cfg := tgbotapi.NewPhoto(chatID, fileData(photo))
	cfg.Caption = caption
	if kb != nil {
		cfg.ReplyMarkup = markup(kb)
	}
	sent, err := c.api.Send(cfg)
	if err != nil {
		return model.MessageRef{}, translate(err)
	}
	return model.MessageRef{ChatID: chatID, MessageID: sent.MessageID}, nil
}

func (c *Client) SendMediaGroup(_ context.Context, chatID int64, items []chat.Audio) error {
	media := make([]interface{}, 0, len(items))
	for _, it := range items {
		m := tgbotapi.NewInputMediaAudio(fileData(it.File))
		m.Title = it.Title
		m.Performer = it.Performer
		m.Duration = it.Duration
		if !it.Thumb.Empty() {
			m.Thumb = fileData(*it.Thumb)
		}
		media = append(media, m)
	}
	if _, err := c.api.SendMediaGroup(tgbotapi.NewMediaGroup(chatID, media)); err != nil {
		return translate(err)
	}
	return nil
}

func (c *Client) SendAudio(_ context.Context, chatID int64, a chat.Audio) error {
	cfg := tgbotapi.NewAudio(chatID, fileData(a.File))
	cfg.Title = a.Title
	cfg.Performer = a.Performer
	cfg.Duration = a.Duration
	if !a.Thumb.Empty() {
		cfg.Thumb = fileData(*a.Thumb)
	}
	_, err := c.api.Send(cfg)
	return translate(err)
}

func (c *Client) SendVideo(_ context.Context, chatID int64, v chat.Video) error {
	cfg := tgbotapi.NewVideo(chatID, fileData(v.File))
	cfg.SupportsStreaming = true
	if !v.Thumb.Empty() {
		cfg.Thumb = fileData(*v.Thumb)
	}
	_, err := c.api.Send(cfg)
	return translate(err)
}

func (c *Client) SendDocument(_ context.Context, chatID int64, d chat.Document) error {
	_, err := c.api.Send(tgbotapi.NewDocument(chatID, fileData(d.File)))
	return translate(err)
}

func (c *Client) SendAction(_ context.Context, chatID int64, action chat.Action) error {
	_, err := c.api.Request(tgbotapi.NewChatAction(chatID, string(action)))
	return translate(err)
}

func (c *Client) EditText(_ context.Context, ref model.MessageRef, text string) error {
	_, err := c.api.Request(tgbotapi.NewEditMessageText(ref.ChatID, ref.MessageID, text))
	return translate(err)
}

func (c *Client) EditKeyboard(_ context.Context, ref model.MessageRef, kb *chat.Keyboard) error {
	if kb == nil {
		cfg := tgbotapi.EditMessageReplyMarkupConfig{
			BaseEdit: tgbotapi.BaseEdit{ChatID: ref.ChatID, MessageID: ref.MessageID},
		}
		_, err := c.api.Request(cfg)
		return translate(err)
	}
	_, err := c.api.Request(tgbotapi.NewEditMessageReplyMarkup(ref.ChatID, ref.MessageID, markup(kb)))
	return translate(err)
}

func (c *Client) Delete(_ context.Context, ref model.MessageRef) error {
	_, err := c.api.Request(tgbotapi.NewDeleteMessage(ref.ChatID, ref.MessageID))
	return translate(err)
}

func (c *Client) AnswerCallback(_ context.Context, callbackID, text string) error {
	_, err := c.api.Request(tgbotapi.NewCallback(callbackID, text))
	return translate(err)
}

func (c *Client) ChatMember(_ context.Context, channel string, userID int64) (string, error) {
	cfg := tgbotapi.ChatConfigWithUser{UserID: userID}
	if strings.HasPrefix(channel, "@") {
		cfg.SuperGroupUsername = channel
	} else {
		id, err := strconv.ParseInt(channel, 10, 64)
		if err != nil {
			return "", fmt.Errorf("invalid channel id %q: %w", channel, err)
		}
		cfg.ChatID = id
	}
	member, err := c.api.GetChatMember(tgbotapi.GetChatMemberConfig{ChatConfigWithUser: cfg})
	if err != nil {
		return "", translate(err)
	}
	return member.Status, nil
}

func fileData(f chat.File) tgbotapi.RequestFileData {
	switch {
	case f.URL != "":
		return tgbotapi.FileURL(f.URL)
	case len(f.Data) > 0:
		name := f.Name
		if name == "" {
			name = "file"
		}
		return tgbotapi.FileBytes{Name: name, Bytes: f.Data}
	default:
		return tgbotapi.FilePath(f.Path)
	}
}

func markup(kb *chat.Keyboard) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb.Rows))
	for _, r := range kb.Rows {
		row := make([]tgbotapi.InlineKeyboardButton, 0, len(r))
		for _, b := range r {
			if b.URL != "" {
				row = append(row, tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL))
				continue
			}
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		rows = append(rows, row)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// translate maps Bot API failures onto chat.APIError kinds.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		kind := chat.KindOther
		switch apiErr.Code {
		case 400:
			kind = chat.KindBadRequest
		case 403:
			kind = chat.KindForbidden
		}
		return &chat.APIError{Kind: kind, Code: apiErr.Code, Description: apiErr.Message}
	}
	return err
}

type slogAdapter struct {
	logger *slog.Logger
}

func (a slogAdapter) Println(v ...interface{}) {
	a.logger.Debug(strings.TrimSpace(fmt.Sprintln(v...)), "component", "telegram")
}

func (a slogAdapter) Printf(format string, v ...interface{}) {
	a.logger.Debug(fmt.Sprintf(format, v...), "component", "telegram")
}
