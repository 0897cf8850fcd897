// Package bot is the conversation state machine: it turns chat updates into
// session transitions and download jobs.
package bot

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/yokitheyo/gamdlbot/internal/access"
	"github.com/yokitheyo/gamdlbot/internal/archive"
	"github.com/yokitheyo/gamdlbot/internal/catalog"
	"github.com/yokitheyo/gamdlbot/internal/chat"
	"github.com/yokitheyo/gamdlbot/internal/config"
	"github.com/yokitheyo/gamdlbot/internal/delivery"
	"github.com/yokitheyo/gamdlbot/internal/gamdl"
	"github.com/yokitheyo/gamdlbot/internal/i18n"
	"github.com/yokitheyo/gamdlbot/internal/limiter"
	"github.com/yokitheyo/gamdlbot/internal/model"
	"github.com/yokitheyo/gamdlbot/internal/progress"
	"github.com/yokitheyo/gamdlbot/internal/session"
	"github.com/yokitheyo/gamdlbot/internal/store"
)

// Downloader runs one job; *gamdl.Runner is the production implementation.
type Downloader interface {
	Run(ctx context.Context, job gamdl.Job, sink progress.Sink) gamdl.Result
}

type Deliverer interface {
	Deliver(ctx context.Context, chatID int64, root, posterURL string) (delivery.Report, error)
}

// Resolver looks up display metadata for a link.
type Resolver interface {
	Resolve(ctx context.Context, link string) catalog.Info
	Fetch(ctx context.Context, url string) ([]byte, error)
}

type Settings struct {
	OutputRoot       string
	TempDirPrefix    string
	ProgressInterval time.Duration
	CaptionShowURL   bool
}

type Deps struct {
	Messenger  chat.Messenger
	Store      *session.Store
	Limiter    *limiter.Limiter
	Downloader Downloader
	Deliverer  Deliverer
	Packager   archive.Packager
	Catalog    Resolver
	Guard      *access.Guard
	Recorder   store.Recorder
	Texts      *i18n.Catalog
	Presets    config.Presets
	Settings   Settings
	Logger     *slog.Logger
}

type Flow struct {
	Deps
	jobs sync.WaitGroup

	// jobCtx outlives individual updates; Abort cancels it.
	jobCtx context.Context
	abort  context.CancelFunc
}

func NewFlow(d Deps) *Flow {
	if d.Store == nil {
		d.Store = session.NewStore()
	}
	if d.Limiter == nil {
		d.Limiter = limiter.New(1)
	}
	if d.Recorder == nil {
		d.Recorder = store.Nop{}
	}
	if d.Texts == nil {
		d.Texts = i18n.Default()
	}
	if len(d.Presets) == 0 {
		d.Presets = config.DefaultPresets()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Guard == nil {
		d.Guard = access.NewGuard(access.Options{Public: true, Texts: d.Texts, Logger: d.Logger})
	}
	if d.Settings.TempDirPrefix == "" {
		d.Settings.TempDirPrefix = archive.DefaultPrefix
	}
	if d.Settings.ProgressInterval <= 0 {
		d.Settings.ProgressInterval = progress.DefaultInterval
	}
	f := &Flow{Deps: d}
	f.jobCtx, f.abort = context.WithCancel(context.Background())
	return f
}

// Abort cancels running jobs, killing their downloader processes.
func (f *Flow) Abort() {
	f.abort()
}

// Run consumes updates until the channel closes or ctx is done, then waits
// for in-flight handlers and jobs.
func (f *Flow) Run(ctx context.Context, updates <-chan chat.Update) {
	var handlers sync.WaitGroup
	defer func() {
		handlers.Wait()
		f.Wait()
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			handlers.Add(1)
			go func() {
				defer handlers.Done()
				f.HandleUpdate(ctx, u)
			}()
		}
	}
}

// Wait blocks until every started job has finished.
func (f *Flow) Wait() {
	f.jobs.Wait()
}

func (f *Flow) HandleUpdate(ctx context.Context, u chat.Update) {
	defer func() {
		if r := recover(); r != nil {
			f.Logger.Error("update handler panicked", "panic", r)
		}
	}()
	switch {
	case u.Callback != nil:
		f.handleCallback(ctx, u.Callback)
	case u.Message != nil && u.Message.Command != "":
		f.handleCommand(ctx, u.Message)
	case u.Message != nil:
		f.handleMessage(ctx, u.Message)
	}
}

func (f *Flow) handleCallback(ctx context.Context, cb *chat.Callback) {
	if err := f.Messenger.AnswerCallback(ctx, cb.ID, ""); err != nil {
		f.Logger.Debug("answer callback failed", "error", err)
	}

	act, err := ParseAction(cb.Data)
	if err != nil {
		f.Logger.Debug("ignoring callback", "data", cb.Data, "error", err)
		return
	}
	if act.Kind == ActionCheckSub {
		f.recheckSubscription(ctx, cb)
		return
	}
	if !f.admit(ctx, cb.From, cb.Message.ChatID, 0) {
		return
	}

	switch act.Kind {
	case ActionChoosePreset:
		err = f.ChoosePreset(ctx, act.Token, act.Preset, cb.Message)
	case ActionBack:
		err = f.Back(ctx, act.Token, cb.Message)
	case ActionStart:
		err = f.Start(ctx, act.Token, act.Preset, act.Mode, cb.Message)
	case ActionCancel:
		err = f.Cancel(ctx, act.Token, cb.Message)
	}
	if err != nil {
		f.replyError(ctx, cb.Message, err)
	}
}

func (f *Flow) replyError(ctx context.Context, ref model.MessageRef, err error) {
	var key string
	switch {
	case errors.Is(err, model.ErrSessionNotFound):
		key = "session_not_found"
	case errors.Is(err, model.ErrAlreadyRunning):
		key = "session_busy"
	case errors.Is(err, model.ErrUnknownPreset):
		key = "unknown_preset"
	default:
		f.Logger.Warn("callback failed", "chat_id", ref.ChatID, "error", err)
		return
	}
	f.reply(ctx, ref, f.Texts.T(key), nil)
}

func (f *Flow) reply(ctx context.Context, ref model.MessageRef, text string, kb *chat.Keyboard) {
	if _, err := f.Messenger.SendText(ctx, ref.ChatID, text, ref.MessageID, kb); err != nil {
		f.Logger.Warn("send reply failed", "chat_id", ref.ChatID, "error", err)
	}
}

func (f *Flow) recheckSubscription(ctx context.Context, cb *chat.Callback) {
	ok, misconfigured := f.Guard.Subscribed(ctx, cb.From.ID)
	switch {
	case ok:
		f.reply(ctx, cb.Message, f.Texts.T("sub_thanks"), nil)
	case misconfigured:
		f.reply(ctx, cb.Message, f.Texts.T("sub_misconfigured"), nil)
	default:
		f.reply(ctx, cb.Message, f.Texts.T("join_required"), f.Guard.JoinKeyboard())
	}
}

// admit records the user and applies the access gate, replying with the
// reason when the user is turned away.
func (f *Flow) admit(ctx context.Context, u chat.User, chatID int64, replyTo int) bool {
	rec := model.UserRecord{
		UserID:    u.ID,
		Username:  u.Username,
		IsAdmin:   f.Guard.IsAdmin(u.ID),
		IsAllowed: f.Guard.IsAllowed(u.ID),
		Locale:    f.Texts.Locale(),
	}
	if err := f.Recorder.RecordUser(ctx, rec); err != nil {
		f.Logger.Debug("record user failed", "user_id", u.ID, "error", err)
	}

	ref := model.MessageRef{ChatID: chatID, MessageID: replyTo}
	switch f.Guard.Check(ctx, u.ID) {
	case access.Granted:
		return true
	case access.Misconfigured:
		f.reply(ctx, ref, f.Texts.T("sub_misconfigured"), nil)
	case access.NeedsJoin:
		f.reply(ctx, ref, f.Texts.T("join_required"), f.Guard.JoinKeyboard())
	case access.PrivateOnly:
		f.reply(ctx, ref, f.Texts.T("private_only"), nil)
	}
	return false
}
