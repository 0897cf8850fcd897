// Package access decides who may use the bot: public/private mode, the
// admin and allow lists, and the optional force-subscribe channel.
package access

import (
	"context"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/yokitheyo/gamdlbot/internal/chat"
	"github.com/yokitheyo/gamdlbot/internal/i18n"
)

type Verdict int

const (
	Granted Verdict = iota
	// NeedsJoin means the user is not a member of the force-subscribe channel.
	NeedsJoin
	// Misconfigured means the bot cannot read the channel's member list.
	Misconfigured
	PrivateOnly
)

// MemberChecker is the slice of chat.Messenger the guard needs.
type MemberChecker interface {
	ChatMember(ctx context.Context, channel string, userID int64) (string, error)
}

type ForceSub struct {
	Enabled bool
	Channel string
	JoinURL string
}

type Guard struct {
	mu      sync.RWMutex
	public  bool
	admins  map[int64]bool
	allowed map[int64]bool

	sub     ForceSub
	members MemberChecker
	texts   *i18n.Catalog
	logger  *slog.Logger
}

type Options struct {
	Public   bool
	Admins   []int64
	Allowed  []int64
	ForceSub ForceSub
	Members  MemberChecker
	Texts    *i18n.Catalog
	Logger   *slog.Logger
}

func NewGuard(opts Options) *Guard {
	g := &Guard{
		public:  opts.Public,
		admins:  toSet(opts.Admins),
		allowed: toSet(opts.Allowed),
		sub:     opts.ForceSub,
		members: opts.Members,
		texts:   opts.Texts,
		logger:  opts.Logger,
	}
	g.sub.Channel = NormalizeChannel(g.sub.Channel)
	if g.texts == nil {
		g.texts = i18n.Default()
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	return g
}

func toSet(ids []int64) map[int64]bool {
	m := make(map[int64]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}

func (g *Guard) IsAdmin(userID int64) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.admins[userID]
}

func (g *Guard) IsAllowed(userID int64) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.allowed[userID]
}

// Authorized applies the public/private rule only.
func (g *Guard) Authorized(userID int64) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.public || g.allowed[userID] || g.admins[userID]
}

func (g *Guard) Public() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.public
}

func (g *Guard) SetPublic(on bool) {
	g.mu.Lock()
	g.public = on
	g.mu.Unlock()
	g.logger.Info("access mode changed", "public", on)
}

func (g *Guard) Allow(userID int64) {
	g.mu.Lock()
	g.allowed[userID] = true
	g.mu.Unlock()
}

func (g *Guard) Deny(userID int64) {
	g.mu.Lock()
	delete(g.allowed, userID)
	g.mu.Unlock()
}

type Snapshot struct {
	Public  bool
	Admins  []int64
	Allowed []int64
}

func (g *Guard) Snapshot() Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return Snapshot{Public: g.public, Admins: sortedIDs(g.admins), Allowed: sortedIDs(g.allowed)}
}

func sortedIDs(m map[int64]bool) []int64 {
	out := make([]int64, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Subscribed reports channel membership. ok is true when force-subscribe is
// off. misconfigured is set when the bot itself lacks access.
func (g *Guard) Subscribed(ctx context.Context, userID int64) (ok, misconfigured bool) {
	if !g.sub.Enabled || g.sub.Channel == "" || g.members == nil {
		return true, false
	}
	status, err := g.members.ChatMember(ctx, g.sub.Channel, userID)
	switch {
	case err == nil:
		switch status {
		case "member", "administrator", "creator":
			return true, false
		}
		return false, false
	case chat.IsForbidden(err):
		g.logger.Error("bot cannot access force-subscribe channel; make the bot an admin there", "channel", g.sub.Channel)
		return false, true
	default:
		g.logger.Warn("chat member lookup failed", "channel", g.sub.Channel, "user_id", userID, "error", err)
		return false, false
	}
}

// Check runs the full gate: subscription first, then the mode rule.
func (g *Guard) Check(ctx context.Context, userID int64) Verdict {
	ok, misconfigured := g.Subscribed(ctx, userID)
	switch {
	case misconfigured:
		return Misconfigured
	case !ok:
		return NeedsJoin
	case !g.Authorized(userID):
		return PrivateOnly
	}
	return Granted
}

// JoinKeyboard offers the channel link (when one can be derived) and an
// "I've joined" re-check button.
func (g *Guard) JoinKeyboard() *chat.Keyboard {
	link := g.sub.JoinURL
	if link == "" && strings.HasPrefix(g.sub.Channel, "@") {
		link = "https://t.me/" + strings.TrimPrefix(g.sub.Channel, "@")
	}
	kb := chat.NewKeyboard()
	if link != "" {
		kb.Rows = append(kb.Rows, chat.Row(chat.Button{Text: g.texts.T("btn_join_channel"), URL: link}))
	}
	kb.Rows = append(kb.Rows, chat.Row(chat.Button{Text: g.texts.T("btn_ive_joined"), Data: CheckSubData}))
	return kb
}

// CheckSubData is the callback payload of the re-check button.
const CheckSubData = "checksub"

var reTMe = regexp.MustCompile(`t\.me/(@?[\w]+)`)

// NormalizeChannel accepts "@name", "name", a numeric id such as -100123,
// or a t.me link, and returns the form the chat API expects.
func NormalizeChannel(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "http") {
		if m := reTMe.FindStringSubmatch(s); m != nil {
			s = m[1]
		}
	}
	if s == "" || strings.HasPrefix(s, "@") || isNumeric(s) {
		return s
	}
	return "@" + s
}

func isNumeric(s string) bool {
	s = strings.TrimPrefix(s, "-")
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
