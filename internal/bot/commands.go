package bot

import (
	"context"
	"strconv"
	"strings"

	"github.com/yokitheyo/gamdlbot/internal/chat"
)

func (f *Flow) handleCommand(ctx context.Context, msg *chat.Message) {
	switch msg.Command {
	case "start":
		if f.admit(ctx, msg.From, msg.Ref.ChatID, msg.Ref.MessageID) {
			f.reply(ctx, msg.Ref, f.Texts.T("start_greeting"), nil)
		}
	case "help":
		if f.admit(ctx, msg.From, msg.Ref.ChatID, msg.Ref.MessageID) {
			f.reply(ctx, msg.Ref, f.Texts.T("help_text"), nil)
		}
	case "status":
		if f.admit(ctx, msg.From, msg.Ref.ChatID, msg.Ref.MessageID) {
			f.reply(ctx, msg.Ref, f.statusText(), nil)
		}
	case "public_on", "public_off":
		if !f.requireAdmin(ctx, msg) {
			return
		}
		on := msg.Command == "public_on"
		f.Guard.SetPublic(on)
		if on {
			f.reply(ctx, msg.Ref, f.Texts.T("public_on_ok"), nil)
		} else {
			f.reply(ctx, msg.Ref, f.Texts.T("public_off_ok"), nil)
		}
	case "allow":
		if !f.requireAdmin(ctx, msg) {
			return
		}
		id, ok := parseUserID(msg.Args)
		if !ok {
			f.reply(ctx, msg.Ref, f.Texts.T("usage_allow"), nil)
			return
		}
		f.Guard.Allow(id)
		f.reply(ctx, msg.Ref, f.Texts.T("user_allowed", "id", id), nil)
	case "deny":
		if !f.requireAdmin(ctx, msg) {
			return
		}
		id, ok := parseUserID(msg.Args)
		if !ok {
			f.reply(ctx, msg.Ref, f.Texts.T("usage_deny"), nil)
			return
		}
		f.Guard.Deny(id)
		f.reply(ctx, msg.Ref, f.Texts.T("user_denied", "id", id), nil)
	default:
		// Unknown commands may still carry links.
		f.handleMessage(ctx, msg)
	}
}

func (f *Flow) requireAdmin(ctx context.Context, msg *chat.Message) bool {
	if f.Guard.IsAdmin(msg.From.ID) {
		return true
	}
	f.reply(ctx, msg.Ref, f.Texts.T("admin_only"), nil)
	return false
}

func (f *Flow) statusText() string {
	snap := f.Guard.Snapshot()
	mode := "Private"
	if snap.Public {
		mode = "Public"
	}
	return f.Texts.T("status_format",
		"mode", mode,
		"admins", joinIDs(snap.Admins),
		"allowed", joinIDs(snap.Allowed),
		"sessions", f.Store.Len(),
		"running", f.Limiter.InFlight(),
		"capacity", f.Limiter.Capacity(),
	)
}

func joinIDs(ids []int64) string {
	if len(ids) == 0 {
		return "(none)"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ", ")
}

func parseUserID(args string) (int64, bool) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return 0, false
	}
	id, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
