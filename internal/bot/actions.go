package bot

import (
	"fmt"
	"strings"

	"github.com/yokitheyo/gamdlbot/internal/access"
	"github.com/yokitheyo/gamdlbot/internal/chat"
	"github.com/yokitheyo/gamdlbot/internal/model"
)

type ActionKind string

const (
	ActionChoosePreset ActionKind = "q"
	ActionBack         ActionKind = "back"
	ActionStart        ActionKind = "go"
	ActionCancel       ActionKind = "cancel"
	ActionCheckSub     ActionKind = access.CheckSubData
)

// Action is a decoded callback payload.
type Action struct {
	Kind   ActionKind
	Token  string
	Preset string
	Mode   model.SendMode
}

// ParseAction decodes "q:<token>:<preset>", "back:<token>",
// "go:<token>:<preset>:<files|zip>", "cancel:<token>" and "checksub".
func ParseAction(data string) (Action, error) {
	parts := strings.Split(data, ":")
	kind := ActionKind(parts[0])
	want := map[ActionKind]int{
		ActionChoosePreset: 3,
		ActionBack:         2,
		ActionStart:        4,
		ActionCancel:       2,
		ActionCheckSub:     1,
	}
	n, ok := want[kind]
	if !ok {
		return Action{}, fmt.Errorf("unknown action %q", parts[0])
	}
	if len(parts) != n {
		return Action{}, fmt.Errorf("malformed %s action: %q", kind, data)
	}
	act := Action{Kind: kind}
	if n > 1 {
		act.Token = parts[1]
		if act.Token == "" {
			return Action{}, fmt.Errorf("malformed %s action: empty token", kind)
		}
	}
	if n > 2 {
		act.Preset = parts[2]
	}
	if kind == ActionStart {
		mode, ok := model.ParseSendMode(parts[3])
		if !ok {
			return Action{}, fmt.Errorf("unknown send mode %q", parts[3])
		}
		act.Mode = mode
	}
	return act, nil
}

func (a Action) String() string {
	switch a.Kind {
	case ActionChoosePreset:
		return fmt.Sprintf("q:%s:%s", a.Token, a.Preset)
	case ActionStart:
		return fmt.Sprintf("go:%s:%s:%s", a.Token, a.Preset, a.Mode)
	case ActionCheckSub:
		return string(a.Kind)
	default:
		return fmt.Sprintf("%s:%s", a.Kind, a.Token)
	}
}

// qualityKeyboard lists presets two per row, then Cancel.
func (f *Flow) qualityKeyboard(token string) *chat.Keyboard {
	kb := chat.NewKeyboard()
	var row []chat.Button
	for _, p := range f.Presets {
		row = append(row, chat.Button{
			Text: p.Label,
			Data: Action{Kind: ActionChoosePreset, Token: token, Preset: p.ID}.String(),
		})
		if len(row) == 2 {
			kb.Rows = append(kb.Rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		kb.Rows = append(kb.Rows, row)
	}
	kb.Rows = append(kb.Rows, chat.Row(f.cancelButton(token)))
	return kb
}

func (f *Flow) sendModeKeyboard(token, preset string) *chat.Keyboard {
	return chat.NewKeyboard(
		chat.Row(
			chat.Button{Text: f.Texts.T("btn_send_files"), Data: Action{Kind: ActionStart, Token: token, Preset: preset, Mode: model.ModeFiles}.String()},
			chat.Button{Text: f.Texts.T("btn_send_zip"), Data: Action{Kind: ActionStart, Token: token, Preset: preset, Mode: model.ModeZip}.String()},
		),
		chat.Row(
			chat.Button{Text: f.Texts.T("btn_back_quality"), Data: Action{Kind: ActionBack, Token: token}.String()},
			f.cancelButton(token),
		),
	)
}

func (f *Flow) cancelButton(token string) chat.Button {
	return chat.Button{Text: f.Texts.T("btn_cancel"), Data: Action{Kind: ActionCancel, Token: token}.String()}
}
