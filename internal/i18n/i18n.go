// Package i18n holds user-facing strings with optional per-locale overrides.
package i18n

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v2"
)

var defaults = map[string]string{
	"start_greeting": "Hi! Send me an Apple Music URL (song/album/playlist/video). I'll show artwork and details, then let you choose quality and send the files.",
	"help_text": "Usage:\n" +
		"1) Send an Apple Music URL\n" +
		"2) Choose a quality preset\n" +
		"3) Choose to send as files or ZIP\n\n" +
		"Admin Commands:\n" +
		"/status — show mode and lists\n" +
		"/public_on — enable Public mode (Admin only)\n" +
		"/public_off — switch to Private mode (Admin only)\n" +
		"/allow <user_id> — allow a user in Private mode (Admin only)\n" +
		"/deny <user_id> — revoke a user in Private mode (Admin only)\n",
	"private_only":            "This bot is currently in Private mode — only approved users can use it.",
	"status_format":           "Mode: {mode}\nAdmins: {admins}\nAllowed users: {allowed}\nActive sessions: {sessions}\nJobs running: {running}/{capacity}",
	"public_on_ok":            "Public mode enabled.",
	"public_off_ok":           "Switched to Private mode. Only admins/allowed users can use it.",
	"admin_only":              "Admin only.",
	"usage_allow":             "Usage: /allow <user_id>",
	"usage_deny":              "Usage: /deny <user_id>",
	"user_allowed":            "User {id} allowed.",
	"user_denied":             "User {id} removed.",
	"session_not_found":       "Session not found.",
	"session_busy":            "This request is already running.",
	"unknown_preset":          "Unknown quality preset.",
	"cancel_ok":               "Cancelled.",
	"downloading_with_preset": "Downloading... ({preset})",
	"uploading_files":         "Uploading files...",
	"uploading_zip":           "Uploading ZIP...",
	"download_failed":         "Download failed.",
	"no_files_found":          "No files found — gamdl did not produce output.",
	"file_too_large":          "File is too large for Telegram: {name} (~{size})",
	"send_complete":           "Done ✔️",
	"send_failed":             "Failed to send file: {error}",
	"choose_quality":          "Choose a quality preset:",
	"choose_send_mode":        "Choose how to send:",
	"zip_too_big":             "ZIP exceeds the size limit — sending as individual files.",
	"caption_title_prefix":    "Title: {title}",
	"caption_artist_prefix":   "Artist: {artist}",
	"caption_album_prefix":    "Album: {album}",
	"caption_date_prefix":     "Release: {date}",
	"caption_type_prefix":     "Type: {kind}",
	"caption_tracks_prefix":   "Tracks: {count}",
	"caption_link":            "{url}",
	"prompt_choose_quality":   "Select a quality preset to proceed:",
	"btn_cancel":              "Cancel",
	"btn_send_files":          "Send as files",
	"btn_send_zip":            "Send as ZIP",
	"btn_back_quality":        "Back",
	"join_required":           "Please join our channel to use this bot.",
	"btn_join_channel":        "Join channel",
	"btn_ive_joined":          "I've joined",
	"sub_thanks":              "Thanks! You can use the bot now.",
	"sub_misconfigured":       "Bot misconfigured: cannot access Force-Subscribe channel (bot must be admin).",
}

type Catalog struct {
	locale    string
	overrides map[string]string
}

func Default() *Catalog {
	return &Catalog{locale: "en", overrides: map[string]string{}}
}

// Load reads <dir>/<locale>.yaml if it exists. A missing file yields the
// built-in English strings.
func Load(dir, locale string) (*Catalog, error) {
	c := Default()
	locale = strings.ToLower(strings.TrimSpace(locale))
	if locale == "" {
		return c, nil
	}
	c.locale = locale
	if dir == "" {
		return c, nil
	}
	data, err := os.ReadFile(filepath.Join(dir, locale+".yaml"))
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("read locale %s: %w", locale, err)
	}
	if err := yaml.Unmarshal(data, &c.overrides); err != nil {
		return nil, fmt.Errorf("parse locale %s: %w", locale, err)
	}
	return c, nil
}

func (c *Catalog) Locale() string { return c.locale }

// T looks key up and substitutes {name} placeholders from alternating
// name/value pairs.
func (c *Catalog) T(key string, kv ...any) string {
	tmpl, ok := c.overrides[key]
	if !ok || tmpl == "" {
		tmpl, ok = defaults[key]
	}
	if !ok {
		tmpl = key
	}
	if len(kv) == 0 {
		return tmpl
	}
	pairs := make([]string, 0, len(kv))
	for i := 0; i+1 < len(kv); i += 2 {
		pairs = append(pairs, "{"+fmt.Sprint(kv[i])+"}", fmt.Sprint(kv[i+1]))
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}
