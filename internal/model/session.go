package model

import "time"

type State string

const (
	StateCollecting   State = "collecting"
	StatePresetChosen State = "preset_chosen"
	StateRunning      State = "running"
	StateTerminal     State = "terminal"
)

type SendMode string

const (
	ModeFiles SendMode = "files"
	ModeZip   SendMode = "zip"
)

func ParseSendMode(raw string) (SendMode, bool) {
	switch SendMode(raw) {
	case ModeFiles, ModeZip:
		return SendMode(raw), true
	}
	return "", false
}

// Metadata is the catalog record for the first URL of a request.
// A nil *Metadata means the lookup found nothing.
type Metadata struct {
	TrackName      string `json:"trackName,omitempty"`
	CollectionName string `json:"collectionName,omitempty"`
	ArtistName     string `json:"artistName,omitempty"`
	ReleaseDate    string `json:"releaseDate,omitempty"`
	Kind           string `json:"kind,omitempty"`
	WrapperType    string `json:"wrapperType,omitempty"`
	TrackCount     int    `json:"trackCount,omitempty"`
	TrackNumber    int    `json:"trackNumber,omitempty"`
	ArtworkURL100  string `json:"artworkUrl100,omitempty"`
}

// PageMeta holds og:* tags scraped from the request page.
type PageMeta struct {
	Image       string `json:"image,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

// MessageRef points at a chat message the bot owns.
type MessageRef struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int   `json:"message_id"`
}

type Session struct {
	Token     string    `json:"token"`
	URLs      []string  `json:"urls"`
	ChatID    int64     `json:"chat_id"`
	UserID    int64     `json:"user_id"`
	State     State     `json:"state"`
	Preset    string    `json:"preset,omitempty"`
	Mode      SendMode  `json:"mode,omitempty"`
	Meta      *Metadata `json:"meta,omitempty"`
	Page      *PageMeta `json:"page,omitempty"`
	PosterURL string    `json:"poster_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	Status         *MessageRef `json:"status,omitempty"`
	ProgressPrefix string      `json:"-"`
}

// Clone returns a copy that shares no mutable state with s.
func (s *Session) Clone() Session {
	c := *s
	c.URLs = append([]string(nil), s.URLs...)
	if s.Meta != nil {
		m := *s.Meta
		c.Meta = &m
	}
	if s.Page != nil {
		p := *s.Page
		c.Page = &p
	}
	if s.Status != nil {
		st := *s.Status
		c.Status = &st
	}
	return c
}

type Preset struct {
	ID    string   `yaml:"id" json:"id"`
	Label string   `yaml:"label" json:"label"`
	Args  []string `yaml:"args" json:"args"`
}

// DownloadRecord is one attempt as handed to the persistence collaborator.
type DownloadRecord struct {
	UserID int64
	URL    string
	Title  string
	Artist string
	Album  string
	ArtURL string
	Preset string
	Mode   SendMode
	Status string
	Error  string
}

type UserRecord struct {
	UserID    int64
	Username  string
	IsAdmin   bool
	IsAllowed bool
	Locale    string
}
