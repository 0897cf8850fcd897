package catalog

import (
	"strconv"
	"strings"

	"github.com/yokitheyo/gamdlbot/internal/i18n"
	"github.com/yokitheyo/gamdlbot/internal/model"
)

// BuildCaption renders the card shown above the quality keyboard. The link
// is only included when showURL is set.
func BuildCaption(texts *i18n.Catalog, meta *model.Metadata, page *model.PageMeta, link string, showURL bool) string {
	if texts == nil {
		texts = i18n.Default()
	}
	if meta == nil && page == nil {
		return texts.T("prompt_choose_quality")
	}
	var m model.Metadata
	if meta != nil {
		m = *meta
	}
	var pageTitle string
	if page != nil {
		pageTitle = page.Title
	}

	title := firstOf(m.TrackName, m.CollectionName, pageTitle, m.ArtistName, "Unknown")
	release := m.ReleaseDate
	if len(release) > 10 {
		release = release[:10]
	}
	kind := firstOf(m.Kind, m.WrapperType)
	count := m.TrackCount
	if count == 0 {
		count = m.TrackNumber
	}

	lines := []string{texts.T("caption_title_prefix", "title", title)}
	if m.ArtistName != "" {
		lines = append(lines, texts.T("caption_artist_prefix", "artist", m.ArtistName))
	}
	if m.CollectionName != "" {
		lines = append(lines, texts.T("caption_album_prefix", "album", m.CollectionName))
	}
	if release != "" {
		lines = append(lines, texts.T("caption_date_prefix", "date", release))
	}
	if kind != "" {
		lines = append(lines, texts.T("caption_type_prefix", "kind", kind))
	}
	if count > 0 {
		lines = append(lines, texts.T("caption_tracks_prefix", "count", strconv.Itoa(count)))
	}
	if showURL && link != "" {
		lines = append(lines, "", texts.T("caption_link", "url", link))
	}
	lines = append(lines, "", texts.T("choose_quality"))
	return strings.Join(lines, "\n")
}

func firstOf(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
