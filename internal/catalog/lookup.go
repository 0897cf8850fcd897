// Package catalog resolves Apple Music links to display metadata: the
// iTunes lookup record, og:* page tags, and the best reachable artwork.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/yokitheyo/gamdlbot/internal/model"
)

const (
	DefaultLookupURL = "https://itunes.apple.com/lookup"
	userAgent        = "Mozilla/5.0"
	maxPageBytes     = 2 * 1024 * 1024
)

var (
	urlPattern   = regexp.MustCompile(`(?i)https?://music\.apple\.com/\S+`)
	reStorefront = regexp.MustCompile(`music\.apple\.com/([a-zA-Z\-]{2,})/`)
	reTrackID    = regexp.MustCompile(`[&?]i=(\d+)`)
	reTrailingID = regexp.MustCompile(`/(\d+)(?:\?|$)`)
	reArtSize    = regexp.MustCompile(`/\d+x\d+(bb)?([.\-])`)
)

// ExtractURLs returns every Apple Music link in text, in order.
func ExtractURLs(text string) []string {
	return urlPattern.FindAllString(text, -1)
}

// ParseIDs pulls the storefront (default "us") and the most specific
// catalog id out of a link: the ?i= track id, else the trailing number.
func ParseIDs(link string) (storefront, id string) {
	storefront = "us"
	if m := reStorefront.FindStringSubmatch(link); m != nil {
		storefront = strings.SplitN(m[1], "-", 2)[0]
	}
	if m := reTrackID.FindStringSubmatch(link); m != nil {
		return storefront, m[1]
	}
	if m := reTrailingID.FindStringSubmatch(link); m != nil {
		return storefront, m[1]
	}
	return storefront, ""
}

// InflateArtwork rewrites the "/100x100bb." size segment of an artwork URL.
func InflateArtwork(raw string, size int) string {
	return reArtSize.ReplaceAllString(raw, fmt.Sprintf("/%dx%d${1}${2}", size, size))
}

type Client struct {
	HTTP      *http.Client
	LookupURL string
	Logger    *slog.Logger
}

func NewClient(logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		HTTP:      &http.Client{Timeout: 10 * time.Second},
		LookupURL: DefaultLookupURL,
		Logger:    logger,
	}
}

type lookupResponse struct {
	ResultCount int              `json:"resultCount"`
	Results     []model.Metadata `json:"results"`
}

// Lookup queries the iTunes lookup API. A nil result with a nil error
// means the catalog has no record for id.
func (c *Client) Lookup(ctx context.Context, storefront, id string) (*model.Metadata, error) {
	q := url.Values{"id": {id}, "country": {storefront}}
	endpoint := c.LookupURL
	if endpoint == "" {
		endpoint = DefaultLookupURL
	}
	resp, err := c.get(ctx, endpoint+"?"+q.Encode())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode lookup: %w", err)
	}
	if out.ResultCount == 0 || len(out.Results) == 0 {
		return nil, nil
	}
	meta := out.Results[0]
	return &meta, nil
}

// ResolveArtwork returns the largest inflated variant of raw that answers
// 200, trying 1200, 600 and 300 before raw itself.
func (c *Client) ResolveArtwork(ctx context.Context, raw string) string {
	candidates := []string{
		InflateArtwork(raw, 1200),
		InflateArtwork(raw, 600),
		InflateArtwork(raw, 300),
		raw,
	}
	for _, u := range candidates {
		resp, err := c.get(ctx, u)
		if err != nil {
			continue
		}
		resp.Body.Close()
		return u
	}
	return raw
}

// Info is what the bot shows for a new request.
type Info struct {
	Meta   *model.Metadata
	Page   *model.PageMeta
	Poster string
}

// Resolve gathers metadata for link. Lookup failures degrade to og:* tags
// and then to nothing; Resolve itself never fails.
func (c *Client) Resolve(ctx context.Context, link string) Info {
	var info Info
	storefront, id := ParseIDs(link)
	if id != "" {
		meta, err := c.Lookup(ctx, storefront, id)
		if err != nil {
			c.logger().Debug("itunes lookup failed", "id", id, "error", err)
		}
		info.Meta = meta
	}
	if info.Meta == nil || info.Meta.ArtworkURL100 == "" {
		page, err := c.PageMeta(ctx, link)
		if err != nil {
			c.logger().Debug("og meta fetch failed", "url", link, "error", err)
		}
		info.Page = page
	}

	switch {
	case info.Meta != nil && info.Meta.ArtworkURL100 != "":
		info.Poster = c.ResolveArtwork(ctx, info.Meta.ArtworkURL100)
	case info.Page != nil && info.Page.Image != "":
		info.Poster = c.ResolveArtwork(ctx, info.Page.Image)
	}
	return info
}

const maxImageBytes = 10 * 1024 * 1024

// Fetch downloads a poster so it can be uploaded as bytes when the
// platform refuses the URL. It also serves delivery thumbnails.
func (c *Client) Fetch(ctx context.Context, u string) ([]byte, error) {
	resp, err := c.get(ctx, u)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	lr := &io.LimitedReader{R: resp.Body, N: maxImageBytes + 1}
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if lr.N <= 0 {
		return nil, fmt.Errorf("fetch %s: image too large", u)
	}
	return data, nil
}

func (c *Client) get(ctx context.Context, u string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: HTTP %d", u, resp.StatusCode)
	}
	return resp, nil
}

func (c *Client) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}
