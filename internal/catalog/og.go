package catalog

import (
	"context"
	"io"
	"strings"

	"golang.org/x/net/html"

	"github.com/yokitheyo/gamdlbot/internal/model"
)

// PageMeta scrapes og:image, og:title and og:description from a page.
// It returns nil when none are present.
func (c *Client) PageMeta(ctx context.Context, link string) (*model.PageMeta, error) {
	resp, err := c.get(ctx, link)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return ParseOpenGraph(io.LimitReader(resp.Body, maxPageBytes))
}

// ParseOpenGraph reads <meta property|name="og:*" content="..."> tags and
// stops at </head>.
func ParseOpenGraph(r io.Reader) (*model.PageMeta, error) {
	var pm model.PageMeta
	z := html.NewTokenizer(r)
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return nil, err
			}
			return finish(pm), nil
		case html.EndTagToken:
			if name, _ := z.TagName(); string(name) == "head" {
				return finish(pm), nil
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "meta" || !hasAttr {
				continue
			}
			var key, content string
			for {
				k, v, more := z.TagAttr()
				switch strings.ToLower(string(k)) {
				case "property", "name":
					key = strings.ToLower(strings.TrimSpace(string(v)))
				case "content":
					content = strings.TrimSpace(string(v))
				}
				if !more {
					break
				}
			}
			if content == "" {
				continue
			}
			switch key {
			case "og:image":
				setOnce(&pm.Image, content)
			case "og:title":
				setOnce(&pm.Title, content)
			case "og:description":
				setOnce(&pm.Description, content)
			}
		}
	}
}

func setOnce(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

func finish(pm model.PageMeta) *model.PageMeta {
	if pm == (model.PageMeta{}) {
		return nil
	}
	return &pm
}
