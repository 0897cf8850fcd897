package delivery

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

const (
	// MaxFileBytes is the platform's hard per-upload ceiling.
	MaxFileBytes int64 = 2 * 1024 * 1024 * 1024
	// MaxBatch is the platform's media group limit.
	MaxBatch = 10
)

type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
	KindOther Kind = "other"
)

var (
	audioExts = map[string]bool{".m4a": true, ".mp3": true, ".flac": true, ".wav": true, ".aac": true, ".ogg": true, ".opus": true}
	videoExts = map[string]bool{".mp4": true, ".m4v": true, ".mov": true, ".mkv": true, ".webm": true}
	imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}
)

func KindOf(name string) Kind {
	ext := strings.ToLower(filepath.Ext(name))
	switch {
	case audioExts[ext]:
		return KindAudio
	case videoExts[ext]:
		return KindVideo
	default:
		return KindOther
	}
}

type Item struct {
	Path string
	Rel  string
	Name string
	Size int64
	Kind Kind
}

// Plan partitions a workspace. Items in TooLarge are never transferred.
type Plan struct {
	Audio    []Item
	Video    []Item
	Other    []Item
	TooLarge []Item
}

func (p Plan) Total() int {
	return len(p.Audio) + len(p.Video) + len(p.Other) + len(p.TooLarge)
}

// Classify walks root recursively and sorts regular files by kind.
func Classify(root string, ceiling int64) (Plan, error) {
	if ceiling <= 0 {
		ceiling = MaxFileBytes
	}
	var items []Item
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		items = append(items, Item{
			Path: path,
			Rel:  filepath.ToSlash(rel),
			Name: d.Name(),
			Size: info.Size(),
			Kind: KindOf(d.Name()),
		})
		return nil
	})
	if err != nil {
		return Plan{}, fmt.Errorf("scan workspace %s: %w", root, err)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Rel < items[j].Rel })

	var p Plan
	for _, it := range items {
		if it.Size >= ceiling {
			p.TooLarge = append(p.TooLarge, it)
			continue
		}
		switch it.Kind {
		case KindAudio:
			p.Audio = append(p.Audio, it)
		case KindVideo:
			p.Video = append(p.Video, it)
		default:
			p.Other = append(p.Other, it)
		}
	}
	return p, nil
}

// Batches splits items into consecutive groups of at most size.
func Batches(items []Item, size int) [][]Item {
	if size <= 0 {
		size = MaxBatch
	}
	var out [][]Item
	for len(items) > 0 {
		n := size
		if len(items) < n {
			n = len(items)
		}
		out = append(out, items[:n:n])
		items = items[n:]
	}
	return out
}
