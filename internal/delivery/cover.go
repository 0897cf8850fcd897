package delivery

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var coverNames = []string{"cover", "folder", "artwork", "front"}

// FindCover picks the shared thumbnail for a workspace: a conventionally
// named image at the top level first, otherwise the largest image anywhere.
func FindCover(root string) (string, bool) {
	entries, err := os.ReadDir(root)
	if err == nil {
		for _, want := range coverNames {
			for _, e := range entries {
				if !e.Type().IsRegular() {
					continue
				}
				name := e.Name()
				ext := strings.ToLower(filepath.Ext(name))
				if !imageExts[ext] {
					continue
				}
				if strings.EqualFold(strings.TrimSuffix(name, filepath.Ext(name)), want) {
					return filepath.Join(root, name), true
				}
			}
		}
	}

	type img struct {
		path string
		size int64
	}
	var imgs []img
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.Type().IsRegular() {
			return nil
		}
		if !imageExts[strings.ToLower(filepath.Ext(d.Name()))] {
			return nil
		}
		if info, err := d.Info(); err == nil {
			imgs = append(imgs, img{path: path, size: info.Size()})
		}
		return nil
	})
	if len(imgs) == 0 {
		return "", false
	}
	sort.SliceStable(imgs, func(i, j int) bool { return imgs[i].size > imgs[j].size })
	return imgs[0].path, true
}

// ThumbFetcher downloads a poster image on demand. Implementations must
// reject images they cannot return whole.
type ThumbFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}
