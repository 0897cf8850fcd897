package delivery

import (
	"context"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/dhowden/tag"
)

type Tags struct {
	Title     string
	Performer string
	Duration  int
}

type TagReader interface {
	Read(ctx context.Context, path string) Tags
}

var (
	reTrackPrefix = regexp.MustCompile(`^\s*\d{1,2}\s*[-_.]\s*`)
	reDash        = regexp.MustCompile(`\s*-\s*`)
)

// ParseFilename extracts title and artist from "[NN -] artist - title".
// Artist is empty when the name has no separator.
func ParseFilename(name string) (title, artist string) {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	base = reTrackPrefix.ReplaceAllString(base, "")
	var parts []string
	for _, p := range reDash.Split(base, 3) {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) >= 2 {
		return parts[1], parts[0]
	}
	return strings.TrimSpace(base), ""
}

// FileTagReader reads embedded tags and asks ffprobe for the duration when
// it is installed. Missing fields fall back to the filename.
type FileTagReader struct {
	once    sync.Once
	ffprobe string
}

func (r *FileTagReader) Read(ctx context.Context, path string) Tags {
	var t Tags
	if f, err := os.Open(path); err == nil {
		if m, err := tag.ReadFrom(f); err == nil {
			t.Title = strings.TrimSpace(m.Title())
			t.Performer = strings.TrimSpace(m.Artist())
		}
		_ = f.Close()
	}
	t.Duration = r.readDuration(ctx, path)
	return fillFromFilename(t, filepath.Base(path))
}

func fillFromFilename(t Tags, name string) Tags {
	if t.Title == "" || t.Performer == "" {
		title, artist := ParseFilename(name)
		if t.Title == "" {
			t.Title = title
		}
		if t.Performer == "" {
			t.Performer = artist
		}
	}
	if t.Title == "" {
		t.Title = strings.TrimSuffix(name, filepath.Ext(name))
	}
	return t
}

func (r *FileTagReader) readDuration(ctx context.Context, path string) int {
	r.once.Do(func() {
		if p, err := exec.LookPath("ffprobe"); err == nil {
			r.ffprobe = p
		}
	})
	if r.ffprobe == "" {
		return 0
	}
	out, err := exec.CommandContext(ctx, r.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	).Output()
	if err != nil {
		return 0
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil || secs <= 0 {
		return 0
	}
	return int(math.Floor(secs))
}
