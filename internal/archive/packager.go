package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/yokitheyo/gamdlbot/internal/model"
)

const (
	// MaxArchiveBytes mirrors the platform upload ceiling.
	MaxArchiveBytes int64 = 2 * 1024 * 1024 * 1024
	maxNameLen            = 120
	fallbackName          = "download"
)

var (
	invalidChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1F]`)
	spaces       = regexp.MustCompile(`\s+`)
)

// SanitizeFilename makes name safe as a single path component.
func SanitizeFilename(name string) string {
	cleaned := invalidChars.ReplaceAllString(name, " ")
	cleaned = strings.Trim(spaces.ReplaceAllString(cleaned, " "), " .-_")
	if cleaned == "" {
		return fallbackName
	}
	if r := []rune(cleaned); len(r) > maxNameLen {
		cleaned = strings.TrimRight(string(r[:maxNameLen]), " .-_")
	}
	return cleaned
}

// ArchiveName builds "artist - album" (or track or page title), falling back
// to whichever half exists and finally to "download".
func ArchiveName(meta *model.Metadata, page *model.PageMeta) string {
	var artist, second string
	if meta != nil {
		artist = strings.TrimSpace(meta.ArtistName)
		second = firstNonEmpty(meta.CollectionName, meta.TrackName)
	}
	if second == "" && page != nil {
		second = strings.TrimSpace(page.Title)
	}
	base := fallbackName
	switch {
	case artist != "" && second != "":
		base = artist + " - " + second
	case artist != "":
		base = artist
	case second != "":
		base = second
	}
	return SanitizeFilename(base)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

type Packager struct {
	MaxBytes int64
}

// Pack writes every regular file under src into destDir/<base>.zip, keeping
// paths relative to src. When the result reaches MaxBytes the archive is
// removed and ErrArchiveTooLarge returned.
func (p Packager) Pack(src, destDir, base string) (string, int64, error) {
	ceiling := p.MaxBytes
	if ceiling <= 0 {
		ceiling = MaxArchiveBytes
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", 0, fmt.Errorf("create archive dir: %w", err)
	}
	archivePath := filepath.Join(destDir, SanitizeFilename(base)+".zip")

	if err := writeZip(src, archivePath); err != nil {
		_ = os.Remove(archivePath)
		return "", 0, err
	}
	info, err := os.Stat(archivePath)
	if err != nil {
		return "", 0, err
	}
	if info.Size() >= ceiling {
		_ = os.Remove(archivePath)
		return "", info.Size(), fmt.Errorf("%s (%d bytes): %w", filepath.Base(archivePath), info.Size(), model.ErrArchiveTooLarge)
	}
	return archivePath, info.Size(), nil
}

func writeZip(src, archivePath string) error {
	zipFile, err := os.Create(archivePath)
	if err != nil {
		return err
	}
	defer zipFile.Close()
	zipWriter := zip.NewWriter(zipFile)

	absArchive, _ := filepath.Abs(archivePath)
	err = filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if abs, _ := filepath.Abs(path); abs == absArchive {
			return nil
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		return addFile(zipWriter, path, filepath.ToSlash(rel))
	})
	if err != nil {
		_ = zipWriter.Close()
		return fmt.Errorf("zip %s: %w", src, err)
	}
	if err := zipWriter.Close(); err != nil {
		return err
	}
	return zipFile.Close()
}

func addFile(zw *zip.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = name
	hdr.Method = zip.Deflate
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, f)
	return err
}

// Unpack extracts zipPath into dest, refusing entries that escape it.
func Unpack(zipPath, dest string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return err
	}
	defer r.Close()

	root, err := filepath.Abs(dest)
	if err != nil {
		return err
	}
	for _, f := range r.File {
		target := filepath.Join(root, filepath.FromSlash(f.Name))
		if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return fmt.Errorf("unpack %s: illegal path %q", zipPath, f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := extract(f, target); err != nil {
			return err
		}
	}
	return nil
}

func extract(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
