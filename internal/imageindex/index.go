// Package imageindex finds the rasterised drawing pages for an equipment's
// PMT number.
package imageindex

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// mediaTypes maps the extensions that can be sent to a vision model.
var mediaTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
	".gif":  "image/gif",
}

// MediaType returns the media type for a file name, or "" when the
// extension is not a supported image format.
func MediaType(name string) string {
	return mediaTypes[strings.ToLower(filepath.Ext(name))]
}

// Image is one candidate drawing page.
type Image struct {
	Path      string
	MediaType string
}

// Read loads the image bytes.
func (i Image) Read() ([]byte, error) {
	data, err := os.ReadFile(i.Path)
	if err != nil {
		return nil, eris.Wrapf(err, "imageindex: read %s", i.Path)
	}
	return data, nil
}

// Index returns the candidate images for a PMT number.
type Index interface {
	Lookup(pmt string) ([]Image, error)
}

type entry struct {
	key   string
	image Image
}

// Dir is an Index over a directory tree, scanned once at Open.
type Dir struct {
	root    string
	entries []entry
}

// Open walks root and indexes every file whose extension is in exts and is
// a supported image format. Empty exts indexes every supported format.
func Open(root string, exts []string) (*Dir, error) {
	allowed := make(map[string]bool, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		allowed[e] = true
	}

	d := &Dir{root: root}
	err := filepath.WalkDir(root, func(path string, de fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if de.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(de.Name()))
		mt := mediaTypes[ext]
		if mt == "" || (len(allowed) > 0 && !allowed[ext]) {
			return nil
		}
		stem := strings.TrimSuffix(de.Name(), filepath.Ext(de.Name()))
		d.entries = append(d.entries, entry{key: Normalize(stem), image: Image{Path: path, MediaType: mt}})
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "imageindex: walk %s", root)
	}

	sort.Slice(d.entries, func(i, j int) bool { return d.entries[i].image.Path < d.entries[j].image.Path })
	zap.L().Info("imageindex: indexed drawings",
		zap.String("dir", root),
		zap.Int("images", len(d.entries)),
	)
	return d, nil
}

// Lookup returns images whose normalised file name contains the normalised
// PMT number, sorted by path. An empty PMT number matches nothing.
func (d *Dir) Lookup(pmt string) ([]Image, error) {
	key := Normalize(pmt)
	if key == "" {
		return nil, nil
	}
	var out []Image
	for _, e := range d.entries {
		if strings.Contains(e.key, key) {
			out = append(out, e.image)
		}
	}
	return out, nil
}

// Len returns the number of indexed images.
func (d *Dir) Len() int { return len(d.entries) }

var folder = cases.Fold()

// Normalize case-folds s, applies NFKC and keeps only letters and digits,
// so "PMT-1234 rev.A" and "pmt1234reva" compare equal.
func Normalize(s string) string {
	s = norm.NFKC.String(folder.String(s))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
