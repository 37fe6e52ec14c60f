// Package presets lists sound categories and their files. Dir reads a
// directory tree, Handler serves it over HTTP and Client reads it back.
package presets

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Preset is one category in the directory listing.
type Preset struct {
	Category string `json:"category"`
	Name     string `json:"name"`
	Count    int    `json:"count"`
}

// Sound is a playable file of a category. ID is "<category>-<index>".
type Sound struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Listing is the content of one category.
type Listing struct {
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Sounds   []Sound `json:"sounds"`
}

// Directory is anything that can list presets.
type Directory interface {
	ListPresets(ctx context.Context) ([]Preset, error)
	ListSounds(ctx context.Context, category string) (Listing, error)
}

var audioExt = regexp.MustCompile(`(?i)\.(wav|mp3|ogg)$`)

// IsAudioFile reports whether name has a wav, mp3 or ogg extension.
func IsAudioFile(name string) bool { return audioExt.MatchString(name) }

// Dir lists presets stored as <root>/<category>/<file>.
type Dir struct {
	root string
}

func NewDir(root string) *Dir { return &Dir{root: root} }

func (d *Dir) Root() string { return d.root }

func (d *Dir) ListPresets(ctx context.Context) ([]Preset, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, errors.Wrap(err, "scan presets directory")
	}
	out := []Preset{}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		files, err := audioFiles(filepath.Join(d.root, e.Name()))
		if err != nil {
			return nil, errors.Wrapf(err, "scan preset %s", e.Name())
		}
		out = append(out, Preset{Category: e.Name(), Name: e.Name(), Count: len(files)})
	}
	return out, nil
}

// ListSounds lists the audio files of category in directory order. A category
// that does not exist, or that names something outside the root, lists no
// sounds.
func (d *Dir) ListSounds(ctx context.Context, category string) (Listing, error) {
	l := Listing{Name: category, Category: category, Sounds: []Sound{}}
	if !validCategory(category) {
		return l, nil
	}
	files, err := audioFiles(filepath.Join(d.root, category))
	if errors.Is(err, os.ErrNotExist) {
		return l, nil
	}
	if err != nil {
		return l, errors.Wrapf(err, "scan preset %s", category)
	}
	for i, f := range files {
		l.Sounds = append(l.Sounds, Sound{
			ID:   category + "-" + strconv.Itoa(i),
			Name: f,
			URL:  SoundURL(category, f),
		})
	}
	return l, nil
}

// SoundURL is the static path a sound file is served under.
func SoundURL(category, file string) string {
	return "/presets/" + category + "/" + url.PathEscape(file)
}

// Resolve maps a URL produced by ListSounds back to the file under root.
func (d *Dir) Resolve(ref string) (string, bool) {
	rest, ok := strings.CutPrefix(ref, "/presets/")
	if !ok {
		return "", false
	}
	category, escaped, ok := strings.Cut(rest, "/")
	if !ok || !validCategory(category) {
		return "", false
	}
	name, err := url.PathUnescape(escaped)
	if err != nil || !validCategory(name) {
		return "", false
	}
	return filepath.Join(d.root, category, name), true
}

func validCategory(c string) bool {
	return c != "" && c != "." && c != ".." && !strings.ContainsAny(c, `/\`)
}

func audioFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if IsAudioFile(e.Name()) {
			out = append(out, e.Name())
		}
	}
	return out, nil
}
