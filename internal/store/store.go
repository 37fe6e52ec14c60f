// Package store keeps trims and drum patterns in a JSON file so they survive
// restarts.
package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/cbegin/samplerbox/internal/segment"
	"github.com/cbegin/samplerbox/internal/sequencer"
)

// DefaultPattern is the name patterns are saved under when none is given.
const DefaultPattern = "default"

// Dir returns ~/.config/samplerbox.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "samplerbox"), nil
}

// DefaultPath returns the state file inside Dir.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "state.json"), nil
}

type state struct {
	Trims    map[string]segment.Segment   `json:"trims,omitempty"`
	Patterns map[string]sequencer.Pattern `json:"patterns,omitempty"`
}

// File is a JSON state file. Every change is written straight back.
type File struct {
	mu   sync.Mutex
	path string
	st   state
}

// Open reads path, starting empty when the file does not exist yet.
func Open(path string) (*File, error) {
	f := &File{path: path, st: state{
		Trims:    make(map[string]segment.Segment),
		Patterns: make(map[string]sequencer.Pattern),
	}}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return f, nil
		}
		return nil, errors.Wrap(err, "read state")
	}
	if err := json.Unmarshal(data, &f.st); err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	if f.st.Trims == nil {
		f.st.Trims = make(map[string]segment.Segment)
	}
	if f.st.Patterns == nil {
		f.st.Patterns = make(map[string]sequencer.Pattern)
	}
	return f, nil
}

func (f *File) Path() string { return f.path }

func (f *File) LoadSegment(k segment.Key) (segment.Segment, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seg, ok := f.st.Trims[k.String()]
	return seg, ok
}

func (f *File) SaveSegment(k segment.Key, seg segment.Segment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.st.Trims[k.String()] = seg
	return f.flush()
}

func (f *File) SavePattern(name string, p sequencer.Pattern) error {
	if name == "" {
		name = DefaultPattern
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.st.Patterns[name] = p
	return f.flush()
}

func (f *File) LoadPattern(name string) (sequencer.Pattern, bool) {
	if name == "" {
		name = DefaultPattern
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.st.Patterns[name]
	return p, ok
}

// Patterns lists saved pattern names in order.
func (f *File) Patterns() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.st.Patterns))
	for n := range f.st.Patterns {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// flush writes to a temp file next to path and renames it over path.
func (f *File) flush() error {
	data, err := json.MarshalIndent(f.st, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode state")
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "create state dir")
	}
	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return errors.Wrap(err, "create temp state")
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "write state")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close state")
	}
	return errors.Wrap(os.Rename(tmp.Name(), f.path), "replace state")
}
