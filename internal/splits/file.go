// Package splits holds the split file: the ordered segments of a run with
// their historical best and gold times, and its TOML encoding.
package splits

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/afero"

	"github.com/verte-zerg/wlsplit/internal/model"
)

const (
	DefaultGame     = "Example Splits"
	DefaultCategory = "Any%"
	DefaultSplit    = "Example Segment"
)

// Split is one named segment with its stored best cumulative time and its
// fastest single-segment (gold) time. Nil means no value is stored.
type Split struct {
	Name string
	Best *time.Duration
	Gold *time.Duration
}

// File is the in-memory split store.
type File struct {
	Game     string
	Category string
	Splits   []Split
}

// Defaults carries the creation parameters used when no split file exists.
// SplitNames is a comma-separated list.
type Defaults struct {
	Game       string
	Category   string
	SplitNames string
}

// fileDoc and splitDoc mirror the on-disk layout. Field order here is the
// key order in the encoded file.
type fileDoc struct {
	Game     string     `toml:"game"`
	Category string     `toml:"category"`
	Splits   []splitDoc `toml:"splits"`
}

type splitDoc struct {
	Name     string `toml:"name"`
	BestTime string `toml:"best_time,omitempty"`
	GoldTime string `toml:"gold_time,omitempty"`
}

// New builds a file from creation parameters, filling in defaults for
// anything left empty.
func New(d Defaults) File {
	f := File{
		Game:     strings.TrimSpace(d.Game),
		Category: strings.TrimSpace(d.Category),
	}
	if f.Game == "" {
		f.Game = DefaultGame
	}
	if f.Category == "" {
		f.Category = DefaultCategory
	}
	for _, name := range strings.Split(d.SplitNames, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		f.Splits = append(f.Splits, Split{Name: name})
	}
	if len(f.Splits) == 0 {
		f.Splits = []Split{{Name: DefaultSplit}}
	}
	return f
}

// Clone returns a deep copy of f.
func (f File) Clone() File {
	out := File{Game: f.Game, Category: f.Category, Splits: make([]Split, len(f.Splits))}
	for i, s := range f.Splits {
		out.Splits[i] = Split{Name: s.Name, Best: cloneDuration(s.Best), Gold: cloneDuration(s.Gold)}
	}
	return out
}

// Validate reports structural problems that would make the file unusable for
// a run.
func (f File) Validate() error {
	if len(f.Splits) == 0 {
		return fmt.Errorf("split file has no splits")
	}
	for i, s := range f.Splits {
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("split %d has an empty name", i+1)
		}
		if s.Best != nil && *s.Best < 0 {
			return fmt.Errorf("split %q has a negative best_time", s.Name)
		}
		if s.Gold != nil && *s.Gold < 0 {
			return fmt.Errorf("split %q has a negative gold_time", s.Name)
		}
	}
	return nil
}

// Decode parses a split file. Missing best_time/gold_time keys are absent
// values; unknown keys are rejected.
func Decode(data []byte) (File, error) {
	var doc fileDoc
	md, err := toml.Decode(string(data), &doc)
	if err != nil {
		return File{}, fmt.Errorf("failed to decode split file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return File{}, fmt.Errorf("unknown keys in split file: %s", strings.Join(keys, ", "))
	}

	f := File{Game: doc.Game, Category: doc.Category, Splits: make([]Split, 0, len(doc.Splits))}
	for _, sd := range doc.Splits {
		s := Split{Name: sd.Name}
		if sd.BestTime != "" {
			d, err := ParseDuration(sd.BestTime)
			if err != nil {
				return File{}, fmt.Errorf("split %q best_time: %w", sd.Name, err)
			}
			s.Best = &d
		}
		if sd.GoldTime != "" {
			d, err := ParseDuration(sd.GoldTime)
			if err != nil {
				return File{}, fmt.Errorf("split %q gold_time: %w", sd.Name, err)
			}
			s.Gold = &d
		}
		f.Splits = append(f.Splits, s)
	}
	if err := f.Validate(); err != nil {
		return File{}, err
	}
	return f, nil
}

// Encode renders f deterministically: identical files always produce
// identical bytes.
func Encode(f File) ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	doc := fileDoc{Game: f.Game, Category: f.Category, Splits: make([]splitDoc, len(f.Splits))}
	for i, s := range f.Splits {
		sd := splitDoc{Name: s.Name}
		if s.Best != nil {
			sd.BestTime = FormatDuration(*s.Best)
		}
		if s.Gold != nil {
			sd.GoldTime = FormatDuration(*s.Gold)
		}
		doc.Splits[i] = sd
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(doc); err != nil {
		return nil, fmt.Errorf("failed to encode split file: %w", err)
	}
	return buf.Bytes(), nil
}

// Load reads and decodes the split file at path. A missing file yields an
// error matching fs.ErrNotExist; everything else wraps model.ErrConfig.
func Load(fsys afero.Fs, path string) (File, error) {
	if path == "" {
		return File{}, fmt.Errorf("%w: split file path is empty", model.ErrConfig)
	}
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return File{}, err
		}
		return File{}, fmt.Errorf("%w: failed to read %s: %w", model.ErrConfig, path, err)
	}
	f, err := Decode(data)
	if err != nil {
		return File{}, fmt.Errorf("%w: %s: %w", model.ErrConfig, path, err)
	}
	return f, nil
}

// LoadOrCreate loads the split file, creating it from d when it does not
// exist. The bool result reports whether the file was created.
func LoadOrCreate(fsys afero.Fs, path string, d Defaults) (File, bool, error) {
	f, err := Load(fsys, path)
	if err == nil {
		return f, false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return File{}, false, err
	}
	f = New(d)
	if err := Save(fsys, path, f); err != nil {
		return File{}, false, fmt.Errorf("%w: failed to create split file: %w", model.ErrConfig, err)
	}
	return f, true, nil
}

// Save writes f to path atomically via a temp file in the same directory.
func Save(fsys afero.Fs, path string, f File) error {
	data, err := Encode(f)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create split file dir: %w", err)
	}
	tmpFile, err := afero.TempFile(fsys, dir, ".splits-*.toml")
	if err != nil {
		return fmt.Errorf("failed to create temp split file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		if rerr := fsys.Remove(tmpPath); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			// Best-effort temp cleanup.
			_ = rerr
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write split file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close split file: %w", err)
	}
	if err := fsys.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to write split file: %w", err)
	}
	return nil
}

func cloneDuration(d *time.Duration) *time.Duration {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}
