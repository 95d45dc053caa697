package tundra

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// Loader reads template files by name. Names are relative to the loader's base.
type Loader interface {
	// Load returns the decoded content of name, or an error wrapping ErrNotFound.
	Load(name string) (string, error)
	// Exists reports whether name refers to a readable regular file.
	Exists(name string) bool
}

// FSLoader is a Loader reading from an fs.FS, decoding files with a fixed
// character encoding and appending a default extension to bare names.
type FSLoader struct {
	fsys      fs.FS
	extension string
	enc       encoding.Encoding
}

// NewDirLoader returns an FSLoader rooted at dir on the local filesystem.
func NewDirLoader(dir, extension, encodingName string) (*FSLoader, error) {
	if dir == "" {
		dir = "."
	}
	return NewFSLoader(os.DirFS(dir), extension, encodingName)
}

// NewFSLoader returns an FSLoader over fsys. An empty encodingName means UTF-8.
func NewFSLoader(fsys fs.FS, extension, encodingName string) (*FSLoader, error) {
	l := &FSLoader{fsys: fsys, extension: strings.TrimPrefix(extension, ".")}
	if encodingName == "" {
		return l, nil
	}
	enc, err := htmlindex.Get(encodingName)
	if err != nil {
		return nil, fmt.Errorf("unsupported template encoding %q: %w", encodingName, err)
	}
	if canonical, _ := htmlindex.Name(enc); canonical != "utf-8" {
		l.enc = enc
	}
	return l, nil
}

// Load implements Loader.
func (l *FSLoader) Load(name string) (string, error) {
	p, ok := l.resolve(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	info, err := fs.Stat(l.fsys, p)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	data, err := fs.ReadFile(l.fsys, p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return "", fmt.Errorf("reading template %q: %w", name, err)
	}
	if l.enc == nil {
		return string(data), nil
	}
	decoded, err := l.enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("decoding template %q: %w", name, err)
	}
	return string(decoded), nil
}

// Exists implements Loader.
func (l *FSLoader) Exists(name string) bool {
	p, ok := l.resolve(name)
	if !ok {
		return false
	}
	info, err := fs.Stat(l.fsys, p)
	return err == nil && info.Mode().IsRegular()
}

// resolve turns a template reference into a clean fs.FS path.
func (l *FSLoader) resolve(name string) (string, bool) {
	name = strings.Trim(strings.TrimSpace(name), `"'`)
	if name == "" {
		return "", false
	}
	name = path.Clean(strings.TrimPrefix(filepath.ToSlash(name), "/"))
	if l.extension != "" && path.Ext(name) == "" {
		name += "." + l.extension
	}
	return name, fs.ValidPath(name)
}

// Lister is implemented by loaders that can enumerate their templates.
type Lister interface {
	List() ([]string, error)
}

// List returns every template file below the loader's root, sorted. When an
// extension is configured only matching files are listed.
func (l *FSLoader) List() ([]string, error) {
	var names []string
	err := fs.WalkDir(l.fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != "." && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		if l.extension != "" && path.Ext(p) != "."+l.extension {
			return nil
		}
		names = append(names, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing templates: %w", err)
	}
	return names, nil
}
