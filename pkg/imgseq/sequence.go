package imgseq

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"github.com/tauraamui/xerror"
)

var fs = afero.NewOsFs()

var ErrEmptySequence = xerror.New("image sequence contains no frames")

// enumerateFrames lists the frame files of the sequence at path, which is
// either the sequence directory or any one frame inside it. Only files
// sharing the sequence's extension count, sorted by name.
func enumerateFrames(path string) ([]string, error) {
	stat, err := fs.Stat(path)
	if err != nil {
		return nil, xerror.Errorf("unable to stat image sequence path: %w", err)
	}

	dir, ext := path, ""
	if !stat.IsDir() {
		dir = filepath.Dir(path)
		ext = strings.ToLower(filepath.Ext(path))
	}

	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, xerror.Errorf("unable to list image sequence directory: %w", err)
	}

	names := []string{}
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	if len(names) > 0 && stat.IsDir() {
		ext = strings.ToLower(filepath.Ext(names[0]))
	}

	paths := []string{}
	for _, name := range names {
		if strings.ToLower(filepath.Ext(name)) == ext {
			paths = append(paths, filepath.Join(dir, name))
		}
	}

	if len(paths) == 0 {
		return nil, ErrEmptySequence
	}

	return paths, nil
}
