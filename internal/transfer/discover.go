package transfer

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Folder is a directory holding transfer databases.
type Folder struct {
	Path      string
	Databases []string
}

// IsDatabase reports whether name looks like a transfer database.
func IsDatabase(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".sqlite" || ext == ".db"
}

// Discover lists the databases in root, and in its subdirectories when
// recursive is set. Folders and databases are sorted by path; folders
// without databases are left out.
func Discover(root string, recursive bool) ([]Folder, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve folder; %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read folder; %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	byDir := make(map[string][]string)
	if recursive {
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && IsDatabase(d.Name()) {
				dir := filepath.Dir(path)
				byDir[dir] = append(byDir[dir], path)
			}
			return nil
		})
	} else {
		var entries []os.DirEntry
		entries, err = os.ReadDir(root)
		for _, e := range entries {
			if !e.IsDir() && IsDatabase(e.Name()) {
				byDir[root] = append(byDir[root], filepath.Join(root, e.Name()))
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list databases; %w", err)
	}

	folders := make([]Folder, 0, len(byDir))
	for dir, dbs := range byDir {
		sort.Strings(dbs)
		folders = append(folders, Folder{Path: dir, Databases: dbs})
	}
	sort.Slice(folders, func(i, j int) bool { return folders[i].Path < folders[j].Path })
	return folders, nil
}
