package flow

import (
	"os"
	"path/filepath"
)

// Dataset is a named folder of data files.
//
// FromTask holds the name of the producing task when the dataset is an
// auto-created task output; it is empty for externally supplied datasets.
// Cross-references are name keys resolved through the registry, never
// pointers, so the graph serializes as a flat dump.
type Dataset struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	FromTask string `json:"from_task,omitempty"`
}

// Image is a named container image.
type Image struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// Files returns the absolute paths of the regular files currently present
// under the dataset folder, in sorted filename order. A folder that does
// not exist yet (an upstream output not produced so far) yields no files.
func (d *Dataset) Files() ([]string, error) {
	entries, err := os.ReadDir(d.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		files = append(files, filepath.Join(d.Path, e.Name()))
	}
	return files, nil
}
