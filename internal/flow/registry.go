package flow

import (
	"sort"
	"strconv"
)

// Registry is the explicit context every entity constructor registers into:
// the process-scoped collection of datasets, images and tasks, plus the
// root working directory and execution environment descriptor.
//
// It is created empty at the start of a CLI invocation, populated by
// construction or by Load, and discarded at process exit. It is never
// persisted directly; persistence goes through Save.
type Registry struct {
	// Path is the root working directory of the flow.
	Path string

	// Virtualenv is the execution environment activated inside generated
	// batch scripts (empty to skip activation).
	Virtualenv string

	// Source is the graph file this registry was loaded from or saved to.
	Source string

	datasets map[string]*Dataset
	images   map[string]*Image
	tasks    map[string]*Task
	order    []string // task names in insertion order

	policy Policy
}

// NewRegistry returns an empty registry rooted at path.
func NewRegistry(path string) *Registry {
	return &Registry{
		Path:     path,
		datasets: make(map[string]*Dataset),
		images:   make(map[string]*Image),
		tasks:    make(map[string]*Task),
		policy:   DefaultPolicy,
	}
}

// Policy returns the finalization/liveness policy in effect.
func (r *Registry) Policy() Policy { return r.policy }

// SetPolicy overrides the default policy values.
func (r *Registry) SetPolicy(p Policy) { r.policy = p }

// AddDataset registers an externally supplied dataset.
func (r *Registry) AddDataset(name, path string) (*Dataset, error) {
	d := &Dataset{Name: name, Path: path}
	if err := r.registerDataset(d); err != nil {
		return nil, err
	}
	return d, nil
}

func (r *Registry) registerDataset(d *Dataset) error {
	if _, exists := r.datasets[d.Name]; exists {
		return nameErr(ErrDatasetExists, d.Name)
	}
	r.datasets[d.Name] = d
	return nil
}

// AddImage registers a container image.
func (r *Registry) AddImage(name, path string) (*Image, error) {
	if _, exists := r.images[name]; exists {
		return nil, nameErr(ErrImageExists, name)
	}
	img := &Image{Name: name, Path: path}
	r.images[name] = img
	return img, nil
}

// Dataset resolves a dataset by name.
func (r *Registry) Dataset(name string) (*Dataset, error) {
	d, ok := r.datasets[name]
	if !ok {
		return nil, nameErr(ErrDatasetNotFound, name)
	}
	return d, nil
}

// Image resolves an image by name.
func (r *Registry) Image(name string) (*Image, error) {
	img, ok := r.images[name]
	if !ok {
		return nil, nameErr(ErrImageNotFound, name)
	}
	return img, nil
}

// Task resolves a task by name.
func (r *Registry) Task(name string) (*Task, error) {
	t, ok := r.tasks[name]
	if !ok {
		return nil, nameErr(ErrTaskNotFound, name)
	}
	return t, nil
}

// TaskByID resolves a task by its append-only id.
func (r *Registry) TaskByID(id int) (*Task, error) {
	if id < 0 || id >= len(r.order) {
		return nil, nameErr(ErrTaskNotFound, strconv.Itoa(id))
	}
	return r.tasks[r.order[id]], nil
}

// Tasks returns all tasks in insertion (task id) order.
func (r *Registry) Tasks() []*Task {
	out := make([]*Task, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tasks[name])
	}
	return out
}

// Datasets returns all datasets sorted by name.
func (r *Registry) Datasets() []*Dataset {
	names := make([]string, 0, len(r.datasets))
	for name := range r.datasets {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*Dataset, 0, len(names))
	for _, name := range names {
		out = append(out, r.datasets[name])
	}
	return out
}

// Images returns all images sorted by name.
func (r *Registry) Images() []*Image {
	names := make([]string, 0, len(r.images))
	for name := range r.images {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*Image, 0, len(names))
	for _, name := range names {
		out = append(out, r.images[name])
	}
	return out
}
