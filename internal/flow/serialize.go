package flow

import (
	"fmt"
	"sort"
	"strconv"

	"lightflow/internal/fsutil"
)

// graphFile is the on-disk shape of a serialized registry. Tasks are
// keyed by task id; next/prev are stored as name lists and re-derived on
// load. Datasets produced by tasks are not persisted independently.
type graphFile struct {
	Datasets   map[string]*Dataset    `json:"datasets"`
	Images     map[string]*Image      `json:"images"`
	Tasks      map[string]*taskRecord `json:"tasks"`
	Path       string                 `json:"path"`
	Virtualenv string                 `json:"virtualenv"`
}

type taskRecord struct {
	TaskID        int               `json:"task_id"`
	Name          string            `json:"name"`
	Image         string            `json:"image"`
	Command       string            `json:"command"`
	InputData     string            `json:"input_data"`
	Outputs       map[string]string `json:"outputs"`
	Partition     string            `json:"partition"`
	SecondaryData map[string]string `json:"secondary_data"`
	Binds         map[string]string `json:"binds"`
	Next          []string          `json:"next"`
	Prev          []string          `json:"prev"`
}

// Save dumps the registry to a graph file at path.
func Save(reg *Registry, path string) error {
	out := graphFile{
		Datasets:   make(map[string]*Dataset),
		Images:     make(map[string]*Image),
		Tasks:      make(map[string]*taskRecord),
		Path:       reg.Path,
		Virtualenv: reg.Virtualenv,
	}
	for _, ds := range reg.Datasets() {
		if ds.FromTask != "" {
			continue
		}
		out.Datasets[ds.Name] = ds
	}
	for _, img := range reg.Images() {
		out.Images[img.Name] = img
	}
	for _, t := range reg.Tasks() {
		secondary := make(map[string]string, len(t.SecondaryData))
		for key, ds := range t.SecondaryData {
			secondary[key] = ds.Name
		}
		out.Tasks[strconv.Itoa(t.TaskID)] = &taskRecord{
			TaskID:        t.TaskID,
			Name:          t.Name,
			Image:         t.Image.Name,
			Command:       t.Command,
			InputData:     t.InputData.Name,
			Outputs:       copyMap(t.Outputs),
			Partition:     t.Partition,
			SecondaryData: secondary,
			Binds:         copyMap(t.Binds),
			Next:          append([]string(nil), t.Next...),
			Prev:          append([]string(nil), t.Prev...),
		}
	}

	if err := fsutil.WriteJSONAtomic(path, out, 0o644); err != nil {
		return fmt.Errorf("save graph %s: %w", path, err)
	}
	reg.Source = path
	return nil
}

// Load reads a graph file and reconstructs the registry. Tasks are
// rebuilt through NewTask in task id order, so edges, output datasets and
// every construction-time invariant are re-validated on load.
func Load(path string) (*Registry, error) {
	var in graphFile
	if err := fsutil.ReadJSONStrict(path, &in); err != nil {
		return nil, fmt.Errorf("load graph %s: %w", path, err)
	}

	reg := NewRegistry(in.Path)
	reg.Virtualenv = in.Virtualenv
	reg.Source = path

	for _, name := range sortedKeys(in.Datasets) {
		ds := in.Datasets[name]
		if _, err := reg.AddDataset(ds.Name, ds.Path); err != nil {
			return nil, err
		}
	}
	for _, name := range sortedKeys(in.Images) {
		img := in.Images[name]
		if _, err := reg.AddImage(img.Name, img.Path); err != nil {
			return nil, err
		}
	}

	records := make([]*taskRecord, 0, len(in.Tasks))
	for _, rec := range in.Tasks {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].TaskID < records[j].TaskID })

	for _, rec := range records {
		secondary := make(map[string]DatasetRef, len(rec.SecondaryData))
		for key, name := range rec.SecondaryData {
			secondary[key] = DatasetName(name)
		}
		t, err := NewTask(reg, TaskSpec{
			Name:          rec.Name,
			Image:         ImageName(rec.Image),
			Command:       rec.Command,
			InputData:     DatasetName(rec.InputData),
			Outputs:       rec.Outputs,
			Partition:     rec.Partition,
			SecondaryData: secondary,
			Binds:         rec.Binds,
		})
		if err != nil {
			return nil, fmt.Errorf("load task %q: %w", rec.Name, err)
		}
		if t.TaskID != rec.TaskID {
			return nil, fmt.Errorf("load task %q: id %d on disk, %d assigned", rec.Name, rec.TaskID, t.TaskID)
		}
	}
	return reg, nil
}
