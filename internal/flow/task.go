package flow

import (
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"lightflow/internal/status"
)

// DatasetRef names a dataset or carries an already resolved one. It is
// resolved exactly once, at task construction.
type DatasetRef struct {
	Name    string
	Dataset *Dataset
}

// DatasetName references a dataset by registry name.
func DatasetName(name string) DatasetRef { return DatasetRef{Name: name} }

// DatasetValue references an already resolved dataset.
func DatasetValue(d *Dataset) DatasetRef { return DatasetRef{Dataset: d} }

func (ref DatasetRef) resolve(r *Registry) (*Dataset, error) {
	if ref.Dataset != nil {
		return ref.Dataset, nil
	}
	return r.Dataset(ref.Name)
}

// ImageRef names an image or carries an already resolved one.
type ImageRef struct {
	Name  string
	Image *Image
}

// ImageName references an image by registry name.
func ImageName(name string) ImageRef { return ImageRef{Name: name} }

// ImageValue references an already resolved image.
func ImageValue(img *Image) ImageRef { return ImageRef{Image: img} }

func (ref ImageRef) resolve(r *Registry) (*Image, error) {
	if ref.Image != nil {
		return ref.Image, nil
	}
	return r.Image(ref.Name)
}

// TaskSpec is the declarative input to NewTask.
type TaskSpec struct {
	Name      string
	Image     ImageRef
	Command   string
	InputData DatasetRef

	// Outputs maps output keys to the file each job is expected to
	// produce. One dataset named "{task}.{key}" is auto-created per key.
	Outputs map[string]string

	Partition     string
	SecondaryData map[string]DatasetRef
	Binds         map[string]string
}

// Task is one DAG node: a command template expanded into an array of
// per-input-file jobs.
//
// Next and Prev are insertion-ordered sets of task names; edges are
// derived from dataset producers at construction time, never declared.
type Task struct {
	TaskID  int
	Name    string
	Image   *Image
	Command string

	InputData     *Dataset
	Outputs       map[string]string // key -> output filename
	OutputsData   map[string]*Dataset
	SecondaryData map[string]*Dataset

	Partition string
	Binds     map[string]string

	Next []string
	Prev []string

	reg *Registry
}

// NewTask validates spec, wires the task into the registry's graph and
// returns it.
//
// Construction fails with InvalidCommandTemplate when the command lacks
// the %IN placeholder or a %{key} placeholder for any declared output or
// secondary key, with a typed not-found error when a plain-name reference
// does not resolve, and with TaskExistsError on a duplicate name. The
// task id is the registry size at registration, append-only and never
// reused. Directory layout is created lazily, not here.
func NewTask(reg *Registry, spec TaskSpec) (*Task, error) {
	if missing := missingPlaceholders(spec); len(missing) > 0 {
		return nil, &TemplateError{Task: spec.Name, Missing: missing}
	}

	img, err := spec.Image.resolve(reg)
	if err != nil {
		return nil, err
	}
	input, err := spec.InputData.resolve(reg)
	if err != nil {
		return nil, err
	}
	secondary := make(map[string]*Dataset, len(spec.SecondaryData))
	for key, ref := range spec.SecondaryData {
		ds, err := ref.resolve(reg)
		if err != nil {
			return nil, err
		}
		secondary[key] = ds
	}

	if _, exists := reg.tasks[spec.Name]; exists {
		return nil, nameErr(ErrTaskExists, spec.Name)
	}
	for _, key := range sortedKeys(spec.Outputs) {
		if _, exists := reg.datasets[spec.Name+"."+key]; exists {
			return nil, nameErr(ErrDatasetExists, spec.Name+"."+key)
		}
	}

	t := &Task{
		TaskID:        len(reg.order),
		Name:          spec.Name,
		Image:         img,
		Command:       spec.Command,
		InputData:     input,
		Outputs:       copyMap(spec.Outputs),
		OutputsData:   make(map[string]*Dataset, len(spec.Outputs)),
		SecondaryData: secondary,
		Partition:     spec.Partition,
		Binds:         copyMap(spec.Binds),
		reg:           reg,
	}
	reg.tasks[t.Name] = t
	reg.order = append(reg.order, t.Name)

	for _, key := range sortedKeys(spec.Outputs) {
		name := t.Name + "." + key
		ds := &Dataset{
			Name:     name,
			Path:     filepath.Join(reg.Path, "datasets", name),
			FromTask: t.Name,
		}
		if err := reg.registerDataset(ds); err != nil {
			return nil, err
		}
		t.OutputsData[key] = ds
	}

	for _, key := range sortedKeys(secondary) {
		t.wireProducer(secondary[key])
	}
	t.wireProducer(input)

	if t.reachesSelf() {
		return nil, nameErr(ErrCycle, t.Name)
	}
	return t, nil
}

func missingPlaceholders(spec TaskSpec) []string {
	missing := make([]string, 0)
	if !strings.Contains(spec.Command, "%IN") {
		missing = append(missing, "%IN")
	}
	keys := append(sortedKeys(spec.Outputs), sortedKeys(spec.SecondaryData)...)
	for _, key := range keys {
		if !strings.Contains(spec.Command, "%"+key) {
			missing = append(missing, "%"+key)
		}
	}
	return missing
}

// wireProducer adds the bidirectional edge between this task and the
// producer of ds, when ds is a task output. Edge sets keep insertion
// order and never hold duplicates.
func (t *Task) wireProducer(ds *Dataset) {
	if ds.FromTask == "" || ds.FromTask == t.Name {
		return
	}
	producer, ok := t.reg.tasks[ds.FromTask]
	if !ok {
		return
	}
	producer.Next = appendUnique(producer.Next, t.Name)
	t.Prev = appendUnique(t.Prev, producer.Name)
}

// reachesSelf walks the upstream closure looking for this task. The
// construction order makes a cycle impossible through the public API
// (a task can only reference outputs of already registered tasks); this
// is the defensive check the graph invariant calls for.
func (t *Task) reachesSelf() bool {
	visited := make(map[string]bool)
	queue := append([]string(nil), t.Prev...)
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if name == t.Name {
			return true
		}
		if visited[name] {
			continue
		}
		visited[name] = true
		if up, ok := t.reg.tasks[name]; ok {
			queue = append(queue, up.Prev...)
		}
	}
	return false
}

// Dir is the task's working area under the registry root.
func (t *Task) Dir() string { return filepath.Join(t.reg.Path, "tasks", t.Name) }

// JobsDir holds the per-job definition files.
func (t *Task) JobsDir() string { return filepath.Join(t.Dir(), "jobs") }

// WorksDir holds the per-job workareas.
func (t *Task) WorksDir() string { return filepath.Join(t.Dir(), "works") }

// ScriptsDir holds generated batch scripts.
func (t *Task) ScriptsDir() string { return filepath.Join(t.Dir(), "scripts") }

// DBDir holds the ledger and the status records.
func (t *Task) DBDir() string { return filepath.Join(t.Dir(), "db") }

// JobDefPath is the definition file of job id.
func (t *Task) JobDefPath(id int) string {
	return filepath.Join(t.JobsDir(), "job_"+strconv.Itoa(id)+".json")
}

// StatusStore is the task's own lifecycle record.
func (t *Task) StatusStore() *status.Store {
	return status.NewStore(filepath.Join(t.DBDir(), "status.json"))
}

// JobStatusStore is the lifecycle record of job id, separate from the
// job's definition file so worker processes mutate it independently.
func (t *Task) JobStatusStore(id int) *status.Store {
	return status.NewStore(filepath.Join(t.DBDir(), "job_"+strconv.Itoa(id)+".json"))
}

// State reads the task's current lifecycle state.
func (t *Task) State() status.State {
	st, err := t.StatusStore().Read()
	if err != nil {
		return status.Unknown
	}
	return st.State
}

func appendUnique(list []string, name string) []string {
	for _, have := range list {
		if have == name {
			return list
		}
	}
	return append(list, name)
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
