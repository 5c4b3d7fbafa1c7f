package flow

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry(t.TempDir())
	_, err := reg.AddImage("base", "/images/base.sif")
	require.NoError(t, err)
	_, err = reg.AddDataset("raw", filepath.Join(reg.Path, "raw"))
	require.NoError(t, err)
	return reg
}

func mustTask(t *testing.T, reg *Registry, spec TaskSpec) *Task {
	t.Helper()
	task, err := NewTask(reg, spec)
	require.NoError(t, err)
	return task
}

func TestNewTaskCollectsAllMissingPlaceholders(t *testing.T) {
	reg := newTestRegistry(t)

	_, err := NewTask(reg, TaskSpec{
		Name:      "convert",
		Image:     ImageName("base"),
		Command:   "convert --fast",
		InputData: DatasetName("raw"),
		Outputs:   map[string]string{"OUT": "out.h5"},
		SecondaryData: map[string]DatasetRef{
			"MODEL": DatasetName("raw"),
		},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidCommandTemplate)

	var terr *TemplateError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "convert", terr.Task)
	assert.Equal(t, []string{"%IN", "%OUT", "%MODEL"}, terr.Missing)
}

func TestNewTaskRejectsUnresolvedReferences(t *testing.T) {
	reg := newTestRegistry(t)

	_, err := NewTask(reg, TaskSpec{
		Name:      "convert",
		Image:     ImageName("nope"),
		Command:   "run %IN",
		InputData: DatasetName("raw"),
	})
	assert.ErrorIs(t, err, ErrImageNotFound)

	_, err = NewTask(reg, TaskSpec{
		Name:      "convert",
		Image:     ImageName("base"),
		Command:   "run %IN",
		InputData: DatasetName("nope"),
	})
	assert.ErrorIs(t, err, ErrDatasetNotFound)

	var nerr *NameError
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, "nope", nerr.Name)
}

func TestDuplicateRegistration(t *testing.T) {
	reg := newTestRegistry(t)

	_, err := reg.AddDataset("raw", "/elsewhere")
	assert.ErrorIs(t, err, ErrDatasetExists)
	_, err = reg.AddImage("base", "/elsewhere.sif")
	assert.ErrorIs(t, err, ErrImageExists)

	mustTask(t, reg, TaskSpec{
		Name:      "convert",
		Image:     ImageName("base"),
		Command:   "run %IN",
		InputData: DatasetName("raw"),
	})
	_, err = NewTask(reg, TaskSpec{
		Name:      "convert",
		Image:     ImageName("base"),
		Command:   "run %IN",
		InputData: DatasetName("raw"),
	})
	assert.ErrorIs(t, err, ErrTaskExists)
}

func TestOutputDatasetsAutoCreated(t *testing.T) {
	reg := newTestRegistry(t)

	task := mustTask(t, reg, TaskSpec{
		Name:      "convert",
		Image:     ImageName("base"),
		Command:   "run %IN -o %OUT",
		InputData: DatasetName("raw"),
		Outputs:   map[string]string{"OUT": "out.h5"},
	})

	ds, err := reg.Dataset("convert.OUT")
	require.NoError(t, err)
	assert.Equal(t, "convert", ds.FromTask)
	assert.Equal(t, filepath.Join(reg.Path, "datasets", "convert.OUT"), ds.Path)
	assert.Same(t, ds, task.OutputsData["OUT"])
}

func TestEdgesDerivedFromDatasetProducers(t *testing.T) {
	reg := newTestRegistry(t)

	a := mustTask(t, reg, TaskSpec{
		Name:      "a",
		Image:     ImageName("base"),
		Command:   "run %IN -o %OUT",
		InputData: DatasetName("raw"),
		Outputs:   map[string]string{"OUT": "a.h5"},
	})
	b := mustTask(t, reg, TaskSpec{
		Name:      "b",
		Image:     ImageName("base"),
		Command:   "run %IN -o %OUT",
		InputData: DatasetName("a.OUT"),
		Outputs:   map[string]string{"OUT": "b.h5"},
	})

	assert.Equal(t, []string{"b"}, a.Next)
	assert.Equal(t, []string{"a"}, b.Prev)
	assert.Empty(t, a.Prev)
	assert.Empty(t, b.Next)
}

func TestEdgeDeduplication(t *testing.T) {
	reg := newTestRegistry(t)

	a := mustTask(t, reg, TaskSpec{
		Name:      "a",
		Image:     ImageName("base"),
		Command:   "run %IN -o %X -p %Y",
		InputData: DatasetName("raw"),
		Outputs:   map[string]string{"X": "x.h5", "Y": "y.h5"},
	})

	// b consumes two outputs of a: one edge, not two.
	b := mustTask(t, reg, TaskSpec{
		Name:      "b",
		Image:     ImageName("base"),
		Command:   "run %IN --aux %AUX",
		InputData: DatasetName("a.X"),
		SecondaryData: map[string]DatasetRef{
			"AUX": DatasetName("a.Y"),
		},
	})

	assert.Equal(t, []string{"b"}, a.Next)
	assert.Equal(t, []string{"a"}, b.Prev)
}

func TestDiamondEdges(t *testing.T) {
	reg := newTestRegistry(t)

	a := mustTask(t, reg, TaskSpec{
		Name:      "a",
		Image:     ImageName("base"),
		Command:   "run %IN -o %OUT",
		InputData: DatasetName("raw"),
		Outputs:   map[string]string{"OUT": "a.h5"},
	})
	mustTask(t, reg, TaskSpec{
		Name:      "b",
		Image:     ImageName("base"),
		Command:   "run %IN -o %OUT",
		InputData: DatasetName("a.OUT"),
		Outputs:   map[string]string{"OUT": "b.h5"},
	})
	mustTask(t, reg, TaskSpec{
		Name:      "c",
		Image:     ImageName("base"),
		Command:   "run %IN -o %OUT",
		InputData: DatasetName("a.OUT"),
		Outputs:   map[string]string{"OUT": "c.h5"},
	})
	d := mustTask(t, reg, TaskSpec{
		Name:      "d",
		Image:     ImageName("base"),
		Command:   "merge %IN --aux %AUX",
		InputData: DatasetName("b.OUT"),
		SecondaryData: map[string]DatasetRef{
			"AUX": DatasetName("c.OUT"),
		},
	})

	assert.Equal(t, []string{"b", "c"}, a.Next)
	assert.ElementsMatch(t, []string{"b", "c"}, d.Prev)
}

func TestTaskIDsAppendOnly(t *testing.T) {
	reg := newTestRegistry(t)

	for i, name := range []string{"a", "b", "c"} {
		task := mustTask(t, reg, TaskSpec{
			Name:      name,
			Image:     ImageName("base"),
			Command:   "run %IN",
			InputData: DatasetName("raw"),
		})
		assert.Equal(t, i, task.TaskID)

		byID, err := reg.TaskByID(i)
		require.NoError(t, err)
		assert.Same(t, task, byID)
	}

	_, err := reg.TaskByID(3)
	assert.ErrorIs(t, err, ErrTaskNotFound)
	_, err = reg.TaskByID(-1)
	assert.ErrorIs(t, err, ErrTaskNotFound)

	var names []string
	for _, task := range reg.Tasks() {
		names = append(names, task.Name)
	}
	assert.Equal(t, []string{"a", "b", "c"}, names)
}

func TestUpstreamCycleDetection(t *testing.T) {
	reg := newTestRegistry(t)

	a := mustTask(t, reg, TaskSpec{
		Name:      "a",
		Image:     ImageName("base"),
		Command:   "run %IN -o %OUT",
		InputData: DatasetName("raw"),
		Outputs:   map[string]string{"OUT": "a.h5"},
	})
	b := mustTask(t, reg, TaskSpec{
		Name:      "b",
		Image:     ImageName("base"),
		Command:   "run %IN",
		InputData: DatasetName("a.OUT"),
	})
	assert.False(t, a.reachesSelf())
	assert.False(t, b.reachesSelf())

	// Corrupt the graph by hand; construction order cannot produce this.
	a.Prev = append(a.Prev, "b")
	assert.True(t, a.reachesSelf())
	assert.True(t, errors.Is(nameErr(ErrCycle, "a"), ErrCycle))
}
