package flow

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lightflow/internal/status"
)

func writeInputFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("data\n"), 0o644))
	}
}

func newMaterializeTask(t *testing.T) *Task {
	t.Helper()
	reg := newTestRegistry(t)
	writeInputFiles(t, filepath.Join(reg.Path, "raw"), "a.dat", "b.dat")
	return mustTask(t, reg, TaskSpec{
		Name:      "convert",
		Image:     ImageName("base"),
		Command:   "convert %IN -o %OUT",
		InputData: DatasetName("raw"),
		Outputs:   map[string]string{"OUT": "out.h5"},
		Binds:     map[string]string{"/data": "/data"},
	})
}

func TestMaterializeCreatesOneJobPerFile(t *testing.T) {
	task := newMaterializeTask(t)

	created, err := task.Materialize()
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, created)

	job, err := LoadJob(task.JobDefPath(0))
	require.NoError(t, err)
	assert.Equal(t, 0, job.JobID)
	assert.Equal(t, task.TaskID, job.TaskID)
	assert.Equal(t, filepath.Join(task.reg.Path, "raw", "a.dat"), job.InputData)
	assert.Equal(t, task.Command, job.Command)
	assert.Equal(t, "/images/base.sif", job.Image)
	assert.Equal(t, JobOutput{Name: "out.h5", Target: task.OutputsData["OUT"].Path}, job.Outputs["OUT"])
	assert.Equal(t, map[string]string{"/data": "/data"}, job.Binds)

	st, err := task.JobStatusStore(0).Read()
	require.NoError(t, err)
	assert.Equal(t, status.Assigned, st.State)
	assert.Equal(t, status.Assigned, task.State())

	led, err := task.loadLedger()
	require.NoError(t, err)
	assert.Equal(t, status.Assigned, led.Status)
	assert.Equal(t, []string{"a.dat", "b.dat"}, led.Files)
}

func TestMaterializeIsIdempotent(t *testing.T) {
	task := newMaterializeTask(t)

	_, err := task.Materialize()
	require.NoError(t, err)
	before, err := task.loadLedger()
	require.NoError(t, err)

	again, err := task.Materialize()
	require.NoError(t, err)
	assert.Empty(t, again)

	after, err := task.loadLedger()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestMaterializeOnlyNewFilesGainJobs(t *testing.T) {
	task := newMaterializeTask(t)

	_, err := task.Materialize()
	require.NoError(t, err)

	writeInputFiles(t, task.InputData.Path, "c.dat")
	created, err := task.Materialize()
	require.NoError(t, err)
	assert.Equal(t, []int{2}, created)

	led, err := task.loadLedger()
	require.NoError(t, err)
	assert.Equal(t, []string{"a.dat", "b.dat", "c.dat"}, led.Files)
}

func TestMaterializeEmptyInput(t *testing.T) {
	reg := newTestRegistry(t)
	task := mustTask(t, reg, TaskSpec{
		Name:      "convert",
		Image:     ImageName("base"),
		Command:   "convert %IN",
		InputData: DatasetName("raw"),
	})

	created, err := task.Materialize()
	require.NoError(t, err)
	assert.Empty(t, created)
}

func TestJobStates(t *testing.T) {
	task := newMaterializeTask(t)

	_, err := task.Materialize()
	require.NoError(t, err)
	require.NoError(t, task.JobStatusStore(1).SetState(status.Completed))

	states, err := task.JobStates()
	require.NoError(t, err)
	assert.Equal(t, []status.State{status.Assigned, status.Completed}, states)

	// A missing record reads as unknown, never as completed.
	require.NoError(t, os.Remove(task.JobStatusStore(0).Path()))
	states, err = task.JobStates()
	require.NoError(t, err)
	assert.Equal(t, []status.State{status.Unknown, status.Completed}, states)

	ids, err := task.JobsWithState(status.Completed)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, ids)
}
