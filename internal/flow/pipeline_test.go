package flow

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pipelineYAML = `
path: /flows/demo
virtualenv: /opt/venv
images:
  - name: base
    path: /images/base.sif
datasets:
  - name: raw
    path: /data/raw
tasks:
  - name: convert
    image: base
    command: convert %IN -o %OUT
    input: raw
    outputs:
      OUT: out.h5
    partition: gpu
  - name: train
    image: base
    command: train %IN --model %MODEL
    input: convert.OUT
    secondary:
      MODEL: raw
    binds:
      /scratch: /scratch
`

func TestBuildPipeline(t *testing.T) {
	reg, err := BuildPipeline(strings.NewReader(pipelineYAML))
	require.NoError(t, err)

	assert.Equal(t, "/flows/demo", reg.Path)
	assert.Equal(t, "/opt/venv", reg.Virtualenv)
	require.Len(t, reg.Tasks(), 2)

	convert, err := reg.Task("convert")
	require.NoError(t, err)
	assert.Equal(t, 0, convert.TaskID)
	assert.Equal(t, "gpu", convert.Partition)
	assert.Equal(t, []string{"train"}, convert.Next)

	train, err := reg.Task("train")
	require.NoError(t, err)
	assert.Equal(t, []string{"convert"}, train.Prev)
	assert.Equal(t, map[string]string{"/scratch": "/scratch"}, train.Binds)
	assert.Equal(t, "raw", train.SecondaryData["MODEL"].Name)
}

func TestBuildPipelineRequiresPath(t *testing.T) {
	_, err := BuildPipeline(strings.NewReader("virtualenv: /opt/venv\n"))
	assert.ErrorContains(t, err, "path is required")
}

func TestBuildPipelineRejectsUnknownFields(t *testing.T) {
	doc := "path: /flows/demo\nbogus: true\n"
	_, err := BuildPipeline(strings.NewReader(doc))
	assert.Error(t, err)
}

func TestBuildPipelineForwardReferenceFails(t *testing.T) {
	doc := `
path: /flows/demo
images:
  - name: base
    path: /images/base.sif
datasets:
  - name: raw
    path: /data/raw
tasks:
  - name: train
    image: base
    command: train %IN
    input: convert.OUT
  - name: convert
    image: base
    command: convert %IN -o %OUT
    input: raw
    outputs:
      OUT: out.h5
`
	_, err := BuildPipeline(strings.NewReader(doc))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDatasetNotFound)
	assert.ErrorContains(t, err, `pipeline task "train"`)
}
