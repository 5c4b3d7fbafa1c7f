package flow

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// pipelineFile is the declarative YAML description of a flow: images,
// externally supplied datasets, and tasks in dependency order. Entities
// are constructed in file order, so a task may only reference outputs of
// tasks declared before it.
type pipelineFile struct {
	Path       string `yaml:"path"`
	Virtualenv string `yaml:"virtualenv,omitempty"`

	Images []struct {
		Name string `yaml:"name"`
		Path string `yaml:"path"`
	} `yaml:"images"`

	Datasets []struct {
		Name string `yaml:"name"`
		Path string `yaml:"path"`
	} `yaml:"datasets"`

	Tasks []pipelineTask `yaml:"tasks"`
}

type pipelineTask struct {
	Name      string            `yaml:"name"`
	Image     string            `yaml:"image"`
	Command   string            `yaml:"command"`
	Input     string            `yaml:"input"`
	Outputs   map[string]string `yaml:"outputs"`
	Partition string            `yaml:"partition"`
	Secondary map[string]string `yaml:"secondary,omitempty"`
	Binds     map[string]string `yaml:"binds,omitempty"`
}

// BuildPipeline constructs a registry from a YAML pipeline description,
// running every construction-time validation along the way.
func BuildPipeline(r io.Reader) (*Registry, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var pf pipelineFile
	if err := dec.Decode(&pf); err != nil {
		return nil, fmt.Errorf("decode pipeline: %w", err)
	}
	if pf.Path == "" {
		return nil, fmt.Errorf("pipeline: path is required")
	}

	reg := NewRegistry(pf.Path)
	reg.Virtualenv = pf.Virtualenv

	for _, img := range pf.Images {
		if _, err := reg.AddImage(img.Name, img.Path); err != nil {
			return nil, err
		}
	}
	for _, ds := range pf.Datasets {
		if _, err := reg.AddDataset(ds.Name, ds.Path); err != nil {
			return nil, err
		}
	}
	for _, pt := range pf.Tasks {
		secondary := make(map[string]DatasetRef, len(pt.Secondary))
		for key, name := range pt.Secondary {
			secondary[key] = DatasetName(name)
		}
		if _, err := NewTask(reg, TaskSpec{
			Name:          pt.Name,
			Image:         ImageName(pt.Image),
			Command:       pt.Command,
			InputData:     DatasetName(pt.Input),
			Outputs:       pt.Outputs,
			Partition:     pt.Partition,
			SecondaryData: secondary,
			Binds:         pt.Binds,
		}); err != nil {
			return nil, fmt.Errorf("pipeline task %q: %w", pt.Name, err)
		}
	}
	return reg, nil
}
