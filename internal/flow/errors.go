package flow

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDatasetNotFound = errors.New("dataset not found in the group of datasets")
	ErrImageNotFound   = errors.New("image not found in the group of images")
	ErrTaskNotFound    = errors.New("task not found in the group of tasks")

	ErrDatasetExists = errors.New("dataset already exists in the group of datasets")
	ErrImageExists   = errors.New("image already exists in the group of images")
	ErrTaskExists    = errors.New("task already exists in the group of tasks")

	ErrInvalidCommandTemplate = errors.New("invalid command template")
	ErrCycle                  = errors.New("dependency cycle detected")
)

// NameError wraps a registry validation failure with the offending name.
type NameError struct {
	Kind error
	Name string
}

func (e *NameError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %q", e.Kind.Error(), e.Name)
}

func (e *NameError) Unwrap() error { return e.Kind }

func nameErr(kind error, name string) error {
	return &NameError{Kind: kind, Name: name}
}

// TemplateError reports every placeholder a task command is missing.
type TemplateError struct {
	Task    string
	Missing []string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("invalid command template for task %q: missing placeholders %s",
		e.Task, strings.Join(e.Missing, ", "))
}

func (e *TemplateError) Unwrap() error { return ErrInvalidCommandTemplate }
