// Package slurm renders and submits batch scripts. It implements the
// flow.Submitter boundary for a real Slurm cluster and for a local
// development backend that only writes the scripts.
package slurm

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"lightflow/internal/flow"
)

// Render produces the script file content: shebang, #SBATCH directives in
// a fixed order, then the body.
func Render(s flow.Script) string {
	lines := []string{"#!/bin/bash"}
	directive := func(opt, value string) {
		if value != "" {
			lines = append(lines, fmt.Sprintf("#SBATCH --%s=%s", opt, value))
		}
	}
	directive("job-name", s.Options.JobName)
	directive("output", s.Options.Output)
	directive("error", s.Options.Error)
	directive("partition", s.Options.Partition)
	directive("array", s.Options.Array)
	directive("dependency", s.Options.Dependency)

	lines = append(lines, s.Body...)
	return strings.Join(lines, "\n") + "\n"
}

// WriteScript renders s and writes it to its path.
func WriteScript(s flow.Script) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return fmt.Errorf("script dir: %w", err)
	}
	if err := os.WriteFile(s.Path, []byte(Render(s)), 0o755); err != nil {
		return fmt.Errorf("write script %s: %w", s.Path, err)
	}
	return nil
}
