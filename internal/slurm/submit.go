package slurm

import (
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"lightflow/internal/flow"
)

// Batch submits scripts through sbatch and parses the job id out of its
// "Submitted batch job <id>" acknowledgement.
type Batch struct{}

// Submit writes the script and hands it to sbatch.
func (Batch) Submit(s flow.Script) (string, error) {
	if err := WriteScript(s); err != nil {
		return "", err
	}
	slog.Info("submitting batch script", "path", s.Path, "job_name", s.Options.JobName)

	out, err := exec.Command("sbatch", s.Path).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("sbatch %s: %w: %s", s.Path, err, strings.TrimSpace(string(out)))
	}

	ack := strings.TrimSpace(string(out))
	if !strings.Contains(ack, "Submitted batch job") {
		return "", fmt.Errorf("unexpected sbatch output: %q", ack)
	}
	fields := strings.Fields(ack)
	id := fields[len(fields)-1]
	if _, err := strconv.Atoi(id); err != nil {
		return "", fmt.Errorf("unexpected sbatch job id %q", id)
	}
	slog.Info("batch script submitted", "path", s.Path, "id", id)
	return id, nil
}

// Local writes the script but never reaches a scheduler; it hands back a
// generated id. Useful for development and dry runs.
type Local struct{}

// Submit writes the script and returns a fresh submission id.
func (Local) Submit(s flow.Script) (string, error) {
	if err := WriteScript(s); err != nil {
		return "", err
	}
	id := uuid.NewString()
	slog.Info("script written locally", "path", s.Path, "id", id)
	return id, nil
}
