package slurm

import (
	"os"
	"path/filepath"
	"testing"

	"lightflow/internal/flow"
)

func TestRenderAllDirectives(t *testing.T) {
	s := flow.Script{
		Options: flow.BatchOptions{
			JobName:    "run-3",
			Output:     "/flows/x/works/job_%a/output.out",
			Error:      "/flows/x/works/job_%a/output.err",
			Partition:  "gpu",
			Array:      "0,2,5",
			Dependency: "afterok:4242",
		},
		Body: []string{"source /opt/venv/bin/activate", "lightflow run job"},
	}

	want := `#!/bin/bash
#SBATCH --job-name=run-3
#SBATCH --output=/flows/x/works/job_%a/output.out
#SBATCH --error=/flows/x/works/job_%a/output.err
#SBATCH --partition=gpu
#SBATCH --array=0,2,5
#SBATCH --dependency=afterok:4242
source /opt/venv/bin/activate
lightflow run job
`
	if got := Render(s); got != want {
		t.Fatalf("Render mismatch:\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderOmitsEmptyDirectives(t *testing.T) {
	s := flow.Script{
		Options: flow.BatchOptions{JobName: "init-0"},
		Body:    []string{"lightflow run task"},
	}

	want := "#!/bin/bash\n#SBATCH --job-name=init-0\nlightflow run task\n"
	if got := Render(s); got != want {
		t.Fatalf("Render mismatch:\n got: %q\nwant: %q", got, want)
	}
}

func TestWriteScript(t *testing.T) {
	s := flow.Script{
		Path:    filepath.Join(t.TempDir(), "scripts", "run_task_0.sh"),
		Options: flow.BatchOptions{JobName: "run-0"},
		Body:    []string{"true"},
	}
	if err := WriteScript(s); err != nil {
		t.Fatalf("WriteScript: %v", err)
	}

	data, err := os.ReadFile(s.Path)
	if err != nil {
		t.Fatalf("read script: %v", err)
	}
	if string(data) != Render(s) {
		t.Fatalf("script content mismatch: %q", data)
	}
	info, err := os.Stat(s.Path)
	if err != nil {
		t.Fatalf("stat script: %v", err)
	}
	if info.Mode().Perm()&0o100 == 0 {
		t.Fatalf("script not executable: %v", info.Mode())
	}
}
