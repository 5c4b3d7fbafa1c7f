package runner

import (
	"fmt"
	"os"
	"os/exec"
	"sync"

	"lightflow/internal/status"
)

// Proc supervises a single shell command: start, liveness, join, and a
// terminal running/completed/failed verdict.
type Proc struct {
	cmd  *exec.Cmd
	done chan struct{}

	mu    sync.Mutex
	state status.State
}

// StartProc launches command through the shell with env merged over the
// parent environment.
func StartProc(command string, env map[string]string) (*Proc, error) {
	cmd := exec.Command("bash", "-c", command)
	cmd.Env = os.Environ()
	for key, value := range env {
		cmd.Env = append(cmd.Env, key+"="+value)
	}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %q: %w", command, err)
	}

	p := &Proc{cmd: cmd, done: make(chan struct{}), state: status.Running}
	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		if err != nil {
			p.state = status.Failed
		} else {
			p.state = status.Completed
		}
		p.mu.Unlock()
		close(p.done)
	}()
	return p, nil
}

// IsAlive reports whether the process is still running.
func (p *Proc) IsAlive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Done is closed when the process exits.
func (p *Proc) Done() <-chan struct{} { return p.done }

// Join blocks until the process exits.
func (p *Proc) Join() { <-p.done }

// State returns running while alive, then completed or failed.
func (p *Proc) State() status.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}
