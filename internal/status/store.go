package status

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gofrs/flock"

	"lightflow/internal/fsutil"
)

const (
	// DefaultLivenessTimeout is the heartbeat window after which a worker
	// that has stopped pinging is considered dead.
	DefaultLivenessTimeout = 5 * time.Minute

	// DefaultLockWait bounds how long a single read-modify-write waits for
	// the record's advisory lock before giving up.
	DefaultLockWait = 5 * time.Second
)

var errLockHeld = errors.New("status lock held by another process")

// Store is the durable status record of a single entity.
//
// The record survives process crashes and is safe under concurrent access
// from multiple worker processes: every operation acquires the record's
// advisory lock, performs one read-modify-write, and atomically replaces
// the file.
type Store struct {
	path     string
	lockWait time.Duration
}

// NewStore returns a Store backed by the record at path. The lock file is
// a sibling of the record (path + ".lock").
func NewStore(path string) *Store {
	return &Store{path: path, lockWait: DefaultLockWait}
}

// Path returns the record's location on disk.
func (s *Store) Path() string { return s.path }

func (s *Store) lockPath() string { return s.path + ".lock" }

// acquire takes the record's advisory lock with a bounded retry policy.
// The returned release func must be called exactly once.
func (s *Store) acquire() (release func(), err error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure status dir: %w", err)
	}

	fl := flock.New(s.lockPath())
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 10 * time.Millisecond
	policy.MaxInterval = 250 * time.Millisecond
	policy.MaxElapsedTime = s.lockWait

	try := func() error {
		ok, err := fl.TryLock()
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return errLockHeld
		}
		return nil
	}
	if err := backoff.Retry(try, policy); err != nil {
		return nil, fmt.Errorf("acquire lock for %s: %w", s.path, err)
	}
	return func() { _ = fl.Unlock() }, nil
}

// Read returns the current record, or a Status in state Unknown when no
// record exists yet.
func (s *Store) Read() (Status, error) {
	release, err := s.acquire()
	if err != nil {
		return Status{}, err
	}
	defer release()
	return s.readLocked()
}

// Write atomically replaces the record.
func (s *Store) Write(st Status) error {
	release, err := s.acquire()
	if err != nil {
		return err
	}
	defer release()
	return s.writeLocked(st)
}

// Ping refreshes the heartbeat (LastTime) to now under a single lock
// acquisition, leaving state and StartTime untouched.
func (s *Store) Ping() error {
	release, err := s.acquire()
	if err != nil {
		return err
	}
	defer release()

	st, err := s.readLocked()
	if err != nil {
		return err
	}
	st.LastTime = time.Now().UTC()
	return s.writeLocked(st)
}

// Reset reinitializes both timestamps to now, preserving the state.
func (s *Store) Reset() error {
	release, err := s.acquire()
	if err != nil {
		return err
	}
	defer release()

	st, err := s.readLocked()
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	st.StartTime = now
	st.LastTime = now
	return s.writeLocked(st)
}

// SetState transitions the record to state under a single lock acquisition.
// A record transitioning out of Unknown gets a fresh StartTime.
func (s *Store) SetState(state State) error {
	release, err := s.acquire()
	if err != nil {
		return err
	}
	defer release()

	st, err := s.readLocked()
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if st.State == Unknown || st.StartTime.IsZero() {
		st.StartTime = now
	}
	st.State = state
	st.LastTime = now
	return s.writeLocked(st)
}

// IsAlive reports whether the record's heartbeat is fresher than timeout.
// A missing record is never alive.
func (s *Store) IsAlive(timeout time.Duration) (bool, error) {
	st, err := s.Read()
	if err != nil {
		return false, err
	}
	if st.State == Unknown && st.LastTime.IsZero() {
		return false, nil
	}
	return time.Since(st.LastTime) < timeout, nil
}

func (s *Store) readLocked() (Status, error) {
	var st Status
	if err := fsutil.ReadJSONStrict(s.path, &st); err != nil {
		if os.IsNotExist(err) {
			return Status{State: Unknown}, nil
		}
		return Status{}, fmt.Errorf("read status %s: %w", s.path, err)
	}
	if err := st.validate(); err != nil {
		return Status{}, fmt.Errorf("status %s: %w", s.path, err)
	}
	return st, nil
}

func (s *Store) writeLocked(st Status) error {
	if err := st.validate(); err != nil {
		return err
	}
	if err := fsutil.WriteJSONAtomic(s.path, st, 0o644); err != nil {
		return fmt.Errorf("write status %s: %w", s.path, err)
	}
	return nil
}
