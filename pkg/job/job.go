package job

import (
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrUnknownJob = errors.New("unknown job")

type State int

const (
	Running State = iota
	Done
	Failed
	Canceled
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Done:
		return "done"
	case Failed:
		return "failed"
	case Canceled:
		return "canceled"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Job is one simulation running in its own worker process.
type Job struct {
	ID      uuid.UUID
	Name    string
	Started time.Time

	cmd      *exec.Cmd
	done     chan struct{}
	mu       sync.Mutex
	state    State
	err      error
	canceled bool
}

// Info is a snapshot of a job for listing.
type Info struct {
	ID      uuid.UUID
	Name    string
	Started time.Time
	State   State
	Err     error
}

func (j *Job) info() Info {
	j.mu.Lock()
	defer j.mu.Unlock()
	return Info{ID: j.ID, Name: j.Name, Started: j.Started, State: j.state, Err: j.err}
}

// Supervisor owns the registry of worker processes. Cancellation kills the
// process, the solver itself has no checkpoint to stop at.
type Supervisor struct {
	mu     sync.Mutex
	jobs   map[uuid.UUID]*Job
	logger *log.Logger
}

func NewSupervisor(logger *log.Logger) *Supervisor {
	return &Supervisor{jobs: make(map[uuid.UUID]*Job), logger: logger}
}

func (s *Supervisor) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}

// Start launches cmd and registers it under a new ID.
func (s *Supervisor) Start(name string, cmd *exec.Cmd) (uuid.UUID, error) {
	if err := cmd.Start(); err != nil {
		return uuid.Nil, fmt.Errorf("starting %s: %w", name, err)
	}

	j := &Job{
		ID:      uuid.New(),
		Name:    name,
		Started: time.Now(),
		cmd:     cmd,
		done:    make(chan struct{}),
	}
	s.mu.Lock()
	s.jobs[j.ID] = j
	s.mu.Unlock()
	s.logf("job %s started: %s (pid %d)", j.ID, name, cmd.Process.Pid)

	go func() {
		err := cmd.Wait()
		j.mu.Lock()
		switch {
		case j.canceled:
			j.state = Canceled
		case err != nil:
			j.state = Failed
			j.err = fmt.Errorf("%s: %w", name, err)
		default:
			j.state = Done
		}
		state := j.state
		j.mu.Unlock()
		close(j.done)
		s.logf("job %s %s: %s", j.ID, state, name)
	}()
	return j.ID, nil
}

func (s *Supervisor) lookup(id uuid.UUID) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, id)
	}
	return j, nil
}

// Cancel kills the worker process. Canceling a finished job is a no-op.
func (s *Supervisor) Cancel(id uuid.UUID) error {
	j, err := s.lookup(id)
	if err != nil {
		return err
	}
	select {
	case <-j.done:
		return nil
	default:
	}

	j.mu.Lock()
	j.canceled = true
	j.mu.Unlock()
	if err := j.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("canceling %s: %w", j.Name, err)
	}
	return nil
}

// Wait blocks until the job exits and returns its error. A canceled job returns nil.
func (s *Supervisor) Wait(id uuid.UUID) error {
	j, err := s.lookup(id)
	if err != nil {
		return err
	}
	<-j.done
	return j.info().Err
}

// WaitAll waits for every registered job and joins their errors.
func (s *Supervisor) WaitAll() error {
	var errs []error
	for _, info := range s.List() {
		errs = append(errs, s.Wait(info.ID))
	}
	return errors.Join(errs...)
}

// List returns every job ordered by start time.
func (s *Supervisor) List() []Info {
	s.mu.Lock()
	infos := make([]Info, 0, len(s.jobs))
	for _, j := range s.jobs {
		infos = append(infos, j.info())
	}
	s.mu.Unlock()

	sort.Slice(infos, func(a, b int) bool {
		if infos[a].Started.Equal(infos[b].Started) {
			return infos[a].Name < infos[b].Name
		}
		return infos[a].Started.Before(infos[b].Started)
	})
	return infos
}
