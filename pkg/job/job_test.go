package job

import (
	"errors"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/google/uuid"
)

// helper re-runs the test binary as a fake worker.
func helper(t *testing.T, mode string) *exec.Cmd {
	t.Helper()
	cmd := exec.Command(os.Args[0], "-test.run=TestHelperProcess")
	cmd.Env = append(os.Environ(), "PPESIM_HELPER="+mode)
	return cmd
}

func TestHelperProcess(t *testing.T) {
	switch os.Getenv("PPESIM_HELPER") {
	case "":
		return
	case "ok":
		os.Exit(0)
	case "fail":
		os.Exit(3)
	case "hang":
		time.Sleep(time.Minute)
		os.Exit(0)
	}
}

func TestSupervisorRunsJobs(t *testing.T) {
	s := NewSupervisor(nil)

	okID, err := s.Start("ok.net", helper(t, "ok"))
	if err != nil {
		t.Fatal(err)
	}
	failID, err := s.Start("fail.net", helper(t, "fail"))
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Wait(okID); err != nil {
		t.Errorf("ok job: %v", err)
	}
	err = s.Wait(failID)
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) || exitErr.ExitCode() != 3 {
		t.Errorf("fail job error = %v, want exit status 3", err)
	}

	infos := s.List()
	if len(infos) != 2 {
		t.Fatalf("List() has %d jobs, want 2", len(infos))
	}
	states := map[string]State{}
	for _, info := range infos {
		states[info.Name] = info.State
	}
	if states["ok.net"] != Done || states["fail.net"] != Failed {
		t.Errorf("states = %v", states)
	}
	if err := s.WaitAll(); err == nil {
		t.Error("WaitAll did not report the failed job")
	}
}

func TestSupervisorCancel(t *testing.T) {
	s := NewSupervisor(nil)
	id, err := s.Start("hang.net", helper(t, "hang"))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Cancel(id); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if err := s.Wait(id); err != nil {
		t.Errorf("canceled job returned %v", err)
	}
	if st := s.List()[0].State; st != Canceled {
		t.Errorf("state = %s, want canceled", st)
	}
	if err := s.Cancel(id); err != nil {
		t.Errorf("second Cancel: %v", err)
	}
}

func TestSupervisorUnknownJob(t *testing.T) {
	s := NewSupervisor(nil)
	if err := s.Wait(uuid.New()); !errors.Is(err, ErrUnknownJob) {
		t.Errorf("Wait error = %v, want ErrUnknownJob", err)
	}
	if err := s.Cancel(uuid.New()); !errors.Is(err, ErrUnknownJob) {
		t.Errorf("Cancel error = %v, want ErrUnknownJob", err)
	}
}

func TestStartFailure(t *testing.T) {
	s := NewSupervisor(nil)
	if _, err := s.Start("missing", exec.Command("/nonexistent/ppesim-worker")); err == nil {
		t.Error("Start accepted a missing executable")
	}
	if len(s.List()) != 0 {
		t.Error("failed start was registered")
	}
}
