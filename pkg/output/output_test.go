package output

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/edp1096/ppe-sim/pkg/simerr"
)

func TestSinkWindows(t *testing.T) {
	dir := t.TempDir()
	s, err := NewSink(dir, "run", 2, 1.0)
	if err != nil {
		t.Fatalf("NewSink failed: %v", err)
	}
	if err := s.Header([]string{"A1", "VO"}); err != nil {
		t.Fatalf("Header failed: %v", err)
	}
	for _, tm := range []float64{0.1, 0.4, 0.6, 1.0} {
		if err := s.Write(tm, []float64{tm * 2, -1}); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	want := map[string][]string{
		"run_1.dat": {"# time A1 VO", "0.1 0.2 -1", "0.4 0.8 -1"},
		"run_2.dat": {"# time A1 VO", "0.6 1.2 -1", "1 2 -1"},
	}
	for name, lines := range want {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("reading %s: %v", name, err)
		}
		got := strings.Split(strings.TrimSpace(string(data)), "\n")
		if strings.Join(got, "|") != strings.Join(lines, "|") {
			t.Errorf("%s = %q, expected %q", name, got, lines)
		}
	}
}

func TestSinkSingleFile(t *testing.T) {
	dir := t.TempDir()
	s, err := NewSink(dir, "out", 1, 1.0)
	if err != nil {
		t.Fatalf("NewSink failed: %v", err)
	}
	if p := s.Paths(); len(p) != 1 || filepath.Base(p[0]) != "out.dat" {
		t.Errorf("paths = %v", p)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestSinkUnwritable(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewSink(filepath.Join(blocker, "sub"), "x", 1, 1); !errors.Is(err, simerr.ErrOutput) {
		t.Errorf("expected ErrOutput, got %v", err)
	}
}
