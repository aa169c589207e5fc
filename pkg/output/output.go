package output

import (
	"bufio"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/edp1096/ppe-sim/pkg/simerr"
)

// Writer receives sampled rows in increasing time order.
type Writer interface {
	Header(columns []string) error
	Write(t float64, values []float64) error
	Close() error
}

// Sink writes rows as whitespace separated text, split over equal time windows.
type Sink struct {
	files   []*os.File
	writers []*bufio.Writer
	window  float64
	paths   []string
}

// NewSink creates one file per window in dir. A single window is written to
// <prefix>.dat, several to <prefix>_<k>.dat.
func NewSink(dir, prefix string, windows int, limit float64) (*Sink, error) {
	if windows < 1 {
		windows = 1
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", simerr.ErrOutput, err)
	}

	s := &Sink{window: limit / float64(windows)}
	for k := 0; k < windows; k++ {
		name := prefix + ".dat"
		if windows > 1 {
			name = fmt.Sprintf("%s_%d.dat", prefix, k+1)
		}
		path := filepath.Join(dir, name)
		f, err := os.Create(path)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("%w: %v", simerr.ErrOutput, err)
		}
		s.files = append(s.files, f)
		s.writers = append(s.writers, bufio.NewWriter(f))
		s.paths = append(s.paths, path)
	}
	return s, nil
}

func (s *Sink) Paths() []string { return s.paths }

// Header writes a comment line naming the columns to every window.
func (s *Sink) Header(columns []string) error {
	line := "# time " + strings.Join(columns, " ") + "\n"
	for _, w := range s.writers {
		if _, err := w.WriteString(line); err != nil {
			return fmt.Errorf("%w: %v", simerr.ErrOutput, err)
		}
	}
	return nil
}

func (s *Sink) index(t float64) int {
	if len(s.writers) == 1 || s.window <= 0 {
		return 0
	}
	k := int(math.Floor(t / s.window))
	return max(0, min(k, len(s.writers)-1))
}

func (s *Sink) Write(t float64, values []float64) error {
	var sb strings.Builder
	sb.WriteString(strconv.FormatFloat(t, 'g', -1, 64))
	for _, v := range values {
		sb.WriteByte(' ')
		sb.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	sb.WriteByte('\n')

	if _, err := s.writers[s.index(t)].WriteString(sb.String()); err != nil {
		return fmt.Errorf("%w: %v", simerr.ErrOutput, err)
	}
	return nil
}

// Close flushes and closes every window.
func (s *Sink) Close() error {
	var errs []error
	for i, f := range s.files {
		if i < len(s.writers) {
			errs = append(errs, s.writers[i].Flush())
		}
		errs = append(errs, f.Close())
	}
	s.files, s.writers = nil, nil
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %v", simerr.ErrOutput, err)
	}
	return nil
}
