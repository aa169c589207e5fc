package simerr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTopology marks a malformed grid: dangling wires, components on junctions, bad loop sets.
	ErrTopology = errors.New("topology error")

	// ErrPolarity marks a polarity reference outside the component's branch or on the component itself.
	ErrPolarity = errors.New("polarity error")

	// ErrConfig marks a rejected numeric configuration.
	ErrConfig = errors.New("configuration error")

	// ErrSingular indicates a reduced system matrix that cannot be factorised.
	ErrSingular = errors.New("singular system matrix")

	// ErrNoConvergence indicates the device state fixed point did not settle within its cap.
	ErrNoConvergence = errors.New("device state iteration did not converge")

	// ErrDiverged indicates branch currents that left the finite range during integration.
	ErrDiverged = errors.New("simulation diverged")

	// ErrNoResistance indicates a loop without any resistive or inductive element.
	ErrNoResistance = errors.New("loop has no resistance")

	// ErrOutput indicates the output sink could not be created or written.
	ErrOutput = errors.New("output error")

	// ErrUnknownControl indicates a control name missing from the registry.
	ErrUnknownControl = errors.New("unknown control")
)

// List collects validation errors so they can be reported together.
type List []error

func (l *List) Add(err error) {
	if err != nil {
		*l = append(*l, err)
	}
}

func (l *List) Addf(kind error, format string, args ...any) {
	*l = append(*l, fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...)))
}

func (l List) Error() string {
	msgs := make([]string, len(l))
	for i, err := range l {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "\n")
}

func (l List) Unwrap() []error {
	return l
}

// Err returns nil for an empty list.
func (l List) Err() error {
	if len(l) == 0 {
		return nil
	}
	return l
}

type PolarityError struct {
	Kind   string
	Tag    string
	Reason string
}

func (e *PolarityError) Error() string {
	return fmt.Sprintf("%s. Check %s_%s", e.Reason, e.Kind, e.Tag)
}

func (e *PolarityError) Unwrap() error {
	return ErrPolarity
}

// SimulationError wraps a fatal solver error with the time it occurred.
type SimulationError struct {
	Step    int
	Time    float64
	Wrapped error
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("t=%g (step %d): %v", e.Time, e.Step, e.Wrapped)
}

func (e *SimulationError) Unwrap() error {
	return e.Wrapped
}
