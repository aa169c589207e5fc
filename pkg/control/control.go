package control

import (
	"fmt"
	"sort"

	"github.com/edp1096/ppe-sim/pkg/device"
	"github.com/edp1096/ppe-sim/pkg/simerr"
)

// Func is a control callback. It is called once per driver iteration and may only act
// through its Context.
type Func func(ctx *Context) error

// Context is the view one callback gets of the running simulation.
type Context struct {
	Time  float64
	Index int

	Inputs     map[string]float64 // meter readings by tag
	Outputs    map[string]float64 // control values by component tag
	Static     map[string]float64 // private to the callback
	TimeEvents map[string]float64 // private to the callback
	Storage    map[string]float64 // shared by all callbacks
	Events     []int              // set Events[Index] = 1 to force a re-derivation
	Components map[string]device.Component

	wakes *[]float64
}

// Wake asks the driver to stop at t.
func (c *Context) Wake(t float64) {
	*c.wakes = append(*c.wakes, t)
}

// RequestEvent flags a re-derivation for this callback.
func (c *Context) RequestEvent() {
	c.Events[c.Index] = 1
}

type entry struct {
	name string
	fn   Func
}

// Registry maps control names to callbacks in registration order.
type Registry struct {
	entries []entry
	index   map[string]int
}

func NewRegistry() *Registry {
	return &Registry{index: make(map[string]int)}
}

func (r *Registry) Register(name string, fn Func) error {
	if _, dup := r.index[name]; dup {
		return fmt.Errorf("%w: control %q registered twice", simerr.ErrConfig, name)
	}
	if fn == nil {
		return fmt.Errorf("%w: control %q has no function", simerr.ErrConfig, name)
	}
	r.index[name] = len(r.entries)
	r.entries = append(r.entries, entry{name: name, fn: fn})
	return nil
}

func (r *Registry) Lookup(name string) (Func, error) {
	i, ok := r.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", simerr.ErrUnknownControl, name)
	}
	return r.entries[i].fn, nil
}

func (r *Registry) Names() []string {
	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.name
	}
	return names
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.entries)
}

// Runner holds the state that control callbacks keep across iterations of one run.
type Runner struct {
	funcs      []Func
	names      []string
	static     []map[string]float64
	timeEvents []map[string]float64
	events     []int

	storage    map[string]float64
	storeNames []string
	outputs    map[string]float64
	components map[string]device.Component
}

// NewRunner prepares the callbacks of reg for a run. Outputs start from the present
// control value of every controlled component; stored variables start at zero.
func NewRunner(reg *Registry, comps []device.Component, storeNames []string) *Runner {
	r := &Runner{
		storage:    make(map[string]float64),
		storeNames: append([]string(nil), storeNames...),
		outputs:    make(map[string]float64),
		components: make(map[string]device.Component, len(comps)),
	}
	for _, name := range storeNames {
		r.storage[name] = 0
	}
	for _, c := range comps {
		r.components[c.GetTag()] = c
		if ctl, ok := c.(device.Controlled); ok {
			r.outputs[c.GetTag()] = ctl.GetControl()
		}
	}
	if reg != nil {
		for _, e := range reg.entries {
			r.names = append(r.names, e.name)
			r.funcs = append(r.funcs, e.fn)
			r.static = append(r.static, make(map[string]float64))
			r.timeEvents = append(r.timeEvents, make(map[string]float64))
		}
	}
	r.events = make([]int, len(r.funcs))
	return r
}

// Run calls every callback once at time t. It returns the wake times requested in this
// iteration and whether any callback asked for a re-derivation. Control outputs are
// written to the controlled components afterwards.
func (r *Runner) Run(t float64, inputs map[string]float64) ([]float64, bool, error) {
	var wakes []float64
	event := false
	for i, fn := range r.funcs {
		r.events[i] = 0
		ctx := &Context{
			Time:       t,
			Index:      i,
			Inputs:     inputs,
			Outputs:    r.outputs,
			Static:     r.static[i],
			TimeEvents: r.timeEvents[i],
			Storage:    r.storage,
			Events:     r.events,
			Components: r.components,
			wakes:      &wakes,
		}
		if err := fn(ctx); err != nil {
			return nil, false, fmt.Errorf("control %s at t=%g: %w", r.names[i], t, err)
		}
		if r.events[i] == 1 {
			event = true
		}
	}

	for tag, v := range r.outputs {
		c, ok := r.components[tag]
		if !ok {
			return nil, false, fmt.Errorf("%w: control output for unknown component %s", simerr.ErrConfig, tag)
		}
		ctl, ok := c.(device.Controlled)
		if !ok {
			return nil, false, fmt.Errorf("%w: %s_%s takes no control value", simerr.ErrConfig, c.GetType(), tag)
		}
		ctl.SetControl(v)
	}
	return wakes, event, nil
}

func (r *Runner) Len() int { return len(r.funcs) }

// StoreNames lists the stored variables in output column order.
func (r *Runner) StoreNames() []string { return r.storeNames }

// StoreValues returns the stored variables in output column order.
func (r *Runner) StoreValues() []float64 {
	out := make([]float64, len(r.storeNames))
	for i, name := range r.storeNames {
		out[i] = r.storage[name]
	}
	return out
}

func (r *Runner) Output(tag string) float64 { return r.outputs[tag] }

// OutputTags lists the controlled components in tag order.
func (r *Runner) OutputTags() []string {
	tags := make([]string, 0, len(r.outputs))
	for tag := range r.outputs {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
