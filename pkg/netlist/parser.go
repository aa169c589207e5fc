package netlist

import (
	"bufio"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/edp1096/ppe-sim/pkg/control"
	"github.com/edp1096/ppe-sim/pkg/simerr"
)

type AnalysisType int

const (
	AnalysisTRAN AnalysisType = iota
	AnalysisOP
	AnalysisDC
)

func (a AnalysisType) String() string {
	switch a {
	case AnalysisOP:
		return "op"
	case AnalysisDC:
		return "dc"
	}
	return "tran"
}

type NetlistData struct {
	Title     string
	Rows      [][]string   // grid cells, row by row
	Elements  []Element    // parameter lines for grid components
	Analysis  AnalysisType // Analysis type, transient unless .op or .dc is given
	TranParam struct {
		TStep float64 // integration step
		TStop float64 // stop time
		TData float64 // storage interval
	}
	Slice    int // output windows, 0 or 1 for a single file
	Options  map[string]string
	Controls []control.Spec
	Store    []string
	DCParam  struct {
		Source1    string
		Start1     float64
		Stop1      float64
		Increment1 float64
		Source2    string
		Start2     float64
		Stop2      float64
		Increment2 float64
	}
}

// Element sets the parameters of the grid component with the same tag.
type Element struct {
	Kind     string             // component kind as used in grid tokens
	Tag      string             // component tag
	Value    *float64           // positional value for the main parameter
	Params   map[string]float64 // key=value parameters
	Polarity string             // polarity cell in spreadsheet notation, empty if none
}

var unitMap = map[string]float64{
	"T":   1e12,  // tera
	"G":   1e9,   // giga
	"meg": 1e6,   // mega
	"K":   1e3,   // kilo
	"k":   1e3,   // kilo
	"m":   1e-3,  // milli
	"u":   1e-6,  // micro
	"n":   1e-9,  // nano
	"p":   1e-12, // pico
	"f":   1e-15, // femto
}

var (
	valuePattern = regexp.MustCompile(`^([-+]?\d*\.?\d+(?:[eE][-+]?\d+)?)(meg|[TGKkmunpf])?[a-zA-Z]*$`)
	spaces       = regexp.MustCompile(`\s+`)
)

// Parse reads a grid netlist. The first line is the title, "*" starts a comment and
// a line starting with "+" continues the previous one. Lines between .grid and
// .endgrid are comma separated cell tokens.
func Parse(input string) (*NetlistData, error) {
	scanner := bufio.NewScanner(strings.NewReader(input))
	netlistData := &NetlistData{Options: make(map[string]string)}

	// Title or comment
	if scanner.Scan() {
		netlistData.Title = strings.TrimPrefix(scanner.Text(), "*")
		netlistData.Title = strings.TrimSpace(netlistData.Title)
	}

	var errs simerr.List
	var currentLine string
	inGrid := false
	lineNo, startLine := 1, 1

	flush := func() {
		if currentLine != "" {
			if err := parseLine(netlistData, currentLine); err != nil {
				errs.Add(fmt.Errorf("line %d: %w", startLine, err))
			}
			currentLine = ""
		}
	}

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())

		if inGrid {
			switch {
			case strings.EqualFold(line, ".endgrid"):
				inGrid = false
			case strings.HasPrefix(line, "*"):
			default:
				netlistData.Rows = append(netlistData.Rows, splitRow(line))
			}
			continue
		}

		// Strip comments in line
		if idx := strings.Index(line, "*"); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}
		if len(line) == 0 {
			flush()
			continue
		}

		// Line continues
		if strings.HasPrefix(line, "+") {
			if currentLine != "" {
				currentLine += " " + strings.TrimSpace(line[1:])
			}
			continue
		}

		flush()
		if strings.EqualFold(line, ".grid") {
			if len(netlistData.Rows) > 0 {
				errs.Addf(simerr.ErrConfig, "line %d: second .grid block", lineNo)
			}
			inGrid = true
			continue
		}
		currentLine = line
		startLine = lineNo
	}
	flush()

	if inGrid {
		errs.Addf(simerr.ErrConfig, ".grid block is not closed")
	}
	if len(netlistData.Rows) == 0 {
		errs.Addf(simerr.ErrConfig, "netlist has no .grid block")
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}
	return netlistData, nil
}

func splitRow(line string) []string {
	cells := strings.Split(line, ",")
	for i, c := range cells {
		cells[i] = strings.TrimSpace(c)
	}
	return cells
}

func parseLine(netlistData *NetlistData, line string) error {
	line = spaces.ReplaceAllString(line, " ")

	if strings.HasPrefix(line, ".") {
		return parseDotOperator(netlistData, line)
	}

	element, err := parseElement(line)
	if err != nil {
		return err
	}
	for _, e := range netlistData.Elements {
		if e.Tag == element.Tag {
			return fmt.Errorf("%w: element %s is given twice", simerr.ErrConfig, element.Tag)
		}
	}
	netlistData.Elements = append(netlistData.Elements, *element)
	return nil
}

// splitPairs separates key=value fields from positional ones. Keys are lower cased.
func splitPairs(fields []string) (map[string]string, []string) {
	pairs := make(map[string]string)
	var positional []string
	for _, f := range fields {
		k, v, ok := strings.Cut(f, "=")
		if !ok {
			positional = append(positional, f)
			continue
		}
		pairs[strings.ToLower(k)] = v
	}
	return pairs, positional
}

// Parse .tran, .slice, .control, .store, .options, .op, .dc
func parseDotOperator(netlistData *NetlistData, line string) error {
	var err error

	fields := strings.Fields(line)
	switch strings.ToLower(fields[0]) {
	case ".op":
		netlistData.Analysis = AnalysisOP

	case ".tran":
		netlistData.Analysis = AnalysisTRAN
		pairs, positional := splitPairs(fields[1:])
		names := []string{"step", "stop", "data"}
		for i, v := range positional {
			if i >= len(names) {
				return fmt.Errorf("%w: too many tran parameters", simerr.ErrConfig)
			}
			pairs[names[i]] = v
		}
		targets := map[string]*float64{
			"step": &netlistData.TranParam.TStep,
			"stop": &netlistData.TranParam.TStop,
			"data": &netlistData.TranParam.TData,
		}
		for k, v := range pairs {
			dst, ok := targets[k]
			if !ok {
				return fmt.Errorf("%w: unknown tran parameter %q", simerr.ErrConfig, k)
			}
			if *dst, err = ParseValue(v); err != nil {
				return fmt.Errorf("invalid tran %s: %w", k, err)
			}
		}

	case ".slice":
		if len(fields) != 2 {
			return fmt.Errorf("%w: .slice takes the number of windows", simerr.ErrConfig)
		}
		if netlistData.Slice, err = strconv.Atoi(fields[1]); err != nil || netlistData.Slice < 1 {
			return fmt.Errorf("%w: invalid window count %q", simerr.ErrConfig, fields[1])
		}

	case ".control":
		spec, err := parseControl(fields[1:])
		if err != nil {
			return err
		}
		netlistData.Controls = append(netlistData.Controls, spec)

	case ".store":
		if len(fields) < 2 {
			return fmt.Errorf("%w: .store needs at least one variable", simerr.ErrConfig)
		}
		netlistData.Store = append(netlistData.Store, fields[1:]...)

	case ".options":
		pairs, positional := splitPairs(fields[1:])
		if len(positional) > 0 {
			return fmt.Errorf("%w: options must be key=value, got %q", simerr.ErrConfig, positional[0])
		}
		for k, v := range pairs {
			netlistData.Options[k] = v
		}

	case ".dc":
		netlistData.Analysis = AnalysisDC
		if len(fields) != 5 && len(fields) != 9 {
			return fmt.Errorf("%w: insufficient DC sweep parameters", simerr.ErrConfig)
		}
		d := &netlistData.DCParam
		d.Source1 = fields[1]
		if d.Start1, d.Stop1, d.Increment1, err = parseSweep(fields[2:5]); err != nil {
			return err
		}
		if len(fields) == 9 {
			d.Source2 = fields[5]
			if d.Start2, d.Stop2, d.Increment2, err = parseSweep(fields[6:9]); err != nil {
				return err
			}
		}

	default:
		return fmt.Errorf("%w: unsupported directive %s", simerr.ErrConfig, fields[0])
	}

	return nil
}

func parseSweep(fields []string) (start, stop, incr float64, err error) {
	vals := make([]float64, 3)
	for i, f := range fields {
		if vals[i], err = ParseValue(f); err != nil {
			return 0, 0, 0, fmt.Errorf("invalid sweep value: %w", err)
		}
	}
	return vals[0], vals[1], vals[2], nil
}

// parseControl reads "kind name target=S1 var=mod key=value...".
func parseControl(fields []string) (control.Spec, error) {
	if len(fields) < 2 {
		return control.Spec{}, fmt.Errorf("%w: .control needs a kind and a name", simerr.ErrConfig)
	}
	spec := control.Spec{
		Kind:   strings.ToLower(fields[0]),
		Name:   fields[1],
		Values: make(map[string]float64),
	}
	pairs, positional := splitPairs(fields[2:])
	if len(positional) > 0 {
		return spec, fmt.Errorf("%w: control %s: unexpected %q", simerr.ErrConfig, spec.Name, positional[0])
	}
	for k, v := range pairs {
		switch k {
		case "target":
			spec.Target = v
		case "var":
			spec.Var = v
		default:
			val, err := ParseValue(v)
			if err != nil {
				return spec, fmt.Errorf("control %s %s: %w", spec.Name, k, err)
			}
			spec.Values[k] = val
		}
	}
	return spec, nil
}

// parseElement reads "Kind Tag [value] key=value ... [polarity=C3]".
func parseElement(line string) (*Element, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return nil, fmt.Errorf("%w: invalid element format: %s", simerr.ErrConfig, line)
	}

	elem := &Element{
		Kind:   canonicalKind(fields[0]),
		Tag:    fields[1],
		Params: make(map[string]float64),
	}

	pairs, positional := splitPairs(fields[2:])
	switch len(positional) {
	case 0:
	case 1:
		v, err := ParseValue(positional[0])
		if err != nil {
			return nil, fmt.Errorf("element %s: %w", elem.Tag, err)
		}
		elem.Value = &v
	default:
		return nil, fmt.Errorf("%w: element %s takes one positional value", simerr.ErrConfig, elem.Tag)
	}

	for k, v := range pairs {
		if k == "polarity" {
			elem.Polarity = v
			continue
		}
		val, err := ParseValue(v)
		if err != nil {
			return nil, fmt.Errorf("element %s %s: %w", elem.Tag, k, err)
		}
		elem.Params[k] = val
	}
	return elem, nil
}

func ParseValue(val string) (float64, error) {
	matches := valuePattern.FindStringSubmatch(strings.TrimSpace(val))
	if matches == nil {
		return 0, fmt.Errorf("%w: invalid value format: %s", simerr.ErrConfig, val)
	}

	num, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, err
	}

	// factor
	if matches[2] != "" {
		if multiplier, ok := unitMap[matches[2]]; ok {
			num *= multiplier
		}
	}

	return num, nil
}
