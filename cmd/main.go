package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/edp1096/ppe-sim/pkg/analysis"
	"github.com/edp1096/ppe-sim/pkg/config"
	"github.com/edp1096/ppe-sim/pkg/job"
	"github.com/edp1096/ppe-sim/pkg/netlist"
	"github.com/edp1096/ppe-sim/pkg/output"
	"github.com/edp1096/ppe-sim/pkg/plot"
	"github.com/edp1096/ppe-sim/pkg/util"
)

var (
	outDir   = flag.String("out", ".", "directory for data files and plots")
	plotKind = flag.String("plot", "", "write a plot of the stored columns: png or html")
	verbose  = flag.Bool("v", false, "log progress and print every stored row")
	worker   = flag.Bool("worker", false, "run a single netlist as a supervised worker")
)

var logger = log.New(os.Stderr, "ppesim: ", log.LstdFlags)

func unitOf(name string) string {
	if strings.HasPrefix(name, "I(") || strings.HasPrefix(name, "A") {
		return "A"
	}
	if strings.HasPrefix(name, "V") {
		return "V"
	}
	return ""
}

func printRow(label string, columns []string, results map[string][]float64, i int) {
	fmt.Print(label)
	for _, name := range columns {
		fmt.Printf("  %s=%s", name, util.FormatValueFactor(results[name][i], unitOf(name)))
	}
	fmt.Println()
}

func printResults(kind netlist.AnalysisType, results map[string][]float64, columns []string) {
	fmt.Println("\nAnalysis Results:")
	fmt.Println("================")

	switch kind {
	case netlist.AnalysisOP:
		for _, name := range columns {
			fmt.Printf("%s = %s\n", name, util.FormatValueFactor(results[name][0], unitOf(name)))
		}

	case netlist.AnalysisDC:
		sweep1 := results["SWEEP1"]
		sweep2, nested := results["SWEEP2"]
		var meters []string
		for _, name := range columns {
			if name != "SWEEP1" && name != "SWEEP2" {
				meters = append(meters, name)
			}
		}
		fmt.Printf("\nDC Sweep Analysis Results (%d points):\n", len(sweep1))
		for i := range sweep1 {
			label := fmt.Sprintf("V=%-9s", util.FormatValueFactor(sweep1[i], "V"))
			if nested {
				label = fmt.Sprintf("V1=%-9s V2=%-9s", util.FormatValueFactor(sweep1[i], "V"), util.FormatValueFactor(sweep2[i], "V"))
			}
			printRow(label, meters, results, i)
		}

	default:
		times := results["TIME"]
		fmt.Printf("\nTransient Analysis Results (%d time points):\n", len(times))
		if len(times) == 0 {
			return
		}
		if *verbose {
			for i, t := range times {
				printRow(fmt.Sprintf("%9s", util.FormatValueFactor(t, "s")), columns, results, i)
			}
			return
		}
		last := len(times) - 1
		printRow(fmt.Sprintf("%9s", util.FormatValueFactor(times[last], "s")), columns, results, last)
	}
}

func writePlot(title string, results map[string][]float64, columns []string, stem string) error {
	tr := plot.FromResults(title, results, columns)
	switch *plotKind {
	case "":
		return nil
	case "png":
		return plot.PNG(tr, stem+".png")
	case "html":
		f, err := os.Create(stem + ".html")
		if err != nil {
			return err
		}
		defer f.Close()
		return plot.HTML(tr, f)
	}
	return fmt.Errorf("unknown plot kind %q", *plotKind)
}

// run simulates one netlist in this process.
func run(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading netlist file: %w", err)
	}

	data, err := netlist.Parse(string(content))
	if err != nil {
		return fmt.Errorf("parsing netlist: %w", err)
	}

	ckt, err := data.Circuit()
	if err != nil {
		return fmt.Errorf("building circuit: %w", err)
	}

	base := config.Default()
	base.OutputDir = *outDir
	base.Prefix = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	cfg, err := data.Config(base)
	if err != nil {
		return err
	}

	var analyzer interface {
		analysis.Analysis
		Columns() []string
		SetLogger(*log.Logger)
	}
	var tran *analysis.Transient
	cleanup := func() error { return nil }

	switch data.Analysis {
	case netlist.AnalysisOP:
		analyzer = analysis.NewOP()

	case netlist.AnalysisDC:
		p := data.DCParam
		sources := []string{p.Source1}
		starts, stops, incs := []float64{p.Start1}, []float64{p.Stop1}, []float64{p.Increment1}
		if p.Source2 != "" {
			sources = append(sources, p.Source2)
			starts, stops, incs = append(starts, p.Start2), append(stops, p.Stop2), append(incs, p.Increment2)
		}
		if analyzer, err = analysis.NewDCSweep(sources, starts, stops, incs); err != nil {
			return err
		}

	default:
		if err := cfg.Validate(); err != nil {
			return err
		}
		reg, err := data.Registry()
		if err != nil {
			return err
		}
		sink, err := output.NewSink(cfg.OutputDir, cfg.Prefix, cfg.Windows(), cfg.TimeLimit)
		if err != nil {
			return err
		}
		cleanup = sink.Close
		tran = analysis.NewTransient(cfg, sink, reg, data.Store)
		analyzer = tran
	}

	if *verbose {
		analyzer.SetLogger(logger)
	}
	if err := analyzer.Setup(ckt); err != nil {
		cleanup()
		return fmt.Errorf("analysis setup failed: %w", err)
	}
	if err := analyzer.Execute(); err != nil {
		return fmt.Errorf("analysis execution failed: %w", err)
	}

	fmt.Printf("%s (%s): %s\n", data.Title, data.Analysis, path)
	printResults(data.Analysis, analyzer.GetResults(), analyzer.Columns())
	if tran != nil {
		s := tran.Stats()
		fmt.Printf("\n%d iterations, %d steps, %d re-derivations, %d snapshots (%d cache hits), freewheel max %d\n",
			s.Iterations, s.Steps, s.Rederivations, s.Snapshots, s.CacheHits, s.FreewheelMax)
	}

	stem := filepath.Join(cfg.OutputDir, cfg.Prefix)
	return writePlot(data.Title, analyzer.GetResults(), analyzer.Columns(), stem)
}

// supervise runs every netlist as a worker process of this executable.
func supervise(paths []string) error {
	self, err := os.Executable()
	if err != nil {
		return err
	}

	sup := job.NewSupervisor(logger)
	for _, path := range paths {
		args := []string{"-worker", "-out", *outDir}
		if *plotKind != "" {
			args = append(args, "-plot", *plotKind)
		}
		if *verbose {
			args = append(args, "-v")
		}
		cmd := exec.Command(self, append(args, path)...)
		cmd.Stdout, cmd.Stderr = os.Stdout, os.Stderr
		if _, err := sup.Start(path, cmd); err != nil {
			return err
		}
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)
	go func() {
		<-interrupt
		for _, info := range sup.List() {
			if err := sup.Cancel(info.ID); err != nil {
				logger.Print(err)
			}
		}
	}()

	err = sup.WaitAll()
	for _, info := range sup.List() {
		logger.Printf("%s %s", info.Name, info.State)
	}
	return err
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: ppesim [flags] <netlist_file>...\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() < 1 || (*worker && flag.NArg() != 1) {
		flag.Usage()
		os.Exit(2)
	}

	if flag.NArg() == 1 {
		if err := run(flag.Arg(0)); err != nil {
			logger.Fatal(err)
		}
		return
	}
	if err := supervise(flag.Args()); err != nil {
		logger.Fatal(err)
	}
}
