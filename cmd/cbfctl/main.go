package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"example.com/cbfconv/internal/catalog"
	"example.com/cbfconv/internal/cbf"
	"example.com/cbfconv/internal/common"
	"example.com/cbfconv/internal/csvout"
	"example.com/cbfconv/internal/diag"
	"example.com/cbfconv/internal/manifest"
	"example.com/cbfconv/internal/report"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}
	cmd := os.Args[1]
	switch cmd {
	case "convert":
		convertCmd(os.Args[2:])
	case "inspect":
		inspectCmd(os.Args[2:])
	case "batch":
		batchCmd(os.Args[2:])
	case "report":
		reportCmd(os.Args[2:])
	case "version":
		fmt.Printf("cbfctl %s (built %s)\n", version, buildDate)
	default:
		usage()
	}
}

func usage() {
	fmt.Printf(`cbfctl %s (built %s) <command> [options]

Commands:
  convert  --in <file.cbf> [--out <file.csv>] [--catalog <params.json>] [--interval <seconds>] [--best-effort] [--diag <findings.ndjson>] [--metrics] [--progress]
  inspect  --in <file.cbf> [--catalog <params.json>] [--format table|plain|json]
  batch    --in <dir> --out-dir <dir> [--catalog <params.json>] [--interval <seconds>] [--best-effort]
  report   --in <file.cbf> [--catalog <params.json>] [--json <session.json>] [--pdf <session.pdf>]
  version
`, version, buildDate)
}

func loadCatalogOrExit(path string) *catalog.Store {
	cat, err := catalog.EnsureLoaded(path)
	if err != nil {
		fmt.Println("catalog:", err)
		os.Exit(1)
	}
	return cat
}

// failDecode prints a decode failure with its location and the last good
// timestamp, then exits non-zero.
func failDecode(err error) {
	var de *cbf.DecodeError
	if errors.As(err, &de) {
		loc := fmt.Sprintf("offset 0x%X", de.Offset)
		if de.HasTime {
			loc += fmt.Sprintf(", last good timestamp %gs", de.Timestamp)
		}
		fmt.Fprintf(os.Stderr, "decode failed: %v (%s)\n", err, loc)
	} else {
		fmt.Fprintln(os.Stderr, "decode failed:", err)
	}
	os.Exit(1)
}

func convertCmd(args []string) {
	fs := flag.NewFlagSet("convert", flag.ExitOnError)
	in := fs.String("in", "", "input .cbf")
	out := fs.String("out", "", "output .csv, or - for stdout (default: input with .csv extension)")
	catalogPath := fs.String("catalog", "", "parameter catalog overlay JSON")
	interval := fs.Float64("interval", 1.0, "sampling interval in seconds for captures without a time column")
	bestEffort := fs.Bool("best-effort", false, "emit records decoded before a fault instead of failing")
	diagOut := fs.String("diag", "", "write findings NDJSON to this path")
	metricsFlag := fs.Bool("metrics", false, "print conversion throughput metrics")
	progressFlag := fs.Bool("progress", false, "display conversion progress updates")
	fs.Parse(args)

	if *in == "" {
		fmt.Println("required: --in")
		os.Exit(1)
	}
	outPath := *out
	if outPath == "" {
		outPath = strings.TrimSuffix(*in, filepath.Ext(*in)) + ".csv"
	}

	cat := loadCatalogOrExit(*catalogPath)
	reader, err := cbf.NewReader(*in, cat)
	if err != nil {
		failDecode(err)
	}
	defer reader.Close()
	reader.SetInterval(*interval)

	var metrics *common.Metrics
	if *metricsFlag || *progressFlag {
		metrics = common.NewMetrics()
		reader.SetMetrics(metrics)
	}

	var f *os.File
	toStdout := outPath == "-"
	if toStdout {
		f = os.Stdout
	} else {
		var err error
		if f, err = os.Create(outPath); err != nil {
			fmt.Println("create output:", err)
			os.Exit(1)
		}
	}

	if metrics != nil {
		metrics.Start()
	}
	var stopProgress func()
	if metrics != nil && *progressFlag {
		stopProgress = common.StartProgressPrinter(os.Stderr, metrics, 500*time.Millisecond)
	}
	n, decodeErr := csvout.Convert(reader, f, *bestEffort)
	if stopProgress != nil {
		stopProgress()
	}
	if metrics != nil {
		metrics.Stop()
	}
	if !toStdout {
		if err := f.Close(); err != nil {
			fmt.Println("close output:", err)
			os.Exit(1)
		}
	}

	if *diagOut != "" {
		if err := diag.SaveNDJSON(*diagOut, reader.Findings()); err != nil {
			fmt.Println("write findings:", err)
			os.Exit(1)
		}
	}
	if decodeErr != nil && !*bestEffort {
		if !toStdout {
			os.Remove(outPath)
		}
		failDecode(decodeErr)
	}

	// The summary goes to stderr when the CSV itself occupies stdout.
	summary := os.Stdout
	if toStdout {
		summary = os.Stderr
	}
	hdr := reader.Header()
	warnings := diag.Count(reader.Findings(), diag.SeverityWarning)
	fmt.Fprintf(summary, "converted %d records, %d parameters (%s) -> %s, warnings=%d\n",
		n, len(hdr.Fields), hdr.Family, outPath, warnings)
	if decodeErr != nil {
		fmt.Fprintln(os.Stderr, "partial output, decode fault:", decodeErr)
	}
	if metrics != nil && *metricsFlag {
		snap := metrics.Snapshot()
		mbPerSec := snap.ThroughputBytesPerSecond() / 1_000_000
		fmt.Fprintf(summary, "Metrics: duration=%s records=%d samples=%d processed=%s throughput=%.2f MB/s\n",
			snap.Duration.Round(10*time.Millisecond),
			snap.Records,
			snap.Samples,
			common.FormatBytes(snap.Bytes),
			mbPerSec,
		)
	}
	if decodeErr != nil {
		os.Exit(1)
	}
}

func inspectCmd(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	in := fs.String("in", "", "input .cbf")
	catalogPath := fs.String("catalog", "", "parameter catalog overlay JSON")
	format := fs.String("format", "", "output format: table, plain or json (default: table on a terminal)")
	fs.Parse(args)

	if *in == "" {
		fmt.Println("required: --in")
		os.Exit(1)
	}
	cat := loadCatalogOrExit(*catalogPath)
	session, err := report.BuildSession(*in, cat)
	if err != nil {
		failDecode(err)
	}

	mode := strings.ToLower(*format)
	if mode == "" {
		if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
			mode = "table"
		} else {
			mode = "plain"
		}
	}
	if err := writeSession(os.Stdout, session, mode); err != nil {
		fmt.Println("inspect:", err)
		os.Exit(1)
	}
}

func writeSession(w io.Writer, s report.Session, format string) error {
	switch format {
	case "table":
		return writeSessionTable(w, s)
	case "plain":
		return writeSessionPlain(w, s)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func writeSessionPlain(w io.Writer, s report.Session) error {
	fmt.Fprintf(w, "input\t%s\n", s.Input)
	fmt.Fprintf(w, "family\t%s\n", s.Family)
	fmt.Fprintf(w, "program\t%s\n", s.Program)
	fmt.Fprintf(w, "mode\t%s\n", s.Mode)
	fmt.Fprintf(w, "records\t%d (trailer declares %d)\n", s.Records, s.DeclaredRecords)
	fmt.Fprintf(w, "time\t%gs to %gs\n", s.FirstTimestamp, s.LastTimestamp)
	if _, err := fmt.Fprintln(w, "index\tpid\tname\tunit\tknown\tsamples"); err != nil {
		return err
	}
	for _, p := range s.Parameters {
		pid := "-"
		if p.HasPID {
			pid = fmt.Sprintf("0x%02X", p.PID)
		}
		if _, err := fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%v\t%d\n",
			p.Index, pid, p.Name, p.Unit, p.Known, p.Samples); err != nil {
			return err
		}
	}
	return nil
}

func writeSessionTable(w io.Writer, s report.Session) error {
	fmt.Fprintf(w, "%s: %s / %s (%s), %d records, %gs to %gs\n",
		s.Input, s.Program, s.Mode, s.Family, s.Records, s.FirstTimestamp, s.LastTimestamp)

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.Style().Options.SeparateHeader = true
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight, AlignHeader: text.AlignCenter},
		{Number: 2, Align: text.AlignLeft, AlignHeader: text.AlignCenter},
		{Number: 3, Align: text.AlignLeft, AlignHeader: text.AlignCenter, WidthMax: 40},
		{Number: 4, Align: text.AlignLeft, AlignHeader: text.AlignCenter},
		{Number: 5, Align: text.AlignRight, AlignHeader: text.AlignCenter},
		{Number: 6, Align: text.AlignRight, AlignHeader: text.AlignCenter},
		{Number: 7, Align: text.AlignCenter, AlignHeader: text.AlignCenter},
		{Number: 8, Align: text.AlignRight, AlignHeader: text.AlignCenter},
	})
	tw.AppendHeader(table.Row{"#", "PID", "Name", "Unit", "Scale", "Offset", "Known", "Samples"})
	for _, p := range s.Parameters {
		pid := "-"
		if p.HasPID {
			pid = fmt.Sprintf("0x%02X", p.PID)
		}
		scale, offset := "-", "-"
		if p.Known {
			scale = strconv.FormatFloat(p.Scale, 'g', -1, 64)
			offset = strconv.FormatFloat(p.Offset, 'g', -1, 64)
		}
		known := "no"
		if p.Known {
			known = "yes"
		}
		tw.AppendRow(table.Row{p.Index, pid, p.Name, p.Unit, scale, offset, known, p.Samples})
	}
	tw.Render()

	if len(s.Findings) > 0 {
		fmt.Fprintf(w, "%d finding(s):\n", len(s.Findings))
		for _, f := range s.Findings {
			fmt.Fprintf(w, "  [%s] %s: %s\n", f.Severity, f.Kind, f.Message)
		}
	}
	return nil
}

// batchResult summarizes one input file's conversion for the batch manifest
// and console output.
type batchResult struct {
	input   string
	output  string
	records int
	err     error
}

func batchCmd(args []string) {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	inDir := fs.String("in", ".", "input directory")
	outDir := fs.String("out-dir", "out", "results directory")
	catalogPath := fs.String("catalog", "", "parameter catalog overlay JSON")
	interval := fs.Float64("interval", 1.0, "sampling interval in seconds for captures without a time column")
	bestEffort := fs.Bool("best-effort", false, "emit partial CSVs for faulted captures")
	fs.Parse(args)

	cat := loadCatalogOrExit(*catalogPath)
	inputs, err := listCaptures(*inDir)
	if err != nil {
		fmt.Println("list inputs:", err)
		os.Exit(1)
	}
	if len(inputs) == 0 {
		fmt.Printf("no .cbf files under %s\n", *inDir)
		os.Exit(1)
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		fmt.Println("create out-dir:", err)
		os.Exit(1)
	}

	results := make([]batchResult, 0, len(inputs))
	for _, input := range inputs {
		results = append(results, convertOne(input, *outDir, cat, *interval, *bestEffort))
	}

	failed := 0
	var outputs []string
	for _, res := range results {
		if res.err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "FAIL %s: %v\n", res.input, res.err)
			continue
		}
		fmt.Printf("OK   %s -> %s (%d records)\n", res.input, res.output, res.records)
		outputs = append(outputs, res.output)
	}

	if len(outputs) > 0 {
		m, err := manifest.Build(outputs)
		if err != nil {
			fmt.Println("build manifest:", err)
			os.Exit(1)
		}
		manifestPath := filepath.Join(*outDir, "manifest.json")
		if err := manifest.Save(m, manifestPath); err != nil {
			fmt.Println("write manifest:", err)
			os.Exit(1)
		}
		fmt.Printf("wrote %s (%d artifacts)\n", manifestPath, len(m.Items))
	}

	fmt.Printf("batch done: %d converted, %d failed\n", len(results)-failed, failed)
	if failed > 0 {
		os.Exit(1)
	}
}

func listCaptures(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), ".cbf") {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

// convertOne isolates a single file's conversion so one corrupt capture
// cannot abort the rest of the batch.
func convertOne(input, outDir string, cat *catalog.Store, interval float64, bestEffort bool) batchResult {
	res := batchResult{input: input}
	reader, err := cbf.NewReader(input, cat)
	if err != nil {
		res.err = err
		return res
	}
	defer reader.Close()
	reader.SetInterval(interval)

	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	res.output = filepath.Join(outDir, base+".csv")
	f, err := os.Create(res.output)
	if err != nil {
		res.err = err
		return res
	}
	n, decodeErr := csvout.Convert(reader, f, bestEffort)
	closeErr := f.Close()
	res.records = n
	if decodeErr != nil && !bestEffort {
		os.Remove(res.output)
		res.err = decodeErr
		return res
	}
	if closeErr != nil {
		res.err = closeErr
	}
	return res
}

func reportCmd(args []string) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	in := fs.String("in", "", "input .cbf")
	catalogPath := fs.String("catalog", "", "parameter catalog overlay JSON")
	jsonOut := fs.String("json", "", "session report JSON output")
	pdfOut := fs.String("pdf", "", "session report PDF output")
	fs.Parse(args)

	if *in == "" {
		fmt.Println("required: --in")
		os.Exit(1)
	}
	if *jsonOut == "" && *pdfOut == "" {
		fmt.Println("required: --json and/or --pdf")
		os.Exit(1)
	}
	cat := loadCatalogOrExit(*catalogPath)
	session, err := report.BuildSession(*in, cat)
	if err != nil {
		failDecode(err)
	}
	if *jsonOut != "" {
		if err := report.SaveSessionJSON(session, *jsonOut); err != nil {
			fmt.Println("write json:", err)
			os.Exit(1)
		}
	}
	if *pdfOut != "" {
		if err := report.SaveSessionPDF(session, *pdfOut); err != nil {
			fmt.Println("write pdf:", err)
			os.Exit(1)
		}
	}
	fmt.Printf("records=%d errors=%d warnings=%d\n", session.Records, session.Errors(), session.Warnings())
	if session.Fault != "" {
		fmt.Fprintln(os.Stderr, "capture faulted:", session.Fault)
		os.Exit(1)
	}
}
