package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/msageha/conductor/internal/events"
	"github.com/msageha/conductor/internal/graph"
	"github.com/msageha/conductor/internal/mcpserver"
	"github.com/msageha/conductor/internal/metrics"
	"github.com/msageha/conductor/internal/model"
	"github.com/msageha/conductor/internal/pipeline"
	"github.com/msageha/conductor/internal/report"
	"github.com/msageha/conductor/internal/router"
	"github.com/msageha/conductor/internal/setup"
	"github.com/msageha/conductor/internal/store"
	"github.com/msageha/conductor/internal/uds"
	"github.com/msageha/conductor/internal/watch"
	conductoryaml "github.com/msageha/conductor/internal/yaml"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "init":
		runInit(os.Args[2:])
	case "run":
		runRun(os.Args[2:])
	case "route":
		runRoute(os.Args[2:])
	case "plan":
		runPlan(os.Args[2:])
	case "blast":
		runBlast(os.Args[2:])
	case "order":
		runOrder(os.Args[2:])
	case "check":
		runCheck(os.Args[2:])
	case "watch":
		runWatch(os.Args[2:])
	case "serve":
		runServe(os.Args[2:])
	case "history":
		runHistory(os.Args[2:])
	case "submit":
		runSubmit(os.Args[2:])
	case "status":
		runStatus(os.Args[2:])
	case "version":
		fmt.Printf("conductor %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// flagValue returns the value following args[*i] and advances i.
func flagValue(args []string, i *int, usage string) string {
	if *i+1 >= len(args) {
		fatalf("%s requires a value\nusage: %s", args[*i], usage)
	}
	*i++
	return args[*i]
}

func parseFormat(s string) report.Format {
	f, err := report.ParseFormat(s)
	if err != nil {
		fatalf("%v", err)
	}
	return f
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runInit(args []string) {
	const usage = "conductor init [dir] [--name <project>]"
	dir, name := ".", ""
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--name":
			name = flagValue(args, &i, usage)
		default:
			if strings.HasPrefix(args[i], "-") {
				fatalf("unknown flag: %s\nusage: %s", args[i], usage)
			}
			dir = args[i]
		}
	}
	base, err := setup.Run(dir, name)
	if err != nil {
		fatalf("init: %v", err)
	}
	fmt.Printf("initialized %s\n", base)
}

// requestFlags are shared by run and plan.
type requestFlags struct {
	req    model.RunRequest
	file   string
	format report.Format
}

func parseRequestFlags(args []string, usage string, allowRun bool) requestFlags {
	rf := requestFlags{format: report.FormatText}
	var words []string
	var direct string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--target":
			rf.req.TargetNode = flagValue(args, &i, usage)
		case "--direct":
			direct = flagValue(args, &i, usage)
		case "--format":
			rf.format = parseFormat(flagValue(args, &i, usage))
		case "--file":
			if !allowRun {
				fatalf("unknown flag: %s\nusage: %s", args[i], usage)
			}
			rf.file = flagValue(args, &i, usage)
		case "--dry-run":
			if !allowRun {
				fatalf("unknown flag: %s\nusage: %s", args[i], usage)
			}
			rf.req.DryRun = true
		default:
			if strings.HasPrefix(args[i], "--") {
				fatalf("unknown flag: %s\nusage: %s", args[i], usage)
			}
			words = append(words, args[i])
		}
	}

	if rf.file != "" {
		req, err := watch.LoadRequest(rf.file)
		if err != nil {
			exitErr(err)
		}
		req.DryRun = req.DryRun || rf.req.DryRun
		rf.req = req
		return rf
	}

	rf.req.Intent = strings.Join(words, " ")
	if direct != "" {
		rf.req.Direct = &model.DirectRequest{Node: direct, TaskText: rf.req.Intent}
	}
	if strings.TrimSpace(rf.req.Intent) == "" {
		fatalf("usage: %s", usage)
	}
	return rf
}

func runRun(args []string) {
	const usage = "conductor run <intent...> [--target <node>] [--direct <node>] [--dry-run] [--format text|json|yaml]\n       conductor run --file <request.yaml> [--dry-run]"
	rf := parseRequestFlags(args, usage, true)

	ws := openWorkspace(os.Stderr)
	defer ws.close()
	engine := ws.engine(engineOptions{store: true})

	ctx, cancel := signalContext()
	defer cancel()
	tr, err := engine.Run(ctx, rf.req)
	if tr != nil {
		tracePath := filepath.Join(ws.path(ws.cfg.Paths.TracesDir), tr.RunID+".yaml")
		if wErr := conductoryaml.AtomicWrite(tracePath, tr); wErr != nil {
			ws.logger.Warnf("run=%s write trace: %v", tr.RunID, wErr)
		}
	}
	if err != nil {
		ws.close()
		exitErr(err)
	}
	if err := report.WriteTrace(os.Stdout, tr, rf.format); err != nil {
		fatalf("render: %v", err)
	}
	if tr.Status != model.RunCompleted {
		ws.close()
		os.Exit(2)
	}
}

func runRoute(args []string) {
	const usage = "conductor route <intent...> [--format text|json|yaml]"
	format := report.FormatText
	var words []string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--format":
			format = parseFormat(flagValue(args, &i, usage))
		default:
			words = append(words, args[i])
		}
	}
	if len(words) == 0 {
		fatalf("usage: %s", usage)
	}

	ws := openWorkspace(os.Stderr)
	defer ws.close()
	matches := router.Route(strings.Join(words, " "), ws.loadTree())
	if err := report.WriteMatches(os.Stdout, matches, format); err != nil {
		fatalf("render: %v", err)
	}
}

func runPlan(args []string) {
	const usage = "conductor plan <intent...> [--target <node>] [--direct <node>] [--format text|json|yaml]"
	rf := parseRequestFlags(args, usage, false)

	ws := openWorkspace(os.Stderr)
	defer ws.close()
	engine := ws.engine(engineOptions{})
	p, err := engine.Preview(context.Background(), rf.req)
	if err != nil {
		ws.close()
		exitErr(err)
	}
	if err := report.WritePreview(os.Stdout, p, rf.format); err != nil {
		fatalf("render: %v", err)
	}
}

func requireGraph(defs pipeline.Definitions) *graph.Graph {
	if defs.Graph == nil {
		fatalf("error: no component graph found (paths.graph)")
	}
	return defs.Graph
}

func runBlast(args []string) {
	const usage = "conductor blast <component...> [--format text|json|yaml]"
	format := report.FormatText
	var names []string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--format":
			format = parseFormat(flagValue(args, &i, usage))
		default:
			names = append(names, args[i])
		}
	}
	if len(names) == 0 {
		fatalf("usage: %s", usage)
	}

	ws := openWorkspace(os.Stderr)
	defer ws.close()
	g := requireGraph(ws.loadDefinitions())
	for _, n := range names {
		if !g.Has(n) {
			ws.logger.Warnf("unknown component %q ignored", n)
		}
	}
	if err := report.WriteBlast(os.Stdout, g.BlastRadius(names), format); err != nil {
		fatalf("render: %v", err)
	}
}

// runOrder prints tier batches: of the named components and their
// rebuild scope, or of the whole graph.
func runOrder(args []string) {
	const usage = "conductor order [component...] [--scope]"
	scope := false
	var names []string
	for _, a := range args {
		switch a {
		case "--scope":
			scope = true
		default:
			if strings.HasPrefix(a, "-") {
				fatalf("unknown flag: %s\nusage: %s", a, usage)
			}
			names = append(names, a)
		}
	}

	ws := openWorkspace(os.Stderr)
	defer ws.close()
	g := requireGraph(ws.loadDefinitions())

	if len(names) == 0 {
		order, err := g.TopologicalOrder()
		if err != nil {
			fatalf("order: %v", err)
		}
		names = order
	} else if scope {
		names = g.RebuildScope(names)
	}
	for _, batch := range g.TierBatches(names) {
		c, _ := g.Component(batch[0])
		label := strconv.Itoa(c.Tier)
		if info, ok := g.Tier(c.Tier); ok && info.Name != "" {
			label += " (" + info.Name + ")"
		}
		fmt.Printf("tier %s: %s\n", label, strings.Join(batch, " "))
	}
}

func runCheck(args []string) {
	if len(args) > 0 {
		fatalf("usage: conductor check")
	}
	ws := openWorkspace(os.Stderr)
	defer ws.close()
	defs := ws.loadDefinitions()

	problems := 0
	fmt.Printf("tree:  ok (%d nodes, root %s)\n", defs.Tree.Len(), defs.Tree.Root())
	if defs.Graph == nil {
		fmt.Println("graph: not configured")
	} else {
		diags := defs.Graph.Check()
		diags = append(diags, defs.Graph.CheckOwners(defs.Tree)...)
		if err := defs.Graph.CheckInverse(); err != nil {
			diags = append(diags, err.Error())
		}
		if len(diags) == 0 {
			fmt.Printf("graph: ok (%d components, max tier %d)\n", defs.Graph.Len(), defs.Graph.MaxTier())
		}
		for _, d := range diags {
			fmt.Printf("graph: %s\n", d)
		}
		problems += len(diags)
	}

	auditPath := ws.path(ws.cfg.Paths.AuditLog)
	total, valid, err := events.VerifyLogIntegrity(auditPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		fmt.Println("audit: no log yet")
	case err != nil:
		fmt.Printf("audit: %v\n", err)
		problems++
	case total != valid:
		fmt.Printf("audit: %d of %d entries failed checksum\n", total-valid, total)
		problems++
	default:
		fmt.Printf("audit: ok (%d entries)\n", total)
	}

	if problems > 0 {
		ws.close()
		os.Exit(1)
	}
}

// startMetrics serves /metrics until ctx ends. "off" disables it.
func startMetrics(ctx context.Context, ws *workspace, addr string) *metrics.Metrics {
	if addr == "" {
		addr = ws.cfg.Metrics.Listen
	}
	if addr == "off" {
		return nil
	}
	m := metrics.New()
	logger := ws.logger.Named("metrics")
	go func() {
		if err := m.Serve(ctx, addr, logger); err != nil {
			logger.Errorf("metrics listener stopped: %v", err)
		}
	}()
	return m
}

func runWatch(args []string) {
	const usage = "conductor watch [--metrics-addr <addr|off>]"
	var metricsAddr string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--metrics-addr":
			metricsAddr = flagValue(args, &i, usage)
		default:
			fatalf("unknown flag: %s\nusage: %s", args[i], usage)
		}
	}

	ws := openWorkspace(os.Stderr)
	defer ws.close()
	ws.relog(io.MultiWriter(os.Stderr, ws.logFile("watch")))

	ctx, cancel := signalContext()
	defer cancel()
	m := startMetrics(ctx, ws, metricsAddr)
	engine := ws.engine(engineOptions{store: true, metrics: m})

	w := watch.New(engine, watch.Options{
		BaseDir:   ws.base,
		Inbox:     ws.path(ws.cfg.Paths.Inbox),
		TracesDir: ws.path(ws.cfg.Paths.TracesDir),
		Socket:    filepath.Join(ws.base, uds.SocketName),
		Debounce:  ws.cfg.Watch.Debounce(),
		Logger:    ws.logger,
	})
	if err := w.Run(ctx); err != nil {
		ws.close()
		fatalf("watch: %v", err)
	}
}

// runSubmit hands a request to the running watcher instead of running
// it in this process.
func runSubmit(args []string) {
	const usage = "conductor submit <intent...> [--target <node>] [--direct <node>] [--dry-run] [--format text|json|yaml]\n       conductor submit --file <request.yaml> [--dry-run]"
	rf := parseRequestFlags(args, usage, true)

	ws := openWorkspace(os.Stderr)
	defer ws.close()
	ctx, cancel := signalContext()
	defer cancel()

	tr, err := watch.SubmitRemote(ctx, filepath.Join(ws.base, uds.SocketName), rf.req)
	if err != nil {
		ws.close()
		fatalf("submit: %v", err)
	}
	if err := report.WriteTrace(os.Stdout, tr, rf.format); err != nil {
		fatalf("render: %v", err)
	}
	if tr.Status != model.RunCompleted {
		ws.close()
		os.Exit(2)
	}
}

func runStatus(args []string) {
	const usage = "conductor status [--format text|json|yaml]"
	format := report.FormatText
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--format":
			format = parseFormat(flagValue(args, &i, usage))
		default:
			fatalf("unknown flag: %s\nusage: %s", args[i], usage)
		}
	}

	ws := openWorkspace(os.Stderr)
	defer ws.close()
	s, err := watch.RemoteStats(context.Background(), filepath.Join(ws.base, uds.SocketName))
	if err != nil {
		ws.close()
		fatalf("status: %v", err)
	}
	if format != report.FormatText {
		if err := report.Encode(os.Stdout, s, format); err != nil {
			fatalf("render: %v", err)
		}
		return
	}
	fmt.Printf("watcher pid %d since %s\n", s.PID, s.StartedAt)
	fmt.Printf("inbox:       %s\n", s.Inbox)
	fmt.Printf("runs:        %d\n", s.Runs)
	fmt.Printf("failed:      %d\n", s.Failed)
	fmt.Printf("quarantined: %d\n", s.Quarantined)
	if s.LastRunID != "" {
		fmt.Printf("last run:    %s (%s)\n", s.LastRunID, s.LastStatus)
	}
}

func runServe(args []string) {
	const usage = "conductor serve [--allow-execute] [--metrics-addr <addr|off>]"
	allowExecute := false
	metricsAddr := "off"
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--allow-execute":
			allowExecute = true
		case "--metrics-addr":
			metricsAddr = flagValue(args, &i, usage)
		default:
			fatalf("unknown flag: %s\nusage: %s", args[i], usage)
		}
	}

	// stdout carries the MCP protocol; logs go to a file only
	ws := openWorkspace(io.Discard)
	defer ws.close()
	ws.relog(ws.logFile("serve"))

	ctx, cancel := signalContext()
	defer cancel()
	m := startMetrics(ctx, ws, metricsAddr)
	engine := ws.engine(engineOptions{store: true, metrics: m})

	s := mcpserver.New(engine, ws.source, mcpserver.Options{
		Version:      version,
		AllowExecute: allowExecute,
		Logger:       ws.logger,
	})
	if err := mcpserver.Serve(s); err != nil {
		ws.close()
		fatalf("serve: %v", err)
	}
}

func runHistory(args []string) {
	const usage = "conductor history [--run <id>] [--limit <n>] [--format text|json|yaml]"
	var runID string
	limit := 20
	format := report.FormatText
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--run":
			runID = flagValue(args, &i, usage)
		case "--limit":
			n, err := strconv.Atoi(flagValue(args, &i, usage))
			if err != nil || n <= 0 {
				fatalf("--limit must be a positive integer")
			}
			limit = n
		case "--format":
			format = parseFormat(flagValue(args, &i, usage))
		default:
			fatalf("unknown flag: %s\nusage: %s", args[i], usage)
		}
	}

	ws := openWorkspace(os.Stderr)
	defer ws.close()
	db := ws.openSQLite()
	if db == nil {
		fatalf("error: paths.database is not configured")
	}
	ctx := context.Background()

	if runID == "" {
		runs, err := db.RecentRuns(ctx, limit)
		if err != nil {
			fatalf("history: %v", err)
		}
		if err := report.WriteRuns(os.Stdout, runs, format); err != nil {
			fatalf("render: %v", err)
		}
		return
	}

	tr, err := db.Trace(ctx, runID)
	if errors.Is(err, store.ErrRunNotFound) {
		ws.close()
		fatalf("history: no run %s", runID)
	}
	if err != nil {
		fatalf("history: %v", err)
	}
	if err := report.WriteTrace(os.Stdout, tr, format); err != nil {
		fatalf("render: %v", err)
	}
	if format == report.FormatText {
		evs, err := db.Events(ctx, runID)
		if err != nil {
			fatalf("history: %v", err)
		}
		fmt.Println("\nEvents:")
		report.WriteEvents(os.Stdout, evs)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `conductor %s - route change intents through an ownership tree

Usage: conductor <command> [options]

Setup:
  init [dir] [--name <project>]     Create .conductor/ with sample config, tree and graph
  check                             Validate tree, graph and audit log

Inspect:
  route <intent...>                 Rank matching tree nodes
  plan <intent...>                  Preview tasks and approval levels
  blast <component...>              Blast radius of changing components
  order [component...] [--scope]    Tier-ordered build batches

Run:
  run <intent...> [--dry-run]       Run an intent through all phases
  run --file <request.yaml>         Run a request file
  watch                             Run every request dropped into the inbox
  submit <intent...>                Run through the watcher's control socket
  status                            Watcher counters
  serve [--allow-execute]           MCP server on stdio
  history [--run <id>]              Recorded runs (requires paths.database)

  version                           Print version

Output flags: --format text|json|yaml
`, version)
}
