package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"slices"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/mattjoyce/barline/internal/api"
	"github.com/mattjoyce/barline/internal/block"
	"github.com/mattjoyce/barline/internal/blocks"
	"github.com/mattjoyce/barline/internal/config"
	"github.com/mattjoyce/barline/internal/dispatch"
	"github.com/mattjoyce/barline/internal/doctor"
	"github.com/mattjoyce/barline/internal/events"
	"github.com/mattjoyce/barline/internal/lock"
	"github.com/mattjoyce/barline/internal/log"
	"github.com/mattjoyce/barline/internal/protocol"
	"github.com/mattjoyce/barline/internal/restart"
	"github.com/mattjoyce/barline/internal/signals"
	"github.com/mattjoyce/barline/internal/state"
	"github.com/mattjoyce/barline/internal/tui"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// eventHistory is the replay buffer behind /events.
const eventHistory = 256

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) == 0 || strings.HasPrefix(cliArgs[0], "-") {
		if slices.Contains(cliArgs, "--version") {
			return runVersion(nil)
		}
		if hasHelpFlag(cliArgs) {
			printUsage(os.Stdout)
			return 0
		}
		return runRun(cliArgs)
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	case "run":
		return runRun(args)
	case "check", "doctor":
		return runCheck(args)
	case "preview":
		return runPreview(args)
	case "signal":
		return runSignal(args)
	case "status":
		return runStatus(args)
	case "blocks":
		return runBlocks(args)
	case "version":
		return runVersion(args)
	case "help":
		printUsage(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage(os.Stderr)
		return 1
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `Usage: barline [command] [flags]

Commands:
  run        Write the status line to stdout (default)
  check      Validate the configuration and print its fingerprint
  preview    Show the bar in the terminal
  signal     Send refresh, reload or a numbered signal to a running bar
  status     Report whether a bar is running
  blocks     List the available block types
  version    Show version information

Run 'barline <command> --help' for command flags.
`)
}

func hasHelpFlag(args []string) bool {
	for _, a := range args {
		if a == "-h" || a == "--help" || a == "help" {
			return true
		}
	}
	return false
}

// loadConfig resolves the config path and loads it. The resolved path is
// returned even when loading fails so callers can report it.
func loadConfig(explicit string) (*config.Config, string, error) {
	path, err := config.Discover(explicit)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(path)
	return cfg, path, err
}

func openStateStore(ctx context.Context, cfg *config.Config) (block.StateStore, error) {
	if cfg.State.Path == "" {
		return nil, nil
	}
	st, err := state.Open(ctx, cfg.State.Path)
	if err != nil {
		return nil, err
	}
	return st, nil
}

func runRun(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	noInit := fs.Bool("no-init", false, "Skip the protocol header (set on reload)")
	neverPause := fs.Bool("never-pause", false, "Ask the bar to send SIGCONT instead of SIGSTOP when hidden")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, path, err := loadConfig(*configPath)
	if err != nil {
		log.Setup("info", "json")
		return waitOnStartupError(err, path, !*noInit)
	}

	log.Setup(cfg.LogLevel, cfg.LogFormat)
	logger := log.WithComponent("main")

	runID := uuid.NewString()
	hash, err := config.Hash(cfg.Path)
	if err != nil {
		logger.Warn("failed to fingerprint config", "error", err)
	}
	logger.Info("barline starting",
		"version", version,
		"run_id", runID,
		"config", cfg.Path,
		"config_hash", config.ShortHash(hash),
		"blocks", len(cfg.Blocks))

	if cfg.PIDFile != "" {
		pidLock, err := lock.AcquirePIDLock(cfg.PIDFile)
		if err != nil {
			logger.Error("failed to acquire PID lock (another instance may be running)", "path", cfg.PIDFile, "error", err)
			return 1
		}
		defer pidLock.Release()
		logger.Info("acquired PID lock", "path", pidLock.Path())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStateStore(ctx, cfg)
	if err != nil {
		stop()
		return waitOnStartupError(fmt.Errorf("state store: %w", err), cfg.State.Path, !*noInit)
	}
	shared := block.NewShared(log.WithComponent("blocks"), store, cfg.Theme)
	defer func() {
		if err := shared.Close(); err != nil {
			logger.Warn("failed to close shared resources", "error", err)
		}
	}()

	var writerOpts []protocol.WriterOption
	if cfg.NeverPause || *neverPause {
		writerOpts = append(writerOpts, protocol.WithStopSignal(int(unix.SIGCONT)))
	}
	writer := protocol.NewWriter(os.Stdout, cfg.Theme, !*noInit, writerOpts...)

	hub := events.NewHub(eventHistory)
	disp := dispatch.New(cfg.Blocks, dispatch.Options{
		Emitter:     writer,
		Constructor: blocks.NewRegistry(),
		Shared:      shared,
		Restart:     func() error { return restart.Exec(os.Args) },
		Spawn:       dispatch.SpawnDetached,
		Hub:         hub,
		Logger:      log.WithComponent("dispatch"),
	})

	g, gctx := errgroup.WithContext(ctx)

	sources := []<-chan signals.Signal{signals.Notify(gctx)}

	if cfg.WatchConfig {
		changes, err := config.Watch(gctx, cfg.Path)
		if err != nil {
			logger.Warn("config watch disabled", "error", err)
		} else {
			sources = append(sources, signals.FromTrigger(gctx, changes, signals.Signal{Kind: signals.Reload}))
			logger.Info("watching config for changes", "path", cfg.Path)
		}
	}

	if cfg.API.Enabled {
		srv := api.New(cfg.API, disp.Board(), disp.Requester(), hub, api.Info{
			RunID:      runID,
			ConfigHash: hash,
			Version:    version,
		}, log.WithComponent("api"))
		sources = append(sources, srv.Signals())
		g.Go(optional("api", logger, func() error { return srv.Start(gctx) }))
		logger.Info("API server enabled", "listen", cfg.API.Listen)
	}

	clicks := protocol.ReadClicks(gctx, os.Stdin, cfg.InvertScroll())

	g.Go(func() error {
		if err := disp.Run(gctx, dispatch.Sources{
			Clicks:  clicks,
			Signals: signals.Merge(gctx, sources...),
		}); err != nil {
			return fmt.Errorf("dispatcher: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("barline stopped with error", "error", err)
		return 1
	}
	logger.Info("barline stopped")
	return 0
}

// optional wraps a service the bar can run without. Its failure is logged
// and never cancels the group.
func optional(name string, logger *slog.Logger, run func() error) func() error {
	return func() error {
		if err := run(); err != nil {
			logger.Error("optional service stopped", "service", name, "error", err)
		}
		return nil
	}
}

// waitOnStartupError shows a startup failure in the bar and waits for a
// reload signal so the user can fix the cause without restarting the bar.
func waitOnStartupError(startErr error, path string, init bool) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return awaitReload(os.Stdout, startErr, path, init, signals.Notify(ctx), func() error {
		return restart.Exec(os.Args)
	})
}

func awaitReload(w io.Writer, startErr error, path string, init bool, sigs <-chan signals.Signal, reexec func() error) int {
	logger := log.WithComponent("main")
	logger.Error("startup failed", "path", path, "error", startErr)

	writer := protocol.NewWriter(w, config.Defaults().Theme, init)
	if err := writer.Emit([][]block.Widget{{block.ErrorWidget(startErr)}}); err != nil {
		logger.Error("failed to write error status", "error", err)
		return 1
	}

	for sig := range sigs {
		if sig.Kind != signals.Reload {
			continue
		}
		logger.Info("reloading after startup error")
		if err := reexec(); err != nil {
			logger.Error("reload failed", "error", err)
			return 1
		}
	}
	return 0
}

func runCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	jsonOut := fs.Bool("json", false, "Output the result as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, path, err := loadConfig(*configPath)
	if err != nil {
		if *jsonOut {
			data, _ := json.MarshalIndent(map[string]any{
				"valid":  false,
				"config": path,
				"errors": []string{err.Error()},
			}, "", "  ")
			fmt.Println(string(data))
		} else {
			fmt.Fprintf(os.Stderr, "Configuration invalid: %v\n", err)
		}
		return 1
	}

	result := doctor.New(cfg, blocks.NewRegistry()).Validate()

	if *jsonOut {
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render result: %v\n", err)
			return 1
		}
		fmt.Println(out)
	} else {
		fmt.Print(doctor.FormatHuman(result))
	}

	if !result.Valid {
		return 1
	}
	return 0
}

func runPreview(args []string) int {
	fs := flag.NewFlagSet("preview", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	logFile := fs.String("log-file", "", "Write logs to this file (discarded by default)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	var logOut io.Writer = io.Discard
	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
			return 1
		}
		defer f.Close()
		logOut = f
	}
	log.SetupTo(logOut, cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openStateStore(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open state store: %v\n", err)
		return 1
	}
	shared := block.NewShared(log.WithComponent("blocks"), store, cfg.Theme)
	defer shared.Close()

	names := make([]string, len(cfg.Blocks))
	for i, bc := range cfg.Blocks {
		names[i] = bc.Type
	}

	clicks := make(chan block.Click, 8)
	sigs := make(chan signals.Signal, 8)

	bridge := tui.NewBridge()
	model := tui.NewModel(tui.NewTheme(cfg.Theme), names, clicks, sigs)
	program := tea.NewProgram(model, tea.WithAltScreen())
	bridge.Attach(program)

	disp := dispatch.New(cfg.Blocks, dispatch.Options{
		Emitter:     bridge,
		Constructor: blocks.NewRegistry(),
		Shared:      shared,
		Spawn:       dispatch.SpawnDetached,
		Logger:      log.WithComponent("dispatch"),
	})

	var g errgroup.Group
	g.Go(func() error {
		return disp.Run(ctx, dispatch.Sources{
			Clicks:  clicks,
			Signals: signals.Merge(ctx, sigs, signals.Notify(ctx)),
		})
	})

	_, runErr := program.Run()
	bridge.Close()
	cancel()
	dispErr := g.Wait()

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Preview failed: %v\n", runErr)
		return 1
	}
	if dispErr != nil {
		fmt.Fprintf(os.Stderr, "Dispatcher failed: %v\n", dispErr)
		return 1
	}
	return 0
}

// splitPositional pulls the first non-flag argument out so it may appear
// before or after the flags.
func splitPositional(args []string) (string, []string) {
	for i, a := range args {
		if !strings.HasPrefix(a, "-") {
			if i > 0 && !strings.Contains(args[i-1], "=") && strings.HasPrefix(args[i-1], "-") {
				continue
			}
			rest := append(append([]string{}, args[:i]...), args[i+1:]...)
			return a, rest
		}
	}
	return "", args
}

// resolvePIDFile prefers the explicit flag and falls back to the config.
func resolvePIDFile(pidFile, configPath string) (string, error) {
	if pidFile != "" {
		return pidFile, nil
	}
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return "", fmt.Errorf("no --pid-file given and config unavailable: %w", err)
	}
	if cfg.PIDFile == "" {
		return "", errors.New("no --pid-file given and pid_file is not set in the config")
	}
	return cfg.PIDFile, nil
}

func runSignal(args []string) int {
	kind, rest := splitPositional(args)

	fs := flag.NewFlagSet("signal", flag.ContinueOnError)
	pidFile := fs.String("pid-file", "", "PID file of the running bar")
	configPath := fs.String("config", "", "Config to read pid_file from")
	if err := fs.Parse(rest); err != nil {
		return 2
	}
	if kind == "" {
		fmt.Fprintln(os.Stderr, "Usage: barline signal <refresh|reload|N> [--pid-file PATH]")
		return 1
	}

	sig, err := signals.Parse(kind)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid signal: %v\n", err)
		return 1
	}
	osSig, err := signals.ToOS(sig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid signal: %v\n", err)
		return 1
	}

	path, err := resolvePIDFile(*pidFile, *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	held, err := lock.Held(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to check %s: %v\n", path, err)
		return 1
	}
	if !held {
		fmt.Fprintf(os.Stderr, "No running barline holds %s\n", path)
		return 1
	}

	pid, err := lock.ReadPID(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read PID: %v\n", err)
		return 1
	}
	if err := unix.Kill(pid, osSig); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to signal %d: %v\n", pid, err)
		return 1
	}
	fmt.Printf("sent %s to %d\n", sig, pid)
	return 0
}

type statusReport struct {
	Running bool                 `json:"running"`
	PID     int                  `json:"pid,omitempty"`
	PIDFile string               `json:"pid_file,omitempty"`
	API     *api.HealthzResponse `json:"api,omitempty"`
	APIErr  string               `json:"api_error,omitempty"`
}

func runStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	jsonOut := fs.Bool("json", false, "Output status as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	var report statusReport
	if cfg.PIDFile != "" {
		report.PIDFile = cfg.PIDFile
		held, err := lock.Held(cfg.PIDFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to check %s: %v\n", cfg.PIDFile, err)
			return 1
		}
		report.Running = held
		if held {
			report.PID, _ = lock.ReadPID(cfg.PIDFile)
		}
	}

	if cfg.API.Enabled {
		health, err := fetchHealthz(cfg.API.Listen)
		if err != nil {
			report.APIErr = err.Error()
		} else {
			report.API = health
			report.Running = true
		}
	}

	if *jsonOut {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render status: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
	} else {
		printStatus(os.Stdout, report)
	}

	if !report.Running {
		return 1
	}
	return 0
}

func printStatus(w io.Writer, r statusReport) {
	if r.Running {
		fmt.Fprintln(w, "barline: running")
	} else {
		fmt.Fprintln(w, "barline: not running")
	}
	if r.PID != 0 {
		fmt.Fprintf(w, "pid: %d (%s)\n", r.PID, r.PIDFile)
	}
	if r.API != nil {
		fmt.Fprintf(w, "run: %s\n", r.API.RunID)
		fmt.Fprintf(w, "uptime: %s\n", (time.Duration(r.API.UptimeSeconds) * time.Second).String())
		fmt.Fprintf(w, "blocks: %d\n", r.API.Blocks)
		fmt.Fprintf(w, "config: %s\n", config.ShortHash(r.API.ConfigHash))
	}
	if r.APIErr != "" {
		fmt.Fprintf(w, "api: %s\n", r.APIErr)
	}
}

func fetchHealthz(listen string) (*api.HealthzResponse, error) {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get("http://" + listen + "/healthz")
	if err != nil {
		return nil, fmt.Errorf("api unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("api returned %s", resp.Status)
	}
	var out api.HealthzResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode healthz: %w", err)
	}
	return &out, nil
}

func runBlocks(args []string) int {
	fs := flag.NewFlagSet("blocks", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	descriptions := blocks.Describe()
	for _, tag := range blocks.NewRegistry().Types() {
		fmt.Printf("%-12s %s\n", tag, descriptions[tag])
	}
	return 0
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	info := currentVersionInfo()

	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("barline %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}
	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	commit := strings.TrimSpace(gitCommit)
	if commit == "" || commit == "unknown" {
		commit = readBuildSetting("vcs.revision")
	}
	if commit != "" {
		info.Commit = shortenCommit(commit)
	}

	built := strings.TrimSpace(buildDate)
	if built == "" || built == "unknown" {
		built = readBuildSetting("vcs.time")
	}
	if t, err := time.Parse(time.RFC3339Nano, built); err == nil {
		info.BuildTime = t.UTC().Format(time.RFC3339)
	}
	return info
}

func shortenCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return strings.TrimSpace(setting.Value)
		}
	}
	return ""
}
