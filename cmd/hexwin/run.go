package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	databrickssdk "github.com/databricks/databricks-sdk-go"

	"hexwin/internal/cursor"
	"hexwin/internal/databricks"
	"hexwin/internal/filecache"
	hexfuse "hexwin/internal/fuse"
	"hexwin/internal/handoff"
	"hexwin/internal/inspect"
	"hexwin/internal/logging"
	"hexwin/internal/pathutil"
	"hexwin/internal/render"
	"hexwin/internal/scan"
	"hexwin/internal/source"
	"hexwin/internal/status"
)

// Shutdown timeout for flushing modified sources
const shutdownTimeout = 30 * time.Second

// Largest window the --window flag accepts.
const maxWindowSize = 1 << 30

// Largest row count dump accepts.
const maxRows = 1 << 20

const usage = `Usage: hexwin [flags] COMMAND [command flags] TARGET

Commands:
  info   TARGET               size and values at --offset
  dump   TARGET               hex/text rows starting at --offset
  patch  TARGET               write --hex, --text or --number at --offset
  find   TARGET               search for --hex, --text or --regex
  mount  TARGET MOUNTPOINT    export TARGET as a single file

TARGET is a file, a raw device (/dev/sdX, \\.\PhysicalDrive0) or ws:/workspace/path.`

// cliConfig captures parsed command-line flags.
type cliConfig struct {
	showVersion bool
	debug       bool
	logLevel    string
	window      uint64
	device      bool
	cacheDir    string
	cacheSizeGB float64

	command    string
	target     string
	mountPoint string

	offset   uint64
	rows     uint
	hex      string
	text     string
	encoding string
	number   string
	numType  string
	regex    string
	from     uint64
	fromSet  bool
	write    bool

	allowOther bool
}

type cliError struct {
	exitCode int
	msg      string
	printed  bool
}

func (e *cliError) Error() string {
	return e.msg
}

type mountServer interface {
	Wait()
	Unmount() error
}

type runDeps struct {
	initWorkspace           func() (*databrickssdk.WorkspaceClient, error)
	newWorkspaceFilesClient func(*databrickssdk.WorkspaceClient) (databricks.WorkspaceFilesAPI, error)
	newDiskCache            func(string, int64) (*filecache.DiskCache, error)
	open                    func(string, bool, source.Options) (source.ByteSource, error)
	mount                   func(string, string, *source.Locked, hexfuse.Options) (mountServer, error)
	signalContext           func() (context.Context, context.CancelFunc)
	stdout                  io.Writer
	versionOut              func(string)
}

func defaultDeps() runDeps {
	return runDeps{
		initWorkspace: func() (*databrickssdk.WorkspaceClient, error) {
			return databrickssdk.NewWorkspaceClient()
		},
		newWorkspaceFilesClient: func(w *databrickssdk.WorkspaceClient) (databricks.WorkspaceFilesAPI, error) {
			return databricks.NewWorkspaceFilesClient(w)
		},
		newDiskCache: filecache.NewDiskCache,
		open:         source.Open,
		mount: func(mountPoint, name string, src *source.Locked, opts hexfuse.Options) (mountServer, error) {
			return hexfuse.Mount(mountPoint, name, src, opts)
		},
		signalContext: func() (context.Context, context.CancelFunc) {
			return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		},
		stdout: os.Stdout,
		versionOut: func(s string) {
			fmt.Print(s)
		},
	}
}

func usageError(format string, args ...any) error {
	return &cliError{exitCode: 1, msg: fmt.Sprintf(format, args...) + "\n\n" + usage}
}

func parseArgs(args []string) (cliConfig, error) {
	var cfg cliConfig
	if len(args) == 0 {
		return cfg, &cliError{exitCode: 1, msg: usage}
	}

	global := flag.NewFlagSet(args[0], flag.ContinueOnError)
	global.Usage = func() {
		fmt.Fprintln(global.Output(), usage)
		global.PrintDefaults()
	}

	showVersion := global.Bool("version", false, "print version and exit")
	debug := global.Bool("debug", false, "print debug data (equivalent to --log-level=debug)")
	logLevel := global.String("log-level", "info", "log level: debug, info, warn, error")
	window := global.Uint64("window", 0, "window size in bytes (0 = 512 KiB)")
	device := global.Bool("device", false, "treat TARGET as a raw device")
	cacheDir := global.String("cache-dir", filepath.Join(os.TempDir(), "hexwin-cache"), "snapshot cache directory for ws: targets")
	cacheSizeGB := global.Float64("cache-size", 2, "maximum snapshot cache size in GB")

	if err := global.Parse(args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return cfg, &cliError{exitCode: 0, printed: true}
		}
		return cfg, &cliError{exitCode: 2, msg: err.Error(), printed: true}
	}

	cfg = cliConfig{
		showVersion: *showVersion,
		debug:       *debug,
		logLevel:    *logLevel,
		window:      *window,
		device:      *device,
		cacheDir:    *cacheDir,
		cacheSizeGB: *cacheSizeGB,
	}
	if cfg.showVersion {
		return cfg, nil
	}

	rest := global.Args()
	if len(rest) == 0 {
		return cfg, usageError("Missing command")
	}
	cfg.command = rest[0]

	cmd := flag.NewFlagSet(args[0]+" "+cfg.command, flag.ContinueOnError)
	positional := 1
	switch cfg.command {
	case "info":
		cmd.Uint64Var(&cfg.offset, "offset", 0, "position whose values are shown")
	case "dump":
		cmd.Uint64Var(&cfg.offset, "offset", 0, "first position to show")
		cmd.UintVar(&cfg.rows, "rows", 16, "number of 16-byte rows")
	case "patch":
		cmd.Uint64Var(&cfg.offset, "offset", 0, "position to write at")
		cmd.StringVar(&cfg.hex, "hex", "", `hex bytes to write, e.g. "DE AD BE EF"`)
		cmd.StringVar(&cfg.text, "text", "", "text to write")
		cmd.StringVar(&cfg.encoding, "encoding", "utf-8", "encoding for --text: utf-8, cp1252, cp850, cp437, latin1")
		cmd.StringVar(&cfg.number, "number", "", "number to write, encoded as --type")
		cmd.StringVar(&cfg.numType, "type", "", "number type for --number, e.g. u16le, i32be, f64")
	case "find":
		cmd.StringVar(&cfg.hex, "hex", "", "hex bytes to search for")
		cmd.StringVar(&cfg.text, "text", "", "text to search for")
		cmd.StringVar(&cfg.encoding, "encoding", "utf-8", "encoding for --text")
		cmd.StringVar(&cfg.regex, "regex", "", "regular expression to search for")
		cmd.Uint64Var(&cfg.from, "from", 0, "position to start at")
	case "mount":
		cmd.BoolVar(&cfg.write, "write", false, "allow writes through the mount")
		cmd.BoolVar(&cfg.allowOther, "allow-other", false, "allow other users to access the mount")
		positional = 2
	default:
		return cfg, usageError("Unknown command %q", cfg.command)
	}

	if err := cmd.Parse(rest[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return cfg, &cliError{exitCode: 0, printed: true}
		}
		return cfg, &cliError{exitCode: 2, msg: err.Error(), printed: true}
	}
	cmd.Visit(func(f *flag.Flag) {
		if f.Name == "from" {
			cfg.fromSet = true
		}
	})

	if cmd.NArg() != positional {
		if positional == 2 {
			return cfg, usageError("Usage: %s mount TARGET MOUNTPOINT", args[0])
		}
		return cfg, usageError("Usage: %s %s TARGET", args[0], cfg.command)
	}
	cfg.target = cmd.Arg(0)
	if positional == 2 {
		cfg.mountPoint = cmd.Arg(1)
	}

	return cfg, nil
}

func countSet(values ...string) int {
	n := 0
	for _, v := range values {
		if v != "" {
			n++
		}
	}
	return n
}

func validateConfig(cfg cliConfig) error {
	if cfg.window > maxWindowSize {
		return &cliError{exitCode: 1, msg: fmt.Sprintf("Invalid window size: %d (maximum is %d)", cfg.window, maxWindowSize)}
	}
	if pathutil.ParseTarget(cfg.target).Kind == pathutil.KindWorkspace && cfg.cacheSizeGB <= 0 {
		return &cliError{exitCode: 1, msg: fmt.Sprintf("Invalid cache size: %.2f GB (must be positive)", cfg.cacheSizeGB)}
	}
	switch cfg.command {
	case "dump":
		if cfg.rows == 0 || cfg.rows > maxRows {
			return &cliError{exitCode: 1, msg: fmt.Sprintf("Invalid row count: %d (must be 1 to %d)", cfg.rows, maxRows)}
		}
	case "patch":
		if countSet(cfg.hex, cfg.text, cfg.number) != 1 {
			return &cliError{exitCode: 1, msg: "patch needs exactly one of --hex, --text or --number"}
		}
		if cfg.number != "" && cfg.numType == "" {
			return &cliError{exitCode: 1, msg: "--number needs --type"}
		}
	case "find":
		if countSet(cfg.hex, cfg.text, cfg.regex) != 1 {
			return &cliError{exitCode: 1, msg: "find needs exactly one of --hex, --text or --regex"}
		}
	}
	return nil
}

func versionString() string {
	return fmt.Sprintf("hexwin %s (commit: %s, built: %s)\n", version, commit, date)
}

func run(args []string, deps runDeps) error {
	cfg, err := parseArgs(args)
	if err != nil {
		return err
	}

	if cfg.showVersion {
		deps.versionOut(versionString())
		return nil
	}

	// --debug takes precedence over --log-level
	if cfg.debug {
		logging.SetLevel(logging.LevelDebug)
	} else {
		logging.SetLevel(logging.ParseLevel(cfg.logLevel))
	}

	if err := validateConfig(cfg); err != nil {
		return err
	}

	switch cfg.command {
	case "info":
		return runInfo(cfg, deps)
	case "dump":
		return runDump(cfg, deps)
	case "patch":
		return runPatch(cfg, deps)
	case "find":
		return runFind(cfg, deps)
	case "mount":
		return runMount(cfg, deps)
	}
	return usageError("Unknown command %q", cfg.command)
}

// sourceOptions builds the open options. Databricks clients are only
// created for ws: targets.
func sourceOptions(cfg cliConfig, deps runDeps) (source.Options, error) {
	opts := source.Options{WindowSize: cfg.window, Device: cfg.device}
	if pathutil.ParseTarget(cfg.target).Kind != pathutil.KindWorkspace {
		return opts, nil
	}

	w, err := deps.initWorkspace()
	if err != nil {
		return opts, fmt.Errorf("Failed to create Databricks client: %w", err)
	}
	api, err := deps.newWorkspaceFilesClient(w)
	if err != nil {
		return opts, fmt.Errorf("Failed to create Databricks Workspace Files Client: %w", err)
	}
	opts.Workspace = api

	cacheSizeBytes := int64(cfg.cacheSizeGB * 1024 * 1024 * 1024)
	cache, err := deps.newDiskCache(cfg.cacheDir, cacheSizeBytes)
	if err != nil {
		logging.Warnf("Snapshot cache unavailable, keeping snapshots in memory: %v", err)
		cache = filecache.NewDisabledCache()
	} else {
		logging.Debugf("Snapshot cache enabled: dir=%s, size=%.1fGB", cfg.cacheDir, cfg.cacheSizeGB)
	}
	opts.Cache = cache
	return opts, nil
}

func openTarget(cfg cliConfig, deps runDeps, wantWrite bool) (source.ByteSource, error) {
	opts, err := sourceOptions(cfg, deps)
	if err != nil {
		return nil, err
	}
	src, err := deps.open(cfg.target, wantWrite, opts)
	if err != nil {
		return nil, openError(cfg.target, err)
	}
	return src, nil
}

func openError(target string, err error) error {
	switch {
	case errors.Is(err, source.ErrDeviceAccessDenied):
		return &cliError{exitCode: 1, msg: fmt.Sprintf("Failed to open %s: %v\nRaw device access needs elevated privileges (run as root or as a member of the disk group).", target, err)}
	case errors.Is(err, source.ErrEmptySource):
		return &cliError{exitCode: 1, msg: fmt.Sprintf("Failed to open %s: nothing to show, the stream is empty", target)}
	}
	return fmt.Errorf("Failed to open %s: %w", target, err)
}

// closeSource closes a source that was only read.
func closeSource(src source.ByteSource, target string) {
	if err := src.Close(); err != nil {
		logging.Warnf("Failed to close %s: %v", target, err)
	}
}

func runInfo(cfg cliConfig, deps runDeps) error {
	src, err := openTarget(cfg, deps, false)
	if err != nil {
		return err
	}
	defer closeSource(src, cfg.target)

	out := deps.stdout
	kind := "file"
	if pathutil.ParseTarget(cfg.target).Kind == pathutil.KindWorkspace {
		kind = "workspace object"
	}
	dev, isDevice := src.(*source.RawDeviceSource)
	if isDevice {
		kind = "device"
	}
	fmt.Fprintf(out, "Target: %s\n", cfg.target)
	fmt.Fprintf(out, "Kind: %s\n", kind)
	if isDevice {
		fmt.Fprintf(out, "Sector size: %d\n", dev.SectorSize())
	}
	if src.ReadOnly() {
		fmt.Fprintln(out, "Access: readonly")
	}
	fmt.Fprintln(out, status.FileSize(src.Len()))
	if cfg.offset >= src.Len() {
		return fmt.Errorf("offset 0x%x: %w", cfg.offset, source.ErrOutOfRange)
	}

	fmt.Fprintf(out, "Values at 0x%x:\n", cfg.offset)
	for _, f := range inspect.Formats {
		v, err := inspect.At(src, cfg.offset, f)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "  %-6s %s\n", f, v)
	}
	return nil
}

func runDump(cfg cliConfig, deps runDeps) error {
	src, err := openTarget(cfg, deps, false)
	if err != nil {
		return err
	}
	defer closeSource(src, cfg.target)
	if cfg.offset >= src.Len() {
		return fmt.Errorf("offset 0x%x: %w", cfg.offset, source.ErrOutOfRange)
	}

	m := cursor.New(uint32(cfg.rows))
	if err := m.Bind(src); err != nil {
		return err
	}
	m.SetCursorPosition(cfg.offset)
	m.SetViewportLine(m.CursorPosition() / cursor.RowWidth)

	if err := render.Dump(deps.stdout, src, m.ViewportLine(), m.LinesPerScreen()); err != nil {
		return err
	}
	fmt.Fprintln(deps.stdout, status.Line(m))
	return nil
}

// patchBytes resolves what patch writes before anything is opened, so a
// bad argument never leaves a half-written target.
func patchBytes(cfg cliConfig) (digits string, b []byte, err error) {
	switch {
	case cfg.hex != "":
		digits = strings.Join(strings.Fields(cfg.hex), "")
		b, err = hex.DecodeString(digits)
		if err != nil {
			return "", nil, &cliError{exitCode: 1, msg: fmt.Sprintf("Invalid --hex value %q: %v", cfg.hex, err)}
		}
		return digits, b, nil
	case cfg.text != "":
		enc, err := cursor.EncoderByName(cfg.encoding)
		if err != nil {
			return "", nil, &cliError{exitCode: 1, msg: err.Error()}
		}
		b, err = enc.Encode(cfg.text)
		if err != nil {
			return "", nil, &cliError{exitCode: 1, msg: err.Error()}
		}
		return "", b, nil
	}
	f, err := inspect.ParseFormat(cfg.numType)
	if err != nil {
		return "", nil, &cliError{exitCode: 1, msg: err.Error()}
	}
	b, err = inspect.Encode(cfg.number, f)
	if err != nil {
		return "", nil, &cliError{exitCode: 1, msg: fmt.Sprintf("Invalid --number value %q for %s: %v", cfg.number, f, err)}
	}
	return "", b, nil
}

func runPatch(cfg cliConfig, deps runDeps) error {
	digits, b, err := patchBytes(cfg)
	if err != nil {
		return err
	}

	src, err := openTarget(cfg, deps, true)
	if err != nil {
		return err
	}
	if cfg.offset >= src.Len() {
		closeSource(src, cfg.target)
		return fmt.Errorf("offset 0x%x: %w", cfg.offset, source.ErrOutOfRange)
	}

	m := cursor.New(1)
	if err := m.Bind(src); err != nil {
		closeSource(src, cfg.target)
		return err
	}
	m.SetCursorPosition(cfg.offset)

	var written int
	if digits != "" {
		// Typed the way a user would in the hex view, one nibble at a time.
		avail := src.Len() - cfg.offset
		if uint64(len(digits)/2) > avail {
			digits = digits[:2*avail]
		}
		m.SwitchView()
		for _, r := range digits {
			if _, err := m.InputHexDigit(r); err != nil {
				closeSource(src, cfg.target)
				return err
			}
		}
		written = len(digits) / 2
	} else {
		written, err = m.WriteBytes(b)
		if err != nil {
			closeSource(src, cfg.target)
			return err
		}
	}
	logging.Debugf("Patch: %s", status.Line(m))

	if err := src.Close(); err != nil {
		return fmt.Errorf("Failed to write %s: %w", cfg.target, err)
	}
	fmt.Fprintf(deps.stdout, "Patched %d byte(s) at 0x%x\n", written, cfg.offset)
	if dropped := len(b) - written; dropped > 0 {
		fmt.Fprintf(deps.stdout, "Dropped %d byte(s) past the end\n", dropped)
	}
	return nil
}

func buildQuery(cfg cliConfig) (scan.Query, error) {
	var q scan.Query
	var err error
	switch {
	case cfg.hex != "":
		q, err = scan.Hex(cfg.hex)
	case cfg.text != "":
		var enc cursor.Encoder
		enc, err = cursor.EncoderByName(cfg.encoding)
		if err == nil {
			q, err = scan.Text(cfg.text, enc)
		}
	default:
		q, err = scan.Regex(cfg.regex)
	}
	if err != nil {
		return q, &cliError{exitCode: 1, msg: err.Error()}
	}
	return q, nil
}

// runFind searches on a worker goroutine and applies the result on this
// one through a handoff queue. The source is not touched here while the
// worker runs.
func runFind(cfg cliConfig, deps runDeps) error {
	q, err := buildQuery(cfg)
	if err != nil {
		return err
	}

	src, err := openTarget(cfg, deps, false)
	if err != nil {
		return err
	}
	defer closeSource(src, cfg.target)

	m := cursor.New(1)
	if err := m.Bind(src); err != nil {
		return err
	}
	if cfg.fromSet {
		m.SetCursorPosition(cfg.from)
	}
	if cfg.hex != "" {
		m.SwitchView()
	}

	ctx, stop := deps.signalContext()
	defer stop()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s := &scan.Scanner{
		Src:   src,
		Query: q,
		Progress: func(searched, total uint64) {
			logging.Debugf("Searched %d of %d bytes", searched, total)
		},
	}
	queue := handoff.New(handoff.DefaultSize)

	var result scan.Result
	var finished bool
	worker := scan.Start(runCtx, queue, s, scan.StartPosition(m), func(r scan.Result) {
		result = r
		finished = true
		scan.Apply(m, r)
		cancel()
	})
	_ = queue.Run(runCtx)
	<-worker

	if ctx.Err() != nil || !finished {
		return &cliError{exitCode: 130, msg: "Search cancelled"}
	}
	if result.Err != nil {
		return fmt.Errorf("Search failed: %w", result.Err)
	}
	if !result.Found {
		return &cliError{exitCode: 1, msg: fmt.Sprintf("Not found: %s", q)}
	}

	match, _, err := render.Copy(m)
	if err != nil {
		return err
	}
	fmt.Fprintf(deps.stdout, "Found at 0x%x (%d byte(s)): %s\n", result.Match.Start, result.Match.End-result.Match.Start, match)
	fmt.Fprintln(deps.stdout, status.Line(m))
	return nil
}

func runMount(cfg cliConfig, deps runDeps) error {
	src, err := openTarget(cfg, deps, cfg.write)
	if err != nil {
		return err
	}

	name := pathutil.DisplayName(pathutil.ParseTarget(cfg.target))
	locked := source.NewLocked(src)

	// Registry for flushing on shutdown
	registry := source.NewRegistry()
	registry.Register(name, locked)

	opts := hexfuse.Options{AllowOther: cfg.allowOther, Debug: cfg.debug}
	if cfg.allowOther {
		logging.Infof("allow-other enabled: all local users can access the mount")
	}
	server, err := deps.mount(cfg.mountPoint, name, locked, opts)
	if err != nil {
		registry.CloseAll()
		return fmt.Errorf("Mount fail: %w", err)
	}
	logging.Infof("Mounted %s as %s on %s", cfg.target, name, cfg.mountPoint)
	logging.Infof("Press Ctrl+C to unmount")

	// Signal handling for graceful shutdown
	ctx, stop := deps.signalContext()
	defer stop()

	var unmountOnce sync.Once
	unmount := func() {
		unmountOnce.Do(func() {
			if err := server.Unmount(); err != nil {
				logging.Warnf("Unmount error: %v", err)
			}
		})
	}

	waited := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-waited:
			return
		}
		logging.Infof("Shutdown signal received, flushing modified sources...")

		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		flushed, errs := registry.FlushAll(flushCtx)
		for _, err := range errs {
			logging.Errorf("Flush error: %v", err)
		}
		if flushed > 0 {
			logging.Infof("Flushed %d modified source(s)", flushed)
		}

		unmount()
	}()

	server.Wait()
	close(waited)

	if errs := registry.CloseAll(); len(errs) > 0 {
		for _, err := range errs {
			logging.Errorf("Close error: %v", err)
		}
		return errs[0]
	}
	return nil
}
