package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/codebuildervaibhav/vodchat/internal/app"
	"github.com/codebuildervaibhav/vodchat/internal/config"
	"github.com/codebuildervaibhav/vodchat/internal/filter"
	"github.com/codebuildervaibhav/vodchat/internal/pipeline"
	"github.com/codebuildervaibhav/vodchat/internal/storage"
)

// Exit codes
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

// errUsage marks errors caused by the command line rather than the run
var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// command is one subcommand
type command struct {
	usage string
	short string
	// minArgs is the number of positional arguments required
	minArgs int
	exec    func(ctx context.Context, e *env, args []string) error
	flags   func(fs *flag.FlagSet, o *options)
}

func (c *command) name() string {
	name, _, _ := strings.Cut(c.usage, " ")
	return name
}

var commands = []*command{
	{usage: "vod <id>", short: "Print the chat of one Twitch VOD", minArgs: 1, exec: execTarget("twitch", app.KindVOD)},
	{usage: "channel <login>", short: "Print the chat of every VOD of a Twitch channel", minArgs: 1, exec: execTarget("twitch", app.KindChannel)},
	{usage: "clips <login>", short: "List the clips of a Twitch channel whose title matches", minArgs: 1, exec: execClips},
	{usage: "afreeca-vod <link>", short: "Print the chat of one AfreecaTV VOD", minArgs: 1, exec: execTarget("afreecatv", app.KindVOD)},
	{usage: "afreeca-blog <user>", short: "Print the chat of every VOD of an AfreecaTV blog", minArgs: 1, exec: execTarget("afreecatv", app.KindChannel)},
	{usage: "youtube-comments <channel> <terms...>", short: "Search the comments of a YouTube channel", minArgs: 2, exec: execYouTube, flags: youtubeFlags},
	{usage: "runs", short: "List archived runs", exec: execRuns, flags: runsFlags},
	{usage: "serve", short: "Run the HTTP and WebSocket server", exec: execServe},
	{usage: "drive-auth", short: "Authorise Google Drive uploads and cache the token", exec: execDriveAuth},
}

// options holds the flags every subcommand accepts
type options struct {
	configPath    string
	filter        string
	noColor       bool
	abortOnError  bool
	timeout       int
	maxConcurrent int
	archive       string
	exportDir     string
	verbose       bool

	pages int
	limit int
}

func (o *options) register(fs *flag.FlagSet) {
	fs.StringVarP(&o.filter, "filter", "f", "", "case-insensitive regular expression matched against each message")
	fs.StringVar(&o.configPath, "config", config.DefaultPath, "configuration file")
	fs.BoolVar(&o.noColor, "no-color", false, "never colour author names")
	fs.BoolVar(&o.abortOnError, "abort-on-error", false, "stop the run after the first item that fails")
	fs.IntVar(&o.timeout, "timeout", 0, "per-item timeout in seconds (0 disables)")
	fs.IntVar(&o.maxConcurrent, "max-concurrent", 0, "cap on simultaneous item fetches (0 means no cap)")
	fs.StringVar(&o.archive, "archive", "", "sqlite archive to record displayed transcripts in")
	fs.StringVar(&o.exportDir, "export-dir", "", "directory to write transcript files to")
	fs.BoolVarP(&o.verbose, "verbose", "v", false, "debug logging")
}

func youtubeFlags(fs *flag.FlagSet, o *options) {
	fs.IntVar(&o.pages, "pages", 1, "result pages of 100 comment threads to read")
}

func runsFlags(fs *flag.FlagSet, o *options) {
	fs.IntVar(&o.limit, "limit", 20, "number of runs to list")
}

// run executes the command line and returns the process exit code
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer, appOpts ...app.Option) int {
	if len(args) == 0 {
		return interactive(ctx, stdin, stdout, stderr, appOpts...)
	}

	if args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		printUsage(stdout)
		return exitOK
	}

	var cmd *command
	for _, c := range commands {
		if c.name() == args[0] {
			cmd = c
			break
		}
	}
	if cmd == nil {
		fmt.Fprintf(stderr, "error: unknown command %q\n\n", args[0])
		printUsage(stderr)
		return exitUsage
	}

	var o options
	fs := flag.NewFlagSet(cmd.name(), flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	o.register(fs)
	if cmd.flags != nil {
		cmd.flags(fs, &o)
	}
	if err := fs.Parse(args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			printCommandHelp(stdout, cmd, fs)
			return exitOK
		}
		fmt.Fprintln(stderr, "error:", err)
		printCommandHelp(stderr, cmd, fs)
		return exitUsage
	}
	if fs.NArg() < cmd.minArgs {
		fmt.Fprintf(stderr, "error: %s needs %d argument(s)\n", cmd.name(), cmd.minArgs)
		printCommandHelp(stderr, cmd, fs)
		return exitUsage
	}

	// Step 1: patterns are checked before anything touches the network
	if _, err := filter.New(o.filter); err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return exitUsage
	}

	// Step 2: configuration, logging and exporters
	e, err := newEnv(ctx, &o, fs.Changed("config"), stdin, stdout, stderr, appOpts...)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return exitError
	}
	defer e.close()

	// Step 3: the command itself
	if err := cmd.exec(ctx, e, fs.Args()); err != nil {
		e.logger.Debug("command failed", slog.String("command", cmd.name()), slog.Any("error", err))
		fmt.Fprintln(stderr, "error:", err)
		if errors.Is(err, errUsage) {
			return exitUsage
		}
		return exitError
	}
	return exitOK
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: vodchat <command> [flags]")
	fmt.Fprintln(w, "       vodchat              (interactive)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-40s %s\n", c.usage, c.short)
	}
}

func printCommandHelp(w io.Writer, c *command, fs *flag.FlagSet) {
	fmt.Fprintln(w, "Usage: vodchat", c.usage, "[flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, c.short)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprint(w, fs.FlagUsages())
}

// env is everything a command needs once the flags are parsed
type env struct {
	cfg     *config.Config
	opts    *options
	logger  *slog.Logger
	app     *app.App
	archive *storage.ArchiveDB
	local   *storage.LocalStorage
	logs    *LogBuffer

	stdin          io.Reader
	stdout, stderr io.Writer
}

func newEnv(ctx context.Context, o *options, explicitConfig bool, stdin io.Reader, stdout, stderr io.Writer, appOpts ...app.Option) (*env, error) {
	cfg, err := config.Load(o.configPath, explicitConfig)
	if err != nil {
		return nil, err
	}
	applyFlags(cfg, o)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	if o.verbose {
		level = slog.LevelDebug
	}
	logs := NewLogBuffer(1000)
	logger := slog.New(slog.NewTextHandler(io.MultiWriter(stderr, logs), &slog.HandlerOptions{Level: level}))

	e := &env{cfg: cfg, opts: o, logger: logger, logs: logs, stdin: stdin, stdout: stdout, stderr: stderr}

	var exporters []pipeline.Exporter
	if cfg.Archive.Database != "" {
		if e.archive, err = storage.NewArchiveDB(cfg.Archive.Database); err != nil {
			return nil, err
		}
		exporters = append(exporters, e.archive)
	}
	if cfg.Archive.ExportDir != "" {
		e.local = storage.NewLocalStorage(cfg.Archive.ExportDir)
		exporters = append(exporters, e.local)
	}
	if dc := newDriveExporter(ctx, cfg, logger); dc != nil {
		exporters = append(exporters, dc)
	}

	opts := append([]app.Option{app.WithExporters(exporters...)}, appOpts...)
	e.app = app.New(cfg, logger, opts...)
	return e, nil
}

// applyFlags lets explicit flags win over the file
func applyFlags(cfg *config.Config, o *options) {
	if o.noColor {
		cfg.Output.Color = false
	}
	if o.abortOnError {
		cfg.Pipeline.AbortOnError = true
	}
	if o.timeout > 0 {
		cfg.Pipeline.ItemTimeoutSeconds = o.timeout
	}
	if o.maxConcurrent > 0 {
		cfg.Pipeline.MaxConcurrent = o.maxConcurrent
	}
	if o.archive != "" {
		cfg.Archive.Database = o.archive
	}
	if o.exportDir != "" {
		cfg.Archive.ExportDir = o.exportDir
	}
}

// newDriveExporter enables Drive uploads when credentials and a cached token exist
func newDriveExporter(ctx context.Context, cfg *config.Config, logger *slog.Logger) pipeline.Exporter {
	if _, err := os.Stat(cfg.GoogleDrive.CredentialsFile); err != nil {
		logger.Debug("google drive credentials not found, exporting locally only")
		return nil
	}
	dc, err := storage.NewDriveClient(ctx,
		cfg.GoogleDrive.CredentialsFile,
		cfg.GoogleDrive.TokenFile,
		cfg.GoogleDrive.FolderName,
		nil,
	)
	if err != nil {
		logger.Warn("google drive not available", slog.Any("error", err))
		return nil
	}
	logger.Info("google drive export enabled", slog.String("folder", cfg.GoogleDrive.FolderName))
	return storage.WithRetry(dc, 3)
}

func (e *env) close() {
	if e.archive != nil {
		if err := e.archive.Close(); err != nil {
			e.logger.Warn("failed to close archive", slog.Any("error", err))
		}
	}
}
