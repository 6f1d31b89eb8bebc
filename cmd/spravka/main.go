// Package main is the Spravka CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hyperjump/spravka/internal/cli"
	"github.com/hyperjump/spravka/internal/config"
	"github.com/hyperjump/spravka/internal/indexer"
	"github.com/hyperjump/spravka/internal/models"
	"github.com/hyperjump/spravka/internal/server"
	"github.com/hyperjump/spravka/internal/telegram"
	"github.com/hyperjump/spravka/internal/watcher"
	"github.com/hyperjump/spravka/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/spravka/config.yaml"
	defaultServerURL  = "http://localhost:8080"
	clientTimeout     = 3 * time.Minute
)

// loadConfig loads .env, then the config at path, then SPRAVKA_* overrides. When path is
// the default and ./config.yaml exists, that file is used instead so "spravka server" from
// the project dir picks up the project's config. Returns the path actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	_ = godotenv.Load()
	if path == defaultConfigPath {
		if cwd, err := os.Getwd(); err == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, err := os.Stat(fallback); err == nil {
				path = fallback
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	if err := config.ApplyEnv(cfg); err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	args := os.Args[2:]
	switch command {
	case "server":
		runServer(args)
	case "ask":
		runAsk(args)
	case "search":
		runSearch(args)
	case "ingest":
		runIngest(args)
	case "delete":
		runDelete(args)
	case "activate":
		runSetActive("activate", args, true)
	case "deactivate":
		runSetActive("deactivate", args, false)
	case "instructions":
		runInstructions(args)
	case "tags":
		runTags(args)
	case "status":
		runStatus(args)
	case "watch":
		runWatch(args)
	case "reset":
		runReset(args)
	case "import-telegram":
		runImportTelegram(args)
	case "version", "--version", "-v":
		fmt.Printf("spravka version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func runServer(args []string) {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	noWatch := fs.Bool("no-watch", false, "do not watch directories for changes")
	_ = fs.Parse(args)

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()
	logger.Info("config loaded", zap.String("config_path", resolvedConfigPath), zap.Bool("debug", debugMode))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	if err := components.LLM.Ping(pingCtx); err != nil {
		logger.Warn("generation model not reachable; answers will carry an error until it is", zap.Error(err))
	}
	pingCancel()

	srvOpts := []server.Option{
		server.WithLogger(logger),
		server.WithMetrics(components.Metrics),
		server.WithTitleIndex(components.Titles),
	}
	if !*noWatch {
		handler := watcher.NewIngestHandler(components.Ingestor, indexer.IngestOptions{
			Author: cfg.Watch.Author,
			Active: true,
		}, logger)
		watchSvc := watcher.New(cfg.Watch.Directories, cfg.Watch.Extensions, cfg.Watch.RecursiveOrDefault(),
			handler, watcher.WithLogger(logger))
		if err := watchSvc.Start(ctx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer watchSvc.Stop()
		go watchSvc.SyncExisting(ctx)
		srvOpts = append(srvOpts, server.WithWatch(watchSvc, resolvedConfigPath))
	}

	srv := server.NewServer(components.Pipeline, components.Ingestor, components.Catalog, cfg, srvOpts...)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
}

// commandFlags are shared by the one-shot commands.
type commandFlags struct {
	configPath *string
	serverURL  *string
	output     *string
	debug      *bool
}

func addCommandFlags(fs *flag.FlagSet) commandFlags {
	return commandFlags{
		configPath: fs.String("config", defaultConfigPath, "config file path (local mode)"),
		serverURL:  fs.String("server", defaultServerURL, `server URL (empty = open local storage; stop the server first)`),
		output:     fs.String("output", "text", "output format: text or json"),
		debug:      fs.Bool("debug", false, "enable debug logging (local mode)"),
	}
}

// open returns the backend selected by --server and a cleanup func.
func (f commandFlags) open(ctx context.Context) (backend, func()) {
	if *f.serverURL != "" {
		return cli.NewClient(strings.TrimRight(*f.serverURL, "/"), clientTimeout), func() {}
	}
	cfg, _, err := loadConfig(*f.configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	logger, err := utils.NewCLILogger(cfg.Debug || *f.debug)
	if err != nil {
		fatalf("Failed to create logger: %v", err)
	}
	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		fatalf("Failed to initialize: %v", err)
	}
	return &localBackend{c: components}, func() {
		components.Close()
		_ = logger.Sync()
	}
}

func (f commandFlags) format() cli.OutputFormat {
	format, err := cli.ParseFormat(*f.output)
	if err != nil {
		fatalf("%v", err)
	}
	return format
}

// argsReorder moves flags that appear after positional arguments to the front, since the
// flag package stops at the first non-flag argument.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// buildQuery joins positional args so multi-word questions work with or without quotes.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func queryFlags(name string, args []string) (commandFlags, *models.QueryRequest) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	cf := addCommandFlags(fs)
	topK := fs.Int("top-k", 0, "chunks to assemble into the context (default from config)")
	mode := fs.String("mode", "", "retrieval mode: hybrid or semantic (default from config)")
	tag := fs.String("tag", "", "only use instructions with this tag")
	inactive := fs.Bool("include-inactive", false, "also use deactivated instructions")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: spravka %s [flags] <question>\n\n", name)
		fs.PrintDefaults()
	}
	_ = fs.Parse(argsReorder(args))

	q := buildQuery(fs.Args())
	if q == "" {
		fs.Usage()
		os.Exit(1)
	}
	return cf, &models.QueryRequest{
		Query:           q,
		TopK:            *topK,
		Mode:            models.SearchMode(*mode),
		IncludeInactive: *inactive,
		Tag:             *tag,
	}
}

func runAsk(args []string) {
	cf, req := queryFlags("ask", args)
	format := cf.format()
	ctx := context.Background()
	b, done := cf.open(ctx)
	defer done()

	answer, err := b.Query(ctx, req)
	if err != nil {
		fatalf("Ask failed: %v", err)
	}
	if err := cli.WriteAnswer(os.Stdout, answer, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runSearch(args []string) {
	cf, req := queryFlags("search", args)
	format := cf.format()
	ctx := context.Background()
	b, done := cf.open(ctx)
	defer done()

	result, err := b.Search(ctx, req)
	if err != nil {
		fatalf("Search failed: %v", err)
	}
	if err := cli.WriteRetrieval(os.Stdout, result, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

// splitTags parses a comma-separated tag list, dropping blanks.
func splitTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func runIngest(args []string) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	cf := addCommandFlags(fs)
	author := fs.String("author", "", "author recorded in the catalog")
	tags := fs.String("tags", "", "comma-separated tags")
	inactive := fs.Bool("inactive", false, "ingest as deactivated")
	_ = fs.Parse(argsReorder(args))
	if fs.NArg() < 1 {
		fatalf("Usage: spravka ingest [flags] <file-or-directory>")
	}
	format := cf.format()
	path, err := filepath.Abs(fs.Arg(0))
	if err != nil {
		fatalf("Invalid path: %v", err)
	}
	active := !*inactive

	ctx := context.Background()
	b, done := cf.open(ctx)
	defer done()
	resp, err := b.Ingest(ctx, &server.IngestRequest{Path: path, Author: *author, Tags: splitTags(*tags), Active: &active})
	if err != nil {
		fatalf("Ingest failed: %v", err)
	}
	if err := cli.WriteIngest(os.Stdout, resp, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runDelete(args []string) {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	cf := addCommandFlags(fs)
	_ = fs.Parse(argsReorder(args))
	if fs.NArg() < 1 {
		fatalf("Usage: spravka delete [flags] <instruction-id>")
	}
	id := fs.Arg(0)
	ctx := context.Background()
	b, done := cf.open(ctx)
	defer done()
	if err := b.Delete(ctx, id); err != nil {
		fatalf("Deletion failed: %v", err)
	}
	fmt.Printf("Instruction deleted: %s\n", id)
}

func runSetActive(name string, args []string, active bool) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	cf := addCommandFlags(fs)
	_ = fs.Parse(argsReorder(args))
	if fs.NArg() < 1 {
		fatalf("Usage: spravka %s [flags] <instruction-id>", name)
	}
	id := fs.Arg(0)
	ctx := context.Background()
	b, done := cf.open(ctx)
	defer done()
	if err := b.SetActive(ctx, id, active); err != nil {
		fatalf("%s failed: %v", name, err)
	}
	fmt.Printf("Instruction %sd: %s\n", name, id)
}

func runInstructions(args []string) {
	fs := flag.NewFlagSet("instructions", flag.ExitOnError)
	cf := addCommandFlags(fs)
	activeOnly := fs.Bool("active-only", false, "list only active instructions")
	tag := fs.String("tag", "", "list instructions with this tag")
	title := fs.String("q", "", "search instruction titles")
	_ = fs.Parse(argsReorder(args))
	format := cf.format()

	ctx := context.Background()
	b, done := cf.open(ctx)
	defer done()
	list, err := b.Instructions(ctx, *activeOnly, *tag, *title)
	if err != nil {
		fatalf("Listing failed: %v", err)
	}
	if err := cli.WriteInstructions(os.Stdout, list, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runTags(args []string) {
	fs := flag.NewFlagSet("tags", flag.ExitOnError)
	cf := addCommandFlags(fs)
	_ = fs.Parse(args)
	format := cf.format()

	ctx := context.Background()
	b, done := cf.open(ctx)
	defer done()
	tags, err := b.Tags(ctx)
	if err != nil {
		fatalf("Listing failed: %v", err)
	}
	if err := cli.WriteTags(os.Stdout, tags, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	cf := addCommandFlags(fs)
	_ = fs.Parse(args)
	format := cf.format()

	ctx := context.Background()
	b, done := cf.open(ctx)
	defer done()
	status, err := b.Status(ctx)
	if err != nil {
		fatalf("Status failed: %v", err)
	}
	if err := cli.WriteStatus(os.Stdout, status, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runWatch(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: spravka watch <add|remove|list> [path]")
		os.Exit(1)
	}
	sub := args[0]
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	_ = fs.Parse(argsReorder(args[1:]))
	c := cli.NewClient(strings.TrimRight(*serverURL, "/"), clientTimeout)
	ctx := context.Background()

	switch sub {
	case "add", "remove":
		if fs.NArg() < 1 {
			fatalf("Usage: spravka watch %s <path>", sub)
		}
		path, _ := filepath.Abs(fs.Arg(0))
		var err error
		if sub == "add" {
			err = c.AddWatchDirectory(ctx, path)
		} else {
			err = c.RemoveWatchDirectory(ctx, path)
		}
		if err != nil {
			fatalf("Watch %s failed: %v", sub, err)
		}
		fmt.Printf("%s: %s\n", map[string]string{"add": "Added", "remove": "Removed"}[sub], path)
	case "list":
		dirs, err := c.WatchDirectories(ctx)
		if err != nil {
			fatalf("List failed: %v", err)
		}
		for _, d := range dirs {
			fmt.Println(d)
		}
	default:
		fatalf("Unknown watch subcommand: %s", sub)
	}
}

func runImportTelegram(args []string) {
	fs := flag.NewFlagSet("import-telegram", flag.ExitOnError)
	cf := addCommandFlags(fs)
	out := fs.String("out", "telegram_chat.md", "markdown file to write")
	photos := fs.String("photos", "", `directory with exported photos (default "photos" next to the export)`)
	window := fs.Duration("window", telegram.DefaultWindow, "largest gap between messages of one dialogue")
	author := fs.String("author", "telegram", "author recorded in the catalog")
	tags := fs.String("tags", "", "comma-separated tags")
	noIngest := fs.Bool("no-ingest", false, "only write the markdown file")
	_ = fs.Parse(argsReorder(args))
	if fs.NArg() < 1 {
		fatalf("Usage: spravka import-telegram [flags] <result.json>")
	}
	format := cf.format()

	outPath, err := filepath.Abs(*out)
	if err != nil {
		fatalf("Invalid path: %v", err)
	}
	logger, err := utils.NewCLILogger(*cf.debug)
	if err != nil {
		fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	res, err := telegram.Convert(fs.Arg(0), telegram.Options{
		PhotosDir: *photos,
		ImagesDir: filepath.Join(filepath.Dir(outPath), "images"),
		Window:    *window,
		Logger:    logger,
	})
	if err != nil {
		fatalf("Conversion failed: %v", err)
	}
	if res.Dialogues == 0 {
		fatalf("No technical dialogues found in %s", fs.Arg(0))
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		fatalf("Failed to create output directory: %v", err)
	}
	if err := os.WriteFile(outPath, []byte(res.Markdown), 0644); err != nil {
		fatalf("Failed to write %s: %v", outPath, err)
	}
	fmt.Printf("Wrote %d dialogues (%d of %d messages, %d images) to %s\n",
		res.Dialogues, res.Kept, res.Total, res.Images, outPath)
	if *noIngest {
		return
	}

	ctx := context.Background()
	b, done := cf.open(ctx)
	defer done()
	active := true
	resp, err := b.Ingest(ctx, &server.IngestRequest{Path: outPath, Author: *author, Tags: splitTags(*tags), Active: &active})
	if err != nil {
		fatalf("Ingest failed: %v", err)
	}
	if err := cli.WriteIngest(os.Stdout, resp, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runReset(args []string) {
	fs := flag.NewFlagSet("reset", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	yes := fs.Bool("yes", false, "confirm deleting every instruction")
	keepTags := fs.Bool("keep-tags", false, "keep tags that no instruction uses")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(args)
	if !*yes {
		fatalf("Refusing to reset without --yes; stop the server first")
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	logger, err := utils.NewCLILogger(cfg.Debug || *debug)
	if err != nil {
		fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()
	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		fatalf("Failed to initialize: %v", err)
	}
	defer components.Close()
	report, err := components.Ingestor.Reset(ctx, !*keepTags)
	if err != nil {
		fatalf("Reset failed: %v", err)
	}
	fmt.Printf("Removed %d instructions, %d chunks, %d unused tags\n", report.Instructions, report.Chunks, report.Tags)
}

func printUsage() {
	fmt.Println(`spravka - answers from the instruction knowledge base

Usage:
  spravka server [flags]                 Start the HTTP server and directory watcher
  spravka ask [flags] <question>         Answer a question from the instructions
  spravka search [flags] <question>      Show retrieved chunks without generating
  spravka ingest [flags] <file|dir>      Ingest instructions from a file or directory
  spravka delete [flags] <id>            Delete an instruction
  spravka deactivate [flags] <id>        Hide an instruction from answers
  spravka activate [flags] <id>          Make an instruction answerable again
  spravka instructions [flags]           List instructions
  spravka tags [flags]                   List tags
  spravka status [flags]                 Show knowledge base status
  spravka watch <add|remove|list>        Manage watched directories
  spravka import-telegram [flags] <json> Turn a Telegram chat export into instructions
  spravka reset --yes [--keep-tags]      Delete every instruction (local storage)
  spravka version                        Show version
  spravka help                           Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/spravka/config.yaml)
  --debug            Enable debug logging
  --no-watch         Do not watch directories

Common Flags:
  --server string    Server URL (default: http://localhost:8080). Use --server "" to open
                     local storage directly when the server is not running.
  --config string    Config file path (local mode)
  --output string    Output format: text or json (default: text)

Ask/Search Flags:
  --top-k int              Chunks to assemble (default from config)
  --mode string            hybrid or semantic (default from config)
  --tag string             Only use instructions with this tag
  --include-inactive       Also use deactivated instructions

Ingest Flags:
  --author string    Author recorded in the catalog
  --tags string      Comma-separated tags
  --inactive         Ingest as deactivated

Import-telegram Flags:
  --out string       Markdown file to write; photos go to images/ beside it
  --photos string    Directory with exported photos
  --window duration  Largest gap inside one dialogue (default: 3h)
  --no-ingest        Only write the markdown file

Instructions Flags:
  --active-only      Only active instructions
  --tag string       Only instructions with this tag
  --q string         Search titles

Examples:
  spravka server
  spravka ask расхождения в ЕГАИС
  spravka search --mode semantic "акт расхождений"
  spravka ingest --tags ЕГАИС,УТМ --author admin ./instructions
  spravka deactivate 3f9c2a4e-...
  spravka status --output json
  spravka watch add /srv/instructions`)
}
