// Package main is the oshiete CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/oshiete/internal/answer"
	"github.com/hyperjump/oshiete/internal/config"
	"github.com/hyperjump/oshiete/internal/embedding"
	"github.com/hyperjump/oshiete/internal/extract"
	"github.com/hyperjump/oshiete/internal/kb"
	"github.com/hyperjump/oshiete/internal/models"
	"github.com/hyperjump/oshiete/internal/server"
	"github.com/hyperjump/oshiete/internal/store"
	"github.com/hyperjump/oshiete/internal/watcher"
	"github.com/hyperjump/oshiete/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/oshiete/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used. A missing default config is not an error; defaults apply.
func loadConfig(path string) (*config.Config, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				return config.Load(fallback)
			}
		}
		if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
			cfg := &config.Config{}
			config.ApplyDefaults(cfg)
			return cfg, nil
		}
	}
	return config.Load(path)
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "sync":
		runSync()
	case "ask":
		runAsk()
	case "search":
		runSearch()
	case "add":
		runAdd()
	case "status":
		runStatus()
	case "clear":
		runClear()
	case "watch":
		runWatch()
	case "server":
		runServer()
	case "version", "--version", "-v":
		fmt.Printf("oshiete version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// setup loads config and builds the logger and knowledge base. When
// needAnswer is true the answer service must be configured (API key present)
// or setup fails.
func setup(configPath string, needAnswer bool) (*config.Config, *zap.Logger, *kb.KnowledgeBase, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create logger: %w", err)
	}
	knowledge, err := buildKnowledgeBase(cfg, logger, needAnswer)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, logger, knowledge, nil
}

func buildKnowledgeBase(cfg *config.Config, logger *zap.Logger, needAnswer bool) (*kb.KnowledgeBase, error) {
	st, err := store.New(cfg.Storage.Dir)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	embedder := embedding.NewOllamaEmbedder(embedding.Config{
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Timeout:    time.Duration(cfg.Embedding.TimeoutSeconds) * time.Second,
		MaxRetries: cfg.Embedding.MaxRetries,
	})

	opts := []kb.Option{
		kb.WithLogger(logger),
		kb.WithTopK(cfg.Search.TopK),
	}
	answerer, err := answer.NewClient(answer.Config{
		BaseURL:   cfg.Answer.BaseURL,
		APIKeyEnv: cfg.Answer.APIKeyEnv,
		Model:     cfg.Answer.Model,
		Referer:   cfg.Answer.Referer,
		AppTitle:  cfg.Answer.AppTitle,
		Timeout:   time.Duration(cfg.Answer.TimeoutSeconds) * time.Second,
	})
	switch {
	case err == nil:
		opts = append(opts, kb.WithAnswerService(answerer))
	case needAnswer:
		return nil, fmt.Errorf("answer service unavailable: %w", err)
	default:
		logger.Debug("answer service not configured", zap.Error(err))
	}

	return kb.Open(st, embedder, extract.NewExtractor(), opts...), nil
}

func runSync() {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])
	if fs.NArg() < 1 {
		fmt.Println("Usage: oshiete sync [flags] <directory>")
		os.Exit(1)
	}

	cfg, logger, knowledge, err := setup(*configPath, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	report, err := knowledge.SyncDirectory(context.Background(), fs.Arg(0), cfg.Sync.Extensions)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Sync failed: %v\n", err)
		os.Exit(1)
	}
	printSyncReport(report)
}

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])
	question := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if question == "" {
		fmt.Println("Usage: oshiete ask [flags] <question>")
		os.Exit(1)
	}

	_, logger, knowledge, err := setup(*configPath, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ans, err := knowledge.Ask(context.Background(), question)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(ans)
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	topK := fs.Int("top-k", 0, "number of results (default from config)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])
	query := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if query == "" {
		fmt.Println("Usage: oshiete search [flags] <query>")
		os.Exit(1)
	}

	_, logger, knowledge, err := setup(*configPath, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	results, err := knowledge.Search(context.Background(), query, *topK)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		if len(results) == 0 {
			fmt.Println("No results.")
			return
		}
		for i, r := range results {
			fmt.Printf("%d. %s (score %.4f)\n", i+1, r.Identity, r.Score)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func runAdd() {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	var content string
	if fs.NArg() > 0 {
		content = strings.Join(fs.Args(), " ")
	} else {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Read stdin failed: %v\n", err)
			os.Exit(1)
		}
		content = string(data)
	}
	if strings.TrimSpace(content) == "" {
		fmt.Println("Usage: oshiete add [flags] <content>  (or pipe content on stdin)")
		os.Exit(1)
	}

	_, logger, knowledge, err := setup(*configPath, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	identity, err := knowledge.AddDocument(context.Background(), content)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Add failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Document added: %s\n", identity)
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	cfg, logger, knowledge, err := setup(*configPath, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	fmt.Printf("documents:    %d\n", knowledge.Len())
	if dims := knowledge.Dimensions(); dims > 0 {
		fmt.Printf("dimensions:   %d\n", dims)
	}
	if diskBytes, err := knowledge.DiskUsageBytes(); err == nil {
		fmt.Printf("disk_bytes:   %d\n", diskBytes)
	}
	fmt.Printf("storage_dir:  %s\n", cfg.Storage.Dir)
}

func runClear() {
	fs := flag.NewFlagSet("clear", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	_, logger, knowledge, err := setup(*configPath, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := knowledge.Clear(); err != nil {
		fmt.Fprintf(os.Stderr, "Clear failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Knowledge base cleared.")
}

func runWatch() {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])
	if fs.NArg() < 1 {
		fmt.Println("Usage: oshiete watch [flags] <directory>")
		os.Exit(1)
	}
	dir := fs.Arg(0)

	cfg, logger, knowledge, err := setup(*configPath, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	doSync := func() {
		if _, err := knowledge.SyncDirectory(context.Background(), dir, cfg.Sync.Extensions); err != nil {
			logger.Warn("sync failed", zap.String("root", dir), zap.Error(err))
		}
	}
	doSync() // pick up existing files before watching

	w := watcher.New(dir, doSync, watcher.WithLogger(logger))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		logger.Fatal("Failed to start watcher", zap.Error(err))
	}
	defer w.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutting down...")
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	knowledge, err := buildKnowledgeBase(cfg, logger, false)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}

	srv := server.NewServer(knowledge, cfg, logger)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func printSyncReport(report *models.SyncReport) {
	fmt.Printf("Synced: %d added, %d updated, %d removed, %d unchanged, %d failed\n",
		report.Added, report.Updated, report.Removed, report.Unchanged, report.Failed)
	for _, o := range report.Outcomes {
		if o.Action == models.ActionFailed {
			fmt.Printf("  failed  %s: %s\n", o.Path, o.Error)
		}
	}
}

func printUsage() {
	fmt.Println(`oshiete - Local knowledge base with semantic retrieval

Usage:
  oshiete sync [flags] <directory>    Synchronize a directory into the knowledge base
  oshiete ask [flags] <question>      Ask a question over the stored documents
  oshiete search [flags] <query>      Retrieve the most similar documents (no LLM)
  oshiete add [flags] <content>       Add a single document directly
  oshiete status [flags]              Show document count and storage usage
  oshiete clear [flags]               Delete all stored documents and metadata
  oshiete watch [flags] <directory>   Keep a directory synchronized continuously
  oshiete server [flags]              Start the HTTP API server
  oshiete version                     Show version
  oshiete help                        Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/oshiete/config.yaml,
                     falling back to ./config.yaml, then built-in defaults)

Search Flags:
  --top-k int        Number of results (default from config, 3)
  --output string    Output format: text or json (default: text)

Server Flags:
  --debug            Enable debug logging

Examples:
  oshiete sync ~/notes
  oshiete ask "what did we decide about the rollout?"
  oshiete search --top-k 5 --output json deployment checklist
  echo "ad-hoc note" | oshiete add
  oshiete watch ~/notes
  oshiete server --debug`)
}
