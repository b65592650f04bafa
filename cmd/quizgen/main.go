package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pavelanni/quizgen/internal/handler"
	appI18n "github.com/pavelanni/quizgen/internal/i18n"
	"github.com/pavelanni/quizgen/internal/llm"
	"github.com/pavelanni/quizgen/internal/model"
	"github.com/pavelanni/quizgen/internal/question"
	"github.com/pavelanni/quizgen/internal/segment"
	"github.com/pavelanni/quizgen/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "warning: reading .env:", err)
	}
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "quizgen",
		Short: "Lecture transcript segmentation and quiz generation powered by LLMs",
	}

	serve := serveCmd()
	root.AddCommand(serve, segmentCmd(), questionsCmd(), exportCmd(), hashKeyCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `quizgen --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8000", "HTTP listen address")
	f.String("db", "quizgen.db", "SQLite database path for run history (empty disables)")
	f.StringP("lang", "l", "en", "Default response language (en, ru)")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /quiz)")
	f.String("api-key-hash", "", "bcrypt hash of the API key clients must send as a bearer token (see hash-key)")
	addLLMFlags(f)
	addEngineFlags(f)
	addLogFlags(f)
	return cmd
}

func segmentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "segment",
		Short: "Segment a transcript file and print the segments as JSON",
		RunE:  runSegment,
	}
	f := cmd.Flags()
	f.StringP("file", "f", "-", "Transcript file path (- for stdin)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLLMFlags(f)
	addEngineFlags(f)
	addLogFlags(f)
	return cmd
}

func questionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "questions",
		Short: "Generate questions for a segments file and print them as JSON",
		RunE:  runQuestions,
	}
	f := cmd.Flags()
	f.StringP("segments", "s", "", "Segments JSON file, as printed by the segment command (required)")
	f.String("spec", "", `Question type specification JSON file, e.g. [{"SOL": 2, "NAT": 1}] (required)`)
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLLMFlags(f)
	addLogFlags(f)

	_ = cmd.MarkFlagRequired("segments")
	_ = cmd.MarkFlagRequired("spec")

	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export stored runs as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "quizgen.db", "SQLite database path")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLogFlags(f)
	return cmd
}

func hashKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-key <api-key>",
		Short: "Print the bcrypt hash to use as --api-key-hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := handler.HashAPIKey(args[0])
			if err != nil {
				return fmt.Errorf("hash key: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
			return err
		},
	}
}

func addLLMFlags(f *pflag.FlagSet) {
	f.String("llm-backend", llm.BackendOllama, "Text generation backend (ollama, openai, gemini)")
	f.String("llm-url", "", "Backend base URL (default depends on backend)")
	f.String("llm-key", "", "API key for the backend")
	f.String("llm-model", llm.DefaultModel, "Default model name")
	f.Duration("llm-timeout", 120*time.Second, "Timeout for one generation attempt")
	f.Int("llm-retries", 0, "Retries for transient backend failures")
	f.Int("llm-concurrency", 4, "Maximum generation calls in flight (0 = unlimited)")
	f.String("redis-url", "", "Redis URL for caching completions (empty disables)")
	f.Duration("cache-ttl", 24*time.Hour, "Completion cache TTL")
}

func addEngineFlags(f *pflag.FlagSet) {
	f.Int("desired-segments", 3, "Default maximum number of segments")
	f.Bool("fallback-on-generation-error", false, "Use deterministic segmentation when the backend fails")
}

func addLogFlags(f *pflag.FlagSet) {
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func setupLogging(v *viper.Viper) {
	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("QUIZGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("quizgen")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/quizgen")
	v.AddConfigPath("/etc/quizgen")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// buildGenerator creates the configured backend and wraps it with the
// concurrency limit, retry policy and optional response cache.
func buildGenerator(ctx context.Context, v *viper.Viper) (llm.Generator, func(), error) {
	backend, err := llm.NewBackend(ctx, llm.Config{
		Backend: v.GetString("llm-backend"),
		BaseURL: v.GetString("llm-url"),
		APIKey:  v.GetString("llm-key"),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create LLM backend: %w", err)
	}
	closers := []func() error{backend.Close}
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				slog.Warn("close failed", "error", err)
			}
		}
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := backend.Ping(pingCtx); err != nil {
		slog.Warn("LLM health check failed", "backend", v.GetString("llm-backend"), "error", err)
	} else {
		slog.Info("LLM endpoint OK", "backend", v.GetString("llm-backend"), "url", v.GetString("llm-url"))
	}

	gen := llm.Limit(backend, v.GetInt("llm-concurrency"))
	gen = llm.Retry(gen, llm.RetryPolicy{
		MaxRetries: v.GetInt("llm-retries"),
		Timeout:    v.GetDuration("llm-timeout"),
	})

	if redisURL := v.GetString("redis-url"); redisURL != "" {
		cache, err := llm.NewRedisCache(ctx, redisURL)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connect response cache: %w", err)
		}
		closers = append(closers, cache.Close)
		gen = llm.Cache(gen, cache, v.GetDuration("cache-ttl"))
		slog.Info("response cache enabled", "ttl", v.GetDuration("cache-ttl").String())
	}

	return gen, cleanup, nil
}

func newSegmenter(gen llm.Generator, v *viper.Viper) *segment.Engine {
	return segment.NewEngine(gen,
		segment.WithFallbackOnGenerationError(v.GetBool("fallback-on-generation-error")))
}

func runServe(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize i18n.
	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	var db *store.Store
	if path := v.GetString("db"); path != "" {
		var err error
		db, err = store.New(path)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
	}

	gen, cleanup, err := buildGenerator(ctx, v)
	if err != nil {
		return err
	}
	defer cleanup()

	h, err := handler.New(newSegmenter(gen, v), question.NewEngine(gen), db, handler.Config{
		DefaultModel:    v.GetString("llm-model"),
		DesiredSegments: v.GetInt("desired-segments"),
		APIKeyHash:      v.GetString("api-key-hash"),
	})
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	// Normalize base path.
	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))
	if basePath != "" {
		r.Route(basePath, h.Routes)
	} else {
		h.Routes(r)
	}

	addr := v.GetString("addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	slog.Info("starting server",
		"addr", addr,
		"backend", v.GetString("llm-backend"),
		"model", v.GetString("llm-model"),
		"lang", lang,
		"base_path", basePath,
		"history", db != nil,
		"auth", v.GetString("api-key-hash") != "",
	)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		slog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func runSegment(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)
	ctx := cmd.Context()

	transcript, err := readInput(v.GetString("file"), cmd.InOrStdin())
	if err != nil {
		return fmt.Errorf("read transcript: %w", err)
	}

	gen, cleanup, err := buildGenerator(ctx, v)
	if err != nil {
		return err
	}
	defer cleanup()

	segments, err := newSegmenter(gen, v).Segment(ctx, string(transcript), v.GetString("llm-model"), v.GetInt("desired-segments"))
	if err != nil {
		return err
	}
	return writeOutput(v.GetString("output"), cmd.OutOrStdout(), segments)
}

func runQuestions(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)
	ctx := cmd.Context()

	var segments model.SegmentationResult
	if err := readJSONFile(v.GetString("segments"), &segments); err != nil {
		return fmt.Errorf("read segments: %w", err)
	}
	specs, err := readSpecs(v.GetString("spec"))
	if err != nil {
		return fmt.Errorf("read spec: %w", err)
	}

	gen, cleanup, err := buildGenerator(ctx, v)
	if err != nil {
		return err
	}
	defer cleanup()

	questions, err := question.NewEngine(gen).Generate(ctx, segments, specs, v.GetString("llm-model"))
	if err != nil {
		return err
	}
	return writeOutput(v.GetString("output"), cmd.OutOrStdout(), questions)
}

func runExport(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	export, err := db.ExportRuns()
	if err != nil {
		return fmt.Errorf("export runs: %w", err)
	}
	slog.Info("exporting runs", "count", export.Count)
	return writeOutput(v.GetString("output"), cmd.OutOrStdout(), export)
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

func readJSONFile(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

// readSpecs accepts a list of specs or a single spec object.
func readSpecs(path string) ([]model.QuestionTypeSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if trimmed := strings.TrimSpace(string(data)); strings.HasPrefix(trimmed, "{") {
		var one model.QuestionTypeSpec
		if err := json.Unmarshal(data, &one); err != nil {
			return nil, err
		}
		return []model.QuestionTypeSpec{one}, nil
	}
	var specs []model.QuestionTypeSpec
	if err := json.Unmarshal(data, &specs); err != nil {
		return nil, err
	}
	return specs, nil
}

func writeOutput(outPath string, stdout io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	_, err = w.Write(data)
	if err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	return nil
}
