package main

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/peterbourgon/ff/v4/ffjson"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"google.golang.org/api/option"

	"github.com/zombor/receipt-ledger/internal/fields"
	"github.com/zombor/receipt-ledger/internal/ledger"
	"github.com/zombor/receipt-ledger/internal/ledger/sheets"
	"github.com/zombor/receipt-ledger/internal/metrics"
	"github.com/zombor/receipt-ledger/internal/receipt"
	"github.com/zombor/receipt-ledger/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

// model is a configured vision/structuring backend
type model interface {
	scanning.VisionModel
	scanning.Structurer
	io.Closer
}

type disabledModel struct{ scanning.Disabled }

func (disabledModel) Close() error { return nil }

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("receipt-ledger")
	var (
		_           = fs.StringLong("config", "", "JSON config file (keys are flag names)")
		port        = fs.IntLong("port", 8080, "HTTP server port")
		authUser    = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass    = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		logLevel    = fs.StringEnumLong("log-level", "Log level: debug, info, warn, error", "info", "debug", "warn", "error")
		logFormat   = fs.StringEnumLong("log-format", "Log format: text or json", "text", "json")
		showVersion = fs.BoolLong("version", "Show version information")

		ledgerType    = fs.StringEnumLong("ledger", "Ledger backend: bolt, sheets or memory", "bolt", "sheets", "memory")
		dbPath        = fs.StringLong("db", "receipt-ledger.db", "Bolt ledger file path")
		initialBudget = fs.StringLong("budget", "0", "Initial budget for a new ledger")
		sheetID       = fs.StringLong("sheets-id", "", "Google Sheets spreadsheet id")
		entriesSheet  = fs.StringLong("sheets-entries", "SOA", "Sheet holding ledger entries")
		budgetSheet   = fs.StringLong("sheets-budget", "Budget", "Sheet holding the remaining budget")
		credentials   = fs.StringLong("google-credentials", "", "Google service account JSON file for Sheets and Drive")

		archiveType = fs.StringEnumLong("archive", "Receipt archive: none, local or drive", "none", "local", "drive")
		storagePath = fs.StringLong("storage", "./receipts", "Local archive directory")
		driveFolder = fs.StringLong("drive-folder", "", "Google Drive folder id for the archive")

		modelType      = fs.StringEnumLong("model", "Vision and structuring model: gemini, ollama or none", "gemini", "ollama", "none")
		geminiKey      = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel    = fs.StringLong("gemini-model", scanning.DefaultGeminiModel, "Google Gemini model name")
		geminiFallback = fs.StringLong("gemini-fallback-model", scanning.DefaultGeminiFallbackModel, "Gemini model used when the primary fails")
		geminiRPM      = fs.IntLong("gemini-rpm", 15, "Gemini requests per minute, 0 for no limit")
		ollamaURL      = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel    = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, llava-phi3, qwen2-vl)")

		tesseractBin  = fs.StringLong("tesseract", "tesseract", "Tesseract binary")
		tesseractLang = fs.StringLong("tesseract-lang", "eng", "Tesseract language")
		ocrDPI        = fs.Float64Long("ocr-dpi", 300, "PDF render resolution for OCR and vision")
		ocrMaxPages   = fs.IntLong("ocr-max-pages", 5, "PDF pages to OCR, 0 for all")
		minChars      = fs.IntLong("min-chars", scanning.DefaultMinChars, "Characters needed for extracted text to be usable")

		attemptTimeout = fs.DurationLong("attempt-timeout", scanning.DefaultAttemptTimeout, "Timeout for each text extraction attempt")
		modelTimeout   = fs.DurationLong("model-timeout", 60*time.Second, "Timeout for structuring fields with the model")
		lockTimeout    = fs.DurationLong("ledger-lock-timeout", 10*time.Second, "Wait for the ledger lock")
		ledgerTimeout  = fs.DurationLong("ledger-timeout", 10*time.Second, "Timeout for each ledger call")
		maxConflicts   = fs.IntLong("ledger-max-conflicts", 3, "Version conflicts retried before giving up")
		maxRetries     = fs.IntLong("ledger-max-retries", 3, "Ledger write failures retried before giving up")

		ceiling    = fs.StringLong("plausible-ceiling", "100000", "Largest total accepted from low confidence text")
		monthFirst = fs.BoolLong("month-first", "Read 01/03/2024 as January 3 instead of 1 March")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("RECEIPT_LEDGER"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ffjson.Parse),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	logger := newLogger(*logLevel, *logFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	budget, err := decimal.NewFromString(*initialBudget)
	if err != nil {
		fatal("Invalid budget", "budget", *initialBudget, "error", err)
	}
	plausible, err := decimal.NewFromString(*ceiling)
	if err != nil {
		fatal("Invalid plausible ceiling", "ceiling", *ceiling, "error", err)
	}

	var googleOpts []option.ClientOption
	if *credentials != "" {
		googleOpts = append(googleOpts, option.WithCredentialsFile(*credentials))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	// Initialize ledger
	slog.Info("Initializing ledger...", "backend", *ledgerType)
	var store ledger.Store
	switch *ledgerType {
	case "bolt":
		bolt, err := ledger.NewBoltStore(*dbPath, budget)
		if err != nil {
			fatal("Failed to open ledger database", "path", *dbPath, "error", err)
		}
		defer bolt.Close()
		store = bolt
	case "sheets":
		store, err = sheets.New(ctx, sheets.Config{
			SpreadsheetID: *sheetID,
			EntriesSheet:  *entriesSheet,
			BudgetSheet:   *budgetSheet,
			InitialBudget: budget,
		}, googleOpts...)
		if err != nil {
			fatal("Failed to initialize Google Sheets ledger", "error", err)
		}
	case "memory":
		store = ledger.NewMemoryStore("default", budget)
	}

	// Initialize model backend
	var backend model = disabledModel{}
	switch *modelType {
	case "gemini":
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		slog.Info("Initializing Gemini...", "model", *geminiModel, "fallback", *geminiFallback)
		gemini, err := scanning.NewGemini(ctx, scanning.GeminiConfig{
			APIKey:            apiKey,
			Model:             *geminiModel,
			FallbackModel:     *geminiFallback,
			RequestsPerMinute: *geminiRPM,
		}, logger)
		if err != nil {
			fatal("Failed to initialize Gemini", "error", err)
		}
		if !gemini.Available() {
			slog.Warn("No Gemini API key, continuing with OCR and text parsing only")
		}
		backend = gemini
	case "ollama":
		slog.Info("Initializing Ollama...", "url", *ollamaURL, "model", *ollamaModel)
		backend = scanning.NewOllama(*ollamaURL, *ollamaModel)
	}
	defer backend.Close()

	tesseract := scanning.NewTesseract(scanning.TesseractConfig{Binary: *tesseractBin, Lang: *tesseractLang})
	if !tesseract.Available() {
		slog.Warn("Tesseract not found, OCR is disabled", "binary", *tesseractBin)
	}

	// Initialize archive
	var archive receipt.Archive
	switch *archiveType {
	case "local":
		archive, err = receipt.NewLocalArchive(*storagePath)
		if err != nil {
			fatal("Failed to initialize archive", "error", err)
		}
	case "drive":
		archive, err = receipt.NewDriveArchive(ctx, *driveFolder, googleOpts...)
		if err != nil {
			fatal("Failed to initialize Drive archive", "error", err)
		}
	}

	pdf := scanning.NewFitzReader(*ocrDPI)
	cascade := scanning.NewCascade(
		&scanning.DigitalTextStrategy{PDF: pdf},
		&scanning.OCRStrategy{Engine: tesseract, PDF: pdf, MaxPages: *ocrMaxPages},
		&scanning.VisionStrategy{Model: backend, PDF: pdf},
		logger, m,
	)
	cascade.MinChars = *minChars
	cascade.AttemptTimeout = *attemptTimeout

	classifier := scanning.NewClassifier(pdf, logger)
	classifier.MinDigitalChars = *minChars

	validator := ledger.NewValidator()
	validator.DayFirst = !*monthFirst
	validator.PlausibleCeiling = plausible

	updater := ledger.NewUpdater(store, ledger.UpdaterConfig{
		LockTimeout:     *lockTimeout,
		CallTimeout:     *ledgerTimeout,
		MaxConflicts:    *maxConflicts,
		MaxWriteRetries: *maxRetries,
		Backoff:         50 * time.Millisecond,
	}, logger, m)

	service := receipt.NewService(receipt.Deps{
		Classifier: classifier,
		Extractor:  cascade,
		Fields:     fields.NewExtractor(backend, *modelTimeout, logger),
		Validator:  validator,
		Ledger:     updater,
		Archive:    archive,
		Logger:     logger,
		Metrics:    m,
	})

	basicAuth := receipt.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := receipt.NewServer(service, basicAuth, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}
	slog.Info("Ledger ready", "ledger", store.Name(), "version", version)

	addr := fmt.Sprintf(":%d", *port)
	if err := server.Start(ctx, addr); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}
	slog.Info("Shut down")
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func fatal(msg string, args ...any) {
	slog.Error(msg, args...)
	os.Exit(1)
}
