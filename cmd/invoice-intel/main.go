package main

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/talhazulfakhri/invoice-intel/internal/extraction"
	"github.com/talhazulfakhri/invoice-intel/internal/invoice"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	// Local development convenience; a missing .env is not an error
	_ = godotenv.Load()

	fs := ff.NewFlagSet("invoice-intel")
	var (
		port            = fs.IntLong("port", 8080, "HTTP server port")
		geminiKey       = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel     = fs.StringLong("gemini-model", "gemini-2.0-flash", "Google Gemini model name")
		extractTimeout  = fs.DurationLong("extract-timeout", extraction.DefaultTimeout, "Per-image model call timeout")
		maxUploadBytes  = fs.IntLong("max-upload-bytes", invoice.DefaultMaxUploadBytes, "Per-file upload size limit in bytes")
		instructionFile = fs.StringLong("instruction-file", "", "Path to a custom extraction instruction template (optional)")
		authUser        = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass        = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion     = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("INVOICE_INTEL"),
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

	// The API key is the one fatal startup condition: without it no request
	// can be served
	apiKey := *geminiKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
		os.Exit(1)
	}

	instruction := ""
	if *instructionFile != "" {
		var err error
		instruction, err = extraction.InstructionFromFile(*instructionFile)
		if err != nil {
			slog.Error("Failed to load instruction template", "path", *instructionFile, "error", err)
			os.Exit(1)
		}
		slog.Info("Using custom instruction template", "path", *instructionFile)
	}

	slog.Info("Initializing Gemini extractor...", "model", *geminiModel, "timeout", *extractTimeout)
	extractor, err := extraction.NewGemini(apiKey, *geminiModel, *extractTimeout)
	if err != nil {
		slog.Error("Failed to initialize Gemini", "error", err)
		os.Exit(1)
	}
	defer extractor.Close()

	// Sessions and ledgers are in-memory only; nothing survives the process
	sessions := invoice.NewManager()
	service := invoice.NewService(extractor, sessions, instruction, int64(*maxUploadBytes))

	basicAuth := invoice.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := invoice.NewServer(service, basicAuth)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}
