// taiga-bridge exposes the Taiga project-management API as MCP tools over
// stdio. The default command serves; `login` verifies credentials without
// starting a server.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"

	"github.com/taigabridge/taiga-bridge/internal/auth"
	"github.com/taigabridge/taiga-bridge/internal/config"
	"github.com/taigabridge/taiga-bridge/internal/server"
	"github.com/taigabridge/taiga-bridge/internal/taiga"
)

func main() {
	args := os.Args[1:]

	var (
		configFlag  string
		debugFlag   bool
		logFileFlag string
		command     = "serve"
	)

	i := 0
	for i < len(args) {
		switch args[i] {
		case "-h", "--help":
			printHelp()
			return
		case "-v", "--version":
			fmt.Println("taiga-bridge " + server.Version)
			return
		case "-c", "--config":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "Error: --config requires a value")
				os.Exit(1)
			}
			configFlag = args[i+1]
			i += 2
		case "-d", "--debug":
			debugFlag = true
			i++
		case "--log-file":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "Error: --log-file requires a value")
				os.Exit(1)
			}
			logFileFlag = args[i+1]
			i += 2
		case "serve", "login":
			command = args[i]
			i++
		default:
			fmt.Fprintf(os.Stderr, "Error: unknown option: %s\n", args[i])
			os.Exit(1)
		}
	}

	loadEnvFiles()
	setupLogging(debugFlag, logFileFlag)

	cfg, err := loadConfig(configFlag, command)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	switch command {
	case "login":
		runLogin(cfg)
	default:
		runServe(cfg)
	}
}

// loadConfig resolves the configuration; the login command may prompt for
// missing credentials interactively instead of failing validation.
func loadConfig(path, command string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil || command != "login" {
		return cfg, err
	}

	// For login, rebuild without validation and prompt below.
	cfg = config.Default()
	if path != "" {
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil, readErr
		}
		if parsed, parseErr := config.LoadFromBytes(data); parseErr == nil {
			cfg = parsed
		}
	}
	return cfg, nil
}

// runServe assembles the bridge and serves MCP over stdio until the client
// hangs up. Stdout carries the protocol, so every log line goes to stderr or
// the log file.
func runServe(cfg *config.Config) {
	bridge, err := server.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = bridge.Close() }()

	log.Info().Str("version", server.Version).Msg("taiga-bridge serving on stdio")
	if err := bridge.Serve(); err != nil {
		log.Error().Err(err).Msg("server stopped")
		os.Exit(1)
	}
}

// runLogin performs one authentication round-trip and prints the outcome.
// Missing credentials are prompted for on the terminal.
func runLogin(cfg *config.Config) {
	reader := bufio.NewReader(os.Stdin)

	if cfg.Taiga.Username == "" && cfg.Taiga.Token == "" {
		fmt.Fprint(os.Stderr, "Username: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading username: %v\n", err)
			os.Exit(1)
		}
		cfg.Taiga.Username = strings.TrimSpace(line)
	}
	if cfg.Taiga.Password == "" && cfg.Taiga.Token == "" {
		fmt.Fprint(os.Stderr, "Password: ")
		secret, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading password: %v\n", err)
			os.Exit(1)
		}
		cfg.Taiga.Password = string(secret)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	transport := taiga.NewTransport(cfg.Taiga.BaseURL, cfg.Timeout())
	client := auth.NewClient(transport, cfg.TokenTTL())

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout())
	defer cancel()

	if cfg.Taiga.Token != "" {
		fmt.Fprintln(os.Stderr, "A static token is configured; nothing to verify against /auth.")
		return
	}

	rec, err := client.Login(ctx, cfg.Taiga.Username, cfg.Taiga.Password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Login failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "Login OK for %s (token valid until ~%s)\n",
		cfg.Taiga.Username, rec.ExpiresAt.Format(time.RFC3339))
}

// loadEnvFiles loads .env from the working directory when present. Real
// environment variables win over file values.
func loadEnvFiles() {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load(".env")
	}
}

// setupLogging points the global zerolog logger at stderr (or a file).
// Stdout is never an option here: it belongs to the MCP stream.
func setupLogging(debug bool, logFile string) {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	out := os.Stderr
	if logFile != "" {
		if f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600); err == nil {
			out = f
		} else {
			fmt.Fprintf(os.Stderr, "Warning: cannot open log file %s: %v\n", logFile, err)
		}
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
}

func printHelp() {
	fmt.Print(`taiga-bridge - Taiga API as MCP tools over stdio

Usage:
  taiga-bridge [serve]   Start the MCP server (default)
  taiga-bridge login     Verify credentials against the upstream

Options:
  -c, --config PATH      YAML config file
  -d, --debug            Debug logging
      --log-file PATH    Append logs to a file instead of stderr
  -v, --version          Print version
  -h, --help             This help

Environment:
  TAIGA_BASE_URL, TAIGA_USERNAME, TAIGA_PASSWORD, TAIGA_TOKEN
  A .env file in the working directory is loaded if present.
`)
}
