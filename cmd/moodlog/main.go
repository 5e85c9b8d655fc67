package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hpungsan/moodlog/internal/config"
	"github.com/hpungsan/moodlog/internal/db"
	"github.com/hpungsan/moodlog/internal/mcp"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"signin": true, "signout": true, "whoami": true,
	"log": true, "list": true, "timeline": true, "stats": true,
	"insights": true, "tips": true, "ask": true, "export": true,
	"watch": true, "serve": true, "mcp": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	if cliCommands[arg] {
		return true
	}
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v"
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

func printBanner() {
	fmt.Println(`
                          _ _
   _ __ ___   ___   ___ __| | | ___   __ _
  | '_ ' _ \ / _ \ / _ / _' | |/ _ \ / _' |
  | | | | | | (_) | (_) (_| | | (_) | (_| |
  |_| |_| |_|\___/ \___\__,_|_|\___/ \__, |
                                     |___/
  Mood journal with AI insights

  Usage: moodlog <command> [options]
         moodlog --help

  MCP server mode requires piped input.`)
}

// baseDirectory returns $MOODLOG_HOME, or ~/.moodlog.
func baseDirectory() (string, error) {
	if v := strings.TrimSpace(os.Getenv("MOODLOG_HOME")); v != "" {
		return v, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".moodlog"), nil
}

func main() {
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Help and version need no database
	if isHelpOrVersion() {
		if err := newCLIApp(nil).RunContext(ctx, os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	baseDir, err := baseDirectory()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	database, err := db.Init(baseDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to initialize database: %v\n", err)
		os.Exit(1)
	}
	defer database.Close()

	cfg, err := config.Load(baseDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		os.Exit(1)
	}
	if unknown := mcp.ValidateDisabledTools(cfg.DisabledTools); len(unknown) > 0 {
		log.Printf("warning: unknown tools in disabled_tools: %s", strings.Join(unknown, ", "))
	}
	db.ConfigurePool(database, cfg)
	if n, err := db.PurgeExpiredSessions(database, time.Now().UTC()); err != nil {
		log.Printf("warning: failed to purge expired sessions: %v", err)
	} else if n > 0 {
		log.Printf("purged %d expired sessions", n)
	}

	rt := newRuntime(baseDir, database, cfg)
	defer rt.Close()

	if isCLIMode() {
		if err := newCLIApp(rt).RunContext(ctx, os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Unknown argument + terminal: don't start the MCP server
	if len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'moodlog --help' for usage.\n")
		os.Exit(1)
	}

	if err := mcp.Run(rt.mcpDeps()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
