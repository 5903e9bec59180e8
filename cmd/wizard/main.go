// Command wizard runs the import wizard in the terminal.
//
//	wizard [-type contact|ticket|organization] [file]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/JonMunkholm/importwizard/internal/application"
	"github.com/JonMunkholm/importwizard/internal/client"
	"github.com/JonMunkholm/importwizard/internal/config"
	"github.com/JonMunkholm/importwizard/internal/core"
	"github.com/JonMunkholm/importwizard/internal/logging"
)

func main() {
	importType := flag.String("type", "", "import type: contact, ticket or organization")
	exportDir := flag.String("out", ".", "directory for downloaded exports")
	flag.Parse()

	// .env is optional; real env vars still apply.
	_ = godotenv.Overload()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration:", err)
		os.Exit(1)
	}

	t, err := core.ParseImportType(*importType)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	// The terminal belongs to the UI; logs go to a file.
	logFile, err := os.OpenFile(cfg.TUI.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open log file:", err)
		os.Exit(1)
	}
	defer logFile.Close()
	logging.SetupWriter(cfg.Logging.Level, cfg.Logging.Format, logFile)
	slog.Info("wizard starting", "config", cfg.String())

	backend := client.New(cfg.Backend.URL,
		client.WithTimeout(cfg.Backend.Timeout),
		client.WithLimiter(client.NewLimiter(cfg.Backend.MaxConcurrent, cfg.Backend.MaxWaitTime)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	model := application.New(ctx, backend, application.Options{
		File:        flag.Arg(0),
		ImportType:  t,
		MaxFileSize: cfg.Upload.MaxFileSize,
		PreviewRows: cfg.Upload.PreviewRows,
		CallTimeout: cfg.Backend.Timeout,
		ExportDir:   *exportDir,
	})

	if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
		slog.Error("wizard stopped", "error", err)
		fmt.Fprintln(os.Stderr, "wizard:", err)
		os.Exit(1)
	}
	slog.Info("wizard closed", "session_id", model.Session().ID())
}
