// Package main provides the docwatch terminal editor: open text files, edit
// them, and see external changes reconciled as they happen.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/do/v2"

	"github.com/listenupapp/docwatch/internal/config"
	"github.com/listenupapp/docwatch/internal/di"
	"github.com/listenupapp/docwatch/internal/di/providers"
)

func main() {
	cfg, files, err := config.LoadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "docwatch: %v\n", err)
		os.Exit(2)
	}

	term := newTerminal(os.Stdout)

	// Create DI container
	injector := di.NewContainer(cfg, term)

	// Bootstrap all services
	mgr, err := di.Bootstrap(injector)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start docwatch: %v\n", err)
		os.Exit(1)
	}

	// Get logger for shutdown messages
	log := do.MustInvoke[*providers.LoggerHandle](injector)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Stop the shell on a shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		cancel()
	}()

	journal := do.MustInvoke[*providers.JournalHandle](injector)

	shell := newREPL(term, mgr.Manager, journal)
	for _, path := range files {
		shell.open(ctx, path)
	}
	shell.help()

	if err := shell.run(ctx, readLines(os.Stdin)); err != nil {
		log.Error("Shell stopped", "error", err)
	}

	log.Info("Shutting down docwatch...")

	// The DI container closes the sessions, the journal and the log file in
	// reverse dependency order.
	if err := injector.Shutdown(); err != nil {
		log.Error("Shutdown error", "error", err)
	}
}

// readLines feeds stdin to the shell one line at a time. The channel is
// closed at EOF.
func readLines(f *os.File) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}
