// Copyright 2025 Joseph Cumines
//
// Native messaging host: relays the extension's framed stdio to the
// tool-serving process's loopback socket

package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joeycumines/BrowserUseSDK/internal/config"
	"github.com/joeycumines/BrowserUseSDK/internal/relay"
)

func main() {
	// The browser owns stdout; all logging goes to stderr.
	log.SetOutput(os.Stderr)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	r := relay.New(relay.Config{
		PortFilePath:    cfg.PortFilePath,
		Backoff:         cfg.ReconnectBackoff,
		SkipPermissions: cfg.SkipPermissions,
	}, os.Stdin, os.Stdout)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Printf("Received signal %v, shutting down...", sig)
		r.Close()
	}()

	if err := r.Run(); err != nil {
		log.Fatalf("Relay error: %v", err)
	}
}
