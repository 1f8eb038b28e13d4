// Copyright 2025 Joseph Cumines
//
// Tool-serving process: MCP (JSON-RPC 2.0 over stdio) on one side, the
// loopback bridge to the browser extension on the other

package main

import (
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joeycumines/BrowserUseSDK/internal/bridge"
	"github.com/joeycumines/BrowserUseSDK/internal/config"
	"github.com/joeycumines/BrowserUseSDK/internal/server"
	"github.com/joeycumines/BrowserUseSDK/internal/transport"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Audit logging is optional; an empty path disables it.
	audit, err := server.NewAuditLogger(cfg.AuditLogPath)
	if err != nil {
		log.Fatalf("Failed to open audit log: %v", err)
	}
	defer audit.Close()

	// Start the bridge: loopback listener plus port file.
	br := bridge.New(bridge.Config{
		PortFilePath:    cfg.PortFilePath,
		SkipPermissions: cfg.SkipPermissions,
		ExecTimeout:     cfg.RequestTimeout,
	})
	if err := br.Listen(); err != nil {
		log.Fatalf("Failed to start bridge: %v", err)
	}
	defer br.Close()

	mcpServer := server.NewMCPServer(cfg, br, audit)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup
	errChan := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if serveErr := br.Serve(); serveErr != nil {
			errChan <- serveErr
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		tr := transport.NewStdioTransport(os.Stdin, os.Stdout)
		if serveErr := mcpServer.Serve(tr); serveErr != nil {
			errChan <- serveErr
		} else {
			// MCP client went away; nothing left to serve.
			errChan <- nil
		}
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-sigChan:
		log.Printf("Received signal %v, shutting down...", sig)
	case err := <-errChan:
		if err != nil {
			log.Printf("Server error: %v", err)
		}
	}

	mcpServer.Shutdown()
	// Closing the bridge unblocks Serve and removes the port file.
	if err := br.Close(); err != nil {
		log.Printf("Bridge shutdown error: %v", err)
	}

	// Wait for graceful shutdown
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Server shutdown complete")
	case <-sigChan:
		log.Println("Forced shutdown")
	}
}
