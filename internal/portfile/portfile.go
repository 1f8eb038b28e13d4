// Copyright 2025 Joseph Cumines
//
// Coordination file publishing the bridge's loopback port

// Package portfile manages the rendezvous between the tool-serving process and
// the native host relay: a single line of text holding the decimal port the
// bridge is listening on, under the per-user config directory. The file is
// advisory; a missing or stale file degrades the relay, it never crashes it.
package portfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// dirName is the per-user config subdirectory shared by all SDK processes.
const dirName = "browser-use-sdk"

// DefaultPath returns the standard location of the port file.
func DefaultPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("portfile: resolve user config dir: %w", err)
	}
	return filepath.Join(base, dirName, "port"), nil
}

// Write publishes port at path, creating parent directories as needed. The
// file is world-unreadable; only processes of the same user rendezvous here.
func Write(path string, port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("portfile: port %d out of range", port)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("portfile: create directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(port)+"\n"), 0o600); err != nil {
		return fmt.Errorf("portfile: write: %w", err)
	}
	return nil
}

// Read parses the port published at path. A missing file is reported as an
// error wrapping os.ErrNotExist so callers can choose their degraded mode.
func Read(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("portfile: read: %w", err)
	}
	port, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("portfile: malformed content %q: %w", strings.TrimSpace(string(data)), err)
	}
	if port <= 0 || port > 65535 {
		return 0, fmt.Errorf("portfile: port %d out of range", port)
	}
	return port, nil
}

// Remove deletes the port file. Removing an already-absent file is not an
// error; shutdown paths may race.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("portfile: remove: %w", err)
	}
	return nil
}
