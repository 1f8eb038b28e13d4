// Copyright 2025 Joseph Cumines

package portfile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteReadRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "port")

	if err := Write(path, 49152); err != nil {
		t.Fatalf("Write: %v", err)
	}
	port, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if port != 49152 {
		t.Errorf("Read = %d, want 49152", port)
	}

	if err := Remove(path); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("file still exists after Remove")
	}
	// Removing twice must not error.
	if err := Remove(path); err != nil {
		t.Errorf("second Remove: %v", err)
	}
}

func TestReadMissingWrapsNotExist(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "absent"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Read missing file = %v, want wrapped os.ErrNotExist", err)
	}
}

func TestReadTrimsWhitespace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "port")
	if err := os.WriteFile(path, []byte("  8765 \n"), 0o600); err != nil {
		t.Fatal(err)
	}
	port, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if port != 8765 {
		t.Errorf("Read = %d, want 8765", port)
	}
}

func TestReadRejectsGarbage(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not a number", "hello\n"},
		{"negative", "-1\n"},
		{"zero", "0\n"},
		{"too large", "70000\n"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "port")
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatal(err)
			}
			if _, err := Read(path); err == nil {
				t.Errorf("Read(%q) succeeded, want error", tt.content)
			}
		})
	}
}

func TestWriteRejectsBadPort(t *testing.T) {
	path := filepath.Join(t.TempDir(), "port")
	for _, port := range []int{0, -5, 65536} {
		if err := Write(path, port); err == nil {
			t.Errorf("Write(%d) succeeded, want error", port)
		}
	}
}
