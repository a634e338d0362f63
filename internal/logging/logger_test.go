package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  slog.Level
	}{
		{"info", "info", slog.LevelInfo},
		{"debug", "debug", slog.LevelDebug},
		{"warn", "warn", slog.LevelWarn},
		{"warning alias", "warning", slog.LevelWarn},
		{"uppercase INFO", "INFO", slog.LevelInfo},
		{"uppercase DEBUG", "DEBUG", slog.LevelDebug},
		{"mixed case Debug", "Debug", slog.LevelDebug},
		{"unknown defaults to info", "unknown", slog.LevelInfo},
		{"empty defaults to info", "", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewLogger_LevelFiltering(t *testing.T) {
	tests := []struct {
		name       string
		level      string
		logAtDebug bool
		logAtInfo  bool
	}{
		{"info filters debug", "info", false, true},
		{"debug passes debug", "debug", true, true},
		{"warn filters info", "warn", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(tt.level, &buf)

			logger.Debug("debug message")
			hasDebug := strings.Contains(buf.String(), "debug message")
			if hasDebug != tt.logAtDebug {
				t.Errorf("debug message visible = %v, want %v (buf: %q)", hasDebug, tt.logAtDebug, buf.String())
			}

			buf.Reset()
			logger.Info("info message")
			hasInfo := strings.Contains(buf.String(), "info message")
			if hasInfo != tt.logAtInfo {
				t.Errorf("info message visible = %v, want %v (buf: %q)", hasInfo, tt.logAtInfo, buf.String())
			}
		})
	}
}

func TestOpenSessionFile_Fresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "setup.log")

	sf, err := OpenSessionFile(path, 5)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := sf.Write([]byte("session one\n")); err != nil {
		t.Fatal(err)
	}
	if err := sf.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "session one\n" {
		t.Errorf("log content = %q", data)
	}
}

func TestOpenSessionFile_RotatesPreviousSession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "setup.log")

	for _, msg := range []string{"first\n", "second\n"} {
		sf, err := OpenSessionFile(path, 5)
		if err != nil {
			t.Fatal(err)
		}
		sf.Write([]byte(msg))
		sf.Close()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "second\n" {
		t.Errorf("current session = %q, want second", data)
	}

	backup, err := os.ReadFile(path + ".1")
	if err != nil {
		t.Fatalf("previous session not rotated: %v", err)
	}
	if string(backup) != "first\n" {
		t.Errorf("rotated session = %q, want first", backup)
	}
}

func TestSessionFile_NilClose(t *testing.T) {
	var sf *SessionFile
	if err := sf.Close(); err != nil {
		t.Errorf("nil Close() = %v", err)
	}
}

func TestTee_WritesBothDestinations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "setup.log")
	sf, err := OpenSessionFile(path, 5)
	if err != nil {
		t.Fatal(err)
	}
	defer sf.Close()

	var buf bytes.Buffer
	logger := Tee("info", &buf, sf)
	logger.Info("tee message", "stage", "pressure_study")

	if !strings.Contains(buf.String(), "tee message") {
		t.Error("primary writer missed the message")
	}
	sf.Close()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "tee message") {
		t.Error("session file missed the message")
	}
}

func TestTee_NilSessionFallsBack(t *testing.T) {
	var buf bytes.Buffer
	logger := Tee("info", &buf, nil)
	logger.Info("plain message")
	if !strings.Contains(buf.String(), "plain message") {
		t.Error("fallback logger missed the message")
	}
}
