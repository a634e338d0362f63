// Package logging provides leveled logging for dps. Operational output goes
// to stderr through a slog.Logger; a setup session can additionally be
// recorded to a rotated log file inside the output directory, so the trace
// of how a study tree was generated survives next to the runs themselves.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/akapelrud/discharge-parametric-studies/internal/backup"
)

// ParseLevel maps a string level name to a slog.Level.
// Supported values: "warn", "info", "debug" (case-insensitive).
// Unknown values default to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a leveled slog.Logger writing to w.
func NewLogger(level string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	return slog.New(slog.NewTextHandler(w, opts))
}

// SessionFile is a log file whose previous contents are rotated away on open,
// one numbered backup per earlier session.
type SessionFile struct {
	file *os.File
}

// OpenSessionFile rotates path through its numbered backups and opens a fresh
// file at path. Keeps up to backups earlier sessions.
func OpenSessionFile(path string, backups int) (*SessionFile, error) {
	if err := backup.Rotate(path, backups); err != nil {
		return nil, fmt.Errorf("rotating log file: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	return &SessionFile{file: f}, nil
}

func (s *SessionFile) Write(p []byte) (int, error) {
	return s.file.Write(p)
}

// Close syncs and closes the underlying file. Safe to call on nil receiver.
func (s *SessionFile) Close() error {
	if s == nil || s.file == nil {
		return nil
	}
	if err := s.file.Sync(); err != nil {
		s.file.Close()
		return err
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// Tee returns a logger at level writing both to stderr (or another primary
// writer) and to the session file.
func Tee(level string, primary io.Writer, session *SessionFile) *slog.Logger {
	if session == nil {
		return NewLogger(level, primary)
	}
	return NewLogger(level, io.MultiWriter(primary, session))
}
