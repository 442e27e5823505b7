// Package backend writes finished graph snapshots: to files in one of the
// snapshot formats, to a sqlite store, or to a graph host over gRPC.
package backend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/funvibe/flowc/internal/config"
	"github.com/funvibe/flowc/internal/graph"
)

// Backend is the interface for output backends.
type Backend interface {
	// Emit writes snap to target and returns where it went.
	Emit(ctx context.Context, snap *graph.Snapshot, target string) (string, error)

	// Name returns the backend name for display
	Name() string
}

// ForFormat returns the file backend of a configured output format.
func ForFormat(format string) (Backend, error) {
	switch format {
	case config.FormatYAML:
		return &FileBackend{Format: format, Encode: (*graph.Snapshot).EncodeYAML}, nil
	case config.FormatJSON:
		return &FileBackend{Format: format, Encode: (*graph.Snapshot).EncodeJSON}, nil
	case config.FormatProto:
		return &FileBackend{Format: format, Encode: (*graph.Snapshot).EncodeProto}, nil
	case config.FormatSQLite:
		return &SQLiteBackend{}, nil
	}
	return nil, fmt.Errorf("unknown output format %q", format)
}

// FileBackend writes an encoded snapshot to a file. Target "-" is stdout.
type FileBackend struct {
	Format string
	Encode func(*graph.Snapshot) ([]byte, error)
}

func (b *FileBackend) Name() string { return b.Format }

func (b *FileBackend) Emit(_ context.Context, snap *graph.Snapshot, target string) (string, error) {
	data, err := b.Encode(snap)
	if err != nil {
		return "", err
	}
	if target == "-" {
		if _, err := os.Stdout.Write(data); err != nil {
			return "", fmt.Errorf("writing snapshot: %w", err)
		}
		return "stdout", nil
	}
	if dir := filepath.Dir(target); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return "", fmt.Errorf("writing snapshot: %w", err)
	}
	return target, nil
}

// SQLiteBackend saves the snapshot into a graph store. Earlier snapshots
// in the same database are kept.
type SQLiteBackend struct{}

func (b *SQLiteBackend) Name() string { return config.FormatSQLite }

func (b *SQLiteBackend) Emit(ctx context.Context, snap *graph.Snapshot, target string) (string, error) {
	store, err := graph.OpenStore(target)
	if err != nil {
		return "", err
	}
	defer store.Close()
	if err := store.Save(ctx, snap); err != nil {
		return "", fmt.Errorf("saving snapshot to %s: %w", target, err)
	}
	return target + "#" + snap.ID, nil
}
