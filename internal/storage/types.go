package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrClosed   = errors.New("storage closed")
)

// Store is the persistence API used by the registry and services.
//
// Get reports ok=false for a missing key. Set and Remove must be durable
// when they return nil.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
	AppendAudit(ctx context.Context, e AuditEntry) error
	Close() error
}

// Config configures storage.
//
// Driver values:
//   - "memory": process-local map (tests, dry runs)
//   - "file": dependency-free file backend (journal + snapshot)
//   - "sqlite": SQLite database file
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// AuditEntry records one scheduling operation.
// Keep it compact and schema-stable.
type AuditEntry struct {
	At       time.Time `json:"at"`
	Action   string    `json:"action"`
	Type     string    `json:"type,omitempty"`
	Handles  int       `json:"handles"`
	Error    string    `json:"err,omitempty"`
	MetaJSON string    `json:"meta,omitempty"`
}
