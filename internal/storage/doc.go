// Package storage provides the small persistence layer habitbell runs on.
//
// It currently supports:
//   - A byte-valued key-value namespace (the schedule registry and the
//     check-in log each own one well-known key)
//   - Audit log appends (scheduling operations)
package storage
