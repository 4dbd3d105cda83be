// Package logx configures habitbell's structured logging.
//
// The Logger type is a small value wrapper on top of zerolog that keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Output and level swappable at runtime via Service.Apply
package logx
