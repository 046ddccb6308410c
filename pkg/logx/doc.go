// Package logx configures the watcher's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Level and outputs swappable at runtime via Service.Apply
package logx
