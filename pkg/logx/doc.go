// Package logx configures gamebridge's structured logging.
//
// A small wrapper (logx.Logger) on top of zerolog keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - An optional Discord sink (min-level + rate limiting) that mirrors
//     warnings into an operator channel
package logx
