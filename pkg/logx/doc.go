// Package logx configures countdown's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Runtime reconfiguration (Service.Apply) without replacing loggers held by components
package logx
