// Package logx configures sgdqbot's structured logging.
//
// logx.Logger wraps zerolog so that:
//   - console output stays readable (short timestamp, short caller)
//   - file output is JSON
//   - levels and sinks can be swapped at runtime by Service.Apply
package logx
