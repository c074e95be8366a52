// Package logx configures remindd's structured logging.
//
// Components take a logx.Logger (a small value type over zerolog) so that:
//   - Console output stays readable (short timestamp + short caller)
//   - File output is JSON-structured
//   - Level and outputs can be swapped at runtime on config reload
package logx
