// Package logger wraps zap to provide:
//   - a global sugared logger with console or JSON encoding,
//   - context helpers (ToContext/FromContext/WithName/WithKV) so every unit of
//     work logs with its network, device and event identifiers attached,
//   - level and format parsing for the YAML configuration,
//   - an adapter that lets robfig/cron report through the same logger.
package logger
