// Package logger provides structured logging for flowkit using zerolog.
//
// It supports JSON and console output, level configuration, and
// component-scoped loggers with structured fields.
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "json"
//
// # Usage
//
//	log := logger.Get("flow")
//	log.Info("run finished", logger.Fields("pipeline", "ingest", "count", 12))
package logger
