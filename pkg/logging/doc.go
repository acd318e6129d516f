// Package logging provides structured logging utilities for cloud-collector components.
//
// # Overview
//
// This package wraps the standard library slog package with collector-specific defaults
// and conventions for consistent logging across all components. It supports
// environment-based log level configuration, module/version context injection,
// and automatic source location tracking for debug logs.
//
// # Features
//
//   - Structured JSON logging to stderr
//   - Environment-based log level configuration (LOG_LEVEL)
//   - Automatic module and version context
//   - Source location tracking for debug logs
//   - Flexible log level parsing
//   - Integration with standard library log package
//
// # Log Levels
//
// Supported log levels (case-insensitive):
//   - DEBUG: Detailed diagnostic information with source location
//   - INFO: General informational messages (default)
//   - WARN/WARNING: Warning messages for potentially problematic situations
//   - ERROR: Error messages for failures requiring attention
//
// # Usage
//
// Setting the default logger (recommended):
//
//	func main() {
//	    logging.SetDefaultStructuredLogger("collectord", "v1.0.0")
//	    defer slog.Info("application started")
//
//	    // Use slog as normal
//	    slog.Info("task started", "task", "metrics-1")
//	    slog.Debug("window computed", "oldest", oldest)
//	    slog.Error("operation failed", "error", err)
//	}
//
// Creating a custom logger:
//
//	logger := logging.NewStructuredLogger("collectord", "v2.0.0", "debug")
//	logger.Info("server starting", "port", 8080)
//
// Setting explicit log level:
//
//	logging.SetDefaultStructuredLoggerWithLevel("collectord", "v1.0.0", "warn")
//
// Converting standard library logger:
//
//	stdLogger := logging.NewLogLogger(slog.LevelInfo, false)
//	stdLogger.Println("legacy log message")
//
// # Environment Configuration
//
// The LOG_LEVEL environment variable controls logging verbosity:
//
//	LOG_LEVEL=debug collectord run --config collector.yaml
//	LOG_LEVEL=error collectord checkpoint show --task metrics-1
//
// If LOG_LEVEL is not set, defaults to INFO level.
//
// # Output Format
//
// All logs are written to stderr in JSON format:
//
//	{
//	    "time": "2025-01-15T10:30:00.123Z",
//	    "level": "INFO",
//	    "msg": "supervisor started",
//	    "module": "collectord",
//	    "version": "v1.0.0",
//	    "tasks": 4
//	}
//
// Debug logs include source location:
//
//	{
//	    "time": "2025-01-15T10:30:00.123Z",
//	    "level": "DEBUG",
//	    "source": {
//	        "function": "poller.(*Windowed).cycle",
//	        "file": "windowed.go",
//	        "line": 45
//	    },
//	    "msg": "window computed",
//	    "module": "collectord",
//	    "version": "v1.0.0"
//	}
//
// # Best Practices
//
// 1. Set default logger early in main():
//
//	func main() {
//	    logging.SetDefaultStructuredLogger("collectord", version)
//	    defer slog.Info("application started")
//	    // ...
//	}
//
// 2. Include context in log messages:
//
//	slog.Info("window committed",
//	    "task", task.Name,
//	    "records", len(records),
//	    "duration_ms", elapsed.Milliseconds(),
//	)
//
// 3. Use appropriate log levels:
//
//	slog.Debug("window computed", "youngest", y)  // Development/troubleshooting
//	slog.Info("supervisor started")              // Normal operations
//	slog.Warn("lease store unavailable")         // Potential issues
//	slog.Error("failed to post events")          // Errors requiring action
//
// 4. Log errors with context:
//
//	slog.Error("failed to collect metrics",
//	    "error", err,
//	    "project", task.Project,
//	    "metric", task.Metric,
//	)
//
// # Integration
//
// This package is used by:
//   - pkg/cli - command setup and the worker child process
//   - pkg/supervisor - task lifecycle logging
//   - pkg/poller - per-cycle collection logging with task identity
//   - pkg/sink - delivery failures and drain loop state
//   - pkg/lease - contention and takeover logging
//
// All components share consistent logging format and configuration.
package logging
