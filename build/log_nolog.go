//go:build nolog

package build

// LogLevel specifies no logging.
var LogLevel = "none"

// LoggingType is a log type that disables all logging.
const LoggingType = LogTypeNone
