package types

// RunMode is the mode the application is running in
type RunMode string

const (
	ModeLocal     RunMode = "local"
	ModeProd      RunMode = "prod"
	ModeScheduler RunMode = "scheduler"
)

// LogLevel is the level of logging
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

func (l LogLevel) String() string {
	return string(l)
}
