package core

// Logger is any service that can log messages and report errors.
// args may contain errors, LogFields extras or the user.User that triggered the log.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

// LogFields are extra values reported along with a log entry.
type LogFields map[string]interface{}
