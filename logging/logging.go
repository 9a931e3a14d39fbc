// Package logging defines the small structured logging interface shared by
// the SDK, its adapters and the command-line tools. Callers can plug in any
// backend by implementing Logger.
package logging

// Logger is a deliberately small, framework-agnostic logging interface.
type Logger interface {
	// Debug logs a debug-level message.
	Debug(msg string, fields ...Field)

	// Info logs an informational message.
	Info(msg string, fields ...Field)

	// Warn logs a warning.
	Warn(msg string, fields ...Field)

	// Error logs an error.
	Error(msg string, fields ...Field)

	// With returns a child logger with persistent fields.
	With(fields ...Field) Logger
}

// Field is a simple key/value pair for structured logging fields.
type Field struct {
	Key   string
	Value any
}

// F is shorthand for Field{Key: key, Value: value}.
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// Err builds an "error" field. A nil error yields a nil value.
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Nop is a Logger that discards everything.
type Nop struct{}

func (Nop) Debug(string, ...Field)   {}
func (Nop) Info(string, ...Field)    {}
func (Nop) Warn(string, ...Field)    {}
func (Nop) Error(string, ...Field)   {}
func (n Nop) With(...Field) Logger { return n }
