package core

// Logger is used by every layer to report events.
// expected args: error, map[string]interface{}, user.User (sets the affected person when supported)
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
