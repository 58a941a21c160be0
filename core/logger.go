package core

// Logger is the application logger.
// args may hold errors, map[string]interface{} extras and the identity of the request user.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

// Person identifies the user a log entry relates to.
type Person struct {
	ID    string
	Name  string
	Email string
}
