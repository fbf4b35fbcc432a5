// Package monitoring holds the diagnostic logger and the packet counters
// shared by the listener and the session.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but
// may be replaced by SetLogger so tests can capture or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil sets a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Silence mutes Logf until the returned restore func is called.
func Silence() (restore func()) {
	prev := Logf
	SetLogger(nil)
	return func() { Logf = prev }
}
