// Package monitoring holds the diagnostic sinks shared by the filters: a
// printf-style logger and the fatal-error reporter used for contract
// violations.
package monitoring

import (
	"fmt"
	"log"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Fatalf reports an unrecoverable caller error (bad time step, filter used
// before reset, time going backwards). The default panics with the
// formatted message so the process terminates unless something recovers.
// It never returns.
var Fatalf func(format string, v ...interface{}) = panicf

func panicf(format string, v ...interface{}) {
	panic(fmt.Sprintf(format, v...))
}

// SetFatal replaces the fatal reporter. The replacement must not return;
// passing nil restores the panicking default.
func SetFatal(f func(format string, v ...interface{})) {
	if f == nil {
		Fatalf = panicf
		return
	}
	Fatalf = f
}
