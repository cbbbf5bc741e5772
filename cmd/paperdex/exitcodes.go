package main

import "fmt"

// Exit codes. Partial means the run completed with losses but the
// corpus is usable; Aborted means the run stopped and the corpus may
// be incomplete in ways only a rerun can fix.
const (
	ExitOK      = 0
	ExitPartial = 1
	ExitAborted = 2
)

// exitError carries an exit code through cobra's error return.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func partialf(format string, args ...any) error {
	return &exitError{code: ExitPartial, err: fmt.Errorf(format, args...)}
}

func abortedf(format string, args ...any) error {
	return &exitError{code: ExitAborted, err: fmt.Errorf(format, args...)}
}
