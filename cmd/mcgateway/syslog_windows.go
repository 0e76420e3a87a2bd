//go:build windows

package main

import (
	"errors"
	"io"
)

// newSyslogWriter has no syslog facility on Windows; callers fall back to stdout.
func newSyslogWriter() (io.Writer, error) {
	return nil, errors.New("syslog logging is not supported on windows")
}
