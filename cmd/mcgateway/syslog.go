//go:build !windows

package main

import "log/syslog"

// newSyslogWriter dials the local syslog daemon, used by --log=syslog.
func newSyslogWriter() (*syslog.Writer, error) {
	return syslog.New(syslog.LOG_INFO|syslog.LOG_DAEMON, "mcgateway")
}
