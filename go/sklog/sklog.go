// Package sklog offers a small severity-leveled logging facade over glog.
// Every log line in this repository goes through here rather than calling
// glog (or the standard log package) directly, so severity, call-site
// stack depth, and eventual log-sink changes stay in one place.
package sklog

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/golang/glog"
)

// Severities, used for labeling log lines consistently across the app.
const (
	DEBUG   = "DEBUG"
	INFO    = "INFO"
	WARNING = "WARNING"
	ERROR   = "ERROR"
	FATAL   = "FATAL"
)

func Debugf(format string, v ...interface{}) {
	log(0, DEBUG, fmt.Sprintf(format, v...))
}

func Infof(format string, v ...interface{}) {
	log(0, INFO, fmt.Sprintf(format, v...))
}

func Warningf(format string, v ...interface{}) {
	log(0, WARNING, fmt.Sprintf(format, v...))
}

func Errorf(format string, v ...interface{}) {
	log(0, ERROR, fmt.Sprintf(format, v...))
}

// Fatalf logs at FATAL and then calls glog.Fatalf, which exits the process.
func Fatalf(format string, v ...interface{}) {
	log(0, FATAL, fmt.Sprintf(format, v...))
	glog.Fatalf(format, v...)
}

func Flush() {
	glog.Flush()
}

// log writes a severity-tagged entry, prefixed with the caller's file:line
// so the line is useful even when glog's own caller info points here.
func log(depthOffset int, severity, payload string) {
	site := CallSite(3 + depthOffset)
	line := fmt.Sprintf("%s %s: %s", site, severity, payload)
	writeFileSink(line)
	switch severity {
	case DEBUG, INFO:
		glog.InfoDepth(2+depthOffset, line)
	case WARNING:
		glog.WarningDepth(2+depthOffset, line)
	case ERROR, FATAL:
		glog.ErrorDepth(2+depthOffset, line)
	default:
		glog.InfoDepth(2+depthOffset, line)
	}
}

// CallSite returns a "file:line" string for the caller `skip` frames above
// this function. Used by sklog and by skerr to annotate stack frames.
func CallSite(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "???:0"
	}
	if idx := strings.LastIndex(file, "/"); idx >= 0 {
		file = file[idx+1:]
	}
	return fmt.Sprintf("%s:%d", file, line)
}
