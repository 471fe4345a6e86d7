package logger

import (
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// Frames from these packages are wrapper noise, not call sites.
var callerSkipPrefixes = []string{
	"sirupsen/logrus",
	"tradegate/logger",
}

// callerHook rewrites the caller reported by logrus to the first frame
// outside logrus and this package, so log lines point at the real call
// site instead of a wrapper method.
type callerHook struct{}

func (h *callerHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *callerHook) Fire(entry *logrus.Entry) error {
	pcs := make([]uintptr, 16)
	// Skip runtime.Callers, this method and the logrus fire path itself.
	n := runtime.Callers(6, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if !more {
			break
		}
		if wrapperFrame(frame.Function) {
			continue
		}
		entry.Caller = &frame
		break
	}
	return nil
}

func wrapperFrame(fn string) bool {
	for _, prefix := range callerSkipPrefixes {
		if strings.Contains(fn, prefix) {
			return true
		}
	}
	return false
}
