// Package fs provides the ambient logging façade shared by every package
// in this module, in the style of rclone's top-level fs package: callers
// pass the object the message is about as the first argument so the
// formatted line can be prefixed with it, and the actual level filtering
// and formatting is delegated to logrus.
package fs

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Level controls which of Debugf/Infof/Errorf actually print.
type Level int

// Log levels, least to most severe.
const (
	LevelDebug Level = iota
	LevelInfo
	LevelNotice
	LevelError
)

var (
	log          = logrus.New()
	currentLevel = LevelNotice
)

func init() {
	// Level filtering is done by currentLevel alone; let logrus pass
	// everything through, including Debugf.
	log.SetLevel(logrus.DebugLevel)
	log.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: false,
		FullTimestamp:    true,
	})
}

// SetLevel adjusts the minimum level that will be emitted.
func SetLevel(l Level) {
	currentLevel = l
}

// SetOutput is exposed for tests that want to capture log output.
func SetOutput(w interface{ Write([]byte) (int, error) }) {
	log.SetOutput(w)
}

func prefix(o any) string {
	if o == nil {
		return ""
	}
	if s, ok := o.(string); ok && s != "" {
		return s + ": "
	}
	if type_, ok := o.(interface{ String() string }); ok {
		return type_.String() + ": "
	}
	return fmt.Sprintf("%v: ", o)
}

// Debugf logs a trace-level message about o. Silent unless LevelDebug is set.
func Debugf(o any, format string, args ...any) {
	if currentLevel > LevelDebug {
		return
	}
	log.Debugf(prefix(o)+format, args...)
}

// Infof logs an informational message about o.
func Infof(o any, format string, args ...any) {
	if currentLevel > LevelInfo {
		return
	}
	log.Infof(prefix(o)+format, args...)
}

// Noticef logs a message that is shown by default but is not an error.
func Noticef(o any, format string, args ...any) {
	if currentLevel > LevelNotice {
		return
	}
	log.Infof(prefix(o)+format, args...)
}

// Errorf logs an error about o. Always shown.
func Errorf(o any, format string, args ...any) {
	log.Errorf(prefix(o)+format, args...)
}

// Fatalf logs an error about o and terminates the process. Reserved for
// conditions the core itself classifies as fatal (see fs/fserrors).
func Fatalf(o any, format string, args ...any) {
	log.Fatalf(prefix(o)+format, args...)
}
