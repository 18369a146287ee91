package logging

import (
	"io"
	"log"
	"os"
	"sync/atomic"
)

var logger = log.New(os.Stderr, "", log.LstdFlags)

var debug atomic.Bool

func init() {
	debug.Store(os.Getenv("DEBUG") != "")
}

// SetOutput redirects all log output, mainly for tests.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

// SetDebug toggles Debugf output.
func SetDebug(on bool) {
	debug.Store(on)
}

func Debugf(format string, v ...any) {
	if !debug.Load() {
		return
	}
	logger.Printf("[DEBUG] "+format, v...)
}

func Infof(format string, v ...any) {
	logger.Printf("[INFO] "+format, v...)
}

func Warnf(format string, v ...any) {
	logger.Printf("[WARN] "+format, v...)
}

func Errorf(format string, v ...any) {
	logger.Printf("[ERROR] "+format, v...)
}

func Fatalf(format string, v ...any) {
	logger.Fatalf("[FATAL] "+format, v...)
}
