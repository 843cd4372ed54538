package logger

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
)

var (
	mu sync.RWMutex

	stdLogger   = log.New(os.Stderr, "", log.Ldate|log.Ltime)
	debugLogger *log.Logger

	DebugEnabled = false

	logFile *os.File
)

// InitLogging sets up logging based on configuration. Info, warning and
// error lines always go to stderr; with debug mode on they are also appended
// to logPath together with debug lines.
func InitLogging(debugMode bool, logPath string) error {
	mu.Lock()
	defer mu.Unlock()

	DebugEnabled = debugMode

	if DebugEnabled && logPath != "" {
		logDir := filepath.Dir(logPath)
		err := os.MkdirAll(logDir, 0o755)
		if err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}

		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}

		logFile = f
		debugLogger = log.New(f, "", log.Ldate|log.Ltime|log.Lshortfile)
	}

	return nil
}

// Close closes the log file if open.
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
		logFile = nil
		debugLogger = nil
	}
}

func printf(level string, always bool, format string, v ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()

	msg := fmt.Sprintf(level+format, v...)
	if always || DebugEnabled {
		stdLogger.Output(3, msg)
	}
	if DebugEnabled && debugLogger != nil {
		debugLogger.Output(3, msg)
	}
}

func Infof(format string, v ...interface{}) {
	printf("[INFO] ", true, format, v...)
}

// Errorf logs an error message to stderr and, in debug mode, to the log file.
func Errorf(format string, v ...interface{}) {
	printf("[ERROR] ", true, format, v...)
}

func Debugf(format string, v ...interface{}) {
	printf("[DEBUG] ", false, format, v...)
}

func Warnf(format string, v ...interface{}) {
	printf("[WARNING] ", true, format, v...)
}
