package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// Logger writes leveled, bracket-prefixed messages ("[*]", "[!]", "[-]",
// "[>]") to the console and, optionally, to per-level files in a directory.
type Logger struct {
	infoLog     *log.Logger
	warningLog  *log.Logger
	errorLog    *log.Logger
	progressLog *log.Logger
	files       []*os.File
	mu          sync.Mutex
}

// New creates a console logger. When logDir is non-empty, info.log,
// warning.log and error.log are appended to in that directory as well.
func New(logDir string) (*Logger, error) {
	return newLogger(os.Stdout, os.Stderr, logDir)
}

// NewWriter logs every level to w. Used in tests and for quiet runs with
// io.Discard.
func NewWriter(w io.Writer) *Logger {
	l, _ := newLogger(w, w, "")
	return l
}

func newLogger(stdout, stderr io.Writer, logDir string) (*Logger, error) {
	l := &Logger{}
	infoW, warningW, errorW := stdout, stdout, stderr

	if logDir != "" {
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		infoF, err := l.openLogFile(filepath.Join(logDir, "info.log"))
		if err != nil {
			return nil, err
		}
		warningF, err := l.openLogFile(filepath.Join(logDir, "warning.log"))
		if err != nil {
			l.Close()
			return nil, err
		}
		errorF, err := l.openLogFile(filepath.Join(logDir, "error.log"))
		if err != nil {
			l.Close()
			return nil, err
		}
		infoW = io.MultiWriter(stdout, infoF)
		warningW = io.MultiWriter(stdout, warningF)
		errorW = io.MultiWriter(stderr, errorF)
	}

	l.infoLog = log.New(infoW, "[*] ", log.Ldate|log.Ltime)
	l.warningLog = log.New(warningW, "[!] ", log.Ldate|log.Ltime)
	l.errorLog = log.New(errorW, "[-] ", log.Ldate|log.Ltime)
	l.progressLog = log.New(stdout, "[>] ", 0)
	return l, nil
}

func (l *Logger) openLogFile(filename string) (*os.File, error) {
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", filename, err)
	}
	l.files = append(l.files, file)
	return file, nil
}

func (l *Logger) Info(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infoLog.Printf(format, v...)
}

func (l *Logger) Warning(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warningLog.Printf(format, v...)
}

func (l *Logger) Error(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errorLog.Printf(format, v...)
}

// Progress reports batch progress. It is console-only.
func (l *Logger) Progress(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.progressLog.Printf(format, v...)
}

// Close releases log files.
func (l *Logger) Close() error {
	var firstErr error
	for _, f := range l.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	l.files = nil
	return firstErr
}
