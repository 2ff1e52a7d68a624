// Package logger provides crash capture for kindred. A recovered panic
// is written as a JSON crash log under the app data directory so the
// terminal shows a short notice instead of a raw stack trace.
package logger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
	"time"
)

const (
	// CrashLogDir is the crash log directory under the app data dir.
	CrashLogDir = "crash_logs"

	// MaxCrashLogs bounds how many crash logs are kept on disk.
	MaxCrashLogs = 10
)

// crashContext accumulates the state a crash log snapshots.
type crashContext struct {
	mu        sync.RWMutex
	basePath  string
	version   string
	command   string
	requestID string
}

var globalContext = &crashContext{}

// SetBasePath points crash logs at the app data directory
// (typically ~/.kindred).
func SetBasePath(path string) {
	globalContext.mu.Lock()
	defer globalContext.mu.Unlock()
	globalContext.basePath = path
}

// SetVersion records the build version stamped on crash logs.
func SetVersion(version string) {
	globalContext.mu.Lock()
	defer globalContext.mu.Unlock()
	globalContext.version = version
}

// SetCommand records the command line being executed.
func SetCommand(cmd string) {
	globalContext.mu.Lock()
	defer globalContext.mu.Unlock()
	globalContext.command = cmd
}

// SetRequestID records the correlation ID of the analysis in flight,
// so a crash can be matched against structured log output.
func SetRequestID(id string) {
	globalContext.mu.Lock()
	defer globalContext.mu.Unlock()
	globalContext.requestID = id
}

// CrashLog is the JSON document written for one recovered panic.
type CrashLog struct {
	Timestamp  time.Time `json:"timestamp"`
	Version    string    `json:"version"`
	Command    string    `json:"command"`
	RequestID  string    `json:"request_id,omitempty"`
	PanicValue string    `json:"panic_value"`
	StackTrace string    `json:"stack_trace"`
	GoVersion  string    `json:"go_version"`
	OS         string    `json:"os"`
	Arch       string    `json:"arch"`
}

// HandlePanic recovers a panic, persists a crash log, prints a short
// notice, and exits non-zero.
// Usage: defer logger.HandlePanic()
func HandlePanic() {
	if r := recover(); r != nil {
		log := newCrashLog(r)
		if err := writeCrashLog(log); err != nil {
			fmt.Fprintf(os.Stderr, "\n[crash] failed to write crash log: %v\n", err)
			fmt.Fprintf(os.Stderr, "[crash] panic: %v\n%s\n", r, debug.Stack())
		} else {
			fmt.Fprintf(os.Stderr, "\nkindred hit an unexpected error.\n")
			fmt.Fprintf(os.Stderr, "A crash log was saved to:\n  %s\n\n", crashLogPath(log.Timestamp))
			fmt.Fprintf(os.Stderr, "Please report it at:\n  https://github.com/seedwise/kindred/issues\n\n")
		}

		os.Exit(1)
	}
}

func newCrashLog(panicValue any) CrashLog {
	globalContext.mu.RLock()
	defer globalContext.mu.RUnlock()

	return CrashLog{
		Timestamp:  time.Now(),
		Version:    globalContext.version,
		Command:    globalContext.command,
		RequestID:  globalContext.requestID,
		PanicValue: fmt.Sprintf("%v", panicValue),
		StackTrace: string(debug.Stack()),
		GoVersion:  runtime.Version(),
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
	}
}

func writeCrashLog(log CrashLog) error {
	dir := crashLogDir()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create crash log dir: %w", err)
	}

	// Pruning failures must not block the write itself.
	if err := pruneCrashLogs(dir); err != nil {
		fmt.Fprintf(os.Stderr, "[warn] failed to prune old crash logs: %v\n", err)
	}

	data, err := json.MarshalIndent(log, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal crash log: %w", err)
	}

	if err := os.WriteFile(crashLogPath(log.Timestamp), data, 0644); err != nil {
		return fmt.Errorf("write crash log: %w", err)
	}

	return nil
}

func crashLogDir() string {
	globalContext.mu.RLock()
	basePath := globalContext.basePath
	globalContext.mu.RUnlock()

	if basePath == "" {
		basePath = ".kindred"
	}

	return filepath.Join(basePath, CrashLogDir)
}

func crashLogPath(t time.Time) string {
	filename := fmt.Sprintf("crash_%s.json", t.Format("20060102_150405"))
	return filepath.Join(crashLogDir(), filename)
}

// pruneCrashLogs deletes the oldest logs past MaxCrashLogs. The
// timestamped names sort chronologically, and os.ReadDir returns
// entries sorted by name, so the head of the list is the oldest.
func pruneCrashLogs(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var logs []os.DirEntry
	for _, e := range entries {
		if !e.IsDir() && isCrashLogName(e.Name()) {
			logs = append(logs, e)
		}
	}

	if len(logs) < MaxCrashLogs {
		return nil
	}

	// Leave room for the log about to be written.
	toRemove := len(logs) - MaxCrashLogs + 1
	for i := range toRemove {
		path := filepath.Join(dir, logs[i].Name())
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("remove old crash log %s: %w", logs[i].Name(), err)
		}
	}

	return nil
}

func isCrashLogName(name string) bool {
	return strings.HasPrefix(name, "crash_") && strings.HasSuffix(name, ".json")
}

// ListCrashLogs returns the paths of all crash logs, oldest first.
func ListCrashLogs() ([]string, error) {
	dir := crashLogDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var logs []string
	for _, e := range entries {
		if !e.IsDir() && isCrashLogName(e.Name()) {
			logs = append(logs, filepath.Join(dir, e.Name()))
		}
	}

	return logs, nil
}

// ReadCrashLog parses one crash log file.
func ReadCrashLog(path string) (*CrashLog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var log CrashLog
	if err := json.Unmarshal(data, &log); err != nil {
		return nil, fmt.Errorf("parse crash log: %w", err)
	}
	return &log, nil
}
