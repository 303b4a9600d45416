package common

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// crashDir is where crash reports go; set by InstallCrashHandler
var crashDir = "."

// InstallCrashHandler sets the directory crash reports are written to
func InstallCrashHandler(dir string) {
	if dir == "" {
		return
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "CRASH: failed to create crash directory: %v\n", err)
		return
	}
	crashDir = dir
}

// WriteCrashFile writes the panic value and every goroutine's stack to
// vizard-crash-<time>.log and returns its path ("" if it could not be written).
func WriteCrashFile(panicVal interface{}, stack string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "vizard %s crashed at %s\n\n", GetFullVersion(), time.Now().Format(time.RFC3339))
	fmt.Fprintf(&b, "panic: %v\n\n%s\n", panicVal, stack)
	fmt.Fprintf(&b, "goroutines (%d, %d via SafeGo):\n%s\n", runtime.NumGoroutine(), GetGoroutineCount(), allStacks())

	path := filepath.Join(crashDir, fmt.Sprintf("vizard-crash-%s.log", time.Now().Format("20060102-150405")))
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "CRASH: failed to write crash file: %v\n%s", err, b.String())
		return ""
	}

	fmt.Fprintf(os.Stderr, "\n!!! FATAL CRASH - report saved to %s !!!\npanic: %v\n", path, panicVal)
	return path
}

func allStacks() string {
	buf := make([]byte, 64*1024)
	for {
		n := runtime.Stack(buf, true)
		if n < len(buf) || len(buf) >= 16*1024*1024 {
			return string(buf[:n])
		}
		buf = make([]byte, len(buf)*2)
	}
}

// RecoverWithCrashFile writes a crash file and exits when the deferring
// goroutine panics. Usage: defer common.RecoverWithCrashFile()
func RecoverWithCrashFile() {
	if r := recover(); r != nil {
		buf := make([]byte, 8192)
		n := runtime.Stack(buf, false)
		WriteCrashFile(r, string(buf[:n]))
		os.Exit(2)
	}
}
