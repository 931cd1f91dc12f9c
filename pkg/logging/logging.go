// Package logging provides colored, leveled terminal output for the daemon.
package logging

import (
	"fmt"
	"os"
	"sync"

	"github.com/fatih/color"
)

var (
	errorColor    = color.New(color.FgRed, color.Bold)
	warningColor  = color.New(color.FgYellow)
	infoColor     = color.New(color.FgBlue)
	protocolColor = color.New(color.FgCyan, color.Bold)
	debugColor    = color.New(color.FgWhite, color.Faint)

	colorsEnabled = true

	levelMu    sync.RWMutex
	debugLevel int
)

// InitColors enables or disables colored output. NO_COLOR always wins
// (https://no-color.org/).
func InitColors(enabled bool) {
	colorsEnabled = enabled
	if os.Getenv("NO_COLOR") != "" {
		colorsEnabled = false
	}
	color.NoColor = !colorsEnabled
}

// SetLevel sets the global debug level. 0 is quiet, higher levels enable
// per-packet chatter.
func SetLevel(level int) {
	levelMu.Lock()
	defer levelMu.Unlock()
	debugLevel = level
}

// Level returns the global debug level.
func Level() int {
	levelMu.RLock()
	defer levelMu.RUnlock()
	return debugLevel
}

// Error prints an error message in red.
func Error(format string, args ...interface{}) {
	if colorsEnabled {
		errorColor.Printf("ERROR: "+format+"\n", args...)
	} else {
		fmt.Printf("ERROR: "+format+"\n", args...)
	}
}

// Warning prints a warning message in yellow.
func Warning(format string, args ...interface{}) {
	if colorsEnabled {
		warningColor.Printf("WARN: "+format+"\n", args...)
	} else {
		fmt.Printf("WARN: "+format+"\n", args...)
	}
}

// Info prints an info message in blue.
func Info(format string, args ...interface{}) {
	if colorsEnabled {
		infoColor.Printf(format+"\n", args...)
	} else {
		fmt.Printf(format+"\n", args...)
	}
}

// Debug prints a debug message in faint white.
func Debug(format string, args ...interface{}) {
	if colorsEnabled {
		debugColor.Printf(format+"\n", args...)
	} else {
		fmt.Printf(format+"\n", args...)
	}
}

// Protocol prints a message prefixed with the protocol name in cyan.
func Protocol(protocol string, format string, args ...interface{}) {
	if colorsEnabled {
		protocolColor.Printf("[%s] ", protocol)
		fmt.Printf(format+"\n", args...)
	} else {
		fmt.Printf("[%s] "+format+"\n", append([]interface{}{protocol}, args...)...)
	}
}

// ProtocolDebug prints a protocol message when the global level reaches
// minLevel.
func ProtocolDebug(protocol string, minLevel int, format string, args ...interface{}) {
	if Level() >= minLevel {
		Protocol(protocol, format, args...)
	}
}
