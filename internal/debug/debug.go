package debug

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"
)

// Debug levels
const (
	LevelOff     = 0 // No output
	LevelInfo    = 1 // Important info (axes, sweep summaries)
	LevelLive    = 2 // Live info (sweeps started, axes converged)
	LevelVerbose = 3 // Verbose (paths, per-tick duties)
	LevelTrace   = 4 // Trace (every device operation)
)

var (
	level  int
	output io.Writer = os.Stdout
	logger *log.Logger
)

// Init initializes the debug system with a level (0-4).
// 0 = no output
// 1 = important info (axis table, sweep results)
// 2 = live info (sweeps, convergence, aborts)
// 3 = verbose (path parameters, per-tick duties)
// 4 = trace (device gateway calls)
func Init(debugLevel int) {
	level = debugLevel
	if level > LevelOff {
		logger = log.New(output, "[ArmGo] ", log.LstdFlags|log.Lmicroseconds)
	} else {
		logger = nil
	}
}

// SetOutput redirects debug output, e.g. to tee it into the web status stream.
// It must be called after Init to take effect on an enabled logger.
func SetOutput(w io.Writer) {
	output = w
	if logger != nil {
		logger.SetOutput(w)
	}
}

// Level returns the current debug level.
func Level() int {
	return level
}

// IsEnabled returns true if debug level is >= the requested level.
func IsEnabled(minLevel int) bool {
	return level >= minLevel
}

// --- Level 1 functions (Info): important info ---

// Info prints a level 1 message (important info).
func Info(format string, args ...interface{}) {
	if level >= LevelInfo && logger != nil {
		logger.Printf("[INFO] "+format, args...)
	}
}

// Summary prints an important summary (level 1).
func Summary(title string) {
	if level >= LevelInfo && logger != nil {
		logger.Printf("═══════════════════════════════════════")
		logger.Printf("  %s", title)
		logger.Printf("═══════════════════════════════════════")
	}
}

// Sweep prints the outcome of a sweep (level 1).
func Sweep(axes, ticks int, elapsed time.Duration, state string) {
	if level >= LevelInfo && logger != nil {
		logger.Printf("[INFO] Sweep %s: %d axes, %d ticks in %v", state, axes, ticks, elapsed)
	}
}

// --- Level 2 functions (Live): real-time info ---

// Live prints a level 2 message (live info).
func Live(format string, args ...interface{}) {
	if level >= LevelLive && logger != nil {
		logger.Printf("[LIVE] "+format, args...)
	}
}

// Move prints the start of an axis motion (level 2).
func Move(axis string, from, to time.Duration) {
	if level >= LevelLive && logger != nil {
		logger.Printf("[LIVE] Axis %s: sweeping %d ns -> %d ns", axis, from.Nanoseconds(), to.Nanoseconds())
	}
}

// Converged prints an axis reaching its target (level 2).
func Converged(axis string, duty time.Duration, ticks int) {
	if level >= LevelLive && logger != nil {
		logger.Printf("[LIVE] Axis %s: converged at %d ns after %d ticks", axis, duty.Nanoseconds(), ticks)
	}
}

// --- Level 3 functions (Verbose): everything ---

// Verbose prints a level 3 message (verbose).
func Verbose(format string, args ...interface{}) {
	if level >= LevelVerbose && logger != nil {
		logger.Printf("[VERBOSE] "+format, args...)
	}
}

// Print prints a level 3 message (alias for Verbose).
func Print(format string, args ...interface{}) {
	Verbose(format, args...)
}

// Printf is an alias for Print for compatibility.
func Printf(format string, args ...interface{}) {
	Verbose(format, args...)
}

// PrintStruct prints a struct in formatted form (level 3).
func PrintStruct(name string, v interface{}) {
	if level >= LevelVerbose && logger != nil {
		logger.Printf("[VERBOSE] %s: %+v", name, v)
	}
}

// Section prints a section separator (level 3).
func Section(name string) {
	if level >= LevelVerbose && logger != nil {
		logger.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		logger.Printf("  %s", name)
		logger.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	}
}

// Step prints a numbered step (level 3).
func Step(num int, description string) {
	if level >= LevelVerbose && logger != nil {
		logger.Printf("[VERBOSE] Step %d: %s", num, description)
	}
}

// Value prints a named value in formatted form (level 1).
func Value(name string, value interface{}) {
	if level >= LevelInfo && logger != nil {
		logger.Printf("[INFO]   %s = %v", name, value)
	}
}

// Tick prints the duty commanded on one axis during one tick (level 3).
func Tick(tick int, axis string, progress float64, duty time.Duration) {
	if level >= LevelVerbose && logger != nil {
		logger.Printf("[VERBOSE] tick %d axis %s progress=%.4f duty=%d", tick, axis, progress, duty.Nanoseconds())
	}
}

// --- Level 4 functions (Trace): very low level ---

// Trace prints a level 4 message (trace, device).
func Trace(format string, args ...interface{}) {
	if level >= LevelTrace && logger != nil {
		logger.Printf("[TRACE] "+format, args...)
	}
}

// Device prints a device gateway operation (level 4).
func Device(operation string, index int, value interface{}) {
	if level >= LevelTrace && logger != nil {
		logger.Printf("[DEVICE] %s axis=%d value=%v", operation, index, value)
	}
}

// --- General functions ---

// Error prints a debug error (level 1+).
func Error(err error) {
	if level >= LevelInfo && logger != nil {
		logger.Printf("[ERROR] %v", err)
	}
}

// Fmt is a helper function that returns a formatted string
// only if debug is enabled (to avoid unnecessary allocations).
func Fmt(format string, args ...interface{}) string {
	if level > 0 {
		return fmt.Sprintf(format, args...)
	}
	return ""
}
