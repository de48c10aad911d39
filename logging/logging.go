// Package logging provides leveled console output for optimization runs.
// Lines are human-oriented; published results are the durable record.
package logging

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents log severity.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// levelPriority maps levels to numeric priority for filtering.
var levelPriority = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// ParseLevel converts a case-insensitive level name. Unknown names fall back
// to INFO and report false.
func ParseLevel(name string) (Level, bool) {
	level := Level(strings.ToUpper(strings.TrimSpace(name)))
	if _, ok := levelPriority[level]; ok {
		return level, true
	}
	return LevelInfo, false
}

// Logger writes leveled lines. Loggers derived with WithComponent or
// WithRank share the parent's writer and lock.
type Logger struct {
	mu        *sync.Mutex
	output    io.Writer
	minLevel  Level
	component string
	rank      int
}

// New creates a Logger writing INFO and above to stdout.
func New() *Logger {
	return &Logger{
		mu:       &sync.Mutex{},
		output:   os.Stdout,
		minLevel: LevelInfo,
		rank:     -1,
	}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	l := New()
	l.output = io.Discard
	l.minLevel = LevelError
	return l
}

func (l *Logger) clone() *Logger {
	return &Logger{
		mu:        l.mu,
		output:    l.output,
		minLevel:  l.minLevel,
		component: l.component,
		rank:      l.rank,
	}
}

// WithComponent returns a new logger with the given component name.
func (l *Logger) WithComponent(component string) *Logger {
	c := l.clone()
	c.component = component
	return c
}

// WithRank returns a new logger that tags every line with a worker rank.
func (l *Logger) WithRank(rank int) *Logger {
	c := l.clone()
	c.rank = rank
	return c
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level Level) {
	l.minLevel = level
}

// Level returns the minimum log level.
func (l *Logger) Level() Level {
	return l.minLevel
}

// SetOutput sets the output writer (default: stdout).
func (l *Logger) SetOutput(w io.Writer) {
	l.output = w
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	l.log(LevelDebug, msg, fields...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	l.log(LevelInfo, msg, fields...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	l.log(LevelWarn, msg, fields...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	l.log(LevelError, msg, fields...)
}

// formatFields formats fields as key=value pairs in key order.
func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	return " " + strings.Join(parts, " ")
}

// log writes: LEVEL TIMESTAMP [component] message key=value ...
func (l *Logger) log(level Level, msg string, fields ...map[string]interface{}) {
	if levelPriority[level] < levelPriority[l.minLevel] {
		return
	}

	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")

	merged := make(map[string]interface{})
	if len(fields) > 0 {
		for k, v := range fields[0] {
			merged[k] = v
		}
	}
	if l.rank >= 0 {
		merged["rank"] = l.rank
	}
	fieldStr := formatFields(merged)

	var line string
	if l.component != "" {
		line = fmt.Sprintf("%-5s %s [%s] %s%s\n", level, timestamp, l.component, msg, fieldStr)
	} else {
		line = fmt.Sprintf("%-5s %s %s%s\n", level, timestamp, msg, fieldStr)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.output.Write([]byte(line))
}

// --- Engine events ---

// RunStart logs the start of an optimization run.
func (l *Logger) RunStart(mode string, iterations, workers int) {
	l.Info("run_start", map[string]interface{}{
		"mode":       mode,
		"iterations": iterations,
		"workers":    workers,
	})
}

// RunComplete logs the end of an optimization run.
func (l *Logger) RunComplete(mode string, minimum float64, poolSize int, duration time.Duration) {
	l.Info("run_complete", map[string]interface{}{
		"mode":      mode,
		"minimum":   minimum,
		"pool_size": poolSize,
		"duration":  duration.String(),
	})
}

// RoundComplete logs the decision of one round.
func (l *Logger) RoundComplete(round, poolSize, index int, score float64) {
	l.Debug("round_complete", map[string]interface{}{
		"round":     round,
		"pool_size": poolSize,
		"index":     index,
		"score":     score,
	})
}

// DegenerateDomain logs a seed region that cannot be refined.
func (l *Logger) DegenerateDomain(lowX, highX, lowY, highY float64) {
	l.Warn("degenerate_domain", map[string]interface{}{
		"low_x":  lowX,
		"high_x": highX,
		"low_y":  lowY,
		"high_y": highY,
	})
}

// CollectiveFailure logs a failed collective call. The run aborts after it.
func (l *Logger) CollectiveFailure(op string, seq uint64, err error) {
	l.Error("collective_failure", map[string]interface{}{
		"op":    op,
		"seq":   seq,
		"error": err.Error(),
	})
}

// PhaseStart logs the start of a lifecycle phase.
func (l *Logger) PhaseStart(task, phase string) {
	l.Debug("phase_start", map[string]interface{}{
		"task":  task,
		"phase": phase,
	})
}

// PhaseComplete logs the end of a lifecycle phase.
func (l *Logger) PhaseComplete(task, phase string, duration time.Duration, err error) {
	fields := map[string]interface{}{
		"task":     task,
		"phase":    phase,
		"duration": duration.String(),
	}
	if err != nil {
		fields["error"] = err.Error()
		l.Error("phase_failed", fields)
		return
	}
	l.Debug("phase_complete", fields)
}
