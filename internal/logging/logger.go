// Package logging provides categorized structured logging for evoforge.
// Log output goes to a single file under <dir>/logs with a category field
// on every entry. When disabled, every call is a cheap no-op.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category identifies the subsystem emitting a log entry.
type Category string

const (
	CategoryBoot      Category = "boot"      // Startup and shutdown
	CategoryEngine    Category = "engine"    // Orchestrator and task lifecycle
	CategoryAgent     Category = "agent"     // Model backend calls
	CategoryPrompt    Category = "prompt"    // Prompt assembly and budgets
	CategoryParse     Category = "parse"     // Response parsing
	CategoryEvaluate  Category = "evaluate"  // Evaluator runs
	CategoryCoherence Category = "coherence" // Stability tracking
	CategoryResidue   Category = "residue"   // Residue collection
	CategoryStore     Category = "store"     // Artifact and residue persistence
	CategoryBlueprint Category = "blueprint" // Blueprint loading
)

// Config controls logger behaviour. Zero value is a disabled logger.
type Config struct {
	Enabled bool
	Level   string // debug, info, warn, error
	Dir     string // directory for the log file; empty logs to stderr
	JSON    bool   // structured JSON output instead of console encoding
}

var (
	mu      sync.RWMutex
	root    *zap.SugaredLogger
	loggers = make(map[Category]*Logger)
)

// Logger is a category-scoped wrapper over the shared zap logger.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

// Initialize builds the shared zap logger from config. Safe to call once at
// startup; subsequent calls replace the backend and drop cached loggers.
func Initialize(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	loggers = make(map[Category]*Logger)
	if !cfg.Enabled {
		root = nil
		return nil
	}

	level := zapcore.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn", "warning":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var encoder zapcore.Encoder
	if cfg.JSON {
		encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	sink := zapcore.AddSync(os.Stderr)
	if cfg.Dir != "" {
		logsDir := filepath.Join(cfg.Dir, "logs")
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			return fmt.Errorf("failed to create logs directory: %w", err)
		}
		name := fmt.Sprintf("evoforge_%s.log", time.Now().Format("2006-01-02"))
		f, err := os.OpenFile(filepath.Join(logsDir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		sink = zapcore.AddSync(f)
	}

	core := zapcore.NewCore(encoder, sink, level)
	root = zap.New(core).Sugar()
	return nil
}

// Sync flushes buffered log entries. Call at shutdown.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if root != nil {
		_ = root.Sync()
	}
}

// Get returns (or creates) the logger for a category.
// Returns a no-op logger when logging is disabled.
func Get(category Category) *Logger {
	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	r := root
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}
	l := &Logger{category: category}
	if r != nil {
		l.sugar = r.With("cat", string(category))
	}
	loggers[category] = l
	return l
}

func (l *Logger) Debug(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Debugf(format, args...)
}

func (l *Logger) Info(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Infof(format, args...)
}

func (l *Logger) Warn(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Warnf(format, args...)
}

func (l *Logger) Error(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Errorf(format, args...)
}

// With returns a logger carrying extra structured key-value context.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	if l.sugar == nil {
		return l
	}
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

// Convenience functions for the hot categories.

func Boot(format string, args ...interface{})   { Get(CategoryBoot).Info(format, args...) }
func Engine(format string, args ...interface{}) { Get(CategoryEngine).Info(format, args...) }
func EngineDebug(format string, args ...interface{}) {
	Get(CategoryEngine).Debug(format, args...)
}
func Agent(format string, args ...interface{}) { Get(CategoryAgent).Info(format, args...) }
func AgentDebug(format string, args ...interface{}) {
	Get(CategoryAgent).Debug(format, args...)
}
func Evaluate(format string, args ...interface{})  { Get(CategoryEvaluate).Info(format, args...) }
func Coherence(format string, args ...interface{}) { Get(CategoryCoherence).Info(format, args...) }
func Residue(format string, args ...interface{})   { Get(CategoryResidue).Info(format, args...) }

// Timer measures an operation's duration and logs it on Stop.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation.
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration at debug level.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}
