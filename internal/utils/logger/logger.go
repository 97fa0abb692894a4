package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the verbosity and the optional file that console output is teed to.
type Config struct {
	Level    string
	FilePath string
}

type swappableSyncer struct {
	mu     sync.RWMutex
	writer io.Writer
}

func (s *swappableSyncer) Write(p []byte) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.writer == nil {
		return len(p), nil
	}
	return s.writer.Write(p)
}

func (s *swappableSyncer) Sync() error {
	return nil
}

var (
	sugarLogger   *zap.SugaredLogger
	rootLogger    *zap.Logger // without the run tag
	baseLogger    *zap.Logger
	atomicLevel   zap.AtomicLevel
	once          sync.Once
	mu            sync.RWMutex
	logFile       *os.File
	currentConfig Config
	runID         string
	stderrSyncer  = &swappableSyncer{writer: os.Stderr}
)

func applyConfig(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	level := parseLevel(cfg.Level)
	if atomicLevel == (zap.AtomicLevel{}) {
		atomicLevel = zap.NewAtomicLevelAt(level)
	} else {
		atomicLevel.SetLevel(level)
	}

	encoderCfg := zap.NewDevelopmentConfig().EncoderConfig
	encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeCaller = zapcore.ShortCallerEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), zapcore.AddSync(stderrSyncer), atomicLevel),
	}

	filePath := strings.TrimSpace(cfg.FilePath)
	if filePath != "" {
		fileCore, handle, err := openFileCore(encoderCfg, filePath)
		if err != nil {
			return err
		}
		if logFile != nil && logFile != handle {
			_ = logFile.Close()
		}
		logFile = handle
		cores = append(cores, fileCore)
	} else if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}

	rootLogger = zap.New(zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.DPanicLevel),
	)
	tagRun()

	currentConfig = Config{Level: level.String(), FilePath: filePath}
	return nil
}

// openFileCore opens the tee file. Like the per-step logs, it is truncated on every run.
func openFileCore(encoderCfg zapcore.EncoderConfig, path string) (zapcore.Core, *os.File, error) {
	cleaned := filepath.Clean(path)
	if dir := filepath.Dir(cleaned); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("creating log directory %q: %w", dir, err)
		}
	}

	file, err := os.OpenFile(cleaned, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file %q: %w", cleaned, err)
	}

	plain := encoderCfg
	plain.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewCore(zapcore.NewConsoleEncoder(plain), zapcore.AddSync(file), atomicLevel), file, nil
}

// InitWithConfig installs the process logger. Calling it again with a different
// configuration reconfigures the existing logger in place.
func InitWithConfig(cfg Config) (*zap.SugaredLogger, func(), error) {
	requested := Config{Level: parseLevel(cfg.Level).String(), FilePath: strings.TrimSpace(cfg.FilePath)}

	var initErr error
	initializedHere := false
	once.Do(func() {
		initErr = applyConfig(cfg)
		initializedHere = true
	})
	if initErr != nil {
		return nil, nil, fmt.Errorf("logger initialization failed: %w", initErr)
	}

	if !initializedHere {
		mu.RLock()
		same := currentConfig == requested
		mu.RUnlock()
		if !same {
			if err := applyConfig(cfg); err != nil {
				return nil, nil, fmt.Errorf("logger reconfiguration failed: %w", err)
			}
		}
	}

	mu.RLock()
	sugar := sugarLogger
	mu.RUnlock()
	return sugar, cleanupFunc(), nil
}

// InitWithLevel is InitWithConfig without a tee file. It panics on failure since
// nothing useful can run without a logger.
func InitWithLevel(level string) (*zap.SugaredLogger, func()) {
	sugar, cleanup, err := InitWithConfig(Config{Level: level})
	if err != nil {
		panic(fmt.Sprintf("logger initialization failed: %v", err))
	}
	return sugar, cleanup
}

// Logger returns the process logger, initializing it at info level on first use.
func Logger() *zap.SugaredLogger {
	once.Do(func() {
		if err := applyConfig(Config{Level: "info"}); err != nil {
			panic(fmt.Sprintf("logger initialization failed: %v", err))
		}
	})

	mu.RLock()
	defer mu.RUnlock()
	return sugarLogger
}

// WithRun tags every later entry of the process logger with the id of the
// current invocation, so the lines of one command can be told apart in a
// shared log file. It returns the tagged logger.
func WithRun(id string) *zap.SugaredLogger {
	Logger()

	mu.Lock()
	defer mu.Unlock()
	runID = id
	tagRun()
	return sugarLogger
}

// tagRun derives the process logger from rootLogger. mu must be held.
func tagRun() {
	baseLogger = rootLogger
	if runID != "" {
		baseLogger = rootLogger.With(zap.String("run", runID))
	}
	sugarLogger = baseLogger.Sugar()
	zap.ReplaceGlobals(baseLogger)
}

func cleanupFunc() func() {
	mu.RLock()
	current := logFile
	mu.RUnlock()

	return func() {
		mu.Lock()
		defer mu.Unlock()

		if baseLogger != nil {
			_ = baseLogger.Sync()
		}
		if current != nil {
			if err := current.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "error closing log file: %v\n", err)
			}
			if logFile == current {
				logFile = nil
			}
		}
	}
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// SetLogLevel changes the level of an initialized logger.
func SetLogLevel(level string) {
	mu.Lock()
	defer mu.Unlock()

	if atomicLevel == (zap.AtomicLevel{}) {
		return
	}
	newLevel := parseLevel(level)
	atomicLevel.SetLevel(newLevel)
	currentConfig.Level = newLevel.String()
}

// ReplaceStderrWriter redirects console output, returning the previous writer.
// Tests use it to capture what an operator would see.
func ReplaceStderrWriter(w io.Writer) io.Writer {
	if w == nil {
		w = os.Stderr
	}

	stderrSyncer.mu.Lock()
	defer stderrSyncer.mu.Unlock()

	old := stderrSyncer.writer
	if old == nil {
		old = os.Stderr
	}
	stderrSyncer.writer = w
	return old
}
