package logger

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/zeu5/studybreak-rl/config"
)

var (
	log *logrus.Logger
	mu  sync.Mutex
)

// New builds a logger from the configuration.
// Unknown levels fall back to info, unknown formats to text
func New(cfg config.LoggingConfig) *logrus.Logger {
	l := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		l.Warnf("Invalid log level '%s', using 'info'", cfg.Level)
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	switch cfg.Format {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	case "text", "":
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	default:
		l.Warnf("Invalid log format '%s', using 'text'", cfg.Format)
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	l.SetOutput(output(l, cfg.Output))
	return l
}

func output(l *logrus.Logger, out string) io.Writer {
	switch out {
	case "stdout", "":
		return os.Stdout
	case "stderr":
		return os.Stderr
	}
	// file path
	file, err := os.OpenFile(out, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		l.Warnf("Failed to open log file '%s', using stdout", out)
		return os.Stdout
	}
	return file
}

// Initialize sets up the process logger
func Initialize(cfg config.LoggingConfig) *logrus.Logger {
	mu.Lock()
	defer mu.Unlock()
	log = New(cfg)
	return log
}

// GetLogger returns the process logger, a text logger at info level if not initialized
func GetLogger() *logrus.Logger {
	mu.Lock()
	defer mu.Unlock()
	if log == nil {
		log = logrus.New()
		log.SetLevel(logrus.InfoLevel)
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}

// SetLevel changes the level of the process logger, used when the configuration is reloaded
func SetLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	GetLogger().SetLevel(lvl)
	return nil
}

// Component returns an entry tagged with the component name
func Component(name string) *logrus.Entry {
	return GetLogger().WithField("component", name)
}
