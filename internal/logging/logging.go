// Package logging wires the standard logger to a rotating device log file.
package logging

import (
	"io"
	"log"
	"os"

	"github.com/xelth-com/claimsync/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup points the default logger at stderr and, when a log file is
// configured, at a size-rotated file as well. The returned closer flushes
// the rotating writer and is safe to call when no file was configured.
func Setup(cfg config.LogConfig) io.Closer {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if cfg.File == "" {
		log.SetOutput(os.Stderr)
		return io.NopCloser(nil)
	}

	rotator := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, rotator))
	log.Printf("📝 Logging to %s (max %dMB, %d backups)", cfg.File, cfg.MaxSizeMB, cfg.MaxBackups)
	return rotator
}

// OrDefault returns l, or the standard logger when l is nil.
func OrDefault(l *log.Logger) *log.Logger {
	if l == nil {
		return log.Default()
	}
	return l
}
