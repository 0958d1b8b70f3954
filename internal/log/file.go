package log

import (
	"io"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation limits of NewFileWriter.
const (
	MaxLogSizeMB  = 10
	MaxLogBackups = 3
	MaxLogAgeDays = 28
)

// NewFileWriter returns a writer appending to path. The file is rotated
// at MaxLogSizeMB and old files are compressed and pruned after
// MaxLogBackups files or MaxLogAgeDays days. The parent directory is
// created on first write.
func NewFileWriter(path string) io.WriteCloser {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    MaxLogSizeMB,
		MaxBackups: MaxLogBackups,
		MaxAge:     MaxLogAgeDays,
		Compress:   true,
	}
}
