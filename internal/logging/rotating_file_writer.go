package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// RotatingFileWriter is a zapcore.WriteSyncer that appends to a file and
// shifts it to path.1, path.2, ... once maxSizeBytes would be exceeded.
type RotatingFileWriter struct {
	mu           sync.Mutex
	path         string
	maxSizeBytes int64
	maxBackups   int
	file         *os.File
	size         int64
}

func NewRotatingFileWriter(path string, maxSizeBytes int64, maxBackups int) (*RotatingFileWriter, error) {
	if path == "" {
		return nil, fmt.Errorf("log path is required")
	}
	if maxSizeBytes <= 0 {
		return nil, fmt.Errorf("maxSizeBytes must be > 0")
	}
	if maxBackups < 0 {
		maxBackups = 0
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	w := &RotatingFileWriter{path: path, maxSizeBytes: maxSizeBytes, maxBackups: maxBackups}
	if err := w.openLocked(os.O_APPEND); err != nil {
		return nil, err
	}
	if w.size > w.maxSizeBytes {
		if err := w.rotateLocked(); err != nil {
			return nil, err
		}
	}
	return w, nil
}

func (w *RotatingFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, os.ErrClosed
	}
	// A single oversized entry still lands in an empty file.
	if w.size > 0 && w.size+int64(len(p)) > w.maxSizeBytes {
		if err := w.rotateLocked(); err != nil {
			return 0, err
		}
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *RotatingFileWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	return w.file.Sync()
}

func (w *RotatingFileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

func (w *RotatingFileWriter) openLocked(mode int) error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|mode, 0o644)
	if err != nil {
		return err
	}
	w.file = f
	w.size = 0
	if stat, err := f.Stat(); err == nil {
		w.size = stat.Size()
	}
	return nil
}

func (w *RotatingFileWriter) rotateLocked() error {
	if w.file != nil {
		if err := w.file.Close(); err != nil {
			return err
		}
		w.file = nil
	}

	if w.maxBackups == 0 {
		if err := os.Remove(w.path); err != nil && !os.IsNotExist(err) {
			return err
		}
	} else if err := w.shiftBackups(); err != nil {
		return err
	}

	return w.openLocked(os.O_TRUNC)
}

func (w *RotatingFileWriter) shiftBackups() error {
	if err := removeIfExists(w.backupPath(w.maxBackups)); err != nil {
		return err
	}
	for idx := w.maxBackups - 1; idx >= 1; idx-- {
		if err := renameIfExists(w.backupPath(idx), w.backupPath(idx+1)); err != nil {
			return err
		}
	}
	return renameIfExists(w.path, w.backupPath(1))
}

func (w *RotatingFileWriter) backupPath(idx int) string {
	return fmt.Sprintf("%s.%d", w.path, idx)
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func renameIfExists(src, dst string) error {
	if _, err := os.Stat(src); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := removeIfExists(dst); err != nil {
		return err
	}
	return os.Rename(src, dst)
}
