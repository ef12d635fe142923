package tasklog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/taskhub/taskhub/internal/types"
)

// FileSink appends formatted lines to a path, rotating by size once the
// file exceeds rotateBytes. Rotated siblings are named
// "path.<yyyymmdd-HHMMSS>.<n>"; only the newest maxFiles are kept.
type FileSink struct {
	mu          sync.Mutex
	path        string
	rotateBytes int64
	maxFiles    int
	f           *os.File
	size        int64
	nowFn       func() time.Time
}

// NewFileSink opens (creating if needed) a FileSink at path.
func NewFileSink(path string, rotateBytes int64, maxFiles int) (*FileSink, error) {
	if rotateBytes <= 0 {
		rotateBytes = 10 * 1024 * 1024
	}
	if maxFiles <= 0 {
		maxFiles = 5
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	s := &FileSink{path: path, rotateBytes: rotateBytes, maxFiles: maxFiles, nowFn: time.Now}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileSink) open() error {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file %s: %w", s.path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return err
	}
	s.f = f
	s.size = info.Size()
	return nil
}

// Write implements Sink.
func (s *FileSink) Write(rec types.LogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	line := FormatLine(rec) + "\n"
	if s.size+int64(len(line)) > s.rotateBytes {
		if err := s.rotate(); err != nil {
			return err
		}
	}
	n, err := s.f.WriteString(line)
	s.size += int64(n)
	return err
}

func (s *FileSink) rotate() error {
	if err := s.f.Close(); err != nil {
		return err
	}
	suffix := s.nowFn().Format("20060102-150405")
	rotated := fmt.Sprintf("%s.%s.%d", s.path, suffix, time.Now().UnixNano()%1000)
	if err := renameOrCopy(s.path, rotated); err != nil {
		return err
	}
	if err := s.open(); err != nil {
		return err
	}
	return s.pruneOldRotations()
}

// renameOrCopy renames src to dst, falling back to copy+delete when the
// rename fails because src/dst are on different devices (EXDEV).
func renameOrCopy(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}

func (s *FileSink) pruneOldRotations() error {
	dir := filepath.Dir(s.path)
	base := filepath.Base(s.path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	type rotatedFile struct {
		name  string
		mtime time.Time
	}
	var rotations []rotatedFile
	for _, e := range entries {
		if e.IsDir() || !hasRotationSuffix(e.Name(), base) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		rotations = append(rotations, rotatedFile{e.Name(), info.ModTime()})
	}
	sort.Slice(rotations, func(i, j int) bool { return rotations[i].mtime.After(rotations[j].mtime) })
	for _, r := range rotations[min(len(rotations), s.maxFiles):] {
		_ = os.Remove(filepath.Join(dir, r.name))
	}
	return nil
}

func hasRotationSuffix(name, base string) bool {
	return len(name) > len(base)+1 && name[:len(base)+1] == base+"."
}

// Close flushes and closes the underlying file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}
