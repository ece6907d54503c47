package logx

import (
	"fmt"
	"os"
	"sync"
)

const (
	defaultMaxBytes = 1 << 20
	defaultBackups  = 3
)

// rotatingFile is an append-only file that shifts itself to <path>.1 once it
// grows past maxBytes. Older backups move up by one; the oldest is dropped.
type rotatingFile struct {
	mu       sync.Mutex
	path     string
	maxBytes int64
	backups  int

	f    *os.File
	size int64
}

func openRotatingFile(path string, maxBytes int64, backups int) (*rotatingFile, error) {
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	if backups < 0 {
		backups = 0
	} else if backups == 0 {
		backups = defaultBackups
	}
	r := &rotatingFile{path: path, maxBytes: maxBytes, backups: backups}
	if err := r.open(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *rotatingFile) open() error {
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return err
	}
	r.f = f
	r.size = st.Size()
	return nil
}

func (r *rotatingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return 0, os.ErrClosed
	}
	if r.size > 0 && r.size+int64(len(p)) > r.maxBytes {
		if err := r.rotateLocked(); err != nil {
			// Keep writing to the current file rather than losing the line.
			fmt.Fprintf(os.Stderr, "logx: rotate %q failed: %v\n", r.path, err)
		}
	}
	n, err := r.f.Write(p)
	r.size += int64(n)
	return n, err
}

func (r *rotatingFile) rotateLocked() error {
	if err := r.f.Close(); err != nil {
		return err
	}
	r.f = nil
	for i := r.backups - 1; i >= 1; i-- {
		src := fmt.Sprintf("%s.%d", r.path, i)
		if _, err := os.Stat(src); err == nil {
			_ = os.Rename(src, fmt.Sprintf("%s.%d", r.path, i+1))
		}
	}
	if r.backups > 0 {
		_ = os.Rename(r.path, r.path+".1")
	} else {
		_ = os.Remove(r.path)
	}
	return r.open()
}

func (r *rotatingFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return nil
	}
	err := r.f.Close()
	r.f = nil
	return err
}
