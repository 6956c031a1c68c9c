// Package cleanup guarantees removal of transient artifacts (prompt files,
// response dumps) on every exit path. The registry is an explicit object
// passed through the pipeline rather than ambient global state; Close is
// safe to call from defers and signal handlers and runs exactly once.
package cleanup

import (
	"crypto/rand"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
)

// Registry tracks transient file paths plus well-known glob patterns and
// securely deletes them when closed.
type Registry struct {
	mu    sync.Mutex
	paths []string
	globs []string
	once  sync.Once
}

// NewRegistry creates a registry. Each glob pattern is expanded at close
// time, so artifacts created after registration are still caught.
func NewRegistry(globs ...string) *Registry {
	return &Registry{globs: globs}
}

// Register adds a path for removal at close.
func (r *Registry) Register(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
}

// Close removes every registered artifact and glob match. It runs at most
// once and never panics; deletion failures are logged and swallowed.
func (r *Registry) Close() {
	r.once.Do(func() {
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("[Cleanup] Recovered during close: %v", rec)
			}
		}()

		r.mu.Lock()
		targets := append([]string(nil), r.paths...)
		globs := append([]string(nil), r.globs...)
		r.mu.Unlock()

		for _, pattern := range globs {
			matches, err := filepath.Glob(pattern)
			if err != nil {
				continue
			}
			targets = append(targets, matches...)
		}

		for _, path := range targets {
			secureDelete(path)
		}
	})
}

// TrapSignals installs an interrupt/terminate handler that closes the
// registry, runs onSignal (context cancellation), and exits with the
// conventional 128+signal status.
func (r *Registry) TrapSignals(onSignal func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-ch
		log.Printf("[Cleanup] Received %v, removing transient artifacts", sig)
		if onSignal != nil {
			onSignal()
		}
		r.Close()

		code := 130
		if sig == syscall.SIGTERM {
			code = 143
		}
		os.Exit(code)
	}()
}

// secureDelete overwrites a file with random bytes and then zeros before
// removing it, so transient prompt/response copies do not linger in freed
// blocks. Any step failing degrades to a plain remove. Directories are
// removed recursively without overwrite.
func secureDelete(path string) {
	info, err := os.Lstat(path)
	if err != nil {
		return
	}

	if info.IsDir() {
		if err := os.RemoveAll(path); err != nil {
			log.Printf("[Cleanup] Warning: failed to remove %s: %v", path, err)
		}
		return
	}

	if info.Mode().IsRegular() && info.Size() > 0 {
		overwrite(path, info.Size())
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Printf("[Cleanup] Warning: failed to remove %s: %v", path, err)
	}
}

func overwrite(path string, size int64) {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return
	}
	defer f.Close()

	passes := [][]byte{randomBlock(), make([]byte, 4096)}
	for _, block := range passes {
		if _, err := f.Seek(0, 0); err != nil {
			return
		}
		var written int64
		for written < size {
			n := int64(len(block))
			if remaining := size - written; remaining < n {
				n = remaining
			}
			if _, err := f.Write(block[:n]); err != nil {
				return
			}
			written += n
		}
		_ = f.Sync()
	}
}

func randomBlock() []byte {
	block := make([]byte, 4096)
	if _, err := rand.Read(block); err != nil {
		for i := range block {
			block[i] = byte(i*31 + 7)
		}
	}
	return block
}
