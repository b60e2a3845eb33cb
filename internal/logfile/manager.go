// Package logfile persists the sidecar's captured stdout/stderr streams with
// size-based rotation and count-based retention. The supervisor's own
// application log is handled separately (internal/logger); the files here are
// raw sidecar output and follow a timestamped archive layout so operators can
// correlate archives with incidents.
package logfile

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/publr/sidekick/internal/metrics"
)

// Stream selects one of the two captured output streams.
type Stream string

const (
	Stdout Stream = "stdout"
	Stderr Stream = "stderr"
)

// ParseStream validates a stream name coming from an API caller.
func ParseStream(s string) (Stream, error) {
	switch Stream(s) {
	case Stdout, Stderr:
		return Stream(s), nil
	default:
		return "", fmt.Errorf("unknown log stream %q", s)
	}
}

const (
	// DefaultMaxSize is the rotation threshold for an active file.
	DefaultMaxSize = 10 * 1024 * 1024
	// DefaultMaxFiles is how many rotated archives are kept per stream.
	DefaultMaxFiles = 5

	filePrefix = "sidecar-"
	// archiveTimeFormat sorts lexicographically in chronological order.
	archiveTimeFormat = "20060102-150405"
)

// FileInfo describes one on-disk log file (active or archived).
type FileInfo struct {
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// Manager owns the two captured stream files under a single directory.
// All methods are safe for concurrent use; each stream has its own lock so
// stdout writes never wait on stderr rotation.
type Manager struct {
	dir      string
	maxSize  int64
	maxFiles int
	stdout   *streamFile
	stderr   *streamFile
}

// streamFile is one active log file plus its lock. The lock covers writes,
// rotation and truncation so the writer is always swapped atomically.
type streamFile struct {
	mu   sync.Mutex
	base string // file name without extension, e.g. "sidecar-stdout"
	path string
	f    *os.File
	w    *bufio.Writer
	size int64
}

// Option tweaks Manager construction.
type Option func(*Manager)

// WithMaxSize overrides the rotation threshold in bytes.
func WithMaxSize(n int64) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxSize = n
		}
	}
}

// WithMaxFiles overrides how many archives are retained per stream.
func WithMaxFiles(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxFiles = n
		}
	}
}

// New creates the log directory if needed and opens both active files in
// append mode.
func New(dir string, opts ...Option) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, err
	}
	m := &Manager{
		dir:      dir,
		maxSize:  DefaultMaxSize,
		maxFiles: DefaultMaxFiles,
	}
	for _, o := range opts {
		o(m)
	}
	var err error
	if m.stdout, err = openStream(dir, Stdout); err != nil {
		return nil, err
	}
	if m.stderr, err = openStream(dir, Stderr); err != nil {
		_ = m.stdout.close()
		return nil, err
	}
	return m, nil
}

func openStream(dir string, s Stream) (*streamFile, error) {
	base := filePrefix + string(s)
	sf := &streamFile{base: base, path: filepath.Join(dir, base+".log")}
	if err := sf.open(); err != nil {
		return nil, err
	}
	return sf, nil
}

func (sf *streamFile) open() error {
	f, err := os.OpenFile(sf.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return err
	}
	sf.f = f
	sf.w = bufio.NewWriter(f)
	sf.size = st.Size()
	return nil
}

func (sf *streamFile) close() error {
	if sf.w != nil {
		_ = sf.w.Flush()
	}
	if sf.f != nil {
		return sf.f.Close()
	}
	return nil
}

func (m *Manager) stream(s Stream) *streamFile {
	if s == Stderr {
		return m.stderr
	}
	return m.stdout
}

// WriteLine appends one line to the stream and flushes. When the active file
// grows past the size threshold it is rotated before the call returns, under
// the same lock, so no concurrent line is lost or split across files.
func (m *Manager) WriteLine(s Stream, line string) error {
	sf := m.stream(s)
	sf.mu.Lock()
	defer sf.mu.Unlock()

	n, err := sf.w.WriteString(line)
	if err != nil {
		return err
	}
	if err := sf.w.WriteByte('\n'); err != nil {
		return err
	}
	if err := sf.w.Flush(); err != nil {
		return err
	}
	sf.size += int64(n) + 1
	if sf.size > m.maxSize {
		return m.rotateLocked(sf)
	}
	return nil
}

// Rotate forces a rotation of the stream's active file.
func (m *Manager) Rotate(s Stream) error {
	sf := m.stream(s)
	sf.mu.Lock()
	defer sf.mu.Unlock()
	return m.rotateLocked(sf)
}

// rotateLocked renames the active file aside, prunes old archives and reopens
// a fresh active file. Caller holds sf.mu.
func (m *Manager) rotateLocked(sf *streamFile) error {
	if err := sf.close(); err != nil {
		return err
	}
	ts := time.Now().Format(archiveTimeFormat)
	archived := filepath.Join(m.dir, fmt.Sprintf("%s-%s.log", sf.base, ts))
	if _, err := os.Stat(sf.path); err == nil {
		if err := os.Rename(sf.path, archived); err != nil {
			return err
		}
	}
	if err := m.pruneLocked(sf.base); err != nil {
		return err
	}
	metrics.IncLogRotation(strings.TrimPrefix(sf.base, filePrefix))
	return sf.open()
}

// pruneLocked deletes the oldest archives beyond the retention count.
// Caller holds the stream lock.
func (m *Manager) pruneLocked(base string) error {
	archives, err := m.archivesFor(base)
	if err != nil {
		return err
	}
	if len(archives) <= m.maxFiles {
		return nil
	}
	// archivesFor returns oldest first.
	for _, fi := range archives[:len(archives)-m.maxFiles] {
		_ = os.Remove(fi.Path)
	}
	return nil
}

// archivesFor lists rotated files for one stream, oldest first by mtime.
func (m *Manager) archivesFor(base string) ([]FileInfo, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, err
	}
	active := base + ".log"
	var out []FileInfo
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, base) || !strings.HasSuffix(name, ".log") || name == active {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, FileInfo{
			Name:     name,
			Path:     filepath.Join(m.dir, name),
			Size:     info.Size(),
			Modified: info.ModTime(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Modified.Before(out[j].Modified) })
	return out, nil
}

// RecentLines returns the last n lines of the stream's active file. Rotated
// archives are not consulted. A missing file yields an empty slice.
func (m *Manager) RecentLines(s Stream, n int) ([]string, error) {
	sf := m.stream(s)
	sf.mu.Lock()
	_ = sf.w.Flush()
	sf.mu.Unlock()

	f, err := os.Open(sf.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}
	defer func() { _ = f.Close() }()

	if n <= 0 {
		return []string{}, nil
	}
	// Ring buffer keeps memory bounded by n regardless of file size.
	ring := make([]string, n)
	total := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		ring[total%n] = sc.Text()
		total++
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if total < n {
		return append([]string{}, ring[:total]...), nil
	}
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, ring[(total+i)%n])
	}
	return out, nil
}

// ListFiles returns every log file (active and archived) newest first.
func (m *Manager) ListFiles() ([]FileInfo, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, err
	}
	var out []FileInfo
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, ".log") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, FileInfo{
			Name:     name,
			Path:     filepath.Join(m.dir, name),
			Size:     info.Size(),
			Modified: info.ModTime(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Modified.After(out[j].Modified) })
	return out, nil
}

// ClearAll truncates both active files and deletes every archive. It takes the
// same per-stream locks as the writers, so a clear racing an in-flight write
// never tears a line.
func (m *Manager) ClearAll() error {
	m.stdout.mu.Lock()
	defer m.stdout.mu.Unlock()
	m.stderr.mu.Lock()
	defer m.stderr.mu.Unlock()

	for _, sf := range []*streamFile{m.stdout, m.stderr} {
		if err := sf.close(); err != nil {
			return err
		}
		if err := os.Truncate(sf.path, 0); err != nil && !os.IsNotExist(err) {
			return err
		}
		archives, err := m.archivesFor(sf.base)
		if err != nil {
			return err
		}
		for _, fi := range archives {
			_ = os.Remove(fi.Path)
		}
		if err := sf.open(); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes and closes both active files.
func (m *Manager) Close() error {
	m.stdout.mu.Lock()
	err1 := m.stdout.close()
	m.stdout.mu.Unlock()
	m.stderr.mu.Lock()
	err2 := m.stderr.close()
	m.stderr.mu.Unlock()
	if err1 != nil {
		return err1
	}
	return err2
}
