package sessionlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"
)

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// FileName is the JSONL file a session is written to. The session id keeps
// two sessions of one room that start in the same second apart.
func FileName(room, session string, started time.Time) string {
	if len(session) > 8 {
		session = session[:8]
	}
	return fmt.Sprintf("session_%s_%s_%s.jsonl",
		unsafeName.ReplaceAllString(room, "_"),
		started.UTC().Format("20060102_150405"),
		unsafeName.ReplaceAllString(session, "_"))
}

// File appends records as newline-delimited JSON.
type File struct {
	mu   sync.Mutex
	path string
	f    *os.File
	w    *bufio.Writer
	enc  *json.Encoder
}

// Create opens a new session file in dir. An existing file is never reused.
func Create(dir, room, session string, started time.Time) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	path := filepath.Join(dir, FileName(room, session, started))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open session log: %w", err)
	}
	w := bufio.NewWriter(f)
	return &File{path: path, f: f, w: w, enc: json.NewEncoder(w)}, nil
}

func (s *File) Path() string { return s.path }

// Write appends r and flushes so a crash loses at most the line in flight.
func (s *File) Write(r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return os.ErrClosed
	}
	if err := s.enc.Encode(r); err != nil {
		return err
	}
	return s.w.Flush()
}

func (s *File) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.w.Flush()
	if cerr := s.f.Close(); err == nil {
		err = cerr
	}
	s.f = nil
	return err
}

// Decode reads JSONL records. Malformed lines are an error.
func Decode(r io.Reader) ([]Record, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4<<20)
	var out []Record
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, rec)
	}
	return out, sc.Err()
}

// ReadFile loads a session log from disk.
func ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}
