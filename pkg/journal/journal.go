// Package journal provides append-only destinations for coordinator log
// messages.
package journal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/urmzd/centrald/pkg/protocol"
)

// Sink receives log messages in order.
type Sink interface {
	Append(msg protocol.Message) error
}

// File appends messages to a text file, one per line. Reopen closes and
// reopens the path so an external rotation takes effect.
type File struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// OpenFile opens path for appending, creating it and its directory.
func OpenFile(path string) (*File, error) {
	j := &File{path: path}
	if err := j.open(); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *File) open() error {
	if err := os.MkdirAll(filepath.Dir(j.path), 0755); err != nil {
		return fmt.Errorf("creating journal directory: %w", err)
	}
	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}
	j.f = f
	return nil
}

// Path returns the journal file path.
func (j *File) Path() string {
	return j.path
}

// Append writes one line: timestamp, source, severity name and text.
func (j *File) Append(msg protocol.Message) error {
	line := fmt.Sprintf("%s %s %s %s\n",
		msg.Time.UTC().Format(time.RFC3339Nano), msg.Source, msg.Severity, msg.Text)

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.f == nil {
		return os.ErrClosed
	}
	if _, err := j.f.WriteString(line); err != nil {
		return fmt.Errorf("append journal: %w", err)
	}
	return nil
}

// Reopen closes the current file and opens the path again.
func (j *File) Reopen() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.f != nil {
		if err := j.f.Close(); err != nil {
			return fmt.Errorf("closing journal: %w", err)
		}
		j.f = nil
	}
	return j.open()
}

// Close closes the file. Later appends fail.
func (j *File) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.f == nil {
		return nil
	}
	err := j.f.Close()
	j.f = nil
	return err
}

// Multi fans every message out to all sinks. A failing sink does not stop
// the others; their errors are joined.
type Multi []Sink

// Append implements Sink.
func (m Multi) Append(msg protocol.Message) error {
	var errs []error
	for _, s := range m {
		if err := s.Append(msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
