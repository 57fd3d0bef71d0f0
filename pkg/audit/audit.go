// Package audit keeps a persisted trail of security-relevant events.
package audit

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sonicbuilder/sentinel/pkg/unixtime"
)

// maxEntries bounds the trail so the file rewrite per event stays cheap.
const maxEntries = 1000

type Entry struct {
	ID        string        `json:"id"`
	Timestamp unixtime.Time `json:"timestamp"`
	IP        string        `json:"ip"`
	Event     string        `json:"event"`
	Detail    string        `json:"detail"`
}

// Log is an append-only audit trail with write-through persistence. Like
// the ban store, a write failure is logged and never surfaced to the
// request that produced the event.
type Log struct {
	lock    sync.Mutex
	path    string
	entries []Entry

	nowFunc func() time.Time
}

// Open loads the trail at path. A missing or malformed file starts an
// empty trail.
func Open(path string) *Log {
	l := &Log{
		path:    path,
		nowFunc: time.Now,
	}

	if err := l.read(); err != nil {
		log.Printf("ignoring unreadable audit file %v: %v\n", path, err)
	}

	return l
}

func (l *Log) read() error {
	if _, err := os.Stat(l.path); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	buf, err := os.ReadFile(l.path)
	if err != nil {
		return errors.Wrap(err, "failed to open audit file")
	}

	var entries []Entry
	if err := json.Unmarshal(buf, &entries); err != nil {
		return errors.Wrap(err, "failed to decode audit file")
	}

	l.entries = entries
	return nil
}

func (l *Log) save() error {
	buf, err := json.MarshalIndent(l.entries, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode audit file")
	}

	tmp, err := os.CreateTemp(filepath.Dir(l.path), filepath.Base(l.path)+".tmp")
	if err != nil {
		return errors.Wrap(err, "failed to create temp audit file")
	}

	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.Wrap(err, "failed to write temp audit file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(err, "failed to close temp audit file")
	}

	return errors.Wrap(os.Rename(tmp.Name(), l.path), "failed to replace audit file")
}

// Record appends an event to the trail and persists it.
func (l *Log) Record(event, ip, detail string) Entry {
	l.lock.Lock()
	defer l.lock.Unlock()

	e := Entry{
		ID:        uuid.NewString(),
		Timestamp: unixtime.Time(l.nowFunc()),
		IP:        ip,
		Event:     event,
		Detail:    detail,
	}

	l.entries = append(l.entries, e)
	if len(l.entries) > maxEntries {
		l.entries = l.entries[len(l.entries)-maxEntries:]
	}

	if err := l.save(); err != nil {
		log.Printf("error occurred while saving audit file: %v\n", err)
	}

	log.Printf("[audit] %v from %v: %v\n", event, ip, detail)
	return e
}

// Tail returns the most recent n entries, oldest first.
func (l *Log) Tail(n int) []Entry {
	l.lock.Lock()
	defer l.lock.Unlock()

	if n > len(l.entries) {
		n = len(l.entries)
	}

	res := make([]Entry, n)
	copy(res, l.entries[len(l.entries)-n:])
	return res
}

// Len returns the number of retained entries.
func (l *Log) Len() int {
	l.lock.Lock()
	defer l.lock.Unlock()

	return len(l.entries)
}
