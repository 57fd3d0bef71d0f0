package banlist

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/sonicbuilder/sentinel/pkg/unixtime"
)

// persistedRecord is the on-disk shape of a ban. The file maps IP to record
// so it stays trivially editable by hand for manual unbans.
type persistedRecord struct {
	BannedAt unixtime.Time `json:"banned_at"`
	Reason   string        `json:"reason"`
}

// FileStore is a MemoryStore with write-through JSON persistence: every
// mutation is flushed to disk before the call returns, so a crash never
// loses a ban. A failed write is logged and the in-memory state stays
// authoritative for the rest of the process lifetime.
type FileStore struct {
	path   string
	memory *MemoryStore

	// saveLock serializes snapshot-and-rename so concurrent ban events
	// cannot publish an older snapshot over a newer one.
	saveLock sync.Mutex
}

// NewFileStore loads the ban file at path. A missing or malformed file
// starts an empty store; corrupt state must never prevent startup.
func NewFileStore(path string) *FileStore {
	f := &FileStore{
		path:   path,
		memory: NewMemoryStore(),
	}

	if err := f.read(); err != nil {
		log.Printf("ignoring unreadable ban file %v: %v\n", path, err)
	}

	return f
}

func (f *FileStore) read() error {
	if _, err := os.Stat(f.path); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	buf, err := os.ReadFile(f.path)
	if err != nil {
		return errors.Wrap(err, "failed to open ban file")
	}

	data := make(map[string]persistedRecord)
	if err := json.Unmarshal(buf, &data); err != nil {
		return errors.Wrap(err, "failed to decode ban file")
	}

	f.memory.lock.Lock()
	defer f.memory.lock.Unlock()
	for ip, r := range data {
		f.memory.records[ip] = Record{
			IP:       ip,
			BannedAt: r.BannedAt,
			Reason:   r.Reason,
		}
	}

	return nil
}

// Save writes the full store to disk. The write goes to a temp file in the
// same directory followed by a rename, so a crash mid-write cannot leave a
// truncated ban file behind.
func (f *FileStore) Save() error {
	f.saveLock.Lock()
	defer f.saveLock.Unlock()

	f.memory.lock.RLock()
	data := make(map[string]persistedRecord, len(f.memory.records))
	for ip, r := range f.memory.records {
		data[ip] = persistedRecord{BannedAt: r.BannedAt, Reason: r.Reason}
	}
	f.memory.lock.RUnlock()

	buf, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode ban file")
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".tmp")
	if err != nil {
		return errors.Wrap(err, "failed to create temp ban file")
	}

	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.Wrap(err, "failed to write temp ban file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(err, "failed to close temp ban file")
	}

	return errors.Wrap(os.Rename(tmp.Name(), f.path), "failed to replace ban file")
}

func (f *FileStore) save() {
	if err := f.Save(); err != nil {
		log.Printf("error occurred while saving ban file: %v\n", err)
	}
}

func (f *FileStore) IsBanned(ip string) bool {
	return f.memory.IsBanned(ip)
}

func (f *FileStore) Find(ip string) (Record, error) {
	return f.memory.Find(ip)
}

func (f *FileStore) Ban(ip, reason string) (Record, bool) {
	r, created := f.memory.Ban(ip, reason)
	if created {
		f.save()
	}
	return r, created
}

func (f *FileStore) Unban(ip string) bool {
	removed := f.memory.Unban(ip)
	if removed {
		f.save()
	}
	return removed
}

func (f *FileStore) All() []Record {
	return f.memory.All()
}

func (f *FileStore) Len() int {
	return f.memory.Len()
}
