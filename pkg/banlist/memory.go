package banlist

import (
	"sort"
	"sync"

	"github.com/sonicbuilder/sentinel/pkg/unixtime"
)

type MemoryStore struct {
	lock sync.RWMutex

	records map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		lock:    sync.RWMutex{},
		records: make(map[string]Record),
	}
}

func (m *MemoryStore) IsBanned(ip string) bool {
	m.lock.RLock()
	defer m.lock.RUnlock()

	_, ok := m.records[ip]
	return ok
}

func (m *MemoryStore) Find(ip string) (Record, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	if r, ok := m.records[ip]; ok {
		return r, nil
	}

	return Record{}, NotFoundErr
}

func (m *MemoryStore) Ban(ip, reason string) (Record, bool) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if r, ok := m.records[ip]; ok {
		return r, false
	}

	r := Record{
		IP:       ip,
		BannedAt: unixtime.Now(),
		Reason:   reason,
	}
	m.records[ip] = r
	return r, true
}

func (m *MemoryStore) Unban(ip string) bool {
	m.lock.Lock()
	defer m.lock.Unlock()

	if _, ok := m.records[ip]; !ok {
		return false
	}

	delete(m.records, ip)
	return true
}

func (m *MemoryStore) All() []Record {
	m.lock.RLock()
	defer m.lock.RUnlock()

	records := make([]Record, 0, len(m.records))
	for _, r := range m.records {
		records = append(records, r)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].IP < records[j].IP })
	return records
}

func (m *MemoryStore) Len() int {
	m.lock.RLock()
	defer m.lock.RUnlock()

	return len(m.records)
}
