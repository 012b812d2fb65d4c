package experience

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"os"
	"sort"
	"sync"
	"time"
)

// Options configures a Store.
type Options struct {
	// Desires is the configured vocabulary; records naming desires
	// outside it are rejected.
	Desires map[string]bool
	// BackupInterval is the number of persisted writes between backup
	// copies. Zero means 100.
	BackupInterval int
}

// Store holds every experience record and purpose aggregate in memory
// and persists them as one human-readable JSON file. The file is
// written via temp+rename; a corrupt file is recovered from the most
// recent backup at load.
type Store struct {
	mu       sync.Mutex
	records  []*Record
	purposes map[string]*PurposeAggregate // keyed by purpose hash
	nextID   int64

	path           string
	backupPath     string
	backupInterval int
	writesSince    int
	totalWrites    int

	desires map[string]bool
}

type storeFile struct {
	Metadata struct {
		LastUpdated   time.Time `json:"last_updated"`
		TotalRecords  int       `json:"total_records"`
		TotalPurposes int       `json:"total_purposes"`
	} `json:"metadata"`
	Records  []*Record                    `json:"records"`
	Purposes map[string]*PurposeAggregate `json:"purposes"`
}

// Open loads the store at path, creating an empty one if the file does
// not exist. A file that fails to parse is replaced from its backup;
// if the backup is also unusable the store starts empty and the
// condition is logged.
func Open(path string, opts Options) (*Store, error) {
	if opts.BackupInterval <= 0 {
		opts.BackupInterval = 100
	}
	s := &Store{
		purposes:       make(map[string]*PurposeAggregate),
		nextID:         1,
		path:           path,
		backupPath:     path + ".bak",
		backupInterval: opts.BackupInterval,
		desires:        opts.Desires,
	}

	if err := s.load(s.path); err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		log.Printf("store: load %s failed (%v), trying backup", path, err)
		if berr := s.load(s.backupPath); berr != nil {
			log.Printf("store: backup load failed (%v), starting empty", berr)
			return s, nil
		}
		log.Printf("store: recovered %d records from backup", len(s.records))
	}
	return s, nil
}

func (s *Store) load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var f storeFile
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	s.records = f.Records
	s.purposes = f.Purposes
	if s.purposes == nil {
		s.purposes = make(map[string]*PurposeAggregate)
	}
	maxID := int64(0)
	for _, r := range s.records {
		if r.ID > maxID {
			maxID = r.ID
		}
	}
	s.nextID = maxID + 1
	return nil
}

// Append validates the record, assigns its ID and context hash, and
// stores it. Persistence happens outside the lock and is best-effort;
// a failed write never rolls back memory state.
func (s *Store) Append(r *Record) error {
	if err := validate(r, s.desires); err != nil {
		return err
	}

	s.mu.Lock()
	r.ID = s.nextID
	s.nextID++
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	if r.ContextHash == "" {
		r.ContextHash = HashContext(r.Context)
	}
	s.records = append(s.records, r)
	s.mu.Unlock()

	if err := s.Flush(); err != nil {
		log.Printf("store: persist after append: %v", err)
	}
	return nil
}

// RecordAttempt folds an attempt into the aggregate for purpose,
// creating it on first sight.
func (s *Store) RecordAttempt(purpose, means string, effectiveness float64, success bool) *PurposeAggregate {
	s.mu.Lock()
	hash := HashContext(purpose)
	agg, ok := s.purposes[hash]
	if !ok {
		agg = NewPurposeAggregate(purpose)
		s.purposes[hash] = agg
	}
	agg.RecordAttempt(means, effectiveness, success)
	out := *agg
	s.mu.Unlock()
	return &out
}

// Flush writes the store file atomically and refreshes the backup
// every backupInterval writes.
func (s *Store) Flush() error {
	s.mu.Lock()
	var f storeFile
	f.Metadata.LastUpdated = time.Now()
	f.Metadata.TotalRecords = len(s.records)
	f.Metadata.TotalPurposes = len(s.purposes)
	f.Records = s.records
	f.Purposes = s.purposes
	data, err := json.MarshalIndent(&f, "", "  ")
	s.writesSince++
	s.totalWrites++
	backup := s.writesSince >= s.backupInterval
	if backup {
		s.writesSince = 0
	}
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("marshal store: %w", err)
	}
	if err := writeAtomic(s.path, data); err != nil {
		return err
	}
	if backup {
		if err := os.WriteFile(s.backupPath, data, 0o644); err != nil {
			log.Printf("store: write backup: %v", err)
		}
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

// ByID returns a copy of the record with the given ID, or nil.
func (s *Store) ByID(id int64) *Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.ID == id {
			out := *r
			return &out
		}
	}
	return nil
}

// Update applies fn to the record with the given ID under the lock.
// Returns false when the ID is unknown.
func (s *Store) Update(id int64, fn func(*Record)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.ID == id {
			fn(r)
			return true
		}
	}
	return false
}

// All returns a snapshot copy of every record, oldest first.
func (s *Store) All() []*Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(func(*Record) bool { return true })
}

// snapshot copies matching records. Caller holds s.mu.
func (s *Store) snapshot(keep func(*Record) bool) []*Record {
	var out []*Record
	for _, r := range s.records {
		if keep(r) {
			c := *r
			out = append(out, &c)
		}
	}
	return out
}

// ByPurpose returns records whose purpose hashes equal to purpose's.
func (s *Store) ByPurpose(purpose string) []*Record {
	hash := HashContext(purpose)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(func(r *Record) bool { return HashContext(r.Purpose) == hash })
}

// ByMeansType returns records that used the given means type.
func (s *Store) ByMeansType(meansType string) []*Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(func(r *Record) bool { return r.MeansType == meansType })
}

// ByContextHash returns records from the same situation.
func (s *Store) ByContextHash(hash string) []*Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(func(r *Record) bool { return r.ContextHash == hash })
}

// InRange returns records with timestamps in [from, to).
func (s *Store) InRange(from, to time.Time) []*Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(func(r *Record) bool {
		return !r.Timestamp.Before(from) && r.Timestamp.Before(to)
	})
}

// ByDesire returns records whose delta for the named desire exceeds
// threshold in magnitude.
func (s *Store) ByDesire(name string, threshold float64) []*Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(func(r *Record) bool {
		return math.Abs(r.DesireDelta[name]) > threshold
	})
}

// Positive returns records with a positive total delta.
func (s *Store) Positive() []*Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(func(r *Record) bool { return r.IsPositive() })
}

// Negative returns records with a negative total delta.
func (s *Store) Negative() []*Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(func(r *Record) bool { return r.IsNegative() })
}

// Achievements returns records flagged as achievements, newest first.
func (s *Store) Achievements() []*Record {
	s.mu.Lock()
	out := s.snapshot(func(r *Record) bool { return r.IsAchievement })
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

// Recent returns the newest n records, newest first. n of zero or less
// returns an empty slice.
func (s *Store) Recent(n int) []*Record {
	if n <= 0 {
		return []*Record{}
	}
	s.mu.Lock()
	out := s.snapshot(func(*Record) bool { return true })
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// Purpose returns a copy of the aggregate for purpose, or nil.
func (s *Store) Purpose(purpose string) *PurposeAggregate {
	s.mu.Lock()
	defer s.mu.Unlock()
	agg, ok := s.purposes[HashContext(purpose)]
	if !ok {
		return nil
	}
	out := *agg
	return &out
}

// Purposes returns a snapshot of all aggregates.
func (s *Store) Purposes() []*PurposeAggregate {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*PurposeAggregate, 0, len(s.purposes))
	for _, agg := range s.purposes {
		c := *agg
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PurposeHash < out[j].PurposeHash })
	return out
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Stats summarizes the store for diagnostics.
type Stats struct {
	TotalRecords      int     `json:"total_records"`
	TotalPurposes     int     `json:"total_purposes"`
	PositiveRecords   int     `json:"positive_records"`
	NegativeRecords   int     `json:"negative_records"`
	Achievements      int     `json:"achievements"`
	MeanTotalDelta    float64 `json:"mean_total_delta"`
	TotalWrites       int     `json:"total_writes"`
	WritesSinceBackup int     `json:"writes_since_backup"`
}

// Statistics computes store-level counters.
func (s *Store) Statistics() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{
		TotalRecords:      len(s.records),
		TotalPurposes:     len(s.purposes),
		TotalWrites:       s.totalWrites,
		WritesSinceBackup: s.writesSince,
	}
	sum := 0.0
	for _, r := range s.records {
		sum += r.TotalDelta
		switch {
		case r.IsPositive():
			st.PositiveRecords++
		case r.IsNegative():
			st.NegativeRecords++
		}
		if r.IsAchievement {
			st.Achievements++
		}
	}
	if len(s.records) > 0 {
		st.MeanTotalDelta = sum / float64(len(s.records))
	}
	return st
}
