package schedule

import (
	"sync/atomic"
	"time"
)

// Store holds the current Schedule. One writer publishes whole schedules;
// readers never block and always see a complete snapshot.
type Store struct {
	cur atomic.Pointer[Snapshot]
}

// Snapshot is what a reader sees: the schedule plus when it was published.
type Snapshot struct {
	Schedule *Schedule
	Updated  time.Time
	Version  uint64
}

func NewStore() *Store { return &Store{} }

// Publish replaces the current schedule and returns its version, starting at 1.
func (st *Store) Publish(s *Schedule) uint64 {
	var version uint64 = 1
	if old := st.cur.Load(); old != nil {
		version = old.Version + 1
	}
	st.cur.Store(&Snapshot{Schedule: s, Updated: time.Now(), Version: version})
	return version
}

// Current returns the schedule, or false before the first Publish.
func (st *Store) Current() (*Schedule, bool) {
	snap := st.cur.Load()
	if snap == nil {
		return nil, false
	}
	return snap.Schedule, true
}

// Snapshot returns the full current snapshot, or false before the first Publish.
func (st *Store) Snapshot() (Snapshot, bool) {
	snap := st.cur.Load()
	if snap == nil {
		return Snapshot{}, false
	}
	return *snap, true
}

// Updated is the time of the last Publish, zero before the first.
func (st *Store) Updated() time.Time {
	snap, _ := st.Snapshot()
	return snap.Updated
}

// Version counts publishes. Zero means empty.
func (st *Store) Version() uint64 {
	snap, _ := st.Snapshot()
	return snap.Version
}
