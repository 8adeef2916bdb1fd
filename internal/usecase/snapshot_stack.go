package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chainsmith/chasm/internal/domain"
)

// SnapshotStack is the ordered log of local-network checkpoints with a head
// pointer. The visible list always represents a single linear history ending
// at the head; entries are only removed in bulk by RevertTo or Clear.
type SnapshotStack struct {
	// recordMu serializes checkpoint creation and restore so that checkpoint
	// order on the node matches sequence order here
	recordMu sync.Mutex

	mu      sync.RWMutex
	entries []*domain.Snapshot
	headID  string
	seq     uint64
	gen     uint64
	closed  bool

	// renewed maps an entry's external id to the node checkpoint that
	// replaced it after a revert consumed the original
	renewed map[string]string

	now     func() time.Time
	metrics MetricsRecorder
	log     *slog.Logger
}

// NewSnapshotStack creates an empty stack
func NewSnapshotStack(log *slog.Logger, metrics MetricsRecorder) *SnapshotStack {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &SnapshotStack{
		now:     time.Now,
		metrics: metrics,
		log:     log,
	}
}

// Record takes a checkpoint and appends a pending snapshot for the action
func (s *SnapshotStack) Record(ctx context.Context, cp Checkpointer, info domain.ActionInfo) (*domain.Snapshot, error) {
	s.recordMu.Lock()
	defer s.recordMu.Unlock()

	return s.record(ctx, cp, info, false)
}

// EnsureInitial captures the pre-action state when the stack is empty. It
// reports whether a synthetic entry was recorded. Concurrent callers record
// at most one.
func (s *SnapshotStack) EnsureInitial(ctx context.Context, cp Checkpointer) (bool, error) {
	s.recordMu.Lock()
	defer s.recordMu.Unlock()

	if s.Len() > 0 {
		return false, nil
	}
	if _, err := s.record(ctx, cp, domain.ActionInfo{Method: domain.InitialSnapshotMethod}, true); err != nil {
		return false, err
	}
	return true, nil
}

func (s *SnapshotStack) record(ctx context.Context, cp Checkpointer, info domain.ActionInfo, synthetic bool) (*domain.Snapshot, error) {
	if cp == nil {
		return nil, domain.ErrNoCheckpointer
	}

	s.mu.RLock()
	gen, closed := s.gen, s.closed
	s.mu.RUnlock()
	if closed {
		return nil, domain.ErrSessionClosed
	}

	id, err := cp.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to take snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.gen != gen {
		// the fork went away while the checkpoint was in flight
		return nil, domain.ErrSessionClosed
	}

	s.seq++
	status := domain.SnapshotPending
	if synthetic {
		status = domain.SnapshotConfirmed
	}
	snap := &domain.Snapshot{
		ID:        id,
		LocalID:   fmt.Sprintf("snap-%d", s.seq),
		Seq:       s.seq,
		CreatedAt: s.now(),
		Method:    info.Method,
		From:      info.From,
		To:        info.To,
		Value:     info.Value,
		Status:    status,
		Synthetic: synthetic,
	}
	s.entries = append(s.entries, snap)
	s.headID = id

	s.metrics.ObserveSnapshot("record")
	s.log.Debug("snapshot recorded", "id", id, "local_id", snap.LocalID, "method", info.Method, "synthetic", synthetic)

	c := *snap
	return &c, nil
}

// Update merges patch into the snapshot with the given local id. It reports
// false when the snapshot is gone, e.g. after a revert or fork stop.
func (s *SnapshotStack) Update(localID string, patch domain.SnapshotPatch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, snap := range s.entries {
		if snap.LocalID != localID {
			continue
		}
		if patch.Status != nil {
			snap.Status = *patch.Status
		}
		if patch.TxHash != nil {
			h := *patch.TxHash
			snap.TxHash = &h
		}
		if patch.BlockNumber != nil {
			b := *patch.BlockNumber
			snap.BlockNumber = &b
		}
		return true
	}
	return false
}

// RevertTo restores the node to the checkpoint with the given external id and
// drops every later entry. The target is kept and becomes the head.
//
// The node consumes a checkpoint when reverting to it, so a fresh one is taken
// at the restored state and used for later reverts to the same entry. The
// entry's external id does not change.
func (s *SnapshotStack) RevertTo(ctx context.Context, cp Checkpointer, externalID string) error {
	s.recordMu.Lock()
	defer s.recordMu.Unlock()

	if cp == nil {
		return &domain.RevertError{SnapshotID: externalID, Err: domain.ErrNoCheckpointer}
	}

	s.mu.RLock()
	target := s.find(externalID)
	nodeID := s.nodeID(externalID)
	gen := s.gen
	s.mu.RUnlock()
	if target == nil {
		return &domain.RevertError{SnapshotID: externalID, Reason: "snapshot not in stack", Err: domain.ErrNotFound}
	}

	if err := cp.Revert(ctx, nodeID); err != nil {
		return &domain.RevertError{SnapshotID: externalID, Err: err}
	}
	fresh, renewErr := cp.Snapshot(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen {
		return &domain.RevertError{SnapshotID: externalID, Reason: "stack was cleared during revert"}
	}

	last := target.Seq
	if renewErr != nil {
		// the target's checkpoint is gone, so it cannot stay in the stack
		last--
	}
	kept := s.entries[:0]
	for _, snap := range s.entries {
		if snap.Seq <= last {
			kept = append(kept, snap)
		}
	}
	dropped := len(s.entries) - len(kept)
	for i := len(kept); i < len(s.entries); i++ {
		delete(s.renewed, s.entries[i].ID)
		s.entries[i] = nil
	}
	s.entries = kept

	s.metrics.ObserveSnapshot("revert")

	if renewErr != nil {
		s.headID = ""
		if len(kept) > 0 {
			s.headID = kept[len(kept)-1].ID
		}
		s.log.Warn("reverted but could not renew checkpoint", "id", externalID, "dropped", dropped, "error", renewErr)
		return &domain.RevertError{SnapshotID: externalID, Reason: "state restored but the checkpoint could not be renewed", Err: renewErr}
	}

	if fresh != externalID {
		if s.renewed == nil {
			s.renewed = make(map[string]string)
		}
		s.renewed[externalID] = fresh
	} else {
		delete(s.renewed, externalID)
	}
	s.headID = externalID

	s.log.Debug("reverted to snapshot", "id", externalID, "checkpoint", fresh, "dropped", dropped)
	return nil
}

// nodeID returns the live node checkpoint for an entry. Callers hold mu.
func (s *SnapshotStack) nodeID(externalID string) string {
	if id, ok := s.renewed[externalID]; ok {
		return id
	}
	return externalID
}

func (s *SnapshotStack) find(externalID string) *domain.Snapshot {
	for _, snap := range s.entries {
		if snap.ID == externalID {
			return snap
		}
	}
	return nil
}

// Get returns a copy of the snapshot with the given external or local id
func (s *SnapshotStack) Get(id string) (*domain.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, snap := range s.entries {
		if snap.ID == id || snap.LocalID == id {
			c := *snap
			return &c, true
		}
	}
	return nil, false
}

// List returns copies of all entries, oldest first
func (s *SnapshotStack) List() []domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Snapshot, len(s.entries))
	for i, snap := range s.entries {
		out[i] = *snap
	}
	return out
}

// Len returns the number of entries
func (s *SnapshotStack) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// HeadID returns the external id of the most recently active snapshot
func (s *SnapshotStack) HeadID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.headID
}

// Clear drops every entry. In-flight records and updates from before the
// clear are discarded.
func (s *SnapshotStack) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = nil
	s.renewed = nil
	s.headID = ""
	s.gen++
	s.metrics.ObserveSnapshot("clear")
}

// Close clears the stack and rejects further records
func (s *SnapshotStack) Close() {
	s.Clear()

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}
