package workers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"trtlbridge/mongo"
	"trtlbridge/types"
)

// memStore keeps bridge records in memory with the update rules of the Mongo store.
type memStore struct {
	mu      sync.Mutex
	seq     int
	records map[string]*types.BridgeRecord
	order   []string
	now     func() time.Time

	// MarkSubmittedErr makes MarkSubmitted fail
	MarkSubmittedErr error
	// MarkCompletedErrs fail MarkCompleted once for the given record ids
	MarkCompletedErrs map[string]error
	// RejectDoneContext fails writes made with a done context, as the Mongo driver does
	RejectDoneContext bool
}

func newMemStore() *memStore {
	return &memStore{
		records: map[string]*types.BridgeRecord{},
		now:     time.Now,
	}
}

func (s *memStore) FindBySourceTxHash(_ context.Context, txHash string) (*types.BridgeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.order {
		if s.records[id].SourceTxHash == txHash {
			rec := *s.records[id]
			return &rec, nil
		}
	}
	return nil, mongo.ErrNotFound
}

func (s *memStore) InsertIfAbsent(_ context.Context, rec *types.BridgeRecord) (*types.BridgeRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.order {
		if s.records[id].SourceTxHash == rec.SourceTxHash {
			existing := *s.records[id]
			return &existing, false, nil
		}
	}

	s.seq++
	stored := *rec
	stored.ID = fmt.Sprintf("rec-%d", s.seq)
	stored.SchemaVersion = types.SchemaVersion
	stored.Status = types.StatusPending
	stored.CreatedAt = s.now()
	stored.UpdatedAt = stored.CreatedAt
	s.records[stored.ID] = &stored
	s.order = append(s.order, stored.ID)

	out := stored
	return &out, true, nil
}

// add stores rec as is, for records in a given state.
func (s *memStore) add(rec types.BridgeRecord) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	if rec.ID == "" {
		rec.ID = fmt.Sprintf("rec-%d", s.seq)
	}
	if rec.Status == "" {
		rec.Status = types.StatusPending
	}
	s.records[rec.ID] = &rec
	s.order = append(s.order, rec.ID)
	return rec.ID
}

func (s *memStore) get(id string) types.BridgeRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.records[id]
}

func (s *memStore) FindPayable(_ context.Context, limit int) ([]*types.BridgeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*types.BridgeRecord
	for _, id := range s.order {
		rec := s.records[id]
		if rec.Completed || (rec.Status != types.StatusPending && rec.Status != types.StatusSubmitted) {
			continue
		}
		cp := *rec
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *memStore) update(ctx context.Context, id string, f func(rec *types.BridgeRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.RejectDoneContext && ctx.Err() != nil {
		return fmt.Errorf("error updating bridge record %s: %w", id, ctx.Err())
	}
	rec, ok := s.records[id]
	if !ok || rec.Completed {
		return fmt.Errorf("%w: %s", mongo.ErrNotUpdated, id)
	}
	f(rec)
	rec.UpdatedAt = s.now()
	return nil
}

func (s *memStore) MarkSubmitted(ctx context.Context, id, signature string, validUntil uint64) error {
	if s.MarkSubmittedErr != nil {
		return s.MarkSubmittedErr
	}
	return s.update(ctx, id, func(rec *types.BridgeRecord) {
		rec.Status = types.StatusSubmitted
		rec.PendingTxHash = signature
		rec.PendingValidUntil = validUntil
		rec.Attempts++
	})
}

func (s *memStore) MarkCompleted(ctx context.Context, id, signature string) error {
	s.mu.Lock()
	err, ok := s.MarkCompletedErrs[id]
	delete(s.MarkCompletedErrs, id)
	s.mu.Unlock()
	if ok {
		return err
	}
	return s.update(ctx, id, func(rec *types.BridgeRecord) {
		rec.Status = types.StatusCompleted
		rec.DestinationTxHash = signature
		rec.Completed = true
		rec.PendingTxHash = ""
		rec.PendingValidUntil = 0
	})
}

func (s *memStore) MarkPending(ctx context.Context, id, message string) error {
	return s.update(ctx, id, func(rec *types.BridgeRecord) {
		rec.Status = types.StatusPending
		rec.Message = message
		rec.PendingTxHash = ""
		rec.PendingValidUntil = 0
	})
}

func (s *memStore) MarkFailed(ctx context.Context, id, message string) error {
	return s.update(ctx, id, func(rec *types.BridgeRecord) {
		rec.Status = types.StatusFailed
		rec.Message = message
		rec.Attempts++
	})
}
