package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"equitas/contexts/equity-core/event-ledger-service/domain/entities"
	domainerrors "equitas/contexts/equity-core/event-ledger-service/domain/errors"

	"github.com/google/uuid"
)

// Store is the in-memory event store used by tests and in-memory modules.
// It doubles as clock, id generator and checkpoint store like the other
// module stores do.
type Store struct {
	mu sync.RWMutex

	events      []entities.DomainEvent
	eventIDs    map[string]struct{}
	sequence    int64
	checkpoints map[string]int64
}

func NewStore() *Store {
	return &Store{
		eventIDs:    make(map[string]struct{}),
		checkpoints: make(map[string]int64),
	}
}

func (s *Store) Append(_ context.Context, event entities.DomainEvent) (entities.DomainEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(event)
}

func (s *Store) AppendBatch(_ context.Context, events []entities.DomainEvent) ([]entities.DomainEvent, error) {
	if len(events) == 0 {
		return nil, domainerrors.ErrEmptyBatch
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate the whole batch before assigning any sequence so a failure
	// leaves the log untouched.
	seen := make(map[string]struct{}, len(events))
	for _, event := range events {
		if err := validateEvent(event); err != nil {
			return nil, err
		}
		if _, dup := s.eventIDs[event.EventID]; dup {
			return nil, domainerrors.ErrDuplicateEvent
		}
		if _, dup := seen[event.EventID]; dup {
			return nil, domainerrors.ErrDuplicateEvent
		}
		seen[event.EventID] = struct{}{}
	}

	stored := make([]entities.DomainEvent, 0, len(events))
	for _, event := range events {
		appended, err := s.appendLocked(event)
		if err != nil {
			return nil, err
		}
		stored = append(stored, appended)
	}
	return stored, nil
}

func (s *Store) ListByAggregate(_ context.Context, aggregateID string, aggregateType string, fromSequence int64) ([]entities.DomainEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []entities.DomainEvent
	for _, event := range s.events {
		if event.AggregateID != strings.TrimSpace(aggregateID) {
			continue
		}
		if aggregateType != "" && event.AggregateType != aggregateType {
			continue
		}
		if event.Sequence <= fromSequence {
			continue
		}
		matched = append(matched, event)
	}
	return matched, nil
}

func (s *Store) ListByType(_ context.Context, eventType string, from time.Time, to time.Time) ([]entities.DomainEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []entities.DomainEvent
	for _, event := range s.events {
		if event.EventType != strings.TrimSpace(eventType) {
			continue
		}
		if !from.IsZero() && event.OccurredAt.Before(from) {
			continue
		}
		if !to.IsZero() && event.OccurredAt.After(to) {
			continue
		}
		matched = append(matched, event)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].OccurredAt.Before(matched[j].OccurredAt)
	})
	return matched, nil
}

func (s *Store) ListAll(_ context.Context, fromSequence int64, limit int) ([]entities.DomainEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	var page []entities.DomainEvent
	for _, event := range s.events {
		if event.Sequence <= fromSequence {
			continue
		}
		page = append(page, event)
		if len(page) == limit {
			break
		}
	}
	return page, nil
}

func (s *Store) LatestSequence(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sequence, nil
}

func (s *Store) GetCheckpoint(_ context.Context, consumer string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checkpoints[strings.TrimSpace(consumer)], nil
}

func (s *Store) SaveCheckpoint(_ context.Context, consumer string, sequence int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[strings.TrimSpace(consumer)] = sequence
	return nil
}

func (s *Store) Now() time.Time {
	return time.Now().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

func (s *Store) appendLocked(event entities.DomainEvent) (entities.DomainEvent, error) {
	if err := validateEvent(event); err != nil {
		return entities.DomainEvent{}, err
	}
	if _, dup := s.eventIDs[event.EventID]; dup {
		return entities.DomainEvent{}, domainerrors.ErrDuplicateEvent
	}

	s.sequence++
	event.Sequence = s.sequence
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	event.Payload = append([]byte(nil), event.Payload...)

	s.events = append(s.events, event)
	s.eventIDs[event.EventID] = struct{}{}
	return event, nil
}

func validateEvent(event entities.DomainEvent) error {
	if strings.TrimSpace(event.EventID) == "" ||
		strings.TrimSpace(event.AggregateID) == "" ||
		strings.TrimSpace(event.AggregateType) == "" ||
		strings.TrimSpace(event.EventType) == "" {
		return domainerrors.ErrInvalidEvent
	}
	return nil
}
