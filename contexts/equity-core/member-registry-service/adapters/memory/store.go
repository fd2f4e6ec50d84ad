package memory

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"equitas/contexts/equity-core/member-registry-service/domain/entities"
	domainerrors "equitas/contexts/equity-core/member-registry-service/domain/errors"
	"equitas/contexts/equity-core/member-registry-service/ports"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Store keeps members, their equity history and the paired ledger rows in
// process memory. The three writes of a mutation happen under one lock, the
// in-memory stand-in for the repository transaction.
type Store struct {
	mu sync.RWMutex

	members      map[string]entities.Member
	equityEvents []entities.EquityEvent
	appended     []ports.AppendedEvent
	sequence     int64
}

func NewStore(seed []entities.Member) *Store {
	members := make(map[string]entities.Member, len(seed))
	for _, member := range seed {
		members[member.ID] = member
	}
	return &Store{members: members}
}

func (s *Store) CreateMember(_ context.Context, member entities.Member, changedBy string, correlationID string) (ports.AppendedEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.members[member.ID]; exists {
		return ports.AppendedEvent{}, domainerrors.ErrMemberExists
	}
	s.members[member.ID] = member

	now := member.UpdatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	s.equityEvents = append(s.equityEvents, entities.EquityEvent{
		ID:                 uuid.NewString(),
		MemberID:           member.ID,
		CompanyID:          member.CompanyID,
		EventType:          entities.EquityEventInitialGrant,
		PreviousPercentage: decimal.Zero,
		NewPercentage:      member.EquityPercentage,
		EffectiveDate:      member.JoinDate,
		Reason:             "initial grant",
		ChangedBy:          changedBy,
		CreatedAt:          now,
	})

	return s.appendLocked("member.created", now, entities.ChangePayload{
		MemberID:           member.ID,
		CompanyID:          member.CompanyID,
		ChangeType:         string(entities.EquityEventInitialGrant),
		PreviousPercentage: decimal.Zero,
		NewPercentage:      member.EquityPercentage,
		EffectiveDate:      member.JoinDate,
		Reason:             "initial grant",
	})
}

func (s *Store) ApplyEquityChange(_ context.Context, change ports.EquityChange) (entities.Member, ports.AppendedEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	member, exists := s.members[change.MemberID]
	if !exists {
		return entities.Member{}, ports.AppendedEvent{}, domainerrors.ErrMemberNotFound
	}
	if change.ExpectedVersion > 0 && member.Version != change.ExpectedVersion {
		return entities.Member{}, ports.AppendedEvent{}, domainerrors.ErrVersionConflict
	}
	if member.Status == entities.MemberStatusRetired {
		return entities.Member{}, ports.AppendedEvent{}, domainerrors.ErrMemberRetired
	}

	now := time.Now().UTC()
	previous := member.EquityPercentage
	member.EquityPercentage = change.NewPercentage
	member.Version++
	member.UpdatedAt = now
	if change.Retire {
		member.Status = entities.MemberStatusRetired
		retiredAt := change.EffectiveDate
		member.RetirementDate = &retiredAt
	}
	s.members[member.ID] = member

	s.equityEvents = append(s.equityEvents, entities.EquityEvent{
		ID:                 uuid.NewString(),
		MemberID:           member.ID,
		CompanyID:          member.CompanyID,
		EventType:          change.EventType,
		PreviousPercentage: previous,
		NewPercentage:      change.NewPercentage,
		EffectiveDate:      change.EffectiveDate,
		Reason:             change.Reason,
		ApprovalID:         change.ApprovalID,
		ChangedBy:          change.ChangedBy,
		CreatedAt:          now,
	})

	appended, err := s.appendLocked(change.DomainEventType, now, entities.ChangePayload{
		MemberID:           member.ID,
		CompanyID:          member.CompanyID,
		ChangeType:         string(change.EventType),
		PreviousPercentage: previous,
		NewPercentage:      change.NewPercentage,
		EffectiveDate:      change.EffectiveDate,
		Reason:             change.Reason,
		ApprovalID:         change.ApprovalID,
	})
	if err != nil {
		return entities.Member{}, ports.AppendedEvent{}, err
	}
	return member, appended, nil
}

func (s *Store) GetMember(_ context.Context, memberID string) (entities.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	member, exists := s.members[strings.TrimSpace(memberID)]
	if !exists {
		return entities.Member{}, domainerrors.ErrMemberNotFound
	}
	return member, nil
}

func (s *Store) ListActiveMembers(_ context.Context, companyID string) ([]entities.Member, error) {
	return s.list(companyID, func(member entities.Member) bool {
		return member.Status == entities.MemberStatusActive && member.EquityPercentage.IsPositive()
	})
}

func (s *Store) ListVotingMembers(_ context.Context, companyID string) ([]entities.Member, error) {
	return s.list(companyID, func(member entities.Member) bool {
		return member.Status.Voting()
	})
}

func (s *Store) ListEquityEvents(_ context.Context, memberID string) ([]entities.EquityEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var history []entities.EquityEvent
	for _, event := range s.equityEvents {
		if event.MemberID == strings.TrimSpace(memberID) {
			history = append(history, event)
		}
	}
	return history, nil
}

func (s *Store) SumActiveEquity(_ context.Context, companyID string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := decimal.Zero
	for _, member := range s.members {
		if member.CompanyID == strings.TrimSpace(companyID) && member.Status == entities.MemberStatusActive {
			total = total.Add(member.EquityPercentage)
		}
	}
	return total, nil
}

// AppendedEvents exposes the ledger rows written by this store, for tests.
func (s *Store) AppendedEvents() []ports.AppendedEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ports.AppendedEvent(nil), s.appended...)
}

func (s *Store) Now() time.Time {
	return time.Now().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

func (s *Store) list(companyID string, keep func(entities.Member) bool) ([]entities.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []entities.Member
	for _, member := range s.members {
		if member.CompanyID != strings.TrimSpace(companyID) {
			continue
		}
		if keep(member) {
			matched = append(matched, member)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	return matched, nil
}

func (s *Store) appendLocked(eventType string, occurredAt time.Time, payload entities.ChangePayload) (ports.AppendedEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return ports.AppendedEvent{}, err
	}
	s.sequence++
	appended := ports.AppendedEvent{
		EventID:    uuid.NewString(),
		EventType:  eventType,
		Sequence:   s.sequence,
		OccurredAt: occurredAt,
		Payload:    raw,
	}
	s.appended = append(s.appended, appended)
	return appended, nil
}

var _ ports.Repository = (*Store)(nil)
