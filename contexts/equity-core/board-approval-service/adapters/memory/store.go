package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"equitas/contexts/equity-core/board-approval-service/domain/entities"
	domainerrors "equitas/contexts/equity-core/board-approval-service/domain/errors"
	"equitas/contexts/equity-core/board-approval-service/ports"

	"github.com/google/uuid"
)

// Store keeps approvals and a member snapshot in process memory. Apply runs
// under one lock so member mutations, the appended ledger row and the status
// flip stay atomic, mirroring the repository transaction.
type Store struct {
	mu sync.RWMutex

	approvals map[string]entities.BoardApproval
	members   map[string]entities.MemberSnapshot
	appended  []ports.AppendedEvent
	sequence  int64
}

func NewStore(members []entities.MemberSnapshot) *Store {
	byID := make(map[string]entities.MemberSnapshot, len(members))
	for _, member := range members {
		byID[member.ID] = member
	}
	return &Store{
		approvals: make(map[string]entities.BoardApproval),
		members:   byID,
	}
}

func (s *Store) CreateApproval(_ context.Context, approval entities.BoardApproval) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.approvals[approval.ID]; exists {
		return domainerrors.ErrInvalidApprovalInput
	}
	s.approvals[approval.ID] = cloneApproval(approval)
	return nil
}

func (s *Store) GetApproval(_ context.Context, approvalID string) (entities.BoardApproval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	approval, exists := s.approvals[strings.TrimSpace(approvalID)]
	if !exists {
		return entities.BoardApproval{}, domainerrors.ErrApprovalNotFound
	}
	return cloneApproval(approval), nil
}

func (s *Store) UpdateApprovalStatus(_ context.Context, approval entities.BoardApproval) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.approvals[approval.ID]; !exists {
		return domainerrors.ErrApprovalNotFound
	}
	s.approvals[approval.ID] = cloneApproval(approval)
	return nil
}

func (s *Store) ListByCompany(_ context.Context, companyID string, limit int) ([]entities.BoardApproval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []entities.BoardApproval
	for _, approval := range s.approvals {
		if approval.CompanyID == strings.TrimSpace(companyID) {
			matched = append(matched, cloneApproval(approval))
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *Store) ApplyApproval(_ context.Context, approval entities.BoardApproval, event ports.LedgerEventInput) (ports.AppendedEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.approvals[approval.ID]
	if !exists {
		return ports.AppendedEvent{}, domainerrors.ErrApprovalNotFound
	}
	for _, update := range stored.Updates {
		if _, known := s.members[update.MemberID]; !known {
			return ports.AppendedEvent{}, domainerrors.ErrMemberNotFound
		}
	}

	for _, update := range stored.Updates {
		member := s.members[update.MemberID]
		member.Percentage = update.NewPercentage
		s.members[update.MemberID] = member
	}
	s.approvals[approval.ID] = cloneApproval(approval)

	s.sequence++
	appended := ports.AppendedEvent{
		EventID:    event.EventID,
		EventType:  event.EventType,
		Sequence:   s.sequence,
		OccurredAt: event.OccurredAt,
		Payload:    append([]byte(nil), event.Payload...),
	}
	s.appended = append(s.appended, appended)
	return appended, nil
}

func (s *Store) ListMembers(_ context.Context, companyID string) ([]entities.MemberSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	members := make([]entities.MemberSnapshot, 0, len(s.members))
	for _, member := range s.members {
		members = append(members, member)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })
	return members, nil
}

// Member returns the current snapshot for one member, for tests.
func (s *Store) Member(memberID string) (entities.MemberSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	member, exists := s.members[memberID]
	return member, exists
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

func cloneApproval(approval entities.BoardApproval) entities.BoardApproval {
	clone := approval
	clone.Updates = append([]entities.EquityUpdate(nil), approval.Updates...)
	for i := range clone.Updates {
		clone.Updates[i].Warnings = append([]string(nil), approval.Updates[i].Warnings...)
	}
	return clone
}

var _ ports.Repository = (*Store)(nil)
var _ ports.MemberDirectory = (*Store)(nil)
