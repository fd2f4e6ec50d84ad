package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"equitas/contexts/equity-core/distribution-service/domain/entities"
	domainerrors "equitas/contexts/equity-core/distribution-service/domain/errors"
	"equitas/contexts/equity-core/distribution-service/ports"

	"github.com/google/uuid"
)

type Store struct {
	mu sync.RWMutex

	profits       map[string]entities.ProfitRecord
	stakes        map[string][]entities.MemberStake
	distributions map[string]entities.Distribution
	shares        map[string][]entities.MemberDistribution
	appended      []ports.AppendedEvent
	sequence      int64
}

func NewStore(profits []entities.ProfitRecord, stakesByCompany map[string][]entities.MemberStake) *Store {
	profitIndex := make(map[string]entities.ProfitRecord, len(profits))
	for _, profit := range profits {
		profitIndex[profit.ID] = profit
	}
	stakes := make(map[string][]entities.MemberStake, len(stakesByCompany))
	for companyID, companyStakes := range stakesByCompany {
		stakes[companyID] = append([]entities.MemberStake(nil), companyStakes...)
	}
	return &Store{
		profits:       profitIndex,
		stakes:        stakes,
		distributions: make(map[string]entities.Distribution),
		shares:        make(map[string][]entities.MemberDistribution),
	}
}

func (s *Store) GetProfit(_ context.Context, profitID string) (entities.ProfitRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profit, exists := s.profits[strings.TrimSpace(profitID)]
	if !exists {
		return entities.ProfitRecord{}, domainerrors.ErrProfitNotFound
	}
	return profit, nil
}

func (s *Store) ListActiveStakes(_ context.Context, companyID string) ([]entities.MemberStake, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]entities.MemberStake(nil), s.stakes[strings.TrimSpace(companyID)]...), nil
}

func (s *Store) CreateDistribution(_ context.Context, distribution entities.Distribution, shares []entities.MemberDistribution, event ports.LedgerEventInput) (ports.AppendedEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.distributions[distribution.ID] = distribution
	s.shares[distribution.ID] = append([]entities.MemberDistribution(nil), shares...)

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

func (s *Store) GetDistribution(_ context.Context, distributionID string) (entities.Distribution, []entities.MemberDistribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	distribution, exists := s.distributions[strings.TrimSpace(distributionID)]
	if !exists {
		return entities.Distribution{}, nil, domainerrors.ErrDistributionNotFound
	}
	return distribution, append([]entities.MemberDistribution(nil), s.shares[distribution.ID]...), nil
}

func (s *Store) ListByCompany(_ context.Context, companyID string, limit int) ([]entities.Distribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []entities.Distribution
	for _, distribution := range s.distributions {
		if distribution.CompanyID == strings.TrimSpace(companyID) {
			matched = append(matched, distribution)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CalculatedAt.After(matched[j].CalculatedAt)
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *Store) MarkMemberPaid(_ context.Context, distributionID string, memberID string, paidAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	shares, exists := s.shares[strings.TrimSpace(distributionID)]
	if !exists {
		return domainerrors.ErrDistributionNotFound
	}
	for i, share := range shares {
		if share.MemberID != strings.TrimSpace(memberID) {
			continue
		}
		if share.PaymentStatus == entities.PaymentStatusPaid {
			return domainerrors.ErrAlreadyPaid
		}
		paid := paidAt.UTC()
		shares[i].PaymentStatus = entities.PaymentStatusPaid
		shares[i].PaidAt = &paid
		return nil
	}
	return domainerrors.ErrMemberShareNotFound
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

var _ ports.Repository = (*Store)(nil)
var _ ports.ProfitRepository = (*Store)(nil)
var _ ports.MemberDirectory = (*Store)(nil)
