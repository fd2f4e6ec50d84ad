package commands

import (
	"context"
	"log/slog"
	"strings"
	"time"

	application "equitas/contexts/equity-core/member-registry-service/application"
	"equitas/contexts/equity-core/member-registry-service/domain/entities"
	domainerrors "equitas/contexts/equity-core/member-registry-service/domain/errors"
	"equitas/contexts/equity-core/member-registry-service/ports"

	"github.com/shopspring/decimal"
)

// Domain event types this service appends to the ledger.
const (
	EventTypeMemberCreated       = "member.created"
	EventTypeMemberEquityChanged = "member.equity_changed"
	EventTypeMemberRetired       = "member.retired"

	aggregateTypeMember = "member"
	sourceService       = "member-registry-service"
)

type CreateMemberCommand struct {
	MemberID         string
	CompanyID        string
	Name             string
	EquityPercentage decimal.Decimal
	TaxRate          decimal.Decimal
	JoinDate         time.Time
	ChangedBy        string
	CorrelationID    string
}

type ChangeEquityCommand struct {
	MemberID        string
	NewPercentage   decimal.Decimal
	Reason          string
	EffectiveDate   time.Time
	ChangedBy       string
	CorrelationID   string
	ExpectedVersion int64
	// Adjustment marks a correction rather than a negotiated change.
	Adjustment bool
}

type RetireMemberCommand struct {
	MemberID        string
	Reason          string
	EffectiveDate   time.Time
	ChangedBy       string
	CorrelationID   string
	ExpectedVersion int64
}

type UseCase struct {
	Repository ports.Repository
	Dispatcher ports.EventDispatcher
	Clock      ports.Clock
	IDGen      ports.IDGenerator
	Logger     *slog.Logger
}

// CreateMember records the INITIAL_GRANT. The member row, its first
// EquityEvent and the ledger DomainEvent are committed in one transaction,
// then the committed event is dispatched to live subscribers.
func (uc UseCase) CreateMember(ctx context.Context, cmd CreateMemberCommand) (entities.Member, error) {
	logger := application.ResolveLogger(uc.Logger)
	now := uc.now()

	memberID := strings.TrimSpace(cmd.MemberID)
	if memberID == "" {
		var err error
		memberID, err = uc.IDGen.NewID(ctx)
		if err != nil {
			return entities.Member{}, err
		}
	}
	if strings.TrimSpace(cmd.CompanyID) == "" || strings.TrimSpace(cmd.Name) == "" {
		return entities.Member{}, domainerrors.ErrInvalidMemberInput
	}
	if !percentageInRange(cmd.EquityPercentage) {
		return entities.Member{}, domainerrors.ErrPercentageOutOfRange
	}

	joinDate := cmd.JoinDate.UTC()
	if joinDate.IsZero() {
		joinDate = now
	}
	member := entities.Member{
		ID:               memberID,
		CompanyID:        strings.TrimSpace(cmd.CompanyID),
		Name:             strings.TrimSpace(cmd.Name),
		EquityPercentage: cmd.EquityPercentage,
		TaxRate:          cmd.TaxRate,
		Status:           entities.MemberStatusActive,
		Version:          1,
		JoinDate:         joinDate,
		UpdatedAt:        now,
	}

	appended, err := uc.Repository.CreateMember(ctx, member, strings.TrimSpace(cmd.ChangedBy), strings.TrimSpace(cmd.CorrelationID))
	if err != nil {
		logger.Error("member creation failed",
			"event", "member_create_failed",
			"module", "equity-core/member-registry-service",
			"layer", "application",
			"member_id", member.ID,
			"company_id", member.CompanyID,
			"error", err.Error(),
		)
		return entities.Member{}, err
	}

	logger.Info("member created with initial grant",
		"event", "member_created",
		"module", "equity-core/member-registry-service",
		"layer", "application",
		"member_id", member.ID,
		"company_id", member.CompanyID,
		"equity_percentage", member.EquityPercentage.String(),
		"sequence", appended.Sequence,
	)
	return member, uc.dispatch(ctx, member, cmd.ChangedBy, cmd.CorrelationID, appended)
}

// ChangeEquity applies a PERCENTAGE_CHANGE (or ADJUSTMENT) to one member.
func (uc UseCase) ChangeEquity(ctx context.Context, cmd ChangeEquityCommand) (entities.Member, error) {
	logger := application.ResolveLogger(uc.Logger)
	if strings.TrimSpace(cmd.MemberID) == "" {
		return entities.Member{}, domainerrors.ErrInvalidMemberInput
	}
	if !percentageInRange(cmd.NewPercentage) {
		return entities.Member{}, domainerrors.ErrPercentageOutOfRange
	}
	if strings.TrimSpace(cmd.Reason) == "" {
		return entities.Member{}, domainerrors.ErrMissingReason
	}

	eventType := entities.EquityEventPercentageChange
	if cmd.Adjustment {
		eventType = entities.EquityEventAdjustment
	}
	effective := cmd.EffectiveDate.UTC()
	if effective.IsZero() {
		effective = uc.now()
	}

	member, appended, err := uc.Repository.ApplyEquityChange(ctx, ports.EquityChange{
		MemberID:        strings.TrimSpace(cmd.MemberID),
		ExpectedVersion: cmd.ExpectedVersion,
		EventType:       eventType,
		DomainEventType: EventTypeMemberEquityChanged,
		NewPercentage:   cmd.NewPercentage,
		EffectiveDate:   effective,
		Reason:          strings.TrimSpace(cmd.Reason),
		ChangedBy:       strings.TrimSpace(cmd.ChangedBy),
		CorrelationID:   strings.TrimSpace(cmd.CorrelationID),
	})
	if err != nil {
		logger.Warn("equity change rejected",
			"event", "member_equity_change_rejected",
			"module", "equity-core/member-registry-service",
			"layer", "application",
			"member_id", strings.TrimSpace(cmd.MemberID),
			"new_percentage", cmd.NewPercentage.String(),
			"error", err.Error(),
		)
		return entities.Member{}, err
	}

	logger.Info("member equity changed",
		"event", "member_equity_changed",
		"module", "equity-core/member-registry-service",
		"layer", "application",
		"member_id", member.ID,
		"change_type", string(eventType),
		"new_percentage", member.EquityPercentage.String(),
		"sequence", appended.Sequence,
	)
	return member, uc.dispatch(ctx, member, cmd.ChangedBy, cmd.CorrelationID, appended)
}

// RetireMember zeroes the percentage and transitions status to RETIRED.
// Members are never deleted.
func (uc UseCase) RetireMember(ctx context.Context, cmd RetireMemberCommand) (entities.Member, error) {
	logger := application.ResolveLogger(uc.Logger)
	if strings.TrimSpace(cmd.MemberID) == "" {
		return entities.Member{}, domainerrors.ErrInvalidMemberInput
	}
	effective := cmd.EffectiveDate.UTC()
	if effective.IsZero() {
		effective = uc.now()
	}

	member, appended, err := uc.Repository.ApplyEquityChange(ctx, ports.EquityChange{
		MemberID:        strings.TrimSpace(cmd.MemberID),
		ExpectedVersion: cmd.ExpectedVersion,
		EventType:       entities.EquityEventRetirement,
		DomainEventType: EventTypeMemberRetired,
		NewPercentage:   decimal.Zero,
		EffectiveDate:   effective,
		Reason:          strings.TrimSpace(cmd.Reason),
		ChangedBy:       strings.TrimSpace(cmd.ChangedBy),
		CorrelationID:   strings.TrimSpace(cmd.CorrelationID),
		Retire:          true,
	})
	if err != nil {
		logger.Warn("member retirement rejected",
			"event", "member_retirement_rejected",
			"module", "equity-core/member-registry-service",
			"layer", "application",
			"member_id", strings.TrimSpace(cmd.MemberID),
			"error", err.Error(),
		)
		return entities.Member{}, err
	}

	logger.Info("member retired",
		"event", "member_retired",
		"module", "equity-core/member-registry-service",
		"layer", "application",
		"member_id", member.ID,
		"sequence", appended.Sequence,
	)
	return member, uc.dispatch(ctx, member, cmd.ChangedBy, cmd.CorrelationID, appended)
}

func (uc UseCase) dispatch(ctx context.Context, member entities.Member, changedBy string, correlationID string, appended ports.AppendedEvent) error {
	if uc.Dispatcher == nil {
		return nil
	}
	err := uc.Dispatcher.Dispatch(ctx, ports.EventEnvelope{
		EventID:       appended.EventID,
		EventType:     appended.EventType,
		OccurredAt:    appended.OccurredAt,
		SourceService: sourceService,
		CorrelationID: strings.TrimSpace(correlationID),
		UserID:        strings.TrimSpace(changedBy),
		SchemaVersion: 1,
		AggregateType: aggregateTypeMember,
		AggregateID:   member.ID,
		Sequence:      appended.Sequence,
		Data:          appended.Payload,
	})
	if err != nil {
		application.ResolveLogger(uc.Logger).Warn("subscriber failed after durable commit",
			"event", "member_event_dispatch_failed",
			"module", "equity-core/member-registry-service",
			"layer", "application",
			"member_id", member.ID,
			"event_id", appended.EventID,
			"sequence", appended.Sequence,
			"error", err.Error(),
		)
	}
	return err
}

func (uc UseCase) now() time.Time {
	if uc.Clock == nil {
		return time.Now().UTC()
	}
	return uc.Clock.Now().UTC()
}

func percentageInRange(pct decimal.Decimal) bool {
	return !pct.IsNegative() && pct.LessThanOrEqual(decimal.NewFromInt(100))
}
