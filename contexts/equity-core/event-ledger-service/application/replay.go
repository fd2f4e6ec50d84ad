package application

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"equitas/contexts/equity-core/event-ledger-service/domain/entities"
	domainerrors "equitas/contexts/equity-core/event-ledger-service/domain/errors"
	"equitas/contexts/equity-core/event-ledger-service/ports"
)

const defaultReplayBatchSize = 200

// Replayer re-reads the committed log and re-drives registered handlers or
// rebuilds projections. Replay is read-only: it never appends to the store
// and is safe to run concurrently with live writes.
type Replayer struct {
	Store  ports.EventStore
	Bus    *Bus
	Logger *slog.Logger
}

func (r Replayer) ReplayForAggregate(ctx context.Context, aggregateID string, aggregateType string, fromSequence int64) (int, error) {
	events, err := r.Store.ListByAggregate(ctx, aggregateID, aggregateType, fromSequence)
	if err != nil {
		return 0, err
	}
	return r.dispatchAll(ctx, events)
}

func (r Replayer) ReplayByType(ctx context.Context, eventType string, from time.Time, to time.Time) (int, error) {
	events, err := r.Store.ListByType(ctx, eventType, from, to)
	if err != nil {
		return 0, err
	}
	return r.dispatchAll(ctx, events)
}

// ReplayAll pages through the global sequence. End-of-stream is signaled by a
// page shorter than batchSize, not an explicit total count.
func (r Replayer) ReplayAll(ctx context.Context, fromSequence int64, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = defaultReplayBatchSize
	}
	cursor := fromSequence
	replayed := 0
	for {
		page, err := r.Store.ListAll(ctx, cursor, batchSize)
		if err != nil {
			return replayed, err
		}
		count, err := r.dispatchAll(ctx, page)
		replayed += count
		if err != nil {
			return replayed, err
		}
		if len(page) < batchSize {
			return replayed, nil
		}
		cursor = page[len(page)-1].Sequence
	}
}

// RebuildMemberProjection folds the member's equity events in sequence order.
// INITIAL_GRANT, PERCENTAGE_CHANGE, ADJUSTMENT and BOARD_APPROVED_UPDATE set
// the percentage to the event's new value; RETIREMENT zeroes it and retires
// the member. Applying events out of order yields incorrect state.
func (r Replayer) RebuildMemberProjection(ctx context.Context, memberID string) (entities.MemberProjection, error) {
	events, err := r.Store.ListByAggregate(ctx, memberID, entities.AggregateTypeMember, 0)
	if err != nil {
		return entities.MemberProjection{}, err
	}
	if len(events) == 0 {
		return entities.MemberProjection{}, domainerrors.ErrEventNotFound
	}

	projection := entities.MemberProjection{
		MemberID: strings.TrimSpace(memberID),
		Status:   entities.ProjectionStatusActive,
	}
	for _, event := range events {
		var payload entities.EquityChangePayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			ResolveLogger(r.Logger).Error("equity payload decode failed during rebuild",
				"event", "ledger_rebuild_payload_decode_failed",
				"module", "equity-core/event-ledger-service",
				"layer", "application",
				"member_id", memberID,
				"sequence", event.Sequence,
				"error", err.Error(),
			)
			return entities.MemberProjection{}, domainerrors.ErrProjectionCorrupted
		}
		if payload.CompanyID != "" {
			projection.CompanyID = payload.CompanyID
		}
		switch payload.ChangeType {
		case entities.ChangeTypeInitialGrant,
			entities.ChangeTypePercentageChange,
			entities.ChangeTypeAdjustment,
			entities.ChangeTypeBoardApprovedUpdate:
			projection.EquityPercentage = payload.NewPercentage
			projection.Status = entities.ProjectionStatusActive
		case entities.ChangeTypeRetirement:
			projection.EquityPercentage = payload.NewPercentage
			projection.Status = entities.ProjectionStatusRetired
		}
		projection.LastSequence = event.Sequence
		projection.EventCount++
	}
	return projection, nil
}

// AuditTrail returns the full ordered history for an aggregate. The log is
// the audit trail.
func (r Replayer) AuditTrail(ctx context.Context, aggregateID string, aggregateType string) ([]entities.AuditRecord, error) {
	events, err := r.Store.ListByAggregate(ctx, aggregateID, aggregateType, 0)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, domainerrors.ErrEventNotFound
	}
	records := make([]entities.AuditRecord, 0, len(events))
	for _, event := range events {
		records = append(records, entities.AuditRecord{
			Sequence:   event.Sequence,
			EventType:  event.EventType,
			OccurredAt: event.OccurredAt,
			Metadata:   event.Metadata,
			Payload:    event.Payload,
		})
	}
	return records, nil
}

func (r Replayer) dispatchAll(ctx context.Context, events []entities.DomainEvent) (int, error) {
	dispatched := 0
	for _, event := range events {
		if err := r.Bus.Dispatch(ctx, event); err != nil {
			return dispatched, err
		}
		dispatched++
	}
	return dispatched, nil
}
