package postgresadapter

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"equitas/contexts/equity-core/event-ledger-service/domain/entities"
	domainerrors "equitas/contexts/equity-core/event-ledger-service/domain/errors"
	"equitas/contexts/equity-core/event-ledger-service/ports"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository persists the append-only domain event log. The sequence column
// is a bigserial so ordering is assigned atomically by the database.
type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{db: db, logger: logger}
}

func (r *Repository) Append(ctx context.Context, event entities.DomainEvent) (entities.DomainEvent, error) {
	row, err := domainEventModelFromEntity(event)
	if err != nil {
		return entities.DomainEvent{}, err
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return entities.DomainEvent{}, domainerrors.ErrDuplicateEvent
		}
		return entities.DomainEvent{}, r.logError("ledger_repo_append_failed", err,
			"event_id", row.EventID,
			"event_type", row.EventType,
			"aggregate_id", row.AggregateID,
		)
	}
	return row.toEntity(), nil
}

func (r *Repository) AppendBatch(ctx context.Context, events []entities.DomainEvent) ([]entities.DomainEvent, error) {
	if len(events) == 0 {
		return nil, domainerrors.ErrEmptyBatch
	}

	rows := make([]domainEventModel, 0, len(events))
	for _, event := range events {
		row, err := domainEventModelFromEntity(event)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range rows {
			if err := tx.Create(&rows[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domainerrors.ErrDuplicateEvent
		}
		return nil, r.logError("ledger_repo_append_batch_failed", err,
			"batch_size", len(events),
		)
	}

	stored := make([]entities.DomainEvent, 0, len(rows))
	for _, row := range rows {
		stored = append(stored, row.toEntity())
	}
	return stored, nil
}

func (r *Repository) ListByAggregate(ctx context.Context, aggregateID string, aggregateType string, fromSequence int64) ([]entities.DomainEvent, error) {
	query := r.db.WithContext(ctx).
		Where("aggregate_id = ?", strings.TrimSpace(aggregateID)).
		Where("sequence > ?", fromSequence)
	if strings.TrimSpace(aggregateType) != "" {
		query = query.Where("aggregate_type = ?", strings.TrimSpace(aggregateType))
	}

	var rows []domainEventModel
	if err := query.Order("sequence ASC").Find(&rows).Error; err != nil {
		return nil, r.logError("ledger_repo_list_by_aggregate_failed", err,
			"aggregate_id", strings.TrimSpace(aggregateID),
			"aggregate_type", strings.TrimSpace(aggregateType),
			"from_sequence", fromSequence,
		)
	}
	return toEntities(rows), nil
}

func (r *Repository) ListByType(ctx context.Context, eventType string, from time.Time, to time.Time) ([]entities.DomainEvent, error) {
	query := r.db.WithContext(ctx).
		Where("event_type = ?", strings.TrimSpace(eventType))
	if !from.IsZero() {
		query = query.Where("occurred_at >= ?", from.UTC())
	}
	if !to.IsZero() {
		query = query.Where("occurred_at <= ?", to.UTC())
	}

	var rows []domainEventModel
	if err := query.Order("occurred_at ASC").Find(&rows).Error; err != nil {
		return nil, r.logError("ledger_repo_list_by_type_failed", err,
			"event_type", strings.TrimSpace(eventType),
		)
	}
	return toEntities(rows), nil
}

func (r *Repository) ListAll(ctx context.Context, fromSequence int64, limit int) ([]entities.DomainEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []domainEventModel
	if err := r.db.WithContext(ctx).
		Where("sequence > ?", fromSequence).
		Order("sequence ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, r.logError("ledger_repo_list_all_failed", err,
			"from_sequence", fromSequence,
			"limit", limit,
		)
	}
	return toEntities(rows), nil
}

func (r *Repository) LatestSequence(ctx context.Context) (int64, error) {
	var latest int64
	if err := r.db.WithContext(ctx).
		Model(&domainEventModel{}).
		Select("COALESCE(MAX(sequence), 0)").
		Scan(&latest).Error; err != nil {
		return 0, r.logError("ledger_repo_latest_sequence_failed", err)
	}
	return latest, nil
}

func (r *Repository) GetCheckpoint(ctx context.Context, consumer string) (int64, error) {
	var row checkpointModel
	err := r.db.WithContext(ctx).
		Where("consumer = ?", strings.TrimSpace(consumer)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, r.logError("ledger_repo_get_checkpoint_failed", err,
			"consumer", strings.TrimSpace(consumer),
		)
	}
	return row.Sequence, nil
}

func (r *Repository) SaveCheckpoint(ctx context.Context, consumer string, sequence int64) error {
	row := checkpointModel{
		Consumer:  strings.TrimSpace(consumer),
		Sequence:  sequence,
		UpdatedAt: time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "consumer"}},
		DoUpdates: clause.AssignmentColumns([]string{"sequence", "updated_at"}),
	}).Create(&row).Error; err != nil {
		return r.logError("ledger_repo_save_checkpoint_failed", err,
			"consumer", row.Consumer,
			"sequence", sequence,
		)
	}
	return nil
}

func (r *Repository) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+7)
	fields = append(fields,
		"event", event,
		"module", "equity-core/event-ledger-service",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("event ledger repository failure", fields...)
	return err
}

type domainEventModel struct {
	Sequence      int64     `gorm:"column:sequence;primaryKey;autoIncrement"`
	EventID       string    `gorm:"column:event_id;uniqueIndex"`
	AggregateID   string    `gorm:"column:aggregate_id;index:idx_domain_events_aggregate"`
	AggregateType string    `gorm:"column:aggregate_type;index:idx_domain_events_aggregate"`
	EventType     string    `gorm:"column:event_type;index"`
	EventVersion  int       `gorm:"column:event_version"`
	OccurredAt    time.Time `gorm:"column:occurred_at;index"`
	UserID        string    `gorm:"column:user_id"`
	CorrelationID string    `gorm:"column:correlation_id"`
	Payload       []byte    `gorm:"column:payload;type:jsonb"`
}

func (domainEventModel) TableName() string {
	return "domain_events"
}

func domainEventModelFromEntity(event entities.DomainEvent) (domainEventModel, error) {
	if strings.TrimSpace(event.EventID) == "" ||
		strings.TrimSpace(event.AggregateID) == "" ||
		strings.TrimSpace(event.AggregateType) == "" ||
		strings.TrimSpace(event.EventType) == "" {
		return domainEventModel{}, domainerrors.ErrInvalidEvent
	}
	occurredAt := event.OccurredAt.UTC()
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	return domainEventModel{
		EventID:       strings.TrimSpace(event.EventID),
		AggregateID:   strings.TrimSpace(event.AggregateID),
		AggregateType: strings.TrimSpace(event.AggregateType),
		EventType:     strings.TrimSpace(event.EventType),
		EventVersion:  event.EventVersion,
		OccurredAt:    occurredAt,
		UserID:        strings.TrimSpace(event.Metadata.UserID),
		CorrelationID: strings.TrimSpace(event.Metadata.CorrelationID),
		Payload:       append([]byte(nil), event.Payload...),
	}, nil
}

func (m domainEventModel) toEntity() entities.DomainEvent {
	return entities.DomainEvent{
		EventID:       m.EventID,
		AggregateID:   m.AggregateID,
		AggregateType: m.AggregateType,
		EventType:     m.EventType,
		EventVersion:  m.EventVersion,
		Sequence:      m.Sequence,
		OccurredAt:    m.OccurredAt.UTC(),
		Metadata: entities.Metadata{
			UserID:        m.UserID,
			CorrelationID: m.CorrelationID,
		},
		Payload: append([]byte(nil), m.Payload...),
	}
}

func toEntities(rows []domainEventModel) []entities.DomainEvent {
	events := make([]entities.DomainEvent, 0, len(rows))
	for _, row := range rows {
		events = append(events, row.toEntity())
	}
	return events
}

type checkpointModel struct {
	Consumer  string    `gorm:"column:consumer;primaryKey"`
	Sequence  int64     `gorm:"column:sequence"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (checkpointModel) TableName() string {
	return "ledger_checkpoints"
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ ports.EventStore = (*Repository)(nil)
var _ ports.CheckpointStore = (*Repository)(nil)
