package unit

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	contractsv1 "equitas/contracts/gen/events/v1"
	eventledger "equitas/contexts/equity-core/event-ledger-service"
	ledgerentities "equitas/contexts/equity-core/event-ledger-service/domain/entities"
	memberregistry "equitas/contexts/equity-core/member-registry-service"
	"equitas/contexts/equity-core/member-registry-service/application/commands"

	"github.com/shopspring/decimal"
)

// busDispatcher mirrors the composition root: committed events from the
// producing services fan out through the ledger bus without re-appending.
type busDispatcher struct {
	ledger eventledger.Module
}

func (d busDispatcher) Dispatch(ctx context.Context, envelope contractsv1.Envelope) error {
	return d.ledger.Bus.Dispatch(ctx, ledgerentities.DomainEvent{
		EventID:       envelope.EventID,
		AggregateID:   envelope.AggregateID,
		AggregateType: envelope.AggregateType,
		EventType:     envelope.EventType,
		EventVersion:  envelope.SchemaVersion,
		Sequence:      envelope.Sequence,
		OccurredAt:    envelope.OccurredAt,
		Metadata: ledgerentities.Metadata{
			UserID:        envelope.UserID,
			CorrelationID: envelope.CorrelationID,
		},
		Payload: envelope.Data,
	})
}

// eventCollector records dispatched ledger events; handlers run concurrently
// so access is locked.
type eventCollector struct {
	mu     sync.Mutex
	events []ledgerentities.DomainEvent
}

func (c *eventCollector) handle(_ context.Context, event ledgerentities.DomainEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *eventCollector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func (c *eventCollector) last() ledgerentities.DomainEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events[len(c.events)-1]
}

func TestMemberLifecycleFansOutThroughLedgerBus(t *testing.T) {
	ctx := context.Background()
	ledger := eventledger.NewInMemoryModule(nil)
	members := memberregistry.NewInMemoryModule(nil, busDispatcher{ledger: ledger}, nil)

	created := &eventCollector{}
	changed := &eventCollector{}
	if err := ledger.Bus.Subscribe(ledgerentities.EventTypeMemberCreated, "created-probe", created.handle); err != nil {
		t.Fatalf("subscribe created: %v", err)
	}
	if err := ledger.Bus.Subscribe(ledgerentities.EventTypeMemberEquityChanged, "changed-probe", changed.handle); err != nil {
		t.Fatalf("subscribe changed: %v", err)
	}

	member, err := members.Commands.CreateMember(ctx, commands.CreateMemberCommand{
		MemberID:         "m-1",
		CompanyID:        "co-1",
		Name:             "Amara",
		EquityPercentage: decimal.NewFromInt(40),
		JoinDate:         time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		ChangedBy:        "founder",
	})
	if err != nil {
		t.Fatalf("create member: %v", err)
	}
	if created.count() != 1 {
		t.Fatalf("created events = %d, want 1", created.count())
	}
	event := created.last()
	if event.AggregateID != member.ID || event.Sequence != 1 {
		t.Fatalf("event aggregate %s sequence %d", event.AggregateID, event.Sequence)
	}

	if _, err := members.Commands.ChangeEquity(ctx, commands.ChangeEquityCommand{
		MemberID:        "m-1",
		NewPercentage:   decimal.NewFromInt(45),
		Reason:          "expanded role",
		ChangedBy:       "founder",
		ExpectedVersion: member.Version,
	}); err != nil {
		t.Fatalf("change equity: %v", err)
	}
	if changed.count() != 1 {
		t.Fatalf("changed events = %d, want 1", changed.count())
	}

	var payload struct {
		NewPercentage decimal.Decimal `json:"new_percentage"`
		ChangeType    string          `json:"change_type"`
	}
	if err := json.Unmarshal(changed.last().Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if !payload.NewPercentage.Equal(decimal.NewFromInt(45)) {
		t.Fatalf("payload percentage = %s, want 45", payload.NewPercentage)
	}
	if payload.ChangeType != ledgerentities.ChangeTypePercentageChange {
		t.Fatalf("change type = %s", payload.ChangeType)
	}
}

func TestLedgerPublishAndReplayRoundTrip(t *testing.T) {
	ctx := context.Background()
	ledger := eventledger.NewInMemoryModule(nil)

	payload := func(changeType string, pct string) []byte {
		data, err := json.Marshal(map[string]any{
			"member_id":      "m-9",
			"new_percentage": pct,
			"change_type":    changeType,
		})
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		return data
	}

	events := []ledgerentities.DomainEvent{
		{AggregateID: "m-9", AggregateType: ledgerentities.AggregateTypeMember, EventType: ledgerentities.EventTypeMemberCreated, Payload: payload(ledgerentities.ChangeTypeInitialGrant, "25")},
		{AggregateID: "m-9", AggregateType: ledgerentities.AggregateTypeMember, EventType: ledgerentities.EventTypeMemberEquityChanged, Payload: payload(ledgerentities.ChangeTypePercentageChange, "30")},
	}
	stored, err := ledger.Bus.PublishAll(ctx, events)
	if err != nil {
		t.Fatalf("publish all: %v", err)
	}
	if stored[0].Sequence != 1 || stored[1].Sequence != 2 {
		t.Fatalf("sequences = %d, %d", stored[0].Sequence, stored[1].Sequence)
	}

	projection, err := ledger.Replayer.RebuildMemberProjection(ctx, "m-9")
	if err != nil {
		t.Fatalf("rebuild projection: %v", err)
	}
	if !projection.EquityPercentage.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("projection percentage = %s, want 30", projection.EquityPercentage)
	}
	if projection.LastSequence != 2 || projection.EventCount != 2 {
		t.Fatalf("projection sequence %d count %d", projection.LastSequence, projection.EventCount)
	}

	// Replay re-dispatches without growing the log.
	replayProbe := &eventCollector{}
	if err := ledger.Bus.Subscribe(ledgerentities.EventTypeMemberEquityChanged, "replay-probe", replayProbe.handle); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	replayed, err := ledger.Replayer.ReplayAll(ctx, 0, 100)
	if err != nil {
		t.Fatalf("replay all: %v", err)
	}
	if replayed != 2 {
		t.Fatalf("replayed = %d, want 2", replayed)
	}
	if replayProbe.count() != 1 {
		t.Fatalf("replay probe = %d, want the one equity_changed event", replayProbe.count())
	}
	latest, err := ledger.Store.LatestSequence(ctx)
	if err != nil {
		t.Fatalf("latest sequence: %v", err)
	}
	if latest != 2 {
		t.Fatalf("latest = %d, replay must not append", latest)
	}
}
