package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/medicart/medicart-api/pkg/config"
	"github.com/medicart/medicart-api/pkg/db/dbtest"
	"github.com/medicart/medicart-api/pkg/db/models"
	"github.com/medicart/medicart-api/pkg/enums"
	"github.com/medicart/medicart-api/pkg/outbox/payloads"
)

func TestServiceEmitStoresEnvelope(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)

	orderID := uuid.New()
	actor := &ActorRef{UserID: uuid.New(), Role: string(enums.UserRoleCustomer)}
	err := svc.Emit(context.Background(), conn, DomainEvent{
		EventType:     enums.EventOrderPlaced,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Actor:         actor,
		Data:          payloads.OrderPlacedEvent{OrderID: orderID, OrderNumber: "MC20261019-ABC123", TotalCents: 9720},
	})
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, conn.Find(&rows).Error)
	require.Len(t, rows, 1)
	require.Equal(t, enums.EventOrderPlaced, rows[0].EventType)
	require.Equal(t, orderID, rows[0].AggregateID)

	env, err := DecodeEnvelope(rows[0].Payload)
	require.NoError(t, err)
	require.Equal(t, currentVersion, env.Version)
	require.NotEmpty(t, env.EventID)
	require.Equal(t, actor.UserID, env.Actor.UserID)

	var data payloads.OrderPlacedEvent
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Equal(t, 9720, data.TotalCents)
}

func TestServiceEmitRejectsUnknownTypes(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), nil)

	err := svc.Emit(context.Background(), conn, DomainEvent{
		EventType:     enums.OutboxEventType("nope"),
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
	})
	require.Error(t, err)

	err = svc.Emit(context.Background(), nil, DomainEvent{
		EventType:     enums.EventOrderPlaced,
		AggregateType: enums.AggregateOrder,
	})
	require.Error(t, err)
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)

	first := seedEvent(t, conn, time.Now().Add(-2*time.Minute))
	second := seedEvent(t, conn, time.Now().Add(-time.Minute))

	rows, err := repo.FetchUnpublishedForPublish(conn, 10, 3)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, first.ID, rows[0].ID)

	require.NoError(t, repo.MarkPublishedTx(conn, first.ID))
	require.NoError(t, repo.MarkFailedTx(conn, second.ID, errors.New("boom")))

	rows, err = repo.FetchUnpublishedForPublish(conn, 10, 3)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, 1, rows[0].AttemptCount)
	require.Equal(t, "boom", *rows[0].LastError)

	require.NoError(t, repo.MarkTerminalTx(conn, second.ID, errors.New("bad payload"), 3))
	rows, err = repo.FetchUnpublishedForPublish(conn, 10, 3)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestRepositoryDeletePublishedBefore(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)

	old := seedEvent(t, conn, time.Now().Add(-48*time.Hour))
	recent := seedEvent(t, conn, time.Now())
	pending := seedEvent(t, conn, time.Now().Add(-48*time.Hour))

	oldPublished := time.Now().UTC().Add(-47 * time.Hour)
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Where("id = ?", old.ID).Update("published_at", oldPublished).Error)
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Where("id = ?", recent.ID).Update("published_at", time.Now().UTC()).Error)

	deleted, err := repo.DeletePublishedBefore(context.Background(), time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)

	var remaining []models.OutboxEvent
	require.NoError(t, conn.Order("created_at ASC").Find(&remaining).Error)
	ids := []uuid.UUID{remaining[0].ID, remaining[1].ID}
	require.ElementsMatch(t, []uuid.UUID{recent.ID, pending.ID}, ids)
}

func TestTopicRegistryResolve(t *testing.T) {
	registry, err := NewTopicRegistry(config.PubSubConfig{
		OrdersTopic:        "orders",
		PrescriptionsTopic: "rx",
		DeliveryTopic:      "delivery",
	})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"orders", "rx", "delivery"}, registry.Topics())

	payload, _ := json.Marshal(PayloadEnvelope{Version: 1, EventID: "evt-1", Data: json.RawMessage(`{}`)})
	resolved, err := registry.Resolve(models.OutboxEvent{
		EventType:     enums.EventPrescriptionReviewed,
		AggregateType: enums.AggregatePrescription,
		Payload:       payload,
	})
	require.NoError(t, err)
	require.Equal(t, "rx", resolved.Topic)
	require.Equal(t, "evt-1", resolved.Envelope.EventID)

	_, err = registry.Resolve(models.OutboxEvent{
		EventType:     enums.EventOrderPlaced,
		AggregateType: enums.AggregateOrder,
		Payload:       json.RawMessage(`not-json`),
	})
	var nonRetry NonRetryableError
	require.ErrorAs(t, err, &nonRetry)
}

func TestNewTopicRegistryRequiresTopics(t *testing.T) {
	_, err := NewTopicRegistry(config.PubSubConfig{OrdersTopic: "orders"})
	require.Error(t, err)
}

func seedEvent(t *testing.T, conn *gorm.DB, createdAt time.Time) models.OutboxEvent {
	t.Helper()
	row := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"version":1,"eventId":"x","data":{}}`),
		CreatedAt:     createdAt.UTC(),
	}
	require.NoError(t, conn.Create(&row).Error)
	return row
}
