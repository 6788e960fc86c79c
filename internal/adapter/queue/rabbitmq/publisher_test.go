package rabbitmq

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/quantum-task-queue/internal/domain"
)

func TestBuildPublishing_WireFormat(t *testing.T) {
	t.Parallel()
	msg := domain.TaskMessage{TaskID: "7c8e9f3a-1111-4222-8333-444455556666", Circuit: "OPENQASM 3; qubit q;"}

	pub, err := buildPublishing(msg, "corr-123")
	require.NoError(t, err)

	assert.Equal(t, "application/json", pub.ContentType)
	assert.Equal(t, uint8(amqp.Persistent), pub.DeliveryMode)
	assert.Equal(t, "corr-123", pub.CorrelationId)
	assert.WithinDuration(t, time.Now().UTC(), pub.Timestamp, 5*time.Second)

	_, err = uuid.Parse(pub.MessageId)
	assert.NoError(t, err, "message_id must be a UUID")

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(pub.Body, &decoded))
	assert.Equal(t, map[string]string{
		"task_id": msg.TaskID,
		"circuit": msg.Circuit,
	}, decoded)
}

func TestBuildPublishing_FreshMessageIDPerCall(t *testing.T) {
	t.Parallel()
	msg := domain.TaskMessage{TaskID: "a", Circuit: "b"}
	p1, err := buildPublishing(msg, "")
	require.NoError(t, err)
	p2, err := buildPublishing(msg, "")
	require.NoError(t, err)
	assert.NotEqual(t, p1.MessageId, p2.MessageId)
}
