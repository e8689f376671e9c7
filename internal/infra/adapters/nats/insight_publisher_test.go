package nats

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrave1/VanishRoom/internal/domain/models"
)

type recordingConn struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (c *recordingConn) Publish(subject string, data []byte) error {
	if c.err != nil {
		return c.err
	}
	c.subjects = append(c.subjects, subject)
	c.payloads = append(c.payloads, data)
	return nil
}

func (c *recordingConn) Close() {}

func TestNatsPublisher_Publish(t *testing.T) {
	conn := &recordingConn{}
	p := &natsPublisher{nc: conn, prefix: "insights"}

	event := models.InsightEvent{
		Kind:     models.InsightRoomLocked,
		RoomCode: "123456",
		At:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	require.NoError(t, p.Publish(context.Background(), event))
	require.Equal(t, []string{"insights.room_locked"}, conn.subjects)

	var got models.InsightEvent
	require.NoError(t, json.Unmarshal(conn.payloads[0], &got))
	assert.Equal(t, "123456", got.RoomCode)
}

func TestNatsPublisher_PublishError(t *testing.T) {
	p := &natsPublisher{nc: &recordingConn{err: errors.New("nats: connection closed")}, prefix: "insights"}

	err := p.Publish(context.Background(), models.InsightEvent{Kind: models.InsightRoomVanished})
	assert.ErrorContains(t, err, "publish insight")
}
