package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"trtlbridge/types"
)

type published struct {
	exchange, key string
	msg           amqp.Publishing
}

type fakeChannel struct {
	sent   []published
	fail   error
	closed bool
}

func (f *fakeChannel) Publish(exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.fail != nil {
		return f.fail
	}
	f.sent = append(f.sent, published{exchange, key, msg})
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func newTestBroker(channels ...*fakeChannel) (*Broker, *int) {
	opened := 0
	return &Broker{
		exchange: "bridge",
		logger:   zap.NewNop(),
		open: func() (channel, error) {
			if opened >= len(channels) {
				return nil, errors.New("no more channels")
			}
			ch := channels[opened]
			opened++
			return ch, nil
		},
	}, &opened
}

func TestPublish(t *testing.T) {
	ch := &fakeChannel{}
	b, opened := newTestBroker(ch)
	rec := &types.BridgeRecord{ID: "abc", SourceTxHash: "hash1", Status: types.StatusCompleted}

	require.NoError(t, b.Publish(context.Background(), KeyCompleted, rec, ""))
	require.NoError(t, b.Publish(context.Background(), KeyCompleted, rec, ""))
	assert.Equal(t, 1, *opened)
	require.Len(t, ch.sent, 2)

	got := ch.sent[0]
	assert.Equal(t, "bridge", got.exchange)
	assert.Equal(t, KeyCompleted, got.key)
	assert.Equal(t, "application/json", got.msg.ContentType)
	assert.Equal(t, "hash1", got.msg.Headers["x-source-tx"])

	var ev Event
	require.NoError(t, json.Unmarshal(got.msg.Body, &ev))
	assert.Equal(t, KeyCompleted, ev.Type)
	assert.Equal(t, "abc", ev.Record.ID)
}

func TestPublish_ReopensBrokenChannel(t *testing.T) {
	broken := &fakeChannel{fail: errors.New("channel closed")}
	healthy := &fakeChannel{}
	b, opened := newTestBroker(broken, healthy)
	rec := &types.BridgeRecord{ID: "abc", SourceTxHash: "hash1"}

	require.Error(t, b.Publish(context.Background(), KeyFailed, rec, "exhausted"))
	assert.True(t, broken.closed)

	require.NoError(t, b.Publish(context.Background(), KeyFailed, rec, "exhausted"))
	assert.Equal(t, 2, *opened)
	require.Len(t, healthy.sent, 1)

	var ev Event
	require.NoError(t, json.Unmarshal(healthy.sent[0].msg.Body, &ev))
	assert.Equal(t, "exhausted", ev.Reason)
}

func TestNoop(t *testing.T) {
	var p Publisher = Noop{}
	assert.NoError(t, p.Publish(context.Background(), KeyCreated, &types.BridgeRecord{}, ""))
	assert.NoError(t, p.Close())
}
