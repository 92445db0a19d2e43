package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	amqp "github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	mu         sync.Mutex
	publishErr error
	published  []published
	bindings   []string
	deliveries chan amqp.Delivery
	closed     bool
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{deliveries: make(chan amqp.Delivery, 4)}
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	return nil
}

func (f *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	f.bindings = append(f.bindings, exchange+"/"+key+"->"+name)
	return nil
}

func (f *fakeChannel) Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (f *fakeChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	return f.deliveries, nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

type fakeAcknowledger struct {
	mu     sync.Mutex
	acked  []uint64
	nacked []uint64
}

func (a *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = append(a.acked, tag)
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacked = append(a.nacked, tag)
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func (a *fakeAcknowledger) counts() (int, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.acked), len(a.nacked)
}

func TestNewWithChannelDeclaresTopology(t *testing.T) {
	ch := newFakeChannel()
	_, err := NewWithChannel(ch, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []string{"storefront.events/order.*->order_queue"}, ch.bindings)
}

func TestPublishSendsJSON(t *testing.T) {
	ch := newFakeChannel()
	client, err := NewWithChannel(ch, nil)
	require.NoError(t, err)

	err = client.Publish(context.Background(), "order.created", map[string]string{"order_id": "o-1"})
	require.NoError(t, err)

	require.Len(t, ch.published, 1)
	got := ch.published[0]
	assert.Equal(t, ExchangeName, got.exchange)
	assert.Equal(t, "order.created", got.key)
	assert.Equal(t, "application/json", got.msg.ContentType)
	assert.Equal(t, amqp.Persistent, got.msg.DeliveryMode)

	var body map[string]string
	require.NoError(t, json.Unmarshal(got.msg.Body, &body))
	assert.Equal(t, "o-1", body["order_id"])
}

func TestPublishOpensBreakerAfterFailures(t *testing.T) {
	ch := newFakeChannel()
	ch.publishErr = errors.New("channel/connection is not open")
	client, err := NewWithChannel(ch, nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		err := client.Publish(context.Background(), "order.created", struct{}{})
		require.Error(t, err)
		assert.NotErrorIs(t, err, gobreaker.ErrOpenState)
	}

	err = client.Publish(context.Background(), "order.created", struct{}{})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}

func TestPublishAfterClose(t *testing.T) {
	ch := newFakeChannel()
	client, err := NewWithChannel(ch, nil)
	require.NoError(t, err)

	require.NoError(t, client.Close())
	assert.True(t, ch.closed)
	assert.ErrorIs(t, client.Publish(context.Background(), "order.created", struct{}{}), ErrClosed)
	assert.NoError(t, client.Close())
}

func TestConsumeOrderEventsAcksAndNacks(t *testing.T) {
	ch := newFakeChannel()
	client, err := NewWithChannel(ch, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, client.ConsumeOrderEvents(ctx, LogOrderEvent(zap.NewNop())))

	ack := &fakeAcknowledger{}
	ch.deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, RoutingKey: "order.created", Body: []byte(`{"order_id":"o-1","status":"pending"}`)}
	ch.deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 2, RoutingKey: "order.created", Body: []byte(`not json`)}

	assert.Eventually(t, func() bool {
		acked, nacked := ack.counts()
		return acked == 1 && nacked == 1
	}, time.Second, 10*time.Millisecond)
}
