package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func receive(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "channel closed")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return Message{}
	}
}

func TestInMemory_PublishConsume(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := NewInMemory(4)

	require.NoError(t, q.Publish(ctx, Message{Type: TypeUpload, Body: []byte(`{"object_key":"a.csv"}`)}))
	ch, err := q.Consume(ctx)
	require.NoError(t, err)

	msg := receive(t, ch)
	assert.Equal(t, TypeUpload, msg.Type)
	assert.JSONEq(t, `{"object_key":"a.csv"}`, string(msg.Body))

	cancel()
	_, open := <-ch
	assert.False(t, open)
}

func TestInMemory_PublishHonoursContext(t *testing.T) {
	q := NewInMemory(0)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Publish(ctx, Message{}), context.DeadlineExceeded)
}

func TestSerialize(t *testing.T) {
	msg := Message{Type: TypeUpload, Body: []byte(`{"object_key":"a|b.csv"}`)}
	assert.Equal(t, msg, deserialize(serialize(msg)))
	assert.Equal(t, Message{Body: []byte("raw")}, deserialize("raw"))
}

func TestRedisQueue_Publish(t *testing.T) {
	db, mock := redismock.NewClientMock()
	q := NewRedisQueue(db, "", zap.NewNop())

	mock.ExpectLPush("rollcall:uploads", `upload|{"object_key":"a.csv"}`).SetVal(1)
	require.NoError(t, q.Publish(context.Background(), Message{Type: TypeUpload, Body: []byte(`{"object_key":"a.csv"}`)}))

	mock.ExpectLPush("rollcall:uploads", "upload|x").SetErr(errors.New("READONLY"))
	assert.Error(t, q.Publish(context.Background(), Message{Type: TypeUpload, Body: []byte("x")}))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisQueue_Consume(t *testing.T) {
	db, mock := redismock.NewClientMock()
	q := NewRedisQueue(db, "jobs", zap.NewNop())
	mock.ExpectBRPop(5*time.Second, "jobs").SetVal([]string{"jobs", `upload|{"object_key":"a.csv"}`})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := q.Consume(ctx)
	require.NoError(t, err)

	msg := receive(t, ch)
	assert.Equal(t, TypeUpload, msg.Type)
	assert.Equal(t, `{"object_key":"a.csv"}`, string(msg.Body))
}

type fakeKafka struct {
	mu        sync.Mutex
	written   []kafkago.Message
	pending   chan kafkago.Message
	committed []kafkago.Message
}

func (f *fakeKafka) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, msgs...)
	return nil
}

func (f *fakeKafka) FetchMessage(ctx context.Context) (kafkago.Message, error) {
	select {
	case m := <-f.pending:
		return m, nil
	case <-ctx.Done():
		return kafkago.Message{}, ctx.Err()
	}
}

func (f *fakeKafka) CommitMessages(_ context.Context, msgs ...kafkago.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.committed = append(f.committed, msgs...)
	return nil
}

func (f *fakeKafka) commits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.committed)
}

func TestKafkaQueue_PublishAndConsume(t *testing.T) {
	fk := &fakeKafka{pending: make(chan kafkago.Message, 1)}
	q := NewKafkaWith(fk, fk, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, q.Publish(ctx, Message{Type: TypeUpload, Key: "b/a.csv", Body: []byte(`{"id":"1","object_key":"a.csv"}`)}))
	require.NoError(t, q.Publish(ctx, Message{Type: TypeUpload, Key: "b/a.csv", Body: []byte(`{"id":"2","object_key":"a.csv"}`)}))
	require.Len(t, fk.written, 2)
	assert.Equal(t, []kafkago.Header{{Key: typeHeader, Value: []byte(TypeUpload)}}, fk.written[0].Headers)
	assert.Equal(t, []byte("b/a.csv"), fk.written[0].Key)
	assert.Equal(t, fk.written[0].Key, fk.written[1].Key)

	require.NoError(t, q.Publish(ctx, Message{Type: TypeUpload, Body: []byte("x")}))
	require.Len(t, fk.written, 3)
	assert.Nil(t, fk.written[2].Key)

	fk.pending <- fk.written[0]
	ch, err := q.Consume(ctx)
	require.NoError(t, err)
	msg := receive(t, ch)
	assert.Equal(t, TypeUpload, msg.Type)
	assert.Equal(t, "b/a.csv", msg.Key)
	assert.Equal(t, `{"id":"1","object_key":"a.csv"}`, string(msg.Body))

	assert.Eventually(t, func() bool { return fk.commits() == 1 }, time.Second, 10*time.Millisecond)
}
