package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/ignite/optin/internal/domain"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed int
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed++
	return nil
}

func TestKafkaSink_PublishesKeyedJSON(t *testing.T) {
	w := &fakeWriter{}
	sink := &KafkaSink{writer: w}
	ev := domain.NewEvent("a@x.io", domain.EventConfirm, map[string]any{"ip": "1.2.3.4"})

	require.NoError(t, sink.Publish(context.Background(), ev))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "a@x.io", string(w.msgs[0].Key))

	var decoded domain.Event
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, domain.EventConfirm, decoded.Type)
	assert.Equal(t, ev.UID, decoded.UID)
	assert.Equal(t, "event-id", w.msgs[0].Headers[0].Key)
}

func TestKafkaSink_ClosedRejects(t *testing.T) {
	w := &fakeWriter{}
	sink := &KafkaSink{writer: w}
	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close())
	assert.Equal(t, 1, w.closed)
	assert.Error(t, sink.Publish(context.Background(), domain.NewEvent("", domain.EventConfirmInvalid, nil)))
}

func TestNewKafkaSink_Validates(t *testing.T) {
	_, err := NewKafkaSink(nil, "topic")
	assert.Error(t, err)
	_, err = NewKafkaSink([]string{"localhost:9092"}, "")
	assert.Error(t, err)
}

func TestMulti_JoinsErrors(t *testing.T) {
	ok := &KafkaSink{writer: &fakeWriter{}}
	bad := &KafkaSink{writer: &fakeWriter{err: errors.New("broker down")}}
	m := Multi{LogSink{}, ok, bad}

	err := m.Publish(context.Background(), domain.NewEvent("a@x.io", domain.EventSubscribe, nil))
	assert.ErrorContains(t, err, "broker down")
	assert.Len(t, ok.writer.(*fakeWriter).msgs, 1)
	assert.NoError(t, m.Close())
}
