package publish

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/chassisctl/internal/cooling"
	"codeberg.org/mutker/chassisctl/internal/errors"
	"codeberg.org/mutker/chassisctl/internal/logger"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doneToken struct {
	err error
}

func (t *doneToken) Wait() bool                     { return true }
func (t *doneToken) WaitTimeout(time.Duration) bool { return true }
func (t *doneToken) Error() error                   { return t.err }

func (t *doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic    string
	retained bool
	payload  []byte
}

type fakeSender struct {
	mu    sync.Mutex
	msgs  []published
	block chan struct{}
}

func (s *fakeSender) Publish(topic string, _ byte, retained bool, payload interface{}) mqtt.Token {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, published{topic: topic, retained: retained, payload: payload.([]byte)})
	return &doneToken{}
}

func (s *fakeSender) messages() []published {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]published(nil), s.msgs...)
}

func zoneState(zone string, speed float64) cooling.ZoneState {
	return cooling.ZoneState{
		Report: cooling.ZoneReport{Zone: zone, Speed: speed, Sensor: "ASIC"},
		Export: cooling.ZoneExport{Name: zone},
	}
}

func TestPublishZoneState(t *testing.T) {
	s := &fakeSender{}
	p := newPublisher(Config{Topic: "chassisctl/cooling", Retain: true}, s, logger.With("publish"))

	require.NoError(t, p.Observe(context.Background(), zoneState("System", 42)))
	require.NoError(t, p.Close())

	msgs := s.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "chassisctl/cooling/System", msgs[0].topic)
	assert.True(t, msgs[0].retained)

	var got cooling.ZoneState
	require.NoError(t, json.Unmarshal(msgs[0].payload, &got))
	assert.Equal(t, 42.0, got.Report.Speed)
	assert.Equal(t, "ASIC", got.Report.Sensor)
}

func TestPublishQueueFull(t *testing.T) {
	s := &fakeSender{block: make(chan struct{})}
	p := newPublisher(Config{Topic: "t", QueueSize: 1}, s, logger.With("publish"))

	ctx := context.Background()
	var full error
	// the worker holds one message, the queue one more
	for i := 0; i < 3 && full == nil; i++ {
		full = p.Observe(ctx, zoneState("System", float64(i)))
	}
	assert.True(t, errors.HasCode(full, ErrQueueFull))

	close(s.block)
	require.NoError(t, p.Close())
	assert.NotEmpty(t, s.messages())
}

func TestPublishAfterClose(t *testing.T) {
	p := newPublisher(Config{Topic: "t"}, &fakeSender{}, logger.With("publish"))
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	err := p.Observe(context.Background(), zoneState("System", 50))
	assert.True(t, errors.HasCode(err, ErrClosed))
}
