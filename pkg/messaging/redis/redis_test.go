package redis

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/medvault-api/pkg/metrics"
)

func TestNewRedisBroker_BadURL(t *testing.T) {
	log := zerolog.Nop()
	_, err := NewRedisBroker(Config{URL: "not a url"}, &log, nil)
	assert.ErrorContains(t, err, "failed to parse Redis URL")
}

func TestPublish_BreakerOpensOnRepeatedFailures(t *testing.T) {
	log := zerolog.Nop()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 100 * time.Millisecond,
	})
	defer client.Close()

	settings := breakerSettings(&log)
	settings.Timeout = time.Minute
	m := metrics.NewNop()
	b := newBroker(client, settings, &log, m)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		err := b.Publish(ctx, "appointment.booked", map[string]int{"n": i})
		require.Error(t, err)
		assert.NotErrorIs(t, err, gobreaker.ErrOpenState)
	}

	err := b.Publish(ctx, "appointment.booked", map[string]int{"n": 5})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, gobreaker.StateOpen, b.cb.State())
	assert.Equal(t, 6.0, testutil.ToFloat64(m.RedisOperations.WithLabelValues("publish", "error")))
}

func TestPublish_RejectsUnmarshalable(t *testing.T) {
	log := zerolog.Nop()
	b := newBroker(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}), breakerSettings(&log), &log, nil)
	err := b.Publish(context.Background(), "x", make(chan int))
	assert.ErrorContains(t, err, "failed to marshal message")
}
