package retry

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/dvloznov/points-exporter/internal/config"
	"github.com/dvloznov/points-exporter/internal/logger"
	"github.com/stretchr/testify/assert"
)

var fastPolicy = config.Retry{
	InitialInterval: time.Millisecond,
	MaxInterval:     2 * time.Millisecond,
	MaxElapsed:      time.Second,
}

func quietContext() context.Context {
	return logger.WithContext(context.Background(), logger.NewWithWriter(io.Discard))
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(quietContext(), fastPolicy, "flaky", func() error {
		calls++
		if calls < 3 {
			return errors.New("temporary")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	sentinel := errors.New("bad input")
	calls := 0
	err := Do(quietContext(), fastPolicy, "permanent", func() error {
		calls++
		return Permanent(sentinel)
	})

	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, calls)
}

func TestDo_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(quietContext())
	cancel()

	calls := 0
	err := Do(ctx, fastPolicy, "cancelled", func() error {
		calls++
		return errors.New("temporary")
	})

	assert.Error(t, err)
	assert.LessOrEqual(t, calls, 1)
}

func TestPermanent_Nil(t *testing.T) {
	assert.NoError(t, Permanent(nil))
}
