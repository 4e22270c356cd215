package oracle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPolicy_Delays(t *testing.T) {
	linear := NewPolicy(3, BackoffLinear, 2*time.Second, nil)
	assert.Equal(t, 2*time.Second, linear.Delay(1))
	assert.Equal(t, 6*time.Second, linear.Delay(3))

	exp := NewPolicy(3, BackoffExponential, 0, nil)
	assert.Equal(t, 5*time.Second, exp.Delay(1))
	assert.Equal(t, 10*time.Second, exp.Delay(2))
	assert.Equal(t, 20*time.Second, exp.Delay(3))

	explicit := NewPolicy(4, BackoffExponential, time.Second, []time.Duration{time.Second, 3 * time.Second})
	assert.Equal(t, time.Second, explicit.Delay(1))
	assert.Equal(t, 3*time.Second, explicit.Delay(2))
	assert.Equal(t, 3*time.Second, explicit.Delay(4), "last delay repeats")
}

func TestPolicy_Attempts(t *testing.T) {
	assert.Equal(t, 1, NewPolicy(0, BackoffLinear, 0, nil).Attempts())
	assert.Equal(t, 4, ZeroDelay(3).Attempts())
	assert.Equal(t, 1, Policy{MaxRetries: -2}.Attempts())
}

func TestPolicy_WaitHonorsContext(t *testing.T) {
	p := NewPolicy(1, BackoffLinear, time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Wait(ctx, 1), context.Canceled)

	var slept []time.Duration
	p.Sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	assert.NoError(t, p.Wait(context.Background(), 2))
	assert.Equal(t, []time.Duration{2 * time.Hour}, slept)
}
