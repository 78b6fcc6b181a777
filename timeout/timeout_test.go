package timeout

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAwaitDeliversInTime(t *testing.T) {
	ch := make(chan int, 1)
	ch <- 42
	v, err := Await(50*time.Millisecond, ch)
	assert.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestAwaitElapses(t *testing.T) {
	ch := make(chan int)
	start := time.Now()
	_, err := Await(30*time.Millisecond, ch)
	assert.Equal(t, ErrElapsed, err)
	assert.True(t, time.Since(start) >= 30*time.Millisecond)
}

func TestAwaitLeavesLateValue(t *testing.T) {
	ch := make(chan int, 1)
	_, err := Await(20*time.Millisecond, ch)
	assert.Equal(t, ErrElapsed, err)

	ch <- 7
	select {
	case v := <-ch:
		assert.Equal(t, 7, v)
	default:
		t.Fatal("late value should still be on the channel")
	}
}

func TestAwaitContextCancel(t *testing.T) {
	ch := make(chan int)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := AwaitContext(ctx, 0, ch)
	assert.Equal(t, context.Canceled, err)
}

func TestAwaitContextDeadline(t *testing.T) {
	ch := make(chan int)
	_, err := AwaitContext(context.Background(), 20*time.Millisecond, ch)
	assert.Equal(t, ErrElapsed, err)
}
