package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func TestMock_After(t *testing.T) {
	c := NewMock(epoch)

	ch := c.After(2 * time.Second)
	assert.Equal(t, 1, c.Waiters())

	c.Advance(time.Second)
	select {
	case <-ch:
		t.Fatal("fired before deadline")
	default:
	}

	c.Advance(time.Second)
	select {
	case got := <-ch:
		assert.Equal(t, epoch.Add(2*time.Second), got)
	default:
		t.Fatal("did not fire at deadline")
	}
	assert.Equal(t, 0, c.Waiters())
}

func TestMock_AfterNonPositiveFiresImmediately(t *testing.T) {
	c := NewMock(epoch)

	select {
	case <-c.After(0):
	default:
		t.Fatal("expected immediate fire")
	}
}

func TestMock_SinceAndSet(t *testing.T) {
	c := NewMock(epoch)
	c.Advance(1500 * time.Millisecond)
	assert.Equal(t, 1500*time.Millisecond, c.Since(epoch))

	c.Set(epoch)
	assert.Equal(t, time.Duration(0), c.Since(epoch))
}

func TestMock_TickerDropsMissedTicks(t *testing.T) {
	c := NewMock(epoch)
	tk := c.NewTicker(10 * time.Millisecond)
	defer tk.Stop()

	c.Advance(10 * time.Millisecond)
	c.Advance(10 * time.Millisecond)
	c.Advance(10 * time.Millisecond)

	<-tk.C()
	select {
	case <-tk.C():
		t.Fatal("expected missed ticks to be dropped")
	default:
	}
}

func TestFramePacer_Wait(t *testing.T) {
	c := NewMock(epoch)
	p := NewFramePacer(c, 16*time.Millisecond)
	defer p.Stop()

	done := make(chan error, 1)
	go func() { done <- p.Wait(context.Background()) }()

	// The ticker may be advanced before the goroutine selects; the buffered
	// tick channel keeps the tick either way.
	c.Advance(16 * time.Millisecond)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after a frame")
	}
}

func TestFramePacer_WaitCancelled(t *testing.T) {
	p := NewFramePacer(NewMock(epoch), time.Second)
	defer p.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, p.Wait(ctx), context.Canceled)
}

func TestManualPacer(t *testing.T) {
	p := NewManualPacer()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	iterations := make(chan int, 10)
	go func() {
		for i := 0; ; i++ {
			iterations <- i
			if err := p.Wait(ctx); err != nil {
				return
			}
		}
	}()

	require.True(t, p.AwaitWait(time.Second))
	assert.Equal(t, 0, <-iterations)

	require.True(t, p.Step(time.Second))
	require.True(t, p.AwaitWait(time.Second))
	assert.Equal(t, 1, <-iterations)
}

func TestManualPacer_StepWithoutWaiter(t *testing.T) {
	p := NewManualPacer()
	assert.False(t, p.Step(20*time.Millisecond))
}
