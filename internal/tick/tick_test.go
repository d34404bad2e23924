package tick

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"
)

func TestCounterConcurrentIncrementLosesNothing(t *testing.T) {
	var c Counter
	const writers, incs = 8, 1000

	var wg sync.WaitGroup
	stop := make(chan struct{})
	readerErr := make(chan string, 1)
	go func() {
		var last uint32
		for {
			select {
			case <-stop:
				readerErr <- ""
				return
			default:
			}
			now := c.Millis()
			if now < last {
				readerErr <- "counter went backwards"
				return
			}
			last = now
		}
	}()

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < incs; j++ {
				c.Inc(5)
			}
		}()
	}
	wg.Wait()
	close(stop)
	if msg := <-readerErr; msg != "" {
		t.Fatal(msg)
	}
	if got := c.Millis(); got != writers*incs*5 {
		t.Fatalf("Millis = %d, want %d", got, writers*incs*5)
	}
}

func TestElapsedAcrossWrap(t *testing.T) {
	var c Counter
	c.Inc(math.MaxUint32 - 2)
	start := c.Millis()
	c.Inc(10)
	if got := c.Elapsed(start); got != 10 {
		t.Fatalf("Elapsed = %d", got)
	}
}

func TestSourceAdvancesAndStops(t *testing.T) {
	var c Counter
	s := NewSource(&c, time.Millisecond)
	s.Start(context.Background())
	s.Start(context.Background()) // no-op

	deadline := time.Now().Add(2 * time.Second)
	for c.Millis() < 10 {
		if time.Now().After(deadline) {
			t.Fatal("source did not advance")
		}
		time.Sleep(time.Millisecond)
	}
	s.Stop()
	after := c.Millis()
	time.Sleep(10 * time.Millisecond)
	if c.Millis() != after {
		t.Fatal("counter advanced after Stop")
	}
	s.Stop() // idempotent
}

func TestSourceStopsOnContextCancel(t *testing.T) {
	var c Counter
	s := NewSource(&c, 0)
	if s.Period != DefaultPeriod {
		t.Fatalf("default period %v", s.Period)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	cancel()
	s.Stop()
}

func TestStepperCarriesFractionalMillis(t *testing.T) {
	st := stepper{period: 2500 * time.Microsecond}
	var got []uint32
	var total uint32
	for i := 0; i < 4; i++ {
		ms := st.next()
		got = append(got, ms)
		total += ms
	}
	if total != 10 {
		t.Fatalf("4 ticks of 2.5ms added %d, want 10 (%v)", total, got)
	}
	if got[0] != 2 || got[1] != 3 {
		t.Fatalf("steps = %v", got)
	}

	fine := stepper{period: 250 * time.Microsecond}
	total = 0
	for i := 0; i < 400; i++ {
		total += fine.next()
	}
	if total != 100 {
		t.Fatalf("400 ticks of 250us added %d, want 100", total)
	}
}
