// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/Thermoquad/rylink/pkg/sched"
	"github.com/stretchr/testify/require"
)

// getFuzzRounds returns the number of rounds from FUZZ_ROUNDS, default 200
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 200
}

// getFuzzSeed returns the seed from FUZZ_SEED, or one from the current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

func randomStream(rng *rand.Rand, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(1 + rng.Intn(255))
	}
	return out
}

// TestFuzzInterleavedDelivery races interrupts against the parse task. As
// long as no overrun is reported, every delivered byte comes out exactly
// once, in order, either in a parsed frame or still in the buffer.
func TestFuzzInterleavedDelivery(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	for round := 0; round < rounds; round++ {
		stream := randomStream(rng, 1+rng.Intn(512))
		framing := FixedFraming(1 + rng.Intn(DefaultCapacity))
		if rng.Intn(2) == 0 {
			framing = SentinelFraming()
		}

		src := &fakeSource{}
		rec := &recorder{}
		cfg := DefaultConfig()
		cfg.Framing = framing
		cfg.Sequence = false
		cfg.HeartbeatInterval = 0
		l, err := New(src, cfg, WithObserver(rec))
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		var wg sync.WaitGroup
		var runErr error
		wg.Add(1)
		go func() {
			defer wg.Done()
			runErr = l.Run(ctx)
		}()

		rest := stream
		for len(rest) > 0 {
			n := 1 + rng.Intn(16)
			if n > len(rest) {
				n = len(rest)
			}
			src.deliver(rest[:n])
			rest = rest[n:]
			require.NoError(t, l.HandleInterrupt(), "round %d", round)
			if rng.Intn(4) == 0 {
				time.Sleep(time.Duration(rng.Intn(50)) * time.Microsecond)
			}
		}

		cancel()
		wg.Wait()
		require.True(t, errors.Is(runErr, context.Canceled), "round %d: %v", round, runErr)

		_, err = l.Scheduler().RunPending(context.Background())
		require.NoError(t, err)

		var got []byte
		for _, f := range rec.frames {
			require.NotEmpty(t, f.Data)
			got = append(got, f.Data...)
		}
		l.buf.Lock(func(fb *FrameBuffer) {
			got = append(got, fb.Snapshot()[:min(fb.Received(), fb.Cap())]...)
		})

		require.Equal(t, len(stream), rec.received, "round %d", round)
		if rec.overruns == 0 {
			require.True(t, bytes.Equal(stream, got), "round %d (%s): stream mismatch", round, framing)
		}
	}
}

// TestFuzzParseRequestsCoalesce checks that however interrupts and parse
// runs interleave, the coalescing parse task never reports busy.
func TestFuzzParseRequestsCoalesce(t *testing.T) {
	rng := newFuzzRng(t)

	s := sched.New()
	src := &fakeSource{}
	cfg := DefaultConfig()
	cfg.Framing = FixedFraming(1)
	cfg.Sequence = false
	cfg.HeartbeatInterval = 0
	l, err := New(src, cfg, WithScheduler(s))
	require.NoError(t, err)

	for i := 0; i < getFuzzRounds(); i++ {
		src.deliver(randomStream(rng, 1+rng.Intn(4)))
		require.NoError(t, l.HandleInterrupt())
		require.LessOrEqual(t, s.Pending(l.parseTask), 1)
		if rng.Intn(3) == 0 {
			_, err := s.RunPending(context.Background())
			require.NoError(t, err)
		}
	}
}
