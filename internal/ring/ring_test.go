package ring

import "testing"

func TestPushPopFIFO(t *testing.T) {
	r := New[int](8)
	for i := 0; i < 5; i++ {
		if !r.Push(i) {
			t.Fatalf("push %d rejected on non-full ring", i)
		}
	}
	for i := 0; i < 5; i++ {
		v, ok := r.Pop()
		if !ok {
			t.Fatalf("pop %d failed on non-empty ring", i)
		}
		if v != i {
			t.Fatalf("expected %d, got %d", i, v)
		}
	}
	if _, ok := r.Pop(); ok {
		t.Fatalf("expected empty ring")
	}
}

func TestFullRingDropsNewest(t *testing.T) {
	r := New[int](4)
	for i := 0; i < 4; i++ {
		if !r.Push(i) {
			t.Fatalf("push %d rejected", i)
		}
	}
	if r.Push(99) {
		t.Fatalf("expected push rejected on full ring")
	}
	if r.Dropped() != 1 {
		t.Fatalf("expected 1 drop, got %d", r.Dropped())
	}
	// Existing contents survive the rejected push.
	for i := 0; i < 4; i++ {
		v, ok := r.Pop()
		if !ok || v != i {
			t.Fatalf("expected %d, got %d ok=%v", i, v, ok)
		}
	}
}

func TestWraparoundPreservesOrder(t *testing.T) {
	r := New[int](4)
	next := 0
	for round := 0; round < 10; round++ {
		for i := 0; i < 3; i++ {
			if !r.Push(round*3 + i) {
				t.Fatalf("push rejected at round %d", round)
			}
		}
		for i := 0; i < 3; i++ {
			v, ok := r.Pop()
			if !ok || v != next {
				t.Fatalf("expected %d, got %d ok=%v", next, v, ok)
			}
			next++
		}
	}
}

func TestInvalidCapacityPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for non-power-of-two capacity")
		}
	}()
	New[int](6)
}

// One producer, one consumer: every accepted element arrives exactly once,
// in order.
func TestConcurrentSPSC(t *testing.T) {
	const total = 200_000
	r := New[uint64](1024)
	accepted := make(chan uint64, 1)
	go func() {
		var n uint64
		for i := uint64(0); i < total; i++ {
			if r.Push(i) {
				n++
			}
		}
		accepted <- n
	}()

	var got []uint64
	var acceptedCount uint64
	haveCount := false
	for {
		if v, ok := r.Pop(); ok {
			got = append(got, v)
			continue
		}
		if !haveCount {
			select {
			case acceptedCount = <-accepted:
				haveCount = true
			default:
			}
			continue
		}
		if uint64(len(got)) >= acceptedCount {
			break
		}
	}

	if uint64(len(got)) != acceptedCount {
		t.Fatalf("expected %d delivered, got %d", acceptedCount, len(got))
	}
	if acceptedCount+r.Dropped() != total {
		t.Fatalf("accepted %d + dropped %d != %d", acceptedCount, r.Dropped(), total)
	}
	for i := 1; i < len(got); i++ {
		if got[i] <= got[i-1] {
			t.Fatalf("order violated at %d: %d after %d", i, got[i], got[i-1])
		}
	}
}
