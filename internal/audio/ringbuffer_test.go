package audio

import (
	"bytes"
	"sync"
	"testing"
	"time"
)

func seq(start, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(start + i)
	}
	return b
}

func TestRingBufferFIFO(t *testing.T) {
	t.Parallel()
	rb := NewRingBuffer(16)

	if got := rb.Free(); got != 15 {
		t.Fatalf("Free = %d, want 15", got)
	}

	var want []byte
	var got []byte
	next := 0
	// Interleave writes and reads so the indices wrap several times.
	for round := 0; round < 20; round++ {
		chunk := seq(next, 5+round%4)
		next += len(chunk)
		if d := rb.Write(chunk); d != 0 {
			t.Fatalf("round %d: unexpected drop of %d bytes", round, d)
		}
		want = append(want, chunk...)

		out := make([]byte, 3+round%5)
		n := rb.Read(out)
		got = append(got, out[:n]...)

		// Keep the backlog below capacity.
		for rb.Available() > 4 {
			n := rb.Read(out)
			got = append(got, out[:n]...)
		}
	}
	rest := make([]byte, 16)
	n := rb.Read(rest)
	got = append(got, rest[:n]...)

	if !bytes.Equal(got, want) {
		t.Fatalf("read bytes differ from written bytes\n got %v\nwant %v", got, want)
	}
}

func TestRingBufferWrapSplitsCopy(t *testing.T) {
	t.Parallel()
	rb := NewRingBuffer(8)

	rb.Write(seq(0, 6))
	out := make([]byte, 6)
	rb.Read(out)

	// writePos is 6; this write crosses the end of the store.
	rb.Write(seq(100, 5))
	out = make([]byte, 5)
	if n := rb.Read(out); n != 5 {
		t.Fatalf("Read = %d, want 5", n)
	}
	if !bytes.Equal(out, seq(100, 5)) {
		t.Fatalf("got %v, want %v", out, seq(100, 5))
	}
}

func TestRingBufferOverflowEvictsOldest(t *testing.T) {
	t.Parallel()
	rb := NewRingBuffer(10) // holds 9

	rb.Write(seq(0, 6))
	dropped := rb.Write(seq(6, 6))
	if dropped != 3 {
		t.Fatalf("dropped = %d, want 3", dropped)
	}
	if got := rb.Available(); got != 9 {
		t.Fatalf("Available = %d, want 9", got)
	}

	out := make([]byte, 20)
	n := rb.Read(out)
	if !bytes.Equal(out[:n], seq(3, 9)) {
		t.Fatalf("got %v, want newest bytes %v", out[:n], seq(3, 9))
	}

	st := rb.Stats()
	if st.Overruns != 1 || st.BytesDropped != 3 {
		t.Errorf("stats: overruns=%d dropped=%d, want 1 and 3", st.Overruns, st.BytesDropped)
	}
}

func TestRingBufferWriteLargerThanCapacity(t *testing.T) {
	t.Parallel()
	rb := NewRingBuffer(10)

	rb.Write(seq(0, 4))
	dropped := rb.Write(seq(50, 25))
	if dropped != 4+16 {
		t.Fatalf("dropped = %d, want 20", dropped)
	}
	if got := rb.Available(); got != 9 {
		t.Fatalf("Available = %d, want 9", got)
	}

	out := make([]byte, 9)
	rb.Read(out)
	if !bytes.Equal(out, seq(66, 9)) {
		t.Fatalf("got %v, want %v", out, seq(66, 9))
	}
}

func TestRingBufferOverflowNeverExceedsCapacity(t *testing.T) {
	t.Parallel()
	rb := NewRingBuffer(33)

	for i := 1; i < 100; i++ {
		rb.Write(seq(i, i%50))
		if got := rb.Available(); got > rb.Capacity()-1 {
			t.Fatalf("write %d: Available = %d exceeds %d", i, got, rb.Capacity()-1)
		}
	}
}

func TestRingBufferShortRead(t *testing.T) {
	t.Parallel()
	rb := NewRingBuffer(32)

	out := make([]byte, 8)
	if n := rb.Read(out); n != 0 {
		t.Fatalf("Read on empty = %d, want 0", n)
	}

	rb.Write(seq(1, 3))
	if n := rb.Read(out); n != 3 {
		t.Fatalf("Read = %d, want 3", n)
	}
}

func TestRingBufferFillZeroesTail(t *testing.T) {
	t.Parallel()
	rb := NewRingBuffer(32)
	rb.Write([]byte{9, 9, 9})

	out := bytes.Repeat([]byte{0xff}, 8)
	if n := rb.Fill(out); n != 3 {
		t.Fatalf("Fill = %d, want 3", n)
	}
	if !bytes.Equal(out, []byte{9, 9, 9, 0, 0, 0, 0, 0}) {
		t.Fatalf("got %v", out)
	}
	if st := rb.Stats(); st.Underruns != 1 {
		t.Errorf("Underruns = %d, want 1", st.Underruns)
	}
}

func TestRingBufferClearIsIdempotentReset(t *testing.T) {
	t.Parallel()
	rb := NewRingBuffer(12)

	run := func() []byte {
		rb.Write(seq(10, 7))
		rb.Write(seq(17, 4))
		out := make([]byte, 12)
		n := rb.Read(out)
		return out[:n]
	}

	rb.Write(seq(200, 5))
	rb.Clear()
	first := run()

	for i := 0; i < 3; i++ {
		rb.Write(seq(i, 9))
		rb.Clear()
		rb.Clear()
		if got := rb.Available(); got != 0 {
			t.Fatalf("Available after Clear = %d", got)
		}
		if got := run(); !bytes.Equal(got, first) {
			t.Fatalf("cycle %d: got %v, want %v", i, got, first)
		}
	}

	fresh := NewRingBuffer(12)
	fresh.Write(seq(10, 7))
	fresh.Write(seq(17, 4))
	out := make([]byte, 12)
	n := fresh.Read(out)
	if !bytes.Equal(out[:n], first) {
		t.Fatalf("cleared buffer differs from fresh buffer: %v vs %v", first, out[:n])
	}
}

func TestRingBufferConcurrentAccounting(t *testing.T) {
	t.Parallel()
	rb := NewRingBuffer(4096)

	const (
		iterations = 2000
		writeChunk = 384
		readChunk  = 256
	)

	var wg sync.WaitGroup
	done := make(chan struct{})
	var totalRead int
	var maxRead int

	wg.Add(1)
	go func() {
		defer wg.Done()
		buf := make([]byte, readChunk)
		for {
			select {
			case <-done:
				for {
					n := rb.Read(buf)
					if n == 0 {
						return
					}
					totalRead += n
				}
			default:
			}
			n := rb.Read(buf)
			totalRead += n
			maxRead = max(maxRead, n)
			if n == 0 {
				time.Sleep(10 * time.Microsecond)
			}
		}
	}()

	var totalWritten, totalDropped int
	chunk := seq(0, writeChunk)
	for i := 0; i < iterations; i++ {
		totalDropped += rb.Write(chunk)
		totalWritten += len(chunk)
	}
	close(done)
	wg.Wait()

	if totalRead+totalDropped != totalWritten {
		t.Fatalf("read %d + dropped %d != written %d", totalRead, totalDropped, totalWritten)
	}
	if maxRead > readChunk {
		t.Fatalf("a read returned %d bytes, more than requested", maxRead)
	}

	st := rb.Stats()
	if st.BytesRead+st.BytesDropped != st.BytesWritten {
		t.Fatalf("stats: read %d + dropped %d != written %d", st.BytesRead, st.BytesDropped, st.BytesWritten)
	}
}

func TestNewRingBufferFor(t *testing.T) {
	t.Parallel()
	rb := NewRingBufferFor(DefaultFormat, DefaultBufferDuration)
	// 48000 Hz * 2 ch * 4 bytes * 2 s
	if got, want := rb.Capacity()-1, 768000; got != want {
		t.Fatalf("usable capacity = %d, want %d", got, want)
	}
}

func TestNewRingBufferPanicsOnTinyCapacity(t *testing.T) {
	t.Parallel()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	NewRingBuffer(1)
}

func TestRingBufferFillRecordsUnderrunWithRead(t *testing.T) {
	t.Parallel()
	for i := 0; i < 200; i++ {
		rb := NewRingBuffer(16)
		rb.Write([]byte{1, 2, 3})

		done := make(chan struct{})
		go func() {
			defer close(done)
			rb.Fill(make([]byte, 8))
		}()

		for {
			st := rb.Stats()
			if st.BytesRead > 0 && st.Underruns != 1 {
				t.Fatalf("snapshot read %d bytes with %d underruns", st.BytesRead, st.Underruns)
			}
			if st.BytesRead > 0 {
				break
			}
			select {
			case <-done:
			default:
				continue
			}
		}
		<-done
	}
}
