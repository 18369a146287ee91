package audio

import (
	"sync"
	"time"
)

// DefaultBufferDuration sizes the ring for about two seconds of audio.
const DefaultBufferDuration = 2 * time.Second

// Stats is a point-in-time snapshot of ring buffer counters.
type Stats struct {
	Capacity     int    `json:"capacity"`
	Available    int    `json:"available"`
	BytesWritten uint64 `json:"bytesWritten"`
	BytesRead    uint64 `json:"bytesRead"`
	BytesDropped uint64 `json:"bytesDropped"`
	Overruns     uint64 `json:"overruns"`
	Underruns    uint64 `json:"underruns"`
}

// RingBuffer is a fixed-capacity circular byte store shared by one producer
// (network/decode) and one consumer (the audio hardware callback).
//
// One slot is always kept empty so that readPos == writePos means empty.
// The mutex is held only for index arithmetic and the memory copies.
type RingBuffer struct {
	mu       sync.Mutex
	buf      []byte
	readPos  int
	writePos int

	written   uint64
	bytesRead uint64
	dropped   uint64
	overruns  uint64
	underruns uint64
}

// NewRingBuffer allocates a ring holding at most capacity-1 unread bytes.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity < 2 {
		panic("audio: ring buffer capacity must be at least 2")
	}
	return &RingBuffer{
		buf: make([]byte, capacity),
	}
}

// NewRingBufferFor sizes a ring for d worth of audio in format f.
func NewRingBufferFor(f Format, d time.Duration) *RingBuffer {
	return NewRingBuffer(f.BytesFor(d) + 1)
}

// Capacity returns the size of the backing store.
func (rb *RingBuffer) Capacity() int {
	return len(rb.buf)
}

func (rb *RingBuffer) available() int {
	n := rb.writePos - rb.readPos
	if n < 0 {
		n += len(rb.buf)
	}
	return n
}

// Available returns the number of unread bytes.
func (rb *RingBuffer) Available() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.available()
}

// Free returns how many bytes can be written without evicting unread data.
func (rb *RingBuffer) Free() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return len(rb.buf) - 1 - rb.available()
}

// Write copies p into the ring. When p does not fit, the oldest unread bytes
// are evicted to make room; if p alone exceeds the ring only its newest
// Capacity()-1 bytes are kept. It returns the number of bytes discarded.
func (rb *RingBuffer) Write(p []byte) (dropped int) {
	if len(p) == 0 {
		return 0
	}

	rb.mu.Lock()
	defer rb.mu.Unlock()

	size := len(rb.buf)
	limit := size - 1
	rb.written += uint64(len(p))

	if len(p) > limit {
		dropped = len(p) - limit
		p = p[dropped:]
	}

	if free := limit - rb.available(); len(p) > free {
		evict := len(p) - free
		rb.readPos = (rb.readPos + evict) % size
		dropped += evict
	}

	n := copy(rb.buf[rb.writePos:], p)
	if n < len(p) {
		copy(rb.buf, p[n:])
	}
	rb.writePos = (rb.writePos + len(p)) % size

	if dropped > 0 {
		rb.dropped += uint64(dropped)
		rb.overruns++
	}
	return dropped
}

// Read copies up to len(p) unread bytes into p and returns the count.
// It never waits for more data; a short or zero read is normal.
func (rb *RingBuffer) Read(p []byte) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.read(p)
}

// read must be called with mu held.
func (rb *RingBuffer) read(p []byte) int {
	n := min(len(p), rb.available())
	if n == 0 {
		return 0
	}

	c := copy(p[:n], rb.buf[rb.readPos:])
	if c < n {
		copy(p[c:n], rb.buf)
	}
	rb.readPos = (rb.readPos + n) % len(rb.buf)
	rb.bytesRead += uint64(n)
	return n
}

// Fill reads into p and zeroes whatever could not be filled, so the caller
// always hands a full buffer of valid samples to the hardware. It returns
// the number of bytes that came from the ring. The read and the underrun
// it causes are recorded in one critical section.
func (rb *RingBuffer) Fill(p []byte) int {
	rb.mu.Lock()
	n := rb.read(p)
	if n < len(p) {
		rb.underruns++
	}
	rb.mu.Unlock()

	clear(p[n:])
	return n
}

// Clear discards all unread data. Used when a stream (re)starts; the
// discarded bytes are counted as dropped.
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	rb.dropped += uint64(rb.available())
	rb.readPos = 0
	rb.writePos = 0
	rb.mu.Unlock()
}

func (rb *RingBuffer) Stats() Stats {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return Stats{
		Capacity:     len(rb.buf),
		Available:    rb.available(),
		BytesWritten: rb.written,
		BytesRead:    rb.bytesRead,
		BytesDropped: rb.dropped,
		Overruns:     rb.overruns,
		Underruns:    rb.underruns,
	}
}
