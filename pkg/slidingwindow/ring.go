package slidingwindow

const minRingCapacity = 8

// ring is a FIFO queue over a circular buffer that doubles when full.
type ring[T any] struct {
	buf  []T
	head int
	n    int
}

func (r *ring[T]) len() int { return r.n }

func (r *ring[T]) push(v T) {
	if r.n == len(r.buf) {
		r.grow()
	}
	r.buf[(r.head+r.n)%len(r.buf)] = v
	r.n++
}

// front returns the oldest element. It must not be called on an empty ring.
func (r *ring[T]) front() *T {
	return &r.buf[r.head]
}

// pop removes the oldest element and releases its slot.
func (r *ring[T]) pop() T {
	var zero T
	v := r.buf[r.head]
	r.buf[r.head] = zero
	r.head = (r.head + 1) % len(r.buf)
	r.n--
	if r.n == 0 {
		r.head = 0
	}
	return v
}

// at returns the i-th oldest element.
func (r *ring[T]) at(i int) T {
	return r.buf[(r.head+i)%len(r.buf)]
}

func (r *ring[T]) grow() {
	buf := make([]T, max(minRingCapacity, 2*len(r.buf)))
	for i := 0; i < r.n; i++ {
		buf[i] = r.at(i)
	}
	r.buf = buf
	r.head = 0
}
