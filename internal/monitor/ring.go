package monitor

// ring is a fixed-size snapshot buffer that overwrites the oldest entry.
type ring struct {
	buf   []Snapshot
	start int
	size  int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]Snapshot, capacity)}
}

func (r *ring) push(s Snapshot) {
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = s
		r.size++
		return
	}
	r.buf[r.start] = s
	r.start = (r.start + 1) % len(r.buf)
}

// last returns the newest n entries in chronological order.
func (r *ring) last(n int) []Snapshot {
	if n <= 0 || n > r.size {
		n = r.size
	}
	out := make([]Snapshot, n)
	skip := r.size - n
	for i := 0; i < n; i++ {
		out[i] = r.buf[(r.start+skip+i)%len(r.buf)]
	}
	return out
}
