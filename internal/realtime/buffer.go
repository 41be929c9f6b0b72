package realtime

import "sync"

// LiveBuffer is the transient tail of one running job's output. Only the
// channel writes to it: job_log appends, job_completed and ResetBuffer clear.
type LiveBuffer struct {
	jobID string

	mu      sync.RWMutex
	lines   []string
	version uint64
}

// JobID returns the job the buffer belongs to.
func (b *LiveBuffer) JobID() string { return b.jobID }

// Lines returns a copy of the buffered lines in arrival order.
func (b *LiveBuffer) Lines() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]string(nil), b.lines...)
}

// Len returns the number of buffered lines.
func (b *LiveBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.lines)
}

// Version increases on every append or reset.
func (b *LiveBuffer) Version() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.version
}

func (b *LiveBuffer) append(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = append(b.lines, line)
	b.version++
}

func (b *LiveBuffer) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = nil
	b.version++
}

type buffers struct {
	mu    sync.Mutex
	byJob map[string]*LiveBuffer
}

func newBuffers() *buffers {
	return &buffers{byJob: make(map[string]*LiveBuffer)}
}

func (b *buffers) get(jobID string) *LiveBuffer {
	b.mu.Lock()
	defer b.mu.Unlock()
	lb, ok := b.byJob[jobID]
	if !ok {
		lb = &LiveBuffer{jobID: jobID}
		b.byJob[jobID] = lb
	}
	return lb
}
