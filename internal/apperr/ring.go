package apperr

import (
	"sync"
	"time"
)

const defaultRingSize = 100

type Record struct {
	At      time.Time              `json:"at"`
	Code    Code                   `json:"code"`
	Message string                 `json:"message"`
	Details string                 `json:"details,omitempty"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Ring keeps the most recent errors in memory, oldest overwritten first.
type Ring struct {
	mu    sync.Mutex
	items []Record
	next  int
	full  bool
}

func NewRing(size int) *Ring {
	if size <= 0 {
		size = defaultRingSize
	}
	return &Ring{items: make([]Record, size)}
}

func (r *Ring) Add(e *AppError) {
	if e == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[r.next] = Record{
		At:      time.Now().UTC(),
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Context: e.Context,
	}
	r.next = (r.next + 1) % len(r.items)
	if r.next == 0 {
		r.full = true
	}
}

// Recent returns up to limit records, newest first.
func (r *Ring) Recent(limit int) []Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.next
	if r.full {
		n = len(r.items)
	}
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]Record, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (r.next - 1 - i + len(r.items)) % len(r.items)
		out = append(out, r.items[idx])
	}
	return out
}

func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return len(r.items)
	}
	return r.next
}

func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = make([]Record, len(r.items))
	r.next = 0
	r.full = false
}

// Recorder is the process-wide error log shown on the admin dashboard.
var Recorder = NewRing(defaultRingSize)
