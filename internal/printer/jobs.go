package printer

import (
	"sync"
	"time"
)

// Job statuses
const (
	JobPrinting  = "printing"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

// JobRecord represents one ticket print
type JobRecord struct {
	ID          string     `json:"id"`
	PrinterID   string     `json:"printer_id"`
	PrinterName string     `json:"printer_name"`
	TicketRef   string     `json:"ticket_ref"`
	Passenger   string     `json:"passenger,omitempty"`
	Reprint     bool       `json:"reprint,omitempty"`
	Status      string     `json:"status"`
	DataSize    int        `json:"data_size"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// JobBuffer is a thread-safe ring buffer of recent print jobs
type JobBuffer struct {
	mu      sync.RWMutex
	entries []JobRecord
	cap     int
}

// NewJobBuffer creates a new job buffer with the given capacity
func NewJobBuffer(capacity int) *JobBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &JobBuffer{
		entries: make([]JobRecord, 0, capacity),
		cap:     capacity,
	}
}

// Add adds a job record to the buffer, evicting the oldest when full
func (jb *JobBuffer) Add(job JobRecord) {
	jb.mu.Lock()
	defer jb.mu.Unlock()

	if len(jb.entries) >= jb.cap {
		copy(jb.entries, jb.entries[1:])
		jb.entries[len(jb.entries)-1] = job
	} else {
		jb.entries = append(jb.entries, job)
	}
}

// Entries returns all job records, newest first
func (jb *JobBuffer) Entries() []JobRecord {
	jb.mu.RLock()
	defer jb.mu.RUnlock()

	result := make([]JobRecord, len(jb.entries))
	for i, j := 0, len(jb.entries)-1; j >= 0; i, j = i+1, j-1 {
		result[i] = jb.entries[j]
	}
	return result
}

// Finish records the final state of a job and returns the updated record
func (jb *JobBuffer) Finish(jobID string, size int, err error) (JobRecord, bool) {
	jb.mu.Lock()
	defer jb.mu.Unlock()

	for i := len(jb.entries) - 1; i >= 0; i-- {
		if jb.entries[i].ID != jobID {
			continue
		}
		now := time.Now()
		jb.entries[i].DataSize = size
		jb.entries[i].CompletedAt = &now
		if err != nil {
			jb.entries[i].Status = JobFailed
			jb.entries[i].Error = err.Error()
		} else {
			jb.entries[i].Status = JobCompleted
		}
		return jb.entries[i], true
	}
	return JobRecord{}, false
}
