package automation

import (
	"sort"
	"sync"
)

// DefaultLogCapacity is the number of audit entries retained in memory.
const DefaultLogCapacity = 1000

// actionLog is a fixed-capacity circular buffer of audit entries. The
// oldest entry is overwritten once the buffer is full.
type actionLog struct {
	mu       sync.RWMutex
	data     []LogEntry
	head     int
	size     int
	capacity int
}

func newActionLog(capacity int) *actionLog {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	return &actionLog{
		data:     make([]LogEntry, capacity),
		capacity: capacity,
	}
}

func (l *actionLog) append(e LogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	idx := (l.head + l.size) % l.capacity
	l.data[idx] = e
	if l.size < l.capacity {
		l.size++
	} else {
		l.head = (l.head + 1) % l.capacity
	}
}

func (l *actionLog) len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.size
}

// newest returns up to limit entries, newest first. A non-positive limit
// returns everything.
func (l *actionLog) newest(limit int) []LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if limit <= 0 || limit > l.size {
		limit = l.size
	}
	out := make([]LogEntry, limit)
	for i := 0; i < limit; i++ {
		out[i] = l.data[(l.head+l.size-1-i)%l.capacity]
	}
	return out
}

// ActionCount is how often one action appears in the log.
type ActionCount struct {
	Action string `json:"action"`
	Count  int    `json:"count"`
}

// Stats summarizes the retained audit log.
type Stats struct {
	Total       int            `json:"total"`
	Executed    int            `json:"executed"`
	Failed      int            `json:"failed"`
	SuccessRate float64        `json:"successRate"`
	ByStatus    map[Status]int `json:"byStatus"`
	TopActions  []ActionCount  `json:"topActions"`
}

const topActionCount = 5

func computeStats(entries []LogEntry) Stats {
	s := Stats{Total: len(entries), ByStatus: make(map[Status]int)}
	counts := make(map[string]int)
	for _, e := range entries {
		s.ByStatus[e.Status]++
		counts[e.Action]++
		switch e.Status {
		case StatusExecuted:
			s.Executed++
		case StatusFailed, StatusExpired:
			s.Failed++
		}
	}
	if s.Total > 0 {
		s.SuccessRate = float64(s.Executed) / float64(s.Total)
	}

	s.TopActions = make([]ActionCount, 0, len(counts))
	for action, n := range counts {
		s.TopActions = append(s.TopActions, ActionCount{Action: action, Count: n})
	}
	sort.Slice(s.TopActions, func(i, j int) bool {
		if s.TopActions[i].Count != s.TopActions[j].Count {
			return s.TopActions[i].Count > s.TopActions[j].Count
		}
		return s.TopActions[i].Action < s.TopActions[j].Action
	})
	if len(s.TopActions) > topActionCount {
		s.TopActions = s.TopActions[:topActionCount]
	}
	return s
}
