package automation

import (
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// DefaultMaxApprovals bounds the approval store.
const DefaultMaxApprovals = 10000

// approvalStore keeps approval requests in a bounded LRU. When full, the
// least recently touched request is dropped and later lookups of it fail
// with ErrApprovalNotFound.
type approvalStore struct {
	mu      sync.Mutex
	cache   *lru.Cache[string, *ApprovalRequest]
	purging bool
}

func newApprovalStore(capacity int, logger *zap.Logger) (*approvalStore, error) {
	if capacity <= 0 {
		capacity = DefaultMaxApprovals
	}
	s := &approvalStore{}
	// The eviction callback runs with s.mu held by the caller.
	cache, err := lru.NewWithEvict(capacity, func(id string, req *ApprovalRequest) {
		if !s.purging && req.Status == ApprovalPending {
			logger.Warn("Evicted pending approval request",
				zap.String("approval_id", id),
				zap.String("action", string(req.Action)),
			)
		}
	})
	if err != nil {
		return nil, err
	}
	s.cache = cache
	return s, nil
}

func (s *approvalStore) add(req *ApprovalRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Add(req.ID, req)
}

// get returns a copy of the request.
func (s *approvalStore) get(id string) (ApprovalRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.cache.Peek(id)
	if !ok {
		return ApprovalRequest{}, false
	}
	return *req, true
}

// update applies fn to the stored request under the store lock and
// returns a copy of the result.
func (s *approvalStore) update(id string, fn func(*ApprovalRequest) error) (ApprovalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.cache.Get(id)
	if !ok {
		return ApprovalRequest{}, ErrApprovalNotFound
	}
	if err := fn(req); err != nil {
		return *req, err
	}
	return *req, nil
}

// list returns copies of requests, oldest first. An empty status matches
// every request.
func (s *approvalStore) list(status ApprovalStatus) []ApprovalRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ApprovalRequest
	for _, req := range s.cache.Values() {
		if status == "" || req.Status == status {
			out = append(out, *req)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *approvalStore) countPending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, req := range s.cache.Values() {
		if req.Status == ApprovalPending {
			n++
		}
	}
	return n
}

func (s *approvalStore) purge() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purging = true
	s.cache.Purge()
	s.purging = false
}
