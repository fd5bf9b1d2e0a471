package ppo

import (
	"errors"
	"sync"
)

var ErrNoPolicy = errors.New("no policy published")

// PolicyHandle is the policy rollouts read from. View holds the read lock for
// the duration of fn, so Publish waits for every in-flight step before it
// swaps the policy.
type PolicyHandle struct {
	mu      sync.RWMutex
	policy  *Policy
	version int
}

func NewPolicyHandle(p *Policy) *PolicyHandle {
	h := &PolicyHandle{}
	if p != nil {
		h.policy = p
		h.version = 1
	}
	return h
}

func (h *PolicyHandle) View(fn func(p *Policy) error) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.policy == nil {
		return ErrNoPolicy
	}
	return fn(h.policy)
}

// Publish installs p and returns the new version. The caller must not
// mutate p afterwards.
func (h *PolicyHandle) Publish(p *Policy) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.policy = p
	h.version++
	return h.version
}

func (h *PolicyHandle) Version() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.version
}
