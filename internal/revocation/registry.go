// Copyright 2026 The Event Horizon Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package revocation

import (
	"container/heap"
	"sync"
	"time"

	"github.com/eventhorizon/horizon/internal/clock"
)

// Entry records a token revoked before its natural expiry
type Entry struct {
	JTI       string
	ExpiresAt time.Time
	RevokedAt time.Time
}

// BlacklistEntry records a token that must never be accepted again
type BlacklistEntry struct {
	JTI           string
	BlacklistedAt time.Time
}

// Stats is a point-in-time count of tracked identifiers
type Stats struct {
	Revoked     int `json:"revoked"`
	Blacklisted int `json:"blacklisted"`
}

// Registry tracks revoked and blacklisted token identifiers.
// Revocations are indexed by expiry so Cleanup only touches entries that are due.
type Registry struct {
	mu        sync.RWMutex
	revoked   map[string]*item
	queue     expiryQueue
	blacklist map[string]BlacklistEntry
	clock     clock.Clock
}

// NewRegistry creates an empty registry
func NewRegistry(clk clock.Clock) *Registry {
	if clk == nil {
		clk = clock.System{}
	}
	return &Registry{
		revoked:   make(map[string]*item),
		blacklist: make(map[string]BlacklistEntry),
		clock:     clk,
	}
}

// Revoke rejects jti until expiresAt and reports whether a new entry was added.
// Revoking a tracked or already expired jti is a no-op.
func (r *Registry) Revoke(jti string, expiresAt time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.revoked[jti]; ok {
		return false
	}
	now := r.clock.Now()
	if !now.Before(expiresAt) {
		return false
	}

	it := &item{entry: Entry{JTI: jti, ExpiresAt: expiresAt, RevokedAt: now}}
	heap.Push(&r.queue, it)
	r.revoked[jti] = it
	return true
}

// Blacklist rejects jti for the lifetime of the process and reports whether it was newly added.
// Blacklisting a tracked jti is a no-op.
func (r *Registry) Blacklist(jti string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.blacklist[jti]; ok {
		return false
	}
	r.blacklist[jti] = BlacklistEntry{JTI: jti, BlacklistedAt: r.clock.Now()}
	return true
}

// IsBlocked reports whether jti is blacklisted or revoked
func (r *Registry) IsBlocked(jti string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.blacklist[jti]; ok {
		return true
	}
	_, ok := r.revoked[jti]
	return ok
}

// IsBlacklisted reports whether jti is on the permanent blacklist
func (r *Registry) IsBlacklisted(jti string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.blacklist[jti]
	return ok
}

// IsRevoked reports whether jti has an expiry-bounded revocation
func (r *Registry) IsRevoked(jti string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.revoked[jti]
	return ok
}

// Cleanup purges revocations whose expiry has passed and returns how many were removed.
// Blacklist entries are never purged.
func (r *Registry) Cleanup() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	purged := 0
	for r.queue.Len() > 0 {
		next := r.queue[0]
		if now.Before(next.entry.ExpiresAt) {
			break
		}
		heap.Pop(&r.queue)
		delete(r.revoked, next.entry.JTI)
		purged++
	}
	return purged
}

// Stats returns the number of tracked identifiers
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{
		Revoked:     len(r.revoked),
		Blacklisted: len(r.blacklist),
	}
}

type item struct {
	entry Entry
}

// expiryQueue is a min-heap of revocations ordered by ExpiresAt
type expiryQueue []*item

func (q expiryQueue) Len() int { return len(q) }

func (q expiryQueue) Less(i, j int) bool {
	return q[i].entry.ExpiresAt.Before(q[j].entry.ExpiresAt)
}

func (q expiryQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
}

func (q *expiryQueue) Push(x any) {
	*q = append(*q, x.(*item))
}

func (q *expiryQueue) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return it
}
