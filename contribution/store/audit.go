package store

import (
	"context"
	"sync"

	"github.com/samiti/collection-engine/contribution"
)

// =============================================================================
// MEMORY AUDIT LOG
// =============================================================================

// MemoryAudit is an append-only in-memory audit log.
type MemoryAudit struct {
	mu      sync.RWMutex
	entries []contribution.AuditEntry
}

func NewMemoryAudit() *MemoryAudit {
	return &MemoryAudit{}
}

func (a *MemoryAudit) Append(_ context.Context, entry contribution.AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
	return nil
}

// Query returns entries for the group in insertion order. An empty groupID
// returns everything.
func (a *MemoryAudit) Query(_ context.Context, groupID contribution.GroupID) ([]contribution.AuditEntry, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var out []contribution.AuditEntry
	for _, e := range a.entries {
		if groupID == "" || e.GroupID == groupID {
			out = append(out, e)
		}
	}
	return out, nil
}
