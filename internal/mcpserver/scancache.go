package mcpserver

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skilllite/skilllite/internal/security"
)

// scanCacheTTL is spec.md §6's two-phase confirmation window: a scan_id
// issued by scan_code authorizes a matching execute_code/run_skill call
// only within this window.
const scanCacheTTL = 300 * time.Second

type scanCacheEntry struct {
	codeHash string
	result   security.ScanResult
	expires  time.Time
}

// scanCache is a Server's (scan_id -> scan verdict) cache backing MCP's
// two-phase confirmation: a map guarded by a sync.Mutex, one per Server.
type scanCache struct {
	mu      sync.Mutex
	entries map[string]scanCacheEntry
}

func newScanCache() *scanCache {
	return &scanCache{entries: make(map[string]scanCacheEntry)}
}

func hashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// Put records a scan verdict for code, minting a scan_id salted with a
// uuid plus the current timestamp so identical code scanned twice gets
// distinct ids, per spec.md §6's "timestamp used only for uniqueness"
// note.
func (c *scanCache) Put(code string, result security.ScanResult) string {
	codeHash := hashCode(code)
	salt := uuid.NewString()
	id := hashCode(codeHash + salt + time.Now().UTC().String())[:16]

	c.mu.Lock()
	defer c.mu.Unlock()
	c.gc()
	c.entries[id] = scanCacheEntry{codeHash: codeHash, result: result, expires: time.Now().Add(scanCacheTTL)}
	return id
}

// scanCacheLookupError is returned by Lookup when the scan_id is unknown,
// expired, or the supplied code no longer matches what was scanned.
type scanCacheLookupError string

func (e scanCacheLookupError) Error() string { return string(e) }

// Lookup resolves a scan_id against the currently supplied code,
// enforcing both the TTL and the "code has changed since the scan"
// invariant spec.md §6's worked example demands.
func (c *scanCache) Lookup(scanID, code string) (security.ScanResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[scanID]
	if !ok {
		return security.ScanResult{}, scanCacheLookupError("unknown or expired scan_id")
	}
	if time.Now().After(entry.expires) {
		delete(c.entries, scanID)
		return security.ScanResult{}, scanCacheLookupError("scan_id has expired")
	}
	if entry.codeHash != hashCode(code) {
		return security.ScanResult{}, scanCacheLookupError("code has changed since the scan")
	}
	return entry.result, nil
}

// gc drops expired entries. Called with mu held.
func (c *scanCache) gc() {
	now := time.Now()
	for id, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, id)
		}
	}
}
