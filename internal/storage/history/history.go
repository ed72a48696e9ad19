// Package history holds what the audit history backends share.
package history

import "github.com/JakeFAU/seo-orchestrator/internal/seo"

// DefaultCapacity is the number of audit runs retained.
const DefaultCapacity = 50

// Capacity returns n, or DefaultCapacity when n is not positive.
func Capacity(n int) int {
	if n <= 0 {
		return DefaultCapacity
	}
	return n
}

// Tail returns the last limit runs of an oldest-first slice as a new slice.
// limit <= 0 returns all of them.
func Tail(runs []seo.AuditRun, limit int) []seo.AuditRun {
	if limit > 0 && len(runs) > limit {
		runs = runs[len(runs)-limit:]
	}
	return append([]seo.AuditRun(nil), runs...)
}
