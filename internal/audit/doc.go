// Package audit composes the category auditors into one technical SEO audit.
//
// Each auditor runs in isolation: an error or panic becomes a zero-score
// category carrying a category_error issue, so PerformAudit only fails when the
// run itself cannot be identified or persisted. Results are slotted by category,
// which keeps aggregation independent of the order auditors finish in.
package audit
