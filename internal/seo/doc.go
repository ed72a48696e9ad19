// Package seo defines the domain types and ports shared by the orchestrator,
// the technical audit pipeline and the dashboard.
package seo
