// Package uuid generates time-ordered run identifiers.
package uuid

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Generator creates UUIDv7 identifiers, optionally prefixed (for example
// "audit-"), so IDs sort by creation time.
type Generator struct {
	prefix string
}

// New creates a Generator with the given prefix.
func New(prefix string) *Generator {
	return &Generator{prefix: prefix}
}

// NewID returns prefix + UUIDv7.
func (g *Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return g.prefix + id.String(), nil
}

// Time extracts the creation time embedded in an ID produced by NewID.
func (g *Generator) Time(id string) (time.Time, error) {
	parsed, err := uuid.Parse(strings.TrimPrefix(id, g.prefix))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse id %q: %w", id, err)
	}
	if parsed.Version() != 7 {
		return time.Time{}, fmt.Errorf("id %q is not time ordered", id)
	}
	sec, nsec := parsed.Time().UnixTime()
	return time.Unix(sec, nsec).UTC(), nil
}
