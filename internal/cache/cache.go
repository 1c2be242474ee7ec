// Package cache holds fetched payloads keyed by resource. Entries expire on
// their own after a time-to-live measured on the scheduler clock, and can be
// invalidated locally or across instances through Redis Pub/Sub.
package cache

import (
	"fmt"
	"strings"
	"time"
)

// Eviction reasons passed to OnEvict observers.
const (
	ReasonExpired     = "expired"
	ReasonInvalidated = "invalidated"
	ReasonCleared     = "cleared"
)

// Entry is a stored payload and the moment it was written.
type Entry struct {
	Key      string
	Value    any
	StoredAt time.Time
}

// Key derives a cache key from a scalar or an ordered tuple of scalars.
// Parts are joined with "-", so Key("project", 7) is "project-7".
func Key(parts ...any) string {
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return fmt.Sprint(parts[0])
	}
	strs := make([]string, len(parts))
	for i, p := range parts {
		strs[i] = fmt.Sprint(p)
	}
	return strings.Join(strs, "-")
}
