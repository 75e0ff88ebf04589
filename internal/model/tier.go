package model

import "time"

// Tier identifies one level of the Hot/Warm/Cold/Deep hierarchy
type Tier string

const (
	TierHot  Tier = "hot"
	TierWarm Tier = "warm"
	TierCold Tier = "cold"
	TierDeep Tier = "deep"
)

// TierEntry wraps a record's identifiers with tier-local access metadata.
// Identifiers never change after creation; only placement and metadata do.
type TierEntry struct {
	FullKey     string // Canonical "namespace:key"
	WriteID     string
	ContentID   string
	Tier        Tier
	LastAccess  time.Time
	AccessCount int64
	Fitness     float64 // Recomputed by the consolidation fitness sweep
}

// Touch records an access at the given time
func (e *TierEntry) Touch(now time.Time) {
	e.AccessCount++
	e.LastAccess = now
}

// EntrySummary is the minimal per-entry footprint retained in the deep tier
type EntrySummary struct {
	FullKey         string    `cbor:"full_key"`
	WriteID         string    `cbor:"write_id"`
	ContentID       string    `cbor:"content_id"`
	AccessCount     int64     `cbor:"access_count"`
	LastAccess      time.Time `cbor:"last_access"`
	Fitness         float64   `cbor:"fitness"`
	DescendantCount int       `cbor:"descendant_count"`
	DemotedAt       time.Time `cbor:"demoted_at"`
}

// Genome is the exportable summary of the deep tier: lineage topology roots
// plus per-entry summaries. It is sufficient to approximate regeneration but
// carries no payloads.
type Genome struct {
	Roots      []string       `cbor:"roots"`
	Entries    []EntrySummary `cbor:"entries"`
	NodeCount  int            `cbor:"node_count"`
	EdgeCount  int            `cbor:"edge_count"`
	ExportedAt time.Time      `cbor:"exported_at"`
}
