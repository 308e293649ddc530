// Package domain defines core entities, ports, and domain-specific errors
// for the feed pipeline.
package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels). Transient/overload conditions are represented
// by typed errors in the owning package (resilience.ErrCircuitOpen,
// dbpool.PoolExhausted) rather than here, since callers need the structured
// fields attached to them.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrSchemaInvalid   = errors.New("schema invalid")
	ErrInternal        = errors.New("internal error")
	ErrUpstreamTimeout = errors.New("upstream timeout")
)

// Action enumerates the kinds of client interaction events accepted by
// events ingest.
type Action string

// Allowed interaction actions.
const (
	ActionView       Action = "view"
	ActionImpression Action = "impression"
	ActionLike       Action = "like"
	ActionComment    Action = "comment"
	ActionShare      Action = "share"
)

// ValidActions is the membership set checked by events ingest validation.
var ValidActions = map[Action]struct{}{
	ActionView:       {},
	ActionImpression: {},
	ActionLike:       {},
	ActionComment:    {},
	ActionShare:      {},
}

// Post is the OLTP source-of-truth row mirrored into OLAP by CDC ingest.
type Post struct {
	PostID    string
	AuthorID  string
	CreatedAt time.Time
	IsDeleted bool
}

// InteractionEvent is an append-only client interaction accepted by events
// ingest and, after dedup, written to the OLAP events table.
type InteractionEvent struct {
	EventID  string
	UserID   string
	PostID   string
	AuthorID string
	Action   Action
	DwellMS  *uint64
	Device   string
	AppVer   string
	EventTime time.Time
}

// MirrorOp enumerates the change kind carried by a CDC envelope.
type MirrorOp string

// CDC operation kinds.
const (
	MirrorOpCreate MirrorOp = "create"
	MirrorOpUpdate MirrorOp = "update"
	MirrorOpDelete MirrorOp = "delete"
)

// Candidate is a scored post eligible to appear in a user's feed, as
// produced by any of the three candidate tables.
type Candidate struct {
	PostID          string
	AuthorID        string
	Likes           int64
	Comments        int64
	Shares          int64
	FreshnessScore  float64
	EngagementScore float64
	AffinityScore   float64
	CombinedScore   float64
	Source          string // "followees" | "trending" | "affinity"
}

// FeedSource names the provenance of a served feed page, reported to
// clients as the "source" field.
type FeedSource string

// Feed response source tags.
const (
	SourcePrimary       FeedSource = "primary"
	SourceCacheFallback FeedSource = "cache_fallback"
	SourceOLTPFallback  FeedSource = "oltp_fallback"
	SourceDegraded      FeedSource = "degraded"
)

// FeedPage is the result of a single get-feed request.
type FeedPage struct {
	PostIDs    []string
	HasMore    bool
	TotalCount int
	Source     FeedSource
}

// DeadLetterMessage is the JSON payload produced to a dead-letter topic for
// records that cannot be processed (schema mismatch, exhausted retries).
type DeadLetterMessage struct {
	Service         string    `json:"service"`
	OriginalPayload []byte    `json:"original_payload"`
	Error           string    `json:"error"`
	RetryCount      int       `json:"retry_count"`
	Timestamp       time.Time `json:"timestamp"`
}

// Context is a type alias to stdlib context.Context for convenience across
// layers that want to avoid importing "context" directly in signatures.
type Context = context.Context
