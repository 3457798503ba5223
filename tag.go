package projection

import (
	"encoding/json"
	"fmt"
)

// CheckpointTag is an opaque, totally ordered position on the event feed.
// Commit is the comparison key; Cursor is the underlying event-store
// cursor needed to resume a subscription from this position and is
// carried along verbatim without being interpreted by the runtime.
//
// The zero value is not a valid tag on its own; use ZeroTag to obtain the
// distinguished tag that precedes every real position.
type CheckpointTag struct {
	Commit int64  `json:"commit"`
	Cursor string `json:"cursor,omitempty"`
}

// ZeroTag returns the distinguished tag that precedes every real position
// on the feed. It is minted once, by the position tagger, at subscription
// start when no checkpoint has been loaded.
func ZeroTag() CheckpointTag {
	return CheckpointTag{Commit: -1}
}

// IsZero reports whether t is the distinguished zero tag.
func (t CheckpointTag) IsZero() bool {
	return t.Commit < 0
}

// Compare returns -1, 0, or 1 as t is less than, equal to, or greater than
// other, using Commit as the sole ordering key.
func (t CheckpointTag) Compare(other CheckpointTag) int {
	switch {
	case t.Commit < other.Commit:
		return -1
	case t.Commit > other.Commit:
		return 1
	default:
		return 0
	}
}

// Less reports whether t precedes other.
func (t CheckpointTag) Less(other CheckpointTag) bool { return t.Compare(other) < 0 }

// Equal reports whether t and other denote the same position.
func (t CheckpointTag) Equal(other CheckpointTag) bool { return t.Compare(other) == 0 }

// String renders the tag for logging.
func (t CheckpointTag) String() string {
	if t.IsZero() {
		return "zero"
	}
	return fmt.Sprintf("%d@%s", t.Commit, t.Cursor)
}

// MarshalTag JSON-serializes t for storage as StateUpdated metadata or a
// checkpoint marker.
func MarshalTag(t CheckpointTag) ([]byte, error) {
	return json.Marshal(t)
}

// ParseTag parses a JSON-encoded CheckpointTag. Empty input yields a nil
// tag rather than an error, matching the external checkpoint-tag parse API
// consumed by both the core and persisted StateUpdated metadata.
func ParseTag(data []byte) (*CheckpointTag, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var t CheckpointTag
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse checkpoint tag: %w", err)
	}
	return &t, nil
}

// ProjectionVersion identifies the schema of a persisted checkpoint
// payload. A payload whose version does not match the current one is
// treated as absent by ParseTagWithVersion.
type ProjectionVersion struct {
	ID      string
	Epoch   int
	Version int
}

// Equal reports whether v and other name the same version.
func (v ProjectionVersion) Equal(other ProjectionVersion) bool {
	return v.ID == other.ID && v.Epoch == other.Epoch && v.Version == other.Version
}

// checkpointPayload is the on-disk shape of a versioned checkpoint: the
// version it was written under, the tag, and any strategy-specific extra
// metadata the checkpoint manager wants round-tripped alongside it.
type checkpointPayload struct {
	Version       ProjectionVersion `json:"version"`
	Tag           *CheckpointTag    `json:"tag,omitempty"`
	ExtraMetadata json.RawMessage   `json:"extra,omitempty"`
}

// ParsedTag is the result of ParseTagWithVersion: the version the payload
// was written under, the tag it named (nil if the payload predates any
// checkpoint), and any strategy-specific extra metadata.
type ParsedTag struct {
	Version       ProjectionVersion
	Tag           *CheckpointTag
	ExtraMetadata json.RawMessage
}

// ParseTagWithVersion parses a versioned checkpoint payload. Empty input
// yields {Version: current, Tag: nil} (start from zero). A payload written
// under a different version is likewise treated as absent, since the
// current handler cannot assume its shape is compatible.
func ParseTagWithVersion(data []byte, current ProjectionVersion) (ParsedTag, error) {
	if len(data) == 0 {
		return ParsedTag{Version: current}, nil
	}
	var payload checkpointPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return ParsedTag{}, fmt.Errorf("parse checkpoint payload: %w", err)
	}
	if !payload.Version.Equal(current) {
		return ParsedTag{Version: current}, nil
	}
	return ParsedTag{
		Version:       payload.Version,
		Tag:           payload.Tag,
		ExtraMetadata: payload.ExtraMetadata,
	}, nil
}

// MarshalCheckpointPayload serializes a checkpoint payload for durable
// storage by a CheckpointManager implementation.
func MarshalCheckpointPayload(version ProjectionVersion, tag *CheckpointTag, extra json.RawMessage) ([]byte, error) {
	return json.Marshal(checkpointPayload{Version: version, Tag: tag, ExtraMetadata: extra})
}
