// Package diagnostics carries entity-scoped transform failures out of a
// configuration cycle: the entity is dropped from the result and a
// Diagnostic describing why is published to a Sink.
package diagnostics

import (
	"fmt"
	"time"
)

// Stage names the entity kind a diagnostic refers to
type Stage string

const (
	StageProvider Stage = "provider"
	StageModel    Stage = "model"
	StagePipeline Stage = "pipeline"
	StagePlugin   Stage = "plugin"
)

// Diagnostic records one skipped entity.
type Diagnostic struct {
	CycleID   string    `json:"cycle_id"`
	Timestamp time.Time `json:"timestamp"`
	Stage     Stage     `json:"stage"`
	EntityID  string    `json:"entity_id,omitempty"`
	EntityKey string    `json:"entity_key,omitempty"`
	// Parent is the owning pipeline of a plugin
	Parent string `json:"parent,omitempty"`
	Reason string `json:"reason"`
}

func (d Diagnostic) String() string {
	name := d.EntityKey
	if name == "" {
		name = d.EntityID
	}
	if d.Parent != "" {
		return fmt.Sprintf("%s %q in %q skipped: %s", d.Stage, name, d.Parent, d.Reason)
	}
	return fmt.Sprintf("%s %q skipped: %s", d.Stage, name, d.Reason)
}
