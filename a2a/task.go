package a2a

import (
	"maps"
	"slices"
)

// Clone returns a deep copy of the task. Nested metadata values are shared.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	c.Status = t.Status.clone()
	if t.History != nil {
		c.History = make([]Message, len(t.History))
		for i := range t.History {
			c.History[i] = t.History[i].Clone()
		}
	}
	if t.Artifacts != nil {
		c.Artifacts = make([]Artifact, len(t.Artifacts))
		for i := range t.Artifacts {
			c.Artifacts[i] = t.Artifacts[i].Clone()
		}
	}
	c.Metadata = maps.Clone(t.Metadata)
	return &c
}

func (ts TaskStatus) clone() TaskStatus {
	if ts.Message != nil {
		msg := ts.Message.Clone()
		ts.Message = &msg
	}
	if ts.Timestamp != nil {
		timestamp := *ts.Timestamp
		ts.Timestamp = &timestamp
	}
	return ts
}

// Clone returns a copy of the message with its own parts and metadata.
func (m Message) Clone() Message {
	m.Parts = cloneParts(m.Parts)
	m.ReferenceTaskIDs = slices.Clone(m.ReferenceTaskIDs)
	m.Extensions = slices.Clone(m.Extensions)
	m.Metadata = maps.Clone(m.Metadata)
	return m
}

// Clone returns a copy of the artifact with its own parts and metadata.
func (a Artifact) Clone() Artifact {
	a.Parts = cloneParts(a.Parts)
	a.Extensions = slices.Clone(a.Extensions)
	a.Metadata = maps.Clone(a.Metadata)
	return a
}

func cloneParts(parts []Part) []Part {
	if parts == nil {
		return nil
	}
	out := make([]Part, len(parts))
	for i, p := range parts {
		if p.File != nil {
			f := *p.File
			p.File = &f
		}
		p.Data = maps.Clone(p.Data)
		p.Metadata = maps.Clone(p.Metadata)
		out[i] = p
	}
	return out
}

// Merge appends chunk to the artifact: parts are concatenated in order and
// metadata keys are merged, the chunk winning on conflicts.
func (a *Artifact) Merge(chunk Artifact) {
	a.Parts = append(a.Parts, cloneParts(chunk.Parts)...)
	if len(chunk.Metadata) > 0 {
		if a.Metadata == nil {
			a.Metadata = make(map[string]any, len(chunk.Metadata))
		}
		maps.Copy(a.Metadata, chunk.Metadata)
	}
	if chunk.Name != "" {
		a.Name = chunk.Name
	}
	if chunk.Description != "" {
		a.Description = chunk.Description
	}
}

// FindArtifact returns the index of the artifact with the given id, or -1.
func (t *Task) FindArtifact(artifactID string) int {
	return slices.IndexFunc(t.Artifacts, func(a Artifact) bool {
		return a.ArtifactID == artifactID
	})
}

// ProjectionOptions controls which parts of a task are returned to callers.
type ProjectionOptions struct {
	// HistoryLength keeps only the last N history entries. Nil keeps all.
	HistoryLength *int
	// IncludeArtifacts keeps artifacts; when false they are dropped.
	IncludeArtifacts bool
}

// Project returns a projected copy of task. The input is never modified.
func Project(task *Task, opts ProjectionOptions) *Task {
	if task == nil {
		return nil
	}
	out := task.Clone()
	if opts.HistoryLength != nil {
		n := max(*opts.HistoryLength, 0)
		if n < len(out.History) {
			out.History = out.History[len(out.History)-n:]
		}
	}
	if !opts.IncludeArtifacts {
		out.Artifacts = nil
	}
	return out
}
