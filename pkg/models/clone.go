package models

import "time"

// Clone returns a deep copy of the workflow state. Every persisted and
// returned state goes through here so callers can never mutate stored history
// through a shared reference.
func (s *WorkflowState) Clone() *WorkflowState {
	if s == nil {
		return nil
	}

	out := *s
	out.StartedAt = cloneTimePtr(s.StartedAt)
	out.CompletedAt = cloneTimePtr(s.CompletedAt)
	out.Context = s.Context.Clone()
	out.Metadata = CloneMap(s.Metadata)

	if s.Tasks != nil {
		out.Tasks = make(map[string]*AgentTask, len(s.Tasks))
		for id, task := range s.Tasks {
			out.Tasks[id] = task.Clone()
		}
	}

	if s.Agents != nil {
		out.Agents = make(map[string]string, len(s.Agents))
		for role, agentID := range s.Agents {
			out.Agents[role] = agentID
		}
	}

	if s.Dependencies != nil {
		out.Dependencies = make([]WorkflowDependency, len(s.Dependencies))
		copy(out.Dependencies, s.Dependencies)
	}

	return &out
}

// Clone returns a deep copy of the context.
func (c WorkflowContext) Clone() WorkflowContext {
	out := c
	out.Metadata = CloneMap(c.Metadata)

	if c.Tags != nil {
		out.Tags = make([]string, len(c.Tags))
		copy(out.Tags, c.Tags)
	}

	return out
}

// Clone returns a deep copy of the task.
func (t *AgentTask) Clone() *AgentTask {
	if t == nil {
		return nil
	}

	out := *t
	out.Payload = CloneMap(t.Payload)
	out.StartedAt = cloneTimePtr(t.StartedAt)
	out.CompletedAt = cloneTimePtr(t.CompletedAt)

	return &out
}

// Clone returns a deep copy of the version entry, including its embedded state.
func (v *StateVersion) Clone() *StateVersion {
	if v == nil {
		return nil
	}

	out := *v
	out.State = v.State.Clone()

	return &out
}

// Clone returns a deep copy of the snapshot, including its embedded state.
func (s *StateSnapshot) Clone() *StateSnapshot {
	if s == nil {
		return nil
	}

	out := *s
	out.State = s.State.Clone()

	return &out
}

// Clone returns a deep copy of the conflict record.
func (c *StateConflict) Clone() *StateConflict {
	if c == nil {
		return nil
	}

	out := *c

	if c.Versions != nil {
		out.Versions = make([]int64, len(c.Versions))
		copy(out.Versions, c.Versions)
	}

	if c.Changes != nil {
		out.Changes = make([]StateChange, len(c.Changes))
		for i, change := range c.Changes {
			out.Changes[i] = change.Clone()
		}
	}

	return &out
}

// Clone returns a deep copy of the change, copying nested map and slice values.
func (c StateChange) Clone() StateChange {
	out := c
	out.OldValue = cloneValue(c.OldValue)
	out.NewValue = cloneValue(c.NewValue)

	return out
}

// Clone returns a deep copy of the subscription.
func (s *StateSubscription) Clone() *StateSubscription {
	if s == nil {
		return nil
	}

	out := *s
	out.LastNotifiedAt = cloneTimePtr(s.LastNotifiedAt)

	if s.EventTypes != nil {
		out.EventTypes = make([]ChangeType, len(s.EventTypes))
		copy(out.EventTypes, s.EventTypes)
	}

	return &out
}

// CloneMap deep-copies a JSON-shaped metadata map. Nested maps and slices are
// copied recursively; scalar values are shared, which is safe because JSON
// scalars are immutable.
func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}

	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}

	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}

		return out
	default:
		return v
	}
}

func cloneTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}

	out := *t

	return &out
}
