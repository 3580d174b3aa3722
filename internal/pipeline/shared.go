// File path: internal/pipeline/shared.go
package pipeline

import (
	"fmt"
	"sync"
)

// SharedContext is the append-only record of completed stage outputs. Outputs are
// stored and returned as copies so a later stage can never alter an earlier one.
type SharedContext struct {
	mu      sync.RWMutex
	outputs []StageOutput
}

func NewSharedContext() *SharedContext {
	return &SharedContext{}
}

// Append adds the output of the next stage. Stages must arrive in order.
func (s *SharedContext) Append(out StageOutput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := StageID(len(s.outputs) + 1)
	if out.Stage != want {
		return fmt.Errorf("shared context: got output for %s, expected %s", out.Stage, want)
	}
	s.outputs = append(s.outputs, out.clone())
	return nil
}

func (s *SharedContext) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.outputs)
}

// Complete reports whether all five stages have appended.
func (s *SharedContext) Complete() bool {
	return s.Len() == len(StageIDs())
}

// Output returns a copy of one stage's output.
func (s *SharedContext) Output(id StageID) (StageOutput, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := int(id) - 1
	if idx < 0 || idx >= len(s.outputs) {
		return StageOutput{}, false
	}
	return s.outputs[idx].clone(), true
}

// Snapshot returns copies of every output in stage order.
func (s *SharedContext) Snapshot() []StageOutput {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]StageOutput, len(s.outputs))
	for i, o := range s.outputs {
		out[i] = o.clone()
	}
	return out
}

// Outputs returns copies keyed by stage.
func (s *SharedContext) Outputs() map[StageID]StageOutput {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[StageID]StageOutput, len(s.outputs))
	for _, o := range s.outputs {
		out[o.Stage] = o.clone()
	}
	return out
}

// Visible returns the outputs a stage may read: declared in reads, completed, and
// strictly earlier than current.
func (s *SharedContext) Visible(current StageID, reads []StageID) map[StageID]StageOutput {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[StageID]StageOutput, len(reads))
	for _, id := range reads {
		idx := int(id) - 1
		if id >= current || idx < 0 || idx >= len(s.outputs) {
			continue
		}
		out[id] = s.outputs[idx].clone()
	}
	return out
}
