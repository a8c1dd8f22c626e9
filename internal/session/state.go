// Package session holds the interactive state for one loaded document:
// which operations are expanded, what the user typed, and the last result
// of each execution.
package session

import (
	"maps"

	"oasplay/internal/httpclient"
	"oasplay/internal/model"
)

// OperationState is the per-operation slice of State. Values are never
// mutated after they are stored.
type OperationState struct {
	Expanded bool
	Params   map[string]string
	Body     any
	HasBody  bool
	Result   httpclient.ExecutionResult
	InFlight bool

	// Seq is the sequence number of the most recently submitted execution.
	Seq uint64
}

// State is an immutable snapshot. Every reducer returns a new State that
// shares all untouched OperationState values with its parent.
type State struct {
	Doc           *model.Document
	CustomHeaders string

	ops map[model.OperationKey]*OperationState
}

// NewState returns the initial state for doc.
func NewState(doc *model.Document) *State {
	return &State{Doc: doc, ops: map[model.OperationKey]*OperationState{}}
}

// Op returns the state for key, or a zero OperationState when none was
// recorded yet.
func (s *State) Op(key model.OperationKey) OperationState {
	if s == nil {
		return OperationState{}
	}
	if op, ok := s.ops[key]; ok {
		return *op
	}
	return OperationState{}
}

// lookup exposes the stored pointer so tests can check sharing.
func (s *State) lookup(key model.OperationKey) *OperationState {
	return s.ops[key]
}

func (s *State) update(key model.OperationKey, fn func(op *OperationState)) *State {
	next := &State{
		Doc:           s.Doc,
		CustomHeaders: s.CustomHeaders,
		ops:           make(map[model.OperationKey]*OperationState, len(s.ops)+1),
	}
	maps.Copy(next.ops, s.ops)

	var op OperationState
	if cur, ok := s.ops[key]; ok {
		op = *cur
	}
	fn(&op)
	next.ops[key] = &op
	return next
}

func (s *State) ToggleExpanded(key model.OperationKey) *State {
	return s.update(key, func(op *OperationState) {
		op.Expanded = !op.Expanded
	})
}

func (s *State) SetParameterValue(key model.OperationKey, name, value string) *State {
	return s.update(key, func(op *OperationState) {
		params := make(map[string]string, len(op.Params)+1)
		maps.Copy(params, op.Params)
		params[name] = value
		op.Params = params
	})
}

// ClearParameterValue forgets a value so the parameter counts as not given.
func (s *State) ClearParameterValue(key model.OperationKey, name string) *State {
	return s.update(key, func(op *OperationState) {
		params := make(map[string]string, len(op.Params))
		maps.Copy(params, op.Params)
		delete(params, name)
		op.Params = params
	})
}

// SetRequestBody stores body; a nil body clears it.
func (s *State) SetRequestBody(key model.OperationKey, body any) *State {
	return s.update(key, func(op *OperationState) {
		op.Body = body
		op.HasBody = body != nil
	})
}

// SetLoading marks key in flight under seq, or clears the flag.
func (s *State) SetLoading(key model.OperationKey, loading bool, seq uint64) *State {
	return s.update(key, func(op *OperationState) {
		op.InFlight = loading
		if loading {
			op.Seq = seq
		}
	})
}

func (s *State) SetResult(key model.OperationKey, result httpclient.ExecutionResult) *State {
	return s.update(key, func(op *OperationState) {
		op.Result = result
	})
}

func (s *State) SetCustomHeaders(text string) *State {
	next := &State{Doc: s.Doc, CustomHeaders: text, ops: s.ops}
	return next
}
