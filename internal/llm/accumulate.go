package llm

import "sort"

// Accumulator reassembles tool calls from the fragments a streamed turn
// delivers. The upstream keys fragments by choice-local index: the first
// fragment of a call carries its ID and function name, later fragments append
// to the argument text. Concatenating argument fragments in arrival order
// reproduces the full JSON argument object.
type Accumulator struct {
	calls map[int]*ToolCall
	order []int
}

// NewAccumulator returns an empty Accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{calls: make(map[int]*ToolCall)}
}

// Add merges one fragment into the accumulated state.
func (a *Accumulator) Add(delta ToolCallDelta) {
	call, ok := a.calls[delta.Index]
	if !ok {
		call = &ToolCall{}
		a.calls[delta.Index] = call
		a.order = append(a.order, delta.Index)
	}

	if delta.ID != "" {
		call.ID = delta.ID
	}
	if delta.Type != "" {
		call.Type = delta.Type
	}
	if delta.Function.Name != "" {
		call.Function.Name = delta.Function.Name
	}
	call.Function.Arguments += delta.Function.Arguments
}

// Empty reports whether no fragments have been added.
func (a *Accumulator) Empty() bool {
	return len(a.calls) == 0
}

// Calls returns the assembled tool calls ordered by provider index.
func (a *Accumulator) Calls() []ToolCall {
	indexes := make([]int, len(a.order))
	copy(indexes, a.order)
	sort.Ints(indexes)

	out := make([]ToolCall, 0, len(indexes))
	for _, i := range indexes {
		out = append(out, *a.calls[i])
	}
	return out
}

// Reset clears the accumulated state for the next turn.
func (a *Accumulator) Reset() {
	a.calls = make(map[int]*ToolCall)
	a.order = nil
}
