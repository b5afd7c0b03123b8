// Package plan holds the execution plan data model and the parser that turns
// untrusted model output into a validated [Plan].
//
// The wire format is a JSON array of arrays. Each inner array is a
// [Sequence] whose invocations run strictly in order; sequences run
// concurrently with each other:
//
//	[
//	  [{"actionId":"move","targetId":"Cube1","param":{"x":1,"y":0,"z":1}},
//	   {"actionId":"talk","targetId":"Cube1","param":{"dialogueLine":"hi"}}],
//	  [{"actionId":"move","targetId":"Cube2","param":{"x":-1,"y":0,"z":-1}}]
//	]
package plan

import "encoding/json"

// Invocation is one requested call of an action on a target. Param holds
// decoded structured data (map[string]any, []any, float64, string, bool or
// nil), never a pre-serialized JSON string.
type Invocation struct {
	ActionID string `json:"actionId"`
	TargetID string `json:"targetId"`
	Param    any    `json:"param"`
}

// Sequence is an ordered list of invocations executed serially.
type Sequence []Invocation

// Plan is the set of sequences produced for one cycle. The zero Plan is
// valid and schedules nothing.
type Plan struct {
	Sequences []Sequence
}

// Empty reports whether p schedules no invocations.
func (p Plan) Empty() bool {
	return p.Len() == 0
}

// Len returns the total number of invocations across all sequences.
func (p Plan) Len() int {
	n := 0
	for _, s := range p.Sequences {
		n += len(s)
	}
	return n
}

// MarshalJSON renders p in the canonical wire form.
func (p Plan) MarshalJSON() ([]byte, error) {
	seqs := p.Sequences
	if seqs == nil {
		seqs = []Sequence{}
	}
	return json.Marshal(seqs)
}

// String returns the canonical wire form, or "[]" if it cannot be encoded.
func (p Plan) String() string {
	b, err := json.Marshal(p)
	if err != nil {
		return "[]"
	}
	return string(b)
}
