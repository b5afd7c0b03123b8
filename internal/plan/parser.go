package plan

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

var errStringParam = errors.New("string param does not hold structured data")

// Catalog is the view of the action registry the parser validates against.
// *action.Registry satisfies it.
type Catalog interface {
	Has(id string) bool
	ValidateParam(id string, param any) error
}

type wireInvocation struct {
	ActionID string          `json:"actionId"`
	TargetID string          `json:"targetId"`
	Param    json.RawMessage `json:"param"`
}

// Parse converts raw model output into a Plan. It never fails: anything it
// cannot use is reported as a Diagnostic and left out of the Plan. When the
// response as a whole is unreadable the Plan is empty.
//
// Unknown action ids and unusable params drop only the affected invocation.
// Empty sequences are dropped silently. Sequence and invocation order is
// preserved.
func Parse(raw string, catalog Catalog) (Plan, []Diagnostic) {
	text := sanitize(raw)
	if text == "" {
		return Plan{}, []Diagnostic{parseDiag("no JSON array in response")}
	}

	entries, err := decode(text)
	if err != nil {
		fixed := repair(text)
		if fixed == text {
			return Plan{}, []Diagnostic{parseDiag("%v", err)}
		}
		var rerr error
		entries, rerr = decode(fixed)
		if rerr != nil {
			return Plan{}, []Diagnostic{parseDiag("%v (after repair: %v)", err, rerr)}
		}
	}

	var (
		p     Plan
		diags []Diagnostic
	)
	for si, rawSeq := range entries {
		var seq Sequence
		for ii, rawInv := range rawSeq {
			inv, d, ok := validate(si, ii, rawInv, catalog)
			if !ok {
				diags = append(diags, d)
				continue
			}
			seq = append(seq, inv)
		}
		if len(seq) > 0 {
			p.Sequences = append(p.Sequences, seq)
		}
	}
	return p, diags
}

func decode(text string) ([][]json.RawMessage, error) {
	var out [][]json.RawMessage
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func validate(si, ii int, raw json.RawMessage, catalog Catalog) (Invocation, Diagnostic, bool) {
	var w wireInvocation
	if err := json.Unmarshal(raw, &w); err != nil {
		return Invocation{}, validationDiag(si, ii, "", "malformed invocation: %v", err), false
	}
	if !catalog.Has(w.ActionID) {
		return Invocation{}, validationDiag(si, ii, w.ActionID, "unknown action"), false
	}

	param, err := decodeParam(w.Param)
	if err != nil {
		return Invocation{}, validationDiag(si, ii, w.ActionID, "param: %v", err), false
	}
	if err := catalog.ValidateParam(w.ActionID, param); err != nil {
		return Invocation{}, validationDiag(si, ii, w.ActionID, "%w", err), false
	}

	return Invocation{ActionID: w.ActionID, TargetID: w.TargetID, Param: param}, Diagnostic{}, true
}

// decodeParam turns a raw param into structured data. A param sent as a
// JSON string is the legacy encoding: it must itself hold a JSON object or
// array, otherwise the invocation is unusable. The string is decoded as is
// first and only then with over-escaped quotes collapsed.
func decodeParam(raw json.RawMessage) (any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, nil
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	s, ok := v.(string)
	if !ok {
		return v, nil
	}

	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") && !strings.HasPrefix(s, "[") {
		return nil, errStringParam
	}
	var inner any
	if err := json.Unmarshal([]byte(s), &inner); err == nil {
		return inner, nil
	}
	// Some models escape the quotes once more than needed.
	if err := json.Unmarshal([]byte(strings.ReplaceAll(s, `\"`, `"`)), &inner); err != nil {
		return nil, errStringParam
	}
	return inner, nil
}
