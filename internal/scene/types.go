// Package scene keeps the state of the controllable objects, produces the
// context snapshot sent to the model and resolves target ids to live
// handles.
//
// The [Store] is the default context provider and target resolver. Objects
// are loaded from a YAML scene file, pushed by a connected host over the
// bridge, or both. Commands issued by actions go through a [Dispatcher]; the
// built-in [LocalDispatcher] applies movement to the stored positions so the
// service is usable without a host.
package scene

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
)

// Vector3 is a position in scene space.
type Vector3 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// Vector3FromMap converts decoded JSON {"x":..,"y":..,"z":..} into a
// Vector3. Missing axes are zero; present axes must be numbers.
func Vector3FromMap(m map[string]any) (Vector3, error) {
	var v Vector3
	axes := []struct {
		key string
		dst *float64
	}{{"x", &v.X}, {"y", &v.Y}, {"z", &v.Z}}

	found := 0
	for _, a := range axes {
		raw, ok := m[a.key]
		if !ok {
			continue
		}
		f, ok := toFloat(raw)
		if !ok {
			return Vector3{}, fmt.Errorf("scene: vector axis %q is %T, want number", a.key, raw)
		}
		*a.dst = f
		found++
	}
	if found == 0 {
		return Vector3{}, fmt.Errorf("scene: vector has none of x, y, z")
	}
	return v, nil
}

// Vector3FromAny converts a decoded param value into a Vector3. It accepts a
// map with x/y/z keys or a three element array.
func Vector3FromAny(v any) (Vector3, error) {
	switch t := v.(type) {
	case map[string]any:
		return Vector3FromMap(t)
	case []any:
		if len(t) != 3 {
			return Vector3{}, fmt.Errorf("scene: vector array has %d elements, want 3", len(t))
		}
		var out [3]float64
		for i, e := range t {
			f, ok := toFloat(e)
			if !ok {
				return Vector3{}, fmt.Errorf("scene: vector element %d is %T, want number", i, e)
			}
			out[i] = f
		}
		return Vector3{X: out[0], Y: out[1], Z: out[2]}, nil
	case Vector3:
		return t, nil
	default:
		return Vector3{}, fmt.Errorf("scene: cannot convert %T to vector", v)
	}
}

// Map converts v into its wire form.
func (v Vector3) Map() map[string]any {
	return map[string]any{"x": v.X, "y": v.Y, "z": v.Z}
}

// Add returns v + o.
func (v Vector3) Add(o Vector3) Vector3 {
	return Vector3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

// Distance returns the Euclidean distance between v and o.
func (v Vector3) Distance(o Vector3) float64 {
	dx, dy, dz := v.X-o.X, v.Y-o.Y, v.Z-o.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// ObjectDescriptor is the model-facing description of one controllable
// object.
type ObjectDescriptor struct {
	ID           string   `json:"objectName"`
	Description  string   `json:"description"`
	Position     Vector3  `json:"position"`
	Capabilities []string `json:"availableActions"`
}

// Context is the ordered snapshot of all objects at prompt time.
type Context []ObjectDescriptor

// JSON renders c as indented JSON for the model request.
func (c Context) JSON() (string, error) {
	if c == nil {
		c = Context{}
	}
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return "", fmt.Errorf("scene: encode context: %w", err)
	}
	return string(b), nil
}

// Object is the stored state of one scene object.
type Object struct {
	ID           string   `yaml:"id" json:"id"`
	Description  string   `yaml:"description" json:"description"`
	Position     Vector3  `yaml:"position" json:"position"`
	Capabilities []string `yaml:"actions" json:"actions"`

	// Aliases are alternative names the resolver accepts for this object.
	Aliases []string `yaml:"aliases,omitempty" json:"aliases,omitempty"`
}

// Descriptor returns the model-facing view of o. Capabilities are sorted and
// de-duplicated.
func (o Object) Descriptor() ObjectDescriptor {
	caps := slices.Clone(o.Capabilities)
	slices.Sort(caps)
	caps = slices.Compact(caps)
	if caps == nil {
		caps = []string{}
	}
	return ObjectDescriptor{
		ID:           o.ID,
		Description:  o.Description,
		Position:     o.Position,
		Capabilities: caps,
	}
}

// Can reports whether o accepts actionID. An object without a declared
// capability list accepts every action.
func (o Object) Can(actionID string) bool {
	return len(o.Capabilities) == 0 || slices.Contains(o.Capabilities, actionID)
}
