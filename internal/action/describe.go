package action

import (
	"fmt"
	"strings"
)

// Format renders d in the catalog form shown to the model:
//
//	move: Move the object to a destination
//	Parameters: {
//	    "destination": {x,y,z} // world position to move to,
//	}
func (d Descriptor) Format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\nParameters: ", d.ID, d.Description)
	if len(d.Parameters) == 0 {
		b.WriteString("{}")
		return b.String()
	}
	b.WriteString("{\n")
	for _, p := range d.Parameters {
		fmt.Fprintf(&b, "    %q: %s // %s,\n", p.Key, p.Type, p.Description)
	}
	b.WriteString("}")
	return b.String()
}

// Catalog renders every descriptor as a "- " prefixed list entry, one per
// action, in id order.
func Catalog(descs []Descriptor) string {
	var b strings.Builder
	for i, d := range descs {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(d.Format())
	}
	return b.String()
}
