package dispatch

import (
	"strconv"
	"strings"

	"github.com/BaSui01/agentrouter/types"
)

// Label is one tag out of a Dimension's declared set.
type Label string

// Dimension is a named classification axis with a fixed label set,
// e.g. urgency ∈ {urgent, normal}.
type Dimension struct {
	Name   string  `json:"name" yaml:"name"`
	Labels []Label `json:"labels" yaml:"labels"`
}

// NewDimension creates a dimension from its name and declared labels.
func NewDimension(name string, labels ...Label) Dimension {
	return Dimension{Name: name, Labels: append([]Label(nil), labels...)}
}

// Contains reports whether l is one of the declared labels.
func (d Dimension) Contains(l Label) bool {
	for _, x := range d.Labels {
		if x == l {
			return true
		}
	}
	return false
}

// Parse maps a raw classifier output onto a declared label. Surrounding
// whitespace and letter case are normalized; anything else outside the set
// is an UNRECOGNIZED_LABEL error rather than a silent default.
func (d Dimension) Parse(raw string) (Label, error) {
	norm := Label(strings.ToLower(strings.TrimSpace(raw)))
	if norm != "" && d.Contains(norm) {
		return norm, nil
	}
	return "", types.Errorf(types.ErrUnrecognizedLabel,
		"dimension %q: label %q is not one of %v", d.Name, raw, d.Labels)
}

// Strings returns the labels as plain strings.
func (d Dimension) Strings() []string {
	out := make([]string, len(d.Labels))
	for i, l := range d.Labels {
		out[i] = string(l)
	}
	return out
}

// routingKeySep joins labels in a RoutingKey's canonical form.
const routingKeySep = "|"

// RoutingKey is the ordered tuple of labels, one per dimension, used to look
// up a target pool.
type RoutingKey []Label

// NewRoutingKey builds a routing key from labels in dimension order.
func NewRoutingKey(labels ...Label) RoutingKey {
	return append(RoutingKey(nil), labels...)
}

// ParseRoutingKey parses the canonical "a|b" form.
func ParseRoutingKey(s string) RoutingKey {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, routingKeySep)
	key := make(RoutingKey, len(parts))
	for i, p := range parts {
		key[i] = Label(p)
	}
	return key
}

// String returns the canonical form used as the routing table key.
func (k RoutingKey) String() string {
	parts := make([]string, len(k))
	for i, l := range k {
		parts[i] = string(l)
	}
	return strings.Join(parts, routingKeySep)
}

// tableKey is the unambiguous routing-table form. Each label is length
// prefixed so ["a|b"] and ["a","b"] never share an entry.
func (k RoutingKey) tableKey() string {
	var b strings.Builder
	for _, l := range k {
		b.WriteString(strconv.Itoa(len(l)))
		b.WriteByte(':')
		b.WriteString(string(l))
	}
	return b.String()
}

// Equal reports whether two keys hold the same labels in the same order.
func (k RoutingKey) Equal(other RoutingKey) bool {
	if len(k) != len(other) {
		return false
	}
	for i := range k {
		if k[i] != other[i] {
			return false
		}
	}
	return true
}

// validateKey checks a key against a dimension schema.
func validateKey(key RoutingKey, schema []Dimension) error {
	if len(key) == 0 {
		return types.NewError(types.ErrInvalidRoutingKey, "routing key is empty")
	}
	for _, l := range key {
		if l == "" || strings.Contains(string(l), routingKeySep) {
			return types.Errorf(types.ErrInvalidRoutingKey,
				"routing key %q: label %q is empty or contains %q", key, l, routingKeySep)
		}
	}
	if len(schema) == 0 {
		return nil
	}
	if len(key) != len(schema) {
		return types.Errorf(types.ErrInvalidRoutingKey,
			"routing key %q has %d labels, schema has %d dimensions", key, len(key), len(schema))
	}
	for i, dim := range schema {
		if !dim.Contains(key[i]) {
			return types.Errorf(types.ErrInvalidRoutingKey,
				"routing key %q: label %q is not declared for dimension %q", key, key[i], dim.Name)
		}
	}
	return nil
}

// ReachableKeys enumerates the full label cross product of dims in
// dimension order.
func ReachableKeys(dims []Dimension) []RoutingKey {
	if len(dims) == 0 {
		return nil
	}
	keys := []RoutingKey{{}}
	for _, dim := range dims {
		next := make([]RoutingKey, 0, len(keys)*len(dim.Labels))
		for _, prefix := range keys {
			for _, l := range dim.Labels {
				k := make(RoutingKey, len(prefix), len(prefix)+1)
				copy(k, prefix)
				next = append(next, append(k, l))
			}
		}
		keys = next
	}
	return keys
}
