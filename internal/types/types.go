package types

import "encoding/json"

// Optional tells a PATCH field that was left out apart from one sent as null. A null clears
// the stored value, an omitted field keeps it.
type Optional[T any] struct {
	Value   *T
	Defined bool
}

// Only called when the key is present in the payload
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Defined = true
	return json.Unmarshal(data, &o.Value)
}

// Merge returns the value after applying the patch to current, and whether the patch touched it
func (o Optional[T]) Merge(current *T) (*T, bool) {
	if !o.Defined {
		return current, false
	}
	return o.Value, true
}
