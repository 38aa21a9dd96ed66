package domain

// Record is one row of user data keyed by field name. Values handed to the engine
// are nil, string, *string or []byte; encrypted fields hold the serialized envelope
// string.
type Record map[string]any

// Clone returns a shallow copy. Byte slice values are copied so callers can mutate
// the result without touching the source.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		if b, ok := v.([]byte); ok && b != nil {
			v = append([]byte(nil), b...)
		}
		out[k] = v
	}
	return out
}
