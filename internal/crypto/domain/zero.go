package domain

// Zero securely overwrites a byte slice with zeros to clear sensitive data from memory.
func Zero(b []byte) {
	if b == nil {
		return
	}
	clear(b)
}

// CloneKey returns an independent copy of key material. The caller owns the copy
// and is expected to Zero it once done.
func CloneKey(key []byte) []byte {
	if key == nil {
		return nil
	}
	out := make([]byte, len(key))
	copy(out, key)
	return out
}
