package domain

import "fmt"

// FieldKind identifies what a FieldValue held before encryption.
//
// The kind is sealed together with the value, so null, "" and []byte{} stay
// distinguishable after a round trip and the null marker is authenticated like
// any other plaintext.
type FieldKind byte

const (
	// KindNull is an absent value.
	KindNull FieldKind = 0x00
	// KindString is a UTF-8 string.
	KindString FieldKind = 0x01
	// KindBytes is an opaque byte sequence.
	KindBytes FieldKind = 0x02
)

// FieldValue is a single plaintext field as seen by the field cipher.
type FieldValue struct {
	Kind FieldKind
	Data []byte
}

// NullValue returns the value used for absent fields.
func NullValue() FieldValue {
	return FieldValue{Kind: KindNull}
}

// StringValue wraps a string.
func StringValue(s string) FieldValue {
	return FieldValue{Kind: KindString, Data: []byte(s)}
}

// BytesValue wraps a byte slice. The slice is not copied.
func BytesValue(b []byte) FieldValue {
	return FieldValue{Kind: KindBytes, Data: b}
}

// IsNull reports whether the value is absent.
func (v FieldValue) IsNull() bool {
	return v.Kind == KindNull
}

// FieldValueFrom converts a record value (nil, string, *string or []byte) into a FieldValue.
func FieldValueFrom(value any) (FieldValue, error) {
	switch v := value.(type) {
	case nil:
		return NullValue(), nil
	case string:
		return StringValue(v), nil
	case *string:
		if v == nil {
			return NullValue(), nil
		}
		return StringValue(*v), nil
	case []byte:
		if v == nil {
			return NullValue(), nil
		}
		return BytesValue(v), nil
	default:
		return FieldValue{}, fmt.Errorf("%w: %T", ErrUnsupportedFieldType, value)
	}
}

// Any converts the value back into its record representation: nil, string or []byte.
func (v FieldValue) Any() any {
	switch v.Kind {
	case KindString:
		return string(v.Data)
	case KindBytes:
		if v.Data == nil {
			return []byte{}
		}
		return v.Data
	default:
		return nil
	}
}

// marshal returns kind || data, the exact plaintext handed to the AEAD.
func (v FieldValue) marshal() []byte {
	buf := make([]byte, 0, len(v.Data)+1)
	buf = append(buf, byte(v.Kind))
	if v.Kind != KindNull {
		buf = append(buf, v.Data...)
	}
	return buf
}

// MarshalFieldValue returns the sealed representation of v.
func MarshalFieldValue(v FieldValue) []byte {
	return v.marshal()
}

// UnmarshalFieldValue parses the plaintext produced by MarshalFieldValue.
func UnmarshalFieldValue(b []byte) (FieldValue, error) {
	if len(b) == 0 {
		return FieldValue{}, ErrIntegrity
	}
	kind := FieldKind(b[0])
	switch kind {
	case KindNull:
		if len(b) != 1 {
			return FieldValue{}, ErrIntegrity
		}
		return NullValue(), nil
	case KindString, KindBytes:
		data := make([]byte, len(b)-1)
		copy(data, b[1:])
		return FieldValue{Kind: kind, Data: data}, nil
	default:
		return FieldValue{}, ErrIntegrity
	}
}
