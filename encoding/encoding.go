// Package encoding holds the payload codec used to move profile data in and out of record stores.
package encoding

import (
	"encoding/json"
)

// Marshaler interface specifies encoding to byte array and back to the object.
type Marshaler interface {
	// Encodes any object to byte array.
	Marshal(v any) ([]byte, error)
	// Decodes byte array back to its Object type.
	Unmarshal(data []byte, v any) error
}

// Global Default marshaller. Template reconciliation works on its output, so a replacement
// must still produce JSON objects for profile payloads.
var DefaultMarshaler = NewMarshaler()

// EnvelopeMarshaler packs and unpacks the persisted {metadata, data} envelope.
// Defaults to JSON, same as DefaultMarshaler.
var EnvelopeMarshaler = DefaultMarshaler

type defaultMarshaler struct{}

// Returns the default marshaller which uses the golang's json package.
func NewMarshaler() Marshaler {
	return &defaultMarshaler{}
}

// Encodes any object to a byte array.
func (m defaultMarshaler) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Decodes a byte array back to its Object type.
func (m defaultMarshaler) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// Marshal encodes v with DefaultMarshaler, passing raw byte slices through untouched.
func Marshal[T any](v T) ([]byte, error) {
	switch b := any(v).(type) {
	case []byte:
		return b, nil
	case json.RawMessage:
		return []byte(b), nil
	default:
		return DefaultMarshaler.Marshal(v)
	}
}

// Unmarshal decodes ba into v with DefaultMarshaler, passing raw byte slices through untouched.
func Unmarshal[T any](ba []byte, v *T) error {
	switch t := any(v).(type) {
	case *[]byte:
		*t = ba
		return nil
	case *json.RawMessage:
		*t = json.RawMessage(ba)
		return nil
	default:
		return DefaultMarshaler.Unmarshal(ba, v)
	}
}
