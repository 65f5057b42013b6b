package chunkedgraph

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strconv"
)

const uint64Size = 8

// decodeScalarField extracts the unsigned integer stored under name in a
// JSON object. Quoted integers are accepted.
func decodeScalarField(op string, body []byte, name string) (uint64, error) {
	obj, err := decodeObject(op, body)
	if err != nil {
		return 0, err
	}
	raw, ok := obj[name]
	if !ok {
		return 0, &DecodeError{Op: op, Reason: fmt.Sprintf("missing field %q", name), Body: body}
	}
	v, err := parseUint64(raw)
	if err != nil {
		return 0, &DecodeError{Op: op, Reason: fmt.Sprintf("field %q is not an unsigned 64-bit integer", name), Body: body, Err: err}
	}
	return v, nil
}

// decodeList returns the elements of a top-level JSON array untouched.
func decodeList(op string, body []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || (trimmed[0] != '[' && !bytes.Equal(trimmed, []byte("null"))) {
		return nil, &DecodeError{Op: op, Reason: "expected JSON array", Body: body}
	}
	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, &DecodeError{Op: op, Reason: "malformed JSON array", Body: body, Err: err}
	}
	if items == nil {
		items = []json.RawMessage{}
	}
	return items, nil
}

// decodeIntKeyedMap parses a JSON object whose keys are decimal ids.
func decodeIntKeyedMap(op string, body []byte) (map[uint64]json.RawMessage, error) {
	obj, err := decodeObject(op, body)
	if err != nil {
		return nil, err
	}
	out := make(map[uint64]json.RawMessage, len(obj))
	for k, v := range obj {
		id, err := strconv.ParseUint(k, 10, 64)
		if err != nil {
			return nil, &DecodeError{Op: op, Reason: fmt.Sprintf("key %q is not an unsigned 64-bit integer", k), Body: body, Err: err}
		}
		out[id] = v
	}
	return out, nil
}

// decodeRawUint64 reads body as packed little-endian uint64 values.
func decodeRawUint64(op string, body []byte) ([]uint64, error) {
	if len(body)%uint64Size != 0 {
		return nil, &DecodeError{
			Op:     op,
			Reason: fmt.Sprintf("payload of %d bytes is not a multiple of %d", len(body), uint64Size),
			Body:   body,
		}
	}
	out := make([]uint64, len(body)/uint64Size)
	for i := range out {
		out[i] = binary.LittleEndian.Uint64(body[i*uint64Size:])
	}
	return out, nil
}

// decodeUint64Field extracts a JSON array of unsigned integers stored under
// name.
func decodeUint64Field(op string, body []byte, name string) ([]uint64, error) {
	obj, err := decodeObject(op, body)
	if err != nil {
		return nil, err
	}
	raw, ok := obj[name]
	if !ok {
		return nil, &DecodeError{Op: op, Reason: fmt.Sprintf("missing field %q", name), Body: body}
	}
	var ids []uint64
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, &DecodeError{Op: op, Reason: fmt.Sprintf("field %q is not an array of unsigned 64-bit integers", name), Body: body, Err: err}
	}
	if ids == nil {
		ids = []uint64{}
	}
	return ids, nil
}

func decodeObject(op string, body []byte) (map[string]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, &DecodeError{Op: op, Reason: "expected JSON object", Body: body}
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, &DecodeError{Op: op, Reason: "malformed JSON object", Body: body, Err: err}
	}
	return obj, nil
}

// parseUint64 accepts decimal integer literals only; exponent and fractional
// forms are rejected rather than rounded.
func parseUint64(raw json.RawMessage) (uint64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 1 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, err
		}
		return strconv.ParseUint(s, 10, 64)
	}
	return strconv.ParseUint(string(raw), 10, 64)
}
