package chunkedgraph

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodeScalarField(t *testing.T) {
	for _, body := range []string{`{"root_id": 864691135210000000}`, `{"root_id": "864691135210000000"}`} {
		got, err := decodeScalarField(OpRootID, []byte(body), "root_id")
		if err != nil {
			t.Fatalf("decode %s: %v", body, err)
		}
		if got != 864691135210000000 {
			t.Fatalf("decode %s: got %d", body, got)
		}
	}
}

func TestDecodeScalarFieldUpperHalf(t *testing.T) {
	got, err := decodeScalarField(OpRootID, []byte(`{"root_id": 18446744073709551615}`), "root_id")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != ^uint64(0) {
		t.Fatalf("expected max uint64, got %d", got)
	}
}

func TestDecodeScalarFieldErrors(t *testing.T) {
	cases := map[string]string{
		"missing":  `{"other": 1}`,
		"negative": `{"root_id": -4}`,
		"float":    `{"root_id": 1.5}`,
		"array":    `[1]`,
		"garbage":  `{"root_id":`,
		"empty":    ``,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := decodeScalarField(OpRootID, []byte(body), "root_id")
			var decErr *DecodeError
			if !errors.As(err, &decErr) {
				t.Fatalf("expected DecodeError, got %v", err)
			}
			if decErr.Op != OpRootID {
				t.Fatalf("unexpected op %q", decErr.Op)
			}
		})
	}
}

func TestDecodeRejectsNonIntegerNumerals(t *testing.T) {
	// Exponent or fractional forms lose precision above 2^53, so only
	// integer literals are ids.
	for _, body := range []string{
		`{"root_id": 8.8946e16}`,
		`{"root_id": 8.8946E+16}`,
		`{"root_id": 1e3}`,
		`{"root_id": 1000.0}`,
		`{"root_id": "8.8946e16"}`,
	} {
		_, err := decodeScalarField(OpRootID, []byte(body), "root_id")
		var decErr *DecodeError
		if !errors.As(err, &decErr) {
			t.Fatalf("decode %s: expected DecodeError, got %v", body, err)
		}
	}
	if _, err := decodeUint64Field(OpLeaves, []byte(`{"leaf_ids": [1e3]}`), "leaf_ids"); err == nil {
		t.Fatalf("expected exponent leaf id to be rejected")
	}
}

func TestDecodeListPassthrough(t *testing.T) {
	body := []byte(`[{"a": 1}, 2, "three"]`)
	items, err := decodeList(OpMergeLog, body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	if string(items[0]) != `{"a": 1}` || string(items[2]) != `"three"` {
		t.Fatalf("items altered: %s %s", items[0], items[2])
	}

	items, err = decodeList(OpMergeLog, []byte("null"))
	if err != nil {
		t.Fatalf("decode null: %v", err)
	}
	if items == nil || len(items) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", items)
	}

	if _, err := decodeList(OpMergeLog, []byte(`{"a":1}`)); err == nil {
		t.Fatalf("expected error for object body")
	}
}

func TestDecodeIntKeyedMap(t *testing.T) {
	body := []byte(`{"101": {"x": [1, 2]}, "202": {"y": null}}`)
	got, err := decodeIntKeyedMap(OpContactSites, body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(got))
	}
	if string(got[101]) != `{"x": [1, 2]}` {
		t.Fatalf("value for 101 changed: %s", got[101])
	}
	if string(got[202]) != `{"y": null}` {
		t.Fatalf("value for 202 changed: %s", got[202])
	}

	_, err = decodeIntKeyedMap(OpContactSites, []byte(`{"abc": 1}`))
	var decErr *DecodeError
	if !errors.As(err, &decErr) {
		t.Fatalf("expected DecodeError for non-integer key, got %v", err)
	}
}

func TestDecodeRawUint64(t *testing.T) {
	want := []uint64{1, 1 << 40, ^uint64(0) - 7}
	body := make([]byte, 0, 24)
	for _, v := range want {
		body = binary.LittleEndian.AppendUint64(body, v)
	}
	got, err := decodeRawUint64(OpChildren, body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 values, got %d", len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("value %d: want %d got %d", i, want[i], got[i])
		}
	}

	empty, err := decodeRawUint64(OpChildren, nil)
	if err != nil || len(empty) != 0 {
		t.Fatalf("empty body: %v %v", empty, err)
	}

	_, err = decodeRawUint64(OpChildren, body[:23])
	var decErr *DecodeError
	if !errors.As(err, &decErr) {
		t.Fatalf("expected DecodeError for 23 bytes, got %v", err)
	}
}

func TestDecodeUint64Field(t *testing.T) {
	got, err := decodeUint64Field(OpLeaves, []byte(`{"leaf_ids": [5, 6, 18446744073709551615]}`), "leaf_ids")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 3 || got[0] != 5 || got[2] != ^uint64(0) {
		t.Fatalf("unexpected ids %v", got)
	}
	for _, body := range []string{`{"other": []}`, `{"leaf_ids": ["a"]}`, `[1,2]`} {
		if _, err := decodeUint64Field(OpLeaves, []byte(body), "leaf_ids"); err == nil {
			t.Fatalf("expected error for %s", body)
		}
	}
}

func TestDecodeErrorKeepsBody(t *testing.T) {
	body := json.RawMessage(`{"nope": true}`)
	_, err := decodeScalarField(OpRootID, body, "root_id")
	var decErr *DecodeError
	if !errors.As(err, &decErr) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
	if string(decErr.Body) != string(body) {
		t.Fatalf("body not preserved: %s", decErr.Body)
	}
}
