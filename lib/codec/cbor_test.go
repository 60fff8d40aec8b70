// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"strings"
	"testing"
)

type sampleRow struct {
	Position int    `cbor:"position"`
	Name     string `cbor:"name,omitempty"`
	Payload  []byte `cbor:"payload"`
}

func TestMarshalDeterministic(t *testing.T) {
	row := sampleRow{Position: 7, Name: "col1", Payload: []byte{0x00, 0xff}}

	first, err := Marshal(row)
	if err != nil {
		t.Fatalf("first Marshal: %v", err)
	}
	second, err := Marshal(row)
	if err != nil {
		t.Fatalf("second Marshal: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("deterministic encoding violated: %x != %x", first, second)
	}
}

func TestDecoderReadsConcatenatedItems(t *testing.T) {
	rows := []sampleRow{
		{Position: 0, Name: "a", Payload: []byte("x")},
		{Position: 1, Payload: nil},
		{Position: 2, Name: "c", Payload: []byte{1, 2, 3}},
	}

	var buffer bytes.Buffer
	for _, row := range rows {
		data, err := Marshal(row)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		buffer.Write(data)
	}

	decoder := NewDecoder(&buffer)
	for i, want := range rows {
		var got sampleRow
		if err := decoder.Decode(&got); err != nil {
			t.Fatalf("Decode row %d: %v", i, err)
		}
		if got.Position != want.Position || got.Name != want.Name || !bytes.Equal(got.Payload, want.Payload) {
			t.Errorf("row %d: got %+v, want %+v", i, got, want)
		}
	}
}

func TestUnmarshalAnyUsesStringKeys(t *testing.T) {
	data, err := Marshal(map[string]any{"rows": 3})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if _, ok := decoded.(map[string]any); !ok {
		t.Fatalf("decoded %T, want map[string]any", decoded)
	}
}

func TestDiagnose(t *testing.T) {
	data, err := Marshal(sampleRow{Position: 1, Name: "n"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	notation, err := Diagnose(data)
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if !strings.Contains(notation, `"name"`) {
		t.Errorf("Diagnose = %q, missing field name", notation)
	}
}

func TestUnmarshalInvalid(t *testing.T) {
	var row sampleRow
	if err := Unmarshal([]byte{0xff, 0x00}, &row); err == nil {
		t.Fatal("expected error for invalid CBOR")
	}
}
