// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"
)

type installRecord struct {
	ID        uuid.UUID `cbor:"id"`
	CreatedAt time.Time `cbor:"created_at"`
	Sessions  []string  `cbor:"sessions,omitempty"`
}

func TestMarshalPreservesTextAndTime(t *testing.T) {
	record := installRecord{
		ID:        uuid.MustParse("6c7b0a53-3e0c-4c34-9b9f-0a0d8c1b5e21"),
		CreatedAt: time.Date(2026, 3, 4, 5, 6, 7, 891000000, time.UTC),
		Sessions:  []string{"1767225600000/6c7b0a53-3e0c-4c34-9b9f-0a0d8c1b5e21"},
	}

	data, err := Marshal(record)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded installRecord
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.ID != record.ID {
		t.Errorf("ID = %v, want %v", decoded.ID, record.ID)
	}
	if !decoded.CreatedAt.Equal(record.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v (sub-second precision lost?)", decoded.CreatedAt, record.CreatedAt)
	}
	if len(decoded.Sessions) != 1 || decoded.Sessions[0] != record.Sessions[0] {
		t.Errorf("Sessions = %v, want %v", decoded.Sessions, record.Sessions)
	}
}

func TestMarshalDeterministicMapOrder(t *testing.T) {
	first, err := Marshal(map[string]bool{"enabled.analytics": true, "enabled": false, "a": true})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for range 20 {
		again, err := Marshal(map[string]bool{"a": true, "enabled": false, "enabled.analytics": true})
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatal("map encoding is not deterministic")
		}
	}
}

func TestUnmarshalAnyUsesStringKeys(t *testing.T) {
	data, err := Marshal(map[string]any{"flag": true})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if _, ok := decoded.(map[string]any); !ok {
		t.Fatalf("decoded type = %T, want map[string]any", decoded)
	}
}
