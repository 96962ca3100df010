package api

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
)

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want time.Time
	}{
		{in: "Tue, 1 Jul 2025 10:52:37 +0000", want: time.Date(2025, 7, 1, 10, 52, 37, 0, time.UTC)},
		{in: "Sat, 12 Jul 2025 08:00:00 +0000", want: time.Date(2025, 7, 12, 8, 0, 0, 0, time.UTC)},
		{in: "Tue, 01 Jul 2025 10:52:37 +0000", want: time.Date(2025, 7, 1, 10, 52, 37, 0, time.UTC)},
		{in: "Tue, 1 Jul 2025 12:52:37 +0200", want: time.Date(2025, 7, 1, 10, 52, 37, 0, time.UTC)},
		{in: "2025-07-01T10:52:37Z", want: time.Date(2025, 7, 1, 10, 52, 37, 0, time.UTC)},
		{in: "2025-07-01T10:52:37.123456789Z", want: time.Date(2025, 7, 1, 10, 52, 37, 123456789, time.UTC)},
	}
	for _, tc := range cases {
		got, err := ParseTimestamp(tc.in)
		if err != nil {
			t.Fatalf("ParseTimestamp(%q) error: %v", tc.in, err)
		}
		if !got.Equal(tc.want) {
			t.Fatalf("ParseTimestamp(%q)=%v want=%v", tc.in, got.Time, tc.want)
		}
	}

	for _, bad := range []string{"", "yesterday", "1 Jul 2025"} {
		if _, err := ParseTimestamp(bad); err == nil {
			t.Fatalf("ParseTimestamp(%q) expected error", bad)
		}
	}
}

func TestTimestamp_JSON(t *testing.T) {
	t.Parallel()

	var v struct {
		At    Timestamp  `json:"at"`
		Maybe *Timestamp `json:"maybe"`
	}
	if err := json.Unmarshal([]byte(`{"at":"Tue, 1 Jul 2025 10:52:37 +0000","maybe":null}`), &v); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if v.Maybe != nil {
		t.Fatalf("Maybe=%v want nil", v.Maybe)
	}

	b, err := json.Marshal(v.At)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(b) != `"2025-07-01T10:52:37Z"` {
		t.Fatalf("Marshal=%s want RFC 3339", b)
	}

	if err := json.Unmarshal([]byte(`{"at":1751367157}`), &v); err == nil {
		t.Fatalf("numeric timestamp should not decode")
	}
}

func TestTimestamp_CBOR(t *testing.T) {
	t.Parallel()

	in := NewTimestamp(time.Date(2025, 7, 1, 10, 52, 37, 0, time.UTC))
	b, err := cbor.Marshal(in)
	if err != nil {
		t.Fatalf("cbor.Marshal: %v", err)
	}
	var out Timestamp
	if err := cbor.Unmarshal(b, &out); err != nil {
		t.Fatalf("cbor.Unmarshal: %v", err)
	}
	if !out.Equal(in.Time) {
		t.Fatalf("round trip=%v want=%v", out.Time, in.Time)
	}
}
