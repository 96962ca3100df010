package persist

import (
	"encoding/json"
	"testing"
	"time"
)

type codecSample struct {
	ID      string          `json:"id" cbor:"id"`
	Expires time.Time       `json:"expires" cbor:"expires"`
	Seen    *time.Time      `json:"seen,omitempty" cbor:"seen,omitempty"`
	Extra   json.RawMessage `json:"extra,omitempty" cbor:"extra,omitempty"`
}

func TestCodecs_PreserveTimestamps(t *testing.T) {
	t.Parallel()

	exp := time.Date(2026, 7, 1, 10, 30, 15, 123456789, time.UTC)
	in := codecSample{ID: "s-1", Expires: exp, Extra: json.RawMessage(`{"admin":true}`)}

	for _, c := range []Codec{JSON, CBOR} {
		b, err := c.Marshal(in)
		if err != nil {
			t.Fatalf("%s Marshal: %v", c.Name(), err)
		}
		var out codecSample
		if err := c.Unmarshal(b, &out); err != nil {
			t.Fatalf("%s Unmarshal: %v", c.Name(), err)
		}
		if out.ID != in.ID || !out.Expires.Equal(exp) || out.Seen != nil {
			t.Fatalf("%s round trip=%+v want=%+v", c.Name(), out, in)
		}
		if string(out.Extra) != string(in.Extra) {
			t.Fatalf("%s extra=%s want=%s", c.Name(), out.Extra, in.Extra)
		}
	}
}

func TestCodecByName(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{in: "", want: "json", ok: true},
		{in: "JSON", want: "json", ok: true},
		{in: " cbor ", want: "cbor", ok: true},
		{in: "gob", ok: false},
	}
	for _, tc := range cases {
		c, err := CodecByName(tc.in)
		if (err == nil) != tc.ok {
			t.Fatalf("CodecByName(%q) err=%v want ok=%v", tc.in, err, tc.ok)
		}
		if tc.ok && c.Name() != tc.want {
			t.Fatalf("CodecByName(%q)=%s want=%s", tc.in, c.Name(), tc.want)
		}
	}
}
