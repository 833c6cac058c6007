package v1

import (
	"encoding/json"
	"testing"
	"time"
)

func TestEnvelopeValidate(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name string
		env  Envelope
		ok   bool
	}{
		{"sync", Envelope{V: Version, Type: TypeSync, TS: now}, true},
		{"online", Envelope{V: Version, Type: TypeOnline, Payload: json.RawMessage(`{}`)}, true},
		{"missing version", Envelope{Type: TypeSync}, false},
		{"wrong version", Envelope{V: "v2", Type: TypeSync}, false},
		{"missing type", Envelope{V: Version}, false},
		{"unknown type", Envelope{V: Version, Type: "message.send"}, false},
	}
	for _, tc := range cases {
		err := tc.env.Validate()
		if tc.ok && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}
