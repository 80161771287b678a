package validate

import (
	"strings"
	"testing"
)

func TestDomain(t *testing.T) {
	testCases := []struct {
		desc    string
		in      string
		wantErr bool
	}{
		{desc: "valid domain", in: "example.com", wantErr: false},
		{desc: "empty string", in: "", wantErr: true},
		{desc: "whitespace only", in: "   ", wantErr: true},
		{desc: "oversize domain", in: strings.Repeat("a", MaxDomainLength+1), wantErr: true},
		{desc: "contains a forward slash", in: "example.com/../etc", wantErr: true},
		{desc: "contains a backslash", in: "example.com\\evil", wantErr: true},
		{desc: "contains a NUL byte", in: "example.com\x00", wantErr: true},
		{desc: "at the length limit", in: strings.Repeat("a", MaxDomainLength), wantErr: false},
	}

	for _, tC := range testCases {
		t.Run(tC.desc, func(t *testing.T) {
			err := Domain(tC.in)
			if tC.wantErr && err == nil {
				t.Fatalf("expected an error for input %q, got nil", tC.in)
			}
			if !tC.wantErr && err != nil {
				t.Fatalf("expected no error for input %q, got %v", tC.in, err)
			}
		})
	}
}

func TestSignPayload(t *testing.T) {
	testCases := []struct {
		desc     string
		raw      []byte
		maxBytes int
		wantErr  bool
	}{
		{desc: "valid object", raw: []byte(`{"sub":"user-1"}`), maxBytes: 1024, wantErr: false},
		{desc: "empty payload", raw: []byte(``), maxBytes: 1024, wantErr: true},
		{desc: "not a JSON object", raw: []byte(`[1,2,3]`), maxBytes: 1024, wantErr: true},
		{desc: "malformed JSON", raw: []byte(`{not json`), maxBytes: 1024, wantErr: true},
		{desc: "exceeds the byte cap", raw: []byte(`{"sub":"user-1"}`), maxBytes: 4, wantErr: true},
		{desc: "a zero cap disables the size check", raw: []byte(`{"sub":"user-1"}`), maxBytes: 0, wantErr: false},
	}

	for _, tC := range testCases {
		t.Run(tC.desc, func(t *testing.T) {
			_, err := SignPayload(tC.raw, tC.maxBytes)
			if tC.wantErr && err == nil {
				t.Fatalf("expected an error, got nil")
			}
			if !tC.wantErr && err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
		})
	}
}
