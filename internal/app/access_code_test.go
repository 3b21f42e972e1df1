package app

import "testing"

func TestAccessCodeShape(t *testing.T) {
	gen := newCodeGenerator()
	for i := 0; i < 100; i++ {
		code := gen.next()
		if !ValidAccessCode(code) {
			t.Fatalf("generated invalid code %q", code)
		}
	}
	if ValidAccessCode("abc123") || ValidAccessCode("ABC12") || ValidAccessCode("ABC-23") {
		t.Fatalf("expected malformed codes rejected")
	}
	if NormalizeAccessCode(" abc123 ") != "ABC123" {
		t.Fatalf("expected normalized code")
	}
}
