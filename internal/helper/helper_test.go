package helper

import "testing"

func TestHash8(t *testing.T) {
	if Hash8("A@x.com ") != Hash8("a@x.com") {
		t.Fatal("hash must be case and space insensitive")
	}
	if len(Hash8("a@x.com")) != 16 {
		t.Fatalf("len=%d", len(Hash8("a@x.com")))
	}
}

func TestValidEmail(t *testing.T) {
	for in, want := range map[string]bool{
		"a@x.com": true,
		"@x.com":  false,
		"a@":      false,
		"a x@y.z": false,
		"plain":   false,
	} {
		if got := ValidEmail(in); got != want {
			t.Errorf("ValidEmail(%q)=%v want %v", in, got, want)
		}
	}
}
