package hwaddr

import "testing"

func TestNormalizeEquivalentForms(t *testing.T) {
	want := "AABBCCDDEEFF"
	for _, in := range []string{
		"AA:BB:CC:DD:EE:FF",
		"aa:bb:cc:dd:ee:ff",
		"AA-BB-CC-DD-EE-FF",
		"aabbccddeeff",
		"AABBCCDDEEFF",
	} {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{"", "aa:bb-CC", "AA:BB:CC:DD:EE:FF", "not-a-mac"}
	for _, in := range inputs {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Errorf("Normalize not idempotent for %q: %q != %q", in, twice, once)
		}
	}
}

func TestNormalizeEmpty(t *testing.T) {
	if got := Normalize(""); got != "" {
		t.Errorf("Normalize(\"\") = %q, want empty", got)
	}
}

func TestEqual(t *testing.T) {
	if !Equal("aa:bb:cc:dd:ee:ff", "AA-BB-CC-DD-EE-FF") {
		t.Error("equivalent addresses should compare equal")
	}
	if Equal("", "") {
		t.Error("two empty identifiers must never match")
	}
	if Equal("aa:bb", "") {
		t.Error("empty registered identifier must never match")
	}
}
