package version

import "testing"

func TestFull(t *testing.T) {
	if got := Full(); got != "meetcap dev, commit none, built at unknown" {
		t.Fatalf("unexpected version string %q", got)
	}

	BuiltBy = "ci"
	defer func() { BuiltBy = "" }()
	if got := Full(); got != "meetcap dev, commit none, built at unknown by ci" {
		t.Fatalf("unexpected version string %q", got)
	}
}
