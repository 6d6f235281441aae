package str

import "testing"

func TestRoundTrip(t *testing.T) {
	got := Decode(Encode("hello world"))
	if got != "hello world" {
		t.Fatalf("got %q, want %q", got, "hello world")
	}
}

func TestDecodeWithoutTrailingNul(t *testing.T) {
	if got := Decode([]byte("no nul")); got != "no nul" {
		t.Fatalf("got %q, want %q", got, "no nul")
	}
}
