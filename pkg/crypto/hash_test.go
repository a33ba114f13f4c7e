package crypto

import (
	"testing"

	"github.com/Klingon-tech/klingnet-chainstate/pkg/types"
)

func mustHash(t *testing.T, s string) types.Hash {
	t.Helper()
	h, err := types.HexToHash(s)
	if err != nil {
		t.Fatalf("bad hex: %v", err)
	}
	return h
}

func TestHash(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  string
	}{
		{name: "empty input", input: []byte{}, want: "af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262"},
		{name: "hello", input: []byte("hello"), want: "ea8f163db38682925e4491c5e58d4bb3506ef8c14eb78a86e908c5624a67200f"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Hash(tt.input); got != mustHash(t, tt.want) {
				t.Errorf("Hash(%q) = %x, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestHashConcat(t *testing.T) {
	a := Hash([]byte("left"))
	b := Hash([]byte("right"))
	result := HashConcat(a, b)

	if result.IsZero() {
		t.Error("HashConcat returned zero hash")
	}
	if result == HashConcat(b, a) {
		t.Error("HashConcat(a,b) should differ from HashConcat(b,a)")
	}

	var buf [64]byte
	copy(buf[:32], a[:])
	copy(buf[32:], b[:])
	if want := Hash(buf[:]); result != want {
		t.Errorf("HashConcat = %x, want %x", result, want)
	}
}

func TestHashParts_MatchesJoined(t *testing.T) {
	got := HashParts([]byte("chain"), []byte("state"), nil, []byte("!"))
	want := Hash([]byte("chainstate!"))
	if got != want {
		t.Errorf("HashParts = %x, want %x", got, want)
	}
}
