package encoding

import "testing"

func TestRLERoundTrip(t *testing.T) {
	cases := [][]uint32{
		nil,
		{0},
		{1, 1, 1, 1},
		{0, 0, 0, 5, 5, 2, 0xFFFFFFFF, 0xFFFFFFFF},
	}
	for _, in := range cases {
		out, err := DecodeRLE(EncodeRLE(in))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(out) != len(in) {
			t.Fatalf("length %d != %d", len(out), len(in))
		}
		for i := range in {
			if out[i] != in[i] {
				t.Fatalf("word %d: %d != %d", i, out[i], in[i])
			}
		}
	}
}

func TestRLECompressesRuns(t *testing.T) {
	words := make([]uint32, 65536)
	enc := EncodeRLE(words)
	if len(enc) > 16 {
		t.Fatalf("all-zero run encoded to %d chars", len(enc))
	}
}

func TestRLERejectsGarbage(t *testing.T) {
	if _, err := DecodeRLE("!!!not-base64!!!"); err == nil {
		t.Fatalf("garbage accepted")
	}
}
