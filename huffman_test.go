package h2

import "testing"

func TestHuffmanTableSymbol0And1(t *testing.T) {
	if huffmanTable[0].code != 0x1ff8 || huffmanTable[0].length != 13 {
		t.Errorf("symbol 0 wrong: got code=0x%x length=%d", huffmanTable[0].code, huffmanTable[0].length)
	}
	if huffmanTable[1].code != 0x7fffd8 || huffmanTable[1].length != 23 {
		t.Errorf("symbol 1 wrong: got code=0x%x length=%d", huffmanTable[1].code, huffmanTable[1].length)
	}
}

func TestHuffmanRootIsInternal(t *testing.T) {
	if huffmanRoot == nil {
		t.Fatal("root should not be nil")
	}
	if huffmanRoot.isLeaf() {
		t.Error("root node should not be a leaf")
	}
	if huffmanRoot.symbol != -1 {
		t.Error("root node symbol should be -1")
	}
}

func TestHuffmanEncodeDecodeRoundTrip(t *testing.T) {
	cases := []string{
		"",
		"a",
		"www.example.com",
		"no-cache",
		"custom-key",
		"custom-value",
		string([]byte{0}),
	}
	for _, in := range cases {
		encoded := huffmanAppend(nil, in)
		got, err := huffmanDecode(encoded)
		if err != nil {
			t.Errorf("decode(%q) failed: %v", in, err)
			continue
		}
		if got != in {
			t.Errorf("round trip mismatch: input %q, got %q", in, got)
		}
	}
}

func TestHuffmanEncodedLenMatchesAppend(t *testing.T) {
	s := "www.example.com"
	if got, want := huffmanEncodedLen(s), len(huffmanAppend(nil, s)); got != want {
		t.Errorf("huffmanEncodedLen(%q) = %d, want %d", s, got, want)
	}
}

func TestHuffmanWorthIt(t *testing.T) {
	if huffmanWorthIt("") {
		t.Error("empty string should never be worth encoding")
	}
	if !huffmanWorthIt("www.example.com") {
		t.Error("a lowercase host name should compress smaller with Huffman")
	}
}

func TestHuffmanDecodeInvalidCode(t *testing.T) {
	// Thirty-two 0-bits decode as six '0' symbols (code 00000) and leave
	// two 0-bits over, which are not valid all-ones padding.
	if _, err := huffmanDecode([]byte{0x00, 0x00, 0x00, 0x00}); err == nil {
		t.Error("expected an error decoding an invalid bit pattern")
	}
}

func TestHuffmanDecodeRejectsNonAllOnesPadding(t *testing.T) {
	// 'a' is 00011 (5 bits); the remaining 3 bits of the byte are 000,
	// which sit on a node that still has a 1-edge descendant but were
	// not themselves all-ones, so they are not valid EOS padding.
	if _, err := huffmanDecode([]byte{0x18}); err == nil {
		t.Error("expected an error for a non-all-ones trailing padding run")
	}
}

func TestHuffmanDecodeAcceptsAllOnesPadding(t *testing.T) {
	// 'a' is 00011 (5 bits); pad the remaining 3 bits with 111, which is
	// legitimate EOS-prefix padding.
	got, err := huffmanDecode([]byte{0x1f})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "a" {
		t.Errorf("got %q, want %q", got, "a")
	}
}
