package util

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/zeebo/blake3"
)

func TestHashWriter(t *testing.T) {
	const input = "hello1 hello2 hello3 hello4 hello5abcdefghijklmnopqrstuvwxyz0123456789"
	goal := blake3.Sum256([]byte(input))

	var w = new(bytes.Buffer)
	hw := NewHashWriter(w)
	dohashtest(t, hw, input, goal[:])
	if w.String() != input {
		t.Errorf("Got %q, expected %q", w.String(), input)
	}
	dohashtest(t, NewHashWriterPlain(), input, goal[:])

	hw = NewHashWriterPlain()
	hw.Write([]byte(input))
	if hw.Fingerprint() != hex.EncodeToString(goal[:FingerprintSize]) {
		t.Errorf("Got fingerprint %s", hw.Fingerprint())
	}
}

func dohashtest(t *testing.T, hw *HashWriter, input string, goal []byte) {
	_, err := hw.Write([]byte(input))
	if err != nil {
		t.Fatalf("Received error %s", err.Error())
	}
	computed, ok := hw.Check(goal)
	if !ok {
		t.Errorf("Got %s, expected %s", hex.EncodeToString(computed), hex.EncodeToString(goal))
	}
	if _, ok = hw.Check(nil); !ok {
		t.Errorf("empty goal did not match")
	}
	if _, ok = hw.Check([]byte{1, 2, 3}); ok {
		t.Errorf("wrong goal matched")
	}
}
