package util

import (
	"bytes"
	"encoding/hex"
	"io"

	"github.com/zeebo/blake3"
)

// FingerprintSize is the number of bytes of the hash kept in a fingerprint.
const FingerprintSize = 16

// A HashWriter wraps an io.Writer and also calculates the BLAKE3 hash of the
// bytes written.
type HashWriter struct {
	io.Writer // our io.MultiWriter
	h         *blake3.Hasher
}

// NewHashWriter returns a HashWriter wrapping w.
func NewHashWriter(w io.Writer) *HashWriter {
	hw := &HashWriter{h: blake3.New()}
	hw.Writer = io.MultiWriter(w, hw.h)
	return hw
}

// NewHashWriterPlain return a HashWriter that does not wrap an output stream.
// It will just compute the hash of the data written to it.
func NewHashWriterPlain() *HashWriter {
	hw := &HashWriter{h: blake3.New()}
	hw.Writer = hw.h
	return hw
}

// Sum returns the full hash of everything written so far.
func (hw *HashWriter) Sum() []byte {
	return hw.h.Sum(nil)
}

// Fingerprint returns the first FingerprintSize bytes of the hash in hex.
// This is the form used for ETags.
func (hw *HashWriter) Fingerprint() string {
	return hex.EncodeToString(hw.Sum()[:FingerprintSize])
}

// Check returns the hash for this writer, and compares it for equality with
// the goal hash passed in. If the goal is empty then it is treated as
// matching, and true is returned.
func (hw *HashWriter) Check(goal []byte) ([]byte, bool) {
	computed := hw.Sum()
	ok := len(goal) == 0 || bytes.Equal(goal, computed)
	return computed, ok
}
