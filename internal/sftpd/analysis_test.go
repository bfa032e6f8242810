package sftpd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShannonEntropyEmptyIsZero(t *testing.T) {
	assert.Equal(t, 0.0, shannonEntropy(nil))
}

func TestShannonEntropyBounds(t *testing.T) {
	// A single repeated byte carries no information: entropy 0.
	assert.Equal(t, 0.0, shannonEntropy([]byte{'a', 'a', 'a', 'a'}))

	// Four distinct bytes, evenly split: entropy 2.0 bits exactly.
	assert.InDelta(t, 2.0, shannonEntropy([]byte{0, 1, 2, 3}), 0.0001)
}

func TestShannonEntropyWithinZeroToEight(t *testing.T) {
	data := make([]byte, 256)
	for i := range data {
		data[i] = byte(i)
	}
	e := shannonEntropy(data)
	assert.GreaterOrEqual(t, e, 0.0)
	assert.LessOrEqual(t, e, 8.0)
	assert.InDelta(t, 8.0, e, 0.0001) // uniform over all 256 byte values
}

func TestDetectedMIMEMagicBytes(t *testing.T) {
	assert.Equal(t, "application/x-msdownload", detectedMIME([]byte("MZ\x90\x00\x03")))
	assert.Equal(t, "application/pdf", detectedMIME([]byte("%PDF-1.4")))
	assert.Equal(t, "application/zip", detectedMIME([]byte("PK\x03\x04rest")))
}

func TestClaimedMIMEFromExtension(t *testing.T) {
	assert.Equal(t, "application/x-shellscript", claimedMIME("/tmp/dropper.sh"))
	assert.Equal(t, "", claimedMIME("/tmp/noext"))
}

func TestFormatMismatchDetected(t *testing.T) {
	// An .txt extension claiming plain text, but actually an ELF binary.
	a := analyze("payload.txt", []byte("\x7fELF\x02\x01\x01\x00"))
	assert.True(t, a.formatMismatch)
	assert.Equal(t, "text/plain", a.claimedMIME)
	assert.Equal(t, "application/x-executable", a.detectedMIME)
}

func TestSameBytesProduceIdenticalAnalysis(t *testing.T) {
	data := []byte("reproducible upload contents")
	a1 := analyze("note.txt", data)
	a2 := analyze("note.txt", data)
	assert.Equal(t, a1, a2)
}
