package op

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// fingerprintDomain separates attest fingerprints from any other SHA-256 use.
// Format: SHA256(domain + 0x00 + payload). The null byte prevents domain/payload
// boundary ambiguity. Version suffix enables future algorithm migration.
const fingerprintDomain = "attest/fingerprint/v1"

// FingerprintSize is the byte width of a Fingerprint (SHA-256).
const FingerprintSize = sha256.Size

// Fingerprint is the deduplication key derived from an Operation.
// It is stable across restarts and replays given the same tuple.
type Fingerprint [FingerprintSize]byte

// String returns the lowercase hex form.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// MarshalText implements encoding.TextMarshaler (hex form). This is what
// encoding/json picks up, so fingerprints serialize as hex strings.
func (f Fingerprint) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Fingerprint) UnmarshalText(text []byte) error {
	parsed, err := ParseFingerprint(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// ParseFingerprint parses the hex form produced by String.
func ParseFingerprint(s string) (Fingerprint, error) {
	var f Fingerprint
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("parse fingerprint: %w", err)
	}
	if len(raw) != FingerprintSize {
		return Fingerprint{}, fmt.Errorf("parse fingerprint: got %d bytes, want %d", len(raw), FingerprintSize)
	}
	copy(f[:], raw)
	return f, nil
}

// Encode deterministically derives the fingerprint of an operation.
//
// The hashed payload is
//
//	be32(len(kind)) kind be32(len(recordID)) recordID be64(nonce)
//
// Length prefixes make the encoding injective: ("A","BC") and ("AB","C")
// produce different payloads, which raw concatenation would not. There is no
// delimiter and therefore no escape sentinel to collide with.
//
// String fields must be valid UTF-8 in NFC form. Normalization is checked,
// never applied — silently normalizing would merge byte-distinct inputs and
// break injectivity. Callers that want normalization do it before submitting.
func Encode(o Operation) (Fingerprint, error) {
	if err := o.Validate(); err != nil {
		return Fingerprint{}, &EncodingError{Field: "operation", Reason: err.Error()}
	}
	if err := checkField("kind", string(o.Kind)); err != nil {
		return Fingerprint{}, err
	}
	if err := checkField("record_id", o.RecordID); err != nil {
		return Fingerprint{}, err
	}

	h := sha256.New()
	h.Write([]byte(fingerprintDomain))
	h.Write([]byte{0x00})

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(o.Kind)))
	h.Write(lenBuf[:])
	h.Write([]byte(o.Kind))

	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(o.RecordID)))
	h.Write(lenBuf[:])
	h.Write([]byte(o.RecordID))

	var nonceBuf [8]byte
	binary.BigEndian.PutUint64(nonceBuf[:], uint64(o.Nonce))
	h.Write(nonceBuf[:])

	var f Fingerprint
	copy(f[:], h.Sum(nil))
	return f, nil
}

// checkField rejects strings the codec cannot unambiguously represent.
func checkField(name, s string) error {
	if !utf8.ValidString(s) {
		return &EncodingError{Field: name, Reason: "not valid UTF-8"}
	}
	if !norm.NFC.IsNormalString(s) {
		return &EncodingError{Field: name, Reason: "not in NFC normal form"}
	}
	if len(s) > math.MaxUint32 {
		return &EncodingError{Field: name, Reason: "exceeds maximum field length"}
	}
	return nil
}
