package model

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// SigningKey is a node's local signing secret, used only to produce a
// Reading's Signature field; it is never shared with peers.
type SigningKey []byte

// Sign computes an HMAC-SHA256 over r's identifying fields, hex-encoded to
// a 64-byte digest — the same length the reference implementation checks
// for (`len(reading.signature) == 64`, a SHA256 hex digest).
func Sign(key SigningKey, r Reading) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(r.SensorID))
	mac.Write([]byte(r.NodeID))
	mac.Write([]byte(strconv.FormatInt(r.Timestamp.UnixNano(), 10)))
	mac.Write([]byte(strconv.FormatFloat(r.Value, 'g', -1, 64)))
	if r.GPS != nil {
		mac.Write([]byte(strconv.FormatFloat(r.GPS.Lat, 'g', -1, 64)))
		mac.Write([]byte(strconv.FormatFloat(r.GPS.Lon, 'g', -1, 64)))
	}
	sum := mac.Sum(nil)
	dst := make([]byte, hex.EncodedLen(len(sum)))
	hex.Encode(dst, sum)
	return dst
}

// VerifySignature reports whether sig has the shape of a valid Reading
// signature. This is an opaque length check, not an authenticity check —
// matching the reference implementation's validate_signatures, which also
// only checks digest length — so it can be swapped for full HMAC/public-key
// verification later without touching the Aggregator that calls it.
func VerifySignature(sig []byte) bool {
	return len(sig) == 64
}
