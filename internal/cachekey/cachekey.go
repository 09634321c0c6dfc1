// Package cachekey derives deterministic content-addressed cache keys.
//
// Audio renderings are cached by the (text, voice) pair that produced them.
// When a client does not supply an explicit key, the key is derived as the
// hex MD5 digest of "text_voiceId". The digest must be stable across service
// restarts (no salt, no per-process seed) because clients derive the same
// key independently.
package cachekey

import (
	"crypto/md5"
	"encoding/hex"
)

// Derive returns the cache key for a (text, voiceID) pair: the lowercase
// hex MD5 digest of text + "_" + voiceID. MD5 is used for key derivation
// only, not for any security property.
func Derive(text, voiceID string) string {
	sum := md5.Sum([]byte(text + "_" + voiceID))
	return hex.EncodeToString(sum[:])
}
