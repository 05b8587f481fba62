package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// ResultKey fingerprints an inference request so identical requests share one
// remote call. Parameters are serialized with encoding/json, which writes map
// keys in sorted order at every nesting level, so semantically equal parameter
// sets produce the same key regardless of the order the client sent them in.
// A NUL separator between fields keeps (model, prompt) pairs from colliding
// across field boundaries.
func ResultKey(model, prompt string, params map[string]any) string {
	canonical, err := json.Marshal(params)
	if err != nil {
		// Parameters arrive via JSON decoding, so they always re-marshal;
		// fall back to an uncacheable-in-practice key rather than fail.
		canonical = []byte(fmt.Sprintf("%v", params))
	}

	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(prompt))
	h.Write([]byte{0})
	h.Write(canonical)
	return "inference:" + hex.EncodeToString(h.Sum(nil))
}

func RateLimitKey(clientIP string) string {
	return fmt.Sprintf("ratelimit:%s", clientIP)
}
