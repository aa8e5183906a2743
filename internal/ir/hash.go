package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainPlan = "sqlrest/plan/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// PlanID computes the fingerprint of a compiled plan from its canonical
// form. Two statements that translate to the same call sequence with the
// same bound values share a PlanID, which makes it useful as a log
// correlation key and as a cache key for callers that memoize results.
func PlanID(plan any) (string, error) {
	canonical, err := MarshalCanonical(plan)
	if err != nil {
		return "", fmt.Errorf("PlanID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainPlan, canonical), nil
}
