package enrich

import (
	"fmt"
	"strings"
)

// FailurePolicy decides what a failed set-key lookup does to the call.
type FailurePolicy string

const (
	// PolicyFailFast aborts the whole call on the first failed lookup.
	PolicyFailFast FailurePolicy = "fail-fast"
	// PolicyPartial drops failed keys from the output and reports them.
	PolicyPartial FailurePolicy = "partial"
	// PolicyFallback substitutes the not-found instructions URL for failed keys.
	PolicyFallback FailurePolicy = "fallback"
)

func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch p := FailurePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyFailFast, nil
	case PolicyFailFast, PolicyPartial, PolicyFallback:
		return p, nil
	default:
		return "", fmt.Errorf("unknown enrichment failure policy: %s", s)
	}
}
