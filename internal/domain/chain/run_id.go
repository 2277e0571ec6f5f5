package chain

import (
	"fmt"
	"strconv"
	"strings"
)

// ReviewChainPrefix marks chains created for gate review sessions. Those expire
// on a shorter timeout than ordinary chains.
const ReviewChainPrefix = "review-"

// FormatRunID builds a run chain ID of the form <base>#<run>
func FormatRunID(base string, run int) string {
	return fmt.Sprintf("%s#%d", base, run)
}

// ParseRunID splits a run chain ID into its base and run number.
// ok is false when the ID carries no numeric #run suffix.
func ParseRunID(chainID string) (base string, run int, ok bool) {
	idx := strings.LastIndex(chainID, "#")
	if idx <= 0 || idx == len(chainID)-1 {
		return chainID, 0, false
	}
	n, err := strconv.Atoi(chainID[idx+1:])
	if err != nil || n < 1 {
		return chainID, 0, false
	}
	return chainID[:idx], n, true
}

// BaseChainID strips the #run suffix from a chain ID
func BaseChainID(chainID string) string {
	base, _, _ := ParseRunID(chainID)
	return base
}

// IsReviewChain reports whether the chain belongs to a gate review session
func IsReviewChain(chainID string) bool {
	return strings.HasPrefix(chainID, ReviewChainPrefix)
}
