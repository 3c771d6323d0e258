package utils

import (
	"crypto/md5"
	"fmt"
)

// HashString produces a short stable key for cache entries whose natural
// identifier (a review-page URL or professor id) is unbounded user input.
func HashString(input string) string {
	hash := md5.Sum([]byte(input))
	return fmt.Sprintf("%x", hash)
}
