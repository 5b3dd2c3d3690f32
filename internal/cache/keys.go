package cache

import "fmt"

// RateLimitKey is the fixed-window counter for one API key.
func RateLimitKey(kid string) string {
	return fmt.Sprintf("ratelimit:%s", kid)
}
