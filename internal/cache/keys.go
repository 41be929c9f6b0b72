package cache

import (
	"fmt"
	"net/url"
)

// ExecutionLogKey addresses the persisted log blob of one execution. Both
// parts are escaped so that their colons cannot collide with the key
// separators.
func ExecutionLogKey(jobID, timestamp string) string {
	return fmt.Sprintf("cronbat:log:%s:%s", url.QueryEscape(jobID), url.QueryEscape(timestamp))
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}
