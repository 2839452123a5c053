package instance

import "os"

// GetID returns the scheduler instance identifier used as the lock owner prefix.
func GetID() string {
	if id := os.Getenv("GROUPBUY_INSTANCE_ID"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "scheduler-0"
}
