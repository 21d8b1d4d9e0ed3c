package rediskey

import "fmt"

// Job-guard keys (global convention across instances)
const (
	SnapshotLockPrefix = "leaderboard:snapshot:lock"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildSnapshotLockKey returns "leaderboard:snapshot:lock:{channel}"
func BuildSnapshotLockKey(channel string) string {
	return NamespaceKey(SnapshotLockPrefix, channel)
}
