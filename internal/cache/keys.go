package cache

import "fmt"

// JobSlotKey is the Redis key holding the persisted job array of one session slot.
func JobSlotKey(slot string) string {
	return fmt.Sprintf("r2c:jobs:%s", slot)
}
