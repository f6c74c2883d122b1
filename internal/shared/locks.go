package shared

import "fmt"

// IdempotencyKey builds the redis key guarding a replayable request.
func IdempotencyKey(scope, key string) string {
	return fmt.Sprintf("billing:idempotency:%s:%s", scope, key)
}
