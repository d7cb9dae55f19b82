package jobs

import (
	"context"
	"log"
	"time"
)

// SessionEvicter removes idle chat sessions
type SessionEvicter interface {
	EvictIdle(ttl time.Duration) int
}

// NewSessionJanitor returns a Task that drops chat sessions idle longer
// than ttl. A non-positive ttl keeps sessions forever.
func NewSessionJanitor(sessions SessionEvicter, ttl time.Duration) Task {
	return TaskFunc(func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if ttl <= 0 {
			return nil
		}
		if n := sessions.EvictIdle(ttl); n > 0 {
			log.Printf("session-janitor: evicted %d idle chat sessions", n)
		}
		return nil
	})
}
