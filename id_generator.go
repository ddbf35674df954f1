package taskengine

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// IDGenerator provides identifiers for entities the server creates.
type IDGenerator interface {
	// GenerateTaskID returns the id of a task created by the server
	GenerateTaskID() string
	// GenerateContextID returns the context id of a message that carries none
	GenerateContextID() string
	// GenerateMessageID returns the id of a message the server or executor writes
	GenerateMessageID() string
	// GeneratePushNotificationConfigID returns the id of a push notification config registered without one
	GeneratePushNotificationConfigID() string
}

// DefaultIDGenerator implements IDGenerator using UUID v7, so ids sort by creation time.
type DefaultIDGenerator struct{}

func newUUIDv7() string {
	return uuid.Must(uuid.NewV7()).String()
}

func (DefaultIDGenerator) GenerateTaskID() string                   { return newUUIDv7() }
func (DefaultIDGenerator) GenerateContextID() string                { return newUUIDv7() }
func (DefaultIDGenerator) GenerateMessageID() string                { return newUUIDv7() }
func (DefaultIDGenerator) GeneratePushNotificationConfigID() string { return newUUIDv7() }

// SequentialIDGenerator yields predictable ids such as "task-1" and "ctx-2".
// The counter is shared by every kind of id.
type SequentialIDGenerator struct {
	n atomic.Int64
}

func (g *SequentialIDGenerator) next(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, g.n.Add(1))
}

func (g *SequentialIDGenerator) GenerateTaskID() string    { return g.next("task") }
func (g *SequentialIDGenerator) GenerateContextID() string { return g.next("ctx") }
func (g *SequentialIDGenerator) GenerateMessageID() string { return g.next("msg") }
func (g *SequentialIDGenerator) GeneratePushNotificationConfigID() string {
	return g.next("pnc")
}
