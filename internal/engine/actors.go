package engine

import (
	"log/slog"
	"time"

	"recruit-inbox/internal/engine/actors"
	"recruit-inbox/internal/models"
	"recruit-inbox/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
)

// Engine coordinates communication between actors
type Engine struct {
	system       *actor.ActorSystem
	relayActor   *actor.PID
	subscription *eventstream.Subscription
}

// NewEngine spawns the notification relay and forwards every
// MessageAppended event published on the system's event stream to it.
func NewEngine(system *actor.ActorSystem, metrics *utils.MetricsCollector) *Engine {
	context := system.Root

	// Spawn notification relay actor
	relayProps := actor.PropsFromProducer(func() actor.Actor {
		return actors.NewNotificationRelayActor(metrics)
	})
	relayPID := context.Spawn(relayProps)

	sub := system.EventStream.Subscribe(func(evt interface{}) {
		if appended, ok := evt.(*models.MessageAppended); ok {
			context.Send(relayPID, appended)
		}
	})

	return &Engine{
		system:       system,
		relayActor:   relayPID,
		subscription: sub,
	}
}

// GetRelayActor returns the PID of the notification relay actor
func (e *Engine) GetRelayActor() *actor.PID {
	return e.relayActor
}

// Publisher is where message stores publish MessageAppended events.
func (e *Engine) Publisher() *eventstream.EventStream {
	return e.system.EventStream
}

// RelayStats asks the relay for its counters.
func (e *Engine) RelayStats(timeout time.Duration) (*actors.RelayStats, error) {
	result, err := e.system.Root.RequestFuture(e.relayActor, &actors.GetRelayStatsMsg{}, timeout).Result()
	if err != nil {
		return nil, utils.NewActorTimeoutError("notification relay", err)
	}
	return result.(*actors.RelayStats), nil
}

// Stop detaches the relay from the event stream and stops it.
func (e *Engine) Stop() {
	e.system.EventStream.Unsubscribe(e.subscription)
	if err := e.system.Root.StopFuture(e.relayActor).Wait(); err != nil {
		slog.Warn("Notification relay did not stop cleanly", "error", err)
	}
}
