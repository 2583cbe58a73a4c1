package actors

import (
	"log"
	"sync"

	"ripple-chat/internal/crypt"
	"ripple-chat/internal/database"
	"ripple-chat/internal/registry"
	"ripple-chat/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
)

// DeliverySupervisor routes every conversation-scoped message to the actor
// that owns that conversation, spawning it on first use. One actor per
// conversation means unrelated conversations never wait on each other.
type DeliverySupervisor struct {
	mu            sync.RWMutex
	conversations map[uuid.UUID]*actor.PID
	store         database.Store
	reg           *registry.Registry
	cipher        *crypt.Cipher
	metrics       *utils.MetricsCollector
}

func NewDeliverySupervisor(store database.Store, reg *registry.Registry, cipher *crypt.Cipher, metrics *utils.MetricsCollector) actor.Actor {
	return &DeliverySupervisor{
		conversations: make(map[uuid.UUID]*actor.PID),
		store:         store,
		reg:           reg,
		cipher:        cipher,
		metrics:       metrics,
	}
}

func (s *DeliverySupervisor) Receive(context actor.Context) {
	switch msg := context.Message().(type) {
	case *actor.Started:
		log.Printf("DeliverySupervisor started")

	case *SubmitMessageMsg:
		context.Forward(s.pidFor(context, msg.ConversationID))

	case *FetchHistoryMsg:
		context.Forward(s.pidFor(context, msg.ConversationID))

	case *UpdateStatusMsg:
		context.Forward(s.pidFor(context, msg.ConversationID))

	case *EditMessageMsg:
		context.Forward(s.pidFor(context, msg.ConversationID))

	case *DeleteMessageMsg:
		context.Forward(s.pidFor(context, msg.ConversationID))

	case *TypingMsg:
		context.Send(s.pidFor(context, msg.ConversationID), msg)
	}
}

// pidFor returns the conversation's actor, spawning it if this is the first
// message the supervisor has seen for it.
func (s *DeliverySupervisor) pidFor(context actor.Context, convID uuid.UUID) *actor.PID {
	s.mu.RLock()
	pid, exists := s.conversations[convID]
	s.mu.RUnlock()
	if exists {
		return pid
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if pid, exists = s.conversations[convID]; exists {
		return pid
	}

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewDeliveryActor(convID, s.store, s.reg, s.cipher, s.metrics)
	})
	pid = context.Spawn(props)
	s.conversations[convID] = pid
	log.Printf("DeliverySupervisor: spawned delivery actor for conversation %s", convID)
	return pid
}
