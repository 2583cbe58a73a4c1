package engine

import (
	"time"

	"ripple-chat/internal/crypt"
	"ripple-chat/internal/database"
	"ripple-chat/internal/engine/actors"
	"ripple-chat/internal/models"
	"ripple-chat/internal/registry"
	"ripple-chat/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
)

const defaultRequestTimeout = 5 * time.Second

// Engine is the façade over the delivery actors. Handlers and the websocket
// layer talk to it with plain method calls and never touch PIDs directly.
type Engine struct {
	system         *actor.ActorSystem
	supervisor     *actor.PID
	requestTimeout time.Duration
}

func NewEngine(system *actor.ActorSystem, store database.Store, reg *registry.Registry, cipher *crypt.Cipher, metrics *utils.MetricsCollector) *Engine {
	props := actor.PropsFromProducer(func() actor.Actor {
		return actors.NewDeliverySupervisor(store, reg, cipher, metrics)
	})
	pid := system.Root.Spawn(props)

	return &Engine{
		system:         system,
		supervisor:     pid,
		requestTimeout: defaultRequestTimeout,
	}
}

// SubmitMessage persists and fans out a message, returning the stored record
// as the sender should see it.
func (e *Engine) SubmitMessage(msg *actors.SubmitMessageMsg) (*models.Message, error) {
	result, err := e.request(msg)
	if err != nil {
		return nil, err
	}
	message, ok := result.(*models.Message)
	if !ok {
		return nil, utils.NewAppError(utils.ErrDatabase, "unexpected response from delivery actor", nil)
	}
	return message, nil
}

// FetchHistory pages messages newest first and marks pending messages
// delivered to the requester as a side effect.
func (e *Engine) FetchHistory(msg *actors.FetchHistoryMsg) ([]*models.Message, error) {
	result, err := e.request(msg)
	if err != nil {
		return nil, err
	}
	history, ok := result.(*actors.HistoryResult)
	if !ok {
		return nil, utils.NewAppError(utils.ErrDatabase, "unexpected response from delivery actor", nil)
	}
	return history.Messages, nil
}

// UpdateStatus records a delivered or read receipt.
func (e *Engine) UpdateStatus(msg *actors.UpdateStatusMsg) error {
	_, err := e.request(msg)
	return err
}

// Typing is fire and forget.
func (e *Engine) Typing(msg *actors.TypingMsg) {
	e.system.Root.Send(e.supervisor, msg)
}

// EditMessage replaces the content of a message the editor sent.
func (e *Engine) EditMessage(msg *actors.EditMessageMsg) (*models.Message, error) {
	result, err := e.request(msg)
	if err != nil {
		return nil, err
	}
	message, ok := result.(*models.Message)
	if !ok {
		return nil, utils.NewAppError(utils.ErrDatabase, "unexpected response from delivery actor", nil)
	}
	return message, nil
}

// DeleteMessage tombstones a message the requester sent.
func (e *Engine) DeleteMessage(msg *actors.DeleteMessageMsg) (*models.Message, error) {
	result, err := e.request(msg)
	if err != nil {
		return nil, err
	}
	message, ok := result.(*models.Message)
	if !ok {
		return nil, utils.NewAppError(utils.ErrDatabase, "unexpected response from delivery actor", nil)
	}
	return message, nil
}

func (e *Engine) request(msg interface{}) (interface{}, error) {
	future := e.system.Root.RequestFuture(e.supervisor, msg, e.requestTimeout)
	result, err := future.Result()
	if err != nil {
		return nil, utils.NewActorTimeoutError("delivery")
	}
	if appErr, ok := result.(*utils.AppError); ok {
		return nil, appErr
	}
	return result, nil
}
