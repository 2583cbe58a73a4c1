// internal/session/gate.go
// Package session admits authenticated connections into the registry.
package session

import (
	"context"
	"log"

	"ripple-chat/internal/database"
	"ripple-chat/internal/middleware"
	"ripple-chat/internal/registry"
	"ripple-chat/internal/utils"

	"github.com/google/uuid"
)

// Verifier turns a raw credential into a user identity.
type Verifier interface {
	Verify(credential string) (uuid.UUID, error)
}

// JWTVerifier accepts the same signed tokens the REST API issues at login.
type JWTVerifier struct{}

func (JWTVerifier) Verify(credential string) (uuid.UUID, error) {
	if credential == "" {
		return uuid.Nil, utils.NewInvalidCredentialError("missing credential")
	}
	claims, err := middleware.ValidateToken(credential)
	if err != nil {
		return uuid.Nil, utils.NewInvalidCredentialError("invalid or expired credential")
	}
	return claims.UserID, nil
}

// Admission is the gate's receipt for one accepted connection.
type Admission struct {
	Token  uuid.UUID
	UserID uuid.UUID
	Scope  uuid.UUID
}

// Gate is the single entry point for live connections. Nothing reaches the
// registry without passing through it.
type Gate struct {
	verifier Verifier
	store    database.Store
	reg      *registry.Registry
	metrics  *utils.MetricsCollector
}

func NewGate(verifier Verifier, store database.Store, reg *registry.Registry, metrics *utils.MetricsCollector) *Gate {
	return &Gate{
		verifier: verifier,
		store:    store,
		reg:      reg,
		metrics:  metrics,
	}
}

// Authorize checks the credential and conversation membership without
// registering anything. Callers use it before upgrading the transport so a
// rejected client gets a plain HTTP error instead of a dropped socket.
func (g *Gate) Authorize(ctx context.Context, credential string, scope uuid.UUID) (uuid.UUID, error) {
	userID, err := g.verifier.Verify(credential)
	if err != nil {
		return uuid.Nil, err
	}

	if _, err := g.store.GetConversation(ctx, scope); err != nil {
		return uuid.Nil, err
	}
	ok, err := g.store.IsMember(ctx, scope, userID)
	if err != nil {
		return uuid.Nil, err
	}
	if !ok {
		return uuid.Nil, utils.NewNotAuthorizedError("user is not a member of this conversation")
	}
	return userID, nil
}

// Admit registers an authorized connection and returns its admission token.
func (g *Gate) Admit(ctx context.Context, credential string, scope uuid.UUID, conn registry.Connection) (*Admission, error) {
	userID, err := g.Authorize(ctx, credential, scope)
	if err != nil {
		return nil, err
	}

	token := g.reg.Register(userID, scope, conn)
	g.metrics.ConnectionOpened()
	log.Printf("Session admitted: user %s joined conversation %s", userID, scope)

	return &Admission{
		Token:  token,
		UserID: userID,
		Scope:  scope,
	}, nil
}

// Release tears down an admitted connection. Safe to call more than once.
func (g *Gate) Release(admission *Admission) {
	if admission == nil {
		return
	}
	if g.reg.Unregister(admission.Token) {
		g.metrics.ConnectionClosed()
		log.Printf("Session released: user %s left conversation %s", admission.UserID, admission.Scope)
	}
}
