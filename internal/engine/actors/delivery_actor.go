package actors

import (
	stdctx "context"
	"log"
	"time"

	"ripple-chat/internal/crypt"
	"ripple-chat/internal/database"
	"ripple-chat/internal/models"
	"ripple-chat/internal/registry"
	"ripple-chat/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
)

// Message types for DeliveryActor
type (
	SubmitMessageMsg struct {
		ConversationID uuid.UUID          `json:"conversationId"`
		SenderID       uuid.UUID          `json:"senderId"`
		Content        string             `json:"content"`
		ContentType    models.MessageType `json:"contentType"`
		ReplyToID      *int64             `json:"replyToId,omitempty"`
		FileName       string             `json:"fileName,omitempty"`
		FileSize       int64              `json:"fileSize,omitempty"`
		FileRef        string             `json:"fileRef,omitempty"`
	}

	FetchHistoryMsg struct {
		ConversationID uuid.UUID `json:"conversationId"`
		RequesterID    uuid.UUID `json:"requesterId"`
		BeforeID       int64     `json:"beforeId"`
		Limit          int       `json:"limit"`
	}

	UpdateStatusMsg struct {
		ConversationID uuid.UUID            `json:"conversationId"`
		MessageID      int64                `json:"messageId"`
		RecipientID    uuid.UUID            `json:"recipientId"`
		Status         models.MessageStatus `json:"status"`
	}

	TypingMsg struct {
		ConversationID uuid.UUID `json:"conversationId"`
		UserID         uuid.UUID `json:"userId"`
		Username       string    `json:"username"`
		IsTyping       bool      `json:"isTyping"`
	}

	EditMessageMsg struct {
		ConversationID uuid.UUID `json:"conversationId"`
		MessageID      int64     `json:"messageId"`
		EditorID       uuid.UUID `json:"editorId"`
		Content        string    `json:"content"`
	}

	DeleteMessageMsg struct {
		ConversationID uuid.UUID `json:"conversationId"`
		MessageID      int64     `json:"messageId"`
		RequesterID    uuid.UUID `json:"requesterId"`
	}
)

// HistoryResult is the response to a FetchHistoryMsg.
type HistoryResult struct {
	Messages []*models.Message `json:"messages"`
}

// DeliveryActor owns one conversation. Every append, fan-out and status
// change for the conversation goes through this actor, which is what keeps
// message ids gapless and receipts free of write races.
type DeliveryActor struct {
	convID  uuid.UUID
	store   database.Store
	reg     *registry.Registry
	cipher  *crypt.Cipher
	metrics *utils.MetricsCollector
}

func NewDeliveryActor(convID uuid.UUID, store database.Store, reg *registry.Registry, cipher *crypt.Cipher, metrics *utils.MetricsCollector) actor.Actor {
	return &DeliveryActor{
		convID:  convID,
		store:   store,
		reg:     reg,
		cipher:  cipher,
		metrics: metrics,
	}
}

func (a *DeliveryActor) Receive(context actor.Context) {
	switch msg := context.Message().(type) {
	case *actor.Started:
		log.Printf("DeliveryActor started for conversation %s", a.convID)

	case *actor.Stopped:
		log.Printf("DeliveryActor stopped for conversation %s", a.convID)

	case *SubmitMessageMsg:
		a.handleSubmit(context, msg)

	case *FetchHistoryMsg:
		a.handleFetchHistory(context, msg)

	case *UpdateStatusMsg:
		a.handleUpdateStatus(context, msg)

	case *TypingMsg:
		a.handleTyping(msg)

	case *EditMessageMsg:
		a.handleEdit(context, msg)

	case *DeleteMessageMsg:
		a.handleDelete(context, msg)
	}
}

func (a *DeliveryActor) handleSubmit(context actor.Context, msg *SubmitMessageMsg) {
	startTime := time.Now()
	ctx := stdctx.Background()

	if !a.requireMember(context, msg.SenderID) {
		return
	}

	contentType := msg.ContentType
	if contentType == "" {
		contentType = models.TypeText
	}
	if !contentType.Valid() {
		context.Respond(utils.NewAppError(utils.ErrInvalidInput, "unknown content type", nil))
		return
	}
	if contentType == models.TypeText && msg.Content == "" {
		context.Respond(utils.NewAppError(utils.ErrInvalidInput, "message content cannot be empty", nil))
		return
	}
	if msg.ReplyToID != nil {
		target, err := a.store.GetMessage(ctx, a.convID, *msg.ReplyToID)
		if err != nil {
			context.Respond(utils.NewAppError(utils.ErrInvalidInput, "replied-to message does not exist", err))
			return
		}
		if target.IsDeleted {
			context.Respond(utils.NewAppError(utils.ErrInvalidState, "cannot reply to a deleted message", nil))
			return
		}
	}

	stored, err := a.cipher.Encrypt(msg.Content)
	if err != nil {
		context.Respond(utils.NewAppError(utils.ErrDatabase, "failed to encrypt content", err))
		return
	}

	record := &models.Message{
		ConversationID: a.convID,
		SenderID:       msg.SenderID,
		Content:        stored,
		ContentType:    contentType,
		ReplyToID:      msg.ReplyToID,
		FileName:       msg.FileName,
		FileSize:       msg.FileSize,
		FileRef:        msg.FileRef,
		IsEncrypted:    a.cipher.Enabled(),
	}

	id, err := a.store.AppendMessage(ctx, record)
	if err != nil {
		context.Respond(err)
		return
	}
	if err := a.store.TouchLastMessage(ctx, a.convID, record.CreatedAt); err != nil {
		log.Printf("DeliveryActor: failed to touch conversation %s: %v", a.convID, err)
	}
	a.metrics.IncrementSubmitted()

	view := *record
	view.Content = msg.Content
	payload := marshalEvent(&MessageEvent{
		Type:           EventMessage,
		ConversationID: a.convID,
		Message:        &view,
	})

	members, err := a.store.MembersOf(ctx, a.convID)
	if err != nil {
		context.Respond(err)
		return
	}

	// The sender never receives a fan-out copy; their ack is the response
	// below. A push failure drops the dead connection but never undoes
	// the append.
	allDelivered := len(members) > 1
	for _, member := range members {
		if member == msg.SenderID {
			continue
		}
		if !a.pushToMember(member, payload) {
			allDelivered = false
			continue
		}
		if err := a.store.UpdateReceipt(ctx, a.convID, id, member, models.StatusDelivered); err != nil {
			log.Printf("DeliveryActor: failed to record delivery for message %d: %v", id, err)
			allDelivered = false
			continue
		}
		a.broadcastStatus(id, member, models.StatusDelivered)
	}
	if allDelivered {
		view.Status = models.StatusDelivered
	}

	a.metrics.AddOperationLatency("submit_message", time.Since(startTime))
	context.Respond(&view)
}

func (a *DeliveryActor) handleFetchHistory(context actor.Context, msg *FetchHistoryMsg) {
	startTime := time.Now()
	ctx := stdctx.Background()

	if !a.requireMember(context, msg.RequesterID) {
		return
	}

	// Opening history counts as receiving everything addressed to the
	// requester that was still pending.
	promoted, err := a.store.MarkDelivered(ctx, a.convID, msg.RequesterID)
	if err != nil {
		context.Respond(err)
		return
	}
	for _, id := range promoted {
		a.broadcastStatus(id, msg.RequesterID, models.StatusDelivered)
	}

	messages, err := a.store.ListMessages(ctx, a.convID, msg.BeforeID, msg.Limit)
	if err != nil {
		context.Respond(err)
		return
	}

	members, err := a.store.MembersOf(ctx, a.convID)
	if err != nil {
		context.Respond(err)
		return
	}
	ids := make([]int64, 0, len(messages))
	for _, m := range messages {
		ids = append(ids, m.ID)
	}
	receipts, err := a.store.ListReceipts(ctx, a.convID, ids)
	if err != nil {
		context.Respond(err)
		return
	}

	for _, m := range messages {
		if m.IsEncrypted && !m.IsDeleted {
			plaintext, err := a.cipher.Decrypt(m.Content)
			if err != nil {
				log.Printf("DeliveryActor: failed to decrypt message %d: %v", m.ID, err)
			} else {
				m.Content = plaintext
			}
		}
		m.Status = displayStatus(m, msg.RequesterID, members, receipts[m.ID])
	}

	a.metrics.AddOperationLatency("fetch_history", time.Since(startTime))
	context.Respond(&HistoryResult{Messages: messages})
}

func (a *DeliveryActor) handleUpdateStatus(context actor.Context, msg *UpdateStatusMsg) {
	ctx := stdctx.Background()

	if !msg.Status.Valid() {
		context.Respond(utils.NewAppError(utils.ErrInvalidInput, "unknown message status", nil))
		return
	}
	if !a.requireMember(context, msg.RecipientID) {
		return
	}

	record, err := a.store.GetMessage(ctx, a.convID, msg.MessageID)
	if err != nil {
		context.Respond(err)
		return
	}
	if record.SenderID == msg.RecipientID {
		context.Respond(utils.NewInvalidStateError("sender cannot hold a receipt for their own message"))
		return
	}

	if err := a.store.UpdateReceipt(ctx, a.convID, msg.MessageID, msg.RecipientID, msg.Status); err != nil {
		context.Respond(err)
		return
	}

	a.broadcastStatus(msg.MessageID, msg.RecipientID, msg.Status)
	context.Respond(true)
}

func (a *DeliveryActor) handleTyping(msg *TypingMsg) {
	ctx := stdctx.Background()

	ok, err := a.store.IsMember(ctx, a.convID, msg.UserID)
	if err != nil || !ok {
		return
	}

	payload := marshalEvent(&TypingEvent{
		Type:           EventTyping,
		ConversationID: a.convID,
		UserID:         msg.UserID,
		Username:       msg.Username,
		IsTyping:       msg.IsTyping,
	})

	// Typing is best effort. A slow connection drops the indicator but
	// stays registered.
	for _, entry := range a.reg.ConnectionsInScope(a.convID) {
		if entry.UserID == msg.UserID {
			continue
		}
		if err := entry.Conn.Push(payload); err != nil {
			log.Printf("DeliveryActor: dropped typing indicator for user %s: %v", entry.UserID, err)
		}
	}
}

func (a *DeliveryActor) handleEdit(context actor.Context, msg *EditMessageMsg) {
	ctx := stdctx.Background()

	record, err := a.store.GetMessage(ctx, a.convID, msg.MessageID)
	if err != nil {
		context.Respond(err)
		return
	}
	if record.SenderID != msg.EditorID {
		context.Respond(utils.NewNotAuthorizedError("only the sender can edit a message"))
		return
	}
	if msg.Content == "" {
		context.Respond(utils.NewAppError(utils.ErrInvalidInput, "message content cannot be empty", nil))
		return
	}

	stored, err := a.cipher.Encrypt(msg.Content)
	if err != nil {
		context.Respond(utils.NewAppError(utils.ErrDatabase, "failed to encrypt content", err))
		return
	}

	updated, err := a.store.EditMessage(ctx, a.convID, msg.MessageID, stored)
	if err != nil {
		context.Respond(err)
		return
	}

	view := *updated
	view.Content = msg.Content
	a.broadcastToScope(marshalEvent(&MessageEvent{
		Type:           EventMessageEdited,
		ConversationID: a.convID,
		Message:        &view,
	}))
	context.Respond(&view)
}

func (a *DeliveryActor) handleDelete(context actor.Context, msg *DeleteMessageMsg) {
	ctx := stdctx.Background()

	record, err := a.store.GetMessage(ctx, a.convID, msg.MessageID)
	if err != nil {
		context.Respond(err)
		return
	}
	if record.SenderID != msg.RequesterID {
		context.Respond(utils.NewNotAuthorizedError("only the sender can delete a message"))
		return
	}

	updated, err := a.store.SoftDeleteMessage(ctx, a.convID, msg.MessageID)
	if err != nil {
		context.Respond(err)
		return
	}

	a.broadcastToScope(marshalEvent(&DeletionEvent{
		Type:           EventMessageDeleted,
		ConversationID: a.convID,
		MessageID:      msg.MessageID,
	}))
	context.Respond(updated)
}

// requireMember responds with a NOT_AUTHORIZED error and returns false when
// the user is not a member of the conversation.
func (a *DeliveryActor) requireMember(context actor.Context, userID uuid.UUID) bool {
	ok, err := a.store.IsMember(stdctx.Background(), a.convID, userID)
	if err != nil {
		context.Respond(err)
		return false
	}
	if !ok {
		context.Respond(utils.NewNotAuthorizedError("user is not a member of this conversation"))
		return false
	}
	return true
}

// pushToMember writes the payload to every connection the member has open in
// this conversation. Connections that fail are unregistered on the spot.
// Returns true when at least one push landed.
func (a *DeliveryActor) pushToMember(userID uuid.UUID, payload []byte) bool {
	delivered := false
	for _, entry := range a.reg.ScopedConnections(userID, a.convID) {
		if err := entry.Conn.Push(payload); err != nil {
			log.Printf("DeliveryActor: push failed for user %s, dropping connection: %v", userID, err)
			if a.reg.Unregister(entry.Token) {
				a.metrics.ConnectionClosed()
			}
			a.metrics.IncrementPushFailures()
			continue
		}
		delivered = true
		a.metrics.IncrementPushes()
	}
	return delivered
}

func (a *DeliveryActor) broadcastStatus(messageID int64, recipientID uuid.UUID, status models.MessageStatus) {
	a.broadcastToScope(marshalEvent(&StatusEvent{
		Type:           EventStatusUpdate,
		ConversationID: a.convID,
		MessageID:      messageID,
		RecipientID:    recipientID,
		Status:         status,
	}))
}

func (a *DeliveryActor) broadcastToScope(payload []byte) {
	for _, entry := range a.reg.ConnectionsInScope(a.convID) {
		if err := entry.Conn.Push(payload); err != nil {
			log.Printf("DeliveryActor: push failed for user %s, dropping connection: %v", entry.UserID, err)
			if a.reg.Unregister(entry.Token) {
				a.metrics.ConnectionClosed()
			}
			a.metrics.IncrementPushFailures()
		}
	}
}

// displayStatus resolves the status a particular viewer should see. A
// recipient sees their own receipt. The sender sees the lowest status across
// every other member, so "read" only shows once everyone has read it.
func displayStatus(m *models.Message, viewerID uuid.UUID, members []uuid.UUID, receipts map[uuid.UUID]models.MessageStatus) models.MessageStatus {
	if m.SenderID != viewerID {
		if status, ok := receipts[viewerID]; ok {
			return status
		}
		return models.StatusSent
	}

	lowest := models.StatusRead
	others := 0
	for _, member := range members {
		if member == m.SenderID {
			continue
		}
		others++
		status := models.StatusSent
		if s, ok := receipts[member]; ok {
			status = s
		}
		if status.Rank() < lowest.Rank() {
			lowest = status
		}
	}
	if others == 0 {
		return models.StatusSent
	}
	return lowest
}
