package facade

import (
	"context"
	stderrors "errors"
	"sort"
	"strings"

	"partner-workspace/internal/common/errors"
	"partner-workspace/internal/models"
	"partner-workspace/internal/persistence"

	"go.opentelemetry.io/otel/attribute"
)

// OutgoingMessage is a chat message before the store has accepted it.
// ClientKey is the idempotency key; resending the same key returns the
// message stored the first time.
type OutgoingMessage struct {
	CollaborationID string
	SenderID        string
	Content         string
	ClientKey       string
}

// ListMessages fetches one workspace's chat stream in timestamp order.
// Messages are not cached by the domain store.
func (f *Facade) ListMessages(ctx context.Context, collaborationID string) ([]models.ChatMessage, error) {
	recs, err := f.client.GetAll(ctx, persistence.Messages)
	if err != nil {
		return nil, errors.NewRemoteReadError(string(persistence.Messages), err)
	}
	all, err := persistence.DecodeAll[models.ChatMessage](recs)
	if err != nil {
		return nil, errors.NewRemoteReadError(string(persistence.Messages), err)
	}

	out := make([]models.ChatMessage, 0, len(all))
	for _, m := range all {
		if m.CollaborationID == collaborationID {
			out = append(out, m)
		}
	}
	SortMessages(out)
	return out, nil
}

// SortMessages orders by timestamp, then id.
func SortMessages(msgs []models.ChatMessage) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
		}
		return msgs[i].ID < msgs[j].ID
	})
}

func (f *Facade) SendMessage(ctx context.Context, msg OutgoingMessage) (models.ChatMessage, error) {
	var out models.ChatMessage
	err := f.run(ctx, "send_message", func(ctx context.Context) error {
		if strings.TrimSpace(msg.Content) == "" {
			return errors.NewValidationError("message content is required")
		}
		if err := f.requireParticipant(msg.CollaborationID, msg.SenderID); err != nil {
			return err
		}

		rec, err := f.client.Create(ctx, persistence.Messages, models.ChatMessage{
			CollaborationID: msg.CollaborationID,
			SenderID:        msg.SenderID,
			Content:         msg.Content,
			ClientKey:       msg.ClientKey,
		})
		if stderrors.Is(err, persistence.ErrConflict) && msg.ClientKey != "" {
			out, err = f.messageByClientKey(ctx, msg.CollaborationID, msg.ClientKey)
			return err
		}
		if err != nil {
			return errors.NewMessageSendFailedError(err)
		}
		out, err = decode[models.ChatMessage](rec)
		return err
	}, attribute.String("collaboration.id", msg.CollaborationID))
	return out, err
}

func (f *Facade) messageByClientKey(ctx context.Context, collaborationID, key string) (models.ChatMessage, error) {
	msgs, err := f.ListMessages(ctx, collaborationID)
	if err != nil {
		return models.ChatMessage{}, errors.NewMessageSendFailedError(err)
	}
	for _, m := range msgs {
		if m.ClientKey == key {
			return m, nil
		}
	}
	return models.ChatMessage{}, errors.NewMessageSendFailedError(persistence.ErrConflict)
}

// requireParticipant accepts the owners of either side of the workspace and admins.
func (f *Facade) requireParticipant(collaborationID, userID string) error {
	snap := f.snapshot()
	c, ok := snap.Collaboration(collaborationID)
	if !ok {
		return errors.NewEntityNotFoundError("collaboration", collaborationID)
	}
	u, ok := snap.User(userID)
	if !ok {
		return errors.NewEntityNotFoundError("user", userID)
	}
	if u.Role == models.RoleAdmin || u.ProfileID == c.CompanyID || u.ProfileID == c.PartnerID {
		return nil
	}
	return errors.NewValidationError("user " + userID + " is not part of collaboration " + collaborationID)
}

// MarkMessagesRead flips the read flag on every message in the workspace that
// readerID did not send. It returns how many were updated.
func (f *Facade) MarkMessagesRead(ctx context.Context, collaborationID, readerID string) (int, error) {
	var marked int
	err := f.run(ctx, "mark_messages_read", func(ctx context.Context) error {
		msgs, err := f.ListMessages(ctx, collaborationID)
		if err != nil {
			return err
		}
		for _, m := range msgs {
			if m.Read || m.SenderID == readerID {
				continue
			}
			if _, err := f.client.Update(ctx, persistence.Messages, m.ID, map[string]any{"read": true}); err != nil {
				return errors.NewRemoteWriteError("mark_messages_read", err)
			}
			marked++
		}
		return nil
	}, attribute.String("collaboration.id", collaborationID))
	return marked, err
}
