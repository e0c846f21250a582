// Package chat persists messages between users and fans them out over Redis pub/sub.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/muzz-events/internal/app"
	"github.com/oggyb/muzz-events/internal/db"
	svcErr "github.com/oggyb/muzz-events/internal/errors"
	"github.com/oggyb/muzz-events/internal/repository"
)

// Service implements sending and reading chat messages.
type Service struct {
	appCtx   *app.AppContext
	users    *repository.UserRepository
	messages *repository.MessageRepository
}

func NewChatService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx:   appCtx,
		users:    repository.NewUserRepository(appCtx.DB),
		messages: repository.NewMessageRepository(appCtx.DB),
	}
}

// Event is the payload published on the receiver's channel.
type Event struct {
	SenderEmail   string    `json:"sender_email"`
	ReceiverEmail string    `json:"receiver_email"`
	Message       string    `json:"message"`
	Timestamp     time.Time `json:"timestamp"`
}

// Entry is one message of a conversation.
type Entry struct {
	SenderID      uint64    `json:"sender_id"`
	SenderEmail   string    `json:"sender_email"`
	ReceiverID    uint64    `json:"receiver_id"`
	ReceiverEmail string    `json:"receiver_email"`
	Message       string    `json:"message"`
	Timestamp     time.Time `json:"timestamp"`
}

// SendMessage stores the message, then publishes it on the receiver's channel.
//
// Behavior:
//   - Any empty field → InvalidArgument.
//   - Unknown sender or receiver → NotFound.
//   - A failed publish is logged; the message is already stored and delivery
//     falls back to History.
func (s *Service) SendMessage(ctx context.Context, senderEmail, receiverEmail, body string) (*db.Message, error) {
	if strings.TrimSpace(senderEmail) == "" || strings.TrimSpace(receiverEmail) == "" || strings.TrimSpace(body) == "" {
		return nil, svcErr.InvalidArgument("Missing data")
	}
	sender, receiver, err := s.pair(ctx, senderEmail, receiverEmail, "Sender or receiver not found")
	if err != nil {
		return nil, err
	}

	msg := &db.Message{
		SenderID:   sender.ID,
		ReceiverID: receiver.ID,
		Body:       body,
		CreatedAt:  s.appCtx.Now(),
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		s.appCtx.Logger.Error("SendMessage failed", "sender", sender.ID, "receiver", receiver.ID, "err", err)
		return nil, svcErr.Map(err)
	}

	payload, err := json.Marshal(Event{
		SenderEmail:   sender.Email,
		ReceiverEmail: receiver.Email,
		Message:       body,
		Timestamp:     msg.CreatedAt,
	})
	if err != nil {
		return nil, svcErr.Map(err)
	}
	channel := s.appCtx.RedisCache.ChannelForUser(receiver.Email)
	if n, err := s.appCtx.RedisCache.Publish(ctx, channel, payload); err != nil {
		s.appCtx.Logger.Warn("chat publish failed", "channel", channel, "err", err)
	} else {
		s.appCtx.Logger.Debug("chat published", "channel", channel, "receivers", n)
	}

	return msg, nil
}

// History returns the conversation between two users, oldest first.
func (s *Service) History(ctx context.Context, email1, email2 string) ([]Entry, error) {
	if strings.TrimSpace(email1) == "" || strings.TrimSpace(email2) == "" {
		return nil, svcErr.InvalidArgument("Missing email addresses")
	}
	u1, u2, err := s.pair(ctx, email1, email2, "One or both users not found")
	if err != nil {
		return nil, err
	}

	msgs, err := s.messages.Between(ctx, u1.ID, u2.ID)
	if err != nil {
		return nil, svcErr.Map(err)
	}

	emails := map[uint64]string{u1.ID: u1.Email, u2.ID: u2.Email}
	out := make([]Entry, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, Entry{
			SenderID:      m.SenderID,
			SenderEmail:   emails[m.SenderID],
			ReceiverID:    m.ReceiverID,
			ReceiverEmail: emails[m.ReceiverID],
			Message:       m.Body,
			Timestamp:     m.CreatedAt,
		})
	}
	return out, nil
}

func (s *Service) pair(ctx context.Context, emailA, emailB, notFound string) (*db.User, *db.User, error) {
	a, err := s.users.GetByEmail(ctx, strings.TrimSpace(emailA))
	if err == nil {
		var b *db.User
		b, err = s.users.GetByEmail(ctx, strings.TrimSpace(emailB))
		if err == nil {
			return a, b, nil
		}
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, svcErr.NotFound(notFound)
	}
	return nil, nil, svcErr.Map(err)
}
