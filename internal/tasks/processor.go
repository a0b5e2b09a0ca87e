package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"taskhub/internal/mail"
	"taskhub/internal/queue"
	"taskhub/internal/repository"
	"taskhub/internal/storage"
)

type AvatarStore interface {
	PutAvatar(ctx context.Context, userID string, data []byte) (string, error)
}

type ProcessorDeps struct {
	Mail  mail.Sender
	Store repository.Store
	// Avatars is optional; avatar tasks are skipped without it.
	Avatars    AvatarStore
	HTTPClient *http.Client
}

// Processor executes entries from both the mail outbox and the background
// task stream.
type Processor struct {
	mail    mail.Sender
	store   repository.Store
	avatars AvatarStore
	client  *http.Client
	now     func() time.Time
	logger  zerolog.Logger
}

func NewProcessor(deps ProcessorDeps, logger zerolog.Logger) *Processor {
	client := deps.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Processor{
		mail:    deps.Mail,
		store:   deps.Store,
		avatars: deps.Avatars,
		client:  client,
		now:     time.Now,
		logger:  logger,
	}
}

func (p *Processor) Handle(ctx context.Context, msg redis.XMessage) error {
	taskType, payload, err := queue.Decode(msg)
	if err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	switch taskType {
	case mail.TaskType:
		return p.handleEmail(ctx, payload)
	case TypeCleanup:
		return p.handleCleanup(ctx, payload)
	case TypeAvatar:
		return p.handleAvatar(ctx, payload)
	default:
		p.logger.Warn().Str("type", taskType).Str("message_id", msg.ID).Msg("unknown task type")
		return nil
	}
}

func (p *Processor) handleEmail(ctx context.Context, payload json.RawMessage) error {
	var msg mail.Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("decode email: %w", err)
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	if err := p.mail.Send(ctx, msg); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	p.logger.Info().Str("subject", msg.Subject).Int("recipients", len(msg.To)).Msg("email sent")
	return nil
}

func (p *Processor) handleCleanup(ctx context.Context, payload json.RawMessage) error {
	var task CleanupPayload
	if err := json.Unmarshal(payload, &task); err != nil {
		return fmt.Errorf("decode cleanup: %w", err)
	}

	now := p.now()
	event := p.logger.Info()
	if task.Scope == "" || task.Scope == ScopeSessions {
		n, err := p.store.Sessions().DeleteExpired(ctx, now)
		if err != nil {
			return fmt.Errorf("delete expired sessions: %w", err)
		}
		event = event.Int64("sessions", n)
	}
	if task.Scope == "" || task.Scope == ScopeCodes {
		n, err := p.store.VerificationCodes().DeleteExpired(ctx, now)
		if err != nil {
			return fmt.Errorf("delete expired codes: %w", err)
		}
		event = event.Int64("codes", n)
	}
	event.Msg("cleanup finished")
	return nil
}

func (p *Processor) handleAvatar(ctx context.Context, payload json.RawMessage) error {
	var task AvatarPayload
	if err := json.Unmarshal(payload, &task); err != nil {
		return fmt.Errorf("decode avatar: %w", err)
	}
	if p.avatars == nil {
		p.logger.Warn().Str("user_id", task.UserID).Msg("avatar storage not configured, skipping")
		return nil
	}

	data, err := p.fetch(ctx, task.SourceURL)
	if err != nil {
		return err
	}
	url, err := p.avatars.PutAvatar(ctx, task.UserID, data)
	if err != nil {
		return fmt.Errorf("store avatar: %w", err)
	}
	if err := p.store.Users().UpdateProfilePicture(ctx, task.UserID, url); err != nil {
		return fmt.Errorf("update profile picture: %w", err)
	}

	p.logger.Info().Str("user_id", task.UserID).Msg("avatar mirrored")
	return nil
}

func (p *Processor) fetch(ctx context.Context, source string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, fmt.Errorf("build avatar request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch avatar: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch avatar: unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, storage.MaxAvatarBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read avatar: %w", err)
	}
	if len(data) > storage.MaxAvatarBytes {
		return nil, storage.ErrTooLarge
	}
	return data, nil
}
