package mailer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/repositories"
)

// Delivery status values reported by SendEmail.
const (
	StatusSent    = "sent"
	StatusSkipped = "skipped_preference"
)

// ErrTemplateNotFound is returned when the template id is unknown.
var ErrTemplateNotFound = errors.New("email template not found")

// Options describes one email to compose and send.
type Options struct {
	To         string
	TemplateID string
	Variables  map[string]string
	Priority   string
	ScheduleAt *time.Time
}

// Result reports the outcome of SendEmail.
type Result struct {
	Success        bool   `json:"success"`
	MessageID      string `json:"message_id,omitempty"`
	DeliveryStatus string `json:"delivery_status,omitempty"`
}

// Service composes and dispatches notification emails, gated by per-user
// preferences.
type Service struct {
	registry    *Registry
	provider    Provider
	profiles    repositories.ProfileRepository
	preferences repositories.PreferenceRepository
	jwtSecret   []byte
	linkBase    string
}

// NewService constructs the composer.
func NewService(registry *Registry, provider Provider, profiles repositories.ProfileRepository, preferences repositories.PreferenceRepository, jwtSecret []byte, linkBase string) *Service {
	return &Service{
		registry:    registry,
		provider:    provider,
		profiles:    profiles,
		preferences: preferences,
		jwtSecret:   jwtSecret,
		linkBase:    linkBase,
	}
}

// SendEmail runs the full pipeline: recipient resolution, preference gating,
// template rendering, unsubscribe link injection, provider dispatch, async
// send logging. A preference-gated skip is a successful, not-sent result.
func (s *Service) SendEmail(ctx context.Context, opts Options) (Result, error) {
	if opts.To == "" {
		return Result{}, errors.New("recipient email is required")
	}

	// Resolution is best-effort: a recipient without a profile row is sent
	// to without gating.
	userID, err := s.profiles.FindUserIDByEmail(ctx, opts.To)
	if err != nil && !errors.Is(err, repositories.ErrProfileNotFound) {
		log.Printf("email recipient lookup failed to=%s: %v", opts.To, err)
	}

	if userID != "" {
		prefs, err := s.preferences.GetOrCreate(ctx, userID)
		if err != nil {
			return Result{}, fmt.Errorf("load preferences: %w", err)
		}
		if !allowedByPreferences(prefs, opts.TemplateID) {
			observability.IncEmail(opts.TemplateID, StatusSkipped)
			return Result{Success: true, DeliveryStatus: StatusSkipped}, nil
		}
	}

	template, ok := s.registry.Get(opts.TemplateID)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrTemplateNotFound, opts.TemplateID)
	}

	vars := make(map[string]string, len(opts.Variables)+1)
	for k, v := range opts.Variables {
		vars[k] = v
	}
	// An unsubscribe click is applied to the recipient's preference row, so
	// the link only goes out when the recipient resolved to a user id.
	if userID != "" {
		if link, err := s.unsubscribeLink(userID); err == nil {
			vars["unsubscribeLink"] = link
		} else {
			log.Printf("unsubscribe link generation failed to=%s: %v", opts.To, err)
		}
	}

	subject, html, text := RenderTemplate(template, vars)
	messageID, err := s.provider.Send(ctx, OutboundEmail{To: opts.To, Subject: subject, HTML: html, Text: text})
	if err != nil {
		observability.IncEmail(opts.TemplateID, "error")
		return Result{}, fmt.Errorf("dispatch via %s: %w", s.provider.Name(), err)
	}
	observability.IncEmail(opts.TemplateID, StatusSent)

	if userID != "" {
		// Logging is fire-and-forget; a log failure never fails the send.
		go func(userID, templateID, messageID string) {
			logCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.preferences.LogEmail(logCtx, userID, templateID, messageID); err != nil {
				log.Printf("email log failed user=%s template=%s: %v", userID, templateID, err)
			}
		}(userID, opts.TemplateID, messageID)
	}

	return Result{Success: true, MessageID: messageID, DeliveryStatus: StatusSent}, nil
}

// NotifyNewMessage composes new_message emails for every recipient with a
// known address. Failures are logged, never surfaced to the message send
// path.
func (s *Service) NotifyNewMessage(ctx context.Context, msg models.MessageWithSender, recipientIDs []string) {
	if len(recipientIDs) == 0 {
		return
	}
	profiles, err := s.profiles.GetProfiles(ctx, recipientIDs)
	if err != nil {
		log.Printf("new-message email recipients lookup failed: %v", err)
		return
	}

	preview := msg.Content
	if runes := []rune(preview); len(runes) > 140 {
		preview = string(runes[:140]) + "…"
	}

	for _, id := range recipientIDs {
		profile, ok := profiles[id]
		if !ok || profile.Email == nil || *profile.Email == "" {
			continue
		}
		_, err := s.SendEmail(ctx, Options{
			To:         *profile.Email,
			TemplateID: "new_message",
			Variables: map[string]string{
				"recipientName":    profile.DisplayName,
				"senderName":       msg.SenderName,
				"messagePreview":   preview,
				"conversationLink": fmt.Sprintf("%s/conversations/%s", s.linkBase, msg.ConversationID),
			},
		})
		if err != nil {
			log.Printf("new-message email failed recipient=%s: %v", id, err)
		}
	}
}

// allowedByPreferences applies the per-type toggle for the template. The
// global unsubscribe flag supersedes every toggle.
func allowedByPreferences(prefs models.EmailPreferences, templateID string) bool {
	if prefs.Unsubscribed {
		return false
	}
	switch templateID {
	case "session_reminder":
		return prefs.SessionReminders
	case "connection_request":
		return prefs.ConnectionRequests
	case "new_message":
		return prefs.NewMessages
	case "weekly_digest":
		return prefs.WeeklyDigest
	case "mentorship_update":
		return prefs.MentorshipUpdates
	default:
		return prefs.SystemNotifications
	}
}

type unsubscribeClaims struct {
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

func (s *Service) unsubscribeLink(userID string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, unsubscribeClaims{
		Purpose: "unsubscribe",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(30 * 24 * time.Hour)),
		},
	})
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/unsubscribe?token=%s", s.linkBase, signed), nil
}

// ParseUnsubscribeToken verifies an unsubscribe token and returns the user
// id it was issued for.
func ParseUnsubscribeToken(secret []byte, tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &unsubscribeClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil {
		return "", err
	}
	claims, ok := token.Claims.(*unsubscribeClaims)
	if !ok || !token.Valid || claims.Purpose != "unsubscribe" || claims.Subject == "" {
		return "", errors.New("invalid unsubscribe token")
	}
	return claims.Subject, nil
}
