// Package app wires the REST surface: guest sessions and activity CRUD.
// Realtime mutations flow through internal/realtime; this layer covers
// everything a client does before and around the socket.
package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"mosaic/api/internal/auth"
	"mosaic/api/internal/config"
	"mosaic/api/internal/realtime"
	"mosaic/api/internal/session"
	"mosaic/api/internal/store"
	"mosaic/api/internal/util"
)

type Session struct {
	Token     string
	UserID    string
	UserName  string
	ExpiresAt time.Time
}

type sessionStore interface {
	SaveSession(ctx context.Context, tokenHash string, participant session.Participant, expiresAt time.Time) error
	LookupSession(ctx context.Context, tokenHash string) (session.Participant, error)
	RevokeSession(ctx context.Context, tokenHash string) error
	Ping(ctx context.Context) error
}

type Service struct {
	cfg      config.Config
	store    store.ActivityStore
	sessions sessionStore
	engine   *realtime.Engine
}

func NewService(cfg config.Config, activityStore store.ActivityStore, sessions sessionStore, engine *realtime.Engine) *Service {
	return &Service{
		cfg:      cfg,
		store:    activityStore,
		sessions: sessions,
		engine:   engine,
	}
}

// Login creates a guest session for a display name. There are no accounts;
// a fresh participant id is minted per login.
func (s *Service) Login(ctx context.Context, name string) (Session, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Session{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	if len(name) > 64 {
		return Session{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name must be at most 64 characters", nil)
	}

	userID := util.NewID("usr")
	expiresAt := time.Now().Add(s.cfg.AccessTTL)
	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  userID,
		Name: name,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, fmt.Errorf("issue token: %w", err)
	}

	participant := session.Participant{ID: userID, DisplayName: name}
	if err := s.sessions.SaveSession(ctx, auth.HashToken(token), participant, expiresAt); err != nil {
		return Session{}, fmt.Errorf("save session: %w", err)
	}

	return Session{
		Token:     token,
		UserID:    userID,
		UserName:  name,
		ExpiresAt: expiresAt,
	}, nil
}

// SessionFromToken verifies the token signature and confirms the session is
// still live in the session store, so revocation takes effect immediately.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	participant, err := s.sessions.LookupSession(ctx, auth.HashToken(token))
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:     token,
		UserID:    participant.ID,
		UserName:  participant.DisplayName,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.sessions.RevokeSession(ctx, auth.HashToken(token))
}

func (s *Service) CreateActivity(ctx context.Context, name string, settings *store.Settings) (store.Activity, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return store.Activity{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}

	resolved := store.DefaultSettings()
	if settings != nil {
		resolved = *settings
	}
	now := time.Now().UTC()
	activity := store.Activity{
		ID:           util.NewID("act"),
		Name:         name,
		Phase:        store.PhaseGathering,
		Status:       store.StatusActive,
		Participants: []store.Participant{},
		Tags:         []store.Tag{},
		Mappings:     []store.MappingSubmission{},
		Rankings:     []store.RankingSubmission{},
		Settings:     resolved,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.InsertActivity(ctx, activity); err != nil {
		return store.Activity{}, fmt.Errorf("insert activity: %w", err)
	}

	s.engine.NotifyActivityCreated(ctx, activity.ID)
	return activity, nil
}

func (s *Service) GetActivity(ctx context.Context, id string) (store.Activity, error) {
	return s.store.FindActivity(ctx, id)
}

func (s *Service) ListActivities(ctx context.Context) ([]store.Activity, error) {
	return s.store.ListActivities(ctx)
}

// UpdateActivity applies a partial update to name and settings, then
// notifies every connection so open lobbies and rooms refresh.
func (s *Service) UpdateActivity(ctx context.Context, id string, name *string, settings *store.Settings) (store.Activity, error) {
	if name == nil && settings == nil {
		return store.Activity{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "nothing to update", nil)
	}
	if name != nil && strings.TrimSpace(*name) == "" {
		return store.Activity{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name must not be empty", nil)
	}

	if _, err := s.store.UpdateActivity(ctx, id, name, settings); err != nil {
		return store.Activity{}, err
	}
	activity, err := s.store.FindActivity(ctx, id)
	if err != nil {
		return store.Activity{}, err
	}

	s.engine.NotifyActivityUpdated(ctx, id)
	return activity, nil
}

// DeleteActivity routes through the engine so the deletion broadcast
// reaches every connection even when the REST caller initiated it.
func (s *Service) DeleteActivity(ctx context.Context, id string) error {
	if _, err := s.store.FindActivity(ctx, id); err != nil {
		return err
	}
	s.engine.DeleteActivity(ctx, id)
	return nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) SessionsPing(ctx context.Context) error {
	return s.sessions.Ping(ctx)
}

func (s *Service) EngineStatus(ctx context.Context) realtime.Status {
	return s.engine.Status(ctx)
}
