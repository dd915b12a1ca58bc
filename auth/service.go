// Package auth guards the write path with a single shared account and
// revocable sessions.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"articlehub/repository"
	"articlehub/types"

	"golang.org/x/crypto/bcrypt"
)

// LoginResult is a successful login.
type LoginResult struct {
	Token   string
	Session Session
	// Created is true when this login bootstrapped the account.
	Created bool
}

type Service struct {
	users    repository.UserRepository
	sessions *SessionManager
	cost     int
	log      *slog.Logger
}

// NewService returns the credential gate. cost is the bcrypt cost; zero means bcrypt.DefaultCost.
func NewService(users repository.UserRepository, sessions *SessionManager, cost int, log *slog.Logger) *Service {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Service{users: users, sessions: sessions, cost: cost, log: log}
}

// Verify resolves a session token.
func (s *Service) Verify(ctx context.Context, token string) (Session, error) {
	return s.sessions.Verify(ctx, token)
}

// Logout revokes the session behind token.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.sessions.Revoke(ctx, token)
}

// Login verifies the shared account. While no account exists, the first login
// creates it with the supplied credentials.
func (s *Service) Login(ctx context.Context, username, password string) (LoginResult, error) {
	if username == "" {
		return LoginResult{}, &types.ValidationError{Field: "username", Reason: "is required"}
	}
	if password == "" {
		return LoginResult{}, &types.ValidationError{Field: "password", Reason: "is required"}
	}

	count, err := s.users.CountUsers(ctx)
	if err != nil {
		return LoginResult{}, err
	}
	if count == 0 {
		res, created, err := s.bootstrap(ctx, username, password)
		if err != nil || created {
			return res, err
		}
		// Lost the race to another first login; fall through and verify.
	}

	u, err := s.users.UserByName(ctx, username)
	if errors.Is(err, types.ErrNotFound) {
		return LoginResult{}, types.ErrInvalidCredentials
	}
	if err != nil {
		return LoginResult{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return LoginResult{}, types.ErrInvalidCredentials
	}

	token, session, err := s.sessions.Issue(ctx, u)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{Token: token, Session: session}, nil
}

func (s *Service) bootstrap(ctx context.Context, username, password string) (LoginResult, bool, error) {
	hash, err := s.hash(password)
	if err != nil {
		return LoginResult{}, false, err
	}
	id, created, err := s.users.BootstrapUser(ctx, username, hash)
	if err != nil || !created {
		return LoginResult{}, false, err
	}

	s.log.InfoContext(ctx, "account created by first login", "username", username)
	token, session, err := s.sessions.Issue(ctx, &types.User{ID: id, Username: username, PasswordHash: hash})
	if err != nil {
		return LoginResult{}, false, err
	}
	return LoginResult{Token: token, Session: session, Created: true}, true, nil
}

// ChangePassword replaces the password of the session's account after
// checking the old one.
func (s *Service) ChangePassword(ctx context.Context, userID int64, oldPassword, newPassword string) error {
	if newPassword == "" {
		return &types.ValidationError{Field: "new_password", Reason: "is required"}
	}

	u, err := s.users.UserByID(ctx, userID)
	if errors.Is(err, types.ErrNotFound) {
		return types.ErrUnauthorized
	}
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(oldPassword)); err != nil {
		return fmt.Errorf("old password: %w", types.ErrInvalidCredentials)
	}

	hash, err := s.hash(newPassword)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePasswordHash(ctx, userID, hash); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "password changed", "user_id", userID)
	return nil
}

func (s *Service) hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", &types.ValidationError{Field: "password", Reason: "must be at most 72 bytes"}
	}
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}
