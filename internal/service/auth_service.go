package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"taskhub/internal/apperr"
	"taskhub/internal/config"
	"taskhub/internal/ids"
	"taskhub/internal/mail"
	"taskhub/internal/models"
	"taskhub/internal/repository"
	"taskhub/internal/security"
	"taskhub/internal/tasks"
)

type AuthService struct {
	store    repository.Store
	hasher   PasswordHasher
	tokens   *security.TokenCodec
	mailer   mail.Dispatcher
	tasks    TaskEnqueuer
	events   EventRecorder
	sessions *sessionIssuer
	cfg      *config.Config
	log      zerolog.Logger
	now      func() time.Time
}

type AuthDeps struct {
	Store  repository.Store
	Hasher PasswordHasher
	Tokens *security.TokenCodec
	Mailer mail.Dispatcher
	// Tasks is optional; without it provider avatars are not mirrored.
	Tasks  TaskEnqueuer
	Events EventRecorder
}

func NewAuthService(deps AuthDeps, cfg *config.Config, log zerolog.Logger) *AuthService {
	events := deps.Events
	if events == nil {
		events = nopRecorder{}
	}
	s := &AuthService{
		store:  deps.Store,
		hasher: deps.Hasher,
		tokens: deps.Tokens,
		mailer: deps.Mailer,
		tasks:  deps.Tasks,
		events: events,
		cfg:    cfg,
		log:    log,
		now:    time.Now,
	}
	s.sessions = &sessionIssuer{tokens: deps.Tokens, maxSessions: cfg.Security.MaxSessions, now: s.clock}
	return s
}

// WithClock replaces the service clock. Token expiry follows the codec's own
// clock.
func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	s.now = now
	return s
}

func (s *AuthService) clock() time.Time { return s.now() }

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

func (s *AuthService) Register(ctx context.Context, input RegisterInput) (models.User, error) {
	email := normalizeEmail(input.Email)

	passwordHash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return models.User{}, apperr.Internal("hash password", err)
	}

	var (
		user         models.User
		verification pendingEmail
	)
	err = s.store.WithTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if _, err := repos.Users().FindByEmail(ctx, email); err == nil {
			return apperr.AlreadyExists(apperr.CodeAuthEmailAlreadyExists, "Email already exists")
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		created, err := provision(ctx, repos, models.User{
			ID:           ids.New(),
			Email:        email,
			PasswordHash: passwordHash,
			Name:         strings.TrimSpace(input.Name),
			IsActive:     true,
			Preferences:  models.DefaultPreferences(),
		}, models.ProviderEmail, email)
		if err != nil {
			return err
		}

		verification, err = s.issueVerification(ctx, repos, created)
		if err != nil {
			return err
		}
		user = created
		return nil
	})
	if err == nil {
		if _, err = s.dispatch(ctx, verification.msg); err != nil {
			s.discard(ctx, "user", user.ID, s.store.Users().Delete)
		}
	}
	if err != nil {
		s.events.AuthEvent("register", outcomeFailure)
		return models.User{}, err
	}

	s.events.AuthEvent("register", outcomeSuccess)
	s.log.Info().Str("user_id", user.ID).Msg("user registered")
	return user.Public(), nil
}

// pendingEmail is a message for a code written in a still-open transaction.
// It is dispatched only once that transaction commits.
type pendingEmail struct {
	codeID string
	msg    mail.Message
}

func (s *AuthService) issueVerification(ctx context.Context, repos repository.Repositories, user models.User) (pendingEmail, error) {
	now := s.now()
	code := models.VerificationCode{
		ID:        ids.New(),
		UserID:    user.ID,
		Code:      security.NewVerificationCode(),
		Purpose:   models.PurposeEmailVerification,
		ExpiresAt: now.Add(s.cfg.Verification.EmailCodeTTL),
		CreatedAt: now,
	}
	if err := repos.VerificationCodes().Create(ctx, code); err != nil {
		return pendingEmail{}, fmt.Errorf("create verification code: %w", err)
	}

	link := mail.VerificationURL(s.cfg.App.ClientOrigin, code.Code)
	msg, err := mail.VerifyEmail(user.Email, link, code.ExpiresAt)
	if err != nil {
		return pendingEmail{}, apperr.Internal("render verification email", err)
	}
	return pendingEmail{codeID: code.ID, msg: msg}, nil
}

// discard undoes a committed write whose email could not be queued.
func (s *AuthService) discard(ctx context.Context, kind, id string, del func(ctx context.Context, id string) error) {
	if err := del(context.WithoutCancel(ctx), id); err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.log.Error().Err(err).Str(kind+"_id", id).Msg("discard after failed email dispatch")
	}
}

func (s *AuthService) dispatch(ctx context.Context, msg mail.Message) (string, error) {
	id, err := s.mailer.Dispatch(context.WithoutCancel(ctx), msg)
	if err != nil {
		return "", apperr.Internal("Failed to send email", err)
	}
	if id == "" {
		return "", apperr.Internal("Failed to send email", errors.New("dispatcher returned no delivery id"))
	}
	return id, nil
}

// VerifyCredentials checks an email/password pair. When the user has MFA
// enabled no session is created and MFARequired is set instead.
func (s *AuthService) VerifyCredentials(ctx context.Context, email, password, userAgent string) (LoginResult, error) {
	email = normalizeEmail(email)

	var result LoginResult
	err := s.store.WithTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		invalidEmail := apperr.NotFound(apperr.CodeAuthUserNotFound, "Invalid email")

		account, err := repos.Accounts().FindByProvider(ctx, models.ProviderEmail, email)
		if err != nil {
			return notFoundAs(err, invalidEmail)
		}
		user, err := repos.Users().GetByID(ctx, account.UserID)
		if err != nil {
			return notFoundAs(err, invalidEmail)
		}
		if !user.HasPassword() {
			return invalidEmail
		}

		ok, err := s.hasher.Compare(password, user.PasswordHash)
		if err != nil {
			return apperr.Internal("compare password", err)
		}
		if !ok {
			return apperr.Unauthorized(apperr.CodeAuthInvalidCredentials, "Invalid password")
		}
		if !user.IsActive {
			return apperr.Unauthorized(apperr.CodeAccessUnauthorized, "Account is deactivated")
		}

		if user.Preferences.Enable2FA {
			result = LoginResult{User: user.Public(), MFARequired: true}
			return nil
		}

		tokens, err := s.sessions.start(ctx, repos, user, userAgent)
		if err != nil {
			return err
		}
		result = LoginResult{User: user.Public(), Tokens: tokens}
		return nil
	})
	s.recordLogin("login", result, err)
	return result, err
}

func (s *AuthService) recordLogin(event string, result LoginResult, err error) {
	switch {
	case err != nil:
		s.events.AuthEvent(event, outcomeFailure)
	case result.MFARequired:
		s.events.AuthEvent(event, outcomeMFARequired)
	default:
		s.events.AuthEvent(event, outcomeSuccess)
	}
}

type SocialLoginInput struct {
	Provider   models.Provider
	ProviderID string
	Email      string
	Name       string
	Picture    string
	UserAgent  string
}

// LoginOrCreateAccount signs in a user authenticated by an external provider,
// provisioning the user on first sight.
func (s *AuthService) LoginOrCreateAccount(ctx context.Context, input SocialLoginInput) (LoginResult, error) {
	email := normalizeEmail(input.Email)
	if email == "" || input.ProviderID == "" {
		return LoginResult{}, apperr.BadRequest(apperr.CodeValidationError, "Provider did not return an identity")
	}

	var (
		result  LoginResult
		created bool
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		created = false
		user, err := repos.Users().FindByEmail(ctx, email)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			var picture *string
			if input.Picture != "" {
				picture = &input.Picture
			}
			name := strings.TrimSpace(input.Name)
			if name == "" {
				name = email
			}
			user, err = provision(ctx, repos, models.User{
				ID:              ids.New(),
				Email:           email,
				Name:            name,
				ProfilePicture:  picture,
				IsEmailVerified: true,
				IsActive:        true,
				Preferences:     models.DefaultPreferences(),
			}, input.Provider, input.ProviderID)
			if err != nil {
				return err
			}
			created = true
		case err != nil:
			return err
		default:
			if err := linkAccount(ctx, repos, user.ID, input.Provider, input.ProviderID); err != nil {
				return err
			}
		}

		if !user.IsActive {
			return apperr.Unauthorized(apperr.CodeAccessUnauthorized, "Account is deactivated")
		}
		if user.Preferences.Enable2FA {
			result = LoginResult{User: user.Public(), MFARequired: true}
			return nil
		}

		tokens, err := s.sessions.start(ctx, repos, user, input.UserAgent)
		if err != nil {
			return err
		}
		result = LoginResult{User: user.Public(), Tokens: tokens}
		return nil
	})
	s.recordLogin("social_login", result, err)
	if err != nil {
		return LoginResult{}, err
	}

	if created && input.Picture != "" {
		s.mirrorAvatar(ctx, result.User.ID, input.Picture)
	}
	return result, nil
}

func linkAccount(ctx context.Context, repos repository.Repositories, userID string, provider models.Provider, providerID string) error {
	account, err := repos.Accounts().FindByProvider(ctx, provider, providerID)
	if err == nil {
		if account.UserID != userID {
			return apperr.AlreadyExists(apperr.CodeAuthEmailAlreadyExists, "Account is linked to another user")
		}
		return nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	return repos.Accounts().Create(ctx, models.Account{
		ID:         ids.New(),
		UserID:     userID,
		Provider:   provider,
		ProviderID: providerID,
	})
}

func (s *AuthService) mirrorAvatar(ctx context.Context, userID, source string) {
	if s.tasks == nil {
		return
	}
	_, err := s.tasks.Enqueue(context.WithoutCancel(ctx), tasks.TypeAvatar, tasks.AvatarPayload{UserID: userID, SourceURL: source})
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("enqueue avatar mirror failed")
	}
}

// RefreshToken issues a new access token for the session named by a refresh
// token. Sessions within the refresh threshold of expiry are extended to a
// full refresh window and get a new refresh token.
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (RefreshResult, error) {
	claims, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		s.events.AuthEvent("refresh", outcomeFailure)
		return RefreshResult{}, err
	}

	var result RefreshResult
	err = s.store.WithTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		expired := apperr.Unauthorized(apperr.CodeInvalidToken, "Session expired")

		session, err := repos.Sessions().GetByID(ctx, claims.SessionID)
		if err != nil {
			return notFoundAs(err, expired)
		}
		now := s.now()
		if session.Expired(now) {
			return expired
		}

		if session.ExpiresAt.Sub(now) <= s.cfg.Security.RefreshThreshold {
			if err := repos.Sessions().UpdateExpiry(ctx, session.ID, now.Add(s.tokens.RefreshTTL())); err != nil {
				return fmt.Errorf("extend session: %w", err)
			}
			refresh, refreshExp, err := s.tokens.SignRefresh(session.ID)
			if err != nil {
				return err
			}
			result.RefreshToken = refresh
			result.RefreshExpiresAt = refreshExp
		}

		access, accessExp, err := s.tokens.SignAccess(session.UserID, session.ID)
		if err != nil {
			return err
		}
		result.AccessToken = access
		result.AccessExpiresAt = accessExp
		return nil
	})
	switch {
	case err != nil:
		s.events.AuthEvent("refresh", outcomeFailure)
		return RefreshResult{}, err
	case result.Rotated():
		s.events.AuthEvent("refresh", outcomeRotated)
	default:
		s.events.AuthEvent("refresh", outcomeSuccess)
	}
	return result, nil
}

// Authenticate resolves an access token to its user and live session.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (Identity, error) {
	unauthorized := apperr.Unauthorized(apperr.CodeAuthTokenNotFound, "Unauthorized. Access token not found or expired")
	if accessToken == "" {
		return Identity{}, unauthorized
	}

	claims, err := s.tokens.ParseAccess(accessToken)
	if err != nil {
		unauthorized.Err = err
		return Identity{}, unauthorized
	}

	session, err := s.store.Sessions().GetByID(ctx, claims.SessionID)
	if err != nil {
		return Identity{}, notFoundAs(err, unauthorized)
	}
	if session.Expired(s.now()) || session.UserID != claims.UserID {
		return Identity{}, unauthorized
	}

	user, err := s.store.Users().GetByID(ctx, claims.UserID)
	if err != nil {
		return Identity{}, notFoundAs(err, unauthorized)
	}
	if !user.IsActive {
		return Identity{}, unauthorized
	}
	return Identity{User: user.Public(), SessionID: session.ID}, nil
}

func (s *AuthService) VerifyEmail(ctx context.Context, code string) (models.User, error) {
	var user models.User
	err := s.store.WithTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		vc, err := repos.VerificationCodes().FindValid(ctx, code, models.PurposeEmailVerification, s.now())
		if err != nil {
			return notFoundAs(err, apperr.NotFound(apperr.CodeVerificationError, "Invalid or expired verification code"))
		}
		if err := repos.Users().MarkEmailVerified(ctx, vc.UserID); err != nil {
			return notFoundAs(err, apperr.NotFound(apperr.CodeAuthUserNotFound, "User not found"))
		}
		if err := repos.VerificationCodes().Delete(ctx, vc.ID); err != nil {
			return fmt.Errorf("delete verification code: %w", err)
		}
		user, err = repos.Users().GetByID(ctx, vc.UserID)
		return err
	})
	if err != nil {
		s.events.AuthEvent("verify_email", outcomeFailure)
		return models.User{}, err
	}
	s.events.AuthEvent("verify_email", outcomeSuccess)
	return user.Public(), nil
}

// ResendVerification issues a fresh email verification code, subject to the
// same window limit as password resets.
func (s *AuthService) ResendVerification(ctx context.Context, userID string) error {
	var verification pendingEmail
	err := s.store.WithTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		user, err := repos.Users().GetByID(ctx, userID)
		if err != nil {
			return notFoundAs(err, apperr.NotFound(apperr.CodeAuthUserNotFound, "User not found"))
		}
		if user.IsEmailVerified {
			return apperr.BadRequest(apperr.CodeVerificationError, "Email is already verified")
		}
		if err := s.checkWindow(ctx, repos, user.ID, models.PurposeEmailVerification); err != nil {
			return err
		}
		verification, err = s.issueVerification(ctx, repos, user)
		return err
	})
	if err != nil {
		return err
	}

	if _, err := s.dispatch(ctx, verification.msg); err != nil {
		s.discard(ctx, "code", verification.codeID, s.store.VerificationCodes().Delete)
		return err
	}
	return nil
}

func (s *AuthService) checkWindow(ctx context.Context, repos repository.Repositories, userID string, purpose models.VerificationPurpose) error {
	since := s.now().Add(-s.cfg.Verification.ResetWindow)
	count, err := repos.VerificationCodes().CountSince(ctx, userID, purpose, since)
	if err != nil {
		return fmt.Errorf("count codes: %w", err)
	}
	if count >= s.cfg.Verification.ResetMaxInWindow {
		return apperr.TooManyRequests("Too many requests, try again later")
	}
	return nil
}

func (s *AuthService) ForgotPassword(ctx context.Context, email string) (ForgotPasswordResult, error) {
	email = normalizeEmail(email)

	var reset pendingEmail
	var resetURL string
	err := s.store.WithTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		user, err := repos.Users().FindByEmail(ctx, email)
		if err != nil {
			return notFoundAs(err, apperr.NotFound(apperr.CodeAuthUserNotFound, "User not found"))
		}
		if err := s.checkWindow(ctx, repos, user.ID, models.PurposePasswordReset); err != nil {
			return err
		}

		now := s.now()
		code := models.VerificationCode{
			ID:        ids.New(),
			UserID:    user.ID,
			Code:      security.NewVerificationCode(),
			Purpose:   models.PurposePasswordReset,
			ExpiresAt: now.Add(s.cfg.Verification.ResetCodeTTL),
			CreatedAt: now,
		}
		if err := repos.VerificationCodes().Create(ctx, code); err != nil {
			return fmt.Errorf("create reset code: %w", err)
		}

		resetURL = mail.ResetPasswordURL(s.cfg.App.ClientOrigin, code.Code, code.ExpiresAt)
		msg, err := mail.ResetPassword(user.Email, resetURL, code.ExpiresAt)
		if err != nil {
			return apperr.Internal("render reset email", err)
		}
		reset = pendingEmail{codeID: code.ID, msg: msg}
		return nil
	})

	var emailID string
	if err == nil {
		if emailID, err = s.dispatch(ctx, reset.msg); err != nil {
			s.discard(ctx, "code", reset.codeID, s.store.VerificationCodes().Delete)
		}
	}
	if err != nil {
		s.events.AuthEvent("forgot_password", outcomeFailure)
		return ForgotPasswordResult{}, err
	}
	s.events.AuthEvent("forgot_password", outcomeSuccess)
	return ForgotPasswordResult{ResetURL: resetURL, EmailID: emailID}, nil
}

// ResetPassword replaces the password behind a reset code and signs the user
// out everywhere.
func (s *AuthService) ResetPassword(ctx context.Context, password, code string) (models.User, error) {
	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return models.User{}, apperr.Internal("hash password", err)
	}

	var user models.User
	err = s.store.WithTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		vc, err := repos.VerificationCodes().FindValid(ctx, code, models.PurposePasswordReset, s.now())
		if err != nil {
			return notFoundAs(err, apperr.NotFound(apperr.CodeVerificationError, "Invalid or expired reset code"))
		}
		if err := repos.Users().UpdatePassword(ctx, vc.UserID, passwordHash); err != nil {
			return notFoundAs(err, apperr.NotFound(apperr.CodeAuthUserNotFound, "User not found"))
		}
		if err := repos.VerificationCodes().Delete(ctx, vc.ID); err != nil {
			return fmt.Errorf("delete reset code: %w", err)
		}
		if _, err := repos.Sessions().DeleteByUser(ctx, vc.UserID); err != nil {
			return fmt.Errorf("delete sessions: %w", err)
		}
		user, err = repos.Users().GetByID(ctx, vc.UserID)
		return err
	})
	if err != nil {
		s.events.AuthEvent("reset_password", outcomeFailure)
		return models.User{}, err
	}
	s.events.AuthEvent("reset_password", outcomeSuccess)
	s.log.Info().Str("user_id", user.ID).Msg("password reset, all sessions revoked")
	return user.Public(), nil
}

// Logout deletes the session. A session that is already gone is not an error.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if err := s.store.Sessions().DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	s.events.AuthEvent("logout", outcomeSuccess)
	return nil
}

func (s *AuthService) ListSessions(ctx context.Context, userID, currentSessionID string) ([]SessionView, error) {
	sessions, err := s.store.Sessions().ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	views := make([]SessionView, 0, len(sessions))
	for _, session := range sessions {
		if session.Expired(now) {
			continue
		}
		views = append(views, SessionView{Session: session, Current: session.ID == currentSessionID})
	}
	return views, nil
}

// RevokeSession deletes another of the caller's sessions. The current session
// is ended through Logout instead.
func (s *AuthService) RevokeSession(ctx context.Context, userID, currentSessionID, sessionID string) error {
	if sessionID == currentSessionID {
		return apperr.BadRequest(apperr.CodeValidationError, "Use logout to end the current session")
	}
	return s.store.WithTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		notFound := apperr.NotFound(apperr.CodeResourceNotFound, "Session not found")
		session, err := repos.Sessions().GetByID(ctx, sessionID)
		if err != nil {
			return notFoundAs(err, notFound)
		}
		if session.UserID != userID {
			return notFound
		}
		return repos.Sessions().DeleteByID(ctx, sessionID)
	})
}

// CurrentUser loads the caller's profile.
func (s *AuthService) CurrentUser(ctx context.Context, userID string) (models.User, error) {
	user, err := s.store.Users().GetByID(ctx, userID)
	if err != nil {
		return models.User{}, notFoundAs(err, apperr.NotFound(apperr.CodeAuthUserNotFound, "User not found"))
	}
	return user.Public(), nil
}
