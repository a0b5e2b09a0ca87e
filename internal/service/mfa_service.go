package service

import (
	"context"

	"github.com/rs/zerolog"

	"taskhub/internal/apperr"
	"taskhub/internal/models"
	"taskhub/internal/repository"
	"taskhub/internal/security"
)

type MFASetup struct {
	Enabled    bool
	Secret     string
	OTPAuthURL string
	QRImageURL string
	Message    string
}

type MFAStatus struct {
	Enabled bool
	Message string
}

// MFAService drives TOTP enrollment: disabled, then pending once a secret is
// stored, then enabled after a code is confirmed. Revoking only clears the
// enabled flag; the stored secret is reused if the user enrolls again.
type MFAService struct {
	store    repository.Store
	totp     *security.TOTP
	sessions *sessionIssuer
	events   EventRecorder
	log      zerolog.Logger
}

func NewMFAService(store repository.Store, totp *security.TOTP, auth *AuthService, log zerolog.Logger) *MFAService {
	return &MFAService{
		store:    store,
		totp:     totp,
		sessions: auth.sessions,
		events:   auth.events,
		log:      log,
	}
}

func (s *MFAService) GenerateSetup(ctx context.Context, userID string) (MFASetup, error) {
	var (
		user   models.User
		status *MFASetup
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		status = nil
		var err error
		user, err = repos.Users().GetByID(ctx, userID)
		if err != nil {
			return notFoundAs(err, apperr.NotFound(apperr.CodeAuthUserNotFound, "User not found"))
		}
		if user.Preferences.Enable2FA {
			status = &MFASetup{Enabled: true, Message: "MFA is already enabled"}
			return nil
		}
		if user.Preferences.TwoFactorSecret != "" {
			return nil
		}

		secret, err := s.totp.GenerateSecret(user.Email)
		if err != nil {
			return apperr.Internal("generate mfa secret", err)
		}
		if err := repos.Users().UpdateMFA(ctx, user.ID, false, secret); err != nil {
			return err
		}
		user.Preferences.TwoFactorSecret = secret
		return nil
	})
	if err != nil {
		return MFASetup{}, err
	}
	if status != nil {
		return *status, nil
	}

	secret := user.Preferences.TwoFactorSecret
	uri, qr, err := s.totp.Provision(secret, user.Email)
	if err != nil {
		return MFASetup{}, apperr.Internal("render mfa qr code", err)
	}
	return MFASetup{
		Secret:     secret,
		OTPAuthURL: uri,
		QRImageURL: qr,
		Message:    "Scan the QR code or use the setup key",
	}, nil
}

func (s *MFAService) VerifySetup(ctx context.Context, userID, code, secretKey string) (MFAStatus, error) {
	var status MFAStatus
	err := s.store.WithTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		user, err := repos.Users().GetByID(ctx, userID)
		if err != nil {
			return notFoundAs(err, apperr.NotFound(apperr.CodeAuthUserNotFound, "User not found"))
		}
		if user.Preferences.Enable2FA {
			status = MFAStatus{Enabled: true, Message: "MFA is already enabled"}
			return nil
		}

		secret := user.Preferences.TwoFactorSecret
		if secret == "" || secretKey != secret {
			return apperr.BadRequest(apperr.CodeMFAInvalidCode, "Invalid MFA setup key")
		}
		if !s.totp.Validate(code, secretKey) {
			return apperr.BadRequest(apperr.CodeMFAInvalidCode, "Invalid MFA code. Please try again")
		}

		if err := repos.Users().UpdateMFA(ctx, user.ID, true, secret); err != nil {
			return err
		}
		status = MFAStatus{Enabled: true, Message: "MFA setup completed successfully"}
		return nil
	})
	if err != nil {
		s.events.AuthEvent("mfa_setup", outcomeFailure)
		return MFAStatus{}, err
	}
	s.events.AuthEvent("mfa_setup", outcomeSuccess)
	return status, nil
}

func (s *MFAService) Revoke(ctx context.Context, userID string) (MFAStatus, error) {
	var status MFAStatus
	err := s.store.WithTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		user, err := repos.Users().GetByID(ctx, userID)
		if err != nil {
			return notFoundAs(err, apperr.NotFound(apperr.CodeAuthUserNotFound, "User not found"))
		}
		if !user.Preferences.Enable2FA {
			status = MFAStatus{Enabled: false, Message: "MFA is not enabled"}
			return nil
		}
		if err := repos.Users().UpdateMFA(ctx, user.ID, false, user.Preferences.TwoFactorSecret); err != nil {
			return err
		}
		status = MFAStatus{Enabled: false, Message: "MFA revoked successfully"}
		return nil
	})
	if err != nil {
		return MFAStatus{}, err
	}
	return status, nil
}

// VerifyForLogin completes a login that stopped at MFARequired.
func (s *MFAService) VerifyForLogin(ctx context.Context, code, email, userAgent string) (LoginResult, error) {
	email = normalizeEmail(email)

	var result LoginResult
	err := s.store.WithTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		user, err := repos.Users().FindByEmail(ctx, email)
		if err != nil {
			return notFoundAs(err, apperr.NotFound(apperr.CodeAuthUserNotFound, "User not found"))
		}

		secret := user.Preferences.TwoFactorSecret
		if !user.Preferences.Enable2FA && secret == "" {
			return apperr.Unauthorized(apperr.CodeAccessUnauthorized, "MFA is not enabled for this account")
		}
		if !s.totp.Validate(code, secret) {
			return apperr.BadRequest(apperr.CodeMFAInvalidCode, "Invalid MFA code. Please try again")
		}
		if !user.IsActive {
			return apperr.Unauthorized(apperr.CodeAccessUnauthorized, "Account is deactivated")
		}

		tokens, err := s.sessions.start(ctx, repos, user, userAgent)
		if err != nil {
			return err
		}
		result = LoginResult{User: user.Public(), Tokens: tokens}
		return nil
	})
	if err != nil {
		s.events.AuthEvent("mfa_login", outcomeFailure)
		return LoginResult{}, err
	}
	s.events.AuthEvent("mfa_login", outcomeSuccess)
	s.log.Info().Str("user_id", result.User.ID).Msg("mfa login completed")
	return result, nil
}
