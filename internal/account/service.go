package account

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/hackgods/clinic-appointment-booking/internal/auth"
	"github.com/hackgods/clinic-appointment-booking/internal/config"
	"github.com/hackgods/clinic-appointment-booking/internal/mail"
	redisclient "github.com/hackgods/clinic-appointment-booking/internal/redis"
	"github.com/hackgods/clinic-appointment-booking/internal/validate"
)

// OneTimeTokens stores single-use tokens that resolve to a user id.
type OneTimeTokens interface {
	Issue(ctx context.Context, userID int64) (string, error)
	Consume(ctx context.Context, token string) (int64, error)
}

type Service struct {
	repo          Repository
	tokens        *auth.TokenManager
	resets        OneTimeTokens
	verifications OneTimeTokens
	mailer        mail.Mailer
	baseURL       string
	apiURL        string
	hashCost      int
	logger        *zap.Logger
}

func NewService(repo Repository, tokens *auth.TokenManager, resets, verifications OneTimeTokens, mailer mail.Mailer, cfg config.Config, logger *zap.Logger) *Service {
	return &Service{
		repo:          repo,
		tokens:        tokens,
		resets:        resets,
		verifications: verifications,
		mailer:        mailer,
		baseURL:       cfg.PublicBaseURL,
		apiURL:        cfg.PublicAPIURL,
		hashCost:      bcrypt.DefaultCost,
		logger:        logger.Named("account"),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) hash(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// Register creates a patient account with an empty profile and mails a
// verification link. A failed mail does not fail the registration.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	req.Email = normalizeEmail(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	req.Surname = strings.TrimSpace(req.Surname)
	if err := validate.Struct(req); err != nil {
		return nil, err
	}

	hash, err := s.hash(req.Password)
	if err != nil {
		return nil, err
	}

	user, err := s.repo.CreatePatient(ctx, req.Name, req.Surname, req.Email, hash)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user registered", zap.Int64("user_id", user.ID))

	if err := s.sendVerification(ctx, user); err != nil {
		s.logger.Error("send verification mail", zap.Int64("user_id", user.ID), zap.Error(err))
	}
	return user, nil
}

// Login checks the credentials and issues an access token.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	req.Email = normalizeEmail(req.Email)
	if err := validate.Struct(req); err != nil {
		return nil, err
	}

	user, err := s.repo.GetUserByEmail(ctx, req.Email)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, expiresAt, err := s.tokens.Issue(user.ID, user.Email, user.Name, user.Role)
	if err != nil {
		return nil, err
	}

	return &LoginResult{Token: token, ExpiresAt: expiresAt, User: *user}, nil
}

func (s *Service) GetProfile(ctx context.Context, userID int64) (*Profile, error) {
	if userID <= 0 {
		return nil, validate.Field("id", "gt")
	}
	return s.repo.GetProfile(ctx, userID)
}

// UpdateProfile applies the set fields; a new password is hashed before storage.
func (s *Service) UpdateProfile(ctx context.Context, userID int64, req UpdateProfileRequest) (*Profile, error) {
	if userID <= 0 {
		return nil, validate.Field("id", "gt")
	}
	if req.Email != nil {
		email := normalizeEmail(*req.Email)
		req.Email = &email
	}
	if err := validate.Struct(req); err != nil {
		return nil, err
	}

	changes := ProfileChanges{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		Email:     req.Email,
	}
	if req.NewPassword != nil {
		hash, err := s.hash(*req.NewPassword)
		if err != nil {
			return nil, err
		}
		changes.PasswordHash = &hash
	}

	profile, err := s.repo.UpdateProfile(ctx, userID, changes)
	if err != nil {
		return nil, err
	}

	s.logger.Info("profile updated",
		zap.Int64("user_id", userID),
		zap.Bool("email_changed", req.Email != nil),
		zap.Bool("password_changed", req.NewPassword != nil),
	)
	return profile, nil
}

// RequestPasswordReset mails a reset link if the address belongs to a user.
// The caller gets the same answer either way.
func (s *Service) RequestPasswordReset(ctx context.Context, req ForgotPasswordRequest) error {
	req.Email = normalizeEmail(req.Email)
	if err := validate.Struct(req); err != nil {
		return err
	}

	user, err := s.repo.GetUserByEmail(ctx, req.Email)
	if errors.Is(err, ErrUserNotFound) {
		s.logger.Debug("password reset for unknown email")
		return nil
	}
	if err != nil {
		return err
	}

	token, err := s.resets.Issue(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("issue reset token: %w", err)
	}

	link := fmt.Sprintf("%s/reset/%s", s.baseURL, token)
	err = s.mailer.Send(ctx, mail.Message{
		To:      user.Email,
		Subject: "Password reset",
		Text:    "To reset your password, follow this link: " + link,
	})
	if err != nil {
		s.logger.Error("send reset mail", zap.Int64("user_id", user.ID), zap.Error(err))
		return nil
	}

	s.logger.Info("password reset requested", zap.Int64("user_id", user.ID))
	return nil
}

// ResetPassword consumes the token and stores the new password.
func (s *Service) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	if err := validate.Struct(req); err != nil {
		return err
	}

	userID, err := s.resets.Consume(ctx, req.Token)
	if errors.Is(err, redisclient.ErrTokenNotFound) {
		return ErrInvalidResetToken
	}
	if err != nil {
		return err
	}

	hash, err := s.hash(req.Password)
	if err != nil {
		return err
	}

	if err := s.repo.UpdatePassword(ctx, userID, hash); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrInvalidResetToken
		}
		return err
	}

	s.logger.Info("password reset", zap.Int64("user_id", userID))
	return nil
}

func (s *Service) sendVerification(ctx context.Context, user *User) error {
	token, err := s.verifications.Issue(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("issue verification token: %w", err)
	}

	link := s.apiURL + "/auth/verify?token=" + url.QueryEscape(token)
	return s.mailer.Send(ctx, mail.Message{
		To:      user.Email,
		Subject: "Confirm your email",
		Text:    "To confirm your email address, follow this link: " + link,
		HTML:    fmt.Sprintf(`<p>To confirm your email address, follow <a href="%s">this link</a>.</p>`, link),
	})
}

// RequestVerification mails a fresh verification link. Unknown and already
// verified addresses get the same answer and no mail.
func (s *Service) RequestVerification(ctx context.Context, req SendVerificationRequest) error {
	req.Email = normalizeEmail(req.Email)
	if err := validate.Struct(req); err != nil {
		return err
	}

	user, err := s.repo.GetUserByEmail(ctx, req.Email)
	if errors.Is(err, ErrUserNotFound) {
		s.logger.Debug("verification for unknown email")
		return nil
	}
	if err != nil {
		return err
	}
	if user.EmailVerified() {
		s.logger.Debug("verification for verified email", zap.Int64("user_id", user.ID))
		return nil
	}

	if err := s.sendVerification(ctx, user); err != nil {
		s.logger.Error("send verification mail", zap.Int64("user_id", user.ID), zap.Error(err))
		return nil
	}

	s.logger.Info("email verification requested", zap.Int64("user_id", user.ID))
	return nil
}

// VerifyEmail consumes the token and marks the owner's address as confirmed.
func (s *Service) VerifyEmail(ctx context.Context, token string) (*User, error) {
	if strings.TrimSpace(token) == "" {
		return nil, validate.Field("token", "required")
	}

	userID, err := s.verifications.Consume(ctx, token)
	if errors.Is(err, redisclient.ErrTokenNotFound) {
		return nil, ErrInvalidVerificationToken
	}
	if err != nil {
		return nil, err
	}

	user, err := s.repo.MarkEmailVerified(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidVerificationToken
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("email verified", zap.Int64("user_id", user.ID))
	return user, nil
}
