package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"deepsafe/internal/auth"
	"deepsafe/internal/config"
	"deepsafe/internal/model"
	"deepsafe/internal/pkg/db"
	"deepsafe/internal/repository"
)

// linkCodeTTL is how long a Telegram link code stays valid.
const linkCodeTTL = 10 * time.Minute

// Session is a signed-in client's credential pair.
type Session struct {
	AccessToken  string         `json:"access_token"`
	RefreshToken string         `json:"refresh_token"`
	ExpiresAt    time.Time      `json:"expires_at"`
	Profile      *model.Profile `json:"profile"`
}

// SignUpInput holds the fields of a password sign-up.
type SignUpInput struct {
	Email    string `json:"email" validate:"required,email"`
	Username string `json:"username" validate:"required,min=3,max=32"`
	Password string `json:"password" validate:"required"`
}

// AccountService handles sign-up, sign-in, sessions and profile settings.
type AccountService struct {
	conn        db.Beginner
	profileRepo *repository.ProfileRepository
	sessionRepo *repository.SessionRepository
	avatarRepo  *repository.AvatarRepository
	invRepo     *repository.InventoryRepository
	txRepo      *repository.TransactionRepository
	tokens      *auth.Tokens
	providers   map[string]*auth.Provider
	refreshTTL  time.Duration
	cfg         config.ProgressionConfig
	now         func() time.Time
}

// NewAccountService creates a new AccountService instance.
func NewAccountService(
	conn db.Beginner,
	profileRepo *repository.ProfileRepository,
	sessionRepo *repository.SessionRepository,
	avatarRepo *repository.AvatarRepository,
	invRepo *repository.InventoryRepository,
	txRepo *repository.TransactionRepository,
	tokens *auth.Tokens,
	providers map[string]*auth.Provider,
	refreshTTL time.Duration,
	cfg config.ProgressionConfig,
) *AccountService {
	return &AccountService{
		conn:        conn,
		profileRepo: profileRepo,
		sessionRepo: sessionRepo,
		avatarRepo:  avatarRepo,
		invRepo:     invRepo,
		txRepo:      txRepo,
		tokens:      tokens,
		providers:   providers,
		refreshTTL:  refreshTTL,
		cfg:         cfg,
		now:         time.Now,
	}
}

// SignUp creates a password account and signs it in.
func (s *AccountService) SignUp(ctx context.Context, in SignUpInput) (*Session, error) {
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	p, err := s.create(ctx, repository.NewProfile{
		Email:        &email,
		PasswordHash: &hash,
		Username:     strings.TrimSpace(in.Username),
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("user_id", p.ID).Str("username", p.Username).Msg("Account created")
	return s.issue(ctx, p)
}

// create inserts the profile and its starting-credit ledger row together.
func (s *AccountService) create(ctx context.Context, np repository.NewProfile) (*model.Profile, error) {
	np.StarterProvinces = s.cfg.StarterProvinces
	np.MaxLives = s.cfg.MaxLives
	np.StartingCredits = s.cfg.StartingCredits

	var p *model.Profile
	err := db.InTx(ctx, s.conn, func(tx pgx.Tx) error {
		var err error
		p, err = s.profileRepo.WithTx(tx).Create(ctx, np)
		if err != nil {
			return err
		}
		if np.StartingCredits > 0 {
			desc := "Starting credits"
			if _, err := s.txRepo.WithTx(tx).Create(ctx, p.ID, np.StartingCredits, model.TxTypeInitial, &desc); err != nil {
				return err
			}
		}
		return nil
	})
	return p, err
}

// SignIn checks an email and password.
func (s *AccountService) SignIn(ctx context.Context, email, password string) (*Session, error) {
	p, err := s.profileRepo.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, repository.ErrProfileNotFound) {
			return nil, auth.ErrInvalidCredentials
		}
		return nil, err
	}
	if p.PasswordHash == nil {
		return nil, auth.ErrInvalidCredentials
	}
	if err := auth.CheckPassword(*p.PasswordHash, password); err != nil {
		return nil, err
	}
	return s.issue(ctx, p)
}

// OAuthURL returns the consent URL of a configured provider.
func (s *AccountService) OAuthURL(provider, state string) (string, error) {
	p, ok := s.providers[provider]
	if !ok {
		return "", auth.ErrUnknownProvider
	}
	return p.AuthCodeURL(state), nil
}

// OAuthSignIn completes a provider flow. A known identity signs in; an
// unknown one is linked to the account with the same email, or gets a new
// account.
func (s *AccountService) OAuthSignIn(ctx context.Context, provider, code string) (*Session, error) {
	p, ok := s.providers[provider]
	if !ok {
		return nil, auth.ErrUnknownProvider
	}
	id, err := p.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}

	profile, err := s.profileRepo.GetByOAuth(ctx, id.Provider, id.Subject)
	if err == nil {
		return s.issue(ctx, profile)
	}
	if !errors.Is(err, repository.ErrProfileNotFound) {
		return nil, err
	}

	if id.Email != "" {
		profile, err = s.profileRepo.GetByEmail(ctx, id.Email)
		if err != nil && !errors.Is(err, repository.ErrProfileNotFound) {
			return nil, err
		}
	}
	if profile == nil {
		profile, err = s.createOAuthProfile(ctx, id)
		if err != nil {
			return nil, err
		}
	}
	if err := s.profileRepo.LinkOAuth(ctx, profile.ID, id.Provider, id.Subject); err != nil {
		return nil, err
	}
	log.Info().Str("user_id", profile.ID).Str("provider", id.Provider).Msg("OAuth identity linked")
	return s.issue(ctx, profile)
}

func (s *AccountService) createOAuthProfile(ctx context.Context, id auth.Identity) (*model.Profile, error) {
	np := repository.NewProfile{Username: usernameFor(id)}
	if id.Email != "" {
		email := strings.ToLower(id.Email)
		np.Email = &email
	}

	base := np.Username
	for attempt := 0; attempt < 5; attempt++ {
		p, err := s.create(ctx, np)
		if !errors.Is(err, repository.ErrUsernameTaken) {
			return p, err
		}
		suffix, err := auth.RandomCode(4)
		if err != nil {
			return nil, err
		}
		np.Username = base + "-" + strings.ToLower(suffix)
	}
	return nil, repository.ErrUsernameTaken
}

// usernameFor derives a username from the provider name or email.
func usernameFor(id auth.Identity) string {
	source := id.Name
	if source == "" {
		source, _, _ = strings.Cut(id.Email, "@")
	}
	name := slug.Make(source)
	if len(name) > 24 {
		name = strings.Trim(name[:24], "-")
	}
	if len(name) < 3 {
		name = "agent-" + name
	}
	return strings.TrimSuffix(name, "-")
}

// Refresh rotates a refresh token: the old one is consumed and a new pair is
// issued.
func (s *AccountService) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	sess, err := s.sessionRepo.Consume(ctx, auth.HashToken(refreshToken), s.now())
	if err != nil {
		return nil, err
	}
	p, err := s.profileRepo.GetByID(ctx, sess.ProfileID)
	if err != nil {
		return nil, err
	}
	return s.issue(ctx, p)
}

// SignOut revokes a refresh token.
func (s *AccountService) SignOut(ctx context.Context, refreshToken string) error {
	return s.sessionRepo.Delete(ctx, auth.HashToken(refreshToken))
}

// Authenticate verifies an access token.
func (s *AccountService) Authenticate(token string) (*auth.Claims, error) {
	return s.tokens.Verify(token)
}

// Me returns the caller's profile.
func (s *AccountService) Me(ctx context.Context, profileID string) (*model.Profile, error) {
	return s.profileRepo.GetByID(ctx, profileID)
}

func (s *AccountService) issue(ctx context.Context, p *model.Profile) (*Session, error) {
	access, expires, err := s.tokens.Issue(p.ID, p.IsAdmin)
	if err != nil {
		return nil, err
	}
	raw, hash, err := auth.NewRefreshToken()
	if err != nil {
		return nil, err
	}
	if _, err := s.sessionRepo.Create(ctx, p.ID, hash, s.now().Add(s.refreshTTL)); err != nil {
		return nil, err
	}
	return &Session{AccessToken: access, RefreshToken: raw, ExpiresAt: expires, Profile: p}, nil
}

// ========== Telegram ==========

// CreateTelegramLink issues a one-time code the user sends to the bot.
func (s *AccountService) CreateTelegramLink(ctx context.Context, profileID string) (string, time.Time, error) {
	code, err := auth.RandomCode(8)
	if err != nil {
		return "", time.Time{}, err
	}
	expires := s.now().Add(linkCodeTTL)
	if err := s.sessionRepo.CreateLinkCode(ctx, profileID, code, expires); err != nil {
		return "", time.Time{}, err
	}
	return code, expires, nil
}

// LinkTelegram consumes a link code and attaches the Telegram account.
func (s *AccountService) LinkTelegram(ctx context.Context, code string, telegramID int64) (*model.Profile, error) {
	profileID, err := s.sessionRepo.ConsumeLinkCode(ctx, strings.ToUpper(strings.TrimSpace(code)), s.now())
	if err != nil {
		return nil, err
	}
	if err := s.profileRepo.SetTelegramID(ctx, profileID, telegramID); err != nil {
		return nil, err
	}
	log.Info().Str("user_id", profileID).Int64("telegram_id", telegramID).Msg("Telegram account linked")
	return s.profileRepo.GetByID(ctx, profileID)
}

// ProfileByTelegram returns the profile linked to a Telegram account.
func (s *AccountService) ProfileByTelegram(ctx context.Context, telegramID int64) (*model.Profile, error) {
	return s.profileRepo.GetByTelegramID(ctx, telegramID)
}

// ========== Avatars ==========

// Avatars lists the avatar catalog with the player's unlocks marked.
func (s *AccountService) Avatars(ctx context.Context, profileID string) ([]model.AvatarChoice, error) {
	p, err := s.profileRepo.GetByID(ctx, profileID)
	if err != nil {
		return nil, err
	}
	avatars, err := s.avatarRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	owned, err := s.invRepo.OwnedAvatars(ctx, profileID)
	if err != nil {
		return nil, err
	}
	return avatarChoices(avatars, owned, p.AvatarID), nil
}

func avatarChoices(avatars []model.Avatar, owned []string, selected *string) []model.AvatarChoice {
	unlocked := make(map[string]bool, len(owned))
	for _, id := range owned {
		unlocked[id] = true
	}
	choices := make([]model.AvatarChoice, 0, len(avatars))
	for _, a := range avatars {
		choices = append(choices, model.AvatarChoice{
			Avatar:   a,
			Unlocked: !a.IsPremium || unlocked[a.ID],
			Selected: selected != nil && *selected == a.ID,
		})
	}
	return choices
}

// SelectAvatar sets the profile avatar. Premium avatars must be unlocked first.
func (s *AccountService) SelectAvatar(ctx context.Context, profileID, avatarID string) (*model.Profile, error) {
	avatar, err := s.avatarRepo.Get(ctx, avatarID)
	if err != nil {
		return nil, err
	}
	if avatar.IsPremium {
		owned, err := s.invRepo.OwnsAvatar(ctx, profileID, avatarID)
		if err != nil {
			return nil, fmt.Errorf("failed to check avatar ownership: %w", err)
		}
		if !owned {
			return nil, ErrAvatarLocked
		}
	}
	if err := s.profileRepo.SetAvatar(ctx, profileID, avatarID); err != nil {
		return nil, err
	}
	return s.profileRepo.GetByID(ctx, profileID)
}
