package rewards

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	jwt "github.com/dgrijalva/jwt-go"
	interf "github.com/glkeru/rewards/internal/interfaces"
	model "github.com/glkeru/rewards/internal/models"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Регистрация и вход. Реферальный код применяется
// в той же транзакции, что и создание пользователя
type AuthService struct {
	logger     *zap.Logger
	db         interf.TxStorage
	cache      interf.CacheStorage
	referrals  *ReferralService
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewAuthService(logger *zap.Logger, db interf.TxStorage, cache interf.CacheStorage, referrals *ReferralService) (*AuthService, error) {
	secret := os.Getenv("REWARDS_JWT_SECRET")
	if secret == "" {
		return nil, fmt.Errorf("env REWARDS_JWT_SECRET is not set")
	}
	return &AuthService{
		logger:     logger,
		db:         db,
		cache:      cache,
		referrals:  referrals,
		secret:     []byte(secret),
		accessTTL:  30 * time.Minute,
		refreshTTL: 7 * 24 * time.Hour,
	}, nil
}

type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Регистрация. Бонусы за приглашение начисляются атомарно с созданием
// пользователя - нет регистрации без бонуса и бонуса без регистрации
func (s *AuthService) Register(ctx context.Context, email, password, name, referralCode string) (user model.User, err error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return model.User{}, fmt.Errorf("email is not valid")
	}
	if len(password) < 8 {
		return model.User{}, fmt.Errorf("password must be at least 8 characters")
	}
	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return model.User{}, err
	}

	var referral model.Referral
	var applied bool
	err = s.db.WithinTx(ctx, func(st interf.Storage) error {
		user, err = st.UserCreate(ctx, model.User{
			Email:        email,
			PasswordHash: string(hash),
			Name:         name,
			IsActive:     true,
		})
		if err != nil {
			return err
		}
		referral, applied, err = s.referrals.apply(ctx, st, referralCode, user.ID)
		return err
	})
	if err != nil {
		return model.User{}, err
	}
	if applied {
		invalidateBalance(ctx, s.logger, s.cache, referral.ReferrerID)
		invalidateBalance(ctx, s.logger, s.cache, referral.ReferredID)
	}
	return user, nil
}

// пользователь по ID (для проверки токена)
func (s *AuthService) User(ctx context.Context, userID int64) (model.User, error) {
	return s.db.UserByID(ctx, userID)
}

// Вход. Неизвестный email и неверный пароль не различаем
func (s *AuthService) Login(ctx context.Context, email, password string) (model.User, Tokens, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.db.UserByEmail(ctx, email)
	if err != nil {
		return model.User{}, Tokens{}, model.ErrInvalidLogin
	}
	if !user.IsActive {
		return model.User{}, Tokens{}, model.ErrInvalidLogin
	}
	err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password))
	if err != nil {
		return model.User{}, Tokens{}, model.ErrInvalidLogin
	}
	tokens, err := s.CreateTokens(user)
	if err != nil {
		return model.User{}, Tokens{}, err
	}
	return user, tokens, nil
}

func (s *AuthService) CreateTokens(user model.User) (Tokens, error) {
	access, err := s.signToken(user, "access", s.accessTTL)
	if err != nil {
		return Tokens{}, err
	}
	refresh, err := s.signToken(user, "refresh", s.refreshTTL)
	if err != nil {
		return Tokens{}, err
	}
	return Tokens{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *AuthService) signToken(user model.User, tokenType string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":   fmt.Sprint(user.ID),
		"email": user.Email,
		"type":  tokenType,
		"exp":   time.Now().Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Обновление пары токенов по refresh-токену
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	userID, tokenType, err := s.ParseToken(refreshToken)
	if err != nil {
		return Tokens{}, err
	}
	if tokenType != "refresh" {
		return Tokens{}, fmt.Errorf("token is not a refresh token")
	}
	user, err := s.db.UserByID(ctx, userID)
	if err != nil {
		return Tokens{}, err
	}
	if !user.IsActive {
		return Tokens{}, model.ErrInvalidLogin
	}
	return s.CreateTokens(user)
}

// Проверка подписи и разбор токена
func (s *AuthService) ParseToken(tokenString string) (userID int64, tokenType string, err error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return 0, "", err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return 0, "", fmt.Errorf("token is not valid")
	}
	sub, _ := claims["sub"].(string)
	_, err = fmt.Sscan(sub, &userID)
	if err != nil || userID <= 0 {
		return 0, "", fmt.Errorf("token is not valid")
	}
	tokenType, _ = claims["type"].(string)
	return userID, tokenType, nil
}
