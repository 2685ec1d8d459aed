package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/weixueshi04/TimeScheduleApp/internal/domain"
	"github.com/weixueshi04/TimeScheduleApp/internal/repository"
)

// AuthService 负责用户注册、登录和令牌校验。
type AuthService struct {
	users     repository.UserRepository
	jwtSecret []byte
	tokenTTL  time.Duration
}

// NewAuthService 创建 AuthService 实例。
func NewAuthService(users repository.UserRepository, jwtSecret string) *AuthService {
	if users == nil {
		panic("UserRepository cannot be nil for AuthService")
	}
	if jwtSecret == "" {
		panic("JWT secret cannot be empty for AuthService")
	}
	return &AuthService{
		users:     users,
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  72 * time.Hour,
	}
}

// Register 注册新用户，密码用 bcrypt 加盐哈希后存储。
func (s *AuthService) Register(ctx context.Context, username, password, email string) (*domain.User, error) {
	if username == "" || password == "" {
		return nil, validationError("username and password are required")
	}
	if len(password) < 6 {
		return nil, validationError("password must be at least 6 characters")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		logrus.WithError(err).Error("Failed to hash password")
		return nil, ErrRegistrationFailed
	}

	user := &domain.User{
		Username: username,
		Password: string(hashed),
		Email:    email,
		Nickname: username,
		Status:   "active",
	}
	if err := s.users.Save(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			logrus.WithField("username", username).Warn("Registration rejected: username taken")
			return nil, ErrRegistrationFailed
		}
		logrus.WithError(err).WithField("username", username).Error("Failed to create user")
		return nil, ErrInternalServer
	}

	logrus.WithFields(logrus.Fields{"user_id": user.ID, "username": username}).Info("User registered successfully")
	return user, nil
}

// Login 校验凭证并签发 JWT。
func (s *AuthService) Login(ctx context.Context, username, password string) (string, *domain.User, error) {
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return "", nil, ErrAuthenticationFailed
		}
		logrus.WithError(err).WithField("username", username).Error("Failed to look up user")
		return "", nil, ErrInternalServer
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		logrus.WithField("username", username).Warn("Login rejected: invalid credentials")
		return "", nil, ErrAuthenticationFailed
	}

	token, err := s.generateToken(user.ID)
	if err != nil {
		logrus.WithError(err).WithField("user_id", user.ID).Error("Failed to sign token")
		return "", nil, ErrInternalServer
	}

	logrus.WithFields(logrus.Fields{"user_id": user.ID, "username": username}).Info("User logged in successfully")
	return token, user, nil
}

// Authenticate 解析并校验 JWT，返回其中的用户 ID。
// 连接层在升级 WebSocket 前用它校验握手令牌。
func (s *AuthService) Authenticate(tokenString string) (uint, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return 0, ErrAuthenticationFailed
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, ErrAuthenticationFailed
	}
	userIDFloat, ok := claims["user_id"].(float64)
	if !ok {
		return 0, ErrAuthenticationFailed
	}
	return uint(userIDFloat), nil
}

// GetStats 返回用户的学习统计数据。
func (s *AuthService) GetStats(ctx context.Context, userID uint) (*domain.UserStats, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		logrus.WithError(err).WithField("user_id", userID).Error("Failed to load user stats")
		return nil, ErrInternalServer
	}
	stats := user.Stats()
	return &stats, nil
}

func (s *AuthService) generateToken(userID uint) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(s.tokenTTL).Unix(),
		"iat":     time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}
