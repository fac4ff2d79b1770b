package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"qrcollect/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUnauthorized  = errors.New("登录已失效，请重新登录")
	ErrPasswordWrong = errors.New("密码错误")
)

const adminSubject = "admin"

// Session 管理员会话，由中间件解析后放入请求 context
type Session struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type sessionKey struct{}

func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

func SessionFromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*Session)
	return s, ok && s != nil
}

type sessionClaims struct {
	jwt.RegisteredClaims
}

// AuthService 单一管理员口令登录，签发 HS256 会话令牌
type AuthService struct {
	passwordHash []byte
	secret       []byte
	expire       time.Duration
	now          func() time.Time
}

func NewAuthService(cfg config.AuthConfig) (*AuthService, error) {
	hash := []byte(strings.TrimSpace(cfg.PasswordHash))
	if len(hash) == 0 {
		var err error
		hash, err = bcrypt.GenerateFromPassword([]byte(cfg.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("生成密码哈希失败: %w", err)
		}
	}
	hours := cfg.ExpireHours
	if hours <= 0 {
		hours = 24
	}
	return &AuthService{
		passwordHash: hash,
		secret:       []byte(cfg.SecretKey),
		expire:       time.Duration(hours) * time.Hour,
		now:          time.Now,
	}, nil
}

// Login 校验口令并签发令牌
func (s *AuthService) Login(password string) (string, time.Time, error) {
	if err := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(password)); err != nil {
		return "", time.Time{}, ErrPasswordWrong
	}

	now := s.now()
	expiresAt := now.Add(s.expire)
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   adminSubject,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// ParseToken 校验令牌，任何失败都返回 ErrUnauthorized
func (s *AuthService) ParseToken(tokenString string) (*Session, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	token, err := parser.ParseWithClaims(tokenString, &sessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, ErrUnauthorized
	}
	claims, ok := token.Claims.(*sessionClaims)
	if !ok || !token.Valid || claims.Subject != adminSubject {
		return nil, ErrUnauthorized
	}

	session := &Session{Subject: claims.Subject}
	if claims.IssuedAt != nil {
		session.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}
	return session, nil
}
