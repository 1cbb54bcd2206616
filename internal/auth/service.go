package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrResetTokenInvalid covers expired, already-used and unknown password
// reset tokens alike, so callers cannot distinguish between them.
var ErrResetTokenInvalid = errors.New("reset token invalid or expired")

const passwordResetTTL = time.Hour

type Service struct {
	jwt         *JWTManager
	redisClient *redis.Client
}

func NewService(jwt *JWTManager, redisClient *redis.Client) *Service {
	return &Service{
		jwt:         jwt,
		redisClient: redisClient,
	}
}

func (s *Service) GenerateTokens(userID, email string) (*TokenPair, error) {
	pair, tokenID, err := s.jwt.GenerateTokenPair(userID, email)
	if err != nil {
		return nil, err
	}

	// Store refresh token ID in Redis
	key := fmt.Sprintf("refresh:%s:%s", userID, tokenID)
	err = s.redisClient.Set(context.Background(), key, "1", s.jwt.RefreshExpiry()).Err()
	if err != nil {
		return nil, fmt.Errorf("storing refresh token: %w", err)
	}

	return pair, nil
}

func (s *Service) RefreshTokens(refreshToken string) (*TokenPair, error) {
	claims, err := s.jwt.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, fmt.Errorf("invalid refresh token: %w", err)
	}

	// Check if refresh token exists in Redis
	key := fmt.Sprintf("refresh:%s:%s", claims.UserID, claims.TokenID)
	exists, err := s.redisClient.Exists(context.Background(), key).Result()
	if err != nil {
		return nil, fmt.Errorf("checking refresh token: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("refresh token revoked")
	}

	// Rotate: revoke the old token before issuing the new pair
	s.redisClient.Del(context.Background(), key)

	pair, newTokenID, err := s.jwt.GenerateTokenPair(claims.UserID, claims.Email)
	if err != nil {
		return nil, err
	}

	// Store new refresh token
	newKey := fmt.Sprintf("refresh:%s:%s", claims.UserID, newTokenID)
	err = s.redisClient.Set(context.Background(), newKey, "1", s.jwt.RefreshExpiry()).Err()
	if err != nil {
		return nil, fmt.Errorf("storing new refresh token: %w", err)
	}

	return pair, nil
}

func (s *Service) Logout(userID string) error {
	// Delete all refresh tokens for this user
	pattern := fmt.Sprintf("refresh:%s:*", userID)
	iter := s.redisClient.Scan(context.Background(), 0, pattern, 100).Iterator()
	for iter.Next(context.Background()) {
		s.redisClient.Del(context.Background(), iter.Val())
	}
	return iter.Err()
}

// CreatePasswordResetToken issues a single-use reset token for the user.
// Any token issued earlier for the same user is invalidated first, so at
// most one reset link is live at a time.
func (s *Service) CreatePasswordResetToken(ctx context.Context, userID string) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating reset token: %w", err)
	}
	token := hex.EncodeToString(buf)

	userKey := fmt.Sprintf("pwreset:user:%s", userID)
	if prev, err := s.redisClient.Get(ctx, userKey).Result(); err == nil && prev != "" {
		s.redisClient.Del(ctx, fmt.Sprintf("pwreset:token:%s", prev))
	}

	pipe := s.redisClient.TxPipeline()
	pipe.Set(ctx, fmt.Sprintf("pwreset:token:%s", token), userID, passwordResetTTL)
	pipe.Set(ctx, userKey, token, passwordResetTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("storing reset token: %w", err)
	}
	return token, nil
}

// ConsumePasswordResetToken redeems a token exactly once and returns the
// user it was issued to.
func (s *Service) ConsumePasswordResetToken(ctx context.Context, token string) (string, error) {
	userID, err := s.redisClient.GetDel(ctx, fmt.Sprintf("pwreset:token:%s", token)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrResetTokenInvalid
	}
	if err != nil {
		return "", fmt.Errorf("redeeming reset token: %w", err)
	}
	s.redisClient.Del(ctx, fmt.Sprintf("pwreset:user:%s", userID))
	return userID, nil
}

func (s *Service) ValidateAccessToken(token string) (*AccessClaims, error) {
	return s.jwt.ValidateAccessToken(token)
}

// StoreRefreshTokenWithExpiry stores a refresh token with a specific TTL.
// Used by the handler when email is available.
func (s *Service) StoreRefreshToken(userID, tokenID string, expiry time.Duration) error {
	key := fmt.Sprintf("refresh:%s:%s", userID, tokenID)
	return s.redisClient.Set(context.Background(), key, "1", expiry).Err()
}

func (s *Service) JWT() *JWTManager {
	return s.jwt
}
