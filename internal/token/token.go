package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"sudooom.arena/internal/model"
)

var (
	ErrTokenInvalid = errors.New("RESUME_TOKEN_INVALID")
	ErrTokenExpired = errors.New("RESUME_TOKEN_EXPIRED")
)

const issuer = "arena"

// Claims 断线重连凭证声明
type Claims struct {
	RoomID model.RoomID `json:"roomId"`
	Slot   model.Slot   `json:"slot"`
	Name   string       `json:"name"`
	jwt.RegisteredClaims
}

// Service 重连凭证服务（HS256）
type Service struct {
	secretKey []byte
	ttl       time.Duration
	now       func() time.Time
}

// NewService 创建凭证服务
func NewService(secretKey string, ttl time.Duration) *Service {
	return &Service{
		secretKey: []byte(secretKey),
		ttl:       ttl,
		now:       time.Now,
	}
}

// Issue 为座位签发凭证
func (s *Service) Issue(seat model.Seat) (string, error) {
	now := s.now()
	claims := &Claims{
		RoomID: seat.RoomID,
		Slot:   seat.Slot,
		Name:   seat.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(seat.RoomID),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(s.secretKey)
}

// Parse 校验凭证并取出座位
func (s *Service) Parse(tokenString string) (model.Seat, error) {
	tok, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return s.secretKey, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return model.Seat{}, ErrTokenExpired
		}
		return model.Seat{}, ErrTokenInvalid
	}

	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid || claims.RoomID == "" || claims.Slot <= 0 {
		return model.Seat{}, ErrTokenInvalid
	}

	return model.Seat{RoomID: claims.RoomID, Slot: claims.Slot, Name: claims.Name}, nil
}
