package protocol

import (
	"encoding/json"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"transfer-agent/internal/domain"
)

// Version of the wire protocol. A mismatch is fatal to the connection;
// there is no negotiation.
const Version = 1

// Hello opens every connection: protocol version plus a caller token
// signed with the shared agent secret.
type Hello struct {
	Version int    `json:"version"`
	Token   string `json:"token"`
}

// HelloAck confirms or rejects the handshake.
type HelloAck struct {
	Version int    `json:"version"`
	Error   string `json:"error,omitempty"`
}

const tokenSubject = "transfer-client"

// MintToken signs a short-lived HS256 caller token.
func MintToken(secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   tokenSubject,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// VerifyToken checks signature, expiry and subject.
func VerifyToken(secret, tokenStr string) error {
	token, err := jwt.ParseWithClaims(tokenStr, &jwt.RegisteredClaims{},
		func(t *jwt.Token) (any, error) { return []byte(secret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return domain.Errf("handshake", "", domain.ErrPermissionDenied, "invalid token: %v", err)
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject != tokenSubject {
		return domain.Errf("handshake", "", domain.ErrPermissionDenied, "unexpected token subject")
	}
	return nil
}

func WriteHello(w io.Writer, h *Hello) error {
	b, err := json.Marshal(h)
	if err != nil {
		return domain.Errf("write hello", "", domain.ErrProtocolError, "marshal: %v", err)
	}
	return WriteFrame(w, b)
}

func ReadHello(r io.Reader) (*Hello, error) {
	b, err := ReadFrame(r)
	if err != nil {
		return nil, err
	}
	var h Hello
	if err := json.Unmarshal(b, &h); err != nil {
		return nil, domain.Errf("read hello", "", domain.ErrProtocolError, "unmarshal: %v", err)
	}
	return &h, nil
}

func WriteHelloAck(w io.Writer, a *HelloAck) error {
	b, err := json.Marshal(a)
	if err != nil {
		return domain.Errf("write hello ack", "", domain.ErrProtocolError, "marshal: %v", err)
	}
	return WriteFrame(w, b)
}

func ReadHelloAck(r io.Reader) (*HelloAck, error) {
	b, err := ReadFrame(r)
	if err != nil {
		return nil, err
	}
	var a HelloAck
	if err := json.Unmarshal(b, &a); err != nil {
		return nil, domain.Errf("read hello ack", "", domain.ErrProtocolError, "unmarshal: %v", err)
	}
	return &a, nil
}
