// Package token issues and validates the opaque web-service tokens the
// front-end presents on every RPC call. A user gets at most one live token
// per service; dead ones (expired, or bound to a session that is gone) are
// swept on issue.
package token

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pinky28/moodle-mod-congrea/internal/rbac"
)

var (
	ErrServiceDisabled = errors.New("web service is disabled")
	ErrTokenNotAllowed = errors.New("caller may not create a web-service token")
	ErrInvalidToken    = errors.New("invalid web-service token")
	ErrInactiveUser    = errors.New("user account is deleted or missing")
)

type Token struct {
	ID        int64  `json:"-"`
	Token     string `json:"token"`
	UserID    int64  `json:"-"`
	SID       string `json:"-"`
	CreatedAt int64  `json:"-"`

	// PrivateToken travels only over TLS and never to site admins.
	PrivateToken string `json:"privatetoken,omitempty"`
}

type AuthzGate interface {
	HasCapability(ctx context.Context, c rbac.Context, capability string, userID int64) (bool, error)
	IsSiteAdmin(ctx context.Context, userID int64) (bool, error)
}

type Service struct {
	db      *sql.DB
	gate    AuthzGate
	service string // external-service name tokens are bound to
	ttl     int64  // seconds, 0 = no expiry
	enabled bool
}

func NewService(db *sql.DB, gate AuthzGate, serviceName string, ttlSec int64, enabled bool) *Service {
	return &Service{db: db, gate: gate, service: serviceName, ttl: ttlSec, enabled: enabled}
}

// IssueForUser returns the user's most recent live token, creating one when
// none survives the sweep. sid binds the token to the caller's session; tls
// gates the private token.
func (s *Service) IssueForUser(ctx context.Context, userID int64, sid string, tls bool) (Token, error) {
	if !s.enabled {
		return Token{}, ErrServiceDisabled
	}
	if err := s.requireActiveUser(ctx, userID); err != nil {
		return Token{}, err
	}

	live, err := s.sweep(ctx, userID, sid)
	if err != nil {
		return Token{}, err
	}

	admin, err := s.gate.IsSiteAdmin(ctx, userID)
	if err != nil {
		return Token{}, err
	}

	var tok Token
	if len(live) > 0 {
		tok = live[len(live)-1]
	} else {
		// Admin accounts never auto-create embedded tokens.
		if admin {
			return Token{}, ErrTokenNotAllowed
		}
		ok, err := s.gate.HasCapability(ctx, rbac.SystemContext(), rbac.CapCreateToken, userID)
		if err != nil {
			return Token{}, err
		}
		if !ok {
			return Token{}, ErrTokenNotAllowed
		}
		tok, err = s.create(ctx, userID, sid)
		if err != nil {
			return Token{}, err
		}
	}

	if !tls || admin {
		tok.PrivateToken = ""
	}
	return tok, nil
}

// Validate resolves a presented token to its user and stamps last access.
func (s *Service) Validate(ctx context.Context, token string) (int64, error) {
	if !s.enabled {
		return 0, ErrServiceDisabled
	}
	var userID, validUntil int64
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, valid_until FROM ws_tokens WHERE token=$1 AND service=$2`,
		token, s.service,
	).Scan(&userID, &validUntil)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrInvalidToken
	}
	if err != nil {
		return 0, err
	}
	now := time.Now().Unix()
	if validUntil > 0 && validUntil < now {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM ws_tokens WHERE token=$1`, token)
		return 0, ErrInvalidToken
	}
	_, _ = s.db.ExecContext(ctx, `UPDATE ws_tokens SET last_access=$1 WHERE token=$2`, now, token)
	return userID, nil
}

// sweep loads the user's tokens oldest-first and deletes the dead ones:
// expired, or bound to a different session.
func (s *Service) sweep(ctx context.Context, userID int64, sid string) ([]Token, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, token, private_token, sid, valid_until, created_at
		   FROM ws_tokens WHERE user_id=$1 AND service=$2 ORDER BY created_at ASC, id ASC`,
		userID, s.service)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	now := time.Now().Unix()
	var live []Token
	var dead []int64
	for rows.Next() {
		var t Token
		var validUntil int64
		if err := rows.Scan(&t.ID, &t.Token, &t.PrivateToken, &t.SID, &validUntil, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.UserID = userID
		if validUntil > 0 && validUntil < now {
			dead = append(dead, t.ID)
			continue
		}
		if t.SID != "" && t.SID != sid {
			dead = append(dead, t.ID)
			continue
		}
		live = append(live, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, id := range dead {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM ws_tokens WHERE id=$1`, id); err != nil {
			return nil, err
		}
	}
	return live, nil
}

func (s *Service) create(ctx context.Context, userID int64, sid string) (Token, error) {
	now := time.Now().Unix()
	var validUntil int64
	if s.ttl > 0 {
		validUntil = now + s.ttl
	}
	tok := Token{
		Token:        randomToken(),
		PrivateToken: randomToken() + randomToken(),
		UserID:       userID,
		SID:          sid,
		CreatedAt:    now,
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO ws_tokens (token, private_token, user_id, service, sid, valid_until, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
		tok.Token, tok.PrivateToken, userID, s.service, sid, validUntil, now,
	).Scan(&tok.ID)
	if err != nil {
		return Token{}, err
	}
	return tok, nil
}

func (s *Service) requireActiveUser(ctx context.Context, userID int64) error {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM users WHERE id=$1 AND deleted=0`, userID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrInactiveUser
	}
	return err
}

// randomToken is 32 hex characters, the historical opaque-token shape.
func randomToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
