package tokens

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/dchest/uniuri"
	"github.com/redis/go-redis/v9"
)

// Single-use, time-boxed secrets for password reset and email verification.
// Secrets live in redis under a TTL; redemption consumes them with GETDEL so
// a redeemed token can never authorize a second action.

const (
	ResetTTL        = time.Hour
	VerificationTTL = 10 * time.Minute
)

const resetTokenLen = 64 // ~38 bytes of entropy from the uniuri alphabet

var ErrExpiredOrNotFound = errors.New("token expired, already used or not found")

// Store is the minimal keyspace the issuer needs. Backed by redis in
// production, by an in-memory map in tests.
type Store interface {
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	GetDel(ctx context.Context, key string) (string, error)
}

type redisStore struct {
	rdb *redis.Client
}

func (r redisStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return r.rdb.Set(ctx, key, value, ttl).Err()
}

func (r redisStore) GetDel(ctx context.Context, key string) (string, error) {
	val, err := r.rdb.GetDel(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return val, err
}

type Issuer struct {
	store Store
}

func NewIssuer(rdb *redis.Client) *Issuer {
	return &Issuer{store: redisStore{rdb: rdb}}
}

func NewIssuerWithStore(store Store) *Issuer {
	return &Issuer{store: store}
}

// IssueReset creates a high-entropy reset token bound to the email.
func (i *Issuer) IssueReset(ctx context.Context, email string) (token string, expiresAt time.Time, err error) {
	token = uniuri.NewLen(resetTokenLen)
	expiresAt = time.Now().Add(ResetTTL)
	if err = i.store.Set(ctx, "reset:"+token, email, ResetTTL); err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// RedeemReset consumes the token and returns the email it was issued for.
func (i *Issuer) RedeemReset(ctx context.Context, token string) (string, error) {
	email, err := i.store.GetDel(ctx, "reset:"+token)
	if err != nil {
		return "", err
	}
	if email == "" {
		return "", ErrExpiredOrNotFound
	}
	return email, nil
}

// IssueVerification creates a 6-digit code for the email. Keying by
// email+code means a wrong guess cannot consume the real code.
func (i *Issuer) IssueVerification(ctx context.Context, email string) (code string, expiresAt time.Time, err error) {
	code, err = GenerateVerificationCode()
	if err != nil {
		return "", time.Time{}, err
	}
	expiresAt = time.Now().Add(VerificationTTL)
	if err = i.store.Set(ctx, verificationKey(email, code), email, VerificationTTL); err != nil {
		return "", time.Time{}, err
	}
	return code, expiresAt, nil
}

// RedeemVerification consumes the code for the email.
func (i *Issuer) RedeemVerification(ctx context.Context, email string, code string) error {
	subject, err := i.store.GetDel(ctx, verificationKey(email, code))
	if err != nil {
		return err
	}
	if subject == "" {
		return ErrExpiredOrNotFound
	}
	return nil
}

func GenerateVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func verificationKey(email string, code string) string {
	return "verify:" + email + ":" + code
}
