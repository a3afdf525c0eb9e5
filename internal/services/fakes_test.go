package service

import (
	"context"
	"sync"
	"time"

	"github.com/zhdanovmax/token-service/internal/infrastructure/redis"
	"github.com/zhdanovmax/token-service/internal/models"
	pkgerrors "github.com/zhdanovmax/token-service/pkg/errors"
)

var errKeyNotFound = redis.ErrKeyNotFound

// fakeTokenRepo is an in-memory ledger with the same conditional-update
// semantics as the Postgres implementation.
type fakeTokenRepo struct {
	mu       sync.Mutex
	records  map[string]*models.TokenRecord
	nextID   int64
	failWith error
	sweeps   int
}

func newFakeTokenRepo() *fakeTokenRepo {
	return &fakeTokenRepo{records: make(map[string]*models.TokenRecord)}
}

func (r *fakeTokenRepo) Create(ctx context.Context, record *models.TokenRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}
	r.nextID++
	record.ID = r.nextID
	record.CreatedAt = time.Now()
	stored := *record
	r.records[record.Token] = &stored
	return nil
}

func (r *fakeTokenRepo) FindActive(ctx context.Context, token string) (*models.TokenRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return nil, r.failWith
	}
	rec, ok := r.records[token]
	if !ok || rec.Deleted || rec.Expired {
		return nil, pkgerrors.ErrTokenRecordNotFound
	}
	copied := *rec
	return &copied, nil
}

func (r *fakeTokenRepo) FindNonDeleted(ctx context.Context, token string) (*models.TokenRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return nil, r.failWith
	}
	rec, ok := r.records[token]
	if !ok || rec.Deleted {
		return nil, pkgerrors.ErrTokenRecordNotFound
	}
	copied := *rec
	return &copied, nil
}

func (r *fakeTokenRepo) FindActiveByUser(ctx context.Context, userID int64) ([]models.TokenRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return nil, r.failWith
	}
	var out []models.TokenRecord
	for _, rec := range r.records {
		if rec.UserID == userID && !rec.Deleted && !rec.Expired {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (r *fakeTokenRepo) MarkDeleted(ctx context.Context, token string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return false, r.failWith
	}
	rec, ok := r.records[token]
	if !ok || rec.Deleted {
		return false, nil
	}
	rec.Deleted = true
	return true, nil
}

func (r *fakeTokenRepo) MarkAllDeletedForUser(ctx context.Context, userID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return 0, r.failWith
	}
	var count int64
	for _, rec := range r.records {
		if rec.UserID == userID && !rec.Deleted {
			rec.Deleted = true
			count++
		}
	}
	return count, nil
}

func (r *fakeTokenRepo) MarkExpired(ctx context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}
	if rec, ok := r.records[token]; ok && !rec.Expired {
		rec.Expired = true
	}
	return nil
}

func (r *fakeTokenRepo) MarkExpiredWhereOverdue(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweeps++
	if r.failWith != nil {
		return 0, r.failWith
	}
	var count int64
	for _, rec := range r.records {
		if !rec.Expired && rec.ExpiresAt.Before(now) {
			rec.Expired = true
			count++
		}
	}
	return count, nil
}

func (r *fakeTokenRepo) get(token string) *models.TokenRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records[token]
}

func (r *fakeTokenRepo) setExpiresAt(token string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[token]; ok {
		rec.ExpiresAt = at
	}
}

type fakeProducer struct {
	mu   sync.Mutex
	sent []string
}

func (p *fakeProducer) Send(ctx context.Context, topic, key string, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, topic+"/"+key)
	return nil
}

func (p *fakeProducer) Close() error { return nil }

type fakeRedis struct {
	mu     sync.Mutex
	values map[string]string
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: make(map[string]string)}
}

func (c *fakeRedis) Get(ctx context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	val, ok := c.values[key]
	if !ok {
		return "", errKeyNotFound
	}
	return val, nil
}

func (c *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = toString(value)
	return nil
}

func (c *fakeRedis) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.values[key]; ok {
		return false, nil
	}
	c.values[key] = toString(value)
	return true, nil
}

func (c *fakeRedis) Del(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
	return nil
}

func (c *fakeRedis) Close() error { return nil }

func toString(value interface{}) string {
	if s, ok := value.(string); ok {
		return s
	}
	return ""
}

type fakeUserRepo struct {
	mu       sync.Mutex
	byName   map[string]*models.User
	emails   map[string]bool
	nextID   int64
	failWith error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byName: make(map[string]*models.User), emails: make(map[string]bool)}
}

func (r *fakeUserRepo) Create(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}
	if _, ok := r.byName[user.Username]; ok {
		return pkgerrors.ErrUsernameExists
	}
	if r.emails[user.Email] {
		return pkgerrors.ErrEmailExists
	}
	r.nextID++
	user.ID = r.nextID
	user.CreatedAt = time.Now()
	stored := *user
	r.byName[user.Username] = &stored
	r.emails[user.Email] = true
	return nil
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id int64) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.byName {
		if user.ID == id {
			copied := *user
			return &copied, nil
		}
	}
	return nil, pkgerrors.ErrUserNotFound
}

func (r *fakeUserRepo) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return nil, r.failWith
	}
	user, ok := r.byName[username]
	if !ok {
		return nil, pkgerrors.ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}

func (r *fakeUserRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.emails[email], nil
}
