package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"pebble-sync/internal/common"
	"pebble-sync/internal/logging"
	"pebble-sync/internal/models"
	"pebble-sync/internal/repos"
)

const apiKeyPrefix = "api_key:"

var (
	ErrInvalidFormat = fmt.Errorf("%w: invalid token format", common.ErrUnauthorized)
	ErrInvalidKey    = fmt.Errorf("%w: invalid api key", common.ErrUnauthorized)
	ErrRevoked       = fmt.Errorf("%w: api key revoked", common.ErrUnauthorized)
	ErrKeyNotFound   = fmt.Errorf("api key %w", common.ErrNotFound)
	ErrKeyExists     = fmt.Errorf("api key %w", common.ErrConflict)
)

type CreateKeyInput struct {
	KeyID  string `json:"keyId"`
	Secret string `json:"secret"`
	Name   string `json:"name"`
}

// KeyService issues and checks keyId.secret tokens. Only the HMAC of the
// secret under the master secret is stored, one entry per key.
type KeyService struct {
	kv           repos.KV
	masterSecret []byte
	log          *logging.Logger
	now          func() time.Time

	// serializes read-modify-write of key records; a key id always maps to
	// the same stripe, so the set of mutexes never grows
	locks [lockStripes]sync.Mutex
}

const lockStripes = 64

func NewKeyService(kv repos.KV, masterSecret string, logger *logging.Logger) *KeyService {
	return &KeyService{kv: kv, masterSecret: []byte(masterSecret), log: logger, now: time.Now}
}

func (s *KeyService) WithClock(now func() time.Time) *KeyService {
	s.now = now
	return s
}

// Create registers a key. When KeyID and Secret are empty both are generated;
// a caller-supplied KeyID that already exists fails with ErrKeyExists. The
// returned token is the only time the secret leaves the service.
func (s *KeyService) Create(ctx context.Context, in CreateKeyInput) (*models.CreatedKey, error) {
	keyID := strings.TrimSpace(in.KeyID)
	secret := in.Secret
	switch {
	case keyID == "" && secret == "":
		keyID = uuid.NewString()
		secret = uuid.NewString()
	case keyID == "" || secret == "":
		return nil, fmt.Errorf("%w: keyId and secret must be given together", common.ErrValidation)
	case strings.Contains(keyID, "."):
		return nil, fmt.Errorf("%w: keyId must not contain '.'", common.ErrValidation)
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = "Key " + shortID(keyID)
	}
	rec := models.APIKeyRecord{
		KeyHash:   s.Hash(secret),
		CreatedAt: s.now().UTC(),
		Revoked:   false,
		Name:      name,
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	if err := s.kv.PutIfAbsent(ctx, apiKeyPrefix+keyID, b, 0); err != nil {
		if errors.Is(err, repos.ErrConflict) {
			return nil, ErrKeyExists
		}
		return nil, fmt.Errorf("%w: %v", common.ErrUnavailable, err)
	}
	return &models.CreatedKey{Token: keyID + "." + secret, KeyID: keyID, Name: name}, nil
}

// Verify checks a keyId.secret token and returns the keyId on success,
// recording the time of use.
func (s *KeyService) Verify(ctx context.Context, token string) (string, error) {
	keyID, secret, ok := strings.Cut(strings.TrimSpace(token), ".")
	if !ok || keyID == "" || secret == "" {
		return "", ErrInvalidFormat
	}

	mu := s.lock(keyID)
	mu.Lock()
	defer mu.Unlock()

	rec, err := s.load(ctx, keyID)
	if err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			return "", ErrInvalidKey
		}
		return "", err
	}
	if rec.Revoked {
		return "", ErrRevoked
	}

	stored, err := hex.DecodeString(rec.KeyHash)
	if err != nil || !hmac.Equal(stored, s.mac(secret)) {
		return "", ErrInvalidKey
	}

	now := s.now().UTC()
	rec.LastUsedAt = &now
	if err := s.store(ctx, keyID, rec); err != nil {
		// the caller is authenticated even if the bookkeeping write fails
		s.log.Warnf("update lastUsedAt for key %s: %v", keyID, err)
	}
	return keyID, nil
}

// List returns key metadata; hashes and secrets are never included.
func (s *KeyService) List(ctx context.Context) ([]models.APIKeyInfo, error) {
	res, err := s.kv.List(ctx, repos.ListOptions{Prefix: apiKeyPrefix})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrUnavailable, err)
	}
	keys := make([]models.APIKeyInfo, 0, len(res.Entries))
	for _, e := range res.Entries {
		var rec models.APIKeyRecord
		if err := json.Unmarshal(e.Value, &rec); err != nil {
			s.log.Warnf("skipping corrupted key record %s: %v", e.Key, err)
			continue
		}
		keys = append(keys, models.APIKeyInfo{
			KeyID:      strings.TrimPrefix(e.Key, apiKeyPrefix),
			Name:       rec.Name,
			CreatedAt:  rec.CreatedAt,
			LastUsedAt: rec.LastUsedAt,
			Revoked:    rec.Revoked,
		})
	}
	sort.SliceStable(keys, func(i, j int) bool {
		return keys[i].CreatedAt.Before(keys[j].CreatedAt)
	})
	return keys, nil
}

// Revoke marks a key revoked. Revocation is terminal and repeating it is a
// no-op.
func (s *KeyService) Revoke(ctx context.Context, keyID string) error {
	keyID = strings.TrimSpace(keyID)
	if keyID == "" {
		return fmt.Errorf("%w: keyId is required", common.ErrValidation)
	}

	mu := s.lock(keyID)
	mu.Lock()
	defer mu.Unlock()

	rec, err := s.load(ctx, keyID)
	if err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			return ErrKeyNotFound
		}
		return err
	}
	if rec.Revoked {
		return nil
	}
	rec.Revoked = true
	return s.store(ctx, keyID, rec)
}

// Hash returns the hex HMAC-SHA256 of secret under the master secret.
func (s *KeyService) Hash(secret string) string {
	return hex.EncodeToString(s.mac(secret))
}

func (s *KeyService) mac(secret string) []byte {
	m := hmac.New(sha256.New, s.masterSecret)
	_, _ = m.Write([]byte(secret))
	return m.Sum(nil)
}

func (s *KeyService) lock(keyID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(keyID))
	return &s.locks[h.Sum32()%lockStripes]
}

func (s *KeyService) load(ctx context.Context, keyID string) (*models.APIKeyRecord, error) {
	b, err := s.kv.Get(ctx, apiKeyPrefix+keyID)
	if err != nil {
		return nil, err
	}
	var rec models.APIKeyRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("%w: key %s: %v", common.ErrCorruptData, keyID, err)
	}
	return &rec, nil
}

func (s *KeyService) store(ctx context.Context, keyID string, rec *models.APIKeyRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.kv.Put(ctx, apiKeyPrefix+keyID, b, 0)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
