// Package identity owns the current participant's identity and its
// persistence across restarts. No network calls happen here.
package identity

import (
	"chat-widget/domain"
	apperrors "chat-widget/errors"
	"encoding/json"
	"errors"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// selfKey is the well-known key holding the serialized self participant.
const selfKey = "identity:self"

var validate = validator.New()

type IStore interface {
	Load() (domain.Participant, bool, error)
	Create(displayName string) (domain.Participant, error)
	Persist(p domain.Participant) error
	Clear() error
}

type Store struct {
	db *badger.DB
}

func NewStore(db *badger.DB) *Store {
	return &Store{db: db}
}

// record is the persisted identity row. LastHeartbeat is deliberately not
// stored: liveness never survives a restart.
type record struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Status      string `json:"status"`
}

type createRequest struct {
	DisplayName string `validate:"required"`
}

// Load reads the persisted identity, if any. Called once at startup.
func (s *Store) Load() (domain.Participant, bool, error) {
	var rec record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(selfKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Participant{}, false, nil
	}
	if err != nil {
		return domain.Participant{}, false, err
	}
	return domain.Participant{
		ID:          rec.ID,
		DisplayName: rec.DisplayName,
		Status:      domain.Status(rec.Status),
	}, true, nil
}

// Create validates the display name, generates a fresh identity and persists it.
// Empty or whitespace-only names are rejected.
func (s *Store) Create(displayName string) (domain.Participant, error) {
	name := strings.TrimSpace(displayName)
	if err := validate.Struct(createRequest{DisplayName: name}); err != nil {
		return domain.Participant{}, apperrors.ErrEmptyDisplayName
	}
	p := domain.Participant{
		ID:          uuid.NewString(),
		DisplayName: name,
		Status:      domain.StatusOnline,
	}
	if err := s.Persist(p); err != nil {
		return domain.Participant{}, err
	}
	return p, nil
}

func (s *Store) Persist(p domain.Participant) error {
	data, err := json.Marshal(record{
		ID:          p.ID,
		DisplayName: p.DisplayName,
		Status:      string(p.Status),
	})
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(selfKey), data)
	})
}

// Clear removes the persisted identity. Clearing an absent identity is fine.
func (s *Store) Clear() error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(selfKey))
	})
}
