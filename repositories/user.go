//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"chat-direct/domain"
	"chat-direct/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type IUserRepository interface {
	Create(email, passwordHash string) (domain.User, error)
	GetByEmail(email string) (domain.User, error)
	GetByID(id uuid.UUID) (domain.User, error)
	UpdatePresence(id uuid.UUID, status domain.PresenceStatus, lastSeen time.Time) error
}

type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) *UserRepository {
	return &UserRepository{db: db}
}

// userRecord is the on-disk shape of a user.
type userRecord struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	PasswordHash string `json:"password_hash"`
	Status       string `json:"status"`
	LastSeenAt   int64  `json:"last_seen_at"`
	CreatedAt    int64  `json:"created_at"`
}

func userKey(id uuid.UUID) []byte  { return []byte("user:id:" + id.String()) }
func emailKey(email string) []byte { return []byte("user:email:" + email) }

// Create persists a new user. Uniqueness on email is enforced inside the
// same transaction that writes both rows, so two concurrent registrations
// with the same email cannot both succeed.
func (u *UserRepository) Create(email, passwordHash string) (domain.User, error) {
	user := domain.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: passwordHash,
		Status:       domain.StatusOffline,
		LastSeenAt:   time.Now().UTC(),
		CreatedAt:    time.Now().UTC(),
	}
	data, err := json.Marshal(fromUser(user))
	if err != nil {
		return domain.User{}, fmt.Errorf("marshal failed: %w", err)
	}

	err = update(u.db, func(txn *badger.Txn) error {
		if _, err := txn.Get(emailKey(email)); err == nil {
			return errors.ErrUserAlreadyExists
		}
		if err := txn.Set(emailKey(email), []byte(user.ID.String())); err != nil {
			return err
		}
		return txn.Set(userKey(user.ID), data)
	})
	if err != nil {
		return domain.User{}, err
	}
	return user, nil
}

func (u *UserRepository) GetByEmail(email string) (domain.User, error) {
	var id uuid.UUID
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(emailKey(email))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			parsed, err := uuid.Parse(string(val))
			if err != nil {
				return err
			}
			id = parsed
			return nil
		})
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return domain.User{}, fmt.Errorf("%w: user %s", errors.ErrNotFound, email)
	}
	if err != nil {
		return domain.User{}, err
	}
	return u.GetByID(id)
}

func (u *UserRepository) GetByID(id uuid.UUID) (domain.User, error) {
	var record userRecord
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		})
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return domain.User{}, fmt.Errorf("%w: user %s", errors.ErrNotFound, id)
	}
	if err != nil {
		return domain.User{}, err
	}
	return toUser(record)
}

// UpdatePresence rewrites the presence fields in one transaction.
func (u *UserRepository) UpdatePresence(id uuid.UUID, status domain.PresenceStatus, lastSeen time.Time) error {
	return update(u.db, func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(id))
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: user %s", errors.ErrNotFound, id)
		}
		if err != nil {
			return err
		}
		var record userRecord
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		}); err != nil {
			return err
		}
		record.Status = string(status)
		record.LastSeenAt = lastSeen.UnixNano()
		data, err := json.Marshal(record)
		if err != nil {
			return err
		}
		return txn.Set(userKey(id), data)
	})
}

func fromUser(user domain.User) userRecord {
	return userRecord{
		ID:           user.ID.String(),
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		Status:       string(user.Status),
		LastSeenAt:   user.LastSeenAt.UnixNano(),
		CreatedAt:    user.CreatedAt.UnixNano(),
	}
}

func toUser(record userRecord) (domain.User, error) {
	id, err := uuid.Parse(record.ID)
	if err != nil {
		return domain.User{}, err
	}
	return domain.User{
		ID:           id,
		Email:        record.Email,
		PasswordHash: record.PasswordHash,
		Status:       domain.PresenceStatus(record.Status),
		LastSeenAt:   time.Unix(0, record.LastSeenAt).UTC(),
		CreatedAt:    time.Unix(0, record.CreatedAt).UTC(),
	}, nil
}
