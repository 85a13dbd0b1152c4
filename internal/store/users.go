package store

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/rs/xid"
	"github.com/rs/zerolog"

	"github.com/accountd/accountd/internal/httpcond"
)

var ErrEmailTaken = errors.New("a user with this email already exists")

// Users is the account store: badger underneath, a ristretto read-through
// cache in front of single-record reads. Handlers hold on to the Entry they
// read so that a later Save detects concurrent writes via its version.
type Users struct {
	db         *Database[User, *User]
	reads      *ristretto.Cache[string, Entry[User]]
	logger     *zerolog.Logger
	stopSignal chan struct{}
	stopWait   *sync.WaitGroup
}

// Open initializes the store at path, with a read cache bounded to
// readCacheBytes of serialized records.
func Open(path string, readCacheBytes int64, logger *zerolog.Logger) (*Users, error) {
	dbLogger := logger.With().Str("component", "database").Logger()
	if dbLogger.GetLevel() < zerolog.WarnLevel {
		dbLogger = dbLogger.Level(zerolog.WarnLevel)
	}

	db, err := NewDatabase[User](path, &dbLogger)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize user database: %w", err)
	}

	reads, err := ristretto.NewCache(&ristretto.Config[string, Entry[User]]{
		// Counters track access frequency per entry, sized for ten times the
		// entries an average record size would allow.
		NumCounters: max(readCacheBytes/64, 1024),
		MaxCost:     readCacheBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to initialize the read cache: %w", err)
	}

	users := Users{db, reads, logger, make(chan struct{}), &sync.WaitGroup{}}
	go users.manage()
	return &users, nil
}

func (u *Users) Close() error {
	if u.stopSignal == nil {
		// Already stopped
		return nil
	}

	close(u.stopSignal)
	u.stopWait.Wait()
	u.reads.Close()
	err := u.db.Close()
	u.stopSignal = nil
	return err
}

// Get returns the entry for one user id. The returned entry is a private
// copy, callers may mutate it before handing it back to Save.
func (u *Users) Get(id string) (*Entry[User], error) {
	if entry, ok := u.reads.Get(id); ok {
		return &entry, nil
	}

	entry, err := u.db.Get(id)
	if err != nil {
		return nil, err
	}

	u.reads.Set(id, *entry, int64(entry.Value.Msgsize()))
	return entry, nil
}

// Create allocates an id and stores the user. Email uniqueness is checked
// with a scan, the store is not expected to hold enough accounts for an
// index to pay off.
func (u *Users) Create(email, name, passwordHash, role string) (*Entry[User], error) {
	if _, err := u.FindByEmail(email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, ErrKeyNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	user := User{
		ID:           xid.New().String(),
		Email:        email,
		Name:         name,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := u.db.New(user.ID, user); err != nil {
		return nil, err
	}
	return u.db.Get(user.ID)
}

// Save writes back an entry obtained from Get, stamping UpdatedAt. Returns
// ErrConflict when the record changed since the entry was read.
func (u *Users) Save(entry *Entry[User]) error {
	entry.Value.UpdatedAt = time.Now().UTC()

	if err := u.db.Save(entry.Value.ID, entry); err != nil {
		return err
	}
	u.reads.Del(entry.Value.ID)
	return nil
}

// Delete removes an entry obtained from Get, with the same conflict rules
// as Save.
func (u *Users) Delete(entry *Entry[User]) error {
	if err := u.db.Delete(entry.Value.ID, entry); err != nil {
		return err
	}
	u.reads.Del(entry.Value.ID)
	return nil
}

// List returns all users in id order. Ids are xid strings, so the order is
// stable and roughly chronological.
func (u *Users) List() ([]User, error) {
	var users []User
	err := u.db.Iterate(func(_ string, entry *Entry[User]) error {
		users = append(users, entry.Value)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}

// Search returns users whose email or name contains the query,
// case-insensitively, in id order.
func (u *Users) Search(query string) ([]User, error) {
	query = strings.ToLower(query)

	var users []User
	err := u.db.Iterate(func(_ string, entry *Entry[User]) error {
		if strings.Contains(strings.ToLower(entry.Value.Email), query) ||
			strings.Contains(strings.ToLower(entry.Value.Name), query) {
			users = append(users, entry.Value)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (u *Users) FindByEmail(email string) (*Entry[User], error) {
	var found *Entry[User]

	err := u.db.Iterate(func(_ string, entry *Entry[User]) error {
		if strings.EqualFold(entry.Value.Email, email) {
			found = entry
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, ErrKeyNotFound
	}
	return found, nil
}

// Versions projects a user list onto the fingerprint input type.
func Versions(users []User) []httpcond.ResourceVersion {
	versions := make([]httpcond.ResourceVersion, 0, len(users))
	for _, user := range users {
		versions = append(versions, user.ResourceVersion())
	}
	return versions
}

func (u *Users) manage() {
	u.stopWait.Add(1)
	defer u.stopWait.Done()
	ticker := time.NewTicker(15 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := u.db.RunGarbageCollector(); err != nil && !errors.Is(err, ErrNoRewrite) {
				u.logger.Error().
					Str("id", xid.New().String()).
					Err(err).
					Msg("an error happened trying to vacuum the database")
			}
		case <-u.stopSignal:
			return
		}
	}
}
