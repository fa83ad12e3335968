package deskmirror

import (
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"
)

var prefsBucket = []byte("preferences")

const currentPrefsKey = "current"

// PrefsStore persists the process-wide PreferenceSet, per spec.md §3/§6 —
// backed by the same embedded bbolt database as SessionStore (see
// sessionstore.go for why bbolt stands in for the spec's "JSON files"
// wording).
type PrefsStore struct {
	db *bbolt.DB
}

// NewPrefsStore opens (creating if absent) a bbolt database at path.
func NewPrefsStore(path string) (*PrefsStore, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("prefsstore: open %s: %w", path, err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(prefsBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("prefsstore: init bucket: %w", err)
	}
	return &PrefsStore{db: db}, nil
}

// Close releases the underlying database file.
func (p *PrefsStore) Close() error { return p.db.Close() }

// Load returns the persisted PreferenceSet, or the zero value if none has
// been saved yet.
func (p *PrefsStore) Load() (PreferenceSet, error) {
	var prefs PreferenceSet
	err := p.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(prefsBucket).Get([]byte(currentPrefsKey))
		if raw == nil {
			return nil
		}
		return json.Unmarshal(raw, &prefs)
	})
	if err != nil {
		return PreferenceSet{}, fmt.Errorf("prefsstore: load: %w", err)
	}
	return prefs, nil
}

// Save persists prefs, replacing whatever was stored before.
func (p *PrefsStore) Save(prefs PreferenceSet) error {
	raw, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("prefsstore: marshal: %w", err)
	}
	return p.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(prefsBucket).Put([]byte(currentPrefsKey), raw)
	})
}
