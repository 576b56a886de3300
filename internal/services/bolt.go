package services

import (
	"fmt"

	bolt "go.etcd.io/bbolt"
)

// Theme is the persisted UI color scheme preference.
type Theme string

const (
	// ThemeLight is the light color scheme.
	ThemeLight Theme = "light"
	// ThemeDark is the dark color scheme, used whenever no valid preference
	// is stored.
	ThemeDark Theme = "dark"
)

// Prefs persists client-local preferences in a BoltDB file, unrelated to any
// chat state. The database file is created with 0600 permissions if it
// doesn't exist.
type Prefs struct {
	db *bolt.DB
}

var (
	prefsBucket = []byte("preferences")
	themeKey    = []byte("theme")
)

// NewPrefs opens the preference database at the given path, initializing the
// required bucket.
func NewPrefs(path string) (Prefs, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return Prefs{}, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(prefsBucket)
		return err
	})

	return Prefs{db: db}, err
}

// Theme returns the stored theme preference. Missing or unrecognized values
// fall back to the dark theme.
func (p Prefs) Theme() Theme {
	theme := ThemeDark
	_ = p.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(prefsBucket)
		if b == nil {
			return nil
		}
		switch Theme(b.Get(themeKey)) {
		case ThemeLight:
			theme = ThemeLight
		case ThemeDark:
			theme = ThemeDark
		}
		return nil
	})
	return theme
}

// SetTheme stores the theme preference. Values other than light or dark are
// rejected.
func (p Prefs) SetTheme(theme Theme) error {
	if theme != ThemeLight && theme != ThemeDark {
		return fmt.Errorf("unknown theme: %s", theme)
	}

	return p.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(prefsBucket)
		if b == nil {
			return nil
		}
		return b.Put(themeKey, []byte(theme))
	})
}

// ToggleTheme flips between light and dark and returns the new value.
func (p Prefs) ToggleTheme() (Theme, error) {
	theme := ThemeDark
	if p.Theme() == ThemeDark {
		theme = ThemeLight
	}
	return theme, p.SetTheme(theme)
}

// Close releases the underlying database file.
func (p Prefs) Close() error {
	return p.db.Close()
}
