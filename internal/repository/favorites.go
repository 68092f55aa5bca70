package repository

import (
	"database/sql"
	"strings"

	"github.com/dastanaron/browsershell/internal/models"
)

type execQuerier interface {
	Exec(query string, args ...any) (sql.Result, error)
	QueryRow(query string, args ...any) *sql.Row
}

func appendFavorite(db execQuerier, bookmarkID int) error {
	_, err := db.Exec(`
		INSERT OR IGNORE INTO favorites(bookmark_id, position)
		SELECT ?, COALESCE(MAX(position) + 1, 0) FROM favorites
	`, bookmarkID)
	return err
}

// favoriteRepo implements FavoriteRepository
type favoriteRepo struct {
	db     *sql.DB
	notify func()
}

func (r *favoriteRepo) List() ([]models.Favorite, error) {
	rows, err := r.db.Query(`SELECT ` + bookmarkColumns + `, fv.position` + bookmarkFrom + `
		JOIN favorites AS fv ON fv.bookmark_id = b.id
		ORDER BY fv.position
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var favorites []models.Favorite
	for rows.Next() {
		var (
			fav  models.Favorite
			desc sql.NullString
		)
		b := &fav.Bookmark
		err := rows.Scan(&b.ID, &b.Title, &b.URL, &desc, &b.Icon, &b.FolderID, &b.FolderName,
			&b.IsFavorite, &fav.Position)
		if err != nil {
			return nil, err
		}
		b.Description = desc.String
		favorites = append(favorites, fav)
	}
	return favorites, rows.Err()
}

func (r *favoriteRepo) Add(bookmarkID int) error {
	var exists bool
	err := r.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM bookmarks WHERE id = ?)`, bookmarkID).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}

	if err := appendFavorite(r.db, bookmarkID); err != nil {
		return err
	}

	r.notify()
	return nil
}

func (r *favoriteRepo) Remove(bookmarkID int) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var pos int
	err = tx.QueryRow(`SELECT position FROM favorites WHERE bookmark_id = ?`, bookmarkID).Scan(&pos)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM favorites WHERE bookmark_id = ?`, bookmarkID); err != nil {
		return err
	}
	if _, err := tx.Exec(`UPDATE favorites SET position = position - 1 WHERE position > ?`, pos); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	r.notify()
	return nil
}

func (r *favoriteRepo) Move(bookmarkID, to int) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var from, count int
	err = tx.QueryRow(`SELECT position FROM favorites WHERE bookmark_id = ?`, bookmarkID).Scan(&from)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if err := tx.QueryRow(`SELECT COUNT(*) FROM favorites`).Scan(&count); err != nil {
		return err
	}

	to = max(0, min(to, count-1))
	if to == from {
		return nil
	}

	if to < from {
		_, err = tx.Exec(`UPDATE favorites SET position = position + 1 WHERE position >= ? AND position < ?`, to, from)
	} else {
		_, err = tx.Exec(`UPDATE favorites SET position = position - 1 WHERE position > ? AND position <= ?`, from, to)
	}
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`UPDATE favorites SET position = ? WHERE bookmark_id = ?`, to, bookmarkID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	r.notify()
	return nil
}

// BookmarksAndFavorites implements Repository. It is the snapshot the ranked
// search runs over.
func (r *SQLiteRepository) BookmarksAndFavorites() ([]models.Bookmark, error) {
	favorites, err := r.favorites.List()
	if err != nil {
		return nil, err
	}
	bookmarks, err := r.bookmarks.List()
	if err != nil {
		return nil, err
	}

	all := make([]models.Bookmark, 0, len(favorites)+len(bookmarks))
	for _, f := range favorites {
		all = append(all, f.Bookmark)
	}
	for _, b := range bookmarks {
		if !b.IsFavorite {
			all = append(all, b)
		}
	}
	return all, nil
}

// settingsRepo implements SettingsRepository
type settingsRepo struct {
	db *sql.DB
}

func (r *settingsRepo) Get(key string) (string, bool, error) {
	var value string
	err := r.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (r *settingsRepo) Set(key, value string) error {
	_, err := r.db.Exec(`
		INSERT INTO settings(key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

func (r *settingsRepo) Delete(key string) error {
	_, err := r.db.Exec(`DELETE FROM settings WHERE key = ?`, key)
	return err
}

func (r *settingsRepo) Keys(prefix string) ([]string, error) {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix)
	rows, err := r.db.Query(`SELECT key FROM settings WHERE key LIKE ? ESCAPE '\' ORDER BY key`, escaped+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
