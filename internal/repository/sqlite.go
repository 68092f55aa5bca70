package repository

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/dastanaron/browsershell/internal/models"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteRepository implements Repository using SQLite
type SQLiteRepository struct {
	db        *sql.DB
	bookmarks *bookmarkRepo
	folders   *folderRepo
	favorites *favoriteRepo
	settings  *settingsRepo

	listenersMu sync.RWMutex
	listeners   []func()
}

// NewSQLiteRepository creates a new SQLite repository
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	// One connection keeps in-memory databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	repo := &SQLiteRepository{
		db: db,
	}
	repo.bookmarks = &bookmarkRepo{db: db, notify: repo.notify}
	repo.folders = &folderRepo{db: db, notify: repo.notify}
	repo.favorites = &favoriteRepo{db: db, notify: repo.notify}
	repo.settings = &settingsRepo{db: db}

	return repo, nil
}

func initSchema(db *sql.DB) error {
	createTables := `
	CREATE TABLE IF NOT EXISTS folders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		parent_id INTEGER,
		FOREIGN KEY(parent_id) REFERENCES folders(id)
	);

	CREATE TABLE IF NOT EXISTS bookmarks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		url TEXT NOT NULL,
		description TEXT,
		icon TEXT,
		folder_id INTEGER,
		FOREIGN KEY(folder_id) REFERENCES folders(id)
	);

	CREATE TABLE IF NOT EXISTS favorites (
		bookmark_id INTEGER PRIMARY KEY,
		position INTEGER NOT NULL,
		FOREIGN KEY(bookmark_id) REFERENCES bookmarks(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_bookmarks_folder ON bookmarks(folder_id);
	CREATE INDEX IF NOT EXISTS idx_bookmarks_url ON bookmarks(url);
	CREATE INDEX IF NOT EXISTS idx_folders_parent ON folders(parent_id);
	`
	if _, err := db.Exec(createTables); err != nil {
		return err
	}

	// Databases created before icons were stored lack the column and
	// SQLite has no ADD COLUMN IF NOT EXISTS.
	return addColumnIfMissing(db, "bookmarks", "icon", "TEXT")
}

func addColumnIfMissing(db *sql.DB, table, column, typ string) error {
	var count int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column,
	).Scan(&count)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	_, err = db.Exec(fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, table, column, typ))
	return err
}

// Bookmarks returns the bookmark repository
func (r *SQLiteRepository) Bookmarks() BookmarkRepository {
	return r.bookmarks
}

// Folders returns the folder repository
func (r *SQLiteRepository) Folders() FolderRepository {
	return r.folders
}

// Favorites returns the favorites repository
func (r *SQLiteRepository) Favorites() FavoriteRepository {
	return r.favorites
}

// Settings returns the key/value settings repository
func (r *SQLiteRepository) Settings() SettingsRepository {
	return r.settings
}

// OnChange implements Repository.
func (r *SQLiteRepository) OnChange(fn func()) {
	r.listenersMu.Lock()
	defer r.listenersMu.Unlock()

	r.listeners = append(r.listeners, fn)
}

func (r *SQLiteRepository) notify() {
	r.listenersMu.RLock()
	defer r.listenersMu.RUnlock()

	for _, fn := range r.listeners {
		fn()
	}
}

// Close closes the database connection
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

const bookmarkColumns = `
	b.id, b.title, b.url, b.description, b.icon, b.folder_id, f.name,
	EXISTS(SELECT 1 FROM favorites AS fav WHERE fav.bookmark_id = b.id)
`

const bookmarkFrom = `
	FROM bookmarks AS b
	LEFT JOIN folders AS f ON f.id = b.folder_id
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBookmark(s rowScanner) (models.Bookmark, error) {
	var (
		b    models.Bookmark
		desc sql.NullString
	)
	err := s.Scan(&b.ID, &b.Title, &b.URL, &desc, &b.Icon, &b.FolderID, &b.FolderName, &b.IsFavorite)
	b.Description = desc.String
	return b, err
}

// bookmarkRepo implements BookmarkRepository
type bookmarkRepo struct {
	db     *sql.DB
	notify func()
}

func (r *bookmarkRepo) List() ([]models.Bookmark, error) {
	rows, err := r.db.Query(`SELECT ` + bookmarkColumns + bookmarkFrom + `
		WHERE b.url <> ''
		ORDER BY b.title, b.id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookmarks []models.Bookmark
	for rows.Next() {
		b, err := scanBookmark(rows)
		if err != nil {
			return nil, err
		}
		bookmarks = append(bookmarks, b)
	}
	return bookmarks, rows.Err()
}

func (r *bookmarkRepo) GetByID(id int) (*models.Bookmark, error) {
	return r.getOne(`WHERE b.id = ?`, id)
}

func (r *bookmarkRepo) GetByURL(url string) (*models.Bookmark, error) {
	return r.getOne(`WHERE b.url = ? ORDER BY b.id LIMIT 1`, url)
}

func (r *bookmarkRepo) getOne(where string, arg any) (*models.Bookmark, error) {
	row := r.db.QueryRow(`SELECT `+bookmarkColumns+bookmarkFrom+where, arg)
	b, err := scanBookmark(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *bookmarkRepo) Create(b *models.Bookmark) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	id, err := insertBookmark(tx, b)
	if err != nil {
		return err
	}
	if b.IsFavorite {
		if err := appendFavorite(tx, id); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	b.ID = id
	r.notify()
	return nil
}

func insertBookmark(db execQuerier, b *models.Bookmark) (int, error) {
	res, err := db.Exec(
		`INSERT INTO bookmarks(title, url, description, icon, folder_id) VALUES (?, ?, ?, ?, ?)`,
		b.Title, b.URL, b.Description, b.Icon, b.FolderID,
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return int(id), nil
}

func (r *bookmarkRepo) Update(b *models.Bookmark) error {
	if err := updateBookmark(r.db, b); err != nil {
		return err
	}

	r.notify()
	return nil
}

func updateBookmark(db execQuerier, b *models.Bookmark) error {
	res, err := db.Exec(
		`UPDATE bookmarks SET title = ?, url = ?, description = ?, icon = ?, folder_id = ? WHERE id = ?`,
		b.Title, b.URL, b.Description, b.Icon, b.FolderID, b.ID,
	)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (r *bookmarkRepo) Upsert(b *models.Bookmark) (bool, error) {
	existing, err := r.GetByURL(b.URL)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return true, r.Create(b)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	b.ID = existing.ID
	if err := updateBookmark(tx, b); err != nil {
		return false, err
	}
	if b.IsFavorite && !existing.IsFavorite {
		if err := appendFavorite(tx, b.ID); err != nil {
			return false, err
		}
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}

	r.notify()
	return false, nil
}

func (r *bookmarkRepo) Delete(id int) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var pos int
	err = tx.QueryRow(`SELECT position FROM favorites WHERE bookmark_id = ?`, id).Scan(&pos)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return err
	default:
		if _, err := tx.Exec(`DELETE FROM favorites WHERE bookmark_id = ?`, id); err != nil {
			return err
		}
		if _, err := tx.Exec(`UPDATE favorites SET position = position - 1 WHERE position > ?`, pos); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(`DELETE FROM bookmarks WHERE id = ?`, id); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	r.notify()
	return nil
}

func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// folderRepo implements FolderRepository
type folderRepo struct {
	db     *sql.DB
	notify func()
}

func (r *folderRepo) List() ([]models.Folder, error) {
	rows, err := r.db.Query(`SELECT id, name, parent_id FROM folders ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var folders []models.Folder
	for rows.Next() {
		var f models.Folder
		if err := rows.Scan(&f.ID, &f.Name, &f.ParentID); err != nil {
			return nil, err
		}
		folders = append(folders, f)
	}
	return folders, rows.Err()
}

func (r *folderRepo) GetByID(id int) (*models.Folder, error) {
	var f models.Folder
	err := r.db.QueryRow(`SELECT id, name, parent_id FROM folders WHERE id = ?`, id).
		Scan(&f.ID, &f.Name, &f.ParentID)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *folderRepo) Create(name string, parentID *int) (*models.Folder, error) {
	res, err := r.db.Exec(`INSERT INTO folders(name, parent_id) VALUES (?, ?)`, name, parentID)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	r.notify()
	return &models.Folder{ID: int(id), Name: name, ParentID: parentID}, nil
}

func (r *folderRepo) Update(f *models.Folder) error {
	res, err := r.db.Exec(`UPDATE folders SET name = ?, parent_id = ? WHERE id = ?`,
		f.Name, f.ParentID, f.ID)
	if err != nil {
		return err
	}
	if err := expectAffected(res); err != nil {
		return err
	}

	r.notify()
	return nil
}

func (r *folderRepo) Delete(id int) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const subtree = `
		WITH RECURSIVE tree(id) AS (
			SELECT id FROM folders WHERE id = ?
			UNION ALL
			SELECT f.id FROM folders AS f JOIN tree ON f.parent_id = tree.id
		)`

	stmts := []string{
		subtree + ` DELETE FROM favorites WHERE bookmark_id IN (SELECT id FROM bookmarks WHERE folder_id IN (SELECT id FROM tree))`,
		subtree + ` DELETE FROM bookmarks WHERE folder_id IN (SELECT id FROM tree)`,
		subtree + ` DELETE FROM folders WHERE id IN (SELECT id FROM tree)`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt, id); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	r.notify()
	return nil
}

func (r *folderRepo) Upsert(name string, parentID *int) (*models.Folder, error) {
	var id int
	err := r.db.QueryRow(
		`SELECT id FROM folders WHERE name = ? AND parent_id IS ?`,
		name, parentID,
	).Scan(&id)

	if err == nil {
		return &models.Folder{ID: id, Name: name, ParentID: parentID}, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	return r.Create(name, parentID)
}

func (r *folderRepo) GetFolderContent(folderID *int) ([]models.Item, error) {
	var items []models.Item

	folderRows, err := r.db.Query(
		`SELECT id, name, parent_id FROM folders WHERE parent_id IS ? ORDER BY name`, folderID,
	)
	if err != nil {
		return nil, err
	}
	for folderRows.Next() {
		it := models.Item{Type: models.ItemTypeFolder}
		if err := folderRows.Scan(&it.ID, &it.Name, &it.ParentID); err != nil {
			folderRows.Close()
			return nil, err
		}
		items = append(items, it)
	}
	folderRows.Close()
	if err := folderRows.Err(); err != nil {
		return nil, err
	}

	rows, err := r.db.Query(`SELECT `+bookmarkColumns+bookmarkFrom+`
		WHERE b.folder_id IS ? AND b.url <> ''
		ORDER BY b.title, b.id
	`, folderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		b, err := scanBookmark(rows)
		if err != nil {
			return nil, err
		}
		url, desc := b.URL, b.Description
		items = append(items, models.Item{
			Type:        models.ItemTypeBookmark,
			ID:          b.ID,
			Name:        b.Title,
			URL:         &url,
			Description: &desc,
			Icon:        b.Icon,
			ParentID:    b.FolderID,
			IsFavorite:  b.IsFavorite,
		})
	}
	return items, rows.Err()
}
