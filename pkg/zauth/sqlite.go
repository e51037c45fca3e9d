package zauth

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore persists credentials and address rules for the
// standalone authenticator daemon
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (or creates) the credential database at the
// given path
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open credential database: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS plain_users (
			username TEXT PRIMARY KEY,
			secret   TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS curve_keys (
			public_key TEXT PRIMARY KEY
		);
		CREATE TABLE IF NOT EXISTS address_rules (
			address TEXT PRIMARY KEY,
			rule    TEXT NOT NULL CHECK (rule IN ('allow', 'deny'))
		);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteStore{db: db, path: path}, nil
}

func (s *SQLiteStore) PlainSecret(username string) (string, bool, error) {
	var secret string
	err := s.db.QueryRow(`SELECT secret FROM plain_users WHERE username = ?`, username).Scan(&secret)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query plain user: %w", err)
	}
	return secret, true, nil
}

func (s *SQLiteStore) SetPlain(username, secret string) error {
	_, err := s.db.Exec(
		`INSERT INTO plain_users (username, secret) VALUES (?, ?)
		 ON CONFLICT(username) DO UPDATE SET secret = excluded.secret`,
		username, secret,
	)
	if err != nil {
		return fmt.Errorf("store plain user: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RemovePlain(username string) error {
	if _, err := s.db.Exec(`DELETE FROM plain_users WHERE username = ?`, username); err != nil {
		return fmt.Errorf("remove plain user: %w", err)
	}
	return nil
}

func (s *SQLiteStore) PlainUsernames() ([]string, error) {
	rows, err := s.db.Query(`SELECT username FROM plain_users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("list plain users: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *SQLiteStore) CurveAllowed(publicKey string) (bool, error) {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM curve_keys WHERE public_key = ?`, publicKey).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query curve key: %w", err)
	}
	return true, nil
}

func (s *SQLiteStore) AllowCurve(publicKey string) error {
	_, err := s.db.Exec(
		`INSERT INTO curve_keys (public_key) VALUES (?) ON CONFLICT DO NOTHING`, publicKey,
	)
	if err != nil {
		return fmt.Errorf("store curve key: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RemoveCurve(publicKey string) error {
	if _, err := s.db.Exec(`DELETE FROM curve_keys WHERE public_key = ?`, publicKey); err != nil {
		return fmt.Errorf("remove curve key: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CheckAddress(address string) (bool, error) {
	rules, err := s.addressRules()
	if err != nil {
		return false, err
	}

	if ruleMatches(rules["deny"], address) {
		return false, nil
	}
	if len(rules["allow"]) > 0 && !ruleMatches(rules["allow"], address) {
		return false, nil
	}
	return true, nil
}

func (s *SQLiteStore) addressRules() (map[string]map[string]bool, error) {
	rows, err := s.db.Query(`SELECT address, rule FROM address_rules`)
	if err != nil {
		return nil, fmt.Errorf("query address rules: %w", err)
	}
	defer rows.Close()

	rules := map[string]map[string]bool{
		"allow": make(map[string]bool),
		"deny":  make(map[string]bool),
	}
	for rows.Next() {
		var address, rule string
		if err := rows.Scan(&address, &rule); err != nil {
			return nil, err
		}
		rules[rule][address] = true
	}
	return rules, rows.Err()
}

func (s *SQLiteStore) Allow(addresses ...string) error {
	return s.setRule("allow", addresses)
}

func (s *SQLiteStore) Deny(addresses ...string) error {
	return s.setRule("deny", addresses)
}

func (s *SQLiteStore) setRule(rule string, addresses []string) error {
	for _, addr := range addresses {
		_, err := s.db.Exec(
			`INSERT INTO address_rules (address, rule) VALUES (?, ?)
			 ON CONFLICT(address) DO UPDATE SET rule = excluded.rule`,
			addr, rule,
		)
		if err != nil {
			return fmt.Errorf("store %s rule for %s: %w", rule, addr, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
