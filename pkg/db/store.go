package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/coreai-dashboard/pkg/allocation"
)

const schema = `
CREATE TABLE IF NOT EXISTS portfolio_allocations (
    category_id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    allocation INTEGER NOT NULL,
    pending INTEGER,
    position INTEGER NOT NULL DEFAULT 0,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS allocation_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    snapshot TEXT NOT NULL,
    source TEXT,
    applied_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS chat_messages (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    sender TEXT NOT NULL,
    content TEXT NOT NULL,
    source TEXT,
    action TEXT DEFAULT '',
    created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS whale_transactions (
    hash TEXT PRIMARY KEY,
    from_address TEXT,
    to_address TEXT,
    value TEXT,
    value_usd REAL,
    timestamp TIMESTAMP,
    block_number INTEGER,
    tx_type TEXT,
    token_symbol TEXT,
    token_name TEXT,
    gas_used INTEGER,
    gas_price TEXT,
    source TEXT,
    is_real BOOLEAN DEFAULT FALSE,
    fetched_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_whale_time ON whale_transactions(timestamp);
CREATE INDEX IF NOT EXISTS idx_whale_usd ON whale_transactions(value_usd);
CREATE INDEX IF NOT EXISTS idx_chat_time ON chat_messages(created_at);
`

type Store struct {
	db *sql.DB
}

func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// ---- Portfolio allocations ----

// SeedCategories inserts categories that are not stored yet. Existing rows keep
// their allocation.
func (s *Store) SeedCategories(cats []allocation.Category) error {
	for i, c := range cats {
		_, err := s.db.Exec(`
			INSERT INTO portfolio_allocations (category_id, name, allocation, position)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(category_id) DO UPDATE SET name=excluded.name, position=excluded.position`,
			c.ID, c.Name, c.Allocation, i)
		if err != nil {
			return fmt.Errorf("seed %s: %w", c.ID, err)
		}
	}
	return nil
}

func (s *Store) GetCategories() ([]allocation.Category, error) {
	rows, err := s.db.Query("SELECT category_id, name, allocation FROM portfolio_allocations ORDER BY position, category_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cats []allocation.Category
	for rows.Next() {
		var c allocation.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Allocation); err != nil {
			return nil, err
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

// GetPending returns the pending allocation set. ok is false when nothing is pending.
// Categories without a pending value report their current allocation.
func (s *Store) GetPending() (cats []allocation.Category, ok bool, err error) {
	rows, err := s.db.Query("SELECT category_id, name, allocation, pending FROM portfolio_allocations ORDER BY position, category_id")
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	for rows.Next() {
		var c allocation.Category
		var pending sql.NullInt64
		if err := rows.Scan(&c.ID, &c.Name, &c.Allocation, &pending); err != nil {
			return nil, false, err
		}
		if pending.Valid {
			ok = true
			c.Allocation = int(pending.Int64)
		}
		cats = append(cats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return cats, true, nil
}

func (s *Store) SetPending(cats []allocation.Category) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("UPDATE portfolio_allocations SET pending = NULL"); err != nil {
		return err
	}
	for _, c := range cats {
		res, err := tx.Exec("UPDATE portfolio_allocations SET pending=? WHERE category_id=?", c.Allocation, c.ID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: %s", allocation.ErrUnknownCategory, c.ID)
		}
	}
	return tx.Commit()
}

func (s *Store) ClearPending() error {
	_, err := s.db.Exec("UPDATE portfolio_allocations SET pending = NULL")
	return err
}

// CommitPending promotes pending values to current and records the result in
// allocation_history.
func (s *Store) CommitPending(source string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		UPDATE portfolio_allocations
		SET allocation = pending, pending = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE pending IS NOT NULL`); err != nil {
		return err
	}

	rows, err := tx.Query("SELECT category_id, name, allocation FROM portfolio_allocations ORDER BY position, category_id")
	if err != nil {
		return err
	}
	var cats []allocation.Category
	for rows.Next() {
		var c allocation.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Allocation); err != nil {
			rows.Close()
			return err
		}
		cats = append(cats, c)
	}
	rows.Close()

	snap, _ := json.Marshal(cats)
	if _, err := tx.Exec("INSERT INTO allocation_history (snapshot, source, applied_at) VALUES (?, ?, ?)",
		string(snap), source, time.Now().UTC()); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) GetAllocationHistory(limit int) ([]AllocationSnapshot, error) {
	rows, err := s.db.Query("SELECT id, snapshot, COALESCE(source,''), applied_at FROM allocation_history ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AllocationSnapshot
	for rows.Next() {
		var snap AllocationSnapshot
		var raw string
		if err := rows.Scan(&snap.ID, &raw, &snap.Source, &snap.AppliedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &snap.Categories); err != nil {
			continue
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// ---- Chat transcript ----

func (s *Store) InsertChatMessage(m ChatMessage) error {
	_, err := s.db.Exec(`
		INSERT INTO chat_messages (id, sender, content, source, action, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.Sender, m.Content, m.Source, m.ActionJSON, m.CreatedAt.UTC())
	return err
}

// GetChatMessages returns the newest limit messages in chronological order.
func (s *Store) GetChatMessages(limit int) ([]ChatMessage, error) {
	rows, err := s.db.Query(`
		SELECT id, sender, content, COALESCE(source,''), COALESCE(action,''), created_at
		FROM chat_messages ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []ChatMessage
	for rows.Next() {
		var m ChatMessage
		if err := rows.Scan(&m.ID, &m.Sender, &m.Content, &m.Source, &m.ActionJSON, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *Store) GetChatMessage(id string) (*ChatMessage, error) {
	var m ChatMessage
	err := s.db.QueryRow(`
		SELECT id, sender, content, COALESCE(source,''), COALESCE(action,''), created_at
		FROM chat_messages WHERE id=?`, id).
		Scan(&m.ID, &m.Sender, &m.Content, &m.Source, &m.ActionJSON, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) ClearChat() error {
	_, err := s.db.Exec("DELETE FROM chat_messages")
	return err
}

// ---- Whale transactions ----

func (s *Store) UpsertWhaleTransactions(txs []WhaleTransaction) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO whale_transactions
			(hash, from_address, to_address, value, value_usd, timestamp, block_number, tx_type,
			 token_symbol, token_name, gas_used, gas_price, source, is_real, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(hash) DO UPDATE SET
			value_usd = excluded.value_usd,
			source = excluded.source,
			is_real = excluded.is_real,
			fetched_at = CURRENT_TIMESTAMP`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	n := 0
	for _, w := range txs {
		if w.Hash == "" {
			continue
		}
		if _, err := stmt.Exec(w.Hash, w.From, w.To, w.Value, w.ValueUSD, w.Timestamp.UTC(), w.BlockNumber, w.Type,
			w.TokenSymbol, w.TokenName, int64(w.GasUsed), w.GasPrice, w.Source, w.Real); err != nil {
			return n, fmt.Errorf("upsert %s: %w", w.Hash, err)
		}
		n++
	}
	return n, tx.Commit()
}

// GetWhaleTransactions returns cached transactions newer than since, newest first.
func (s *Store) GetWhaleTransactions(since time.Time, limit int) ([]WhaleTransaction, error) {
	rows, err := s.db.Query(`
		SELECT hash, COALESCE(from_address,''), COALESCE(to_address,''), COALESCE(value,'0'), COALESCE(value_usd,0),
		       timestamp, COALESCE(block_number,0), COALESCE(tx_type,''), COALESCE(token_symbol,''), COALESCE(token_name,''),
		       COALESCE(gas_used,0), COALESCE(gas_price,''), COALESCE(source,''), is_real
		FROM whale_transactions WHERE timestamp >= ? ORDER BY timestamp DESC LIMIT ?`, since.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []WhaleTransaction
	for rows.Next() {
		var w WhaleTransaction
		var gasUsed int64
		if err := rows.Scan(&w.Hash, &w.From, &w.To, &w.Value, &w.ValueUSD, &w.Timestamp, &w.BlockNumber, &w.Type,
			&w.TokenSymbol, &w.TokenName, &gasUsed, &w.GasPrice, &w.Source, &w.Real); err != nil {
			return nil, err
		}
		w.GasUsed = uint64(gasUsed)
		txs = append(txs, w)
	}
	return txs, rows.Err()
}

// GetWhaleTransaction returns nil, nil when the hash is not cached.
func (s *Store) GetWhaleTransaction(hash string) (*WhaleTransaction, error) {
	var w WhaleTransaction
	var gasUsed int64
	err := s.db.QueryRow(`
		SELECT hash, COALESCE(from_address,''), COALESCE(to_address,''), COALESCE(value,'0'), COALESCE(value_usd,0),
		       timestamp, COALESCE(block_number,0), COALESCE(tx_type,''), COALESCE(token_symbol,''), COALESCE(token_name,''),
		       COALESCE(gas_used,0), COALESCE(gas_price,''), COALESCE(source,''), is_real
		FROM whale_transactions WHERE hash=?`, hash).
		Scan(&w.Hash, &w.From, &w.To, &w.Value, &w.ValueUSD, &w.Timestamp, &w.BlockNumber, &w.Type,
			&w.TokenSymbol, &w.TokenName, &gasUsed, &w.GasPrice, &w.Source, &w.Real)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	w.GasUsed = uint64(gasUsed)
	return &w, nil
}

func (s *Store) PruneWhaleTransactions(before time.Time) (int64, error) {
	res, err := s.db.Exec("DELETE FROM whale_transactions WHERE timestamp < ?", before.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ---- Stats ----

func (s *Store) GetStats() (map[string]int64, error) {
	stats := map[string]int64{}
	tables := []string{"portfolio_allocations", "allocation_history", "chat_messages", "whale_transactions"}

	for _, t := range tables {
		var count int64
		if err := s.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", t)).Scan(&count); err == nil {
			stats[t] = count
		}
	}

	var pending int64
	s.db.QueryRow("SELECT COUNT(*) FROM portfolio_allocations WHERE pending IS NOT NULL").Scan(&pending)
	stats["pending_categories"] = pending

	var mega int64
	s.db.QueryRow("SELECT COUNT(*) FROM whale_transactions WHERE value_usd >= 1000000").Scan(&mega)
	stats["mega_whales"] = mega

	return stats, nil
}
