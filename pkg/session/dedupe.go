package session

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"time"
)

// HashAlgo selects the content-hash algorithm for duplicate detection.
type HashAlgo string

const (
	HashMD5    HashAlgo = "md5"
	HashSHA1   HashAlgo = "sha1"
	HashSHA256 HashAlgo = "sha256"
)

// ParseHashAlgo validates an operator-supplied algorithm name.
func ParseHashAlgo(s string) (HashAlgo, error) {
	switch HashAlgo(s) {
	case HashMD5, HashSHA1, HashSHA256:
		return HashAlgo(s), nil
	default:
		return "", fmt.Errorf("session: unknown hash algorithm %q (want md5, sha1, or sha256)", s)
	}
}

// newHash returns a fresh hasher. md5/sha1 are duplicate fingerprints here,
// not cryptographic protection.
func (a HashAlgo) newHash() hash.Hash {
	switch a {
	case HashSHA1:
		return sha1.New() // #nosec G401
	case HashSHA256:
		return sha256.New()
	default:
		return md5.New() // #nosec G401
	}
}

// HashFile streams path through the algorithm and returns the lowercase hex
// digest.
func HashFile(path string, algo HashAlgo) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	defer f.Close()

	h := algo.newHash()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// DedupStore is a durable content-hash set. Unlike the session store it has
// no text alternative: hash claims must be atomic across workers.
type DedupStore struct {
	db   *sql.DB
	path string
}

// OpenDedupe opens (creating if needed) a dedup database at path.
func OpenDedupe(ctx context.Context, path string) (*DedupStore, error) {
	dsn, err := buildDSN(path)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open dedup store: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping dedup store: %w", err)
	}
	if err := configureSQLite(ctx, db, dsn); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &DedupStore{db: db, path: path}, nil
}

// Init creates the dedup schema. Idempotent.
func (d *DedupStore) Init(ctx context.Context) error {
	_, err := d.db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS content_hashes (
			hash TEXT PRIMARY KEY,
			first_path TEXT NOT NULL,
			inserted_at TEXT NOT NULL
		);`)
	if err != nil {
		return fmt.Errorf("create dedup schema: %w", err)
	}
	return nil
}

// Contains reports whether the hash has been seen.
func (d *DedupStore) Contains(ctx context.Context, hash string) (bool, error) {
	var one int
	err := d.db.QueryRowContext(ctx,
		`SELECT 1 FROM content_hashes WHERE hash = ?`, hash).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("dedup contains: %w", err)
	}
	return true, nil
}

// Claim atomically records the first sighting of a content hash. A false
// return means a file with identical content was already emitted; the
// caller suppresses the record.
func (d *DedupStore) Claim(ctx context.Context, hash, firstPath string) (bool, error) {
	res, err := d.db.ExecContext(ctx,
		`INSERT INTO content_hashes (hash, first_path, inserted_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(hash) DO NOTHING`,
		hash, firstPath, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return false, fmt.Errorf("dedup claim: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("dedup claim rows: %w", err)
	}
	return n > 0, nil
}

// FirstPath returns the path recorded at the hash's first sighting, or ""
// when the hash is unknown.
func (d *DedupStore) FirstPath(ctx context.Context, hash string) (string, error) {
	var p string
	err := d.db.QueryRowContext(ctx,
		`SELECT first_path FROM content_hashes WHERE hash = ?`, hash).Scan(&p)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("dedup first path: %w", err)
	}
	return p, nil
}

// Count returns the number of recorded hashes.
func (d *DedupStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM content_hashes`).Scan(&count); err != nil {
		return 0, fmt.Errorf("dedup count: %w", err)
	}
	return count, nil
}

// Close releases the database handle.
func (d *DedupStore) Close() error {
	return d.db.Close()
}
