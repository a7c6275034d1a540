package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore はPostgreSQLのclient_stateテーブルを使用したStore実装。
// scopeごとに独立したキー空間を持ち、複数端末の状態を1つのDBで保持できる。
// スキーマはdatabase.RunMigrationsで適用する。
type PostgresStore struct {
	db    *sql.DB
	scope string
}

// NewPostgresStore はPostgresStoreを生成する。
func NewPostgresStore(db *sql.DB, scope string) *PostgresStore {
	if scope == "" {
		scope = "default"
	}
	return &PostgresStore{db: db, scope: scope}
}

// Get は指定キーの値を取得する。
func (s *PostgresStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM client_state WHERE scope = $1 AND key = $2`,
		s.scope, key,
	).Scan(&value)

	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get client state: %w", err)
	}
	return value, true, nil
}

// Set は指定キーに値をUPSERTする。
func (s *PostgresStore) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO client_state (scope, key, value, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (scope, key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		s.scope, key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to set client state: %w", err)
	}
	return nil
}

// Remove は指定キーを削除する。
func (s *PostgresStore) Remove(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM client_state WHERE scope = $1 AND key = $2`,
		s.scope, key,
	)
	if err != nil {
		return fmt.Errorf("failed to remove client state: %w", err)
	}
	return nil
}

// Keys は指定プレフィックスで始まるキーを昇順で返す。
func (s *PostgresStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM client_state
		 WHERE scope = $1 AND starts_with(key, $2)
		 ORDER BY key`,
		s.scope, prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list client state keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("failed to scan client state key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate client state keys: %w", err)
	}
	return keys, nil
}

// compile-time interface check
var _ Store = (*PostgresStore)(nil)
