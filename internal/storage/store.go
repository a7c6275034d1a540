// Package storage はクライアント状態を永続化するキーバリューストアを提供する。
// ビジネスロジックはStoreインターフェース経由でのみアクセスし、
// 実装（メモリ、ファイル、PostgreSQL、Redis）は起動時に注入する。
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Store は文字列キーと文字列値の永続ストアのインターフェース。
// 書き込みはキー単位で後勝ちとし、バージョン管理やトランザクションは持たない。
type Store interface {
	// Get は指定キーの値を取得する。存在しない場合はok=falseを返す。
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Set は指定キーに値を書き込む。
	Set(ctx context.Context, key, value string) error
	// Remove は指定キーを削除する。存在しない場合もエラーにしない。
	Remove(ctx context.Context, key string) error
	// Keys は指定プレフィックスで始まるキーを返す。
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// 名前空間。各フローは互いに素なキー集合を所有する。
const (
	NamespaceSession    = "session"
	NamespaceSignup     = "signup"
	NamespaceNavigation = "navigation"
	NamespaceBooking    = "booking"
)

// AllNamespaces はログアウト時に消去する全名前空間。
var AllNamespaces = []string{
	NamespaceSession,
	NamespaceSignup,
	NamespaceNavigation,
	NamespaceBooking,
}

const namespaceSeparator = ":"

// Namespace はStoreをキープレフィックスで区切った論理的な領域。
type Namespace struct {
	store  Store
	prefix string
}

// NewNamespace は指定名の名前空間を生成する。
func NewNamespace(store Store, name string) *Namespace {
	return &Namespace{store: store, prefix: name + namespaceSeparator}
}

// Name は名前空間名を返す。
func (n *Namespace) Name() string {
	return n.prefix[:len(n.prefix)-len(namespaceSeparator)]
}

// Key は名前空間内のキーをストア上の完全なキーに変換する。
func (n *Namespace) Key(key string) string {
	return n.prefix + key
}

// GetString は文字列値を取得する。
func (n *Namespace) GetString(ctx context.Context, key string) (string, bool, error) {
	v, ok, err := n.store.Get(ctx, n.Key(key))
	if err != nil {
		return "", false, fmt.Errorf("failed to get %s: %w", n.Key(key), err)
	}
	return v, ok, nil
}

// SetString は文字列値を書き込む。
func (n *Namespace) SetString(ctx context.Context, key, value string) error {
	if err := n.store.Set(ctx, n.Key(key), value); err != nil {
		return fmt.Errorf("failed to set %s: %w", n.Key(key), err)
	}
	return nil
}

// GetJSON はJSON値を取得してdestにデコードする。
// 値が存在しない場合はok=falseを返し、destは変更しない。
func (n *Namespace) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	v, ok, err := n.GetString(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(v), dest); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", n.Key(key), err)
	}
	return true, nil
}

// SetJSON は値をJSONにエンコードして書き込む。
func (n *Namespace) SetJSON(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", n.Key(key), err)
	}
	return n.SetString(ctx, key, string(data))
}

// GetBool は真偽値を取得する。存在しない場合やパースできない場合はfalseを返す。
func (n *Namespace) GetBool(ctx context.Context, key string) (bool, error) {
	v, ok, err := n.GetString(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, nil
	}
	return b, nil
}

// SetBool は真偽値を書き込む。
func (n *Namespace) SetBool(ctx context.Context, key string, value bool) error {
	return n.SetString(ctx, key, strconv.FormatBool(value))
}

// Remove は名前空間内のキーを削除する。
func (n *Namespace) Remove(ctx context.Context, key string) error {
	if err := n.store.Remove(ctx, n.Key(key)); err != nil {
		return fmt.Errorf("failed to remove %s: %w", n.Key(key), err)
	}
	return nil
}

// Clear は名前空間内の全キーを削除する。
func (n *Namespace) Clear(ctx context.Context) error {
	keys, err := n.store.Keys(ctx, n.prefix)
	if err != nil {
		return fmt.Errorf("failed to list keys in %s: %w", n.Name(), err)
	}
	var errs []error
	for _, k := range keys {
		if err := n.store.Remove(ctx, k); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ClearAll は全名前空間を消去する。ログアウト時に使用する。
func ClearAll(ctx context.Context, store Store) error {
	var errs []error
	for _, name := range AllNamespaces {
		if err := NewNamespace(store, name).Clear(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
