package storage

import (
	"context"
	"reflect"
	"testing"
)

// testStoreContract は全Store実装が満たすべき振る舞いを検証する。
func testStoreContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("存在しないキーはok=false", func(t *testing.T) {
		v, ok, err := s.Get(ctx, "missing")
		if err != nil {
			t.Fatalf("Get returned error: %v", err)
		}
		if ok || v != "" {
			t.Errorf("Get(missing) = (%q, %v), want (\"\", false)", v, ok)
		}
	})

	t.Run("書き込みは後勝ち", func(t *testing.T) {
		if err := s.Set(ctx, "session:accessToken", "first"); err != nil {
			t.Fatalf("Set returned error: %v", err)
		}
		if err := s.Set(ctx, "session:accessToken", "second"); err != nil {
			t.Fatalf("Set returned error: %v", err)
		}
		v, ok, err := s.Get(ctx, "session:accessToken")
		if err != nil || !ok {
			t.Fatalf("Get = (%q, %v, %v)", v, ok, err)
		}
		if v != "second" {
			t.Errorf("Get = %q, want %q", v, "second")
		}
	})

	t.Run("Keysはプレフィックスで絞り込み昇順で返す", func(t *testing.T) {
		for _, k := range []string{"signup:step", "signup:data", "booking:context"} {
			if err := s.Set(ctx, k, "x"); err != nil {
				t.Fatalf("Set(%s) returned error: %v", k, err)
			}
		}
		keys, err := s.Keys(ctx, "signup:")
		if err != nil {
			t.Fatalf("Keys returned error: %v", err)
		}
		want := []string{"signup:data", "signup:step"}
		if !reflect.DeepEqual(keys, want) {
			t.Errorf("Keys = %v, want %v", keys, want)
		}
	})

	t.Run("Removeは存在しないキーでもエラーにしない", func(t *testing.T) {
		if err := s.Remove(ctx, "signup:step"); err != nil {
			t.Fatalf("Remove returned error: %v", err)
		}
		if err := s.Remove(ctx, "signup:step"); err != nil {
			t.Fatalf("second Remove returned error: %v", err)
		}
		if _, ok, _ := s.Get(ctx, "signup:step"); ok {
			t.Error("key should be removed")
		}
	})

	t.Run("globの特殊文字を含むプレフィックス", func(t *testing.T) {
		if err := s.Set(ctx, "odd*[x]:k", "v"); err != nil {
			t.Fatalf("Set returned error: %v", err)
		}
		if err := s.Set(ctx, "oddly:k", "v"); err != nil {
			t.Fatalf("Set returned error: %v", err)
		}
		keys, err := s.Keys(ctx, "odd*[x]:")
		if err != nil {
			t.Fatalf("Keys returned error: %v", err)
		}
		if !reflect.DeepEqual(keys, []string{"odd*[x]:k"}) {
			t.Errorf("Keys = %v, want [odd*[x]:k]", keys)
		}
	})
}
