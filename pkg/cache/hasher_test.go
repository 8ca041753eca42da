package cache

import (
	"testing"
)

func TestFieldsHash(t *testing.T) {
	t.Run("empty fields", func(t *testing.T) {
		hash := FieldsHash(nil)
		if hash != "" {
			t.Errorf("FieldsHash(nil) = %v, want empty string", hash)
		}
	})

	t.Run("same fields produce same hash", func(t *testing.T) {
		f := map[string]any{"level": 5, "exp": int64(1200), "name": "hero"}

		hash1 := FieldsHash(f)
		hash2 := FieldsHash(f)

		if hash1 != hash2 {
			t.Errorf("same fields should produce same hash: %v != %v", hash1, hash2)
		}
	})

	t.Run("different fields produce different hashes", func(t *testing.T) {
		f1 := map[string]any{"level": 5}
		f2 := map[string]any{"level": 6}

		if FieldsHash(f1) == FieldsHash(f2) {
			t.Error("different fields should produce different hashes")
		}
	})

	t.Run("map iteration order does not affect hash", func(t *testing.T) {
		f1 := map[string]any{"a": 1, "b": 2, "c": 3}
		f2 := map[string]any{"c": 3, "a": 1, "b": 2}

		if FieldsHash(f1) != FieldsHash(f2) {
			t.Error("key order should not affect hash")
		}
	})
}

func TestBuildConfigKey(t *testing.T) {
	key := BuildConfigKey("item_table", 7)
	expected := "gamedata:item_table:7"
	if key != expected {
		t.Errorf("BuildConfigKey() = %v, want %v", key, expected)
	}
}

func TestQuickHash(t *testing.T) {
	data := []byte("test data")
	hash := QuickHash(data)

	if len(hash) != 64 { // SHA256 hex = 64 chars
		t.Errorf("QuickHash length = %d, want 64", len(hash))
	}

	hash2 := QuickHash(data)
	if hash != hash2 {
		t.Error("same data should produce same hash")
	}
}

func TestShortHash(t *testing.T) {
	data := []byte("test data")
	hash := ShortHash(data)

	if len(hash) != 16 {
		t.Errorf("ShortHash length = %d, want 16", len(hash))
	}
}
