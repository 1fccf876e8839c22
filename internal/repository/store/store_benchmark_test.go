package store

import (
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/geowidget/tilefetch/pkg/logger"
)

const benchTileSize = 10 * 1024 // typical encoded raster tile

func generateTileData(size int) []byte {
	data := make([]byte, size)
	rand.Read(data)
	return data
}

func setupSQLiteStore(b *testing.B) *SQLiteStore {
	b.Helper()
	s := NewSQLiteStore(filepath.Join(b.TempDir(), "bench.db"), logger.NewNop())
	b.Cleanup(func() { s.Close() })
	return s
}

func BenchmarkPut_SQLite(b *testing.B) {
	s := setupSQLiteStore(b)
	data := generateTileData(benchTileSize)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		k := Key{Zoom: i % 20, X: i % 1000, Y: i % 1000}
		if err := s.Put(k, data); err != nil {
			b.Fatalf("Put failed: %v", err)
		}
	}
}

func BenchmarkGet_SQLite(b *testing.B) {
	s := setupSQLiteStore(b)
	data := generateTileData(benchTileSize)

	for i := 0; i < 100; i++ {
		s.Put(Key{Zoom: i % 20, X: i, Y: i}, data)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		k := Key{Zoom: i % 20, X: i % 100, Y: i % 100}
		_, _, err := s.Get(k)
		if err != nil {
			b.Fatalf("Get failed: %v", err)
		}
	}
}

func BenchmarkPut_Memory(b *testing.B) {
	s := NewMemoryStore()
	data := generateTileData(benchTileSize)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		k := Key{Zoom: i % 20, X: i % 1000, Y: i % 1000}
		if err := s.Put(k, data); err != nil {
			b.Fatalf("Put failed: %v", err)
		}
	}
}

func BenchmarkMixed_SQLite(b *testing.B) {
	s := setupSQLiteStore(b)
	data := generateTileData(benchTileSize)

	for i := 0; i < 50; i++ {
		s.Put(Key{Zoom: i % 20, X: i, Y: i}, data)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		k := Key{Zoom: i % 20, X: i % 100, Y: i % 100}
		if i%5 == 0 {
			s.Put(k, data)
		} else {
			s.Get(k)
		}
	}
}
