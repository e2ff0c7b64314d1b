package assets_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/firesci/debrisflow/internal/assets"
)

// memoryStore is an in-memory BlobStore double. PresignURL hands out URLs
// under baseURL, which tests point at a local HTTP server.
type memoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    int
	baseURL string
}

var _ assets.BlobStore = (*memoryStore)(nil)

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: map[string][]byte{}}
}

func (m *memoryStore) set(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
}

func (m *memoryStore) object(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	return data, ok
}

func (m *memoryStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok, nil
}

func (m *memoryStore) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	m.puts++
	return nil
}

func (m *memoryStore) Get(_ context.Context, key string) (io.ReadCloser, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, 0, fmt.Errorf("no such key %s", key)
	}
	return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
}

func (m *memoryStore) PresignURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return m.baseURL + "/" + key, nil
}

func TestAssetKey(t *testing.T) {
	tests := []struct {
		name   string
		fireID string
		want   string
	}{
		{name: "spaces and dashes collapse to underscores", fireID: "2021_RIVER COMPLEX-WEST", want: "fires/2021/2021_river_complex_west"},
		{name: "already clean", fireID: "2020_dixie", want: "fires/2020/2020_dixie"},
		{name: "year taken from the id prefix", fireID: "2018_CAMP FIRE", want: "fires/2018/2018_camp_fire"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, assets.AssetKey("fires", tt.fireID))
		})
	}
}
