package registry_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kiranshivaraju/lecturelab/internal/cache"
	"github.com/kiranshivaraju/lecturelab/internal/registry"
	"github.com/kiranshivaraju/lecturelab/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// fakeCache is an in-memory cache.Cache that ignores TTLs.
type fakeCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeCache() *fakeCache { return &fakeCache{data: map[string][]byte{}} }

func (f *fakeCache) SetNX(_ context.Context, key string, value []byte, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	f.data[key] = append([]byte(nil), value...)
	return true, nil
}

func (f *fakeCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *fakeCache) Swap(_ context.Context, key string, _ time.Duration, fn func([]byte) ([]byte, error)) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	next, err := fn(f.data[key])
	if err != nil {
		return nil, err
	}
	f.data[key] = next
	return next, nil
}

func (f *fakeCache) Ping(context.Context) error { return nil }

func (f *fakeCache) IncrWithExpiry(context.Context, string, time.Duration) (int64, error) {
	return 0, nil
}

func (f *fakeCache) Close() error { return nil }

var _ cache.Cache = (*fakeCache)(nil)

func newJob(id string) *models.Job {
	now := time.Now().UTC()
	return &models.Job{
		ID:        id,
		Kind:      models.JobKindTranscription,
		Status:    models.JobStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// registryContract runs the behaviour every Registry must share.
func registryContract(t *testing.T, newReg func(t *testing.T) registry.Registry) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		r := newReg(t)
		require.NoError(t, r.Create(ctx, newJob("a")))

		got, err := r.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusQueued, got.Status)
		assert.Equal(t, models.JobKindTranscription, got.Kind)
	})

	t.Run("duplicate create", func(t *testing.T) {
		r := newReg(t)
		require.NoError(t, r.Create(ctx, newJob("dup")))
		assert.ErrorIs(t, r.Create(ctx, newJob("dup")), registry.ErrExists)
	})

	t.Run("unknown id", func(t *testing.T) {
		r := newReg(t)
		_, err := r.Get(ctx, "missing")
		assert.ErrorIs(t, err, registry.ErrNotFound)
		_, err = r.Update(ctx, "missing", func(*models.Job) {})
		assert.ErrorIs(t, err, registry.ErrNotFound)
	})

	t.Run("full lifecycle", func(t *testing.T) {
		r := newReg(t)
		require.NoError(t, r.Create(ctx, newJob("life")))

		steps := []func(*models.Job){
			func(j *models.Job) { j.Status = models.JobStatusSplitting },
			func(j *models.Job) { j.Status = models.JobStatusProcessing; j.Progress = 10 },
			func(j *models.Job) { j.Progress = 50; j.Message = "unit 2 of 4" },
			func(j *models.Job) { j.Status = models.JobStatusAggregating; j.Progress = 90 },
			func(j *models.Job) {
				j.Status = models.JobStatusCompleted
				j.Progress = 100
				j.Result = json.RawMessage(`{"transcript":"hi"}`)
			},
		}
		for i, step := range steps {
			_, err := r.Update(ctx, "life", step)
			require.NoError(t, err, "step %d", i)
		}

		got, err := r.Get(ctx, "life")
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusCompleted, got.Status)
		assert.Equal(t, 100, got.Progress)
		assert.JSONEq(t, `{"transcript":"hi"}`, string(got.Result))
		require.NotNil(t, got.CompletedAt)
	})

	t.Run("terminal is immutable", func(t *testing.T) {
		r := newReg(t)
		require.NoError(t, r.Create(ctx, newJob("term")))
		_, err := r.Update(ctx, "term", func(j *models.Job) {
			j.Status = models.JobStatusFailed
			j.Error = "split failed"
		})
		require.NoError(t, err)

		_, err = r.Update(ctx, "term", func(j *models.Job) { j.Message = "late write" })
		assert.ErrorIs(t, err, models.ErrTerminal)

		got, err := r.Get(ctx, "term")
		require.NoError(t, err)
		assert.Equal(t, "split failed", got.Error)
		assert.Empty(t, got.Message)
	})

	t.Run("progress never decreases", func(t *testing.T) {
		r := newReg(t)
		require.NoError(t, r.Create(ctx, newJob("prog")))
		_, err := r.Update(ctx, "prog", func(j *models.Job) { j.Status = models.JobStatusSplitting; j.Progress = 5 })
		require.NoError(t, err)

		_, err = r.Update(ctx, "prog", func(j *models.Job) { j.Progress = 2 })
		assert.ErrorIs(t, err, models.ErrInvalidUpdate)

		got, err := r.Get(ctx, "prog")
		require.NoError(t, err)
		assert.Equal(t, 5, got.Progress)
	})

	t.Run("readers get copies", func(t *testing.T) {
		r := newReg(t)
		require.NoError(t, r.Create(ctx, newJob("copy")))
		got, err := r.Get(ctx, "copy")
		require.NoError(t, err)
		got.Status = models.JobStatusFailed

		again, err := r.Get(ctx, "copy")
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusQueued, again.Status)
	})
}

func TestMemory_Contract(t *testing.T) {
	registryContract(t, func(*testing.T) registry.Registry { return registry.NewMemory() })
}

func TestRedis_ContractWithFakeCache(t *testing.T) {
	registryContract(t, func(*testing.T) registry.Registry {
		return registry.NewRedis(newFakeCache(), time.Hour)
	})
}

func TestMemory_ConcurrentJobs(t *testing.T) {
	r := registry.NewMemory()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("job-%d", i)
		require.NoError(t, r.Create(ctx, newJob(id)))
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = r.Update(ctx, id, func(j *models.Job) { j.Status = models.JobStatusSplitting })
			for p := 1; p <= 90; p++ {
				_, _ = r.Update(ctx, id, func(j *models.Job) { j.Progress = p })
				_, _ = r.Get(ctx, id)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, r.Len())
	for i := 0; i < 20; i++ {
		got, err := r.Get(ctx, fmt.Sprintf("job-%d", i))
		require.NoError(t, err)
		assert.Equal(t, 90, got.Progress)
	}
}

func TestRedis_KeyLayout(t *testing.T) {
	fc := newFakeCache()
	r := registry.NewRedis(fc, time.Hour)
	require.NoError(t, r.Create(context.Background(), newJob("abc")))

	raw, ok, err := fc.Get(context.Background(), "job:abc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, string(raw), `"status":"queued"`)
}

func TestRedis_ContractAgainstRedis(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)
	rc, err := cache.NewRedisCache("redis://" + host + ":" + port.Port())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })

	// Subtests use distinct job ids so they can share one container.
	registryContract(t, func(*testing.T) registry.Registry {
		return registry.NewRedis(rc, time.Hour)
	})
}
