package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartsort_backend/internal/feature/sorting/domain/entity"
)

// mockDetector はテスト用のDetectorモック実装です。
type mockDetector struct {
	detectFn func(ctx context.Context, imageData []byte) ([]entity.Detection, error)
	calls    int
}

func (m *mockDetector) Detect(ctx context.Context, imageData []byte) ([]entity.Detection, error) {
	m.calls++
	if m.detectFn != nil {
		return m.detectFn(ctx, imageData)
	}
	return nil, nil
}

var sample = []entity.Detection{
	{ClassID: 1, ClassName: "recyclable", Confidence: 0.9, Box: entity.Geometry{CenterX: 0.5, CenterY: 0.5, Width: 0.2, Height: 0.3}},
}

// returning は呼び出しごとにdsのコピーを返すモックを生成します。
func returning(ds []entity.Detection, err error) *mockDetector {
	return &mockDetector{detectFn: func(context.Context, []byte) ([]entity.Detection, error) {
		if ds == nil {
			return nil, err
		}
		return append([]entity.Detection(nil), ds...), err
	}}
}

// TestNewCachingDetector_Defaults はデフォルト値（TTLとnamespace）が正しく設定されることを検証します。
func TestNewCachingDetector_Defaults(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name              string
		ttl               time.Duration
		namespace         string
		expectedTTL       time.Duration
		expectedNamespace string
	}{
		{"default values when zero/empty", 0, "", 10 * time.Minute, "detections"},
		{"negative ttl uses default", -time.Minute, "", 10 * time.Minute, "detections"},
		{"custom values preserved", time.Hour, "custom", time.Hour, "custom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := NewCachingDetector(nil, tt.ttl, &mockDetector{}, tt.namespace)

			assert.Equal(t, tt.expectedTTL, c.ttl)
			assert.Equal(t, tt.expectedNamespace, c.namespace)
			assert.NotNil(t, c.local)
		})
	}
}

// TestCachingDetector_Local はRedisがnilの場合にプロセス内キャッシュが使われることを検証します。
func TestCachingDetector_Local(t *testing.T) {
	t.Parallel()

	inner := returning(sample, nil)
	c := NewCachingDetector(nil, time.Minute, inner, "")

	first, err := c.Detect(context.Background(), []byte("img"))
	require.NoError(t, err)
	want := append([]entity.Detection(nil), sample...)
	first[0].ClassName = "mutated"

	second, err := c.Detect(context.Background(), []byte("img"))
	require.NoError(t, err)

	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, want, second, "cached entries are isolated from callers")
	second[0].ClassName = "mutated again"

	third, err := c.Detect(context.Background(), []byte("img"))
	require.NoError(t, err)
	assert.Equal(t, want, third)
	assert.Equal(t, "recyclable", sample[0].ClassName)

	_, err = c.Detect(context.Background(), []byte("other"))
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

// TestCachingDetector_ErrorsNotCached は推論エラーがキャッシュされないことを検証します。
func TestCachingDetector_ErrorsNotCached(t *testing.T) {
	t.Parallel()

	inner := returning(nil, errors.New("model failed"))
	c := NewCachingDetector(nil, time.Minute, inner, "")

	for i := 0; i < 2; i++ {
		_, err := c.Detect(context.Background(), []byte("img"))
		assert.Error(t, err)
	}
	assert.Equal(t, 2, inner.calls)
}

// TestCachingDetector_RedisMiss はキャッシュミス時に推論しRedisに保存することを検証します。
func TestCachingDetector_RedisMiss(t *testing.T) {
	t.Parallel()

	rdb, mock := redismock.NewClientMock()
	defer func() { _ = rdb.Close() }()

	key := contentKey("detections", []byte("img"))
	b, err := json.Marshal(sample)
	require.NoError(t, err)

	mock.ExpectGet(key).RedisNil()
	mock.ExpectSet(key, b, 5*time.Minute).SetVal("OK")

	inner := returning(sample, nil)
	c := NewCachingDetector(rdb, 5*time.Minute, inner, "")

	got, err := c.Detect(context.Background(), []byte("img"))

	require.NoError(t, err)
	assert.Equal(t, sample, got)
	assert.Equal(t, 1, inner.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestCachingDetector_RedisHit はキャッシュヒット時に推論を呼ばないことを検証します。
func TestCachingDetector_RedisHit(t *testing.T) {
	t.Parallel()

	rdb, mock := redismock.NewClientMock()
	defer func() { _ = rdb.Close() }()

	key := contentKey("detections", []byte("img"))
	b, err := json.Marshal(sample)
	require.NoError(t, err)
	mock.ExpectGet(key).SetVal(string(b))

	inner := returning(nil, errors.New("should not be called"))
	c := NewCachingDetector(rdb, 5*time.Minute, inner, "")

	got, err := c.Detect(context.Background(), []byte("img"))

	require.NoError(t, err)
	assert.Equal(t, sample, got)
	assert.Zero(t, inner.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestCachingDetector_RedisCorrupted は壊れたキャッシュエントリが削除されることを検証します。
func TestCachingDetector_RedisCorrupted(t *testing.T) {
	t.Parallel()

	rdb, mock := redismock.NewClientMock()
	defer func() { _ = rdb.Close() }()

	key := contentKey("detections", []byte("img"))
	b, err := json.Marshal(sample)
	require.NoError(t, err)

	mock.ExpectGet(key).SetVal("{not json")
	mock.ExpectDel(key).SetVal(1)
	mock.ExpectSet(key, b, 5*time.Minute).SetVal("OK")

	c := NewCachingDetector(rdb, 5*time.Minute, returning(sample, nil), "")

	got, err := c.Detect(context.Background(), []byte("img"))

	require.NoError(t, err)
	assert.Equal(t, sample, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestCachingDetector_RedisDown はRedisエラー時も推論結果を返すことを検証します。
func TestCachingDetector_RedisDown(t *testing.T) {
	t.Parallel()

	rdb, mock := redismock.NewClientMock()
	defer func() { _ = rdb.Close() }()

	key := contentKey("detections", []byte("img"))
	b, err := json.Marshal(sample)
	require.NoError(t, err)

	mock.ExpectGet(key).SetErr(errors.New("connection refused"))
	mock.ExpectSet(key, b, 5*time.Minute).SetErr(errors.New("connection refused"))

	c := NewCachingDetector(rdb, 5*time.Minute, returning(sample, nil), "")

	got, err := c.Detect(context.Background(), []byte("img"))

	require.NoError(t, err)
	assert.Equal(t, sample, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}
