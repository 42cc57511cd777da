package remote

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartsort_backend/internal/feature/sorting/domain/entity"
)

const baseURL = "http://inference.test"

func newTestClient(t *testing.T) (*Client, *httpmock.MockTransport) {
	t.Helper()
	mt := httpmock.NewMockTransport()
	c := NewClient(Config{BaseURL: baseURL, Timeout: time.Second}, entity.DefaultCategories,
		&http.Client{Transport: mt})
	return c, mt
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("INFERENCE_URL", "")
	_, err := LoadConfig()
	assert.Error(t, err)

	t.Setenv("INFERENCE_URL", "http://sidecar:8000/")
	t.Setenv("INFERENCE_TIMEOUT", "5s")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "http://sidecar:8000", cfg.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Timeout)

	t.Setenv("INFERENCE_TIMEOUT", "soon")
	_, err = LoadConfig()
	assert.Error(t, err)
}

func TestClient_Detect(t *testing.T) {
	t.Parallel()

	c, mt := newTestClient(t)
	mt.RegisterResponder(http.MethodPost, baseURL+"/detect", func(r *http.Request) (*http.Response, error) {
		f, _, err := r.FormFile("file")
		if err != nil {
			return httpmock.NewStringResponse(http.StatusBadRequest, err.Error()), nil
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		if string(data) != "image-bytes" {
			return httpmock.NewStringResponse(http.StatusBadRequest, "wrong payload"), nil
		}
		return httpmock.NewStringResponse(http.StatusOK, `{"detections":[
			{"class_id":1,"confidence":0.91,"box":{"x_center":0.5,"y_center":0.4,"width":0.3,"height":0.2}},
			{"class_id":7,"confidence":0.80,"box":{"x_center":0.1,"y_center":0.1,"width":0.1,"height":0.1}},
			{"class_id":0,"confidence":0.42,"box":{"x_center":0.2,"y_center":0.3,"width":0.1,"height":0.1}}
		]}`), nil
	})

	ds, err := c.Detect(context.Background(), []byte("image-bytes"))

	require.NoError(t, err)
	require.Len(t, ds, 2, "out-of-range class id is dropped")
	assert.Equal(t, entity.Detection{
		ClassID:    1,
		ClassName:  "recyclable",
		Confidence: 0.91,
		Box:        entity.Geometry{CenterX: 0.5, CenterY: 0.4, Width: 0.3, Height: 0.2},
	}, ds[0])
	assert.Equal(t, "organic", ds[1].ClassName)
}

func TestClient_Detect_SortsByConfidence(t *testing.T) {
	t.Parallel()

	c, mt := newTestClient(t)
	mt.RegisterResponder(http.MethodPost, baseURL+"/detect", httpmock.NewStringResponder(http.StatusOK, `{"detections":[
		{"class_id":0,"confidence":0.30,"box":{"x_center":0.2,"y_center":0.2,"width":0.1,"height":0.1}},
		{"class_id":2,"confidence":0.95,"box":{"x_center":0.6,"y_center":0.6,"width":0.2,"height":0.2}},
		{"class_id":1,"confidence":0.30,"box":{"x_center":0.4,"y_center":0.4,"width":0.1,"height":0.1}},
		{"class_id":1,"confidence":0.70,"box":{"x_center":0.5,"y_center":0.5,"width":0.3,"height":0.3}}
	]}`))

	ds, err := c.Detect(context.Background(), []byte("x"))

	require.NoError(t, err)
	require.Len(t, ds, 4)
	assert.Equal(t, []float64{0.95, 0.70, 0.30, 0.30},
		[]float64{ds[0].Confidence, ds[1].Confidence, ds[2].Confidence, ds[3].Confidence})
	assert.Equal(t, "general", ds[0].ClassName)
	// 同じ信頼度では元の順序を保つ
	assert.Equal(t, "organic", ds[2].ClassName)
	assert.Equal(t, "recyclable", ds[3].ClassName)

	primary, ok := entity.Primary(ds)
	require.True(t, ok)
	assert.Equal(t, 2, primary.ClassID)
}

func TestClient_Detect_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		responder httpmock.Responder
	}{
		{"server error", httpmock.NewStringResponder(http.StatusInternalServerError, "boom")},
		{"bad json", httpmock.NewStringResponder(http.StatusOK, "{")},
		{"transport error", httpmock.NewErrorResponder(assert.AnError)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c, mt := newTestClient(t)
			mt.RegisterResponder(http.MethodPost, baseURL+"/detect", tt.responder)

			_, err := c.Detect(context.Background(), []byte("x"))

			assert.Error(t, err)
		})
	}
}

func TestClient_Classify(t *testing.T) {
	t.Parallel()

	c, mt := newTestClient(t)
	mt.RegisterResponder(http.MethodPost, baseURL+"/classify",
		httpmock.NewStringResponder(http.StatusOK, `{"class_id":2,"confidence":0.66}`))

	got, err := c.Classify(context.Background(), []byte("x"))

	require.NoError(t, err)
	assert.Equal(t, entity.Classification{ClassID: 2, ClassName: "general", Confidence: 0.66}, got)
	assert.Equal(t, 1, mt.GetCallCountInfo()["POST "+baseURL+"/classify"])
}

func TestClient_Classify_UnknownClass(t *testing.T) {
	t.Parallel()

	c, mt := newTestClient(t)
	mt.RegisterResponder(http.MethodPost, baseURL+"/classify",
		httpmock.NewStringResponder(http.StatusOK, `{"class_id":9,"confidence":0.5}`))

	_, err := c.Classify(context.Background(), []byte("x"))

	assert.Error(t, err)
}

func TestClient_CheckHealth(t *testing.T) {
	t.Parallel()

	c, mt := newTestClient(t)
	mt.RegisterResponder(http.MethodGet, baseURL+"/health", httpmock.NewStringResponder(http.StatusOK, "ok"))
	assert.NoError(t, c.CheckHealth(context.Background()))

	c2, mt2 := newTestClient(t)
	mt2.RegisterResponder(http.MethodGet, baseURL+"/health", httpmock.NewStringResponder(http.StatusServiceUnavailable, ""))
	assert.Error(t, c2.CheckHealth(context.Background()))
}
