package detector

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagepass/audioscan/internal/domain/scans"
)

const testBaseURL = "https://detector.test/v1"

func newMockedClient(t *testing.T) *Client {
	t.Helper()
	c := NewClient(testBaseURL+"/", "secret-key", 5*time.Second)
	httpmock.ActivateNonDefault(c.HTTP)
	t.Cleanup(httpmock.DeactivateAndReset)
	return c
}

func TestSubmit_SendsAudioAndMetadata(t *testing.T) {
	c := newMockedClient(t)

	httpmock.RegisterResponder(http.MethodPost, testBaseURL+"/analyze",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "Bearer secret-key", req.Header.Get("Authorization"))
			assert.Equal(t, "application/json", req.Header.Get("Content-Type"))

			body, err := io.ReadAll(req.Body)
			require.NoError(t, err)
			var got map[string]any
			require.NoError(t, json.Unmarshal(body, &got))
			assert.Equal(t, "https://cdn.test/a.mp3", got["audio_url"])
			meta := got["metadata"].(map[string]any)
			assert.Equal(t, "Night Drive", meta["title"])
			assert.Equal(t, "USRC17607839", meta["isrc"])

			return httpmock.NewStringResponse(http.StatusAccepted, `{"job_id":"job-42"}`), nil
		})

	jobID, err := c.Submit(context.Background(), "https://cdn.test/a.mp3", scans.TrackMetadata{
		Title: "Night Drive", Artist: "Lumen", ISRC: "USRC17607839",
	})
	require.NoError(t, err)
	assert.Equal(t, "job-42", jobID)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestSubmit_MissingJobID(t *testing.T) {
	c := newMockedClient(t)
	httpmock.RegisterResponder(http.MethodPost, testBaseURL+"/analyze",
		httpmock.NewStringResponder(http.StatusOK, `{}`))

	_, err := c.Submit(context.Background(), "https://cdn.test/a.mp3", scans.TrackMetadata{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job_id")
}

func TestSubmit_HTTPError(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retryable bool
	}{
		{"unauthorized", http.StatusUnauthorized, false},
		{"forbidden", http.StatusForbidden, false},
		{"internal_server_error", http.StatusInternalServerError, true},
		{"service_unavailable", http.StatusServiceUnavailable, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newMockedClient(t)
			httpmock.RegisterResponder(http.MethodPost, testBaseURL+"/analyze",
				httpmock.NewStringResponder(tt.status, `{"error":"nope"}`))

			_, err := c.Submit(context.Background(), "https://cdn.test/a.mp3", scans.TrackMetadata{})
			require.Error(t, err)

			var se *StatusError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.status, se.Status)
			assert.Equal(t, tt.retryable, se.Retryable())
		})
	}
}

func TestFetchResult_Flagged(t *testing.T) {
	c := newMockedClient(t)
	body := `{"status":"completed","results":{"ai_generated":{"detected":true,"confidence":92,"ai_model_signatures":["suno-v3"]}}}`
	httpmock.RegisterResponder(http.MethodGet, testBaseURL+"/analyze/job-42",
		httpmock.NewStringResponder(http.StatusOK, body))

	res, raw, err := c.FetchResult(context.Background(), "job-42")
	require.NoError(t, err)
	assert.Equal(t, scans.DetectorCompleted, res.Status)
	require.NotNil(t, res.Results)
	require.NotNil(t, res.Results.AIGenerated)
	assert.True(t, res.Results.AIGenerated.Detected)
	assert.InDelta(t, 92.0, res.Results.AIGenerated.Confidence, 0.001)
	assert.Equal(t, []string{"suno-v3"}, res.Results.AIGenerated.ModelSignatures)
	assert.JSONEq(t, body, string(raw))
}

func TestFetchResult_Processing(t *testing.T) {
	c := newMockedClient(t)
	httpmock.RegisterResponder(http.MethodGet, testBaseURL+"/analyze/job-7",
		httpmock.NewStringResponder(http.StatusOK, `{"status":"processing"}`))

	res, _, err := c.FetchResult(context.Background(), "job-7")
	require.NoError(t, err)
	assert.Equal(t, scans.DetectorProcessing, res.Status)
	assert.False(t, res.Settled())
}

func TestFetchResult_UnknownStatus(t *testing.T) {
	c := newMockedClient(t)
	httpmock.RegisterResponder(http.MethodGet, testBaseURL+"/analyze/job-7",
		httpmock.NewStringResponder(http.StatusOK, `{"status":"queued"}`))

	_, _, err := c.FetchResult(context.Background(), "job-7")
	require.Error(t, err)
}

func TestFetchResult_TruncatesErrorBody(t *testing.T) {
	c := newMockedClient(t)
	long := make([]byte, 2000)
	for i := range long {
		long[i] = 'x'
	}
	httpmock.RegisterResponder(http.MethodGet, testBaseURL+"/analyze/job-7",
		httpmock.NewBytesResponder(http.StatusBadGateway, long))

	_, _, err := c.FetchResult(context.Background(), "job-7")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Len(t, se.Body, maxErrorBody+3)
}

func TestPing(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{"ok", http.StatusOK, false},
		{"method_not_allowed_is_reachable", http.StatusMethodNotAllowed, false},
		{"not_found_is_reachable", http.StatusNotFound, false},
		{"bad_gateway", http.StatusBadGateway, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newMockedClient(t)
			httpmock.RegisterResponder(http.MethodHead, testBaseURL,
				func(req *http.Request) (*http.Response, error) {
					assert.Equal(t, "Bearer secret-key", req.Header.Get("Authorization"))
					assert.Equal(t, UserAgent, req.Header.Get("User-Agent"))
					return httpmock.NewStringResponse(tt.status, ""), nil
				})

			err := c.Ping(context.Background())
			if tt.wantErr {
				var se *StatusError
				require.ErrorAs(t, err, &se)
				assert.Equal(t, tt.status, se.Status)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestPing_Unreachable(t *testing.T) {
	c := newMockedClient(t)
	httpmock.RegisterResponder(http.MethodHead, testBaseURL,
		httpmock.NewErrorResponder(errors.New("dial tcp: connection refused")))

	err := c.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}
