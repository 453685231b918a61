package service

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campushub/lms-sync-api/internal/models"
)

func TestMetricsServiceObserveSync(t *testing.T) {
	svc := NewMetricsService()

	start := time.Now()
	svc.ObserveSync("moodle", &models.SyncResult{
		Success:       true,
		SyncedUsers:   3,
		SyncedCourses: 2,
		SyncedGrades:  5,
		StartedAt:     start,
		FinishedAt:    start.Add(2 * time.Second),
	})
	svc.ObserveSync("moodle", &models.SyncResult{
		Success:    false,
		Errors:     []string{"failed to fetch courses"},
		StartedAt:  start,
		FinishedAt: start.Add(time.Second),
	})
	svc.ObserveHTTPRequest(http.MethodPost, "/connections/:id/sync", http.StatusOK, 30*time.Millisecond)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	svc.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, `lms_syncs_total{outcome="success",provider="moodle"} 1`)
	assert.Contains(t, body, `lms_syncs_total{outcome="error",provider="moodle"} 1`)
	assert.Contains(t, body, `lms_records_synced_total{entity="grades",provider="moodle"} 5`)
	assert.Contains(t, body, `http_requests_total`)
}
