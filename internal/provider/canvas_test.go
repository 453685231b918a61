package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campushub/lms-sync-api/internal/models"
)

func newTestCanvas(baseURL string) *canvasAdapter {
	return newCanvasAdapter(models.ProviderConfig{
		ProviderType: models.ProviderCanvas,
		BaseURL:      baseURL,
		Credentials:  models.Credentials{Token: "canvas-token"},
		Timeout:      time.Second,
	}, zap.NewNop())
}

func requireCanvasAuth(w http.ResponseWriter, r *http.Request) bool {
	if r.Header.Get("Authorization") != "Bearer canvas-token" {
		w.WriteHeader(http.StatusUnauthorized)
		return false
	}
	return true
}

func TestCanvasAuthenticate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !requireCanvasAuth(w, r) {
			return
		}
		fmt.Fprint(w, `{"id":1}`)
	}))
	defer srv.Close()

	ok, err := newTestCanvas(srv.URL).Authenticate(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCanvasAuthenticateBadToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	ok, err := newTestCanvas(srv.URL).Authenticate(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCanvasListUsersPaginates(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/accounts/self/users", func(w http.ResponseWriter, r *http.Request) {
		if !requireCanvasAuth(w, r) {
			return
		}
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		var users []map[string]interface{}
		switch page {
		case 1:
			for i := 0; i < canvasPageSize; i++ {
				users = append(users, map[string]interface{}{
					"id":          i + 1,
					"email":       fmt.Sprintf("u%d@school.edu", i+1),
					"name":        fmt.Sprintf("User %d", i+1),
					"enrollments": []map[string]string{{"type": "StudentEnrollment"}},
				})
			}
		case 2:
			users = append(users, map[string]interface{}{
				"id":          canvasPageSize + 1,
				"email":       "last@school.edu",
				"name":        "Last User",
				"enrollments": []map[string]string{{"type": "TeacherEnrollment"}},
			})
		}
		json.NewEncoder(w).Encode(users)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	users, err := newTestCanvas(srv.URL).ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, canvasPageSize+1)
	assert.Equal(t, models.RoleStudent, users[0].Role)
	assert.Equal(t, models.RoleTeacher, users[canvasPageSize].Role)
	assert.Equal(t, strconv.Itoa(canvasPageSize+1), users[canvasPageSize].ExternalID)
}

func TestCanvasListCoursesStates(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/accounts/self/courses", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
            {"id":1,"name":"Open","workflow_state":"available","start_at":"2024-01-15T00:00:00Z"},
            {"id":2,"name":"Draft","workflow_state":"unpublished"},
            {"id":3,"name":"Done","workflow_state":"completed"}
        ]`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	courses, err := newTestCanvas(srv.URL).ListCourses(context.Background())
	require.NoError(t, err)
	require.Len(t, courses, 3)
	assert.Equal(t, models.CourseActive, courses[0].Status)
	assert.Equal(t, models.CourseInactive, courses[1].Status)
	assert.Equal(t, models.CourseArchived, courses[2].Status)
	require.NotNil(t, courses[0].StartDate)
}

func TestCanvasListGradesCompositeIDs(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/courses/42/assignments", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"id":7,"points_possible":20}]`)
	})
	mux.HandleFunc("/api/v1/courses/42/students/submissions", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
            {"assignment_id":7,"user_id":3,"score":15,"graded_at":"2024-02-01T12:00:00Z","grader_comment":"ok"},
            {"assignment_id":7,"user_id":4,"score":null}
        ]`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	grades, err := newTestCanvas(srv.URL).ListGrades(context.Background(), "42")
	require.NoError(t, err)
	require.Len(t, grades, 1)
	assert.Equal(t, "42:7", grades[0].ModuleID)
	assert.Equal(t, "3", grades[0].UserID)
	assert.Equal(t, 20.0, grades[0].MaxScore)
	assert.Equal(t, 75.0, grades[0].Percentage)
}

func TestCanvasPushGrades(t *testing.T) {
	var gotPath string
	var gotBody map[string]interface{}
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		fmt.Fprint(w, `{}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	adapter := newTestCanvas(srv.URL)
	err := adapter.PushGrades(context.Background(), []models.ExternalGrade{
		{UserID: "3", ModuleID: "42:7", Score: 17.5, MaxScore: 20},
	})
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/courses/42/assignments/7/submissions/3", gotPath)
	submission := gotBody["submission"].(map[string]interface{})
	assert.Equal(t, "17.5", submission["posted_grade"])
}

func TestCanvasPushGradesRejectsMalformedID(t *testing.T) {
	adapter := newTestCanvas("http://localhost:0")
	err := adapter.PushGrades(context.Background(), []models.ExternalGrade{
		{UserID: "3", ModuleID: "missing-separator", Score: 1, MaxScore: 2},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed grade item id")
}

func TestCanvasCreateAssignment(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/courses/42/assignments", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		fmt.Fprint(w, `{"id":88}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	id, err := newTestCanvas(srv.URL).CreateAssignment(context.Background(), "42", models.Assignment{
		Name:     "Quiz 1",
		MaxScore: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, "42:88", id)
}

func TestCanvasUpdateGrade(t *testing.T) {
	var gotPath string
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		gotPath = r.URL.Path
		fmt.Fprint(w, `{}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	err := newTestCanvas(srv.URL).UpdateGrade(context.Background(), "42:7", models.ExternalGrade{
		UserID:   "3",
		Score:    9,
		MaxScore: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/courses/42/assignments/7/submissions/3", gotPath)
}

func TestCanvasStaleSessionRetriesOnce(t *testing.T) {
	var selfCalls, listCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/users/self", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&selfCalls, 1)
		fmt.Fprint(w, `{"id":1}`)
	})
	mux.HandleFunc("/api/v1/accounts/self/users", func(w http.ResponseWriter, r *http.Request) {
		// First call is rejected as stale, the re-attempt succeeds.
		if atomic.AddInt32(&listCalls, 1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `[{"id":9,"email":"u9@school.edu","name":"User Nine"}]`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	users, err := newTestCanvas(srv.URL).ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.EqualValues(t, 1, atomic.LoadInt32(&selfCalls))
	assert.EqualValues(t, 2, atomic.LoadInt32(&listCalls))
}

func TestCanvasRejectedTokenSurfacesAfterOneRefresh(t *testing.T) {
	var selfCalls, listCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/users/self", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&selfCalls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("/api/v1/accounts/self/users", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&listCalls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	_, err := newTestCanvas(srv.URL).ListUsers(context.Background())
	require.Error(t, err)
	assert.True(t, IsAuthError(err))
	// Exactly one revalidation, no second re-attempt of the failed call.
	assert.EqualValues(t, 1, atomic.LoadInt32(&selfCalls))
	assert.EqualValues(t, 1, atomic.LoadInt32(&listCalls))
}
