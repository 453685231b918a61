package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campushub/lms-sync-api/internal/models"
)

// fakeMoodle imitates a Moodle-style endpoint: token exchange on login and a
// single webservice URL dispatched by wsfunction, errors as 200 + exception.
type fakeMoodle struct {
	mu         sync.Mutex
	tokenCalls int
	validToken string
	responses  map[string]string
	lastQuery  url.Values
}

func (f *fakeMoodle) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/login/token.php", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if r.FormValue("username") != "admin" || r.FormValue("password") != "s3cret" {
			fmt.Fprint(w, `{"error":"invalidlogin"}`)
			return
		}
		f.tokenCalls++
		f.validToken = fmt.Sprintf("tok-%d", f.tokenCalls)
		fmt.Fprintf(w, `{"token":%q}`, f.validToken)
	})
	mux.HandleFunc("/webservice/rest/server.php", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		q := r.URL.Query()
		if q.Get("wstoken") != f.validToken {
			fmt.Fprint(w, `{"exception":"moodle_exception","errorcode":"invalidtoken","message":"Invalid token"}`)
			return
		}
		f.lastQuery = q
		body, ok := f.responses[q.Get("wsfunction")]
		if !ok {
			fmt.Fprint(w, `{"exception":"moodle_exception","errorcode":"invalidfunction","message":"unknown function"}`)
			return
		}
		fmt.Fprint(w, body)
	})
	return mux
}

func (f *fakeMoodle) expireToken() {
	f.mu.Lock()
	f.validToken = "rotated-away"
	f.mu.Unlock()
}

func newTestMoodle(t *testing.T, f *fakeMoodle) (*moodleAdapter, func()) {
	srv := httptest.NewServer(f.handler())
	adapter := newMoodleAdapter(models.ProviderConfig{
		ProviderType: models.ProviderMoodle,
		BaseURL:      srv.URL,
		Credentials:  models.Credentials{Username: "admin", Password: "s3cret"},
		Timeout:      time.Second,
	}, zap.NewNop())
	return adapter, srv.Close
}

func TestMoodleAuthenticate(t *testing.T) {
	f := &fakeMoodle{}
	adapter, cleanup := newTestMoodle(t, f)
	defer cleanup()

	ok, err := adapter.Authenticate(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, f.tokenCalls)
}

func TestMoodleAuthenticateRejected(t *testing.T) {
	f := &fakeMoodle{}
	srv := httptest.NewServer(f.handler())
	defer srv.Close()

	adapter := newMoodleAdapter(models.ProviderConfig{
		ProviderType: models.ProviderMoodle,
		BaseURL:      srv.URL,
		Credentials:  models.Credentials{Username: "admin", Password: "wrong"},
		Timeout:      time.Second,
	}, zap.NewNop())

	ok, err := adapter.Authenticate(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMoodleListUsersMapsRoles(t *testing.T) {
	f := &fakeMoodle{responses: map[string]string{
		"core_user_get_users": `{"users":[
            {"id":11,"email":"a@school.edu","fullname":"Alice A","roles":[{"shortname":"editingteacher"}]},
            {"id":12,"email":"b@school.edu","fullname":"Bob B","roles":[{"shortname":"somethingodd"}]},
            {"id":13,"email":"c@school.edu","fullname":"Cara C","roles":[]}
        ]}`,
	}}
	adapter, cleanup := newTestMoodle(t, f)
	defer cleanup()

	_, err := adapter.Authenticate(context.Background())
	require.NoError(t, err)

	users, err := adapter.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Equal(t, "11", users[0].ExternalID)
	assert.Equal(t, models.RoleTeacher, users[0].Role)
	assert.Equal(t, models.RoleStudent, users[1].Role)
	assert.Equal(t, models.RoleStudent, users[2].Role)
}

func TestMoodleListCourses(t *testing.T) {
	f := &fakeMoodle{responses: map[string]string{
		"core_course_get_courses": `[
            {"id":5,"fullname":"Algebra","summary":"Numbers","startdate":1700000000,"enddate":0,"visible":1},
            {"id":6,"fullname":"Hidden","summary":"","startdate":0,"enddate":0,"visible":0}
        ]`,
	}}
	adapter, cleanup := newTestMoodle(t, f)
	defer cleanup()

	_, err := adapter.Authenticate(context.Background())
	require.NoError(t, err)

	courses, err := adapter.ListCourses(context.Background())
	require.NoError(t, err)
	require.Len(t, courses, 2)
	assert.Equal(t, "5", courses[0].ExternalID)
	assert.Equal(t, models.CourseActive, courses[0].Status)
	require.NotNil(t, courses[0].StartDate)
	assert.Nil(t, courses[0].EndDate)
	assert.Equal(t, models.CourseInactive, courses[1].Status)
	assert.Nil(t, courses[1].Description)
}

func TestMoodleListGradesSkipsUngraded(t *testing.T) {
	f := &fakeMoodle{responses: map[string]string{
		"gradereport_user_get_grade_items": `{"usergrades":[
            {"userid":11,"gradeitems":[
                {"id":100,"graderaw":8,"grademax":10,"feedback":"good","gradedatesubmitted":1700000000,"gradedategraded":1700000100},
                {"id":101,"graderaw":null,"grademax":10}
            ]}
        ]}`,
	}}
	adapter, cleanup := newTestMoodle(t, f)
	defer cleanup()

	_, err := adapter.Authenticate(context.Background())
	require.NoError(t, err)

	grades, err := adapter.ListGrades(context.Background(), "5")
	require.NoError(t, err)
	require.Len(t, grades, 1)
	assert.Equal(t, "11", grades[0].UserID)
	assert.Equal(t, "100", grades[0].ModuleID)
	assert.Equal(t, 80.0, grades[0].Percentage)
	require.NotNil(t, grades[0].Feedback)
	assert.Equal(t, "good", *grades[0].Feedback)
}

func TestMoodleExpiredTokenRefreshesOnce(t *testing.T) {
	f := &fakeMoodle{responses: map[string]string{
		"core_user_get_users": `{"users":[{"id":11,"email":"a@school.edu","fullname":"Alice A","roles":[]}]}`,
	}}
	adapter, cleanup := newTestMoodle(t, f)
	defer cleanup()

	_, err := adapter.Authenticate(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, f.tokenCalls)

	// The provider invalidates the session; the next call must re-exchange
	// credentials exactly once and then succeed.
	f.expireToken()
	users, err := adapter.ListUsers(context.Background())
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, 2, f.tokenCalls)
}

func TestMoodleNonAuthExceptionSurfaces(t *testing.T) {
	f := &fakeMoodle{responses: map[string]string{}}
	adapter, cleanup := newTestMoodle(t, f)
	defer cleanup()

	_, err := adapter.Authenticate(context.Background())
	require.NoError(t, err)

	_, err = adapter.ListUsers(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalidfunction")
	assert.False(t, IsAuthError(err))
	assert.Equal(t, 1, f.tokenCalls)
}

func TestMoodleUpdateGrade(t *testing.T) {
	f := &fakeMoodle{responses: map[string]string{
		"core_grades_update_grades": `null`,
	}}
	adapter, cleanup := newTestMoodle(t, f)
	defer cleanup()

	_, err := adapter.Authenticate(context.Background())
	require.NoError(t, err)

	err = adapter.UpdateGrade(context.Background(), "77", models.ExternalGrade{
		UserID: "11",
		Score:  8.5,
	})
	require.NoError(t, err)
	assert.Equal(t, "77", f.lastQuery.Get("itemid"))
	assert.Equal(t, "11", f.lastQuery.Get("grades[0][studentid]"))
	assert.Equal(t, "8.5", f.lastQuery.Get("grades[0][grade]"))
}

func TestMoodleAuthenticateUnauthorizedStatus(t *testing.T) {
	var loginCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/login/token.php", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&loginCalls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	adapter := newMoodleAdapter(models.ProviderConfig{
		ProviderType: models.ProviderMoodle,
		BaseURL:      srv.URL,
		Credentials:  models.Credentials{Username: "admin", Password: "s3cret"},
		Timeout:      time.Second,
	}, zap.NewNop())

	ok, err := adapter.Authenticate(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	// A 401 from the login endpoint is a plain credential rejection; it must
	// not trigger a refresh that re-runs the exchange.
	assert.EqualValues(t, 1, atomic.LoadInt32(&loginCalls))
}
