package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/campushub/lms-sync-api/internal/models"
)

const moodleTokenService = "lms_sync"

// moodleAdapter talks to Moodle-style providers: a single webservice endpoint
// dispatched by a wsfunction query parameter, with a token obtained by POSTing
// username/password to a login endpoint. Moodle reports most failures as HTTP
// 200 with an exception payload, so errors are detected after decoding.
type moodleAdapter struct {
	cfg    models.ProviderConfig
	client *Client
	log    *zap.Logger

	mu    sync.RWMutex
	token string
}

func newMoodleAdapter(cfg models.ProviderConfig, log *zap.Logger) *moodleAdapter {
	a := &moodleAdapter{
		cfg:    cfg,
		client: NewClient(cfg.BaseURL, cfg.Timeout, log),
		log:    log.With(zap.String("provider", string(models.ProviderMoodle))),
	}
	a.client.SetRefresh(a.RefreshCredentials)
	return a
}

type moodleTokenResponse struct {
	Token string `json:"token"`
	Error string `json:"error"`
}

type moodleException struct {
	Exception string `json:"exception"`
	ErrorCode string `json:"errorcode"`
	Message   string `json:"message"`
}

func (a *moodleAdapter) Authenticate(ctx context.Context) (bool, error) {
	form := url.Values{}
	form.Set("username", a.cfg.Credentials.Username)
	form.Set("password", a.cfg.Credentials.Password)
	form.Set("service", moodleTokenService)

	// The exchange runs on a transport without the refresh hook: a rejected
	// login is terminal, and refreshing would re-enter this method.
	login := NewClient(a.cfg.BaseURL, a.cfg.Timeout, a.log)

	var resp moodleTokenResponse
	if err := login.PostForm(ctx, "/login/token.php", form, &resp); err != nil {
		if IsAuthError(err) {
			return false, nil
		}
		return false, err
	}
	if resp.Token == "" {
		a.log.Debug("moodle token exchange rejected", zap.String("error", resp.Error))
		return false, nil
	}

	a.mu.Lock()
	a.token = resp.Token
	a.mu.Unlock()
	return true, nil
}

// RefreshCredentials re-runs the token exchange; Moodle tokens carry no
// refresh flow of their own.
func (a *moodleAdapter) RefreshCredentials(ctx context.Context) (bool, error) {
	return a.Authenticate(ctx)
}

// call invokes one webservice function and decodes its payload into out. An
// invalid-token exception triggers exactly one refresh and re-attempt; other
// exceptions surface as errors.
func (a *moodleAdapter) call(ctx context.Context, function string, params url.Values, out interface{}) error {
	raw, err := a.invoke(ctx, function, params)
	if err != nil {
		return err
	}

	var exc moodleException
	if json.Unmarshal(raw, &exc) == nil && exc.Exception != "" {
		if exc.ErrorCode != "invalidtoken" {
			return fmt.Errorf("moodle %s: %s (%s)", function, exc.Message, exc.ErrorCode)
		}
		ok, refreshErr := a.RefreshCredentials(ctx)
		if refreshErr != nil {
			return fmt.Errorf("credential refresh: %w", refreshErr)
		}
		if !ok {
			return &StatusError{StatusCode: 401, Body: "moodle token refresh rejected"}
		}
		if raw, err = a.invoke(ctx, function, params); err != nil {
			return err
		}
		if json.Unmarshal(raw, &exc) == nil && exc.Exception != "" {
			return fmt.Errorf("moodle %s: %s (%s)", function, exc.Message, exc.ErrorCode)
		}
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func (a *moodleAdapter) invoke(ctx context.Context, function string, params url.Values) (json.RawMessage, error) {
	a.mu.RLock()
	token := a.token
	a.mu.RUnlock()

	query := url.Values{}
	for k, vs := range params {
		query[k] = vs
	}
	query.Set("wstoken", token)
	query.Set("wsfunction", function)
	query.Set("moodlewsrestformat", "json")

	var raw json.RawMessage
	if err := a.client.GetJSON(ctx, "/webservice/rest/server.php", query, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

type moodleUser struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"fullname"`
	Roles    []struct {
		ShortName string `json:"shortname"`
	} `json:"roles"`
}

func (a *moodleAdapter) ListUsers(ctx context.Context) ([]models.ExternalUser, error) {
	params := url.Values{}
	params.Set("criteria[0][key]", "deleted")
	params.Set("criteria[0][value]", "0")

	var resp struct {
		Users []moodleUser `json:"users"`
	}
	if err := a.call(ctx, "core_user_get_users", params, &resp); err != nil {
		return nil, err
	}

	users := make([]models.ExternalUser, 0, len(resp.Users))
	for _, u := range resp.Users {
		role := models.RoleStudent
		if len(u.Roles) > 0 {
			role = mapRole(moodleRoles, u.Roles[0].ShortName)
		}
		users = append(users, models.ExternalUser{
			ExternalID:  strconv.FormatInt(u.ID, 10),
			Email:       u.Email,
			DisplayName: u.FullName,
			Role:        role,
		})
	}
	return users, nil
}

type moodleCourse struct {
	ID        int64    `json:"id"`
	FullName  string   `json:"fullname"`
	Summary   string   `json:"summary"`
	StartDate flexTime `json:"startdate"`
	EndDate   flexTime `json:"enddate"`
	Visible   int      `json:"visible"`
}

func (a *moodleAdapter) ListCourses(ctx context.Context) ([]models.ExternalCourse, error) {
	var resp []moodleCourse
	if err := a.call(ctx, "core_course_get_courses", url.Values{}, &resp); err != nil {
		return nil, err
	}

	courses := make([]models.ExternalCourse, 0, len(resp))
	for _, c := range resp {
		status := models.CourseActive
		if c.Visible == 0 {
			status = models.CourseInactive
		}
		courses = append(courses, models.ExternalCourse{
			ExternalID:  strconv.FormatInt(c.ID, 10),
			Name:        c.FullName,
			Description: optString(c.Summary),
			StartDate:   c.StartDate.Time(),
			EndDate:     c.EndDate.Time(),
			Status:      status,
		})
	}
	return courses, nil
}

type moodleGradeItem struct {
	ID            int64    `json:"id"`
	GradeRaw      *float64 `json:"graderaw"`
	GradeMax      float64  `json:"grademax"`
	Feedback      string   `json:"feedback"`
	DateSubmitted flexTime `json:"gradedatesubmitted"`
	DateGraded    flexTime `json:"gradedategraded"`
}

// ListGrades uses the user grade report, which returns every user's scores on
// every gradable item of the course in one nested payload.
func (a *moodleAdapter) ListGrades(ctx context.Context, courseID string) ([]models.ExternalGrade, error) {
	params := url.Values{}
	params.Set("courseid", courseID)

	var resp struct {
		UserGrades []struct {
			UserID     int64             `json:"userid"`
			GradeItems []moodleGradeItem `json:"gradeitems"`
		} `json:"usergrades"`
	}
	if err := a.call(ctx, "gradereport_user_get_grade_items", params, &resp); err != nil {
		return nil, err
	}

	var grades []models.ExternalGrade
	for _, ug := range resp.UserGrades {
		for _, item := range ug.GradeItems {
			if item.GradeRaw == nil {
				continue
			}
			grade := models.ExternalGrade{
				UserID:   strconv.FormatInt(ug.UserID, 10),
				ModuleID: strconv.FormatInt(item.ID, 10),
				Score:    *item.GradeRaw,
				MaxScore: item.GradeMax,
				Feedback: optString(item.Feedback),
				GradedAt: item.DateGraded.Time(),
			}
			if t := item.DateSubmitted.Time(); t != nil {
				grade.SubmittedAt = *t
			}
			grade.DerivePercentage()
			grades = append(grades, grade)
		}
	}
	return grades, nil
}

func (a *moodleAdapter) PushGrades(ctx context.Context, grades []models.ExternalGrade) error {
	for _, g := range grades {
		params := url.Values{}
		params.Set("itemid", g.ModuleID)
		params.Set("grades[0][studentid]", g.UserID)
		params.Set("grades[0][grade]", strconv.FormatFloat(g.Score, 'f', -1, 64))
		if g.Feedback != nil {
			params.Set("grades[0][str_feedback]", *g.Feedback)
		}
		if err := a.call(ctx, "core_grades_update_grades", params, nil); err != nil {
			return fmt.Errorf("push grade for user %s: %w", g.UserID, err)
		}
	}
	return nil
}

func (a *moodleAdapter) CreateAssignment(ctx context.Context, courseID string, assignment models.Assignment) (string, error) {
	params := url.Values{}
	params.Set("courseid", courseID)
	params.Set("name", assignment.Name)
	params.Set("grademax", strconv.FormatFloat(assignment.MaxScore, 'f', -1, 64))
	if assignment.Description != "" {
		params.Set("description", assignment.Description)
	}
	if assignment.DueDate != nil {
		params.Set("duedate", strconv.FormatInt(assignment.DueDate.Unix(), 10))
	}

	var resp struct {
		ID int64 `json:"id"`
	}
	if err := a.call(ctx, "core_grades_create_gradeitem", params, &resp); err != nil {
		return "", err
	}
	return strconv.FormatInt(resp.ID, 10), nil
}

func (a *moodleAdapter) UpdateGrade(ctx context.Context, gradeID string, grade models.ExternalGrade) error {
	params := url.Values{}
	params.Set("itemid", gradeID)
	params.Set("grades[0][studentid]", grade.UserID)
	params.Set("grades[0][grade]", strconv.FormatFloat(grade.Score, 'f', -1, 64))
	return a.call(ctx, "core_grades_update_grades", params, nil)
}
