package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/campushub/lms-sync-api/internal/models"
)

const canvasPageSize = 100

// canvasAdapter talks to Canvas-style providers: resource-oriented REST under
// /api/v1 with a pre-supplied bearer token and page-numbered pagination.
// Grade item identifiers are composite "courseID:assignmentID" values because
// the provider scopes every gradebook route by course.
type canvasAdapter struct {
	cfg    models.ProviderConfig
	client *Client
	log    *zap.Logger
}

func newCanvasAdapter(cfg models.ProviderConfig, log *zap.Logger) *canvasAdapter {
	a := &canvasAdapter{
		cfg: cfg,
		log: log.With(zap.String("provider", string(models.ProviderCanvas))),
	}
	a.client = NewClient(cfg.BaseURL, cfg.Timeout, log)
	a.client.SetAuthorize(a.authorize)
	a.client.SetRefresh(a.RefreshCredentials)
	return a
}

// Authenticate validates the supplied bearer token against the self endpoint.
// The probe runs on a transport without the refresh hook: a rejected token is
// a plain (false, nil), and refreshing would re-enter this method.
func (a *canvasAdapter) Authenticate(ctx context.Context) (bool, error) {
	probe := NewClient(a.cfg.BaseURL, a.cfg.Timeout, a.log)
	probe.SetAuthorize(a.authorize)

	var self struct {
		ID int64 `json:"id"`
	}
	err := probe.GetJSON(ctx, "/api/v1/users/self", nil, &self)
	if err == nil {
		return true, nil
	}
	if IsAuthError(err) {
		return false, nil
	}
	return false, err
}

// RefreshCredentials re-validates the static token. A Canvas-style bearer
// token has no refresh exchange; if the token went stale there is nothing the
// adapter can do but report it.
func (a *canvasAdapter) RefreshCredentials(ctx context.Context) (bool, error) {
	return a.Authenticate(ctx)
}

func (a *canvasAdapter) authorize(req *http.Request) {
	token := a.cfg.Credentials.Token
	if token == "" {
		token = a.cfg.Credentials.APIKey
	}
	req.Header.Set("Authorization", "Bearer "+token)
}

// paginate walks page-numbered list endpoints until a short page.
func paginate[T any](ctx context.Context, c *Client, path string, query url.Values) ([]T, error) {
	var all []T
	for page := 1; ; page++ {
		q := url.Values{}
		for k, vs := range query {
			q[k] = vs
		}
		q.Set("page", strconv.Itoa(page))
		q.Set("per_page", strconv.Itoa(canvasPageSize))

		var batch []T
		if err := c.GetJSON(ctx, path, q, &batch); err != nil {
			return nil, err
		}
		all = append(all, batch...)
		if len(batch) < canvasPageSize {
			return all, nil
		}
	}
}

type canvasUser struct {
	ID          int64  `json:"id"`
	Email       string `json:"email"`
	Name        string `json:"name"`
	Enrollments []struct {
		Type string `json:"type"`
	} `json:"enrollments"`
}

func (a *canvasAdapter) ListUsers(ctx context.Context) ([]models.ExternalUser, error) {
	query := url.Values{}
	query.Set("include[]", "enrollments")
	raw, err := paginate[canvasUser](ctx, a.client, "/api/v1/accounts/self/users", query)
	if err != nil {
		return nil, err
	}

	users := make([]models.ExternalUser, 0, len(raw))
	for _, u := range raw {
		role := models.RoleStudent
		if len(u.Enrollments) > 0 {
			role = mapRole(canvasRoles, u.Enrollments[0].Type)
		}
		users = append(users, models.ExternalUser{
			ExternalID:  strconv.FormatInt(u.ID, 10),
			Email:       u.Email,
			DisplayName: u.Name,
			Role:        role,
		})
	}
	return users, nil
}

type canvasCourse struct {
	ID            int64    `json:"id"`
	Name          string   `json:"name"`
	PublicDesc    string   `json:"public_description"`
	StartAt       flexTime `json:"start_at"`
	EndAt         flexTime `json:"end_at"`
	WorkflowState string   `json:"workflow_state"`
}

func (a *canvasAdapter) ListCourses(ctx context.Context) ([]models.ExternalCourse, error) {
	raw, err := paginate[canvasCourse](ctx, a.client, "/api/v1/accounts/self/courses", nil)
	if err != nil {
		return nil, err
	}

	courses := make([]models.ExternalCourse, 0, len(raw))
	for _, c := range raw {
		var status models.CourseStatus
		switch c.WorkflowState {
		case "available":
			status = models.CourseActive
		case "completed", "deleted":
			status = models.CourseArchived
		default:
			status = models.CourseInactive
		}
		courses = append(courses, models.ExternalCourse{
			ExternalID:  strconv.FormatInt(c.ID, 10),
			Name:        c.Name,
			Description: optString(c.PublicDesc),
			StartDate:   c.StartAt.Time(),
			EndDate:     c.EndAt.Time(),
			Status:      status,
		})
	}
	return courses, nil
}

type canvasAssignment struct {
	ID             int64   `json:"id"`
	PointsPossible float64 `json:"points_possible"`
}

type canvasSubmission struct {
	AssignmentID int64    `json:"assignment_id"`
	UserID       int64    `json:"user_id"`
	Score        *float64 `json:"score"`
	SubmittedAt  flexTime `json:"submitted_at"`
	GradedAt     flexTime `json:"graded_at"`
	Comment      string   `json:"grader_comment"`
}

// ListGrades fetches the course assignment list for max scores, then all
// graded submissions. Two calls per course regardless of column count.
func (a *canvasAdapter) ListGrades(ctx context.Context, courseID string) ([]models.ExternalGrade, error) {
	assignments, err := paginate[canvasAssignment](ctx, a.client, "/api/v1/courses/"+courseID+"/assignments", nil)
	if err != nil {
		return nil, err
	}
	maxScores := make(map[int64]float64, len(assignments))
	for _, as := range assignments {
		maxScores[as.ID] = as.PointsPossible
	}

	query := url.Values{}
	query.Set("student_ids[]", "all")
	query.Set("workflow_state", "graded")
	submissions, err := paginate[canvasSubmission](ctx, a.client, "/api/v1/courses/"+courseID+"/students/submissions", query)
	if err != nil {
		return nil, err
	}

	var grades []models.ExternalGrade
	for _, sub := range submissions {
		if sub.Score == nil {
			continue
		}
		grade := models.ExternalGrade{
			UserID:   strconv.FormatInt(sub.UserID, 10),
			ModuleID: compositeGradeID(courseID, strconv.FormatInt(sub.AssignmentID, 10)),
			Score:    *sub.Score,
			MaxScore: maxScores[sub.AssignmentID],
			Feedback: optString(sub.Comment),
			GradedAt: sub.GradedAt.Time(),
		}
		if t := sub.SubmittedAt.Time(); t != nil {
			grade.SubmittedAt = *t
		}
		grade.DerivePercentage()
		grades = append(grades, grade)
	}
	return grades, nil
}

func (a *canvasAdapter) PushGrades(ctx context.Context, grades []models.ExternalGrade) error {
	for _, g := range grades {
		courseID, assignmentID, err := splitGradeID(g.ModuleID)
		if err != nil {
			return err
		}
		path := fmt.Sprintf("/api/v1/courses/%s/assignments/%s/submissions/%s", courseID, assignmentID, g.UserID)
		body := map[string]interface{}{
			"submission": map[string]interface{}{
				"posted_grade": strconv.FormatFloat(g.Score, 'f', -1, 64),
			},
		}
		if g.Feedback != nil {
			body["comment"] = map[string]string{"text_comment": *g.Feedback}
		}
		if err := a.client.PutJSON(ctx, path, nil, body, nil); err != nil {
			return fmt.Errorf("push grade for user %s: %w", g.UserID, err)
		}
	}
	return nil
}

func (a *canvasAdapter) CreateAssignment(ctx context.Context, courseID string, assignment models.Assignment) (string, error) {
	body := map[string]interface{}{
		"assignment": map[string]interface{}{
			"name":            assignment.Name,
			"description":     assignment.Description,
			"points_possible": assignment.MaxScore,
			"published":       true,
		},
	}
	if assignment.DueDate != nil {
		body["assignment"].(map[string]interface{})["due_at"] = assignment.DueDate.UTC().Format("2006-01-02T15:04:05Z")
	}

	var created struct {
		ID int64 `json:"id"`
	}
	if err := a.client.PostJSON(ctx, "/api/v1/courses/"+courseID+"/assignments", nil, body, &created); err != nil {
		return "", err
	}
	return compositeGradeID(courseID, strconv.FormatInt(created.ID, 10)), nil
}

func (a *canvasAdapter) UpdateGrade(ctx context.Context, gradeID string, grade models.ExternalGrade) error {
	grade.ModuleID = gradeID
	return a.PushGrades(ctx, []models.ExternalGrade{grade})
}

func compositeGradeID(courseID, assignmentID string) string {
	return courseID + ":" + assignmentID
}

func splitGradeID(id string) (courseID, assignmentID string, err error) {
	parts := strings.SplitN(id, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed grade item id %q", id)
	}
	return parts[0], parts[1], nil
}
