package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/campushub/lms-sync-api/internal/models"
)

const bbPageSize = 100

// blackboardAdapter talks to Blackboard-style providers: resource REST under
// /learn/api/public/v1 with OAuth2 client-credentials auth and offset paging.
// Grade fetching is an N+1 pattern, one call per gradebook column. Gradebook
// routes are course-scoped, so grade item ids are composite
// "courseID:columnID" values like the Canvas adapter's.
type blackboardAdapter struct {
	cfg    models.ProviderConfig
	client *Client
	log    *zap.Logger

	mu          sync.RWMutex
	accessToken string
	expiresAt   time.Time
}

func newBlackboardAdapter(cfg models.ProviderConfig, log *zap.Logger) *blackboardAdapter {
	a := &blackboardAdapter{
		cfg:    cfg,
		client: NewClient(cfg.BaseURL, cfg.Timeout, log),
		log:    log.With(zap.String("provider", string(models.ProviderBlackboard))),
	}
	a.client.SetAuthorize(a.authorize)
	a.client.SetRefresh(a.RefreshCredentials)
	return a
}

type bbTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// Authenticate runs the client-credentials grant against the token endpoint.
func (a *blackboardAdapter) Authenticate(ctx context.Context) (bool, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	token := NewClient(a.cfg.BaseURL, a.cfg.Timeout, a.log)
	token.SetAuthorize(func(req *http.Request) {
		req.SetBasicAuth(a.cfg.Credentials.ClientID, a.cfg.Credentials.ClientSecret)
	})

	var resp bbTokenResponse
	if err := token.PostForm(ctx, "/learn/api/public/v1/oauth2/token", form, &resp); err != nil {
		if IsAuthError(err) {
			return false, nil
		}
		return false, err
	}
	if resp.AccessToken == "" {
		return false, nil
	}

	expiresAt := time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	if resp.ExpiresIn == 0 {
		if exp, ok := tokenExpiry(resp.AccessToken); ok {
			expiresAt = exp
		} else {
			expiresAt = time.Now().Add(30 * time.Minute)
		}
	}

	a.mu.Lock()
	a.accessToken = resp.AccessToken
	a.expiresAt = expiresAt
	a.mu.Unlock()

	a.log.Debug("blackboard token obtained", zap.Time("expires_at", expiresAt))
	return true, nil
}

// RefreshCredentials re-runs the client-credentials grant. The grant does not
// hand out refresh tokens, so refresh and authenticate are the same exchange.
func (a *blackboardAdapter) RefreshCredentials(ctx context.Context) (bool, error) {
	return a.Authenticate(ctx)
}

func (a *blackboardAdapter) authorize(req *http.Request) {
	a.mu.RLock()
	token := a.accessToken
	a.mu.RUnlock()
	req.Header.Set("Authorization", "Bearer "+token)
}

// listPaged walks an offset-paged collection endpoint draining every page.
func (a *blackboardAdapter) listPaged(ctx context.Context, path string, query url.Values, results func() interface{}, drain func(interface{}) int) error {
	for offset := 0; ; offset += bbPageSize {
		q := url.Values{}
		for k, vs := range query {
			q[k] = vs
		}
		q.Set("offset", strconv.Itoa(offset))
		q.Set("limit", strconv.Itoa(bbPageSize))

		page := results()
		if err := a.client.GetJSON(ctx, path, q, page); err != nil {
			return err
		}
		if drain(page) < bbPageSize {
			return nil
		}
	}
}

type bbUser struct {
	ID   string `json:"id"`
	Name struct {
		Given  string `json:"given"`
		Family string `json:"family"`
	} `json:"name"`
	Contact struct {
		Email string `json:"email"`
	} `json:"contact"`
	InstitutionRoleIDs []string `json:"institutionRoleIds"`
}

func (a *blackboardAdapter) ListUsers(ctx context.Context) ([]models.ExternalUser, error) {
	var users []models.ExternalUser
	err := a.listPaged(ctx, "/learn/api/public/v1/users", nil,
		func() interface{} { return &struct{ Results []bbUser }{} },
		func(page interface{}) int {
			batch := page.(*struct{ Results []bbUser }).Results
			for _, u := range batch {
				role := models.RoleStudent
				if len(u.InstitutionRoleIDs) > 0 {
					role = mapRole(blackboardRoles, u.InstitutionRoleIDs[0])
				}
				users = append(users, models.ExternalUser{
					ExternalID:  u.ID,
					Email:       u.Contact.Email,
					DisplayName: u.Name.Given + " " + u.Name.Family,
					Role:        role,
				})
			}
			return len(batch)
		})
	if err != nil {
		return nil, err
	}
	return users, nil
}

type bbCourse struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Created      flexTime `json:"created"`
	TermEnd      flexTime `json:"endDate"`
	Availability struct {
		Available string `json:"available"`
	} `json:"availability"`
}

func (a *blackboardAdapter) ListCourses(ctx context.Context) ([]models.ExternalCourse, error) {
	var courses []models.ExternalCourse
	err := a.listPaged(ctx, "/learn/api/public/v1/courses", nil,
		func() interface{} { return &struct{ Results []bbCourse }{} },
		func(page interface{}) int {
			batch := page.(*struct{ Results []bbCourse }).Results
			for _, c := range batch {
				var status models.CourseStatus
				switch c.Availability.Available {
				case "Yes":
					status = models.CourseActive
				case "Disabled":
					status = models.CourseArchived
				default:
					status = models.CourseInactive
				}
				courses = append(courses, models.ExternalCourse{
					ExternalID:  c.ID,
					Name:        c.Name,
					Description: optString(c.Description),
					StartDate:   c.Created.Time(),
					EndDate:     c.TermEnd.Time(),
					Status:      status,
				})
			}
			return len(batch)
		})
	if err != nil {
		return nil, err
	}
	return courses, nil
}

type bbColumn struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Score struct {
		Possible float64 `json:"possible"`
	} `json:"score"`
}

type bbColumnGrade struct {
	UserID       string   `json:"userId"`
	Score        *float64 `json:"score"`
	Feedback     string   `json:"feedback"`
	Exempt       bool     `json:"exempt"`
	LastRelevant flexTime `json:"lastRelevantDate"`
}

// ListGrades lists gradebook columns then pulls each column's user scores.
// One call per column is how this provider family shapes its gradebook.
func (a *blackboardAdapter) ListGrades(ctx context.Context, courseID string) ([]models.ExternalGrade, error) {
	var columns []bbColumn
	err := a.listPaged(ctx, "/learn/api/public/v2/courses/"+courseID+"/gradebook/columns", nil,
		func() interface{} { return &struct{ Results []bbColumn }{} },
		func(page interface{}) int {
			batch := page.(*struct{ Results []bbColumn }).Results
			columns = append(columns, batch...)
			return len(batch)
		})
	if err != nil {
		return nil, err
	}

	var grades []models.ExternalGrade
	for _, col := range columns {
		err := a.listPaged(ctx, "/learn/api/public/v2/courses/"+courseID+"/gradebook/columns/"+col.ID+"/users", nil,
			func() interface{} { return &struct{ Results []bbColumnGrade }{} },
			func(page interface{}) int {
				batch := page.(*struct{ Results []bbColumnGrade }).Results
				for _, entry := range batch {
					if entry.Score == nil || entry.Exempt {
						continue
					}
					grade := models.ExternalGrade{
						UserID:   entry.UserID,
						ModuleID: compositeGradeID(courseID, col.ID),
						Score:    *entry.Score,
						MaxScore: col.Score.Possible,
						Feedback: optString(entry.Feedback),
						GradedAt: entry.LastRelevant.Time(),
					}
					if t := entry.LastRelevant.Time(); t != nil {
						grade.SubmittedAt = *t
					}
					grade.DerivePercentage()
					grades = append(grades, grade)
				}
				return len(batch)
			})
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col.ID, err)
		}
	}
	return grades, nil
}

func (a *blackboardAdapter) PushGrades(ctx context.Context, grades []models.ExternalGrade) error {
	for _, g := range grades {
		courseID, columnID, err := splitGradeID(g.ModuleID)
		if err != nil {
			return err
		}
		body := map[string]interface{}{
			"score": g.Score,
		}
		if g.Feedback != nil {
			body["feedback"] = *g.Feedback
		}
		path := "/learn/api/public/v2/courses/" + courseID + "/gradebook/columns/" + columnID + "/users/" + g.UserID
		if err := a.client.PatchJSON(ctx, path, nil, body, nil); err != nil {
			return fmt.Errorf("push grade for user %s: %w", g.UserID, err)
		}
	}
	return nil
}

func (a *blackboardAdapter) CreateAssignment(ctx context.Context, courseID string, assignment models.Assignment) (string, error) {
	body := map[string]interface{}{
		"name":        assignment.Name,
		"description": assignment.Description,
		"score": map[string]interface{}{
			"possible": assignment.MaxScore,
		},
	}
	if assignment.DueDate != nil {
		body["grading"] = map[string]interface{}{
			"due": assignment.DueDate.UTC().Format(time.RFC3339),
		}
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := a.client.PostJSON(ctx, "/learn/api/public/v2/courses/"+courseID+"/gradebook/columns", nil, body, &created); err != nil {
		return "", err
	}
	return compositeGradeID(courseID, created.ID), nil
}

func (a *blackboardAdapter) UpdateGrade(ctx context.Context, gradeID string, grade models.ExternalGrade) error {
	grade.ModuleID = gradeID
	return a.PushGrades(ctx, []models.ExternalGrade{grade})
}
