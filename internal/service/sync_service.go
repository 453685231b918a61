package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campushub/lms-sync-api/internal/models"
	"github.com/campushub/lms-sync-api/internal/provider"
	appErrors "github.com/campushub/lms-sync-api/pkg/errors"
	"github.com/campushub/lms-sync-api/pkg/jobs"
)

type syncConnectionRepo interface {
	BeginSync(ctx context.Context, id string) (bool, error)
	FinishSync(ctx context.Context, id string, syncStatus models.SyncStatus, status models.ConnectionStatus, errorMessage *string) error
}

type rosterRepo interface {
	UpsertUser(ctx context.Context, user *models.ExternalUser) error
	UpsertCourse(ctx context.Context, course *models.ExternalCourse) error
	UpsertGrade(ctx context.Context, grade *models.ExternalGrade) error
	ListUsers(ctx context.Context, connectionID string) ([]models.ExternalUser, error)
	ListCourses(ctx context.Context, connectionID string) ([]models.ExternalCourse, error)
	ListGrades(ctx context.Context, connectionID string) ([]models.ExternalGrade, error)
	Counts(ctx context.Context, connectionID string) (users, courses, grades int, err error)
}

type adapterSource interface {
	Adapter(ctx context.Context, connectionID string) (provider.Adapter, error)
	Get(ctx context.Context, connectionID string) (*models.Connection, error)
}

// ExportGradesRequest is the payload for pushing grades back to a provider.
type ExportGradesRequest struct {
	Grades []ExportGradeItem `json:"grades" validate:"required,min=1,dive"`
}

// ExportGradeItem is one outbound grade entry.
type ExportGradeItem struct {
	UserID   string  `json:"user_id" validate:"required"`
	ModuleID string  `json:"module_id" validate:"required"`
	Score    float64 `json:"score"`
	MaxScore float64 `json:"max_score" validate:"required,gt=0"`
	Feedback string  `json:"feedback,omitempty"`
}

// SyncService drives full synchronization passes. Each pass runs the three
// phases strictly in order (users, courses, per-course grades); one phase's
// failure is recorded and the next phase still attempted, so callers get an
// accurate count of what actually landed rather than all-or-nothing.
type SyncService struct {
	conns     syncConnectionRepo
	roster    rosterRepo
	registry  adapterSource
	cache     *ResultCache
	metrics   *MetricsService
	queue     *jobs.Queue
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSyncService constructs SyncService. The queue is optional; without it
// only synchronous syncs are available.
func NewSyncService(conns syncConnectionRepo, roster rosterRepo, registry adapterSource, cache *ResultCache, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *SyncService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncService{
		conns:     conns,
		roster:    roster,
		registry:  registry,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

// AttachQueue wires the background queue used for async syncs.
func (s *SyncService) AttachQueue(queue *jobs.Queue) { s.queue = queue }

// HandleJob is the queue handler for enqueued sync jobs.
func (s *SyncService) HandleJob(ctx context.Context, job jobs.Job) error {
	connectionID, ok := job.Payload.(string)
	if !ok {
		return fmt.Errorf("sync job %s carries unexpected payload %T", job.ID, job.Payload)
	}
	result, err := s.Sync(ctx, connectionID)
	if err != nil {
		// A rejected sync (already running, connection gone) is not worth a
		// queue retry.
		s.logger.Warn("async sync rejected", zap.String("connection_id", connectionID), zap.Error(err))
		return nil
	}
	s.logger.Info("async sync finished",
		zap.String("connection_id", connectionID),
		zap.Bool("success", result.Success),
		zap.Int("users", result.SyncedUsers),
		zap.Int("courses", result.SyncedCourses),
		zap.Int("grades", result.SyncedGrades))
	return nil
}

// Enqueue schedules a background sync for the connection.
func (s *SyncService) Enqueue(connectionID string) error {
	if s.queue == nil {
		return appErrors.Clone(appErrors.ErrInternal, "background sync queue not configured")
	}
	return s.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    "connection_sync",
		Payload: connectionID,
	})
}

// Sync runs one full pass for the connection: fetch+upsert users, courses and
// per-course grades. The idle→syncing transition is an atomic status flip; a
// second sync request while one is running is rejected, never interleaved.
func (s *SyncService) Sync(ctx context.Context, connectionID string) (*models.SyncResult, error) {
	conn, err := s.registry.Get(ctx, connectionID)
	if err != nil {
		return nil, err
	}

	started, err := s.conns.BeginSync(ctx, connectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark connection syncing")
	}
	if !started {
		return nil, appErrors.ErrSyncInProgress
	}

	log := s.logger.With(
		zap.String("connection_id", connectionID),
		zap.String("provider", string(conn.ProviderType)))
	log.Info("sync started")

	result := &models.SyncResult{
		ConnectionID: connectionID,
		Errors:       []string{},
		Warnings:     []string{},
		StartedAt:    time.Now().UTC(),
	}

	adapter, err := s.registry.Adapter(ctx, connectionID)
	if err != nil {
		result.Errors = append(result.Errors, "adapter unavailable: "+err.Error())
		s.finish(ctx, conn, result, true, log)
		return result, nil
	}

	fatal := s.syncUsers(ctx, adapter, connectionID, result, log)
	var courses []models.ExternalCourse
	if !fatal {
		courses, fatal = s.syncCourses(ctx, adapter, connectionID, result, log)
	}
	if !fatal {
		fatal = s.syncGrades(ctx, adapter, connectionID, courses, result, log)
	}

	s.finish(ctx, conn, result, fatal, log)
	return result, nil
}

// syncUsers fetches and upserts the provider's users. Returns true when the
// failure was an authentication one, which is fatal for the whole pass.
func (s *SyncService) syncUsers(ctx context.Context, adapter provider.Adapter, connectionID string, result *models.SyncResult, log *zap.Logger) (fatal bool) {
	defer recoverPhase("users", result, log)

	users, err := adapter.ListUsers(ctx)
	if err != nil {
		return s.recordPhaseError("users", err, result, log)
	}
	for i := range users {
		users[i].ConnectionID = connectionID
		if err := s.roster.UpsertUser(ctx, &users[i]); err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("user %s not stored: %v", users[i].ExternalID, err))
			continue
		}
		result.SyncedUsers++
	}
	log.Debug("users synced", zap.Int("count", result.SyncedUsers))
	return false
}

func (s *SyncService) syncCourses(ctx context.Context, adapter provider.Adapter, connectionID string, result *models.SyncResult, log *zap.Logger) (courses []models.ExternalCourse, fatal bool) {
	defer recoverPhase("courses", result, log)

	fetched, err := adapter.ListCourses(ctx)
	if err != nil {
		return nil, s.recordPhaseError("courses", err, result, log)
	}
	for i := range fetched {
		fetched[i].ConnectionID = connectionID
		if err := s.roster.UpsertCourse(ctx, &fetched[i]); err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("course %s not stored: %v", fetched[i].ExternalID, err))
			continue
		}
		result.SyncedCourses++
		courses = append(courses, fetched[i])
	}
	log.Debug("courses synced", zap.Int("count", result.SyncedCourses))
	return courses, false
}

// syncGrades walks the course list just retrieved; grades cannot be fetched
// for courses we failed to list. One course's grade failure does not stop
// the remaining courses.
func (s *SyncService) syncGrades(ctx context.Context, adapter provider.Adapter, connectionID string, courses []models.ExternalCourse, result *models.SyncResult, log *zap.Logger) (fatal bool) {
	defer recoverPhase("grades", result, log)

	for _, course := range courses {
		grades, err := adapter.ListGrades(ctx, course.ExternalID)
		if err != nil {
			if fatal = s.recordPhaseError("grades for course "+course.ExternalID, err, result, log); fatal {
				return true
			}
			continue
		}
		for i := range grades {
			grades[i].ConnectionID = connectionID
			grades[i].DerivePercentage()
			if err := s.roster.UpsertGrade(ctx, &grades[i]); err != nil {
				result.Warnings = append(result.Warnings, fmt.Sprintf("grade %s/%s not stored: %v", grades[i].UserID, grades[i].ModuleID, err))
				continue
			}
			result.SyncedGrades++
		}
	}
	log.Debug("grades synced", zap.Int("count", result.SyncedGrades))
	return false
}

// recordPhaseError appends the failure and classifies it: auth failures end
// the pass, anything else only skips the phase.
func (s *SyncService) recordPhaseError(phase string, err error, result *models.SyncResult, log *zap.Logger) (fatal bool) {
	if provider.IsAuthError(err) {
		result.Errors = append(result.Errors, "authentication failed during "+phase+" fetch")
		log.Warn("sync phase hit fatal auth failure", zap.String("phase", phase), zap.Error(err))
		return true
	}
	result.Errors = append(result.Errors, fmt.Sprintf("failed to fetch %s: %v", phase, err))
	log.Warn("sync phase failed", zap.String("phase", phase), zap.Error(err))
	return false
}

// recoverPhase converts an unexpected panic inside a phase into a recorded
// error so a decoding bug degrades one step instead of crashing the sync.
func recoverPhase(phase string, result *models.SyncResult, log *zap.Logger) {
	if r := recover(); r != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("unexpected failure in %s phase: %v", phase, r))
		log.Error("sync phase panicked", zap.String("phase", phase), zap.Any("panic", r))
	}
}

func (s *SyncService) finish(ctx context.Context, conn *models.Connection, result *models.SyncResult, fatal bool, log *zap.Logger) {
	result.FinishedAt = time.Now().UTC()
	result.Success = len(result.Errors) == 0

	syncStatus := models.SyncIdle
	connStatus := models.ConnectionActive
	var errorMessage *string
	if fatal || len(result.Errors) > 0 {
		syncStatus = models.SyncError
		connStatus = models.ConnectionError
		errorMessage = &result.Errors[0]
	}
	if err := s.conns.FinishSync(ctx, conn.ID, syncStatus, connStatus, errorMessage); err != nil {
		log.Error("failed to persist sync completion", zap.Error(err))
	}

	if s.cache != nil {
		s.cache.Store(ctx, result)
	}
	if s.metrics != nil {
		s.metrics.ObserveSync(string(conn.ProviderType), result)
	}

	log.Info("sync finished",
		zap.Bool("success", result.Success),
		zap.Int("users", result.SyncedUsers),
		zap.Int("courses", result.SyncedCourses),
		zap.Int("grades", result.SyncedGrades),
		zap.Int("errors", len(result.Errors)),
		zap.Duration("elapsed", result.FinishedAt.Sub(result.StartedAt)))
}

// ExportGrades pushes grade entries back to the provider behind a connection.
func (s *SyncService) ExportGrades(ctx context.Context, connectionID string, req ExportGradesRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export payload")
	}
	adapter, err := s.registry.Adapter(ctx, connectionID)
	if err != nil {
		return err
	}

	grades := make([]models.ExternalGrade, len(req.Grades))
	for i, item := range req.Grades {
		grades[i] = models.ExternalGrade{
			ConnectionID: connectionID,
			UserID:       item.UserID,
			ModuleID:     item.ModuleID,
			Score:        item.Score,
			MaxScore:     item.MaxScore,
		}
		if item.Feedback != "" {
			grades[i].Feedback = &item.Feedback
		}
		grades[i].DerivePercentage()
	}

	if err := adapter.PushGrades(ctx, grades); err != nil {
		if provider.IsAuthError(err) {
			return appErrors.Clone(appErrors.ErrProviderAuth, "provider rejected credentials while exporting grades")
		}
		return appErrors.Wrap(err, appErrors.ErrProviderUnavailable.Code, appErrors.ErrProviderUnavailable.Status, "failed to export grades")
	}
	s.logger.Info("grades exported", zap.String("connection_id", connectionID), zap.Int("count", len(grades)))
	return nil
}

// UpdateGrade rewrites a single provider grade identified by its external
// grade id. The percentage is recomputed from score and max score before the
// write, same as a bulk export.
func (s *SyncService) UpdateGrade(ctx context.Context, connectionID, gradeID string, item ExportGradeItem) error {
	if err := s.validator.Struct(item); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}
	adapter, err := s.registry.Adapter(ctx, connectionID)
	if err != nil {
		return err
	}

	grade := models.ExternalGrade{
		ConnectionID: connectionID,
		UserID:       item.UserID,
		ModuleID:     item.ModuleID,
		Score:        item.Score,
		MaxScore:     item.MaxScore,
	}
	if item.Feedback != "" {
		grade.Feedback = &item.Feedback
	}
	grade.DerivePercentage()

	if err := adapter.UpdateGrade(ctx, gradeID, grade); err != nil {
		if provider.IsAuthError(err) {
			return appErrors.Clone(appErrors.ErrProviderAuth, "provider rejected credentials while updating grade")
		}
		return appErrors.Wrap(err, appErrors.ErrProviderUnavailable.Code, appErrors.ErrProviderUnavailable.Status, "failed to update grade")
	}
	s.logger.Info("grade updated", zap.String("connection_id", connectionID), zap.String("grade_id", gradeID))
	return nil
}

// CreateAssignment creates a gradable item in the provider and returns its
// external identifier.
func (s *SyncService) CreateAssignment(ctx context.Context, connectionID, courseID string, assignment models.Assignment) (string, error) {
	if err := s.validator.Struct(assignment); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}
	adapter, err := s.registry.Adapter(ctx, connectionID)
	if err != nil {
		return "", err
	}
	externalID, err := adapter.CreateAssignment(ctx, courseID, assignment)
	if err != nil {
		if provider.IsAuthError(err) {
			return "", appErrors.Clone(appErrors.ErrProviderAuth, "provider rejected credentials while creating assignment")
		}
		return "", appErrors.Wrap(err, appErrors.ErrProviderUnavailable.Code, appErrors.ErrProviderUnavailable.Status, "failed to create assignment")
	}
	return externalID, nil
}

// LastResult returns the cached result of the most recent sync, if any.
func (s *SyncService) LastResult(ctx context.Context, connectionID string) *models.SyncResult {
	if s.cache == nil {
		return nil
	}
	return s.cache.Load(ctx, connectionID)
}

// Roster read path for dashboards over the canonical store.

// RosterUsers returns synced users for a connection.
func (s *SyncService) RosterUsers(ctx context.Context, connectionID string) ([]models.ExternalUser, error) {
	users, err := s.roster.ListUsers(ctx, connectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list synced users")
	}
	return users, nil
}

// RosterCourses returns synced courses for a connection.
func (s *SyncService) RosterCourses(ctx context.Context, connectionID string) ([]models.ExternalCourse, error) {
	courses, err := s.roster.ListCourses(ctx, connectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list synced courses")
	}
	return courses, nil
}

// RosterSummary reports how much canonical data a connection currently holds
// and when it was last refreshed, so operators can spot stale connections.
type RosterSummary struct {
	ConnectionID string     `json:"connection_id"`
	Users        int        `json:"users"`
	Courses      int        `json:"courses"`
	Grades       int        `json:"grades"`
	LastSyncTime *time.Time `json:"last_sync_time,omitempty"`
}

// Summary returns the roster counts and last sync time for a connection.
func (s *SyncService) Summary(ctx context.Context, connectionID string) (*RosterSummary, error) {
	conn, err := s.registry.Get(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	users, courses, grades, err := s.roster.Counts(ctx, connectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count synced records")
	}
	return &RosterSummary{
		ConnectionID: connectionID,
		Users:        users,
		Courses:      courses,
		Grades:       grades,
		LastSyncTime: conn.LastSyncTime,
	}, nil
}

// RosterGrades returns synced grades for a connection.
func (s *SyncService) RosterGrades(ctx context.Context, connectionID string) ([]models.ExternalGrade, error) {
	grades, err := s.roster.ListGrades(ctx, connectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list synced grades")
	}
	return grades, nil
}
