package provider

import (
	"context"

	"go.uber.org/zap"

	"github.com/campushub/lms-sync-api/internal/models"
	appErrors "github.com/campushub/lms-sync-api/pkg/errors"
)

// Adapter is the uniform contract every provider integration implements.
// Expected provider-level failures (rejected credentials, missing resources)
// come back as (false, nil) booleans or empty lists, never panics; errors are
// reserved for transport and decoding trouble.
type Adapter interface {
	// Authenticate runs the provider-specific login flow. (false, nil) means
	// the provider rejected the credentials.
	Authenticate(ctx context.Context) (bool, error)
	// RefreshCredentials re-establishes a session after an authorization
	// failure mid-flight.
	RefreshCredentials(ctx context.Context) (bool, error)
	// ListUsers fetches all account users mapped into the canonical shape.
	// Unknown roles fall back to student.
	ListUsers(ctx context.Context) ([]models.ExternalUser, error)
	// ListCourses fetches courses with normalized dates and status.
	ListCourses(ctx context.Context) ([]models.ExternalCourse, error)
	// ListGrades fetches every gradable item score for the given course.
	ListGrades(ctx context.Context, courseID string) ([]models.ExternalGrade, error)
	// PushGrades writes scores back to the provider.
	PushGrades(ctx context.Context, grades []models.ExternalGrade) error
	// CreateAssignment creates a gradable item and returns its external id.
	CreateAssignment(ctx context.Context, courseID string, assignment models.Assignment) (string, error)
	// UpdateGrade updates a single score identified by the provider grade id.
	UpdateGrade(ctx context.Context, gradeID string, grade models.ExternalGrade) error
}

// New builds the adapter for the configured provider type.
func New(cfg models.ProviderConfig, log *zap.Logger) (Adapter, error) {
	if log == nil {
		log = zap.NewNop()
	}
	switch cfg.ProviderType {
	case models.ProviderMoodle:
		return newMoodleAdapter(cfg, log), nil
	case models.ProviderCanvas:
		return newCanvasAdapter(cfg, log), nil
	case models.ProviderBlackboard:
		return newBlackboardAdapter(cfg, log), nil
	default:
		return nil, appErrors.Clone(appErrors.ErrUnsupportedProvider, "unsupported provider type: "+string(cfg.ProviderType))
	}
}
