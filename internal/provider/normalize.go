package provider

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/campushub/lms-sync-api/internal/models"
)

// Per-provider role mapping tables. Anything not listed maps to student,
// which is the safe default for an unrecognized role.
var (
	moodleRoles = map[string]models.ExternalRole{
		"student":        models.RoleStudent,
		"editingteacher": models.RoleTeacher,
		"teacher":        models.RoleTeacher,
		"manager":        models.RoleAdmin,
	}
	canvasRoles = map[string]models.ExternalRole{
		"StudentEnrollment":  models.RoleStudent,
		"TeacherEnrollment":  models.RoleTeacher,
		"TaEnrollment":       models.RoleTeacher,
		"DesignerEnrollment": models.RoleTeacher,
		"AccountAdmin":       models.RoleAdmin,
	}
	blackboardRoles = map[string]models.ExternalRole{
		"STUDENT":        models.RoleStudent,
		"FACULTY":        models.RoleTeacher,
		"INSTRUCTOR":     models.RoleTeacher,
		"STAFF":          models.RoleAdmin,
		"SYSTEM_ADMIN":   models.RoleAdmin,
		"SYSTEM_SUPPORT": models.RoleAdmin,
	}
)

func mapRole(table map[string]models.ExternalRole, raw string) models.ExternalRole {
	if role, ok := table[raw]; ok {
		return role
	}
	return models.RoleStudent
}

// flexTime decodes provider date fields that may arrive as epoch seconds,
// epoch milliseconds, or ISO-8601 strings. Unparseable values decode to nil.
type flexTime struct {
	t *time.Time
}

func (f *flexTime) Time() *time.Time { return f.t }

func (f *flexTime) UnmarshalJSON(data []byte) error {
	f.t = nil
	raw := strings.Trim(string(data), `"`)
	if raw == "" || raw == "null" || raw == "0" {
		return nil
	}

	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		// Millisecond epochs are thirteen digits for any modern date.
		var t time.Time
		if n > 1e12 {
			t = time.UnixMilli(n).UTC()
		} else {
			t = time.Unix(n, 0).UTC()
		}
		f.t = &t
		return nil
	}

	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05Z0700", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			f.t = &t
			return nil
		}
	}
	return nil
}

var _ json.Unmarshaler = (*flexTime)(nil)

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
