package provider

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campushub/lms-sync-api/internal/models"
)

func TestMapRoleDefaultsToStudent(t *testing.T) {
	assert.Equal(t, models.RoleTeacher, mapRole(moodleRoles, "editingteacher"))
	assert.Equal(t, models.RoleAdmin, mapRole(moodleRoles, "manager"))
	assert.Equal(t, models.RoleTeacher, mapRole(canvasRoles, "TaEnrollment"))
	assert.Equal(t, models.RoleAdmin, mapRole(blackboardRoles, "SYSTEM_ADMIN"))

	// Anything unrecognized falls back to the least privileged role.
	assert.Equal(t, models.RoleStudent, mapRole(moodleRoles, "guest"))
	assert.Equal(t, models.RoleStudent, mapRole(canvasRoles, "ObserverEnrollment"))
	assert.Equal(t, models.RoleStudent, mapRole(blackboardRoles, ""))
}

func TestFlexTimeFormats(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want *time.Time
	}{
		{"epoch seconds", `1700000000`, timePtr(time.Unix(1700000000, 0).UTC())},
		{"epoch milliseconds", `1700000000000`, timePtr(time.UnixMilli(1700000000000).UTC())},
		{"rfc3339", `"2024-03-01T10:30:00Z"`, timePtr(time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC))},
		{"date only", `"2024-03-01"`, timePtr(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))},
		{"null", `null`, nil},
		{"zero epoch", `0`, nil},
		{"garbage decodes to nil", `"next tuesday"`, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var f flexTime
			require.NoError(t, json.Unmarshal([]byte(tc.raw), &f))
			if tc.want == nil {
				assert.Nil(t, f.Time())
				return
			}
			require.NotNil(t, f.Time())
			assert.True(t, tc.want.Equal(*f.Time()), "got %v want %v", f.Time(), tc.want)
		})
	}
}

func TestCompositeGradeID(t *testing.T) {
	id := compositeGradeID("course-9", "col-3")
	assert.Equal(t, "course-9:col-3", id)

	courseID, itemID, err := splitGradeID(id)
	require.NoError(t, err)
	assert.Equal(t, "course-9", courseID)
	assert.Equal(t, "col-3", itemID)

	_, _, err = splitGradeID("no-separator")
	assert.Error(t, err)
	_, _, err = splitGradeID(":dangling")
	assert.Error(t, err)
}

func timePtr(t time.Time) *time.Time { return &t }
