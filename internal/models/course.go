package models

import "time"

// Course is an LMS course known to the admissions program.
type Course struct {
	ID                   string    `db:"id" json:"id"`
	CourseKey            string    `db:"course_key" json:"course_key"`
	DisplayName          string    `db:"display_name" json:"display_name"`
	IsOpen               bool      `db:"is_open" json:"is_open"`
	Language             string    `db:"language" json:"language"`
	PrerequisiteCourseID *string   `db:"prerequisite_course_id" json:"prerequisite_course_id,omitempty"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time `db:"updated_at" json:"updated_at"`
}

// CourseGroup is an ordered set of courses. Prerequisite groups gate the
// application; groups bound to a business line gate that business line.
type CourseGroup struct {
	ID             string   `db:"id" json:"id"`
	Name           string   `db:"name" json:"name"`
	IsPrerequisite bool     `db:"is_prerequisite" json:"is_prerequisite"`
	BusinessLineID *string  `db:"business_line_id" json:"business_line_id,omitempty"`
	Courses        []Course `db:"-" json:"courses"`
}

// OpenCourses returns the enrollable courses in group order.
func (g CourseGroup) OpenCourses() []Course {
	open := make([]Course, 0, len(g.Courses))
	for _, c := range g.Courses {
		if c.IsOpen {
			open = append(open, c)
		}
	}
	return open
}

// CourseGroupCourse is a row of the group membership join.
type CourseGroupCourse struct {
	GroupID string `db:"group_id"`
	Course
}

// CourseEnrollment mirrors an LMS enrollment.
type CourseEnrollment struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	CourseID  string    `db:"course_id" json:"course_id"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// CourseStatus is a learner's standing in one course.
type CourseStatus string

const (
	CourseStatusNotStarted CourseStatus = "NOT_STARTED"
	CourseStatusInProgress CourseStatus = "IN_PROGRESS"
	CourseStatusCompleted  CourseStatus = "COMPLETED"
	CourseStatusRetake     CourseStatus = "RETAKE"
	CourseStatusLocked     CourseStatus = "LOCKED"
)

// CourseCard is the derived per-learner view of a course.
type CourseCard struct {
	Course           Course       `json:"course"`
	Status           CourseStatus `json:"status"`
	Grade            *int         `json:"grade,omitempty"`
	Message          string       `json:"message,omitempty"`
	PrerequisiteName string       `json:"prerequisite_name,omitempty"`
}

// CourseScore is a learner's grade percentage in one prerequisite course.
// Courses without a recorded grade score zero.
type CourseScore struct {
	CourseID   string `json:"course_id"`
	CourseName string `json:"course_name"`
	Percentage int    `json:"course_percentage"`
}

// HasPrerequisite reports whether the card was evaluated against a prerequisite.
func (c CourseCard) HasPrerequisite() bool {
	return c.PrerequisiteName != ""
}
