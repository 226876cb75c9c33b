package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// EnrollmentRepository reads the mirrored LMS enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs a new enrollment repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// IsEnrolled reports whether userID holds an active enrollment in courseID.
func (r *EnrollmentRepository) IsEnrolled(ctx context.Context, userID, courseID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM course_enrollments WHERE user_id = $1 AND course_id = $2 AND is_active = TRUE)`
	var enrolled bool
	if err := r.db.GetContext(ctx, &enrolled, query, userID, courseID); err != nil {
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return enrolled, nil
}

// ActiveUsersInCourses returns the distinct users actively enrolled in any of courseIDs.
func (r *EnrollmentRepository) ActiveUsersInCourses(ctx context.Context, courseIDs []string) ([]string, error) {
	if len(courseIDs) == 0 {
		return nil, nil
	}
	const query = `SELECT DISTINCT user_id FROM course_enrollments WHERE course_id = ANY($1) AND is_active = TRUE ORDER BY user_id`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, pq.Array(courseIDs)); err != nil {
		return nil, fmt.Errorf("list enrolled users: %w", err)
	}
	return ids, nil
}
