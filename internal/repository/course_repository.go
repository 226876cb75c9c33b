package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/adg-admissions-api/internal/models"
)

const courseColumns = `c.id, c.course_key, c.display_name, c.is_open, c.language, c.prerequisite_course_id, c.created_at, c.updated_at`

// CourseRepository reads courses and their groups.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// FindByID returns a course or sql.ErrNoRows.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	var course models.Course
	if err := r.db.GetContext(ctx, &course, `SELECT `+courseColumns+` FROM courses c WHERE c.id = $1`, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// PrerequisiteGroups returns every prerequisite group with its member courses in position order.
func (r *CourseRepository) PrerequisiteGroups(ctx context.Context) ([]models.CourseGroup, error) {
	const query = `SELECT id, name, is_prerequisite, business_line_id FROM course_groups WHERE is_prerequisite = TRUE ORDER BY name`
	var groups []models.CourseGroup
	if err := r.db.SelectContext(ctx, &groups, query); err != nil {
		return nil, fmt.Errorf("list prerequisite groups: %w", err)
	}
	return r.attachCourses(ctx, groups)
}

// BusinessLineGroups returns the groups bound to a business line.
func (r *CourseRepository) BusinessLineGroups(ctx context.Context, businessLineID string) ([]models.CourseGroup, error) {
	const query = `SELECT id, name, is_prerequisite, business_line_id FROM course_groups WHERE business_line_id = $1 ORDER BY name`
	var groups []models.CourseGroup
	if err := r.db.SelectContext(ctx, &groups, query, businessLineID); err != nil {
		return nil, fmt.Errorf("list business line groups: %w", err)
	}
	return r.attachCourses(ctx, groups)
}

// BusinessLinesWithGroups returns the IDs of business lines owning at least one group.
func (r *CourseRepository) BusinessLinesWithGroups(ctx context.Context) ([]string, error) {
	const query = `SELECT DISTINCT business_line_id FROM course_groups WHERE business_line_id IS NOT NULL ORDER BY business_line_id`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query); err != nil {
		return nil, fmt.Errorf("list business lines with groups: %w", err)
	}
	return ids, nil
}

func (r *CourseRepository) attachCourses(ctx context.Context, groups []models.CourseGroup) ([]models.CourseGroup, error) {
	if len(groups) == 0 {
		return groups, nil
	}
	ids := make([]string, len(groups))
	index := make(map[string]int, len(groups))
	for i, g := range groups {
		ids[i] = g.ID
		index[g.ID] = i
	}

	query := `SELECT gc.group_id, ` + courseColumns + ` FROM course_group_courses gc
JOIN courses c ON c.id = gc.course_id
WHERE gc.group_id = ANY($1)
ORDER BY gc.group_id, gc.position, c.display_name`
	var rows []models.CourseGroupCourse
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("list group courses: %w", err)
	}
	for _, row := range rows {
		if i, ok := index[row.GroupID]; ok {
			groups[i].Courses = append(groups[i].Courses, row.Course)
		}
	}
	return groups, nil
}
