package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/adg-admissions-api/internal/models"
)

const webinarColumns = `id, title, description, start_time, end_time, presenter_id, meeting_link, banner_path, language,
is_virtual, invites_by_email_address, status, created_by, modified_by, created_at, updated_at`

// WebinarRepository persists webinars together with their team.
type WebinarRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewWebinarRepository constructs the repository.
func NewWebinarRepository(db *sqlx.DB) *WebinarRepository {
	return &WebinarRepository{db: db, now: time.Now}
}

// FindByID loads a webinar and its co-hosts and panelists, or returns sql.ErrNoRows.
func (r *WebinarRepository) FindByID(ctx context.Context, id string) (*models.Webinar, error) {
	var webinar models.Webinar
	if err := r.db.GetContext(ctx, &webinar, `SELECT `+webinarColumns+` FROM webinars WHERE id = $1`, id); err != nil {
		return nil, err
	}
	webinars := []models.Webinar{webinar}
	if err := r.attachTeam(ctx, webinars); err != nil {
		return nil, err
	}
	return &webinars[0], nil
}

// List returns webinars filtered by their current status.
func (r *WebinarRepository) List(ctx context.Context, filter models.WebinarFilter) ([]models.Webinar, int, error) {
	page, size := models.NormalizePage(filter.Page, filter.PageSize)

	var conditions []string
	var args []interface{}
	switch filter.Status {
	case models.WebinarStatusCancelled:
		args = append(args, models.WebinarStatusCancelled)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	case models.WebinarStatusUpcoming:
		args = append(args, models.WebinarStatusUpcoming, r.now().UTC())
		conditions = append(conditions, fmt.Sprintf("status = $%d AND start_time > $%d", len(args)-1, len(args)))
	case models.WebinarStatusDelivered:
		args = append(args, models.WebinarStatusUpcoming, r.now().UTC())
		conditions = append(conditions, fmt.Sprintf("status = $%d AND start_time <= $%d", len(args)-1, len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM webinars"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count webinars: %w", err)
	}

	listArgs := append(append([]interface{}{}, args...), size, (page-1)*size)
	query := `SELECT ` + webinarColumns + ` FROM webinars` + where +
		fmt.Sprintf(" ORDER BY start_time DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	var webinars []models.Webinar
	if err := r.db.SelectContext(ctx, &webinars, query, listArgs...); err != nil {
		return nil, 0, fmt.Errorf("list webinars: %w", err)
	}
	if err := r.attachTeam(ctx, webinars); err != nil {
		return nil, 0, err
	}
	return webinars, total, nil
}

// Create inserts the webinar, its team and the team registrations in one
// transaction and returns those registrations.
func (r *WebinarRepository) Create(ctx context.Context, webinar *models.Webinar) (regs []models.WebinarRegistration, err error) {
	if webinar.ID == "" {
		webinar.ID = uuid.NewString()
	}
	now := r.now().UTC()
	webinar.CreatedAt, webinar.UpdatedAt = now, now
	if webinar.Status == "" {
		webinar.Status = models.WebinarStatusUpcoming
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insert = `INSERT INTO webinars (` + webinarColumns + `) VALUES (:id, :title, :description, :start_time, :end_time,
:presenter_id, :meeting_link, :banner_path, :language, :is_virtual, :invites_by_email_address, :status, :created_by,
:modified_by, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, insert, webinar); err != nil {
		return nil, fmt.Errorf("create webinar: %w", err)
	}
	if err = insertTeam(ctx, tx, webinar); err != nil {
		return nil, err
	}
	if regs, err = registerTeam(ctx, tx, webinar.ID, webinar.TeamIDs(), now); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return regs, nil
}

// Update stores the fields of an upcoming webinar, replaces its team and
// applies change to the team registrations in one transaction. A webinar that
// is missing or no longer upcoming yields sql.ErrNoRows.
func (r *WebinarRepository) Update(ctx context.Context, webinar *models.Webinar, change models.TeamChange) (_ *models.TeamRegistrations, err error) {
	now := r.now().UTC()
	webinar.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const update = `UPDATE webinars SET title = :title, description = :description, start_time = :start_time,
end_time = :end_time, presenter_id = :presenter_id, meeting_link = :meeting_link, banner_path = :banner_path,
language = :language, is_virtual = :is_virtual, invites_by_email_address = :invites_by_email_address,
modified_by = :modified_by, updated_at = :updated_at WHERE id = :id AND status = 'UPCOMING'`
	res, err := tx.NamedExecContext(ctx, update, webinar)
	if err != nil {
		return nil, fmt.Errorf("update webinar: %w", err)
	}
	if err = requireAffected(res); err != nil {
		return nil, err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM webinar_team_members WHERE webinar_id = $1`, webinar.ID); err != nil {
		return nil, fmt.Errorf("clear webinar team: %w", err)
	}
	if err = insertTeam(ctx, tx, webinar); err != nil {
		return nil, err
	}

	result := &models.TeamRegistrations{}
	for _, userID := range change.Removed {
		reg, err := deleteRegistration(ctx, tx, webinar.ID, userID)
		if err != nil {
			return nil, err
		}
		if reg != nil {
			result.Removed = append(result.Removed, *reg)
		}
	}
	if result.Added, err = registerTeam(ctx, tx, webinar.ID, change.Added, now); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return result, nil
}

// Cancel moves an upcoming webinar to CANCELLED. It reports whether this call
// made the transition, so repeated cancels are no-ops.
func (r *WebinarRepository) Cancel(ctx context.Context, id, modifiedBy string) (bool, error) {
	const query = `UPDATE webinars SET status = $2, modified_by = $3, updated_at = $4 WHERE id = $1 AND status = $5`
	res, err := r.db.ExecContext(ctx, query, id, models.WebinarStatusCancelled, modifiedBy, r.now().UTC(), models.WebinarStatusUpcoming)
	if err != nil {
		return false, fmt.Errorf("cancel webinar: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("cancel webinar rows: %w", err)
	}
	return affected == 1, nil
}

func insertTeam(ctx context.Context, tx *sqlx.Tx, webinar *models.Webinar) error {
	for _, member := range webinar.TeamMembers() {
		const query = `INSERT INTO webinar_team_members (webinar_id, user_id, role) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`
		if _, err := tx.ExecContext(ctx, query, member.WebinarID, member.UserID, member.Role); err != nil {
			return fmt.Errorf("insert webinar team member: %w", err)
		}
	}
	return nil
}

func registerTeam(ctx context.Context, tx *sqlx.Tx, webinarID string, userIDs []string, now time.Time) ([]models.WebinarRegistration, error) {
	regs := make([]models.WebinarRegistration, 0, len(userIDs))
	for _, userID := range userIDs {
		reg, err := upsertTeamRegistration(ctx, tx, webinarID, userID, now)
		if err != nil {
			return nil, err
		}
		regs = append(regs, *reg)
	}
	return regs, nil
}

func (r *WebinarRepository) attachTeam(ctx context.Context, webinars []models.Webinar) error {
	if len(webinars) == 0 {
		return nil
	}
	ids := make([]string, len(webinars))
	index := make(map[string]int, len(webinars))
	for i, w := range webinars {
		ids[i] = w.ID
		index[w.ID] = i
	}
	var members []models.WebinarTeamMember
	const query = `SELECT webinar_id, user_id, role FROM webinar_team_members WHERE webinar_id = ANY($1) ORDER BY webinar_id, role, user_id`
	if err := r.db.SelectContext(ctx, &members, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("list webinar team: %w", err)
	}
	for _, m := range members {
		i, ok := index[m.WebinarID]
		if !ok {
			continue
		}
		switch m.Role {
		case models.TeamRoleCoHost:
			webinars[i].CoHostIDs = append(webinars[i].CoHostIDs, m.UserID)
		case models.TeamRolePanelist:
			webinars[i].PanelistIDs = append(webinars[i].PanelistIDs, m.UserID)
		}
	}
	return nil
}
