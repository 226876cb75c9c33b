package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/adg-admissions-api/internal/models"
	appErrors "github.com/noah-isme/adg-admissions-api/pkg/errors"
	"github.com/noah-isme/adg-admissions-api/pkg/export"
	"github.com/noah-isme/adg-admissions-api/pkg/mailer"
	"github.com/noah-isme/adg-admissions-api/pkg/storage"
	"github.com/noah-isme/adg-admissions-api/pkg/validation"
)

type webinarStore interface {
	FindByID(ctx context.Context, id string) (*models.Webinar, error)
	List(ctx context.Context, filter models.WebinarFilter) ([]models.Webinar, int, error)
	Create(ctx context.Context, webinar *models.Webinar) ([]models.WebinarRegistration, error)
	Update(ctx context.Context, webinar *models.Webinar, change models.TeamChange) (*models.TeamRegistrations, error)
	Cancel(ctx context.Context, id, modifiedBy string) (bool, error)
}

type registrationStore interface {
	SetRegistered(ctx context.Context, webinarID, userID string, registered bool) (*models.WebinarRegistration, bool, error)
	ClearReminderIDs(ctx context.Context, webinarID, userID string) error
	ListActive(ctx context.Context, webinarID string) ([]models.WebinarRegistration, error)
	ListRegistrants(ctx context.Context, webinarID string) ([]models.Registrant, error)
}

type userDirectory interface {
	FindByIDs(ctx context.Context, ids []string) ([]models.User, error)
}

type webinarNotifier interface {
	Send(ctx context.Context, msg mailer.Message)
	CancelReminders(ctx context.Context, ids []string)
	ScheduleReminder(ctx context.Context, req ReminderRequest)
}

// WebinarConfig holds webinar scheduling and upload settings.
type WebinarConfig struct {
	BannerPolicy         storage.UploadPolicy
	BannerURLPrefix      string
	ReminderStartingSoon time.Duration
	ReminderWeekBefore   time.Duration
}

// WebinarService manages the webinar lifecycle, its team roster and the
// reminder emails of every registration.
type WebinarService struct {
	webinars      webinarStore
	registrations registrationStore
	users         userDirectory
	notifier      webinarNotifier
	files         fileStore
	csv           *export.CSVExporter
	validator     *validation.Validator
	config        WebinarConfig
	logger        *zap.Logger
	now           func() time.Time
}

// NewWebinarService wires the webinar workflow.
func NewWebinarService(
	webinars webinarStore,
	registrations registrationStore,
	users userDirectory,
	notifier webinarNotifier,
	files fileStore,
	validate *validation.Validator,
	config WebinarConfig,
	logger *zap.Logger,
) *WebinarService {
	if validate == nil {
		validate = validation.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.ReminderStartingSoon <= 0 {
		config.ReminderStartingSoon = 2 * time.Hour
	}
	if config.ReminderWeekBefore <= 0 {
		config.ReminderWeekBefore = 7 * 24 * time.Hour
	}
	return &WebinarService{
		webinars:      webinars,
		registrations: registrations,
		users:         users,
		notifier:      notifier,
		files:         files,
		csv:           export.NewCSVExporter(),
		validator:     validate,
		config:        config,
		logger:        logger,
		now:           time.Now,
	}
}

// Get returns a webinar with its derived status.
func (s *WebinarService) Get(ctx context.Context, id string) (*models.WebinarView, error) {
	webinar, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	view := s.view(*webinar)
	return &view, nil
}

// List returns webinars filtered by derived status.
func (s *WebinarService) List(ctx context.Context, filter models.WebinarFilter) ([]models.WebinarView, *models.Pagination, error) {
	switch filter.Status {
	case "", models.WebinarStatusUpcoming, models.WebinarStatusDelivered, models.WebinarStatusCancelled:
	default:
		return nil, nil, validation.Fields(map[string]string{"status": "status must be one of UPCOMING DELIVERED CANCELLED"})
	}
	filter.Page, filter.PageSize = models.NormalizePage(filter.Page, filter.PageSize)
	items, total, err := s.webinars.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list webinars")
	}
	views := make([]models.WebinarView, len(items))
	for i, w := range items {
		views[i] = s.view(w)
	}
	return views, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Create schedules a webinar, registers its team with reminders and invites
// the team and the invited addresses.
func (s *WebinarService) Create(ctx context.Context, actor *models.JWTClaims, req models.WebinarRequest, banner *storage.Upload) (*models.WebinarView, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	req = normalizeWebinarRequest(req)
	team, err := s.validateRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	webinar := &models.Webinar{CreatedBy: actor.UserID, Status: models.WebinarStatusUpcoming}
	applyWebinarRequest(webinar, req)
	if banner != nil {
		stored, err := s.files.Store("webinars/banners", *banner, s.config.BannerPolicy)
		if err != nil {
			return nil, uploadError("banner", err)
		}
		webinar.BannerPath = stored
	}

	regs, err := s.webinars.Create(ctx, webinar)
	if err != nil {
		s.deleteBanner(webinar.BannerPath)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create webinar")
	}
	for _, reg := range regs {
		s.scheduleReminders(ctx, webinar, team[reg.UserID])
	}

	recipients := append(emailsOf(team, webinar.TeamIDs()), validation.SplitEmails(webinar.InvitesByEmailAddress)...)
	s.notifier.Send(ctx, mailer.Message{Template: mailer.TemplateWebinarInvitation, Recipients: recipients, Data: s.emailData(webinar)})

	s.logger.Info("webinar created", zap.String("webinar_id", webinar.ID), zap.String("created_by", actor.UserID))
	view := s.view(*webinar)
	return &view, nil
}

// Update edits an upcoming webinar. Team changes add or remove team
// registrations; a new start time reschedules every reminder.
func (s *WebinarService) Update(ctx context.Context, actor *models.JWTClaims, id string, req models.WebinarRequest, banner *storage.Upload) (*models.WebinarView, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	old, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.ensureUpcoming(old); err != nil {
		return nil, err
	}
	req = normalizeWebinarRequest(req)
	team, err := s.validateRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	updated := *old
	applyWebinarRequest(&updated, req)
	modifiedBy := actor.UserID
	updated.ModifiedBy = &modifiedBy
	var staleBanner string
	if banner != nil {
		stored, err := s.files.Store("webinars/banners", *banner, s.config.BannerPolicy)
		if err != nil {
			return nil, uploadError("banner", err)
		}
		staleBanner = old.BannerPath
		updated.BannerPath = stored
	}

	oldTeam, newTeam := old.TeamIDs(), updated.TeamIDs()
	change := models.TeamChange{Added: difference(newTeam, oldTeam), Removed: difference(oldTeam, newTeam)}
	regs, err := s.webinars.Update(ctx, &updated, change)
	if err != nil {
		if banner != nil {
			s.deleteBanner(updated.BannerPath)
		}
		if errors.Is(err, sql.ErrNoRows) {
			// Webinars are never deleted, so the row stopped being upcoming.
			return nil, appErrors.ErrWebinarCancelled
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update webinar")
	}
	s.deleteBanner(staleBanner)

	var removed []string
	for _, reg := range regs.Removed {
		removed = append(removed, reg.ReminderIDs()...)
	}
	s.notifier.CancelReminders(ctx, removed)

	startChanged := !old.StartTime.Equal(updated.StartTime)
	if !startChanged {
		for _, reg := range regs.Added {
			if len(reg.ReminderIDs()) == 0 {
				s.scheduleReminders(ctx, &updated, team[reg.UserID])
			}
		}
	}

	active, err := s.registrations.ListActive(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list registrations")
	}
	registrants, err := s.registrantUsers(ctx, userIDs(active), team)
	if err != nil {
		return nil, err
	}
	if startChanged {
		s.rescheduleReminders(ctx, &updated, active, registrants)
	}
	if req.SendUpdateEmail {
		ids := make([]string, 0, len(active))
		for _, reg := range active {
			ids = append(ids, reg.UserID)
		}
		recipients := emailsOf(registrants, append(newTeam, ids...))
		s.notifier.Send(ctx, mailer.Message{Template: mailer.TemplateWebinarUpdate, Recipients: recipients, Data: s.emailData(&updated)})
	}

	view := s.view(updated)
	return &view, nil
}

// Cancel moves an upcoming webinar to CANCELLED, notifies the team and every
// registered user once and cancels all outstanding reminders. Cancelling a
// cancelled webinar is a no-op.
func (s *WebinarService) Cancel(ctx context.Context, actor *models.JWTClaims, id string) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	webinar, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	switch webinar.CurrentStatus(s.now()) {
	case models.WebinarStatusCancelled:
		return nil
	case models.WebinarStatusDelivered:
		return appErrors.ErrWebinarDelivered
	}

	changed, err := s.webinars.Cancel(ctx, id, actor.UserID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel webinar")
	}
	if !changed {
		return nil
	}
	webinar.Status = models.WebinarStatusCancelled

	active, err := s.registrations.ListActive(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list registrations")
	}
	ids := append(webinar.TeamIDs(), userIDs(active)...)
	users, err := s.registrantUsers(ctx, ids, nil)
	if err != nil {
		return err
	}
	var reminders []string
	for _, reg := range active {
		reminders = append(reminders, reg.ReminderIDs()...)
		if len(reg.ReminderIDs()) > 0 {
			if err := s.registrations.ClearReminderIDs(ctx, id, reg.UserID); err != nil {
				s.logger.Warn("failed to clear reminder ids", zap.String("webinar_id", id), zap.String("user_id", reg.UserID), zap.Error(err))
			}
		}
	}
	s.notifier.Send(ctx, mailer.Message{Template: mailer.TemplateWebinarCancellation, Recipients: emailsOf(users, ids), Data: s.emailData(webinar)})
	s.notifier.CancelReminders(ctx, reminders)

	s.logger.Info("webinar cancelled", zap.String("webinar_id", id), zap.String("cancelled_by", actor.UserID))
	return nil
}

// RegisterUser registers the actor. Registering twice is a no-op.
func (s *WebinarService) RegisterUser(ctx context.Context, webinarID string, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	webinar, err := s.find(ctx, webinarID)
	if err != nil {
		return err
	}
	if err := s.ensureUpcoming(webinar); err != nil {
		return err
	}

	reg, changed, err := s.registrations.SetRegistered(ctx, webinarID, actor.UserID, true)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to register")
	}
	if !changed {
		return nil
	}
	s.notifier.Send(ctx, mailer.Message{Template: mailer.TemplateWebinarRegistration, Recipients: []string{actor.Email}, Data: s.emailData(webinar)})
	if !reg.IsTeamMember {
		s.scheduleReminders(ctx, webinar, learner(actor))
	}
	return nil
}

// UnregisterUser withdraws the actor's registration and cancels its reminders
// unless the actor is on the webinar team.
func (s *WebinarService) UnregisterUser(ctx context.Context, webinarID string, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if _, err := s.find(ctx, webinarID); err != nil {
		return err
	}
	reg, changed, err := s.registrations.SetRegistered(ctx, webinarID, actor.UserID, false)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel registration")
	}
	if !changed || reg.IsTeamMember {
		return nil
	}
	if ids := reg.ReminderIDs(); len(ids) > 0 {
		s.notifier.CancelReminders(ctx, ids)
		if err := s.registrations.ClearReminderIDs(ctx, webinarID, actor.UserID); err != nil {
			s.logger.Warn("failed to clear reminder ids", zap.String("webinar_id", webinarID), zap.String("user_id", actor.UserID), zap.Error(err))
		}
	}
	return nil
}

// Registrants returns the registered users of a webinar, team first.
func (s *WebinarService) Registrants(ctx context.Context, id string) ([]models.Registrant, error) {
	if _, err := s.find(ctx, id); err != nil {
		return nil, err
	}
	rows, err := s.registrations.ListRegistrants(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list registrants")
	}
	return rows, nil
}

// RegistrantsCSV renders the registrants of a webinar as CSV.
func (s *WebinarService) RegistrantsCSV(ctx context.Context, id string) ([]byte, string, error) {
	rows, err := s.Registrants(ctx, id)
	if err != nil {
		return nil, "", err
	}
	data := export.Dataset{
		Columns: []string{"email", "full_name", "team_member", "registered_at"},
		Labels:  map[string]string{"email": "Email", "full_name": "Full Name", "team_member": "Team Member", "registered_at": "Registered At"},
	}
	for _, r := range rows {
		data.Rows = append(data.Rows, map[string]string{
			"email":         r.Email,
			"full_name":     r.FullName,
			"team_member":   fmt.Sprintf("%t", r.IsTeamMember),
			"registered_at": r.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	payload, err := s.csv.Render(data)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render registrants")
	}
	return payload, fmt.Sprintf("webinar-%s-registrants.csv", id), nil
}

func (s *WebinarService) find(ctx context.Context, id string) (*models.Webinar, error) {
	webinar, err := s.webinars.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "webinar not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load webinar")
	}
	return webinar, nil
}

func (s *WebinarService) ensureUpcoming(webinar *models.Webinar) error {
	switch webinar.CurrentStatus(s.now()) {
	case models.WebinarStatusCancelled:
		return appErrors.ErrWebinarCancelled
	case models.WebinarStatusDelivered:
		return appErrors.ErrWebinarDelivered
	}
	return nil
}

// validateRequest checks the payload and resolves the team members.
func (s *WebinarService) validateRequest(ctx context.Context, req models.WebinarRequest) (map[string]models.User, error) {
	fields := map[string]string{}
	now := s.now()
	if !req.StartTime.IsZero() && !req.StartTime.After(now) {
		fields["start_time"] = "start time must be in the future"
	}
	if !req.EndTime.IsZero() && !req.EndTime.After(now) {
		fields["end_time"] = "end time must be in the future"
	}
	if !req.StartTime.IsZero() && !req.EndTime.IsZero() && !req.StartTime.Before(req.EndTime) {
		fields["end_time"] = "end time must be after start time"
	}
	if err := validation.Merge(s.validator.Struct(req), validation.Fields(fields)); err != nil {
		return nil, err
	}

	ids := models.TeamUnion(req.PresenterID, req.CoHostIDs, req.PanelistIDs)
	users, err := s.users.FindByIDs(ctx, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load team members")
	}
	team := make(map[string]models.User, len(users))
	for _, u := range users {
		team[u.ID] = u
	}
	if _, ok := team[req.PresenterID]; !ok {
		fields["presenter_id"] = "presenter must be an active user"
	}
	var unknown []string
	for _, id := range append(append([]string{}, req.CoHostIDs...), req.PanelistIDs...) {
		if _, ok := team[id]; !ok {
			unknown = append(unknown, id)
		}
	}
	if len(unknown) > 0 {
		fields["team"] = "unknown or inactive users: " + strings.Join(unknown, ", ")
	}
	if err := validation.Fields(fields); err != nil {
		return nil, err
	}
	return team, nil
}

func (s *WebinarService) scheduleReminders(ctx context.Context, webinar *models.Webinar, user models.User) {
	if user.Email == "" {
		return
	}
	data := s.emailData(webinar)
	s.notifier.ScheduleReminder(ctx, ReminderRequest{
		WebinarID: webinar.ID,
		UserID:    user.ID,
		Email:     user.Email,
		Kind:      models.ReminderStartingSoon,
		SendAt:    webinar.StartTime.Add(-s.config.ReminderStartingSoon),
		Data:      data,
	})
	if webinar.StartTime.Sub(s.now()) > s.config.ReminderWeekBefore {
		s.notifier.ScheduleReminder(ctx, ReminderRequest{
			WebinarID: webinar.ID,
			UserID:    user.ID,
			Email:     user.Email,
			Kind:      models.ReminderWeekBefore,
			SendAt:    webinar.StartTime.Add(-s.config.ReminderWeekBefore),
			Data:      data,
		})
	}
}

// rescheduleReminders cancels the reminders of every active registration and
// schedules them again relative to the new start time.
func (s *WebinarService) rescheduleReminders(ctx context.Context, webinar *models.Webinar, active []models.WebinarRegistration, users map[string]models.User) {
	var stale []string
	for _, reg := range active {
		if ids := reg.ReminderIDs(); len(ids) > 0 {
			stale = append(stale, ids...)
			if err := s.registrations.ClearReminderIDs(ctx, webinar.ID, reg.UserID); err != nil {
				s.logger.Warn("failed to clear reminder ids", zap.String("webinar_id", webinar.ID), zap.String("user_id", reg.UserID), zap.Error(err))
			}
		}
	}
	s.notifier.CancelReminders(ctx, stale)
	for _, reg := range active {
		s.scheduleReminders(ctx, webinar, users[reg.UserID])
	}
}

// registrantUsers resolves the users behind ids, reusing known.
func (s *WebinarService) registrantUsers(ctx context.Context, ids []string, known map[string]models.User) (map[string]models.User, error) {
	users := make(map[string]models.User, len(ids)+len(known))
	for id, u := range known {
		users[id] = u
	}
	var missing []string
	for _, id := range mailer.Unique(ids) {
		if _, ok := users[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return users, nil
	}
	found, err := s.users.FindByIDs(ctx, missing)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registrants")
	}
	for _, u := range found {
		users[u.ID] = u
	}
	return users, nil
}

func (s *WebinarService) emailData(webinar *models.Webinar) map[string]interface{} {
	return map[string]interface{}{
		"webinar_id":          webinar.ID,
		"webinar_title":       webinar.Title,
		"webinar_description": webinar.Description,
		"webinar_start_time":  webinar.StartTime.UTC().Format(time.RFC1123),
		"webinar_link":        webinar.MeetingLink,
	}
}

func (s *WebinarService) view(webinar models.Webinar) models.WebinarView {
	view := models.WebinarView{Webinar: webinar, CurrentStatus: webinar.CurrentStatus(s.now())}
	if webinar.BannerPath != "" {
		view.BannerURL = s.config.BannerURLPrefix + webinar.BannerPath
	}
	return view
}

func (s *WebinarService) deleteBanner(relPath string) {
	if relPath == "" || s.files == nil {
		return
	}
	if err := s.files.Delete(relPath); err != nil {
		s.logger.Warn("failed to delete banner", zap.String("path", relPath), zap.Error(err))
	}
}

func normalizeWebinarRequest(req models.WebinarRequest) models.WebinarRequest {
	req.Title = strings.TrimSpace(req.Title)
	req.InvitesByEmailAddress = strings.Join(validation.SplitEmails(req.InvitesByEmailAddress), ",")
	if req.Language == "" {
		req.Language = "en"
	}
	return req
}

func applyWebinarRequest(w *models.Webinar, req models.WebinarRequest) {
	w.Title = req.Title
	w.Description = req.Description
	w.StartTime = req.StartTime.UTC()
	w.EndTime = req.EndTime.UTC()
	w.PresenterID = req.PresenterID
	w.CoHostIDs = models.TeamUnion("", req.CoHostIDs)
	w.PanelistIDs = models.TeamUnion("", req.PanelistIDs)
	w.MeetingLink = req.MeetingLink
	w.Language = req.Language
	w.IsVirtual = req.IsVirtual == nil || *req.IsVirtual
	w.InvitesByEmailAddress = req.InvitesByEmailAddress
}

// emailsOf returns the addresses of ids known in users, without duplicates.
func emailsOf(users map[string]models.User, ids []string) []string {
	emails := make([]string, 0, len(ids))
	for _, id := range ids {
		if u, ok := users[id]; ok && u.Email != "" {
			emails = append(emails, u.Email)
		}
	}
	return mailer.Unique(emails)
}

func userIDs(regs []models.WebinarRegistration) []string {
	ids := make([]string, len(regs))
	for i, reg := range regs {
		ids[i] = reg.UserID
	}
	return ids
}

// difference returns the values of a missing from b, keeping a's order.
func difference(a, b []string) []string {
	set := make(map[string]struct{}, len(b))
	for _, v := range b {
		set[v] = struct{}{}
	}
	var out []string
	for _, v := range a {
		if _, ok := set[v]; !ok {
			out = append(out, v)
		}
	}
	return out
}
