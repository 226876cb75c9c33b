package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// WebinarStatus is the lifecycle state of a webinar. Only UPCOMING and
// CANCELLED are stored; DELIVERED is derived from the start time.
type WebinarStatus string

const (
	WebinarStatusUpcoming  WebinarStatus = "UPCOMING"
	WebinarStatusDelivered WebinarStatus = "DELIVERED"
	WebinarStatusCancelled WebinarStatus = "CANCELLED"
)

// Terminal reports whether no further transitions are possible.
func (s WebinarStatus) Terminal() bool {
	return s == WebinarStatusCancelled || s == WebinarStatusDelivered
}

// TeamChange lists the team members added to and removed from a webinar.
type TeamChange struct {
	Added   []string
	Removed []string
}

// TeamRegistrations are the registration rows written with a team change.
type TeamRegistrations struct {
	Added   []WebinarRegistration
	Removed []WebinarRegistration
}

// TeamRole is the role of a non-presenter team member.
type TeamRole string

const (
	TeamRoleCoHost   TeamRole = "CO_HOST"
	TeamRolePanelist TeamRole = "PANELIST"
)

// Webinar is a scheduled online session.
type Webinar struct {
	ID                    string        `db:"id" json:"id"`
	Title                 string        `db:"title" json:"title"`
	Description           string        `db:"description" json:"description"`
	StartTime             time.Time     `db:"start_time" json:"start_time"`
	EndTime               time.Time     `db:"end_time" json:"end_time"`
	PresenterID           string        `db:"presenter_id" json:"presenter_id"`
	MeetingLink           string        `db:"meeting_link" json:"meeting_link"`
	BannerPath            string        `db:"banner_path" json:"banner_path"`
	Language              string        `db:"language" json:"language"`
	IsVirtual             bool          `db:"is_virtual" json:"is_virtual"`
	InvitesByEmailAddress string        `db:"invites_by_email_address" json:"invites_by_email_address"`
	Status                WebinarStatus `db:"status" json:"status"`
	CreatedBy             string        `db:"created_by" json:"created_by"`
	ModifiedBy            *string       `db:"modified_by" json:"modified_by,omitempty"`
	CreatedAt             time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time     `db:"updated_at" json:"updated_at"`
	CoHostIDs             []string      `db:"-" json:"co_host_ids"`
	PanelistIDs           []string      `db:"-" json:"panelist_ids"`
}

// CurrentStatus resolves the stored status against now.
func (w *Webinar) CurrentStatus(now time.Time) WebinarStatus {
	if w.Status == WebinarStatusCancelled {
		return WebinarStatusCancelled
	}
	if !w.StartTime.After(now) {
		return WebinarStatusDelivered
	}
	return WebinarStatusUpcoming
}

// TeamIDs returns the presenter, co-hosts and panelists without duplicates.
func (w *Webinar) TeamIDs() []string {
	return TeamUnion(w.PresenterID, w.CoHostIDs, w.PanelistIDs)
}

// TeamMembers flattens co-hosts and panelists into join rows.
func (w *Webinar) TeamMembers() []WebinarTeamMember {
	members := make([]WebinarTeamMember, 0, len(w.CoHostIDs)+len(w.PanelistIDs))
	for _, id := range w.CoHostIDs {
		members = append(members, WebinarTeamMember{WebinarID: w.ID, UserID: id, Role: TeamRoleCoHost})
	}
	for _, id := range w.PanelistIDs {
		members = append(members, WebinarTeamMember{WebinarID: w.ID, UserID: id, Role: TeamRolePanelist})
	}
	return members
}

// TeamUnion merges the presenter with co-hosts and panelists, keeping first-seen order.
func TeamUnion(presenterID string, groups ...[]string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	add(presenterID)
	for _, group := range groups {
		for _, id := range group {
			add(id)
		}
	}
	return out
}

// WebinarTeamMember is a co-host or panelist row.
type WebinarTeamMember struct {
	WebinarID string   `db:"webinar_id" json:"webinar_id"`
	UserID    string   `db:"user_id" json:"user_id"`
	Role      TeamRole `db:"role" json:"role"`
}

// WebinarView is a webinar with its derived status for responses.
type WebinarView struct {
	Webinar
	CurrentStatus WebinarStatus `json:"current_status"`
	BannerURL     string        `json:"banner_url,omitempty"`
}

// WebinarRequest creates or updates a webinar.
type WebinarRequest struct {
	Title                 string    `form:"title" json:"title" validate:"required,notblank,max=100"`
	Description           string    `form:"description" json:"description" validate:"required,notblank"`
	StartTime             time.Time `form:"start_time" json:"start_time" validate:"required"`
	EndTime               time.Time `form:"end_time" json:"end_time" validate:"required"`
	PresenterID           string    `form:"presenter_id" json:"presenter_id" validate:"required"`
	CoHostIDs             []string  `form:"co_host_ids" json:"co_host_ids" validate:"dive,required"`
	PanelistIDs           []string  `form:"panelist_ids" json:"panelist_ids" validate:"dive,required"`
	MeetingLink           string    `form:"meeting_link" json:"meeting_link" validate:"omitempty,url"`
	Language              string    `form:"language" json:"language" validate:"omitempty,oneof=en ar"`
	IsVirtual             *bool     `form:"is_virtual" json:"is_virtual"`
	InvitesByEmailAddress string    `form:"invites_by_email_address" json:"invites_by_email_address" validate:"emaillist"`
	SendUpdateEmail       bool      `form:"send_update_email" json:"send_update_email"`
}

// WebinarFilter captures listing criteria.
type WebinarFilter struct {
	Status   WebinarStatus
	Page     int
	PageSize int
}

// WebinarRegistration is a user's registration state for one webinar.
type WebinarRegistration struct {
	ID                     string    `db:"id" json:"id"`
	WebinarID              string    `db:"webinar_id" json:"webinar_id"`
	UserID                 string    `db:"user_id" json:"user_id"`
	IsRegistered           bool      `db:"is_registered" json:"is_registered"`
	IsTeamMember           bool      `db:"is_team_member" json:"is_team_member"`
	StartingSoonReminderID *string   `db:"starting_soon_reminder_id" json:"-"`
	WeekBeforeReminderID   *string   `db:"week_before_reminder_id" json:"-"`
	CreatedAt              time.Time `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time `db:"updated_at" json:"updated_at"`
}

// ReminderIDs returns the outstanding reminder handles.
func (r WebinarRegistration) ReminderIDs() []string {
	var ids []string
	if r.StartingSoonReminderID != nil && *r.StartingSoonReminderID != "" {
		ids = append(ids, *r.StartingSoonReminderID)
	}
	if r.WeekBeforeReminderID != nil && *r.WeekBeforeReminderID != "" {
		ids = append(ids, *r.WeekBeforeReminderID)
	}
	return ids
}

// Registrant is a registration joined with the user's contact details.
type Registrant struct {
	WebinarRegistration
	Email    string `db:"email" json:"email"`
	FullName string `db:"full_name" json:"full_name"`
}

// ReminderKind identifies which scheduled reminder a handle belongs to.
type ReminderKind string

const (
	ReminderStartingSoon ReminderKind = "starting_soon"
	ReminderWeekBefore   ReminderKind = "week_before"
)

// ReminderStatus tracks a reminder from local storage to the mail provider.
type ReminderStatus string

const (
	// ReminderPending is held locally until it fits the provider window.
	ReminderPending ReminderStatus = "PENDING"
	// ReminderSubmitting is being handed to the provider.
	ReminderSubmitting ReminderStatus = "SUBMITTING"
	// ReminderScheduled is held by the provider under ProviderID.
	ReminderScheduled ReminderStatus = "SCHEDULED"
	ReminderCancelled ReminderStatus = "CANCELLED"
)

// WebinarReminder is one reminder email for one registration. Its ID is the
// handle stored on the registration.
type WebinarReminder struct {
	ID         string         `db:"id" json:"id"`
	WebinarID  string         `db:"webinar_id" json:"webinar_id"`
	UserID     string         `db:"user_id" json:"user_id"`
	Kind       ReminderKind   `db:"kind" json:"kind"`
	Email      string         `db:"email" json:"email"`
	SendAt     time.Time      `db:"send_at" json:"send_at"`
	Data       types.JSONText `db:"data" json:"data"`
	Status     ReminderStatus `db:"status" json:"status"`
	ProviderID *string        `db:"provider_id" json:"provider_id,omitempty"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at" json:"updated_at"`
}
