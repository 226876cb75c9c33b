package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestApplicationHubProgress(t *testing.T) {
	var missing *ApplicationHub
	assert.False(t, missing.ArePrerequisitesAndWrittenAppComplete())
	assert.Equal(t, 0.0, missing.Progress())

	hub := &ApplicationHub{IsPrerequisiteCoursesPassed: true}
	assert.False(t, hub.ArePrerequisitesAndWrittenAppComplete())
	assert.Equal(t, 0.5, hub.Progress())

	hub.IsWrittenApplicationCompleted = true
	assert.True(t, hub.ArePrerequisitesAndWrittenAppComplete())
	assert.Equal(t, 1.0, hub.Progress())
}

func TestWebinarCurrentStatus(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w := &Webinar{Status: WebinarStatusUpcoming, StartTime: now.Add(time.Hour)}
	assert.Equal(t, WebinarStatusUpcoming, w.CurrentStatus(now))
	assert.False(t, w.CurrentStatus(now).Terminal())

	w.StartTime = now
	assert.Equal(t, WebinarStatusDelivered, w.CurrentStatus(now))
	assert.True(t, w.CurrentStatus(now).Terminal())

	w.Status = WebinarStatusCancelled
	w.StartTime = now.Add(time.Hour)
	assert.Equal(t, WebinarStatusCancelled, w.CurrentStatus(now))
}

func TestWebinarTeam(t *testing.T) {
	w := &Webinar{ID: "w1", PresenterID: "p", CoHostIDs: []string{"a", "p"}, PanelistIDs: []string{"b", "a"}}
	assert.Equal(t, []string{"p", "a", "b"}, w.TeamIDs())
	assert.Len(t, w.TeamMembers(), 4)
}

func TestRegistrationReminderIDs(t *testing.T) {
	soon, empty := "soon", ""
	r := WebinarRegistration{StartingSoonReminderID: &soon, WeekBeforeReminderID: &empty}
	assert.Equal(t, []string{"soon"}, r.ReminderIDs())
	assert.Nil(t, WebinarRegistration{}.ReminderIDs())
}

func TestCourseGroupOpenCourses(t *testing.T) {
	g := CourseGroup{Courses: []Course{{ID: "1", IsOpen: true}, {ID: "2"}, {ID: "3", IsOpen: true}}}
	open := g.OpenCourses()
	assert.Len(t, open, 2)
	assert.Equal(t, "3", open[1].ID)
}
