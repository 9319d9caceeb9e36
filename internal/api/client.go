package api

import (
	"context"
	"errors"
	"fmt"

	"uniportal/console/internal/gateway"
	"uniportal/console/internal/session"
)

// Requester is the part of the authenticated gateway the API client needs.
type Requester interface {
	GetJSON(ctx context.Context, path string, out any) error
	PostJSON(ctx context.Context, path string, in, out any) error
}

type Options struct {
	// NegativeIDsIncomplete reads negative listing ids as student accounts
	// without a profile.
	NegativeIDsIncomplete bool
}

type Client struct {
	gw   Requester
	opts Options
}

func New(gw Requester, opts Options) *Client {
	return &Client{gw: gw, opts: opts}
}

func (c *Client) GetStudent(ctx context.Context, id int64) (Student, error) {
	if err := validateID("id", id); err != nil {
		return Student{}, err
	}
	var out Student
	err := c.gw.GetJSON(ctx, fmt.Sprintf("/student/%d", id), &out)
	return out, withFallback(err, "student not found")
}

func (c *Client) ListStudents(ctx context.Context) ([]StudentListing, error) {
	var rows []Student
	if err := c.gw.GetJSON(ctx, "/students", &rows); err != nil {
		return nil, withFallback(err, "failed to load students")
	}
	out := make([]StudentListing, 0, len(rows))
	for _, s := range rows {
		item := StudentListing{Student: s}
		if c.opts.NegativeIDsIncomplete && s.ID < 0 {
			item.NeedsProfile = true
			item.UserID = -s.ID
		}
		out = append(out, item)
	}
	return out, nil
}

func (c *Client) ListSchedules(ctx context.Context) ([]Schedule, error) {
	var out []Schedule
	err := c.gw.GetJSON(ctx, "/all_class_schedule", &out)
	return out, withFallback(err, "failed to load schedules")
}

func (c *Client) ListSchedulesByGroup(ctx context.Context, groupID int64) ([]Schedule, error) {
	if err := validateID("group_id", groupID); err != nil {
		return nil, err
	}
	var out []Schedule
	err := c.gw.GetJSON(ctx, fmt.Sprintf("/schedule/group/%d", groupID), &out)
	return out, withFallback(err, "failed to load schedule")
}

func (c *Client) SubmitAttendance(ctx context.Context, rec AttendanceRecord) (Attendance, error) {
	if err := validateStruct(rec); err != nil {
		return Attendance{}, err
	}
	var out Attendance
	err := c.gw.PostJSON(ctx, "/attendance/subject", rec, &out)
	return out, withFallback(err, "failed to post attendance")
}

func (c *Client) AttendanceByStudent(ctx context.Context, studentID int64) ([]Attendance, error) {
	if err := validateID("student_id", studentID); err != nil {
		return nil, err
	}
	var out []Attendance
	err := c.gw.GetJSON(ctx, fmt.Sprintf("/attendanceByStudentId/%d", studentID), &out)
	return out, withFallback(err, "failed to load attendance")
}

func (c *Client) AttendanceBySubject(ctx context.Context, subjectID int64) ([]Attendance, error) {
	if err := validateID("subject_id", subjectID); err != nil {
		return nil, err
	}
	var out []Attendance
	err := c.gw.GetJSON(ctx, fmt.Sprintf("/attendanceBySubjectId/%d", subjectID), &out)
	return out, withFallback(err, "failed to load attendance")
}

func (c *Client) ListUsers(ctx context.Context) ([]session.User, error) {
	var out []session.User
	err := c.gw.GetJSON(ctx, "/api/users", &out)
	return out, withFallback(err, "failed to load users")
}

func (c *Client) ListGroups(ctx context.Context) ([]Group, error) {
	var out []Group
	err := c.gw.GetJSON(ctx, "/groups", &out)
	return out, withFallback(err, "failed to load groups")
}

func (c *Client) CreateStudentFromUser(ctx context.Context, req CreateStudentRequest) (Student, error) {
	if err := validateStruct(req); err != nil {
		return Student{}, err
	}
	var out Student
	err := c.gw.PostJSON(ctx, "/students/from-user", req, &out)
	return out, withFallback(err, "failed to create student profile")
}

// Me fetches the signed-in user's profile from the backend.
func (c *Client) Me(ctx context.Context) (session.User, error) {
	var out session.User
	err := c.gw.GetJSON(ctx, "/api/users/me", &out)
	return out, withFallback(err, "failed to load profile")
}

func withFallback(err error, fallback string) error {
	var reqErr *gateway.RequestError
	if errors.As(err, &reqErr) && reqErr.Message == "" {
		return &gateway.RequestError{Status: reqErr.Status, Message: fallback}
	}
	return err
}
