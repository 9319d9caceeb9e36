package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"uniportal/console/internal/api"
	"uniportal/console/internal/navigation"
	"uniportal/console/internal/session"
)

var roleSummaries = map[session.Role]string{
	session.RoleAdmin:   "You have full access to all features",
	session.RoleTeacher: "You can view schedules and manage attendance",
	session.RoleStudent: "You can view your schedules and student information",
}

func registerViewHandlers(mux *http.ServeMux, deps Deps) {
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if deps.Sessions == nil || deps.Portal == nil || deps.Router == nil {
			writeError(w, http.StatusServiceUnavailable, "console not configured")
			return
		}
		name := strings.Trim(r.URL.Path, "/")
		switch r.Method {
		case http.MethodGet:
			renderView(w, r, deps, name)
		case http.MethodPost:
			switch name {
			case "attendance":
				submitAttendance(w, r, deps)
			case "users/student-profile":
				createStudentProfile(w, r, deps)
			default:
				writeError(w, http.StatusNotFound, "not found")
			}
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	})
}

func renderView(w http.ResponseWriter, r *http.Request, deps Deps, name string) {
	v := navigation.Landing
	if name != "" {
		v = navigation.View(name)
	}
	d := deps.Router.Navigate(r.Context(), v)
	if d.Outcome != navigation.Render {
		redirect(w, r, d.Target)
		return
	}

	switch d.Target {
	case navigation.ViewLogin:
		writeJSON(w, http.StatusOK, map[string]any{"view": d.Target, "submit": "/v1/auth/login", "register": navigation.ViewRegister.Path()})
	case navigation.ViewRegister:
		writeJSON(w, http.StatusOK, map[string]any{"view": d.Target, "submit": "/v1/auth/register", "roles": []session.Role{session.RoleStudent, session.RoleTeacher, session.RoleAdmin}})
	case navigation.ViewDashboard:
		renderDashboard(w, r, deps)
	case navigation.ViewStudents:
		renderStudents(w, r, deps)
	case navigation.ViewSchedule:
		renderSchedule(w, r, deps)
	case navigation.ViewAttendance:
		renderAttendance(w, r, deps)
	case navigation.ViewUsers:
		renderUsers(w, r, deps)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func renderDashboard(w http.ResponseWriter, r *http.Request, deps Deps) {
	sess, ok := deps.Sessions.Current(r.Context())
	if !ok {
		redirect(w, r, navigation.ViewLogin)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"view":    navigation.ViewDashboard,
		"welcome": "Welcome, " + sess.User.DisplayName(),
		"user":    sess.User,
		"summary": roleSummaries[sess.User.Role],
		"menu":    menuItems(sess.User.Role),
	})
}

func renderStudents(w http.ResponseWriter, r *http.Request, deps Deps) {
	id, present, err := queryID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if present {
		student, err := deps.Portal.GetStudent(r.Context(), id)
		if err != nil {
			writePortalError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"view": navigation.ViewStudents, "student": student})
		return
	}
	items, err := deps.Portal.ListStudents(r.Context())
	if err != nil {
		writePortalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"view": navigation.ViewStudents, "items": items})
}

func renderSchedule(w http.ResponseWriter, r *http.Request, deps Deps) {
	groupID, present, err := queryID(r, "group_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var items []api.Schedule
	if present {
		items, err = deps.Portal.ListSchedulesByGroup(r.Context(), groupID)
	} else {
		items, err = deps.Portal.ListSchedules(r.Context())
	}
	if err != nil {
		writePortalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"view": navigation.ViewSchedule, "items": items})
}

func renderAttendance(w http.ResponseWriter, r *http.Request, deps Deps) {
	studentID, byStudent, err := queryID(r, "student_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	subjectID, bySubject, err := queryID(r, "subject_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items := []api.Attendance{}
	switch {
	case byStudent:
		items, err = deps.Portal.AttendanceByStudent(r.Context(), studentID)
	case bySubject:
		items, err = deps.Portal.AttendanceBySubject(r.Context(), subjectID)
	}
	if err != nil {
		writePortalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"view": navigation.ViewAttendance, "items": items})
}

func renderUsers(w http.ResponseWriter, r *http.Request, deps Deps) {
	users, err := deps.Portal.ListUsers(r.Context())
	if err != nil {
		writePortalError(w, r, err)
		return
	}
	groups, err := deps.Portal.ListGroups(r.Context())
	if err != nil {
		writePortalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"view":   navigation.ViewUsers,
		"users":  users,
		"groups": groups,
		"total":  len(users),
	})
}

// guardAction checks the role may use view without moving the router.
func guardAction(w http.ResponseWriter, r *http.Request, deps Deps, v navigation.View) (session.Session, bool) {
	sess, ok := deps.Sessions.Current(r.Context())
	d := navigation.Decide(ok, sess.User.Role, v)
	switch d.Outcome {
	case navigation.Render:
		return sess, true
	case navigation.RedirectLogin:
		redirect(w, r, navigation.ViewLogin)
	default:
		writeError(w, http.StatusForbidden, "forbidden")
	}
	return session.Session{}, false
}

func submitAttendance(w http.ResponseWriter, r *http.Request, deps Deps) {
	sess, ok := guardAction(w, r, deps, navigation.ViewAttendance)
	if !ok {
		return
	}
	var rec api.AttendanceRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	created, err := deps.Portal.SubmitAttendance(r.Context(), rec)
	if err != nil {
		auditReq(deps.Audit, r, sess.User.Email, "attendance.submit", strconv.FormatInt(rec.StudentID, 10), "failed", err.Error())
		writePortalError(w, r, err)
		return
	}
	auditReq(deps.Audit, r, sess.User.Email, "attendance.submit", strconv.FormatInt(rec.StudentID, 10), "success",
		fmt.Sprintf("subject=%d day=%s visited=%t", rec.SubjectID, rec.VisitDay, rec.Visited))
	writeJSON(w, http.StatusCreated, created)
}

func createStudentProfile(w http.ResponseWriter, r *http.Request, deps Deps) {
	sess, ok := guardAction(w, r, deps, navigation.ViewUsers)
	if !ok {
		return
	}
	var req api.CreateStudentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	created, err := deps.Portal.CreateStudentFromUser(r.Context(), req)
	if err != nil {
		auditReq(deps.Audit, r, sess.User.Email, "student.create_from_user", strconv.FormatInt(req.UserID, 10), "failed", err.Error())
		writePortalError(w, r, err)
		return
	}
	auditReq(deps.Audit, r, sess.User.Email, "student.create_from_user", strconv.FormatInt(req.UserID, 10), "success",
		"student_id="+strconv.FormatInt(created.ID, 10))
	writeJSON(w, http.StatusCreated, created)
}

func queryID(r *http.Request, key string) (int64, bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0, false, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid %s", key)
	}
	return id, true, nil
}
