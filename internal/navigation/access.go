package navigation

import "uniportal/console/internal/session"

type View string

const (
	ViewLogin      View = "login"
	ViewRegister   View = "register"
	ViewDashboard  View = "dashboard"
	ViewStudents   View = "students"
	ViewSchedule   View = "schedule"
	ViewAttendance View = "attendance"
	ViewUsers      View = "users"
)

// Landing is where a signed-in user is sent by default.
const Landing = ViewDashboard

var publicViews = map[View]bool{
	ViewLogin:    true,
	ViewRegister: true,
}

// protectedViews is in menu order.
var protectedViews = []View{ViewDashboard, ViewStudents, ViewSchedule, ViewAttendance, ViewUsers}

// visibility is the single access table. Menus and navigation both read it.
var visibility = map[session.Role]map[View]bool{
	session.RoleStudent: {ViewDashboard: true, ViewStudents: true, ViewSchedule: true},
	session.RoleTeacher: {ViewDashboard: true, ViewStudents: true, ViewSchedule: true, ViewAttendance: true},
	session.RoleAdmin:   {ViewDashboard: true, ViewStudents: true, ViewSchedule: true, ViewAttendance: true, ViewUsers: true},
}

func (v View) Public() bool {
	return publicViews[v]
}

func (v View) Known() bool {
	if publicViews[v] {
		return true
	}
	for _, p := range protectedViews {
		if p == v {
			return true
		}
	}
	return false
}

func (v View) Path() string {
	return "/" + string(v)
}

// Visible reports whether role may render the protected view v.
func Visible(role session.Role, v View) bool {
	return visibility[role][v]
}

// Menu lists the views role may open, in display order.
func Menu(role session.Role) []View {
	out := make([]View, 0, len(protectedViews))
	for _, v := range protectedViews {
		if Visible(role, v) {
			out = append(out, v)
		}
	}
	return out
}

type Outcome int

const (
	Render Outcome = iota
	RedirectLogin
	RedirectLanding
)

func (o Outcome) String() string {
	switch o {
	case Render:
		return "render"
	case RedirectLogin:
		return "redirect_login"
	case RedirectLanding:
		return "redirect_landing"
	}
	return "unknown"
}

type Decision struct {
	Outcome Outcome
	Target  View
}

// Decide is the navigation guard. Views a role may not see are silently
// replaced by the landing view.
func Decide(authenticated bool, role session.Role, v View) Decision {
	if !authenticated {
		if v.Public() {
			return Decision{Outcome: Render, Target: v}
		}
		return Decision{Outcome: RedirectLogin, Target: ViewLogin}
	}
	if v.Public() || !Visible(role, v) {
		return Decision{Outcome: RedirectLanding, Target: Landing}
	}
	return Decision{Outcome: Render, Target: v}
}
