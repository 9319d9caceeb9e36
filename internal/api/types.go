package api

type Student struct {
	ID        int64  `json:"id,omitempty"`
	UserID    int64  `json:"user_id,omitempty"`
	FullName  string `json:"full_name"`
	Gender    string `json:"gender"`
	BirthDate string `json:"birth_date"`
	GroupID   int64  `json:"group_id"`
	GroupName string `json:"group_name,omitempty"`
}

// StudentListing is one row of the students listing. The backend lists
// student accounts that have no profile yet under the negated user id;
// NeedsProfile marks those rows when that reading is enabled.
type StudentListing struct {
	Student
	NeedsProfile bool `json:"needs_profile,omitempty"`
}

type Schedule struct {
	ID          int64  `json:"id"`
	SubjectName string `json:"subject_name"`
	TimeSlot    string `json:"time_slot"`
	GroupID     int64  `json:"group_id"`
	GroupName   string `json:"group_name"`
}

type Attendance struct {
	ID        int64  `json:"id,omitempty"`
	SubjectID int64  `json:"subject_id"`
	VisitDay  string `json:"visit_day"`
	Visited   bool   `json:"visited"`
	StudentID int64  `json:"student_id"`
}

// AttendanceRecord is the payload of a new attendance mark.
type AttendanceRecord struct {
	SubjectID int64  `json:"subject_id" validate:"gt=0"`
	VisitDay  string `json:"visit_day" validate:"required,datetime=2006-01-02"`
	Visited   bool   `json:"visited"`
	StudentID int64  `json:"student_id" validate:"gt=0"`
}

type Group struct {
	ID         int64  `json:"id"`
	GroupName  string `json:"group_name"`
	FacultyID  int64  `json:"faculty_id"`
	CourseYear int    `json:"course_year"`
}

// CreateStudentRequest attaches a new student profile to an existing student
// account.
type CreateStudentRequest struct {
	UserID    int64  `json:"user_id" validate:"gt=0"`
	Gender    string `json:"gender" validate:"required,oneof=male female other"`
	BirthDate string `json:"birth_date" validate:"required,datetime=2006-01-02"`
	GroupID   int64  `json:"group_id" validate:"gt=0"`
}
