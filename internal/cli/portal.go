package cli

import (
	"context"
	"errors"
	"strconv"

	"github.com/spf13/cobra"

	"uniportal/console/internal/api"
	"uniportal/console/internal/app"
	"uniportal/console/internal/navigation"
	"uniportal/console/internal/session"
)

// requireView applies the navigation guard before a command touches the
// backend.
func requireView(ctx context.Context, core *app.Core, v navigation.View) error {
	user, ok := core.Sessions.CurrentUser(ctx)
	d := navigation.Decide(ok, user.Role, v)
	switch d.Outcome {
	case navigation.Render:
		return nil
	case navigation.RedirectLogin:
		return errNotSignedIn
	}
	return errors.New("the " + string(v) + " view is not available to role " + string(user.Role))
}

func newStudentsCommand(open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "students",
		Short: "Student records",
		Args:  cobra.NoArgs,
	}
	cmd.AddCommand(newStudentsGetCommand(open), newStudentsListCommand(open), newStudentsCreateCommand(open))
	return cmd
}

func newStudentsGetCommand(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one student",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return errors.New("student id must be a number")
			}
			return withCore(cmd, open, func(ctx context.Context, core *app.Core) error {
				if err := requireView(ctx, core, navigation.ViewStudents); err != nil {
					return err
				}
				student, err := core.Portal.GetStudent(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), student)
			})
		},
	}
}

func newStudentsListCommand(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List students",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCore(cmd, open, func(ctx context.Context, core *app.Core) error {
				if err := requireView(ctx, core, navigation.ViewStudents); err != nil {
					return err
				}
				items, err := core.Portal.ListStudents(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), items)
			})
		},
	}
}

func newStudentsCreateCommand(open Opener) *cobra.Command {
	var req api.CreateStudentRequest

	cmd := &cobra.Command{
		Use:   "create-from-user",
		Short: "Create a student profile for an existing student account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCore(cmd, open, func(ctx context.Context, core *app.Core) error {
				if err := requireView(ctx, core, navigation.ViewUsers); err != nil {
					return err
				}
				created, err := core.Portal.CreateStudentFromUser(ctx, req)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), created)
			})
		},
	}

	cmd.Flags().Int64Var(&req.UserID, "user", 0, "user id")
	cmd.Flags().StringVar(&req.Gender, "gender", "", "male, female or other (required)")
	cmd.Flags().StringVar(&req.BirthDate, "birth-date", "", "birth date, YYYY-MM-DD")
	cmd.Flags().Int64Var(&req.GroupID, "group", 0, "group id")
	return cmd
}

func newScheduleCommand(open Opener) *cobra.Command {
	var groupID int64

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "List class schedules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCore(cmd, open, func(ctx context.Context, core *app.Core) error {
				if err := requireView(ctx, core, navigation.ViewSchedule); err != nil {
					return err
				}
				var items []api.Schedule
				var err error
				if cmd.Flags().Changed("group") {
					items, err = core.Portal.ListSchedulesByGroup(ctx, groupID)
				} else {
					items, err = core.Portal.ListSchedules(ctx)
				}
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), items)
			})
		},
	}

	cmd.Flags().Int64VarP(&groupID, "group", "g", 0, "only this group")
	return cmd
}

func newAttendanceCommand(open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attendance",
		Short: "Attendance records",
		Args:  cobra.NoArgs,
	}
	cmd.AddCommand(newAttendanceListCommand(open), newAttendanceSubmitCommand(open))
	return cmd
}

func newAttendanceListCommand(open Opener) *cobra.Command {
	var studentID, subjectID int64

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List attendance by student or by subject",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			byStudent := cmd.Flags().Changed("student")
			bySubject := cmd.Flags().Changed("subject")
			if byStudent == bySubject {
				return errors.New("pass exactly one of --student or --subject")
			}
			return withCore(cmd, open, func(ctx context.Context, core *app.Core) error {
				if err := requireView(ctx, core, navigation.ViewAttendance); err != nil {
					return err
				}
				var items []api.Attendance
				var err error
				if byStudent {
					items, err = core.Portal.AttendanceByStudent(ctx, studentID)
				} else {
					items, err = core.Portal.AttendanceBySubject(ctx, subjectID)
				}
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), items)
			})
		},
	}

	cmd.Flags().Int64Var(&studentID, "student", 0, "student id")
	cmd.Flags().Int64Var(&subjectID, "subject", 0, "subject id")
	return cmd
}

func newAttendanceSubmitCommand(open Opener) *cobra.Command {
	var rec api.AttendanceRecord

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Record a visit or absence",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCore(cmd, open, func(ctx context.Context, core *app.Core) error {
				if err := requireView(ctx, core, navigation.ViewAttendance); err != nil {
					return err
				}
				created, err := core.Portal.SubmitAttendance(ctx, rec)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), created)
			})
		},
	}

	cmd.Flags().Int64Var(&rec.SubjectID, "subject", 0, "subject id")
	cmd.Flags().Int64Var(&rec.StudentID, "student", 0, "student id")
	cmd.Flags().StringVar(&rec.VisitDay, "day", "", "visit day, YYYY-MM-DD")
	cmd.Flags().BoolVar(&rec.Visited, "visited", false, "the student attended")
	return cmd
}

func newUsersCommand(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List user accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCore(cmd, open, func(ctx context.Context, core *app.Core) error {
				if err := requireView(ctx, core, navigation.ViewUsers); err != nil {
					return err
				}
				users, err := core.Portal.ListUsers(ctx)
				if err != nil {
					return err
				}
				if users == nil {
					users = []session.User{}
				}
				return printJSON(cmd.OutOrStdout(), users)
			})
		},
	}
}

func newGroupsCommand(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "groups",
		Short: "List student groups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCore(cmd, open, func(ctx context.Context, core *app.Core) error {
				if err := requireView(ctx, core, navigation.ViewUsers); err != nil {
					return err
				}
				groups, err := core.Portal.ListGroups(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), groups)
			})
		},
	}
}
