package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"uniportal/console/internal/app"
	"uniportal/console/internal/audit"
	"uniportal/console/internal/navigation"
	"uniportal/console/internal/session"
)

var errNotSignedIn = errors.New("not signed in, run portalctl login")

func newLoginCommand(open Opener) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCore(cmd, open, func(ctx context.Context, core *app.Core) error {
				sess, err := core.Sessions.Login(ctx, email, password)
				if err != nil {
					return authFailure(err, "login failed")
				}
				d := core.Router.SignedIn(ctx)
				return printJSON(cmd.OutOrStdout(), map[string]any{"user": sess.User, "redirect": d.Target.Path()})
			})
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newRegisterCommand(open Opener) *cobra.Command {
	var email, password, role, fullName string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and store the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, ok := session.ParseRole(role)
			if !ok {
				return fmt.Errorf("role must be one of student, teacher, admin")
			}
			return withCore(cmd, open, func(ctx context.Context, core *app.Core) error {
				sess, err := core.Sessions.Register(ctx, session.RegisterRequest{
					Email:    email,
					Password: password,
					Role:     r,
					FullName: fullName,
				})
				if err != nil {
					return authFailure(err, "registration failed")
				}
				d := core.Router.SignedIn(ctx)
				return printJSON(cmd.OutOrStdout(), map[string]any{"user": sess.User, "redirect": d.Target.Path()})
			})
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password")
	cmd.Flags().StringVarP(&role, "role", "r", string(session.RoleStudent), "student, teacher or admin")
	cmd.Flags().StringVar(&fullName, "full-name", "", "display name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newLogoutCommand(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCore(cmd, open, func(ctx context.Context, core *app.Core) error {
				if err := core.Sessions.Logout(ctx); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]string{"status": "signed out"})
			})
		},
	}
}

func newWhoamiCommand(open Opener) *cobra.Command {
	var remote bool

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCore(cmd, open, func(ctx context.Context, core *app.Core) error {
				sess, ok := core.Sessions.Current(ctx)
				if !ok {
					return errNotSignedIn
				}
				user := sess.User
				if remote {
					var err error
					if user, err = core.Portal.Me(ctx); err != nil {
						return err
					}
				}
				out := map[string]any{"user": user}
				if exp, ok := session.TokenExpiry(sess.Token); ok {
					out["expires_at"] = exp.UTC().Format(time.RFC3339)
				}
				return printJSON(cmd.OutOrStdout(), out)
			})
		},
	}

	cmd.Flags().BoolVar(&remote, "remote", false, "fetch the profile from the backend")
	return cmd
}

func newNavCommand(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "nav",
		Short: "List the views the signed-in role may open",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCore(cmd, open, func(ctx context.Context, core *app.Core) error {
				user, ok := core.Sessions.CurrentUser(ctx)
				if !ok {
					return errNotSignedIn
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{"role": user.Role, "views": navigation.Menu(user.Role)})
			})
		},
	}
}

func newOpenCommand(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "open <view>",
		Short: "Show where navigating to a view leads",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCore(cmd, open, func(ctx context.Context, core *app.Core) error {
				d := core.Router.Navigate(ctx, navigation.View(args[0]))
				return printJSON(cmd.OutOrStdout(), map[string]string{
					"requested": args[0],
					"outcome":   d.Outcome.String(),
					"view":      string(d.Target),
				})
			})
		},
	}
}

func authFailure(err error, fallback string) error {
	var authErr *session.AuthError
	if errors.As(err, &authErr) {
		if authErr.Message == "" {
			return errors.New(fallback)
		}
		return errors.New(authErr.Message)
	}
	return fmt.Errorf("%s: %w", fallback, err)
}

func newAuditCommand(open Opener) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recent session events for this credential scope",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}
			return withCore(cmd, open, func(ctx context.Context, core *app.Core) error {
				events, err := core.Audit.Recent(limit)
				if err != nil {
					return err
				}
				if events == nil {
					events = []audit.Event{}
				}
				return printJSON(cmd.OutOrStdout(), events)
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of events")
	return cmd
}
