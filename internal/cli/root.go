package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"uniportal/console/internal/app"
	"uniportal/console/internal/gateway"
)

// Opener builds the client stack for one command run.
type Opener func(ctx context.Context) (*app.Core, error)

// NewRootCmd creates the portalctl root command.
func NewRootCmd(open Opener) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "portalctl",
		Short:         "Command line client for the university portal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newLoginCommand(open),
		newRegisterCommand(open),
		newLogoutCommand(open),
		newWhoamiCommand(open),
		newNavCommand(open),
		newOpenCommand(open),
		newStudentsCommand(open),
		newScheduleCommand(open),
		newAttendanceCommand(open),
		newUsersCommand(open),
		newGroupsCommand(open),
		newAuditCommand(open),
	)

	return rootCmd
}

// withCore runs fn against a freshly opened stack and closes it afterwards.
func withCore(cmd *cobra.Command, open Opener, fn func(ctx context.Context, core *app.Core) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	core, err := open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := core.Close(); err != nil {
			core.Log.Warn("close client stack", "error", err)
		}
	}()
	return explain(fn(ctx, core))
}

func explain(err error) error {
	var expired *gateway.AuthExpiredError
	var reqErr *gateway.RequestError
	switch {
	case errors.As(err, &expired):
		return errors.New("session expired, run portalctl login")
	case errors.As(err, &reqErr):
		return fmt.Errorf("%s (status %d)", reqErr.Message, reqErr.Status)
	}
	return err
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
