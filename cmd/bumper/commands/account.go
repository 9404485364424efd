package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"forumbump/internal/scrapers/forum"
	"forumbump/pkg/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X forumbump/cmd/bumper/commands.Version=..."
var Version = "dev"

var (
	whoamiCreds credentialFlags
	logoutCreds credentialFlags
)

func init() {
	whoamiCreds.register(whoamiCmd)
	logoutCreds.register(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(versionCmd)
}

type profileSource interface {
	Profile() (forum.Profile, bool)
	CurrentUser(ctx context.Context) (forum.Profile, error)
}

// cachedProfile returns the profile cached at login, fetching it only when
// nothing is cached.
func cachedProfile(ctx context.Context, src profileSource) (forum.Profile, error) {
	if profile, ok := src.Profile(); ok {
		return profile, nil
	}
	return src.CurrentUser(ctx)
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Prints the profile of the logged in user.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		e := newEnv(ctx, envOptions{})
		defer e.Close()
		e.login(ctx, whoamiCreds.credentials())

		profile, err := cachedProfile(ctx, e.session)
		if err != nil {
			serviceutil.Fatal("failed to fetch profile", err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendRows([]table.Row{
			{"Name", profile.Name},
			{"Uid", profile.Uid},
			{"Avatar", profile.AvatarUrl},
			{"Credits", profile.Credits},
			{"Reputation", profile.Reputation},
			{"Vouches", profile.Vouches},
		})
		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Logs out of the forum and forgets the stored session.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		e := newEnv(ctx, envOptions{})
		defer e.Close()

		username := e.login(ctx, logoutCreds.credentials())

		err := e.session.Logout(ctx)
		if err != nil {
			serviceutil.Fatal("failed to log out", err)
		}
		err = e.keychain.DeleteSession(ctx, username)
		if err != nil {
			serviceutil.Fatal("failed to delete stored session", err)
		}
		slog.Info("logged out", "username", username)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Prints the version.",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(Version)
	},
}
