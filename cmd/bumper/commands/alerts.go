package commands

import (
	"os"

	"forumbump/pkg/serviceutil"
	"forumbump/pkg/textutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	alertsCreds   credentialFlags
	messagesCreds credentialFlags
)

func init() {
	alertsCreds.register(alertsCmd)
	messagesCreds.register(messagesCmd)
	rootCmd.AddCommand(alertsCmd)
	rootCmd.AddCommand(messagesCmd)
}

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Prints the latest alerts of the logged in user.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		e := newEnv(ctx, envOptions{})
		defer e.Close()
		e.login(ctx, alertsCreds.credentials())

		alerts, err := e.session.Alerts(ctx)
		if err != nil {
			serviceutil.Fatal("failed to fetch alerts", err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Id", "User", "Alert", "Time"})
		for _, alert := range alerts {
			t.AppendRow(table.Row{alert.Id, alert.User, textutil.Preview(alert.Info, 60), alert.Time})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}

var messagesCmd = &cobra.Command{
	Use:   "messages",
	Short: "Prints the private message inbox of the logged in user.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		e := newEnv(ctx, envOptions{})
		defer e.Close()
		e.login(ctx, messagesCreds.credentials())

		messages, err := e.session.Messages(ctx)
		if err != nil {
			serviceutil.Fatal("failed to fetch messages", err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Id", "From", "Title", "Sent", "Unread"})
		for _, m := range messages {
			unread := ""
			if m.Unread {
				unread = "*"
			}
			t.AppendRow(table.Row{m.Id, m.User, textutil.Preview(m.Title, 60), m.Time, unread})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}
