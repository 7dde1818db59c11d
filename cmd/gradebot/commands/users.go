package commands

import (
	"fmt"
	"strconv"

	"fic-gradebot/internal/db"
	"fic-gradebot/internal/fetch"
	"fic-gradebot/internal/scrapers/fic"
	"fic-gradebot/internal/store"
	"fic-gradebot/lib/util/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	addLogin    string
	addPassword string
	addName     string
	addDemo     bool
)

func init() {
	addUserCmd.Flags().StringVar(&addLogin, "login", "", "The portal login.")
	addUserCmd.Flags().StringVar(&addPassword, "password", "", "The portal password.")
	addUserCmd.Flags().StringVar(&addName, "name", "", "The display name, it is read from the FIC profile when empty.")
	addUserCmd.Flags().BoolVar(&addDemo, "demo", false, "Demo users are stored but never monitored.")
	addUserCmd.MarkFlagRequired("login")
	addUserCmd.MarkFlagRequired("password")

	usersCmd.AddCommand(addUserCmd, listUsersCmd, setUserCmd, deleteUserCmd)
	rootCmd.AddCommand(usersCmd)
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage the users being monitored.",
}

func parseUserId(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid user id %q", arg)
	}
	return id, nil
}

func parseSource(arg string) (db.Source, error) {
	if source := db.Source(arg); source.Valid() {
		return source, nil
	}
	return "", fmt.Errorf("%w: %q", store.ErrUnknownSource, arg)
}

var addUserCmd = &cobra.Command{
	Use:   "add <user id> --login <login> --password <password> [--name <name>] [--demo]",
	Short: "Adds or replaces a user, both sources start enabled.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		id, err := parseUserId(args[0])
		if err != nil {
			return err
		}

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		creds := fetch.Credentials{Username: addLogin, Password: addPassword}
		name := addName
		if name == "" && !addDemo {
			client, err := fic.NewClient(a.cfg.Portals.FicBaseUrl, a.tel)
			if err != nil {
				return err
			}
			name, err = client.ProfileName(ctx, creds)
			client.Close()
			if err != nil {
				return fmt.Errorf("sign in to FIC: %s", fetch.Localize(err))
			}
		}

		err = a.store.AddUser(ctx, id, creds, name, addDemo)
		if err != nil {
			return err
		}
		fmt.Printf("added user %d (%s)\n", id, name)
		return nil
	},
}

var listUsersCmd = &cobra.Command{
	Use:   "list",
	Short: "Lists every user with the state of both sources.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			serviceutil.Fatal("failed to open", err)
		}
		defer a.Close()

		users, err := a.store.ListUsers(ctx)
		if err != nil {
			serviceutil.Fatal("failed to list users", err)
		}

		t := newTable()
		t.AppendHeader(table.Row{"ID", "Name", "Demo", "FIC", "FIC until", "FIC error", "Moodle", "Moodle until", "Moodle error"})
		for _, u := range users {
			ficState, err := a.store.GetState(ctx, u.ID, db.SourceFic)
			if err != nil {
				serviceutil.Fatal("failed to read state", err)
			}
			moodleState, err := a.store.GetState(ctx, u.ID, db.SourceMoodle)
			if err != nil {
				serviceutil.Fatal("failed to read state", err)
			}
			t.AppendRow(table.Row{
				u.ID, u.DisplayName, u.IsDemo,
				onOff(u.Fic.Active), formatTime(u.Fic.Until), ficState.LastError,
				onOff(u.Moodle.Active), formatTime(u.Moodle.Until), moodleState.LastError,
			})
		}
		t.Render()
	},
}

var setUserCmd = &cobra.Command{
	Use:   "set <user id> <fic|moodle> <on|off>",
	Short: "Switches a source of a user on (starting a new lease) or off.",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		id, err := parseUserId(args[0])
		if err != nil {
			return err
		}
		source, err := parseSource(args[1])
		if err != nil {
			return err
		}
		var active bool
		switch args[2] {
		case "on":
			active = true
		case "off":
		default:
			return fmt.Errorf("expected on or off, got %q", args[2])
		}

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		_, err = a.store.GetUser(ctx, id)
		if err != nil {
			return err
		}
		return a.store.SetActive(ctx, id, source, active)
	},
}

var deleteUserCmd = &cobra.Command{
	Use:   "delete <user id>",
	Short: "Deletes a user together with their stored snapshots.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		id, err := parseUserId(args[0])
		if err != nil {
			return err
		}
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		return a.store.DeleteUser(ctx, id)
	},
}
