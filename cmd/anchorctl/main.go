package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var agentAddr string

	root := &cobra.Command{
		Use:           "anchorctl",
		Short:         "Control the local anchor agent",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&agentAddr, "agent", "http://127.0.0.1:7617", "agent control API address")

	root.AddCommand(newLoginCmd(&agentAddr))
	root.AddCommand(newLogoutCmd(&agentAddr))
	root.AddCommand(newStatusCmd(&agentAddr))
	root.AddCommand(newModeCmd(&agentAddr))
	root.AddCommand(newStartCmd(&agentAddr))
	root.AddCommand(newStopCmd(&agentAddr))
	root.AddCommand(newSyncCmd(&agentAddr))
	root.AddCommand(newScheduleCmd(&agentAddr))
	return root
}

func newLoginCmd(addr *string) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the sync backend",
		RunE: func(_ *cobra.Command, _ []string) error {
			c := newClient(*addr)
			var resp struct {
				UserID int64 `json:"user_id"`
			}
			if err := c.post("/v1/login", map[string]string{"email": email, "password": password}, &resp); err != nil {
				return err
			}
			fmt.Printf("signed in as user %d\n", resp.UserID)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	cmd.MarkFlagRequired("email")
	cmd.MarkFlagRequired("password")
	return cmd
}

func newLogoutCmd(addr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and drop the change feed",
		RunE: func(_ *cobra.Command, _ []string) error {
			return newClient(*addr).post("/v1/logout", struct{}{}, nil)
		},
	}
}

func newStatusCmd(addr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show agent and session status",
		RunE: func(_ *cobra.Command, _ []string) error {
			c := newClient(*addr)

			var health struct {
				Status     string `json:"status"`
				Subscribed bool   `json:"subscribed"`
				UserID     int64  `json:"user_id"`
			}
			if err := c.get("/v1/healthz", &health); err != nil {
				return err
			}

			var session struct {
				Active bool `json:"active"`
				Mode   *struct {
					Name     string   `json:"name"`
					Websites []string `json:"websites"`
				} `json:"mode"`
			}
			if err := c.get("/v1/session", &session); err != nil {
				return err
			}

			fmt.Printf("agent: %s\n", health.Status)
			if health.Subscribed {
				fmt.Printf("feed: subscribed (user %d)\n", health.UserID)
			} else {
				fmt.Println("feed: not subscribed")
			}
			if session.Active && session.Mode != nil {
				fmt.Printf("blocking: %s (%d sites)\n", session.Mode.Name, len(session.Mode.Websites))
			} else {
				fmt.Println("blocking: off")
			}
			return nil
		},
	}
}

func newStartCmd(addr *string) *cobra.Command {
	var override bool

	cmd := &cobra.Command{
		Use:   "start <mode-id>",
		Short: "Start a blocking session",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			body := map[string]any{"mode_id": args[0], "override": override}
			if err := newClient(*addr).post("/v1/session/start", body, nil); err != nil {
				return err
			}
			fmt.Println("blocking started")
			return nil
		},
	}
	cmd.Flags().BoolVar(&override, "override", false, "replace an already active session")
	return cmd
}

func newStopCmd(addr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the current blocking session",
		RunE: func(_ *cobra.Command, _ []string) error {
			if err := newClient(*addr).post("/v1/session/stop", struct{}{}, nil); err != nil {
				return err
			}
			fmt.Println("blocking stopped")
			return nil
		},
	}
}

func newSyncCmd(addr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Reconcile against the shared session record now",
		RunE: func(_ *cobra.Command, _ []string) error {
			var resp struct {
				Outcome string `json:"outcome"`
			}
			if err := newClient(*addr).post("/v1/sync", struct{}{}, &resp); err != nil {
				return err
			}
			fmt.Printf("sync: %s\n", resp.Outcome)
			return nil
		},
	}
}

func newModeCmd(addr *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mode",
		Short: "Manage blocking modes",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List modes",
		RunE: func(_ *cobra.Command, _ []string) error {
			var modes []struct {
				ID       string   `json:"id"`
				Name     string   `json:"name"`
				Websites []string `json:"websites"`
			}
			if err := newClient(*addr).get("/v1/modes", &modes); err != nil {
				return err
			}
			for _, m := range modes {
				fmt.Printf("%s  %s  (%s)\n", m.ID, m.Name, strings.Join(m.Websites, ", "))
			}
			return nil
		},
	})

	addCmd := &cobra.Command{
		Use:   "add <name> <website>...",
		Short: "Create a mode",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			var mode struct {
				ID string `json:"id"`
			}
			body := map[string]any{"name": args[0], "websites": args[1:]}
			if err := newClient(*addr).post("/v1/modes", body, &mode); err != nil {
				return err
			}
			fmt.Printf("created mode %s\n", mode.ID)
			return nil
		},
	}
	cmd.AddCommand(addCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "rm <mode-id>",
		Short: "Delete a mode (and its schedules)",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return newClient(*addr).delete("/v1/modes/" + args[0])
		},
	})

	return cmd
}

func newScheduleCmd(addr *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage auto-start schedules",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List schedules",
		RunE: func(_ *cobra.Command, _ []string) error {
			var schedules []struct {
				ID        string `json:"id"`
				Name      string `json:"name"`
				ModeID    string `json:"mode_id"`
				StartTime string `json:"start_time"`
				Weekdays  []int  `json:"weekdays"`
				Enabled   bool   `json:"enabled"`
			}
			if err := newClient(*addr).get("/v1/schedules", &schedules); err != nil {
				return err
			}
			for _, s := range schedules {
				state := "on"
				if !s.Enabled {
					state = "off"
				}
				fmt.Printf("%s  %s  %s  days=%v  [%s]\n", s.ID, s.Name, s.StartTime, s.Weekdays, state)
			}
			return nil
		},
	})

	var name, modeID, at, days string
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Create a schedule",
		RunE: func(_ *cobra.Command, _ []string) error {
			weekdays, err := parseDays(days)
			if err != nil {
				return err
			}
			var schedule struct {
				ID string `json:"id"`
			}
			body := map[string]any{
				"name": name, "mode_id": modeID, "start_time": at, "weekdays": weekdays,
			}
			if err := newClient(*addr).post("/v1/schedules", body, &schedule); err != nil {
				return err
			}
			fmt.Printf("created schedule %s\n", schedule.ID)
			return nil
		},
	}
	addCmd.Flags().StringVar(&name, "name", "", "schedule name")
	addCmd.Flags().StringVar(&modeID, "mode", "", "mode id to start")
	addCmd.Flags().StringVar(&at, "at", "", "start time HH:MM")
	addCmd.Flags().StringVar(&days, "days", "", "comma-separated weekdays 0-6 (0=Sunday)")
	addCmd.MarkFlagRequired("name")
	addCmd.MarkFlagRequired("mode")
	addCmd.MarkFlagRequired("at")
	addCmd.MarkFlagRequired("days")
	cmd.AddCommand(addCmd)

	cmd.AddCommand(newToggleCmd(addr, "enable", true))
	cmd.AddCommand(newToggleCmd(addr, "disable", false))

	cmd.AddCommand(&cobra.Command{
		Use:   "rm <schedule-id>",
		Short: "Delete a schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return newClient(*addr).delete("/v1/schedules/" + args[0])
		},
	})

	return cmd
}

func newToggleCmd(addr *string, use string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <schedule-id>",
		Short: strings.ToUpper(use[:1]) + use[1:] + " a schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			body := map[string]bool{"enabled": enabled}
			return newClient(*addr).post("/v1/schedules/"+args[0]+"/toggle", body, nil)
		},
	}
}

func parseDays(days string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(days, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid weekday %q", part)
		}
		out = append(out, d)
	}
	return out, nil
}
