package main

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/pmicdash/pmicdash/pkg/dashboard"
	"github.com/pmicdash/pmicdash/pkg/rail"
)

func enableCmd(enabled bool) *cobra.Command {
	use, short := "enable", "Enable the PMIC output"
	if !enabled {
		use, short = "disable", "Disable the PMIC output"
	}

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext()
			defer cancel()

			var view dashboard.View
			if err := newClient().do(ctx, http.MethodPost, "/api/enable", map[string]bool{"enabled": enabled}, &view); err != nil {
				return fmt.Errorf("failed to %s PMIC: %w", use, err)
			}
			return printView(os.Stdout, view)
		},
	}
	return cmd
}

func railCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rail <cpu|gpu|mem> <millivolts>",
		Short: "Set one rail voltage",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, mv, err := parseRailArgs(args)
			if err != nil {
				return err
			}

			ctx, cancel := requestContext()
			defer cancel()

			var view dashboard.View
			if err := newClient().do(ctx, http.MethodPut, "/api/rails/"+string(id), map[string]int{"millivolts": mv}, &view); err != nil {
				return fmt.Errorf("failed to set %s: %w", id.DisplayName(), err)
			}
			return printView(os.Stdout, view)
		},
	}
	return cmd
}

// parseRailArgs parses "<rail> <millivolts>". The value is checked against
// the rail's safe range before anything is sent.
func parseRailArgs(args []string) (rail.ID, int, error) {
	id, err := rail.Parse(strings.ToLower(args[0]))
	if err != nil {
		return "", 0, err
	}
	mv, err := strconv.Atoi(args[1])
	if err != nil {
		return "", 0, fmt.Errorf("invalid millivolts %q: %w", args[1], err)
	}
	if r := rail.SafeRange(id); !r.Contains(mv) {
		return "", 0, fmt.Errorf("%s must be between %d and %d mV", id.DisplayName(), r.Min, r.Max)
	}
	return id, mv, nil
}

func profileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile <name>",
		Short: "Apply a preset voltage profile",
		Long:  fmt.Sprintf("Apply a preset voltage profile. Presets: %s.", strings.Join(rail.PresetNames(), ", ")),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := rail.Preset(args[0]); err != nil {
				return err
			}

			ctx, cancel := requestContext()
			defer cancel()

			var view dashboard.View
			if err := newClient().do(ctx, http.MethodPost, "/api/profiles/"+args[0], nil, &view); err != nil {
				return fmt.Errorf("failed to apply profile: %w", err)
			}
			return printView(os.Stdout, view)
		},
	}
	return cmd
}

func resetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Restore the default profile and clear alarms",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext()
			defer cancel()

			var view dashboard.View
			if err := newClient().do(ctx, http.MethodPost, "/api/reset", nil, &view); err != nil {
				return fmt.Errorf("failed to reset: %w", err)
			}
			return printView(os.Stdout, view)
		},
	}
	return cmd
}

func suggestCmd() *cobra.Command {
	var apply bool

	cmd := &cobra.Command{
		Use:   "suggest <goal>",
		Short: "Ask the assistant for a voltage profile",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext()
			defer cancel()

			client := newClient()
			var resp struct {
				Suggestion rail.Profile `json:"suggestion"`
			}
			goal := strings.Join(args, " ")
			if err := client.do(ctx, http.MethodPost, "/api/suggestion", map[string]string{"goal": goal}, &resp); err != nil {
				return fmt.Errorf("failed to get suggestion: %w", err)
			}
			pterm.Info.Printfln("Suggested: %s", formatProfile(resp.Suggestion))

			if !apply {
				return nil
			}
			var view dashboard.View
			if err := client.do(ctx, http.MethodPost, "/api/suggestion/apply", nil, &view); err != nil {
				return fmt.Errorf("failed to apply suggestion: %w", err)
			}
			return printView(os.Stdout, view)
		},
	}

	cmd.Flags().BoolVar(&apply, "apply", false, "Apply the suggestion once received")
	return cmd
}

func chatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat <message>",
		Short: "Send a message to the assistant and stream the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext()
			defer cancel()

			out := cmd.OutOrStdout()
			_, err := newClient().chat(ctx, strings.Join(args, " "), func(fragment string) {
				fmt.Fprint(out, fragment)
			})
			fmt.Fprintln(out)
			return err
		},
	}
	return cmd
}
