package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/pmicdash/pmicdash/pkg/dashboard"
	"github.com/pmicdash/pmicdash/pkg/rail"
)

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the PMIC state and the last telemetry sample",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext()
			defer cancel()

			var view dashboard.View
			if err := newClient().do(ctx, http.MethodGet, "/api/state", nil, &view); err != nil {
				return fmt.Errorf("failed to get state: %w", err)
			}
			return printView(os.Stdout, view)
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	var tail int

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Print the event log",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext()
			defer cancel()

			var resp struct {
				Entries []string `json:"entries"`
			}
			if err := newClient().do(ctx, http.MethodGet, "/api/log", nil, &resp); err != nil {
				return fmt.Errorf("failed to get log: %w", err)
			}

			entries := resp.Entries
			if tail > 0 && len(entries) > tail {
				entries = entries[len(entries)-tail:]
			}
			if outputFormat == "json" {
				return outputJSON(entries)
			}
			for _, e := range entries {
				fmt.Println(e)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&tail, "tail", 0, "Only print the last N entries")
	return cmd
}

// printView prints a dashboard view in the selected output format.
func printView(w io.Writer, view dashboard.View) error {
	switch outputFormat {
	case "json":
		return outputJSON(view)
	case "table":
		outputViewTable(w, view)
		return nil
	default:
		return fmt.Errorf("unsupported output format: %s", outputFormat)
	}
}

func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func outputViewTable(w io.Writer, view dashboard.View) {
	if view.State.Enabled {
		pterm.Success.Println("PMIC Enabled")
	} else {
		pterm.Warning.Println("PMIC Disabled")
	}

	table := tablewriter.NewWriter(w)
	table.Append([]string{"Rail", "Voltage", "Safe Range"})
	for _, id := range rail.All {
		r := rail.SafeRange(id)
		table.Append([]string{
			id.DisplayName(),
			rail.FormatVolts(view.State.Rails.Get(id)),
			fmt.Sprintf("%s - %s", rail.FormatVolts(r.Min), rail.FormatVolts(r.Max)),
		})
	}
	table.Render()

	temp, current := formatSample(view)
	pterm.Info.Printfln("Temperature: %s", temp)
	pterm.Info.Printfln("Current:     %s", current)
	printAlarm("Over Temperature", view.State.OverTemperature)
	printAlarm("Over Current", view.State.OverCurrent)

	if view.Suggestion != nil {
		pterm.Info.Printfln("Pending suggestion: %s", formatProfile(*view.Suggestion))
	}
}

func printAlarm(name string, active bool) {
	if active {
		pterm.Error.Printfln("%s: ALARM", name)
		return
	}
	pterm.Success.Printfln("%s: OK", name)
}

func formatSample(view dashboard.View) (temperature, current string) {
	if view.Sample == nil {
		return "-", "-"
	}
	return fmt.Sprintf("%.1f °C", view.Sample.TemperatureC), fmt.Sprintf("%.2f A", view.Sample.CurrentA)
}

func formatProfile(p rail.Profile) string {
	return fmt.Sprintf("%s %s, %s %s, %s %s",
		rail.CPU.DisplayName(), rail.FormatVolts(p.CPU),
		rail.GPU.DisplayName(), rail.FormatVolts(p.GPU),
		rail.MEM.DisplayName(), rail.FormatVolts(p.MEM),
	)
}
