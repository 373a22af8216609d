package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/gosuda/temsim/internal/scenario"
)

var flagScenariosDump bool

var scenariosCmd = &cobra.Command{
	Use:   "scenarios",
	Short: "Validate the scenario library and list its scenarios",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		lib, err := loadLibrary()
		if err != nil {
			return fmt.Errorf("load scenarios: %w", err)
		}
		if flagScenariosDump {
			return dumpLibrary(cmd.OutOrStdout(), lib)
		}
		return listScenarios(cmd.OutOrStdout(), lib)
	},
}

func init() {
	scenariosCmd.Flags().BoolVar(&flagScenariosDump, "dump", false, "print the normalized library as YAML")
}

func listScenarios(w io.Writer, lib *scenario.Library) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tDURATION\tEVENTS\tCHECKLISTS\tNAME")
	for _, key := range lib.ScenarioKeys() {
		sc, _ := lib.Scenario(key)
		events := make([]string, 0, len(sc.Events))
		for _, ev := range sc.Events {
			events = append(events, ev.ID)
		}
		if len(events) == 0 {
			events = append(events, "-")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", sc.Key, sc.Duration.Duration(), strings.Join(events, ","), len(sc.AcceptableChecklists), sc.Name)
	}
	fmt.Fprintf(tw, "\n%d gauges, %d checklists, %d threats, %d quiz questions\n", len(lib.Gauges), len(lib.Checklists), len(lib.Threats), len(lib.Quiz))
	return tw.Flush()
}

func dumpLibrary(w io.Writer, lib *scenario.Library) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(lib); err != nil {
		return err
	}
	return enc.Close()
}
