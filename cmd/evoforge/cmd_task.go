package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"evoforge/internal/engine"
)

var resultsOutput string

// statusCmd reads the last published status of a task.
var statusCmd = &cobra.Command{
	Use:   "status [task-id]",
	Short: "Show the status of an evolution task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		info, err := engine.ReadStatus(taskRoot(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("task %s: %s\n", info.TaskID, info.Status)
		fmt.Printf("  cycle %d, best score %.3f (version %d)\n", info.Cycle, info.BestScore, info.BestVersion)
		if info.LastError != "" {
			fmt.Printf("  last error: %s\n", info.LastError)
		}
		return nil
	},
}

// guideCmd queues operator guidance for a running task.
var guideCmd = &cobra.Command{
	Use:   "guide [task-id] [guidance...]",
	Short: "Send guidance to a running task",
	Long: `Queues guidance text for a running task. It is injected into the next
prompt the engine builds, so a cycle already in flight is unaffected.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args[1:], " ")
		if err := engine.AppendGuidance(taskRoot(), args[0], text); err != nil {
			return err
		}
		fmt.Printf("guidance queued for task %s\n", args[0])
		return nil
	},
}

// cancelCmd requests cooperative cancellation of a running task.
var cancelCmd = &cobra.Command{
	Use:   "cancel [task-id]",
	Short: "Cancel a running task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := engine.RequestCancel(taskRoot(), args[0]); err != nil {
			return err
		}
		fmt.Printf("cancellation requested for task %s\n", args[0])
		return nil
	},
}

// resultsCmd prints the final results of a terminal task.
var resultsCmd = &cobra.Command{
	Use:   "results [task-id]",
	Short: "Show the final results of a finished task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := engine.ReadResults(taskRoot(), args[0])
		if err != nil {
			return err
		}
		printResults(res)
		if resultsOutput != "" {
			if err := os.WriteFile(resultsOutput, []byte(res.Artifact), 0644); err != nil {
				return fmt.Errorf("failed to write artifact: %w", err)
			}
			fmt.Printf("\nbest artifact written to %s\n", resultsOutput)
		}
		return nil
	},
}

func init() {
	resultsCmd.Flags().StringVarP(&resultsOutput, "output", "o", "", "write the best artifact to this path")
	rootCmd.AddCommand(statusCmd, guideCmd, cancelCmd, resultsCmd)
}

func printResults(res *engine.Results) {
	fmt.Printf("\ntask %s finished: %s\n", res.TaskID, res.Status)
	fmt.Printf("  goal: %s\n", res.Goal)
	fmt.Printf("  best score %.3f (version %d, blueprint %s)\n", res.BestScore, res.BestVersion, res.BlueprintID)

	if len(res.Metrics) > 0 {
		names := make([]string, 0, len(res.Metrics))
		for name := range res.Metrics {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Println("  metrics:")
		for _, name := range names {
			m := res.Metrics[name]
			line := fmt.Sprintf("    %-18s %.3f (weight %.2f)", name, m.Score, m.Weight)
			if m.GateViolated {
				line += " GATE VIOLATED"
			}
			if m.Failed {
				line += " evaluator failed: " + m.Err
			}
			fmt.Println(line)
		}
	}

	if len(res.History) > 0 {
		fmt.Println("  cycles:")
		for _, rec := range res.History {
			line := fmt.Sprintf("    %2d %-20s %-8s %.3f", rec.Cycle, rec.Role, rec.Outcome, rec.Aggregate)
			if rec.Error != "" {
				line += "  " + rec.Error
			}
			fmt.Println(line)
		}
	}
}
