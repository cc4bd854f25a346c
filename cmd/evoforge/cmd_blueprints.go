package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"evoforge/internal/blueprint"
)

// blueprintsCmd lists registered blueprints, optionally filtered by a query.
var blueprintsCmd = &cobra.Command{
	Use:   "blueprints [query]",
	Short: "List registered evolution blueprints",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := blueprint.NewRegistry(cfg.BlueprintDir)
		if err != nil {
			return err
		}

		list := registry.List()
		if len(args) == 1 {
			list = registry.Search(args[0])
		}
		if len(list) == 0 {
			fmt.Println("no blueprints found")
			return nil
		}

		for _, bp := range list {
			fmt.Printf("%s (v%s)\n", bp.ID, bp.Version)
			if bp.Description != "" {
				fmt.Printf("  %s\n", bp.Description)
			}
			fmt.Print("  stages:")
			for _, stage := range bp.AgentSequence {
				fmt.Printf(" %s:%s", stage.Agent, stage.Role)
			}
			fmt.Printf("\n  max %d cycles, convergence threshold %.2f\n",
				bp.Evolution.MaxIterations, bp.Evolution.ConvergenceThreshold)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(blueprintsCmd)
}
