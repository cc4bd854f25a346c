package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"evoforge/internal/engine"
)

var (
	evolveGoal      string
	evolveFile      string
	evolveLanguage  string
	evolveBlueprint string
)

// evolveCmd starts a task and runs it to a terminal state in the foreground.
var evolveCmd = &cobra.Command{
	Use:   "evolve",
	Short: "Evolve a code artifact toward a goal",
	Long: `Starts an evolution task over the given file and streams it to a terminal
state. The evolved artifact is written next to the original with an .evolved
suffix.

While the task runs, steer it from another shell:
  evoforge guide <task-id> "prefer an iterative approach"
  evoforge cancel <task-id>`,
	RunE: runEvolve,
}

func init() {
	evolveCmd.Flags().StringVar(&evolveGoal, "goal", "", "optimization goal (required)")
	evolveCmd.Flags().StringVar(&evolveFile, "file", "", "path to the artifact to evolve (required)")
	evolveCmd.Flags().StringVar(&evolveLanguage, "language", "", "artifact language (inferred from the extension when empty)")
	evolveCmd.Flags().StringVar(&evolveBlueprint, "blueprint", "", "blueprint id (default algorithm_optimization)")
	_ = evolveCmd.MarkFlagRequired("goal")
	_ = evolveCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(evolveCmd)
}

func runEvolve(cmd *cobra.Command, args []string) error {
	content, err := os.ReadFile(evolveFile)
	if err != nil {
		return fmt.Errorf("failed to read artifact: %w", err)
	}
	language := evolveLanguage
	if language == "" {
		language = languageOf(evolveFile)
	}

	orch, sess, cleanup, err := buildEngine()
	if err != nil {
		return err
	}
	defer cleanup()

	// Ctrl-C cancels the task cooperatively; the session still closes out.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	task, err := orch.StartTask(ctx, engine.TaskSpec{
		Goal:        evolveGoal,
		Language:    language,
		Content:     string(content),
		BlueprintID: evolveBlueprint,
	})
	if err != nil {
		return err
	}

	fmt.Printf("task %s started\n", task.ID)
	fmt.Printf("  status:  evoforge status %s\n", task.ID)
	fmt.Printf("  guide:   evoforge guide %s \"<text>\"\n", task.ID)
	fmt.Printf("  cancel:  evoforge cancel %s\n", task.ID)

	progressDone := make(chan struct{})
	go streamProgress(task, progressDone)

	runErr := sess.Run(ctx, task)
	close(progressDone)
	if runErr != nil {
		return runErr
	}

	res, err := orch.Results(task.ID)
	if err != nil {
		return err
	}
	printResults(res)

	evolved := evolveFile + ".evolved"
	if err := os.WriteFile(evolved, []byte(res.Artifact), 0644); err != nil {
		return fmt.Errorf("failed to write evolved artifact: %w", err)
	}
	fmt.Printf("\nevolved artifact written to %s\n", evolved)
	return nil
}

// streamProgress prints cycle and status transitions while the task runs.
func streamProgress(task *engine.Task, done <-chan struct{}) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	var last engine.StatusInfo
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			info := task.Status()
			if info.Cycle != last.Cycle || info.Status != last.Status {
				fmt.Printf("  cycle %d: %s (best %.3f)\n", info.Cycle, info.Status, info.BestScore)
				last = info
			}
		}
	}
}

func languageOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".go":
		return "go"
	case ".py":
		return "python"
	case ".js", ".mjs":
		return "javascript"
	case ".ts":
		return "typescript"
	case ".rs":
		return "rust"
	case ".java":
		return "java"
	case ".c", ".h":
		return "c"
	case ".cpp", ".cc", ".hpp":
		return "cpp"
	case ".rb":
		return "ruby"
	default:
		return "text"
	}
}
