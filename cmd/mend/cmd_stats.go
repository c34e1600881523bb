package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"mend/internal/embedding"
	"mend/internal/learning"
	"mend/internal/planner"
	"mend/internal/retrieval"
	"mend/internal/store"
)

// statsCmd prints the learned state without running any episodes.
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show bandit posteriors, index size, and learning summary",
	RunE:  showStats,
}

func showStats(cmd *cobra.Command, args []string) error {
	st, err := store.NewStateStore(filepath.Join(workspace, cfg.Store.DatabasePath))
	if err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}
	defer st.Close()

	plannerBandit := learning.NewBandit(planner.DefaultRegistry().Names()...)
	strategyBandit := learning.NewBandit(learning.DefaultStrategies...)
	if err := st.LoadBandit("planner", plannerBandit); err != nil {
		return err
	}
	if err := st.LoadBandit("strategy", strategyBandit); err != nil {
		return err
	}

	printBandit := func(title string, b *learning.Bandit) {
		fmt.Printf("%s:\n", title)
		stats := b.Statistics()
		for _, name := range b.Arms() {
			s := stats[name]
			fmt.Printf("  %-20s mean=%.3f n=%.0f (alpha=%.2f beta=%.2f)\n",
				name, s.Mean, s.N, s.Alpha, s.Beta)
		}
	}
	printBandit("Planners", plannerBandit)
	printBandit("Strategies", strategyBandit)

	index := retrieval.NewFailureIndex(embedding.NewHashEngine(cfg.Learning.EmbeddingDim))
	if err := st.LoadIndex(index); err != nil {
		return err
	}
	fmt.Printf("Failure index: %d entries\n", index.Size())

	summary, err := st.Summarize()
	if err != nil {
		return err
	}
	fmt.Printf("Episodes recorded: %d\n", summary.Episodes)
	if len(summary.StrategyRank) > 0 {
		fmt.Println("Strategy ranking by mean reward:")
		for _, row := range summary.StrategyRank {
			fmt.Printf("  %-20s %.3f (%d/%d passed)\n", row.Key, row.MeanReward, row.Successes, row.N)
		}
	}
	return nil
}
