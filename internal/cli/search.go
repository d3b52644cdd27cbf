package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jhatier/mnemo/internal/engine"
)

var (
	searchLimit  int
	searchAuthor string
	searchOrigin string
	searchTags   []string
	searchPeople []string
	searchSince  int64
	searchUntil  int64
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search stored segments",
	Args:  cobra.ArbitraryArgs,
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "maximum results")
	searchCmd.Flags().StringVar(&searchAuthor, "author", "", "filter by author")
	searchCmd.Flags().StringVar(&searchOrigin, "origin", "", "filter by source origin")
	searchCmd.Flags().StringSliceVar(&searchTags, "tag", nil, "filter by tag (repeatable)")
	searchCmd.Flags().StringSliceVar(&searchPeople, "person", nil, "filter by person (repeatable)")
	searchCmd.Flags().Int64Var(&searchSince, "since", 0, "epoch lower bound")
	searchCmd.Flags().Int64Var(&searchUntil, "until", 0, "epoch upper bound")
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	eng := engine.New(db, cfg)
	query := strings.Join(args, " ")
	filters := engine.SearchFilters{
		Author: searchAuthor,
		Origin: searchOrigin,
		Tags:   searchTags,
		People: searchPeople,
		Since:  searchSince,
		Until:  searchUntil,
	}

	profile, results, err := eng.Search(query, filters, searchLimit)
	if err != nil {
		return err
	}

	fmt.Printf("intent: %s\n", profile.Intent)
	if len(results) == 0 {
		fmt.Println("no results")
		return nil
	}
	for _, r := range results {
		summary := r.Segment.Summary
		if len(summary) > 80 {
			summary = summary[:80] + "..."
		}
		fmt.Printf("%6d  %.3f  %s  [%s]  %s\n",
			r.SegmentID, r.Score, r.Segment.Timestamp,
			strings.Join(r.MatchedSignals, ","), summary)
	}
	return nil
}
