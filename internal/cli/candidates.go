package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jhatier/mnemo/internal/engine"
	"github.com/jhatier/mnemo/internal/store"
)

var candidatesCmd = &cobra.Command{
	Use:   "candidates",
	Short: "Review pending entity candidates",
}

var candidatesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List candidates awaiting resolution",
	RunE:  runCandidatesList,
}

var candidatesAcceptCmd = &cobra.Command{
	Use:   "accept <id>",
	Short: "Accept a candidate as a canonical entity",
	Args:  cobra.ExactArgs(1),
	RunE:  runCandidatesAccept,
}

var candidatesRejectCmd = &cobra.Command{
	Use:   "reject <id>",
	Short: "Reject a candidate",
	Args:  cobra.ExactArgs(1),
	RunE:  runCandidatesReject,
}

var (
	candidatesKind   string
	candidatesStatus string
	candidatesMerge  int64
)

func init() {
	candidatesListCmd.Flags().StringVar(&candidatesKind, "kind", "", "filter by kind (person, project, org)")
	candidatesListCmd.Flags().StringVar(&candidatesStatus, "status", store.CandidatePending, "filter by status (pending, accepted, rejected, all)")
	candidatesAcceptCmd.Flags().Int64Var(&candidatesMerge, "merge-into", 0, "merge the name into this entity as a variant")

	candidatesCmd.AddCommand(candidatesListCmd)
	candidatesCmd.AddCommand(candidatesAcceptCmd)
	candidatesCmd.AddCommand(candidatesRejectCmd)
}

func runCandidatesList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	status := candidatesStatus
	if status == "all" {
		status = ""
	}
	candidates, err := db.ListCandidates(status, candidatesKind)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		fmt.Println("no candidates")
		return nil
	}
	for _, c := range candidates {
		fmt.Printf("%6d  %-8s %-10s %q", c.ID, c.Kind, c.Status, c.DetectedName)
		if c.Context != "" {
			ctx := c.Context
			if len(ctx) > 60 {
				ctx = ctx[:60] + "..."
			}
			fmt.Printf("  (%s)", ctx)
		}
		fmt.Println()
	}
	return nil
}

func runCandidatesAccept(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("candidate id must be numeric")
	}

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
	entity, err := eng.AcceptCandidate(id, candidatesMerge)
	if err != nil {
		return err
	}
	fmt.Printf("accepted: %s %q (entity %d)\n", entity.Kind, entity.Name, entity.ID)
	return nil
}

func runCandidatesReject(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("candidate id must be numeric")
	}

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
	if err := eng.RejectCandidate(id); err != nil {
		return err
	}
	fmt.Printf("rejected candidate %d\n", id)
	return nil
}
