package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jhatier/mnemo/internal/engine"
)

var decayCmd = &cobra.Command{
	Use:   "decay",
	Short: "Apply mnemonic weight decay to all segments",
	RunE: func(cmd *cobra.Command, args []string) error {
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
		updated, err := eng.DecayMnemonicWeights(nil)
		if err != nil {
			return err
		}
		fmt.Printf("decay: updated %d segments\n", updated)
		return nil
	},
}

var repairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Reconcile the full-text index with primary storage",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := openStore(cfg)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()

		repaired, err := db.RepairIndex()
		if err != nil {
			return err
		}
		fmt.Printf("repair: reconciled %d journal entries\n", repaired)

		missing, orphans, err := db.VerifyIndex()
		if err != nil {
			return err
		}
		if len(missing) > 0 || len(orphans) > 0 {
			fmt.Printf("verify: %d segments missing from index, %d orphan index rows\n",
				len(missing), len(orphans))
		} else {
			fmt.Println("verify: index consistent")
		}
		return nil
	},
}

var dupesDelete bool

var dupesCmd = &cobra.Command{
	Use:   "dupes",
	Short: "Report (or remove) segments sharing an identity key",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := openStore(cfg)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()

		if dupesDelete {
			removed, err := db.DeleteDuplicateSegments()
			if err != nil {
				return err
			}
			fmt.Printf("dupes: removed %d duplicate segments\n", removed)
			return nil
		}

		groups, err := db.FindDuplicateSegments()
		if err != nil {
			return err
		}
		if len(groups) == 0 {
			fmt.Println("no duplicates")
			return nil
		}
		for _, g := range groups {
			fmt.Printf("%s  origin=%q  ids=%v\n", g.Timestamp, g.SourceOrigin, g.IDs)
		}
		return nil
	},
}

func init() {
	dupesCmd.Flags().BoolVar(&dupesDelete, "delete", false, "remove duplicates, keeping the oldest row")
}
