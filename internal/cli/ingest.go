package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jhatier/mnemo/internal/engine"
	"github.com/jhatier/mnemo/internal/store"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file.jsonl]",
	Short: "Ingest segments from a JSONL file (or stdin)",
	Long:  "Reads one JSON segment per line, validates each, and ingests the batch in chronological order. A bad line is reported and skipped, never blocking the rest.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runIngest,
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	in := os.Stdin
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		in = f
	}

	var segs []store.Segment
	var badLines []int
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Bytes()
		if len(text) == 0 {
			continue
		}
		var seg store.Segment
		if err := json.Unmarshal(text, &seg); err != nil {
			fmt.Fprintf(os.Stderr, "line %d: invalid json: %v\n", line, err)
			badLines = append(badLines, line)
			continue
		}
		segs = append(segs, seg)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	eng := engine.New(db, cfg)
	result := eng.PutSegments(segs)

	fmt.Printf("ingested %d segments (%d deduplicated)\n", result.Succeeded, result.Deduplicated)
	for _, f := range result.Failed {
		fmt.Fprintf(os.Stderr, "failed [%s]: %s\n", f.Timestamp, f.Reason)
	}
	if len(result.Failed) > 0 || len(badLines) > 0 {
		return fmt.Errorf("%d segments rejected", len(result.Failed)+len(badLines))
	}
	return nil
}
