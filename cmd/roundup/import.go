package main

import (
	"bufio"
	"fmt"
	"os"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/agenthands/roundup/internal/core"
)

func ImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <items.jsonl>",
		Short: "Load items and optional embeddings into the stores",
		Long: `Reads one JSON object per line with the item fields id, category, title,
body, fields and status, plus an optional embedding array that is written
to the similarity index.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := readImport(args[0])
			if err != nil {
				return err
			}

			ctx, c, cleanup, err := openConsolidator()
			if err != nil {
				return err
			}
			defer cleanup()

			n, err := c.Import(ctx, records)
			if err != nil {
				return err
			}
			fmt.Printf("Imported %d items\n", n)
			return nil
		},
	}
}

func readImport(path string) ([]core.ImportRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	var out []core.ImportRecord
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var r core.ImportRecord
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		if r.ID == "" {
			return nil, fmt.Errorf("%s:%d: missing id", path, line)
		}
		out = append(out, r)
	}
	return out, scanner.Err()
}
