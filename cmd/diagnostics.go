// file: cmd/diagnostics.go
// version: 2.0.0
// guid: c8f6a0d4-2a8b-48cf-9d08-02cc9915d9fc

package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/cockroachdb/pebble/v2"
	"github.com/spf13/cobra"

	"github.com/opencatalog/streamvault/internal/catalog"
	"github.com/opencatalog/streamvault/internal/config"
	"github.com/opencatalog/streamvault/internal/database"
)

var (
	diagnosticsCmd = &cobra.Command{
		Use:   "diagnostics",
		Short: "Debugging and cleanup helpers",
		Long:  "Diagnostic utilities for inspecting and repairing the catalog database.",
	}

	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show store and runtime statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiagnosticsStats()
		},
	}

	cleanupStaleCmd = &cobra.Command{
		Use:   "cleanup-stale",
		Short: "Remove catalogs not refreshed within a retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("yes")
			dryRun, _ := cmd.Flags().GetBool("dry-run")
			days, _ := cmd.Flags().GetInt("days")
			return runCleanupStaleCatalogs(days, force, dryRun)
		},
	}

	rawCmd = &cobra.Command{
		Use:   "raw",
		Short: "Inspect raw stored records",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			prefix, _ := cmd.Flags().GetString("prefix")
			return runRawPebbleQuery(limit, prefix)
		},
	}
)

func init() {
	cleanupStaleCmd.Flags().Bool("yes", false, "Skip confirmation prompt")
	cleanupStaleCmd.Flags().Bool("dry-run", false, "List stale catalogs without deleting")
	cleanupStaleCmd.Flags().Int("days", 30, "Retention window in days")

	rawCmd.Flags().Int("limit", 5, "Number of records to display")
	rawCmd.Flags().String("prefix", "meta:catalog:", "Key prefix to inspect (Pebble only)")

	diagnosticsCmd.AddCommand(statsCmd)
	diagnosticsCmd.AddCommand(cleanupStaleCmd)
	diagnosticsCmd.AddCommand(rawCmd)
}

func runDiagnosticsStats() error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	catalogs, err := database.ListCatalogs(store)
	if err != nil {
		return fmt.Errorf("failed to list catalogs: %w", err)
	}

	fmt.Printf("Database: %s (%s)\n", config.AppConfig.DatabasePath, config.AppConfig.DatabaseType)
	fmt.Printf("Catalogs: %d\n", len(catalogs))
	for _, cat := range catalogs {
		fmt.Printf("  %s (hash %s)\n", cat.Key, cat.Key.Hash())
		fmt.Printf("    imported: %s (%s ago)\n",
			cat.ImportedAt.Format(time.RFC3339),
			time.Since(cat.ImportedAt).Round(time.Minute))
		for _, col := range catalog.ContentCollections {
			fmt.Printf("    %-8s %6d items  %4d categories\n",
				col, cat.Counts[col], len(cat.CategoriesFor(col)))
		}
	}

	if key, ok, err := database.GetDefaultCatalog(store); err == nil && ok {
		fmt.Printf("Default catalog: %s\n", key)
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	fmt.Printf("\nRuntime:\n")
	fmt.Printf("  heap alloc: %d KiB\n", mem.Alloc/1024)
	fmt.Printf("  sys:        %d KiB\n", mem.Sys/1024)
	fmt.Printf("  goroutines: %d\n", runtime.NumGoroutine())
	fmt.Printf("  gc cycles:  %d\n", mem.NumGC)

	return nil
}

func runCleanupStaleCatalogs(days int, force, dryRun bool) error {
	if days <= 0 {
		return errors.New("days must be positive")
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	catalogs, err := database.ListCatalogs(store)
	if err != nil {
		return fmt.Errorf("failed to list catalogs: %w", err)
	}

	cutoff := time.Now().AddDate(0, 0, -days)
	stale := make([]catalog.Catalog, 0)
	for _, cat := range catalogs {
		if cat.ImportedAt.Before(cutoff) {
			stale = append(stale, cat)
		}
	}

	if len(stale) == 0 {
		fmt.Println("No stale catalogs detected.")
		return nil
	}

	fmt.Printf("Found %d catalogs older than %d days:\n", len(stale), days)
	for i, cat := range stale {
		fmt.Printf("%2d. %s\n", i+1, cat.Key)
		fmt.Printf("    imported: %s\n", cat.ImportedAt.Format(time.RFC3339))
		fmt.Printf("    items:    %d\n", cat.TotalItems())
	}

	if dryRun {
		fmt.Println("Dry run enabled; no deletions were performed.")
		return nil
	}

	if !force {
		confirmed, err := promptYesNo(fmt.Sprintf("Delete %d catalogs", len(stale)))
		if err != nil {
			return err
		}
		if !confirmed {
			fmt.Println("Aborted. No catalogs deleted.")
			return nil
		}
	}

	deleted := 0
	for _, cat := range stale {
		if err := database.DeleteCatalog(store, cat.Key); err != nil {
			fmt.Printf("Failed to delete %s: %v\n", cat.Key, err)
			continue
		}
		deleted++
	}

	fmt.Printf("Deleted %d stale catalogs. Re-import or refresh to repopulate.\n", deleted)
	return nil
}

func runRawPebbleQuery(limit int, prefix string) error {
	if limit <= 0 {
		return errors.New("limit must be positive")
	}
	if config.AppConfig.DatabaseType != "pebble" {
		return fmt.Errorf("raw inspection is only available for Pebble databases")
	}

	db, err := pebble.Open(config.AppConfig.DatabasePath, &pebble.Options{
		FormatMajorVersion: pebble.FormatNewest,
	})
	if err != nil {
		return fmt.Errorf("failed to open Pebble database: %w", err)
	}
	defer db.Close()

	iterOpts := &pebble.IterOptions{}
	if prefix != "" {
		iterOpts.LowerBound = []byte(prefix)
		iterOpts.UpperBound = append([]byte(prefix), 0xFF)
	}

	iter, err := db.NewIter(iterOpts)
	if err != nil {
		return fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	count := 0
	ok := iter.First()
	if prefix != "" {
		ok = iter.SeekGE([]byte(prefix))
	}

	for ; ok && iter.Valid(); ok = iter.Next() {
		fmt.Printf("Key: %s\n", string(iter.Key()))
		val := iter.Value()
		fmt.Printf("Value length: %d bytes\n", len(val))
		preview := truncateString(string(val), 500)
		fmt.Printf("Value preview: %s\n", preview)
		fmt.Println("---")

		count++
		if count >= limit {
			break
		}
	}

	if err := iter.Error(); err != nil {
		return fmt.Errorf("iterator error: %w", err)
	}

	if count == 0 {
		fmt.Println("No keys matched the requested prefix.")
	}

	return nil
}

func promptYesNo(action string) (bool, error) {
	fmt.Printf("%s? Type 'yes' to confirm: ", action)
	reader := bufio.NewReader(os.Stdin)
	response, err := reader.ReadString('\n')
	if err != nil {
		return false, err
	}
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "yes", nil
}

func truncateString(in string, max int) string {
	if len(in) <= max {
		return in
	}
	return in[:max] + "..."
}
