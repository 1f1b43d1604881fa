package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/koba/flowsql/internal/engine"
	"github.com/koba/flowsql/internal/filter"
	"github.com/koba/flowsql/internal/schema"
)

var where string

var insertCmd = &cobra.Command{
	Use:   "insert <table> <json>",
	Short: "Insert rows",
	Long:  `Insert one row given as a JSON object, or several given as a JSON array of objects.`,
	Args:  cobra.ExactArgs(2),
	RunE:  runInsert,
}

var selectCmd = &cobra.Command{
	Use:   "select <table>",
	Short: "Select rows",
	Long:  `Select the rows matching --where, with their relation columns expanded, as JSON.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runSelect,
}

var updateCmd = &cobra.Command{
	Use:   "update <table> <json>",
	Short: "Update rows",
	Long:  `Set the columns of the JSON object on every row matching --where.`,
	Args:  cobra.ExactArgs(2),
	RunE:  runUpdate,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <table>",
	Short: "Delete rows",
	Long:  `Delete every row matching --where together with its relation links.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

func init() {
	for _, cmd := range []*cobra.Command{selectCmd, updateCmd, deleteCmd} {
		cmd.Flags().StringVarP(&where, "where", "w", "", "Filter, e.g. \"name = 'Ann' and tags has [1, 2]\"")
	}

	rootCmd.AddCommand(insertCmd)
	rootCmd.AddCommand(selectCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(deleteCmd)
}

// schemaChange is what a migration command runs against.
type schemaChange struct {
	ctx context.Context
	e   *engine.Engine
}

func migrateSchema(cmd *cobra.Command, fn func(run schemaChange) error) error {
	e, cleanup, err := openEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	if err := fn(schemaChange{ctx: cmd.Context(), e: e}); err != nil {
		return err
	}
	fmt.Printf("Schema version %d\n", e.Schema().Version)
	return nil
}

// decodeRows reads a JSON object or array of objects. Numbers stay
// json.Number so integers keep their precision.
func decodeRows(text string) ([]schema.Row, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.UseNumber()

	trimmed := bytes.TrimSpace([]byte(text))
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var rows []schema.Row
		if err := dec.Decode(&rows); err != nil {
			return nil, fmt.Errorf("failed to parse rows: %w", err)
		}
		return rows, nil
	}
	var row schema.Row
	if err := dec.Decode(&row); err != nil {
		return nil, fmt.Errorf("failed to parse row: %w", err)
	}
	return []schema.Row{row}, nil
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func runInsert(cmd *cobra.Command, args []string) error {
	rows, err := decodeRows(args[1])
	if err != nil {
		return err
	}

	e, cleanup, err := openEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	ids, err := e.InsertMany(cmd.Context(), args[0], rows)
	if err != nil {
		return err
	}
	return printJSON(ids)
}

func runSelect(cmd *cobra.Command, args []string) error {
	filters, err := filter.Parse(where)
	if err != nil {
		return err
	}

	e, cleanup, err := openEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	rows, err := e.SelectMany(cmd.Context(), args[0], filters)
	if err != nil {
		return err
	}
	return printJSON(rows)
}

func runUpdate(cmd *cobra.Command, args []string) error {
	filters, err := filter.Parse(where)
	if err != nil {
		return err
	}
	rows, err := decodeRows(args[1])
	if err != nil {
		return err
	}
	if len(rows) != 1 {
		return fmt.Errorf("update takes a single JSON object, got %d", len(rows))
	}

	e, cleanup, err := openEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	ids, err := e.UpdateMany(cmd.Context(), args[0], filters, rows[0])
	if err != nil {
		return err
	}
	return printJSON(ids)
}

func runDelete(cmd *cobra.Command, args []string) error {
	filters, err := filter.Parse(where)
	if err != nil {
		return err
	}

	e, cleanup, err := openEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	ids, err := e.DeleteMany(cmd.Context(), args[0], filters)
	if err != nil {
		return err
	}
	return printJSON(ids)
}
