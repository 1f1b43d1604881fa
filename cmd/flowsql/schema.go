package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/koba/flowsql/internal/diff"
	"github.com/koba/flowsql/internal/generator"
	"github.com/koba/flowsql/internal/schema"
)

var column schema.ColumnSchema

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the metadata table",
	Long:  `Connect to the database and create the metadata table holding the schema document.`,
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the stored schema",
	Args:  cobra.NoArgs,
	RunE:  runSchema,
}

var applyCmd = &cobra.Command{
	Use:   "apply <file.yaml>",
	Short: "Add the declared tables and columns that are missing",
	Long: `Read a YAML schema declaration and add every table and column it declares that
the stored schema lacks. Existing declarations are left untouched.`,
	Args: cobra.ExactArgs(1),
	RunE: runApply,
}

var ddlCmd = &cobra.Command{
	Use:   "ddl [file.yaml]",
	Short: "Print the creation script of a schema",
	Long:  `Print the DDL for the stored schema, or for a YAML schema declaration when one is given.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDDL,
}

var addColumnCmd = &cobra.Command{
	Use:   "add-column <table> <column>",
	Short: "Add a column to a table",
	Args:  cobra.ExactArgs(2),
	RunE:  runAddColumn,
}

var renameTableCmd = &cobra.Command{
	Use:   "rename-table <table> <new-name>",
	Short: "Rename a table",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return migrateSchema(cmd, func(run schemaChange) error {
			return run.e.RenameTable(run.ctx, args[0], args[1])
		})
	},
}

var renameColumnCmd = &cobra.Command{
	Use:   "rename-column <table> <column> <new-name>",
	Short: "Rename a column",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return migrateSchema(cmd, func(run schemaChange) error {
			return run.e.RenameColumn(run.ctx, args[0], args[1], args[2])
		})
	},
}

var dropTableCmd = &cobra.Command{
	Use:   "drop-table <table>",
	Short: "Drop a table and its junction tables",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return migrateSchema(cmd, func(run schemaChange) error {
			return run.e.DropTable(run.ctx, args[0])
		})
	},
}

var dropColumnCmd = &cobra.Command{
	Use:   "drop-column <table> <column>",
	Short: "Drop a column",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return migrateSchema(cmd, func(run schemaChange) error {
			return run.e.DropColumn(run.ctx, args[0], args[1])
		})
	},
}

var introspectCmd = &cobra.Command{
	Use:   "introspect",
	Short: "Print the tables present in the database",
	Args:  cobra.NoArgs,
	RunE:  runIntrospect,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Compare the stored schema with the database",
	Long: `Compare the tables the stored schema implies with the tables present in the
database and report missing or unexpected tables, columns and foreign keys.`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func init() {
	addColumnCmd.Flags().Var(&columnTypeFlag{&column.Type}, "type", "Column type")
	addColumnCmd.Flags().BoolVar(&column.Nullable, "nullable", false, "Allow NULL values")
	addColumnCmd.Flags().BoolVar(&column.Unique, "unique", false, "Require distinct values")
	addColumnCmd.Flags().BoolVar(&column.Label, "label", false, "Use as the table label")
	addColumnCmd.Flags().IntVar(&column.MaxLength, "max-length", 0, "Maximum length of string values")
	addColumnCmd.Flags().StringVar(&column.ReferredTable, "ref", "", "Referred table of a reference column")
	addColumnCmd.Flags().StringVar(&column.DefaultBySQL, "default-sql", "", "SQL default expression")
	addColumnCmd.Flags().StringVar(&column.DefaultByExpr, "default-expr", "", "Computed default expression")
	_ = addColumnCmd.MarkFlagRequired("type")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(ddlCmd)
	rootCmd.AddCommand(addColumnCmd)
	rootCmd.AddCommand(renameTableCmd)
	rootCmd.AddCommand(renameColumnCmd)
	rootCmd.AddCommand(dropTableCmd)
	rootCmd.AddCommand(dropColumnCmd)
	rootCmd.AddCommand(introspectCmd)
	rootCmd.AddCommand(checkCmd)
}

// columnTypeFlag parses --type into a schema.ColumnType.
type columnTypeFlag struct {
	t *schema.ColumnType
}

func (f *columnTypeFlag) String() string {
	if f.t == nil {
		return ""
	}
	return f.t.String()
}

func (f *columnTypeFlag) Set(value string) error {
	parsed, err := schema.ParseColumnType(value)
	if err != nil {
		return err
	}
	*f.t = parsed
	return nil
}

func (f *columnTypeFlag) Type() string {
	return "type"
}

func runInit(cmd *cobra.Command, args []string) error {
	e, cleanup, err := openEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	fmt.Printf("Schema version %d ready (%s)\n", e.Schema().Version, e.Type())
	return nil
}

func runSchema(cmd *cobra.Command, args []string) error {
	e, cleanup, err := openEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	s := e.Schema()
	fmt.Printf("# version %d\n", s.Version)
	for _, table := range s.TableNames() {
		fmt.Printf("%s:\n", table)
		ts := s.Tables[table]
		for _, columnID := range ts.ColumnIDs() {
			fmt.Printf("  %s: %s\n", columnID, ts.Columns[columnID].Describe())
		}
	}
	return nil
}

func runApply(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read schema file: %w", err)
	}
	declared, err := schema.ParseYAML(data)
	if err != nil {
		return err
	}

	e, cleanup, err := openEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	applied, err := e.Apply(cmd.Context(), declared)
	for _, line := range applied {
		fmt.Println(line)
	}
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		fmt.Println("Schema is up to date")
	}
	return nil
}

func runDDL(cmd *cobra.Command, args []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}

	var s *schema.Schema
	if len(args) > 0 {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read schema file: %w", err)
		}
		if s, err = schema.ParseYAML(data); err != nil {
			return err
		}
		if err := schema.ValidateSchema(s, nil); err != nil {
			return err
		}
	} else {
		e, cleanup, err := openEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()
		s = e.Schema()
	}

	sql, err := generator.GenerateSchemaDDL(s, config.Type)
	if err != nil {
		return fmt.Errorf("failed to generate DDL: %w", err)
	}
	fmt.Print(sql)
	return nil
}

func runAddColumn(cmd *cobra.Command, args []string) error {
	return migrateSchema(cmd, func(run schemaChange) error {
		col := column
		return run.e.AddColumn(run.ctx, args[0], args[1], &col)
	})
}

func runIntrospect(cmd *cobra.Command, args []string) error {
	e, cleanup, err := openEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	tables, err := e.ExtractSchema(cmd.Context())
	if err != nil {
		return err
	}
	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]*schema.PhysicalTable, 0, len(names))
	for _, name := range names {
		out = append(out, tables[name])
	}
	data, err := yaml.Marshal(out)
	if err != nil {
		return fmt.Errorf("failed to marshal tables: %w", err)
	}
	fmt.Print(string(data))
	return nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	e, cleanup, err := openEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	result, err := e.Check(cmd.Context())
	if err != nil {
		return err
	}
	diff.Display(os.Stdout, result)
	if !result.Clean() {
		return fmt.Errorf("schema drift in %d table(s)", len(result.TableDiffs))
	}
	return nil
}
