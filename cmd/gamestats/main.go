// Command gamestats loads match statistics exports into a relational
// database.
//
//	gamestats -r -l week1.csv -l week2.xlsx
//
// Every flag's default can be supplied through the environment or a .env
// file; see `gamestats --help`.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"gamestats/internal/config"

	// register all backends with the storage factory.
	_ "gamestats/internal/storage/all"
)

// getenv is the process environment lookup; tests replace it.
var getenv = os.Getenv

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command line and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	cmd, err := newRootCmd(args, stdout, stderr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "gamestats:", err)
		return 1
	}
	return 0
}

// actions are the things a single invocation may do, in execution order:
// create tables, introspect, dump the schema, reset, then load.
type actions struct {
	loads        []string
	reset        bool
	verbose      bool
	createTables bool
	introspect   bool
	dumpSchema   bool
}

func (a actions) any() bool {
	return len(a.loads) > 0 || a.reset || a.createTables || a.introspect || a.dumpSchema
}

// needsDB reports whether a connection must be opened.
func (a actions) needsDB() bool {
	return len(a.loads) > 0 || a.reset || a.createTables || a.introspect
}

// newRootCmd builds the command. args are inspected up front only for
// --env-file, because the environment seeds every other flag's default.
func newRootCmd(args []string, stdout, stderr io.Writer) (*cobra.Command, error) {
	envFile := config.EnvFileFromArgs(args)
	env, err := config.EnvWithFile(getenv, envFile, envFile != config.DefaultEnvFile)
	if err != nil {
		return nil, err
	}

	var act actions
	cmd := &cobra.Command{
		Use:   "gamestats",
		Short: "Load match statistics exports into a database",
		Long: `gamestats reads a match export (CSV, or an XLSX workbook; optionally
.gz or .zst compressed) and loads its four sections into the matches,
performance, player_rounds and round_events tables.

Reset runs before any load. Loads run in argument order and stop at the
first failure.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	cfg := config.Bind(cmd.Flags(), env)
	f := cmd.Flags()
	f.StringArrayVarP(&act.loads, "load", "l", nil, "Export file to load (repeatable)")
	f.BoolVarP(&act.reset, "reset", "r", false, "Empty all four tables before loading")
	f.BoolVarP(&act.verbose, "verbose", "v", false, "Enable debug logging")
	f.BoolVar(&act.createTables, "create-tables", false, "Create missing tables from the schema descriptor")
	f.BoolVar(&act.introspect, "introspect", false, "Read column layouts from the live database instead of the descriptor")
	f.BoolVar(&act.dumpSchema, "dump-schema", false, "Print the effective schema descriptor as YAML")

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		if !act.any() {
			return cmd.Help()
		}
		return execute(cmd.Context(), cfg, act, stdout, stderr)
	}
	return cmd, nil
}
