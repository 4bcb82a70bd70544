package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/arthur-debert/treecalc/formats"
	"github.com/arthur-debert/treecalc/internal/matching"
	"github.com/arthur-debert/treecalc/internal/validation"
	"github.com/arthur-debert/treecalc/treecalc"
	"github.com/arthur-debert/treecalc/treecalc/editor"
	"github.com/arthur-debert/treecalc/treecalc/storage"
	"github.com/arthur-debert/treecalc/types"
	"github.com/spf13/cobra"
)

func (cli *CLI) addNewCommand() {
	cli.rootCmd.AddCommand(&cobra.Command{
		Use:   "new <root-name>",
		Short: "Create a document with an empty root",
		Long: `Create a new document whose root is a composite with no children.
Fails if the document file already exists.

Examples:
  treecalc -d budget.json new Total`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, cleanup, err := cli.newSession(false)
			if err != nil {
				return err
			}
			defer cleanup()

			path := cli.v.GetString("document")
			if err := s.Create(path, args[0]); err != nil {
				return WrapError("create document", err)
			}
			if path == "" {
				err = s.SaveAs(ctx, "")
			} else {
				err = s.Save(ctx)
			}
			if err != nil {
				return WrapError("create document", err)
			}

			path, _ = s.DocumentPath()
			fmt.Fprintf(cli.out, "created %s with root %q\n", path, args[0])
			return nil
		},
	})
}

func (cli *CLI) addShowCommand() {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the document",
		Long: `Print the document as an outline, or with --ids as a list of items.
With --format json|yaml the document itself is printed.

Examples:
  treecalc -d budget.json show
  treecalc -d budget.json show --style markdown
  treecalc -d budget.json show --ids`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, cleanup, err := cli.openDocument(cmd.Context(), "show document", false)
			if err != nil {
				return err
			}
			defer cleanup()

			if cli.v.GetBool("ids") {
				items, err := s.Items()
				if err != nil {
					return WrapError("show document", err)
				}
				views := itemViews(items)
				return cli.render(views, func() string { return itemTable(views) })
			}

			if cli.format() != "text" {
				doc, err := s.Document()
				if err != nil {
					return WrapError("show document", err)
				}
				return cli.render(doc, nil)
			}

			style, err := formats.GetOutlineStyle(cli.v.GetString("style"))
			if err != nil {
				return NewValidationError("show document", "style", cli.v.GetString("style"), "Available styles: text, markdown")
			}
			out, err := s.Outline(style)
			if err != nil {
				return WrapError("show document", err)
			}
			fmt.Fprint(cli.out, out)
			return nil
		},
	}
	cmd.Flags().String("style", "text", "Outline style (text|markdown)")
	cmd.Flags().Bool("ids", false, "List items with their ids instead of an outline")
	cli.rootCmd.AddCommand(cmd)
}

func (cli *CLI) addGetCommand() {
	cli.rootCmd.AddCommand(&cobra.Command{
		Use:   "get <item>",
		Short: "Show one item",
		Long: `Show one item, referenced by name or numeric id.

Examples:
  treecalc -d budget.json get Total
  treecalc -d budget.json get 3 --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, cleanup, err := cli.openDocument(cmd.Context(), "get item", false)
			if err != nil {
				return err
			}
			defer cleanup()

			id, err := s.Resolve(args[0])
			if err != nil {
				return WrapError("get item", err)
			}
			items, err := s.Items()
			if err != nil {
				return WrapError("get item", err)
			}
			for _, view := range itemViews(items) {
				if view.ID == id {
					return cli.render(view, func() string { return itemTable([]itemView{view}) })
				}
			}
			return WrapError("get item", types.Errorf("get", types.ErrNotFound, "no item with id %d", id))
		},
	})
}

func (cli *CLI) addRenameCommand() {
	cli.rootCmd.AddCommand(&cobra.Command{
		Use:   "rename <item> <new-name>",
		Short: "Rename an item",
		Long: `Rename an item. Renaming a leaf to the name of another item merges the two:
every parent of the renamed leaf now refers to the existing item. A leaf cannot
be merged into a composite that contains it.

Examples:
  treecalc -d budget.json rename "new item" Rent`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.editDocument(cmd.Context(), "rename item", func(s *treecalc.Session) error {
				id, err := s.Resolve(args[0])
				if err != nil {
					return err
				}
				result, err := s.Rename(id, args[1])
				if err != nil {
					return err
				}
				switch r := result.(type) {
				case editor.RenamedInPlace:
					fmt.Fprintf(cli.out, "renamed %d to %q\n", r.ID, r.Name)
				case editor.MergedInto:
					fmt.Fprintf(cli.out, "merged %d into %d (%q), updated parents: %s\n",
						r.Removed, r.Survivor, args[1], joinIDs(r.Affected))
				}
				return nil
			})
		},
	})
}

func (cli *CLI) addDeleteCommand() {
	cmd := &cobra.Command{
		Use:   "delete <item>",
		Short: "Delete an item",
		Long: `Delete an item. An item with several parents is only removed from the
parent given with --parent; it is deleted entirely once no parent is left.

Examples:
  treecalc -d budget.json delete Rent
  treecalc -d budget.json delete Rent --parent Housing`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.editDocument(cmd.Context(), "delete item", func(s *treecalc.Session) error {
				id, err := s.Resolve(args[0])
				if err != nil {
					return err
				}
				var parent *uint64
				if ref := cli.v.GetString("parent"); ref != "" {
					pid, err := s.Resolve(ref)
					if err != nil {
						return err
					}
					parent = &pid
				}

				result, err := s.Delete(id, parent)
				if err != nil {
					return err
				}
				switch {
				case result.Removed != nil:
					fmt.Fprintf(cli.out, "deleted %d\n", *result.Removed)
				case parent != nil:
					fmt.Fprintf(cli.out, "removed %d from %d\n", id, *parent)
				default:
					fmt.Fprintf(cli.out, "unlinked %d\n", id)
				}
				return nil
			})
		},
	}
	cmd.Flags().String("parent", "", "Parent to remove a shared item from")
	cli.rootCmd.AddCommand(cmd)
}

func (cli *CLI) addAddCommand() {
	cli.rootCmd.AddCommand(&cobra.Command{
		Use:   "add <parent>",
		Short: "Add a new leaf under a composite",
		Long: `Append a new leaf with a generated name to a composite's children.

Examples:
  treecalc -d budget.json add Total`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.editDocument(cmd.Context(), "add item", func(s *treecalc.Session) error {
				parent, err := s.Resolve(args[0])
				if err != nil {
					return err
				}
				id, err := s.AddChild(parent)
				if err != nil {
					return err
				}
				it, err := s.Item(id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cli.out, "added %d %q\n", id, it.Name)
				return nil
			})
		},
	})
}

func (cli *CLI) addSetReductionCommand() {
	cli.rootCmd.AddCommand(&cobra.Command{
		Use:   "set-reduction <item> <reduction>",
		Short: "Set how a composite combines its children",
		Long: `Set the reduction of a composite: sum, product, average, max or min.

Examples:
  treecalc -d budget.json set-reduction Total sum`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, ok := types.ParseReduction(args[1])
			if !ok || r == types.ReductionNone {
				labels := make([]string, 0, len(types.Reductions()))
				for _, r := range types.Reductions() {
					labels = append(labels, r.String())
				}
				return NewValidationError("set reduction", "reduction", args[1],
					"Available reductions: "+strings.Join(labels, ", "))
			}

			return cli.editDocument(cmd.Context(), "set reduction", func(s *treecalc.Session) error {
				id, err := s.Resolve(args[0])
				if err != nil {
					return err
				}
				if err := s.UpdateReduction(id, r); err != nil {
					return err
				}
				fmt.Fprintf(cli.out, "%s now uses %s\n", args[0], r)
				return nil
			})
		},
	})
}

func (cli *CLI) addToggleCommand() {
	cli.rootCmd.AddCommand(&cobra.Command{
		Use:   "toggle <item>",
		Short: "Switch an item between leaf and composite",
		Long: `Turn a leaf into an empty composite, or a composite into a leaf.
Dropping the children of a composite asks for confirmation unless --yes is given.
The children themselves are kept.

Examples:
  treecalc -d budget.json toggle Rent
  treecalc -d budget.json toggle Housing --yes`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return cli.editDocument(ctx, "toggle item", func(s *treecalc.Session) error {
				id, err := s.Resolve(args[0])
				if err != nil {
					return err
				}
				result, err := s.ToggleExpandable(ctx, id)
				if err != nil {
					return err
				}
				if result.Composite {
					fmt.Fprintf(cli.out, "%s is now a composite\n", args[0])
				} else {
					fmt.Fprintf(cli.out, "%s is now a leaf, detached: %s\n", args[0], joinIDs(result.Detached))
				}
				return nil
			})
		},
	})
}

func (cli *CLI) addCalcCommand() {
	cmd := &cobra.Command{
		Use:   "calc [data-file]",
		Short: "Evaluate the document against a data file",
		Long: `Evaluate every item reachable from the root. Leaves take their values from
the data file, composites reduce their children. Without a data file argument
the --data flag (TREECALC_DATA) is used, and otherwise the path is asked for.

Successful runs are recorded in the history database.

Examples:
  treecalc -d budget.json calc march.json
  treecalc -d budget.json calc march.json --format json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, cleanup, err := cli.openDocument(ctx, "calculate", true)
			if err != nil {
				return err
			}
			defer cleanup()

			calc, err := cli.calculate(ctx, s, args)
			if err != nil {
				return WrapError("calculate", err)
			}

			if cli.format() != "text" {
				items, err := s.Items()
				if err != nil {
					return WrapError("calculate", err)
				}
				byName := map[string]float64{}
				for _, it := range items {
					if v, ok := calc.Values[it.ID]; ok {
						byName[it.Name] = v
					}
				}
				return cli.render(byName, nil)
			}

			out, err := s.Outline(formats.PlainText)
			if err != nil {
				return WrapError("calculate", err)
			}
			fmt.Fprint(cli.out, out)
			if calc.RunID != "" {
				fmt.Fprintf(cli.out, "\nrun %s\n", calc.RunID)
			}
			return nil
		},
	}
	cmd.Flags().String("data", "", "Data file mapping leaf names to numbers")
	cli.rootCmd.AddCommand(cmd)
}

func (cli *CLI) addValuesCommand() {
	cmd := &cobra.Command{
		Use:   "values [item...]",
		Short: "Print computed values of selected items",
		Long: `Evaluate the document and print the values of the given items, of items
whose names match --match, or of every reachable item when neither is given.

Examples:
  treecalc -d budget.json values Total North --data march.json
  treecalc -d budget.json values --match 'North*' --data march.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, cleanup, err := cli.openDocument(ctx, "read values", true)
			if err != nil {
				return err
			}
			defer cleanup()

			calc, err := cli.calculate(ctx, s, nil)
			if err != nil {
				return WrapError("read values", err)
			}
			items, err := s.Items()
			if err != nil {
				return WrapError("read values", err)
			}

			pattern := cli.v.GetString("match")
			matcher, err := matching.NewNameMatcher(pattern)
			if err != nil {
				return NewValidationError("read values", "pattern", pattern)
			}

			selected := map[uint64]bool{}
			for _, ref := range args {
				id, err := s.Resolve(ref)
				if err != nil {
					return WrapError("read values", err)
				}
				selected[id] = true
			}
			for _, it := range items {
				_, reached := calc.Values[it.ID]
				switch {
				case pattern != "":
					if reached && matcher.Matches(it.Name) {
						selected[it.ID] = true
					}
				case len(args) == 0 && reached:
					selected[it.ID] = true
				}
			}

			ids := make([]uint64, 0, len(selected))
			for id := range selected {
				ids = append(ids, id)
			}
			sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

			values, err := s.Values(ids)
			if err != nil {
				return WrapError("read values", err)
			}

			names := make(map[uint64]string, len(items))
			for _, it := range items {
				names[it.ID] = it.Name
			}
			rows := make([]valueView, 0, len(ids))
			for _, id := range ids {
				rows = append(rows, valueView{ID: id, Name: names[id], Value: values[id]})
			}
			return cli.render(rows, func() string {
				var b strings.Builder
				for _, r := range rows {
					fmt.Fprintf(&b, "%s = %s\n", r.Name, formats.FormatNumber(r.Value))
				}
				return b.String()
			})
		},
	}
	cmd.Flags().String("data", "", "Data file mapping leaf names to numbers")
	cmd.Flags().String("match", "", "Glob selecting items by name (e.g. 'North*')")
	cli.rootCmd.AddCommand(cmd)
}

func (cli *CLI) addTemplateCommand() {
	cmd := &cobra.Command{
		Use:   "template [output-file]",
		Short: "Write a data file listing every leaf with value 0",
		Long: `Generate a data file with one entry per leaf, all set to 0.
Without an output file the template is printed.

Examples:
  treecalc -d budget.json template march.json
  treecalc -d budget.json template --match 'Rent*' --format yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, cleanup, err := cli.openDocument(ctx, "write template", false)
			if err != nil {
				return err
			}
			defer cleanup()

			pattern := cli.v.GetString("match")
			if pattern == "" && len(args) == 1 {
				path, err := s.WriteTemplate(ctx, args[0])
				if err != nil {
					return WrapError("write template", err)
				}
				fmt.Fprintf(cli.out, "wrote %s\n", path)
				return nil
			}

			table, err := s.Template()
			if err != nil {
				return WrapError("write template", err)
			}
			matcher, err := matching.NewNameMatcher(pattern)
			if err != nil {
				return NewValidationError("write template", "pattern", pattern)
			}
			table = matcher.FilterTable(table)

			if len(args) == 1 {
				files := storage.New(storage.WithLogger(cli.logger))
				if err := files.SaveData(ctx, args[0], table); err != nil {
					return WrapError("write template", err)
				}
				fmt.Fprintf(cli.out, "wrote %s\n", args[0])
				return nil
			}

			if cli.format() == "text" {
				return cli.renderAs("json", table)
			}
			return cli.render(table, nil)
		},
	}
	cmd.Flags().String("match", "", "Glob selecting leaves by name")
	cli.rootCmd.AddCommand(cmd)
}

func (cli *CLI) addCheckCommand() {
	cli.rootCmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Verify the document",
		Long: `Verify item names, reference counts and the absence of cycles.
Reports the first problem found.

Examples:
  treecalc -d budget.json check`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, cleanup, err := cli.newSession(false)
			if err != nil {
				return err
			}
			defer cleanup()

			path, err := cli.documentPath(ctx, s)
			if err != nil {
				return WrapError("check document", err)
			}

			files := storage.New(storage.WithLogger(cli.logger))
			doc, _, err := files.LoadDocument(ctx, path)
			if err != nil {
				return WrapError("check document", err)
			}
			if err := validation.ValidateDocument(doc); err != nil {
				return WrapError("check document", types.WrapError("check", types.ErrInvalid, err))
			}

			if err := s.Load(ctx, path); err != nil {
				return WrapError("check document", err)
			}
			if err := s.Check(); err != nil {
				return WrapError("check document", err)
			}
			items, _ := s.Items()
			fmt.Fprintf(cli.out, "ok: %s has %d items\n", path, len(items))
			return nil
		},
	})
}

func (cli *CLI) addHistoryCommands() {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded calculation runs",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, err := cli.openHistory()
			if err != nil {
				return err
			}
			if ledger == nil {
				return NewConfigError("list runs", "history is disabled", CommonSuggestions.SetHistory)
			}
			defer ledger.Close()

			runs, err := ledger.List(cmd.Context(), cli.v.GetInt("limit"))
			if err != nil {
				return WrapError("list runs", err)
			}
			return cli.render(runs, func() string {
				var b strings.Builder
				for _, r := range runs {
					fmt.Fprintf(&b, "%s  %s  %s  %s  root=%s\n", r.ID[:min(8, len(r.ID))],
						r.CreatedAt.Local().Format("2006-01-02 15:04:05"), r.Document, r.Data, formats.FormatNumber(r.RootValue))
				}
				return b.String()
			})
		},
	}
	listCmd.Flags().Int("limit", 20, "Maximum number of runs (0 for all)")

	showCmd := &cobra.Command{
		Use:   "show <run>",
		Short: "Show the values of one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, err := cli.openHistory()
			if err != nil {
				return err
			}
			if ledger == nil {
				return NewConfigError("show run", "history is disabled", CommonSuggestions.SetHistory)
			}
			defer ledger.Close()

			run, err := ledger.Show(cmd.Context(), args[0])
			if err != nil {
				return WrapError("show run", err)
			}
			return cli.render(run, func() string {
				var b strings.Builder
				fmt.Fprintf(&b, "run %s\n%s with %s at %s\n\n", run.ID, run.Document, run.Data,
					run.CreatedAt.Local().Format("2006-01-02 15:04:05"))
				for _, v := range run.Values {
					fmt.Fprintf(&b, "%s = %s\n", v.Name, formats.FormatNumber(v.Value))
				}
				return b.String()
			})
		},
	}

	historyCmd.AddCommand(listCmd, showCmd)
	cli.rootCmd.AddCommand(historyCmd)
}

// calculate runs with the data file from args, --data, or the file picker
func (cli *CLI) calculate(ctx context.Context, s *treecalc.Session, args []string) (*treecalc.Calculation, error) {
	path := cli.v.GetString("data")
	if len(args) == 1 {
		path = args[0]
	}
	if path == "" {
		return s.Calculate(ctx)
	}
	return s.CalculateFile(ctx, path)
}
