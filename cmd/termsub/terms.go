package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/MrWong99/termsub/internal/terms"
)

// noteWidth caps the notes column of the list table.
const noteWidth = 32

func newListCmd(c *cli) *cobra.Command {
	var (
		asJSON     bool
		activeOnly bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all entries in file order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := c.openStore()
			if err != nil {
				return err
			}
			entries := store.List()
			if activeOnly {
				kept := entries[:0]
				for _, e := range entries {
					if e.Active {
						kept = append(kept, e)
					}
				}
				entries = kept
			}
			if asJSON {
				return terms.WriteDocument(cmd.OutOrStdout(), entries)
			}
			return renderEntries(cmd.OutOrStdout(), entries)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the entries as a JSON document")
	cmd.Flags().BoolVar(&activeOnly, "active", false, "only show active entries")
	return cmd
}

func renderEntries(w io.Writer, entries []terms.Entry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "no entries")
		return err
	}
	data := [][]string{{"ID", "TYPE", "PRIORITY", "ACTIVE", "SRC", "DST", "NOTES"}}
	for _, e := range entries {
		data = append(data, []string{
			e.ID,
			string(e.Kind),
			strconv.Itoa(e.Priority),
			strconv.FormatBool(e.Active),
			e.Src,
			e.Dst,
			shorten(e.Notes, noteWidth),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithWriter(w).WithData(data).Render()
}

func newStatsCmd(c *cli) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show entry counts and recent changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := c.openStore()
			if err != nil {
				return err
			}
			st := store.Stats()
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, st)
			}

			data := [][]string{
				{"FIELD", "VALUE"},
				{"file", store.Path()},
				{"entries", strconv.Itoa(st.Count)},
				{"active", strconv.Itoa(st.ActiveCount)},
				{"regex", strconv.Itoa(st.RegexCount)},
				{"fuzzy enabled", strconv.FormatBool(st.FuzzyEnabled)},
				{"loaded at", st.LoadedAt.Format(time.RFC3339)},
			}
			if err := pterm.DefaultTable.WithHasHeader().WithWriter(out).WithData(data).Render(); err != nil {
				return err
			}
			if len(st.History) == 0 {
				return nil
			}
			hist := [][]string{{"AT", "ACTION", "INFO"}}
			for _, ev := range st.History {
				info, _ := json.Marshal(ev.Info)
				hist = append(hist, []string{ev.At.Format(time.RFC3339), ev.Action, string(info)})
			}
			fmt.Fprintln(out)
			return pterm.DefaultTable.WithHasHeader().WithWriter(out).WithData(hist).Render()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the stats as JSON")
	return cmd
}

// entryFlags holds the flags shared by add and update.
type entryFlags struct {
	id       string
	src      string
	dst      string
	kind     string
	priority int
	notes    string
	active   bool
	inactive bool
}

func (f *entryFlags) register(cmd *cobra.Command, withID bool) {
	if withID {
		cmd.Flags().StringVar(&f.id, "id", "", "entry id (generated when empty)")
	}
	cmd.Flags().StringVar(&f.src, "src", "", "source phrase or regex pattern")
	cmd.Flags().StringVar(&f.dst, "dst", "", "replacement text")
	cmd.Flags().StringVar(&f.kind, "type", "", "entry type: exact or regex")
	cmd.Flags().IntVar(&f.priority, "priority", terms.DefaultPriority, "higher values are applied first")
	cmd.Flags().StringVar(&f.notes, "notes", "", "free-form notes")
}

// payload converts the flags the user actually set into an entry payload.
func (f *entryFlags) payload(cmd *cobra.Command) terms.Payload {
	p := terms.Payload{}
	set := func(flag, key string, v any) {
		if cmd.Flags().Changed(flag) {
			p[key] = v
		}
	}
	set("id", "id", f.id)
	set("src", "src", f.src)
	set("dst", "dst", f.dst)
	set("type", "type", f.kind)
	set("priority", "priority", f.priority)
	set("notes", "notes", f.notes)
	set("active", "active", f.active)
	if cmd.Flags().Changed("inactive") {
		p["active"] = !f.inactive
	}
	return p
}

func newAddCmd(c *cli) *cobra.Command {
	var f entryFlags
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := c.openStore()
			if err != nil {
				return err
			}
			e, err := store.Add(f.payload(cmd))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s\n", e.ID)
			return nil
		},
	}
	f.register(cmd, true)
	cmd.Flags().BoolVar(&f.inactive, "inactive", false, "store the entry as inactive")
	_ = cmd.MarkFlagRequired("src")
	_ = cmd.MarkFlagRequired("dst")
	return cmd
}

func newUpdateCmd(c *cli) *cobra.Command {
	var f entryFlags
	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Change fields of an entry",
		Long:  "Change fields of an entry. Only the flags given are changed; the rest of the entry is kept.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.openStore()
			if err != nil {
				return err
			}
			e, err := store.Update(args[0], f.payload(cmd))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "updated %s\n", e.ID)
			return nil
		},
	}
	f.register(cmd, false)
	cmd.Flags().BoolVar(&f.active, "active", true, "whether the entry is applied")
	return cmd
}

func newDeleteCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete an entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.openStore()
			if err != nil {
				return err
			}
			if err := store.Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}

func newImportCmd(c *cli) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Merge entries from a JSON, YAML or CSV file",
		Long: `Merge entries from a JSON, YAML or CSV file ("-" reads standard input).

Rows whose source matches an existing entry update it when their priority
is not lower; other rows are appended. The format is taken from --format or
else from the file extension.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := terms.FormatFromName(args[0])
			if format != "" {
				var err error
				if f, err = terms.ParseFormat(format); err != nil {
					return err
				}
			}

			var r io.Reader
			if args[0] == "-" {
				r = cmd.InOrStdin()
			} else {
				file, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer file.Close()
				r = file
			}
			payloads, err := terms.ParseImport(r, f)
			if err != nil {
				return err
			}

			store, err := c.openStore()
			if err != nil {
				return err
			}
			res, err := store.Import(payloads)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported: %d added, %d updated, %d skipped\n", res.Added, res.Updated, res.Skipped)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "input format: json, yaml or csv")
	return cmd
}

func newExportCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "export [FILE]",
		Short: "Write all entries as a JSON document",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.openStore()
			if err != nil {
				return err
			}
			if len(args) == 0 || args[0] == "-" {
				return terms.WriteDocument(cmd.OutOrStdout(), store.List())
			}
			var buf bytes.Buffer
			if err := terms.WriteDocument(&buf, store.List()); err != nil {
				return err
			}
			return os.WriteFile(args[0], buf.Bytes(), 0o644)
		},
	}
}

func newReloadCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Re-read the terms document and report what was loaded",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := c.openStore()
			if err != nil {
				return err
			}
			if err := store.Reload(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reloaded %d entries from %s\n", len(store.List()), store.Path())
			return nil
		},
	}
}

func newSaveCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "save",
		Short: "Rewrite the terms document in canonical form",
		Long:  "Rewrite the terms document in canonical form. Entries that fail validation are dropped.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := c.openStore()
			if err != nil {
				return err
			}
			if err := store.Save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %d entries to %s\n", len(store.List()), store.Path())
			return nil
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// shorten cuts s to at most n runes, marking the cut with "…".
func shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
