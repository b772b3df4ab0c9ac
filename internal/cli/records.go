package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/fitsync/internal/models"
	"github.com/spf13/cobra"
)

func addCmd(st *rootState) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:     "add <collection> [key=value...]",
		GroupID: "records",
		Short:   "Append a record to a local collection",
		Long: `Append a record to a local collection. Each key=value pair becomes a
member of the record; values that parse as JSON (numbers, booleans, objects)
are stored as such, anything else as a string.`,
		Example: `  fitsync add exercise --date 2024-03-01 runType=easy runDistance=8.2
  fitsync add diet breakfast='{"time":"08:00","foods":"oats"}'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := models.ParseCollection(args[0])
			if err != nil {
				return err
			}
			rec := models.Record{Date: date}
			if rec.Date == "" {
				rec.Date = time.Now().Format(models.DateLayout)
			}
			if err := setFields(&rec, args[1:]); err != nil {
				return err
			}

			a := st.app
			saved, err := a.files.Append(cmd.Context(), c, rec)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Added %s record %d for %s\n", c, saved.ID, saved.Date)
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "business date YYYY-MM-DD (default today)")
	return cmd
}

func deleteCmd(st *rootState) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <collection> <id>",
		GroupID: "records",
		Short:   "Delete a record; the deletion reaches other devices on the next sync",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := models.ParseCollection(args[0])
			if err != nil {
				return err
			}
			id, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid record id %q", args[1])
			}

			a := st.app
			if err := a.files.MarkDeleted(cmd.Context(), c, id); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Deleted %s record %d\n", c, id)
			return nil
		},
	}
}

func listCmd(st *rootState) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:       "list <collection>",
		GroupID:   "records",
		Short:     "List the records of a local collection, newest first",
		Args:      cobra.ExactArgs(1),
		ValidArgs: collectionNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := models.ParseCollection(args[0])
			if err != nil {
				return err
			}
			a := st.app
			recs, err := a.files.List(cmd.Context(), c)
			if err != nil {
				return err
			}
			return render(a.out, output, recs, func() { printRecords(a.out, recs) })
		},
	}
	addOutputFlag(cmd, &output)
	return cmd
}

func setFields(rec *models.Record, pairs []string) error {
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return fmt.Errorf("expected key=value, got %q", p)
		}
		var v any = value
		if json.Valid([]byte(value)) {
			v = json.RawMessage(value)
		}
		if err := rec.SetField(key, v); err != nil {
			return err
		}
	}
	return nil
}

func printRecords(w io.Writer, recs []models.Record) {
	if len(recs) == 0 {
		fmt.Fprintln(w, "No records.")
		return
	}
	for _, r := range recs {
		keys := make([]string, 0, len(r.Fields))
		for k := range r.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+"="+fieldText(r, k))
		}
		fmt.Fprintf(w, "%d  %s  %s\n", r.ID, r.Date, strings.Join(parts, " "))
	}
}

// fieldText shows string members unquoted and everything else as JSON.
func fieldText(r models.Record, name string) string {
	var str string
	if ok, err := r.Field(name, &str); ok && err == nil {
		return str
	}
	return string(r.Fields[name])
}
