package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/fitsync/internal/models"
	"github.com/spf13/cobra"
)

var errSyncFailed = errors.New("sync failed")

func syncCmd(st *rootState) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:     "sync",
		GroupID: "sync",
		Short:   "Merge both collections with the remote copies",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := st.app
			coord, err := a.coordinator(cmd.Context())
			if err != nil {
				return err
			}

			res := coord.FullSync(cmd.Context())
			if err := render(a.out, output, res, func() { printSyncResult(a.out, res) }); err != nil {
				return err
			}
			return resultErr(res.Success, res.ReauthRequired, res.Error)
		},
	}
	addOutputFlag(cmd, &output)
	return cmd
}

func pushCmd(st *rootState) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:       "push <collection>",
		GroupID:   "sync",
		Short:     "Sync a single collection right away",
		Args:      cobra.ExactArgs(1),
		ValidArgs: collectionNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := models.ParseCollection(args[0])
			if err != nil {
				return err
			}
			a := st.app
			coord, err := a.coordinator(cmd.Context())
			if err != nil {
				return err
			}

			res := coord.IncrementalSync(cmd.Context(), c)
			if err := render(a.out, output, res, func() { printCollectionResult(a.out, res) }); err != nil {
				return err
			}
			return resultErr(res.Success, res.ReauthRequired, res.Error)
		},
	}
	addOutputFlag(cmd, &output)
	return cmd
}

func statusCmd(st *rootState) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:     "status",
		GroupID: "sync",
		Short:   "Show the last completed sync and the local versions",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := st.app
			coord, err := a.coordinator(cmd.Context())
			if err != nil {
				return err
			}
			status, err := coord.Status(cmd.Context())
			if err != nil {
				return err
			}
			return render(a.out, output, status, func() { printStatus(a.out, status) })
		},
	}
	addOutputFlag(cmd, &output)
	return cmd
}

func resultErr(ok, reauth bool, msg string) error {
	switch {
	case ok:
		return nil
	case reauth:
		return fmt.Errorf("%w: %s (%s)", errSyncFailed, msg, loginHint)
	default:
		return fmt.Errorf("%w: %s", errSyncFailed, msg)
	}
}

func printSyncResult(w io.Writer, res models.SyncResult) {
	for _, c := range models.AllCollections {
		if r, ok := res.Results[c]; ok {
			printCollectionResult(w, r)
		}
	}
	if res.Success {
		fmt.Fprintf(w, "Sync completed at %s\n", res.Timestamp.Local().Format(time.DateTime))
	}
}

func printCollectionResult(w io.Writer, r models.CollectionResult) {
	if !r.Success {
		fmt.Fprintf(w, "%-9s failed: %s\n", r.Collection, r.Error)
		return
	}
	note := ""
	if r.Conflicts {
		note = " (merged concurrent changes)"
	}
	fmt.Fprintf(w, "%-9s v%d, %d records%s\n", r.Collection, r.Version, r.Records, note)
}

func printStatus(w io.Writer, s models.SyncStatus) {
	if s.LastSyncTime == nil {
		fmt.Fprintln(w, "Last sync:      never")
	} else {
		fmt.Fprintf(w, "Last sync:      %s by %s\n", s.LastSyncTime.Local().Format(time.DateTime), s.DeviceID)
	}
	fmt.Fprintf(w, "This device:    %s\n", s.CurrentDevice)

	for _, c := range models.AllCollections {
		fmt.Fprintf(w, "%-9s       local v%d, remote v%d\n", c, s.LocalVersions[c], remoteVersion(s, c))
	}
}

func remoteVersion(s models.SyncStatus, c models.Collection) int64 {
	return models.SyncMetadata{ExerciseVersion: s.ExerciseVersion, DietVersion: s.DietVersion}.Version(c)
}

func collectionNames() []string {
	out := make([]string, 0, len(models.AllCollections))
	for _, c := range models.AllCollections {
		out = append(out, string(c))
	}
	return out
}
