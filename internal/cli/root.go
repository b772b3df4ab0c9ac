package cli

import (
	"io"

	"github.com/dmitrijs2005/fitsync/internal/config"
	"github.com/spf13/cobra"
)

type rootState struct {
	build      AppBuilder
	configPath string
	app        *App
}

// Close releases the App built for the invocation, if any.
func (st *rootState) Close() error {
	if st.app == nil {
		return nil
	}
	app := st.app
	st.app = nil
	return app.Close()
}

// NewRootCommand builds the fitsync command tree. build is called once per
// invocation, after the configuration has been resolved. The returned closer
// releases the App and must be called after Execute, whether or not the
// command failed.
func NewRootCommand(build AppBuilder, in io.Reader) (*cobra.Command, io.Closer) {
	st := &rootState{build: build}

	defaults := &config.Config{}
	defaults.LoadDefaults()

	root := &cobra.Command{
		Use:   "fitsync",
		Short: "Sync exercise and diet logs across devices",
		Long: `fitsync keeps the exercise and diet collections of this device in sync
with every other device signed in to the same account. Records are merged
by id and business date and stored in the account's private app-data area.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !needsApp(cmd) {
				return nil
			}
			cfg, err := config.Load(st.configPath, cmd.Flags())
			if err != nil {
				return err
			}
			app, err := st.build(cmd.Context(), cfg, in, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			st.app = app
			return nil
		},
	}

	root.PersistentFlags().StringVar(&st.configPath, "config", "", "path to a JSON config file")
	config.BindFlags(root.PersistentFlags(), defaults)

	root.AddGroup(
		&cobra.Group{ID: "auth", Title: "Account:"},
		&cobra.Group{ID: "sync", Title: "Sync:"},
		&cobra.Group{ID: "records", Title: "Records:"},
	)

	root.AddCommand(
		loginCmd(st),
		logoutCmd(st),
		whoamiCmd(st),
		syncCmd(st),
		pushCmd(st),
		statusCmd(st),
		watchCmd(st),
		addCmd(st),
		deleteCmd(st),
		listCmd(st),
	)
	return root, st
}

// needsApp is false for cobra's built-in help and completion commands.
func needsApp(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "help", "completion", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
			return false
		}
	}
	return true
}
