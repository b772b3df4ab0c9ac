package cli

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/fitsync/internal/auth"
	"github.com/dmitrijs2005/fitsync/internal/common"
	"github.com/dmitrijs2005/fitsync/internal/models"
	"github.com/spf13/cobra"
)

func loginCmd(st *rootState) *cobra.Command {
	var paste, noBrowser bool

	cmd := &cobra.Command{
		Use:     "login",
		GroupID: "auth",
		Short:   "Authorize fitsync with your Google account",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := st.app
			if a.configErr != nil {
				return a.configErr
			}

			var src auth.CodeSource
			if paste {
				src = &auth.PasteSource{In: a.in, Out: a.out}
			} else {
				r := &auth.LoopbackReceiver{RedirectURI: a.session.RedirectURI(), Out: a.out, Log: a.log}
				if !noBrowser {
					r.Open = a.openBrowser
				}
				src = r
			}

			profile, err := a.session.Authorize(cmd.Context(), src)
			if errors.Is(err, common.ErrUserCancelled) {
				fmt.Fprintln(a.out, "Login cancelled.")
				return nil
			}
			if err != nil {
				return err
			}

			if profile != nil && profile.Email != "" {
				fmt.Fprintf(a.out, "Logged in as %s\n", profile.Email)
			} else {
				fmt.Fprintln(a.out, "Logged in.")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&paste, "paste", false, "paste the redirected address instead of running a local callback server")
	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "print the consent URL without opening a browser")
	return cmd
}

func logoutCmd(st *rootState) *cobra.Command {
	return &cobra.Command{
		Use:     "logout",
		GroupID: "auth",
		Short:   "Forget the stored credentials",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := st.app.session.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(st.app.out, "Logged out.")
			return nil
		},
	}
}

func whoamiCmd(st *rootState) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:     "whoami",
		GroupID: "auth",
		Short:   "Show the signed-in account",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := st.app
			err := a.session.EnsureValid(cmd.Context())
			var profile *models.Profile
			if err == nil {
				profile, err = a.session.Profile(cmd.Context())
			}
			if errors.Is(err, common.ErrNotAuthenticated) {
				fmt.Fprintln(a.out, "Not logged in.")
				return nil
			}
			if err != nil {
				return err
			}
			return render(a.out, output, profile, func() {
				fmt.Fprintf(a.out, "%s <%s>\n", profile.Name, profile.Email)
			})
		},
	}
	addOutputFlag(cmd, &output)
	return cmd
}
