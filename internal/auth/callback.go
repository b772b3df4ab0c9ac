package auth

import (
	"fmt"
	"net/url"

	"github.com/dmitrijs2005/fitsync/internal/common"
)

// expectedState extracts the state parameter from an authorization URL.
func expectedState(authURL string) (string, error) {
	u, err := url.Parse(authURL)
	if err != nil {
		return "", fmt.Errorf("%w: bad authorization url: %v", common.ErrAuthorization, err)
	}
	return u.Query().Get("state"), nil
}

// codeFromCallback validates the query of a redirect and returns its code.
// access_denied means the user declined on the consent screen.
func codeFromCallback(q url.Values, wantState string) (string, error) {
	if e := q.Get("error"); e != "" {
		if e == "access_denied" {
			return "", common.ErrUserCancelled
		}
		if desc := q.Get("error_description"); desc != "" {
			e += ": " + desc
		}
		return "", fmt.Errorf("%w: %s", common.ErrAuthorization, e)
	}
	if q.Get("state") != wantState {
		return "", fmt.Errorf("%w: %w", common.ErrAuthorization, common.ErrStateMismatch)
	}
	code := q.Get("code")
	if code == "" {
		return "", fmt.Errorf("%w: redirect carries no code", common.ErrAuthorization)
	}
	return code, nil
}
