package auth

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/dmitrijs2005/fitsync/internal/common"
)

// PasteSource is the CodeSource for machines without a local browser: the
// user opens the URL elsewhere and pastes the address the browser was
// redirected to.
type PasteSource struct {
	In  io.Reader
	Out io.Writer
}

func (p *PasteSource) ObtainCode(ctx context.Context, authURL string) (string, error) {
	want, err := expectedState(authURL)
	if err != nil {
		return "", err
	}

	fmt.Fprintf(p.Out, "Open this URL in a browser and grant access:\n\n  %s\n\n", authURL)
	fmt.Fprint(p.Out, "Paste the full address you were redirected to: ")

	type line struct {
		text string
		err  error
	}
	lines := make(chan line, 1)
	go func() {
		text, err := bufio.NewReader(p.In).ReadString('\n')
		lines <- line{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %v", common.ErrUserCancelled, ctx.Err())
	case l := <-lines:
		text := strings.TrimSpace(l.text)
		if l.err != nil && (!errors.Is(l.err, io.EOF) || text == "") {
			return "", common.ErrUserCancelled
		}
		u, err := url.Parse(text)
		if err != nil {
			return "", fmt.Errorf("%w: cannot parse pasted address: %v", common.ErrAuthorization, err)
		}
		return codeFromCallback(u.Query(), want)
	}
}
