package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/dmitrijs2005/fitsync/internal/common"
	"github.com/dmitrijs2005/fitsync/internal/logging"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	pageDone   = "<html><body><h3>fitsync is authorized. You can close this window.</h3></body></html>"
	pageFailed = "<html><body><h3>Authorization failed. You can close this window and try again.</h3></body></html>"
)

// LoopbackReceiver listens on the host of the redirect URI and resolves with
// the first callback it receives. Later callbacks are answered but ignored.
// Cancelling the context counts as the user closing the consent window.
type LoopbackReceiver struct {
	RedirectURI string
	// Open launches the consent page; nil only prints the URL.
	Open func(url string) error
	Out  io.Writer
	Log  logging.Logger

	// listen is replaced in tests
	listen func(network, addr string) (net.Listener, error)
}

type outcome struct {
	code string
	err  error
}

func (r *LoopbackReceiver) ObtainCode(ctx context.Context, authURL string) (string, error) {
	want, err := expectedState(authURL)
	if err != nil {
		return "", err
	}
	redirect, err := url.Parse(r.RedirectURI)
	if err != nil || redirect.Host == "" {
		return "", fmt.Errorf("%w: redirect uri %q", common.ErrConfiguration, r.RedirectURI)
	}
	callbackPath := redirect.Path
	if callbackPath == "" {
		callbackPath = "/"
	}

	listen := r.listen
	if listen == nil {
		listen = net.Listen
	}
	ln, err := listen("tcp", redirect.Host)
	if err != nil {
		return "", fmt.Errorf("%w: listen on %s: %v", common.ErrAuthorization, redirect.Host, err)
	}

	done := make(chan outcome, 1)
	var once sync.Once
	resolve := func(o outcome) bool {
		first := false
		once.Do(func() {
			done <- o
			first = true
		})
		return first
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Get(callbackPath, func(w http.ResponseWriter, req *http.Request) {
		code, err := codeFromCallback(req.URL.Query(), want)
		if !resolve(outcome{code: code, err: err}) {
			r.log().Debug(req.Context(), "ignoring repeated callback")
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, pageFailed)
			return
		}
		_, _ = io.WriteString(w, pageDone)
	})

	srv := &http.Server{Handler: router, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			resolve(outcome{err: fmt.Errorf("%w: callback server: %v", common.ErrAuthorization, err)})
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if r.Out != nil {
		fmt.Fprintf(r.Out, "Opening the consent page. If it does not open, visit:\n\n  %s\n\n", authURL)
	}
	if r.Open != nil {
		if err := r.Open(authURL); err != nil {
			r.log().Warn(ctx, "could not open browser", "error", err)
		}
	}

	select {
	case o := <-done:
		return o.code, o.err
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %v", common.ErrUserCancelled, ctx.Err())
	}
}

func (r *LoopbackReceiver) log() logging.Logger {
	if r.Log == nil {
		return logging.Nop()
	}
	return r.Log
}
