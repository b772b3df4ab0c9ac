package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/dmitrijs2005/fitsync/internal/auth"
	"github.com/dmitrijs2005/fitsync/internal/common"
	"github.com/dmitrijs2005/fitsync/internal/config"
	"github.com/dmitrijs2005/fitsync/internal/dbx"
	"github.com/dmitrijs2005/fitsync/internal/logging"
	"github.com/dmitrijs2005/fitsync/internal/models"
	"github.com/dmitrijs2005/fitsync/internal/remote"
	"github.com/dmitrijs2005/fitsync/internal/repositories/metadata"
	"github.com/dmitrijs2005/fitsync/internal/repositories/records"
	"github.com/dmitrijs2005/fitsync/internal/syncer"
	"github.com/spf13/afero"
)

const (
	keyringAccount = "default"
	loginHint      = "run 'fitsync login'"
)

// Session is the part of auth.Session the commands use.
type Session interface {
	syncer.Authenticator
	Authorize(ctx context.Context, src auth.CodeSource) (*models.Profile, error)
	Logout(ctx context.Context) error
	Profile(ctx context.Context) (*models.Profile, error)
	RedirectURI() string
}

// RemoteOpener creates the remote store once credentials are available.
type RemoteOpener func(ctx context.Context) (remote.Store, error)

type App struct {
	cfg *config.Config
	log logging.Logger
	in  io.Reader
	out io.Writer

	session Session
	// configErr is reported by login when the OAuth client is missing
	configErr error

	// syncAuth is what the coordinator validates before remote calls
	syncAuth    syncer.Authenticator
	openRemote  RemoteOpener
	fs          afero.Fs
	files       *records.FileStore
	versions    syncer.VersionStore
	deviceID    string
	openBrowser func(string) error

	mu    sync.Mutex
	coord *syncer.Coordinator

	closers []io.Closer
}

// AppBuilder constructs the App for a command invocation.
type AppBuilder func(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer) (*App, error)

func NewApp(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer) (*App, error) {
	log, logCloser := logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})

	db, err := dbx.OpenSQLite(ctx, cfg.DatabasePath())
	if err != nil {
		_ = logCloser.Close()
		return nil, fmt.Errorf("open state database: %w", err)
	}
	repo := metadata.NewSQLiteRepository(db)

	session := auth.NewSession(newTokenStore(cfg, repo, log), log)
	configErr := session.Configure(cfg.ClientID, cfg.ClientSecret, cfg.RedirectURI)
	if _, err := session.RestoreFromStore(ctx); err != nil {
		log.Warn(ctx, "could not restore stored credentials", "error", err)
	}

	fsys := afero.NewOsFs()
	a := &App{
		cfg:         cfg,
		log:         log,
		in:          in,
		out:         out,
		session:     session,
		configErr:   configErr,
		fs:          fsys,
		files:       records.NewFileStore(fsys, cfg.DataDir),
		versions:    syncer.NewDBVersionStore(repo),
		deviceID:    syncer.DeviceID(),
		openBrowser: auth.OpenBrowser,
		closers:     []io.Closer{db, logCloser},
	}

	switch cfg.Backend {
	case config.BackendS3:
		a.syncAuth = noAuth{}
		a.openRemote = func(ctx context.Context) (remote.Store, error) {
			store, err := remote.NewS3Store(ctx, remote.S3Options{
				Bucket:    cfg.S3Bucket,
				Prefix:    cfg.S3Prefix,
				Region:    cfg.S3Region,
				Endpoint:  cfg.S3Endpoint,
				AccessKey: cfg.S3AccessKey,
				SecretKey: cfg.S3SecretKey,
			})
			if err != nil {
				return nil, err
			}
			return store, nil
		}
	default:
		a.syncAuth = session
		a.openRemote = func(ctx context.Context) (remote.Store, error) {
			client, err := session.HTTPClient(ctx)
			if err != nil {
				return nil, err
			}
			store, err := remote.NewDriveStore(ctx, client)
			if err != nil {
				return nil, err
			}
			return store, nil
		}
	}

	return a, nil
}

func newTokenStore(cfg *config.Config, repo metadata.Repository, log logging.Logger) auth.TokenStore {
	db := auth.NewDBTokenStore(repo)
	if cfg.TokenStore == config.TokenStoreDB {
		return db
	}
	return auth.NewFallbackTokenStore(auth.NewKeyringTokenStore(keyringAccount), db, log)
}

// Close releases the database and the log file.
func (a *App) Close() error {
	var firstErr error
	for _, c := range a.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.closers = nil
	return firstErr
}

// coordinator opens the remote store on first use.
func (a *App) coordinator(ctx context.Context) (*syncer.Coordinator, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.coord != nil {
		return a.coord, nil
	}

	store, err := a.openRemote(ctx)
	if errors.Is(err, common.ErrNotAuthenticated) {
		return nil, fmt.Errorf("open remote store: %w (%s)", err, loginHint)
	}
	if err != nil {
		return nil, fmt.Errorf("open remote store: %w", err)
	}
	a.coord = syncer.NewCoordinator(a.syncAuth, store, a.files, a.versions, a.deviceID, a.log)
	return a.coord, nil
}

type noAuth struct{}

func (noAuth) EnsureValid(context.Context) error { return nil }
