// Package cli is the interactive front end of the lock: it wires the
// device database, the optional server client and the audit sinks into a
// lock.Manager and drives it from a small REPL.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/dmitrijs2005/applock/internal/biometric"
	"github.com/dmitrijs2005/applock/internal/client/audit"
	"github.com/dmitrijs2005/applock/internal/client/config"
	"github.com/dmitrijs2005/applock/internal/client/local"
	"github.com/dmitrijs2005/applock/internal/client/remote"
	"github.com/dmitrijs2005/applock/internal/client/repositories/sessions"
	"github.com/dmitrijs2005/applock/internal/lock"
	"github.com/dmitrijs2005/applock/internal/logging"
)

type App struct {
	cfg     *config.Config
	log     logging.Logger
	repos   *local.Repositories
	remote  *remote.Client
	s3      *audit.S3Sink
	manager *lock.Manager

	in io.Reader

	outMu sync.Mutex
	out   io.Writer

	criticalMu sync.Mutex
	release    func()
}

// NewApp opens the device database and builds the lock manager. Logs go to
// stderr so they do not interleave with prompts.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	return newApp(ctx, c, logging.New(os.Stderr, c.LogLevel, false), os.Stdin, os.Stdout)
}

func newApp(ctx context.Context, c *config.Config, log logging.Logger, in io.Reader, out io.Writer, opts ...lock.Option) (*App, error) {
	repos, err := local.InitDatabase(ctx, c.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}

	a := &App{
		cfg:   c,
		log:   log,
		repos: repos,
		in:    in,
		out:   out,
	}

	deps := lock.Deps{
		Principal:            c.PrincipalID,
		Local:                repos.LockState(c.PrincipalID),
		LegacyCredentials:    repos.Legacy,
		LocalOnlyCredentials: repos.LocalOnly,
		Biometric:            biometric.NewAdapter(log, biometric.DefaultPromptTimeout, biometric.Unavailable{}),
		Logger:               log,
	}

	sinks := audit.Multi{audit.NewLogSink(log)}
	if c.AuditS3Enabled() {
		s3, err := audit.NewS3Sink(ctx, audit.S3Config{
			Bucket:   c.AuditBucket,
			Region:   c.AuditRegion,
			Endpoint: c.AuditEndpoint,
			User:     c.AuditUser,
			Password: c.AuditPassword,
		}, log)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("audit sink: %w", err)
		}
		a.s3 = s3
		sinks = append(sinks, s3)
	}
	deps.Audit = sinks

	if c.RemoteEnabled() {
		rc, err := a.dialRemote(ctx)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.remote = rc
		deps.RemoteCredentials = rc
		deps.RemoteRecords = rc.LockRecords()
		deps.Sessions = rc
	}

	opts = append([]lock.Option{
		lock.WithMonitorInterval(c.MonitorInterval),
		lock.WithRetries(c.RemoteRetries, lock.DefaultMirrorRetryBase),
		lock.WithOnLock(a.onLock),
	}, opts...)

	m, err := lock.NewManager(ctx, deps, opts...)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("lock manager: %w", err)
	}
	a.manager = m
	return a, nil
}

// dialRemote seeds the client with tokens from the environment, falling back
// to the pair saved by the last rotation, and saves every rotated pair.
func (a *App) dialRemote(ctx context.Context) (*remote.Client, error) {
	principal := a.cfg.PrincipalID
	access, refresh := a.cfg.AccessToken, a.cfg.RefreshToken

	if refresh == "" {
		saved, err := a.repos.Sessions.Get(ctx, principal)
		if err != nil {
			a.log.Warn(ctx, "stored session unreadable", "error", err)
		} else if saved != nil {
			access, refresh = saved.AccessToken, saved.RefreshToken
		}
	}

	rc, err := remote.New(a.cfg.ServerEndpointAddr,
		remote.WithSession(access, refresh),
		remote.WithOnRotate(func(ctx context.Context, s remote.Session) {
			err := a.repos.Sessions.Save(ctx, principal, sessions.Tokens{
				AccessToken:  s.AccessToken,
				RefreshToken: s.RefreshToken,
			})
			if err != nil {
				a.log.Warn(ctx, "rotated session not saved", "error", err)
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("server client: %w", err)
	}
	return rc, nil
}

func (a *App) onLock(reason string) {
	a.printf("Locked (%s).\n", reason)
}

func (a *App) printf(format string, args ...any) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	fmt.Fprintf(a.out, format, args...)
}

func (a *App) println(args ...any) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	fmt.Fprintln(a.out, args...)
}

func (a *App) getStatus() string {
	snap := a.manager.CurrentState()
	if snap.Principal == "" {
		return snap.Phase.String()
	}
	return snap.Principal + " " + snap.Phase.String()
}

// Run starts the background work and serves the REPL until it ends.
func (a *App) Run(ctx context.Context) {
	defer a.Close()

	a.manager.Start(ctx)

	a.println("applock (type 'help' for commands)")
	runREPL(ctx, a, a.getStatus, bufio.NewScanner(a.in))
}

// Close releases everything NewApp opened. It is safe to call twice.
func (a *App) Close() {
	if a.manager != nil {
		a.manager.Close()
	}
	if a.s3 != nil {
		a.s3.Close()
	}
	if a.remote != nil {
		if err := a.remote.Close(); err != nil {
			a.log.Debug(context.Background(), "server client close", "error", err)
		}
		a.remote = nil
	}
	if a.repos != nil {
		_ = a.repos.Close()
		a.repos = nil
	}
}
