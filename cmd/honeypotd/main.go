// honeypotd is the SSH honeypot daemon: it binds one or more TCP
// listeners, terminates real SSH connections against a simulated shell
// and SFTP subsystem, and records every observable artifact through the
// persistence pipeline.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/Lucy-dot-dot/ssh-honeypot/internal/config"
	"github.com/Lucy-dot-dot/ssh-honeypot/internal/intel"
	"github.com/Lucy-dot-dot/ssh-honeypot/internal/keys"
	"github.com/Lucy-dot-dot/ssh-honeypot/internal/logging"
	"github.com/Lucy-dot-dot/ssh-honeypot/internal/pipeline"
	"github.com/Lucy-dot-dot/ssh-honeypot/internal/profile"
	"github.com/Lucy-dot-dot/ssh-honeypot/internal/session"
	"github.com/Lucy-dot-dot/ssh-honeypot/internal/sfs"
	"github.com/Lucy-dot-dot/ssh-honeypot/internal/tarpit"
)

var version = "0.1.0-dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "honeypotd",
		Short:   "SSH honeypot daemon",
		Version: version,
		RunE:    run,
	}
	config.BindFlags(rootCmd)
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err}
	})

	if err := rootCmd.Execute(); err != nil {
		if _, ok := err.(*usageError); ok {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// usageError marks a CLI-surface error (bad flags) for the exit-code-2
// path spec.md §6 requires, as distinct from a startup Fatal (exit 1).
type usageError struct{ error }

func run(cmd *cobra.Command, _ []string) error {
	policy, err := config.Resolve(cmd)
	if err != nil {
		return &usageError{err}
	}

	log := logging.New(policy.Debug)
	log.Info().Strs("interfaces", policy.Interfaces).Msg("starting honeypot")

	signer, err := keys.LoadOrGenerate(policy.KeyFolder)
	if err != nil {
		return fmt.Errorf("loading host key: %w", err)
	}

	fs, err := sfs.New()
	if err != nil {
		return fmt.Errorf("building simulated filesystem: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, policy.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}

	pp := pipeline.New(pool, logging.Component(log, "pipeline"), time.Duration(policy.AbuseIPCacheCleanupHours)*time.Hour)
	go pp.Run(ctx)

	profiles := profile.NewRotator(policy.Hostname)
	if policy.ProfileRotationInterval > 0 {
		go profiles.Run(ctx.Done(), policy.ProfileRotationInterval)
	}

	ctrl := &session.Controller{
		Signer:      signer,
		FS:          fs,
		Profiles:    profiles,
		Pipeline:    pp,
		Abuse:       intel.NewAbuseIPDBClient(policy.AbuseIPDBAPIKey, pp, logging.Component(log, "abuseipdb")),
		IPAPI:       intel.NewIPAPIClient(policy.DisableIPAPI, pp, logging.Component(log, "ipapi")),
		Tarpit:      tarpit.New(policy.Tarpit),
		RejectAll:   policy.RejectAllAuth,
		SFTPEnabled: policy.EnableSFTP,
		DisableCLI:  policy.DisableCLIInterface,
		Banner:      policy.AuthenticationBanner,
		Log:         logging.Component(log, "session"),
	}

	listeners, err := bindListeners(policy.Interfaces)
	if err != nil {
		return fmt.Errorf("binding listeners: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for _, ln := range listeners {
		go acceptLoop(ctx, ln, ctrl)
	}
	log.Info().Msg("honeypot ready")

	<-sigCh
	log.Info().Msg("shutting down")
	for _, ln := range listeners {
		_ = ln.Close()
	}
	// Shutdown before cancel: the pipeline actor selects on both its
	// mailbox and ctx.Done(), so cancelling first could race it into
	// exiting without draining the shutdown message's queued events.
	pp.Shutdown()
	time.Sleep(200 * time.Millisecond)
	cancel()
	return nil
}

func bindListeners(interfaces []string) ([]net.Listener, error) {
	var out []net.Listener
	for _, addr := range interfaces {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			for _, opened := range out {
				_ = opened.Close()
			}
			return nil, fmt.Errorf("listening on %s: %w", addr, err)
		}
		out = append(out, ln)
	}
	return out, nil
}

func acceptLoop(ctx context.Context, ln net.Listener, ctrl *session.Controller) {
	for {
		netConn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				ctrl.Log.Error().Err(err).Msg("accept failed")
				return
			}
		}
		go ctrl.Accept(netConn)
	}
}
