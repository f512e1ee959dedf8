// The shelfwise binary runs the headless client core: the state store with
// the session manager and lending engine wired to a lending gateway. On a
// cold start it validates the session credential and, when authenticated,
// warms the catalog and borrow caches. A rendering layer would subscribe to
// the store the same way the logging listener below does.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/shelfwise/shelfwise/internal/config"
	"github.com/shelfwise/shelfwise/internal/gateway"
	"github.com/shelfwise/shelfwise/internal/lending"
	"github.com/shelfwise/shelfwise/internal/logging"
	"github.com/shelfwise/shelfwise/internal/metrics"
	"github.com/shelfwise/shelfwise/internal/session"
	"github.com/shelfwise/shelfwise/internal/store"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger := logging.New(cfg, "shelfwise-client")

	// Initialize metrics
	if err := metrics.Init(); err != nil {
		logger.WithError(err).Fatal("Failed to initialize metrics")
	}

	// Gateway client, store and components
	gw, err := gateway.New(&cfg.Gateway, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create gateway client")
	}

	st := store.New()
	sessions := session.NewManager(gw, st, logger)
	engine := lending.NewEngine(gw, st, logger)

	unsubscribe := st.Subscribe(func(snap store.Snapshot) {
		logger.WithFields(logrus.Fields{
			"phase":        snap.Auth.Phase(),
			"auth_pending": snap.Auth.Pending,
			"books":        len(snap.Books.Books),
			"my_borrows":   len(snap.Borrow.Mine),
		}).Debug("State changed")
	})
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cold start: the stored credential decides where the machine begins.
	if err := sessions.ValidateToken(ctx); err != nil {
		logger.Info("No valid session, login required")
	} else {
		snap := st.Snapshot()
		logging.WithUserID(logger, snap.Auth.User.ID).Info("Session restored")

		if err := engine.FetchBooks(ctx); err != nil {
			logger.WithError(err).Warn("Failed to fetch catalog")
		}
		if err := engine.FetchBorrowed(ctx, store.ScopeSelf); err != nil {
			logger.WithError(err).Warn("Failed to fetch borrowed books")
		}
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	logger.Info("Shutting down")
}
