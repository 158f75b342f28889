package platform

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"time"

	"github.com/sirupsen/logrus"
)

// NewShutdownContext returns a context canceled when the process is asked to stop
func NewShutdownContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, shutdownSignals...)
}

// Serve runs server on listener until ctx is done, then drains in-flight
// requests for at most shutdownTimeout.
func Serve(ctx context.Context, server *http.Server, listener net.Listener, shutdownTimeout time.Duration, logger *logrus.Logger) error {
	serveErrors := make(chan error, 1)
	go func() {
		logger.Infof("Listening on %s", listener.Addr())
		serveErrors <- server.Serve(listener)
	}()

	select {
	case err := <-serveErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")

	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(drainCtx); err != nil {
		return err
	}

	logger.Info("Server exited")
	return nil
}
