//go:build !linux

package server

import (
	"context"

	"go.uber.org/zap"
)

// logListenBacklog logs the listen address (non-Linux systems)
func logListenBacklog(log *zap.Logger, addr string) {
	log.Info("server listening", zap.String("addr", addr))
}

// monitorListenOverflows is a no-op on non-Linux systems
func monitorListenOverflows(ctx context.Context, log *zap.Logger) error {
	<-ctx.Done()
	return nil
}
