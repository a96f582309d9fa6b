package daemon

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/nupi-ai/comfort/internal/bridge"
	"github.com/nupi-ai/comfort/internal/session"
	"github.com/nupi-ai/comfort/internal/transport/gateway"
)

type gatewayService struct {
	gateway *gateway.Gateway
	info    *RuntimeInfo
}

func newGatewayService(handler http.Handler, opts gateway.Options, info *RuntimeInfo) *gatewayService {
	return &gatewayService{gateway: gateway.New(handler, opts), info: info}
}

func (s *gatewayService) Start(ctx context.Context) error {
	info, err := s.gateway.Start(ctx)
	if err != nil {
		return err
	}
	s.info.setPorts(info.HTTP.Port, info.GRPC.Port)
	log.Printf("[Daemon] HTTP API listening on %s://%s", info.HTTP.Scheme, info.HTTP.Address)
	log.Printf("[Daemon] gRPC health listening on %s://%s", info.GRPC.Scheme, info.GRPC.Address)
	return nil
}

func (s *gatewayService) Shutdown(ctx context.Context) error {
	if err := s.gateway.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *gatewayService) Errors() <-chan error {
	return s.gateway.Errors()
}

// bridgeService owns the page connections. Stopping it closes every session
// while the pages are still connected, so they get their styles back.
type bridgeService struct {
	hub     *bridge.Hub
	manager *session.Manager
}

func (s *bridgeService) Start(ctx context.Context) error { return nil }

func (s *bridgeService) Shutdown(ctx context.Context) error {
	s.manager.CloseAll()
	s.hub.Shutdown()
	return nil
}
