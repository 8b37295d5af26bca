package v1

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/duynhne/metaboard/internal/core/domain"
	"github.com/duynhne/metaboard/internal/metabase"
	"github.com/duynhne/metaboard/middleware"
)

// ServerService manages a user's registered Metabase servers and proxies
// the remote lookups (database list, connection probe) that need the
// stored credentials.
type ServerService struct {
	servers     domain.ServerRepository
	remote      RemoteClient
	callTimeout time.Duration
}

// NewServerService creates a ServerService with the given dependencies.
func NewServerService(servers domain.ServerRepository, remote RemoteClient, callTimeout time.Duration) *ServerService {
	return &ServerService{
		servers:     servers,
		remote:      remote,
		callTimeout: callTimeout,
	}
}

// List returns the caller's registered servers without secrets.
func (s *ServerService) List(ctx context.Context, ownerUserID int) ([]domain.ServerSummary, error) {
	ctx, span := middleware.StartSpan(ctx, "servers.list", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	creds, err := s.servers.ListByUser(ctx, ownerUserID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list servers for user %d: %w", ownerUserID, err)
	}

	summaries := make([]domain.ServerSummary, 0, len(creds))
	for _, cred := range creds {
		summaries = append(summaries, domain.ServerSummary{
			ID:       cred.ServerID,
			HostURL:  cred.HostURL,
			Email:    cred.Email,
			IsSource: cred.IsSource,
		})
	}
	return summaries, nil
}

// Register upserts a server host and the caller's credentials for it.
// The host URL is normalized first so "example.com/" and
// "https://example.com" register the same server.
func (s *ServerService) Register(ctx context.Context, ownerUserID int, req domain.RegisterServerRequest) (*domain.ServerSummary, error) {
	ctx, span := middleware.StartSpan(ctx, "servers.register", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	host := metabase.NormalizeHost(req.HostURL)
	if host == "" {
		return nil, fmt.Errorf("register server: empty host: %w", ErrInvalidRequest)
	}

	serverID, err := s.servers.Upsert(ctx, ownerUserID, host, req.Email, req.Password, req.IsSource)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("upsert server %s for user %d: %w", host, ownerUserID, err)
	}

	span.SetAttributes(attribute.Int("server.id", serverID))
	return &domain.ServerSummary{
		ID:       serverID,
		HostURL:  host,
		Email:    req.Email,
		IsSource: req.IsSource,
	}, nil
}

// Delete removes the caller's association with the server; the shared host
// row goes too once nobody references it.
func (s *ServerService) Delete(ctx context.Context, ownerUserID, serverID int) error {
	ctx, span := middleware.StartSpan(ctx, "servers.delete", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.Int("server.id", serverID),
	))
	defer span.End()

	err := s.servers.Delete(ctx, ownerUserID, serverID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("delete server %d for user %d: %w", serverID, ownerUserID, ErrServerNotFound)
		}
		span.RecordError(err)
		return fmt.Errorf("delete server %d for user %d: %w", serverID, ownerUserID, err)
	}
	return nil
}

// ListDatabases authenticates against the server with the caller's stored
// credentials and returns the remote's database list.
func (s *ServerService) ListDatabases(ctx context.Context, ownerUserID, serverID int) ([]domain.DatabaseInfo, error) {
	ctx, span := middleware.StartSpan(ctx, "servers.list_databases", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.Int("server.id", serverID),
	))
	defer span.End()

	cred, err := s.lookup(ctx, ownerUserID, serverID)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	token, err := s.remote.Authenticate(callCtx, cred.HostURL, cred.Email, cred.Secret)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("authenticate against %s: %w", cred.HostURL, err)
	}

	databases, err := s.remote.ListDatabases(callCtx, cred.HostURL, token)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list databases on %s: %w", cred.HostURL, err)
	}
	return databases, nil
}

// PingResult is the outcome of a server connection probe.
type PingResult struct {
	OK      bool   `json:"ok"`
	Version string `json:"version,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Ping authenticates against the server and probes its version. A failed
// probe is a result, not an error; only credential resolution can fail the
// call itself.
func (s *ServerService) Ping(ctx context.Context, ownerUserID, serverID int) (*PingResult, error) {
	ctx, span := middleware.StartSpan(ctx, "servers.ping", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.Int("server.id", serverID),
	))
	defer span.End()

	cred, err := s.lookup(ctx, ownerUserID, serverID)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	token, err := s.remote.Authenticate(callCtx, cred.HostURL, cred.Email, cred.Secret)
	if err != nil {
		return &PingResult{OK: false, Error: remoteErrorMessage(err)}, nil
	}

	version, err := s.remote.Version(callCtx, cred.HostURL, token)
	if err != nil {
		// Authenticated but the probe failed; still reachable.
		return &PingResult{OK: true, Version: "unknown"}, nil
	}
	return &PingResult{OK: true, Version: version}, nil
}

func (s *ServerService) lookup(ctx context.Context, ownerUserID, serverID int) (*domain.ServerCredential, error) {
	cred, err := s.servers.Lookup(ctx, ownerUserID, serverID)
	if err != nil {
		return nil, fmt.Errorf("lookup server %d for user %d: %w", serverID, ownerUserID, err)
	}
	if cred == nil {
		return nil, fmt.Errorf("lookup server %d for user %d: %w", serverID, ownerUserID, ErrServerNotFound)
	}
	return cred, nil
}
