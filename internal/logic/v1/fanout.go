package v1

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/duynhne/metaboard/internal/core/domain"
	"github.com/duynhne/metaboard/internal/logging"
	"github.com/duynhne/metaboard/internal/metabase"
	"github.com/duynhne/metaboard/middleware"
)

// RemoteClient is the slice of the Metabase client the logic layer depends on.
type RemoteClient interface {
	Authenticate(ctx context.Context, host, email, password string) (string, error)
	ExecuteQuery(ctx context.Context, host, token string, databaseID int, sqlText string) (*domain.ResultPayload, error)
	ListDatabases(ctx context.Context, host, token string) ([]domain.DatabaseInfo, error)
	Version(ctx context.Context, host, token string) (string, error)
}

// FanOutService dispatches one SQL query to many Metabase servers
// concurrently and assembles per-server results.
//
// Isolation is the defining property: each selection runs its own
// credential-lookup → authenticate → execute pipeline, any failure along
// that pipeline terminates only that selection's entry, and the run returns
// exactly one entry per input selection no matter what the remotes do.
type FanOutService struct {
	credentials domain.ServerRepository
	remote      RemoteClient
	callTimeout time.Duration
}

// NewFanOutService creates a FanOutService. callTimeout bounds each remote
// HTTP call so a hung server caps the run's latency instead of extending it
// indefinitely.
func NewFanOutService(credentials domain.ServerRepository, remote RemoteClient, callTimeout time.Duration) *FanOutService {
	return &FanOutService{
		credentials: credentials,
		remote:      remote,
		callTimeout: callTimeout,
	}
}

// Run executes req.Query against every selection concurrently and returns
// one entry per selection, in input order.
//
// Precondition violations (empty query, no selections, missing user) fail
// the whole call with ErrInvalidRequest before any network activity.
// Everything after that is per-entry: the run itself cannot fail because a
// remote did.
func (s *FanOutService) Run(ctx context.Context, req domain.QueryRequest) ([]domain.QueryResultEntry, error) {
	ctx, span := middleware.StartSpan(ctx, "query.fanout", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.Int("selections", len(req.Selections)),
	))
	defer span.End()

	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("run fan-out: empty query: %w", ErrInvalidRequest)
	}
	if len(req.Selections) == 0 {
		return nil, fmt.Errorf("run fan-out: no selections: %w", ErrInvalidRequest)
	}
	if req.UserID <= 0 {
		return nil, fmt.Errorf("run fan-out: missing user: %w", ErrInvalidRequest)
	}

	// One slot per selection, written only by that selection's goroutine.
	// The WaitGroup is the join barrier; no other synchronization is needed
	// because no two pipelines share state.
	entries := make([]domain.QueryResultEntry, len(req.Selections))
	var wg sync.WaitGroup
	for i, sel := range req.Selections {
		wg.Add(1)
		go func(i int, sel domain.QuerySelection) {
			defer wg.Done()
			entries[i] = s.runSelection(ctx, req.UserID, sel, req.Query)
		}(i, sel)
	}
	wg.Wait()

	span.SetAttributes(attribute.Bool("fanout.complete", true))
	return entries, nil
}

// runSelection drives one selection to its terminal entry. It never returns
// an error: failures become the entry's Error field.
func (s *FanOutService) runSelection(ctx context.Context, ownerUserID int, sel domain.QuerySelection, sqlText string) domain.QueryResultEntry {
	ctx, span := middleware.StartSpan(ctx, "query.fanout.selection", trace.WithAttributes(
		attribute.Int("server.id", sel.ServerID),
		attribute.Int("database.id", sel.DatabaseID),
	))
	defer span.End()

	logger := logging.FromContext(ctx)

	entry := domain.QueryResultEntry{ServerID: sel.ServerID}

	// Snapshot read; the store is never written during a run.
	cred, err := s.credentials.Lookup(ctx, ownerUserID, sel.ServerID)
	if err != nil {
		span.RecordError(err)
		logger.Error().Err(err).Int("server_id", sel.ServerID).Msg("Credential lookup failed")
		return s.failed(entry, "Failed to resolve server credentials")
	}
	if cred == nil {
		logger.Warn().Int("server_id", sel.ServerID).Int("user_id", ownerUserID).Msg("Server not registered for user")
		return s.failed(entry, msgServerNotFound)
	}

	host := metabase.NormalizeHost(cred.HostURL)
	entry.ServerURL = host

	// Fresh token per run; tokens are never cached across runs.
	authCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	token, err := s.remote.Authenticate(authCtx, cred.HostURL, cred.Email, cred.Secret)
	cancel()
	if err != nil {
		span.RecordError(err)
		logger.Warn().Err(err).Str("host", host).Msg("Remote authentication failed")
		return s.failed(entry, remoteErrorMessage(err))
	}

	execCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	payload, err := s.remote.ExecuteQuery(execCtx, cred.HostURL, token, sel.DatabaseID, sqlText)
	cancel()
	if err != nil {
		span.RecordError(err)
		logger.Warn().Err(err).Str("host", host).Int("database_id", sel.DatabaseID).Msg("Remote query failed")
		return s.failed(entry, remoteErrorMessage(err))
	}

	logger.Info().
		Str("host", host).
		Int("database_id", sel.DatabaseID).
		Int("rows", len(payload.Rows)).
		Msg("Query succeeded")
	span.SetAttributes(attribute.Int("result.rows", len(payload.Rows)))
	middleware.ObserveFanoutSelection("success")

	entry.Data = payload
	return entry
}

// failed marks the entry terminal with the given message.
func (s *FanOutService) failed(entry domain.QueryResultEntry, msg string) domain.QueryResultEntry {
	middleware.ObserveFanoutSelection("error")
	entry.Data = nil
	entry.Error = msg
	return entry
}

// remoteErrorMessage prefers the remote server's own message over the
// wrapper text, so per-entry errors read the way the remote reported them.
func remoteErrorMessage(err error) string {
	var authErr *metabase.AuthError
	if errors.As(err, &authErr) {
		return authErr.Message
	}
	var queryErr *metabase.QueryError
	if errors.As(err, &queryErr) {
		return queryErr.Message
	}
	return err.Error()
}
