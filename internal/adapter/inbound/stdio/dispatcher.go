// Package stdio is the inbound adapter that runs the JSON-RPC 2.0 loop
// over stdin/stdout, routing MCP methods to ResourceManager and mapping
// internal errors onto the wire error taxonomy.
package stdio

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/elnmcp/gateway/internal/domain/audit"
	"github.com/elnmcp/gateway/internal/domain/elnerrors"
	"github.com/elnmcp/gateway/internal/domain/resource"
	"github.com/elnmcp/gateway/internal/domain/scope"
	"github.com/elnmcp/gateway/internal/service"
	"github.com/elnmcp/gateway/pkg/rpc"
)

const (
	protocolVersion = "2024-11-05"
	serverName      = "elnmcp-gateway"
)

// Dispatcher reads line-delimited JSON-RPC requests from stdin, routes
// them to ResourceManager, and writes responses to stdout. Processing is
// strictly serial: one message is fully handled (including any upstream
// HTTP calls) before the next is read.
type Dispatcher struct {
	resources     *service.ResourceManager
	emitter       *service.AuditEmitter
	logger        *slog.Logger
	serverVersion string
}

// NewDispatcher builds a Dispatcher.
func NewDispatcher(resources *service.ResourceManager, emitter *service.AuditEmitter, logger *slog.Logger, serverVersion string) *Dispatcher {
	return &Dispatcher{resources: resources, emitter: emitter, logger: logger, serverVersion: serverVersion}
}

type scannedItem struct {
	req rpc.Request
	err error
}

// Run processes messages from in and writes responses to out until ctx
// is cancelled or in reaches EOF. On ctx cancellation it stops reading
// new messages and returns; the caller is responsible for bounding how
// long it waits for Run to return and for draining the audit buffer
// afterward.
func (d *Dispatcher) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := rpc.NewScanner(in)
	writer := rpc.NewWriter(out)

	items := make(chan scannedItem)
	go func() {
		defer close(items)
		for {
			req, _, err := scanner.Next()
			select {
			case items <- scannedItem{req: req, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopping: shutdown requested")
			return nil

		case it, ok := <-items:
			if !ok {
				return nil
			}
			if it.err != nil {
				if errors.Is(it.err, io.EOF) {
					d.logger.Info("dispatcher stopping: stdin closed")
					return nil
				}
				var parseErr *rpc.ParseError
				if errors.As(it.err, &parseErr) {
					_ = writer.Write(rpc.NewErrorResponse(rpc.ID{}, rpc.CodeParseError, "Parse error", nil))
					continue
				}
				return it.err
			}
			d.handle(ctx, writer, it.req)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, writer *rpc.Writer, req rpc.Request) {
	if req.JSONRPC != "2.0" || req.Method == "" {
		if !req.ID.IsNotification() {
			_ = writer.Write(rpc.NewErrorResponse(req.ID, rpc.CodeInvalidRequest, "Invalid Request", nil))
		}
		return
	}

	ctx = audit.WithCorrelationID(ctx, uuid.NewString())
	notification := req.ID.IsNotification()

	var resp *rpc.Response
	switch req.Method {
	case "initialize":
		resp = rpc.NewResultResponse(req.ID, d.handleInitialize())

	case "resources/list":
		result, err := d.handleResourcesList(ctx)
		if err != nil {
			resp = d.errorResponse(ctx, req.ID, err)
		} else {
			resp = rpc.NewResultResponse(req.ID, result)
		}

	case "resources/read":
		result, err := d.handleResourcesRead(ctx, req.Params)
		if err != nil {
			resp = d.errorResponse(ctx, req.ID, err)
		} else {
			resp = rpc.NewResultResponse(req.ID, result)
		}

	default:
		resp = rpc.NewErrorResponse(req.ID, rpc.CodeMethodNotFound, "Method not found", nil)
	}

	if notification {
		return
	}
	if err := writer.Write(resp); err != nil {
		d.logger.Error("failed to write response", "error", err)
	}
}

func (d *Dispatcher) handleInitialize() map[string]any {
	return map[string]any{
		"protocolVersion": protocolVersion,
		"serverInfo": map[string]any{
			"name":    serverName,
			"version": d.serverVersion,
		},
		"capabilities": map[string]any{
			"resources": map[string]any{},
		},
	}
}

func (d *Dispatcher) handleResourcesList(ctx context.Context) (map[string]any, error) {
	resources, err := d.resources.ListResources(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"resources": resources}, nil
}

type resourcesReadParams struct {
	URI string `json:"uri"`
}

func (d *Dispatcher) handleResourcesRead(ctx context.Context, raw json.RawMessage) (map[string]any, error) {
	var params resourcesReadParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, &invalidParamsError{reason: "malformed params"}
		}
	}
	if params.URI == "" {
		return nil, &invalidParamsError{reason: "missing uri parameter"}
	}

	uri, err := d.resources.ParseResourceURI(params.URI)
	if err != nil {
		return nil, err
	}

	content, err := d.resources.ReadResource(ctx, uri)
	if err != nil {
		return nil, err
	}
	return map[string]any{"contents": []any{content}}, nil
}

// invalidParamsError maps to JSON-RPC InvalidParams; it is distinct from
// resource.ParseError because it covers malformed envelope params rather
// than a malformed resource URI, though both share a wire code.
type invalidParamsError struct {
	reason string
}

func (e *invalidParamsError) Error() string { return "invalid params: " + e.reason }

func (d *Dispatcher) errorResponse(ctx context.Context, id rpc.ID, err error) *rpc.Response {
	code, message, kind := classifyError(err)
	correlationID := audit.CorrelationIDFromContext(ctx)

	outcome := audit.OutcomeError
	if code == rpc.CodeScopeViolation {
		outcome = audit.OutcomeDenied
	}
	d.recordDispatchError(correlationID, outcome, err)

	return rpc.NewErrorResponse(id, code, message, &rpc.ErrorData{CorrelationID: correlationID, Kind: kind})
}

func classifyError(err error) (code int, message string, kind string) {
	var parseErr *resource.ParseError
	var invalidParams *invalidParamsError
	var violation *scope.Violation
	var authErr *elnerrors.AuthenticationError
	var notFound *elnerrors.NotFoundError
	var rateLimited *elnerrors.RateLimitedError
	var unavailable *elnerrors.UpstreamUnavailableError

	switch {
	case errors.As(err, &parseErr), errors.As(err, &invalidParams):
		return rpc.CodeInvalidParams, "Invalid params", ""
	case errors.As(err, &violation):
		return rpc.CodeScopeViolation, "ScopeViolation", string(violation.Kind)
	case errors.As(err, &authErr):
		return rpc.CodeAuthenticationError, "Authentication failed", ""
	case errors.As(err, &notFound):
		return rpc.CodeResourceNotFound, "Resource not found", ""
	case errors.As(err, &rateLimited):
		return rpc.CodeRateLimited, "Rate limited", ""
	case errors.As(err, &unavailable):
		return rpc.CodeUpstreamUnavailable, "Upstream unavailable", ""
	default:
		return rpc.CodeInternalError, "Internal error", ""
	}
}

func (d *Dispatcher) recordDispatchError(correlationID string, outcome audit.Outcome, err error) {
	if d.emitter == nil {
		return
	}
	eventType := audit.EventUpstreamError
	var violation *scope.Violation
	if errors.As(err, &violation) {
		eventType = audit.EventScopeViolation
	}
	d.emitter.Record(audit.Event{
		CorrelationID: correlationID,
		Type:          eventType,
		Outcome:       outcome,
		ErrorKind:     errorKindOf(err),
		Message:       err.Error(),
	})
}

func errorKindOf(err error) string {
	var violation *scope.Violation
	if errors.As(err, &violation) {
		return string(violation.Kind)
	}
	return ""
}
