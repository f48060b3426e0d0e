package remoting

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hgminh-pk/amfgate/internal/acl"
	"github.com/hgminh-pk/amfgate/internal/amf"
)

// -------------------------------------------------------------------------
// Gateway Errors
// -------------------------------------------------------------------------

var (
	// ErrAccessDenied indicates the ACL rejected the call.
	ErrAccessDenied = errors.New("access denied")

	// ErrBadCredentialsHeader indicates a Credentials header whose data
	// is not a userid/password record.
	ErrBadCredentialsHeader = errors.New("malformed credentials header")

	// ErrBadLoginBody indicates a LOGIN command whose body is not a
	// base64 userid:password pair.
	ErrBadLoginBody = errors.New("malformed login body")
)

// MethodNotFoundError reports a dispatch target with no table entry and
// no loadable service class.
type MethodNotFoundError struct {
	Method string
}

func (e *MethodNotFoundError) Error() string {
	return fmt.Sprintf("Method %q does not exist", e.Method)
}

func (e *MethodNotFoundError) Unwrap() error { return ErrMethodNotFound }

// CommandNotImplementedError reports an unsupported CommandMessage
// operation.
type CommandNotImplementedError struct {
	Operation int32
}

func (e *CommandNotImplementedError) Error() string {
	return fmt.Sprintf("CommandMessage::%d not implemented", e.Operation)
}

// GuestRole is the ACL role unauthenticated callers assume when it is
// registered. Without it, unauthenticated calls are denied outright
// whenever an ACL is installed.
const GuestRole = "anonymous"

// Fault codes surfaced to flex clients.
const (
	faultCodeProcessing = "Server.Processing"
	faultCodeAuth       = "Client.Authentication"
)

// -------------------------------------------------------------------------
// Metrics Interface
// -------------------------------------------------------------------------

// MetricsReporter receives gateway counters. A nil reporter disables
// metrics; the prometheus collector in the metrics package implements
// this interface.
type MetricsReporter interface {
	// PacketProcessed records one decoded request envelope.
	PacketProcessed(version uint16)

	// BodyDispatched records one response body with its outcome
	// ("result" or "status") and the dispatch duration.
	BodyDispatched(outcome string, seconds float64)

	// DecodeError records a fatal envelope decoding failure.
	DecodeError()

	// AuthFailure records a rejected authentication attempt.
	AuthFailure()

	// ACLDenied records an ACL rejection.
	ACLDenied()
}

// Body outcomes reported to the metrics collector.
const (
	outcomeResult = "result"
	outcomeStatus = "status"
)

// -------------------------------------------------------------------------
// Gateway
// -------------------------------------------------------------------------

// Gateway is the remoting engine: it decodes a request envelope, routes
// every body through authentication, access control, and the dispatch
// table, and encodes the response envelope in the request's encoding.
//
// A Gateway processes one packet at a time. Codec state is confined to
// each Serve call; each Gateway owns the dispatch table New creates for
// it (no option shares a table between Gateways); identity state lives
// in the Authenticator.
type Gateway struct {
	table      *Table
	registry   *amf.TypeRegistry
	access     *acl.ACL
	auth       Authenticator
	resolver   ServiceResolver
	metrics    MetricsReporter
	logger     *slog.Logger
	production bool
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithACL installs the access-control engine. Without one, every call
// is allowed.
func WithACL(a *acl.ACL) Option {
	return func(g *Gateway) { g.access = a }
}

// WithAuthenticator installs the credential backend.
func WithAuthenticator(a Authenticator) Option {
	return func(g *Gateway) { g.auth = a }
}

// WithResolver installs the deferred service loader consulted on
// dispatch-table misses.
func WithResolver(r ServiceResolver) Option {
	return func(g *Gateway) { g.resolver = r }
}

// WithMetrics installs the metrics reporter.
func WithMetrics(m MetricsReporter) Option {
	return func(g *Gateway) { g.metrics = m }
}

// WithProduction strips error descriptions, details, and line numbers
// from client-visible error responses.
func WithProduction(on bool) Option {
	return func(g *Gateway) { g.production = on }
}

// WithRegistry installs a shared type registry instead of the private
// one the constructor creates.
func WithRegistry(r *amf.TypeRegistry) Option {
	return func(g *Gateway) { g.registry = r }
}

// New creates a Gateway. The flex messaging classes are registered into
// the gateway's type registry as built-ins.
func New(logger *slog.Logger, opts ...Option) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gateway{
		logger: logger.With(slog.String("component", "gateway")),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.registry == nil {
		g.registry = amf.NewTypeRegistry()
	}
	RegisterMessages(g.registry)
	g.table = NewTable(logger)
	return g
}

// Registry returns the gateway's type registry for alias registration.
func (g *Gateway) Registry() *amf.TypeRegistry { return g.registry }

// RegisterService adds every exported method of svc to the dispatch
// table. A duplicate qualified name is a configuration error.
func (g *Gateway) RegisterService(svc any, namespace string, fixedArgs ...amf.Value) error {
	return g.table.RegisterService(svc, namespace, fixedArgs...)
}

// RegisterFunction adds one function to the dispatch table.
func (g *Gateway) RegisterFunction(name string, fn any, namespace string, fixedArgs ...amf.Value) error {
	return g.table.RegisterFunction(name, fn, namespace, fixedArgs...)
}

// Services returns the registered qualified names, sorted.
func (g *Gateway) Services() []string { return g.table.Names() }

// -------------------------------------------------------------------------
// Serve — the packet boundary
// -------------------------------------------------------------------------

// Serve processes one request envelope and returns the response
// envelope. A request that fails to parse returns an error and no
// response bytes (fatal per packet); every error past parsing is
// converted into a per-body error response.
func (g *Gateway) Serve(request []byte) ([]byte, error) {
	pkt, err := amf.ReadPacket(request, g.registry)
	if err != nil {
		if g.metrics != nil {
			g.metrics.DecodeError()
		}
		g.logger.Warn("request envelope rejected", slog.String("error", err.Error()))
		return nil, fmt.Errorf("decode request: %w", err)
	}
	if g.metrics != nil {
		g.metrics.PacketProcessed(pkt.Version)
	}

	resp := &amf.Packet{Version: responseVersion(pkt.Version)}

	// Packet-level credentials header. On failure every body reports
	// the same authentication error and is otherwise skipped.
	authErr := g.processHeaders(pkt, resp)

	for i := range pkt.Bodies {
		start := time.Now()
		out, failed := g.handleBody(&pkt.Bodies[i], resp.Version, authErr)
		resp.Bodies = append(resp.Bodies, out)

		if g.metrics != nil {
			outcome := outcomeResult
			if failed {
				outcome = outcomeStatus
			}
			g.metrics.BodyDispatched(outcome, time.Since(start).Seconds())
		}
	}

	return g.encodeResponse(resp)
}

// responseVersion picks the response encoding from the request
// encoding; the FMS sentinel responds as AMF0.
func responseVersion(requested uint16) uint16 {
	if requested == amf.EncodingAMF3 {
		return amf.EncodingAMF3
	}
	return amf.EncodingAMF0
}

// encodeResponse writes the response packet, replacing any body whose
// value fails to encode with an error payload and retrying. A body
// whose replacement also fails is nulled out so the loop terminates.
func (g *Gateway) encodeResponse(resp *amf.Packet) ([]byte, error) {
	replaced := make(map[int]bool)
	for {
		out, err := amf.WritePacket(resp, g.registry)
		if err == nil {
			return out, nil
		}

		var bodyErr *amf.BodyEncodeError
		if !errors.As(err, &bodyErr) {
			return nil, fmt.Errorf("encode response: %w", err)
		}

		idx := bodyErr.Index
		g.logger.Warn("response body failed to encode",
			slog.Int("body", idx),
			slog.String("error", bodyErr.Err.Error()),
		)
		if replaced[idx] {
			resp.Bodies[idx].Data = nil
			continue
		}
		replaced[idx] = true
		resp.Bodies[idx] = g.errorBody(statusTarget(resp.Bodies[idx].TargetURI),
			resp.Version, bodyErr.Err)
	}
}

// statusTarget strips the onResult (or onStatus) suffix from the target
// of a body that failed after dispatch succeeded, giving back the
// response URI that errorBody re-targets to onStatus.
func statusTarget(target string) string {
	if base, ok := strings.CutSuffix(target, amf.SuffixOnResult); ok {
		return base
	}
	return strings.TrimSuffix(target, amf.SuffixOnStatus)
}

// -------------------------------------------------------------------------
// Headers
// -------------------------------------------------------------------------

// processHeaders runs the credentials header, appending the
// persistent-header response that clears client credentials after a
// successful login. The returned error, when non-nil, poisons every
// body in the packet.
func (g *Gateway) processHeaders(pkt *amf.Packet, resp *amf.Packet) error {
	for _, h := range pkt.Headers {
		if h.Name != amf.HeaderCredentials {
			continue
		}

		userid, password, err := credentialsFrom(h.Data)
		if err != nil {
			return err
		}
		if err := g.login(userid, password); err != nil {
			return err
		}

		// Ask the client to stop replaying the credentials header.
		clear := amf.NewObject()
		clear.Dynamic.Set("name", amf.HeaderCredentials)
		clear.Dynamic.Set("mustUnderstand", false)
		clear.Dynamic.Set("data", nil)
		resp.Headers = append(resp.Headers, amf.Header{
			Name: amf.HeaderRequestPersistentHeader,
			Data: clear,
		})
	}
	return nil
}

// credentialsFrom extracts userid/password from the header record.
func credentialsFrom(data amf.Value) (userid, password string, err error) {
	obj, ok := data.(*amf.Object)
	if !ok {
		return "", "", ErrBadCredentialsHeader
	}
	u, _ := obj.Field("userid")
	p, _ := obj.Field("password")
	us, uok := u.(string)
	ps, pok := p.(string)
	if !uok || !pok {
		return "", "", ErrBadCredentialsHeader
	}
	return us, ps, nil
}

// login runs one authentication attempt through the configured backend.
func (g *Gateway) login(userid, password string) error {
	if g.auth == nil {
		return ErrNoAuthenticator
	}
	g.auth.SetCredentials(userid, password)
	res, err := g.auth.Authenticate()
	if err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}
	if !res.Valid {
		if g.metrics != nil {
			g.metrics.AuthFailure()
		}
		if len(res.Messages) > 0 {
			return fmt.Errorf("%s: %w", strings.Join(res.Messages, "; "), ErrAuthFailed)
		}
		return ErrAuthFailed
	}
	return nil
}

// -------------------------------------------------------------------------
// Bodies
// -------------------------------------------------------------------------

// handleBody dispatches one request body and builds its response body.
// failed reports whether the response is an error (onStatus) body.
// Errors never propagate: per-body isolation converts them into error
// responses so sibling bodies still dispatch.
func (g *Gateway) handleBody(body *amf.Body, version uint16, authErr error) (out amf.Body, failed bool) {
	data := unwrapMessaging(body.Data)

	switch msg := data.(type) {
	case *CommandMessage:
		if authErr != nil {
			return g.flexErrorBody(body, &msg.AbstractMessage, faultCodeAuth, authErr), true
		}
		ack, err := g.runCommand(msg)
		if err != nil {
			return g.flexErrorBody(body, &msg.AbstractMessage, faultCodeProcessing, err), true
		}
		return g.resultBody(body, ack), false

	case *RemotingMessage:
		if authErr != nil {
			return g.flexErrorBody(body, &msg.AbstractMessage, faultCodeAuth, authErr), true
		}
		result, err := g.dispatch(msg.Source, msg.Operation, argsOf(msg.Body))
		if err != nil {
			return g.flexErrorBody(body, &msg.AbstractMessage, faultCodeFor(err), err), true
		}
		return g.resultBody(body, newAcknowledge(msg.MessageID, msg.ClientID, result)), false

	default:
		if authErr != nil {
			return g.errorBody(body.ResponseURI, version, authErr), true
		}
		source, method := splitTarget(body.TargetURI)
		result, err := g.dispatch(source, method, argsOf(data))
		if err != nil {
			return g.errorBody(body.ResponseURI, version, err), true
		}
		return amf.Body{
			TargetURI:   body.ResponseURI + amf.SuffixOnResult,
			ResponseURI: "",
			Data:        result,
		}, false
	}
}

// unwrapMessaging replaces an array whose first element is a flex
// message with that message (AMF3 messaging bodies arrive wrapped).
func unwrapMessaging(data amf.Value) amf.Value {
	arr, ok := data.(*amf.Array)
	if !ok || len(arr.Dense) == 0 {
		return data
	}
	switch arr.Dense[0].(type) {
	case *CommandMessage, *RemotingMessage:
		return arr.Dense[0]
	}
	return data
}

// argsOf normalizes a body payload into an argument list.
func argsOf(data amf.Value) []amf.Value {
	switch v := data.(type) {
	case nil:
		return nil
	case *amf.Array:
		return v.Dense
	case []amf.Value:
		return v
	default:
		return []amf.Value{v}
	}
}

// splitTarget splits a targetURI on its last dot into source and
// method; a bare name is all method.
func splitTarget(target string) (source, method string) {
	if idx := strings.LastIndexByte(target, '.'); idx >= 0 {
		return target[:idx], target[idx+1:]
	}
	return "", target
}

// resultBody frames a successful response.
func (g *Gateway) resultBody(req *amf.Body, data amf.Value) amf.Body {
	return amf.Body{
		TargetURI:   req.ResponseURI + amf.SuffixOnResult,
		ResponseURI: "",
		Data:        data,
	}
}

// -------------------------------------------------------------------------
// Dispatch
// -------------------------------------------------------------------------

// dispatch resolves and invokes one procedure: alias translation,
// table lookup with the resolver fallback, the ACL gate, then the
// invocable itself.
func (g *Gateway) dispatch(source, method string, args []amf.Value) (amf.Value, error) {
	src := source
	if src != "" {
		if mapped, ok := g.registry.MappedClassName(src); ok {
			src = mapped
		}
	}

	qualified := method
	if src != "" {
		qualified = src + "." + method
	}

	d, ok := g.table.Lookup(qualified)
	if !ok && src != "" && g.resolver != nil {
		if svc, err := g.resolver.Resolve(src); err == nil {
			if err := g.table.RegisterService(svc, src); err != nil {
				g.logger.Warn("resolver registration failed",
					slog.String("source", src),
					slog.String("error", err.Error()),
				)
			}
			d, ok = g.table.Lookup(qualified)
		}
	}
	if !ok {
		return nil, &MethodNotFoundError{Method: method}
	}

	if err := g.checkACL(src, method); err != nil {
		return nil, err
	}

	result, err := d.Invoke(args)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// checkACL enforces access control. Unauthenticated callers assume
// GuestRole when the ACL registers it; otherwise they are denied.
// A source registered as an ACL resource scopes the check; the method
// name is the privilege.
func (g *Gateway) checkACL(source, method string) error {
	if g.access == nil {
		return nil
	}

	var role string
	if g.auth != nil && g.auth.HasIdentity() {
		role = g.auth.GetIdentity().Role
	} else {
		if !g.access.HasRole(GuestRole) {
			if g.metrics != nil {
				g.metrics.ACLDenied()
			}
			return fmt.Errorf("no identity and no guest role: %w", ErrAccessDenied)
		}
		role = GuestRole
	}

	resource := ""
	if source != "" && g.access.HasResource(source) {
		resource = source
	}

	if !g.access.IsAllowed(role, resource, method) {
		if g.metrics != nil {
			g.metrics.ACLDenied()
		}
		return fmt.Errorf("role %q may not call %s.%s: %w", role, source, method, ErrAccessDenied)
	}
	return nil
}

// -------------------------------------------------------------------------
// Command State Machine
// -------------------------------------------------------------------------

// runCommand executes one CommandMessage operation. Commands are
// stateless per call; LOGIN and LOGOUT mutate only the authenticator.
func (g *Gateway) runCommand(msg *CommandMessage) (*AcknowledgeMessage, error) {
	switch msg.Operation {
	case CommandClientPing, CommandDisconnect:
		return newAcknowledge(msg.MessageID, msg.ClientID, nil), nil

	case CommandLogin:
		body, ok := msg.Body.(string)
		if !ok {
			return nil, ErrBadLoginBody
		}
		raw, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return nil, fmt.Errorf("decode login body: %w", ErrBadLoginBody)
		}
		userid, password, ok := strings.Cut(string(raw), ":")
		if !ok {
			return nil, ErrBadLoginBody
		}
		if err := g.login(userid, password); err != nil {
			return nil, err
		}

		ackBody := amf.Value(nil)
		if id := g.auth.GetIdentity(); id != nil && id.Token != "" {
			ackBody = id.ID + ":" + id.Token
		}
		return newAcknowledge(msg.MessageID, msg.ClientID, ackBody), nil

	case CommandLogout:
		if g.auth != nil {
			g.auth.ClearIdentity()
		}
		return newAcknowledge(msg.MessageID, msg.ClientID, nil), nil

	default:
		return nil, &CommandNotImplementedError{Operation: msg.Operation}
	}
}

// -------------------------------------------------------------------------
// Error Responses
// -------------------------------------------------------------------------

// faultCodeFor classifies an error into the client-visible fault code.
func faultCodeFor(err error) string {
	if errors.Is(err, ErrAuthFailed) || errors.Is(err, ErrAccessDenied) {
		return faultCodeAuth
	}
	return faultCodeProcessing
}

// flexErrorBody builds an AMF3 ErrorMessage response body.
func (g *Gateway) flexErrorBody(req *amf.Body, msg *AbstractMessage, faultCode string, err error) amf.Body {
	faultString := err.Error()
	faultDetail := fmt.Sprintf("%+v", err)
	if g.production {
		faultString = ""
		faultDetail = ""
	}
	em := newErrorMessage(msg.MessageID, faultCode, faultString, faultDetail)
	em.ClientID = msg.ClientID
	return amf.Body{
		TargetURI:   req.ResponseURI + amf.SuffixOnStatus,
		ResponseURI: "",
		Data:        em,
	}
}

// errorBody builds an error response body: an anonymous status record
// for AMF0 callers, an ErrorMessage for AMF3 packets that failed
// outside the flex message path.
func (g *Gateway) errorBody(responseURI string, version uint16, err error) amf.Body {
	if version == amf.EncodingAMF3 {
		em := newErrorMessage("", faultCodeFor(err), err.Error(), "")
		if g.production {
			em.FaultString = ""
		}
		return amf.Body{
			TargetURI: responseURI + amf.SuffixOnStatus,
			Data:      em,
		}
	}

	status := amf.NewObject()
	description := err.Error()
	detail := ""
	line := 0
	if g.production {
		description = ""
	}
	status.Dynamic.Set("description", description)
	status.Dynamic.Set("detail", detail)
	status.Dynamic.Set("line", line)
	status.Dynamic.Set("code", faultCodeFor(err))
	return amf.Body{
		TargetURI: responseURI + amf.SuffixOnStatus,
		Data:      status,
	}
}
