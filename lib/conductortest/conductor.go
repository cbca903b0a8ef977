// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package conductortest

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/bureau-foundation/holoenv/lib/binhash"
	"github.com/bureau-foundation/holoenv/lib/clock"
	"github.com/bureau-foundation/holoenv/lib/codec"
	"github.com/bureau-foundation/holoenv/lib/conductorapi"
	"github.com/bureau-foundation/holoenv/lib/holohash"
	"github.com/bureau-foundation/holoenv/lib/wschannel"
)

// DefaultRole is the role name every installed app gets one cell for.
const DefaultRole = "main"

// ZomeHandler implements one zome function. The returned value is
// CBOR-encoded as the zome_called payload; a returned error becomes an
// "error" response of kind "zome_error".
type ZomeHandler func(call conductorapi.ZomeCall) (any, error)

// Options configures New.
type Options struct {
	// Clock decides whether zome calls have expired. Defaults to the
	// real clock.
	Clock clock.Clock

	// AdminOrigins restricts the admin interface. Defaults to any
	// origin.
	AdminOrigins *conductorapi.AllowedOrigins

	// AdminPort fixes the admin interface's loopback port. Zero picks a
	// free one.
	AdminPort uint16

	Logger *slog.Logger
}

// Conductor is a fake conductor. Create with New and stop with Close.
type Conductor struct {
	clock  clock.Clock
	logger *slog.Logger
	admin  *httptest.Server

	mu          sync.Mutex
	apps        map[string]*conductorapi.AppInfo
	order       []string
	nonces      map[conductorapi.Nonce256]struct{}
	handlers    map[string]ZomeHandler
	overrides   map[string]conductorapi.Response
	requests    map[string]int
	interfaces  []*httptest.Server
	connections map[*connection]struct{}
}

type appInterface struct {
	installedAppID string
}

// connection is one accepted websocket. Writes are serialized because
// signals can be pushed while a response is being written.
type connection struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	isApp   bool
}

func (c *connection) send(envelope wschannel.Envelope) error {
	frame, err := codec.Marshal(envelope)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.BinaryMessage, frame)
}

// New starts a fake conductor with its admin interface listening on
// the loopback port from options, or a random one. Like httptest, it
// panics if the port cannot be bound.
func New(options Options) *Conductor {
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.DiscardHandler)
	}
	adminOrigins := conductorapi.AnyOrigin()
	if options.AdminOrigins != nil {
		adminOrigins = *options.AdminOrigins
	}

	conductor := &Conductor{
		clock:       options.Clock,
		logger:      options.Logger,
		apps:        make(map[string]*conductorapi.AppInfo),
		nonces:      make(map[conductorapi.Nonce256]struct{}),
		handlers:    make(map[string]ZomeHandler),
		overrides:   make(map[string]conductorapi.Response),
		requests:    make(map[string]int),
		connections: make(map[*connection]struct{}),
	}
	handler := conductor.websocketHandler(adminOrigins, conductor.handleAdmin, false)
	if options.AdminPort == 0 {
		conductor.admin = httptest.NewServer(handler)
		return conductor
	}
	listener, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(int(options.AdminPort))))
	if err != nil {
		panic(fmt.Sprintf("conductortest: binding admin port %d: %v", options.AdminPort, err))
	}
	conductor.admin = httptest.NewUnstartedServer(handler)
	conductor.admin.Listener.Close()
	conductor.admin.Listener = listener
	conductor.admin.Start()
	return conductor
}

// AdminPort returns the admin interface's port.
func (c *Conductor) AdminPort() uint16 {
	return serverPort(c.admin)
}

// AdminURL returns the admin interface's ws:// URL.
func (c *Conductor) AdminURL() string {
	return "ws" + strings.TrimPrefix(c.admin.URL, "http")
}

// HandleZome registers handler for zome/fn.
func (c *Conductor) HandleZome(zome, fn string, handler ZomeHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[zome+"/"+fn] = handler
}

// Override makes the conductor answer every request of kind with
// response instead of handling it.
func (c *Conductor) Override(kind string, response conductorapi.Response) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.overrides[kind] = response
}

// Requests returns how many requests of kind have been received.
func (c *Conductor) Requests(kind string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requests[kind]
}

// App returns a copy of the named app's info.
func (c *Conductor) App(installedAppID string) (conductorapi.AppInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	app, exists := c.apps[installedAppID]
	if !exists {
		return conductorapi.AppInfo{}, false
	}
	return *app, true
}

// EmitSignal pushes payload as a signal to every open app connection.
func (c *Conductor) EmitSignal(payload any) error {
	encoded, err := codec.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding signal: %w", err)
	}
	c.mu.Lock()
	var targets []*connection
	for client := range c.connections {
		if client.isApp {
			targets = append(targets, client)
		}
	}
	c.mu.Unlock()

	var errs []error
	for _, target := range targets {
		if err := target.send(wschannel.Envelope{Type: wschannel.FrameSignal, Data: encoded}); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close stops every interface and drops every connection.
func (c *Conductor) Close() {
	c.mu.Lock()
	interfaces := c.interfaces
	c.interfaces = nil
	for client := range c.connections {
		client.conn.Close()
	}
	c.mu.Unlock()

	for _, server := range interfaces {
		server.Close()
	}
	c.admin.Close()
}

func (c *Conductor) websocketHandler(origins conductorapi.AllowedOrigins, dispatch func(conductorapi.Request) conductorapi.Response, isApp bool) http.Handler {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || origins.Allows(origin)
		},
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			c.logger.Warn("websocket upgrade failed", "error", err)
			return
		}
		client := &connection{conn: conn, isApp: isApp}
		c.mu.Lock()
		c.connections[client] = struct{}{}
		c.mu.Unlock()
		defer func() {
			c.mu.Lock()
			delete(c.connections, client)
			c.mu.Unlock()
			conn.Close()
		}()
		c.serve(client, dispatch)
	})
}

func (c *Conductor) serve(client *connection, dispatch func(conductorapi.Request) conductorapi.Response) {
	for {
		_, message, err := client.conn.ReadMessage()
		if err != nil {
			return
		}
		var envelope wschannel.Envelope
		if err := codec.Unmarshal(message, &envelope); err != nil {
			c.logger.Warn("undecodable frame", "error", err)
			continue
		}
		if envelope.Type != wschannel.FrameRequest {
			continue
		}

		var request conductorapi.Request
		var response conductorapi.Response
		if err := codec.Unmarshal(envelope.Data, &request); err != nil {
			response = conductorapi.ErrorResponse("deserialization", err.Error())
		} else {
			response = c.handle(request, dispatch)
		}

		data, err := codec.Marshal(response)
		if err != nil {
			c.logger.Error("encoding response", "error", err)
			return
		}
		if err := client.send(wschannel.Envelope{Type: wschannel.FrameResponse, ID: envelope.ID, Data: data}); err != nil {
			return
		}
	}
}

func (c *Conductor) handle(request conductorapi.Request, dispatch func(conductorapi.Request) conductorapi.Response) conductorapi.Response {
	c.mu.Lock()
	c.requests[request.Type]++
	override, overridden := c.overrides[request.Type]
	c.mu.Unlock()
	if overridden {
		return override
	}
	return dispatch(request)
}

func (c *Conductor) handleAdmin(request conductorapi.Request) conductorapi.Response {
	switch request.Type {
	case conductorapi.RequestListApps:
		var payload conductorapi.ListAppsRequest
		if err := decodePayload(request, &payload); err != nil {
			return deserializationError(err)
		}
		return c.listApps(payload)
	case conductorapi.RequestInstallApp:
		var payload conductorapi.InstallAppPayload
		if err := decodePayload(request, &payload); err != nil {
			return deserializationError(err)
		}
		return c.installApp(payload)
	case conductorapi.RequestEnableApp:
		var payload conductorapi.EnableAppRequest
		if err := decodePayload(request, &payload); err != nil {
			return deserializationError(err)
		}
		return c.enableApp(payload)
	case conductorapi.RequestAttachAppInterface:
		var payload conductorapi.AttachAppInterfaceRequest
		if err := decodePayload(request, &payload); err != nil {
			return deserializationError(err)
		}
		return c.attachAppInterface(payload)
	default:
		return conductorapi.ErrorResponse("unsupported_request", fmt.Sprintf("admin interface does not handle %q", request.Type))
	}
}

func (c *Conductor) listApps(payload conductorapi.ListAppsRequest) conductorapi.Response {
	c.mu.Lock()
	apps := make([]conductorapi.AppInfo, 0, len(c.order))
	for _, id := range c.order {
		app := c.apps[id]
		if payload.StatusFilter != nil && app.Status != *payload.StatusFilter {
			continue
		}
		apps = append(apps, *app)
	}
	c.mu.Unlock()
	return mustResponse(conductorapi.ResponseAppsListed, apps)
}

func (c *Conductor) installApp(payload conductorapi.InstallAppPayload) conductorapi.Response {
	if payload.Source.Path == "" && len(payload.Source.Bundle) == 0 {
		return conductorapi.ErrorResponse("invalid_bundle", "install_app needs a bundle path or bundle bytes")
	}

	var installedAppID string
	switch {
	case payload.InstalledAppID != nil && *payload.InstalledAppID != "":
		installedAppID = *payload.InstalledAppID
	case payload.Source.Path != "":
		base := filepath.Base(payload.Source.Path)
		installedAppID = strings.TrimSuffix(base, filepath.Ext(base))
	default:
		return conductorapi.ErrorResponse("invalid_bundle", "an in-memory bundle needs an explicit installed_app_id")
	}

	var agent holohash.AgentPubKey
	if payload.AgentKey != nil {
		agent = *payload.AgentKey
	} else {
		publicKey, _, err := ed25519.GenerateKey(nil)
		if err != nil {
			return conductorapi.ErrorResponse("internal", err.Error())
		}
		agent, _ = holohash.NewAgentPubKey(publicKey)
	}

	var seed string
	if payload.NetworkSeed != nil {
		seed = *payload.NetworkSeed
	}
	source := payload.Source.Path
	if source == "" {
		source = string(payload.Source.Bundle)
	}
	dnaCore := binhash.HashDomain("holoenv.test.dna", []byte(source+"\x00"+seed))

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.apps[installedAppID]; exists {
		return conductorapi.ErrorResponse("app_already_installed", fmt.Sprintf("app %q is already installed", installedAppID))
	}
	app := &conductorapi.AppInfo{
		InstalledAppID: installedAppID,
		AgentPubKey:    agent,
		Status:         conductorapi.AppStatusDisabled,
		CellInfo: map[string][]conductorapi.CellInfo{
			DefaultRole: {{
				CellID: conductorapi.CellID{DnaHash: holohash.NewDnaHash(dnaCore), AgentPubKey: agent},
				Name:   DefaultRole,
			}},
		},
	}
	c.apps[installedAppID] = app
	c.order = append(c.order, installedAppID)
	c.logger.Info("app installed", "installed_app_id", installedAppID, "agent", agent.String())
	return mustResponse(conductorapi.ResponseAppInstalled, *app)
}

func (c *Conductor) enableApp(payload conductorapi.EnableAppRequest) conductorapi.Response {
	c.mu.Lock()
	defer c.mu.Unlock()
	app, exists := c.apps[payload.InstalledAppID]
	if !exists {
		return conductorapi.ErrorResponse("app_not_installed", fmt.Sprintf("app %q is not installed", payload.InstalledAppID))
	}
	app.Status = conductorapi.AppStatusEnabled
	return mustResponse(conductorapi.ResponseAppEnabled, conductorapi.AppEnabled{App: *app, Errors: []conductorapi.CellError{}})
}

func (c *Conductor) attachAppInterface(payload conductorapi.AttachAppInterfaceRequest) conductorapi.Response {
	var port uint16
	if payload.Port != nil {
		port = *payload.Port
	}
	listener, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(int(port))))
	if err != nil {
		return conductorapi.ErrorResponse("interface_bind", err.Error())
	}

	scope := &appInterface{}
	if payload.InstalledAppID != nil {
		scope.installedAppID = *payload.InstalledAppID
	}
	server := httptest.NewUnstartedServer(c.websocketHandler(payload.AllowedOrigins, func(request conductorapi.Request) conductorapi.Response {
		return c.handleApp(scope, request)
	}, true))
	server.Listener.Close()
	server.Listener = listener
	server.Start()

	c.mu.Lock()
	c.interfaces = append(c.interfaces, server)
	c.mu.Unlock()
	return mustResponse(conductorapi.ResponseAppInterfaceAttached, conductorapi.AppInterfaceAttached{Port: serverPort(server)})
}

func (c *Conductor) handleApp(scope *appInterface, request conductorapi.Request) conductorapi.Response {
	if request.Type != conductorapi.RequestCallZome {
		return conductorapi.ErrorResponse("unsupported_request", fmt.Sprintf("app interface does not handle %q", request.Type))
	}
	var call conductorapi.ZomeCall
	if err := decodePayload(request, &call); err != nil {
		return deserializationError(err)
	}

	if err := conductorapi.VerifyZomeCall(call, c.clock.Now()); err != nil {
		kind := "invalid_signature"
		if errors.Is(err, conductorapi.ErrCallExpired) {
			kind = "call_expired"
		}
		return conductorapi.ErrorResponse(kind, err.Error())
	}

	c.mu.Lock()
	if _, seen := c.nonces[call.Nonce]; seen {
		c.mu.Unlock()
		return conductorapi.ErrorResponse("nonce_reused", fmt.Sprintf("nonce %s has already been used", call.Nonce))
	}
	c.nonces[call.Nonce] = struct{}{}
	app := c.appForCell(call.CellID)
	handler := c.handlers[call.ZomeName+"/"+call.FnName]
	c.mu.Unlock()

	if app == nil {
		return conductorapi.ErrorResponse("cell_missing", fmt.Sprintf("no enabled app has cell %s", call.CellID))
	}
	if scope.installedAppID != "" && scope.installedAppID != app.InstalledAppID {
		return conductorapi.ErrorResponse("unauthorized", fmt.Sprintf("interface is bound to app %q", scope.installedAppID))
	}
	if handler == nil {
		return conductorapi.ErrorResponse("zome_fn_missing", fmt.Sprintf("no function %s/%s", call.ZomeName, call.FnName))
	}

	output, err := handler(call)
	if err != nil {
		return conductorapi.ErrorResponse("zome_error", err.Error())
	}
	// A nil output still travels as CBOR null so callers can decode it.
	encoded, err := codec.Marshal(output)
	if err != nil {
		return conductorapi.ErrorResponse("serialization", err.Error())
	}
	return conductorapi.Response{Type: conductorapi.ResponseZomeCalled, Data: encoded}
}

// appForCell returns the enabled app owning cellID. Caller holds c.mu.
func (c *Conductor) appForCell(cellID conductorapi.CellID) *conductorapi.AppInfo {
	for _, app := range c.apps {
		if app.Status != conductorapi.AppStatusEnabled {
			continue
		}
		for _, cells := range app.CellInfo {
			for _, cell := range cells {
				if cell.CellID == cellID {
					return app
				}
			}
		}
	}
	return nil
}

func decodePayload(request conductorapi.Request, out any) error {
	if len(request.Data) == 0 {
		return nil
	}
	return codec.Unmarshal(request.Data, out)
}

func deserializationError(err error) conductorapi.Response {
	return conductorapi.ErrorResponse("deserialization", err.Error())
}

func mustResponse(kind string, data any) conductorapi.Response {
	response, err := conductorapi.NewResponse(kind, data)
	if err != nil {
		return conductorapi.ErrorResponse("serialization", err.Error())
	}
	return response
}

func serverPort(server *httptest.Server) uint16 {
	return uint16(server.Listener.Addr().(*net.TCPAddr).Port)
}
