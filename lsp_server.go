// sigil/lsp_server.go
// Implements the Language Server Protocol (LSP) server for signature help.
package sigil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sourcegraph/jsonrpc2"
)

// ============================================================================
// LSP Server Implementation
// ============================================================================

// Server represents the LSP server instance. Document state lives in the
// workspace; the server owns the wire protocol and request lifecycle.
type Server struct {
	conn           *jsonrpc2.Conn
	logger         *slog.Logger
	engine         *Engine
	workspace      *Workspace
	config         Config
	clientCaps     ClientCapabilities
	serverInfo     *ServerInfo
	requestTracker *RequestTracker
}

// NewServer creates a new LSP server instance.
func NewServer(engine *Engine, workspace *Workspace, config Config, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Server{
		logger:    logger,
		engine:    engine,
		workspace: workspace,
		config:    config,
		serverInfo: &ServerInfo{
			Name:    "Sigil LSP",
			Version: version,
		},
		requestTracker: NewRequestTracker(),
	}
}

// Run starts the LSP server, listening on the given reader/writer (normally
// stdin/stdout). Blocks until the connection closes.
func (s *Server) Run(r io.Reader, w io.Writer) {
	s.logger.Info("Starting LSP server run loop")

	stream := &stdrwc{r: r, w: w}
	objectStream := jsonrpc2.NewPlainObjectStream(stream)
	handler := jsonrpc2.HandlerWithError(s.handle)

	s.conn = jsonrpc2.NewConn(context.Background(), objectStream, handler)
	s.logger.Info("JSON-RPC connection established")

	<-s.conn.DisconnectNotify()
	s.logger.Info("JSON-RPC connection closed")
}

// stdrwc is a simple ReadWriteCloser that wraps stdin/stdout without closing them.
type stdrwc struct {
	r io.Reader
	w io.Writer
}

func (s *stdrwc) Read(p []byte) (int, error)  { return s.r.Read(p) }
func (s *stdrwc) Write(p []byte) (int, error) { return s.w.Write(p) }
func (s *stdrwc) Close() error                { return nil }

// handle routes incoming LSP requests/notifications to appropriate methods.
func (s *Server) handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (result any, err error) {
	methodLogger := s.logger.With("method", req.Method, "is_notification", req.Notif)
	isRequest := req.ID != (jsonrpc2.ID{})
	if isRequest {
		methodLogger = methodLogger.With("req_id", req.ID)
	}
	methodLogger.Debug("Received request/notification")

	// Panic recovery
	defer func() {
		if r := recover(); r != nil {
			stack := string(debug.Stack())
			methodLogger.Error("Panic recovered in handler", "panic_value", r, "stack", stack)

			panicData, marshalErr := json.Marshal(fmt.Sprintf("Panic: %v", r))
			if marshalErr != nil {
				panicData = json.RawMessage(`"failed to marshal panic data"`)
			}
			rawPanicData := json.RawMessage(panicData)

			err = &jsonrpc2.Error{
				Code:    int64(JsonRpcInternalError),
				Message: fmt.Sprintf("Internal server error in method %s", req.Method),
				Data:    &rawPanicData,
			}
			result = nil
		}
	}()

	// Request cancellation handling
	if isRequest {
		ctx = s.requestTracker.Add(req.ID, ctx)
		defer s.requestTracker.Remove(req.ID)
	}
	select {
	case <-ctx.Done():
		methodLogger.Warn("Request context cancelled before processing started", "error", ctx.Err())
		return nil, &jsonrpc2.Error{Code: int64(JsonRpcRequestCancelled), Message: "Request cancelled"}
	default:
	}

	unmarshalParams := func(target any) error {
		if req.Params == nil {
			return errors.New("params field is null")
		}
		return json.Unmarshal(*req.Params, target)
	}

	switch req.Method {
	case "initialize":
		var params InitializeParams
		if err := unmarshalParams(&params); err != nil {
			methodLogger.Error("Failed to unmarshal initialize params", "error", err)
			return nil, &jsonrpc2.Error{Code: int64(JsonRpcInvalidParams), Message: fmt.Sprintf("Invalid initialize params: %v", err)}
		}
		s.clientCaps = params.Capabilities
		return s.handleInitialize(ctx, params)

	case "initialized":
		methodLogger.Info("Client initialized notification received")
		return nil, nil

	case "shutdown":
		methodLogger.Info("Shutdown request received")
		return nil, nil

	case "exit":
		methodLogger.Info("Exit notification received")
		if s.conn != nil {
			s.conn.Close()
		}
		return nil, nil

	case "textDocument/didOpen":
		var params DidOpenTextDocumentParams
		if err := unmarshalParams(&params); err != nil {
			methodLogger.Error("Failed to unmarshal didOpen params", "error", err)
			return nil, nil // Ignore notification errors
		}
		return s.handleDidOpen(ctx, params)

	case "textDocument/didChange":
		var params DidChangeTextDocumentParams
		if err := unmarshalParams(&params); err != nil {
			methodLogger.Error("Failed to unmarshal didChange params", "error", err)
			return nil, nil // Ignore notification errors
		}
		return s.handleDidChange(ctx, params)

	case "textDocument/didClose":
		var params DidCloseTextDocumentParams
		if err := unmarshalParams(&params); err != nil {
			methodLogger.Error("Failed to unmarshal didClose params", "error", err)
			return nil, nil // Ignore notification errors
		}
		return s.handleDidClose(ctx, params)

	case "textDocument/signatureHelp":
		var params SignatureHelpParams
		if err := unmarshalParams(&params); err != nil {
			methodLogger.Error("Failed to unmarshal signatureHelp params", "error", err)
			return nil, &jsonrpc2.Error{Code: int64(JsonRpcInvalidParams), Message: fmt.Sprintf("Invalid signatureHelp params: %v", err)}
		}
		return s.handleSignatureHelp(ctx, params)

	case "$/cancelRequest":
		var params CancelParams
		if err := unmarshalParams(&params); err != nil {
			methodLogger.Error("Failed to unmarshal cancelRequest params", "error", err)
			return nil, nil
		}
		var cancelID jsonrpc2.ID
		switch idVal := params.ID.(type) {
		case float64:
			cancelID = jsonrpc2.ID{Num: uint64(idVal)}
		case string:
			cancelID = jsonrpc2.ID{Str: idVal, IsString: true}
		default:
			methodLogger.Warn("Could not determine type of cancel request ID", "id_value", params.ID, "id_type", fmt.Sprintf("%T", params.ID))
			return nil, nil
		}
		s.requestTracker.Cancel(cancelID)
		methodLogger.Info("Cancellation request processed", "cancelled_id", cancelID)
		return nil, nil

	default:
		methodLogger.Warn("Unhandled LSP method")
		return nil, &jsonrpc2.Error{Code: int64(JsonRpcMethodNotFound), Message: fmt.Sprintf("Method not supported: %s", req.Method)}
	}
}

// ============================================================================
// LSP Method Handlers
// ============================================================================

func (s *Server) handleInitialize(ctx context.Context, params InitializeParams) (any, error) {
	clientName := ""
	clientVersion := ""
	if params.ClientInfo != nil {
		clientName = params.ClientInfo.Name
		clientVersion = params.ClientInfo.Version
	}
	s.logger.Info("Handling initialize request", "client_name", clientName, "client_version", clientVersion)

	result := InitializeResult{
		Capabilities: ServerCapabilities{
			TextDocumentSync: &TextDocumentSyncOptions{
				OpenClose: true,
				Change:    TextDocumentSyncKindFull,
			},
			SignatureHelpProvider: &SignatureHelpOptions{
				TriggerCharacters: []string{"(", ","},
			},
		},
		ServerInfo: s.serverInfo,
	}

	// Preload the workspace so cross-file callees resolve from the start.
	if params.RootURI != "" {
		if rootPath, pathErr := ValidateURI(string(params.RootURI)); pathErr == nil {
			go func() {
				if _, loadErr := s.workspace.LoadDirectory(rootPath); loadErr != nil {
					s.logger.Warn("Workspace preload failed", "root", rootPath, "error", loadErr)
				}
			}()
		} else {
			s.logger.Warn("Ignoring unusable rootUri", "uri", params.RootURI, "error", pathErr)
		}
	}

	s.logger.Info("Initialization successful")
	return result, nil
}

func (s *Server) handleDidOpen(ctx context.Context, params DidOpenTextDocumentParams) (any, error) {
	uri := params.TextDocument.URI
	version := params.TextDocument.Version
	content := []byte(params.TextDocument.Text)
	s.logger.Info("Handling textDocument/didOpen", "uri", uri, "version", version, "size", len(content))

	id, pathErr := s.fileIDForURI(uri)
	if pathErr != nil {
		s.logger.Error("Invalid URI in didOpen", "uri", uri, "error", pathErr)
		s.sendShowMessage(MessageTypeError, fmt.Sprintf("Invalid document URI: %v", pathErr))
		return nil, nil
	}

	s.workspace.SetFile(id, content, version)
	go s.publishSyntaxDiagnostics(uri, id, version)
	return nil, nil
}

func (s *Server) handleDidChange(ctx context.Context, params DidChangeTextDocumentParams) (any, error) {
	uri := params.TextDocument.URI
	version := params.TextDocument.Version
	if len(params.ContentChanges) == 0 {
		s.logger.Warn("Received didChange notification with no content changes", "uri", uri, "version", version)
		return nil, nil
	}
	// Full sync: the last change carries the entire document.
	newContent := []byte(params.ContentChanges[len(params.ContentChanges)-1].Text)
	s.logger.Info("Handling textDocument/didChange", "uri", uri, "new_version", version, "new_size", len(newContent))

	id, pathErr := s.fileIDForURI(uri)
	if pathErr != nil {
		s.logger.Error("Invalid URI in didChange", "uri", uri, "error", pathErr)
		s.sendShowMessage(MessageTypeError, fmt.Sprintf("Invalid document URI: %v", pathErr))
		return nil, nil
	}

	if _, current, tracked := s.workspace.Content(id); tracked && version <= current && version != 0 {
		s.logger.Warn("Ignoring out-of-order didChange notification", "uri", uri, "received_version", version, "current_version", current)
		return nil, nil
	}
	s.workspace.SetFile(id, newContent, version)
	go s.publishSyntaxDiagnostics(uri, id, version)
	return nil, nil
}

func (s *Server) handleDidClose(ctx context.Context, params DidCloseTextDocumentParams) (any, error) {
	uri := params.TextDocument.URI
	s.logger.Info("Handling textDocument/didClose", "uri", uri)

	if id, pathErr := s.fileIDForURI(uri); pathErr == nil {
		s.workspace.RemoveFile(id)
	}
	s.publishDiagnostics(uri, nil, []LspDiagnostic{}) // Clear diagnostics
	return nil, nil
}

// handleSignatureHelp answers textDocument/signatureHelp. Absence of a
// signature is a null result, never an error.
func (s *Server) handleSignatureHelp(ctx context.Context, params SignatureHelpParams) (any, error) {
	uri := params.TextDocument.URI
	lspPos := params.Position
	helpLogger := s.logger.With("uri", uri, "lsp_line", lspPos.Line, "lsp_char", lspPos.Character)
	helpLogger.Info("Handling textDocument/signatureHelp")

	id, pathErr := s.fileIDForURI(uri)
	if pathErr != nil {
		helpLogger.Error("Invalid file URI", "error", pathErr)
		return nil, fmt.Errorf("invalid file URI: %w", pathErr)
	}

	content, _, tracked := s.workspace.Content(id)
	if !tracked {
		helpLogger.Warn("Signature help request for unknown file")
		return nil, fmt.Errorf("document not open: %s", uri)
	}

	offset, posErr := LspPositionToByteOffset(content, lspPos)
	if posErr != nil {
		helpLogger.Error("Failed to convert LSP position to byte offset", "error", posErr)
		return nil, nil
	}

	queryCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	info, queryErr := s.engine.SignatureHelp(queryCtx, FilePosition{File: id, Offset: offset})
	if queryErr != nil {
		if errors.Is(queryErr, context.Canceled) {
			helpLogger.Info("Signature help request cancelled")
			return nil, &jsonrpc2.Error{Code: int64(JsonRpcRequestCancelled), Message: "Request cancelled"}
		}
		if errors.Is(queryErr, context.DeadlineExceeded) {
			helpLogger.Warn("Signature help request timed out")
			return nil, nil
		}
		helpLogger.Error("Signature help query failed", "error", queryErr)
		return nil, nil
	}
	if info == nil {
		helpLogger.Debug("No signature help at position")
		return nil, nil
	}

	markdown := false
	if s.clientCaps.TextDocument != nil &&
		s.clientCaps.TextDocument.SignatureHelp != nil &&
		s.clientCaps.TextDocument.SignatureHelp.SignatureInformation != nil {
		for _, kind := range s.clientCaps.TextDocument.SignatureHelp.SignatureInformation.DocumentationFormat {
			if kind == MarkupKindMarkdown {
				markdown = true
				break
			}
		}
	}
	helpLogger.Info("Signature help resolved", "label", info.Label, "params", len(info.Parameters))
	return callInfoToSignatureHelp(info, markdown), nil
}

func (s *Server) fileIDForURI(uri DocumentURI) (FileID, error) {
	path, err := ValidateURI(string(uri))
	if err != nil {
		return "", err
	}
	return FileID(path), nil
}

// ============================================================================
// LSP Notification Sending Helpers
// ============================================================================

func (s *Server) sendShowMessage(msgType MessageType, message string) {
	if s.conn == nil {
		s.logger.Warn("Cannot send showMessage: connection is nil")
		return
	}
	params := ShowMessageParams{Type: msgType, Message: message}
	if err := s.conn.Notify(context.Background(), "window/showMessage", params); err != nil {
		s.logger.Error("Failed to send window/showMessage notification", "error", err, "message_type", msgType)
	}
}

func (s *Server) publishDiagnostics(uri DocumentURI, version *int, diagnostics []LspDiagnostic) {
	if s.conn == nil {
		s.logger.Warn("Cannot publish diagnostics: connection is nil", "uri", uri)
		return
	}
	params := PublishDiagnosticsParams{
		URI:         uri,
		Version:     version,
		Diagnostics: diagnostics,
	}
	if err := s.conn.Notify(context.Background(), "textDocument/publishDiagnostics", params); err != nil {
		s.logger.Error("Failed to send textDocument/publishDiagnostics notification", "error", err, "uri", uri, "diagnostic_count", len(diagnostics))
	} else {
		s.logger.Debug("Published diagnostics", "uri", uri, "diagnostic_count", len(diagnostics), "version", version)
	}
}

// publishSyntaxDiagnostics parses the current document state and reports
// regions the parser rejected.
func (s *Server) publishSyntaxDiagnostics(uri DocumentURI, id FileID, version int) {
	diagCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	snap, err := s.workspace.Snapshot(diagCtx, id)
	if err != nil {
		s.logger.Warn("Cannot compute diagnostics", "uri", uri, "error", err)
		return
	}
	lspDiagnostics := []LspDiagnostic{}
	for _, d := range syntaxDiagnostics(snap.Root()) {
		lspDiagnostics = append(lspDiagnostics, diagnosticToLsp(snap.Content, d))
	}
	s.publishDiagnostics(uri, &version, lspDiagnostics)
}

// ============================================================================
// Request Cancellation Tracker
// ============================================================================

// RequestTracker manages cancellation contexts for ongoing LSP requests.
type RequestTracker struct {
	mu       sync.Mutex
	requests map[jsonrpc2.ID]context.CancelFunc
}

// NewRequestTracker creates a new tracker.
func NewRequestTracker() *RequestTracker {
	return &RequestTracker{
		requests: make(map[jsonrpc2.ID]context.CancelFunc),
	}
}

// Add registers a request ID and returns a context cancelled when the client
// sends $/cancelRequest for that ID.
func (rt *RequestTracker) Add(id jsonrpc2.ID, ctx context.Context) context.Context {
	if id == (jsonrpc2.ID{}) {
		return ctx // Ignore notifications
	}
	reqCtx, cancel := context.WithCancel(ctx)
	rt.mu.Lock()
	rt.requests[id] = cancel
	rt.mu.Unlock()
	return reqCtx
}

// Remove deregisters a request ID, releasing its derived context. Without
// the cancel call every finished request would stay registered on the
// connection-lifetime parent context.
func (rt *RequestTracker) Remove(id jsonrpc2.ID) {
	if id == (jsonrpc2.ID{}) {
		return
	}
	rt.mu.Lock()
	cancel, found := rt.requests[id]
	if found {
		delete(rt.requests, id)
	}
	rt.mu.Unlock()

	if found {
		cancel() // Call outside lock
	}
}

// Cancel finds the cancel function for a request ID and calls it.
func (rt *RequestTracker) Cancel(id jsonrpc2.ID) {
	if id == (jsonrpc2.ID{}) {
		slog.Debug("Cancel request ignored for unset ID")
		return
	}
	rt.mu.Lock()
	cancel, found := rt.requests[id]
	if found {
		delete(rt.requests, id)
	}
	rt.mu.Unlock()

	if found {
		slog.Debug("Calling cancel function for request", "id", id)
		cancel() // Call outside lock
	} else {
		slog.Debug("Cancel function not found for request ID", "id", id)
	}
}

// Count returns the number of currently tracked requests.
func (rt *RequestTracker) Count() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return len(rt.requests)
}
