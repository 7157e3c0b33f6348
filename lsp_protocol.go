// sigil/lsp_protocol.go
// Contains LSP specific data structures used by the signature-help server.
package sigil

import "encoding/json"

// ============================================================================
// LSP Specific Structures
// ============================================================================

// DocumentURI represents the URI for a text document.
type DocumentURI string

// LSPPosition represents a 0-based line/character offset (LSP standard: UTF-16).
type LSPPosition struct {
	Line      uint32 `json:"line"`      // 0-based
	Character uint32 `json:"character"` // 0-based, UTF-16 offset
}

// LSPRange represents a range in a text document using LSP Positions (UTF-16).
type LSPRange struct {
	Start LSPPosition `json:"start"`
	End   LSPPosition `json:"end"`
}

// TextDocumentIdentifier identifies a specific text document.
type TextDocumentIdentifier struct {
	URI DocumentURI `json:"uri"`
}

// VersionedTextDocumentIdentifier identifies a specific version of a document.
type VersionedTextDocumentIdentifier struct {
	URI     DocumentURI `json:"uri"`
	Version int         `json:"version"`
}

// TextDocumentItem represents a text document.
type TextDocumentItem struct {
	URI        DocumentURI `json:"uri"`
	LanguageID string      `json:"languageId"`
	Version    int         `json:"version"`
	Text       string      `json:"text"`
}

// TextDocumentPositionParams is the shared shape of position-based requests.
type TextDocumentPositionParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Position     LSPPosition            `json:"position"`
}

// InitializeParams parameters for the initialize request.
type InitializeParams struct {
	ProcessID             int                `json:"processId,omitempty"`
	RootURI               DocumentURI        `json:"rootUri,omitempty"`
	ClientInfo            *ClientInfo        `json:"clientInfo,omitempty"`
	Capabilities          ClientCapabilities `json:"capabilities"`
	InitializationOptions json.RawMessage    `json:"initializationOptions,omitempty"`
}

// ClientInfo information about the client.
type ClientInfo struct {
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`
}

// ClientCapabilities capabilities provided by the client. Only the pieces
// this server consults are modelled.
type ClientCapabilities struct {
	TextDocument *TextDocumentClientCapabilities `json:"textDocument,omitempty"`
}

// TextDocumentClientCapabilities text document specific client capabilities.
type TextDocumentClientCapabilities struct {
	SignatureHelp *SignatureHelpClientCapabilities `json:"signatureHelp,omitempty"`
}

// SignatureHelpClientCapabilities client capabilities for signature help.
type SignatureHelpClientCapabilities struct {
	SignatureInformation *SignatureInformationClientCapabilities `json:"signatureInformation,omitempty"`
}

// SignatureInformationClientCapabilities client capabilities specific to
// signature information rendering.
type SignatureInformationClientCapabilities struct {
	DocumentationFormat []MarkupKind `json:"documentationFormat,omitempty"`
}

// InitializeResult result of the initialize request.
type InitializeResult struct {
	Capabilities ServerCapabilities `json:"capabilities"`
	ServerInfo   *ServerInfo        `json:"serverInfo,omitempty"`
}

// ServerInfo information about the server.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// ServerCapabilities capabilities provided by the server.
type ServerCapabilities struct {
	TextDocumentSync      *TextDocumentSyncOptions `json:"textDocumentSync,omitempty"`
	SignatureHelpProvider *SignatureHelpOptions    `json:"signatureHelpProvider,omitempty"`
}

// TextDocumentSyncOptions options for how text documents are synced.
type TextDocumentSyncOptions struct {
	OpenClose bool                 `json:"openClose,omitempty"`
	Change    TextDocumentSyncKind `json:"change,omitempty"`
}

// TextDocumentSyncKind defines how text document changes are synced.
type TextDocumentSyncKind int

const (
	TextDocumentSyncKindNone TextDocumentSyncKind = 0
	TextDocumentSyncKindFull TextDocumentSyncKind = 1
)

// SignatureHelpOptions server options for signature help.
type SignatureHelpOptions struct {
	TriggerCharacters   []string `json:"triggerCharacters,omitempty"`
	RetriggerCharacters []string `json:"retriggerCharacters,omitempty"`
}

// SignatureHelpParams parameters for textDocument/signatureHelp.
type SignatureHelpParams struct {
	TextDocumentPositionParams
}

// SignatureHelp is the response to textDocument/signatureHelp.
type SignatureHelp struct {
	Signatures      []SignatureInformation `json:"signatures"`
	ActiveSignature uint32                 `json:"activeSignature"`
	ActiveParameter *uint32                `json:"activeParameter,omitempty"`
}

// SignatureInformation describes one callable signature.
type SignatureInformation struct {
	Label           string                 `json:"label"`
	Documentation   *MarkupContent         `json:"documentation,omitempty"`
	Parameters      []ParameterInformation `json:"parameters"`
	ActiveParameter *uint32                `json:"activeParameter,omitempty"`
}

// ParameterInformation describes one parameter of a signature.
type ParameterInformation struct {
	Label string `json:"label"`
}

// MarkupKind describes the format of markup content.
type MarkupKind string

const (
	MarkupKindPlainText MarkupKind = "plaintext"
	MarkupKindMarkdown  MarkupKind = "markdown"
)

// MarkupContent holds formatted documentation.
type MarkupContent struct {
	Kind  MarkupKind `json:"kind"`
	Value string     `json:"value"`
}

// DidOpenTextDocumentParams parameters for textDocument/didOpen.
type DidOpenTextDocumentParams struct {
	TextDocument TextDocumentItem `json:"textDocument"`
}

// DidChangeTextDocumentParams parameters for textDocument/didChange.
type DidChangeTextDocumentParams struct {
	TextDocument   VersionedTextDocumentIdentifier  `json:"textDocument"`
	ContentChanges []TextDocumentContentChangeEvent `json:"contentChanges"`
}

// TextDocumentContentChangeEvent a change event. With full sync the text is
// the whole new document.
type TextDocumentContentChangeEvent struct {
	Text string `json:"text"`
}

// DidCloseTextDocumentParams parameters for textDocument/didClose.
type DidCloseTextDocumentParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

// PublishDiagnosticsParams parameters for textDocument/publishDiagnostics.
type PublishDiagnosticsParams struct {
	URI         DocumentURI     `json:"uri"`
	Version     *int            `json:"version,omitempty"`
	Diagnostics []LspDiagnostic `json:"diagnostics"`
}

// LspDiagnostic is the wire form of a diagnostic.
type LspDiagnostic struct {
	Range    LSPRange              `json:"range"`
	Severity LspDiagnosticSeverity `json:"severity,omitempty"`
	Source   string                `json:"source,omitempty"`
	Message  string                `json:"message"`
}

// LspDiagnosticSeverity diagnostic severity levels per the protocol.
type LspDiagnosticSeverity int

const (
	LspSeverityError   LspDiagnosticSeverity = 1
	LspSeverityWarning LspDiagnosticSeverity = 2
	LspSeverityInfo    LspDiagnosticSeverity = 3
	LspSeverityHint    LspDiagnosticSeverity = 4
)

// ShowMessageParams parameters for window/showMessage.
type ShowMessageParams struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

// MessageType for window/showMessage.
type MessageType int

const (
	MessageTypeError   MessageType = 1
	MessageTypeWarning MessageType = 2
	MessageTypeInfo    MessageType = 3
	MessageTypeLog     MessageType = 4
)

// CancelParams parameters for $/cancelRequest.
type CancelParams struct {
	ID any `json:"id"` // number or string per the protocol
}

// JSON-RPC error codes used by the server.
const (
	JsonRpcParseError       = -32700
	JsonRpcInvalidRequest   = -32600
	JsonRpcMethodNotFound   = -32601
	JsonRpcInvalidParams    = -32602
	JsonRpcInternalError    = -32603
	JsonRpcRequestCancelled = -32800
)

// diagnosticToLsp converts an internal byte-range diagnostic to wire form.
func diagnosticToLsp(content []byte, d Diagnostic) LspDiagnostic {
	return LspDiagnostic{
		Range: LSPRange{
			Start: ByteOffsetToLspPosition(content, d.Range.Start),
			End:   ByteOffsetToLspPosition(content, d.Range.End),
		},
		Severity: mapSeverityToLsp(d.Severity),
		Source:   d.Source,
		Message:  d.Message,
	}
}

func mapSeverityToLsp(s DiagnosticSeverity) LspDiagnosticSeverity {
	switch s {
	case SeverityError:
		return LspSeverityError
	case SeverityWarning:
		return LspSeverityWarning
	case SeverityInfo:
		return LspSeverityInfo
	case SeverityHint:
		return LspSeverityHint
	default:
		return LspSeverityError
	}
}

// callInfoToSignatureHelp renders the engine result in protocol form. The
// markdown flag selects the documentation markup kind.
func callInfoToSignatureHelp(info *CallInfo, markdown bool) *SignatureHelp {
	if info == nil {
		return nil
	}
	params := make([]ParameterInformation, 0, len(info.Parameters))
	for _, p := range info.Parameters {
		params = append(params, ParameterInformation{Label: p})
	}
	sig := SignatureInformation{
		Label:      info.Label,
		Parameters: params,
	}
	if info.Doc != "" {
		kind := MarkupKindPlainText
		if markdown {
			kind = MarkupKindMarkdown
		}
		sig.Documentation = &MarkupContent{Kind: kind, Value: info.Doc}
	}
	var active *uint32
	if info.ActiveParameter != nil && *info.ActiveParameter >= 0 {
		v := uint32(*info.ActiveParameter)
		active = &v
		sig.ActiveParameter = &v
	}
	return &SignatureHelp{
		Signatures:      []SignatureInformation{sig},
		ActiveSignature: 0,
		ActiveParameter: active,
	}
}
