package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	log "github.com/sirupsen/logrus"
	"github.com/wricardo/obs-http-relay/relay/auth"
	"github.com/wricardo/obs-http-relay/relay/obsws"
)

// httpOverhead is added to the relay's call timeout so the relay answers first.
const httpOverhead = 5 * time.Second

// Client is a thin MCP client that proxies to the relay HTTP API
type Client struct {
	baseURL    string
	authKey    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the relay at baseURL, sending
// authKey in the AuthKey header when it is not empty. callTimeout is the
// relay's upstream call timeout; zero means obsws.DefaultTimeout.
func NewClient(baseURL, authKey string, callTimeout time.Duration) *Client {
	if callTimeout <= 0 {
		callTimeout = obsws.DefaultTimeout
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		authKey: authKey,
		httpClient: &http.Client{
			Timeout: callTimeout + httpOverhead,
		},
	}

	c.initMCPServer()
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"OBS HTTP Relay",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`OBS HTTP Relay - MCP Interface

Sends obs-websocket 4.x requests to a running OBS Studio through the relay.

AVAILABLE TOOLS:
- call_request: Send a request and get the response (e.g. GetVersion, GetSceneList, GetCurrentScene)
- emit_request: Send a request without waiting (e.g. SetCurrentScene, SetVolume, StartStreaming)
- relay_status: Check whether the relay is connected to OBS

Request fields go in 'data' as a JSON object, using the obs-websocket 4.x field names
(for example {"scene-name": "Live"} or {"source": "Mic", "volume": 0.5}).
A response with "status": "error" comes from OBS itself and explains what went wrong.`),
	)

	c.registerTools()
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	requestProperties := map[string]interface{}{
		"request_type": map[string]interface{}{
			"type":        "string",
			"description": "obs-websocket request type, e.g. GetVersion or SetCurrentScene",
		},
		"data": map[string]interface{}{
			"type":        "object",
			"description": "Request fields (optional)",
		},
	}

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "call_request",
		Description: "Send an obs-websocket request and wait for its response",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: requestProperties,
			Required:   []string{"request_type"},
		},
	}, c.handleCallRequest)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "emit_request",
		Description: "Send an obs-websocket request without waiting for a response",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: requestProperties,
			Required:   []string{"request_type"},
		},
	}, c.handleEmitRequest)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "relay_status",
		Description: "Report whether the relay is connected to obs-websocket",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleRelayStatus)
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// HTTPHandler serves MCP JSON-RPC messages posted to it.
func (c *Client) HTTPHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		response := c.mcpServer.HandleMessage(r.Context(), body)

		w.Header().Set("Content-Type", "application/json")
		responseData, err := json.Marshal(response)
		if err != nil {
			http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
			return
		}
		w.Write(responseData)
	})
}

// Helper methods for API calls

// apiCall sends a request to the relay and returns the raw response body.
// Error bodies come back with status 200 and are left to the caller.
func (c *Client) apiCall(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.authKey != "" {
		req.Header.Set(auth.HeaderName, c.authKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("API error: %d", resp.StatusCode)
	}

	return data, nil
}

// relayError extracts the message from a relay error body.
func relayError(data []byte) (string, bool) {
	var resp struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", false
	}
	return resp.Error, resp.Status == "error"
}

// requestArgs reads request_type and data from tool arguments. data may be an
// object or a string holding a JSON object.
func requestArgs(request mcp.CallToolRequest) (string, []byte, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})

	requestType, _ := args["request_type"].(string)
	if strings.TrimSpace(requestType) == "" {
		return "", nil, fmt.Errorf("request_type is required")
	}
	if strings.ContainsAny(requestType, "/?#") {
		return "", nil, fmt.Errorf("invalid request_type %q", requestType)
	}

	switch data := args["data"].(type) {
	case nil:
		return requestType, nil, nil
	case string:
		if strings.TrimSpace(data) == "" {
			return requestType, nil, nil
		}
		return requestType, []byte(data), nil
	default:
		body, err := json.Marshal(data)
		if err != nil {
			return "", nil, fmt.Errorf("invalid data: %w", err)
		}
		return requestType, body, nil
	}
}

// Tool handlers

func (c *Client) handleCallRequest(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	requestType, body, err := requestArgs(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	data, err := c.apiCall(ctx, "POST", "/call/"+requestType, body)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if msg, failed := relayError(data); failed {
		log.Debugf("call_request %s: %s", requestType, msg)
		return mcp.NewToolResultError(fmt.Sprintf("%s failed: %s", requestType, msg)), nil
	}

	return mcp.NewToolResultText(formatResponse(requestType, data)), nil
}

func (c *Client) handleEmitRequest(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	requestType, body, err := requestArgs(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	data, err := c.apiCall(ctx, "POST", "/emit/"+requestType, body)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if msg, failed := relayError(data); failed {
		return mcp.NewToolResultError(msg), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Sent %s (no response requested)", requestType)), nil
}

func (c *Client) handleRelayStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := c.apiCall(ctx, "GET", "/health", nil)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var health struct {
		Status   string `json:"status"`
		Upstream string `json:"upstream"`
		Address  string `json:"address"`
		Pending  int    `json:"pending"`
	}
	if err := json.Unmarshal(data, &health); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("unexpected health response: %v", err)), nil
	}

	return mcp.NewToolResultText(formatStatus(health.Status, health.Upstream, health.Address, health.Pending)), nil
}

// Formatting

// formatResponse renders a response body indented, keeping its key order.
func formatResponse(requestType string, data []byte) string {
	var out bytes.Buffer
	if err := json.Indent(&out, bytes.TrimSpace(data), "", "  "); err != nil {
		return fmt.Sprintf("%s response:\n%s", requestType, data)
	}
	return fmt.Sprintf("%s response:\n%s", requestType, out.String())
}

func formatStatus(health, upstream, address string, pending int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Relay: %s\n", health)
	fmt.Fprintf(&sb, "obs-websocket: %s", upstream)
	if address != "" {
		fmt.Fprintf(&sb, " (%s)", address)
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Pending calls: %d\n", pending)
	return sb.String()
}
