// Command obs-http-relay exposes an obs-websocket session over HTTP.
//
// It supports two modes:
//  1. "serve" (default) – runs the HTTP relay with /emit, /call, /health, an event WebSocket, and an /mcp endpoint
//  2. "stdio-mcp" – runs an MCP stdio server backed by an external relay or an internal loopback one
//
// Settings come from sws_http_config.ini, then the environment (a .env file is
// loaded first), then flags. An optional ngrok tunnel publishes the relay for
// remote control during streams.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
	"github.com/wricardo/obs-http-relay/api"
	"github.com/wricardo/obs-http-relay/relay/auth"
	"github.com/wricardo/obs-http-relay/relay/config"
	"github.com/wricardo/obs-http-relay/relay/obsws"
	"github.com/wricardo/obs-http-relay/relay/service"
	"github.com/wricardo/obs-http-relay/transport/mcp"
	"github.com/wricardo/obs-http-relay/transport/websocket"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"
	"golang.org/x/sync/errgroup"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "OBS HTTP Relay"
)

const (
	connectTimeout  = 10 * time.Second
	shutdownTimeout = 10 * time.Second
)

// main loads .env, then runs the command line.
func main() {
	// Load .env file if it exists (ignore error if not found)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			log.Warnf("Error loading .env file: %v", err)
		}
	} else {
		log.Info("Loaded environment variables from .env file")
	}

	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		log.Fatalf("%v", err)
	}
}

// newCommand builds the root command. Flags are inherited by subcommands.
func newCommand() *cli.Command {
	return &cli.Command{
		Name:           "obs-http-relay",
		Usage:          "Relay HTTP requests to obs-websocket",
		Version:        Version,
		Flags:          globalFlags(),
		DefaultCommand: "serve",
		Commands: []*cli.Command{
			{
				Name:    "serve",
				Aliases: []string{"server", "http"},
				Usage:   "Run the HTTP relay with WebSocket events and an /mcp endpoint",
				Action:  runServe,
			},
			{
				Name:    "stdio-mcp",
				Aliases: []string{"mcp-stdio", "mcp"},
				Usage:   "Run an MCP stdio server",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "relay-url",
						Usage:   "Use a running relay instead of starting an internal one",
						Sources: cli.EnvVars("OBS_RELAY_URL"),
					},
				},
				Action: runStdioMCP,
			},
		},
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Value:   config.DefaultFile,
			Usage:   "INI configuration file",
			Sources: cli.EnvVars("OBS_RELAY_CONFIG"),
		},
		&cli.StringFlag{
			Name:    "bind-address",
			Usage:   "HTTP bind address (overrides [http] bind_to_address)",
			Sources: cli.EnvVars("OBS_RELAY_BIND_ADDRESS"),
		},
		&cli.IntFlag{
			Name:    "port",
			Usage:   "HTTP port (overrides [http] bind_to_port)",
			Sources: cli.EnvVars("OBS_RELAY_PORT"),
		},
		&cli.StringFlag{
			Name:    "auth-key",
			Usage:   "Shared secret required in the AuthKey header (overrides [http] authentication_key)",
			Sources: cli.EnvVars("OBS_RELAY_AUTH_KEY"),
		},
		&cli.StringFlag{
			Name:    "static-dir",
			Usage:   "Directory served for other paths (overrides [http] static_dir)",
			Sources: cli.EnvVars("OBS_RELAY_STATIC_DIR"),
		},
		&cli.StringFlag{
			Name:    "obs-host",
			Usage:   "obs-websocket host (overrides [obsws] ws_address)",
			Sources: cli.EnvVars("OBS_WS_HOST"),
		},
		&cli.IntFlag{
			Name:    "obs-port",
			Usage:   "obs-websocket port (overrides [obsws] ws_port)",
			Sources: cli.EnvVars("OBS_WS_PORT"),
		},
		&cli.StringFlag{
			Name:    "obs-password",
			Usage:   "obs-websocket password (overrides [obsws] ws_password)",
			Sources: cli.EnvVars("OBS_WS_PASSWORD"),
		},
		&cli.DurationFlag{
			Name:    "timeout",
			Usage:   "Upstream call timeout (overrides [obsws] request_timeout)",
			Sources: cli.EnvVars("OBS_WS_TIMEOUT"),
		},
		&cli.BoolFlag{
			Name:    "debug",
			Usage:   "Enable debug logging",
			Sources: cli.EnvVars("DEBUG"),
		},
		&cli.BoolFlag{
			Name:    "ngrok",
			Usage:   "Enable ngrok tunnel",
			Sources: cli.EnvVars("NGROK_ENABLED"),
		},
		&cli.StringFlag{
			Name:    "ngrok-auth",
			Usage:   "Ngrok auth token",
			Sources: cli.EnvVars("NGROK_AUTHTOKEN", "NGROK_AUTH_TOKEN"),
		},
		&cli.StringFlag{
			Name:    "ngrok-domain",
			Usage:   "Custom ngrok domain (optional)",
			Sources: cli.EnvVars("NGROK_DOMAIN"),
		},
	}
}

func setupLogging(debug bool) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}

// loadConfig reads the INI file and applies flag and environment overrides.
// A missing file is only an error when it was asked for explicitly.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	path := cmd.String("config")

	cfg, err := config.Load(path)
	switch {
	case errors.Is(err, config.ErrConfigNotFound) && !cmd.IsSet("config"):
		log.Infof("No %s found, using defaults", path)
		cfg = config.Default()
	case err != nil:
		return nil, err
	default:
		log.Infof("Loaded configuration from %s", path)
	}

	if cmd.IsSet("bind-address") {
		cfg.HTTP.BindAddress = cmd.String("bind-address")
	}
	if cmd.IsSet("port") {
		cfg.HTTP.Port = cmd.Int("port")
	}
	if cmd.IsSet("auth-key") {
		cfg.HTTP.AuthKey = cmd.String("auth-key")
	}
	if cmd.IsSet("static-dir") {
		cfg.HTTP.StaticDir = cmd.String("static-dir")
	}
	if cmd.IsSet("obs-host") {
		cfg.Upstream.Host = cmd.String("obs-host")
	}
	if cmd.IsSet("obs-port") {
		cfg.Upstream.Port = cmd.Int("obs-port")
	}
	if cmd.IsSet("obs-password") {
		cfg.Upstream.Password = cmd.String("obs-password")
	}
	if cmd.IsSet("timeout") {
		cfg.Upstream.Timeout = cmd.Duration("timeout")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// connectUpstream opens the obs-websocket session. Events are published to hub.
func connectUpstream(ctx context.Context, cfg *config.Config, hub *websocket.Hub) (*obsws.Client, error) {
	client := obsws.NewClient(
		cfg.Upstream.Host,
		cfg.Upstream.Port,
		cfg.Upstream.Password,
		obsws.WithTimeout(cfg.Upstream.Timeout),
		obsws.WithEventHandler(hub.Publish),
	)

	log.Infof("Connecting to obs-websocket at %s", client.Address())

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Connect(connectCtx); err != nil {
		return nil, err
	}
	return client, nil
}

// newAPIServer wires the relay service, gate and hub into the HTTP API.
func newAPIServer(cfg *config.Config, client *obsws.Client, hub *websocket.Hub) (*api.Server, *auth.Gate) {
	gate := auth.NewGate(cfg.HTTP.AuthKey)
	if gate.Enabled() {
		log.Info("Starting HTTP server with AuthKey authentication.")
	} else {
		log.Warn("Starting HTTP server without authentication.")
	}

	return api.NewServer(
		service.NewRelayService(client),
		gate,
		api.WithHub(hub),
		api.WithStaticDir(cfg.HTTP.StaticDir),
	), gate
}

// loopbackURL is the address the in-process MCP client uses to reach the relay.
func loopbackURL(cfg *config.Config) string {
	host := cfg.HTTP.BindAddress
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(cfg.HTTP.Port))
}

// runServe starts the HTTP relay and blocks until SIGINT or SIGTERM.
func runServe(ctx context.Context, cmd *cli.Command) error {
	setupLogging(cmd.Bool("debug"))
	log.Infof("Starting %s v%s", AppName, Version)

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := websocket.NewHub()

	client, err := connectUpstream(ctx, cfg, hub)
	if err != nil {
		return err
	}
	defer client.Disconnect()

	apiServer, gate := newAPIServer(cfg, client, hub)

	// Create MCP client for /mcp endpoint
	mcpClient := mcp.NewClient(loopbackURL(cfg), cfg.HTTP.AuthKey, cfg.Upstream.Timeout)

	// Create main router that combines API and MCP
	mainRouter := http.NewServeMux()
	mainRouter.Handle("/", apiServer)
	mainRouter.Handle("/mcp", gate.Middleware(api.Deny)(mcpClient.HTTPHandler()))

	addr := cfg.Addr()
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      mainRouter,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Upstream.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		log.Infof("HTTP server listening on %s", addr)
		log.Infof("Relay: POST http://%s/emit/{type} and /call/{type}", addr)
		log.Infof("Events: ws://%s/ws", addr)
		log.Infof("MCP endpoint: http://%s/mcp", addr)

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})

	if cmd.Bool("ngrok") {
		g.Go(func() error {
			runNgrok(gctx, cmd.String("ngrok-auth"), cmd.String("ngrok-domain"), mainRouter)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down...")

		// Fail outstanding calls first so their handlers return promptly.
		client.Disconnect()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Errorf("HTTP server shutdown error: %v", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("Server stopped")
	return nil
}

// runNgrok serves handler through an ngrok tunnel until ctx is done. Failures
// are logged and leave the local server running.
func runNgrok(ctx context.Context, authToken, domain string, handler http.Handler) {
	if authToken == "" {
		log.Warn("Ngrok enabled but no auth token provided (use --ngrok-auth, NGROK_AUTHTOKEN, or NGROK_AUTH_TOKEN env var)")
		return
	}

	log.Info("Starting ngrok tunnel...")

	var tunnel ngrokConfig.Tunnel
	if domain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(domain))
		log.Infof("Using custom ngrok domain: %s", domain)
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(authToken))
	if err != nil {
		log.Errorf("Failed to start ngrok tunnel: %v", err)
		return
	}

	go func() {
		<-ctx.Done()
		if err := tun.Close(); err != nil {
			log.Errorf("Failed to close ngrok tunnel: %v", err)
		}
	}()

	ngrokURL := tun.URL()
	log.Infof("Ngrok tunnel established: %s", ngrokURL)
	log.Infof("  Relay (ngrok): %s/call/{type}", ngrokURL)
	log.Infof("  Events (ngrok): %s/ws", ngrokURL)
	log.Infof("  MCP endpoint (ngrok): %s/mcp", ngrokURL)

	if err := http.Serve(tun, handler); err != nil && !errors.Is(err, http.ErrServerClosed) && ctx.Err() == nil {
		log.Errorf("Ngrok server error: %v", err)
	}
	log.Info("Ngrok tunnel closed")
}

// runStdioMCP serves MCP over stdio. With --relay-url it proxies to that relay;
// otherwise it connects to obs-websocket itself and serves the relay API on a
// random loopback port for the MCP client.
func runStdioMCP(ctx context.Context, cmd *cli.Command) error {
	setupLogging(cmd.Bool("debug"))

	baseURL := cmd.String("relay-url")
	authKey := cmd.String("auth-key")
	callTimeout := cmd.Duration("timeout")

	if baseURL != "" {
		log.Infof("Using relay at %s for MCP", baseURL)
	} else {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		authKey = cfg.HTTP.AuthKey
		callTimeout = cfg.Upstream.Timeout

		hub := websocket.NewHub()
		hubCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go hub.Run(hubCtx)

		client, err := connectUpstream(ctx, cfg, hub)
		if err != nil {
			return err
		}
		defer client.Disconnect()

		apiServer, _ := newAPIServer(cfg, client, hub)

		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("failed to get available port: %w", err)
		}

		internalAddr := listener.Addr().String()
		log.Infof("Starting internal HTTP server on %s for MCP stdio", internalAddr)

		httpServer := &http.Server{Handler: apiServer}
		go func() {
			if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("Internal HTTP server error: %v", err)
			}
		}()
		defer httpServer.Close()

		baseURL = "http://" + internalAddr
	}

	mcpClient := mcp.NewClient(baseURL, authKey, callTimeout)

	log.Info("MCP stdio server ready")
	if err := server.ServeStdio(mcpClient.GetMCPServer()); err != nil {
		return fmt.Errorf("MCP stdio server error: %w", err)
	}
	return nil
}
