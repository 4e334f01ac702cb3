// Command obsws-call sends a single request to obs-websocket and prints the
// response, without going through the HTTP relay. It is handy for checking
// credentials and trying out request payloads before wiring them into a
// stream deck or overlay.
//
//	obsws-call --password supersecret SetCurrentScene '{"scene-name":"Live"}'
//	obsws-call --watch 30s GetVersion
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
	"github.com/wricardo/obs-http-relay/relay/config"
	"github.com/wricardo/obs-http-relay/relay/obsws"
	"github.com/wricardo/obs-http-relay/relay/service"
)

func main() {
	cmd := &cli.Command{
		Name:      "obsws-call",
		Usage:     "Send one request to obs-websocket",
		ArgsUsage: "<request-type> [json-payload]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "host", Value: config.Default().Upstream.Host, Sources: cli.EnvVars("OBS_WS_HOST")},
			&cli.IntFlag{Name: "port", Value: config.Default().Upstream.Port, Sources: cli.EnvVars("OBS_WS_PORT")},
			&cli.StringFlag{Name: "password", Sources: cli.EnvVars("OBS_WS_PASSWORD")},
			&cli.DurationFlag{Name: "timeout", Value: obsws.DefaultTimeout, Usage: "How long to wait for the response"},
			&cli.BoolFlag{Name: "emit", Usage: "Do not wait for the response"},
			&cli.DurationFlag{Name: "watch", Usage: "Print upstream events for this long after the request"},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatalf("%v", err)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() < 1 {
		return fmt.Errorf("missing request type")
	}
	requestType := cmd.Args().Get(0)
	payload := []byte(cmd.Args().Get(1))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	events := make(chan obsws.Event, 64)
	client := obsws.NewClient(
		cmd.String("host"),
		cmd.Int("port"),
		cmd.String("password"),
		obsws.WithTimeout(cmd.Duration("timeout")),
		obsws.WithEventHandler(func(e obsws.Event) {
			select {
			case events <- e:
			default:
			}
		}),
	)

	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer client.Disconnect()

	relay := service.NewRelayService(client)
	if err := send(ctx, relay, requestType, payload, cmd.Bool("emit"), os.Stdout); err != nil {
		return err
	}

	if watch := cmd.Duration("watch"); watch > 0 {
		watchEvents(ctx, events, watch, os.Stdout)
	}
	return nil
}

// send issues the request through relay and writes the indented response to
// out. With emit set it only reports that the request was sent.
func send(ctx context.Context, relay service.RelayService, requestType string, payload []byte, emit bool, out io.Writer) error {
	if emit {
		relay.Emit(ctx, requestType, payload)
		fmt.Fprintf(out, "Sent %s\n", requestType)
		return nil
	}

	resp, err := relay.Call(ctx, requestType, payload)
	if err != nil {
		return err
	}

	data, err := obsws.EncodePayload(resp)
	if err != nil {
		return err
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		return err
	}
	fmt.Fprintln(out, pretty.String())

	if status := obsws.Status(resp); status != "ok" {
		return fmt.Errorf("%s returned status %q", requestType, status)
	}
	return nil
}

// watchEvents prints events as one JSON line each until d elapses or ctx ends.
func watchEvents(ctx context.Context, events <-chan obsws.Event, d time.Duration, out io.Writer) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		select {
		case e := <-events:
			data, err := obsws.EncodePayload(e.Fields)
			if err != nil {
				log.Debugf("skipping %s event: %v", e.Type, err)
				continue
			}
			fmt.Fprintln(out, string(data))
		case <-timer.C:
			return
		case <-ctx.Done():
			return
		}
	}
}
