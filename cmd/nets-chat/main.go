// nets-chat — line-oriented demo over any supported link.
//
// Each stdin line becomes one packet dispatched through a transport engine;
// inbound packets print as chat lines. The link is chosen with -link or
// interactively: an in-process loopback echo, a serial port, or either side
// of a WebSocket debug bridge.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"go.uber.org/zap"

	"github.com/PJ82RU/nets/channel/loopback"
	"github.com/PJ82RU/nets/channel/serial"
	"github.com/PJ82RU/nets/channel/wsbridge"
	"github.com/PJ82RU/nets/config"
	"github.com/PJ82RU/nets/internal/cli"
	"github.com/PJ82RU/nets/observability"
	"github.com/PJ82RU/nets/protocol"
	"github.com/PJ82RU/nets/transport"
)

var version = "dev"

func main() {
	// Root context — cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// CLI flags override the config file, which overrides defaults.
	configPath := flag.String("config", "", "Path to YAML config file")
	link := flag.String("link", "", "Link: loopback, serial, ws-serve, or ws-connect")
	serialPort := flag.String("serial-port", "", "Serial device path (serial link)")
	baud := flag.Int("baud", 0, "Serial baud rate (serial link)")
	addr := flag.String("addr", "", "Listen address (ws-serve link)")
	wsURL := flag.String("url", "", "Bridge URL (ws-connect link)")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		pterm.Error.Printfln("config: %v", err)
		os.Exit(1)
	}
	applyFlags(cfg, *link, *serialPort, *baud, *addr, *wsURL)
	if *debugMode {
		cfg.Log.Level = "debug"
	}

	logger, err := observability.NewLogger(cfg.Log)
	if err != nil {
		pterm.Error.Printfln("logger: %v", err)
		os.Exit(1)
	}
	defer logger.Sync()

	pterm.Info.Println(fmt.Sprintf("nets-chat — v%s", version))
	pterm.Println()

	// No -link flag and no configured kind → interactive mode.
	if *link == "" && *configPath == "" {
		runInteractive(cfg)
	}

	if err := run(ctx, cfg, logger); err != nil {
		pterm.Error.Printfln("%v", err)
		os.Exit(1)
	}
	pterm.Info.Println("link closed")
}

// applyFlags copies non-empty flag values over the loaded config.
func applyFlags(cfg *config.Config, link, serialPort string, baud int, addr, wsURL string) {
	if link != "" {
		cfg.Link.Kind = link
	}
	if serialPort != "" {
		cfg.Link.Serial.Port = serialPort
	}
	if baud > 0 {
		cfg.Link.Serial.BaudRate = baud
	}
	if addr != "" {
		cfg.Link.WS.Addr = addr
	}
	if wsURL != "" {
		cfg.Link.WS.URL = wsURL
	}
}

// runInteractive fills in the link settings through prompts.
func runInteractive(cfg *config.Config) {
	kind := cli.AskSelect("Select a link", []string{
		"loopback   — in-process echo peer",
		"serial     — serial port",
		"ws-serve   — host a debug bridge",
		"ws-connect — join a debug bridge",
	})

	switch {
	case strings.HasPrefix(kind, "loopback"):
		cfg.Link.Kind = "loopback"
	case strings.HasPrefix(kind, "serial"):
		cfg.Link.Kind = "serial"
		cfg.Link.Serial.Port = cli.AskText("Serial device path", cfg.Link.Serial.Port)
		cfg.Link.Serial.BaudRate = cli.AskInt("Baud rate", 300, 4_000_000, cfg.Link.Serial.BaudRate)
	case strings.HasPrefix(kind, "ws-serve"):
		cfg.Link.Kind = "ws-serve"
		cfg.Link.WS.Addr = cli.AskText("Listen address (host:port)", cfg.Link.WS.Addr)
	default:
		cfg.Link.Kind = "ws-connect"
		cfg.Link.WS.URL = cli.AskText("Bridge URL", cfg.Link.WS.URL)
	}
}

// run brings up the selected link, starts the engine, and bridges stdin.
func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	adapter, cleanup, err := openLink(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	engine := transport.New(adapter, transport.Options{
		SendInterval:  time.Duration(cfg.Engine.SendIntervalMS) * time.Millisecond,
		QueueCapacity: cfg.Engine.QueueCapacity,
		Logger:        logger.Named("engine"),
	})

	engine.Bind(func(p protocol.Packet, _ transport.ReplyFunc) {
		pterm.Println(pterm.Cyan(fmt.Sprintf("[%d] %s", p.ID, p.Payload())))
	}, func(p protocol.Packet, err error) {
		pterm.Warning.Printfln("dropped %s: %v", p.String(), err)
	})

	if !engine.Start() {
		return fmt.Errorf("engine start failed")
	}
	defer engine.Stop()

	startStatsReporter(ctx, engine)
	pterm.Success.Printfln("%s is up on the %s link — type to send, Ctrl+C to quit",
		cfg.Name, cfg.Link.Kind)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			pkt, valid := protocol.New(0, []byte(line))
			if !valid {
				pterm.Warning.Printfln("line not sendable (empty or over %d bytes)", protocol.MaxMTU)
				continue
			}
			if err := engine.Send(pkt); err != nil {
				pterm.Warning.Printfln("send failed: %v", err)
			}

		case <-ctx.Done():
			return nil
		}
	}
}

// openLink builds the adapter for the configured link kind. The loopback
// kind also starts an echo engine on the far end so the demo talks to
// someone.
func openLink(ctx context.Context, cfg *config.Config, logger *zap.Logger) (transport.Adapter, func(), error) {
	switch cfg.Link.Kind {
	case "loopback":
		near, far := loopback.Pair()
		echo := transport.New(far, transport.Options{Logger: logger.Named("echo")})
		echo.Bind(func(p protocol.Packet, reply transport.ReplyFunc) {
			out, _ := protocol.New(p.ID, append([]byte("echo: "), p.Payload()...))
			reply(out)
		}, nil)
		echo.Start()
		return near, func() { echo.Stop() }, nil

	case "serial":
		a, err := serial.Open(serial.Config{
			Port:     cfg.Link.Serial.Port,
			BaudRate: cfg.Link.Serial.BaudRate,
		}, logger.Named("serial"))
		if err != nil {
			return nil, nil, err
		}
		return a, func() { a.Close() }, nil

	case "ws-serve":
		pterm.Info.Printfln("waiting for a peer on ws://%s/bridge ...", cfg.Link.WS.Addr)
		a, err := wsbridge.Serve(ctx, cfg.Link.WS.Addr, logger.Named("ws"))
		if err != nil {
			return nil, nil, err
		}
		return a, func() { a.Close() }, nil

	case "ws-connect":
		a, err := wsbridge.Dial(ctx, cfg.Link.WS.URL, logger.Named("ws"))
		if err != nil {
			return nil, nil, err
		}
		return a, func() { a.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown link kind: %q", cfg.Link.Kind)
	}
}

// startStatsReporter logs traffic counters every 10 seconds while anything
// is moving. It stops when ctx is cancelled.
func startStatsReporter(ctx context.Context, engine *transport.Engine) {
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()

		var prev transport.Stats
		for {
			select {
			case <-ticker.C:
				s := engine.Stats()
				if s == prev {
					continue
				}
				pterm.Info.Printfln("sent %d (%d B) | recv %d (%d B) | retried %d | dropped %d",
					s.Sent, s.BytesSent, s.Received, s.BytesRecv, s.Retried, s.Dropped)
				prev = s

			case <-ctx.Done():
				return
			}
		}
	}()
}
