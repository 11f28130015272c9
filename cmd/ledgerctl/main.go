// Command ledgerctl is an operational tool for Ledger-class HID devices: it
// lists what the host sees, resolves the default device and sends raw or
// chunked APDUs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/base/ledgerhid"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const usage = `usage: ledgerctl [flags] <command> [args]

commands:
  list                         list every visible HID interface
  usb                          list USB devices of the configured vendor
  path                         resolve the default device path
  appinfo                      query the running application
  ping                         query the running application every -interval
  raw <apdu hex>               send one APDU (cla ins p1 p2 lc data)
  chunked <cla> <ins> <hex>    stream a message as init/add/last chunks

flags:
`

type options struct {
	configPath  string
	verbosity   string
	metricsAddr string
	interval    time.Duration
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "TOML config file (defaults are used when empty)")
	flag.StringVar(&opts.verbosity, "verbosity", "info", "log level: trace, debug, info, warn, error, crit")
	flag.StringVar(&opts.metricsAddr, "metrics", "", "serve prometheus metrics on this address, e.g. :9110")
	flag.DurationVar(&opts.interval, "interval", 5*time.Second, "ping interval")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if err := setupLogging(opts.verbosity); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdout, opts, flag.Arg(0), flag.Args()[1:]); err != nil {
		var appErr *ledgerhid.AppError
		if errors.As(err, &appErr) {
			log.Error("Device rejected the command", "status", appErr.Status, "reason", appErr.Description)
		} else {
			log.Error("ledgerctl failed", "err", err)
		}
		os.Exit(1)
	}
}

var levels = map[string]slog.Level{
	"trace": log.LevelTrace,
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
	"crit":  log.LevelCrit,
}

func parseLevel(verbosity string) (slog.Level, error) {
	lvl, ok := levels[strings.ToLower(verbosity)]
	if !ok {
		return 0, fmt.Errorf("invalid verbosity %q", verbosity)
	}
	return lvl, nil
}

func setupLogging(verbosity string) error {
	lvl, err := parseLevel(verbosity)
	if err != nil {
		return err
	}
	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, lvl, false)))
	return nil
}

func loadConfig(path string) (ledgerhid.Config, error) {
	if path == "" {
		return ledgerhid.DefaultConfig(), nil
	}
	return ledgerhid.LoadConfig(path)
}

var commands = map[string]bool{
	"list": true, "usb": true, "path": true, "appinfo": true, "ping": true, "raw": true, "chunked": true,
}

func run(ctx context.Context, out io.Writer, opts options, command string, args []string) error {
	if !commands[command] {
		return fmt.Errorf("unknown command %q", command)
	}
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	registry := ledgerhid.NewRegistry(ledgerhid.NewHIDContext(), cfg)

	switch command {
	case "list":
		devices, err := registry.Devices()
		if err != nil {
			return err
		}
		for _, d := range devices {
			fmt.Fprintf(out, "%s - %#04x/%#04x/%#04x/%d %s %s\n", d.Path, d.VendorID, d.ProductID, d.UsagePage, d.Interface, d.Manufacturer, d.Product)
		}
		return nil

	case "usb":
		devices, err := ledgerhid.ListUSBDevices(cfg.VendorID)
		if err != nil {
			return err
		}
		for _, d := range devices {
			fmt.Fprintf(out, "bus %03d addr %03d - %#04x/%#04x hid interfaces %v\n", d.Bus, d.Address, d.VendorID, d.ProductID, d.HIDInterfaces)
		}
		return nil

	case "path":
		path, err := registry.DevicePath()
		if err != nil {
			return err
		}
		fmt.Fprintln(out, path)
		return nil
	}

	transport, err := registry.Open()
	if err != nil {
		return err
	}
	defer transport.Close()

	var ex ledgerhid.Exchanger = transport
	if opts.metricsAddr != "" {
		if ex, err = serveMetrics(opts.metricsAddr, ex); err != nil {
			return err
		}
	}

	return exchange(ctx, out, opts, ex, command, args)
}

// exchange runs the commands that talk to an opened device.
func exchange(ctx context.Context, out io.Writer, opts options, ex ledgerhid.Exchanger, command string, args []string) error {
	switch command {
	case "appinfo":
		return printAppInfo(ctx, out, ex)

	case "ping":
		ticker := time.NewTicker(opts.interval)
		defer ticker.Stop()
		for {
			if err := printAppInfo(ctx, out, ex); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				log.Warn("Ping failed", "err", err)
				if ledgerhid.IsTransportError(err) {
					return err
				}
			}
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}

	case "raw":
		if len(args) != 1 {
			return errors.New("raw: expected one hex argument")
		}
		cmd, err := parseRawCommand(common.FromHex(args[0]))
		if err != nil {
			return err
		}
		answer, err := ex.Exchange(ctx, cmd)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s %s\n", answer.Status, hexutil.Bytes(answer.Payload))
		return ledgerhid.Check(answer)

	case "chunked":
		if len(args) != 3 {
			return errors.New("chunked: expected <cla> <ins> <hex message>")
		}
		cla, err := parseByte(args[0])
		if err != nil {
			return err
		}
		ins, err := parseByte(args[1])
		if err != nil {
			return err
		}
		start := &ledgerhid.Command{Class: cla, Instruction: ins, P1: byte(ledgerhid.ChunkInit)}
		answer, err := ledgerhid.SendChunks(ctx, ex, start, common.FromHex(args[2]))
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s %s\n", answer.Status, hexutil.Bytes(answer.Payload))
		return nil
	}
	return fmt.Errorf("unknown command %q", command)
}

func printAppInfo(ctx context.Context, out io.Writer, ex ledgerhid.Exchanger) error {
	info, err := ledgerhid.QueryAppInfo(ctx, ex)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s %s flags=%s\n", info.Name, info.Version, hexutil.Bytes(info.Flags))
	return nil
}

// parseRawCommand reads a serialised APDU back into a Command.
func parseRawCommand(raw []byte) (*ledgerhid.Command, error) {
	if len(raw) < 4 {
		return nil, fmt.Errorf("raw: apdu needs at least 4 header bytes, got %d", len(raw))
	}
	cmd := &ledgerhid.Command{Class: raw[0], Instruction: raw[1], P1: raw[2], P2: raw[3]}
	if len(raw) == 4 {
		return cmd, nil
	}
	if int(raw[4]) != len(raw)-5 {
		return nil, fmt.Errorf("raw: lc is %d but %d data bytes follow", raw[4], len(raw)-5)
	}
	cmd.Payload = raw[5:]
	return cmd, nil
}

func parseByte(s string) (byte, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid byte %q: %w", s, err)
	}
	return byte(v), nil
}

func serveMetrics(addr string, ex ledgerhid.Exchanger) (ledgerhid.Exchanger, error) {
	reg := prometheus.NewRegistry()
	metrics, err := ledgerhid.NewMetrics(reg)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	go func() {
		log.Info("Serving metrics", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Error("Metrics server stopped", "err", err)
		}
	}()
	return metrics.Instrument(ex), nil
}
