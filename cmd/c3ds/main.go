// Command c3ds is a terminal dashboard for the C3DS device registry.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/c3ds-console/internal/app"
	"github.com/and161185/c3ds-console/internal/config"
	"github.com/and161185/c3ds-console/internal/nav"
	"github.com/and161185/c3ds-console/internal/view"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

const commandTimeout = 30 * time.Second

func usage(w io.Writer) {
	fmt.Fprintf(w, `c3ds console
Usage:
  c3ds [-config file] [-addr URL] [-dev] [-json] <cmd> [args]

Session:
  version
  login      -u <username> -p <password> [-remember]
  logout
  register   -u <username> -email <email> -p <password> -confirm <password> [-participant]
  whoami

Devices:
  devices                                    (public registry)
  map                                        (devices with coordinates)
  my-devices                                 (participant)
  device          -id <uuid>
  add-device      -name <name> -type <type> [-desc s] [-alg ECDSA_P256] [-lat f -lon f]
  update-device   -id <uuid> [-name s] [-desc s] [-lat f -lon f]
  revoke          -id <uuid>

Certificates:
  gen-cert        -id <uuid>
  download-cert   -id <uuid> [-dir path]
  download-key    -id <uuid> [-dir path]
  download-bundle -id <uuid> -ssid <name> -wifi-pass <password> [-dir path]

Feed:
  messages   [-type alert|heartbeat] [-window 1h|6h|24h|7d|all] [-limit n] [-group] [-watch]
  stats      [-watch]
`)
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// env is what a command runs against.
type env struct {
	app    *app.App
	out    io.Writer
	errOut io.Writer
	json   bool
	now    func() time.Time
}

// show prints v as JSON in -json mode, otherwise through render.
func (e *env) show(v any, render func(io.Writer) error) error {
	if e.json {
		return view.JSON(e.out, v)
	}
	return render(e.out)
}

// run executes one command and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("c3ds", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfgPath := fs.String("config", "", "config file (YAML)")
	addr := fs.String("addr", "", "backend base URL")
	dev := fs.Bool("dev", false, "development mode (no retries, debug logs)")
	asJSON := fs.Bool("json", false, "print JSON")
	fs.Usage = func() { usage(stderr) }
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		usage(stderr)
		return 2
	}
	cmd, rest := fs.Arg(0), fs.Args()[1:]
	if cmd == "version" {
		fmt.Fprintf(stdout, "c3ds %s (%s)\n", version, buildDate)
		return 0
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if *addr != "" {
		cfg.API.BaseURL = *addr
	}
	if *dev {
		cfg.Env = config.EnvDevelopment
		cfg.Log.Level = "debug"
	}

	logger, err := app.NewLogger(cfg.Log.Level, cfg.Dev())
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	a, err := app.New(cfg, app.WithLogger(logger))
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	hinted := false
	a.Nav.OnChange(func(_, to nav.Route) {
		if to == nav.Login {
			hinted = true
			fmt.Fprintln(stderr, "Your session has expired. Run `c3ds login` to sign in again.")
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	a.Start(ctx)

	e := &env{app: a, out: stdout, errOut: stderr, json: *asJSON, now: time.Now}
	err = e.exec(ctx, cmd, rest)
	if cerr := a.Close(); cerr != nil {
		logger.Warn("close", zap.Error(cerr))
	}
	return report(stderr, err, hinted)
}

// exec is the error boundary around one command.
func (e *env) exec(ctx context.Context, cmd string, args []string) (err error) {
	defer app.Recover(e.app.Log, e.errOut, &err)
	return dispatch(ctx, e, cmd, args)
}

func dispatch(ctx context.Context, e *env, cmd string, args []string) error {
	switch cmd {
	case "login":
		return cmdLogin(ctx, e, args)
	case "logout":
		return cmdLogout(ctx, e, args)
	case "register":
		return cmdRegister(ctx, e, args)
	case "whoami":
		return cmdWhoami(ctx, e, args)

	case "devices":
		return cmdDevices(ctx, e, args)
	case "map":
		return cmdMap(ctx, e, args)
	case "my-devices":
		return cmdMyDevices(ctx, e, args)
	case "device":
		return cmdDevice(ctx, e, args)
	case "add-device":
		return cmdAddDevice(ctx, e, args)
	case "update-device":
		return cmdUpdateDevice(ctx, e, args)
	case "revoke":
		return cmdRevoke(ctx, e, args)

	case "gen-cert":
		return cmdGenCert(ctx, e, args)
	case "download-cert", "download-key", "download-bundle":
		return cmdDownload(ctx, e, cmd, args)

	case "messages":
		return cmdMessages(ctx, e, args)
	case "stats":
		return cmdStats(ctx, e, args)
	}
	usage(e.errOut)
	return errUsage
}

// report prints err and maps it to an exit code.
func report(w io.Writer, err error, hinted bool) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage):
		return 2
	case errors.Is(err, app.ErrCrashed):
		return 1
	}
	if msg := describe(err, hinted); msg != "" {
		fmt.Fprintln(w, msg)
	}
	return 1
}
