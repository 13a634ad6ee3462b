package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/DALE-GH/location-tracker/internal/client/app"
	"github.com/DALE-GH/location-tracker/internal/client/syncer"
	"github.com/DALE-GH/location-tracker/internal/config"
	"github.com/DALE-GH/location-tracker/internal/domain"
	"github.com/DALE-GH/location-tracker/pkg/logger"
)

const clientUsage = `usage: tracker [-config file] [-db file] [-server url] <command> [args]

commands:
  add -type plant|litter -note text -lat N -lng N
  list [-type t] [-remote]
  rm <id>
  sync
  status
  stats
  run
  nearby -lat N -lng N [-radius m] [-type t] [-remote]
  export [-o file]
  import <file>
  config [show | set <server_url|api_key|sync_interval> <value> | offline <on|off>]
`

var ErrUsage = errors.New("bad usage")

// RunClient is the field client entry point. Records go to stdout as JSON, logs to stderr.
func RunClient(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("tracker", flag.ContinueOnError)
	fs.Usage = func() { fmt.Fprint(fs.Output(), clientUsage) }

	cfgPath := fs.String("config", "client.yaml", "client settings file (yaml)")
	dbPath := fs.String("db", "", "local database file")
	serverURL := fs.String("server", "", "server base url")

	if err := fs.Parse(args); err != nil {
		return ErrUsage
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return ErrUsage
	}

	cfg, err := config.LoadClientConfig(*cfgPath)
	if err != nil {
		return err
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	log := logger.New(cfg.LogEnv, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var opts []app.Option
	if *serverURL != "" {
		opts = append(opts, app.WithServerURL(*serverURL))
	}

	a, err := app.New(ctx, cfg, log, opts...)
	if err != nil {
		log.Error("could not open client", "err", err)
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error("close failed", "err", err)
		}
	}()

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	c := &clientCmd{app: a, out: stdout}

	switch cmd {
	case "add":
		return c.add(ctx, rest)
	case "list":
		return c.list(ctx, rest)
	case "rm":
		return c.rm(ctx, rest)
	case "sync":
		return c.sync(ctx)
	case "status":
		return c.status(ctx)
	case "stats":
		return c.stats(ctx)
	case "run":
		return c.run(ctx)
	case "nearby":
		return c.nearby(ctx, rest)
	case "export":
		return c.export(rest)
	case "import":
		return c.importFile(ctx, rest)
	case "config":
		return c.config(ctx, rest)
	default:
		fs.Usage()
		return fmt.Errorf("%w: unknown command %q", ErrUsage, cmd)
	}
}

type clientCmd struct {
	app *app.App
	out io.Writer
}

func (c *clientCmd) add(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	typ := fs.String("type", "", "plant or litter")
	note := fs.String("note", "", "what was seen")
	lat := fs.Float64("lat", 0, "latitude")
	lng := fs.Float64("lng", 0, "longitude")
	if err := fs.Parse(args); err != nil {
		return ErrUsage
	}

	rec, err := c.app.AddLocation(ctx, domain.LocationType(*typ), *note, *lat, *lng)
	if err != nil {
		return err
	}
	return c.print(rec)
}

func (c *clientCmd) list(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	typ := fs.String("type", "", "plant or litter")
	fromServer := fs.Bool("remote", false, "list the server's records")
	if err := fs.Parse(args); err != nil {
		return ErrUsage
	}

	t, err := domain.ParseLocationType(*typ)
	if err != nil {
		return err
	}

	if *fromServer {
		recs, err := c.app.Remote.List(ctx, domain.ListFilter{Type: t})
		if err != nil {
			return err
		}
		return c.print(recs)
	}

	recs := make([]domain.Location, 0, c.app.Store.Len())
	for rec := range c.app.Store.List(t) {
		recs = append(recs, rec)
	}
	return c.print(recs)
}

func (c *clientCmd) rm(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: rm takes one id", ErrUsage)
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("%w: invalid id %q", ErrUsage, args[0])
	}

	remoteDeleted, err := c.app.DeleteLocation(ctx, id)
	if err != nil {
		return err
	}
	return c.print(map[string]any{"id": id, "remote_deleted": remoteDeleted})
}

func (c *clientCmd) sync(ctx context.Context) error {
	if !c.app.Engine.CheckConnection(ctx) {
		return c.print(c.app.Engine.Status())
	}
	res, err := c.app.Engine.SyncAll(ctx)
	if err != nil {
		return err
	}
	return c.print(res)
}

func (c *clientCmd) status(ctx context.Context) error {
	c.app.Engine.CheckConnection(ctx)
	return c.print(struct {
		InstallID string        `json:"install_id"`
		Server    string        `json:"server"`
		Records   int           `json:"records"`
		Sync      syncer.Status `json:"sync"`
	}{
		InstallID: c.app.InstallID.String(),
		Server:    c.app.Config.ServerURL,
		Records:   c.app.Store.Len(),
		Sync:      c.app.Engine.Status(),
	})
}

func (c *clientCmd) stats(ctx context.Context) error {
	st, err := c.app.Remote.Stats(ctx)
	if err != nil {
		return err
	}
	return c.print(st)
}

// run keeps the client alive with auto sync until interrupted.
func (c *clientCmd) run(ctx context.Context) error {
	if err := c.app.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

func (c *clientCmd) nearby(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("nearby", flag.ContinueOnError)
	lat := fs.Float64("lat", 0, "latitude")
	lng := fs.Float64("lng", 0, "longitude")
	radius := fs.Float64("radius", 1000, "radius in meters")
	typ := fs.String("type", "", "plant or litter")
	fromServer := fs.Bool("remote", false, "ask the server instead of local records")
	if err := fs.Parse(args); err != nil {
		return ErrUsage
	}

	t, err := domain.ParseLocationType(*typ)
	if err != nil {
		return err
	}
	q := domain.NearbyQuery{Lat: *lat, Lng: *lng, RadiusM: *radius, Type: t}

	if *fromServer {
		found, err := c.app.Remote.Nearby(ctx, q)
		if err != nil {
			return err
		}
		return c.print(found)
	}

	found, err := c.app.NearbyLocal(q)
	if err != nil {
		return err
	}
	return c.print(found)
}

func (c *clientCmd) export(args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	path := fs.String("o", "", "output file (stdout when empty)")
	if err := fs.Parse(args); err != nil {
		return ErrUsage
	}

	if *path == "" {
		return c.app.ExportLocal(c.out)
	}

	f, err := os.Create(*path)
	if err != nil {
		return err
	}
	if err := c.app.ExportLocal(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (c *clientCmd) importFile(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: import takes one file", ErrUsage)
	}
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	imported, skipped, err := c.app.ImportLocal(ctx, f)
	if err != nil {
		return err
	}
	return c.print(map[string]int{"imported": imported, "skipped": skipped})
}

func (c *clientCmd) config(ctx context.Context, args []string) error {
	if len(args) == 0 || args[0] == "show" {
		shown := c.app.Config
		if shown.APIKey != "" {
			shown.APIKey = "***"
		}
		return c.print(shown)
	}

	switch {
	case args[0] == "offline" && len(args) == 2:
		on, err := parseOnOff(args[1])
		if err != nil {
			return err
		}
		return c.app.SetOffline(ctx, on)

	case args[0] == "set" && len(args) == 3:
		next := c.app.Config
		switch args[1] {
		case "server_url":
			next.ServerURL = args[2]
		case "api_key":
			next.APIKey = args[2]
		case "sync_interval":
			d, err := time.ParseDuration(args[2])
			if err != nil {
				return fmt.Errorf("%w: %v", ErrUsage, err)
			}
			next.SyncInterval = config.Duration(d)
		default:
			return fmt.Errorf("%w: unknown setting %q", ErrUsage, args[1])
		}
		if err := next.Validate(); err != nil {
			return err
		}
		c.app.Config = next
		return c.app.SaveConfig(ctx)
	}

	return fmt.Errorf("%w: config %v", ErrUsage, args)
}

func parseOnOff(s string) (bool, error) {
	switch s {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("%w: expected on or off, got %q", ErrUsage, s)
}

func (c *clientCmd) print(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
