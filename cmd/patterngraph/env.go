package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/dusk-indust/patterngraph/internal/config"
	"github.com/dusk-indust/patterngraph/internal/design"
	"github.com/dusk-indust/patterngraph/internal/graph"
	"github.com/dusk-indust/patterngraph/internal/logging"
	"github.com/dusk-indust/patterngraph/internal/orchestrator"
	"github.com/dusk-indust/patterngraph/internal/patternsvc"
)

// commonFlags are accepted by every command that touches the store or the
// pattern service. Set flags override patterngraph.yml.
type commonFlags struct {
	ProjectRoot string
	ServiceURL  string
	Store       string
	StorePath   string
	LogLevel    string
	LogFormat   string
	Streaming   boolFlag
}

// boolFlag remembers whether it was set so config values survive an unset flag.
type boolFlag struct {
	set   bool
	value bool
}

func (b *boolFlag) String() string { return strconv.FormatBool(b.value) }

func (b *boolFlag) Set(s string) error {
	v, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	b.set, b.value = true, v
	return nil
}

func (b *boolFlag) IsBoolFlag() bool { return true }

func newFlagSet(name string, cf *commonFlags) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.StringVar(&cf.ProjectRoot, "project-root", ".", "directory holding patterngraph.yml")
	fs.StringVar(&cf.ServiceURL, "service-url", "", "pattern execution service base URL")
	fs.StringVar(&cf.Store, "store", "", "design store driver (memory, sqlite, kuzu)")
	fs.StringVar(&cf.StorePath, "store-path", "", "design store location")
	fs.StringVar(&cf.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	fs.StringVar(&cf.LogFormat, "log-format", "", "log format (text, json)")
	fs.Var(&cf.Streaming, "streaming", "use the streaming endpoints")
	return fs
}

// env is the resolved configuration shared by command implementations.
type env struct {
	cfg    *config.ProjectConfig
	logger *slog.Logger
}

func setup(cf *commonFlags) (*env, error) {
	cfg, err := config.Load(cf.ProjectRoot)
	if err != nil {
		return nil, err
	}
	if cf.ServiceURL != "" {
		cfg.Service.URL = cf.ServiceURL
	}
	if cf.Store != "" {
		cfg.Store.Driver = cf.Store
	}
	if cf.StorePath != "" {
		cfg.Store.Path = cf.StorePath
	}
	if cf.LogLevel != "" {
		cfg.Log.Level = cf.LogLevel
	}
	if cf.LogFormat != "" {
		cfg.Log.Format = cf.LogFormat
	}
	if cf.Streaming.set {
		on := cf.Streaming.value
		cfg.Run.Streaming = &on
	}
	cfg.Defaults()

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, logger: logger}, nil
}

func (e *env) client() *patternsvc.HTTPClient {
	opts := []patternsvc.ClientOption{patternsvc.WithTimeout(e.cfg.Service.Timeout)}
	for k, v := range e.cfg.Service.Headers {
		opts = append(opts, patternsvc.WithHeader(k, v))
	}
	return patternsvc.NewHTTPClient(e.cfg.Service.URL, opts...)
}

func (e *env) openStore() (design.Store, error) {
	store, err := design.Open(e.cfg.Store.Driver, e.cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return store, nil
}

func (e *env) engineOptions() []orchestrator.Option {
	return []orchestrator.Option{
		orchestrator.WithStreaming(e.cfg.Streaming()),
		orchestrator.WithTickInterval(e.cfg.Run.TickInterval),
		orchestrator.WithLogger(e.logger),
	}
}

// loadDesign reads ref as a design file when one exists at that path, and
// otherwise looks it up by name in the configured store.
func (e *env) loadDesign(ctx context.Context, ref string) (graph.Design, error) {
	if _, err := os.Stat(ref); err == nil {
		return readDesignFile(ref)
	}

	store, err := e.openStore()
	if err != nil {
		return graph.Design{}, err
	}
	defer store.Close()

	d, err := store.Get(ctx, ref)
	if err != nil {
		return graph.Design{}, err
	}
	return *d, nil
}

func readDesignFile(path string) (graph.Design, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return graph.Design{}, fmt.Errorf("reading %s: %w", path, err)
	}
	var d graph.Design
	if err := json.Unmarshal(data, &d); err != nil {
		return graph.Design{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return d, nil
}

// designArg parses fs and returns its single positional design reference.
func designArg(fs *flag.FlagSet, args []string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if fs.NArg() != 1 {
		return "", fmt.Errorf("usage: patterngraph %s [flags] <design>", fs.Name())
	}
	return fs.Arg(0), nil
}
