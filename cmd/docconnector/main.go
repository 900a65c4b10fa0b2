// docconnector CLI
//
// Drives a document connector session from a terminal.
//
// Sub-commands:
//
//	docconnector list [flags]               Resolve agent/asset and list files
//	docconnector download [flags] <id|name> Download one file and save it
//	docconnector token [flags]              Mint a component context token
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/fruitsalade/docconnector/internal/config"
	"github.com/fruitsalade/docconnector/internal/host"
	"github.com/fruitsalade/docconnector/internal/hostctx"
	"github.com/fruitsalade/docconnector/internal/logging"
	"github.com/fruitsalade/docconnector/internal/resolver"
	"github.com/fruitsalade/docconnector/internal/saver"
	"github.com/fruitsalade/docconnector/internal/session"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		printUsage()
		return nil
	}

	switch args[0] {
	case "list":
		return cmdList(args[1:])
	case "download":
		return cmdDownload(args[1:])
	case "token":
		return cmdToken(args[1:])
	case "help", "-h", "--help":
		printUsage()
		return nil
	}
	return fmt.Errorf("unknown command %q (see 'docconnector help')", args[0])
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: docconnector <command> [flags]

Commands:
  list               Resolve agent/asset and list files
  download <id|name> Download one file and save it
  token              Mint a component context token

Environment:
  HOST_URL, CONTEXT_TOKEN, RESOLVE_TIMEOUT, SAVE_BACKEND, SAVE_DIR, S3_*`)
}

// sessionFlags binds the flags shared by list and download onto cfg.
func sessionFlags(fs *pflag.FlagSet, cfg *config.Client) *bool {
	fs.StringVar(&cfg.HostURL, "host", cfg.HostURL, "functions server URL")
	fs.StringVar(&cfg.ContextToken, "token", cfg.ContextToken, "component context token")
	fs.DurationVar(&cfg.ResolveTimeout, "resolve-timeout", cfg.ResolveTimeout, "agent/asset name resolution timeout")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	return fs.Bool("json", false, "print JSON instead of a table")
}

func newSession(ctx context.Context, cfg *config.Client) (*session.Manager, error) {
	if err := logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	if cfg.ContextToken == "" {
		return nil, fmt.Errorf("no context token: use --token or CONTEXT_TOKEN")
	}

	client := host.New(host.Config{
		BaseURL:      cfg.HostURL,
		Timeout:      cfg.RequestTimeout,
		ContextToken: cfg.ContextToken,
	})
	if err := client.Ping(ctx); err != nil {
		logging.Warn("functions server health check failed", zap.Error(err))
	}

	target, err := saver.New(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return session.New(client, resolver.New(client, cfg.ResolveTimeout), target), nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func cmdList(args []string) error {
	cfg := config.LoadClient()
	fs := pflag.NewFlagSet("list", pflag.ContinueOnError)
	asJSON := sessionFlags(fs, cfg)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	m, err := newSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer logging.Sync()

	m.Init(ctx)
	return printListing(m, *asJSON)
}

func cmdDownload(args []string) error {
	cfg := config.LoadClient()
	fs := pflag.NewFlagSet("download", pflag.ContinueOnError)
	asJSON := sessionFlags(fs, cfg)
	fs.StringVar(&cfg.SaveBackend, "save-backend", cfg.SaveBackend, "where to save files (local, s3)")
	fs.StringVar(&cfg.SaveDir, "save-dir", cfg.SaveDir, "directory for the local save backend")
	fs.StringVar(&cfg.S3Bucket, "s3-bucket", cfg.S3Bucket, "bucket for the s3 save backend")
	fs.StringVar(&cfg.S3Prefix, "s3-prefix", cfg.S3Prefix, "key prefix for the s3 save backend")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: docconnector download [flags] <id|name>")
	}
	want := fs.Arg(0)

	ctx, cancel := signalContext()
	defer cancel()

	m, err := newSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer logging.Sync()

	stop := watchDownloads(m)
	defer stop()

	m.Init(ctx)

	record, ok := m.Find(want)
	if !ok {
		for _, f := range m.Files.Get() {
			if f.Name == want {
				record, ok = f, true
				break
			}
		}
	}
	if !ok {
		return fmt.Errorf("no file with id or name %q", want)
	}

	outcome := m.DownloadFile(ctx, record)
	if *asJSON {
		return json.NewEncoder(os.Stdout).Encode(map[string]string{
			"id":      record.ID,
			"name":    record.Name,
			"outcome": string(outcome),
		})
	}

	switch outcome {
	case session.Saved:
		fmt.Printf("Saved %s\n", record.Name)
	case session.Refreshed:
		fmt.Printf("%s is no longer available; listing refreshed\n", record.Name)
		return printListing(m, false)
	default:
		return fmt.Errorf("download of %s failed", record.Name)
	}
	return nil
}

// watchDownloads reports downloading flag changes on stderr, the way a view
// observing the listing would re-render them.
func watchDownloads(m *session.Manager) func() {
	updates, cancel := m.Files.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		active := map[string]bool{}
		for files := range updates {
			for _, f := range files {
				if f.Downloading && !active[f.ID] {
					fmt.Fprintf(os.Stderr, "Downloading %s...\n", f.Name)
				}
				active[f.ID] = f.Downloading
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func printListing(m *session.Manager, asJSON bool) error {
	if asJSON {
		return json.NewEncoder(os.Stdout).Encode(map[string]any{
			"agent": m.Agent.Get(),
			"asset": m.Asset.Get(),
			"files": m.Files.Get(),
		})
	}

	fmt.Printf("Agent: %s\n", orDash(m.Agent.Get()))
	fmt.Printf("Asset: %s\n", orDash(m.Asset.Get()))

	files := m.Files.Get()
	if len(files) == 0 {
		fmt.Println("No files")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME")
	for _, f := range files {
		fmt.Fprintf(tw, "%s\t%s\n", f.ID, f.Name)
	}
	return tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func cmdToken(args []string) error {
	var (
		secret     string
		agentID    string
		agentName  string
		assetID    string
		assetName  string
		properties map[string]string
		ttl        time.Duration
	)

	fs := pflag.NewFlagSet("token", pflag.ContinueOnError)
	fs.StringVar(&secret, "secret", os.Getenv("CONTEXT_SECRET"), "shared context secret")
	fs.StringVar(&agentID, "agent-id", "", "agent id")
	fs.StringVar(&agentName, "agent-name", "", "agent name")
	fs.StringVar(&assetID, "asset-id", "", "asset id")
	fs.StringVar(&assetName, "asset-name", "", "asset name")
	fs.StringToStringVarP(&properties, "property", "p", nil, "custom property of the asset (or the agent when no asset), key=value")
	fs.DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime (0 for no expiry)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if secret == "" {
		return fmt.Errorf("no secret: use --secret or CONTEXT_SECRET")
	}

	var agent, asset *hostctx.Resource
	if agentID != "" || agentName != "" {
		agent = &hostctx.Resource{ID: agentID, Name: agentName}
	}
	if assetID != "" || assetName != "" {
		asset = &hostctx.Resource{ID: assetID, Name: assetName}
	}
	if agent == nil && asset == nil {
		return fmt.Errorf("an agent or an asset is required")
	}

	if len(properties) > 0 {
		target := asset
		if target == nil {
			target = agent
		}
		target.CustomProperties = properties
	}

	token, err := hostctx.NewSigner(secret).Mint(agent, asset, ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
