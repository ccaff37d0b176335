package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/cloudflare/cloudflare-go"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/wfallows/cfquorum"
	"golang.org/x/term"
)

var flags = struct {
	ConfigFile string
	Token      string
	ZoneID     string
	ZoneName   string
	KeyFile    string
	Sources    []string
	IPTimeout  int
	Verify     bool
	DryRun     bool
	Verbose    bool
}{}

var logger zerolog.Logger

func init() {
	pflag.StringVarP(&flags.ConfigFile, "config", "c", "", "Path to a YAML config file")
	pflag.StringVarP(&flags.Token, "token", "t", os.Getenv("CLOUDFLARE_API_TOKEN"), "The Cloudflare API token")
	pflag.StringVar(&flags.ZoneID, "zone-id", os.Getenv("CLOUDFLARE_ZONE_ID"), "The ID of the zone holding the record")
	pflag.StringVar(&flags.ZoneName, "zone-name", os.Getenv("CLOUDFLARE_ZONE_NAME"), "The name of the zone holding the record; used to look up the zone ID when no ID is set")
	pflag.StringVar(&flags.KeyFile, "key-file", filepath.Join(os.Getenv("HOME"), ".cloudflare"), "Path to the Cloudflare API credentials file, used when no token is set")
	pflag.StringArrayVar(&flags.Sources, "source", nil, "Lookup source endpoint; repeat to replace the default list")
	pflag.IntVar(&flags.IPTimeout, "ip-timeout", 0, "Request timeout for IP services in seconds (default 5)")
	pflag.BoolVar(&flags.Verify, "verify", false, "Talk to all available IP services and require an absolute majority before making any changes")
	pflag.BoolVarP(&flags.DryRun, "dry-run", "n", false, "Don't update the DNS record; only report the IP that would be written")
	pflag.BoolVarP(&flags.Verbose, "verbose", "v", false, "Increase log output to show what the application is doing")
	pflag.Parse()
}

func main() {
	level := zerolog.InfoLevel
	if flags.Verbose {
		level = zerolog.DebugLevel
	}
	logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	if err := run(); err != nil {
		logger.Fatal().Err(err).Msg("run failed")
	}
}

func run() error {
	conf, err := mergedConfig()
	if err != nil {
		return err
	}
	if err := validate(conf); err != nil {
		return err
	}
	logger.Debug().Interface("config", conf).Msg("config is valid")

	token := flags.Token
	if token == "" {
		token, err = keyFileToken(flags.KeyFile)
		if err != nil {
			return err
		}
	}

	opts := []cfquorum.Option{
		cfquorum.UsingCloudflare(token, cfquorum.CloudflareZone{ID: conf.Zone.ID, Name: conf.Zone.Name}),
		cfquorum.WithTimeout(conf.Timeout()),
		cfquorum.WithLogger(&logger),
	}
	if len(conf.Sources) > 0 {
		opts = append(opts, cfquorum.UsingSources(conf.Sources...))
	}
	if conf.Verify {
		opts = append(opts, cfquorum.InQuorumMode())
	}
	if conf.DryRun {
		opts = append(opts, cfquorum.DryRun())
	}

	client, err := cfquorum.New(conf.Record, opts...)
	if err != nil {
		return fmt.Errorf("error creating client: %w", err)
	}
	action, err := client.Run(context.Background())
	if err != nil {
		return err
	}
	logger.Info().Stringer("action", action).Str("record", conf.Record).Msg("done")
	return nil
}

// mergedConfig layers flag and environment values over the optional config
// file. Flags win.
func mergedConfig() (conf cfquorum.Config, err error) {
	if flags.ConfigFile != "" {
		if conf, err = cfquorum.LoadConfig(flags.ConfigFile); err != nil {
			return conf, err
		}
	}
	if record := firstNonEmpty(pflag.Arg(0), os.Getenv("CLOUDFLARE_DNS_RECORD")); record != "" {
		conf.Record = record
	}
	if flags.ZoneID != "" {
		conf.Zone.ID = flags.ZoneID
	}
	if flags.ZoneName != "" {
		conf.Zone.Name = flags.ZoneName
	}
	if len(flags.Sources) > 0 {
		conf.Sources = flags.Sources
	}
	if pflag.CommandLine.Changed("ip-timeout") {
		conf.TimeoutSeconds = flags.IPTimeout
	}
	if flags.Verify {
		conf.Verify = true
	}
	if flags.DryRun {
		conf.DryRun = true
	}
	return conf, nil
}

func validate(conf cfquorum.Config) error {
	if conf.Record == "" {
		return errors.New("a DNS record name is required (argument or CLOUDFLARE_DNS_RECORD)")
	}
	if !strings.Contains(conf.Record, ".") {
		return errors.New("the DNS record name must have at least one dot")
	}
	if conf.Zone.ID == "" && conf.Zone.Name == "" {
		return errors.New("either --zone-id or --zone-name must be specified")
	}
	if pflag.CommandLine.Changed("ip-timeout") && flags.IPTimeout <= 0 {
		return fmt.Errorf("a timeout of %d seconds would mean no request could ever work", flags.IPTimeout)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// keyFileToken reads the API token from path, running the interactive setup
// first if the file does not exist yet.
func keyFileToken(path string) (string, error) {
	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		logger.Info().Str("path", path).Msg("key file does not exist")
		if err := runSetup(path); err != nil {
			return "", fmt.Errorf("setup: %w", err)
		}
	}
	if err := verifyPermissions(path); err != nil {
		return "", err
	}
	return readKey(path)
}

func readKey(path string) (key string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("error reading key: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	keyb, _, err := r.ReadLine()
	if err != nil {
		return "", fmt.Errorf("error reading line: %w", err)
	}
	return string(keyb), nil
}

func runSetup(path string) error {
	logger.Debug().Msg("running setup")
	time.Sleep(200 * time.Millisecond) // dirty timer hack to try to get stderr and stdout output lines to display in order
	fmt.Printf("Enter Cloudflare API Key: \n")
	bytekey, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return fmt.Errorf("error reading from stdin: %w", err)
	}
	key := string(bytekey)

	api, err := cloudflare.NewWithAPIToken(key)
	if err != nil {
		return fmt.Errorf("error creating api client: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger.Debug().Msg("verifying token...")
	result, err := api.VerifyAPIToken(ctx)
	if err != nil {
		return fmt.Errorf("unable to verify api token: %w", err)
	}
	if result.Status != "active" {
		return fmt.Errorf("expected api token status to be \"active\"; got \"%s\"", result.Status)
	}
	logger.Debug().Msg("token verified successfully")

	logger.Debug().Str("path", path).Msg("creating key file")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("unable to create \"%s\": %w", path, err)
	}
	defer f.Close()
	fmt.Fprintln(f, key)
	logger.Info().Str("path", path).Msg("token written to key file")
	return nil
}

func verifyPermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("error checking keyfile permissions: %w", err)
	}

	perms := info.Mode().Perm()
	// Error messages will state that we want 0600,
	// but we'll also accept 0400 which is even more restricted.
	// The file might be provided by some secrets managing software as readonly.
	if perms != 0600 && perms != 0400 {
		return fmt.Errorf("invalid permissions for \"%s\": expected file permissions \"-rw-------\"; found \"%s\"", path, fs.FileMode(perms))
	}

	return nil
}
