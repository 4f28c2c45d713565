// Package main is the entrypoint for the mediactl CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/avolokh/mediactl/internal/apps"
	"github.com/avolokh/mediactl/internal/channel"
	"github.com/avolokh/mediactl/internal/config"
	"github.com/avolokh/mediactl/internal/manager"
	"github.com/avolokh/mediactl/internal/output"
	"github.com/avolokh/mediactl/pkg/hostinfo"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Global flags
var (
	debug      bool
	noColor    bool
	configPath string
	flagHost   string
	flagUser   string
	flagPort   int
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "mediactl",
	Short: "mediactl - Remote media player control over SSH",
	Long: `mediactl controls media players on a remote macOS machine over SSH.
It keeps one connection alive, multiplexes commands across channels, and
talks to the players through their scripting interfaces.

Supports Music, Spotify, TV, and QuickTime Player.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debug output with connection and command tracing")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path")
	rootCmd.PersistentFlags().StringVarP(&flagHost, "host", "H", "", "Target host")
	rootCmd.PersistentFlags().StringVarP(&flagUser, "user", "u", "", "Login user")
	rootCmd.PersistentFlags().IntVarP(&flagPort, "port", "p", 0, "SSH port")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(doCmd)
	rootCmd.AddCommand(volumeCmd)
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(hostinfoCmd)
}

// session bundles everything a subcommand needs once connected.
type session struct {
	mgr *manager.Manager
	out *output.Output
	ctx context.Context

	cancel context.CancelFunc
}

// connect loads config, resolves credentials, and establishes the connection.
// The returned session must be closed.
func connect() (*session, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if flagHost != "" {
		cfg.Host = flagHost
	}
	if flagUser != "" {
		cfg.User = flagUser
	}
	if flagPort != 0 {
		cfg.Port = flagPort
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("no target host (use --host or a config file)")
	}
	if cfg.User == "" {
		return nil, fmt.Errorf("no login user (use --user or a config file)")
	}

	password := cfg.Password
	if password == "" {
		password, err = promptPassword(cfg.User, cfg.Host)
		if err != nil {
			return nil, err
		}
	}

	out := output.New(os.Stdout)
	out.SetColor(!noColor)
	out.SetDebug(debug)

	mgr := manager.New(manager.Config{
		Port:              cfg.Port,
		PoolSize:          cfg.PoolSize,
		CommandTimeout:    cfg.CommandTimeout,
		ConnectTimeout:    cfg.ConnectTimeout,
		HeartbeatInterval: cfg.HeartbeatInterval,
		Interpreter:       cfg.Interpreter,
	}, out)
	mgr.OnConnectionLoss(func(err error) {
		out.Error("connection lost: %v", err)
	})

	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nInterrupted, cleaning up...")
		cancel()
	}()

	if err := mgr.Connect(ctx, cfg.Host, cfg.User, password); err != nil {
		cancel()
		return nil, err
	}

	return &session{mgr: mgr, out: out, ctx: ctx, cancel: cancel}, nil
}

func (s *session) close() {
	s.mgr.Disconnect()
	s.cancel()
}

// promptPassword reads the password from the terminal without echo.
func promptPassword(user, host string) (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", fmt.Errorf("no password in config and stdin is not a terminal")
	}
	fmt.Fprintf(os.Stderr, "%s@%s password: ", user, host)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(raw), nil
}

// statusCmd reports what is playing.
var statusCmd = &cobra.Command{
	Use:   "status [app]",
	Short: "Show playback status",
	Long: `Query the current track and playback state.

With no argument every supported player is queried as one batch.

Examples:
  mediactl status
  mediactl status music`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	s, err := connect()
	if err != nil {
		return err
	}
	defer s.close()

	if len(args) == 1 {
		app, err := apps.FromName(args[0])
		if err != nil {
			return err
		}
		return reportStatus(s, app)
	}

	s.mgr.BeginBatch()
	defer s.mgr.EndBatch(s.ctx)
	for _, app := range apps.All() {
		if err := reportStatus(s, app); err != nil && s.ctx.Err() != nil {
			return err
		}
	}
	return nil
}

func reportStatus(s *session, app apps.App) error {
	record, err := s.mgr.Execute(s.ctx, app.Key(), app.StatusScript(), "status "+app.Key())
	if err != nil {
		return err
	}
	st := apps.ParseStatus(record)
	if !st.Valid {
		s.out.Status(app.Key(), "", "", false)
		return nil
	}
	s.out.Status(app.Key(), st.Title, st.Artist, st.Playing)
	return nil
}

// doCmd sends a playback action.
var doCmd = &cobra.Command{
	Use:   "do <app> <action>",
	Short: "Send a playback command",
	Long: `Send a playback action to a player.

Actions: play, pause, playpause, next, previous, stop.

Examples:
  mediactl do music playpause
  mediactl do spotify next`,
	Args: cobra.ExactArgs(2),
	RunE: runDo,
}

func runDo(cmd *cobra.Command, args []string) error {
	app, err := apps.FromName(args[0])
	if err != nil {
		return err
	}
	action, err := apps.ActionFromName(args[1])
	if err != nil {
		return err
	}
	script, err := app.ActionScript(action)
	if err != nil {
		return err
	}

	s, err := connect()
	if err != nil {
		return err
	}
	defer s.close()

	if _, err := s.mgr.Execute(s.ctx, app.Key(), script, action.String()); err != nil {
		return err
	}
	s.out.Info("%s: %s", app.Key(), action)
	return nil
}

// volumeCmd reads or sets the output volume.
var volumeCmd = &cobra.Command{
	Use:   "volume [level]",
	Short: "Show or set the output volume",
	Long: `Read the system output volume, or set it to a level between 0 and 100.

Examples:
  mediactl volume
  mediactl volume 42`,
	Args: cobra.MaximumNArgs(1),
	RunE: runVolume,
}

func runVolume(cmd *cobra.Command, args []string) error {
	s, err := connect()
	if err != nil {
		return err
	}
	defer s.close()

	if len(args) == 1 {
		level, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("volume level must be a number: %w", err)
		}
		if _, err := s.mgr.Execute(s.ctx, channel.KeySystem, apps.SetVolumeScript(level), "set volume"); err != nil {
			return err
		}
		s.out.Info("volume set to %d", level)
		return nil
	}

	out, err := s.mgr.Execute(s.ctx, channel.KeySystem, apps.VolumeStatusScript(), "volume query")
	if err != nil {
		return err
	}
	s.out.Info("volume: %s", out)
	return nil
}

// execCmd runs a raw script on the system channel.
var execCmd = &cobra.Command{
	Use:   "exec <script>",
	Short: "Run a raw script on the target",
	Long: `Execute an arbitrary script expression on the target and print the
result. The script runs on the dedicated system channel.

Example:
  mediactl exec 'get volume settings'`,
	Args: cobra.ExactArgs(1),
	RunE: runExec,
}

func runExec(cmd *cobra.Command, args []string) error {
	s, err := connect()
	if err != nil {
		return err
	}
	defer s.close()

	out, err := s.mgr.Execute(s.ctx, channel.KeySystem, args[0], "exec")
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}

// watchCmd polls playback status until interrupted.
var watchCmd = &cobra.Command{
	Use:   "watch [app]",
	Short: "Continuously show playback status",
	Long: `Poll playback status on an interval until interrupted. Each polling
round runs as one batch.

Examples:
  mediactl watch
  mediactl watch spotify --interval 2s`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationP("interval", "i", 5*time.Second, "Polling interval")
}

func runWatch(cmd *cobra.Command, args []string) error {
	interval, _ := cmd.Flags().GetDuration("interval")

	targets := apps.All()
	if len(args) == 1 {
		app, err := apps.FromName(args[0])
		if err != nil {
			return err
		}
		targets = []apps.App{app}
	}

	s, err := connect()
	if err != nil {
		return err
	}
	defer s.close()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s.mgr.BeginBatch()
		for _, app := range targets {
			if err := reportStatus(s, app); err != nil {
				if s.ctx.Err() != nil {
					s.mgr.EndBatch(context.Background())
					return nil
				}
				s.mgr.EndBatch(s.ctx)
				return err
			}
		}
		s.mgr.EndBatch(s.ctx)

		select {
		case <-s.ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// hostinfoCmd prints facts about the target machine.
var hostinfoCmd = &cobra.Command{
	Use:   "hostinfo",
	Short: "Show target machine information",
	Long:  `Gather and display system information about the target machine.`,
	Args:  cobra.NoArgs,
	RunE:  runHostinfo,
}

func runHostinfo(cmd *cobra.Command, args []string) error {
	s, err := connect()
	if err != nil {
		return err
	}
	defer s.close()

	s.mgr.BeginBatch()
	info, err := hostinfo.Gather(s.ctx, s.mgr)
	s.mgr.EndBatch(s.ctx)
	if err != nil {
		return err
	}

	var names []string
	for _, app := range apps.All() {
		names = append(names, app.String())
	}
	running, _ := hostinfo.RunningPlayers(s.ctx, s.mgr, names)

	s.out.Section("Host")
	for _, fact := range []string{"computer_name", "host_name", "user_name", "os_version", "cpu_type", "physical_memory", "ip_address", "output_volume"} {
		if v, ok := info[fact]; ok {
			s.out.Info("%-16s %s", fact, v)
		}
	}

	s.out.Section("Players")
	for _, name := range names {
		state := "not running"
		if running[name] {
			state = "running"
		}
		s.out.Info("%-16s %s", name, state)
	}
	return nil
}
