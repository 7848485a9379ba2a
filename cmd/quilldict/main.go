package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/quillpad/quilldict/internal/bus"
	"github.com/quillpad/quilldict/internal/config"
	"github.com/quillpad/quilldict/internal/daemon"
	"github.com/quillpad/quilldict/internal/logging"
	"github.com/quillpad/quilldict/internal/models/whisper"
	"github.com/quillpad/quilldict/internal/recording"
	"github.com/quillpad/quilldict/internal/tui"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "quilldict",
	Short:        "Real-time dictation with live previews and a final transcript",
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(
		serveCmd(),
		startCmd(),
		stopCmd(),
		statusCmd(),
		sessionsCmd(),
		devicesCmd(),
		diagnoseCmd(),
		listenCmd(),
		versionCmd(),
		quitCmd(),
		configureCmd(),
		modelCmd(),
	)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := config.NewManager()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logging.Init(mgr.GetConfig().ToLoggingConfig())

			d := daemon.New(mgr, daemon.Options{})
			return d.Run(context.Background())
		},
	}
}

// sendCommand forwards one control command and turns ERR replies into errors.
func sendCommand(cmd byte) (string, string, error) {
	resp, err := bus.SendCommand(cmd)
	if err != nil {
		return "", "", fmt.Errorf("daemon not reachable (is `quilldict serve` running?): %w", err)
	}
	kind, msg := bus.Reply(resp)
	if kind == "ERR" {
		return kind, msg, fmt.Errorf("%s", msg)
	}
	return kind, msg, nil
}

func simpleCmd(use, short string, cmd byte) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(c *cobra.Command, args []string) error {
			_, msg, err := sendCommand(cmd)
			if err != nil {
				return err
			}
			fmt.Println(renderOK(msg))
			return nil
		},
	}
}

func startCmd() *cobra.Command {
	return simpleCmd("start", "Start a dictation session", bus.CmdStart)
}

func stopCmd() *cobra.Command {
	return simpleCmd("stop", "Stop the session and run the final transcription", bus.CmdStop)
}

func quitCmd() *cobra.Command {
	return simpleCmd("quit", "Shut the daemon down", bus.CmdQuit)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Get protocol version",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, msg, err := sendCommand(bus.CmdVersion)
			if err != nil {
				return err
			}
			fmt.Println(msg)
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the dictation state",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, msg, err := sendCommand(bus.CmdStatus)
			if err != nil {
				return err
			}
			if raw {
				fmt.Println(msg)
				return nil
			}
			out, err := renderStatus(msg)
			if err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "json", false, "print the raw JSON reply")
	return cmd
}

func sessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List recorded sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, msg, err := sendCommand(bus.CmdSessions)
			if err != nil {
				return err
			}
			out, err := renderSessions(msg)
			if err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		},
	}
}

func diagnoseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diagnose",
		Short: "Check engine, model and microphone",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, msg, err := sendCommand(bus.CmdDiagnose)
			if err != nil {
				return err
			}
			out, healthy, err := renderDiagnosis(msg)
			if err != nil {
				return err
			}
			fmt.Println(out)
			if !healthy {
				return fmt.Errorf("some checks failed")
			}
			return nil
		},
	}
}

func devicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List audio input devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := recording.ListInputDevices()
			if err != nil {
				return err
			}
			fmt.Println(renderDevices(devices))
			return nil
		},
	}
}

func listenCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Print dictation events as they arrive",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				addr = cfg.Server.Listen
			}
			if addr == "" {
				return fmt.Errorf("event endpoint disabled (server.listen is empty)")
			}
			return followEvents(cmd.Context(), addr, os.Stdout)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "event endpoint host:port (defaults to server.listen)")
	return cmd
}

func configureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "configure",
		Short: "Interactive configuration setup",
		Long: `Interactive configuration for quilldict.
This will guide you through setting up:
- Microphone and speech segmentation
- Recognition engine and model
- Session storage, event endpoint and notifications`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigure()
		},
	}
}

func runConfigure() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	result, err := tui.Run(cfg)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	if result.Cancelled {
		fmt.Println(tui.StyleMuted.Render("Configuration cancelled."))
		return nil
	}

	if err := result.Config.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	if err := config.Save(result.Config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Println()
	fmt.Println(tui.StyleSuccess.Render("Configuration saved successfully!"))
	fmt.Println()
	showNextSteps(result.Config)
	return nil
}

func showNextSteps(cfg *config.Config) {
	serviceRunning := false
	if err := exec.Command("systemctl", "--user", "is-active", "--quiet", "quilldict.service").Run(); err == nil {
		serviceRunning = true
	}

	fmt.Println(tui.StyleHeader.Render("Next Steps"))
	step := 1
	if cfg.Engine.Provider == "whisper.cpp" && cfg.Engine.ModelPath == "" && !whisper.IsInstalled(cfg.Engine.Model) {
		fmt.Printf("%d. Download the model: quilldict model download %s\n", step, cfg.Engine.Model)
		step++
	}
	if !serviceRunning {
		fmt.Printf("%d. Start the daemon: quilldict serve\n", step)
	} else {
		fmt.Printf("%d. Settings apply at the next session start; the daemon reloads the file itself\n", step)
	}
	step++
	fmt.Printf("%d. Check your setup: quilldict diagnose\n", step)
	fmt.Println()

	configPath, _ := config.GetConfigPath()
	fmt.Println(tui.KeyValue("Config file:", configPath))
}
