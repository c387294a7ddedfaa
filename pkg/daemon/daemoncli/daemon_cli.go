package daemoncli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pospeselr/bydpad/pkg/daemon"
)

func Main(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) error {
	cmd := NewRootCmd("/etc/bydpad")
	cmd.SetArgs(args)
	cmd.SetIn(in)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	return cmd.ExecuteContext(ctx)
}

type daemonProvider func() *daemon.Daemon

func NewRootCmd(configDir string) *cobra.Command {
	cfg := daemon.Config{
		SettingsConfig: filepath.Join(configDir, "settings.yml"),
		UinputPath:     "/dev/uinput",
	}
	rootCmd := &cobra.Command{
		Use:   "bydpad",
		Short: "BYD touchpad daemon",
		Long:  `bydpad drives BYD PS/2 touchpads over serio_raw ports and exposes them as virtual input devices.`,
	}
	var d *daemon.Daemon
	daemonProvider := func() *daemon.Daemon {
		return d
	}
	rootCmd.PersistentFlags().StringVar(&cfg.SettingsConfig, "settings-config", cfg.SettingsConfig, "pad settings file")
	rootCmd.PersistentFlags().StringVar(&cfg.UinputPath, "uinput-path", cfg.UinputPath, "uinput device node")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		var err error
		d, err = daemon.New(cfg)
		return err
	}
	rootCmd.AddCommand(NewRun(daemonProvider))
	rootCmd.AddCommand(NewListPorts(daemonProvider))
	rootCmd.AddCommand(NewProbe(daemonProvider))
	return rootCmd
}

func NewRun(daemon daemonProvider) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the BYD touchpad daemon",
		Long:  `Watches for serio_raw ports, initializes any BYD pad found on them and forwards decoded input until stopped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return daemon().Run(cmd.Context())
		},
	}
}

func NewListPorts(daemon daemonProvider) *cobra.Command {
	return &cobra.Command{
		Use:   "list-ports",
		Short: "List serio_raw ports",
		Long:  `List serio_raw ports currently present on the system.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := daemon().Pads().ListPorts()
			if err != nil {
				return err
			}
			jsonB, err := json.MarshalIndent(ports, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(jsonB))
			return nil
		},
	}
}

func NewProbe(daemon daemonProvider) *cobra.Command {
	return &cobra.Command{
		Use:   "probe <port>",
		Short: "Probe a port for a BYD pad",
		Long:  `Run the detection sequence on a port once and report the matched model.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: probe <port>")
			}
			addr, err := daemon().Pads().ResolveAddress(args[0])
			if err != nil {
				return err
			}
			model, err := daemon().Pads().Probe(addr)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), model.Name)
			return nil
		},
	}
}
