package main

import (
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/spf13/cobra"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"scalper/internal/journal"
	"scalper/internal/ops"
)

var version = "dev"

type globalFlags struct {
	config    string
	reload    time.Duration
	pyroscope string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	var profiler *pyroscope.Profiler

	root := &cobra.Command{
		Use:           "scalper",
		Short:         "Signal driven scalping engine with staged exits and a daily loss breaker",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if flags.pyroscope == "" {
				return nil
			}
			p, err := pyroscope.Start(pyroscope.Config{
				ApplicationName: "scalper." + cmd.Name(),
				ServerAddress:   flags.pyroscope,
				Tags:            map[string]string{"version": version},
				ProfileTypes: []pyroscope.ProfileType{
					pyroscope.ProfileCPU,
					pyroscope.ProfileAllocObjects,
					pyroscope.ProfileAllocSpace,
					pyroscope.ProfileInuseObjects,
					pyroscope.ProfileInuseSpace,
				},
			})
			if err != nil {
				return errors.Wrap(err, "pyroscope start").With("server", flags.pyroscope)
			}
			profiler = p
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if profiler != nil {
				_ = profiler.Stop()
			}
		},
	}

	root.PersistentFlags().StringVar(&flags.config, "config", "", "Path to JSON config")
	root.PersistentFlags().DurationVar(&flags.reload, "config-reload-interval", 2*time.Second, "Config reload interval (0=disable)")
	root.PersistentFlags().StringVar(&flags.pyroscope, "pyroscope", "", "Pyroscope server address (empty=disable)")

	root.AddCommand(newRunCmd(flags, false))
	root.AddCommand(newRunCmd(flags, true))
	root.AddCommand(newConfigCmd(flags))
	root.AddCommand(newJournalCmd(flags))
	root.AddCommand(newVersionCmd())
	return root
}

func newRunCmd(flags *globalFlags, paperMode bool) *cobra.Command {
	use, short := "run", "Trade live through the terminal bridge"
	if paperMode {
		use, short = "paper", "Trade against a simulated broker and random-walk quotes"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := ops.Load(flags.config)
			if err != nil {
				return err
			}
			logs.Infof("scalper %s starting in %s mode, symbol: %s", version, use, loaded.Symbol)
			return run(cmd.Context(), flags, ops.NewRuntime(loaded), paperMode)
		},
	}
}

func newConfigCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ops.LoadFile(flags.config)
			if err != nil {
				return err
			}
			if _, err := ops.Resolve(cfg); err != nil {
				return err
			}
			out, err := sonic.ConfigStd.MarshalIndent(cfg, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}

type journalLine struct {
	At    time.Time     `json:"at"`
	Event string        `json:"event"`
	Entry journal.Entry `json:"entry"`
}

func newJournalCmd(flags *globalFlags) *cobra.Command {
	var dir, event string
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Dump journal segment files as JSON lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" {
				cfg, err := ops.LoadFile(flags.config)
				if err != nil {
					return err
				}
				dir = cfg.Storage.JournalDir
			}
			out := cmd.OutOrStdout()
			return journal.ReadWAL(dir, "", func(at time.Time, e journal.Entry) error {
				if event != "" && e.Type.String() != event {
					return nil
				}
				line, err := sonic.ConfigFastest.Marshal(journalLine{At: at, Event: e.Type.String(), Entry: e})
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(out, string(line))
				return err
			})
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Journal directory (default from config)")
	cmd.Flags().StringVar(&event, "event", "", "Only print this event type, e.g. position_close")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "scalper", version)
		},
	}
}
