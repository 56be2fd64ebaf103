package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/alcubierre-drive/spacefm/vfs"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "spacefm",
	Short: "Headless interface to the SpaceFM directory core",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initConfig(); err != nil {
			return err
		}
		vfs.InitLogger(viper.GetString("log-dir"))
		if err := vfs.Init(); err != nil {
			return fmt.Errorf("file monitoring unavailable: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		vfs.Shutdown()
	},
}

var listCmd = &cobra.Command{
	Use:   "list PATH",
	Short: "Scan a directory and print its listing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := vfs.GetOrCreate(args[0])
		if err != nil {
			return err
		}
		defer d.Release()

		listed := make(chan bool, 1)
		handle := d.OnFileListed(func(cancelled bool) {
			listed <- cancelled
		})
		defer handle.Disconnect()

		if !d.IsFileListed() {
			select {
			case <-listed:
			case <-time.After(viper.GetDuration("scan-timeout")):
				return fmt.Errorf("scan of %q timed out", d.Path())
			}
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		for _, f := range d.Files() {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				f.DisplayPermissions(), f.DisplayOwner(), f.DisplayGroup(),
				f.DisplaySize(), f.MimeType().Type(), f.Name())
		}
		w.Flush()

		if viper.GetBool("hidden-count") && d.HiddenCount() > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "%d entries suppressed by %s\n",
				d.HiddenCount(), ".hidden")
		}
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch PATH",
	Short: "Stream change events for a directory until interrupted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := vfs.GetOrCreate(args[0])
		if err != nil {
			return err
		}
		defer d.Release()

		out := cmd.OutOrStdout()
		handles := []vfs.SignalHandle{
			d.OnFileCreated(func(f *vfs.File) {
				fmt.Fprintf(out, "created\t%s\n", f.Name())
			}),
			d.OnFileChanged(func(f *vfs.File) {
				if f == nil {
					fmt.Fprintln(out, "changed\t.")
					return
				}
				fmt.Fprintf(out, "changed\t%s\n", f.Name())
			}),
			d.OnFileDeleted(func(f *vfs.File) {
				if f == nil {
					fmt.Fprintln(out, "deleted\t*")
					return
				}
				fmt.Fprintf(out, "deleted\t%s\n", f.Name())
			}),
			d.OnFileListed(func(cancelled bool) {
				fmt.Fprintf(out, "listed\t%d entries\n", d.Len())
			}),
		}
		defer func() {
			for _, h := range handles {
				h.Disconnect()
			}
		}()

		if d.MonitorDegraded() {
			fmt.Fprintln(cmd.ErrOrStderr(), "warning: monitoring unavailable, listing is one-shot")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()
		return nil
	},
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			return err
		}
		viper.AddConfigPath(filepath.Join(home, ".config", "spacefm"))
		viper.SetConfigName("spacefm")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("SPACEFM")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if cfgFile != "" {
			return err
		}
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
	}
	return nil
}

func main() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.config/spacefm/spacefm.yaml)")
	rootCmd.PersistentFlags().String("log-dir", "", "directory for rotating log files")
	rootCmd.PersistentFlags().Duration("scan-timeout", 30*time.Second, "maximum time to wait for a directory scan")
	listCmd.Flags().Bool("hidden-count", false, "report how many entries the .hidden file suppressed")

	viper.BindPFlag("log-dir", rootCmd.PersistentFlags().Lookup("log-dir"))           //nolint:errcheck
	viper.BindPFlag("scan-timeout", rootCmd.PersistentFlags().Lookup("scan-timeout")) //nolint:errcheck
	viper.BindPFlag("hidden-count", listCmd.Flags().Lookup("hidden-count"))           //nolint:errcheck

	rootCmd.AddCommand(listCmd, watchCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
