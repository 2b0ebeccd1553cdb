package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/njoerd114/newssync/internal/credentials"
	"github.com/njoerd114/newssync/internal/setup"
)

func newSetupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Interactive first-run wizard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger()
			path, err := configPath()
			if err != nil {
				return err
			}
			wiz := setup.NewWizard(os.Stdin, cmd.OutOrStdout(), logger, path,
				credentials.New(""), setup.CheckServer(logger))
			_, err = wiz.Run(cmd.Context())
			return err
		},
	}
}

func newLoginCmd() *cobra.Command {
	var remove bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store or replace the server password in the system keyring",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			kr := credentials.New("")
			out := cmd.OutOrStdout()

			if remove {
				if err := kr.Delete(cfg.ServerURL, cfg.Username); err != nil {
					return err
				}
				fmt.Fprintf(out, "Password for %s removed from keyring.\n", cfg.Username)
				return nil
			}

			var password string
			if stdinIsTerminal() {
				password = setup.NewPrompter(os.Stdin, out).Secret("Password for " + cfg.Username)
			} else {
				line, err := bufio.NewReader(os.Stdin).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("reading password from stdin: %w", err)
				}
				password = strings.TrimSpace(line)
			}
			if password == "" {
				return fmt.Errorf("empty password")
			}

			v, err := setup.CheckServer(logger)(cmd.Context(), cfg.ServerURL, cfg.Username, password)
			if err != nil {
				return fmt.Errorf("checking credentials: %w", err)
			}
			if err := kr.Save(cfg.ServerURL, cfg.Username, password); err != nil {
				return err
			}
			fmt.Fprintf(out, "✓ Logged in to News %s as %s\n", v, cfg.Username)
			return nil
		},
	}
	cmd.Flags().BoolVar(&remove, "logout", false, "remove the stored password instead")
	return cmd
}

func newInstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Install the binary and a systemd user unit that runs the daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("resolving home directory: %w", err)
			}
			cfgPath, err := configPath()
			if err != nil {
				return err
			}
			if _, err := loadConfig(); err != nil {
				return err
			}

			if err := setup.InstallBinary(home); err != nil {
				return fmt.Errorf("installing binary: %w", err)
			}
			fmt.Fprintf(out, "  ✓ Binary installed to %s\n", setup.BinaryInstallPath(home))

			if err := setup.WriteUnit(home, cfgPath); err != nil {
				return err
			}
			fmt.Fprintf(out, "  ✓ Unit written to %s\n", setup.UnitPath(home))

			if err := setup.EnableDaemon(); err != nil {
				return fmt.Errorf("enabling daemon: %w", err)
			}
			fmt.Fprintf(out, "  ✓ Daemon enabled and running\n")
			return nil
		},
	}
}

func newUninstallCmd() *cobra.Command {
	var purge bool

	cmd := &cobra.Command{
		Use:   "uninstall",
		Short: "Stop the daemon and remove installed files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("resolving home directory: %w", err)
			}

			fmt.Fprintln(out, "Uninstalling newssync...")
			step := func(label string, err error) {
				if err != nil {
					fmt.Fprintf(out, "  ⚠ %v\n", err)
					return
				}
				fmt.Fprintf(out, "  ✓ %s\n", label)
			}
			step("Daemon stopped", setup.DisableDaemon(home))
			step("Unit removed", setup.RemoveUnit(home))
			step("Binary removed", setup.RemoveBinary(home))

			if purge {
				step("Config and state DB purged", setup.PurgeUserData(home))
			} else {
				fmt.Fprintln(out, "\n  Config and state DB preserved.")
				fmt.Fprintln(out, "  Run with --purge to also remove them.")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&purge, "purge", false, "also remove config and state DB")
	return cmd
}
