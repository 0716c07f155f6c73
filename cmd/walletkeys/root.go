package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/joncooperworks/walletkeys/config"
	"github.com/joncooperworks/walletkeys/crypto/keystore"
)

// rootOptions injects dependencies that are otherwise built from config.
type rootOptions struct {
	storage keystore.Storage
	logger  *zap.Logger
}

// cli holds the state shared by all subcommands of one invocation.
type cli struct {
	opts   rootOptions
	v      *viper.Viper
	cfg    *config.Config
	logger *zap.Logger
	app    *app
	in     *bufio.Reader
}

func newRootCmd(opts rootOptions) *cobra.Command {
	c := &cli{opts: opts, v: viper.New()}
	c.v.SetEnvPrefix("walletkeys")
	_ = c.v.BindEnv("config")
	_ = c.v.BindEnv("password")
	_ = c.v.BindEnv("new_password")

	rootCmd := &cobra.Command{
		Use:               "walletkeys",
		Short:             "Manage encrypted wallet keys",
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return c.teardown(cmd)
		},
	}

	rootCmd.PersistentFlags().String("config", "", "Path to configuration file (env WALLETKEYS_CONFIG)")
	_ = c.v.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))

	rootCmd.AddCommand(c.genkeyCmd())
	rootCmd.AddCommand(c.addCmd())
	rootCmd.AddCommand(c.listCmd())
	rootCmd.AddCommand(c.showCmd())
	rootCmd.AddCommand(c.removeCmd())
	rootCmd.AddCommand(c.passwdCmd())
	rootCmd.AddCommand(c.encryptersCmd())

	return rootCmd
}

func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(c.v.GetString("config"))
	if err != nil {
		return err
	}
	c.cfg = cfg

	c.logger = c.opts.logger
	if c.logger == nil {
		c.logger, err = newLogger(cfg.LogLevel)
		if err != nil {
			return err
		}
	}

	c.app, err = newApp(cmd.Context(), cfg, c.opts.storage, c.logger)
	if err != nil {
		return err
	}
	c.in = bufio.NewReader(cmd.InOrStdin())
	return nil
}

func (c *cli) teardown(cmd *cobra.Command) error {
	var err error
	if c.app != nil {
		err = c.app.Close(cmd.Context())
	}
	if c.logger != nil {
		_ = c.logger.Sync()
	}
	return err
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	zcfg.Encoding = "console"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zcfg.Build()
}

// password returns the value bound to key (WALLETKEYS_PASSWORD or
// WALLETKEYS_NEW_PASSWORD), prompting on stdin when it is unset.
func (c *cli) password(cmd *cobra.Command, key, prompt string) (string, error) {
	if pw := c.v.GetString(key); pw != "" {
		return pw, nil
	}
	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	line, err := c.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
