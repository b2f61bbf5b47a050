// Command pathway evaluates fixtures offline and administers the audit
// store and database schema.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/care-pathway-engine/internal/config"
	"github.com/care-pathway-engine/internal/domain"
	"github.com/care-pathway-engine/internal/logging"
)

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type cli struct {
	out    io.Writer
	errOut io.Writer
	v      *viper.Viper
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	c := &cli{out: out, errOut: errOut, v: viper.New()}

	root := &cobra.Command{
		Use:   "pathway",
		Short: "Care pathway engine CLI",
		Long: `pathway runs the care-pathway engine against report fixtures.

A fixture is a JSON or YAML document holding one evaluation request
(person, reports, now) or a list of them under "requests". The service
configuration (config.yaml, PATHWAY_* variables) selects the timezone,
the audit store and the database used by the audit and migrate commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetErr(errOut)

	c.v.SetEnvPrefix(config.EnvPrefix)
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()

	root.PersistentFlags().String("config", "", "service config file (default: search config.yaml)")
	root.PersistentFlags().Bool("json", false, "output JSON")
	root.PersistentFlags().String("timezone", "", "IANA zone for day boundaries (overrides the config)")
	root.PersistentFlags().String("log-level", "warn", "log level written to stderr")
	_ = c.v.BindPFlag("config", root.PersistentFlags().Lookup("config"))
	_ = c.v.BindPFlag("json", root.PersistentFlags().Lookup("json"))
	_ = c.v.BindPFlag("timezone", root.PersistentFlags().Lookup("timezone"))
	_ = c.v.BindPFlag("log-level", root.PersistentFlags().Lookup("log-level"))

	root.AddCommand(c.evaluateCmd())
	root.AddCommand(c.stageCmd())
	root.AddCommand(c.catalogCmd())
	root.AddCommand(c.auditCmd())
	root.AddCommand(c.migrateCmd())
	return root
}

// loadConfig reads the service configuration and applies flag overrides.
func (c *cli) loadConfig() (*domain.Config, error) {
	manager, err := config.NewManagerWithFile(c.v.GetString("config"))
	if err != nil {
		return nil, err
	}
	cfg := manager.GetConfig()
	if tz := c.v.GetString("timezone"); tz != "" {
		cfg.Engine.Timezone = tz
	}
	return cfg, nil
}

func (c *cli) logger() *logrus.Logger {
	return logging.New(domain.LoggingConfig{Level: c.v.GetString("log-level"), Format: "text"}, c.errOut)
}
