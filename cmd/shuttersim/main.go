package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"
)

const version = "0.1.0"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "shuttersim",
	Short: "Simulated window covering accessories over MQTT and HTTP",
	Long: `shuttersim runs simulated motorized window coverings. Each covering accepts a
target position and settles there after a fixed travel time. Coverings are
exposed over MQTT (with Home Assistant discovery) and an HTTP characteristic API.`,
	Version:           version,
	PersistentPreRunE: setup,
	RunE:              runService,
	SilenceUsage:      true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the accessory service",
	RunE:  runService,
}

var confCmd = &cobra.Command{
	Use:   "conf",
	Short: "Print the effective configuration as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		return yaml.NewEncoder(cmd.OutOrStdout()).Encode(Cfg)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "config.yaml file path")
	rootCmd.AddCommand(runCmd, confCmd)
}

func setup(cmd *cobra.Command, args []string) error {
	logrus.SetFormatter(&logrus.TextFormatter{
		DisableColors: false,
		FullTimestamp: true,
	})

	if err := loadConfig(&Cfg, configPath); err != nil {
		return err
	}

	level, err := logrus.ParseLevel(Cfg.LogLevel)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)

	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
