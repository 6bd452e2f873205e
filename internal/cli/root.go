// Package cli implements the assoc-memory CLI commands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rcliao/assoc-memory/internal/config"
	"github.com/rcliao/assoc-memory/internal/pipeline"
	"github.com/rcliao/assoc-memory/internal/store"
)

var (
	dbPath   string
	cfgFile  string
	logLevel string

	cfg *config.Config
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "assoc-memory",
	Short: "Associative memory for AI chat conversations",
	Long: "Captures conversation turns as memories, links related ones, lets them evolve, " +
		"and answers semantic queries. SQLite-backed, single binary.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $ASSOC_MEMORY_DB or ~/.assoc-memory/memory.db)")
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: ~/.assoc-memory/config.yaml)")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
}

func loadConfig() *config.Config {
	if cfg != nil {
		return cfg
	}
	c, err := config.Load(viper.New(), cfgFile)
	if err != nil {
		exitErr("load config", err)
	}
	if dbPath != "" {
		c.DBPath = dbPath
	}
	if logLevel != "" {
		c.LogLevel = logLevel
	}
	cfg = c
	return cfg
}

func newLogger(c *config.Config) *log.Logger {
	level, err := log.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil {
		level = log.WarnLevel
	}
	return log.NewWithOptions(os.Stderr, log.Options{
		Prefix: "assoc-memory",
		Level:  level,
	})
}

func getDBPath() string {
	return loadConfig().DBPath
}

func openStore() (*store.SQLiteStore, error) {
	return store.NewSQLiteStore(getDBPath())
}

// openPipeline opens the store and a ready pipeline over it. The returned
// func releases both.
func openPipeline(ctx context.Context) (*pipeline.Pipeline, func()) {
	c := loadConfig()
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}

	p, svc, err := pipeline.FromConfig(c, s, newLogger(c))
	if err != nil {
		s.Close()
		exitErr("configure pipeline", err)
	}
	closeAll := func() {
		svc.Close()
		s.Close()
	}
	if err := p.Open(ctx); err != nil {
		closeAll()
		exitErr("open pipeline", err)
	}
	return p, closeAll
}

func printJSON(v interface{}) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
