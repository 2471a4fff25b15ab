// file: cmd/root.go
// version: 2.0.0
// guid: 6a7b8c9d-0e1f-2a3b-4c5d-6e7f8a9b0c1d

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/opencatalog/streamvault/internal/catalog"
	"github.com/opencatalog/streamvault/internal/catalogsync"
	"github.com/opencatalog/streamvault/internal/config"
	"github.com/opencatalog/streamvault/internal/database"
	"github.com/opencatalog/streamvault/internal/engine"
	"github.com/opencatalog/streamvault/internal/query"
	"github.com/opencatalog/streamvault/internal/realtime"
	"github.com/opencatalog/streamvault/internal/server"
	"github.com/opencatalog/streamvault/internal/watcher"
)

var cfgFile string
var databasePath string
var databaseType string
var enableSQLite bool
var watchDir string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "streamvault",
	Short: "Local media catalog data engine",
	Long: `StreamVault keeps provider media catalogs (live channels, movies,
series) in a durable local store and serves windowed, cached views of them
over HTTP for presentation clients.`,
}

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the catalog engine HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()

		store, err := openStore()
		if err != nil {
			return err
		}

		// Load persisted settings (overrides defaults with stored values)
		if err := config.LoadConfigFromDatabase(store); err != nil {
			log.WithError(err).Warn("could not load config from database")
		}

		hub := realtime.NewEventHub(log)
		eng := engine.New(store, engine.Options{
			ChunkSize:       config.AppConfig.ChunkSize,
			ViewportSize:    config.AppConfig.ViewportSize,
			QueryTTL:        config.AppConfig.QueryTTL(),
			AggregateTTL:    config.AppConfig.AggregateTTL(),
			CacheMaxEntries: config.AppConfig.CacheMaxEntries,
			Freshness:       config.AppConfig.Freshness(),
			SearchLimit:     config.AppConfig.SearchLimit,
			Logger:          log,
			Events:          hub,
		})
		defer eng.Close()

		var fetcher catalogsync.Fetcher
		if config.AppConfig.WatchDir != "" {
			fetcher = dropDirFetcher(config.AppConfig.WatchDir)

			w := watcher.New(func(path string) {
				key, doc, err := catalog.ReadDocumentFile(path)
				if err != nil {
					log.WithError(err).WithField("path", path).Warn("skipping dropped document")
					return
				}
				if _, err := eng.ImportDocument(key, doc); err != nil {
					log.WithError(err).WithField("catalog", key.String()).Error("drop-dir import failed")
					return
				}
				log.WithField("catalog", key.String()).Info("imported dropped document")
			}, 0, log)
			if err := w.Start(config.AppConfig.WatchDir); err != nil {
				return fmt.Errorf("failed to watch %s: %w", config.AppConfig.WatchDir, err)
			}
			defer w.Stop()
			log.WithField("dir", config.AppConfig.WatchDir).Info("watching drop directory")
		}

		cfg := server.ServerConfig{
			Addr:                  config.AppConfig.ListenAddr,
			ReadTimeout:           15 * time.Second,
			WriteTimeout:          15 * time.Second,
			IdleTimeout:           60 * time.Second,
			APIRateLimitPerMinute: config.AppConfig.APIRateLimitPerMinute,
			JSONBodyLimitMB:       config.AppConfig.JSONBodyLimitMB,
		}
		if addr := cmd.Flag("listen").Value.String(); addr != "" {
			cfg.Addr = addr
		}
		if rt := cmd.Flag("read-timeout").Value.String(); rt != "" {
			if d, err := time.ParseDuration(rt); err == nil {
				cfg.ReadTimeout = d
			}
		}
		if wt := cmd.Flag("write-timeout").Value.String(); wt != "" {
			if d, err := time.ParseDuration(wt); err == nil {
				cfg.WriteTimeout = d
			}
		}

		srv := server.NewServer(eng, hub, fetcher, cfg, log)
		return srv.Start(cfg)
	},
}

// importCmd imports an exported catalog document file.
var importCmd = &cobra.Command{
	Use:   "import <document.json>",
	Short: "Import a catalog document file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()

		store, err := openStore()
		if err != nil {
			return err
		}
		eng := engine.New(store, engine.Options{Logger: log})
		defer eng.Close()

		key, doc, err := catalog.ReadDocumentFile(args[0])
		if err != nil {
			return err
		}

		bar := progressbar.NewOptions(1,
			progressbar.OptionSetDescription(fmt.Sprintf("importing %s", key)),
			progressbar.OptionShowCount(),
		)
		cat, err := eng.ImportDocument(key, doc)
		if err != nil {
			return fmt.Errorf("import failed: %w", err)
		}
		bar.Add(1)
		fmt.Println()

		for _, col := range catalog.ContentCollections {
			fmt.Printf("  %-8s %d items, %d categories\n", col, cat.Counts[col], len(cat.CategoriesFor(col)))
		}

		if setDefault, _ := cmd.Flags().GetBool("set-default"); setDefault {
			if err := eng.SetDefaultCatalog(key); err != nil {
				return err
			}
			fmt.Println("default catalog set")
		}
		return nil
	},
}

// exportCmd writes an imported catalog back out as a document file.
var exportCmd = &cobra.Command{
	Use:   "export <server|username> <document.json>",
	Short: "Export an imported catalog to a document file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := catalog.ParseKey(args[0])
		if err != nil {
			return err
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		eng := engine.New(store, engine.Options{Logger: newLogger()})
		defer eng.Close()

		doc, err := eng.ExportDocument(key)
		if err != nil {
			return err
		}
		if err := catalog.WriteDocumentFile(args[1], key, doc); err != nil {
			return err
		}
		fmt.Printf("exported %s to %s\n", key, args[1])
		return nil
	},
}

// queryCmd runs an ad-hoc query from a JSON argument.
var queryCmd = &cobra.Command{
	Use:   "query <server|username> <query-json>",
	Short: "Run an ad-hoc catalog query",
	Long: `Run a query against an imported catalog. The query is JSON, e.g.:
  {"operation":"SELECT","collection":"vod","where":{"category_id":{"eq":"12"}},"limit":10}`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := catalog.ParseKey(args[0])
		if err != nil {
			return err
		}
		var q query.Query
		if err := json.Unmarshal([]byte(args[1]), &q); err != nil {
			return fmt.Errorf("invalid query json: %w", err)
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		eng := engine.New(store, engine.Options{Logger: newLogger()})
		defer eng.Close()

		res, err := eng.Evaluator().Execute(context.Background(), key, q)
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.streamvault.yaml)")
	rootCmd.PersistentFlags().StringVar(&databasePath, "db", "streamvault.pebble", "path to database (default: streamvault.pebble for PebbleDB)")
	rootCmd.PersistentFlags().StringVar(&databaseType, "db-type", "pebble", "database type: pebble (default) or sqlite")
	rootCmd.PersistentFlags().BoolVar(&enableSQLite, "enable-sqlite3-i-know-the-risks", false, "enable SQLite3 database (WARNING: cross-compilation issues, PebbleDB recommended)")
	rootCmd.PersistentFlags().StringVar(&watchDir, "watch", "", "drop directory of exported catalog documents to auto-import")

	viper.BindPFlag("database_path", rootCmd.PersistentFlags().Lookup("db"))
	viper.BindPFlag("database_type", rootCmd.PersistentFlags().Lookup("db-type"))
	viper.BindPFlag("enable_sqlite3_i_know_the_risks", rootCmd.PersistentFlags().Lookup("enable-sqlite3-i-know-the-risks"))
	viper.BindPFlag("watch_dir", rootCmd.PersistentFlags().Lookup("watch"))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(diagnosticsCmd)

	serveCmd.Flags().String("listen", "", "listen address (default from config, :8069)")
	serveCmd.Flags().String("read-timeout", "15s", "read timeout (e.g. 15s, 1m)")
	serveCmd.Flags().String("write-timeout", "15s", "write timeout (e.g. 15s, 1m)")

	importCmd.Flags().Bool("set-default", false, "set the imported catalog as default")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".streamvault")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}

	// Ensure database directory exists
	if databasePath != "" {
		dbDir := filepath.Dir(databasePath)
		if dbDir != "." {
			if err := os.MkdirAll(dbDir, 0755); err != nil {
				fmt.Printf("Error creating database directory: %v\n", err)
			}
		}
	}

	config.InitConfig()
}

func newLogger() *logrus.Logger {
	log := logrus.New()
	if level, err := logrus.ParseLevel(config.AppConfig.LogLevel); err == nil {
		log.SetLevel(level)
	}
	if config.AppConfig.EnableJsonLogging {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	return log
}

func openStore() (database.Store, error) {
	store, err := database.Open(
		config.AppConfig.DatabaseType,
		config.AppConfig.DatabasePath,
		config.AppConfig.EnableSQLite,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return store, nil
}

// dropDirFetcher resolves refresh requests from the drop directory: the
// newest envelope matching the key stands in for a provider fetch.
func dropDirFetcher(dir string) catalogsync.Fetcher {
	return func(ctx context.Context, key catalog.Key) (*catalog.Document, error) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("read drop dir: %w", err)
		}
		var newest *catalog.Document
		var newestMod time.Time
		for _, entry := range entries {
			if entry.IsDir() || !watcher.IsDocumentFile(entry.Name()) {
				continue
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			path := filepath.Join(dir, entry.Name())
			fileKey, doc, err := catalog.ReadDocumentFile(path)
			if err != nil || fileKey != key {
				continue
			}
			if info, err := entry.Info(); err == nil && info.ModTime().After(newestMod) {
				newest = doc
				newestMod = info.ModTime()
			}
		}
		if newest == nil {
			return nil, fmt.Errorf("no document for %s in %s", key, dir)
		}
		return newest, nil
	}
}
