package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/blackcoderx/restseq/pkg/auth"
	"github.com/blackcoderx/restseq/pkg/config"
	"github.com/blackcoderx/restseq/pkg/grammar"
	"github.com/blackcoderx/restseq/pkg/logging"
	"github.com/blackcoderx/restseq/pkg/sequencer"
	"github.com/blackcoderx/restseq/pkg/storage"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile  string
	baseDir  string
	envName  string
	strategy string
	rootCmd  = &cobra.Command{
		Use:   "restseq",
		Short: "restseq - grammar-driven REST request sequencing",
		Long: `restseq renders HTTP requests from a grammar of primitives, sends them to a
target in dependency order and feeds values extracted from each response into the
requests that consume them.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if it exists (optional, warn if malformed)
			if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
				fmt.Fprintf(os.Stderr, "Warning: Failed to load .env file: %v\n", err)
			}
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .restseq/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&baseDir, "dir", config.FolderName, "restseq project folder")
	rootCmd.PersistentFlags().StringVarP(&envName, "env", "e", "", "Environment to use for variable substitution")
	rootCmd.PersistentFlags().StringVarP(&strategy, "strategy", "s", "", "Visiting order: dependency or declaration")

	_ = viper.BindPFlag("environment", rootCmd.PersistentFlags().Lookup("env"))
	_ = viper.BindPFlag("strategy", rootCmd.PersistentFlags().Lookup("strategy"))

	rootCmd.AddCommand(initCmd, listCmd, orderCmd, renderCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(baseDir)
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix(config.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the project folder with an example grammar",
	RunE: func(cmd *cobra.Command, args []string) error {
		created, err := config.InitializeFolder(baseDir)
		if err != nil {
			return err
		}
		if created {
			fmt.Printf("Created %s with an example grammar in %s\n", baseDir, storage.GetGrammarsDir(baseDir))
		} else {
			fmt.Printf("%s already exists; missing files were restored\n", baseDir)
		}
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List grammars and environments",
	RunE: func(cmd *cobra.Command, args []string) error {
		grammars, err := storage.ListGrammars(baseDir)
		if err != nil {
			return err
		}
		envs, err := storage.ListEnvironments(baseDir)
		if err != nil {
			return err
		}
		fmt.Println("Grammars:")
		for _, g := range grammars {
			fmt.Println("  " + g)
		}
		fmt.Println("Environments:")
		for _, e := range envs {
			fmt.Println("  " + e)
		}
		return nil
	},
}

var orderCmd = &cobra.Command{
	Use:   "order <grammar>",
	Short: "Print the visiting order and dependencies of a grammar",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := setup(args[0])
		if err != nil {
			return err
		}
		defer app.logger.Sync()

		seq, err := sequencer.New(app.coll, sequencer.WithLogger(app.logger))
		if err != nil {
			return err
		}
		order, err := seq.Order(app.strategy)
		if err != nil {
			return err
		}

		graph := seq.Graph()
		for i, id := range order {
			fmt.Printf("%d. %s\n", i+1, id)
			for _, dep := range graph.Producers(id) {
				fmt.Printf("     <- %s (%s)\n", dep.Producer, dep.Tag)
			}
			for _, tag := range graph.Unbound(id) {
				fmt.Printf("     ?? %s (no producer)\n", tag)
			}
		}
		components := graph.Components()
		if len(components) > 1 {
			fmt.Printf("\n%d independent groups\n", len(components))
		}
		return nil
	},
}

// app is the state shared by commands that operate on one grammar.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	env      storage.Environment
	coll     *grammar.Collection
	strategy sequencer.Strategy
}

func setup(grammarName string) (*app, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	env, err := storage.LoadNamedEnvironment(baseDir, cfg.Environment)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load environment '%s': %w", cfg.Environment, err)
		}
		logger.Warn("Environment not found, continuing without variables", zap.String("environment", cfg.Environment))
		env = storage.Environment{}
	}

	path := storage.ResolveGrammarPath(baseDir, grammarName)
	coll, err := storage.LoadGrammar(path, env)
	if err != nil {
		return nil, err
	}

	st, err := sequencer.ParseStrategy(cfg.Strategy)
	if err != nil {
		return nil, err
	}

	logger.Debug("Grammar loaded",
		zap.String("path", filepath.Clean(path)),
		zap.Int("requests", coll.Len()),
		zap.String("strategy", string(st)))

	return &app{cfg: cfg, logger: logger, env: env, coll: coll, strategy: st}, nil
}

// tokenProvider builds the configured auth providers, substituting
// environment placeholders into static tokens.
func (a *app) tokenProvider() (auth.TokenProvider, error) {
	configs := make([]auth.ProviderConfig, len(a.cfg.Auth))
	for i, c := range a.cfg.Auth {
		if c.Token != "" {
			token, missing := a.env.Substitute(c.Token)
			if len(missing) > 0 {
				return nil, fmt.Errorf("auth provider %s: unresolved variables: %s", c.Tag, strings.Join(missing, ", "))
			}
			c.Token = token
		}
		configs[i] = c
	}
	return auth.Build(configs)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
