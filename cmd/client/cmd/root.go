package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/exp/slog"

	"bizsync/cmd/client/cmd/types"
	"bizsync/internal/app/client"
	"bizsync/internal/config"
	"bizsync/internal/utils/logger"
)

var (
	cfgFile   string
	storePath string
	remoteURI string
	cfg       *config.Config
	log       *slog.Logger
	app       *client.App
)

var rootCmd = &cobra.Command{
	Use:   "bizsync",
	Short: "bizsync - офлайн-агент синхронизации данных бизнеса",
	Long: `bizsync хранит контакты, шаблоны, файлы и квоты локально и
синхронизирует их с сервером, когда появляется связь.

Все изменения сначала попадают в локальное хранилище и очередь,
поэтому работа без сети ничем не отличается от работы онлайн.`,
	PersistentPreRunE: setupApp,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

func Execute() {
	err := rootCmd.Execute()
	if closeErr := closeApp(); err == nil {
		err = closeErr
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка: %v\n", err)
		os.Exit(1)
	}
}

func setupApp(cmd *cobra.Command, _ []string) error {
	var err error
	cfg, err = loadConfig()
	if err != nil {
		return fmt.Errorf("ошибка загрузки конфигурации: %w", err)
	}

	if storePath != "" {
		cfg.Store.Path = storePath
	}
	if remoteURI != "" {
		cfg.Remote.DatabaseURI = remoteURI
	}

	log = logger.New(cfg.Env)

	app, err = client.New(cmd.Context(), cfg, log)
	if err != nil {
		return fmt.Errorf("ошибка инициализации приложения: %w", err)
	}

	// сессия устройства восстанавливается для любой команды; ее отсутствие не ошибка
	if _, err := app.Resume(cmd.Context(), ""); err != nil && !errors.Is(err, client.ErrNotLoggedIn) {
		log.Warn("Stored session is not resumable", "error", err)
	}

	cmd.SetContext(context.WithValue(cmd.Context(), types.ClientAppKey, app))
	return nil
}

func closeApp() error {
	if app == nil {
		return nil
	}
	return app.Close()
}

func loadConfig() (*config.Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}

		v.AddConfigPath(filepath.Join(home, ".bizsync"))
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	return config.Load(v)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "конфигурационный файл")
	rootCmd.PersistentFlags().StringVar(&storePath, "db", "", "путь к локальному хранилищу")
	rootCmd.PersistentFlags().StringVar(&remoteURI, "remote", "", "строка подключения к серверной базе")
	rootCmd.PersistentFlags().BoolVar(&types.JSONOutput, "json", false, "вывод в формате JSON")
}
