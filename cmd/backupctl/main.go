// backupctl - CLI резервного копирования concursos-admin.
// Использует ту же конфигурацию CA_*, что и сервер, и работает
// с той же таблицей backups и каталогом копий.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mpd-concursos/concursos-admin/internal/backup"
	"github.com/mpd-concursos/concursos-admin/internal/config"
	"github.com/mpd-concursos/concursos-admin/internal/database"
	"github.com/mpd-concursos/concursos-admin/internal/domain/model"
	"github.com/mpd-concursos/concursos-admin/internal/repository"
	"github.com/mpd-concursos/concursos-admin/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// backupApp - сервис копий и его ресурсы. Вызывающий обязан вызвать Close.
type backupApp struct {
	cfg     *config.Config
	logger  *slog.Logger
	db      *sql.DB
	backups *service.BackupService
}

func (a *backupApp) Close() {
	a.db.Close()
}

// newBackupApp загружает конфигурацию и собирает BackupService.
func newBackupApp(ctx context.Context) (*backupApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("загрузка конфигурации: %w", err)
	}
	logger := config.SetupLogger(cfg)

	db, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("подключение к MySQL: %w", err)
	}

	tool := backup.NewMySQLTool(backup.MySQLConfig{
		Host:            cfg.DBHost,
		Port:            cfg.DBPort,
		User:            cfg.DBUser,
		Password:        cfg.DBPassword,
		Database:        cfg.DBName,
		DumpBin:         cfg.MysqldumpBin,
		ClientBin:       cfg.MysqlBin,
		DockerContainer: cfg.BackupDockerContainer,
		Timeout:         cfg.BackupTimeout,
	})
	deps := service.BackupDeps{
		Repo:          repository.NewBackupRepository(db),
		Tx:            repository.NewTxRunner(db, nil),
		Dumper:        tool,
		Restorer:      tool,
		Dir:           cfg.BackupPath,
		DocumentsRoot: cfg.DocumentsPath,
	}
	if cfg.OffsiteEnabled() {
		offsite, err := backup.NewOffsite(backup.S3Config{
			Endpoint:     cfg.S3Endpoint,
			Region:       cfg.S3Region,
			Bucket:       cfg.S3Bucket,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			Prefix:       cfg.S3Prefix,
			AgeRecipient: cfg.BackupAgeRecipient,
		}, logger)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("настройка offsite-копий: %w", err)
		}
		deps.Offsite = offsite
	}

	return &backupApp{
		cfg:     cfg,
		logger:  logger,
		db:      db,
		backups: service.NewBackupService(deps, logger),
	}, nil
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "backupctl",
		Short:        "Резервные копии concursos-admin",
		Version:      config.Version,
		SilenceUsage: true,
	}
	root.AddCommand(
		newCreateCmd(),
		newListCmd(),
		newRestoreCmd(),
		newDeleteCmd(),
		newVerifyCmd(),
		newMigrateCmd(),
	)
	return root
}

// withApp выполняет fn с собранным backupApp.
func withApp(cmd *cobra.Command, fn func(a *backupApp) error) error {
	a, err := newBackupApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func newCreateCmd() *cobra.Command {
	var (
		name, description string
		noDocuments       bool
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Создать резервную копию",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(a *backupApp) error {
				include := !noDocuments
				b, err := a.backups.Create(cmd.Context(), service.CreateBackupInput{
					Name:             name,
					Description:      description,
					IncludeDocuments: &include,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Копия создана: %s (%s, %s)\n", b.ID, b.Name, b.Size)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "имя копии (по умолчанию генерируется)")
	cmd.Flags().StringVar(&description, "description", "", "описание")
	cmd.Flags().BoolVar(&noDocuments, "no-documents", false, "не архивировать документы")
	return cmd
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Список резервных копий",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(a *backupApp) error {
				list, err := a.backups.List(cmd.Context())
				if err != nil {
					return err
				}
				printBackups(cmd, list)
				return nil
			})
		},
	}
}

func printBackups(cmd *cobra.Command, list []*model.Backup) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tИМЯ\tДАТА\tРАЗМЕР\tЦЕЛОСТНОСТЬ\tДОКУМЕНТЫ")
	for _, b := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%t\n",
			b.ID, b.Name, b.CreatedAt.Format("2006-01-02 15:04"), b.Size, b.Integrity, b.IncludesDocuments)
	}
	w.Flush()
}

func newRestoreCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "restore <id>",
		Short: "Восстановить БД и документы из копии",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("восстановление перезапишет текущие данные, подтвердите флагом --yes")
			}
			return withApp(cmd, func(a *backupApp) error {
				b, err := a.backups.Restore(cmd.Context(), service.RestoreInput{BackupID: args[0], ConfirmRestore: true})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Восстановлено из копии %s (%s)\n", b.ID, b.Name)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "подтверждение восстановления")
	return cmd
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Удалить копию",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *backupApp) error {
				b, err := a.backups.Delete(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Копия %s удалена\n", b.Name)
				return nil
			})
		},
	}
}

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <id>",
		Short: "Проверить целостность файлов копии",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *backupApp) error {
				b, err := a.backups.Verify(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", b.ID, b.Integrity)
				if b.Integrity != model.IntegrityVerified {
					return fmt.Errorf("копия %s не прошла проверку", b.ID)
				}
				return nil
			})
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Применить миграции БД",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("загрузка конфигурации: %w", err)
			}
			return database.Migrate(cfg, config.SetupLogger(cfg))
		},
	}
}
