// Пакет backup - файловая часть резервного копирования: дамп и
// восстановление MySQL через внешние утилиты, архив документов,
// проверка целостности и offsite-копии в S3.
package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Dumper пишет SQL-дамп базы в w.
type Dumper interface {
	Dump(ctx context.Context, w io.Writer) error
}

// Restorer выполняет SQL-дамп из r.
type Restorer interface {
	Restore(ctx context.Context, r io.Reader) error
}

// MySQLConfig - параметры вызова mysqldump/mysql.
type MySQLConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	// DumpBin и ClientBin - пути к mysqldump и mysql.
	DumpBin   string
	ClientBin string
	// DockerContainer - если задан, утилиты запускаются внутри
	// контейнера через docker exec, подключение к localhost.
	DockerContainer string
	Timeout         time.Duration
}

// CommandError - ненулевой код возврата внешней утилиты.
type CommandError struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s завершился с кодом %d", e.Command, e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// runner запускает команду. Подменяется в тестах.
type runner func(ctx context.Context, name string, args []string, env []string, stdin io.Reader, stdout io.Writer) error

// execRunner - запуск через os/exec без shell, stderr собирается в ошибку.
func execRunner(ctx context.Context, name string, args []string, env []string, stdin io.Reader, stdout io.Writer) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(cmd.Environ(), env...)
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%s прерван: %w", name, ctx.Err())
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &CommandError{
			Command:  name,
			ExitCode: exitErr.ExitCode(),
			Stderr:   strings.TrimSpace(stderr.String()),
		}
	}
	return fmt.Errorf("ошибка запуска %s: %w", name, err)
}

// MySQLTool - Dumper и Restorer поверх mysqldump и mysql.
// Пароль передаётся через MYSQL_PWD, а не аргументом.
type MySQLTool struct {
	cfg MySQLConfig
	run runner
}

// NewMySQLTool создаёт адаптер внешних утилит MySQL.
func NewMySQLTool(cfg MySQLConfig) *MySQLTool {
	if cfg.DumpBin == "" {
		cfg.DumpBin = "mysqldump"
	}
	if cfg.ClientBin == "" {
		cfg.ClientBin = "mysql"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	return &MySQLTool{cfg: cfg, run: execRunner}
}

// Dump выполняет mysqldump.
func (t *MySQLTool) Dump(ctx context.Context, w io.Writer) error {
	args := append(t.connArgs(),
		"--single-transaction",
		"--routines",
		"--triggers",
		"--default-character-set=utf8mb4",
		t.cfg.Database,
	)
	return t.invoke(ctx, t.cfg.DumpBin, args, nil, w)
}

// Restore подаёт дамп на stdin клиента mysql.
func (t *MySQLTool) Restore(ctx context.Context, r io.Reader) error {
	args := append(t.connArgs(), "--default-character-set=utf8mb4", t.cfg.Database)
	return t.invoke(ctx, t.cfg.ClientBin, args, r, io.Discard)
}

func (t *MySQLTool) connArgs() []string {
	args := []string{"-u", t.cfg.User}
	if t.cfg.DockerContainer == "" {
		args = append(args, "-h", t.cfg.Host, "-P", strconv.Itoa(t.cfg.Port), "--protocol=tcp")
	}
	return args
}

// invoke применяет таймаут и при необходимости оборачивает вызов
// в docker exec.
func (t *MySQLTool) invoke(ctx context.Context, bin string, args []string, stdin io.Reader, stdout io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	pwd := "MYSQL_PWD=" + t.cfg.Password
	if t.cfg.DockerContainer == "" {
		return t.run(ctx, bin, args, []string{pwd}, stdin, stdout)
	}

	dockerArgs := []string{"exec"}
	if stdin != nil {
		dockerArgs = append(dockerArgs, "-i")
	}
	dockerArgs = append(dockerArgs, "-e", pwd, t.cfg.DockerContainer, bin)
	return t.run(ctx, "docker", append(dockerArgs, args...), nil, stdin, stdout)
}
