package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goliatone/go-print"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	auth "github.com/goliatone/go-auth-rbac"
	"github.com/goliatone/go-auth-rbac/refreshredis"
)

const usage = `usage: authctl <command> [flags]

commands:
  migrate                       create tables and indexes
  seed -f <file>                provision permissions and roles
  register -email -password     create an account
  login -email -password        authenticate and print tokens
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cli, err := loadCLIConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := newLogger(cli.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := runCommand(ctx, cli, logger, os.Args[1], os.Args[2:]); err != nil {
		logger.Error().Err(err).Str("kind", string(auth.KindOf(err))).Msg("authctl failed")
		os.Exit(1)
	}
}

func newLogger(level string) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}

	logger := zerolog.New(output).With().Timestamp().Str("app", "authctl").Logger()

	switch strings.ToLower(level) {
	case "debug":
		return logger.Level(zerolog.DebugLevel)
	case "warn":
		return logger.Level(zerolog.WarnLevel)
	case "error":
		return logger.Level(zerolog.ErrorLevel)
	default:
		return logger.Level(zerolog.InfoLevel)
	}
}

func openDB(dsn string) (*bun.DB, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		sqldb, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return bun.NewDB(sqldb, pgdialect.New()), nil
	}

	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqldb.SetMaxOpenConns(1)
	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

func runCommand(ctx context.Context, cli cliConfig, zl zerolog.Logger, name string, args []string) error {
	db, err := openDB(cli.DSN)
	if err != nil {
		return err
	}
	defer db.Close()

	logger := auth.NewZerologLogger(zl)
	repos := auth.NewRepositoryManager(db)
	repos.MustValidate()

	switch name {
	case "migrate":
		if err := auth.CreateSchema(ctx, db); err != nil {
			return err
		}
		zl.Info().Str("dsn", cli.DSN).Msg("schema ready")
		return nil
	case "seed":
		return seedCommand(ctx, repos, logger, args)
	case "register", "login":
		svc, closeFn, err := newService(cli, repos, logger)
		if err != nil {
			return err
		}
		defer closeFn()
		if name == "register" {
			return registerCommand(ctx, svc, args)
		}
		return loginCommand(ctx, svc, args)
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", name)
	}
}

func newService(cli cliConfig, repos auth.RepositoryManager, logger auth.Logger) (*auth.Service, func(), error) {
	cfg, err := auth.LoadConfigFromEnv()
	if err != nil {
		return nil, nil, err
	}

	stores := auth.StoresFromManager(repos)

	var rdb *redis.Client
	if cli.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cli.RedisAddr,
			Password: cli.RedisPassword,
			DB:       cli.RedisDB,
		})
		stores.RefreshTokens = refreshredis.NewStore(rdb, cli.RedisPrefix)
	}

	reg := prometheus.NewRegistry()
	metrics := auth.NewPrometheusMetrics(cli.MetricsNamespace, reg)
	dispatcher := auth.NewDispatcher(
		auth.LoggingActivitySink{Logger: logger},
		auth.DefaultDispatcherBuffer,
		auth.DispatcherLogger(logger),
		auth.DispatcherMetrics(metrics),
	)

	svc, err := auth.NewService(cfg, stores,
		auth.WithLogger(logger),
		auth.WithActivitySink(dispatcher),
		auth.WithMetrics(metrics),
	)
	if err != nil {
		dispatcher.Close()
		return nil, nil, err
	}

	closeFn := func() {
		dispatcher.Close()
		if rdb != nil {
			rdb.Close()
		}
		if families, err := reg.Gather(); err == nil {
			for _, family := range families {
				logger.Debug("metric %s: %d series", family.GetName(), len(family.GetMetric()))
			}
		}
	}

	return svc, closeFn, nil
}

func seedCommand(ctx context.Context, repos auth.RepositoryManager, logger auth.Logger, args []string) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	file := fs.String("f", "seed.yaml", "provisioning document (yaml, json or toml)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	seed, err := loadSeed(*file)
	if err != nil {
		return err
	}

	result, err := auth.NewProvisioner(repos.Roles(), repos.Permissions(), repos).
		WithLogger(logger).
		Seed(ctx, seed)
	if err != nil {
		return err
	}

	fmt.Println(print.MaybePrettyJSON(result))
	return nil
}

func registerCommand(ctx context.Context, svc *auth.Service, args []string) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	first := fs.String("first", "", "first name")
	last := fs.String("last", "", "last name")
	phone := fs.String("phone", "", "phone number")
	hashid := fs.Bool("hashid", false, "derive the user id from the email")
	if err := fs.Parse(args); err != nil {
		return err
	}

	resp, err := svc.Register(ctx, auth.RegisterUserMessage{
		Email:     *email,
		Password:  *password,
		FirstName: *first,
		LastName:  *last,
		Phone:     *phone,
		UseHashid: *hashid,
	})
	if err != nil {
		return err
	}

	fmt.Println(print.MaybePrettyJSON(map[string]any{
		"user":               resp.User,
		"verification_token": resp.VerificationToken.Value,
	}))
	return nil
}

func loginCommand(ctx context.Context, svc *auth.Service, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	if err := fs.Parse(args); err != nil {
		return err
	}

	resp, err := svc.Login(ctx, auth.LoginMessage{
		Email:     *email,
		Password:  *password,
		UserAgent: "authctl",
	})
	if err != nil {
		return err
	}

	fmt.Println(print.MaybePrettyJSON(map[string]any{
		"access_token":  resp.AccessToken,
		"refresh_token": resp.RefreshToken.Value,
		"expires_in":    resp.ExpiresIn.String(),
		"claims":        resp.Claims,
	}))
	return nil
}
