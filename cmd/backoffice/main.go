package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/josh-kwaku/bank-backoffice/internal/config"
	"github.com/josh-kwaku/bank-backoffice/internal/domain"
	"github.com/josh-kwaku/bank-backoffice/internal/fx"
	"github.com/josh-kwaku/bank-backoffice/internal/logging"
	"github.com/josh-kwaku/bank-backoffice/internal/metrics"
	"github.com/josh-kwaku/bank-backoffice/internal/repository"
	"github.com/josh-kwaku/bank-backoffice/internal/service"
	"github.com/josh-kwaku/bank-backoffice/internal/service/processing"
	"github.com/josh-kwaku/bank-backoffice/internal/validation"
)

type app struct {
	accounts  *service.AccountService
	submitter *service.Submitter
	logger    *slog.Logger
}

const announceTimeout = 5 * time.Second

// announcingQueue hands stored digital transactions to a running processor
// by announcing their ids. A lost announcement only delays the transaction
// until the processor's next scheduler tick.
type announcingQueue struct {
	notifier *repository.Notifier
	logger   *slog.Logger
}

func (q announcingQueue) Add(tx *domain.Transaction) {
	ctx, cancel := context.WithTimeout(context.Background(), announceTimeout)
	defer cancel()

	if err := q.notifier.Notify(ctx, tx.ID); err != nil {
		q.logger.Warn("submission not announced, left for the scheduler", "transaction_id", tx.ID, "error", err)
	}
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	if cmd == "help" || cmd == "-h" || cmd == "--help" {
		printUsage()
		return
	}

	cfg, err := config.Load(".env")
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := logging.Init("bank-backoffice-cli", cfg.LogLevel, cfg.AppEnv)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	a, closeFn, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer closeFn()

	args := os.Args[2:]
	switch cmd {
	case "account-create":
		err = a.createAccount(ctx, args)
	case "account-get":
		err = a.getAccount(ctx, args)
	case "account-update":
		err = a.updateAccount(ctx, args)
	case "account-delete":
		err = a.deleteAccount(ctx, args)
	case "submit":
		err = a.submit(ctx, args)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		closeFn()
		os.Exit(1)
	}

	if err != nil {
		logger.Error("command failed", "command", cmd, "error", err)
		closeFn()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Bank back-office CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  backoffice <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  account-create   Open an account (-kind, -balance, -owners)")
	fmt.Println("  account-get      Show an account (-id)")
	fmt.Println("  account-update   Change balance or owners (-id, -balance, -owners)")
	fmt.Println("  account-delete   Delete an unreferenced account (-id)")
	fmt.Println("  submit           Submit a transaction read as JSON (-file, default stdin)")
	fmt.Println("  help             Show this help message")
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, func(), error) {
	pool, err := repository.Connect(ctx, repository.ConnectConfig{
		URL:             cfg.DatabaseURL,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
		Attempts:        cfg.DBConnectAttempts,
		RetryDelay:      cfg.DBConnectRetryDelay,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}

	db := repository.NewDB(pool)
	accounts := repository.NewAccountRepository(db)
	txs := repository.NewTransactionRepository(db)
	exchange := fx.NewExchange()
	validator := validation.New(exchange)

	proc := processing.NewProcessor(
		accounts,
		txs,
		db,
		processing.NewStatusService(txs),
		exchange,
		validator,
		metrics.New(prometheus.NewRegistry()),
		logger,
	)

	a := &app{
		accounts:  service.NewAccountService(accounts, logger),
		submitter: service.NewSubmitter(validator, txs, announcingQueue{notifier: repository.NewNotifier(db), logger: logger}, proc, logger),
		logger:    logger,
	}
	return a, func() { pool.Close() }, nil
}

func (a *app) createAccount(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("account-create", flag.ExitOnError)
	kind := fs.String("kind", "", "checking, saving or money_market")
	balance := fs.String("balance", "0", "opening balance in EUR")
	owners := fs.String("owners", "", "comma-separated owner ids")
	fs.Parse(args)

	amount, err := parseMoney(*balance)
	if err != nil {
		return err
	}
	ownerIDs, err := parseIDs(*owners)
	if err != nil {
		return err
	}

	account, err := a.accounts.CreateAccount(ctx, domain.AccountKind(*kind), amount, ownerIDs)
	if err != nil {
		return err
	}
	return printJSON(account)
}

func (a *app) getAccount(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("account-get", flag.ExitOnError)
	id := fs.Int64("id", 0, "account id")
	fs.Parse(args)

	account, err := a.accounts.GetAccount(ctx, *id)
	if err != nil {
		return err
	}
	return printJSON(account)
}

func (a *app) updateAccount(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("account-update", flag.ExitOnError)
	id := fs.Int64("id", 0, "account id")
	balance := fs.String("balance", "", "new balance in EUR")
	owners := fs.String("owners", "", "comma-separated owner ids")
	fs.Parse(args)

	var upd service.AccountUpdate
	if *balance != "" {
		amount, err := parseMoney(*balance)
		if err != nil {
			return err
		}
		upd.Balance = &amount
	}
	if *owners != "" {
		ids, err := parseIDs(*owners)
		if err != nil {
			return err
		}
		upd.OwnerIDs = ids
	}

	account, err := a.accounts.UpdateAccount(ctx, *id, upd)
	if err != nil {
		return err
	}
	return printJSON(account)
}

func (a *app) deleteAccount(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("account-delete", flag.ExitOnError)
	id := fs.Int64("id", 0, "account id")
	fs.Parse(args)

	if err := a.accounts.DeleteAccount(ctx, *id); err != nil {
		return err
	}
	fmt.Printf("Deleted account %d\n", *id)
	return nil
}

func (a *app) submit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	file := fs.String("file", "", "path to the transaction JSON, stdin when empty")
	fs.Parse(args)

	var r io.Reader = os.Stdin
	if *file != "" {
		f, err := os.Open(*file)
		if err != nil {
			return fmt.Errorf("submit: %w", err)
		}
		defer f.Close()
		r = f
	}

	var tx domain.Transaction
	if err := json.NewDecoder(r).Decode(&tx); err != nil {
		return fmt.Errorf("submit: decode: %w", err)
	}
	if tx.Status == "" {
		tx.Status = domain.StatusUnprocessed
	}

	out, err := a.submitter.Submit(ctx, &tx)
	if out != nil {
		if perr := printJSON(out); perr != nil {
			return errors.Join(err, perr)
		}
	}
	return err
}

func parseMoney(s string) (domain.Money, error) {
	m, err := domain.ParseMoney(s)
	if err != nil {
		return domain.Money{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return m, nil
}

func parseIDs(s string) ([]int64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
