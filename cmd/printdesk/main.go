package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/printdesk/printdesk/internal/credential"
	"github.com/printdesk/printdesk/internal/imapx"
	"github.com/printdesk/printdesk/internal/ingest"
	"github.com/printdesk/printdesk/internal/model"
	"github.com/printdesk/printdesk/internal/notify"
	"github.com/printdesk/printdesk/internal/payments"
	"github.com/printdesk/printdesk/internal/store"
	"github.com/printdesk/printdesk/internal/sync"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "printdesk",
	Short: "Print-shop mailbox ingestion and payment tracking",
	Long: `printdesk ingests email from the shop's mailboxes into a local
database and keeps task payment balances consistent.

Examples:
  printdesk config init                # write a starter config file
  printdesk credential set "Front Desk"   # store a mailbox password
  printdesk serve                 # poll all mailboxes continuously
  printdesk fetch                 # run one ingestion pass and exit
  printdesk recompute <task-id>   # rebuild a task's payment summary
  printdesk prune-runs            # delete old fetch run records`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Poll all configured mailboxes until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Run a single ingestion pass over all mailboxes",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFetch(cmd.Context())
	},
}

var recomputeCmd = &cobra.Command{
	Use:   "recompute <task-id>",
	Short: "Rebuild the payment summary of a task from its payments",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRecompute(cmd.Context(), args[0])
	},
}

var pruneOlderThan time.Duration

var pruneRunsCmd = &cobra.Command{
	Use:   "prune-runs",
	Short: "Delete finalized fetch runs older than the cutoff",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPruneRuns(cmd.Context())
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file with one example mailbox",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConfigInit()
	},
}

var credentialCmd = &cobra.Command{
	Use:   "credential",
	Short: "Manage mailbox passwords in the system keyring",
}

var credentialSMTP bool

var credentialSetCmd = &cobra.Command{
	Use:   "set <mailbox>",
	Short: "Store a mailbox password, prompting on stdin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCredentialSet(args[0])
	},
}

var credentialDeleteCmd = &cobra.Command{
	Use:   "delete <mailbox>",
	Short: "Remove a stored mailbox password",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCredentialDelete(args[0])
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&configPath, "config", model.DefaultConfigPath(), "path to the config file")
	pruneRunsCmd.Flags().DurationVar(
		&pruneOlderThan, "older-than", 24*time.Hour, "age beyond which runs are deleted")
	credentialCmd.PersistentFlags().BoolVar(
		&credentialSMTP, "smtp", false, "operate on the SMTP password instead of IMAP")

	configCmd.AddCommand(configInitCmd)
	credentialCmd.AddCommand(credentialSetCmd)
	credentialCmd.AddCommand(credentialDeleteCmd)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(recomputeCmd)
	rootCmd.AddCommand(pruneRunsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(credentialCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	log.SetOutput(os.Stdout)
	return log
}

// app wires the long-lived pieces every subcommand needs.
type app struct {
	cfg       *model.AppConfig
	store     *store.SQLiteStore
	log       *logrus.Logger
	loc       *time.Location
	mailboxes []model.Mailbox
}

// setup loads configuration, opens the database and registers the
// configured mailboxes. Mailboxes whose passwords cannot be resolved
// from the keyring are skipped with a warning rather than aborting
// startup.
func setup(ctx context.Context) (*app, error) {
	log := newLogger()

	cfg, err := model.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	st, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.WithField("timezone", cfg.Timezone).WithError(err).Warn("invalid timezone, using UTC")
		loc = time.UTC
	}

	var mailboxes []model.Mailbox
	for _, mc := range cfg.Mailboxes {
		mb := mc.Mailbox()
		if err := credential.FillPasswords(&mb); err != nil {
			log.WithField("mailbox", mb.Name).WithError(err).Warn("skipping mailbox, missing credentials")
			continue
		}
		saved, err := st.UpsertMailbox(ctx, mb)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("registering mailbox %q: %w", mb.Name, err)
		}
		mailboxes = append(mailboxes, saved)
	}

	return &app{cfg: cfg, store: st, log: log, loc: loc, mailboxes: mailboxes}, nil
}

func (a *app) ingestEngine() *ingest.Engine {
	media := &ingest.DirMedia{Root: a.cfg.MediaRoot}
	return ingest.New(a.store, imapx.NetDialer{}, media, a.log, a.loc)
}

func (a *app) paymentsEngine() *payments.Engine {
	notifier := notify.New(a.store, a.log, a.cfg.NotifyUsers, nil)
	return payments.New(a.store, notifier, a.log)
}

func runServe() error {
	ctx := context.Background()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.store.Close()

	if len(a.mailboxes) == 0 {
		return fmt.Errorf("no usable mailboxes configured in %s", configPath)
	}

	interval := time.Duration(a.cfg.PollIntervalSec) * time.Second
	poller := sync.New(a.ingestEngine(), a.log, interval, a.mailboxes)
	poller.Start()
	defer poller.Stop()

	a.log.WithFields(logrus.Fields{
		"mailboxes": len(a.mailboxes),
		"interval":  interval.String(),
	}).Info("poller started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	for {
		select {
		case result := <-poller.Results():
			entry := a.log.WithField("mailbox", result.Mailbox)
			if result.AuthFailed {
				entry.WithError(result.Err).
					Error("authentication failed, update it with 'printdesk credential set'")
				continue
			}
			if result.Err != nil {
				entry.WithError(result.Err).Error("fetch run failed")
				continue
			}
			entry.WithField("run", result.Run.ID).Info(result.Run.Message)
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				// SIGHUP reports where every mailbox stands and forces
				// an immediate poll of all of them.
				for _, s := range poller.Statuses() {
					entry := a.log.WithField("mailbox", s.Mailbox).
						WithField("last_run", s.LastRun.Format(time.RFC3339))
					if s.Error != nil {
						entry = entry.WithError(s.Error)
					}
					entry.Info("mailbox status")
				}
				poller.TriggerAll()
				continue
			}
			a.log.WithField("signal", sig.String()).Info("shutting down")
			return nil
		}
	}
}

func runFetch(ctx context.Context) error {
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.store.Close()

	return a.ingestEngine().Run(ctx)
}

func runRecompute(ctx context.Context, taskID string) error {
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.store.Close()

	status, err := a.paymentsEngine().Recompute(ctx, taskID)
	if err != nil {
		return err
	}

	fmt.Printf("task %s: paid %s, fully_paid=%t, down_payment_only=%t\n",
		taskID, status.PaidAmount.StringFixed(2), status.IsFullyPaid, status.IsDownPaymentOnly)
	return nil
}

func runConfigInit() error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config already exists at %s", configPath)
	}

	// LoadConfig on a missing file yields the defaults.
	cfg, err := model.LoadConfig(configPath)
	if err != nil {
		return err
	}
	cfg.Mailboxes = []model.MailboxConfig{{
		Name:         "Front Desk",
		IMAPHost:     "imap.example.com",
		IMAPPort:     993,
		IMAPUsername: "front@example.com",
		IMAPTLS:      true,
		SMTPHost:     "smtp.example.com",
		SMTPPort:     587,
		SMTPUsername: "front@example.com",
		SMTPStartTLS: true,
	}}

	if err := model.SaveConfig(configPath, cfg); err != nil {
		return err
	}

	fmt.Printf("wrote %s\n", configPath)
	return nil
}

// credentialKey maps a mailbox name and the --smtp flag to its keyring key.
func credentialKey(mailbox string) string {
	if credentialSMTP {
		return credential.SMTPKey(mailbox)
	}
	return credential.IMAPKey(mailbox)
}

func runCredentialSet(mailbox string) error {
	key := credentialKey(mailbox)
	fmt.Printf("Password for %s: ", key)

	password, err := readPassword()
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}
	if password == "" {
		return fmt.Errorf("password must not be empty")
	}

	if err := credential.Set(key, password); err != nil {
		return err
	}

	fmt.Printf("stored %s\n", key)
	return nil
}

func runCredentialDelete(mailbox string) error {
	key := credentialKey(mailbox)
	if err := credential.Delete(key); err != nil {
		return err
	}

	fmt.Printf("deleted %s\n", key)
	return nil
}

// readPassword reads a password without echo when stdin is a terminal,
// and falls back to a plain line read when it is piped.
func readPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		data, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(data)), nil
	}

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func runPruneRuns(ctx context.Context) error {
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.store.Close()

	cutoff := time.Now().Add(-pruneOlderThan)
	deleted, err := a.store.PruneFetchRuns(ctx, cutoff)
	if err != nil {
		return err
	}

	a.log.WithFields(logrus.Fields{
		"deleted": deleted,
		"cutoff":  cutoff.Format(time.RFC3339),
	}).Info("pruned fetch runs")
	return nil
}
