package cli

import (
	"ledger/internal/amqp"
	"ledger/internal/auth"
	"ledger/internal/config"
	"ledger/internal/log"
	"ledger/internal/mailer"
	"ledger/internal/services"
	"ledger/internal/storage"
)

// Services is the wired service graph shared by the binaries.
type Services struct {
	Auth          *auth.PasswordAuthenticator
	Invoices      *services.InvoiceService
	Expenses      *services.ExpenseService
	Directory     *services.DirectoryService
	Dashboard     *services.DashboardService
	Reports       *services.ReportService
	Admin         *services.AdminService
	Notifications *services.NotificationService
	Contacts      *services.ContactService
	Recurring     *services.RecurringProcessor
	Scanner       *services.Scanner
	Export        *services.ExportService
}

// InitBroker connects to AMQP when configured. A nil client means events are
// delivered in-process and contact mail is sent directly.
func InitBroker(logger *log.Logger, cfg *config.Config) *amqp.Client {
	if !cfg.AMQPEnabled() {
		logger.Info("AMQP disabled, using in-process delivery")
		return nil
	}
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPEmailQueue, cfg.AMQPEventsQueue)
	if err != nil {
		logger.Warn("Failed to connect to AMQP, using in-process delivery", log.FieldError, err)
		return nil
	}
	logger.Info("AMQP connected", "exchange", cfg.AMQPExchange)
	return client
}

// NewMailer returns the HTTP mailer when an API key is set, otherwise a
// mailer that only logs.
func NewMailer(logger *log.Logger, cfg *config.Config) mailer.Mailer {
	if cfg.MailAPIKey == "" {
		logger.Info("MAIL_API_KEY not set, emails will be logged only")
		return mailer.NewLogMailer(logger.WithComponent(log.ComponentMailer).Logger)
	}
	return mailer.NewHTTPMailer(cfg.MailAPIURL, cfg.MailAPIKey)
}

// NewServices wires every service on top of repo. broker may be nil.
func NewServices(logger *log.Logger, cfg *config.Config, repo *storage.Repository, broker *amqp.Client) Services {
	notifications := services.NewNotificationService(repo)
	dashboard := services.NewDashboardService(repo, cfg.MetricsTTL)

	var (
		events   services.EventPublisher = services.DirectEvents{Notifications: notifications}
		contacts services.ContactPublisher
	)
	if broker != nil {
		events = broker
		contacts = broker
	}

	expenses := services.NewExpenseService(repo, events, dashboard)
	invoices := services.NewInvoiceService(repo, events, notifications, dashboard)
	recurring := services.NewRecurringProcessor(repo, expenses)

	return Services{
		Auth:          auth.NewPasswordAuthenticator(repo),
		Invoices:      invoices,
		Expenses:      expenses,
		Directory:     services.NewDirectoryService(repo),
		Dashboard:     dashboard,
		Reports:       services.NewReportService(repo),
		Admin:         services.NewAdminService(repo),
		Notifications: notifications,
		Contacts:      services.NewContactService(contacts, NewMailer(logger, cfg), cfg.MailFrom, cfg.ContactTo),
		Recurring:     recurring,
		Scanner:       services.NewScanner(repo, invoices, recurring, notifications),
		Export:        services.NewExportService(repo),
	}
}
