package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/billforge/billforge/internal/types"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Configuration struct {
	Deployment DeploymentConfig `validate:"required"`
	Logging    LoggingConfig    `validate:"required"`
	Billing    BillingConfig    `validate:"required"`
	Outbox     OutboxConfig     `validate:"required"`
	Scheduler  SchedulerConfig  `validate:"required"`
	Gateway    GatewayConfig
}

type DeploymentConfig struct {
	Mode types.RunMode `validate:"required"`
}

type LoggingConfig struct {
	Level types.LogLevel `validate:"required"`
}

// BillingConfig holds the billing policy values. These are deployment
// configuration, not business logic: rates are percentages (10 means 10%).
type BillingConfig struct {
	Currency                       string  `validate:"required"`
	TaxRatePercent                 float64 `validate:"min=0,max=100"`
	AutoRenewDiscountPercent       float64 `validate:"min=0,max=100"`
	TrialConversionDiscountPercent float64 `validate:"min=0,max=100"`
	DueDays                        int     `validate:"min=0"`
	InvoiceBatchSize               int     `validate:"min=1"`
}

type OutboxConfig struct {
	Topic          string `validate:"required"`
	RelayBatchSize int    `validate:"min=1"`
}

// SchedulerConfig holds the cron expressions for each maintenance job.
type SchedulerConfig struct {
	InvoiceSchedule        string `validate:"required"`
	TrialExpirySchedule    string `validate:"required"`
	OutboxRelaySchedule    string `validate:"required"`
	PaymentPostingSchedule string `validate:"required"`
	OverdueSchedule        string `validate:"required"`
}

type GatewayConfig struct {
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
	RetryMax int
}

func NewConfig() (*Configuration, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/billforge")

	v.SetEnvPrefix("BILLFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(
		".", "_",
		"-", "_",
	))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file if exists
	if err := v.ReadInConfig(); err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Configuration
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("deployment.mode", string(types.ModeLocal))
	v.SetDefault("logging.level", string(types.LogLevelInfo))

	v.SetDefault("billing.currency", "usd")
	v.SetDefault("billing.taxratepercent", 10.0)
	v.SetDefault("billing.autorenewdiscountpercent", 5.0)
	v.SetDefault("billing.trialconversiondiscountpercent", 10.0)
	v.SetDefault("billing.duedays", 15)
	v.SetDefault("billing.invoicebatchsize", 100)

	v.SetDefault("outbox.topic", "billing.events")
	v.SetDefault("outbox.relaybatchsize", 100)

	v.SetDefault("scheduler.invoiceschedule", "0 * * * *")
	v.SetDefault("scheduler.trialexpiryschedule", "30 * * * *")
	v.SetDefault("scheduler.outboxrelayschedule", "* * * * *")
	v.SetDefault("scheduler.paymentpostingschedule", "*/5 * * * *")
	v.SetDefault("scheduler.overdueschedule", "15 0 * * *")

	v.SetDefault("gateway.timeout", "30s")
	v.SetDefault("gateway.retrymax", 3)
}

func (c Configuration) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}

// GetDefaultConfig returns a default configuration for local development
// and tests. This is useful for running scripts or other non-web applications.
func GetDefaultConfig() *Configuration {
	return &Configuration{
		Deployment: DeploymentConfig{Mode: types.ModeLocal},
		Logging:    LoggingConfig{Level: types.LogLevelInfo},
		Billing: BillingConfig{
			Currency:                       "usd",
			TaxRatePercent:                 10.0,
			AutoRenewDiscountPercent:       5.0,
			TrialConversionDiscountPercent: 10.0,
			DueDays:                        15,
			InvoiceBatchSize:               100,
		},
		Outbox: OutboxConfig{
			Topic:          "billing.events",
			RelayBatchSize: 100,
		},
		Scheduler: SchedulerConfig{
			InvoiceSchedule:        "0 * * * *",
			TrialExpirySchedule:    "30 * * * *",
			OutboxRelaySchedule:    "* * * * *",
			PaymentPostingSchedule: "*/5 * * * *",
			OverdueSchedule:        "15 0 * * *",
		},
		Gateway: GatewayConfig{
			Timeout:  30 * time.Second,
			RetryMax: 3,
		},
	}
}
