package testutil

import (
	"context"
	"time"

	"github.com/billforge/billforge/internal/config"
	"github.com/billforge/billforge/internal/domain/invoice"
	"github.com/billforge/billforge/internal/domain/outbox"
	"github.com/billforge/billforge/internal/domain/payment"
	"github.com/billforge/billforge/internal/domain/plan"
	"github.com/billforge/billforge/internal/domain/refund"
	"github.com/billforge/billforge/internal/domain/subscription"
	"github.com/billforge/billforge/internal/domain/usage"
	"github.com/billforge/billforge/internal/logger"
	"github.com/billforge/billforge/internal/notification"
	"github.com/billforge/billforge/internal/publisher"
	"github.com/billforge/billforge/internal/pubsub"
	"github.com/billforge/billforge/internal/types"
	"github.com/billforge/billforge/internal/validator"
	"github.com/stretchr/testify/suite"
)

// Stores holds all the repository interfaces for testing
type Stores struct {
	PlanRepo    plan.Repository
	SubRepo     subscription.Repository
	InvoiceRepo invoice.Repository
	UsageRepo   usage.Repository
	PaymentRepo payment.Repository
	RefundRepo  refund.Repository
	OutboxRepo  outbox.Repository
}

// NewStores builds a fresh set of in-memory repositories
func NewStores() Stores {
	return Stores{
		PlanRepo:    NewInMemoryPlanStore(),
		SubRepo:     NewInMemorySubscriptionStore(),
		InvoiceRepo: NewInMemoryInvoiceStore(),
		UsageRepo:   NewInMemoryUsageStore(),
		PaymentRepo: NewInMemoryPaymentStore(),
		RefundRepo:  NewInMemoryRefundStore(),
		OutboxRepo:  NewInMemoryOutboxStore(),
	}
}

// BaseServiceTestSuite provides common functionality for all service test suites
type BaseServiceTestSuite struct {
	suite.Suite
	ctx       context.Context
	stores    Stores
	pubsub    pubsub.PubSub
	publisher publisher.EventPublisher
	sender    *CapturingSender
	gateway   *MockGateway
	logger    *logger.Logger
	config    *config.Configuration
	now       time.Time
}

// SetupSuite is called once before running the tests in the suite
func (s *BaseServiceTestSuite) SetupSuite() {
	validator.NewValidator()

	cfg := config.GetDefaultConfig()
	s.config = cfg

	var err error
	s.logger, err = logger.NewLogger(cfg)
	if err != nil {
		s.T().Fatalf("failed to create logger: %v", err)
	}
}

// SetupTest is called before each test
func (s *BaseServiceTestSuite) SetupTest() {
	s.setupContext()
	s.setupStores()
	s.now = time.Now().UTC()
}

// TearDownTest is called after each test
func (s *BaseServiceTestSuite) TearDownTest() {
	s.clearStores()
}

func (s *BaseServiceTestSuite) setupContext() {
	s.ctx = context.Background()
	s.ctx = context.WithValue(s.ctx, types.CtxTenantID, types.DefaultTenantID)
	s.ctx = context.WithValue(s.ctx, types.CtxUserID, types.DefaultUserID)
	s.ctx = context.WithValue(s.ctx, types.CtxRequestID, types.GenerateUUID())
}

func (s *BaseServiceTestSuite) setupStores() {
	s.stores = NewStores()

	s.pubsub = NewInMemoryPubSub(s.logger)
	s.publisher = publisher.NewEventPublisher(s.pubsub, s.logger)
	s.sender = NewCapturingSender()
	s.gateway = NewMockGateway()
}

func (s *BaseServiceTestSuite) clearStores() {
	s.stores.PlanRepo.(*InMemoryPlanStore).Clear()
	s.stores.SubRepo.(*InMemorySubscriptionStore).Clear()
	s.stores.InvoiceRepo.(*InMemoryInvoiceStore).Clear()
	s.stores.UsageRepo.(*InMemoryUsageStore).Clear()
	s.stores.PaymentRepo.(*InMemoryPaymentStore).Clear()
	s.stores.RefundRepo.(*InMemoryRefundStore).Clear()
	s.stores.OutboxRepo.(*InMemoryOutboxStore).Clear()
}

// ClearStores exposes clearStores to tests that reset state mid-test
func (s *BaseServiceTestSuite) ClearStores() {
	s.clearStores()
}

// GetContext returns the test context
func (s *BaseServiceTestSuite) GetContext() context.Context {
	return s.ctx
}

// GetConfig returns the test configuration
func (s *BaseServiceTestSuite) GetConfig() *config.Configuration {
	return s.config
}

// GetLogger returns the test logger
func (s *BaseServiceTestSuite) GetLogger() *logger.Logger {
	return s.logger
}

// GetStores returns all test repositories
func (s *BaseServiceTestSuite) GetStores() Stores {
	return s.stores
}

// GetPubSub returns the test pubsub
func (s *BaseServiceTestSuite) GetPubSub() pubsub.PubSub {
	return s.pubsub
}

// GetPublisher returns the test event publisher
func (s *BaseServiceTestSuite) GetPublisher() publisher.EventPublisher {
	return s.publisher
}

// GetSender returns the capturing notification sender
func (s *BaseServiceTestSuite) GetSender() *CapturingSender {
	return s.sender
}

// GetNotificationClient returns a client backed by the capturing sender
func (s *BaseServiceTestSuite) GetNotificationClient() notification.Client {
	return notification.NewClient(s.sender, s.logger)
}

// GetGateway returns the mock payment gateway
func (s *BaseServiceTestSuite) GetGateway() *MockGateway {
	return s.gateway
}

// GetNow returns the timestamp taken at test setup
func (s *BaseServiceTestSuite) GetNow() time.Time {
	return s.now
}
