package types

// Outbox event names published to downstream consumers. The payload schema
// of each event is owned by its producer.
const (
	EventSubscriptionCreated      = "subscription.created"
	EventSubscriptionTrialExpired = "subscription.trial_expired"
	EventSubscriptionPaused       = "subscription.paused"
	EventSubscriptionResumed      = "subscription.resumed"
	EventSubscriptionCancelled    = "subscription.cancelled"
	EventSubscriptionUpgraded     = "subscription.upgraded"

	EventInvoiceGenerated = "invoice.generated"
	EventInvoiceOverdue   = "invoice.overdue"
	EventInvoicePaid      = "invoice.paid"

	EventPaymentPosted   = "payment.posted"
	EventRefundSucceeded = "refund.succeeded"
)

// Notification template codes used by the NotificationClient
const (
	TemplateSubscriptionConfirmed = "subscription_confirmed"
	TemplateTrialExpired          = "trial_expired"
	TemplateInvoiceGenerated      = "invoice_generated"
	TemplateInvoiceOverdue        = "invoice_overdue"
)

// NotificationChannel is the delivery channel for notifications
type NotificationChannel string

const (
	NotificationChannelEmail NotificationChannel = "email"
	NotificationChannelSMS   NotificationChannel = "sms"
)
