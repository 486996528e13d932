package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/billforge/billforge/internal/domain/outbox"
	ierr "github.com/billforge/billforge/internal/errors"
	"github.com/billforge/billforge/internal/testutil"
	"github.com/billforge/billforge/internal/types"
	"github.com/stretchr/testify/suite"
)

// failingPublisher rejects every publish to exercise the retry path
type failingPublisher struct{}

func (p *failingPublisher) Publish(ctx context.Context, topic string, msg *message.Message) error {
	return ierr.NewError("broker unavailable").
		Mark(ierr.ErrSystem)
}

func (p *failingPublisher) Close() error { return nil }

type OutboxServiceSuite struct {
	testutil.BaseServiceTestSuite
	service OutboxService
}

func TestOutboxService(t *testing.T) {
	suite.Run(t, new(OutboxServiceSuite))
}

func (s *OutboxServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.service = NewOutboxService(s.serviceParams())
}

func (s *OutboxServiceSuite) serviceParams() ServiceParams {
	return ServiceParams{
		Logger:         s.GetLogger(),
		Config:         s.GetConfig(),
		OutboxRepo:     s.GetStores().OutboxRepo,
		PubSub:         s.GetPubSub(),
		EventPublisher: s.GetPublisher(),
	}
}

func (s *OutboxServiceSuite) TestSaveEvent() {
	err := s.service.SaveEvent(s.GetContext(), types.EventInvoiceGenerated, "inv_1", map[string]string{"id": "inv_1"})
	s.NoError(err)

	pending, err := s.GetStores().OutboxRepo.Count(s.GetContext(), types.OutboxStatusPending)
	s.NoError(err)
	s.Equal(1, pending)
}

func (s *OutboxServiceSuite) TestRelayPending() {
	for _, id := range []string{"inv_1", "inv_2", "inv_3"} {
		s.NoError(s.service.SaveEvent(s.GetContext(), types.EventInvoiceGenerated, id, map[string]string{"id": id}))
	}

	sent, err := s.service.RelayPending(s.GetContext(), 100)
	s.NoError(err)
	s.Equal(3, sent)

	sentCount, err := s.GetStores().OutboxRepo.Count(s.GetContext(), types.OutboxStatusSent)
	s.NoError(err)
	s.Equal(3, sentCount)

	// A second pass has nothing left
	sent, err = s.service.RelayPending(s.GetContext(), 100)
	s.NoError(err)
	s.Equal(0, sent)
}

func (s *OutboxServiceSuite) TestRelayPendingBacksOffOnFailure() {
	params := s.serviceParams()
	params.PubSub = &failingPublisher{}
	svc := NewOutboxService(params)

	// A record that failed twice already and is due again
	past := s.GetNow().Add(-time.Minute)
	record := &outbox.Record{
		ID:          types.GenerateUUIDWithPrefix(types.UUID_PREFIX_OUTBOX),
		EventType:   types.EventInvoiceGenerated,
		AggregateID: "inv_1",
		Payload:     []byte(`{}`),
		EventStatus: types.OutboxStatusFailed,
		RetryCount:  2,
		NextRetryAt: &past,
		BaseModel:   types.GetDefaultBaseModel(s.GetContext()),
	}
	s.NoError(s.GetStores().OutboxRepo.Create(s.GetContext(), record))

	sent, err := svc.RelayPending(s.GetContext(), 100)
	s.NoError(err)
	s.Equal(0, sent)

	stored, err := s.GetStores().OutboxRepo.Get(s.GetContext(), record.ID)
	s.NoError(err)
	s.Equal(types.OutboxStatusFailed, stored.EventStatus)
	s.Equal(3, stored.RetryCount)
	s.NotNil(stored.LastError)

	// Third failure schedules the next attempt 2^3 = 8 seconds out
	s.NotNil(stored.NextRetryAt)
	delay := stored.NextRetryAt.Sub(s.GetNow())
	s.InDelta((8 * time.Second).Seconds(), delay.Seconds(), 1.5)
}

func (s *OutboxServiceSuite) TestRelayPendingConcurrent() {
	const records = 20
	for i := 0; i < records; i++ {
		s.NoError(s.service.SaveEvent(s.GetContext(), types.EventPaymentPosted, types.GenerateUUID(), map[string]int{"n": i}))
	}

	var wg sync.WaitGroup
	results := make([]int, 8)
	for i := range results {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			sent, err := s.service.RelayPending(s.GetContext(), 100)
			s.NoError(err)
			results[slot] = sent
		}(i)
	}
	wg.Wait()

	// Every record is counted as sent by exactly one relayer
	total := 0
	for _, sent := range results {
		total += sent
	}
	s.Equal(records, total)

	sentCount, err := s.GetStores().OutboxRepo.Count(s.GetContext(), types.OutboxStatusSent)
	s.NoError(err)
	s.Equal(records, sentCount)
}

func (s *OutboxServiceSuite) TestSentRecordsNeverRelayAgain() {
	s.NoError(s.service.SaveEvent(s.GetContext(), types.EventInvoicePaid, "inv_1", map[string]string{"id": "inv_1"}))

	sent, err := s.service.RelayPending(s.GetContext(), 100)
	s.NoError(err)
	s.Equal(1, sent)

	// A stale failure write cannot downgrade a sent record
	records, err := s.GetStores().OutboxRepo.ListDue(s.GetContext(), s.GetNow().Add(time.Hour), 100)
	s.NoError(err)
	s.Empty(records)

	all, err := s.GetStores().OutboxRepo.Count(s.GetContext(), types.OutboxStatusSent)
	s.NoError(err)
	s.Equal(1, all)
}
