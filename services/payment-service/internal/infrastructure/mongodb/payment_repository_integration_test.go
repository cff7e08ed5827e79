package mongodb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/thunderndwind/Microservices-E-Commerce/services/payment-service/internal/domain"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/cloudevents"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/logging"
	sharedMongo "github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/mongodb"
	outboxMongo "github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/outbox/mongodb"
	testinfra "github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/testing"
)

type PaymentRepositoryIntegrationTestSuite struct {
	suite.Suite
	ctx       context.Context
	container *testinfra.MongoDBContainer
	client    *sharedMongo.InstrumentedClient
	repo      *PaymentRepository
	outbox    *outboxMongo.OutboxRepository
	now       time.Time
}

func TestPaymentRepositoryIntegration(t *testing.T) {
	testinfra.SkipIfShort(t)
	suite.Run(t, new(PaymentRepositoryIntegrationTestSuite))
}

func (s *PaymentRepositoryIntegrationTestSuite) SetupSuite() {
	s.ctx = context.Background()
	s.now = time.Now().UTC().Truncate(time.Millisecond)

	container, err := testinfra.NewMongoDBContainer(s.ctx)
	s.Require().NoError(err)
	s.container = container

	config := sharedMongo.DefaultConfig("payment_test")
	config.URI = container.URI
	client, err := sharedMongo.NewProductionClient(s.ctx, config, nil, logging.NewNop())
	s.Require().NoError(err)
	s.client = client

	s.repo = NewPaymentRepository(client, cloudevents.NewEventFactory(cloudevents.SourcePayment))
	s.outbox = outboxMongo.NewOutboxRepository(client.Database())
	s.Require().NoError(s.repo.EnsureIndexes(s.ctx))
}

func (s *PaymentRepositoryIntegrationTestSuite) TearDownSuite() {
	if s.client != nil {
		_ = s.client.Close(s.ctx)
	}
	if s.container != nil {
		s.Require().NoError(s.container.Close(s.ctx))
	}
}

func (s *PaymentRepositoryIntegrationTestSuite) TearDownTest() {
	_, _ = s.client.Collection(PaymentsCollection).DeleteMany(s.ctx, bson.M{})
	_, _ = s.client.Collection(outboxMongo.DefaultCollectionName).DeleteMany(s.ctx, bson.M{})
}

func (s *PaymentRepositoryIntegrationTestSuite) newPayment(orderID, ownerID string, at time.Time) *domain.Payment {
	p, err := domain.NewPayment(domain.NewPaymentInput{
		OrderID:       orderID,
		OwnerID:       ownerID,
		Amount:        60,
		Currency:      "USD",
		PaymentMethod: "CreditCard",
		Card:          &domain.CardDetails{CardNumber: "4111111111111234", CardHolder: "Jane Doe"},
	}, at)
	s.Require().NoError(err)
	p.Approve(at)
	return p
}

func (s *PaymentRepositoryIntegrationTestSuite) TestCreateAndFind() {
	p := s.newPayment("ORDER_1", "user-1", s.now)
	s.Require().NoError(s.repo.Create(s.ctx, p))

	found, err := s.repo.FindByID(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(domain.PaymentStatusSuccess, found.Status)
	s.Equal("Card: ****1234, Holder: Jane Doe", found.PaymentDetails)

	byOrder, err := s.repo.FindByOrderID(s.ctx, "ORDER_1")
	s.Require().NoError(err)
	s.Equal(p.ID, byOrder.ID)

	rows, err := s.outbox.FindByAggregateID(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Require().Len(rows, 1)
	s.Equal(cloudevents.PaymentProcessed, rows[0].EventType)

	_, err = s.repo.FindByID(s.ctx, "missing")
	s.ErrorIs(err, domain.ErrPaymentNotFound)
}

func (s *PaymentRepositoryIntegrationTestSuite) TestCreate_DuplicateOrder() {
	s.Require().NoError(s.repo.Create(s.ctx, s.newPayment("ORDER_1", "user-1", s.now)))

	dup := s.newPayment("ORDER_1", "user-1", s.now)
	s.ErrorIs(s.repo.Create(s.ctx, dup), domain.ErrDuplicateOrder)

	rows, err := s.outbox.FindByAggregateID(s.ctx, dup.ID)
	s.Require().NoError(err)
	s.Empty(rows)
}

func (s *PaymentRepositoryIntegrationTestSuite) TestRefund_VersionCheck() {
	p := s.newPayment("ORDER_1", "user-1", s.now)
	s.Require().NoError(s.repo.Create(s.ctx, p))

	stale, err := s.repo.FindByID(s.ctx, p.ID)
	s.Require().NoError(err)

	s.Require().NoError(p.Refund(s.now))
	s.Require().NoError(s.repo.Save(s.ctx, p))
	s.Equal(int64(1), p.Version)

	s.Require().NoError(stale.Refund(s.now))
	s.ErrorIs(s.repo.Save(s.ctx, stale), domain.ErrVersionConflict)
}

func (s *PaymentRepositoryIntegrationTestSuite) TestFindByOwnerID() {
	for i, order := range []string{"ORDER_1", "ORDER_2", "ORDER_3"} {
		s.Require().NoError(s.repo.Create(s.ctx, s.newPayment(order, "user-1", s.now.Add(time.Duration(i)*time.Minute))))
	}

	payments, err := s.repo.FindByOwnerID(s.ctx, "user-1", 10)
	s.Require().NoError(err)
	s.Require().Len(payments, 3)
	s.Equal("ORDER_3", payments[0].OrderID)
	s.Equal("ORDER_1", payments[2].OrderID)
}
