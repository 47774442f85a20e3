package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packline-io/packline/internal/erp"
)

type memOrderRepo struct {
	orders map[int64]Order
	lines  map[int64]OrderLine
	nextID int64
}

func newMemOrderRepo() *memOrderRepo {
	return &memOrderRepo{orders: map[int64]Order{}, lines: map[int64]OrderLine{}}
}

func (m *memOrderRepo) next() int64 {
	m.nextID++
	return m.nextID
}

func (m *memOrderRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, m)
}

func (m *memOrderRepo) GetOrder(_ context.Context, id int64) (Order, error) {
	order, ok := m.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return order, nil
}

func (m *memOrderRepo) ListLines(_ context.Context, orderID int64) ([]OrderLine, error) {
	var lines []OrderLine
	for _, line := range m.lines {
		if line.OrderID == orderID {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

func (m *memOrderRepo) ListOrders(_ context.Context, status OrderStatus) ([]Order, error) {
	var orders []Order
	for _, order := range m.orders {
		if status == "" || order.Status == status {
			orders = append(orders, order)
		}
	}
	return orders, nil
}

func (m *memOrderRepo) InsertOrder(_ context.Context, order Order) (int64, error) {
	order.ID = m.next()
	m.orders[order.ID] = order
	return order.ID, nil
}

func (m *memOrderRepo) SetOrderNumber(_ context.Context, id int64, number string) error {
	order := m.orders[id]
	order.Number = number
	m.orders[id] = order
	return nil
}

func (m *memOrderRepo) InsertLine(_ context.Context, line OrderLine) (int64, error) {
	line.ID = m.next()
	m.lines[line.ID] = line
	return line.ID, nil
}

func (m *memOrderRepo) UpdateOrderStatus(_ context.Context, id int64, status OrderStatus) error {
	order, ok := m.orders[id]
	if !ok {
		return ErrNotFound
	}
	order.Status = status
	m.orders[id] = order
	return nil
}

func (m *memOrderRepo) SetPostedResult(_ context.Context, id int64, status OrderStatus, postedDocNum string) error {
	order := m.orders[id]
	order.Status = status
	order.PostedDocNum = postedDocNum
	m.orders[id] = order
	return nil
}

type stubDeliveryERP struct {
	postErr error
	posted  []erp.Delivery
}

func (s *stubDeliveryERP) PostDelivery(_ context.Context, doc erp.Delivery) (erp.PostResult, error) {
	if s.postErr != nil {
		return erp.PostResult{}, s.postErr
	}
	s.posted = append(s.posted, doc)
	return erp.PostResult{DocEntry: 7, DocNum: "SAP-DLV-7"}, nil
}

func seedOrder(t *testing.T, svc *Service) Order {
	t.Helper()
	order, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		CustomerCode: "C-200",
		Warehouse:    "WH-01",
		Reference:    "SO-4411",
		Lines: []OrderLineInput{
			{ItemCode: "ITM-100", Quantity: 8, BatchNumber: "LOT-88"},
			{ItemCode: "ITM-200", Quantity: 2},
		},
	})
	require.NoError(t, err)
	return order
}

func TestCreateOrderAssignsDeliveryNumber(t *testing.T) {
	svc := NewService(newMemOrderRepo(), &stubDeliveryERP{}, nil)

	order := seedOrder(t, svc)
	assert.Equal(t, OrderDraft, order.Status)
	assert.Contains(t, order.Number, "DLV/")
}

func TestCreateOrderValidation(t *testing.T) {
	svc := NewService(newMemOrderRepo(), &stubDeliveryERP{}, nil)

	_, err := svc.CreateOrder(context.Background(), CreateOrderInput{CustomerCode: "C-200", Warehouse: "WH-01"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.CreateOrder(context.Background(), CreateOrderInput{
		CustomerCode: "C-200",
		Warehouse:    "WH-01",
		Lines:        []OrderLineInput{{ItemCode: "ITM-100", Quantity: 0}},
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSubmitThenPostOrder(t *testing.T) {
	repo := newMemOrderRepo()
	erpStub := &stubDeliveryERP{}
	svc := NewService(repo, erpStub, nil)
	order := seedOrder(t, svc)

	require.NoError(t, svc.Submit(context.Background(), order.ID, 3))

	posted, err := svc.PostOrder(context.Background(), order.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, OrderPosted, posted.Status)
	assert.Equal(t, "SAP-DLV-7", posted.PostedDocNum)

	require.Len(t, erpStub.posted, 1)
	assert.Equal(t, "C-200", erpStub.posted[0].CardCode)
	assert.Len(t, erpStub.posted[0].Lines, 2)
}

func TestPostOrderRequiresSubmission(t *testing.T) {
	svc := NewService(newMemOrderRepo(), &stubDeliveryERP{}, nil)
	order := seedOrder(t, svc)

	_, err := svc.PostOrder(context.Background(), order.ID, 3)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestPostOrderFailureKeepsRetryable(t *testing.T) {
	repo := newMemOrderRepo()
	erpStub := &stubDeliveryERP{postErr: errors.New("service layer down")}
	svc := NewService(repo, erpStub, nil)
	order := seedOrder(t, svc)
	require.NoError(t, svc.Submit(context.Background(), order.ID, 3))

	failed, err := svc.PostOrder(context.Background(), order.ID, 3)
	require.Error(t, err)
	assert.Equal(t, OrderFailed, failed.Status)

	erpStub.postErr = nil
	posted, err := svc.PostOrder(context.Background(), order.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, OrderPosted, posted.Status)
}
