package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/packline-io/packline/internal/erp"
	"github.com/packline-io/packline/internal/grn"
	"github.com/packline-io/packline/internal/shared"
)

// ERPPort exposes the delivery posting call.
type ERPPort interface {
	PostDelivery(ctx context.Context, doc erp.Delivery) (erp.PostResult, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service drives the outbound delivery flow: build an order from picked
// quantities, submit it, post it to the ERP.
type Service struct {
	repo  RepositoryPort
	erp   ERPPort
	audit AuditPort
}

// NewService constructs the dispatch service.
func NewService(repo RepositoryPort, erpPort ERPPort, audit AuditPort) *Service {
	return &Service{repo: repo, erp: erpPort, audit: audit}
}

// CreateOrderInput describes a new delivery order with its lines.
type CreateOrderInput struct {
	CustomerCode string
	Warehouse    string
	Reference    string
	DeliveryDate time.Time
	Lines        []OrderLineInput
	ActorID      int64
}

// OrderLineInput is one picked item.
type OrderLineInput struct {
	ItemCode    string
	Quantity    float64
	BatchNumber string
}

// CreateOrder persists the order header and lines in one transaction.
// The order number derives from the database id, same scheme as the
// receiving documents.
func (s *Service) CreateOrder(ctx context.Context, input CreateOrderInput) (Order, error) {
	if input.CustomerCode == "" || input.Warehouse == "" {
		return Order{}, fmt.Errorf("%w: customer and warehouse required", ErrValidation)
	}
	if len(input.Lines) == 0 {
		return Order{}, fmt.Errorf("%w: at least one line required", ErrValidation)
	}
	for _, line := range input.Lines {
		if line.ItemCode == "" || line.Quantity <= 0 {
			return Order{}, fmt.Errorf("%w: every line needs an item code and a positive quantity", ErrValidation)
		}
	}
	deliveryDate := input.DeliveryDate
	if deliveryDate.IsZero() {
		deliveryDate = time.Now().UTC()
	}
	order := Order{
		CustomerCode: input.CustomerCode,
		Warehouse:    input.Warehouse,
		Reference:    input.Reference,
		Status:       OrderDraft,
		DeliveryDate: deliveryDate,
		CreatedBy:    input.ActorID,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertOrder(ctx, order)
		if err != nil {
			return err
		}
		order.ID = id
		order.Number = grn.NewDocumentNumber(grn.PrefixDelivery, deliveryDate, id).String()
		if err := tx.SetOrderNumber(ctx, id, order.Number); err != nil {
			return err
		}
		for _, line := range input.Lines {
			if _, err := tx.InsertLine(ctx, OrderLine{
				OrderID:     id,
				ItemCode:    line.ItemCode,
				Quantity:    line.Quantity,
				Warehouse:   input.Warehouse,
				BatchNumber: line.BatchNumber,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.recordAudit(ctx, input.ActorID, "DLV_CREATE", order.ID, map[string]any{"number": order.Number})
	return order, nil
}

// Submit locks the order for posting.
func (s *Service) Submit(ctx context.Context, orderID, actorID int64) error {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if !order.Status.CanSubmit() {
		return ErrInvalidState
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateOrderStatus(ctx, orderID, OrderSubmitted)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "DLV_SUBMIT", orderID, map[string]any{"number": order.Number})
	return nil
}

// PostOrder sends the delivery to the ERP. A rejected post marks the
// order FAILED and keeps it retryable.
func (s *Service) PostOrder(ctx context.Context, orderID, actorID int64) (Order, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if !order.Status.CanPost() {
		return Order{}, ErrInvalidState
	}
	lines, err := s.repo.ListLines(ctx, orderID)
	if err != nil {
		return Order{}, err
	}

	delivery := erp.Delivery{
		CardCode: order.CustomerCode,
		DocDate:  order.DeliveryDate.Format("2006-01-02"),
		Comments: fmt.Sprintf("%s via Packline", order.Number),
	}
	for _, line := range lines {
		delivery.Lines = append(delivery.Lines, erp.DeliveryLine{
			ItemCode:      line.ItemCode,
			Quantity:      line.Quantity,
			WarehouseCode: line.Warehouse,
		})
	}

	result, postErr := s.erp.PostDelivery(ctx, delivery)
	if postErr != nil {
		_ = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			return tx.SetPostedResult(ctx, orderID, OrderFailed, "")
		})
		order.Status = OrderFailed
		s.recordAudit(ctx, actorID, "DLV_POST_FAIL", orderID, map[string]any{"error": postErr.Error()})
		return order, postErr
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SetPostedResult(ctx, orderID, OrderPosted, result.DocNum)
	})
	if err != nil {
		return Order{}, err
	}
	order.Status = OrderPosted
	order.PostedDocNum = result.DocNum
	s.recordAudit(ctx, actorID, "DLV_POST", orderID, map[string]any{"erp_doc": result.DocNum})
	return order, nil
}

// GetOrder returns the order with its lines.
func (s *Service) GetOrder(ctx context.Context, orderID int64) (Order, []OrderLine, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, nil, err
	}
	lines, err := s.repo.ListLines(ctx, orderID)
	if err != nil {
		return Order{}, nil, err
	}
	return order, lines, nil
}

// ListOrders returns recent orders, optionally filtered by status.
func (s *Service) ListOrders(ctx context.Context, status OrderStatus) ([]Order, error) {
	return s.repo.ListOrders(ctx, status)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Device:   shared.DeviceFromContext(ctx),
		Action:   action,
		Entity:   "delivery_order",
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
	})
}
