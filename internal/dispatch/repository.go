package dispatch

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/packline-io/packline/internal/platform/db"
)

// RepositoryPort describes the persistence operations dispatch uses.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOrder(ctx context.Context, id int64) (Order, error)
	ListLines(ctx context.Context, orderID int64) ([]OrderLine, error)
	ListOrders(ctx context.Context, status OrderStatus) ([]Order, error)
}

// TxRepository exposes transactional writes.
type TxRepository interface {
	InsertOrder(ctx context.Context, order Order) (int64, error)
	SetOrderNumber(ctx context.Context, id int64, number string) error
	InsertLine(ctx context.Context, line OrderLine) (int64, error)
	UpdateOrderStatus(ctx context.Context, id int64, status OrderStatus) error
	SetPostedResult(ctx context.Context, id int64, status OrderStatus, postedDocNum string) error
}

// Repository persists delivery orders in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *Repository) GetOrder(ctx context.Context, id int64) (Order, error) {
	var order Order
	err := r.pool.QueryRow(ctx, `SELECT id, number, customer_code, warehouse, reference, status, delivery_date, COALESCE(posted_doc_num, ''), created_by, created_at
FROM delivery_orders WHERE id=$1`, id).
		Scan(&order.ID, &order.Number, &order.CustomerCode, &order.Warehouse, &order.Reference, &order.Status, &order.DeliveryDate, &order.PostedDocNum, &order.CreatedBy, &order.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	return order, err
}

func (r *Repository) ListLines(ctx context.Context, orderID int64) ([]OrderLine, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, order_id, item_code, quantity, warehouse, COALESCE(batch_number, '')
FROM delivery_order_lines WHERE order_id=$1 ORDER BY id ASC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []OrderLine
	for rows.Next() {
		var line OrderLine
		if err := rows.Scan(&line.ID, &line.OrderID, &line.ItemCode, &line.Quantity, &line.Warehouse, &line.BatchNumber); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (r *Repository) ListOrders(ctx context.Context, status OrderStatus) ([]Order, error) {
	query := `SELECT id, number, customer_code, warehouse, reference, status, delivery_date, COALESCE(posted_doc_num, ''), created_by, created_at
FROM delivery_orders`
	args := []any{}
	if status != "" {
		query += ` WHERE status=$1`
		args = append(args, string(status))
	}
	query += ` ORDER BY id DESC LIMIT 200`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var orders []Order
	for rows.Next() {
		var order Order
		if err := rows.Scan(&order.ID, &order.Number, &order.CustomerCode, &order.Warehouse, &order.Reference, &order.Status, &order.DeliveryDate, &order.PostedDocNum, &order.CreatedBy, &order.CreatedAt); err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) InsertOrder(ctx context.Context, order Order) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO delivery_orders (number, customer_code, warehouse, reference, status, delivery_date, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NOW()) RETURNING id`,
		order.Number, order.CustomerCode, order.Warehouse, order.Reference, string(order.Status), order.DeliveryDate, order.CreatedBy).Scan(&id)
	if err != nil {
		if uniqueViolation(err) {
			return 0, ErrDuplicateOrder
		}
		return 0, err
	}
	return id, nil
}

func (r *txRepository) SetOrderNumber(ctx context.Context, id int64, number string) error {
	_, err := r.tx.Exec(ctx, `UPDATE delivery_orders SET number=$2 WHERE id=$1`, id, number)
	return err
}

func (r *txRepository) InsertLine(ctx context.Context, line OrderLine) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO delivery_order_lines (order_id, item_code, quantity, warehouse, batch_number)
VALUES ($1,$2,$3,$4,NULLIF($5,'')) RETURNING id`,
		line.OrderID, line.ItemCode, line.Quantity, line.Warehouse, line.BatchNumber).Scan(&id)
	return id, err
}

func (r *txRepository) UpdateOrderStatus(ctx context.Context, id int64, status OrderStatus) error {
	tag, err := r.tx.Exec(ctx, `UPDATE delivery_orders SET status=$2 WHERE id=$1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepository) SetPostedResult(ctx context.Context, id int64, status OrderStatus, postedDocNum string) error {
	_, err := r.tx.Exec(ctx, `UPDATE delivery_orders SET status=$2, posted_doc_num=NULLIF($3,'') WHERE id=$1`, id, string(status), postedDocNum)
	return err
}

// uniqueViolation reports whether err is a Postgres unique constraint
// failure, possibly wrapped by the driver or a query helper.
func uniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
