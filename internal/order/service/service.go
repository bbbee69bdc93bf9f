package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"plugstore/internal/coupon"
	"plugstore/internal/discount"
	"plugstore/internal/metrics"
	"plugstore/internal/order"
	"plugstore/internal/product"
)

var (
	ErrProductNotFound          = errors.New("product not found")
	ErrCoupon                   = errors.New("coupon rejected")
	ErrInsufficientBalance      = errors.New("insufficient balance")
	ErrOrderPersistenceFailed   = errors.New("order could not be saved")
	ErrDuplicateCompletion      = errors.New("order already completed")
	ErrInvalidTransition        = errors.New("order status does not allow this transition")
	ErrUnsupportedPaymentMethod = errors.New("unsupported payment method")
	ErrOrderNotFound            = order.ErrNotFound
	ErrLicenseNotFound          = order.ErrLicenseNotFound
)

const maxOrderNumberAttempts = 5

// Tx: операции, выполняемые в одной транзакции оформления.
type Tx interface {
	GetProduct(ctx context.Context, id int64) (*product.Product, error)
	GetCoupon(ctx context.Context, id int64) (*coupon.Coupon, error)
	// RedeemCoupon и DebitBalance выполняют условный UPDATE и возвращают false, если лимит или баланс исчерпан.
	RedeemCoupon(ctx context.Context, couponID int64) (bool, error)
	DebitBalance(ctx context.Context, userID int64, amount decimal.Decimal) (bool, error)
	// InsertOrder возвращает false, если order_number уже занят.
	InsertOrder(ctx context.Context, o *order.Order) (bool, error)
	GetOrderForUpdate(ctx context.Context, id int64) (*order.Order, error)
	MarkCompleted(ctx context.Context, id int64, at time.Time) error
	MarkFailed(ctx context.Context, id int64) error
	InsertLicense(ctx context.Context, l *order.License) error
}

type Store interface {
	// InTx откатывает все изменения fn, если она вернула ошибку.
	InTx(ctx context.Context, fn func(tx Tx) error) error
	GetProduct(ctx context.Context, id int64) (*product.Product, error)
	GetOrder(ctx context.Context, id int64) (*order.Order, error)
	ListByUser(ctx context.Context, userID int64) ([]*order.Order, error)
	GetLicenseByOrder(ctx context.Context, orderID int64) (*order.License, error)
}

type DiscountResolver interface {
	Resolve(ctx context.Context, req discount.Request) (*discount.Result, error)
}

// Notifier получает заказы, перешедшие в completed. Вызывается в фоне после коммита.
type Notifier interface {
	OrderCompleted(ctx context.Context, o *order.Order) error
}

type CreateOrderInput struct {
	UserID        int64
	ProductID     int64
	PaymentMethod string
	CouponCode    string
}

type Service struct {
	store          Store
	resolver       DiscountResolver
	notifier       Notifier
	gatewayMethods map[string]bool

	notifyTimeout time.Duration
	notifications sync.WaitGroup

	now            func() time.Time
	newOrderNumber func(time.Time) (string, error)
	newLicenseKey  func() (string, error)
}

func NewService(store Store, resolver DiscountResolver, notifier Notifier, gatewayMethods []string) *Service {
	methods := make(map[string]bool, len(gatewayMethods))
	for _, m := range gatewayMethods {
		methods[m] = true
	}
	return &Service{
		store:          store,
		resolver:       resolver,
		notifier:       notifier,
		gatewayMethods: methods,
		notifyTimeout:  10 * time.Second,
		now:            time.Now,
		newOrderNumber: NewOrderNumber,
		newLicenseKey:  NewLicenseKey,
	}
}

// CreateOrder оформляет покупку. Списание купона, списание баланса, запись
// заказа и выдача лицензии либо проходят вместе, либо не остаётся ничего.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (*order.Order, error) {
	o, err := s.createOrder(ctx, in)
	if err != nil {
		metrics.OrderFailuresTotal.WithLabelValues(failureReason(err)).Inc()
		return nil, err
	}

	metrics.OrdersCreatedTotal.WithLabelValues(o.PaymentMethod, string(o.Status)).Inc()
	if o.CouponID != nil {
		metrics.CouponRedemptionsTotal.Inc()
	}
	if o.Status == order.StatusCompleted {
		metrics.OrdersCompletedTotal.WithLabelValues("checkout").Inc()
		s.notify(ctx, o)
	}
	log.Printf("OrderService: order %s created for user %d (product %d, amount %s, status %s)",
		o.OrderNumber, o.UserID, o.ProductID, o.Amount.StringFixed(2), o.Status)
	return o, nil
}

func (s *Service) createOrder(ctx context.Context, in CreateOrderInput) (*order.Order, error) {
	p, err := s.store.GetProduct(ctx, in.ProductID)
	if errors.Is(err, product.ErrNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load product: %w", err)
	}
	if !p.IsActive() {
		return nil, ErrProductNotFound
	}

	o := &order.Order{
		UserID:         in.UserID,
		ProductID:      p.ID,
		OriginalAmount: p.Price,
		Amount:         p.Price,
		DiscountAmount: decimal.Zero,
		PaymentMethod:  in.PaymentMethod,
	}

	if p.IsFree() {
		// Бесплатный товар: способ оплаты и купон игнорируются.
		o.PaymentMethod = order.PaymentFree
		o.Amount = decimal.Zero
	} else {
		if !s.paidMethodAllowed(in.PaymentMethod) {
			return nil, ErrUnsupportedPaymentMethod
		}
		res, err := s.resolver.Resolve(ctx, discount.Request{
			CouponCode: in.CouponCode,
			ProductID:  p.ID,
			CategoryID: p.CategoryID,
			BaseAmount: p.Price,
		})
		if err != nil {
			if discount.IsCouponError(err) {
				return nil, fmt.Errorf("%w: %w", ErrCoupon, err)
			}
			return nil, fmt.Errorf("resolve discount: %w", err)
		}
		o.OriginalAmount = res.OriginalAmount
		o.Amount = res.FinalAmount
		o.DiscountAmount = res.DiscountAmount
		if res.AppliedRule != nil {
			id := res.AppliedRule.ID
			switch res.AppliedRule.Kind {
			case discount.RuleCoupon:
				o.CouponID = &id
			case discount.RuleBundle:
				o.BundleID = &id
			}
		}
	}

	// Платёжный шлюз нужен, только если есть что оплачивать.
	payNow := o.PaymentMethod == order.PaymentBalance || !o.Amount.IsPositive()

	err = s.store.InTx(ctx, func(tx Tx) error {
		if o.CouponID != nil {
			ok, err := tx.RedeemCoupon(ctx, *o.CouponID)
			if err != nil {
				return fmt.Errorf("redeem coupon: %w", err)
			}
			if !ok {
				return s.couponRejection(ctx, tx, *o.CouponID)
			}
		}

		if o.PaymentMethod == order.PaymentBalance && o.Amount.IsPositive() {
			ok, err := tx.DebitBalance(ctx, o.UserID, o.Amount)
			if err != nil {
				return fmt.Errorf("debit balance: %w", err)
			}
			if !ok {
				return ErrInsufficientBalance
			}
		}

		o.Status = order.StatusPending
		if err := s.insertOrder(ctx, tx, o); err != nil {
			return err
		}

		if payNow {
			return s.complete(ctx, tx, o, p)
		}
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}
	return o, nil
}

// couponRejection уточняет, почему купон, прошедший расчёт цены, не удалось засчитать.
func (s *Service) couponRejection(ctx context.Context, tx Tx, couponID int64) error {
	c, err := tx.GetCoupon(ctx, couponID)
	if errors.Is(err, coupon.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrCoupon, discount.ErrCouponNotFound)
	}
	if err != nil {
		return fmt.Errorf("load coupon: %w", err)
	}

	reason := discount.ErrCouponExhausted
	switch {
	case !c.IsActive:
		reason = discount.ErrCouponInactive
	case c.Expired(s.now()):
		reason = discount.ErrCouponExpired
	}
	return fmt.Errorf("%w: %w", ErrCoupon, reason)
}

func (s *Service) paidMethodAllowed(method string) bool {
	return method == order.PaymentBalance || s.gatewayMethods[method]
}

func (s *Service) insertOrder(ctx context.Context, tx Tx, o *order.Order) error {
	for attempt := 0; attempt < maxOrderNumberAttempts; attempt++ {
		number, err := s.newOrderNumber(s.now())
		if err != nil {
			return fmt.Errorf("generate order number: %w", err)
		}
		o.OrderNumber = number

		inserted, err := tx.InsertOrder(ctx, o)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		if inserted {
			return nil
		}
		log.Printf("OrderService: order number %s already taken, retrying", number)
	}
	return fmt.Errorf("%w: no free order number after %d attempts", ErrOrderPersistenceFailed, maxOrderNumberAttempts)
}

// complete выдаёт лицензию и только после этого переводит заказ в completed.
func (s *Service) complete(ctx context.Context, tx Tx, o *order.Order, p *product.Product) error {
	l := &order.License{OrderID: o.ID, Status: order.LicenseActive}
	switch {
	case p.DownloadURL != nil && *p.DownloadURL != "":
		l.DownloadURL = p.DownloadURL
	case p.LicenseKey != nil && *p.LicenseKey != "":
		l.LicenseKey = p.LicenseKey
	default:
		key, err := s.newLicenseKey()
		if err != nil {
			return fmt.Errorf("generate license key: %w", err)
		}
		l.LicenseKey = &key
	}
	if err := tx.InsertLicense(ctx, l); err != nil {
		return fmt.Errorf("insert license: %w", err)
	}

	at := s.now()
	if err := tx.MarkCompleted(ctx, o.ID, at); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	o.Status = order.StatusCompleted
	o.CompletedAt = &at
	return nil
}

// CompleteOrder: подтверждение оплаты от шлюза. Повторный вызов для
// завершённого заказа возвращает заказ и ErrDuplicateCompletion, вторая лицензия не создаётся.
func (s *Service) CompleteOrder(ctx context.Context, orderID int64) (*order.Order, error) {
	var (
		o         *order.Order
		duplicate bool
	)
	err := s.store.InTx(ctx, func(tx Tx) error {
		var err error
		o, err = tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}

		switch o.Status {
		case order.StatusCompleted:
			duplicate = true
			return nil
		case order.StatusFailed:
			return ErrInvalidTransition
		}

		p, err := tx.GetProduct(ctx, o.ProductID)
		if err != nil {
			return fmt.Errorf("load product: %w", err)
		}
		return s.complete(ctx, tx, o, p)
	})
	if err != nil {
		return nil, classify(err)
	}
	if duplicate {
		log.Printf("OrderService: order %s already completed, ignoring repeated confirmation", o.OrderNumber)
		return o, ErrDuplicateCompletion
	}

	metrics.OrdersCompletedTotal.WithLabelValues("webhook").Inc()
	log.Printf("OrderService: order %s completed", o.OrderNumber)
	s.notify(ctx, o)
	return o, nil
}

// FailOrder: отказ шлюза. Купон остаётся засчитанным.
func (s *Service) FailOrder(ctx context.Context, orderID int64) (*order.Order, error) {
	var o *order.Order
	err := s.store.InTx(ctx, func(tx Tx) error {
		var err error
		o, err = tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}

		switch o.Status {
		case order.StatusFailed:
			return nil
		case order.StatusCompleted:
			return ErrInvalidTransition
		}

		if err := tx.MarkFailed(ctx, o.ID); err != nil {
			return fmt.Errorf("mark failed: %w", err)
		}
		o.Status = order.StatusFailed
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}
	log.Printf("OrderService: order %s marked as failed", o.OrderNumber)
	return o, nil
}

func (s *Service) GetOrder(ctx context.Context, userID, orderID int64) (*order.Order, error) {
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

func (s *Service) ListOrders(ctx context.Context, userID int64) ([]*order.Order, error) {
	orders, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if orders == nil {
		orders = []*order.Order{}
	}
	return orders, nil
}

func (s *Service) GetLicense(ctx context.Context, userID, orderID int64) (*order.License, error) {
	if _, err := s.GetOrder(ctx, userID, orderID); err != nil {
		return nil, err
	}
	return s.store.GetLicenseByOrder(ctx, orderID)
}

// notify публикует событие в отдельной горутине. Контекст запроса отвязан от
// отмены: клиент, закрывший соединение, не отменяет публикацию.
func (s *Service) notify(ctx context.Context, o *order.Order) {
	if s.notifier == nil {
		return
	}
	event := *o
	ctx = context.WithoutCancel(ctx)

	s.notifications.Add(1)
	go func() {
		defer s.notifications.Done()
		ctx, cancel := context.WithTimeout(ctx, s.notifyTimeout)
		defer cancel()

		if err := s.notifier.OrderCompleted(ctx, &event); err != nil {
			metrics.NotificationsTotal.WithLabelValues("error").Inc()
			log.Printf("OrderService: ERROR: notification for order %s failed: %v", event.OrderNumber, err)
			return
		}
		metrics.NotificationsTotal.WithLabelValues("sent").Inc()
	}()
}

// WaitNotifications ждёт фоновые публикации. main вызывает его при остановке
// до закрытия Kafka writer.
func (s *Service) WaitNotifications() {
	s.notifications.Wait()
}

// classify оставляет доменные ошибки как есть, остальное считается сбоем записи.
func classify(err error) error {
	switch {
	case errors.Is(err, ErrCoupon),
		errors.Is(err, ErrInsufficientBalance),
		errors.Is(err, ErrOrderPersistenceFailed),
		errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrOrderNotFound),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return fmt.Errorf("%w: %v", ErrOrderPersistenceFailed, err)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, ErrCoupon):
		return "coupon"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrUnsupportedPaymentMethod):
		return "payment_method"
	case errors.Is(err, ErrOrderPersistenceFailed):
		return "persistence"
	}
	return "internal"
}
