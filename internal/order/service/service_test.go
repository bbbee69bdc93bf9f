package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plugstore/internal/bundle"
	"plugstore/internal/coupon"
	"plugstore/internal/discount"
	"plugstore/internal/order"
	"plugstore/internal/pricing"
	"plugstore/internal/product"
)

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

type recordingNotifier struct {
	mu     sync.Mutex
	orders []string
	err    error
}

func (n *recordingNotifier) OrderCompleted(ctx context.Context, o *order.Order) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.orders = append(n.orders, o.OrderNumber)
	return n.err
}

type fixture struct {
	store    *memStore
	notifier *recordingNotifier
	svc      *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newMemStore()
	store.products[1] = &product.Product{ID: 1, Name: "Homes", Price: money("50.00"), Status: product.StatusActive}
	store.products[2] = &product.Product{ID: 2, Name: "Essentials", Price: money("40.00"), Status: product.StatusActive,
		DownloadURL: strPtr("https://cdn.example.com/essentials.jar")}
	store.products[3] = &product.Product{ID: 3, Name: "Free Kit", Price: decimal.Zero, Status: product.StatusActive}
	store.products[4] = &product.Product{ID: 4, Name: "Retired", Price: money("10.00"), Status: product.StatusInactive}
	store.products[5] = &product.Product{ID: 5, Name: "Ranks", Price: money("25.00"), Status: product.StatusActive,
		LicenseKey: strPtr("RANKS-SHARED-KEY")}

	store.coupons[1] = &coupon.Coupon{ID: 1, Code: "SAVE10", DiscountType: pricing.DiscountFixed,
		DiscountValue: money("10"), MaxUses: intPtr(1), IsActive: true}
	expired := time.Now().Add(-time.Hour)
	store.coupons[2] = &coupon.Coupon{ID: 2, Code: "OLD", DiscountType: pricing.DiscountPercentage,
		DiscountValue: money("20"), ExpiresAt: &expired, IsActive: true}

	store.balances[100] = money("100.00")
	store.balances[200] = money("30.00")

	n := &recordingNotifier{}
	svc := NewService(store, discount.NewResolver(store, nil), n, []string{"paypal"})
	return &fixture{store: store, notifier: n, svc: svc}
}

// notified дожидается фоновых публикаций и возвращает номера заказов.
func (f *fixture) notified() []string {
	f.svc.WaitNotifications()
	f.notifier.mu.Lock()
	defer f.notifier.mu.Unlock()
	return append([]string(nil), f.notifier.orders...)
}

func assertAmountsAddUp(t *testing.T, o *order.Order) {
	t.Helper()
	assert.True(t, o.Amount.Add(o.DiscountAmount).Equal(o.OriginalAmount),
		"amount %s + discount %s != original %s", o.Amount, o.DiscountAmount, o.OriginalAmount)
}

func TestCreateOrder_BalanceWithCoupon(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o, err := f.svc.CreateOrder(ctx, CreateOrderInput{UserID: 100, ProductID: 1, PaymentMethod: "balance", CouponCode: "save10"})
	require.NoError(t, err)

	assert.Equal(t, order.StatusCompleted, o.Status)
	assert.True(t, o.Amount.Equal(money("40")))
	assert.True(t, o.DiscountAmount.Equal(money("10")))
	assert.True(t, o.OriginalAmount.Equal(money("50")))
	require.NotNil(t, o.CouponID)
	assert.Equal(t, int64(1), *o.CouponID)
	assert.NotNil(t, o.CompletedAt)
	assert.Regexp(t, `^ORD-\d{14}-[0-9A-F]{8}$`, o.OrderNumber)
	assertAmountsAddUp(t, o)

	assert.True(t, f.store.balance(100).Equal(money("60")))
	assert.Equal(t, 1, f.store.usedCount(1))

	l, err := f.svc.GetLicense(ctx, 100, o.ID)
	require.NoError(t, err)
	require.NotNil(t, l.LicenseKey)
	assert.Regexp(t, `^[0-9A-F]{8}(-[0-9A-F]{8}){3}$`, *l.LicenseKey)
	assert.Equal(t, []string{o.OrderNumber}, f.notified())

	// Лимит купона исчерпан.
	_, err = f.svc.CreateOrder(ctx, CreateOrderInput{UserID: 100, ProductID: 1, PaymentMethod: "balance", CouponCode: "SAVE10"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCoupon)
	assert.ErrorIs(t, err, discount.ErrCouponExhausted)
	assert.True(t, f.store.balance(100).Equal(money("60")))
	assert.Equal(t, 1, f.store.orderCount())
}

func TestCreateOrder_ConcurrentCouponRedemption(t *testing.T) {
	f := newFixture(t)
	f.store.coupons[1].MaxUses = intPtr(3)
	for u := int64(1); u <= 10; u++ {
		f.store.balances[1000+u] = money("100")
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		exhausted int
	)
	for u := int64(1); u <= 10; u++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			_, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{
				UserID: userID, ProductID: 1, PaymentMethod: "balance", CouponCode: "SAVE10",
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, discount.ErrCouponExhausted):
				exhausted++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(1000 + u)
	}
	wg.Wait()

	assert.Equal(t, 3, succeeded)
	assert.Equal(t, 7, exhausted)
	assert.Equal(t, 3, f.store.usedCount(1))
	assert.Equal(t, 3, f.store.orderCount())
}

func TestCreateOrder_InsufficientBalanceLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	f.store.coupons[1].MaxUses = nil

	_, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{UserID: 200, ProductID: 1, PaymentMethod: "balance", CouponCode: "SAVE10"})
	require.ErrorIs(t, err, ErrInsufficientBalance)

	assert.True(t, f.store.balance(200).Equal(money("30")))
	assert.Equal(t, 0, f.store.usedCount(1))
	assert.Equal(t, 0, f.store.orderCount())
	assert.Equal(t, 0, f.store.licenseCount())
	assert.Empty(t, f.notified())
}

func TestCreateOrder_CouponErrors(t *testing.T) {
	tests := []struct {
		name string
		code string
		want error
	}{
		{"expired", "OLD", discount.ErrCouponExpired},
		{"unknown", "NOPE", discount.ErrCouponNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{UserID: 100, ProductID: 1, PaymentMethod: "balance", CouponCode: tt.code})
			require.ErrorIs(t, err, ErrCoupon)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, f.store.balance(100).Equal(money("100")))
			assert.Equal(t, 0, f.store.orderCount())
		})
	}
}

func TestCreateOrder_FreeProductIgnoresCouponAndMethod(t *testing.T) {
	f := newFixture(t)

	o, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{UserID: 200, ProductID: 3, PaymentMethod: "paypal", CouponCode: "WHATEVER"})
	require.NoError(t, err)

	assert.Equal(t, order.PaymentFree, o.PaymentMethod)
	assert.Equal(t, order.StatusCompleted, o.Status)
	assert.True(t, o.Amount.IsZero())
	assert.Nil(t, o.CouponID)
	assertAmountsAddUp(t, o)
	assert.True(t, f.store.balance(200).Equal(money("30")))
	assert.Equal(t, 1, f.store.licenseCount())
}

func TestCreateOrder_LicenseSource(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o, err := f.svc.CreateOrder(ctx, CreateOrderInput{UserID: 100, ProductID: 2, PaymentMethod: "balance"})
	require.NoError(t, err)
	l, err := f.svc.GetLicense(ctx, 100, o.ID)
	require.NoError(t, err)
	require.NotNil(t, l.DownloadURL)
	assert.Equal(t, "https://cdn.example.com/essentials.jar", *l.DownloadURL)
	assert.Nil(t, l.LicenseKey)

	o, err = f.svc.CreateOrder(ctx, CreateOrderInput{UserID: 100, ProductID: 5, PaymentMethod: "balance"})
	require.NoError(t, err)
	l, err = f.svc.GetLicense(ctx, 100, o.ID)
	require.NoError(t, err)
	require.NotNil(t, l.LicenseKey)
	assert.Equal(t, "RANKS-SHARED-KEY", *l.LicenseKey)
	assert.True(t, f.store.balance(100).Equal(money("35")))
}

func TestCreateOrder_Rejections(t *testing.T) {
	tests := []struct {
		name string
		in   CreateOrderInput
		want error
	}{
		{"missing product", CreateOrderInput{UserID: 100, ProductID: 99, PaymentMethod: "balance"}, ErrProductNotFound},
		{"inactive product", CreateOrderInput{UserID: 100, ProductID: 4, PaymentMethod: "balance"}, ErrProductNotFound},
		{"unknown method", CreateOrderInput{UserID: 100, ProductID: 1, PaymentMethod: "crypto"}, ErrUnsupportedPaymentMethod},
		{"free method on paid product", CreateOrderInput{UserID: 100, ProductID: 1, PaymentMethod: "free"}, ErrUnsupportedPaymentMethod},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.CreateOrder(context.Background(), tt.in)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, 0, f.store.orderCount())
		})
	}
}

func TestCreateOrder_LicenseFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	f.store.failLicense = true

	_, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{UserID: 100, ProductID: 1, PaymentMethod: "balance", CouponCode: "SAVE10"})
	require.ErrorIs(t, err, ErrOrderPersistenceFailed)

	assert.True(t, f.store.balance(100).Equal(money("100")))
	assert.Equal(t, 0, f.store.usedCount(1))
	assert.Equal(t, 0, f.store.orderCount())
}

func TestCreateOrder_NotifierFailureKeepsOrder(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("broker unavailable")

	o, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{UserID: 100, ProductID: 1, PaymentMethod: "balance"})
	require.NoError(t, err)
	assert.Equal(t, order.StatusCompleted, o.Status)
	assert.Equal(t, 1, f.store.orderCount())
	assert.Len(t, f.notified(), 1)
}

func TestCreateOrder_OrderNumberCollisionRetries(t *testing.T) {
	f := newFixture(t)
	numbers := []string{"ORD-A", "ORD-A", "ORD-B"}
	f.svc.newOrderNumber = func(time.Time) (string, error) {
		n := numbers[0]
		numbers = numbers[1:]
		return n, nil
	}
	ctx := context.Background()

	first, err := f.svc.CreateOrder(ctx, CreateOrderInput{UserID: 100, ProductID: 3, PaymentMethod: "free"})
	require.NoError(t, err)
	second, err := f.svc.CreateOrder(ctx, CreateOrderInput{UserID: 100, ProductID: 3, PaymentMethod: "free"})
	require.NoError(t, err)

	assert.Equal(t, "ORD-A", first.OrderNumber)
	assert.Equal(t, "ORD-B", second.OrderNumber)
}

func TestCreateOrder_OrderNumbersExhausted(t *testing.T) {
	f := newFixture(t)
	f.svc.newOrderNumber = func(time.Time) (string, error) { return "ORD-SAME", nil }
	ctx := context.Background()

	_, err := f.svc.CreateOrder(ctx, CreateOrderInput{UserID: 100, ProductID: 1, PaymentMethod: "balance", CouponCode: "SAVE10"})
	require.NoError(t, err)

	f.store.coupons[1].MaxUses = nil
	_, err = f.svc.CreateOrder(ctx, CreateOrderInput{UserID: 100, ProductID: 1, PaymentMethod: "balance", CouponCode: "SAVE10"})
	require.ErrorIs(t, err, ErrOrderPersistenceFailed)
	assert.True(t, f.store.balance(100).Equal(money("60")))
	assert.Equal(t, 1, f.store.usedCount(1))
}

func TestGatewayOrderLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o, err := f.svc.CreateOrder(ctx, CreateOrderInput{UserID: 200, ProductID: 1, PaymentMethod: "paypal", CouponCode: "SAVE10"})
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, o.Status)
	assert.True(t, o.Amount.Equal(money("40")))
	assert.Equal(t, 1, f.store.usedCount(1), "coupon use is reserved at checkout")
	assert.True(t, f.store.balance(200).Equal(money("30")), "gateway orders never touch balance")
	assert.Equal(t, 0, f.store.licenseCount())
	assert.Empty(t, f.notified())

	_, err = f.svc.GetLicense(ctx, 200, o.ID)
	assert.ErrorIs(t, err, ErrLicenseNotFound)

	done, err := f.svc.CompleteOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCompleted, done.Status)
	assert.NotNil(t, done.CompletedAt)
	assert.Equal(t, 1, f.store.licenseCount())
	assert.Equal(t, []string{o.OrderNumber}, f.notified())

	again, err := f.svc.CompleteOrder(ctx, o.ID)
	assert.ErrorIs(t, err, ErrDuplicateCompletion)
	require.NotNil(t, again)
	assert.Equal(t, order.StatusCompleted, again.Status)
	assert.Equal(t, 1, f.store.licenseCount())
	assert.Len(t, f.notified(), 1)

	_, err = f.svc.FailOrder(ctx, o.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestGatewayOrderFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o, err := f.svc.CreateOrder(ctx, CreateOrderInput{UserID: 200, ProductID: 1, PaymentMethod: "paypal", CouponCode: "SAVE10"})
	require.NoError(t, err)

	failed, err := f.svc.FailOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusFailed, failed.Status)
	assert.Equal(t, 1, f.store.usedCount(1), "failed payment does not return the coupon use")

	failed, err = f.svc.FailOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusFailed, failed.Status)

	_, err = f.svc.CompleteOrder(ctx, o.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, 0, f.store.licenseCount())

	_, err = f.svc.CompleteOrder(ctx, 999)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestConcurrentCompletionIssuesOneLicense(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o, err := f.svc.CreateOrder(ctx, CreateOrderInput{UserID: 200, ProductID: 1, PaymentMethod: "paypal"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.CompleteOrder(ctx, o.ID)
		}(i)
	}
	wg.Wait()

	var ok, dup int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrDuplicateCompletion):
			dup++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 4, dup)
	assert.Equal(t, 1, f.store.licenseCount())
}

func TestGatewayOrderFullyDiscountedCompletesImmediately(t *testing.T) {
	f := newFixture(t)
	f.store.coupons[3] = &coupon.Coupon{ID: 3, Code: "ALL", DiscountType: pricing.DiscountPercentage,
		DiscountValue: money("100"), IsActive: true}

	o, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{UserID: 200, ProductID: 1, PaymentMethod: "paypal", CouponCode: "ALL"})
	require.NoError(t, err)
	assert.Equal(t, order.StatusCompleted, o.Status)
	assert.True(t, o.Amount.IsZero())
	assert.True(t, o.DiscountAmount.Equal(money("50")))
	assertAmountsAddUp(t, o)
}

func TestOrdersAreScopedToOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o, err := f.svc.CreateOrder(ctx, CreateOrderInput{UserID: 100, ProductID: 3, PaymentMethod: "free"})
	require.NoError(t, err)

	_, err = f.svc.GetOrder(ctx, 200, o.ID)
	assert.ErrorIs(t, err, ErrOrderNotFound)
	_, err = f.svc.GetLicense(ctx, 200, o.ID)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	mine, err := f.svc.ListOrders(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	theirs, err := f.svc.ListOrders(ctx, 200)
	require.NoError(t, err)
	assert.NotNil(t, theirs)
	assert.Empty(t, theirs)
}

func TestNewLicenseKeyIsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		key, err := NewLicenseKey()
		require.NoError(t, err)
		require.False(t, seen[key], fmt.Sprintf("duplicate key %s", key))
		seen[key] = true
	}
}

type blockingNotifier struct {
	started chan struct{}
	release chan struct{}
	ctxErr  chan error
}

func (n *blockingNotifier) OrderCompleted(ctx context.Context, o *order.Order) error {
	close(n.started)
	<-n.release
	n.ctxErr <- ctx.Err()
	return nil
}

func TestCreateOrder_DoesNotWaitForNotifier(t *testing.T) {
	f := newFixture(t)
	n := &blockingNotifier{
		started: make(chan struct{}),
		release: make(chan struct{}),
		ctxErr:  make(chan error, 1),
	}
	f.svc.notifier = n
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.CreateOrder(ctx, CreateOrderInput{UserID: 100, ProductID: 1, PaymentMethod: "balance"})
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("CreateOrder blocked on the notifier")
	}

	// Клиент ушёл, публикация продолжается.
	cancel()
	select {
	case <-n.started:
	case <-time.After(2 * time.Second):
		t.Fatal("notification was never started")
	}
	close(n.release)
	f.svc.WaitNotifications()
	assert.NoError(t, <-n.ctxErr)
}

// raceResolver меняет купон после расчёта цены, до транзакции оформления.
type raceResolver struct {
	DiscountResolver
	after func()
}

func (r raceResolver) Resolve(ctx context.Context, req discount.Request) (*discount.Result, error) {
	res, err := r.DiscountResolver.Resolve(ctx, req)
	r.after()
	return res, err
}

func TestCreateOrder_CouponChangedBeforeRedeem(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(coupons map[int64]*coupon.Coupon)
		want   error
	}{
		{"deactivated", func(c map[int64]*coupon.Coupon) { c[1].IsActive = false }, discount.ErrCouponInactive},
		{"expired", func(c map[int64]*coupon.Coupon) {
			past := time.Now().Add(-time.Minute)
			c[1].ExpiresAt = &past
		}, discount.ErrCouponExpired},
		{"used up", func(c map[int64]*coupon.Coupon) { c[1].UsedCount = 1 }, discount.ErrCouponExhausted},
		{"deleted", func(c map[int64]*coupon.Coupon) { delete(c, 1) }, discount.ErrCouponNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.svc.resolver = raceResolver{
				DiscountResolver: discount.NewResolver(f.store, nil),
				after: func() {
					f.store.mu.Lock()
					defer f.store.mu.Unlock()
					tt.mutate(f.store.coupons)
				},
			}

			_, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{UserID: 100, ProductID: 1, PaymentMethod: "balance", CouponCode: "SAVE10"})
			require.ErrorIs(t, err, ErrCoupon)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, f.store.balance(100).Equal(money("100")))
			assert.Equal(t, 0, f.store.orderCount())
		})
	}
}

type bundleList []*bundle.Bundle

func (l bundleList) GetByID(ctx context.Context, id int64) (*bundle.Bundle, error) {
	for _, b := range l {
		if b.ID == id {
			cp := *b
			return &cp, nil
		}
	}
	return nil, bundle.ErrNotFound
}

func (l bundleList) ListActive(ctx context.Context, now time.Time) ([]*bundle.Bundle, error) {
	var out []*bundle.Bundle
	for _, b := range l {
		if b.InEffect(now) {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

func TestCreateOrder_CouponAgainstBundle(t *testing.T) {
	tests := []struct {
		name       string
		bundleOff  string
		wantBundle bool
		wantAmount string
	}{
		{"bundle larger", "15", true, "35"},
		{"tie keeps bundle", "10", true, "40"},
		{"coupon larger", "5", false, "40"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			bundles := bundleList{{
				ID: 7, Name: "Homes promo", DiscountType: pricing.DiscountFixed, DiscountValue: money(tt.bundleOff),
				ApplyTo: bundle.ApplyToProducts, ProductIDs: []int64{1}, IsActive: true,
			}}
			f.svc.resolver = discount.NewResolver(f.store, bundles)

			o, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{UserID: 100, ProductID: 1, PaymentMethod: "balance", CouponCode: "SAVE10"})
			require.NoError(t, err)
			assert.True(t, o.Amount.Equal(money(tt.wantAmount)), o.Amount.String())
			assertAmountsAddUp(t, o)
			assert.True(t, f.store.balance(100).Equal(money("100").Sub(money(tt.wantAmount))))

			if tt.wantBundle {
				require.NotNil(t, o.BundleID)
				assert.Equal(t, int64(7), *o.BundleID)
				assert.Nil(t, o.CouponID)
				assert.Equal(t, 0, f.store.usedCount(1), "coupon is not consumed when the bundle wins")
			} else {
				require.NotNil(t, o.CouponID)
				assert.Nil(t, o.BundleID)
				assert.Equal(t, 1, f.store.usedCount(1))
			}
		})
	}
}
