package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/hamzabour2019/project-faith/internal/events"
	"github.com/hamzabour2019/project-faith/internal/model"
	"github.com/hamzabour2019/project-faith/internal/repository"
	"github.com/hamzabour2019/project-faith/internal/validation"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestService(t *testing.T, repo Repository, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{WithPasswordCost(bcrypt.MinCost)}, opts...)
	return NewService(repo, nil, opts...)
}

func seedProduct(t *testing.T, repo *repository.MemoryRepository, price string, stock int) *model.Product {
	t.Helper()
	p := &model.Product{
		ID:       uuid.New(),
		Name:     "Linen Shirt",
		Price:    dec(price),
		Category: "men-shirts",
		SKU:      "LS-" + uuid.NewString()[:8],
		Images:   []model.Image{{URL: "/img/back.jpg"}, {URL: "/img/front.jpg", IsPrimary: true}},
		Status:   model.ProductStatusActive,
		Variants: []model.Variant{{ID: uuid.New(), Size: "M", Color: "white", Stock: stock}},
	}
	if err := repo.CreateProduct(context.Background(), p); err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return p
}

func seedUser(t *testing.T, repo *repository.MemoryRepository, role model.Role) *model.User {
	t.Helper()
	u := &model.User{
		ID:     uuid.New(),
		Email:  uuid.NewString() + "@example.com",
		Role:   role,
		Status: model.UserStatusActive,
		Stats:  model.UserStats{TotalSpent: decimal.Zero},
	}
	if err := repo.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func orderInput(items ...OrderItemInput) CreateOrderInput {
	return CreateOrderInput{
		CustomerInfo: model.CustomerInfo{
			FirstName: "Lina",
			LastName:  "Haddad",
			Email:     " Lina@Example.com ",
			Phone:     "+962791234567",
		},
		ShippingAddress: model.Address{
			Street:  "1 Rainbow St",
			City:    "Amman",
			State:   "Amman",
			ZipCode: "11181",
			Country: "Jordan",
		},
		Items: items,
	}
}

func variantItem(p *model.Product, qty int) OrderItemInput {
	return OrderItemInput{
		ProductID: p.ID,
		Variant:   model.VariantSelection{Size: p.Variants[0].Size, Color: p.Variants[0].Color},
		Quantity:  qty,
	}
}

func variantStock(t *testing.T, repo Repository, id uuid.UUID) int {
	t.Helper()
	p, err := repo.GetProductByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	return p.Variants[0].Stock
}

func countOrders(t *testing.T, repo Repository) int {
	t.Helper()
	_, total, err := repo.ListOrders(context.Background(), model.OrderFilter{})
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	return total
}

var allModes = []StockMode{StockModeRacy, StockModeAtomic, StockModeLocked}

func TestParseStockMode(t *testing.T) {
	tests := []struct {
		in      string
		want    StockMode
		wantErr bool
	}{
		{in: "", want: StockModeAtomic},
		{in: "racy", want: StockModeRacy},
		{in: "locked", want: StockModeLocked},
		{in: "optimistic", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseStockMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseStockMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Fatalf("ParseStockMode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCalculatePricing(t *testing.T) {
	tests := []struct {
		name     string
		subtotal string
		shipping string
		tax      string
		total    string
	}{
		{name: "boundary is exclusive", subtotal: "100", shipping: "10", tax: "16.00", total: "126.00"},
		{name: "just above boundary", subtotal: "100.01", shipping: "0", tax: "16.00", total: "116.01"},
		{name: "small cart", subtotal: "40", shipping: "10", tax: "6.40", total: "56.40"},
		{name: "tax rounded to cents", subtotal: "10.05", shipping: "10", tax: "1.61", total: "21.66"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := CalculatePricing(dec(tt.subtotal))
			if !p.Shipping.Equal(dec(tt.shipping)) {
				t.Fatalf("shipping = %s, want %s", p.Shipping, tt.shipping)
			}
			if !p.Tax.Equal(dec(tt.tax)) {
				t.Fatalf("tax = %s, want %s", p.Tax, tt.tax)
			}
			if !p.Total.Equal(dec(tt.total)) {
				t.Fatalf("total = %s, want %s", p.Total, tt.total)
			}
			if !p.Discount.IsZero() {
				t.Fatalf("discount = %s, want 0", p.Discount)
			}
		})
	}
}

func TestCreateOrder(t *testing.T) {
	for _, mode := range allModes {
		t.Run(string(mode), func(t *testing.T) {
			ctx := context.Background()
			repo := repository.NewMemoryRepository()
			rec := &events.Recorder{}
			svc := newTestService(t, repo, WithStockMode(mode), WithPublisher(rec))

			p := seedProduct(t, repo, "50", 5)
			buyer := seedUser(t, repo, model.RoleCustomer)

			o, err := svc.CreateOrder(ctx, orderInput(variantItem(p, 2)), buyer)
			if err != nil {
				t.Fatalf("CreateOrder: %v", err)
			}

			if !validation.IsValidOrderNumber(o.Number) {
				t.Fatalf("unexpected order number %q", o.Number)
			}
			if o.Status != model.OrderStatusPending || o.PaymentStatus != model.PaymentStatusPending {
				t.Fatalf("unexpected statuses %s/%s", o.Status, o.PaymentStatus)
			}
			if o.PaymentMethod != model.PaymentCashOnDelivery {
				t.Fatalf("payment method = %s, want default", o.PaymentMethod)
			}
			if o.BillingAddress != o.ShippingAddress {
				t.Fatalf("billing address must default to shipping address")
			}
			if o.CustomerInfo.Email != "lina@example.com" {
				t.Fatalf("customer email = %q", o.CustomerInfo.Email)
			}
			if len(o.StatusHistory) != 1 || o.StatusHistory[0].Status != model.OrderStatusPending {
				t.Fatalf("unexpected history %+v", o.StatusHistory)
			}

			item := o.Items[0]
			if item.Snapshot.Image != "/img/front.jpg" || item.Snapshot.SKU != p.SKU {
				t.Fatalf("unexpected snapshot %+v", item.Snapshot)
			}
			if item.VariantID == nil || *item.VariantID != p.Variants[0].ID {
				t.Fatalf("variant id not recorded")
			}
			if !item.Total.Equal(item.Price.Mul(decimal.NewFromInt(2))) {
				t.Fatalf("line total = %s", item.Total)
			}

			pr := o.Pricing
			if !pr.Subtotal.Equal(dec("100")) || !pr.Shipping.Equal(dec("10")) || !pr.Tax.Equal(dec("16")) || !pr.Total.Equal(dec("126")) {
				t.Fatalf("unexpected pricing %+v", pr)
			}
			if !pr.Total.Equal(pr.Subtotal.Add(pr.Shipping).Add(pr.Tax).Sub(pr.Discount)) {
				t.Fatalf("total identity broken: %+v", pr)
			}

			stored, err := repo.GetProductByID(ctx, p.ID)
			if err != nil {
				t.Fatalf("get product: %v", err)
			}
			if stored.Variants[0].Stock != 3 {
				t.Fatalf("stock = %d, want 3", stored.Variants[0].Stock)
			}
			if stored.SalesCount != 2 {
				t.Fatalf("sales count = %d, want 2", stored.SalesCount)
			}

			u, err := repo.GetUserByID(ctx, buyer.ID)
			if err != nil {
				t.Fatalf("get user: %v", err)
			}
			if u.Stats.TotalOrders != 1 || !u.Stats.TotalSpent.Equal(dec("126")) {
				t.Fatalf("unexpected user stats %+v", u.Stats)
			}

			got := rec.Events()
			if len(got) != 1 || got[0].Type != events.TypeOrderCreated || got[0].Total != "126.00" {
				t.Fatalf("unexpected events %+v", got)
			}
		})
	}
}

func TestCreateOrderMultipleItems(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	svc := newTestService(t, repo)

	shirt := seedProduct(t, repo, "40", 3)

	socks := &model.Product{
		ID:        uuid.New(),
		Name:      "Socks",
		Price:     dec("7.25"),
		Category:  "men-accessories",
		SKU:       "SOCKS-1",
		Status:    model.ProductStatusActive,
		BaseStock: 10,
	}
	if err := repo.CreateProduct(ctx, socks); err != nil {
		t.Fatalf("create product: %v", err)
	}

	o, err := svc.CreateOrder(ctx, orderInput(
		OrderItemInput{ProductID: socks.ID, Quantity: 4},
		variantItem(shirt, 1),
	), nil)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	sum := decimal.Zero
	for _, it := range o.Items {
		sum = sum.Add(it.Total)
	}
	if !o.Pricing.Subtotal.Equal(sum) || !o.Pricing.Subtotal.Equal(dec("69")) {
		t.Fatalf("subtotal = %s, sum of lines = %s", o.Pricing.Subtotal, sum)
	}
	if o.UserID != nil {
		t.Fatalf("guest order must have no owner")
	}

	stored, err := repo.GetProductByID(ctx, socks.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if stored.BaseStock != 6 {
		t.Fatalf("base stock = %d, want 6", stored.BaseStock)
	}
}

func TestCreateOrderRejections(t *testing.T) {
	for _, mode := range allModes {
		t.Run(string(mode), func(t *testing.T) {
			ctx := context.Background()
			repo := repository.NewMemoryRepository()
			svc := newTestService(t, repo, WithStockMode(mode))

			p := seedProduct(t, repo, "50", 5)
			hidden := seedProduct(t, repo, "20", 5)
			hidden.Status = model.ProductStatusInactive
			if err := repo.SaveProduct(ctx, hidden); err != nil {
				t.Fatalf("save product: %v", err)
			}

			tests := []struct {
				name string
				in   CreateOrderInput
				kind error
				err  error
			}{
				{name: "empty", in: orderInput(), kind: ErrValidation, err: ErrEmptyOrder},
				{name: "zero quantity", in: orderInput(variantItem(p, 0)), kind: ErrValidation, err: ErrInvalidQuantity},
				{name: "insufficient", in: orderInput(variantItem(p, 6)), kind: ErrStockConflict, err: ErrInsufficientStock},
				{name: "unknown product", in: orderInput(OrderItemInput{ProductID: uuid.New(), Quantity: 1}), kind: ErrNotFound, err: ErrProductNotFound},
				{name: "unavailable", in: orderInput(variantItem(hidden, 1)), kind: ErrUnavailable, err: ErrProductUnavailable},
				{
					name: "unknown variant",
					in:   orderInput(OrderItemInput{ProductID: p.ID, Variant: model.VariantSelection{Size: "XL"}, Quantity: 1}),
					kind: ErrStockConflict,
					err:  ErrVariantNotFound,
				},
				{
					name: "second item fails",
					in:   orderInput(variantItem(p, 1), variantItem(p, 0)),
					kind: ErrValidation,
					err:  ErrInvalidQuantity,
				},
			}

			for _, tt := range tests {
				_, err := svc.CreateOrder(ctx, tt.in, nil)
				if !errors.Is(err, tt.kind) || !errors.Is(err, tt.err) {
					t.Fatalf("%s: got %v, want %v", tt.name, err, tt.err)
				}
			}

			if n := countOrders(t, repo); n != 0 {
				t.Fatalf("rejected requests persisted %d orders", n)
			}
			if s := variantStock(t, repo, p.ID); s != 5 {
				t.Fatalf("stock = %d, want 5", s)
			}
		})
	}
}

func TestCreateOrderInsufficientStockMessage(t *testing.T) {
	repo := repository.NewMemoryRepository()
	svc := newTestService(t, repo)
	p := seedProduct(t, repo, "50", 1)

	_, err := svc.CreateOrder(context.Background(), orderInput(variantItem(p, 2)), nil)
	if err == nil || err.Error() != "Insufficient stock for Linen Shirt (M white)" {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestCreateOrderDuplicateLinesShareStock(t *testing.T) {
	for _, mode := range allModes {
		t.Run(string(mode), func(t *testing.T) {
			ctx := context.Background()
			repo := repository.NewMemoryRepository()
			svc := newTestService(t, repo, WithStockMode(mode))
			p := seedProduct(t, repo, "40", 3)

			_, err := svc.CreateOrder(ctx, orderInput(variantItem(p, 2), variantItem(p, 2)), nil)
			if !errors.Is(err, ErrInsufficientStock) {
				t.Fatalf("got %v, want insufficient stock", err)
			}
			if n := countOrders(t, repo); n != 0 {
				t.Fatalf("persisted %d orders", n)
			}
			if s := variantStock(t, repo, p.ID); s != 3 {
				t.Fatalf("stock = %d, want 3", s)
			}

			o, err := svc.CreateOrder(ctx, orderInput(variantItem(p, 2), variantItem(p, 1)), nil)
			if err != nil {
				t.Fatalf("CreateOrder: %v", err)
			}
			if len(o.Items) != 2 {
				t.Fatalf("items = %d, want 2", len(o.Items))
			}
			if s := variantStock(t, repo, p.ID); s != 0 {
				t.Fatalf("stock = %d, want 0", s)
			}
		})
	}
}

func TestCreateOrderDuplicateBaseStockLines(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	svc := newTestService(t, repo, WithStockMode(StockModeLocked))
	p := &model.Product{
		ID: uuid.New(), Name: "Canvas Tote", Price: dec("15"), Category: "women-accessories", SKU: "CT-1",
		Status: model.ProductStatusActive, BaseStock: 3,
	}
	if err := repo.CreateProduct(ctx, p); err != nil {
		t.Fatalf("create product: %v", err)
	}

	line := OrderItemInput{ProductID: p.ID, Quantity: 2}
	if _, err := svc.CreateOrder(ctx, orderInput(line, line), nil); !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("got %v, want insufficient stock", err)
	}
	stored, _ := repo.GetProductByID(ctx, p.ID)
	if stored.BaseStock != 3 {
		t.Fatalf("base stock = %d, want 3", stored.BaseStock)
	}
}

// reserveFailRepo отказывает в списании остатка для одного товара.
type reserveFailRepo struct {
	*repository.MemoryRepository
	failFor uuid.UUID
}

func (r *reserveFailRepo) AdjustStock(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID, delta int) error {
	if productID == r.failFor && delta < 0 {
		return repository.ErrInsufficientStock
	}
	return r.MemoryRepository.AdjustStock(ctx, productID, variantID, delta)
}

func TestCreateOrderAtomicReleasesReservations(t *testing.T) {
	ctx := context.Background()
	mem := repository.NewMemoryRepository()
	first := seedProduct(t, mem, "10", 5)
	second := seedProduct(t, mem, "10", 5)
	repo := &reserveFailRepo{MemoryRepository: mem, failFor: second.ID}
	svc := newTestService(t, repo, WithStockMode(StockModeAtomic))

	_, err := svc.CreateOrder(ctx, orderInput(variantItem(first, 2), variantItem(second, 1)), nil)
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	if s := variantStock(t, mem, first.ID); s != 5 {
		t.Fatalf("reserved stock not released: %d", s)
	}
	if n := countOrders(t, mem); n != 0 {
		t.Fatalf("order persisted after failed reservation")
	}
}

// saveFailRepo не даёт сохранить товар.
type saveFailRepo struct {
	*repository.MemoryRepository
}

func (r *saveFailRepo) SaveProduct(context.Context, *model.Product) error {
	return errors.New("connection reset")
}

func TestCreateOrderRacyKeepsOrderWhenStockSaveFails(t *testing.T) {
	ctx := context.Background()
	mem := repository.NewMemoryRepository()
	p := seedProduct(t, mem, "40", 5)
	svc := newTestService(t, &saveFailRepo{mem}, WithStockMode(StockModeRacy))

	o, err := svc.CreateOrder(ctx, orderInput(variantItem(p, 1)), nil)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	if _, err := mem.GetOrderByID(ctx, o.ID); err != nil {
		t.Fatalf("order must stay persisted: %v", err)
	}
	if s := variantStock(t, mem, p.ID); s != 5 {
		t.Fatalf("stock = %d, want unchanged 5", s)
	}
}

func TestCreateOrderConcurrentNumbersAreUnique(t *testing.T) {
	repo := repository.NewMemoryRepository()
	svc := newTestService(t, repo)
	p := seedProduct(t, repo, "10", 100)

	const n = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		numbers = make(map[string]struct{}, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o, err := svc.CreateOrder(context.Background(), orderInput(variantItem(p, 1)), nil)
			if err != nil {
				t.Errorf("CreateOrder: %v", err)
				return
			}
			mu.Lock()
			numbers[o.Number] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(numbers) != n {
		t.Fatalf("got %d distinct numbers, want %d", len(numbers), n)
	}
}

func TestCreateOrderHardenedModesDoNotOversell(t *testing.T) {
	for _, mode := range []StockMode{StockModeAtomic, StockModeLocked} {
		t.Run(string(mode), func(t *testing.T) {
			repo := repository.NewMemoryRepository()
			svc := newTestService(t, repo, WithStockMode(mode))
			p := seedProduct(t, repo, "10", 5)

			var (
				wg       sync.WaitGroup
				mu       sync.Mutex
				ok, fail int
			)
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := svc.CreateOrder(context.Background(), orderInput(variantItem(p, 1)), nil)
					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						ok++
					case errors.Is(err, ErrStockConflict):
						fail++
					default:
						t.Errorf("unexpected error: %v", err)
					}
				}()
			}
			wg.Wait()

			if ok != 5 || fail != 15 {
				t.Fatalf("ok=%d fail=%d, want 5/15", ok, fail)
			}
			if s := variantStock(t, repo, p.ID); s != 0 {
				t.Fatalf("stock = %d, want 0", s)
			}
			if n := countOrders(t, repo); n != 5 {
				t.Fatalf("orders = %d, want 5", n)
			}
		})
	}
}

func TestCancelOrder(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	rec := &events.Recorder{}
	svc := newTestService(t, repo, WithPublisher(rec))

	p := seedProduct(t, repo, "30", 4)
	owner := seedUser(t, repo, model.RoleCustomer)
	stranger := seedUser(t, repo, model.RoleCustomer)

	o, err := svc.CreateOrder(ctx, orderInput(variantItem(p, 3)), owner)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	if _, err := svc.CancelOrder(ctx, o.ID, stranger, ""); !errors.Is(err, ErrForbidden) {
		t.Fatalf("stranger cancel: got %v", err)
	}

	cancelled, err := svc.CancelOrder(ctx, o.ID, owner, "")
	if err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	if cancelled.Status != model.OrderStatusCancelled {
		t.Fatalf("status = %s", cancelled.Status)
	}
	last := cancelled.StatusHistory[len(cancelled.StatusHistory)-1]
	if last.Note != "Order cancelled by user" || last.UpdatedBy == nil || *last.UpdatedBy != owner.ID {
		t.Fatalf("unexpected history entry %+v", last)
	}
	if s := variantStock(t, repo, p.ID); s != 4 {
		t.Fatalf("stock = %d, want restored 4", s)
	}

	if _, err := svc.CancelOrder(ctx, o.ID, owner, "again"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second cancel: got %v", err)
	}
	if s := variantStock(t, repo, p.ID); s != 4 {
		t.Fatalf("stock restored twice: %d", s)
	}

	got := rec.Events()
	if len(got) != 2 || got[1].Type != events.TypeOrderCancelled || got[1].PreviousStatus != "pending" {
		t.Fatalf("unexpected events %+v", got)
	}
}

func TestCancelOrderRestoresBaseStock(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	svc := newTestService(t, repo)
	admin := seedUser(t, repo, model.RoleAdmin)

	p := &model.Product{
		ID:        uuid.New(),
		Name:      "Belt",
		Price:     dec("15"),
		Category:  "men-accessories",
		SKU:       "BELT-1",
		Status:    model.ProductStatusActive,
		BaseStock: 2,
	}
	if err := repo.CreateProduct(ctx, p); err != nil {
		t.Fatalf("create product: %v", err)
	}

	o, err := svc.CreateOrder(ctx, orderInput(OrderItemInput{ProductID: p.ID, Quantity: 2}), nil)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	stored, _ := repo.GetProductByID(ctx, p.ID)
	if stored.BaseStock != 0 || stored.Status != model.ProductStatusOutOfStock {
		t.Fatalf("after order: stock %d status %s", stored.BaseStock, stored.Status)
	}

	if _, err := svc.CancelOrder(ctx, o.ID, admin, "customer called"); err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	stored, _ = repo.GetProductByID(ctx, p.ID)
	if stored.BaseStock != 2 || stored.Status != model.ProductStatusActive {
		t.Fatalf("after cancel: stock %d status %s", stored.BaseStock, stored.Status)
	}
}

func TestGuestOrderAccess(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	svc := newTestService(t, repo)
	p := seedProduct(t, repo, "30", 4)
	customer := seedUser(t, repo, model.RoleCustomer)
	admin := seedUser(t, repo, model.RoleAdmin)

	o, err := svc.CreateOrder(ctx, orderInput(variantItem(p, 1)), nil)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	if _, err := svc.GetOrder(ctx, o.ID, customer); !errors.Is(err, ErrForbidden) {
		t.Fatalf("customer read guest order: %v", err)
	}
	if _, err := svc.CancelOrder(ctx, o.ID, customer, ""); !errors.Is(err, ErrForbidden) {
		t.Fatalf("customer cancel guest order: %v", err)
	}
	if _, err := svc.GetOrder(ctx, o.ID, admin); err != nil {
		t.Fatalf("admin read guest order: %v", err)
	}

	tracked, err := svc.TrackOrder(ctx, " "+o.Number+" ")
	if err != nil || tracked.ID != o.ID {
		t.Fatalf("TrackOrder: %v", err)
	}
	if _, err := svc.TrackOrder(ctx, "ORD-1-0000"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown number: %v", err)
	}
}

func TestUpdateStatusLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	svc := newTestService(t, repo)
	p := seedProduct(t, repo, "30", 4)
	customer := seedUser(t, repo, model.RoleCustomer)
	admin := seedUser(t, repo, model.RoleAdmin)

	o, err := svc.CreateOrder(ctx, orderInput(variantItem(p, 1)), customer)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	if _, err := svc.UpdateStatus(ctx, o.ID, model.OrderStatusConfirmed, "", customer); !errors.Is(err, ErrForbidden) {
		t.Fatalf("customer update: %v", err)
	}
	if _, err := svc.UpdateStatus(ctx, o.ID, "lost", "", admin); !errors.Is(err, ErrValidation) {
		t.Fatalf("unknown status: %v", err)
	}
	if _, err := svc.UpdateStatus(ctx, o.ID, model.OrderStatusShipped, "", admin); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("skip to shipped: %v", err)
	}
	if _, err := svc.UpdateStatus(ctx, uuid.New(), model.OrderStatusConfirmed, "", admin); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown order: %v", err)
	}

	for _, next := range []model.OrderStatus{model.OrderStatusConfirmed, model.OrderStatusProcessing, model.OrderStatusShipped} {
		if _, err := svc.UpdateStatus(ctx, o.ID, next, "", admin); err != nil {
			t.Fatalf("UpdateStatus(%s): %v", next, err)
		}
	}

	if _, err := svc.CancelOrder(ctx, o.ID, customer, ""); !errors.Is(err, ErrCannotCancel) {
		t.Fatalf("cancel shipped order: %v", err)
	}

	delivered, err := svc.UpdateStatus(ctx, o.ID, model.OrderStatusDelivered, "left at door", admin)
	if err != nil {
		t.Fatalf("UpdateStatus(delivered): %v", err)
	}
	if delivered.PaymentStatus != model.PaymentStatusPaid || delivered.PaymentDetails.PaymentDate == nil {
		t.Fatalf("cash on delivery must be paid on delivery: %+v", delivered.PaymentDetails)
	}
	if delivered.Shipping.ActualDelivery == nil {
		t.Fatalf("actual delivery not recorded")
	}

	stored, err := svc.GetOrder(ctx, o.ID, customer)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if len(stored.StatusHistory) != 5 || stored.PaymentStatus != model.PaymentStatusPaid {
		t.Fatalf("history %d entries, payment %s", len(stored.StatusHistory), stored.PaymentStatus)
	}
	if s := variantStock(t, repo, p.ID); s != 3 {
		t.Fatalf("stock = %d, want 3", s)
	}

	stats, err := svc.OrderStats(ctx)
	if err != nil {
		t.Fatalf("OrderStats: %v", err)
	}
	if stats.TotalOrders != 1 || !stats.TotalRevenue.Equal(o.Pricing.Total) {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestListOrdersScopedToOwner(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	svc := newTestService(t, repo)
	p := seedProduct(t, repo, "30", 10)
	a := seedUser(t, repo, model.RoleCustomer)
	b := seedUser(t, repo, model.RoleCustomer)
	admin := seedUser(t, repo, model.RoleAdmin)

	for _, u := range []*model.User{a, a, b} {
		if _, err := svc.CreateOrder(ctx, orderInput(variantItem(p, 1)), u); err != nil {
			t.Fatalf("CreateOrder: %v", err)
		}
	}

	_, total, err := svc.ListOrders(ctx, model.OrderFilter{UserID: &b.ID}, a)
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if total != 2 {
		t.Fatalf("customer sees %d orders, want 2", total)
	}

	_, total, err = svc.ListOrders(ctx, model.OrderFilter{}, admin)
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if total != 3 {
		t.Fatalf("admin sees %d orders, want 3", total)
	}
}

func TestUpdateShipping(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	svc := newTestService(t, repo)
	p := seedProduct(t, repo, "30", 10)
	admin := seedUser(t, repo, model.RoleAdmin)

	o, err := svc.CreateOrder(ctx, orderInput(variantItem(p, 1)), nil)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	got, err := svc.UpdateShipping(ctx, o.ID, ShippingUpdate{TrackingNumber: " 1Z999 ", Carrier: "Aramex"}, admin)
	if err != nil {
		t.Fatalf("UpdateShipping: %v", err)
	}
	if got.Shipping.TrackingNumber != "1Z999" || got.Shipping.Carrier != "Aramex" || got.Shipping.Method != "standard" {
		t.Fatalf("unexpected shipping %+v", got.Shipping)
	}

	if _, err := svc.UpdateShipping(ctx, uuid.New(), ShippingUpdate{}, admin); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown order: %v", err)
	}
}

func TestPublishFailureDoesNotFailOrder(t *testing.T) {
	repo := repository.NewMemoryRepository()
	svc := newTestService(t, repo, WithPublisher(&events.Recorder{Err: errors.New("broker down")}))
	p := seedProduct(t, repo, "30", 10)

	if _, err := svc.CreateOrder(context.Background(), orderInput(variantItem(p, 1)), nil); err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
}

func TestAddReview(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	svc := newTestService(t, repo)
	p := seedProduct(t, repo, "30", 10)
	first, second := uuid.New(), uuid.New()

	if _, err := svc.AddReview(ctx, p.ID, first, 2, "too small"); err != nil {
		t.Fatalf("AddReview: %v", err)
	}
	if _, err := svc.AddReview(ctx, p.ID, second, 4, ""); err != nil {
		t.Fatalf("AddReview: %v", err)
	}
	if _, err := svc.AddReview(ctx, p.ID, first, 5, ""); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("duplicate review: %v", err)
	}
	if _, err := svc.AddReview(ctx, p.ID, uuid.New(), 6, ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("rating out of range: %v", err)
	}
	if _, err := svc.AddReview(ctx, uuid.New(), first, 3, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown product: %v", err)
	}

	stored, err := repo.GetProductByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if stored.Ratings.Count != 2 || stored.Ratings.Average != 3.0 {
		t.Fatalf("unexpected ratings %+v", stored.Ratings)
	}
}

func TestCatalog(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	svc := newTestService(t, repo)

	p, err := svc.CreateProduct(ctx, CreateProductInput{
		Name:      "Denim Jacket",
		Price:     dec("89.90"),
		Category:  "men-jackets",
		SKU:       "dj-01",
		BaseStock: 7,
		Featured:  true,
		Variants:  []VariantInput{{Size: "M", Color: "blue", Stock: 0}, {Size: "L", Color: "blue", Stock: 0}},
	})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	if p.SKU != "DJ-01" || p.BaseStock != 0 || p.Status != model.ProductStatusOutOfStock {
		t.Fatalf("unexpected product %+v", p)
	}

	if _, err := svc.CreateProduct(ctx, CreateProductInput{Name: "Copy", SKU: "DJ-01", Category: "men-jackets"}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("duplicate sku: %v", err)
	}

	updated, err := svc.UpdateStock(ctx, p.ID, []StockUpdate{{Size: "L", Color: "blue", Stock: 4}, {Size: "XS", Color: "red", Stock: 9}})
	if err != nil {
		t.Fatalf("UpdateStock: %v", err)
	}
	if updated.TotalStock() != 4 || updated.Status != model.ProductStatusActive {
		t.Fatalf("stock %d status %s", updated.TotalStock(), updated.Status)
	}
	if _, err := svc.UpdateStock(ctx, p.ID, []StockUpdate{{Size: "L", Color: "blue", Stock: -1}}); !errors.Is(err, ErrValidation) {
		t.Fatalf("negative stock: %v", err)
	}

	featured, err := svc.FeaturedProducts(ctx)
	if err != nil || len(featured) != 1 {
		t.Fatalf("FeaturedProducts: %d, %v", len(featured), err)
	}

	seedProduct(t, repo, "20", 3)
	if err := repo.CreateProduct(ctx, &model.Product{
		ID: uuid.New(), Name: "Bomber", Price: dec("70"), Category: "men-jackets", SKU: "BMB-1",
		Status: model.ProductStatusActive, BaseStock: 1,
	}); err != nil {
		t.Fatalf("create product: %v", err)
	}
	related, err := svc.RelatedProducts(ctx, p.ID)
	if err != nil {
		t.Fatalf("RelatedProducts: %v", err)
	}
	if len(related) != 1 || related[0].SKU != "BMB-1" {
		t.Fatalf("unexpected related products %+v", related)
	}

	if _, err := svc.GetProduct(ctx, p.ID); err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	stored, _ := repo.GetProductByID(ctx, p.ID)
	if stored.ViewCount != 1 {
		t.Fatalf("view count = %d, want 1", stored.ViewCount)
	}
}

func TestRegisterAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	svc := newTestService(t, repo)

	u, err := svc.RegisterUser(ctx, RegisterInput{
		FirstName: "Omar",
		LastName:  "Saleh",
		Email:     "Omar@Example.com",
		Password:  "Secret123",
	})
	if err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	if u.Email != "omar@example.com" || u.Role != model.RoleCustomer || !u.IsActive() {
		t.Fatalf("unexpected user %+v", u)
	}

	if _, err := svc.RegisterUser(ctx, RegisterInput{Email: "omar@example.com", Password: "Secret123"}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("duplicate email: %v", err)
	}

	got, err := svc.AuthenticateUser(ctx, "OMAR@example.com", "Secret123")
	if err != nil {
		t.Fatalf("AuthenticateUser: %v", err)
	}
	if got.ID != u.ID || got.LastLogin.IsZero() {
		t.Fatalf("unexpected authenticated user %+v", got)
	}

	if _, err := svc.AuthenticateUser(ctx, "omar@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: %v", err)
	}
	if _, err := svc.AuthenticateUser(ctx, "nobody@example.com", "Secret123"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("unknown email: %v", err)
	}

	inactive := seedUser(t, repo, model.RoleCustomer)
	inactive.Status = model.UserStatusSuspended
	if _, err := NewService(&suspendedRepo{repo, inactive}, nil).AuthenticateUser(ctx, inactive.Email, "x"); !errors.Is(err, ErrAccountInactive) {
		t.Fatalf("inactive account: %v", err)
	}
}

type suspendedRepo struct {
	*repository.MemoryRepository
	user *model.User
}

func (r *suspendedRepo) GetUserByEmail(context.Context, string) (*model.User, error) {
	return r.user, nil
}

func TestCreateProductRejectsFractionalCents(t *testing.T) {
	svc := newTestService(t, repository.NewMemoryRepository())
	ctx := context.Background()

	tests := []CreateProductInput{
		{Name: "Tee", SKU: "T-1", Category: "sale", Price: dec("9.999")},
		{Name: "Tee", SKU: "T-2", Category: "sale", Price: dec("-1")},
		{Name: "Tee", SKU: "T-3", Category: "sale", Price: dec("10"), Variants: []VariantInput{{Size: "M", Price: ptr(dec("12.345"))}}},
	}
	for _, in := range tests {
		if _, err := svc.CreateProduct(ctx, in); !errors.Is(err, ErrInvalidPrice) {
			t.Fatalf("%s: got %v, want invalid price", in.SKU, err)
		}
	}
}

func ptr[T any](v T) *T {
	return &v
}

func TestUpdateProduct(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	svc := newTestService(t, repo)
	p := seedProduct(t, repo, "50", 2)

	updated, err := svc.UpdateProduct(ctx, p.ID, ProductUpdate{
		Name:          ptr("  Linen Shirt Slim  "),
		Price:         ptr(dec("45.50")),
		OriginalPrice: ptr(dec("60")),
		Category:      ptr("sale"),
		Featured:      ptr(true),
	})
	if err != nil {
		t.Fatalf("UpdateProduct: %v", err)
	}
	if updated.Name != "Linen Shirt Slim" || !updated.Price.Equal(dec("45.5")) || updated.DiscountPercentage() != 24 {
		t.Fatalf("unexpected product %+v", updated)
	}

	stored, _ := repo.GetProductByID(ctx, p.ID)
	if stored.Category != "sale" || !stored.Featured || stored.Variants[0].Stock != 2 || stored.SKU != p.SKU {
		t.Fatalf("unexpected stored product %+v", stored)
	}

	if _, err := svc.UpdateProduct(ctx, p.ID, ProductUpdate{Status: ptr(model.ProductStatusInactive)}); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if stored, _ := repo.GetProductByID(ctx, p.ID); stored.Status != model.ProductStatusInactive {
		t.Fatalf("status = %s", stored.Status)
	}

	empty := seedProduct(t, repo, "20", 0)
	reactivated, err := svc.UpdateProduct(ctx, empty.ID, ProductUpdate{Status: ptr(model.ProductStatusActive)})
	if err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	if reactivated.Status != model.ProductStatusOutOfStock {
		t.Fatalf("product without stock became %s", reactivated.Status)
	}

	rejections := []struct {
		name string
		upd  ProductUpdate
		err  error
	}{
		{name: "fractional cents", upd: ProductUpdate{Price: ptr(dec("1.001"))}, err: ErrInvalidPrice},
		{name: "unknown category", upd: ProductUpdate{Category: ptr("toys")}, err: ErrInvalidCategory},
		{name: "derived status", upd: ProductUpdate{Status: ptr(model.ProductStatusOutOfStock)}, err: ErrInvalidStatus},
	}
	for _, tt := range rejections {
		if _, err := svc.UpdateProduct(ctx, p.ID, tt.upd); !errors.Is(err, tt.err) || !errors.Is(err, ErrValidation) {
			t.Fatalf("%s: got %v", tt.name, err)
		}
	}
	if _, err := svc.UpdateProduct(ctx, uuid.New(), ProductUpdate{Name: ptr("Ghost")}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown product: %v", err)
	}
}

func TestCategories(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	svc := newTestService(t, repo)
	seedProduct(t, repo, "10", 1)
	seedProduct(t, repo, "10", 1)
	empty := seedProduct(t, repo, "10", 0)
	if _, err := svc.UpdateProduct(ctx, empty.ID, ProductUpdate{Status: ptr(model.ProductStatusActive)}); err != nil {
		t.Fatalf("refresh status: %v", err)
	}
	if err := repo.CreateProduct(ctx, &model.Product{
		ID: uuid.New(), Name: "Scarf", Price: dec("15"), Category: "women-accessories", SKU: "SC-1",
		Status: model.ProductStatusActive, BaseStock: 2,
	}); err != nil {
		t.Fatalf("create product: %v", err)
	}

	got, err := svc.Categories(ctx)
	if err != nil {
		t.Fatalf("Categories: %v", err)
	}
	want := []model.CategoryCount{{Category: "men-shirts", Count: 2}, {Category: "women-accessories", Count: 1}}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("categories = %+v, want %+v", got, want)
	}
}

func TestUserManagement(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	svc := newTestService(t, repo)
	admin := seedUser(t, repo, model.RoleAdmin)
	owner := seedUser(t, repo, model.RoleCustomer)
	stranger := seedUser(t, repo, model.RoleCustomer)

	if _, err := svc.GetUserProfile(ctx, owner.ID, stranger); !errors.Is(err, ErrForbidden) {
		t.Fatalf("foreign profile: %v", err)
	}
	if _, err := svc.GetUserProfile(ctx, owner.ID, admin); err != nil {
		t.Fatalf("admin profile: %v", err)
	}

	updated, err := svc.UpdateUser(ctx, owner.ID, UserUpdate{
		FirstName: ptr(" Sara "),
		Address:   &AddressUpdate{City: ptr(" Irbid "), Country: ptr("Jordan")},
		Role:      ptr(model.RoleAdmin),
		Status:    ptr(model.UserStatusSuspended),
	}, owner)
	if err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	if updated.FirstName != "Sara" || updated.Address.City != "Irbid" || updated.Role != model.RoleCustomer || !updated.IsActive() {
		t.Fatalf("customer update applied privileged fields: %+v", updated)
	}

	updated, err = svc.UpdateUser(ctx, owner.ID, UserUpdate{
		Address: &AddressUpdate{Street: ptr("5 Main St")},
		Role:    ptr(model.RoleAdmin),
	}, admin)
	if err != nil {
		t.Fatalf("admin UpdateUser: %v", err)
	}
	if updated.Role != model.RoleAdmin || updated.Address.City != "Irbid" || updated.Address.Street != "5 Main St" {
		t.Fatalf("unexpected admin update %+v", updated)
	}
	if _, err := svc.UpdateUser(ctx, owner.ID, UserUpdate{Status: ptr(model.UserStatus("banned"))}, admin); !errors.Is(err, ErrInvalidUserStatus) {
		t.Fatalf("invalid status: %v", err)
	}
	if _, err := svc.UpdateUser(ctx, owner.ID, UserUpdate{FirstName: ptr("Eve")}, stranger); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("foreign update: %v", err)
	}

	if _, err := svc.SetUserStatus(ctx, stranger.ID, "banned"); err == nil || err.Error() != "Invalid status. Must be active, inactive, or suspended" {
		t.Fatalf("invalid status: %v", err)
	}
	suspended, err := svc.SetUserStatus(ctx, stranger.ID, model.UserStatusSuspended)
	if err != nil || suspended.Status != model.UserStatusSuspended {
		t.Fatalf("SetUserStatus: %+v, %v", suspended, err)
	}
	if _, err := svc.SetUserStatus(ctx, uuid.New(), model.UserStatusActive); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown user: %v", err)
	}

	users, total, err := svc.ListUsers(ctx, model.UserFilter{Role: model.RoleAdmin, Page: model.Page{Number: 1, Limit: 20}})
	if err != nil || total != 2 || len(users) != 2 {
		t.Fatalf("ListUsers: %d users, total %d, %v", len(users), total, err)
	}
	if _, _, err := svc.ListUsers(ctx, model.UserFilter{Status: "banned"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("invalid filter: %v", err)
	}

	stats, err := svc.UserStats(ctx)
	if err != nil {
		t.Fatalf("UserStats: %v", err)
	}
	if stats.TotalUsers != 3 || stats.ActiveUsers != 2 || stats.AdminUsers != 2 || stats.CustomerUsers != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestListUserOrders(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	svc := newTestService(t, repo)
	p := seedProduct(t, repo, "30", 10)
	owner := seedUser(t, repo, model.RoleCustomer)
	stranger := seedUser(t, repo, model.RoleCustomer)

	for i := 0; i < 3; i++ {
		if _, err := svc.CreateOrder(ctx, orderInput(variantItem(p, 1)), owner); err != nil {
			t.Fatalf("CreateOrder: %v", err)
		}
	}
	if _, err := svc.CreateOrder(ctx, orderInput(variantItem(p, 1)), stranger); err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	orders, total, err := svc.ListUserOrders(ctx, owner.ID, model.Page{Number: 1, Limit: 2}, owner)
	if err != nil {
		t.Fatalf("ListUserOrders: %v", err)
	}
	if total != 3 || len(orders) != 2 {
		t.Fatalf("orders = %d, total = %d", len(orders), total)
	}
	if _, _, err := svc.ListUserOrders(ctx, owner.ID, model.Page{Number: 1, Limit: 10}, stranger); !errors.Is(err, ErrForbidden) {
		t.Fatalf("foreign orders: %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	svc := newTestService(t, repo)
	u, err := svc.RegisterUser(ctx, RegisterInput{FirstName: "Omar", LastName: "Saleh", Email: "omar@example.com", Password: "Secret123"})
	if err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}

	tests := []struct {
		name          string
		current, next string
		err           error
	}{
		{name: "missing current", next: "newpass", err: ErrPasswordRequired},
		{name: "missing new", current: "Secret123", err: ErrPasswordRequired},
		{name: "short new", current: "Secret123", next: "abc", err: ErrPasswordTooShort},
		{name: "wrong current", current: "Secret999", next: "newpass", err: ErrWrongPassword},
	}
	for _, tt := range tests {
		if err := svc.ChangePassword(ctx, u.ID, tt.current, tt.next); !errors.Is(err, tt.err) {
			t.Fatalf("%s: got %v, want %v", tt.name, err, tt.err)
		}
	}

	if err := svc.ChangePassword(ctx, u.ID, "Secret123", "newpass"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if _, err := svc.AuthenticateUser(ctx, "omar@example.com", "Secret123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password still accepted: %v", err)
	}
	if _, err := svc.AuthenticateUser(ctx, "omar@example.com", "newpass"); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}
}
