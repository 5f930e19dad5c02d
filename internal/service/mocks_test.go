package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reekob/mendmyinewshop/internal/domain"
	"github.com/reekob/mendmyinewshop/internal/events"
	"github.com/reekob/mendmyinewshop/internal/gateway"
)

// In-memory stores mirroring the repositories' guarded-write semantics:
// every conditional mutation checks its predicate and reports success via
// the same boolean the SQL layer derives from rows-affected. A mutex per
// store stands in for the database's per-row serialization.

type memCarts struct {
	mu    sync.Mutex
	carts map[uuid.UUID]*domain.Cart
}

func newMemCarts(carts ...*domain.Cart) *memCarts {
	m := &memCarts{carts: make(map[uuid.UUID]*domain.Cart)}
	for _, c := range carts {
		m.carts[c.ID] = c
	}
	return m
}

func (m *memCarts) GetByID(_ context.Context, cartID uuid.UUID) (*domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cart, ok := m.carts[cartID]
	if !ok {
		return nil, &domain.NotFoundError{Resource: "cart", ID: cartID.String()}
	}
	clone := *cart
	clone.Items = append([]domain.CartItem(nil), cart.Items...)
	return &clone, nil
}

func (m *memCarts) GetByPaymentSession(_ context.Context, sessionID string) (*domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cart := range m.carts {
		if cart.PaymentSessionID != nil && *cart.PaymentSessionID == sessionID {
			clone := *cart
			clone.Items = append([]domain.CartItem(nil), cart.Items...)
			return &clone, nil
		}
	}
	return nil, &domain.NotFoundError{Resource: "cart", ID: sessionID}
}

func (m *memCarts) MarkCheckedOut(_ context.Context, cartID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cart, ok := m.carts[cartID]
	if !ok || cart.Status != domain.CartStatusOpen {
		return false, nil
	}
	cart.Status = domain.CartStatusCheckedOut
	return true, nil
}

func (m *memCarts) Reopen(_ context.Context, cartID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cart, ok := m.carts[cartID]; ok && cart.Status == domain.CartStatusCheckedOut {
		cart.Status = domain.CartStatusOpen
	}
	return nil
}

func (m *memCarts) StripDiscount(_ context.Context, cartID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cart, ok := m.carts[cartID]; ok {
		cart.DiscountID = nil
		cart.DiscountAmount = 0
		cart.DiscountReserved = false
	}
	return nil
}

func (m *memCarts) SetDiscountReserved(_ context.Context, cartID uuid.UUID, reserved bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cart, ok := m.carts[cartID]; ok {
		cart.DiscountReserved = reserved
	}
	return nil
}

func (m *memCarts) SetInventoryReserved(_ context.Context, cartID uuid.UUID, reserved bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cart, ok := m.carts[cartID]; ok {
		cart.InventoryReserved = reserved
	}
	return nil
}

func (m *memCarts) SetPaymentSession(_ context.Context, cartID uuid.UUID, sessionID string, discountAmount float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cart, ok := m.carts[cartID]; ok {
		cart.PaymentSessionID = &sessionID
		cart.DiscountAmount = discountAmount
	}
	return nil
}

func (m *memCarts) ExpireIfOpen(_ context.Context, cartID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cart, ok := m.carts[cartID]
	if !ok || cart.Status != domain.CartStatusOpen {
		return false, nil
	}
	cart.Status = domain.CartStatusExpired
	return true, nil
}

func (m *memCarts) ExpireIfCheckedOut(_ context.Context, cartID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cart, ok := m.carts[cartID]
	if !ok || cart.Status != domain.CartStatusCheckedOut {
		return false, nil
	}
	cart.Status = domain.CartStatusExpired
	return true, nil
}

func (m *memCarts) DeleteItems(_ context.Context, cartID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cart, ok := m.carts[cartID]; ok {
		cart.Items = nil
	}
	return nil
}

func (m *memCarts) ListExpiredOpen(_ context.Context, limit int) ([]*domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var expired []*domain.Cart
	now := time.Now()
	for _, cart := range m.carts {
		if cart.Status == domain.CartStatusOpen && cart.ExpiresAt.Before(now) {
			clone := *cart
			clone.Items = append([]domain.CartItem(nil), cart.Items...)
			expired = append(expired, &clone)
			if len(expired) >= limit {
				break
			}
		}
	}
	return expired, nil
}

func (m *memCarts) get(cartID uuid.UUID) *domain.Cart {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.carts[cartID]
}

type memInventory struct {
	mu        sync.Mutex
	items     map[string]*domain.InventoryItem
	ledger    []*domain.LedgerEntry
	saleKeys  map[string]bool
	commitErr error
}

func newMemInventory(items ...*domain.InventoryItem) *memInventory {
	m := &memInventory{
		items:    make(map[string]*domain.InventoryItem),
		saleKeys: make(map[string]bool),
	}
	for _, item := range items {
		m.items[item.SKU] = item
	}
	return m
}

func (m *memInventory) GetBySKU(_ context.Context, sku string) (*domain.InventoryItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[sku]
	if !ok {
		return nil, &domain.NotFoundError{Resource: "sku", ID: sku}
	}
	clone := *item
	return &clone, nil
}

func (m *memInventory) Reserve(_ context.Context, sku string, quantity int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[sku]
	if !ok || item.OnHand-item.Reserved < quantity {
		return false, nil
	}
	item.Reserved += quantity
	return true, nil
}

func (m *memInventory) ReleaseReserved(_ context.Context, sku string, quantity int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[sku]
	if !ok || item.Reserved < quantity {
		return false, nil
	}
	item.Reserved -= quantity
	return true, nil
}

func (m *memInventory) CommitSale(_ context.Context, sku string, quantity int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.commitErr != nil {
		return false, m.commitErr
	}
	item, ok := m.items[sku]
	if !ok || item.OnHand < quantity || item.Reserved < quantity {
		return false, nil
	}
	item.OnHand -= quantity
	item.Reserved -= quantity
	return true, nil
}

func (m *memInventory) AppendLedger(_ context.Context, entry *domain.LedgerEntry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.OrderID != nil {
		key := fmt.Sprintf("%s|%s|%s", entry.OrderID, entry.SKU, entry.Reason)
		if m.saleKeys[key] {
			return false, nil
		}
		m.saleKeys[key] = true
	}
	m.ledger = append(m.ledger, entry)
	return true, nil
}

func (m *memInventory) get(sku string) *domain.InventoryItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[sku]
}

type memDiscounts struct {
	mu        sync.Mutex
	discounts map[uuid.UUID]*domain.Discount
	usages    map[string]*domain.DiscountUsage
}

func newMemDiscounts(discounts ...*domain.Discount) *memDiscounts {
	m := &memDiscounts{
		discounts: make(map[uuid.UUID]*domain.Discount),
		usages:    make(map[string]*domain.DiscountUsage),
	}
	for _, d := range discounts {
		m.discounts[d.ID] = d
	}
	return m
}

func usageKey(orderID, discountID uuid.UUID) string {
	return orderID.String() + "|" + discountID.String()
}

func (m *memDiscounts) GetByID(_ context.Context, discountID uuid.UUID) (*domain.Discount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.discounts[discountID]
	if !ok {
		return nil, &domain.NotFoundError{Resource: "discount", ID: discountID.String()}
	}
	clone := *d
	return &clone, nil
}

func (m *memDiscounts) ReserveUsage(_ context.Context, discountID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.discounts[discountID]
	if !ok || d.Status != domain.DiscountStatusActive || !d.WithinWindow(time.Now()) {
		return false, nil
	}
	if d.UsageLimit != nil && d.UsageCount >= *d.UsageLimit {
		return false, nil
	}
	d.UsageCount++
	return true, nil
}

func (m *memDiscounts) ReleaseUsage(_ context.Context, discountID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.discounts[discountID]
	if !ok || d.UsageCount <= 0 {
		return false, nil
	}
	d.UsageCount--
	return true, nil
}

func (m *memDiscounts) CustomerUsageCount(_ context.Context, discountID uuid.UUID, customerEmail string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.customerUsageLocked(discountID, customerEmail), nil
}

func (m *memDiscounts) customerUsageLocked(discountID uuid.UUID, customerEmail string) int {
	count := 0
	for _, usage := range m.usages {
		if usage.DiscountID == discountID && usage.CustomerEmail == customerEmail {
			count++
		}
	}
	return count
}

func (m *memDiscounts) InsertUsage(_ context.Context, usage *domain.DiscountUsage, perCustomerLimit *int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := usageKey(usage.OrderID, usage.DiscountID)
	if _, exists := m.usages[key]; exists {
		return false, nil
	}
	if perCustomerLimit != nil && m.customerUsageLocked(usage.DiscountID, usage.CustomerEmail) >= *perCustomerLimit {
		return false, nil
	}
	m.usages[key] = usage
	return true, nil
}

func (m *memDiscounts) UsageExists(_ context.Context, orderID, discountID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, exists := m.usages[usageKey(orderID, discountID)]
	return exists, nil
}

func (m *memDiscounts) get(discountID uuid.UUID) *domain.Discount {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.discounts[discountID]
}

func (m *memDiscounts) usageCountTotal() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.usages)
}

type memOrders struct {
	mu     sync.Mutex
	orders map[string]*domain.Order
}

func newMemOrders() *memOrders {
	return &memOrders{orders: make(map[string]*domain.Order)}
}

func (m *memOrders) Create(_ context.Context, order *domain.Order) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.orders[order.PaymentSessionID]; exists {
		return false, nil
	}
	m.orders[order.PaymentSessionID] = order
	return true, nil
}

func (m *memOrders) GetByPaymentSession(_ context.Context, sessionID string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[sessionID]
	if !ok {
		return nil, &domain.NotFoundError{Resource: "order", ID: sessionID}
	}
	return order, nil
}

func (m *memOrders) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

type memCustomers struct {
	mu        sync.Mutex
	customers map[string]*domain.Customer
	addresses map[uuid.UUID][]*domain.Address
}

func newMemCustomers() *memCustomers {
	return &memCustomers{
		customers: make(map[string]*domain.Customer),
		addresses: make(map[uuid.UUID][]*domain.Address),
	}
}

func (m *memCustomers) UpsertOnOrder(_ context.Context, email, name, phone string, orderTotal float64) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	customer, ok := m.customers[email]
	if !ok {
		customer = &domain.Customer{ID: uuid.New(), Email: email}
		m.customers[email] = customer
	}
	customer.OrderCount++
	customer.TotalSpent += orderTotal
	if name != "" {
		customer.Name = name
	}
	if phone != "" {
		customer.Phone = phone
	}
	return customer.ID, nil
}

func (m *memCustomers) EnsureDefaultAddress(_ context.Context, customerID uuid.UUID, address *domain.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.addresses[customerID] {
		if existing.IsDefault {
			return nil
		}
	}
	address.IsDefault = true
	m.addresses[customerID] = append(m.addresses[customerID], address)
	return nil
}

func (m *memCustomers) get(email string) *domain.Customer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.customers[email]
}

type memWebhooks struct {
	mu          sync.Mutex
	subscribers []*domain.Subscriber
	deliveries  map[uuid.UUID]*domain.Delivery
}

func newMemWebhooks(subscribers ...*domain.Subscriber) *memWebhooks {
	return &memWebhooks{
		subscribers: subscribers,
		deliveries:  make(map[uuid.UUID]*domain.Delivery),
	}
}

func (m *memWebhooks) ListActiveSubscribers(_ context.Context) ([]*domain.Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var active []*domain.Subscriber
	for _, sub := range m.subscribers {
		if sub.Status == domain.SubscriberStatusActive {
			active = append(active, sub)
		}
	}
	return active, nil
}

func (m *memWebhooks) CreateDelivery(_ context.Context, d *domain.Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *d
	m.deliveries[d.ID] = &clone
	return nil
}

func (m *memWebhooks) UpdateDelivery(_ context.Context, d *domain.Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *d
	m.deliveries[d.ID] = &clone
	return nil
}

func (m *memWebhooks) ListFailed(_ context.Context, limit int) ([]*domain.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var failed []*domain.Delivery
	for _, d := range m.deliveries {
		if d.Status == domain.DeliveryStatusFailed {
			clone := *d
			failed = append(failed, &clone)
			if len(failed) >= limit {
				break
			}
		}
	}
	return failed, nil
}

func (m *memWebhooks) deliveriesFor(subscriberID uuid.UUID) []*domain.Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*domain.Delivery
	for _, d := range m.deliveries {
		if d.SubscriberID == subscriberID {
			clone := *d
			result = append(result, &clone)
		}
	}
	return result
}

type memProcessed struct {
	mu     sync.Mutex
	events map[string]bool
}

func newMemProcessed() *memProcessed {
	return &memProcessed{events: make(map[string]bool)}
}

func (m *memProcessed) IsProcessed(_ context.Context, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events[eventID], nil
}

func (m *memProcessed) MarkProcessed(_ context.Context, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.events[eventID] {
		return false, nil
	}
	m.events[eventID] = true
	return true, nil
}

type stubPublisher struct {
	mu        sync.Mutex
	published []events.DomainEvent
	err       error
}

func (p *stubPublisher) PublishDomainEvent(event events.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, event)
	return nil
}

func (p *stubPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

type stubGateway struct {
	mu          sync.Mutex
	sessionErr  error
	couponErr   error
	sessions    int
	coupons     int
	lastRequest gateway.SessionRequest
}

func (g *stubGateway) CreateCheckoutSession(_ context.Context, request gateway.SessionRequest) (*gateway.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sessionErr != nil {
		return nil, g.sessionErr
	}
	g.sessions++
	g.lastRequest = request
	sessionID := fmt.Sprintf("cs_test_%d", g.sessions)
	return &gateway.CheckoutSession{
		ID:          sessionID,
		RedirectURL: "https://pay.example.test/checkout/" + sessionID,
	}, nil
}

func (g *stubGateway) CreateCoupon(_ context.Context, request gateway.CouponRequest) (*gateway.Coupon, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.couponErr != nil {
		return nil, g.couponErr
	}
	g.coupons++
	return &gateway.Coupon{ID: fmt.Sprintf("coup_test_%d", g.coupons)}, nil
}

func (g *stubGateway) Refund(_ context.Context, request gateway.RefundRequest) (*gateway.RefundResponse, error) {
	return &gateway.RefundResponse{ID: "re_test", Status: "succeeded"}, nil
}
