package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/sakif/video-portal/internal/apperror"
	"github.com/sakif/video-portal/internal/billing"
	"github.com/sakif/video-portal/internal/model"
	"github.com/sakif/video-portal/internal/repository"
)

// =========================================================================
// MOCK REPOSITORIES
// =========================================================================

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockProfileRepo struct {
	mu       sync.Mutex
	profiles map[string]*model.Profile
	nextID   int

	// block, when set, stalls GetByDiscordID until closed.
	block   chan struct{}
	failGet error
	writes  int
}

func newMockProfileRepo() *mockProfileRepo {
	return &mockProfileRepo{profiles: make(map[string]*model.Profile)}
}

func (m *mockProfileRepo) seed(p model.Profile) *model.Profile {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		m.nextID++
		p.ID = fmt.Sprintf("user-%d", m.nextID)
	}
	if p.SubscriptionStatus == "" {
		p.SubscriptionStatus = model.StatusInactive
	}
	m.profiles[p.ID] = &p
	return &p
}

func (m *mockProfileRepo) get(id string) *model.Profile {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil
	}
	c := *p
	return &c
}

func (m *mockProfileRepo) byDiscord(discordID string) *model.Profile {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.profiles {
		if p.DiscordID == discordID {
			c := *p
			return &c
		}
	}
	return nil
}

func (m *mockProfileRepo) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func (m *mockProfileRepo) Create(_ context.Context, p *model.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.profiles {
		if existing.DiscordID == p.DiscordID {
			return apperror.Conflict("profile", p.DiscordID)
		}
	}
	m.nextID++
	p.ID = fmt.Sprintf("user-%d", m.nextID)
	stored := *p
	m.profiles[p.ID] = &stored
	m.writes++
	return nil
}

func (m *mockProfileRepo) GetByID(_ context.Context, id string) (*model.Profile, error) {
	if m.failGet != nil {
		return nil, m.failGet
	}
	if p := m.get(id); p != nil {
		return p, nil
	}
	return nil, apperror.NotFound("profile", id)
}

func (m *mockProfileRepo) GetByDiscordID(ctx context.Context, discordID string) (*model.Profile, error) {
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.failGet != nil {
		return nil, m.failGet
	}
	if p := m.byDiscord(discordID); p != nil {
		return p, nil
	}
	return nil, apperror.NotFound("profile", discordID)
}

func (m *mockProfileRepo) GetByBillingCustomerID(_ context.Context, customerID string) (*model.Profile, error) {
	if m.failGet != nil {
		return nil, m.failGet
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.profiles {
		if p.BillingCustomerID != nil && *p.BillingCustomerID == customerID {
			c := *p
			return &c, nil
		}
	}
	return nil, apperror.NotFound("profile", customerID)
}

func (m *mockProfileRepo) List(_ context.Context, opts repository.ProfileListOptions) ([]model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := []model.Profile{}
	for _, p := range m.profiles {
		if opts.Query != "" && !strings.Contains(p.Email, opts.Query) && !strings.Contains(p.DiscordID, opts.Query) {
			continue
		}
		result = append(result, *p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	if opts.Offset >= len(result) {
		return []model.Profile{}, nil
	}
	result = result[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(result) {
		result = result[:opts.Limit]
	}
	return result, nil
}

func (m *mockProfileRepo) mutate(id string, fn func(p *model.Profile)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return apperror.NotFound("profile", id)
	}
	fn(p)
	m.writes++
	return nil
}

func (m *mockProfileRepo) UpdateLogin(_ context.Context, id, email, avatarURL string, role model.Role) error {
	return m.mutate(id, func(p *model.Profile) {
		p.Email, p.AvatarURL, p.Role = email, avatarURL, role
	})
}

func (m *mockProfileRepo) UpdateRole(_ context.Context, id string, role model.Role) error {
	return m.mutate(id, func(p *model.Profile) { p.Role = role })
}

func (m *mockProfileRepo) UpdateRoleAndStatus(_ context.Context, id string, role model.Role, status model.SubscriptionStatus) error {
	return m.mutate(id, func(p *model.Profile) {
		p.Role, p.SubscriptionStatus = role, status
	})
}

func (m *mockProfileRepo) SetBillingCustomerID(_ context.Context, id, customerID string) error {
	return m.mutate(id, func(p *model.Profile) { p.BillingCustomerID = &customerID })
}

type mockVideoRepo struct {
	videos    map[string]*model.Video
	nextID    int
	failWrite error
}

func newMockVideoRepo() *mockVideoRepo {
	return &mockVideoRepo{videos: make(map[string]*model.Video)}
}

func (m *mockVideoRepo) Create(_ context.Context, v *model.Video) error {
	if m.failWrite != nil {
		return m.failWrite
	}
	m.nextID++
	v.ID = fmt.Sprintf("video-%d", m.nextID)
	stored := *v
	m.videos[v.ID] = &stored
	return nil
}

func (m *mockVideoRepo) GetByID(_ context.Context, id string) (*model.Video, error) {
	v, ok := m.videos[id]
	if !ok {
		return nil, apperror.NotFound("video", id)
	}
	c := *v
	return &c, nil
}

func (m *mockVideoRepo) List(_ context.Context, opts repository.VideoListOptions) ([]model.Video, error) {
	result := []model.Video{}
	for _, v := range m.videos {
		if opts.PublishedOnly && !v.Published {
			continue
		}
		result = append(result, *v)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	if opts.Limit > 0 && opts.Limit < len(result) {
		result = result[:opts.Limit]
	}
	return result, nil
}

func (m *mockVideoRepo) Update(_ context.Context, v *model.Video) error {
	if _, ok := m.videos[v.ID]; !ok {
		return apperror.NotFound("video", v.ID)
	}
	stored := *v
	m.videos[v.ID] = &stored
	return nil
}

func (m *mockVideoRepo) Delete(_ context.Context, id string) error {
	if _, ok := m.videos[id]; !ok {
		return apperror.NotFound("video", id)
	}
	delete(m.videos, id)
	return nil
}

type mockEventRepo struct {
	events     map[string]*model.WebhookEvent
	nextID     int
	failRecord error
}

func newMockEventRepo() *mockEventRepo {
	return &mockEventRepo{events: make(map[string]*model.WebhookEvent)}
}

func (m *mockEventRepo) Record(_ context.Context, e *model.WebhookEvent) (*model.WebhookEvent, error) {
	if m.failRecord != nil {
		return nil, m.failRecord
	}
	for _, existing := range m.events {
		if existing.Provider == e.Provider && existing.ProviderEventID == e.ProviderEventID {
			c := *existing
			return &c, apperror.Conflict("webhook event", e.ProviderEventID)
		}
	}
	m.nextID++
	e.ID = fmt.Sprintf("evt-row-%d", m.nextID)
	if e.Outcome == "" {
		e.Outcome = model.OutcomeReceived
	}
	stored := *e
	m.events[e.ID] = &stored
	return e, nil
}

func (m *mockEventRepo) MarkOutcome(_ context.Context, id, outcome, errMsg string) error {
	e, ok := m.events[id]
	if !ok {
		return apperror.NotFound("webhook event", id)
	}
	e.Outcome, e.Error = outcome, errMsg
	return nil
}

func (m *mockEventRepo) outcome(providerEventID string) string {
	for _, e := range m.events {
		if e.ProviderEventID == providerEventID {
			return e.Outcome
		}
	}
	return ""
}

// =========================================================================
// FAKE BILLING CLIENT
// =========================================================================

type fakeBilling struct {
	customers     map[string]*billing.Customer
	product       *billing.Product
	productErr    error
	sessionURL    string
	sessionErr    error
	subscriptions []billing.Subscription
	listErr       error
	cancelErr     error

	created      []billing.CustomerParams
	sessions     []billing.CheckoutSessionParams
	canceled     []string
	getCustomers int
}

func newFakeBilling() *fakeBilling {
	return &fakeBilling{
		customers:  make(map[string]*billing.Customer),
		product:    &billing.Product{ID: "prod_1", DefaultPrice: "price_1"},
		sessionURL: "https://checkout.example/s/cs_1",
	}
}

func (f *fakeBilling) GetCustomer(_ context.Context, id string) (*billing.Customer, error) {
	f.getCustomers++
	c, ok := f.customers[id]
	if !ok {
		return nil, &billing.Error{StatusCode: 404, Code: "resource_missing", Message: "No such customer: " + id}
	}
	return c, nil
}

func (f *fakeBilling) CreateCustomer(_ context.Context, params billing.CustomerParams) (*billing.Customer, error) {
	f.created = append(f.created, params)
	c := &billing.Customer{ID: fmt.Sprintf("cus_new_%d", len(f.created)), Email: params.Email, Metadata: params.Metadata}
	f.customers[c.ID] = c
	return c, nil
}

func (f *fakeBilling) GetProduct(_ context.Context, _ string) (*billing.Product, error) {
	if f.productErr != nil {
		return nil, f.productErr
	}
	return f.product, nil
}

func (f *fakeBilling) CreateCheckoutSession(_ context.Context, params billing.CheckoutSessionParams) (*billing.CheckoutSession, error) {
	f.sessions = append(f.sessions, params)
	if f.sessionErr != nil {
		return nil, f.sessionErr
	}
	return &billing.CheckoutSession{ID: "cs_1", URL: f.sessionURL, Customer: billing.ExpandableID(params.CustomerID)}, nil
}

func (f *fakeBilling) ListActiveSubscriptions(_ context.Context, _ string, limit int) ([]billing.Subscription, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	if limit > 0 && limit < len(f.subscriptions) {
		return f.subscriptions[:limit], nil
	}
	return f.subscriptions, nil
}

func (f *fakeBilling) CancelAtPeriodEnd(_ context.Context, id string) (*billing.Subscription, error) {
	if f.cancelErr != nil {
		return nil, f.cancelErr
	}
	f.canceled = append(f.canceled, id)
	for _, s := range f.subscriptions {
		if s.ID == id {
			s.CancelAtPeriodEnd = true
			return &s, nil
		}
	}
	return nil, &billing.Error{StatusCode: 404, Code: "resource_missing", Message: "No such subscription"}
}

// =========================================================================
// FAKE BLOB STORE
// =========================================================================

type fakeBlobs struct {
	mu      sync.Mutex
	objects map[string]string // bucket/key -> content type
	failPut map[string]bool   // bucket -> fail
	deleted []string
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{objects: make(map[string]string), failPut: make(map[string]bool)}
}

func (f *fakeBlobs) Put(_ context.Context, bucket, key, contentType string, body io.Reader, _ int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPut[bucket] {
		return "", errors.New("bucket unavailable")
	}
	if _, err := io.Copy(io.Discard, body); err != nil {
		return "", err
	}
	f.objects[bucket+"/"+key] = contentType
	return "https://media.example/" + bucket + "/" + key, nil
}

func (f *fakeBlobs) Delete(_ context.Context, bucket, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, bucket+"/"+key)
	delete(f.objects, bucket+"/"+key)
	return nil
}

func (f *fakeBlobs) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}
