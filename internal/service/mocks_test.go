package service_test

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"sort"
	"sync"
	"time"

	appErrors "github.com/unclebandit/pushleopard-backend/internal/errors"
	"github.com/unclebandit/pushleopard-backend/internal/model"
	"github.com/unclebandit/pushleopard-backend/internal/push"
	"github.com/unclebandit/pushleopard-backend/internal/repository"
)

// MockCampaignRepo keeps campaigns in memory and claims under a mutex, which
// gives the same per-row guarantee as the conditional UPDATE.
type MockCampaignRepo struct {
	mu        sync.Mutex
	campaigns map[string]*model.Campaign
	listErr   error
	claimErr  error
	claims    int
}

func newCampaignRepo(cs ...*model.Campaign) *MockCampaignRepo {
	m := &MockCampaignRepo{campaigns: map[string]*model.Campaign{}}
	for _, c := range cs {
		m.campaigns[c.ID] = c
	}
	return m
}

func (m *MockCampaignRepo) ListActive(ctx context.Context, status model.CampaignStatus, at time.Time, after string, limit int) ([]*model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}

	var out []*model.Campaign
	for _, c := range m.campaigns {
		if c.Status != status || c.Schedule.StartAt.After(at) || c.ID <= after {
			continue
		}
		if c.Schedule.EndAt != nil && c.Schedule.EndAt.Before(at) {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockCampaignRepo) Pages(ctx context.Context, status model.CampaignStatus, at time.Time, size int) iter.Seq2[[]*model.Campaign, error] {
	fetch := func(ctx context.Context, after string, limit int) ([]*model.Campaign, error) {
		return m.ListActive(ctx, status, at, after, limit)
	}
	return repository.Pages(ctx, size, fetch, func(c *model.Campaign) string { return c.ID })
}

func (m *MockCampaignRepo) GetByID(ctx context.Context, tenantID, id string) (*model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok || c.TenantID != tenantID {
		return nil, appErrors.NewCampaignNotFound(tenantID, id)
	}
	cp := *c
	return &cp, nil
}

func (m *MockCampaignRepo) ClaimDispatchIfDue(ctx context.Context, tenantID, id string, boundary time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claimErr != nil {
		return false, m.claimErr
	}
	c, ok := m.campaigns[id]
	if !ok || c.TenantID != tenantID {
		return false, nil
	}
	if c.LastDispatchedAt != nil && !c.LastDispatchedAt.Before(boundary) {
		return false, nil
	}
	b := boundary.UTC()
	c.LastDispatchedAt = &b
	m.claims++
	return true, nil
}

func (m *MockCampaignRepo) last(id string) *time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.campaigns[id].LastDispatchedAt
}

type MockSubscriptionRepo struct {
	mu      sync.Mutex
	subs    []model.Subscription
	listErr error
	// failAfter makes ListEligible fail once a cursor past it is requested.
	failAfter string
}

func (m *MockSubscriptionRepo) ListEligible(ctx context.Context, f repository.SubscriptionFilter, after string, limit int) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	if m.failAfter != "" && after >= m.failAfter {
		return nil, fmt.Errorf("subscriptions unavailable")
	}

	var out []model.Subscription
	for _, s := range m.subs {
		if s.TenantID != f.TenantID || s.Status != model.SubscriptionRegistered || s.ID <= after {
			continue
		}
		scoped := s.CampaignID != nil && *s.CampaignID == f.CampaignID
		wide := s.CampaignID == nil && (len(f.Tags) == 0 || slices.ContainsFunc(s.Tags, func(t string) bool { return slices.Contains(f.Tags, t) }))
		if scoped || wide {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockSubscriptionRepo) Pages(ctx context.Context, f repository.SubscriptionFilter, size int) iter.Seq2[[]model.Subscription, error] {
	fetch := func(ctx context.Context, after string, limit int) ([]model.Subscription, error) {
		return m.ListEligible(ctx, f, after, limit)
	}
	return repository.Pages(ctx, size, fetch, func(s model.Subscription) string { return s.ID })
}

func (m *MockSubscriptionRepo) UpdateStatus(ctx context.Context, tenantID, id string, status model.SubscriptionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.subs {
		if m.subs[i].TenantID == tenantID && m.subs[i].ID == id {
			m.subs[i].Status = status
		}
	}
	return nil
}

func (m *MockSubscriptionRepo) status(id string) model.SubscriptionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if s.ID == id {
			return s.Status
		}
	}
	return ""
}

type MockNotificationRepo struct {
	mu        sync.Mutex
	seq       int
	byID      map[string]*model.Notification
	attempts  map[string]string
	createErr error
}

func newNotificationRepo() *MockNotificationRepo {
	return &MockNotificationRepo{byID: map[string]*model.Notification{}, attempts: map[string]string{}}
}

func (m *MockNotificationRepo) CreateForSend(ctx context.Context, in repository.CreateForSendInput) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return "", m.createErr
	}
	key := fmt.Sprintf("%s|%s|%d", in.CampaignID, in.SubscriptionID, in.BoundaryAt.UnixMilli())
	if _, ok := m.attempts[key]; ok {
		return "", repository.ErrAlreadyAttempted
	}
	m.seq++
	id := fmt.Sprintf("n%d", m.seq)
	m.attempts[key] = id
	m.byID[id] = &model.Notification{
		ID: id, TenantID: in.TenantID, CampaignID: in.CampaignID, SubscriptionID: in.SubscriptionID,
		BoundaryAt: in.BoundaryAt, Status: model.NotificationSent, AttemptCount: 1,
	}
	return id, nil
}

func (m *MockNotificationRepo) move(tenantID, id string, to model.NotificationStatus, apply func(n *model.Notification)) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.byID[id]
	if !ok || n.TenantID != tenantID || !n.Status.CanMoveTo(to) {
		return false, nil
	}
	n.Status = to
	apply(n)
	return true, nil
}

func (m *MockNotificationRepo) MarkFailed(ctx context.Context, tenantID, id, code, message string) (bool, error) {
	return m.move(tenantID, id, model.NotificationFailed, func(n *model.Notification) {
		n.ErrorCode, n.ErrorMessage = code, message
		n.AttemptCount++
	})
}

func (m *MockNotificationRepo) MarkShown(ctx context.Context, tenantID, id string, at time.Time) (bool, error) {
	return m.move(tenantID, id, model.NotificationShown, func(n *model.Notification) { n.ShownAt = &at })
}

func (m *MockNotificationRepo) MarkClicked(ctx context.Context, tenantID, id, action string, at time.Time) (bool, error) {
	return m.move(tenantID, id, model.NotificationClicked, func(n *model.Notification) {
		n.ClickedAt, n.ClickedAction = &at, action
	})
}

func (m *MockNotificationRepo) MarkClosed(ctx context.Context, tenantID, id string, at time.Time) (bool, error) {
	return m.move(tenantID, id, model.NotificationClosed, func(n *model.Notification) { n.ClosedAt = &at })
}

func (m *MockNotificationRepo) GetCampaignStats(ctx context.Context, tenantID, campaignID string) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := map[string]int{"total": 0}
	for _, n := range m.byID {
		if n.TenantID == tenantID && n.CampaignID == campaignID {
			stats[string(n.Status)]++
			stats["total"]++
		}
	}
	return stats, nil
}

func (m *MockNotificationRepo) all() []model.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Notification, 0, len(m.byID))
	for _, n := range m.byID {
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubscriptionID < out[j].SubscriptionID })
	return out
}

func (m *MockNotificationRepo) get(id string) model.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.byID[id]
}

// MockSender answers per endpoint; endpoints without an entry are accepted.
type MockSender struct {
	mu       sync.Mutex
	errs     map[string]error
	payloads map[string][]byte
	calls    []string
}

func newSender() *MockSender {
	return &MockSender{errs: map[string]error{}, payloads: map[string][]byte{}}
}

func (m *MockSender) Deliver(ctx context.Context, target push.Target, payload []byte) (push.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, target.Endpoint)
	m.payloads[target.Endpoint] = payload
	if err, ok := m.errs[target.Endpoint]; ok {
		var status int
		if de, ok := err.(*appErrors.DeliveryError); ok {
			status = de.StatusCode
		}
		return push.Result{StatusCode: status}, err
	}
	return push.Result{StatusCode: 201}, nil
}

func (m *MockSender) called() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := slices.Clone(m.calls)
	sort.Strings(out)
	return out
}

var (
	_ repository.CampaignRepositoryInterface     = (*MockCampaignRepo)(nil)
	_ repository.SubscriptionRepositoryInterface = (*MockSubscriptionRepo)(nil)
	_ repository.NotificationRepositoryInterface = (*MockNotificationRepo)(nil)
	_ push.Sender                                = (*MockSender)(nil)
)

func subscription(id, tenantID string, campaignID *string, tags ...string) model.Subscription {
	return model.Subscription{
		ID:         id,
		TenantID:   tenantID,
		CampaignID: campaignID,
		Status:     model.SubscriptionRegistered,
		Endpoint:   "https://push.example/" + id,
		Keys:       model.SubscriptionKeys{P256dh: "p-" + id, Auth: "a-" + id},
		Tags:       tags,
	}
}

func at(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}
