package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"deedhive/internal/types"
)

// --- Test Doubles ---

// mockNotifierUsers returns a fixed eligibility set and records the filter
// arguments.
type mockNotifierUsers struct {
	users      []*types.NotifiableUser
	listErr    error
	lastDay    time.Time
	lastUserID string
}

func (m *mockNotifierUsers) ListNotifiable(ctx context.Context, day time.Time, onlyUserID string) ([]*types.NotifiableUser, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	m.lastDay = day
	m.lastUserID = onlyUserID
	return m.users, nil
}

// mockLedger simulates the send ledger with an in-memory set.
type mockLedger struct {
	sent      map[string]bool
	existsErr error
	recordErr error
	records   []string
}

func (m *mockLedger) Exists(ctx context.Context, assignmentID string) (bool, error) {
	if m.existsErr != nil {
		return false, m.existsErr
	}
	return m.sent[assignmentID], nil
}

func (m *mockLedger) Record(ctx context.Context, assignmentID, userID string, sentAt time.Time) (bool, error) {
	if m.recordErr != nil {
		return false, m.recordErr
	}
	m.records = append(m.records, assignmentID)
	if m.sent[assignmentID] {
		return false, nil
	}
	if m.sent == nil {
		m.sent = map[string]bool{}
	}
	m.sent[assignmentID] = true
	return true, nil
}

// mockActionCatalog resolves action titles by ID.
type mockActionCatalog struct {
	actions map[string]*types.Action
	getErr  error
}

func (m *mockActionCatalog) GetByID(ctx context.Context, id string) (*types.Action, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if a, ok := m.actions[id]; ok {
		return a, nil
	}
	return nil, types.NewAppError(types.ErrCodeNotFoundAction, "action not found", nil)
}

// mockPushSender records sends and fails the configured devices.
type mockPushSender struct {
	sends   []pushSendCall
	failFor map[string]bool
}

type pushSendCall struct {
	deviceID string
	heading  string
	body     string
}

func (m *mockPushSender) Send(ctx context.Context, deviceID, heading, body string) error {
	if m.failFor[deviceID] {
		return fmt.Errorf("simulated push failure for %s", deviceID)
	}
	m.sends = append(m.sends, pushSendCall{deviceID: deviceID, heading: heading, body: body})
	return nil
}

func notifiable(userID, deviceID, timezone string) *types.NotifiableUser {
	return &types.NotifiableUser{
		UserID:       userID,
		DeviceID:     deviceID,
		Timezone:     timezone,
		AssignmentID: "assign-" + userID,
		ActionID:     "act-" + userID,
	}
}

func newTestNotifier(users *mockNotifierUsers, ledger *mockLedger, catalog *mockActionCatalog, push *mockPushSender, at time.Time) *NotificationScheduler {
	return NewNotificationScheduler(NotificationSchedulerConfig{
		Users:   users,
		Ledger:  ledger,
		Catalog: catalog,
		Push:    push,
		Logger:  testLogger(),
		Now:     func() time.Time { return at },
	})
}

// 10:00 UTC, inside the default window for UTC-fallback users.
var tenUTC = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

// --- Tests ---

func TestProcessSendsInsideWindow(t *testing.T) {
	users := &mockNotifierUsers{users: []*types.NotifiableUser{notifiable("u1", "dev-1", "")}}
	ledger := &mockLedger{}
	catalog := &mockActionCatalog{actions: map[string]*types.Action{
		"act-u1": {ID: "act-u1", Title: "Hold the door for someone"},
	}}
	push := &mockPushSender{}
	n := newTestNotifier(users, ledger, catalog, push, tenUTC)

	result, err := n.Process(context.Background(), ProcessInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Total != 1 || result.Successful != 1 || result.Failed != 0 {
		t.Fatalf("expected 1 successful send, got %+v", result)
	}
	if len(push.sends) != 1 {
		t.Fatalf("expected 1 push, got %d", len(push.sends))
	}
	send := push.sends[0]
	if send.deviceID != "dev-1" {
		t.Errorf("expected push to dev-1, got %q", send.deviceID)
	}
	if send.heading != PushHeading {
		t.Errorf("expected heading %q, got %q", PushHeading, send.heading)
	}
	if send.body != "Hold the door for someone" {
		t.Errorf("expected action title as body, got %q", send.body)
	}
	if len(ledger.records) != 1 || ledger.records[0] != "assign-u1" {
		t.Errorf("expected ledger record for assign-u1, got %v", ledger.records)
	}
}

func TestProcessSkipsOutsideUTCWindow(t *testing.T) {
	users := &mockNotifierUsers{users: []*types.NotifiableUser{notifiable("u1", "dev-1", "")}}
	push := &mockPushSender{}
	n := newTestNotifier(users, &mockLedger{}, &mockActionCatalog{}, push,
		time.Date(2026, 3, 15, 15, 0, 0, 0, time.UTC))

	result, err := n.Process(context.Background(), ProcessInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Total != 0 || len(push.sends) != 0 {
		t.Errorf("expected no sends at 15:00 UTC, got %+v", result)
	}
}

func TestProcessUsesLocalHourForValidTimezone(t *testing.T) {
	// 15:00 UTC is 10:00 in New York (EST without DST would be 10; mid-March
	// is EDT, UTC-4, so 11:00: still inside the window either way).
	users := &mockNotifierUsers{users: []*types.NotifiableUser{
		notifiable("east", "dev-east", "America/New_York"),
		notifiable("utc", "dev-utc", ""),
	}}
	catalog := &mockActionCatalog{actions: map[string]*types.Action{}}
	push := &mockPushSender{}
	n := newTestNotifier(users, &mockLedger{}, catalog, push,
		time.Date(2026, 3, 15, 15, 0, 0, 0, time.UTC))

	result, err := n.Process(context.Background(), ProcessInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Total != 1 {
		t.Fatalf("expected only the New York user in window, got %+v", result)
	}
	if len(push.sends) != 1 || push.sends[0].deviceID != "dev-east" {
		t.Errorf("expected push to dev-east only, got %v", push.sends)
	}
}

func TestProcessInvalidTimezoneFallsBackToUTC(t *testing.T) {
	users := &mockNotifierUsers{users: []*types.NotifiableUser{
		notifiable("u1", "dev-1", "Not/AZone"),
	}}
	push := &mockPushSender{}
	n := newTestNotifier(users, &mockLedger{}, &mockActionCatalog{}, push, tenUTC)

	result, err := n.Process(context.Background(), ProcessInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Total != 1 || result.Successful != 1 {
		t.Errorf("expected UTC fallback to deliver at 10:00 UTC, got %+v", result)
	}
}

func TestProcessSkipsAlreadyNotified(t *testing.T) {
	users := &mockNotifierUsers{users: []*types.NotifiableUser{notifiable("u1", "dev-1", "")}}
	ledger := &mockLedger{sent: map[string]bool{"assign-u1": true}}
	push := &mockPushSender{}
	n := newTestNotifier(users, ledger, &mockActionCatalog{}, push, tenUTC)

	result, err := n.Process(context.Background(), ProcessInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Total != 0 || len(push.sends) != 0 {
		t.Errorf("expected already-notified user skipped, got %+v", result)
	}
}

func TestProcessSkipsDisabledPreferences(t *testing.T) {
	disabled := notifiable("u1", "dev-1", "")
	disabled.Preferences = types.Preferences{"notificationsDisabled": true}
	users := &mockNotifierUsers{users: []*types.NotifiableUser{disabled}}
	push := &mockPushSender{}
	n := newTestNotifier(users, &mockLedger{}, &mockActionCatalog{}, push, tenUTC)

	result, err := n.Process(context.Background(), ProcessInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Total != 0 || len(push.sends) != 0 {
		t.Errorf("expected opted-out user skipped, got %+v", result)
	}
}

func TestProcessTestModeBypassesLedgerAndWindow(t *testing.T) {
	users := &mockNotifierUsers{users: []*types.NotifiableUser{notifiable("u1", "dev-1", "")}}
	ledger := &mockLedger{sent: map[string]bool{"assign-u1": true}}
	push := &mockPushSender{}
	// 03:00 UTC, far outside the window; test mode sends anyway.
	n := newTestNotifier(users, ledger, &mockActionCatalog{}, push,
		time.Date(2026, 3, 15, 3, 0, 0, 0, time.UTC))

	result, err := n.Process(context.Background(), ProcessInput{TestMode: true, TestUserID: "u1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Total != 1 || result.Successful != 1 {
		t.Fatalf("expected test-mode send, got %+v", result)
	}
	if users.lastUserID != "u1" {
		t.Errorf("expected eligibility query narrowed to u1, got %q", users.lastUserID)
	}
}

func TestProcessTestHourOverridesUTCFallbackOnly(t *testing.T) {
	users := &mockNotifierUsers{users: []*types.NotifiableUser{
		notifiable("utc", "dev-utc", ""),
		notifiable("tokyo", "dev-tokyo", "Asia/Tokyo"),
	}}
	push := &mockPushSender{}
	// 03:00 UTC is 12:00 in Tokyo, outside the window. The test hour pushes
	// the UTC-fallback user into the window but must not move Tokyo.
	hour := 10
	n := newTestNotifier(users, &mockLedger{}, &mockActionCatalog{}, push,
		time.Date(2026, 3, 15, 3, 0, 0, 0, time.UTC))

	result, err := n.Process(context.Background(), ProcessInput{TestHour: &hour})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Total != 1 {
		t.Fatalf("expected only the UTC-fallback user in window, got %+v", result)
	}
	if len(push.sends) != 1 || push.sends[0].deviceID != "dev-utc" {
		t.Errorf("expected push to dev-utc only, got %v", push.sends)
	}
}

func TestProcessPushFailureIsolated(t *testing.T) {
	users := &mockNotifierUsers{users: []*types.NotifiableUser{
		notifiable("u1", "dev-1", ""),
		notifiable("u2", "dev-2", ""),
	}}
	ledger := &mockLedger{}
	push := &mockPushSender{failFor: map[string]bool{"dev-1": true}}
	n := newTestNotifier(users, ledger, &mockActionCatalog{}, push, tenUTC)

	result, err := n.Process(context.Background(), ProcessInput{})
	if err != nil {
		t.Fatalf("expected per-user failure isolation, got: %v", err)
	}
	if result.Total != 2 || result.Successful != 1 || result.Failed != 1 {
		t.Fatalf("expected 1 success and 1 failure, got %+v", result)
	}
	var failedDetail *NotificationDetail
	for i := range result.Details {
		if !result.Details[i].Success {
			failedDetail = &result.Details[i]
		}
	}
	if failedDetail == nil || failedDetail.UserID != "u1" || failedDetail.Error == "" {
		t.Errorf("expected failure detail for u1, got %+v", result.Details)
	}
	// Failed sends must not land in the ledger.
	if len(ledger.records) != 1 || ledger.records[0] != "assign-u2" {
		t.Errorf("expected only assign-u2 recorded, got %v", ledger.records)
	}
}

func TestProcessUnresolvedActionUsesDefaultBody(t *testing.T) {
	users := &mockNotifierUsers{users: []*types.NotifiableUser{notifiable("u1", "dev-1", "")}}
	push := &mockPushSender{}
	n := newTestNotifier(users, &mockLedger{}, &mockActionCatalog{}, push, tenUTC)

	result, err := n.Process(context.Background(), ProcessInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Successful != 1 {
		t.Fatalf("expected send despite unresolved action, got %+v", result)
	}
	if push.sends[0].body != DefaultPushBody {
		t.Errorf("expected default body %q, got %q", DefaultPushBody, push.sends[0].body)
	}
}

func TestProcessEligibilityQueryFailureIsFatal(t *testing.T) {
	users := &mockNotifierUsers{listErr: fmt.Errorf("simulated query failure")}
	n := newTestNotifier(users, &mockLedger{}, &mockActionCatalog{}, &mockPushSender{}, tenUTC)

	if _, err := n.Process(context.Background(), ProcessInput{}); err == nil {
		t.Fatal("expected error when eligibility query fails")
	}
}

func TestProcessLedgerReadFailureSkipsUser(t *testing.T) {
	users := &mockNotifierUsers{users: []*types.NotifiableUser{notifiable("u1", "dev-1", "")}}
	ledger := &mockLedger{existsErr: fmt.Errorf("simulated ledger failure")}
	push := &mockPushSender{}
	n := newTestNotifier(users, ledger, &mockActionCatalog{}, push, tenUTC)

	result, err := n.Process(context.Background(), ProcessInput{})
	if err != nil {
		t.Fatalf("expected ledger read failure to skip the user, got: %v", err)
	}
	if result.Total != 0 || len(push.sends) != 0 {
		t.Errorf("expected no sends, got %+v", result)
	}
}
