package flow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/luxbind/wiz-core/internal/homeconfig"
	"github.com/luxbind/wiz-core/internal/identity"
	"github.com/luxbind/wiz-core/internal/infrastructure/database"
	"github.com/luxbind/wiz-core/internal/naming"
	"github.com/luxbind/wiz-core/internal/wizlan"
)

// mockEntries is an in-memory EntryStore with the same idempotent
// commit semantics as the real one.
type mockEntries struct {
	mu      sync.Mutex
	entries map[string]*identity.BindingEntry
}

func newMockEntries() *mockEntries {
	return &mockEntries{entries: make(map[string]*identity.BindingEntry)}
}

func (m *mockEntries) List(_ context.Context) ([]identity.BindingEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]identity.BindingEntry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, *e)
	}
	return out, nil
}

func (m *mockEntries) KnownIdentities(_ context.Context) (map[string]bool, map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	macs := make(map[string]bool)
	hosts := make(map[string]bool)
	for _, e := range m.entries {
		macs[e.UniqueID] = true
		hosts[e.Host] = true
	}
	return macs, hosts, nil
}

func (m *mockEntries) SharedHomeLink(_ context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.HomeLink != "" {
			return e.HomeLink, nil
		}
	}
	return "", nil
}

func (m *mockEntries) Rebind(_ context.Context, mac, host string) (*identity.BindingEntry, bool, error) {
	norm, err := identity.NormalizeMAC(mac)
	if err != nil {
		return nil, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[norm]
	if !ok {
		return nil, false, nil
	}
	e.Host = host
	return e.Clone(), true, nil
}

func (m *mockEntries) Commit(_ context.Context, entry *identity.BindingEntry) (bool, error) {
	norm, err := identity.NormalizeMAC(entry.UniqueID)
	if err != nil {
		return false, err
	}
	entry.UniqueID = norm
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.entries[norm]; ok {
		existing.Host = entry.Host
		return true, nil
	}
	m.entries[norm] = entry.Clone()
	return false, nil
}

func (m *mockEntries) RenameEntry(_ context.Context, mac, title string) error {
	norm, err := identity.NormalizeMAC(mac)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[norm]
	if !ok {
		return identity.ErrEntryNotFound
	}
	e.Title = title
	return nil
}

// mockHome is an in-memory HomeStore.
type mockHome struct {
	mu     sync.Mutex
	source string
	doc    *homeconfig.HomeDocument
}

func (m *mockHome) HasConfig(_ context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.doc != nil, nil
}

func (m *mockHome) Document(_ context.Context) (*homeconfig.HomeDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.doc == nil {
		return nil, homeconfig.ErrNoConfig
	}
	return m.doc, nil
}

func (m *mockHome) Save(_ context.Context, source string, doc *homeconfig.HomeDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.source = source
	m.doc = doc
	return nil
}

func (m *mockHome) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.source = ""
	m.doc = nil
	return nil
}

func (m *mockHome) Source(_ context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.source, nil
}

// mockFetcher is a scripted Fetcher that counts fetches.
type mockFetcher struct {
	doc     *homeconfig.HomeDocument
	err     error
	fetches int
}

func (m *mockFetcher) Fetch(_ context.Context, url string) (*homeconfig.HomeDocument, error) {
	m.fetches++
	if m.err != nil {
		return nil, m.err
	}
	return m.doc, nil
}

// mockScanner returns a scripted scan answer.
type mockScanner struct {
	bulbs []wizlan.DiscoveredBulb
	err   error
	scans int
}

func (m *mockScanner) Scan(_ context.Context, _ string, _ time.Duration) ([]wizlan.DiscoveredBulb, error) {
	m.scans++
	if m.err != nil {
		return nil, m.err
	}
	return m.bulbs, nil
}

// mockKV is an in-memory KeyValue.
type mockKV struct {
	mu     sync.Mutex
	values map[string]string
}

func newMockKV() *mockKV {
	return &mockKV{values: make(map[string]string)}
}

func (m *mockKV) key(slot string, version int) string {
	return fmt.Sprintf("%s/%d", slot, version)
}

func (m *mockKV) Get(_ context.Context, slot string, version int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[m.key(slot, version)]
	if !ok {
		return "", database.ErrKeyNotFound
	}
	return v, nil
}

func (m *mockKV) Put(_ context.Context, slot string, version int, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[m.key(slot, version)] = value
	return nil
}

type scanRecord struct {
	broadcast string
	found     int
}

type validationRecord struct {
	host    string
	outcome string
}

// recordSink captures emitted events.
type recordSink struct {
	mu          sync.Mutex
	committed   []*identity.BindingEntry
	aborted     []string
	scans       []scanRecord
	validations []validationRecord
}

func (s *recordSink) BindingCommitted(_ context.Context, entry *identity.BindingEntry, _ Trigger, _ bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.committed = append(s.committed, entry)
}

func (s *recordSink) BindingAborted(_ context.Context, _, reason string, _ Trigger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aborted = append(s.aborted, reason)
}

func (s *recordSink) ScanCompleted(_ context.Context, broadcast string, found int, _ time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scans = append(s.scans, scanRecord{broadcast: broadcast, found: found})
}

func (s *recordSink) ValidationCompleted(_ context.Context, host, outcome string, _ time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.validations = append(s.validations, validationRecord{host: host, outcome: outcome})
}

// testEnv bundles a manager with its mocks.
type testEnv struct {
	manager *Manager
	dialer  *mockDialer
	scanner *mockScanner
	entries *mockEntries
	home    *mockHome
	fetcher *mockFetcher
	kv      *mockKV
	sink    *recordSink
}

const allowedPrefix = "https://wiz-s3-local-integration-dev-artifacts"

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		dialer:  &mockDialer{conn: rgbwwConn("a8bb50d46a9f")},
		scanner: &mockScanner{},
		entries: newMockEntries(),
		home:    &mockHome{},
		fetcher: &mockFetcher{},
		kv:      newMockKV(),
		sink:    &recordSink{},
	}
	env.manager = NewManager(
		Config{
			BroadcastAddress: "255.255.255.255",
			ScanWindow:       time.Second,
			HomeLinkPrefix:   allowedPrefix,
			SessionTTL:       time.Minute,
		},
		Deps{
			Validator: NewValidator(env.dialer, time.Second),
			Scanner:   env.scanner,
			Entries:   env.entries,
			Home:      env.home,
			Fetcher:   env.fetcher,
			Resolver:  naming.NewResolver("WiZ"),
			KV:        env.kv,
			Events:    env.sink,
		},
	)
	return env
}

func TestManager_UserFlow_Commit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	start, err := env.manager.StartUser(ctx)
	if err != nil {
		t.Fatalf("StartUser() error = %v", err)
	}
	if start.Type != ResultForm || start.Step != StepUser {
		t.Fatalf("StartUser() = %+v, want user form", start)
	}
	if !start.ShowLink {
		t.Error("ShowLink = false on first setup, want true")
	}

	result, err := env.manager.SubmitUser(ctx, start.FlowID, "192.168.1.44", "")
	if err != nil {
		t.Fatalf("SubmitUser() error = %v", err)
	}
	if result.Type != ResultEntry {
		t.Fatalf("SubmitUser() = %+v, want entry", result)
	}
	if result.Entry.UniqueID != "a8bb50d46a9f" {
		t.Errorf("UniqueID = %q, want %q", result.Entry.UniqueID, "a8bb50d46a9f")
	}
	if result.Entry.Title != "WiZ RGBWW Tunable D46A9F" {
		t.Errorf("Title = %q, want capability name", result.Entry.Title)
	}

	onboarded, err := env.manager.IsOnboarded(ctx)
	if err != nil || !onboarded {
		t.Errorf("IsOnboarded() = %v, %v, want true after commit", onboarded, err)
	}
	if len(env.sink.committed) != 1 {
		t.Errorf("committed events = %d, want 1", len(env.sink.committed))
	}
}

func TestManager_UserFlow_NoLinkFieldAfterSetup(t *testing.T) {
	env := newTestEnv(t)
	env.home.Save(context.Background(), "file:home.json", &homeconfig.HomeDocument{Name: "Casa"})

	start, err := env.manager.StartUser(context.Background())
	if err != nil {
		t.Fatalf("StartUser() error = %v", err)
	}
	if start.ShowLink {
		t.Error("ShowLink = true with stored config, want false")
	}
}

func TestManager_SubmitUser_TimeoutRepresentsForm(t *testing.T) {
	// An interactive timeout keeps the flow alive and marks the form.
	env := newTestEnv(t)
	env.dialer.conn = &mockConn{err: fmt.Errorf("%w: no reply", wizlan.ErrTimeout)}
	ctx := context.Background()

	start, _ := env.manager.StartUser(ctx)
	result, err := env.manager.SubmitUser(ctx, start.FlowID, "192.168.1.44", "")
	if err != nil {
		t.Fatalf("SubmitUser() error = %v", err)
	}
	if result.Type != ResultForm || result.Step != StepUser {
		t.Fatalf("SubmitUser() = %+v, want re-presented user form", result)
	}
	if result.Errors["base"] != "bulb_time_out" {
		t.Errorf("Errors = %v, want base=bulb_time_out", result.Errors)
	}

	// The session is still usable once the bulb answers.
	env.dialer.conn = rgbwwConn("a8bb50d46a9f")
	retry, err := env.manager.SubmitUser(ctx, start.FlowID, "192.168.1.44", "")
	if err != nil {
		t.Fatalf("retry SubmitUser() error = %v", err)
	}
	if retry.Type != ResultEntry {
		t.Errorf("retry = %+v, want entry", retry)
	}
}

func TestManager_SubmitUser_BadHostMarksField(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	start, _ := env.manager.StartUser(ctx)
	result, err := env.manager.SubmitUser(ctx, start.FlowID, "bulb.local", "")
	if err != nil {
		t.Fatalf("SubmitUser() error = %v", err)
	}
	if result.Errors["host"] != "no_ip" {
		t.Errorf("Errors = %v, want host=no_ip", result.Errors)
	}
	if env.dialer.dials != 0 {
		t.Errorf("dials = %d, want 0 for non-IP host", env.dialer.dials)
	}
}

func TestManager_SubmitUser_EmptyHostScansAndPicks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// One already-bound device must be filtered from the choices.
	env.entries.Commit(ctx, &identity.BindingEntry{
		UniqueID: "a8bb50aabbcc", Host: "192.168.1.40", Title: "Bound",
	})
	env.scanner.bulbs = []wizlan.DiscoveredBulb{
		{IPAddress: "192.168.1.40", MACAddress: "a8bb50aabbcc"},
		{IPAddress: "192.168.1.44", MACAddress: "a8bb50d46a9f"},
	}

	start, _ := env.manager.StartUser(ctx)
	result, err := env.manager.SubmitUser(ctx, start.FlowID, "", "")
	if err != nil {
		t.Fatalf("SubmitUser() error = %v", err)
	}
	if result.Type != ResultForm || result.Step != StepPickDevice {
		t.Fatalf("SubmitUser() = %+v, want pick form", result)
	}
	if len(result.Choices) != 1 {
		t.Fatalf("Choices = %v, want the one unbound device", result.Choices)
	}
	if result.Choices["a8bb50d46a9f"] != "WiZ D46A9F (192.168.1.44)" {
		t.Errorf("choice label = %q, want discovery label", result.Choices["a8bb50d46a9f"])
	}

	picked, err := env.manager.PickDevice(ctx, start.FlowID, "a8bb50d46a9f")
	if err != nil {
		t.Fatalf("PickDevice() error = %v", err)
	}
	if picked.Type != ResultEntry || picked.Entry.Host != "192.168.1.44" {
		t.Errorf("PickDevice() = %+v, want committed entry at scanned host", picked)
	}
}

func TestManager_SubmitUser_EmptyScanAborts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	start, _ := env.manager.StartUser(ctx)
	result, err := env.manager.SubmitUser(ctx, start.FlowID, "", "")
	if err != nil {
		t.Fatalf("SubmitUser() error = %v", err)
	}
	if result.Type != ResultAbort || result.AbortReason != AbortNoDevicesFound {
		t.Errorf("result = %+v, want abort no_devices_found", result)
	}
}

func TestManager_PickDevice_UnknownMACAborts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.scanner.bulbs = []wizlan.DiscoveredBulb{
		{IPAddress: "192.168.1.44", MACAddress: "a8bb50d46a9f"},
	}

	start, _ := env.manager.StartUser(ctx)
	if _, err := env.manager.SubmitUser(ctx, start.FlowID, "", ""); err != nil {
		t.Fatalf("SubmitUser() error = %v", err)
	}

	result, err := env.manager.PickDevice(ctx, start.FlowID, "ffeeddccbbaa")
	if err != nil {
		t.Fatalf("PickDevice() error = %v", err)
	}
	if result.Type != ResultAbort || result.AbortReason != AbortNoDeviceFound {
		t.Errorf("result = %+v, want abort no_device_found", result)
	}
}

func TestManager_Hint_AlreadyConfigured(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.entries.Commit(ctx, &identity.BindingEntry{
		UniqueID: "a8bb50d46a9f", Host: "192.168.1.44", Title: "Bound",
	})

	// Same device reappearing at a new address.
	result, err := env.manager.StartHint(ctx, wizlan.DiscoveredBulb{
		IPAddress: "192.168.1.80", MACAddress: "A8:BB:50:D4:6A:9F",
	})
	if err != nil {
		t.Fatalf("StartHint() error = %v", err)
	}
	if result.Type != ResultAbort || result.AbortReason != AbortAlreadyConfigured {
		t.Fatalf("result = %+v, want abort already_configured", result)
	}

	entries, _ := env.entries.List(ctx)
	if len(entries) != 1 || entries[0].Host != "192.168.1.80" {
		t.Errorf("entries = %+v, want single entry re-bound to new host", entries)
	}
}

func TestManager_Hint_TimeoutAbortsPassively(t *testing.T) {
	// On a passive flow there is no form to re-present.
	env := newTestEnv(t)
	env.dialer.conn = &mockConn{err: fmt.Errorf("%w: no reply", wizlan.ErrTimeout)}

	result, err := env.manager.StartHint(context.Background(), wizlan.DiscoveredBulb{
		IPAddress: "192.168.1.44", MACAddress: "a8bb50d46a9f",
	})
	if err != nil {
		t.Fatalf("StartHint() error = %v", err)
	}
	if result.Type != ResultAbort || result.AbortReason != AbortCannotConnect {
		t.Errorf("result = %+v, want abort cannot_connect", result)
	}
}

func TestManager_Hint_NotOnboardedConfirms(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.manager.StartHint(ctx, wizlan.DiscoveredBulb{
		IPAddress: "192.168.1.44", MACAddress: "a8bb50d46a9f",
	})
	if err != nil {
		t.Fatalf("StartHint() error = %v", err)
	}
	if result.Type != ResultForm || result.Step != StepDiscoveryConfirm {
		t.Fatalf("result = %+v, want confirm form", result)
	}
	// The device name is known before the user confirms.
	if result.Placeholders["name"] != "WiZ RGBWW Tunable D46A9F" {
		t.Errorf("placeholder name = %q, want resolved name", result.Placeholders["name"])
	}

	confirmed, err := env.manager.Confirm(ctx, result.FlowID)
	if err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}
	if confirmed.Type != ResultEntry {
		t.Errorf("Confirm() = %+v, want entry", confirmed)
	}
}

func TestManager_Hint_OnboardedCommitsImmediately(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.kv.Put(ctx, onboardedSlot, onboardedVersion, "true")

	result, err := env.manager.StartHint(ctx, wizlan.DiscoveredBulb{
		IPAddress: "192.168.1.44", MACAddress: "a8bb50d46a9f",
	})
	if err != nil {
		t.Fatalf("StartHint() error = %v", err)
	}
	if result.Type != ResultEntry {
		t.Errorf("result = %+v, want immediate commit", result)
	}
}

func TestManager_Confirm_DeviceGoneAborts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.manager.StartHint(ctx, wizlan.DiscoveredBulb{
		IPAddress: "192.168.1.44", MACAddress: "a8bb50d46a9f",
	})
	if err != nil {
		t.Fatalf("StartHint() error = %v", err)
	}

	// Device drops off the network between form and confirm.
	env.dialer.conn = &mockConn{err: fmt.Errorf("%w: refused", wizlan.ErrConnectionFailed)}
	confirmed, err := env.manager.Confirm(ctx, result.FlowID)
	if err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}
	if confirmed.Type != ResultAbort || confirmed.AbortReason != AbortCannotConnect {
		t.Errorf("Confirm() = %+v, want abort cannot_connect", confirmed)
	}
}

func TestManager_ImportHomeConfig_RejectsForeignLink(t *testing.T) {
	env := newTestEnv(t)

	err := env.manager.ImportHomeConfig(context.Background(), "https://evil.example/home.json")
	if !errors.Is(err, ErrLinkNotAllowed) {
		t.Errorf("ImportHomeConfig() error = %v, want ErrLinkNotAllowed", err)
	}
	if env.fetcher.fetches != 0 {
		t.Errorf("fetches = %d, want 0 for rejected link", env.fetcher.fetches)
	}
}

func TestManager_ImportHomeConfig_SavesAndRenames(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.entries.Commit(ctx, &identity.BindingEntry{
		UniqueID: "a8bb50d46a9f",
		Host:     "192.168.1.44",
		Title:    "WiZ RGBWW Tunable D46A9F",
	})
	env.fetcher.doc = &homeconfig.HomeDocument{
		Name:  "Casa",
		Rooms: []homeconfig.Room{{RoomID: 4, Name: "Living Room"}},
		Devices: []homeconfig.DeviceRecord{{
			DeviceID: 10, RoomID: 4, Name: "Ceiling", MACAddress: "a8bb50d46a9f",
		}},
	}

	link := allowedPrefix + "/home.json"
	if err := env.manager.ImportHomeConfig(ctx, link); err != nil {
		t.Fatalf("ImportHomeConfig() error = %v", err)
	}

	if src, _ := env.home.Source(ctx); src != link {
		t.Errorf("stored source = %q, want %q", src, link)
	}
	entries, _ := env.entries.List(ctx)
	if entries[0].Title != "Ceiling (Living Room) [WiZ RGBWW Tunable D46A9F]" {
		t.Errorf("Title = %q, want enriched name", entries[0].Title)
	}
}

func TestManager_ImportHomeConfig_RenameToleratesFailures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.entries.Commit(ctx, &identity.BindingEntry{
		UniqueID: "a8bb50d46a9f", Host: "192.168.1.44", Title: "Old",
	})
	env.fetcher.doc = &homeconfig.HomeDocument{Name: "Casa"}
	env.dialer.conn = &mockConn{err: fmt.Errorf("%w: no reply", wizlan.ErrTimeout)}

	// Unreachable device is skipped; the import itself still succeeds.
	if err := env.manager.ImportHomeConfig(ctx, allowedPrefix+"/home.json"); err != nil {
		t.Fatalf("ImportHomeConfig() error = %v", err)
	}
	entries, _ := env.entries.List(ctx)
	if entries[0].Title != "Old" {
		t.Errorf("Title = %q, want unchanged after failed rename", entries[0].Title)
	}
}

func TestManager_SubmitUser_InvalidLinkRepresentsForm(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	start, _ := env.manager.StartUser(ctx)
	result, err := env.manager.SubmitUser(ctx, start.FlowID, "192.168.1.44", "https://evil.example/home.json")
	if err != nil {
		t.Fatalf("SubmitUser() error = %v", err)
	}
	if result.Type != ResultForm || result.Errors["base"] != "invalid_link" {
		t.Errorf("result = %+v, want form with invalid_link", result)
	}
}

func TestManager_SessionLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.manager.SubmitUser(ctx, "no-such-flow", "192.168.1.44", ""); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("SubmitUser(unknown) error = %v, want ErrSessionNotFound", err)
	}

	start, _ := env.manager.StartUser(ctx)
	if _, err := env.manager.Confirm(ctx, start.FlowID); !errors.Is(err, ErrInvalidStep) {
		t.Errorf("Confirm() on user flow error = %v, want ErrInvalidStep", err)
	}

	// Committed sessions get swept.
	if _, err := env.manager.SubmitUser(ctx, start.FlowID, "192.168.1.44", ""); err != nil {
		t.Fatalf("SubmitUser() error = %v", err)
	}
	env.manager.expireSessions()
	if states := env.manager.Sessions(); len(states) != 0 {
		t.Errorf("Sessions() = %v, want empty after sweep", states)
	}
}

func TestManager_ScanReportedToSink(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.scanner.bulbs = []wizlan.DiscoveredBulb{
		{IPAddress: "192.168.1.44", MACAddress: "a8bb50d46a9f"},
		{IPAddress: "192.168.1.45", MACAddress: "a8bb50d46aa0"},
	}

	start, _ := env.manager.StartUser(ctx)
	if _, err := env.manager.SubmitUser(ctx, start.FlowID, "", ""); err != nil {
		t.Fatalf("SubmitUser() error = %v", err)
	}

	if len(env.sink.scans) != 1 {
		t.Fatalf("scan events = %d, want 1", len(env.sink.scans))
	}
	scan := env.sink.scans[0]
	if scan.broadcast != "255.255.255.255" || scan.found != 2 {
		t.Errorf("scan event = %+v, want broadcast and raw found count", scan)
	}
}

func TestManager_Rediscovery_ReportsScan(t *testing.T) {
	env := newTestEnv(t)
	env.manager.rediscover(context.Background())

	if len(env.sink.scans) != 1 {
		t.Fatalf("scan events = %d, want 1 from background scan", len(env.sink.scans))
	}
	if env.sink.scans[0].found != 0 {
		t.Errorf("found = %d, want 0 for empty scan", env.sink.scans[0].found)
	}
}

func TestManager_ValidationOutcomesReportedToSink(t *testing.T) {
	env := newTestEnv(t)
	env.dialer.conn = &mockConn{err: fmt.Errorf("%w: no reply", wizlan.ErrTimeout)}
	ctx := context.Background()

	start, _ := env.manager.StartUser(ctx)
	if _, err := env.manager.SubmitUser(ctx, start.FlowID, "192.168.1.44", ""); err != nil {
		t.Fatalf("SubmitUser() error = %v", err)
	}
	env.dialer.conn = rgbwwConn("a8bb50d46a9f")
	if _, err := env.manager.SubmitUser(ctx, start.FlowID, "192.168.1.44", ""); err != nil {
		t.Fatalf("retry SubmitUser() error = %v", err)
	}

	want := []validationRecord{
		{host: "192.168.1.44", outcome: "timeout"},
		{host: "192.168.1.44", outcome: "ok"},
	}
	if len(env.sink.validations) != len(want) {
		t.Fatalf("validation events = %+v, want %+v", env.sink.validations, want)
	}
	for i, v := range env.sink.validations {
		if v != want[i] {
			t.Errorf("validation[%d] = %+v, want %+v", i, v, want[i])
		}
	}
}

func TestManager_InputErrorsNotReportedToSink(t *testing.T) {
	// A malformed host never reaches the network and produces no
	// validation metric.
	env := newTestEnv(t)
	ctx := context.Background()

	start, _ := env.manager.StartUser(ctx)
	if _, err := env.manager.SubmitUser(ctx, start.FlowID, "bulb.local", ""); err != nil {
		t.Fatalf("SubmitUser() error = %v", err)
	}
	if len(env.sink.validations) != 0 {
		t.Errorf("validation events = %+v, want none for input error", env.sink.validations)
	}
}

func TestManager_Confirm_RevalidatesDevice(t *testing.T) {
	// The entry carries what the device reports at confirm time, not
	// what it reported when the form was shown.
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.manager.StartHint(ctx, wizlan.DiscoveredBulb{
		IPAddress: "192.168.1.44", MACAddress: "a8bb50d46a9f",
	})
	if err != nil {
		t.Fatalf("StartHint() error = %v", err)
	}
	if result.Type != ResultForm || result.Step != StepDiscoveryConfirm {
		t.Fatalf("result = %+v, want confirm form", result)
	}

	// A different unit answers at that address by the time the user
	// confirms.
	env.dialer.conn = rgbwwConn("a8bb50ffee01")
	confirmed, err := env.manager.Confirm(ctx, result.FlowID)
	if err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}
	if confirmed.Type != ResultEntry {
		t.Fatalf("Confirm() = %+v, want entry", confirmed)
	}
	if confirmed.Entry.UniqueID != "a8bb50ffee01" {
		t.Errorf("UniqueID = %q, want identity read at confirm time", confirmed.Entry.UniqueID)
	}
}

func TestManager_ConcurrentSubmitsSerialized(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	start, _ := env.manager.StartUser(ctx)

	var wg sync.WaitGroup
	results := make([]Result, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = env.manager.SubmitUser(ctx, start.FlowID, "192.168.1.44", "")
		}(i)
	}
	wg.Wait()

	var entries, invalid int
	for i := range results {
		switch {
		case errs[i] == nil && results[i].Type == ResultEntry:
			entries++
		case errors.Is(errs[i], ErrInvalidStep):
			invalid++
		default:
			t.Errorf("submit %d = %+v, %v", i, results[i], errs[i])
		}
	}
	if entries != 1 || invalid != 1 {
		t.Errorf("entries = %d, invalid-step = %d, want exactly one of each", entries, invalid)
	}

	stored, _ := env.entries.List(ctx)
	if len(stored) != 1 {
		t.Errorf("stored entries = %d, want 1", len(stored))
	}
	if len(env.sink.committed) != 1 {
		t.Errorf("committed events = %d, want 1", len(env.sink.committed))
	}
}

func TestManager_Rediscovery_FeedsHints(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.kv.Put(ctx, onboardedSlot, onboardedVersion, "true")

	env.entries.Commit(ctx, &identity.BindingEntry{
		UniqueID: "a8bb50aabbcc", Host: "192.168.1.40", Title: "Bound",
	})
	env.scanner.bulbs = []wizlan.DiscoveredBulb{
		{IPAddress: "192.168.1.40", MACAddress: "a8bb50aabbcc"},
		{IPAddress: "192.168.1.44", MACAddress: "a8bb50d46a9f"},
	}

	env.manager.rediscover(ctx)

	entries, _ := env.entries.List(ctx)
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want the unbound device auto-committed", len(entries))
	}
}
