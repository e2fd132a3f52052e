package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/luxbind/wiz-core/internal/homeconfig"
	"github.com/luxbind/wiz-core/internal/identity"
	"github.com/luxbind/wiz-core/internal/infrastructure/database"
	"github.com/luxbind/wiz-core/internal/naming"
	"github.com/luxbind/wiz-core/internal/wizlan"
)

const (
	onboardedSlot    = "onboarded"
	onboardedVersion = 1

	janitorInterval = time.Minute
)

// Logger defines the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Scanner discovers bulbs on the local network.
type Scanner interface {
	Scan(ctx context.Context, broadcastAddr string, window time.Duration) ([]wizlan.DiscoveredBulb, error)
}

// Fetcher downloads home documents.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*homeconfig.HomeDocument, error)
}

// EntryStore is the committed-entry persistence the flow needs.
type EntryStore interface {
	List(ctx context.Context) ([]identity.BindingEntry, error)
	KnownIdentities(ctx context.Context) (macs, hosts map[string]bool, err error)
	SharedHomeLink(ctx context.Context) (string, error)
	Rebind(ctx context.Context, mac, host string) (*identity.BindingEntry, bool, error)
	Commit(ctx context.Context, entry *identity.BindingEntry) (rebound bool, err error)
	RenameEntry(ctx context.Context, mac, title string) error
}

// HomeStore is the home-document persistence the flow needs.
type HomeStore interface {
	HasConfig(ctx context.Context) (bool, error)
	Document(ctx context.Context) (*homeconfig.HomeDocument, error)
	Save(ctx context.Context, source string, doc *homeconfig.HomeDocument) error
	Clear(ctx context.Context) error
	Source(ctx context.Context) (string, error)
}

// KeyValue is the small-state persistence used for the onboarded flag.
type KeyValue interface {
	Get(ctx context.Context, slot string, version int) (string, error)
	Put(ctx context.Context, slot string, version int, value string) error
}

// EventSink receives flow outcomes for fan-out (mqtt, websocket,
// metrics).
type EventSink interface {
	BindingCommitted(ctx context.Context, entry *identity.BindingEntry, trigger Trigger, rebound bool)
	BindingAborted(ctx context.Context, flowID, reason string, trigger Trigger)
	ScanCompleted(ctx context.Context, broadcast string, found int, duration time.Duration)
	ValidationCompleted(ctx context.Context, host, outcome string, duration time.Duration)
}

// NoopSink discards all events.
type NoopSink struct{}

func (NoopSink) BindingCommitted(context.Context, *identity.BindingEntry, Trigger, bool) {}
func (NoopSink) BindingAborted(context.Context, string, string, Trigger)                 {}
func (NoopSink) ScanCompleted(context.Context, string, int, time.Duration)               {}
func (NoopSink) ValidationCompleted(context.Context, string, string, time.Duration)      {}

// Config holds flow behaviour settings.
type Config struct {
	// BroadcastAddress is where discovery probes are sent.
	BroadcastAddress string

	// ScanWindow bounds a single discovery scan.
	ScanWindow time.Duration

	// HomeLinkPrefix is the allow-listed prefix for home-config links.
	HomeLinkPrefix string

	// SessionTTL is how long an idle session survives.
	SessionTTL time.Duration

	// RediscoveryInterval is the period of the background scan. Zero
	// disables it.
	RediscoveryInterval time.Duration
}

// Deps are the collaborators a Manager needs.
type Deps struct {
	Validator *Validator
	Scanner   Scanner
	Entries   EntryStore
	Home      HomeStore
	Fetcher   Fetcher
	Resolver  *naming.Resolver
	KV        KeyValue
	Events    EventSink
	Logger    Logger
}

// Manager owns flow sessions and advances them through the binding
// state machine. Sessions are independent; only the commit at the end
// serializes on the entry store.
type Manager struct {
	cfg       Config
	validator *Validator
	scanner   Scanner
	entries   EntryStore
	home      HomeStore
	fetcher   Fetcher
	resolver  *naming.Resolver
	kv        KeyValue
	events    EventSink
	logger    Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a flow manager.
func NewManager(cfg Config, deps Deps) *Manager {
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = 10 * time.Minute
	}
	m := &Manager{
		cfg:       cfg,
		validator: deps.Validator,
		scanner:   deps.Scanner,
		entries:   deps.Entries,
		home:      deps.Home,
		fetcher:   deps.Fetcher,
		resolver:  deps.Resolver,
		kv:        deps.KV,
		events:    deps.Events,
		logger:    deps.Logger,
		sessions:  make(map[string]*Session),
	}
	if m.events == nil {
		m.events = NoopSink{}
	}
	if m.logger == nil {
		m.logger = noopLogger{}
	}
	return m
}

// StartUser opens a user-initiated flow and returns its first form.
// On first setup (no stored home config) the form carries an optional
// home-link field.
func (m *Manager) StartUser(ctx context.Context) (Result, error) {
	sess := m.newSession(TriggerUser)
	sess.State = StateAwaitingUserHost

	showLink, err := m.isFirstSetup(ctx)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Type:     ResultForm,
		FlowID:   sess.ID,
		Step:     StepUser,
		ShowLink: showLink,
	}, nil
}

// SubmitUser advances a user flow with the submitted host and optional
// home link. An empty host redirects to the scan-and-pick step.
func (m *Manager) SubmitUser(ctx context.Context, flowID, host, homeLink string) (Result, error) {
	sess, err := m.session(flowID)
	if err != nil {
		return Result{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.State != StateAwaitingUserHost {
		return Result{}, fmt.Errorf("%w: state %s", ErrInvalidStep, sess.State)
	}
	sess.touch()

	if homeLink != "" {
		if err := m.ImportHomeConfig(ctx, homeLink); err != nil {
			m.logger.Warn("home link import failed",
				"flow_id", sess.ID,
				"link", homeLink,
				"error", err.Error(),
			)
			return Result{
				Type:     ResultForm,
				FlowID:   sess.ID,
				Step:     StepUser,
				Errors:   map[string]string{"base": errKeyInvalidLink},
				ShowLink: true,
			}, nil
		}
	}

	if host == "" {
		return m.startPick(ctx, sess)
	}

	bt, mac, err := m.validate(ctx, host)
	if err != nil {
		showLink, ferr := m.isFirstSetup(ctx)
		if ferr != nil {
			return Result{}, ferr
		}
		return Result{
			Type:     ResultForm,
			FlowID:   sess.ID,
			Step:     StepUser,
			Errors:   fieldErrorsFor(err),
			ShowLink: showLink,
		}, nil
	}

	return m.resolveAndCommit(ctx, sess, host, bt, mac)
}

// startPick scans the network and presents the unbound devices found.
func (m *Manager) startPick(ctx context.Context, sess *Session) (Result, error) {
	sess.State = StateDiscovering

	start := time.Now()
	found, err := m.scanner.Scan(ctx, m.cfg.BroadcastAddress, m.cfg.ScanWindow)
	if err != nil {
		return Result{}, fmt.Errorf("scanning for devices: %w", err)
	}
	m.events.ScanCompleted(ctx, m.cfg.BroadcastAddress, len(found), time.Since(start))

	knownMACs, knownHosts, err := m.entries.KnownIdentities(ctx)
	if err != nil {
		return Result{}, err
	}

	sess.scanned = make(map[string]wizlan.DiscoveredBulb)
	choices := make(map[string]string)
	for _, bulb := range found {
		if knownMACs[bulb.MACAddress] || knownHosts[bulb.IPAddress] {
			continue
		}
		sess.scanned[bulb.MACAddress] = bulb
		choices[bulb.MACAddress] = m.resolver.DiscoveryLabel(bulb.MACAddress, bulb.IPAddress)
	}

	if len(choices) == 0 {
		return m.abort(ctx, sess, AbortNoDevicesFound), nil
	}
	return Result{
		Type:    ResultForm,
		FlowID:  sess.ID,
		Step:    StepPickDevice,
		Choices: choices,
	}, nil
}

// PickDevice advances a pick step with the chosen MAC.
func (m *Manager) PickDevice(ctx context.Context, flowID, mac string) (Result, error) {
	sess, err := m.session(flowID)
	if err != nil {
		return Result{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.State != StateDiscovering || sess.scanned == nil {
		return Result{}, fmt.Errorf("%w: state %s", ErrInvalidStep, sess.State)
	}
	sess.touch()

	norm, err := identity.NormalizeMAC(mac)
	if err != nil {
		return m.abort(ctx, sess, AbortNoDeviceFound), nil
	}
	bulb, ok := sess.scanned[norm]
	if !ok {
		return m.abort(ctx, sess, AbortNoDeviceFound), nil
	}

	bt, deviceMAC, err := m.validate(ctx, bulb.IPAddress)
	if err != nil {
		choices := make(map[string]string, len(sess.scanned))
		for k, b := range sess.scanned {
			choices[k] = m.resolver.DiscoveryLabel(k, b.IPAddress)
		}
		return Result{
			Type:    ResultForm,
			FlowID:  sess.ID,
			Step:    StepPickDevice,
			Errors:  fieldErrorsFor(err),
			Choices: choices,
		}, nil
	}

	return m.resolveAndCommit(ctx, sess, bulb.IPAddress, bt, deviceMAC)
}

// StartHint opens a flow for an out-of-band discovered device. A
// device that is already bound gets its host refreshed and the flow
// aborts with already_configured. On a system that is already
// onboarded the device is validated and committed without user
// interaction; otherwise a confirm form is presented, named after the
// validated device.
func (m *Manager) StartHint(ctx context.Context, bulb wizlan.DiscoveredBulb) (Result, error) {
	norm, err := identity.NormalizeMAC(bulb.MACAddress)
	if err != nil {
		return Result{}, fmt.Errorf("hint with invalid mac %q: %w", bulb.MACAddress, err)
	}
	bulb.MACAddress = norm

	sess := m.newSession(TriggerHint)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.hinted = &bulb

	_, rebound, err := m.entries.Rebind(ctx, norm, bulb.IPAddress)
	if err != nil {
		return Result{}, err
	}
	if rebound {
		return m.abort(ctx, sess, AbortAlreadyConfigured), nil
	}

	bt, deviceMAC, err := m.validate(ctx, bulb.IPAddress)
	if err != nil {
		// Passive flow: nobody is there to see a form again.
		return m.abort(ctx, sess, AbortCannotConnect), nil
	}

	onboarded, err := m.IsOnboarded(ctx)
	if err != nil {
		return Result{}, err
	}
	if onboarded {
		return m.resolveAndCommit(ctx, sess, bulb.IPAddress, bt, deviceMAC)
	}

	sess.State = StateConfirmingDiscovered

	title, err := m.resolveTitle(ctx, bt, deviceMAC)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Type:         ResultForm,
		FlowID:       sess.ID,
		Step:         StepDiscoveryConfirm,
		Placeholders: map[string]string{"name": title},
	}, nil
}

// Confirm advances a hinted flow past its confirmation form. The
// device is validated again at submit time; it may have dropped off
// the network since the form was shown.
func (m *Manager) Confirm(ctx context.Context, flowID string) (Result, error) {
	sess, err := m.session(flowID)
	if err != nil {
		return Result{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.State != StateConfirmingDiscovered || sess.hinted == nil {
		return Result{}, fmt.Errorf("%w: state %s", ErrInvalidStep, sess.State)
	}
	sess.touch()

	bt, deviceMAC, err := m.validate(ctx, sess.hinted.IPAddress)
	if err != nil {
		return m.abort(ctx, sess, AbortCannotConnect), nil
	}

	return m.resolveAndCommit(ctx, sess, sess.hinted.IPAddress, bt, deviceMAC)
}

// Sessions returns the ids and states of unexpired sessions, for
// inspection interfaces.
func (m *Manager) Sessions() map[string]State {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]State, len(m.sessions))
	for id, sess := range m.sessions {
		sess.mu.Lock()
		out[id] = sess.State
		sess.mu.Unlock()
	}
	return out
}

// resolveAndCommit runs the tail of the state machine: resolve the
// identity, name the device, and commit the entry. Nothing is written
// before the name is known.
func (m *Manager) resolveAndCommit(ctx context.Context, sess *Session, host string, bt wizlan.BulbType, mac string) (Result, error) {
	sess.State = StateResolvingIdentity

	norm, err := identity.NormalizeMAC(mac)
	if err != nil {
		return Result{}, fmt.Errorf("device reported invalid mac %q: %w", mac, err)
	}

	sess.State = StateNaming
	title, err := m.resolveTitle(ctx, bt, norm)
	if err != nil {
		return Result{}, err
	}

	link, err := m.entries.SharedHomeLink(ctx)
	if err != nil {
		return Result{}, err
	}
	if link == "" {
		src, err := m.home.Source(ctx)
		if err != nil {
			return Result{}, err
		}
		if strings.HasPrefix(src, "http") {
			link = src
		}
	}

	entry := &identity.BindingEntry{
		UniqueID: norm,
		Host:     host,
		Title:    title,
		HomeLink: link,
	}
	rebound, err := m.entries.Commit(ctx, entry)
	if err != nil {
		return Result{}, err
	}
	if err := m.markOnboarded(ctx); err != nil {
		m.logger.Warn("failed to persist onboarded flag", "error", err.Error())
	}

	sess.State = StateCommitted
	sess.touch()
	m.events.BindingCommitted(ctx, entry, sess.Trigger, rebound)
	m.logger.Info("binding flow committed",
		"flow_id", sess.ID,
		"unique_id", entry.UniqueID,
		"host", entry.Host,
		"title", entry.Title,
		"trigger", string(sess.Trigger),
		"rebound", rebound,
	)
	return Result{
		Type:   ResultEntry,
		FlowID: sess.ID,
		Entry:  entry,
	}, nil
}

// validate runs a validation attempt and reports its outcome to the
// event sink.
func (m *Manager) validate(ctx context.Context, host string) (wizlan.BulbType, string, error) {
	start := time.Now()
	bt, mac, err := m.validator.ValidateAndIdentify(ctx, host)
	if outcome, ok := validationOutcome(err); ok {
		m.events.ValidationCompleted(ctx, host, outcome, time.Since(start))
	}
	return bt, mac, err
}

// validationOutcome maps a validation error to a metric outcome. Input
// errors never reach the network and are not reported.
func validationOutcome(err error) (string, bool) {
	switch {
	case err == nil:
		return "ok", true
	case errors.Is(err, wizlan.ErrTimeout):
		return "timeout", true
	case errors.Is(err, wizlan.ErrConnectionFailed):
		return "cannot_connect", true
	case errors.Is(err, ErrUnknown):
		return "unknown", true
	default:
		return "", false
	}
}

// resolveTitle names a device, enriched from the home document when it
// is present.
func (m *Manager) resolveTitle(ctx context.Context, bt wizlan.BulbType, mac string) (string, error) {
	doc, err := m.home.Document(ctx)
	if errors.Is(err, homeconfig.ErrNoConfig) {
		doc = nil
	} else if err != nil {
		return "", err
	}
	return m.resolver.FullName(bt, mac, doc), nil
}

func (m *Manager) abort(ctx context.Context, sess *Session, reason string) Result {
	sess.State = StateAborted
	sess.touch()
	m.events.BindingAborted(ctx, sess.ID, reason, sess.Trigger)
	m.logger.Info("binding flow aborted",
		"flow_id", sess.ID,
		"reason", reason,
		"trigger", string(sess.Trigger),
	)
	return Result{
		Type:        ResultAbort,
		FlowID:      sess.ID,
		AbortReason: reason,
	}
}

// isFirstSetup reports whether no home document has been stored yet.
func (m *Manager) isFirstSetup(ctx context.Context) (bool, error) {
	has, err := m.home.HasConfig(ctx)
	if err != nil {
		return false, err
	}
	return !has, nil
}

// IsOnboarded reports whether a binding has ever been committed.
func (m *Manager) IsOnboarded(ctx context.Context) (bool, error) {
	value, err := m.kv.Get(ctx, onboardedSlot, onboardedVersion)
	if errors.Is(err, database.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return value == "true", nil
}

func (m *Manager) markOnboarded(ctx context.Context) error {
	return m.kv.Put(ctx, onboardedSlot, onboardedVersion, "true")
}

func (m *Manager) newSession(trigger Trigger) *Session {
	sess := &Session{
		ID:        uuid.NewString(),
		State:     StateStart,
		Trigger:   trigger,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	m.mu.Lock()
	m.sessions[sess.ID] = sess
	m.mu.Unlock()
	return sess
}

func (m *Manager) session(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, nil
}

// RunJanitor expires idle and finished sessions until ctx is done.
func (m *Manager) RunJanitor(ctx context.Context) {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.expireSessions()
		}
	}
}

func (m *Manager) expireSessions() {
	cutoff := time.Now().Add(-m.cfg.SessionTTL)

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, sess := range m.sessions {
		sess.mu.Lock()
		stale := sess.terminal() || sess.UpdatedAt.Before(cutoff)
		sess.mu.Unlock()
		if stale {
			delete(m.sessions, id)
		}
	}
}

// RunRediscovery periodically scans the network and feeds unbound
// devices into the hint path, until ctx is done.
func (m *Manager) RunRediscovery(ctx context.Context) {
	if m.cfg.RediscoveryInterval <= 0 {
		return
	}
	ticker := time.NewTicker(m.cfg.RediscoveryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.rediscover(ctx)
		}
	}
}

func (m *Manager) rediscover(ctx context.Context) {
	start := time.Now()
	found, err := m.scanner.Scan(ctx, m.cfg.BroadcastAddress, m.cfg.ScanWindow)
	if err != nil {
		m.logger.Warn("background scan failed", "error", err.Error())
		return
	}
	m.events.ScanCompleted(ctx, m.cfg.BroadcastAddress, len(found), time.Since(start))

	knownMACs, knownHosts, err := m.entries.KnownIdentities(ctx)
	if err != nil {
		m.logger.Warn("listing known identities failed", "error", err.Error())
		return
	}

	for _, bulb := range found {
		if knownMACs[bulb.MACAddress] || knownHosts[bulb.IPAddress] {
			continue
		}
		result, err := m.StartHint(ctx, bulb)
		if err != nil {
			m.logger.Warn("rediscovery hint failed",
				"mac", bulb.MACAddress,
				"error", err.Error(),
			)
			continue
		}
		m.logger.Debug("rediscovery hint processed",
			"mac", bulb.MACAddress,
			"result", string(result.Type),
		)
	}
}
