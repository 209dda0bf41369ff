package alerting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type fakeRegistry struct {
	devices       Devices
	err           error
	disabledExpo  []string
	disabledWeb   []string
	requestedUser uuid.UUID
	lookupCtxErr  error
}

func (f *fakeRegistry) GetUserDevices(ctx context.Context, userID uuid.UUID) (Devices, error) {
	f.requestedUser = userID
	f.lookupCtxErr = ctx.Err()
	return f.devices, f.err
}

func (f *fakeRegistry) DisableExpoToken(_ context.Context, token string) error {
	f.disabledExpo = append(f.disabledExpo, token)
	return nil
}

func (f *fakeRegistry) DisableWebPushEndpoint(_ context.Context, endpoint string) error {
	f.disabledWeb = append(f.disabledWeb, endpoint)
	return nil
}

type fakeMobile struct {
	got []string
	res Result
}

func (f *fakeMobile) Send(_ context.Context, tokens []string, _ Notification) Result {
	f.got = tokens
	return f.res
}

type fakeBrowser struct {
	got []WebPushSubscription
	res Result
}

func (f *fakeBrowser) Send(_ context.Context, subs []WebPushSubscription, _ Notification) Result {
	f.got = subs
	return f.res
}

type fakeMirror struct {
	calls int
	err   error
}

func (f *fakeMirror) Notify(context.Context, Notification) error {
	f.calls++
	return f.err
}

func TestDispatcherFansOutAndDisablesStaleTargets(t *testing.T) {
	user := uuid.New()
	registry := &fakeRegistry{devices: Devices{
		ExpoTokens: []string{"ExponentPushToken[a]", "ExponentPushToken[b]"},
		WebPush:    []WebPushSubscription{{Endpoint: "https://push.example/1"}},
	}}
	mobile := &fakeMobile{res: Result{Attempted: 2, Delivered: 1, Failed: 1, Stale: []string{"ExponentPushToken[b]"}}}
	browser := &fakeBrowser{res: Result{Attempted: 1, Failed: 1, Stale: []string{"https://push.example/1"}}}
	mirror := &fakeMirror{err: errors.New("telegram down")}

	d := NewDispatcher(registry, mobile, browser, mirror, zerolog.Nop())
	if err := d.Notify(context.Background(), Notification{UserID: user, Title: "t"}); err != nil {
		t.Fatalf("notify: %v", err)
	}

	if registry.requestedUser != user {
		t.Fatalf("devices resolved for wrong user")
	}
	if len(mobile.got) != 2 || len(browser.got) != 1 {
		t.Fatalf("channels not invoked with all devices")
	}
	if mirror.calls != 1 {
		t.Fatalf("mirror calls = %d", mirror.calls)
	}
	if len(registry.disabledExpo) != 1 || registry.disabledExpo[0] != "ExponentPushToken[b]" {
		t.Fatalf("disabled expo = %v", registry.disabledExpo)
	}
	if len(registry.disabledWeb) != 1 {
		t.Fatalf("disabled web = %v", registry.disabledWeb)
	}
}

func TestDispatcherReturnsDeviceLookupError(t *testing.T) {
	registry := &fakeRegistry{err: errors.New("db down")}
	mobile := &fakeMobile{}
	d := NewDispatcher(registry, mobile, nil, nil, zerolog.Nop())

	if err := d.Notify(context.Background(), Notification{UserID: uuid.New()}); err == nil {
		t.Fatal("expected lookup error")
	}
	if mobile.got != nil {
		t.Fatal("no channel should be attempted without devices")
	}
}

func TestDispatcherSkipsUsersWithoutDevices(t *testing.T) {
	mobile := &fakeMobile{}
	browser := &fakeBrowser{}
	d := NewDispatcher(&fakeRegistry{}, mobile, browser, nil, zerolog.Nop())

	if err := d.Notify(context.Background(), Notification{UserID: uuid.New()}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if mobile.got != nil || browser.got != nil {
		t.Fatal("channels should not be called")
	}
}

func TestDispatcherToleratesMissingChannels(t *testing.T) {
	registry := &fakeRegistry{devices: Devices{ExpoTokens: []string{"ExponentPushToken[a]"}}}
	d := NewDispatcher(registry, nil, nil, nil, zerolog.Nop())
	if err := d.Notify(context.Background(), Notification{UserID: uuid.New()}); err != nil {
		t.Fatalf("notify: %v", err)
	}
}

type stallingMirror struct{}

func (stallingMirror) Notify(ctx context.Context, _ Notification) error {
	<-ctx.Done()
	return ctx.Err()
}

type ctxMobile struct {
	called bool
	ctxErr error
}

func (m *ctxMobile) Send(ctx context.Context, tokens []string, _ Notification) Result {
	m.called = true
	m.ctxErr = ctx.Err()
	return Result{Attempted: len(tokens), Delivered: len(tokens)}
}

func TestDispatcherStalledMirrorLeavesDevicesTheirOwnBudget(t *testing.T) {
	registry := &fakeRegistry{devices: Devices{ExpoTokens: []string{"ExponentPushToken[a]"}}}
	mobile := &ctxMobile{}
	d := NewDispatcher(registry, mobile, nil, stallingMirror{}, zerolog.Nop()).
		WithOperationTimeout(50 * time.Millisecond)

	if err := d.Notify(context.Background(), Notification{UserID: uuid.New()}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if registry.lookupCtxErr != nil {
		t.Fatalf("device lookup ran with an expired context: %v", registry.lookupCtxErr)
	}
	if !mobile.called || mobile.ctxErr != nil {
		t.Fatalf("mobile called=%v ctxErr=%v", mobile.called, mobile.ctxErr)
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
