package watershed

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mohammed-shakir/watershed-gateway/internal/core/model"
	"github.com/mohammed-shakir/watershed-gateway/internal/gpmock"
	"github.com/mohammed-shakir/watershed-gateway/internal/identity"
	"github.com/mohammed-shakir/watershed-gateway/internal/view"
)

type fakeProvider struct {
	mu        sync.Mutex
	token     string
	persisted bool
	signIns   int
	destroyed int
	resources []string
}

func (p *fakeProvider) Credential(_ context.Context, resource string) (identity.Credential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resources = append(p.resources, resource)
	if !p.persisted {
		p.signIns++
		p.persisted = true
	}
	return identity.Credential{Token: p.token}, nil
}

func (p *fakeProvider) CheckSignInStatus(context.Context) (identity.Credential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.persisted {
		return identity.Credential{}, identity.ErrNotSignedIn
	}
	return identity.Credential{Token: p.token}, nil
}

func (p *fakeProvider) DestroyCredentials(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.persisted = false
	p.destroyed++
	return nil
}

func (p *fakeProvider) RequiresSignIn() bool { return true }

func (p *fakeProvider) snapshot() (signIns, destroyed int, persisted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.signIns, p.destroyed, p.persisted
}

const testPortal = "https://portal.example.com/sharing"

type harness struct {
	mock *gpmock.Server
	srv  *httptest.Server
	view *view.View
	orch *Orchestrator
	sess *Session
}

func newHarness(t *testing.T, provider identity.Provider, b gpmock.Behavior, useProxy bool) *harness {
	t.Helper()
	mock := gpmock.New(b)
	srv := httptest.NewServer(mock)
	t.Cleanup(srv.Close)

	v := newView()
	o := New(context.Background(), v, Options{Logger: quiet()})
	t.Cleanup(o.Wait)

	cfg := SessionConfig{
		ServiceURL:   srv.URL + gpmock.DefaultTaskPath,
		PortalURL:    testPortal,
		PollInterval: 5 * time.Millisecond,
	}
	if useProxy {
		cfg.ServiceURL = "https://hydro.example.invalid/arcgis/rest/services/Tools/Hydrology/GPServer/Watershed"
		cfg.ProxyURL = srv.URL + gpmock.DefaultTaskPath
	}
	s := NewSession(cfg, provider, o, v, srv.Client(), quiet())
	return &harness{mock: mock, srv: srv, view: v, orch: o, sess: s}
}

func TestSession_ProxyMode(t *testing.T) {
	h := newHarness(t, identity.NewProxy("proxy"), gpmock.Behavior{}, true)
	if err := h.sess.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if p := h.view.Panels(); p.Anonymous || p.Personalized {
		t.Fatalf("panels=%+v want both hidden", p)
	}
	if !h.sess.Ready() {
		t.Fatal("proxy session should be ready at start")
	}
	st := h.sess.State()
	if st.Mode != "proxy" || !strings.HasPrefix(st.ServiceURL, h.srv.URL) {
		t.Fatalf("state=%+v", st)
	}
	if err := h.sess.SignIn(context.Background()); !errors.Is(err, ErrNoSignIn) {
		t.Fatalf("SignIn err=%v", err)
	}
	if err := h.sess.SignOut(context.Background()); !errors.Is(err, ErrNoSignIn) {
		t.Fatalf("SignOut err=%v", err)
	}
}

func TestSession_OAuthSignInAndOut(t *testing.T) {
	prov := &fakeProvider{token: "tok-1"}
	h := newHarness(t, prov, gpmock.Behavior{RequireToken: "tok-1"}, false)
	ctx := context.Background()

	if err := h.sess.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if p := h.view.Panels(); !p.Anonymous || p.Personalized {
		t.Fatalf("panels before sign in=%+v", p)
	}
	if d := h.orch.OnPointSelected(ctx, pt(-116.54, 33.83)); d != DispatchNoClient {
		t.Fatalf("dispatch before sign in=%s", d)
	}

	if err := h.sess.SignIn(ctx); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if p := h.view.Panels(); p.Anonymous || !p.Personalized {
		t.Fatalf("panels after sign in=%+v", p)
	}
	if d := h.orch.OnPointSelected(ctx, pt(-116.54, 33.83)); d != DispatchSubmitted {
		t.Fatalf("dispatch after sign in=%s", d)
	}
	h.orch.Wait()
	if h.view.Watersheds.Len() != 1 {
		t.Fatalf("watersheds=%d; token not accepted?", h.view.Watersheds.Len())
	}
	for _, c := range h.mock.Calls() {
		if c.Values.Get("token") != "tok-1" {
			t.Fatalf("%s call without token", c.Op)
		}
	}

	if err := h.sess.SignOut(ctx); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	if h.sess.Ready() || h.sess.State().SignedIn {
		t.Fatal("still ready after sign out")
	}
	if h.view.Watersheds.Len() != 0 || h.view.FocusPoints.Len() != 0 {
		t.Fatal("sign out must reset the view")
	}
	if p := h.view.Panels(); !p.Anonymous {
		t.Fatalf("panels after sign out=%+v", p)
	}
	if prov.destroyed != 1 {
		t.Fatalf("destroyed=%d", prov.destroyed)
	}
	if len(prov.resources) != 1 || prov.resources[0] != testPortal {
		t.Fatalf("sign in scoped to %v want the portal", prov.resources)
	}
}

func TestSession_SignOutWhileJobInFlight(t *testing.T) {
	gate := make(chan struct{})
	prov := &fakeProvider{token: "tok-1"}
	h := newHarness(t, prov, gpmock.Behavior{RequireToken: "tok-1", Gate: gate}, false)
	ctx := context.Background()

	if err := h.sess.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := h.sess.SignIn(ctx); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if d := h.orch.OnPointSelected(ctx, pt(-116.54, 33.83)); d != DispatchSubmitted {
		t.Fatalf("dispatch=%s", d)
	}

	if err := h.sess.SignOut(ctx); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	if st := h.sess.State(); st.Processing || st.Ready || h.view.Progress().Visible {
		t.Fatalf("state after sign out=%+v", st)
	}

	if err := h.sess.SignIn(ctx); err != nil {
		t.Fatalf("second SignIn: %v", err)
	}
	next := pt(-116.60, 33.90)
	if d := h.orch.OnPointSelected(ctx, next); d != DispatchSubmitted {
		t.Fatalf("click after signing back in=%s want submitted", d)
	}

	close(gate)
	h.orch.Wait()

	if n := h.view.Watersheds.Len(); n != 1 {
		t.Fatalf("watersheds=%d want only the new job's", n)
	}
	pts := markerAt(t, h.view)
	if len(pts) != 1 || pts[0].X != next.X+gpmock.SnapOffset() {
		t.Fatalf("markers=%+v want the snapped point of the new click", pts)
	}
	if signIns, destroyed, _ := prov.snapshot(); signIns != 2 || destroyed != 1 {
		t.Fatalf("signIns=%d destroyed=%d want 2 and 1", signIns, destroyed)
	}
}

func TestSession_SignOutDuringPollingStaysSignedOut(t *testing.T) {
	prov := &fakeProvider{token: "tok-1"}
	h := newHarness(t, prov, gpmock.Behavior{RequireToken: "tok-1", PendingPolls: 1 << 20}, false)
	ctx := context.Background()

	if err := h.sess.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := h.sess.SignIn(ctx); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	h.orch.OnPointSelected(ctx, pt(-116.54, 33.83))

	deadline := time.Now().Add(2 * time.Second)
	for h.mock.Count("jobStatus") < 2 {
		if time.Now().After(deadline) {
			t.Fatal("job never started polling")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err := h.sess.SignOut(ctx); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	h.orch.Wait()

	signIns, destroyed, persisted := prov.snapshot()
	if signIns != 1 || destroyed != 1 || persisted {
		t.Fatalf("signIns=%d destroyed=%d persisted=%v; polling signed the user back in", signIns, destroyed, persisted)
	}
	if h.view.Watersheds.Len() != 0 || h.view.FocusPoints.Len() != 0 {
		t.Fatal("view not empty after sign out")
	}
}

func TestSession_TokenWithoutStoredCredentialFailsJob(t *testing.T) {
	prov := &fakeProvider{token: "tok-1"}
	h := newHarness(t, prov, gpmock.Behavior{RequireToken: "tok-1"}, false)
	ctx := context.Background()
	cs := &cycles{}
	h.orch.SetOnCycle(cs.add)

	if err := h.sess.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := h.sess.SignIn(ctx); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	// the credential goes away behind the session's back
	if err := prov.DestroyCredentials(ctx); err != nil {
		t.Fatalf("DestroyCredentials: %v", err)
	}

	h.orch.OnPointSelected(ctx, pt(-116.54, 33.83))
	h.orch.Wait()

	c := cs.last(t)
	if c.Outcome != OutcomeTransportError || !errors.Is(c.Err, identity.ErrNotSignedIn) {
		t.Fatalf("cycle=%+v want transport error from a missing credential", c)
	}
	if signIns, _, persisted := prov.snapshot(); signIns != 1 || persisted {
		t.Fatalf("signIns=%d persisted=%v; token lookup must not sign in", signIns, persisted)
	}
	if len(h.mock.Calls()) != 0 {
		t.Fatal("request reached the service without a credential")
	}
}

func TestSession_OAuthRestoresPersistedSignIn(t *testing.T) {
	prov := &fakeProvider{token: "tok-1", persisted: true}
	h := newHarness(t, prov, gpmock.Behavior{}, false)
	if err := h.sess.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !h.sess.Ready() || !h.view.Panels().Personalized {
		t.Fatal("persisted sign in not restored")
	}
	if prov.signIns != 0 {
		t.Fatalf("start must not sign in again, signIns=%d", prov.signIns)
	}
}

// The Palm Springs click end to end against the fake service.
func TestScenario_PalmSprings(t *testing.T) {
	h := newHarness(t, identity.NewProxy("proxy"), gpmock.Behavior{PendingPolls: 1}, true)
	ctx := context.Background()
	if err := h.sess.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	click := pt(-116.5403131, 33.8258166)
	if d := h.orch.OnPointSelected(ctx, click); d != DispatchSubmitted {
		t.Fatalf("dispatch=%s", d)
	}
	h.orch.Wait()

	if n := h.mock.Count("submitJob"); n != 1 {
		t.Fatalf("submitJob calls=%d", n)
	}
	sub := h.mock.Calls()[0].Values
	want := map[string]string{
		model.ParamSnapDistance:      "5000",
		model.ParamSnapDistanceUnits: "Meters",
		model.ParamSourceDatabase:    "FINEST",
		model.ParamGeneralize:        "True",
		"f":                          "json",
	}
	for k, v := range want {
		if got := sub.Get(k); got != v {
			t.Errorf("%s=%q want %q", k, got, v)
		}
	}
	for _, k := range []string{"env:outSR", "env:processSR"} {
		if !strings.Contains(sub.Get(k), "4326") {
			t.Errorf("%s=%q want wkid 4326", k, sub.Get(k))
		}
	}
	if !strings.Contains(sub.Get(model.ParamInputPoints), "-116.5403131") {
		t.Errorf("InputPoints=%s", sub.Get(model.ParamInputPoints))
	}

	if h.mock.Count("result") != 2 {
		t.Fatalf("result fetches=%d want 2", h.mock.Count("result"))
	}
	if h.view.Watersheds.Len() != 1 {
		t.Fatalf("watersheds=%d", h.view.Watersheds.Len())
	}
	pts := markerAt(t, h.view)
	off := gpmock.SnapOffset()
	if len(pts) != 1 || pts[0].X != click.X+off || pts[0].Y != click.Y+off {
		t.Fatalf("markers=%+v want snapped point", pts)
	}
	if _, ok := h.view.Target(); !ok {
		t.Fatal("view not retargeted to snapped point")
	}
	if h.view.Progress().Visible || h.orch.Processing() {
		t.Fatal("progress/flag not cleared")
	}
}

func TestSession_RepeatSignInKeepsJob(t *testing.T) {
	gate := make(chan struct{})
	prov := &fakeProvider{token: "tok-1"}
	h := newHarness(t, prov, gpmock.Behavior{Gate: gate}, false)
	ctx := context.Background()

	if err := h.sess.SignIn(ctx); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	h.orch.OnPointSelected(ctx, pt(-116.54, 33.83))
	if err := h.sess.SignIn(ctx); err != nil {
		t.Fatalf("repeat SignIn: %v", err)
	}
	if !h.orch.Processing() {
		t.Fatal("repeat sign in dropped the in-flight job")
	}
	close(gate)
	h.orch.Wait()
	if h.view.Watersheds.Len() != 1 {
		t.Fatalf("watersheds=%d want 1", h.view.Watersheds.Len())
	}
	if signIns, _, _ := prov.snapshot(); signIns != 1 {
		t.Fatalf("signIns=%d want 1", signIns)
	}
}
