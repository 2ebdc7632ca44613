package feed

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"sgdqbot/internal/eventbus"
	"sgdqbot/internal/refresh"
	"sgdqbot/internal/schedule"
	logx "sgdqbot/pkg/logx"
)

var testZone = time.FixedZone("EDT", -6*60*60)

func at(hhmm string) time.Time {
	t, err := time.ParseInLocation("1/2/2006 15:04", "7/5/2014 "+hhmm, testZone)
	if err != nil {
		panic(err)
	}
	return t
}

func loadedStore() *schedule.Store {
	st := schedule.NewStore()
	st.Publish(schedule.New([]schedule.Run{
		{Start: at("09:00"), Game: "GameA", Runner: "R1", Estimate: "0:30:00", Prize: "shirt"},
		{Start: at("10:00"), Game: "GameB", Runner: "R2", Estimate: "1:00:00"},
		{Start: at("11:00"), Game: "GameC", Runner: "R3", Estimate: "TBD"},
	}))
	return st
}

func fixedClock(hhmm string) Option {
	return WithClock(func() time.Time { return at(hhmm) })
}

func get(t *testing.T, srv *httptest.Server, path string) (int, string) {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return resp.StatusCode, string(b)
}

func TestEndpointsUnavailableBeforeFirstRefresh(t *testing.T) {
	t.Parallel()

	s := New(Config{}, schedule.NewStore(), logx.Nop())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	for _, path := range []string{"/healthz", "/schedule.ics", "/schedule.json", "/now", "/ws"} {
		if code, _ := get(t, srv, path); code != http.StatusServiceUnavailable {
			t.Errorf("GET %s = %d, want 503", path, code)
		}
	}
}

func TestScheduleJSON(t *testing.T) {
	t.Parallel()

	s := New(Config{}, loadedStore(), logx.Nop())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	code, body := get(t, srv, "/schedule.json")
	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	if got := gjson.Get(body, "version").Uint(); got != 1 {
		t.Fatalf("version = %d, want 1", got)
	}
	if got := gjson.Get(body, "runs.#").Int(); got != 3 {
		t.Fatalf("runs = %d, want 3", got)
	}
	if got := gjson.Get(body, "runs.1.game").String(); got != "GameB" {
		t.Fatalf("runs.1.game = %q, want GameB", got)
	}
	if got := gjson.Get(body, "runs.0.when").String(); got != "09:00:00 AM EDT (Saturday)" {
		t.Fatalf("runs.0.when = %q", got)
	}
	if !gjson.Get(body, "updated").Exists() {
		t.Fatal("updated missing")
	}
}

func TestNow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		clock       string
		current     string
		next        string
		wantCurNull bool
		wantNxtNull bool
	}{
		{clock: "10:30", current: "GameB", next: "GameC"},
		{clock: "08:00", wantCurNull: true, next: "GameA"},
		{clock: "12:00", current: "GameC", wantNxtNull: true},
	}
	for _, tc := range tests {
		s := New(Config{}, loadedStore(), logx.Nop(), fixedClock(tc.clock))
		srv := httptest.NewServer(s.Handler())
		_, body := get(t, srv, "/now")
		srv.Close()

		cur := gjson.Get(body, "current")
		nxt := gjson.Get(body, "next")
		if tc.wantCurNull {
			if cur.Type != gjson.Null {
				t.Errorf("%s: current = %s, want null", tc.clock, cur.Raw)
			}
		} else if got := cur.Get("game").String(); got != tc.current {
			t.Errorf("%s: current.game = %q, want %q", tc.clock, got, tc.current)
		}
		if tc.wantNxtNull {
			if nxt.Type != gjson.Null {
				t.Errorf("%s: next = %s, want null", tc.clock, nxt.Raw)
			}
		} else if got := nxt.Get("game").String(); got != tc.next {
			t.Errorf("%s: next.game = %q, want %q", tc.clock, got, tc.next)
		}
	}
}

func TestScheduleICS(t *testing.T) {
	t.Parallel()

	s := New(Config{}, loadedStore(), logx.Nop())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/schedule.ics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	body := string(b)

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Fatalf("Content-Type = %q", ct)
	}
	if got := strings.Count(body, "BEGIN:VEVENT"); got != 3 {
		t.Fatalf("VEVENT count = %d, want 3", got)
	}
	for _, want := range []string{"SUMMARY:GameA by R1", "SUMMARY:GameC by R3", "METHOD:PUBLISH"} {
		if !strings.Contains(body, want) {
			t.Errorf("ics missing %q", want)
		}
	}
	// "TBD" has no end.
	if got := strings.Count(body, "DTEND"); got != 2 {
		t.Fatalf("DTEND count = %d, want 2", got)
	}
}

func TestParseEstimate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"0:30:00", 30 * time.Minute, true},
		{"1:15:30", time.Hour + 15*time.Minute + 30*time.Second, true},
		{" 45:00 ", 45 * time.Minute, true},
		{"0:00:00", 0, false},
		{"TBD", 0, false},
		{"", 0, false},
		{"1:-5:00", 0, false},
	}
	for _, tc := range tests {
		got, ok := parseEstimate(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Errorf("parseEstimate(%q) = %v, %v, want %v, %v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestWebsocketInitialAndPush(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	store := loadedStore()
	s := New(Config{}, store, logx.Nop(), WithBus(bus), fixedClock("10:30"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, unsubscribe := bus.Subscribe(16)
	defer unsubscribe()
	go s.push(ctx, events)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read initial: %v", err)
	}
	if got := gjson.GetBytes(msg, "current.game").String(); got != "GameB" {
		t.Fatalf("initial current.game = %q, want GameB", got)
	}

	// Wait for registration before publishing.
	deadline := time.Now().Add(2 * time.Second)
	for s.hub.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	store.Publish(schedule.New([]schedule.Run{
		{Start: at("10:00"), Game: "GameX", Runner: "RX"},
	}))
	// Unchanged refreshes are not pushed.
	bus.Publish(eventbus.Event{Type: eventbus.TypeScheduleRefreshed, Data: refresh.Result{Changed: false}})
	bus.Publish(eventbus.Event{Type: eventbus.TypeRefreshFailed})
	bus.Publish(eventbus.Event{Type: eventbus.TypeScheduleRefreshed, Data: refresh.Result{Changed: true, Version: 2}})

	_, msg, err = conn.ReadMessage()
	if err != nil {
		t.Fatalf("read push: %v", err)
	}
	if got := gjson.GetBytes(msg, "current.game").String(); got != "GameX" {
		t.Fatalf("pushed current.game = %q, want GameX", got)
	}
	if got := gjson.GetBytes(msg, "next"); got.Type != gjson.Null {
		t.Fatalf("pushed next = %s, want null", got.Raw)
	}
}

func TestStartServesAndStops(t *testing.T) {
	t.Parallel()

	s := New(Config{Enabled: true, Addr: "127.0.0.1:0"}, loadedStore(), logx.Nop())
	s.Start(context.Background())

	deadline := time.Now().Add(3 * time.Second)
	for s.Addr() == "" {
		if time.Now().After(deadline) {
			t.Fatal("feed never bound")
		}
		time.Sleep(5 * time.Millisecond)
	}

	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if s.Addr() != "" {
		t.Fatalf("Addr() = %q after Stop, want empty", s.Addr())
	}
}

func TestDisabledStartIsNoop(t *testing.T) {
	t.Parallel()

	s := New(Config{}, loadedStore(), logx.Nop())
	s.Start(context.Background())
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()

	tests := map[string]bool{
		"127.0.0.1:8089": true,
		"localhost:80":   true,
		"[::1]:9000":     true,
		"0.0.0.0:8089":   false,
		":8089":          false,
		"bad":            false,
	}
	for in, want := range tests {
		if got := isLoopbackAddr(in); got != want {
			t.Errorf("isLoopbackAddr(%q) = %v, want %v", in, got, want)
		}
	}
}
