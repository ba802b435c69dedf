package realtime

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/staykeep/internal/entity"
	"github.com/starford/staykeep/internal/scope"
)

func TestJoinLeave(t *testing.T) {
	b := NewBroker()
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Join()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Leave(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after leave")
	}
}

func TestTableFilter(t *testing.T) {
	b := NewBroker()
	defer b.Close()
	props := b.Join("properties")
	defer b.Leave(props)
	all := b.Join()
	defer b.Leave(all)

	b.PublishChange(entity.Change{Table: "damage_reports", Type: entity.Insert, ID: "d1"})
	b.PublishChange(entity.Change{Table: "properties", Type: entity.Update, ID: "p1"})

	select {
	case e := <-props:
		if e.Name != "properties.update" {
			t.Fatalf("filtered subscriber got %q", e.Name)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for properties event")
	}

	got := 0
	timeout := time.After(time.Second)
	for got < 2 {
		select {
		case <-all:
			got++
		case <-timeout:
			t.Fatalf("unfiltered subscriber got %d events, want 2", got)
		}
	}
}

func TestUntabledEventsReachEveryone(t *testing.T) {
	b := NewBroker()
	defer b.Close()
	ch := b.Join("properties")
	defer b.Leave(ch)

	b.Publish(Event{Name: "inspection.due", Data: map[string]string{"template_id": "t1"}})
	select {
	case e := <-ch:
		if e.Name != "inspection.due" {
			t.Fatalf("got %q", e.Name)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout")
	}
}

func TestSubscribeFeed(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	changes, err := b.Subscribe(ctx, "properties")
	if err != nil {
		t.Fatal(err)
	}

	// Join is synchronous, so the subscriber exists before the publish below.
	b.Publish(Event{Name: "inspection.due"})
	b.PublishChange(entity.Change{Table: "properties", Type: entity.Insert, ID: "p1"})

	select {
	case c := <-changes:
		if c.ID != "p1" || c.Type != entity.Insert {
			t.Fatalf("unexpected change %+v", c)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for change")
	}

	cancel()
	select {
	case _, ok := <-changes:
		if ok {
			// Drain any in-flight value then expect closure.
			if _, ok := <-changes; ok {
				t.Fatal("channel not closed after cancel")
			}
		}
	case <-time.After(time.Second):
		t.Fatal("feed channel not closed after cancel")
	}
}

func TestCloseEndsSubscriptions(t *testing.T) {
	b := NewBroker()
	ch := b.Join()
	b.Close()
	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel")
	}
	if _, err := b.Subscribe(context.Background()); err == nil {
		t.Fatal("expected error from closed broker")
	}
	b.Publish(Event{Name: "x"})
	if b.ClientCount() != 0 {
		t.Fatal("closed broker should report 0 clients")
	}
}

func TestDropHook(t *testing.T) {
	dropped := make(chan struct{}, 128)
	b := NewBroker(WithDropHook(func(Event) {
		select {
		case dropped <- struct{}{}:
		default:
		}
	}))
	defer b.Close()
	ch := b.Join()
	defer b.Leave(ch)

	for i := 0; i < 100; i++ {
		b.Publish(Event{Name: "x"})
	}
	select {
	case <-dropped:
	case <-time.After(time.Second):
		t.Fatal("expected a drop once the subscriber buffer filled")
	}
}

func TestServeHTTP(t *testing.T) {
	b := NewBroker(WithKeepAlive(time.Hour))
	defer b.Close()

	srv := httptest.NewServer(b)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"?tables=properties", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	// Wait for the handler to register before publishing.
	deadline := time.Now().Add(time.Second)
	for b.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	b.PublishChange(entity.Change{Table: "properties", Type: entity.Delete, ID: "p9"})

	sc := bufio.NewScanner(resp.Body)
	var lines []string
	for sc.Scan() {
		line := sc.Text()
		if line == "" && len(lines) > 0 {
			break
		}
		if line != "" {
			lines = append(lines, line)
		}
	}
	frame := strings.Join(lines, "\n")
	if !strings.Contains(frame, "event: properties.delete") {
		t.Errorf("missing event name in %q", frame)
	}
	if !strings.Contains(frame, `"id":"p9"`) {
		t.Errorf("missing data in %q", frame)
	}
}

func TestRestrictedSubscriber(t *testing.T) {
	b := NewBroker()
	defer b.Close()
	ch := b.JoinRestricted(scope.Restrict([]string{"p1"}))
	defer b.Leave(ch)

	p1, p2 := "p1", "p2"
	b.PublishChange(entity.Change{Table: "inventory_items", Type: entity.Update, ID: "hidden", PropertyID: &p2})
	b.PublishChange(entity.Change{Table: "properties", Type: entity.Update, ID: "p2"})
	b.Publish(Event{Name: "inspection.due", Table: "checklist_templates", PropertyID: &p2})
	b.PublishChange(entity.Change{Table: "properties", Type: entity.Update, ID: "p1"})
	b.PublishChange(entity.Change{Table: "inventory_items", Type: entity.Update, ID: "shared"})
	b.PublishChange(entity.Change{Table: "inventory_items", Type: entity.Update, ID: "own", PropertyID: &p1})

	want := []string{"p1", "shared", "own"}
	for _, id := range want {
		select {
		case e := <-ch:
			c, ok := e.Data.(entity.Change)
			if !ok || c.ID != id {
				t.Fatalf("got %+v, want change %s", e.Data, id)
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for %s", id)
		}
	}
}

func TestServeHTTPUsesRequestAccess(t *testing.T) {
	b := NewBroker(WithKeepAlive(time.Hour))
	defer b.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.ServeHTTP(w, r.WithContext(WithAccess(r.Context(), scope.Restrict(nil))))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	deadline := time.Now().Add(time.Second)
	for b.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	p1 := "p1"
	b.PublishChange(entity.Change{Table: "inventory_items", Type: entity.Insert, ID: "bound", PropertyID: &p1})
	b.PublishChange(entity.Change{Table: "inventory_items", Type: entity.Insert, ID: "shared"})

	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		if line := sc.Text(); strings.HasPrefix(line, "data: ") {
			if !strings.Contains(line, `"id":"shared"`) {
				t.Fatalf("first data = %s, want the shared row", line)
			}
			return
		}
	}
	t.Fatalf("stream ended: %v", sc.Err())
}
