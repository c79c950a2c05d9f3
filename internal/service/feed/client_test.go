package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func feedServer(t *testing.T, frames []string) *httptest.Server {
	t.Helper()
	up := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var sub map[string]string
		if err := conn.ReadJSON(&sub); err != nil || sub["type"] != "subscribe" {
			return
		}
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))
}

func TestClientReadsMetricFrames(t *testing.T) {
	srv := feedServer(t, []string{
		`{"type":"ping"}`,
		`{"type":"metric","data":[{"v":54.2,"t":1700000000000},{"v":55,"t":1700000001000,"s":"host-2"}]}`,
		`not json`,
		`{"type":"metric","data":[{"v":1.5,"t":1700000002000}]}`,
	})
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c := New(url, "cpu", time.Millisecond, time.Second, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()
	if err := c.Subscribe(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if !c.IsConnected() {
		t.Fatalf("expected connected")
	}

	recs, errs := c.Read(ctx)
	var values []float64
	var sources []string
	for r := range recs {
		values = append(values, r.Value)
		sources = append(sources, r.Source)
		if r.Timestamp < 1700000000 || r.Timestamp > 1700000002 {
			t.Fatalf("timestamp not in seconds: %d", r.Timestamp)
		}
	}
	if len(values) != 3 || values[0] != 54.2 || values[2] != 1.5 {
		t.Fatalf("unexpected values %v", values)
	}
	if sources[0] != "cpu" || sources[1] != "host-2" {
		t.Fatalf("unexpected sources %v", sources)
	}
	if err := <-errs; err == nil {
		t.Fatalf("expected read error after server close")
	}
}

func TestClientSubscribeRequiresConnection(t *testing.T) {
	c := New("ws://127.0.0.1:1", "cpu", 0, 0, nil)
	if err := c.Subscribe(context.Background()); err == nil {
		t.Fatalf("expected error when not connected")
	}
}
