package rpcclient

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestParseAccountNotification(t *testing.T) {
	msg := []byte(`{"jsonrpc":"2.0","method":"accountNotification","params":{"subscription":42,"result":{"value":{"data":["aGVsbG8=","base64"]}}}}`)

	notif, ok := parseAccountNotification(msg)
	if !ok {
		t.Fatal("parseAccountNotification() ok = false, want true")
	}
	if notif.SubscriptionID != 42 {
		t.Errorf("SubscriptionID = %d, want 42", notif.SubscriptionID)
	}
	if string(notif.Data) != "hello" {
		t.Errorf("Data = %q, want %q", notif.Data, "hello")
	}
}

func TestParseAccountNotificationIgnoresOtherMethods(t *testing.T) {
	msg := []byte(`{"jsonrpc":"2.0","id":1,"result":99}`)
	_, ok := parseAccountNotification(msg)
	if ok {
		t.Error("parseAccountNotification() ok = true for a subscription-confirmation frame, want false")
	}
}

func TestWSClientSubscribeAndNotify(t *testing.T) {
	upgrader := websocket.Upgrader{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade error = %v", err)
			return
		}
		defer conn.Close()

		_, _, err = conn.ReadMessage()
		if err != nil {
			return
		}

		notif := `{"jsonrpc":"2.0","method":"accountNotification","params":{"subscription":7,"result":{"value":{"data":["d29ybGQ=","base64"]}}}}`
		conn.WriteMessage(websocket.TextMessage, []byte(notif))
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	c, err := NewWSClient(wsURL)
	if err != nil {
		t.Fatalf("NewWSClient() error = %v", err)
	}
	defer c.Close()

	if _, err := c.Subscribe("some-address"); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	go c.Listen()

	select {
	case notif := <-c.Notifications():
		if notif.SubscriptionID != 7 || string(notif.Data) != "world" {
			t.Errorf("notification = %+v, want subscription=7 data=world", notif)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")
	}
}
