package status

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/hars-imp/internal/infrastructure/mqtt"
	"github.com/nerrad567/hars-imp/internal/infrastructure/mqtt/mqtttest"
)

func TestPayload(t *testing.T) {
	for _, v := range []Value{On, Off, Suspended} {
		var got struct {
			Status string `json:"status"`
		}
		if err := json.Unmarshal(Payload(v), &got); err != nil {
			t.Fatalf("Payload(%s) not JSON: %v", v, err)
		}
		if got.Status != string(v) {
			t.Errorf("status = %q, want %q", got.Status, v)
		}
	}
	if string(Payload(Suspended)) != `{"status":"Suspended"}` {
		t.Errorf("Payload(Suspended) = %s", Payload(Suspended))
	}
}

func TestStatusPublisher_Publish(t *testing.T) {
	b := mqtttest.Start(t)
	capture := b.Capture(t, "homeassistant/sensor/desk/status/state")

	client, err := mqtt.Connect(b.Config("status-test"))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Disconnect(0) //nolint:errcheck

	p := NewPublisher(client, "desk", 0)
	if p.Topic() != "homeassistant/sensor/desk/status/state" {
		t.Errorf("Topic() = %q", p.Topic())
	}

	if err := p.Publish(context.Background(), On); err != nil {
		t.Fatalf("Publish(On) error = %v", err)
	}

	msgs := capture.Wait(t, 1, 2*time.Second)
	if string(msgs[0].Payload) != `{"status":"On"}` {
		t.Errorf("payload = %s", msgs[0].Payload)
	}
	if msgs[0].Retained {
		t.Error("status published retained")
	}
}

func TestStatusPublisher_NotConnected(t *testing.T) {
	b := mqtttest.Start(t)
	client, err := mqtt.Connect(b.Config("status-closed"))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	_ = client.Disconnect(0) //nolint:errcheck

	err = NewPublisher(client, "desk", time.Second).Publish(context.Background(), Off)
	if !errors.Is(err, mqtt.ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
}
