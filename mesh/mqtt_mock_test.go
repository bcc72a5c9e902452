package mesh

import (
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

func TestMockClient_Connect(t *testing.T) {
	mock := NewMockClient()

	token := mock.Connect()
	if !token.WaitTimeout(1 * time.Second) {
		t.Error("Connect should complete immediately")
	}
	if token.Error() != nil {
		t.Errorf("Connect error = %v, want nil", token.Error())
	}
	if !mock.IsConnected() {
		t.Error("Client should be connected after Connect()")
	}
}

func TestMockClient_ConnectWithError(t *testing.T) {
	mock := NewMockClient()
	expectedErr := errors.New("connection failed")
	mock.SetConnectError(expectedErr)

	token := mock.Connect()
	if token.Error() != expectedErr {
		t.Errorf("Connect error = %v, want %v", token.Error(), expectedErr)
	}
	if mock.IsConnected() {
		t.Error("Client should not be connected after failed Connect()")
	}
}

func TestMockClient_Publish(t *testing.T) {
	mock := NewMockClient()
	mock.SetConnected(true)

	payload := []byte(`{"runId": "abc"}`)
	token := mock.Publish("rgbdmesh/clusters", 1, true, payload)
	if token.Error() != nil {
		t.Errorf("Publish error = %v, want nil", token.Error())
	}
	mock.Publish("rgbdmesh/clusters/0", 0, false, "text payload")

	messages := mock.GetPublishedMessages()
	if len(messages) != 2 {
		t.Fatalf("Published messages count = %d, want 2", len(messages))
	}
	msg := messages[0]
	if msg.Topic != "rgbdmesh/clusters" {
		t.Errorf("Published topic = %s, want rgbdmesh/clusters", msg.Topic)
	}
	if string(msg.Payload) != string(payload) {
		t.Errorf("Published payload = %s, want %s", msg.Payload, payload)
	}
	if !msg.Retain || msg.QoS != 1 {
		t.Errorf("Retain/QoS = %v/%d, want true/1", msg.Retain, msg.QoS)
	}
	if string(messages[1].Payload) != "text payload" {
		t.Errorf("string payload = %q", messages[1].Payload)
	}
}

func TestMockClient_PublishNotConnected(t *testing.T) {
	mock := NewMockClient()

	token := mock.Publish("test/topic", 0, false, []byte("data"))
	if token.Error() != mqtt.ErrNotConnected {
		t.Errorf("Publish error = %v, want ErrNotConnected", token.Error())
	}
	if len(mock.GetPublishedMessages()) != 0 {
		t.Error("nothing should be recorded while disconnected")
	}
}

func TestMockClient_PublishError(t *testing.T) {
	mock := NewMockClient()
	mock.SetConnected(true)
	mock.SetPublishError(errors.New("broker full"))

	if token := mock.Publish("t", 0, false, []byte("x")); token.Error() == nil {
		t.Error("Publish should return the configured error")
	}
}

func TestMockClient_LastMessageAndTopics(t *testing.T) {
	mock := NewMockClient()
	mock.SetConnected(true)
	mock.Publish("p/clusters", 0, true, []byte("1"))
	mock.Publish("p/clusters/0", 0, true, []byte("a"))
	mock.Publish("p/clusters", 0, true, []byte("2"))
	mock.Publish("other/topic", 0, true, []byte("z"))

	msg, ok := mock.LastMessage("p/clusters")
	if !ok || string(msg.Payload) != "2" {
		t.Errorf("LastMessage = %q, %v; want \"2\", true", msg.Payload, ok)
	}
	if _, ok := mock.LastMessage("missing"); ok {
		t.Error("LastMessage should report false for unknown topics")
	}

	topics := mock.TopicsWithPrefix("p/")
	if len(topics) != 2 || topics[0] != "p/clusters" || topics[1] != "p/clusters/0" {
		t.Errorf("TopicsWithPrefix = %v", topics)
	}
}

func TestMockClient_SubscribeAndSimulate(t *testing.T) {
	mock := NewMockClient()
	mock.SetConnected(true)

	var got string
	token := mock.Subscribe("rgbdmesh/command", 0, func(_ mqtt.Client, msg mqtt.Message) {
		got = msg.Topic() + "=" + string(msg.Payload())
	})
	if token.Error() != nil {
		t.Fatalf("Subscribe error = %v", token.Error())
	}

	mock.SimulateMessage("rgbdmesh/command", []byte("run"))
	if got != "rgbdmesh/command=run" {
		t.Errorf("handler saw %q", got)
	}

	mock.Unsubscribe("rgbdmesh/command")
	got = ""
	mock.SimulateMessage("rgbdmesh/command", []byte("run"))
	if got != "" {
		t.Error("handler should not fire after Unsubscribe")
	}
}

func TestMockClient_SubscribeNotConnected(t *testing.T) {
	mock := NewMockClient()
	if token := mock.Subscribe("t", 0, nil); token.Error() == nil {
		t.Error("Subscribe should fail while disconnected")
	}
}

func TestMockClient_SubscribeError(t *testing.T) {
	mock := NewMockClient()
	mock.SetConnected(true)
	mock.SetSubscribeError(errors.New("denied"))
	if token := mock.Subscribe("t", 0, nil); token.Error() == nil {
		t.Error("Subscribe should return the configured error")
	}
}

func TestMockClient_AddRoute(t *testing.T) {
	mock := NewMockClient()
	called := false
	mock.AddRoute("r", func(mqtt.Client, mqtt.Message) { called = true })
	mock.SimulateMessage("r", nil)
	if !called {
		t.Error("AddRoute handler should receive simulated messages")
	}
}

func TestMockClient_Disconnect(t *testing.T) {
	mock := NewMockClient()
	mock.SetConnected(true)
	mock.Disconnect(0)
	if mock.IsConnected() || mock.IsConnectionOpen() {
		t.Error("Client should be disconnected")
	}
}

func TestMockToken_Done(t *testing.T) {
	token := NewMockToken(nil)
	select {
	case <-token.Done():
	default:
		t.Error("Done channel should be closed")
	}
	if !token.Wait() {
		t.Error("Wait should return true")
	}
}

func TestMockClient_ImplementsInterface(t *testing.T) {
	var _ mqtt.Client = NewMockClient()
	var _ mqtt.Message = &mockMessage{}
}
