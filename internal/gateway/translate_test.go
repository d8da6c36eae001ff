package gateway

import (
	"testing"
	"time"

	"github.com/haasonsaas/groupchat/internal/events"
)

func TestTranslateEventChatMessage(t *testing.T) {
	msg := events.NewChatMessage("researcher", "msg-1", "hello", time.Now())
	msg.NodeID = "node-1"

	frame, ok := translateEvent(msg)
	if !ok {
		t.Fatal("expected a translation")
	}
	amf, ok := frame.(AgentMessageFrame)
	if !ok {
		t.Fatalf("expected AgentMessageFrame, got %T", frame)
	}
	if amf.AgentName != "researcher" || amf.Content != "hello" || amf.NodeID != "node-1" {
		t.Fatalf("unexpected frame contents: %#v", amf)
	}
	if amf.Type != TypeAgentMessage {
		t.Fatalf("unexpected type: %s", amf.Type)
	}
}

func TestTranslateEventStopMessageInterrupted(t *testing.T) {
	stop := events.NewStopMessage("manager", events.StopReasonUserInterrupt, time.Now())
	frame, ok := translateEvent(stop)
	if !ok {
		t.Fatal("expected a translation")
	}
	rt := frame.(RunTerminationFrame)
	if rt.Status != RunStatusInterrupted {
		t.Fatalf("expected INTERRUPTED status, got %s", rt.Status)
	}
}

func TestTranslateEventStopMessageCompleted(t *testing.T) {
	stop := events.NewStopMessage("manager", "max turns reached", time.Now())
	frame, ok := translateEvent(stop)
	if !ok {
		t.Fatal("expected a translation")
	}
	rt := frame.(RunTerminationFrame)
	if rt.Status != RunStatusCompleted {
		t.Fatalf("expected COMPLETED status, got %s", rt.Status)
	}
}

func TestTranslateEventSelectorEventNotTranslated(t *testing.T) {
	ev := events.SelectorEvent{}
	if _, ok := translateEvent(ev); ok {
		t.Fatal("expected SelectorEvent to have no translation")
	}
}

func TestTranslateEventToolCallRequest(t *testing.T) {
	req := events.NewToolCallRequest("researcher", []events.ToolCall{{ID: "c1", Name: "search", Args: `{"q":"x"}`}}, time.Now())
	req.NodeID = "node-2"
	frame, ok := translateEvent(req)
	if !ok {
		t.Fatal("expected a translation")
	}
	tc := frame.(ToolCallFrame)
	if len(tc.Tools) != 1 || tc.Tools[0].ID != "c1" || tc.NodeID != "node-2" {
		t.Fatalf("unexpected frame: %#v", tc)
	}
}
