package gateway

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBrokerResolveApproved(t *testing.T) {
	broker := NewApprovalBroker()

	go func() {
		req := <-broker.RequestCh()
		if req.ToolName != "Write" {
			t.Errorf("request tool = %s, want Write", req.ToolName)
		}
		broker.Submit(AskResponse{CallID: req.CallID, Approved: true})
	}()

	resp, err := broker.Resolve(context.Background(), AskRequest{
		CallID:   "call-1",
		WorkerID: "w-1",
		ToolName: "Write",
		Prompt:   "ok?",
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !resp.Approved {
		t.Error("response should be approved")
	}
}

func TestBrokerResolveRejectedWithReason(t *testing.T) {
	broker := NewApprovalBroker()

	go func() {
		req := <-broker.RequestCh()
		broker.Submit(AskResponse{CallID: req.CallID, Approved: false, Reason: "too risky"})
	}()

	resp, err := broker.Resolve(context.Background(), AskRequest{CallID: "call-2"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resp.Approved || resp.Reason != "too risky" {
		t.Errorf("response = %+v, want rejection with reason", resp)
	}
}

func TestBrokerResolveCancellable(t *testing.T) {
	broker := NewApprovalBroker()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := broker.Resolve(ctx, AskRequest{CallID: "call-3"})
		done <- err
	}()

	<-broker.RequestCh()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Resolve did not return after cancellation")
	}

	if broker.HasPending("call-3") {
		t.Error("pending entry should be cleaned up after cancellation")
	}
}

func TestBrokerSubmitUnknownCallDropped(t *testing.T) {
	broker := NewApprovalBroker()
	// Must not panic or block.
	broker.Submit(AskResponse{CallID: "never-asked", Approved: true})
}
