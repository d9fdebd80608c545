package session

import (
	"testing"
)

func TestSessionSaveLoadRoundTrip(t *testing.T) {
	t.Chdir(t.TempDir())

	sess, err := New("roundtrip")
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	sess.AddMessage(Message{Role: RoleSystem, Content: "rules"})
	sess.AddMessage(Message{Role: RoleUser, Content: "read a.txt"})
	sess.AddMessage(Message{Role: RoleAssistant, Content: "Thought: reading", ToolCalls: []ToolCall{
		{ToolCallID: "call_1", Name: "read_file", Args: map[string]interface{}{"path": "a.txt"}},
	}})
	sess.AddMessage(Message{Role: RoleObservation, Content: "Observation: contents", ToolCalls: []ToolCall{
		{ToolCallID: "call_1", Name: "read_file"},
	}})

	if err := sess.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load("roundtrip")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded.Messages) != 4 {
		t.Fatalf("Expected 4 messages, got %d", len(loaded.Messages))
	}
	if loaded.Messages[2].ToolCalls[0].Name != "read_file" {
		t.Errorf("Tool call lost in round trip: %+v", loaded.Messages[2])
	}
	if loaded.Messages[2].ToolCalls[0].Args["path"] != "a.txt" {
		t.Errorf("Tool args lost in round trip: %+v", loaded.Messages[2].ToolCalls[0])
	}
	if loaded.Messages[3].Role != RoleObservation {
		t.Errorf("Expected observation role preserved, got %s", loaded.Messages[3].Role)
	}
}

func TestSessionLoadMissing(t *testing.T) {
	t.Chdir(t.TempDir())

	if _, err := Load("no-such-session"); err == nil {
		t.Fatal("Expected an error for a missing session")
	}
}

func TestSessionAppendOnly(t *testing.T) {
	t.Chdir(t.TempDir())

	sess, err := New("append")
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	for i := 0; i < 5; i++ {
		sess.AddMessage(Message{Role: RoleUser, Content: "msg"})
	}
	if len(sess.Messages) != 5 {
		t.Errorf("Expected 5 messages, got %d", len(sess.Messages))
	}
}
