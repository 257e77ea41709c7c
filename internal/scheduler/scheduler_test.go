package scheduler

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/postpilot-app/postpilot/internal/platform"
)

func TestTaskID(t *testing.T) {
	id := taskID(platform.Instagram, 42, 7)
	if id != "dispatch:instagram:42:7" {
		t.Errorf("taskID = %q", id)
	}

	// The prefix must match its own tasks and nothing else.
	prefix := taskPrefix(platform.Instagram, 42)
	if !strings.HasPrefix(id, prefix) {
		t.Errorf("%q should match prefix %q", id, prefix)
	}
	if strings.HasPrefix(taskID(platform.Instagram, 421, 7), prefix) {
		t.Error("prefix for post 42 must not match post 421")
	}
	if strings.HasPrefix(taskID(platform.Tiktok, 42, 7), prefix) {
		t.Error("prefix must be platform-scoped")
	}
}

func TestDispatchPostPayloadRoundTrip(t *testing.T) {
	in := DispatchPostPayload{
		PostID:    1,
		TargetID:  2,
		UserID:    3,
		AccountID: 4,
		Platform:  platform.Tiktok,
	}
	raw, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}

	var out DispatchPostPayload
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatal(err)
	}
	if out != in {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}
}
