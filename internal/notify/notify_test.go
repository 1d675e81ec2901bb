package notify

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/classtrack/classtrack/internal/attendance"
	"github.com/classtrack/classtrack/internal/queue"
)

func TestFormatParentMessage(t *testing.T) {
	at := time.Date(2026, 3, 2, 9, 17, 0, 0, time.UTC)

	tests := []struct {
		name   string
		status attendance.Status
		want   string
	}{
		{
			name:   "present",
			status: attendance.StatusPresent,
			want:   "ClassTrack: Asha Rao has been marked PRESENT for Math 101 at 09:17.",
		},
		{
			name:   "late",
			status: attendance.StatusLate,
			want:   "ClassTrack: Asha Rao arrived LATE to Math 101 at 09:17.",
		},
		{
			name:   "absent",
			status: attendance.StatusAbsent,
			want:   "ClassTrack: Asha Rao is marked ABSENT for Math 101.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatParentMessage("Asha Rao", "Math 101", tt.status, at)
			if got != tt.want {
				t.Errorf("FormatParentMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPublisherEnqueues(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := queue.NewInMemory(4)
	messages, err := q.Consume(ctx)
	if err != nil {
		t.Fatal(err)
	}

	p := NewPublisher(q)
	rec := attendance.Record{
		ID:        "r1",
		StudentID: "s1",
		ClassID:   "c1",
		ClassName: "Math 101",
		Status:    attendance.StatusLate,
		Timestamp: time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC),
	}
	p.ScanRecorded(ctx, rec)

	select {
	case msg := <-messages:
		if msg.Type != MessageTypeScan {
			t.Fatalf("message type = %q, want %q", msg.Type, MessageTypeScan)
		}
		var n ScanNotification
		if err := json.Unmarshal(msg.Body, &n); err != nil {
			t.Fatalf("payload decode: %v", err)
		}
		if n.RecordID != "r1" || n.StudentID != "s1" || n.Status != attendance.StatusLate {
			t.Errorf("payload = %+v", n)
		}
		if !strings.Contains(n.ClassName, "Math") {
			t.Errorf("class name = %q", n.ClassName)
		}
	case <-time.After(time.Second):
		t.Fatal("no message published")
	}
}

func TestPublisherReturnsPromptlyWhenQueueFull(t *testing.T) {
	// One-slot queue, no consumer. The notification contract is
	// fire-and-forget: a full queue must never stall the attendance write.
	q := queue.NewInMemory(1)
	p := NewPublisher(q)
	ctx := context.Background()

	p.ScanRecorded(ctx, attendance.Record{ID: "r1"})

	done := make(chan struct{})
	go func() {
		p.ScanRecorded(ctx, attendance.Record{ID: "r2"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ScanRecorded blocked on a full queue")
	}
}

func TestPublisherNilQueueIsNoop(t *testing.T) {
	var p *Publisher
	p.ScanRecorded(context.Background(), attendance.Record{ID: "r1"})

	NewPublisher(nil).ScanRecorded(context.Background(), attendance.Record{ID: "r1"})
}
