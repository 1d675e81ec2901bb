// Package notify delivers parent SMS notifications for attendance events.
// Delivery is fire-and-forget: a publish or send failure is logged and
// dropped, never surfaced as an attendance failure.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/classtrack/classtrack/internal/attendance"
	"github.com/classtrack/classtrack/internal/queue"
)

// MessageTypeScan tags queue messages carrying a scan notification.
const MessageTypeScan = "scan"

// ScanNotification is the queue payload the worker consumes.
type ScanNotification struct {
	RecordID  string            `json:"record_id"`
	StudentID string            `json:"student_id"`
	ClassID   string            `json:"class_id"`
	ClassName string            `json:"class_name,omitempty"`
	Status    attendance.Status `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
}

// Publisher pushes scan notifications onto the queue. It implements
// attendance.ScanNotifier.
type Publisher struct {
	q queue.Queue
}

// NewPublisher wraps a queue.
func NewPublisher(q queue.Queue) *Publisher {
	return &Publisher{q: q}
}

// ScanRecorded enqueues a notification for the worker. Errors are logged and
// dropped so the attendance write is never blocked.
func (p *Publisher) ScanRecorded(ctx context.Context, rec attendance.Record) {
	if p == nil || p.q == nil {
		return
	}
	body, err := json.Marshal(ScanNotification{
		RecordID:  rec.ID,
		StudentID: rec.StudentID,
		ClassID:   rec.ClassID,
		ClassName: rec.ClassName,
		Status:    rec.Status,
		Timestamp: rec.Timestamp,
	})
	if err != nil {
		log.Printf("notification encode failed for record %s: %v", rec.ID, err)
		return
	}
	if err := p.q.Publish(ctx, queue.Message{Type: MessageTypeScan, Body: body}); err != nil {
		log.Printf("notification publish failed for record %s: %v", rec.ID, err)
	}
}

// FormatParentMessage builds the SMS text for a status, the way the portal
// words them.
func FormatParentMessage(studentName, className string, status attendance.Status, at time.Time) string {
	switch status {
	case attendance.StatusPresent:
		return fmt.Sprintf("ClassTrack: %s has been marked PRESENT for %s at %s.", studentName, className, at.Format("15:04"))
	case attendance.StatusLate:
		return fmt.Sprintf("ClassTrack: %s arrived LATE to %s at %s.", studentName, className, at.Format("15:04"))
	default:
		return fmt.Sprintf("ClassTrack: %s is marked ABSENT for %s.", studentName, className)
	}
}
