package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/classtrack/classtrack/internal/attendance"
	"github.com/classtrack/classtrack/internal/config"
	"github.com/classtrack/classtrack/internal/notify"
	"github.com/classtrack/classtrack/internal/queue"
	"github.com/classtrack/classtrack/internal/store"
)

// Worker drains the notification queue and texts parents about scans.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	if err := db.EnsureSchema(ctx); err != nil {
		log.Fatalf("schema apply failed: %v", err)
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, queue.DefaultKey)
	}

	repo := attendance.NewRepository(db.Client)
	logs := notify.NewRepository(db.Client)

	var sender notify.Sender
	if cfg.SMSEnabled {
		sender = notify.NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber)
		log.Println("twilio sender configured")
	} else {
		sender = notify.LogSender{}
		log.Println("sms not configured, messages will be logged only")
	}

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for messages...")
	for msg := range messages {
		if msg.Type != notify.MessageTypeScan {
			continue
		}

		var n notify.ScanNotification
		if err := json.Unmarshal(msg.Body, &n); err != nil {
			log.Printf("bad notification payload: %v", err)
			continue
		}

		name, phone, err := repo.StudentContact(ctx, n.StudentID)
		if err != nil {
			log.Printf("contact lookup failed for student %s: %v", n.StudentID, err)
			continue
		}
		if phone == "" {
			log.Printf("no parent phone for student %s, skipping", n.StudentID)
			continue
		}

		text := notify.FormatParentMessage(name, n.ClassName, n.Status, n.Timestamp)

		status := "sent"
		if err := sender.Send(ctx, phone, text); err != nil {
			log.Printf("sms send failed for record %s: %v", n.RecordID, err)
			status = "failed"
		} else if !cfg.SMSEnabled {
			status = "mocked"
		}

		if err := logs.SaveLog(ctx, phone, text, status); err != nil {
			log.Printf("sms log write failed: %v", err)
		}
	}

	log.Println("worker stopped")
}
