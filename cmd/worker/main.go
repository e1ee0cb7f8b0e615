package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"campusmark/internal/config"
	"campusmark/internal/queue"
	"campusmark/internal/records"
	"campusmark/internal/store"
)

// The worker keeps per-student attendance summaries warm in Redis so the
// API can serve /summary without recounting on every request.
func main() {
	cfg := config.Load()

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer logger.Sync()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("db connect failed", zap.Error(err))
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)
	repo := records.NewRepository(db.Client)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		logger.Warn("in-memory queue selected, worker will see no events from the API process")
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, queue.DefaultKey)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		logger.Info("shutdown signal received")
		cancel()
	}()

	msgs, err := q.Consume(ctx)
	if err != nil {
		logger.Fatal("queue consume failed", zap.Error(err))
	}

	logger.Info("worker started")
	for evt := range msgs {
		if err := refreshSummary(ctx, repo, redisClient, evt); err != nil {
			logger.Error("summary refresh failed",
				zap.String("student", evt.StudentID),
				zap.String("record", evt.RecordID),
				zap.Error(err))
			continue
		}
		logger.Info("summary refreshed",
			zap.String("student", evt.StudentID),
			zap.String("lecture", evt.LectureID))
	}
	logger.Info("worker exited")
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "production" || env == "prod" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func refreshSummary(ctx context.Context, repo *records.Repository, rc *store.Redis, evt queue.AdmittedEvent) error {
	opCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	present, total, err := repo.AttendanceCounts(opCtx, evt.StudentID)
	if err != nil {
		return err
	}

	pct := 100.0
	if total > 0 {
		pct = float64(present) / float64(total) * 100
	}

	key := "attendance:summary:" + evt.StudentID
	pipe := rc.Client.Pipeline()
	pipe.HSet(opCtx, key, map[string]interface{}{
		"present":    present,
		"total":      total,
		"percentage": fmt.Sprintf("%.2f", pct),
		"updated_at": time.Now().UTC().Format(time.RFC3339),
	})
	pipe.Expire(opCtx, key, 24*time.Hour)
	_, err = pipe.Exec(opCtx)
	return err
}
