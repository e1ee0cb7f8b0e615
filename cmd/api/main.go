package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"campusmark/internal/admission"
	"campusmark/internal/auth"
	"campusmark/internal/config"
	"campusmark/internal/faceclient"
	"campusmark/internal/facesession"
	"campusmark/internal/httpmiddleware"
	"campusmark/internal/metrics"
	"campusmark/internal/queue"
	"campusmark/internal/records"
	"campusmark/internal/store"
	"campusmark/internal/timetable"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer logger.Sync()

	if err := runHTTP(cfg, logger); err != nil {
		logger.Fatal("http server failed", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "production" || env == "prod" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func runHTTP(cfg config.App, logger *zap.Logger) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	repo := records.NewRepository(db.Client)
	face := faceclient.New(cfg.FaceServiceURL, cfg.FaceSkip)

	var assertions facesession.Store
	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		assertions = facesession.NewMemory()
		q = queue.NewInMemory(64)
	} else {
		assertions = facesession.NewRedis(redisClient.Client, cfg.FaceAssertionTTL)
		q = queue.NewRedisQueue(redisClient.Client, queue.DefaultKey)
	}

	engine := admission.NewEngine(repo, assertions, admission.Config{
		DefaultRadiusMeters: cfg.DefaultGeofenceRadiusM,
		AssertionTTL:        cfg.FaceAssertionTTL,
	}, logger)
	checker := timetable.NewChecker(repo, logger)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db.Client.PingContext(c.Request.Context()) == nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	// Session bootstrap. Account authentication itself lives in the
	// campus SSO in front of this service; this endpoint mints the API
	// tokens once the gateway has vouched for the user.
	r.POST("/v1/sessions", func(c *gin.Context) {
		var req struct {
			UserID string `json:"user_id" binding:"required"`
			Name   string `json:"name"`
			Role   string `json:"role" binding:"required,oneof=Student Admin Instructor"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if err := repo.EnsureUser(c.Request.Context(), req.UserID, req.Name, req.Role); err != nil {
			logger.Error("ensure user failed", zap.String("user", req.UserID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "session setup failed"})
			return
		}

		tokens, err := auth.Issue(req.UserID, req.Role, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}
		_ = repo.SaveRefreshToken(c.Request.Context(), req.UserID, tokens.RefreshToken, tokens.RefreshExp)

		c.JSON(http.StatusCreated, gin.H{
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"expires_at":    tokens.AccessExp.Unix(),
		})
	})

	student := r.Group("/v1/attendance", auth.RequireRole(cfg.JWTSigningKey, cfg.JWTIssuer, auth.RoleStudent))

	student.POST("/enroll-face", func(c *gin.Context) {
		var req struct {
			Image string `json:"image" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "provide {\"image\": \"<base64 data URL>\"}"})
			return
		}
		claims, _ := auth.ClaimsFrom(c)

		result, err := face.Embed(c.Request.Context(), req.Image)
		if err != nil {
			logger.Warn("face embed failed", zap.String("student", claims.Subject), zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": "face enrollment failed"})
			return
		}
		if result.FacesDetected > 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "multiple faces detected, ensure only one person is in the frame"})
			return
		}
		if err := repo.SaveFaceEncoding(c.Request.Context(), claims.Subject, result.Embedding); err != nil {
			logger.Error("save face encoding failed", zap.String("student", claims.Subject), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "face enrollment failed"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"message": "face enrolled", "encoding_length": len(result.Embedding)})
	})

	student.POST("/verify-face", func(c *gin.Context) {
		var req struct {
			Image string `json:"image" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "provide {\"image\": \"<base64 data URL>\"}"})
			return
		}
		claims, _ := auth.ClaimsFrom(c)

		encoding, err := repo.FaceEncoding(c.Request.Context(), claims.Subject)
		if err != nil {
			logger.Error("fetch face encoding failed", zap.String("student", claims.Subject), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "face verification failed"})
			return
		}
		if encoding == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no enrolled face found, enroll first"})
			return
		}

		result, err := face.Distance(c.Request.Context(), encoding, req.Image)
		if err != nil {
			metrics.FaceVerificationsTotal.WithLabelValues("error").Inc()
			logger.Warn("face distance failed", zap.String("student", claims.Subject), zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": "face verification failed"})
			return
		}

		match := result.Distance < cfg.FaceMatchThreshold
		logger.Info("face verification",
			zap.String("student", claims.Subject),
			zap.Float64("distance", result.Distance),
			zap.Bool("match", match))

		if !match {
			metrics.FaceVerificationsTotal.WithLabelValues("no_match").Inc()
			c.JSON(http.StatusOK, gin.H{"match": false, "message": "face verification failed"})
			return
		}

		if err := assertions.Issue(c.Request.Context(), claims.Subject, time.Now()); err != nil {
			logger.Error("issue assertion failed", zap.String("student", claims.Subject), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "face verification failed"})
			return
		}
		metrics.FaceVerificationsTotal.WithLabelValues("match").Inc()
		c.JSON(http.StatusOK, gin.H{"match": true, "message": "face verified successfully"})
	})

	student.POST("/mark", func(c *gin.Context) {
		var req struct {
			LectureID   string   `json:"lecture_id" binding:"required"`
			Latitude    *float64 `json:"latitude" binding:"required"`
			Longitude   *float64 `json:"longitude" binding:"required"`
			BSSID       string   `json:"bssid"`
			BluetoothID string   `json:"bluetooth_device_id"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		claims, _ := auth.ClaimsFrom(c)

		res, err := engine.Admit(c.Request.Context(), admission.Request{
			StudentID:   claims.Subject,
			SessionID:   claims.Subject,
			LectureID:   req.LectureID,
			Latitude:    *req.Latitude,
			Longitude:   *req.Longitude,
			NetworkID:   req.BSSID,
			BluetoothID: req.BluetoothID,
		})
		if err != nil {
			metrics.AdmissionsTotal.WithLabelValues("error").Inc()
			logger.Error("admission failed", zap.String("student", claims.Subject), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "an internal server error occurred"})
			return
		}

		if !res.Admitted {
			metrics.AdmissionsTotal.WithLabelValues(string(res.Reason)).Inc()
			status := http.StatusBadRequest
			if res.Reason == admission.ReasonNotFound {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": denyMessage(res.Reason), "reason": res.Reason})
			return
		}

		metrics.AdmissionsTotal.WithLabelValues("admitted").Inc()
		if err := q.Publish(c.Request.Context(), queue.AdmittedEvent{
			RecordID:  res.RecordID,
			StudentID: claims.Subject,
			LectureID: req.LectureID,
		}); err != nil {
			logger.Warn("queue publish failed", zap.Error(err))
		}

		c.JSON(http.StatusCreated, gin.H{
			"message":   "attendance marked successfully",
			"record_id": res.RecordID,
			"details": gin.H{
				"time_validated":      res.TimeValidated,
				"face_verified":       res.FaceVerified,
				"location_validated":  res.LocationValidated,
				"wifi_validated":      res.WifiValidated,
				"bluetooth_validated": res.BluetoothValidated,
				"location":            res.LocationName,
				"wifi_network":        res.NetworkName,
				"instructor":          res.InstructorName,
			},
		})
	})

	student.GET("/history", func(c *gin.Context) {
		claims, _ := auth.ClaimsFrom(c)
		limit, offset := 50, 0
		if v := c.Query("limit"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				limit = parsed
			}
		}
		if v := c.Query("offset"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				offset = parsed
			}
		}
		recs, err := repo.ListRecords(c.Request.Context(), claims.Subject, limit, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch attendance history"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"attendance_history": toHistory(recs)})
	})

	student.GET("/summary", func(c *gin.Context) {
		claims, _ := auth.ClaimsFrom(c)
		// Served from the worker-maintained cache; falls back to a live
		// count when the cache is cold.
		summary, err := redisClient.Client.HGetAll(c.Request.Context(), "attendance:summary:"+claims.Subject).Result()
		if err == nil && len(summary) > 0 {
			c.JSON(http.StatusOK, gin.H{"summary": summary, "cached": true})
			return
		}
		present, total, err := repo.AttendanceCounts(c.Request.Context(), claims.Subject)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch summary"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"summary": gin.H{
			"present":    present,
			"total":      total,
			"percentage": percentage(present, total),
		}, "cached": false})
	})

	admin := r.Group("/v1/timetable", auth.RequireRole(cfg.JWTSigningKey, cfg.JWTIssuer, auth.RoleAdmin))

	admin.POST("", func(c *gin.Context) {
		var req struct {
			Branch       string `json:"branch" binding:"required"`
			Year         int    `json:"year" binding:"required"`
			Division     string `json:"division" binding:"required"`
			Day          string `json:"day" binding:"required"`
			Slot         int    `json:"slot" binding:"required"`
			CourseCode   string `json:"course_code" binding:"required"`
			InstructorID string `json:"instructor_id"`
			Room         string `json:"room"`
			StartTime    string `json:"start_time"`
			EndTime      string `json:"end_time"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		entry := timetable.Entry{
			CourseCode:   req.CourseCode,
			Section:      admission.Section{Branch: req.Branch, Year: req.Year, Division: req.Division},
			Day:          req.Day,
			Slot:         req.Slot,
			Room:         req.Room,
			InstructorID: req.InstructorID,
			StartTime:    req.StartTime,
			EndTime:      req.EndTime,
		}

		// Breaks only need the grid position; real lectures need the
		// rest too.
		if !timetable.IsBreak(entry) {
			if req.InstructorID == "" || req.Room == "" || req.StartTime == "" || req.EndTime == "" {
				c.JSON(http.StatusBadRequest, gin.H{"error": "instructor_id, room, start_time and end_time are required for lectures"})
				return
			}
		}

		report, err := checker.Check(c.Request.Context(), entry)
		if err != nil {
			logger.Error("clash check failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create timetable entry"})
			return
		}
		if report.Clash {
			metrics.ClashRejectionsTotal.Inc()
			c.JSON(http.StatusConflict, gin.H{"error": "timetable clash detected", "details": report.Reasons})
			return
		}

		saved, err := repo.InsertEntry(c.Request.Context(), entry)
		if err != nil {
			logger.Error("insert entry failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create timetable entry"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"message": "timetable entry created", "timetable_id": saved.ID})
	})

	admin.GET("/:branch/:year/:division", func(c *gin.Context) {
		year, err := strconv.Atoi(c.Param("year"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid year"})
			return
		}
		sec := admission.Section{Branch: c.Param("branch"), Year: year, Division: c.Param("division")}
		entries, err := repo.EntriesForSection(c.Request.Context(), sec)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch timetable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"timetable": toGrid(entries)})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced shutdown", zap.Error(err))
	}
	logger.Info("server exited")
	return nil
}

// denyMessage maps a deny reason to the client-facing message. Radii,
// thresholds, and TTLs are deliberately not included.
func denyMessage(reason admission.Reason) string {
	switch reason {
	case admission.ReasonNotFound:
		return "lecture not found"
	case admission.ReasonTimeWindow:
		return "this lecture is not currently active"
	case admission.ReasonFace:
		return "face verification required or expired, please verify your face first"
	case admission.ReasonGeofence:
		return "you are not within the allowed range of an authorized location"
	case admission.ReasonNetwork:
		return "you are not connected to a recognized campus network"
	case admission.ReasonDevice:
		return "instructor's device was not detected in range"
	case admission.ReasonDuplicate:
		return "you have already marked attendance for this lecture"
	default:
		return "attendance could not be marked"
	}
}

func toHistory(recs []admission.Record) []gin.H {
	out := make([]gin.H, 0, len(recs))
	for _, rec := range recs {
		out = append(out, gin.H{
			"id":          rec.ID,
			"lecture_id":  rec.LectureID,
			"course_code": rec.CourseCode,
			"status":      rec.Status,
			"location":    rec.LocationName,
			"marked_at":   rec.MarkedAt.Format("2006-01-02 15:04:05"),
		})
	}
	return out
}

// toGrid shapes entries into day → slot → entry, the layout the weekly
// grid renders directly.
func toGrid(entries []timetable.Entry) map[string]map[int]gin.H {
	grid := map[string]map[int]gin.H{
		"Monday": {}, "Tuesday": {}, "Wednesday": {},
		"Thursday": {}, "Friday": {}, "Saturday": {},
	}
	for _, e := range entries {
		day, ok := grid[e.Day]
		if !ok {
			continue
		}
		day[e.Slot] = gin.H{
			"id":            e.ID,
			"course_code":   e.CourseCode,
			"room":          e.Room,
			"instructor_id": e.InstructorID,
			"start_time":    e.StartTime,
			"end_time":      e.EndTime,
		}
	}
	return grid
}

func percentage(present, total int) float64 {
	if total == 0 {
		return 100
	}
	return float64(present) / float64(total) * 100
}

// CORS middleware for browser requests.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// Security headers middleware.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}
