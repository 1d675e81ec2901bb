// Package handler wires the HTTP API: scans, class management, analytics,
// feedback and exports.
package handler

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/classtrack/classtrack/internal/attendance"
	"github.com/classtrack/classtrack/internal/auth"
	"github.com/classtrack/classtrack/internal/cloudinary"
	"github.com/classtrack/classtrack/internal/config"
	"github.com/classtrack/classtrack/internal/export"
	"github.com/classtrack/classtrack/internal/faceclient"
	"github.com/classtrack/classtrack/internal/feedback"
	"github.com/classtrack/classtrack/internal/notify"
)

// Handler holds the services the routes need.
type Handler struct {
	cfg        config.App
	repo       *attendance.Repository
	evaluator  *attendance.Evaluator
	aggregator *attendance.Aggregator
	feedback   *feedback.Service
	face       *faceclient.Client
	cloud      *cloudinary.Client // nil when not configured
	smsLogs    *notify.Repository
	validate   *validator.Validate
}

// New creates a handler.
func New(cfg config.App, repo *attendance.Repository, ev *attendance.Evaluator,
	agg *attendance.Aggregator, fb *feedback.Service, face *faceclient.Client,
	cloud *cloudinary.Client, smsLogs *notify.Repository) *Handler {
	return &Handler{
		cfg:        cfg,
		repo:       repo,
		evaluator:  ev,
		aggregator: agg,
		feedback:   fb,
		face:       face,
		cloud:      cloud,
		smsLogs:    smsLogs,
		validate:   validator.New(),
	}
}

// Register mounts all routes on the authenticated group.
func (h *Handler) Register(g *gin.RouterGroup) {
	g.POST("/scans", h.Scan)
	g.POST("/attendance/manual", auth.RequireManage(), h.ManualMark)
	g.GET("/attendance", h.ListAttendance)

	g.POST("/classes", auth.RequireManage(), h.CreateClass)
	g.GET("/classes", h.ListClasses)
	g.GET("/classes/:id", h.GetClass)
	g.PUT("/classes/:id/schedule", auth.RequireManage(), h.UpsertSchedule)
	g.POST("/classes/:id/enroll", auth.RequireManage(), h.Enroll)
	g.DELETE("/classes/:id/enroll/:studentID", auth.RequireManage(), h.Unenroll)
	g.GET("/classes/:id/students", h.ClassRoster)
	g.GET("/classes/:id/today", h.TodayRoster)

	g.POST("/face/register", auth.RequireManage(), h.RegisterFace)

	g.GET("/analytics/overview", h.Overview)
	g.GET("/analytics/status", h.CountByStatus)
	g.GET("/analytics/trend", h.WeeklyTrend)

	g.GET("/reports/export/csv", auth.RequireManage(), h.ExportCSV)
	g.GET("/reports/export/pdf", auth.RequireManage(), h.ExportPDF)

	g.POST("/feedback", h.SubmitFeedback)
	g.GET("/feedback/averages/:userID", h.FeedbackAverages)
	g.GET("/feedback/received/:userID", h.FeedbackReceived)

	g.GET("/sms/logs", auth.RequireManage(), h.SMSLogs)
}

// ---------- scans ----------

type scanRequest struct {
	ClassID  string `json:"class_id" binding:"required"`
	Image    string `json:"image" binding:"required"`
	DeviceID string `json:"device_id"`
}

// Scan runs the full capture flow: classify the face, then evaluate the
// attendance decision. The recognition call happens outside the atomic
// insert; its failure never leaves a partial record.
func (h *Handler) Scan(c *gin.Context) {
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	principal := auth.FromContext(c)
	if !auth.CanMark(principal) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not authorized"})
		return
	}

	match, err := h.face.Classify(c.Request.Context(), req.Image, req.ClassID)
	if err != nil {
		if errors.Is(err, faceclient.ErrNoMatch) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no matching student found"})
			return
		}
		log.Printf("face classify failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "face recognition unavailable"})
		return
	}

	// Photo storage is best-effort; a storage failure must not drop the scan.
	var photoURL string
	if h.cloud != nil {
		if res, err := h.cloud.UploadBase64(c.Request.Context(), req.Image); err != nil {
			log.Printf("scan photo upload failed: %v", err)
		} else {
			photoURL = res.SecureURL
		}
	}

	rec, err := h.evaluator.Evaluate(c.Request.Context(), match.StudentID, req.ClassID, time.Now().UTC(), attendance.ScanInput{
		PhotoURL:   photoURL,
		Confidence: &match.Confidence,
		MarkedBy:   principal.UserID,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

type manualMarkRequest struct {
	StudentID string `json:"student_id" binding:"required"`
	ClassID   string `json:"class_id" binding:"required"`
	Status    string `json:"status" binding:"required,oneof=present late absent"`
}

// ManualMark records attendance without a scan.
func (h *Handler) ManualMark(c *gin.Context) {
	var req manualMarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	principal := auth.FromContext(c)
	rec, err := h.evaluator.MarkManual(c.Request.Context(), req.StudentID, req.ClassID,
		attendance.Status(req.Status), principal.UserID, time.Now().UTC())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

// ListAttendance returns recent records. Students only ever see their own.
func (h *Handler) ListAttendance(c *gin.Context) {
	principal := auth.FromContext(c)
	f := attendance.Filter{
		ClassID:   c.Query("class_id"),
		StudentID: c.Query("student_id"),
		DateFrom:  c.Query("date_from"),
		DateTo:    c.Query("date_to"),
		Status:    c.Query("status"),
	}
	if principal.Role == auth.RoleStudent {
		f.StudentID = principal.UserID
	}
	records, err := h.aggregator.Recent(c.Request.Context(), f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

// ---------- classes ----------

type scheduleRequest struct {
	Weekday      int    `json:"weekday" validate:"min=0,max=6"`
	Start        string `json:"start" validate:"required"`
	End          string `json:"end" validate:"required"`
	GraceMinutes *int   `json:"grace_minutes"`
}

type createClassRequest struct {
	Name      string            `json:"name" validate:"required"`
	Subject   string            `json:"subject" validate:"required"`
	TeacherID string            `json:"teacher_id"`
	Schedules []scheduleRequest `json:"schedules" validate:"dive"`
}

func (h *Handler) CreateClass(c *gin.Context) {
	var req createClassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cls := attendance.Class{
		Name:      req.Name,
		Subject:   req.Subject,
		TeacherID: req.TeacherID,
	}
	for _, s := range req.Schedules {
		sched, err := h.schedule(s, "")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		cls.Schedules = append(cls.Schedules, sched)
	}

	created, err := h.repo.CreateClass(c.Request.Context(), cls)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) schedule(s scheduleRequest, classID string) (attendance.Schedule, error) {
	grace := h.cfg.DefaultGraceMinutes
	if s.GraceMinutes != nil {
		grace = *s.GraceMinutes
	}
	sched := attendance.Schedule{
		ClassID:      classID,
		Weekday:      time.Weekday(s.Weekday),
		Start:        s.Start,
		End:          s.End,
		GraceMinutes: grace,
	}
	return sched, sched.Validate(h.cfg.MaxGraceMinutes)
}

func (h *Handler) ListClasses(c *gin.Context) {
	classes, err := h.repo.ListClasses(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"classes": classes})
}

func (h *Handler) GetClass(c *gin.Context) {
	cls, err := h.repo.GetClass(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cls)
}

func (h *Handler) UpsertSchedule(c *gin.Context) {
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sched, err := h.schedule(req, c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.repo.UpsertSchedule(c.Request.Context(), sched); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sched)
}

type enrollRequest struct {
	StudentID string `json:"student_id" binding:"required"`
}

func (h *Handler) Enroll(c *gin.Context) {
	var req enrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.repo.Enroll(c.Request.Context(), req.StudentID, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "student enrolled"})
}

func (h *Handler) Unenroll(c *gin.Context) {
	if err := h.repo.Unenroll(c.Request.Context(), c.Param("studentID"), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "student unenrolled"})
}

func (h *Handler) ClassRoster(c *gin.Context) {
	students, err := h.repo.ClassRoster(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"students": students})
}

// TodayRoster shows every enrolled student's status for today, not_marked
// when no scan has landed yet.
func (h *Handler) TodayRoster(c *gin.Context) {
	day := attendance.DayOf(time.Now().UTC())
	roster, err := h.repo.TodayRoster(c.Request.Context(), c.Param("id"), day)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": day, "roster": roster})
}

// ---------- face registration ----------

type registerFaceRequest struct {
	StudentID string   `json:"student_id" binding:"required"`
	Images    []string `json:"images" binding:"required,min=1,max=5"`
}

// RegisterFace enrolls a student's face with the recognition service and
// flags the student record.
func (h *Handler) RegisterFace(c *gin.Context) {
	var req registerFaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.face.Enroll(c.Request.Context(), req.StudentID, req.Images); err != nil {
		log.Printf("face enroll failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "face enrollment failed"})
		return
	}
	if err := h.repo.SetFaceRegistered(c.Request.Context(), req.StudentID, true); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "face registered"})
}

// ---------- analytics ----------

func (h *Handler) Overview(c *gin.Context) {
	overview, err := h.aggregator.BuildOverview(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, overview)
}

func (h *Handler) CountByStatus(c *gin.Context) {
	counts, err := h.aggregator.CountByStatus(c.Request.Context(), attendance.Filter{
		ClassID:  c.Query("class_id"),
		DateFrom: c.Query("date_from"),
		DateTo:   c.Query("date_to"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, counts)
}

func (h *Handler) WeeklyTrend(c *gin.Context) {
	trend, err := h.aggregator.WeeklyTrend(c.Request.Context(), c.Query("class_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trend": trend})
}

// ---------- exports ----------

func (h *Handler) exportFilter(c *gin.Context) attendance.Filter {
	return attendance.Filter{
		ClassID:  c.Query("class_id"),
		DateFrom: c.Query("date_from"),
		DateTo:   c.Query("date_to"),
		Status:   c.Query("status"),
	}
}

// ExportCSV streams the filtered records as a CSV download.
func (h *Handler) ExportCSV(c *gin.Context) {
	f := h.exportFilter(c)
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="attendance_report.csv"`)

	err := export.WriteCSV(c.Writer, func(fn func(attendance.ExportRow) error) error {
		return h.aggregator.ExportRows(c.Request.Context(), f, fn)
	})
	if err != nil {
		// Headers may already be out; log and close.
		log.Printf("csv export failed: %v", err)
	}
}

// ExportPDF renders the filtered records as a PDF download.
func (h *Handler) ExportPDF(c *gin.Context) {
	f := h.exportFilter(c)

	period := ""
	if f.DateFrom != "" || f.DateTo != "" {
		from, to := f.DateFrom, f.DateTo
		if from == "" {
			from = "start"
		}
		if to == "" {
			to = "now"
		}
		period = "Period: " + from + " to " + to
	}

	c.Header("Content-Type", "application/pdf")
	c.Header("Content-Disposition", `attachment; filename="attendance_report.pdf"`)

	err := export.WritePDF(c.Writer, "Attendance Report", period, h.cfg.ExportPDFMaxRows,
		func(fn func(attendance.ExportRow) error) error {
			return h.aggregator.ExportRows(c.Request.Context(), f, fn)
		})
	if err != nil {
		log.Printf("pdf export failed: %v", err)
	}
}

// ---------- feedback ----------

type feedbackRequest struct {
	ToUserID string           `json:"to_user_id" binding:"required"`
	Ratings  feedback.Ratings `json:"ratings" binding:"required"`
	Comment  string           `json:"comment"`
}

func (h *Handler) SubmitFeedback(c *gin.Context) {
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	principal := auth.FromContext(c)
	if err := h.feedback.Submit(c.Request.Context(), principal.UserID, req.ToUserID, req.Ratings, req.Comment); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "feedback recorded"})
}

func (h *Handler) FeedbackAverages(c *gin.Context) {
	avgs, err := h.feedback.AverageRatings(c.Request.Context(), c.Param("userID"), c.Query("since"))
	if err != nil {
		writeError(c, err)
		return
	}
	if avgs == nil {
		c.JSON(http.StatusOK, gin.H{"averages": nil, "message": "no feedback yet"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"averages": avgs})
}

func (h *Handler) FeedbackReceived(c *gin.Context) {
	principal := auth.FromContext(c)
	userID := c.Param("userID")
	if principal.Role == auth.RoleStudent && principal.UserID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "not authorized"})
		return
	}
	entries, err := h.feedback.RecentReceived(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"feedback": entries})
}

// ---------- sms ----------

func (h *Handler) SMSLogs(c *gin.Context) {
	logs, err := h.smsLogs.RecentLogs(c.Request.Context(), h.cfg.SMSLogLimit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

// writeError maps the domain error taxonomy onto HTTP statuses. Anything not
// client-caused is a 500 with a generic body.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, attendance.ErrDuplicateScan),
		errors.Is(err, attendance.ErrAlreadyEnrolled):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, attendance.ErrClassNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, attendance.ErrNotEnrolled),
		errors.Is(err, attendance.ErrNoSchedule),
		errors.Is(err, attendance.ErrInvalidFilter),
		errors.Is(err, feedback.ErrSelfFeedback),
		errors.Is(err, feedback.ErrInvalidRating),
		errors.Is(err, feedback.ErrInvalidFilter):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.Printf("internal error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
