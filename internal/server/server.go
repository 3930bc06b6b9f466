package server

import (
	"bytes"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/yuin/goldmark"

	"github.com/TobiSchelling/nilintel/internal/config"
	"github.com/TobiSchelling/nilintel/internal/database"
	"github.com/TobiSchelling/nilintel/internal/matching"
	"github.com/TobiSchelling/nilintel/internal/metrics"
	"github.com/TobiSchelling/nilintel/internal/pipeline"
	"github.com/TobiSchelling/nilintel/internal/signals"
	"github.com/TobiSchelling/nilintel/internal/valuation"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New()

// CronSecretHeader carries the shared secret for job triggers.
const CronSecretHeader = "X-Cron-Secret"

const defaultListLimit = 20

// Server is the HTTP API and digest viewer.
type Server struct {
	db         *database.DB
	pipeline   *pipeline.Pipeline
	metrics    *metrics.Recorder
	valuator   *valuation.Engine
	signals    *signals.Ingester
	calculator *clientLimiter
	cronSecret string
	pages      map[string]*template.Template
	router     *gin.Engine
}

// New creates a new Server. The job trigger secret is read from the
// environment variable named by cfg.Server.CronSecretEnv.
func New(cfg *config.Config, db *database.DB, rec *metrics.Recorder) (*Server, error) {
	if rec == nil {
		rec = metrics.New()
	}

	pages, err := parsePages()
	if err != nil {
		return nil, err
	}

	s := &Server{
		db:         db,
		pipeline:   pipeline.New(cfg, db, rec),
		metrics:    rec,
		valuator:   valuation.New(valuation.DefaultTables()),
		signals:    signals.NewIngester(db),
		calculator: newClientLimiter(cfg.Server.CalculatorPerHour, cfg.Server.CalculatorBurst),
		cronSecret: os.Getenv(cfg.Server.CronSecretEnv),
		pages:      pages,
	}
	if s.cronSecret == "" {
		log.Warnf("%s is not set; job triggers will be rejected", cfg.Server.CronSecretEnv)
	}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func parsePages() (map[string]*template.Template, error) {
	funcMap := template.FuncMap{
		"markdown": renderMarkdown,
	}

	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// Each page gets its own clone of base so its "title" and "content"
	// definitions do not collide.
	pageNames := []string{"index.html", "digest.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		if _, err := clone.ParseFS(templateFS, "templates/"+name); err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}
	return pages, nil
}

func (s *Server) routes() {
	r := gin.New()
	r.Use(gin.Recovery(), s.observe)

	staticSub, _ := fs.Sub(staticFS, "static")
	r.StaticFS("/static", http.FS(staticSub))

	r.GET("/healthz", s.handleHealth)
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	r.GET("/", s.handleIndex)
	r.GET("/digest/:date", s.handleDigest)

	api := r.Group("/api/v1")
	{
		api.POST("/valuation", s.handleCalculate)
		api.GET("/ratecards", s.handleRateCards)
		api.GET("/athletes/:id/valuation", s.handleAthleteValuation)
		api.GET("/matches", s.handleMatches)
		api.GET("/deal-intel", s.handleDealIntel)
	}

	admin := api.Group("", s.requireCronSecret)
	{
		admin.POST("/jobs/:name", s.handleRunJob)
		admin.POST("/deal-intel/:id/review", s.handleReviewDealIntel)
		admin.POST("/matches/:id/status", s.handleMatchStatus)
		admin.POST("/signals", s.handleIngestSignal)
	}

	s.router = r
}

func (s *Server) observe(c *gin.Context) {
	c.Next()
	route := c.FullPath()
	if route == "" {
		route = "unmatched"
	}
	s.metrics.ObserveRequest(route, c.Writer.Status())
	log.WithFields(log.Fields{
		"method": c.Request.Method,
		"route":  route,
		"status": c.Writer.Status(),
	}).Debug("request")
}

func (s *Server) requireCronSecret(c *gin.Context) {
	got := c.GetHeader(CronSecretHeader)
	if s.cronSecret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(s.cronSecret)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Next()
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleCalculate(c *gin.Context) {
	var in valuation.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	if msg := s.validateCalculatorInput(in); msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}

	if !s.calculator.Allow(clientKey(c)) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded, please try again later"})
		return
	}

	rows, err := s.db.GetRateCards(strings.ToLower(strings.TrimSpace(in.Sport)))
	if err != nil {
		log.Errorf("loading rate cards: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	cards := valuation.CardsFromRateCards(rows, valuation.EngagementTier(in.EngagementRate))
	c.JSON(http.StatusOK, s.valuator.Compute(in, cards))
}

func (s *Server) validateCalculatorInput(in valuation.Input) string {
	if !s.valuator.KnownSport(in.Sport) {
		return "sport is required and must be a valid sport"
	}
	if !s.valuator.KnownSkill(in.SkillLevel) {
		return "skill_level is required and must be a valid skill level"
	}
	hasFollowers := false
	for _, h := range in.Handles {
		if h.Followers < 0 {
			return "followers must not be negative"
		}
		if h.Followers > 0 {
			hasFollowers = true
		}
	}
	if !hasFollowers {
		return "at least one follower or subscriber count is required"
	}
	if in.EngagementRate != nil && (*in.EngagementRate < 0 || *in.EngagementRate > 100) {
		return "engagement_rate must be between 0 and 100"
	}
	return ""
}

type rateCardResponse struct {
	Sport          string  `json:"sport"`
	Platform       string  `json:"platform"`
	ContentType    string  `json:"content_type"`
	FollowerTier   string  `json:"follower_tier"`
	EngagementTier string  `json:"engagement_tier"`
	RateLow        float64 `json:"rate_low"`
	RateMedian     float64 `json:"rate_median"`
	RateHigh       float64 `json:"rate_high"`
	SampleSize     int     `json:"sample_size"`
	UpdatedAt      *string `json:"updated_at,omitempty"`
}

func (s *Server) handleRateCards(c *gin.Context) {
	sport := strings.ToLower(strings.TrimSpace(c.Query("sport")))
	if sport == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sport query parameter is required"})
		return
	}
	rows, err := s.db.GetRateCards(sport)
	if err != nil {
		log.Errorf("loading rate cards: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	out := make([]rateCardResponse, 0, len(rows))
	for _, rc := range rows {
		out = append(out, rateCardResponse{
			Sport:          rc.Sport,
			Platform:       rc.Platform,
			ContentType:    rc.ContentType,
			FollowerTier:   rc.FollowerTier,
			EngagementTier: rc.EngagementTier,
			RateLow:        rc.RateLow,
			RateMedian:     rc.RateMedian,
			RateHigh:       rc.RateHigh,
			SampleSize:     rc.SampleSize,
			UpdatedAt:      rc.UpdatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"sport": sport, "rate_cards": out})
}

type valuationResponse struct {
	AthleteID       int64           `json:"athlete_id"`
	AsOf            string          `json:"as_of"`
	AnnualLow       int64           `json:"annual_low"`
	AnnualHigh      int64           `json:"annual_high"`
	FollowerTier    string          `json:"follower_tier"`
	Percentile      int             `json:"percentile"`
	Confidence      int             `json:"confidence"`
	ComparableCount int             `json:"comparable_count"`
	Data            json.RawMessage `json:"data"`
}

func (s *Server) handleAthleteValuation(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid athlete id"})
		return
	}
	v, err := s.db.GetLatestValuation(id)
	if err != nil {
		log.WithFields(log.Fields{"athlete_id": id}).Errorf("loading valuation: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	if v == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no valuation for athlete"})
		return
	}
	c.JSON(http.StatusOK, valuationResponse{
		AthleteID:       v.AthleteID,
		AsOf:            v.AsOf,
		AnnualLow:       v.AnnualLow,
		AnnualHigh:      v.AnnualHigh,
		FollowerTier:    v.FollowerTier,
		Percentile:      v.Percentile,
		Confidence:      v.Confidence,
		ComparableCount: v.ComparableCount,
		Data:            json.RawMessage(v.ValuationData),
	})
}

type matchResponse struct {
	ID          int64   `json:"id"`
	AthleteName string  `json:"athlete_name"`
	BrandName   string  `json:"brand_name"`
	MatchScore  float64 `json:"match_score"`
	Status      string  `json:"status"`
	ExpiresAt   *string `json:"expires_at,omitempty"`
}

func (s *Server) handleMatches(c *gin.Context) {
	matches, err := s.db.GetOpenMatchSummaries(database.FormatTime(time.Now()), listLimit(c))
	if err != nil {
		log.Errorf("loading matches: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	out := make([]matchResponse, 0, len(matches))
	for _, m := range matches {
		out = append(out, matchResponse(m))
	}
	c.JSON(http.StatusOK, gin.H{"matches": out})
}

func (s *Server) handleIngestSignal(c *gin.Context) {
	var sig signals.Signal
	if err := c.ShouldBindJSON(&sig); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}

	out, err := s.signals.Ingest(sig)
	switch {
	case errors.Is(err, signals.ErrMissingType), errors.Is(err, signals.ErrMissingBrand),
		errors.Is(err, signals.ErrInvalidTimestamp), errors.Is(err, signals.ErrInvalidRawData):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case err != nil:
		log.WithFields(log.Fields{"brand": sig.BrandName}).Errorf("ingesting signal: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to insert signal"})
	case out.Deduplicated:
		c.JSON(http.StatusOK, out)
	default:
		c.JSON(http.StatusCreated, out)
	}
}

type matchStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (s *Server) handleMatchStatus(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid match id"})
		return
	}
	var req matchStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status is required"})
		return
	}

	m, err := matching.SetStatus(s.db, id, matching.Status(strings.ToLower(strings.TrimSpace(req.Status))))
	switch {
	case errors.Is(err, matching.ErrMatchNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "match not found"})
	case errors.Is(err, matching.ErrInvalidTransition), errors.Is(err, matching.ErrStatusChanged):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err != nil:
		log.WithFields(log.Fields{"match_id": id}).Errorf("updating status: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	default:
		c.JSON(http.StatusOK, gin.H{"id": m.ID, "status": m.Status})
	}
}

type dealIntelResponse struct {
	ID                   int64    `json:"id"`
	SourceType           string   `json:"source_type"`
	SourceURL            string   `json:"source_url"`
	SourceTitle          *string  `json:"source_title,omitempty"`
	BrandName            *string  `json:"brand_name,omitempty"`
	AthleteName          *string  `json:"athlete_name,omitempty"`
	AmountLow            *float64 `json:"amount_low,omitempty"`
	AmountHigh           *float64 `json:"amount_high,omitempty"`
	Sport                *string  `json:"sport,omitempty"`
	ExtractionConfidence float64  `json:"extraction_confidence"`
	Reviewed             bool     `json:"reviewed"`
	CreatedAt            string   `json:"created_at"`
}

func (s *Server) handleDealIntel(c *gin.Context) {
	records, err := s.db.GetRecentDealIntel(listLimit(c))
	if err != nil {
		log.Errorf("loading deal intel: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	out := make([]dealIntelResponse, 0, len(records))
	for _, d := range records {
		out = append(out, dealIntelResponse{
			ID:                   d.ID,
			SourceType:           d.SourceType,
			SourceURL:            d.SourceURL,
			SourceTitle:          d.SourceTitle,
			BrandName:            d.BrandName,
			AthleteName:          d.AthleteName,
			AmountLow:            d.AmountLow,
			AmountHigh:           d.AmountHigh,
			Sport:                d.Sport,
			ExtractionConfidence: d.ExtractionConfidence,
			Reviewed:             d.Reviewed,
			CreatedAt:            d.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"deal_intel": out})
}

func (s *Server) handleReviewDealIntel(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid deal intel id"})
		return
	}
	found, err := s.db.MarkDealIntelReviewed(id)
	if err != nil {
		log.WithFields(log.Fields{"deal_intel_id": id}).Errorf("marking reviewed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "deal intel not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "reviewed": true})
}

func (s *Server) handleRunJob(c *gin.Context) {
	name := c.Param("name")
	step, err := s.pipeline.RunJob(c.Request.Context(), name)
	if errors.Is(err, pipeline.ErrUnknownJob) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "jobs": pipeline.JobNames()})
		return
	}
	if step.Err != nil {
		log.WithFields(log.Fields{"job": name}).Errorf("job failed: %v", step.Err)
		c.JSON(http.StatusInternalServerError, gin.H{"job": name, "error": step.Err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": name, "summary": step.Summary})
}

func (s *Server) handleIndex(c *gin.Context) {
	digests, err := s.db.GetAllDigests()
	if err != nil {
		c.String(http.StatusInternalServerError, "Internal server error")
		return
	}
	s.render(c, http.StatusOK, "index.html", map[string]any{
		"Digests": digests,
	})
}

func (s *Server) handleDigest(c *gin.Context) {
	date := c.Param("date")
	d, err := s.db.GetDigest(date)
	if err != nil {
		c.String(http.StatusInternalServerError, "Internal server error")
		return
	}
	status := http.StatusOK
	if d == nil {
		status = http.StatusNotFound
	}
	s.render(c, status, "digest.html", map[string]any{
		"Digest": d,
		"Date":   date,
	})
}

func (s *Server) render(c *gin.Context, status int, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		log.Printf("Template %s not found", name)
		c.String(http.StatusInternalServerError, "Internal server error")
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base.html", data); err != nil {
		log.Printf("Error rendering template %s: %v", name, err)
		c.String(http.StatusInternalServerError, "Internal server error")
		return
	}
	c.Data(status, "text/html; charset=utf-8", buf.Bytes())
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

func clientKey(c *gin.Context) string {
	if ip := c.ClientIP(); ip != "" {
		return ip
	}
	return "unknown"
}

func listLimit(c *gin.Context) int {
	n, err := strconv.Atoi(c.Query("limit"))
	if err != nil || n <= 0 || n > 100 {
		return defaultListLimit
	}
	return n
}

// Serve starts the HTTP server on the given port.
func Serve(cfg *config.Config, db *database.DB, rec *metrics.Recorder) error {
	srv, err := New(cfg, db, rec)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	log.Printf("Server listening on http://%s", addr)
	return http.ListenAndServe(addr, srv.Handler())
}
