// Package server 以只读 HTTP API 暴露最近一次快照（书目、分类统计、筛选）。
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/John-Robertt/petwatch/internal/domain"
	"github.com/John-Robertt/petwatch/internal/snapshot"
	"github.com/John-Robertt/petwatch/internal/taxonomy"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

type Server struct {
	Store      snapshot.Store
	Classifier taxonomy.Classifier
	Log        *zap.Logger
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog())
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/api/records", s.listRecords) // ?animal=狗&topic=行為訓練&page=1&limit=50
	r.GET("/api/summary", s.summary)
	r.GET("/api/labels", s.labels)
	return r
}

// Serve 监听 addr，直到 ctx 取消后优雅退出。
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger().Info("API 已启动", zap.String("addr", addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) listRecords(c *gin.Context) {
	records, _, ok := s.load(c)
	if !ok {
		return
	}
	if v := c.Query("animal"); v != "" {
		records = taxonomy.FilterByAnimal(records, v)
	}
	if v := c.Query("topic"); v != "" {
		records = taxonomy.FilterByTopic(records, v)
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLimit)))
	if page <= 0 {
		page = 1
	}
	if limit <= 0 || limit > maxLimit {
		limit = defaultLimit
	}
	// 先比较页码再相乘，超大 page 不会溢出。
	start := len(records)
	if page-1 <= len(records)/limit {
		start = min((page-1)*limit, len(records))
	}
	end := start + limit
	if end > len(records) {
		end = len(records)
	}

	c.JSON(http.StatusOK, gin.H{
		"total": len(records),
		"page":  page,
		"limit": limit,
		"data":  records[start:end],
	})
}

func (s *Server) summary(c *gin.Context) {
	records, checkedAt, ok := s.load(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"total":         len(records),
		"lastCheckedAt": checkedAt,
		"animals":       nonNilCounts(s.Classifier.AnimalBreakdown(records)),
		"topics":        nonNilCounts(s.Classifier.TopicBreakdown(records)),
	})
}

func (s *Server) labels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"animals": s.Classifier.Animals.LabelNames(),
		"topics":  s.Classifier.Topics.LabelNames(),
	})
}

// load 读取快照；旧快照里没有标签的书目在这里补分类（不回写）。
func (s *Server) load(c *gin.Context) ([]domain.Record, *time.Time, bool) {
	snap, err := s.Store.Load(c.Request.Context())
	if err != nil {
		code := snapshot.Code(err)
		if code == "" {
			code = domain.ErrCodeSnapshotIO
		}
		s.logger().Error("读取快照失败", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error_code": code, "error": err.Error()})
		return nil, nil, false
	}

	records := make([]domain.Record, len(snap.Records))
	for i, r := range snap.Records {
		if len(r.AnimalTypes) == 0 || len(r.Topics) == 0 {
			r.AnimalTypes, r.Topics = s.Classifier.Classify(r)
		}
		records[i] = r
	}
	return records, snap.LastCheckedAt, true
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		s.logger().Info("http",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("dur", time.Since(started)),
		)
	}
}

func (s *Server) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

func nonNilCounts(in []domain.LabelCount) []domain.LabelCount {
	if in == nil {
		return []domain.LabelCount{}
	}
	return in
}
