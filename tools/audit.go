package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/veridion/orgagent/reqctx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const auditResultExcerptLimit = 2000

// AuditEntry is one persisted tool invocation.
type AuditEntry struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Timestamp time.Time `gorm:"index" json:"timestamp"`
	RequestID string    `gorm:"index" json:"request_id,omitempty"`
	Tenant    string    `gorm:"index" json:"tenant,omitempty"`
	Tool      string    `gorm:"index" json:"tool"`
	Arguments string    `json:"arguments,omitempty"`
	// Result holds a bounded excerpt of the observation, not the full body.
	Result     string `json:"result,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// AuditFilter selects entries for Query. Zero-valued fields are ignored.
type AuditFilter struct {
	Tenant    string
	Tool      string
	RequestID string
	Since     *time.Time
	Until     *time.Time
	Limit     int
	Offset    int
}

// AuditStore persists audit entries in SQLite through GORM.
type AuditStore struct {
	db *gorm.DB
}

// OpenAuditStore opens (or creates) the audit database at path and migrates
// the schema. Use ":memory:" for an ephemeral store.
func OpenAuditStore(path string) (*AuditStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}
	if err := db.AutoMigrate(&AuditEntry{}); err != nil {
		return nil, fmt.Errorf("migrate audit schema: %w", err)
	}
	return &AuditStore{db: db}, nil
}

// Write persists one entry.
func (s *AuditStore) Write(ctx context.Context, entry *AuditEntry) error {
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}
	return nil
}

// Query returns entries matching the filter, newest first.
func (s *AuditStore) Query(ctx context.Context, filter AuditFilter) ([]AuditEntry, error) {
	q := s.db.WithContext(ctx).Model(&AuditEntry{})
	if filter.Tenant != "" {
		q = q.Where("tenant = ?", filter.Tenant)
	}
	if filter.Tool != "" {
		q = q.Where("tool = ?", filter.Tool)
	}
	if filter.RequestID != "" {
		q = q.Where("request_id = ?", filter.RequestID)
	}
	if filter.Since != nil {
		q = q.Where("timestamp >= ?", *filter.Since)
	}
	if filter.Until != nil {
		q = q.Where("timestamp <= ?", *filter.Until)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	var entries []AuditEntry
	if err := q.Order("timestamp DESC").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	return entries, nil
}

// Close closes the underlying database connection.
func (s *AuditStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// AuditLogger records tool outcomes asynchronously so the request path never
// waits on the database. A full queue drops entries with a warning.
type AuditLogger struct {
	store   *AuditStore
	queue   chan *AuditEntry
	wg      sync.WaitGroup
	logger  *zap.Logger
	closed  bool
	closeMu sync.Mutex
}

// AuditLoggerConfig configures the audit logger.
type AuditLoggerConfig struct {
	QueueSize int // default 1000
	Workers   int // default 2
}

// NewAuditLogger creates an audit logger writing to store.
func NewAuditLogger(store *AuditStore, cfg AuditLoggerConfig, logger *zap.Logger) *AuditLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = 1000
	}
	if cfg.Workers == 0 {
		cfg.Workers = 2
	}

	al := &AuditLogger{
		store:  store,
		queue:  make(chan *AuditEntry, cfg.QueueSize),
		logger: logger.With(zap.String("component", "audit_logger")),
	}

	for i := 0; i < cfg.Workers; i++ {
		al.wg.Add(1)
		go al.worker()
	}
	return al
}

func (al *AuditLogger) worker() {
	defer al.wg.Done()
	for entry := range al.queue {
		if err := al.store.Write(context.Background(), entry); err != nil {
			al.logger.Error("failed to write audit entry",
				zap.String("tool", entry.Tool),
				zap.Error(err),
			)
		}
	}
}

// LogResult queues one tool outcome. Tenant and request ID come from the
// execution context when present.
func (al *AuditLogger) LogResult(ctx context.Context, args json.RawMessage, result ToolResult) {
	entry := &AuditEntry{
		Timestamp:  time.Now().UTC(),
		RequestID:  reqctx.RequestID(ctx),
		Tool:       result.Name,
		Arguments:  string(args),
		Result:     auditExcerpt(result.Result),
		Error:      result.Error,
		DurationMS: result.Duration.Milliseconds(),
	}
	if scope, err := reqctx.FromContext(ctx); err == nil {
		entry.Tenant = scope.Tenant
	}
	al.enqueue(entry)
}

// enqueue holds closeMu across the send so Close cannot close the queue
// between the closed check and the send. The send never blocks, so the
// critical section stays short.
func (al *AuditLogger) enqueue(entry *AuditEntry) {
	al.closeMu.Lock()
	defer al.closeMu.Unlock()

	if al.closed {
		al.logger.Warn("audit logger is closed, dropping entry", zap.String("tool", entry.Tool))
		return
	}
	select {
	case al.queue <- entry:
	default:
		al.logger.Warn("audit queue full, dropping entry", zap.String("tool", entry.Tool))
	}
}

// Query reads persisted entries through the underlying store.
func (al *AuditLogger) Query(ctx context.Context, filter AuditFilter) ([]AuditEntry, error) {
	return al.store.Query(ctx, filter)
}

// Close flushes pending entries and closes the store.
func (al *AuditLogger) Close() error {
	al.closeMu.Lock()
	if al.closed {
		al.closeMu.Unlock()
		return nil
	}
	al.closed = true
	close(al.queue)
	al.closeMu.Unlock()

	al.wg.Wait()

	err := al.store.Close()
	al.logger.Info("audit logger closed")
	return err
}

func auditExcerpt(raw json.RawMessage) string {
	s := string(raw)
	if len(s) > auditResultExcerptLimit {
		s = s[:auditResultExcerptLimit]
	}
	return s
}
