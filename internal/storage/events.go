package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"gorm.io/gorm"

	"pageproxy/pkg/model"
)

// ProxyEventRecord 拦截事件记录
type ProxyEventRecord struct {
	ID         string `gorm:"primaryKey;size:36"`
	SessionID  string `gorm:"index;size:36"`
	TargetID   string `gorm:"index"`
	Outcome    string `gorm:"index;size:16"`
	Reason     string
	URL        string
	Method     string `gorm:"size:16"`
	ProxyURL   string
	StatusCode int
	Headers    string // JSON 对象
	DurationMS int64
	Error      string
	Timestamp  int64 `gorm:"index"`
	CreatedAt  time.Time
}

// EventQuery 查询条件，零值字段不参与过滤
type EventQuery struct {
	Session model.SessionID
	Target  model.TargetID
	Outcome model.Outcome
	Limit   int
}

// EventRepo 事件历史仓库
type EventRepo struct {
	db *gorm.DB
}

// NewEventRepo 创建事件仓库
func NewEventRepo(db *gorm.DB) *EventRepo {
	return &EventRepo{db: db}
}

// Save 写入一条事件
func (r *EventRepo) Save(ctx context.Context, evt model.Event) error {
	rec, err := toRecord(evt)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("save event %s: %w", evt.ID, err)
	}
	return nil
}

// List 按时间倒序查询事件
func (r *EventRepo) List(ctx context.Context, q EventQuery) ([]model.Event, error) {
	tx := r.db.WithContext(ctx).Model(&ProxyEventRecord{})
	if q.Session != "" {
		tx = tx.Where("session_id = ?", string(q.Session))
	}
	if q.Target != "" {
		tx = tx.Where("target_id = ?", string(q.Target))
	}
	if q.Outcome != "" {
		tx = tx.Where("outcome = ?", string(q.Outcome))
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}

	var recs []ProxyEventRecord
	if err := tx.Order("timestamp DESC").Order("created_at DESC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	out := make([]model.Event, 0, len(recs))
	for i := range recs {
		out = append(out, fromRecord(&recs[i]))
	}
	return out, nil
}

// DeleteSession 删除会话的全部事件
func (r *EventRepo) DeleteSession(ctx context.Context, id model.SessionID) (int64, error) {
	res := r.db.WithContext(ctx).Where("session_id = ?", string(id)).Delete(&ProxyEventRecord{})
	return res.RowsAffected, res.Error
}

func toRecord(evt model.Event) (*ProxyEventRecord, error) {
	headers, err := encodeHeaders(evt.Headers)
	if err != nil {
		return nil, err
	}
	return &ProxyEventRecord{
		ID:         evt.ID,
		SessionID:  string(evt.Session),
		TargetID:   string(evt.Target),
		Outcome:    string(evt.Outcome),
		Reason:     evt.Reason,
		URL:        evt.URL,
		Method:     evt.Method,
		ProxyURL:   evt.ProxyURL,
		StatusCode: evt.StatusCode,
		Headers:    headers,
		DurationMS: evt.DurationMS,
		Error:      evt.Error,
		Timestamp:  evt.Timestamp,
	}, nil
}

func fromRecord(rec *ProxyEventRecord) model.Event {
	return model.Event{
		ID:         rec.ID,
		Session:    model.SessionID(rec.SessionID),
		Target:     model.TargetID(rec.TargetID),
		Outcome:    model.Outcome(rec.Outcome),
		Reason:     rec.Reason,
		URL:        rec.URL,
		Method:     rec.Method,
		ProxyURL:   rec.ProxyURL,
		StatusCode: rec.StatusCode,
		Headers:    decodeHeaders(rec.Headers),
		DurationMS: rec.DurationMS,
		Error:      rec.Error,
		Timestamp:  rec.Timestamp,
	}
}

var pathEscaper = strings.NewReplacer(`\`, `\\`, ".", `\.`, "*", `\*`, "?", `\?`, "|", `\|`, "#", `\#`, "@", `\@`)

// encodeHeaders 逐个键写入 JSON 对象
func encodeHeaders(h map[string]string) (string, error) {
	doc := "{}"
	for k, v := range h {
		var err error
		doc, err = sjson.Set(doc, pathEscaper.Replace(k), v)
		if err != nil {
			return "", fmt.Errorf("encode header %s: %w", k, err)
		}
	}
	return doc, nil
}

func decodeHeaders(doc string) map[string]string {
	if doc == "" || doc == "{}" {
		return nil
	}
	out := make(map[string]string)
	gjson.Parse(doc).ForEach(func(k, v gjson.Result) bool {
		out[k.String()] = v.String()
		return true
	})
	return out
}
