package usage

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/ledgergate/ledgergate/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const recordTimeout = 5 * time.Second

// Event is one metering record to persist.
type Event struct {
	OrgID    uint64
	UserID   uint64
	APIKeyID *uint64

	ModelID    string
	OK         bool
	StatusCode int

	Tokens        Tokens
	CostUSDMicros int64

	TotalDurationMS int64
	TTFTMS          int64

	SourceIP    string
	ErrorDetail map[string]any
}

// Recorder persists usage events and bumps spend counters.
type Recorder struct {
	db *gorm.DB
}

func NewRecorder(conn *gorm.DB) *Recorder {
	return &Recorder{db: conn}
}

// Record persists one usage event and, in the same transaction, increments
// the user's and key's cumulative spend. Recording is best-effort: it runs
// under its own timeout so an expired request context cannot starve it, and
// failures are logged rather than returned so the caller's response is never
// blocked on accounting.
func (r *Recorder) Record(event Event) {
	if r == nil || r.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	row := models.UsageEvent{
		OrgID:           event.OrgID,
		UserID:          event.UserID,
		APIKeyID:        event.APIKeyID,
		ModelID:         strings.TrimSpace(event.ModelID),
		OK:              event.OK,
		StatusCode:      event.StatusCode,
		InputTokens:     event.Tokens.Input,
		CachedTokens:    event.Tokens.Cached,
		OutputTokens:    event.Tokens.Output,
		TotalTokens:     event.Tokens.Total,
		CostUSDMicros:   event.CostUSDMicros,
		TotalDurationMS: event.TotalDurationMS,
		TTFTMS:          event.TTFTMS,
	}
	if ip := strings.TrimSpace(event.SourceIP); ip != "" {
		row.SourceIP = &ip
	}
	if len(event.ErrorDetail) > 0 {
		if raw, errMarshal := json.Marshal(event.ErrorDetail); errMarshal == nil {
			row.ErrorDetail = datatypes.JSON(raw)
		}
	}

	errTx := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errCreate := tx.Create(&row).Error; errCreate != nil {
			return errCreate
		}
		if event.CostUSDMicros > 0 {
			errUser := tx.Model(&models.User{}).
				Where("id = ?", event.UserID).
				Update("spend_usd_micros_total", gorm.Expr("spend_usd_micros_total + ?", event.CostUSDMicros)).Error
			if errUser != nil {
				return errUser
			}
		}
		if event.APIKeyID != nil {
			updates := map[string]any{"last_used_at": tx.NowFunc()}
			if event.CostUSDMicros > 0 {
				updates["spend_usd_micros_total"] = gorm.Expr("spend_usd_micros_total + ?", event.CostUSDMicros)
			}
			errKey := tx.Model(&models.APIKey{}).
				Where("id = ?", *event.APIKeyID).
				Updates(updates).Error
			if errKey != nil {
				return errKey
			}
		}
		return nil
	})
	if errTx != nil {
		log.WithError(errTx).Warnf("usage: record failed (user=%d model=%s)", event.UserID, event.ModelID)
	}
}
