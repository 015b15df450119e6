package usage

import (
	"context"
	"sort"
	"time"

	"github.com/ledgergate/ledgergate/internal/models"
	"gorm.io/gorm"
)

// Summary aggregates the caller's usage over the trailing 24 hours.
type Summary struct {
	Requests24h    int64   `json:"requests24h"`
	Tokens24h      int64   `json:"tokens24h"`
	ErrorRate24h   float64 `json:"errorRate24h"`
	Spend24hUSD    float64 `json:"spend24hUsd"`
	Spend24hMicros int64   `json:"spend24hUsdMicros"`
}

// DailyPoint is one day of usage for the dashboard chart.
type DailyPoint struct {
	Date         string  `json:"date"`
	Requests     int64   `json:"requests"`
	InputTokens  int64   `json:"inputTokens"`
	OutputTokens int64   `json:"outputTokens"`
	TotalTokens  int64   `json:"totalTokens"`
	ErrorRate    float64 `json:"errorRate"`
}

// ModelStat is one model's share of the trailing 24 hours.
type ModelStat struct {
	Model       string `json:"model"`
	Requests    int64  `json:"requests"`
	TotalTokens int64  `json:"totalTokens"`
}

// Dashboard is the full usage response for the console.
type Dashboard struct {
	Summary   Summary      `json:"summary"`
	Daily     []DailyPoint `json:"daily"`
	TopModels []ModelStat  `json:"topModels"`
}

// GetDashboard builds the usage dashboard for one user: a 24h summary, a
// contiguous series of daily points, and the most used models. Daily buckets
// are computed in Go so the query stays portable across dialects.
func GetDashboard(ctx context.Context, conn *gorm.DB, orgID, userID uint64, days int) (*Dashboard, error) {
	if days <= 0 {
		days = 7
	}
	now := time.Now().UTC()
	start24h := now.Add(-24 * time.Hour)
	startDays := now.AddDate(0, 0, -days)

	var rows []models.UsageEvent
	errFind := conn.WithContext(ctx).
		Select("model_id", "ok", "input_tokens", "output_tokens", "total_tokens", "cost_usd_micros", "created_at").
		Where("org_id = ? AND user_id = ? AND created_at >= ?", orgID, userID, startDays).
		Find(&rows).Error
	if errFind != nil {
		return nil, errFind
	}

	dashboard := &Dashboard{}
	pointsByDay := make(map[string]*DailyPoint)
	errorsByDay := make(map[string]int64)
	modelStats := make(map[string]*ModelStat)
	var errors24h int64

	for i := range rows {
		row := &rows[i]
		createdAt := row.CreatedAt.UTC()

		if !createdAt.Before(start24h) {
			dashboard.Summary.Requests24h++
			dashboard.Summary.Tokens24h += row.TotalTokens
			dashboard.Summary.Spend24hMicros += row.CostUSDMicros
			if !row.OK {
				errors24h++
			}
			stat, ok := modelStats[row.ModelID]
			if !ok {
				stat = &ModelStat{Model: row.ModelID}
				modelStats[row.ModelID] = stat
			}
			stat.Requests++
			stat.TotalTokens += row.TotalTokens
		}

		day := createdAt.Format("2006-01-02")
		point, ok := pointsByDay[day]
		if !ok {
			point = &DailyPoint{Date: day}
			pointsByDay[day] = point
		}
		point.Requests++
		point.InputTokens += row.InputTokens
		point.OutputTokens += row.OutputTokens
		point.TotalTokens += row.TotalTokens
		if !row.OK {
			errorsByDay[day]++
		}
	}

	if dashboard.Summary.Requests24h > 0 {
		dashboard.Summary.ErrorRate24h = float64(errors24h) / float64(dashboard.Summary.Requests24h)
	}
	dashboard.Summary.Spend24hUSD = float64(dashboard.Summary.Spend24hMicros) / 1_000_000

	// Contiguous trailing window, oldest first, zero-filled gaps.
	dashboard.Daily = make([]DailyPoint, 0, days)
	today := now.Truncate(24 * time.Hour)
	for i := days - 1; i >= 0; i-- {
		day := today.AddDate(0, 0, -i).Format("2006-01-02")
		if point, ok := pointsByDay[day]; ok {
			if point.Requests > 0 {
				point.ErrorRate = float64(errorsByDay[day]) / float64(point.Requests)
			}
			dashboard.Daily = append(dashboard.Daily, *point)
			continue
		}
		dashboard.Daily = append(dashboard.Daily, DailyPoint{Date: day})
	}

	dashboard.TopModels = make([]ModelStat, 0, len(modelStats))
	for _, stat := range modelStats {
		dashboard.TopModels = append(dashboard.TopModels, *stat)
	}
	sort.Slice(dashboard.TopModels, func(i, j int) bool {
		if dashboard.TopModels[i].Requests != dashboard.TopModels[j].Requests {
			return dashboard.TopModels[i].Requests > dashboard.TopModels[j].Requests
		}
		return dashboard.TopModels[i].Model < dashboard.TopModels[j].Model
	})
	if len(dashboard.TopModels) > 5 {
		dashboard.TopModels = dashboard.TopModels[:5]
	}
	return dashboard, nil
}
