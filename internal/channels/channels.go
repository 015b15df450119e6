// Package channels stores and selects upstream LLM endpoints.
package channels

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/ledgergate/ledgergate/internal/models"
	"gorm.io/gorm"
)

// Wildcard group names matching every user group.
var wildcardGroups = map[string]struct{}{"*": {}, "all": {}}

// Validation errors surfaced as HTTP 400 by the admin routes.
var (
	ErrInvalidBaseURL = errors.New("channels: invalid base url")
	ErrInvalidName    = errors.New("channels: invalid name")
	ErrNotFound       = errors.New("channels: not found")
)

// NormalizeBaseURL validates and canonicalizes an upstream base URL.
func NormalizeBaseURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	parsed, errParse := url.Parse(trimmed)
	if errParse != nil {
		return "", ErrInvalidBaseURL
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", ErrInvalidBaseURL
	}
	if parsed.Host == "" {
		return "", ErrInvalidBaseURL
	}
	normalized := strings.TrimRight(trimmed, "/")
	if len(normalized) > 400 {
		return "", ErrInvalidBaseURL
	}
	return normalized, nil
}

func normalizeName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if len(name) < 2 || len(name) > 64 {
		return "", ErrInvalidName
	}
	return name, nil
}

// PickForGroup selects the upstream channel for a user group: enabled
// channels whose group matches the user's group or a wildcard, highest
// priority first, oldest as the tiebreaker. Returns nil when none qualify.
func PickForGroup(ctx context.Context, conn *gorm.DB, orgID uint64, groupName string) (*models.Channel, error) {
	group := strings.TrimSpace(groupName)
	if group == "" {
		group = "default"
	}

	var rows []models.Channel
	errFind := conn.WithContext(ctx).
		Where("org_id = ? AND enabled = ?", orgID, true).
		Order("priority DESC, id ASC").
		Find(&rows).Error
	if errFind != nil {
		return nil, errFind
	}
	for i := range rows {
		allow := strings.TrimSpace(rows[i].GroupName)
		if allow == "" || allow == group {
			return &rows[i], nil
		}
		if _, ok := wildcardGroups[allow]; ok {
			return &rows[i], nil
		}
	}
	return nil, nil
}

// List returns all channels for an organization, oldest first.
func List(ctx context.Context, conn *gorm.DB, orgID uint64) ([]models.Channel, error) {
	var rows []models.Channel
	errFind := conn.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("id ASC").
		Find(&rows).Error
	return rows, errFind
}

// Create validates and inserts a channel.
func Create(ctx context.Context, conn *gorm.DB, orgID uint64, name, baseURL, apiKey, groupName string, priority int) (*models.Channel, error) {
	normalizedName, errName := normalizeName(name)
	if errName != nil {
		return nil, errName
	}
	normalizedURL, errURL := NormalizeBaseURL(baseURL)
	if errURL != nil {
		return nil, errURL
	}
	group := strings.TrimSpace(groupName)
	if group == "" {
		group = "default"
	}
	row := models.Channel{
		OrgID:     orgID,
		Name:      normalizedName,
		BaseURL:   normalizedURL,
		APIKey:    strings.TrimSpace(apiKey),
		GroupName: group,
		Enabled:   true,
		Priority:  priority,
	}
	if errCreate := conn.WithContext(ctx).Create(&row).Error; errCreate != nil {
		return nil, fmt.Errorf("channels: create: %w", errCreate)
	}
	return &row, nil
}

// Update applies partial changes to a channel.
type Update struct {
	Name      *string
	BaseURL   *string
	APIKey    *string
	GroupName *string
	Enabled   *bool
	Priority  *int
}

// Apply patches one channel and returns the updated row.
func Apply(ctx context.Context, conn *gorm.DB, orgID, channelID uint64, patch Update) (*models.Channel, error) {
	var row models.Channel
	errFind := conn.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, channelID).
		First(&row).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errFind
	}

	if patch.Name != nil {
		name, errName := normalizeName(*patch.Name)
		if errName != nil {
			return nil, errName
		}
		row.Name = name
	}
	if patch.BaseURL != nil {
		baseURL, errURL := NormalizeBaseURL(*patch.BaseURL)
		if errURL != nil {
			return nil, errURL
		}
		row.BaseURL = baseURL
	}
	if patch.APIKey != nil && strings.TrimSpace(*patch.APIKey) != "" {
		row.APIKey = strings.TrimSpace(*patch.APIKey)
	}
	if patch.GroupName != nil && strings.TrimSpace(*patch.GroupName) != "" {
		row.GroupName = strings.TrimSpace(*patch.GroupName)
	}
	if patch.Enabled != nil {
		row.Enabled = *patch.Enabled
	}
	if patch.Priority != nil {
		row.Priority = *patch.Priority
	}
	if errSave := conn.WithContext(ctx).Save(&row).Error; errSave != nil {
		return nil, fmt.Errorf("channels: update: %w", errSave)
	}
	return &row, nil
}

// Delete removes a channel.
func Delete(ctx context.Context, conn *gorm.DB, orgID, channelID uint64) error {
	result := conn.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, channelID).
		Delete(&models.Channel{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MaskAPIKey shortens an upstream secret for display.
func MaskAPIKey(value string) string {
	raw := strings.TrimSpace(value)
	if len(raw) <= 10 {
		return "********"
	}
	return raw[:6] + "..." + raw[len(raw)-4:]
}
