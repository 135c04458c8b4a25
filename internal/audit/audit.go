// Package audit writes append-only records of completed economy
// operations. The sink is fire-and-forget: the engine always attempts the
// write before declaring an operation complete, but a failed write only
// logs and never fails the operation.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Operation types recorded by the market service.
const (
	OpMarketList   = "market_list"
	OpMarketBuy    = "market_buy"
	OpMarketCancel = "market_cancel"
	OpMarketExpire = "market_expire"

	// Suffix appended when best-effort compensation could not restore a
	// consistent state; these entries exist for manual follow-up.
	OpSuffixCompensationFailed = "_compensation_failed"
)

// Entry is one immutable audit record.
type Entry struct {
	gorm.Model    `json:"-"`
	OperationType string    `gorm:"index" json:"operation_type"`
	ActorID       string    `gorm:"index" json:"actor_id"`
	TargetID      string    `json:"target_id"`
	GuildID       string    `gorm:"index" json:"guild_id"`
	CorrelationID string    `gorm:"index" json:"correlation_id"`
	Metadata      string    `gorm:"type:text" json:"metadata"`
	Timestamp     time.Time `json:"timestamp"`
}

// Service wraps the audit entries table.
type Service struct {
	db *gorm.DB
}

// NewService creates an audit sink.
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// NewCorrelationID builds a correlation id in the {prefix}_{timestamp}_{random}
// format shared by all records of one logical operation.
func NewCorrelationID(prefix string) string {
	random := strings.Split(uuid.New().String(), "-")[0]
	return fmt.Sprintf("%s_%d_%s", prefix, time.Now().UnixMilli(), random)
}

// Create writes one audit entry. Metadata is marshalled to JSON; a nil map
// stores an empty object.
func (s *Service) Create(ctx context.Context, operationType, actorID, targetID, guildID, correlationID string, metadata map[string]interface{}) error {
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}

	entry := &Entry{
		OperationType: operationType,
		ActorID:       actorID,
		TargetID:      targetID,
		GuildID:       guildID,
		CorrelationID: correlationID,
		Metadata:      string(meta),
		Timestamp:     time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("create audit entry: %w", err)
	}
	return nil
}

// Record is Create with the fire-and-forget contract applied: failures are
// logged and swallowed. Market flows call this exactly once per logical
// operation.
func (s *Service) Record(ctx context.Context, operationType, actorID, targetID, guildID, correlationID string, metadata map[string]interface{}) {
	if err := s.Create(ctx, operationType, actorID, targetID, guildID, correlationID, metadata); err != nil {
		log.Error().Err(err).
			Str("operation_type", operationType).
			Str("correlation_id", correlationID).
			Msg("audit write failed")
	}
}

// ByCorrelationID returns all entries sharing a correlation id, oldest
// first. Used by operator tooling for reconciliation.
func (s *Service) ByCorrelationID(ctx context.Context, correlationID string) ([]Entry, error) {
	var entries []Entry
	if err := s.db.WithContext(ctx).
		Where("correlation_id = ?", correlationID).
		Order("created_at ASC").
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("fetch audit entries: %w", err)
	}
	return entries, nil
}
