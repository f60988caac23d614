package businessflow

import (
	"context"
	"encoding/json"

	"github.com/amirphl/food-parcel/models"
	"github.com/amirphl/food-parcel/repository"
	"github.com/amirphl/food-parcel/utils"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SystemActor is recorded as performedBy for scheduled runs
const SystemActor = "system:scheduler"

// writeAudit records an audit entry. Failures are logged, not returned; call
// it outside of transactions.
func writeAudit(ctx context.Context, repo repository.AuditLogRepository, logger zerolog.Logger, entry *models.AuditLog, metadata map[string]any) {
	if repo == nil {
		return
	}
	entry.ID = uuid.New()
	entry.CreatedAt = utils.UTCNow()
	if entry.Success == nil {
		entry.Success = utils.ToPtr(true)
	}
	if rid := utils.RequestID(ctx); rid != "" {
		entry.RequestID = &rid
	}
	if len(metadata) > 0 {
		if raw, err := json.Marshal(metadata); err == nil {
			entry.Metadata = raw
		}
	}
	if err := repo.Save(ctx, entry); err != nil {
		logger.Warn().Err(err).Str("action", entry.Action).Msg("failed to write audit log")
	}
}
