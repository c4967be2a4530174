package verification

import (
	"context"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"voice_verification/entity"
	"voice_verification/pkg/logger"
)

// RecordRepository keeps the audit trail of completed verifications.
type RecordRepository struct {
	db *gorm.DB
	l  logger.Interface
}

func NewRecordRepository(db *gorm.DB, l logger.Interface) *RecordRepository {
	return &RecordRepository{db: db, l: l}
}

func (r *RecordRepository) Migrate() error {
	return errors.Wrap(r.db.AutoMigrate(&entity.VerificationRecord{}), "migrate verification records")
}

// Create inserts rec. Redelivered events with a known request id are ignored.
func (r *RecordRepository) Create(ctx context.Context, rec *entity.VerificationRecord) error {
	ctx, span := otel.Tracer(traceName).Start(ctx, "CreateRecord")
	defer span.End()
	span.SetAttributes(attribute.String("request_id", rec.RequestID))

	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "request_id"}}, DoNothing: true}).
		Create(rec)
	if res.Error != nil {
		return errors.Wrap(res.Error, "insert verification record")
	}
	if res.RowsAffected == 0 {
		r.l.Debug("verification record %s already stored", rec.RequestID)
	}
	return nil
}

// RecordFromEvent maps a published event onto its stored row.
func RecordFromEvent(ev entity.VerificationEvent) *entity.VerificationRecord {
	return &entity.VerificationRecord{
		RequestID:  ev.RequestID,
		UserID:     ev.UserID,
		SoundID:    ev.SoundID,
		Score:      ev.Score,
		IsSame:     ev.IsSame,
		StoredName: ev.StoredName,
		Location:   ev.Location,
		VerifiedAt: ev.CreatedAt,
	}
}

var _ entity.VerificationRecordRepository = (*RecordRepository)(nil)
