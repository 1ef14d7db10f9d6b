package database

import (
	"kitchenhub/internal/bookings"
	"kitchenhub/internal/cancellation"
	"kitchenhub/internal/extensions"
	"kitchenhub/internal/overstay"
	"kitchenhub/internal/payments"
	"kitchenhub/internal/policies"

	"gorm.io/gorm"
)

// Models lists every table the service owns, in dependency order
func Models() []interface{} {
	return []interface{}{
		&policies.LocationPolicy{},
		&payments.PaymentAuthorization{},
		&payments.ProcessedEvent{},
		&bookings.BookingGroup{},
		&bookings.StorageBooking{},
		&bookings.EquipmentBooking{},
		&cancellation.CancellationRequest{},
		&overstay.PenaltyRecord{},
		&overstay.PenaltyEvent{},
		&extensions.ExtensionRequest{},
	}
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return err
	}
	return MigrateConstraints(db)
}
