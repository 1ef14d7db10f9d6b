package database

import (
	"gorm.io/gorm"
)

// constraints are the guards AutoMigrate cannot express
var constraints = []string{
	// at most one open overstay penalty per storage booking
	`CREATE UNIQUE INDEX IF NOT EXISTS uniq_overstay_open_per_storage
		ON overstay_penalties (storage_booking_id)
		WHERE status <> 'resolved'`,

	// sweep scans
	`CREATE INDEX IF NOT EXISTS idx_storage_overstay_scan
		ON storage_bookings (end_date)
		WHERE status = 'confirmed' AND checkout_status = 'active' AND active_penalty_id IS NULL`,
	`CREATE INDEX IF NOT EXISTS idx_storage_checkout_review_scan
		ON storage_bookings (checkout_review_deadline)
		WHERE checkout_status = 'checkout_requested'`,
}

// MigrateConstraints adds the partial indexes and checks the lifecycle relies on
func MigrateConstraints(db *gorm.DB) error {
	for _, stmt := range constraints {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}
