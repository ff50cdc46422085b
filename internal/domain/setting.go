package domain

// Well-known setting keys
const (
	SettingMinDeposit  = "min_deposit_sol" // Deposits below this are ignored by the monitor
	SettingSupportLink = "support_link"    // Shown to buyers in the storefront
)

// Setting Model, a key/value pair tunable at runtime by admins.
type Setting struct {
	Key       string `gorm:"primaryKey;size:64"`   // Setting key
	Value     string // Setting value
	UpdatedAt int64  `gorm:"autoUpdateTime:milli"` // Timestamp of last change in milliseconds
}
