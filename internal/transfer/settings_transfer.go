package transfer

type SettingsUpdate struct {
	Timezone string `json:"timezone" validate:"required"`
}
