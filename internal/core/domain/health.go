package domain

type HealthStatus struct {
	Status           string `json:"status"`
	Timestamp        string `json:"timestamp"`
	Version          string `json:"version"`
	ActiveTasks      int    `json:"active_tasks"`
	APIKeyConfigured bool   `json:"api_key_configured"`
}

func (h HealthStatus) Healthy() bool {
	return h.Status == "healthy" || h.Status == "ok"
}

type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
	ThemeAuto  Theme = "auto"
)

func (t Theme) Valid() bool {
	return t == ThemeLight || t == ThemeDark || t == ThemeAuto
}

type UserPreferences struct {
	AutoDownload       bool   `json:"autoDownload"`
	EmailNotifications bool   `json:"emailNotifications"`
	Language           string `json:"language"`
	Theme              Theme  `json:"theme"`
}

func DefaultPreferences() UserPreferences {
	return UserPreferences{
		AutoDownload:       false,
		EmailNotifications: true,
		Language:           "pt",
		Theme:              ThemeAuto,
	}
}

// PreferencesPatch carries the fields a caller wants to change; nil
// fields keep their current value.
type PreferencesPatch struct {
	AutoDownload       *bool   `json:"autoDownload,omitempty"`
	EmailNotifications *bool   `json:"emailNotifications,omitempty"`
	Language           *string `json:"language,omitempty"`
	Theme              *Theme  `json:"theme,omitempty"`
}

func (p UserPreferences) Apply(patch PreferencesPatch) UserPreferences {
	out := p
	if patch.AutoDownload != nil {
		out.AutoDownload = *patch.AutoDownload
	}
	if patch.EmailNotifications != nil {
		out.EmailNotifications = *patch.EmailNotifications
	}
	if patch.Language != nil {
		out.Language = *patch.Language
	}
	if patch.Theme != nil {
		out.Theme = *patch.Theme
	}
	return out
}
