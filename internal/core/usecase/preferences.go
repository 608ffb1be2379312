package usecase

import "github.com/kirillkom/autofund-client/internal/core/domain"

// UpdatePreferences applies patch on top of what is currently shown and
// keeps the result pending until it is committed or discarded.
func (c *TaskClient) UpdatePreferences(patch domain.PreferencesPatch) domain.UserPreferences {
	c.prefsMu.Lock()
	defer c.prefsMu.Unlock()
	return c.prefs.Add(preferencesKey, c.preferencesLocked().Apply(patch))
}

func (c *TaskClient) Preferences() domain.UserPreferences {
	c.prefsMu.Lock()
	defer c.prefsMu.Unlock()
	return c.preferencesLocked()
}

// CommitPreferences makes the pending preferences the committed ones.
func (c *TaskClient) CommitPreferences() domain.UserPreferences {
	c.prefsMu.Lock()
	defer c.prefsMu.Unlock()
	if pending, ok := c.prefs.Get(preferencesKey); ok {
		c.committedPrefs = pending
		c.prefs.Confirm(preferencesKey)
	}
	return c.committedPrefs
}

// DiscardPreferences drops pending changes and returns the committed
// preferences.
func (c *TaskClient) DiscardPreferences() domain.UserPreferences {
	c.prefsMu.Lock()
	defer c.prefsMu.Unlock()
	c.prefs.Rollback(preferencesKey)
	return c.committedPrefs
}

func (c *TaskClient) preferencesLocked() domain.UserPreferences {
	if pending, ok := c.prefs.Get(preferencesKey); ok {
		return pending
	}
	return c.committedPrefs
}
