package repo

import (
	"context"
	"database/sql"
	"time"

	"syncline/internal/domain"
)

// MainSettingKey identifies the singleton integration settings row.
const MainSettingKey = "main"

// GetIntegrationSettings reads the settings row, defaulting to the main key.
func (r Repo) GetIntegrationSettings(ctx context.Context, key string) (domain.IntegrationSettings, error) {
	if key == "" {
		key = MainSettingKey
	}
	var s domain.IntegrationSettings
	var authURL, apiURL sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT setting_key,halopsa_auth_url,halopsa_api_url,updated_at FROM integration_settings WHERE setting_key=?`, key).
		Scan(&s.SettingKey, &authURL, &apiURL, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	if authURL.Valid {
		s.HaloAuthURL = authURL.String
	}
	if apiURL.Valid {
		s.HaloAPIURL = apiURL.String
	}
	return s, nil
}

// UpsertIntegrationSettings writes the settings row.
func (r Repo) UpsertIntegrationSettings(ctx context.Context, s domain.IntegrationSettings) error {
	if s.SettingKey == "" {
		s.SettingKey = MainSettingKey
	}
	if s.UpdatedAt == "" {
		s.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO integration_settings(setting_key,halopsa_auth_url,halopsa_api_url,updated_at) VALUES (?,?,?,?)
ON CONFLICT(setting_key) DO UPDATE SET halopsa_auth_url=excluded.halopsa_auth_url, halopsa_api_url=excluded.halopsa_api_url, updated_at=excluded.updated_at`,
		s.SettingKey, nullable(s.HaloAuthURL), nullable(s.HaloAPIURL), s.UpdatedAt)
	return err
}

// SeedIntegrationSettings inserts the row only when missing, so a config
// file cannot clobber values an admin edited through the API.
func (r Repo) SeedIntegrationSettings(ctx context.Context, authURL, apiURL string) error {
	if authURL == "" && apiURL == "" {
		return nil
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO integration_settings(setting_key,halopsa_auth_url,halopsa_api_url,updated_at) VALUES (?,?,?,?)
ON CONFLICT(setting_key) DO NOTHING`,
		MainSettingKey, nullable(authURL), nullable(apiURL), time.Now().UTC().Format(time.RFC3339))
	return err
}
