package db

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/brighthive/authserver/pkg/encryption"
	"github.com/brighthive/authserver/pkg/types"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrNotFound is returned when a requested record does not exist. An
// expired or already-consumed authorization code surfaces as ErrNotFound
// so callers cannot distinguish the two.
var ErrNotFound = errors.New("record not found")

// Store represents the database connection and operations.
type Store struct {
	db     *gorm.DB
	dbType string // "postgres" or "sqlite"
}

// New creates a new database connection and sets up the schema. An
// empty DSN selects a local SQLite database under data/.
func New(dsn string) (*Store, error) {
	var gormDB *gorm.DB
	var dbType string
	var err error

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	if dsn == "" {
		dataDir := "data"
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		gormDB, err = gorm.Open(sqlite.Open(filepath.Join(dataDir, "authserver.db")), gormConfig)
		dbType = "sqlite"
	} else if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		gormDB, err = gorm.Open(postgres.Open(dsn), gormConfig)
		dbType = "postgres"
	} else {
		gormDB, err = gorm.Open(sqlite.Open(dsn), gormConfig)
		dbType = "sqlite"
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: gormDB, dbType: dbType}
	if err := store.setupSchema(); err != nil {
		return nil, fmt.Errorf("failed to setup schema: %w", err)
	}

	return store, nil
}

func (d *Store) setupSchema() error {
	err := d.db.AutoMigrate(
		&types.User{},
		&types.Client{},
		&types.AuthorizationCode{},
		&types.Token{},
		&types.AuthorizedClient{},
	)
	if err != nil {
		return fmt.Errorf("failed to auto-migrate database schema: %w", err)
	}
	return nil
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// CreateUser stores a new user.
func (d *Store) CreateUser(user *types.User) error {
	return d.db.Create(user).Error
}

// GetUser retrieves a user by ID.
func (d *Store) GetUser(id string) (*types.User, error) {
	var user types.User
	if err := d.db.First(&user, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// GetUserByUsername retrieves a user by username.
func (d *Store) GetUserByUsername(username string) (*types.User, error) {
	var user types.User
	if err := d.db.First(&user, "username = ?", username).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// DeleteUser deletes a user and everything the user owns: clients,
// authorization codes, and tokens.
func (d *Store) DeleteUser(id string) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&types.Token{}, "user_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&types.AuthorizationCode{}, "user_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&types.Client{}, "user_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&types.AuthorizedClient{}, "user_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&types.User{}, "id = ?", id).Error
	})
}

// CreateClient stores a new client.
func (d *Store) CreateClient(client *types.Client) error {
	if client.IssuedAt == 0 {
		client.IssuedAt = time.Now().Unix()
	}
	return d.db.Create(client).Error
}

// GetClient retrieves a client by its public client identifier.
func (d *Store) GetClient(clientID string) (*types.Client, error) {
	var client types.Client
	if err := d.db.First(&client, "client_id = ?", clientID).Error; err != nil {
		return nil, translate(err)
	}
	return &client, nil
}

// SaveClient updates an existing client or inserts a new one.
func (d *Store) SaveClient(client *types.Client) error {
	return d.db.Save(client).Error
}

// RotateClientSecret regenerates a client's secret in place, leaving
// the client identifier unchanged. Returns the new secret.
func (d *Store) RotateClientSecret(clientID string) (string, error) {
	secret := encryption.GenerateRandomString(36)
	result := d.db.Model(&types.Client{}).Where("client_id = ?", clientID).Update("client_secret", secret)
	if result.Error != nil {
		return "", result.Error
	}
	if result.RowsAffected == 0 {
		return "", ErrNotFound
	}
	return secret, nil
}

// DeleteClientSecret nulls a client's secret, disabling authentication
// until the secret is rotated.
func (d *Store) DeleteClientSecret(clientID string) error {
	result := d.db.Model(&types.Client{}).Where("client_id = ?", clientID).Update("client_secret", "")
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateAuthCode stores an authorization code at consent-granted time.
func (d *Store) CreateAuthCode(code *types.AuthorizationCode) error {
	if code.AuthTime == 0 {
		code.AuthTime = time.Now().Unix()
	}
	return d.db.Create(code).Error
}

// GetAuthCode retrieves an authorization code by (code, client) without
// consuming it. Expired codes are reported as absent.
func (d *Store) GetAuthCode(code, clientID string) (*types.AuthorizationCode, error) {
	var item types.AuthorizationCode
	if err := d.db.First(&item, "code = ? AND client_id = ?", code, clientID).Error; err != nil {
		return nil, translate(err)
	}
	if item.IsExpired() {
		return nil, ErrNotFound
	}
	return &item, nil
}

// ConsumeAuthCode redeems an authorization code: it reads the row and
// deletes it, enforcing single use. The delete's row count is the
// arbiter under concurrent redemption; the second redeemer observes
// ErrNotFound. An expired code is consumed but still reported absent.
func (d *Store) ConsumeAuthCode(code, clientID string) (*types.AuthorizationCode, error) {
	var item types.AuthorizationCode
	err := d.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&item, "code = ? AND client_id = ?", code, clientID).Error; err != nil {
			return translate(err)
		}

		result := tx.Delete(&types.AuthorizationCode{}, "id = ?", item.ID)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			// Another redemption got here first.
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if item.IsExpired() {
		return nil, ErrNotFound
	}
	return &item, nil
}

// SaveToken stores an access/refresh token pair at grant completion.
func (d *Store) SaveToken(token *types.Token) error {
	if token.IssuedAt == 0 {
		token.IssuedAt = time.Now().Unix()
	}
	if token.TokenType == "" {
		token.TokenType = "Bearer"
	}
	return d.db.Create(token).Error
}

// GetTokenByAccess retrieves a token pair by access token value.
func (d *Store) GetTokenByAccess(accessToken string) (*types.Token, error) {
	var token types.Token
	if err := d.db.First(&token, "access_token = ?", accessToken).Error; err != nil {
		return nil, translate(err)
	}
	return &token, nil
}

// GetTokenByRefresh retrieves a token pair by refresh token value.
func (d *Store) GetTokenByRefresh(refreshToken string) (*types.Token, error) {
	var token types.Token
	if err := d.db.First(&token, "refresh_token = ? AND refresh_token <> ''", refreshToken).Error; err != nil {
		return nil, translate(err)
	}
	return &token, nil
}

// FindToken retrieves a token pair by either its access or refresh
// token value.
func (d *Store) FindToken(value string) (*types.Token, error) {
	token, err := d.GetTokenByAccess(value)
	if err == nil {
		return token, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return d.GetTokenByRefresh(value)
}

// RevokeToken marks the token pair matching the given access or refresh
// token value as revoked. Revoking an unknown or already-revoked token
// is a no-op success.
func (d *Store) RevokeToken(value string) error {
	result := d.db.Model(&types.Token{}).Where("access_token = ?", value).Update("revoked", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	return d.db.Model(&types.Token{}).
		Where("refresh_token = ? AND refresh_token <> ''", value).
		Update("revoked", true).Error
}

// ClientAuthorized reports whether the user has previously granted the
// client consent.
func (d *Store) ClientAuthorized(userID, clientID string) (bool, error) {
	var count int64
	err := d.db.Model(&types.AuthorizedClient{}).
		Where("user_id = ? AND client_id = ? AND authorized = ?", userID, clientID, true).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// SaveClientAuthorization durably records the user's consent for the
// client. Saving the same pair twice is not an error.
func (d *Store) SaveClientAuthorization(userID, clientID string) error {
	return d.db.Save(&types.AuthorizedClient{
		UserID:     userID,
		ClientID:   clientID,
		Authorized: true,
	}).Error
}

// CleanupExpired removes authorization codes past their TTL and token
// pairs whose refresh window has also closed.
func (d *Store) CleanupExpired() error {
	now := time.Now().Unix()

	result := d.db.Where("auth_time + ? <= ?", types.AuthCodeLifetime, now).Delete(&types.AuthorizationCode{})
	if result.Error != nil {
		return fmt.Errorf("failed to cleanup expired authorization codes: %w", result.Error)
	}

	result = d.db.Where("issued_at + 2 * expires_in <= ?", now).Delete(&types.Token{})
	if result.Error != nil {
		return fmt.Errorf("failed to cleanup expired tokens: %w", result.Error)
	}

	return nil
}

// Close closes the database connection.
func (d *Store) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
