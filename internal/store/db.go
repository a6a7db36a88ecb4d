package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Database wraps the GORM DB handle behind the session key/value contract.
type Database struct {
	gorm *gorm.DB
	mu   sync.Mutex
}

// Open initializes the SQLite-backed session store at the provided path.
func Open(path string, silent bool) (*Database, error) {
	cfg := &gorm.Config{}
	if silent {
		cfg.Logger = logger.Default.LogMode(logger.Silent)
	}
	db, err := gorm.Open(sqlite.Open(path), cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	if err := db.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
		logrus.WithError(err).Warn("enable WAL mode")
	}
	if err := db.Exec("PRAGMA synchronous=NORMAL").Error; err != nil {
		logrus.WithError(err).Warn("set synchronous pragma")
	}
	return &Database{gorm: db}, nil
}

// Close closes the underlying database connection.
func (d *Database) Close() error {
	if d == nil {
		return nil
	}
	sqlDB, err := d.gorm.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Set writes a value under (session, key). The last write for a key wins.
func (d *Database) Set(sessionID, key, value string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return errors.New("session id required")
	}
	if key == "" {
		return errors.New("key required")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	entry := Entry{SessionID: sessionID, Key: key, Value: value}
	return d.gorm.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}, {Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
}

// Get returns the stored value for (session, key). Absence and read
// failures both report false: callers always fail open to "no data yet".
func (d *Database) Get(sessionID, key string) (string, bool) {
	var entry Entry
	err := d.gorm.Where("session_id = ? AND key = ?", strings.TrimSpace(sessionID), key).First(&entry).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logrus.WithError(err).WithFields(logrus.Fields{
				"session": sessionID,
				"key":     key,
			}).Warn("read session entry")
		}
		return "", false
	}
	return entry.Value, true
}

// Remove deletes the value for (session, key). Removing an absent key is
// not an error.
func (d *Database) Remove(sessionID, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gorm.Where("session_id = ? AND key = ?", strings.TrimSpace(sessionID), key).Delete(&Entry{}).Error
}

// SetJSON serializes value and stores it under (session, key).
func (d *Database) SetJSON(sessionID, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return d.Set(sessionID, key, string(payload))
}

// GetJSON decodes the stored value into dest. Malformed stored text is
// logged and treated exactly like absence, never propagated.
func (d *Database) GetJSON(sessionID, key string, dest any) bool {
	raw, ok := d.Get(sessionID, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"session": sessionID,
			"key":     key,
		}).Warn("corrupt session entry ignored")
		return false
	}
	return true
}
