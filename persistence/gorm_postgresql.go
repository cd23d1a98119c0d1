// persistence/gorm_postgresql.go
package persistence

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/wfunc/partyserver/models"
)

// GormPostgreSQL 使用GORM的PostgreSQL实现
type GormPostgreSQL struct {
	db *gorm.DB
}

// NewGormPostgreSQL 创建GORM PostgreSQL数据库连接
func NewGormPostgreSQL(host string, port int, user, password, dbname string) (*GormPostgreSQL, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: time.Second,
			LogLevel:      logger.Silent,
			Colorful:      false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := autoMigrate(db); err != nil {
		return nil, err
	}

	return &GormPostgreSQL{db: db}, nil
}

func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Room{},
		&models.RoomParticipant{},
		&models.RoomJoinRequest{},
		&models.Game{},
		&models.GameSession{},
		&models.GameParticipant{},
		&models.Notification{},
		&models.NotificationPreference{},
		&models.MediaUpload{},
	)
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrRecordNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateEntry
	}
	return err
}

// --- Rooms ---

// CreateRoomWithHost inserts the room and the host's active participant row
// in one transaction; a room must never exist with zero participants.
func (p *GormPostgreSQL) CreateRoomWithHost(room *models.Room) error {
	return translate(p.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(room).Error; err != nil {
			return err
		}
		host := &models.RoomParticipant{
			RoomID:   room.ID,
			UserID:   room.HostID,
			IsActive: true,
			JoinedAt: time.Now(),
		}
		return tx.Create(host).Error
	}))
}

func (p *GormPostgreSQL) GetRoom(roomID string) (*models.Room, error) {
	var room models.Room
	if err := p.db.Where("id = ?", roomID).First(&room).Error; err != nil {
		return nil, translate(err)
	}
	return &room, nil
}

func (p *GormPostgreSQL) RoomNameTaken(hostID int64, name string, excludeRoomID string) (bool, error) {
	var count int64
	q := p.db.Model(&models.Room{}).Where("host_id = ? AND name = ?", hostID, name)
	if excludeRoomID != "" {
		q = q.Where("id <> ?", excludeRoomID)
	}
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (p *GormPostgreSQL) UpdateRoomFields(roomID string, fields map[string]interface{}) error {
	return translate(p.db.Model(&models.Room{}).Where("id = ?", roomID).Updates(fields).Error)
}

// --- Room participants ---

func (p *GormPostgreSQL) GetRoomParticipant(roomID string, userID int64) (*models.RoomParticipant, error) {
	var rp models.RoomParticipant
	err := p.db.Where("room_id = ? AND user_id = ?", roomID, userID).First(&rp).Error
	if err != nil {
		return nil, translate(err)
	}
	return &rp, nil
}

func (p *GormPostgreSQL) CreateRoomParticipant(rp *models.RoomParticipant) error {
	return translate(p.db.Create(rp).Error)
}

func (p *GormPostgreSQL) SaveRoomParticipant(rp *models.RoomParticipant) error {
	return translate(p.db.Save(rp).Error)
}

func (p *GormPostgreSQL) ActiveParticipants(roomID string) ([]models.RoomParticipant, error) {
	var rows []models.RoomParticipant
	err := p.db.Where("room_id = ? AND is_active = ?", roomID, true).
		Order("joined_at ASC").Find(&rows).Error
	return rows, err
}

func (p *GormPostgreSQL) CountActiveParticipants(roomID string) (int64, error) {
	var count int64
	err := p.db.Model(&models.RoomParticipant{}).
		Where("room_id = ? AND is_active = ?", roomID, true).Count(&count).Error
	return count, err
}

func (p *GormPostgreSQL) ActiveRoomIDs(userID int64) ([]string, error) {
	var ids []string
	err := p.db.Model(&models.RoomParticipant{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Pluck("room_id", &ids).Error
	return ids, err
}

// --- Join requests ---

func (p *GormPostgreSQL) GetJoinRequest(id string) (*models.RoomJoinRequest, error) {
	var req models.RoomJoinRequest
	if err := p.db.Where("id = ?", id).First(&req).Error; err != nil {
		return nil, translate(err)
	}
	return &req, nil
}

func (p *GormPostgreSQL) GetJoinRequestByStatus(roomID string, userID int64, status string) (*models.RoomJoinRequest, error) {
	var req models.RoomJoinRequest
	err := p.db.Where("room_id = ? AND user_id = ? AND status = ?", roomID, userID, status).
		First(&req).Error
	if err != nil {
		return nil, translate(err)
	}
	return &req, nil
}

func (p *GormPostgreSQL) CreateJoinRequest(r *models.RoomJoinRequest) error {
	return translate(p.db.Create(r).Error)
}

func (p *GormPostgreSQL) UpdateJoinRequestStatus(id, status string) error {
	return translate(p.db.Model(&models.RoomJoinRequest{}).Where("id = ?", id).
		Update("status", status).Error)
}

func (p *GormPostgreSQL) DeleteJoinRequest(id string) error {
	return translate(p.db.Delete(&models.RoomJoinRequest{}, "id = ?", id).Error)
}

// --- Game catalog ---

func (p *GormPostgreSQL) GetGame(id string) (*models.Game, error) {
	var game models.Game
	if err := p.db.Where("id = ? AND enabled = ?", id, true).First(&game).Error; err != nil {
		return nil, translate(err)
	}
	return &game, nil
}

// --- Game sessions ---

func (p *GormPostgreSQL) GetGameSession(id string) (*models.GameSession, error) {
	var sess models.GameSession
	if err := p.db.Where("id = ?", id).First(&sess).Error; err != nil {
		return nil, translate(err)
	}
	return &sess, nil
}

func (p *GormPostgreSQL) ActiveSessionByRoomAndGame(roomID, gameID string) (*models.GameSession, error) {
	var sess models.GameSession
	err := p.db.Where("room_id = ? AND game_id = ? AND status = ?", roomID, gameID, models.SessionActive).
		First(&sess).Error
	if err != nil {
		return nil, translate(err)
	}
	return &sess, nil
}

func (p *GormPostgreSQL) ActiveSessionsByRoom(roomID string) ([]models.GameSession, error) {
	var rows []models.GameSession
	err := p.db.Where("room_id = ? AND status = ?", roomID, models.SessionActive).
		Order("started_at ASC").Find(&rows).Error
	return rows, err
}

func (p *GormPostgreSQL) CreateSessionWithCreator(sess *models.GameSession, creator *models.GameParticipant) error {
	return translate(p.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(sess).Error; err != nil {
			return err
		}
		return tx.Create(creator).Error
	}))
}

// CompleteSession flips an active session to completed and closes every
// still-open participant row in the same transaction. The status condition
// makes the terminal transition one-way even under a race.
func (p *GormPostgreSQL) CompleteSession(sessionID string, endedAt time.Time) error {
	return translate(p.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.GameSession{}).
			Where("id = ? AND status = ?", sessionID, models.SessionActive).
			Updates(map[string]interface{}{"status": models.SessionCompleted, "ended_at": endedAt})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrRecordNotFound
		}
		return tx.Model(&models.GameParticipant{}).
			Where("session_id = ? AND left_at IS NULL", sessionID).
			Update("left_at", endedAt).Error
	}))
}

// --- Game participants ---

func (p *GormPostgreSQL) GetGameParticipant(sessionID string, userID int64) (*models.GameParticipant, error) {
	var gp models.GameParticipant
	err := p.db.Where("session_id = ? AND user_id = ?", sessionID, userID).First(&gp).Error
	if err != nil {
		return nil, translate(err)
	}
	return &gp, nil
}

func (p *GormPostgreSQL) CreateGameParticipant(gp *models.GameParticipant) error {
	return translate(p.db.Create(gp).Error)
}

func (p *GormPostgreSQL) SaveGameParticipant(gp *models.GameParticipant) error {
	return translate(p.db.Save(gp).Error)
}

func (p *GormPostgreSQL) OpenGameParticipants(sessionID string) ([]models.GameParticipant, error) {
	var rows []models.GameParticipant
	err := p.db.Where("session_id = ? AND left_at IS NULL", sessionID).
		Order("joined_at ASC").Find(&rows).Error
	return rows, err
}

func (p *GormPostgreSQL) CountOpenGameParticipants(sessionID string) (int64, error) {
	var count int64
	err := p.db.Model(&models.GameParticipant{}).
		Where("session_id = ? AND left_at IS NULL", sessionID).Count(&count).Error
	return count, err
}

// AddScore applies a signed delta in place and reads back the new total
// inside one transaction. Additive updates commute, so concurrent score
// events settle to the same value regardless of arrival order.
func (p *GormPostgreSQL) AddScore(sessionID string, userID int64, delta int) (int, error) {
	var score int
	err := p.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.GameParticipant{}).
			Where("session_id = ? AND user_id = ? AND left_at IS NULL", sessionID, userID).
			Update("score", gorm.Expr("score + ?", delta))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrRecordNotFound
		}
		var gp models.GameParticipant
		if err := tx.Where("session_id = ? AND user_id = ?", sessionID, userID).First(&gp).Error; err != nil {
			return err
		}
		score = gp.Score
		return nil
	})
	return score, translate(err)
}

// --- Notifications ---

func (p *GormPostgreSQL) CreateNotification(n *models.Notification) error {
	return translate(p.db.Create(n).Error)
}

func (p *GormPostgreSQL) NotificationsForUser(userID int64, limit int) ([]models.Notification, error) {
	var rows []models.Notification
	err := p.db.Where("user_id = ?", userID).
		Order("created_at DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

func (p *GormPostgreSQL) NotificationTypeEnabled(userID int64, ntype string) (bool, error) {
	var pref models.NotificationPreference
	err := p.db.Where("user_id = ? AND type = ?", userID, ntype).First(&pref).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return true, nil
		}
		return false, err
	}
	return pref.Enabled, nil
}

func (p *GormPostgreSQL) DeleteReadNotificationsBefore(cutoff time.Time) (int64, error) {
	res := p.db.Where("read = ? AND created_at < ?", true, cutoff).
		Delete(&models.Notification{})
	return res.RowsAffected, res.Error
}

// --- Media ---

func (p *GormPostgreSQL) CreateMediaUpload(m *models.MediaUpload) error {
	return translate(p.db.Create(m).Error)
}

func (p *GormPostgreSQL) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
