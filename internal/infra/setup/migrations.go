package setup

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/weixueshi04/TimeScheduleApp/internal/domain"
)

// MigrateDB 执行数据库迁移。
// users 和 rooms 表含需要限长的唯一索引列，用自定义 SQL 创建；
// 其余表交给 AutoMigrate。
func MigrateDB(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("cannot migrate database with nil DB connection")
	}

	if err := migrateUsersTable(db); err != nil {
		return fmt.Errorf("failed to migrate users table: %w", err)
	}
	if err := migrateRoomsTable(db); err != nil {
		return fmt.Errorf("failed to migrate rooms table: %w", err)
	}

	if err := db.AutoMigrate(
		&domain.Participant{},
		&domain.RoomEvent{},
	); err != nil {
		return fmt.Errorf("failed to auto-migrate tables: %w", err)
	}

	logrus.Info("Database migration completed successfully")
	return nil
}

func migrateUsersTable(db *gorm.DB) error {
	var count int64
	db.Raw("SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = 'users'").Count(&count)
	if count > 0 {
		// 已有表，让 AutoMigrate 补列和索引
		return db.AutoMigrate(&domain.User{})
	}

	sql := `
	CREATE TABLE users (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		username VARCHAR(191) NOT NULL,
		password TEXT NOT NULL,
		email VARCHAR(191),
		nickname VARCHAR(50),
		status VARCHAR(20) NOT NULL DEFAULT 'active',
		total_completed_tasks INT NOT NULL DEFAULT 0,
		total_study_sessions INT NOT NULL DEFAULT 0,
		total_focus_hours DOUBLE NOT NULL DEFAULT 0,
		created_at DATETIME(3),
		updated_at DATETIME(3),
		UNIQUE INDEX idx_username (username),
		UNIQUE INDEX idx_email (email)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_general_ci;
	`
	if err := db.Exec(sql).Error; err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}
	logrus.Info("Users table created successfully")
	return nil
}

func migrateRoomsTable(db *gorm.DB) error {
	var count int64
	db.Raw("SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = 'rooms'").Count(&count)
	if count > 0 {
		return db.AutoMigrate(&domain.Room{})
	}

	sql := `
	CREATE TABLE rooms (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		room_code VARCHAR(16) NOT NULL,
		creator_id BIGINT UNSIGNED NOT NULL,
		name VARCHAR(100),
		description TEXT,
		status VARCHAR(20) NOT NULL,
		max_participants INT NOT NULL,
		current_participants INT NOT NULL DEFAULT 0,
		duration_minutes INT NOT NULL,
		scheduled_start_time DATETIME(3) NOT NULL,
		scheduled_end_time DATETIME(3) NOT NULL,
		matching_criteria TEXT,
		started_at DATETIME(3),
		created_at DATETIME(3),
		updated_at DATETIME(3),
		INDEX idx_creator_id (creator_id),
		INDEX idx_status (status),
		INDEX idx_scheduled_end_time (scheduled_end_time),
		UNIQUE INDEX idx_room_code (room_code)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_general_ci;
	`
	if err := db.Exec(sql).Error; err != nil {
		return fmt.Errorf("failed to create rooms table: %w", err)
	}
	logrus.Info("Rooms table created successfully")
	return nil
}
