// Package db はGORMによるデータベース接続を提供します。
package db

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const retryInterval = 3 * time.Second

// Config はデータベース接続の設定を保持します。
type Config struct {
	Driver       string // "postgres"（既定）または "sqlite"
	User         string
	Password     string
	Name         string
	Host         string
	Port         string
	InstanceName string // Cloud SQL のインスタンス接続名（設定時は Unix ソケット接続）
	SQLitePath   string
}

// LoadConfigFromEnv は環境変数からデータベース設定を読み込みます。
func LoadConfigFromEnv() Config {
	cfg := Config{
		Driver:       os.Getenv("DB_DRIVER"),
		User:         os.Getenv("DB_USER"),
		Password:     os.Getenv("DB_PASSWORD"),
		Name:         os.Getenv("DB_NAME"),
		Host:         os.Getenv("DB_HOST"),
		Port:         os.Getenv("DB_PORT"),
		InstanceName: os.Getenv("INSTANCE_CONNECTION_NAME"),
		SQLitePath:   os.Getenv("DB_SQLITE_PATH"),
	}
	if cfg.Driver == "" {
		cfg.Driver = "postgres"
	}
	if cfg.Port == "" {
		cfg.Port = "5432"
	}
	if cfg.SQLitePath == "" {
		cfg.SQLitePath = "./scanner.db"
	}
	return cfg
}

// BuildDSN は PostgreSQL 用の DSN 文字列を生成します。InstanceName が設定されていればそちらを優先します。
func BuildDSN(cfg Config) string {
	host, port := cfg.Host, cfg.Port
	if cfg.InstanceName != "" {
		host = "/cloudsql/" + cfg.InstanceName
	}
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s sslmode=disable TimeZone=Asia/Taipei",
		host, cfg.User, cfg.Password, cfg.Name)
	if cfg.InstanceName == "" && port != "" {
		dsn += " port=" + port
	}
	return dsn
}

// Opener はDSNからDB接続を開く関数です。テストで差し替えます。
type Opener func(dsn string) (*gorm.DB, error)

// ConnectWithRetry は timeout まで retryInterval 間隔で接続を試みます。
func ConnectWithRetry(dsn string, timeout time.Duration, open Opener) (*gorm.DB, error) {
	deadline := time.Now().Add(timeout)
	for {
		db, err := open(dsn)
		if err == nil {
			return db, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("db connect failed after %s: %w", timeout, err)
		}
		slog.Warn("DB connect failed, retrying", "error", err)
		time.Sleep(retryInterval)
	}
}

func openPostgres(dsn string) (*gorm.DB, error) {
	return gorm.Open(postgres.Open(dsn), &gorm.Config{})
}

// OpenSQLite は SQLite ファイル（":memory:" 可）を開きます。
func OpenSQLite(path string) (*gorm.DB, error) {
	return gorm.Open(sqlite.Open(path), &gorm.Config{})
}

// OpenDB は設定に従って接続を開き、migrate が真なら models をマイグレーションします。
func OpenDB(cfg Config, migrate bool, models ...any) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)
	switch cfg.Driver {
	case "sqlite":
		db, err = OpenSQLite(cfg.SQLitePath)
		if err == nil {
			slog.Info("using sqlite", "path", cfg.SQLitePath)
		}
	default:
		db, err = ConnectWithRetry(BuildDSN(cfg), 60*time.Second, openPostgres)
	}
	if err != nil {
		return nil, err
	}

	if migrate && len(models) > 0 {
		if err := db.AutoMigrate(models...); err != nil {
			return nil, fmt.Errorf("failed to migrate: %w", err)
		}
	}
	return db, nil
}
