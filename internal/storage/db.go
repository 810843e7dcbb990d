// Package storage 持久化代理拦截事件历史（SQLite）。
package storage

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"pageproxy/internal/logger"
)

// MemoryDSN 内存数据库，测试使用
const MemoryDSN = ":memory:"

// Open 打开数据库并迁移表结构
func Open(dsn, prefix string, l logger.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         NewGormLogger(l),
		NamingStrategy: schema.NamingStrategy{TablePrefix: prefix},
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// 内存库每个连接互相独立
	if dsn == MemoryDSN {
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&ProxyEventRecord{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close 关闭底层连接
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
