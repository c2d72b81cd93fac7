package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"deltavault/pkg/vnode"

	"github.com/spf13/viper"
)

// Load 初始化 Viper 配置
// cfgFile: 可选，用户显式指定的配置文件路径
func Load(cfgFile string) error {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}

		// 搜索顺序：当前目录 → 当前目录下的 .dv → 主目录下的 .dv
		viper.AddConfigPath(".")
		viper.AddConfigPath(".dv")
		viper.AddConfigPath(filepath.Join(home, ".dv"))

		viper.SetConfigType("yaml")
		viper.SetConfigName("config") // 找 config.yaml
	}

	// 环境变量 (DV_STORAGE_TYPE 等)
	viper.SetEnvPrefix("DV")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// 没有配置文件不算错 (默认值 + 环境变量也能跑)，格式错才是错
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			slog.Debug("no config file found, using defaults and env vars")
		} else {
			return fmt.Errorf("fatal error config file: %w", err)
		}
	} else {
		slog.Info("using config file", "path", viper.ConfigFileUsed())
	}

	return nil
}

func setDefaults() {
	// 树参数
	viper.SetDefault("tree.vnode_size", vnode.DefaultVNodeSize)

	// 分片缓存预算 (字节)
	viper.SetDefault("cache.max_bytes", int64(64<<20))

	// 存储默认值
	wd, _ := os.Getwd()
	repoPath := filepath.Join(wd, ".dv")
	viper.SetDefault("storage.type", "disk")
	viper.SetDefault("storage.path", filepath.Join(repoPath, "objects"))
	viper.SetDefault("storage.badger.path", filepath.Join(repoPath, "badger"))
	viper.SetDefault("storage.badger.sync_writes", false)

	// S3 后端
	viper.SetDefault("storage.s3.region", "us-east-1")
	viper.SetDefault("storage.s3.use_path_style", false)

	// Redis 存在性缓存 (留空不启用)
	viper.SetDefault("redis.url", "")

	// 元数据库是可选的索引层，显式配置 driver 才启用
	viper.SetDefault("database.driver", "none")
	viper.SetDefault("database.sqlite_path", filepath.Join(repoPath, "meta.db"))
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.sslmode", "disable")
}
