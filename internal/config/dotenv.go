package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// DefaultEnvFile はENV_FILE未指定時に読み込む.envファイルのパス。
const DefaultEnvFile = ".env"

// LoadDotEnv は.envファイルの内容を環境変数に読み込む。
// すでに設定されている環境変数は上書きしない。ファイルが存在しない場合は何もしない。
// pathが空の場合はENV_FILE、それも空ならDefaultEnvFileを使用する。
func LoadDotEnv(path string) error {
	if path == "" {
		path = getEnvString("ENV_FILE", DefaultEnvFile)
	}

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("envファイルの読み込みに失敗しました (%s): %w", path, err)
	}
	return nil
}
