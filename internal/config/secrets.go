package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"beamerscore/pkg/contract"
)

// 邮箱凭据的环境变量名。
const (
	EnvMailbox = "SCOREREPORT_MAILBOX"
	EnvPasswd  = "SCOREREPORT_PASSWD"
)

// LoadDotEnv 加载 .env 到进程环境（不覆盖已存在的变量）；文件不存在时静默跳过。
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: %s: %w", contract.ErrConfig, path, err)
	}
	return nil
}

// Credentials 从环境读取邮箱凭据。password 仅在 required 时强制。
func Credentials(getenv func(string) string, required bool) (contract.Credentials, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	c := contract.Credentials{
		Username: strings.TrimSpace(getenv(EnvMailbox)),
		Password: getenv(EnvPasswd),
	}
	if c.Username == "" {
		return c, fmt.Errorf("%w: %s not set", contract.ErrConfig, EnvMailbox)
	}
	if required && c.Password == "" {
		return c, fmt.Errorf("%w: %s not set", contract.ErrConfig, EnvPasswd)
	}
	return c, nil
}
