package main

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// loadDotEnv 读取 .env 并注入进程环境：文件不存在时忽略；
// 不覆盖已存在的环境变量；空值视为未设置，不注入。
func loadDotEnv(path string) error {
	vars, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	for k, v := range vars {
		if v == "" {
			continue
		}
		if _, exists := os.LookupEnv(k); exists {
			continue
		}
		if err := os.Setenv(k, v); err != nil {
			return err
		}
	}
	return nil
}
