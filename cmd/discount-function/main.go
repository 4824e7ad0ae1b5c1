// cmd/discount-function/main.go
package main

import (
	"os"

	"upsell/internal/pkg/logger"
)

func main() {
	// 标准输出留给折扣结果，日志只写标准错误
	logger.InitWithWriter(os.Stderr, "discount-function", os.Getenv("LOG_LEVEL"))
	if err := rootCmd.Execute(); err != nil {
		logger.L().Error().Err(err).Msg("discount-function failed")
		os.Exit(1)
	}
}
