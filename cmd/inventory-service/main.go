// Command inventory-service 启动库存服务.
//
//	inventory-service -config configs/inventory.yaml
//
// 未指定配置文件时只使用默认值与环境变量（INVENTORY_ 前缀以及 PORT、KAFKA_BROKERS 等兼容变量）.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/Tsukikage7/inventory-service/config"
	"github.com/Tsukikage7/inventory-service/logger"
)

func main() {
	configPath := flag.String("config", os.Getenv("INVENTORY_CONFIG"), "配置文件路径")
	flag.Parse()

	cfg, err := config.LoadService(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "配置无效: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(&cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "创建日志记录器失败: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	application, err := build(cfg, log)
	if err != nil {
		log.With(logger.Err(err)).Error("[Main] 初始化失败")
		_ = log.Sync()
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		log.With(logger.Err(err)).Error("[Main] 服务异常退出")
		_ = log.Sync()
		os.Exit(1)
	}
}
