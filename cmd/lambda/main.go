package main

import (
	"context"
	"os"

	awslambda "github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-xray-sdk-go/xray"
	adapterlogger "pipeline-orchestrator/internal/adapters/logger"
	"pipeline-orchestrator/internal/infrastructure"
	"pipeline-orchestrator/internal/platform"
	"pipeline-orchestrator/internal/platform/lambda"
)

func main() {
	logger := adapterlogger.New()

	cfg, err := infrastructure.LoadConfig()
	if err != nil {
		logger.Error(context.Background(), "configuration error", "error", err)
		os.Exit(1)
	}
	logger = adapterlogger.NewWithLevel(cfg.LogLevel)
	xray.Configure(xray.Config{LogLevel: "error"})

	ctx := context.Background()
	app, err := platform.New(ctx, cfg, logger, platform.WithoutStreaming())
	if err != nil {
		logger.Error(ctx, "failed to initialize application", "error", err)
		os.Exit(1)
	}
	if err := app.Start(ctx); err != nil {
		logger.Error(ctx, "failed to start notification router", "error", err)
		os.Exit(1)
	}
	awslambda.Start(lambda.NewLambdaHandler(app.Echo, app.Router, logger))
}
