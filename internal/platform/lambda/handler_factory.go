package lambda

import (
	"context"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/awslabs/aws-lambda-go-api-proxy/echo"
	"github.com/labstack/echo/v4"
	"pipeline-orchestrator/internal/ports"
)

type LambdaHandler func(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error)

// Flusher drains notifications queued by an invocation before the runtime
// freezes the execution environment.
type Flusher interface {
	Flush(ctx context.Context) error
}

const flushTimeout = 2 * time.Second

func NewLambdaHandler(e *echo.Echo, flusher Flusher, logger ports.Logger) LambdaHandler {
	adapter := echoadapter.NewV2(e)
	return func(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
		resp, err := adapter.ProxyWithContext(ctx, req)
		if flusher != nil {
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
			if ferr := flusher.Flush(flushCtx); ferr != nil {
				logger.Warn(ctx, "notification flush failed", "error", ferr)
			}
			cancel()
		}
		return resp, err
	}
}
