package middleware

import (
	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/labstack/echo/v4"
)

// XRayMiddleware opens one segment per request and closes it with the
// handler's error.
func XRayMiddleware(segmentName string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, seg := xray.BeginSegment(c.Request().Context(), segmentName)
			_ = seg.AddAnnotation("method", c.Request().Method)
			req := c.Request().Clone(ctx)
			c.SetRequest(req)
			err := next(c)
			seg.Close(err)
			return err
		}
	}
}
