package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	storefront "github.com/nftmarket/storefront"
)

// requestLogger logs every request with zerolog
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Int("bytes", c.Writer.Size()).
			Dur("duration", time.Since(start)).
			Str("remote", c.ClientIP()).
			Msg("request")
	}
}

// recoverer turns panics into 500s and logs them
func (s *Server) recoverer() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rvr := recover(); rvr != nil {
				s.log.Error().
					Interface("panic", rvr).
					Str("path", c.Request.URL.Path).
					Msg("Recovered from panic")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"code":    "internal",
					"message": http.StatusText(http.StatusInternalServerError),
				})
			}
		}()
		c.Next()
	}
}

// statusFor maps an error code onto an HTTP status
func statusFor(code string) int {
	switch code {
	case storefront.ErrCodeNotPurchasable, storefront.ErrCodeNoSelection, storefront.ErrCodeFlowBusy:
		return http.StatusConflict
	case storefront.ErrCodeInvalidRequest, storefront.ErrCodeInvalidTheme:
		return http.StatusBadRequest
	case storefront.ErrCodeNotFound:
		return http.StatusNotFound
	case storefront.ErrCodeTransactionFailed, storefront.ErrCodeTransactionReverted, storefront.ErrCodeReadFailed:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// fail renders err as {"code","message"}
func (s *Server) fail(c *gin.Context, err error) {
	var sfErr *storefront.Error
	if !errors.As(err, &sfErr) {
		s.log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("unhandled error")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"code":    "internal",
			"message": err.Error(),
		})
		return
	}

	c.AbortWithStatusJSON(statusFor(sfErr.Code), gin.H{
		"code":    sfErr.Code,
		"message": sfErr.Message,
	})
}

func badRequest(message string) error {
	return storefront.NewError(storefront.ErrCodeInvalidRequest, message, nil)
}
