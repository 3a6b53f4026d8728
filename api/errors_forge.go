package api

import (
	"errors"
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/convene"
	"github.com/xraph/convene/signature"
)

// mapError converts convene sentinel errors to Forge HTTP errors.
func mapError(err error) error {
	switch {
	case errors.Is(err, convene.ErrSourceNotFound):
		return forge.NotFound(err.Error())
	case errors.Is(err, convene.ErrLinkNotFound):
		return forge.NotFound(err.Error())
	case errors.Is(err, convene.ErrJobNotFound):
		return forge.NotFound(err.Error())
	case errors.Is(err, convene.ErrWebhookRecordNotFound):
		return forge.NotFound(err.Error())
	case errors.Is(err, convene.ErrUnknownSource):
		return forge.NotFound(err.Error())
	case errors.Is(err, signature.ErrInvalidSignature):
		return forge.NewHTTPError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, convene.ErrNotPullable):
		return forge.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, convene.ErrSourceInactive):
		return forge.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, convene.ErrInvalidLinkStatus):
		return forge.BadRequest(err.Error())
	case errors.Is(err, convene.ErrNoStore):
		return forge.InternalError(err)
	case errors.Is(err, convene.ErrStoreClosed):
		return forge.InternalError(err)
	default:
		return forge.InternalError(err)
	}
}
