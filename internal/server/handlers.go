package server

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/holy-jesus/holynotifier/internal/errors"
	"github.com/holy-jesus/holynotifier/internal/metrics"
	"github.com/holy-jesus/holynotifier/internal/platform/correlation"
	"github.com/holy-jesus/holynotifier/internal/twitch"
)

// maxBodySize bounds webhook request bodies. EventSub payloads are small;
// anything bigger is not a legitimate delivery.
const maxBodySize = 1 << 20

// handleEventSub is the single inbound surface for EventSub deliveries.
// Rejections (403/400) happen before any state is touched; once a delivery
// is verified the provider always gets a success answer, even when the
// downstream dispatch fails, so that it does not disable the subscription
// over our internal problems.
func (s *Server) handleEventSub(c echo.Context) error {
	ctx := correlation.WithID(c.Request().Context(), correlation.NewID())

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodySize))
	if err != nil {
		metrics.DeliveriesRejected.WithLabelValues("body_read").Inc()
		return c.NoContent(http.StatusBadRequest)
	}

	delivery, err := s.verifier.Verify(c.Request().Header, body)
	if err != nil {
		return s.answerRejection(ctx, c, err)
	}

	ctx = correlation.WithID(c.Request().Context(), delivery.MessageID)

	challenge, dispatchErr := s.dispatchSafely(ctx, delivery)
	if dispatchErr != nil {
		metrics.DeliveriesTotal.WithLabelValues(delivery.Type.String(), "error").Inc()
		slog.ErrorContext(ctx, "Delivery dispatch failed",
			"message_type", delivery.Type.String(), "channel_id", delivery.ChannelID, "error", dispatchErr)
		if reportErr := s.notifier.ReportError(ctx, dispatchErr.Error()); reportErr != nil {
			slog.WarnContext(ctx, "Failed to report dispatch error to operator", "error", reportErr)
		}
		// Acknowledge anyway: redelivery would hit the same bug, and enough
		// failures make the provider revoke the subscription. A handshake
		// still gets its challenge echoed, otherwise the provider marks the
		// verification failed and the subscription never enables.
		if challenge != "" {
			return c.String(http.StatusOK, challenge)
		}
		return c.NoContent(http.StatusNoContent)
	}

	metrics.DeliveriesTotal.WithLabelValues(delivery.Type.String(), "ok").Inc()

	if challenge != "" {
		return c.String(http.StatusOK, challenge)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) answerRejection(ctx context.Context, c echo.Context, err error) error {
	if stderrors.Is(err, twitch.ErrDuplicateDelivery) {
		metrics.DeliveriesDuplicate.Inc()
		slog.InfoContext(ctx, "Suppressed duplicate delivery")
		return c.NoContent(http.StatusNoContent)
	}

	var structured *errors.Error
	if stderrors.As(err, &structured) {
		metrics.DeliveriesRejected.WithLabelValues(string(structured.Type)).Inc()
		slog.WarnContext(ctx, "Rejected delivery", "reason", structured.Type, "error", err)
		return c.NoContent(structured.HTTPStatus())
	}

	metrics.DeliveriesRejected.WithLabelValues("unknown").Inc()
	slog.WarnContext(ctx, "Rejected delivery", "error", err)
	return c.NoContent(http.StatusForbidden)
}

// dispatchSafely shields the HTTP handler from panics in the dispatch path.
// A panicking delivery is answered like any other dispatch failure.
func (s *Server) dispatchSafely(ctx context.Context, delivery *twitch.Delivery) (challenge string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during dispatch: %v", r)
		}
	}()
	return s.dispatcher.Dispatch(ctx, delivery)
}
