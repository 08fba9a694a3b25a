package responses

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/stream"
	"github.com/angelmondragon/marketplace-backend/pkg/types"
)

const defaultHeartbeat = 25 * time.Second

type snapshotResult[T any] struct {
	snapshot T
	err      error
}

// WriteStream serves s as server-sent events until the client disconnects
// or the stream fails. Every snapshot is one "snapshot" event carrying the
// usual success envelope; comments keep idle proxies from closing the
// connection. The stream is always unsubscribed on return.
func WriteStream[T any](ctx context.Context, logg *logger.Logger, w http.ResponseWriter, s *stream.Stream[T], heartbeat time.Duration) {
	defer func() {
		_ = s.Unsubscribe()
	}()

	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "streaming unsupported"))
		return
	}
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan snapshotResult[T])
	go func() {
		defer close(results)
		for {
			snapshot, err := s.Next(ctx)
			select {
			case results <- snapshotResult[T]{snapshot: snapshot, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case res, ok := <-results:
			if !ok {
				return
			}
			if res.err != nil {
				writeStreamFailure(ctx, logg, w, res.err)
				flusher.Flush()
				return
			}
			payload, err := json.Marshal(types.SuccessEnvelope{Data: res.snapshot})
			if err != nil {
				writeStreamFailure(ctx, logg, w, err)
				flusher.Flush()
				return
			}
			if _, err := fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeStreamFailure(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if errors.Is(err, stream.ErrClosed) || errors.Is(err, context.Canceled) {
		return
	}

	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.StoreUnavailable(err, "load snapshot")
	}
	if logg != nil {
		logg.Error(ctx, "stream.failed", err)
	}
	report(ctx, err)

	payload, _ := json.Marshal(types.ErrorEnvelope{Error: types.APIError{
		Code:    string(typed.Code()),
		Message: pkgerrors.MetadataFor(typed.Code()).PublicMessage,
	}})
	_, _ = fmt.Fprintf(w, "event: error\ndata: %s\n\n", payload)
}
