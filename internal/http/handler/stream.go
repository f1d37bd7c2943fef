package handler

import (
	"bufio"
	"errors"
	"io"
	"sync"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"docvault/internal/service"
)

const streamBufferSize = 32 * 1024

// ServeFile redeems ?token= and streams the current file. The token is the
// only credential; no bearer header is needed.
//
// @Summary      Stream a document file
// @Description  /file serves inline, /download as an attachment. The token is consumed on first use.
// @Tags         delivery
// @Produce      application/octet-stream
// @Param        id     path   string  true  "document id"
// @Param        token  query  string  true  "one-time token"
// @Success      200
// @Failure      403  {object}  errorPayload
// @Failure      404  {object}  errorPayload
// @Router       /documents/{id}/file [get]
// @Router       /documents/{id}/download [get]
func ServeFile(svc service.DeliveryService, disposition service.Disposition, log *zap.Logger) fiber.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *fiber.Ctx) error {
		id, ok := documentID(c)
		if !ok {
			return invalidID(c)
		}

		d, err := svc.Open(c.UserContext(), id, c.Query("token"), disposition)
		if err != nil {
			return writeServiceError(c, err)
		}

		body := newStreamBody(d, log)

		// Read the first chunk before any header is committed so an unreadable
		// object still gets a JSON error instead of a truncated 200.
		if _, err := body.br.Peek(1); err != nil && !errors.Is(err, io.EOF) {
			_ = body.Close()
			log.Error("stream_open_failed", zap.String("document_id", id), zap.Error(err))
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}

		c.Set(fiber.HeaderContentType, d.ContentType)
		c.Set(fiber.HeaderContentDisposition, d.ContentDisposition())
		c.Set("X-Content-Type-Options", "nosniff")

		size := -1
		if d.Size >= 0 {
			size = int(d.Size)
		}
		// fasthttp closes body once the response is written or the connection drops.
		return c.Status(fiber.StatusOK).SendStream(body, size)
	}
}

// streamBody wraps a delivered object. Close is idempotent and logs how much
// was sent; read errors after the headers are logged here because the
// connection is the only thing left to abort.
type streamBody struct {
	br     *bufio.Reader
	closer io.Closer
	log    *zap.Logger
	docID  string

	once    sync.Once
	sent    int64
	readErr error
}

func newStreamBody(d *service.Delivery, log *zap.Logger) *streamBody {
	return &streamBody{
		br:     bufio.NewReaderSize(d.Body, streamBufferSize),
		closer: d.Body,
		log:    log,
		docID:  d.DocumentID,
	}
}

func (b *streamBody) Read(p []byte) (int, error) {
	n, err := b.br.Read(p)
	b.sent += int64(n)
	if err != nil && !errors.Is(err, io.EOF) {
		b.readErr = err
		b.log.Error("stream_read_failed",
			zap.String("document_id", b.docID),
			zap.Int64("bytes_sent", b.sent),
			zap.Error(err),
		)
	}
	return n, err
}

func (b *streamBody) Close() error {
	var err error
	b.once.Do(func() {
		err = b.closer.Close()
		b.log.Debug("stream_closed",
			zap.String("document_id", b.docID),
			zap.Int64("bytes_sent", b.sent),
			zap.Bool("failed", b.readErr != nil),
		)
	})
	return err
}
