package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/quicknotes/offline-hub/internal/lifecycle"
	"github.com/quicknotes/offline-hub/internal/logging"
	"github.com/quicknotes/offline-hub/internal/upstream"
	"github.com/quicknotes/offline-hub/internal/worker"
)

// HeaderSource 标记响应来自缓存、网络还是离线回退。
const HeaderSource = "X-Offline-Hub-Source"

type interceptHandler struct {
	reg    *lifecycle.Registration
	page   *Page
	logger *logrus.Logger
}

func newInterceptHandler(opts AppOptions) *interceptHandler {
	return &interceptHandler{
		reg:    opts.Registration,
		page:   opts.Page,
		logger: opts.Logger,
	}
}

// Handle 把请求交给页面当前的控制者，并把结果原样写回。
func (h *interceptHandler) Handle(c fiber.Ctx) (err error) {
	requestID := RequestID(c)
	defer func() {
		if r := recover(); r != nil {
			err = h.respondError(c, fiber.StatusInternalServerError, "worker_panic", fmt.Errorf("panic: %v", r), requestID)
		}
	}()

	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	started := time.Now()
	req := buildWorkerRequest(c)

	result, err := h.reg.Fetch(ctx, h.page.Client(), req)
	if err != nil {
		if errors.Is(err, lifecycle.ErrNoController) {
			return h.respondError(c, fiber.StatusServiceUnavailable, "no_controller", err, requestID)
		}
		return h.respondError(c, fiber.StatusBadGateway, "fetch_failed", err, requestID)
	}
	defer result.Response.Body.Close()

	copyResponseHeaders(c, result.Response.Header)
	c.Set(HeaderSource, string(result.Source))
	c.Status(result.Response.StatusCode)

	var copyErr error
	if req.Method != http.MethodHead {
		_, copyErr = io.Copy(c.Response().BodyWriter(), result.Response.Body)
	}
	h.logResult(req, result, requestID, started, copyErr)
	if copyErr != nil {
		return fiber.NewError(fiber.StatusBadGateway, fmt.Sprintf("response stream failed: %v", copyErr))
	}
	return nil
}

func (h *interceptHandler) respondError(c fiber.Ctx, status int, code string, err error, requestID string) error {
	fields := logrus.Fields{
		"action":     "intercept",
		"error_code": code,
		"path":       string(c.Request().URI().RequestURI()),
	}
	if requestID != "" {
		fields["request_id"] = requestID
	}
	h.logger.WithFields(fields).Warn(err.Error())
	return c.Status(status).JSON(fiber.Map{"error": code})
}

func (h *interceptHandler) logResult(req *worker.Request, result *worker.Result, requestID string, started time.Time, err error) {
	fields := logging.RequestFields(req.Method, req.URL, string(req.Mode), string(req.Destination), string(result.Source))
	fields["status"] = result.Response.StatusCode
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if requestID != "" {
		fields["request_id"] = requestID
	}
	entry := h.logger.WithFields(fields)
	if err != nil {
		entry.WithError(err).Warn("response stream failed")
		return
	}
	entry.Info("request served")
}

// buildWorkerRequest 将 fiber 请求转换为 worker 视角的请求，URL 保持源站相对路径。
func buildWorkerRequest(c fiber.Ctx) *worker.Request {
	header := fiberHeadersAsHTTP(c)
	req := worker.NewRequest(c.Method(), string(c.Request().URI().RequestURI()))
	req.Header = header
	req.Mode = requestMode(req.Method, header)
	req.Destination = requestDestination(req.Mode, header)
	if body := c.Body(); len(body) > 0 {
		req.Body = append([]byte(nil), body...)
	}
	return req
}

// requestMode 优先使用 Sec-Fetch-Mode；缺失时 GET 且 Accept 含 text/html 视为导航。
func requestMode(method string, header http.Header) worker.Mode {
	if mode := strings.ToLower(strings.TrimSpace(header.Get("Sec-Fetch-Mode"))); mode != "" {
		return worker.Mode(mode)
	}
	if method == http.MethodGet && strings.Contains(header.Get("Accept"), "text/html") {
		return worker.ModeNavigate
	}
	return worker.ModeNoCORS
}

func requestDestination(mode worker.Mode, header http.Header) worker.Destination {
	if dest := strings.ToLower(strings.TrimSpace(header.Get("Sec-Fetch-Dest"))); dest != "" && dest != "empty" {
		return worker.Destination(dest)
	}
	if mode == worker.ModeNavigate {
		return worker.DestinationDocument
	}
	return worker.DestinationEmpty
}

func fiberHeadersAsHTTP(c fiber.Ctx) http.Header {
	header := http.Header{}
	c.Request().Header.VisitAll(func(key, value []byte) {
		header.Add(string(key), string(value))
	})
	return header
}

// copyResponseHeaders 跳过 hop-by-hop 头；Content-Length 由 fasthttp 按实际写出的内容计算。
func copyResponseHeaders(c fiber.Ctx, headers http.Header) {
	for key, values := range headers {
		if upstream.IsHopByHopHeader(key) || strings.EqualFold(key, fiber.HeaderContentLength) {
			continue
		}
		for _, value := range values {
			c.Response().Header.Add(key, value)
		}
	}
}
