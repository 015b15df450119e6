package handlers

import (
	"bytes"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ledgergate/ledgergate/internal/access"
	"github.com/ledgergate/ledgergate/internal/billing"
	"github.com/ledgergate/ledgergate/internal/channels"
	"github.com/ledgergate/ledgergate/internal/models"
	"github.com/ledgergate/ledgergate/internal/orgs"
	"github.com/ledgergate/ledgergate/internal/usage"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"gorm.io/gorm"
)

// Headers forwarded to the upstream besides authorization and content type.
var forwardedRequestHeaders = []string{"openai-organization", "openai-project", "anthropic-version"}

// ProxyHandler forwards OpenAI-compatible calls to upstream channels and
// meters usage.
type ProxyHandler struct {
	db       *gorm.DB
	prices   *billing.PriceTable
	recorder *usage.Recorder
	client   *http.Client
}

// NewProxyHandler constructs a ProxyHandler. timeout bounds the whole
// upstream exchange including streamed bodies.
func NewProxyHandler(db *gorm.DB, prices *billing.PriceTable, recorder *usage.Recorder, timeout time.Duration) *ProxyHandler {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ProxyHandler{
		db:       db,
		prices:   prices,
		recorder: recorder,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
			},
		},
	}
}

// ChatCompletions proxies POST /v1/chat/completions.
func (h *ProxyHandler) ChatCompletions(c *gin.Context) {
	h.proxy(c, "/chat/completions")
}

// Responses proxies POST /v1/responses.
func (h *ProxyHandler) Responses(c *gin.Context) {
	h.proxy(c, "/responses")
}

func (h *ProxyHandler) proxy(c *gin.Context, endpoint string) {
	ctx := c.Request.Context()

	user, apiKey, errAuth := access.AuthenticateAPIKey(ctx, h.db, access.ExtractToken(c.Request))
	if errAuth != nil {
		c.JSON(access.StatusCode(errAuth), gin.H{"error": access.Reason(errAuth)})
		return
	}

	raw, errRead := io.ReadAll(c.Request.Body)
	if errRead != nil || !gjson.ValidBytes(raw) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	modelID := strings.TrimSpace(gjson.GetBytes(raw, "model").String())
	if modelID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing model"})
		return
	}

	if errCredit := access.CheckCredit(user); errCredit != nil {
		c.JSON(access.StatusCode(errCredit), gin.H{"error": access.Reason(errCredit)})
		return
	}

	membership, errMembership := orgs.RequireMembership(ctx, h.db, user.ID)
	if errMembership != nil {
		log.WithError(errMembership).Warn("proxy: membership resolve failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	inputPrice, outputPrice := h.prices.Lookup(modelID)
	var priceRow models.ModelPrice
	errPrice := h.db.WithContext(ctx).
		Where("org_id = ? AND model_id = ?", membership.OrgID, modelID).
		First(&priceRow).Error
	switch {
	case errPrice == nil:
		if !priceRow.Enabled {
			c.JSON(http.StatusForbidden, gin.H{"error": "model_disabled"})
			return
		}
		if priceRow.InputUSDMicrosPerM != nil {
			inputPrice = priceRow.InputUSDMicrosPerM
		}
		if priceRow.OutputUSDMicrosPerM != nil {
			outputPrice = priceRow.OutputUSDMicrosPerM
		}
	case errors.Is(errPrice, gorm.ErrRecordNotFound):
	default:
		log.WithError(errPrice).Warn("proxy: model price lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	channel, errChannel := channels.PickForGroup(ctx, h.db, membership.OrgID, user.GroupName)
	if errChannel != nil {
		log.WithError(errChannel).Warn("proxy: channel pick failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	if channel == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no_channel_configured"})
		return
	}

	upstreamURL := strings.TrimRight(channel.BaseURL, "/") + endpoint
	req, errReq := http.NewRequestWithContext(ctx, http.MethodPost, upstreamURL, bytes.NewReader(raw))
	if errReq != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream_error"})
		return
	}
	req.Header.Set("Authorization", "Bearer "+channel.APIKey)
	req.Header.Set("Content-Type", "application/json")
	for _, name := range forwardedRequestHeaders {
		if value := c.GetHeader(name); value != "" {
			req.Header.Set(name, value)
		}
	}

	streaming := gjson.GetBytes(raw, "stream").Bool()
	started := time.Now()

	resp, errDo := h.client.Do(req)
	if errDo != nil {
		log.WithError(errDo).Warnf("proxy: upstream request failed (model=%s)", modelID)
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream_error"})
		return
	}

	event := usage.Event{
		OrgID:      membership.OrgID,
		UserID:     user.ID,
		APIKeyID:   &apiKey.ID,
		ModelID:    modelID,
		OK:         resp.StatusCode < 400,
		StatusCode: resp.StatusCode,
		SourceIP:   clientIP(c),
	}

	if streaming {
		h.streamResponse(c, resp, started, event, inputPrice, outputPrice)
		return
	}
	h.bufferedResponse(c, resp, started, event, inputPrice, outputPrice)
}

func (h *ProxyHandler) bufferedResponse(c *gin.Context, resp *http.Response, started time.Time, event usage.Event, inputPrice, outputPrice *int64) {
	defer func() { _ = resp.Body.Close() }()

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}

	body, errRead := io.ReadAll(resp.Body)
	event.TotalDurationMS = time.Since(started).Milliseconds()
	if errRead != nil {
		log.WithError(errRead).Warn("proxy: upstream body read failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream_error"})
		return
	}

	if event.OK && strings.HasPrefix(contentType, "application/json") {
		if tokens, found := usage.Extract(body); found {
			event.Tokens = tokens
			event.CostUSDMicros = billing.CostUSDMicros(tokens, inputPrice, outputPrice)
		}
	}
	h.recorder.Record(event)

	c.Data(resp.StatusCode, contentType, body)
}

func (h *ProxyHandler) streamResponse(c *gin.Context, resp *http.Response, started time.Time, event usage.Event, inputPrice, outputPrice *int64) {
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	isSSE := strings.HasPrefix(contentType, "text/event-stream")

	c.Status(resp.StatusCode)
	c.Header("Content-Type", contentType)
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	extractor := &usage.StreamExtractor{}
	buf := make([]byte, 32*1024)
	first := true

	for {
		n, errRead := resp.Body.Read(buf)
		if n > 0 {
			if first {
				first = false
				event.TTFTMS = time.Since(started).Milliseconds()
			}
			chunk := buf[:n]
			if event.OK && isSSE {
				extractor.Feed(chunk)
			}
			if _, errWrite := c.Writer.Write(chunk); errWrite != nil {
				// Client went away; keep the partial counts and stop.
				break
			}
			c.Writer.Flush()
		}
		if errRead != nil {
			if !errors.Is(errRead, io.EOF) {
				log.WithError(errRead).Debug("proxy: upstream stream ended with error")
			}
			break
		}
	}

	event.TotalDurationMS = time.Since(started).Milliseconds()
	if tokens, found := extractor.Tokens(); found {
		event.Tokens = tokens
		event.CostUSDMicros = billing.CostUSDMicros(tokens, inputPrice, outputPrice)
	}

	// Close the upstream and persist accounting off the request goroutine so
	// the client sees the stream end immediately.
	go func(body io.ReadCloser, event usage.Event) {
		_ = body.Close()
		h.recorder.Record(event)
	}(resp.Body, event)
}
