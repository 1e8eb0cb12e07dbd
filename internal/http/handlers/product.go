package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/store-composite/internal/domain/catalog"
	"github.com/yungbote/store-composite/internal/http/response"
	"github.com/yungbote/store-composite/internal/platform/apierr"
	"github.com/yungbote/store-composite/internal/platform/ctxutil"
	"github.com/yungbote/store-composite/internal/services"
)

const defaultMaxRequestBytes = 1 << 20

type ProductHandler struct {
	store           services.StoreService
	maxRequestBytes int64
}

func NewProductHandler(store services.StoreService, maxRequestBytes int64) *ProductHandler {
	if maxRequestBytes <= 0 {
		maxRequestBytes = defaultMaxRequestBytes
	}
	return &ProductHandler{store: store, maxRequestBytes: maxRequestBytes}
}

// GET /products/:id?delay=&faultPercent=
func (h *ProductHandler) GetProduct(c *gin.Context) {
	productID, err := pathProductID(c)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	delay, err := queryInt(c, "delay", 0, -1)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	faultPercent, err := queryInt(c, "faultPercent", 0, 100)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	agg, err := h.store.GetAggregate(c.Request.Context(), productID, delay, faultPercent)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, agg)
}

// POST /products
func (h *ProductHandler) CreateProduct(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxRequestBytes)
	dec := json.NewDecoder(c.Request.Body)
	dec.DisallowUnknownFields()

	var body catalog.ProductAggregate
	if err := dec.Decode(&body); err != nil {
		response.RespondError(c, decodeError(err))
		return
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		response.RespondError(c, apierr.BadRequest("request body must contain a single JSON object"))
		return
	}

	if err := h.store.CreateAggregate(c.Request.Context(), authFrom(c), body); err != nil {
		response.RespondError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

// DELETE /products/:id
func (h *ProductHandler) DeleteProduct(c *gin.Context) {
	productID, err := pathProductID(c)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	if err := h.store.DeleteAggregate(c.Request.Context(), authFrom(c), productID); err != nil {
		response.RespondError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func authFrom(c *gin.Context) ctxutil.AuthContext {
	ac, _ := ctxutil.GetAuthContext(c.Request.Context())
	return ac
}

func pathProductID(c *gin.Context) (int, error) {
	raw := strings.TrimSpace(c.Param("id"))
	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apierr.BadRequest("Type mismatch: productId %q is not an integer", raw)
	}
	return id, nil
}

// queryInt parses an optional non-negative integer parameter. upper < 0
// means no upper bound.
func queryInt(c *gin.Context, name string, def, upper int) (int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apierr.BadRequest("Type mismatch: %s %q is not an integer", name, raw)
	}
	if v < 0 || (upper >= 0 && v > upper) {
		if upper >= 0 {
			return 0, apierr.BadRequest("Invalid %s: %d, must be between 0 and %d", name, v, upper)
		}
		return 0, apierr.BadRequest("Invalid %s: %d, must not be negative", name, v)
	}
	return v, nil
}

func decodeError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apierr.New(http.StatusRequestEntityTooLarge, "request_too_large", err)
	}
	return apierr.BadRequest("invalid request body: %v", err)
}
