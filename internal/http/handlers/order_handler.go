// Order HTTP handlers.
//
// Checkout is public: anyone can create an order by submitting a contact
// phone. Reading an order back requires proof of ownership, either a session
// whose phone matches the order, or the signed access token embedded in the
// tracking link the customer received. The admin surface lists and
// transitions orders under bearer auth.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/l1ndleq/creamshop-backend/internal/domain"
	"github.com/l1ndleq/creamshop-backend/internal/http/middleware"
	"github.com/l1ndleq/creamshop-backend/internal/identity"
	"github.com/l1ndleq/creamshop-backend/internal/orders"
	"github.com/l1ndleq/creamshop-backend/internal/promo"
	"github.com/l1ndleq/creamshop-backend/internal/token"
	"github.com/l1ndleq/creamshop-backend/internal/utils"
)

// defaultListLimit bounds order listings when the client does not ask for a
// specific page size.
const defaultListLimit = 20

// maxListLimit is the hard ceiling for ?limit.
const maxListLimit = 100

// OrderItemBody is one cart position in the checkout payload.
type OrderItemBody struct {
	ID    string `json:"id"`
	Title string `json:"title" binding:"required"`
	Price int64  `json:"price" binding:"min=0"`
	Qty   int    `json:"qty" binding:"required,min=1"`
}

// CreateOrderBody is the checkout payload.
type CreateOrderBody struct {
	Name      string          `json:"name" binding:"required"`
	Phone     string          `json:"phone" binding:"required"`
	Telegram  string          `json:"telegram"`
	Items     []OrderItemBody `json:"items" binding:"required,min=1,dive"`
	PromoCode string          `json:"promoCode"`
}

// OrderResponse is the order document plus the signed tracking link.
type OrderResponse struct {
	domain.Order
	TrackingURL string `json:"trackingUrl,omitempty"`
}

// StatusUpdateBody is the admin transition payload.
type StatusUpdateBody struct {
	Status string `json:"status" binding:"required" example:"shipped"`
}

// CreateOrder godoc
// @ID          createOrder
// @Summary     Create an order (checkout)
// @Description Validates the cart, applies an optional promo code server-side,
// @Description persists the order and fans out Telegram notifications.
// @Tags        Orders
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.CreateOrderBody  true  "Checkout payload"
// @Success     201  {object}  handlers.OrderResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid cart, phone, or promo"
// @Router      /orders [post]
func (h *Handlers) CreateOrder(c *gin.Context) {
	// Retried checkouts with an Idempotency-Key replay the recorded order
	// instead of creating a duplicate.
	if order, replayed := h.replayOrder(c); replayed {
		c.Header("Idempotency-Replayed", "true")
		ok(c, http.StatusOK, h.orderResponse(order))
		return
	}

	var req CreateOrderBody
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid order payload")
		return
	}

	items := make([]domain.OrderItem, 0, len(req.Items))
	var subtotal int64
	for _, it := range req.Items {
		items = append(items, domain.OrderItem{
			ID:    it.ID,
			Title: strings.TrimSpace(it.Title),
			Price: it.Price,
			Qty:   it.Qty,
		})
		subtotal += it.Price * int64(it.Qty)
	}
	if subtotal <= 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "order total must be positive")
		return
	}

	draft := orders.Draft{
		Customer: domain.Customer{
			Name:     strings.TrimSpace(req.Name),
			Phone:    req.Phone,
			Telegram: strings.TrimPrefix(strings.TrimSpace(req.Telegram), "@"),
		},
		Items:      items,
		TotalPrice: subtotal,
	}

	// Promo codes are never trusted from the client: the discount is
	// recomputed here no matter what total the storefront displayed.
	if code := strings.ToUpper(strings.TrimSpace(req.PromoCode)); code != "" {
		res, err := h.applyPromo(c, code, subtotal)
		if err != nil {
			status, errCode, msg := promoError(err)
			fail(c, status, errCode, msg)
			return
		}
		draft.PromoCode = code
		draft.Discount = res.DiscountAmount
		draft.TotalPrice = res.TotalPrice
	}

	order, err := h.orders.Create(c.Request.Context(), draft)
	if err != nil {
		if errors.Is(err, identity.ErrPhoneInvalid) {
			fail(c, http.StatusBadRequest, ErrCodeInvalidPhone, "phone number is not valid")
			return
		}
		middleware.LoggerFrom(c).Error().Err(err).Msg("create order failed")
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, "could not create the order")
		return
	}

	h.recordOrderKey(c, order.ID)
	if h.notifier != nil {
		h.notifier.OrderCreated(c.Request.Context(), order)
	}
	ok(c, http.StatusCreated, h.orderResponse(order))
}

// replayOrder fetches the order a previous request with the same caller and
// Idempotency-Key produced, if any.
func (h *Handlers) replayOrder(c *gin.Context) (*domain.Order, bool) {
	if h.idem == nil || !middleware.IsReplay(c) {
		return nil, false
	}
	key, hasKey := middleware.GetIdempotencyKey(c)
	if !hasKey {
		return nil, false
	}
	ctx := c.Request.Context()
	id, found, err := h.idem.Get(ctx, idemKey(middleware.CallerIdentity(c), key))
	if err != nil || !found {
		return nil, false
	}
	order, found, err := h.orders.Get(ctx, id)
	if err != nil || !found {
		return nil, false
	}
	return order, true
}

// recordOrderKey remembers a completed checkout under its Idempotency-Key.
func (h *Handlers) recordOrderKey(c *gin.Context, orderID string) {
	if h.idem == nil {
		return
	}
	key, hasKey := middleware.GetIdempotencyKey(c)
	if !hasKey {
		return
	}
	k := idemKey(middleware.CallerIdentity(c), key)
	if err := h.idem.Set(c.Request.Context(), k, orderID, h.idemTTL); err != nil {
		middleware.LoggerFrom(c).Warn().Err(err).Msg("record idempotency key failed")
	}
}

func idemKey(identity, key string) string { return "idem:" + identity + ":" + key }

// applyPromo fetches and validates a promo code against a subtotal.
func (h *Handlers) applyPromo(c *gin.Context, code string, subtotal int64) (promo.Result, error) {
	p, found, err := h.promos.Get(c.Request.Context(), code)
	if err != nil {
		return promo.Result{}, err
	}
	if !found {
		return promo.Result{}, promo.ErrInvalid
	}
	return promo.Validate(&p, subtotal, h.now())
}

// promoError maps a promo validation failure to an HTTP status and code.
func promoError(err error) (int, string, string) {
	switch {
	case errors.Is(err, promo.ErrInactive):
		return http.StatusBadRequest, ErrCodePromoInactive, "promo code is disabled"
	case errors.Is(err, promo.ErrExpired):
		return http.StatusBadRequest, ErrCodePromoExpired, "promo code has expired"
	case errors.Is(err, promo.ErrUsageLimit):
		return http.StatusBadRequest, ErrCodePromoUsageLimit, "promo code usage limit reached"
	case errors.Is(err, promo.ErrNoDiscount):
		return http.StatusBadRequest, ErrCodePromoNoDiscount, "promo code gives no discount on this order"
	case errors.Is(err, promo.ErrInvalid):
		return http.StatusBadRequest, ErrCodePromoInvalid, "promo code is not valid"
	default:
		return http.StatusInternalServerError, ErrCodeInternal, "could not check the promo code"
	}
}

// orderResponse attaches the signed tracking link to an order document.
func (h *Handlers) orderResponse(order *domain.Order) OrderResponse {
	return OrderResponse{
		Order:       *order,
		TrackingURL: token.BuildOrderTrackingURL(h.siteBaseURL, order.ID, order.Customer.Phone, h.orderLinkSecret),
	}
}

// ListMyOrders godoc
// @ID          listMyOrders
// @Summary     List the session customer's orders, newest first
// @Tags        Orders
// @Produce     json
// @Security    BearerAuth
// @Param       limit  query  int  false  "Page size (max 100)"  default(20)
// @Success     200  {array}  domain.Order
// @Failure     401  {object}  handlers.ErrorResponse
// @Router      /orders [get]
func (h *Handlers) ListMyOrders(c *gin.Context) {
	phone, okSess := middleware.SessionPhone(c)
	if !okSess {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "no session")
		return
	}
	list, err := h.orders.ListForPhone(c.Request.Context(), phone, listLimit(c))
	if err != nil {
		middleware.LoggerFrom(c).Error().Err(err).Msg("list orders failed")
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "could not list orders")
		return
	}
	ok(c, http.StatusOK, list)
}

// GetOrder godoc
// @ID          getOrder
// @Summary     Fetch one order
// @Description Requires proof of ownership: either a session whose phone
// @Description matches the order, or the ?t= access token from the tracking
// @Description link. Admin sessions bypass the ownership check.
// @Tags        Orders
// @Produce     json
// @Param       id  path   string  true   "Order id"
// @Param       t   query  string  false  "Order access token"
// @Success     200  {object}  handlers.OrderResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown order or no proof of ownership"
// @Router      /orders/{id} [get]
func (h *Handlers) GetOrder(c *gin.Context) {
	id := strings.ToUpper(c.Param("id"))
	order, found, err := h.orders.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not read the order")
		return
	}
	// Unknown id and failed ownership look identical from outside, so order
	// ids cannot be probed for existence.
	if !found || !h.mayReadOrder(c, order) {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "order not found")
		return
	}
	ok(c, http.StatusOK, h.orderResponse(order))
}

// mayReadOrder reports whether the request proves ownership of the order.
func (h *Handlers) mayReadOrder(c *gin.Context, order *domain.Order) bool {
	if t := c.Query("t"); t != "" &&
		token.VerifyOrderAccessToken(t, order.ID, order.Customer.Phone, h.orderLinkSecret) {
		return true
	}
	if phone, okSess := middleware.SessionPhone(c); okSess && orders.Owns(order, phone) {
		return true
	}
	_, isAdmin := middleware.AdminLogin(c)
	return isAdmin
}

// AdminListOrders godoc
// @ID          adminListOrders
// @Summary     List recent orders across all customers
// @Tags        Admin
// @Produce     json
// @Security    BearerAuth
// @Param       limit  query  int  false  "Page size (max 100)"  default(20)
// @Success     200  {array}  domain.Order
// @Router      /admin/orders [get]
func (h *Handlers) AdminListOrders(c *gin.Context) {
	list, err := h.orders.ListRecent(c.Request.Context(), listLimit(c))
	if err != nil {
		middleware.LoggerFrom(c).Error().Err(err).Msg("list recent orders failed")
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "could not list orders")
		return
	}
	ok(c, http.StatusOK, list)
}

// AdminSetOrderStatus godoc
// @ID          adminSetOrderStatus
// @Summary     Transition an order's status
// @Description Idempotent: re-sending the current status responds 200 without
// @Description a new history entry or customer notification.
// @Tags        Admin
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path  string                     true  "Order id"
// @Param       body  body  handlers.StatusUpdateBody  true  "Target status"
// @Success     200  {object}  domain.Order
// @Failure     400  {object}  handlers.ErrorResponse  "Unknown status"
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /admin/orders/{id}/status [patch]
func (h *Handlers) AdminSetOrderStatus(c *gin.Context) {
	var req StatusUpdateBody
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	status, okStatus := domain.ParseStatus(req.Status)
	if !okStatus {
		fail(c, http.StatusBadRequest, ErrCodeStatusInvalid, "unknown status "+req.Status)
		return
	}

	id := strings.ToUpper(c.Param("id"))
	order, changed, err := h.orders.Transition(c.Request.Context(), id, status, domain.ActorAdmin)
	if err != nil {
		if errors.Is(err, orders.ErrNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "order not found")
			return
		}
		middleware.LoggerFrom(c).Error().Err(err).Msg("order transition failed")
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not update the order")
		return
	}
	if changed && h.notifier != nil {
		h.notifier.StatusChanged(c.Request.Context(), order)
	}
	ok(c, http.StatusOK, order)
}

// listLimit parses ?limit with the shared default and ceiling.
func listLimit(c *gin.Context) int {
	limit := utils.AtoiDefault(c.Query("limit"), defaultListLimit)
	if limit < 1 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return limit
}
