// Promo-code HTTP handlers.
//
// The public preview endpoint lets the storefront show a discount before
// checkout; the admin group manages the promo records themselves. Both reuse
// the same validation engine the checkout path uses, so a preview and the
// eventual order can never disagree.
package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/l1ndleq/creamshop-backend/internal/domain"
	"github.com/l1ndleq/creamshop-backend/internal/promo"
)

// PromoPreviewBody asks what a code would do to a subtotal.
type PromoPreviewBody struct {
	Code     string `json:"code" binding:"required" example:"LETO10"`
	Subtotal int64  `json:"subtotal" binding:"required,min=1"`
}

// PromoPreviewResponse reports the computed discount.
type PromoPreviewResponse struct {
	Code           string `json:"code"`
	DiscountAmount int64  `json:"discountAmount"`
	TotalPrice     int64  `json:"totalPrice"`
}

// CreatePromoBody is the admin payload for a new promo code.
type CreatePromoBody struct {
	Code          string `json:"code" binding:"required"`
	Type          string `json:"type" binding:"required,oneof=percent fixed"`
	Value         int64  `json:"value" binding:"required,min=1"`
	MaxUses       *int   `json:"maxUses,omitempty"`
	ExpiresInDays int    `json:"expiresInDays,omitempty"`
	Active        *bool  `json:"active,omitempty"`
}

// UpdatePromoBody patches an existing promo. Only the provided fields change.
type UpdatePromoBody struct {
	Active        *bool  `json:"active,omitempty"`
	Value         *int64 `json:"value,omitempty"`
	MaxUses       *int   `json:"maxUses,omitempty"`
	ExpiresInDays *int   `json:"expiresInDays,omitempty"`
}

// PreviewPromo godoc
// @ID          previewPromo
// @Summary     Preview a promo code against a cart subtotal
// @Tags        Promo
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.PromoPreviewBody  true  "Code and subtotal"
// @Success     200  {object}  handlers.PromoPreviewResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Code rejected"
// @Router      /promo/preview [post]
func (h *Handlers) PreviewPromo(c *gin.Context) {
	var req PromoPreviewBody
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	res, err := h.applyPromo(c, code, req.Subtotal)
	if err != nil {
		status, errCode, msg := promoError(err)
		fail(c, status, errCode, msg)
		return
	}
	ok(c, http.StatusOK, PromoPreviewResponse{
		Code:           code,
		DiscountAmount: res.DiscountAmount,
		TotalPrice:     res.TotalPrice,
	})
}

// AdminListPromos godoc
// @ID          adminListPromos
// @Summary     List all promo codes
// @Tags        Admin
// @Produce     json
// @Security    BearerAuth
// @Success     200  {array}  domain.PromoCode
// @Router      /admin/promos [get]
func (h *Handlers) AdminListPromos(c *gin.Context) {
	list, err := h.promos.List(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "could not list promo codes")
		return
	}
	ok(c, http.StatusOK, list)
}

// AdminCreatePromo godoc
// @ID          adminCreatePromo
// @Summary     Create a promo code
// @Tags        Admin
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body  handlers.CreatePromoBody  true  "Promo definition"
// @Success     201  {object}  domain.PromoCode
// @Failure     409  {object}  handlers.ErrorResponse  "Code already exists"
// @Router      /admin/promos [post]
func (h *Handlers) AdminCreatePromo(c *gin.Context) {
	var req CreatePromoBody
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid promo payload")
		return
	}

	p := domain.PromoCode{
		Code:    strings.ToUpper(strings.TrimSpace(req.Code)),
		Type:    domain.PromoType(req.Type),
		Value:   req.Value,
		Active:  true,
		MaxUses: req.MaxUses,
	}
	if req.Active != nil {
		p.Active = *req.Active
	}
	if req.ExpiresInDays > 0 {
		exp := h.now().Add(time.Duration(req.ExpiresInDays) * 24 * time.Hour)
		p.ExpiresAt = &exp
	}
	if p.Type == domain.PromoPercent && p.Value > 95 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "percent value must be 95 or less")
		return
	}

	created, err := h.promos.Create(c.Request.Context(), p)
	if err != nil {
		if errors.Is(err, promo.ErrExists) {
			fail(c, http.StatusConflict, ErrCodeConflict, "promo code already exists")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, "could not create the promo code")
		return
	}
	ok(c, http.StatusCreated, created)
}

// AdminUpdatePromo godoc
// @ID          adminUpdatePromo
// @Summary     Patch a promo code
// @Tags        Admin
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       code  path  string                    true  "Promo code"
// @Param       body  body  handlers.UpdatePromoBody  true  "Fields to change"
// @Success     200  {object}  domain.PromoCode
// @Failure     400  {object}  handlers.ErrorResponse  "Malformed result"
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /admin/promos/{code} [patch]
func (h *Handlers) AdminUpdatePromo(c *gin.Context) {
	var req UpdatePromoBody
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	code := strings.ToUpper(c.Param("code"))
	updated, found, err := h.promos.Update(c.Request.Context(), code, func(p *domain.PromoCode) {
		if req.Active != nil {
			p.Active = *req.Active
		}
		if req.Value != nil {
			p.Value = *req.Value
		}
		if req.MaxUses != nil {
			p.MaxUses = req.MaxUses
		}
		if req.ExpiresInDays != nil {
			if *req.ExpiresInDays <= 0 {
				p.ExpiresAt = nil
			} else {
				exp := h.now().Add(time.Duration(*req.ExpiresInDays) * 24 * time.Hour)
				p.ExpiresAt = &exp
			}
		}
	})
	if errors.Is(err, promo.ErrInvalid) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "update would leave the promo code malformed")
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not update the promo code")
		return
	}
	if !found {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "promo code not found")
		return
	}
	ok(c, http.StatusOK, updated)
}

// AdminDeletePromo godoc
// @ID          adminDeletePromo
// @Summary     Delete a promo code
// @Tags        Admin
// @Security    BearerAuth
// @Param       code  path  string  true  "Promo code"
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /admin/promos/{code} [delete]
func (h *Handlers) AdminDeletePromo(c *gin.Context) {
	code := strings.ToUpper(c.Param("code"))
	removed, err := h.promos.Delete(c.Request.Context(), code)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not delete the promo code")
		return
	}
	if !removed {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "promo code not found")
		return
	}
	noContent(c)
}
