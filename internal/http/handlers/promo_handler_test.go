package handlers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/l1ndleq/creamshop-backend/internal/domain"
)

func TestPreviewPromo(t *testing.T) {
	env := newTestEnv(t)
	env.seedPromo(t, domain.PromoCode{Code: "LETO10", Type: domain.PromoPercent, Value: 10, Active: true})

	w := env.do(t, http.MethodPost, "/promo/preview", "", PromoPreviewBody{Code: "leto10", Subtotal: 1000})
	wantStatus(t, w, http.StatusOK)

	var resp PromoPreviewResponse
	decodeJSON(t, w, &resp)
	if resp.Code != "LETO10" || resp.DiscountAmount != 100 || resp.TotalPrice != 900 {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestPreviewPromo_Rejections(t *testing.T) {
	env := newTestEnv(t)
	past := env.now.Add(-time.Hour)
	limit := 0
	env.seedPromo(t, domain.PromoCode{Code: "GONE", Type: domain.PromoFixed, Value: 100, Active: true, ExpiresAt: &past})
	env.seedPromo(t, domain.PromoCode{Code: "FULL", Type: domain.PromoFixed, Value: 100, Active: true, MaxUses: &limit})
	env.seedPromo(t, domain.PromoCode{Code: "BIG", Type: domain.PromoFixed, Value: 5000, Active: true})

	cases := map[string]struct {
		code     string
		subtotal int64
		wantCode string
	}{
		"unknown":         {"NOPE", 1000, ErrCodePromoInvalid},
		"expired":         {"GONE", 1000, ErrCodePromoExpired},
		"usage limit":     {"FULL", 1000, ErrCodePromoUsageLimit},
		"fixed eats total": {"BIG", 1, ErrCodePromoNoDiscount},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/promo/preview", "", PromoPreviewBody{Code: tc.code, Subtotal: tc.subtotal})
			wantStatus(t, w, http.StatusBadRequest)
			wantErrCode(t, w, tc.wantCode)
		})
	}
}

func TestAdminPromoCRUD(t *testing.T) {
	env := newTestEnv(t)
	admin := env.adminToken(t)

	// Create.
	w := env.do(t, http.MethodPost, "/admin/promos", admin, CreatePromoBody{
		Code: "vesna", Type: "percent", Value: 15, ExpiresInDays: 30,
	})
	wantStatus(t, w, http.StatusCreated)
	var created domain.PromoCode
	decodeJSON(t, w, &created)
	if created.Code != "VESNA" || !created.Active {
		t.Fatalf("created = %+v", created)
	}
	if created.ExpiresAt == nil || !created.ExpiresAt.Equal(env.now.Add(30*24*time.Hour)) {
		t.Fatalf("expiry = %v", created.ExpiresAt)
	}

	// Duplicate.
	w = env.do(t, http.MethodPost, "/admin/promos", admin, CreatePromoBody{Code: "VESNA", Type: "percent", Value: 15})
	wantStatus(t, w, http.StatusConflict)

	// List.
	w = env.do(t, http.MethodGet, "/admin/promos", admin, nil)
	wantStatus(t, w, http.StatusOK)
	var list []domain.PromoCode
	decodeJSON(t, w, &list)
	if len(list) != 1 {
		t.Fatalf("len = %d", len(list))
	}

	// Patch: deactivate.
	off := false
	w = env.do(t, http.MethodPatch, "/admin/promos/vesna", admin, UpdatePromoBody{Active: &off})
	wantStatus(t, w, http.StatusOK)
	var updated domain.PromoCode
	decodeJSON(t, w, &updated)
	if updated.Active {
		t.Fatal("promo still active after patch")
	}

	// The public preview now refuses it.
	w = env.do(t, http.MethodPost, "/promo/preview", "", PromoPreviewBody{Code: "VESNA", Subtotal: 1000})
	wantStatus(t, w, http.StatusBadRequest)
	wantErrCode(t, w, ErrCodePromoInactive)

	// Delete, then 404 on a repeat.
	w = env.do(t, http.MethodDelete, "/admin/promos/VESNA", admin, nil)
	wantStatus(t, w, http.StatusNoContent)
	w = env.do(t, http.MethodDelete, "/admin/promos/VESNA", admin, nil)
	wantStatus(t, w, http.StatusNotFound)
}

func TestAdminCreatePromo_Validation(t *testing.T) {
	env := newTestEnv(t)
	admin := env.adminToken(t)

	bad := []CreatePromoBody{
		{Code: "X", Type: "lottery", Value: 10}, // unknown type
		{Code: "X", Type: "percent"},            // zero value
		{Code: "X", Type: "percent", Value: 99}, // over the percent cap
	}
	for i, body := range bad {
		w := env.do(t, http.MethodPost, "/admin/promos", admin, body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("case %d: status = %d (body %s)", i, w.Code, w.Body.String())
		}
	}
}

func TestAdminPromos_RequireAuth(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/admin/promos", "", nil)
	wantStatus(t, w, http.StatusUnauthorized)

	w = env.do(t, http.MethodPost, "/admin/promos", env.sessionToken(t, "+79051234567"), CreatePromoBody{Code: "X", Type: "fixed", Value: 1})
	wantStatus(t, w, http.StatusUnauthorized)
}

func TestUpdatePromo_ClearExpiry(t *testing.T) {
	env := newTestEnv(t)
	admin := env.adminToken(t)
	soon := env.now.Add(time.Hour)
	env.seedPromo(t, domain.PromoCode{Code: "KEEP", Type: domain.PromoFixed, Value: 50, Active: true, ExpiresAt: &soon})

	zero := 0
	w := env.do(t, http.MethodPatch, "/admin/promos/KEEP", admin, UpdatePromoBody{ExpiresInDays: &zero})
	wantStatus(t, w, http.StatusOK)

	var updated domain.PromoCode
	decodeJSON(t, w, &updated)
	if updated.ExpiresAt != nil {
		t.Fatalf("expiry not cleared: %v", updated.ExpiresAt)
	}
}

func TestUpdatePromo_RejectsMalformedResult(t *testing.T) {
	env := newTestEnv(t)
	admin := env.adminToken(t)
	env.seedPromo(t, domain.PromoCode{Code: "SALE", Type: domain.PromoPercent, Value: 10, Active: true})

	// Patching the percent above the cap is caller error, not a server fault.
	tooHigh := int64(99)
	w := env.do(t, http.MethodPatch, "/admin/promos/SALE", admin, UpdatePromoBody{Value: &tooHigh})
	wantStatus(t, w, http.StatusBadRequest)
	wantErrCode(t, w, ErrCodeBadRequest)

	// The stored record is untouched.
	p, found, err := env.promos.Get(context.Background(), "SALE")
	if err != nil || !found {
		t.Fatalf("get after failed update: found=%v err=%v", found, err)
	}
	if p.Value != 10 {
		t.Fatalf("value = %d, want 10", p.Value)
	}
}
