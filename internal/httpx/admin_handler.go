package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gghookah/hookah-orders/internal/orders"
)

type AdminHandler struct {
	Service Orders
}

type TransitionReq struct {
	Status       string `json:"status" validate:"required"`
	ETAText      string `json:"eta_text" validate:"max=100"`
	CancelReason string `json:"cancel_reason" validate:"max=500"`
}

type AdjustTimerReq struct {
	Minutes int `json:"minutes" validate:"required,min=-1440,max=1440"`
}

type UpdateGuestReq struct {
	Name      *string `json:"name" validate:"omitempty,max=200"`
	TrustFlag *string `json:"trust_flag" validate:"omitempty,oneof=normal low blacklist"`
	Notes     *string `json:"notes" validate:"omitempty,max=2000"`
}

type RebowlTransitionReq struct {
	Status string `json:"status" validate:"required,oneof=IN_PROGRESS DONE CANCELED"`
	Note   string `json:"note" validate:"max=500"`
}

// Register mounts the operator console under /admin. Every route requires
// X-Operator-ID; the service decides whether that id is allowed.
func (h *AdminHandler) Register(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(withActor(HeaderOperatorID, orders.Staff))
		r.Get("/orders/{id}", h.getOrder)
		r.Post("/orders/{id}/transition", h.transition)
		r.Post("/orders/{id}/force-ending", h.forceEnding)
		r.Post("/orders/{id}/complete", h.complete)
		r.Post("/orders/{id}/adjust-timer", h.adjustTimer)
		r.Post("/orders/{id}/free-extend", h.freeExtend)
		r.Post("/orders/{id}/rebowls/{rebowlID}/transition", h.transitionRebowl)
		r.Post("/mixes/{id}/featured", h.setFeatured)
		r.Patch("/guests/{id}", h.updateGuest)
	})
}

func (h *AdminHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	d, err := h.Service.Get(ctx, chi.URLParam(r, "id"), actorFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *AdminHandler) transition(w http.ResponseWriter, r *http.Request) {
	var req TransitionReq
	if !decode(w, r, &req) {
		return
	}
	target := orders.Status(req.Status)
	if !target.Valid() {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "unknown status " + req.Status})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Service.Transition(ctx, chi.URLParam(r, "id"), target, actorFrom(r.Context()), orders.TransitionExtra{
		ETAText:      req.ETAText,
		CancelReason: req.CancelReason,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *AdminHandler) forceEnding(w http.ResponseWriter, r *http.Request) {
	h.orderOp(w, r, h.Service.ForceEnding)
}

func (h *AdminHandler) complete(w http.ResponseWriter, r *http.Request) {
	h.orderOp(w, r, h.Service.Complete)
}

func (h *AdminHandler) freeExtend(w http.ResponseWriter, r *http.Request) {
	h.orderOp(w, r, h.Service.FreeExtend)
}

func (h *AdminHandler) orderOp(w http.ResponseWriter, r *http.Request, op func(context.Context, string, orders.Actor) (orders.Order, error)) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := op(ctx, chi.URLParam(r, "id"), actorFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *AdminHandler) adjustTimer(w http.ResponseWriter, r *http.Request) {
	var req AdjustTimerReq
	if !decode(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Service.AdjustTimer(ctx, chi.URLParam(r, "id"), req.Minutes, actorFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *AdminHandler) transitionRebowl(w http.ResponseWriter, r *http.Request) {
	var req RebowlTransitionReq
	if !decode(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	rb, err := h.Service.TransitionRebowl(ctx,
		chi.URLParam(r, "rebowlID"), chi.URLParam(r, "id"),
		orders.RebowlStatus(req.Status), actorFrom(r.Context()), req.Note)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rb)
}

func (h *AdminHandler) setFeatured(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Service.SetFeaturedMix(ctx, chi.URLParam(r, "id"), actorFrom(r.Context())); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) updateGuest(w http.ResponseWriter, r *http.Request) {
	var req UpdateGuestReq
	if !decode(w, r, &req) {
		return
	}
	upd := orders.GuestUpdate{Name: req.Name, Notes: req.Notes}
	if req.TrustFlag != nil {
		flag := orders.TrustFlag(*req.TrustFlag)
		upd.Trust = &flag
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	g, err := h.Service.UpdateGuest(ctx, chi.URLParam(r, "id"), upd, actorFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}
