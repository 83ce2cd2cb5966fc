package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/gghookah/hookah-orders/internal/inventory"
	"github.com/gghookah/hookah-orders/internal/orders"
)

// Orders is the slice of orders.Service the HTTP layer drives.
type Orders interface {
	CreateOrder(ctx context.Context, in orders.CreateOrderInput) (orders.CreateOrderResult, error)
	Get(ctx context.Context, orderID string, actor orders.Actor) (orders.OrderDetails, error)
	ClientAction(ctx context.Context, orderID string, action orders.ClientActionName, actor orders.Actor) error
	RequestRebowl(ctx context.Context, orderID, mixID string, actor orders.Actor) (orders.RebowlRequest, error)
	Availability(ctx context.Context) (inventory.Availability, error)

	Transition(ctx context.Context, orderID string, target orders.Status, actor orders.Actor, extra orders.TransitionExtra) (orders.Order, error)
	ForceEnding(ctx context.Context, orderID string, actor orders.Actor) (orders.Order, error)
	Complete(ctx context.Context, orderID string, actor orders.Actor) (orders.Order, error)
	AdjustTimer(ctx context.Context, orderID string, minutes int, actor orders.Actor) (orders.Order, error)
	TransitionRebowl(ctx context.Context, rebowlID, orderID string, target orders.RebowlStatus, actor orders.Actor, note string) (orders.RebowlRequest, error)
	SetFeaturedMix(ctx context.Context, mixID string, actor orders.Actor) error
	FreeExtend(ctx context.Context, orderID string, actor orders.Actor) (orders.Order, error)
	UpdateGuest(ctx context.Context, guestID string, upd orders.GuestUpdate, actor orders.Actor) (orders.Guest, error)
}

// Cache holds rendered read models. Implemented by redisx.Cache; a miss or a
// Redis error both report ok=false. An order body is stored under the
// generation read before it was rendered, so a concurrent invalidation wins.
type Cache interface {
	Order(ctx context.Context, orderID string) (body []byte, gen int64, ok bool)
	PutOrder(ctx context.Context, orderID string, gen int64, body []byte)
	Availability(ctx context.Context) ([]byte, bool)
	PutAvailability(ctx context.Context, body []byte)
}

type OrdersHandler struct {
	Service Orders
	Cache   Cache
	Log     zerolog.Logger
}

type CartLineReq struct {
	ItemID string `json:"item_id" validate:"required"`
	Qty    int    `json:"qty" validate:"required,min=1,max=10"`
}

type AddressReq struct {
	Text      string `json:"text" validate:"required,max=500"`
	Entrance  string `json:"entrance" validate:"max=50"`
	Floor     string `json:"floor" validate:"max=50"`
	Apartment string `json:"apartment" validate:"max=50"`
	DoorCode  string `json:"door_code" validate:"max=50"`
}

type CreateOrderReq struct {
	Phone       string        `json:"phone" validate:"required,max=32"`
	Hookahs     []CartLineReq `json:"hookahs" validate:"required,min=1,dive"`
	Drinks      []CartLineReq `json:"drinks" validate:"omitempty,dive"`
	Address     AddressReq    `json:"address"`
	Comment     string        `json:"comment" validate:"max=1000"`
	DepositType string        `json:"deposit_type" validate:"required,oneof=cash passport none"`
	PromoCode   string        `json:"promo_code" validate:"max=64"`
	Lang        string        `json:"lang" validate:"omitempty,oneof=ru en"`
}

type RebowlReq struct {
	MixID string `json:"mix_id"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Get("/availability", h.availability)
	r.Group(func(r chi.Router) {
		r.Use(withActor(HeaderTelegramID, orders.Client))
		r.Post("/orders", h.createOrder)
		r.Get("/orders/{id}", h.getOrder)
		r.Post("/orders/{id}/actions/{action}", h.clientAction)
	})
}

func (h *OrdersHandler) availability(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if b, ok := h.Cache.Availability(ctx); ok {
		writeRaw(w, http.StatusOK, b)
		return
	}
	a, err := h.Service.Availability(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	b, _ := json.Marshal(a)
	h.Cache.PutAvailability(ctx, b)
	writeRaw(w, http.StatusOK, b)
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderReq
	if !decode(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := h.Service.CreateOrder(ctx, orders.CreateOrderInput{
		TelegramID: actorFrom(r.Context()).ID,
		Phone:      req.Phone,
		Hookahs:    cartLines(req.Hookahs),
		Drinks:     cartLines(req.Drinks),
		Address: orders.Address{
			Text:      req.Address.Text,
			Entrance:  req.Address.Entrance,
			Floor:     req.Address.Floor,
			Apartment: req.Address.Apartment,
			DoorCode:  req.Address.DoorCode,
		},
		Comment:     req.Comment,
		DepositType: orders.DepositType(req.DepositType),
		PromoCode:   req.PromoCode,
		Lang:        req.Lang,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func cartLines(in []CartLineReq) []orders.CartLine {
	if len(in) == 0 {
		return nil
	}
	out := make([]orders.CartLine, 0, len(in))
	for _, l := range in {
		out = append(out, orders.CartLine{ItemID: l.ItemID, Qty: l.Qty})
	}
	return out
}

// getOrder serves the guest's polling view. Cached bodies are shared, so a
// hit is checked against the caller before it is returned.
func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	actor := actorFrom(r.Context())

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	b, gen, ok := h.Cache.Order(ctx, orderID)
	if ok {
		var owner struct {
			TelegramID int64 `json:"telegram_id"`
		}
		if json.Unmarshal(b, &owner) == nil {
			if owner.TelegramID != actor.ID {
				writeError(w, r, orders.ErrNotFound)
				return
			}
			writeRaw(w, http.StatusOK, b)
			return
		}
	}

	d, err := h.Service.Get(ctx, orderID, actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	b, _ = json.Marshal(d)
	h.Cache.PutOrder(ctx, orderID, gen, b)
	writeRaw(w, http.StatusOK, b)
}

func (h *OrdersHandler) clientAction(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	action := orders.ClientActionName(chi.URLParam(r, "action"))
	actor := actorFrom(r.Context())

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if action == orders.ActionNameRequestRebowl {
		var req RebowlReq
		if r.ContentLength != 0 && !decode(w, r, &req) {
			return
		}
		rb, err := h.Service.RequestRebowl(ctx, orderID, req.MixID, actor)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, rb)
		return
	}

	if err := h.Service.ClientAction(ctx, orderID, action, actor); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
