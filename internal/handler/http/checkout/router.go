package checkout

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func RegisterRoutes(r chi.Router, s CheckoutService, c ListingCatalog, l *zap.Logger) {
	handler := NewCheckoutHandler(s, c, l.With(zap.String("component", "CheckoutHTTPHandler")))

	r.Get("/health", Health)
	r.Get("/listings", handler.ListListings)

	r.Route("/sessions", func(r chi.Router) {
		r.Use(requireBuyer)
		r.Post("/", handler.CreateSession)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", handler.GetSession)
			r.Delete("/", handler.EndSession)
			r.Post("/items", handler.AddItem)
			r.Delete("/items", handler.ClearCart)
			r.Delete("/items/{itemID}", handler.RemoveItem)
			r.Post("/checkout", handler.BeginCheckout)
			r.Post("/phone", handler.SubmitPhone)
			r.Post("/confirm", handler.Confirm)
			r.Post("/retry", handler.Retry)
			r.Post("/reset", handler.Reset)
		})
	})

	r.Route("/orders", func(r chi.Router) {
		r.Use(requireBuyer)
		r.Get("/", handler.ListOrders)
		r.Get("/{orderID}", handler.GetOrder)
	})
}
