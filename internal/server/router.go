package server

import (
	"net/http"

	costctrl "roofline/internal/ledger/controller"
	orderctrl "roofline/internal/order/controller"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

func NewRouter(orders *orderctrl.OrderController, costs *costctrl.CostController, metrics http.Handler, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	r.Get("/health", costs.Health)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Get("/estimate", orders.GetEstimate)
	r.Get("/costs/summary", costs.GetCostSummary)

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", orders.CreateOrder)
		r.Get("/", orders.ListHistory)
		r.Get("/{orderId}", orders.GetOrder)
		r.Post("/{orderId}/check", orders.CheckOrder)
	})

	return r
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
			)
		})
	}
}
