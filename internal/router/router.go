package router

import (
	"net/http"

	"github.com/brasaspos/api/internal/config"
	"github.com/brasaspos/api/internal/delivery"
	"github.com/brasaspos/api/internal/enum"
	"github.com/brasaspos/api/internal/handler"
	mw "github.com/brasaspos/api/internal/middleware"
	"github.com/brasaspos/api/internal/profile"
	"github.com/brasaspos/api/internal/service"
	"github.com/brasaspos/api/internal/store"
	"github.com/brasaspos/api/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
)

// New creates a Chi router with all application routes wired up.
// Applies authentication, restaurant scoping, and role-based middleware as
// needed.
func New(cfg *config.Config, queries *store.Queries, pool *pgxpool.Pool, hub *ws.Hub) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{
			"http://localhost:5173", // SvelteKit dev server
			"https://pos.brasaspos.com",
			"https://pedidos.brasaspos.com",
		},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	calc := delivery.NewCalculator(nil)
	profiles := profile.NewMemoryCache()

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","version":"1.0.0"}`))
	})

	// Auth routes (public)
	authHandler := handler.NewAuthHandler(queries, cfg.JWTSecret)
	authHandler.RegisterRoutes(r)

	// Quotes are public: customers price a delivery before ordering
	quoteHandler := handler.NewQuoteHandler(queries, calc)
	quoteHandler.RegisterRoutes(r)

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws/restaurants/{rid}/orders", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, w, r)
	})

	// Services
	orderService := service.NewOrderService(pool, queries,
		func(db store.DBTX) service.OrderStore { return store.New(db) },
		cfg.CancellationWindow,
	)
	settlementService := service.NewSettlementService(pool, queries,
		func(db store.DBTX) service.SettlementStore { return store.New(db) },
	)

	// Protected routes (require authentication)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		r.Route("/restaurants/{rid}", func(r chi.Router) {
			r.Use(mw.RequireRestaurant)

			orderHandler := handler.NewOrderHandler(orderService, queries, queries, calc, hub)
			settlementHandler := handler.NewSettlementHandler(settlementService, hub)

			r.Route("/orders", func(r chi.Router) {
				orderHandler.RegisterRoutes(r)
				// Settlement is cashier work
				r.Group(func(r chi.Router) {
					r.Use(mw.RequireRole(enum.UserRoleOwner, enum.UserRoleCashier))
					settlementHandler.RegisterOrderRoutes(r)
				})
			})

			r.Route("/payments", func(r chi.Router) {
				r.Use(mw.RequireRole(enum.UserRoleOwner, enum.UserRoleCashier))
				settlementHandler.RegisterPaymentRoutes(r)
			})

			// Delivery pricing is owner-only
			r.Route("/delivery-config", func(r chi.Router) {
				deliveryConfigHandler := handler.NewDeliveryConfigHandler(queries)
				r.Get("/", deliveryConfigHandler.Get)
				r.Group(func(r chi.Router) {
					r.Use(mw.RequireRole(enum.UserRoleOwner))
					r.Put("/", deliveryConfigHandler.Put)
				})
			})

			// Customer profile cache
			profileHandler := handler.NewProfileHandler(profiles)
			profileHandler.RegisterRoutes(r)
		})
	})

	return r
}
