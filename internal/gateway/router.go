package gateway

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"checkout/internal/config"
	"checkout/internal/metrics"
)

func NewRouter(cfg *config.Config, logger *zap.Logger) (http.Handler, error) {
	checkoutURL, err := url.Parse(cfg.CheckoutServiceURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Checkout Service URL (%s): %w", cfg.CheckoutServiceURL, err)
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.GetAllowedOrigins(),
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Buyer-ID", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	checkoutProxy := createProxy(checkoutURL, "/api", logger)
	r.Handle("/api/*", checkoutProxy)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Gateway is up"))
	})
	r.Handle("/metrics", metrics.Handler())

	return r, nil
}

// createProxy forwards requests to target with prefix removed from the path.
func createProxy(target *url.URL, prefix string, logger *zap.Logger) http.Handler {
	proxy := httputil.NewSingleHostReverseProxy(target)

	proxy.Director = func(req *http.Request) {
		req.URL.Host = target.Host
		req.URL.Scheme = target.Scheme
		req.URL.Path = strings.TrimPrefix(req.URL.Path, prefix)
		if req.URL.Path == "" {
			req.URL.Path = "/"
		}
		req.URL.RawPath = ""
		req.RequestURI = req.URL.RequestURI()
		req.Host = target.Host

		if clientIP, _, err := net.SplitHostPort(req.RemoteAddr); err == nil {
			if prior, ok := req.Header["X-Forwarded-For"]; ok {
				clientIP = strings.Join(prior, ", ") + ", " + clientIP
			}
			req.Header.Set("X-Forwarded-For", clientIP)
		}
	}

	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Error("Proxy error",
			zap.String("path", r.URL.Path),
			zap.String("target", target.String()),
			zap.Error(err))

		var netErr net.Error
		switch {
		case os.IsTimeout(err):
			renderJSONError(w, "Gateway Timeout", http.StatusGatewayTimeout)
		case errors.As(err, &netErr):
			renderJSONError(w, "Service Unavailable", http.StatusServiceUnavailable)
		default:
			renderJSONError(w, "Bad Gateway", http.StatusBadGateway)
		}
	}

	return proxy
}

func renderJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	fmt.Fprintf(w, `{"error": {"kind": "gateway", "message": %q}, "code": %d}`, message, statusCode)
}
