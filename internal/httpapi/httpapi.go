package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"kihaan/backend/internal/domain"
	"kihaan/backend/internal/service"
	"kihaan/backend/internal/store"
)

const (
	refreshCookieName = "refresh_token"
	refreshCookiePath = "/api/v1/auth"
	maxBodyBytes      = 1 << 20
)

// Server wires the service and auth manager to HTTP routes.
type Server struct {
	svc           *service.Service
	auth          *AuthManager
	mux           *http.ServeMux
	allowedOrigin string
	loginLimiter  *attemptLimiter
}

func NewServer(svc *service.Service, auth *AuthManager, allowedOrigin string) *Server {
	s := &Server{
		svc:           svc,
		auth:          auth,
		mux:           http.NewServeMux(),
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, 15*time.Minute),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	s.mux.HandleFunc("/api/v1/auth/register", s.handleRegister)
	s.mux.HandleFunc("/api/v1/auth/login", s.handleLogin)
	s.mux.HandleFunc("/api/v1/auth/refresh", s.handleRefresh)
	s.mux.HandleFunc("/api/v1/auth/logout", s.handleLogout)

	s.mux.HandleFunc("/api/v1/items", s.requireAuth(s.handleItems))
	s.mux.HandleFunc("/api/v1/items/", s.requireAuth(s.handleItemByID))
	s.mux.HandleFunc("/api/v1/orders", s.requireAuth(s.handleOrders))
	s.mux.HandleFunc("/api/v1/orders/", s.requireAuth(s.handleOrderByID))
	s.mux.HandleFunc("/api/v1/debts", s.requireAuth(s.handleDebts))
	s.mux.HandleFunc("/api/v1/debts/", s.requireAuth(s.handleDebtByID))
	s.mux.HandleFunc("/api/v1/purchase-orders", s.requireAuth(s.handlePurchaseOrders))
	s.mux.HandleFunc("/api/v1/purchase-orders/", s.requireAuth(s.handlePurchaseOrderByID))
	s.mux.HandleFunc("/api/v1/dashboard/stats", s.requireAuth(s.handleDashboardStats))
	s.mux.HandleFunc("/api/v1/dashboard/sales", s.requireAuth(s.handleDashboardSales))
}

// Handler returns the mux wrapped in the shared middleware stack.
func (s *Server) Handler() http.Handler {
	return s.withMiddleware(s.mux)
}

// ---- middleware ----

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")

		if origin := r.Header.Get("Origin"); origin != "" && origin == s.allowedOrigin {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		log.Printf("[http] %s %s %d %s", r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Millisecond))
	})
}

func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeMessage(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		actor, err := s.auth.ParseAccess(token)
		if err != nil {
			writeMessage(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

// ---- response helpers ----

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			log.Printf("[http] encode response: %v", err)
		}
	}
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

// writeError maps store sentinels to status codes. Anything unexpected is
// logged and reported generically so internals never leak to clients.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrValidation), errors.Is(err, store.ErrInsufficientStock):
		writeMessage(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeMessage(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrUnauthorized):
		writeMessage(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, store.ErrConflict):
		writeMessage(w, http.StatusConflict, err.Error())
	default:
		log.Printf("[http] internal error: %v", err)
		writeMessage(w, http.StatusInternalServerError, "internal server error")
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body", store.ErrValidation)
	}
	return nil
}

// decodeJSONLenient ignores unknown fields. Order bodies use it so clients
// may echo a stored order back unchanged; server-derived fields such as
// totals and history are recomputed, never trusted.
func decodeJSONLenient(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body", store.ErrValidation)
	}
	return nil
}

func methodNotAllowed(w http.ResponseWriter) {
	writeMessage(w, http.StatusMethodNotAllowed, "method not allowed")
}

func pathID(r *http.Request, prefix string) (string, bool) {
	id := strings.TrimPrefix(r.URL.Path, prefix)
	if id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

func queryInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(key))
	return n
}

// ---- health ----

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ---- auth ----

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req domain.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	actor, err := s.auth.Register(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": actor})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	key := clientIP(r) + "|" + strings.ToLower(strings.TrimSpace(req.Email))
	if s.loginLimiter.blocked(key) {
		writeMessage(w, http.StatusTooManyRequests, "too many failed attempts, try again later")
		return
	}

	pair, err := s.auth.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			s.loginLimiter.recordFailure(key)
		}
		writeError(w, err)
		return
	}
	s.loginLimiter.reset(key)

	s.setRefreshCookie(w, r, pair.RefreshToken, pair.RefreshExpiresAt)
	writeJSON(w, http.StatusOK, map[string]any{
		"accessToken": pair.AccessToken,
		"expiresAt":   pair.AccessExpiresAt,
		"user":        pair.User,
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil || cookie.Value == "" {
		writeMessage(w, http.StatusUnauthorized, "missing refresh token")
		return
	}
	pair, err := s.auth.Refresh(r.Context(), cookie.Value)
	if err != nil {
		s.clearRefreshCookie(w, r)
		writeError(w, err)
		return
	}
	s.setRefreshCookie(w, r, pair.RefreshToken, pair.RefreshExpiresAt)
	writeJSON(w, http.StatusOK, map[string]any{
		"accessToken": pair.AccessToken,
		"expiresAt":   pair.AccessExpiresAt,
		"user":        pair.User,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if cookie, err := r.Cookie(refreshCookieName); err == nil && cookie.Value != "" {
		if err := s.auth.Logout(r.Context(), cookie.Value); err != nil {
			writeError(w, err)
			return
		}
	}
	s.clearRefreshCookie(w, r)
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (s *Server) setRefreshCookie(w http.ResponseWriter, r *http.Request, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     refreshCookiePath,
		Expires:  expires,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
}

func (s *Server) clearRefreshCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     refreshCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ---- items ----

func (s *Server) handleItems(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		var categories []string
		if raw := r.URL.Query().Get("category"); raw != "" {
			categories = strings.Split(raw, ",")
		}
		page, err := s.svc.ListItems(r.Context(), r.URL.Query().Get("search"), categories,
			queryInt(r, "page"), queryInt(r, "limit"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
	case http.MethodPost:
		var req domain.ItemRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		item, err := s.svc.CreateItem(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, item)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleItemByID(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "/api/v1/items/")
	if !ok {
		writeMessage(w, http.StatusNotFound, "not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		item, err := s.svc.GetItem(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, item)
	case http.MethodPut:
		var req domain.ItemRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		item, err := s.svc.UpdateItem(r.Context(), id, req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, item)
	case http.MethodDelete:
		if err := s.svc.DeleteItem(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "item deleted"})
	default:
		methodNotAllowed(w)
	}
}

// ---- orders ----

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		orders, err := s.svc.ListOrders(r.Context(), queryInt(r, "limit"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
	case http.MethodPost:
		var req domain.OrderRequest
		if err := decodeJSONLenient(r, &req); err != nil {
			writeError(w, err)
			return
		}
		order, err := s.svc.CreateOrder(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"orderId": order.ID})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleOrderByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/orders/")
	if id, ok := strings.CutSuffix(rest, "/invoice"); ok && id != "" && !strings.Contains(id, "/") {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		s.handleOrderInvoice(w, r, id)
		return
	}

	id, ok := pathID(r, "/api/v1/orders/")
	if !ok {
		writeMessage(w, http.StatusNotFound, "not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		order, err := s.svc.GetOrder(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, order)
	case http.MethodPut:
		var req domain.OrderRequest
		if err := decodeJSONLenient(r, &req); err != nil {
			writeError(w, err)
			return
		}
		order, err := s.svc.UpdateOrder(r.Context(), id, req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"orderId": order.ID})
	case http.MethodDelete:
		if err := s.svc.DeleteOrder(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "order deleted"})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleOrderInvoice(w http.ResponseWriter, r *http.Request, id string) {
	html, err := s.svc.InvoiceHTML(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, html)
}

// ---- debts ----

func (s *Server) handleDebts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		page, err := s.svc.ListDebts(r.Context(), r.URL.Query().Get("search"),
			queryInt(r, "page"), queryInt(r, "limit"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
	case http.MethodPost:
		var req domain.DebtRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		debt, err := s.svc.CreateDebt(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, debt)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleDebtByID(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "/api/v1/debts/")
	if !ok {
		writeMessage(w, http.StatusNotFound, "not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		debt, err := s.svc.GetDebt(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, debt)
	case http.MethodPut:
		var req domain.DebtRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		debt, err := s.svc.UpdateDebt(r.Context(), id, req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, debt)
	case http.MethodDelete:
		if err := s.svc.DeleteDebt(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "debt deleted"})
	default:
		methodNotAllowed(w)
	}
}

// ---- purchase orders ----

func (s *Server) handlePurchaseOrders(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		q := domain.PurchaseOrderQuery{
			Search: r.URL.Query().Get("search"),
			Page:   queryInt(r, "page"),
			Limit:  queryInt(r, "limit"),
		}
		if raw := r.URL.Query().Get("from"); raw != "" {
			t, err := time.Parse("2006-01-02", raw)
			if err != nil {
				writeMessage(w, http.StatusBadRequest, "invalid from date")
				return
			}
			q.From = &t
		}
		if raw := r.URL.Query().Get("to"); raw != "" {
			t, err := time.Parse("2006-01-02", raw)
			if err != nil {
				writeMessage(w, http.StatusBadRequest, "invalid to date")
				return
			}
			end := t.Add(24*time.Hour - time.Nanosecond)
			q.To = &end
		}
		page, err := s.svc.ListPurchaseOrders(r.Context(), q)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
	case http.MethodPost:
		var req domain.PurchaseOrderRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		po, err := s.svc.CreatePurchaseOrder(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, po)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handlePurchaseOrderByID(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "/api/v1/purchase-orders/")
	if !ok {
		writeMessage(w, http.StatusNotFound, "not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		po, err := s.svc.GetPurchaseOrder(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, po)
	case http.MethodPut:
		var req domain.PurchaseOrderRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		po, err := s.svc.UpdatePurchaseOrder(r.Context(), id, req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, po)
	case http.MethodDelete:
		if err := s.svc.DeletePurchaseOrder(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "purchase order deleted"})
	default:
		methodNotAllowed(w)
	}
}

// ---- dashboard ----

func (s *Server) handleDashboardStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	stats, err := s.svc.DashboardStats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleDashboardSales(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	year := queryInt(r, "year")
	if year == 0 {
		year = time.Now().UTC().Year()
	}
	report, err := s.svc.MonthlySalesReport(r.Context(), year, queryInt(r, "month"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"year": year, "sales": report})
}
