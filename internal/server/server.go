package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ratequote/internal/loader"
	"ratequote/internal/logger"
	"ratequote/internal/rate"
	"ratequote/internal/ratecard"
	"ratequote/internal/zone"
)

// Deps are the collaborators of the HTTP adapter. Source may be nil, which disables reloads.
type Deps struct {
	Catalog     *loader.Live
	Source      loader.Loader
	ReloadToken string
	Log         *logger.Logger
}

type Server struct {
	router http.Handler
	engine  *rate.Engine
	catalog *loader.Live
	source  loader.Loader
	token  string
	log    *logger.Logger

	mu       sync.Mutex // serializes reloads
	snapshot string
	loadedAt time.Time
}

func New(d Deps) *Server {
	log := d.Log
	if log == nil {
		log = logger.Nop()
	}
	catalog := d.Catalog
	if catalog == nil {
		catalog = loader.NewLive()
	}
	s := &Server{
		engine:  rate.NewEngineFrom(catalog, log),
		catalog: catalog,
		source:  d.Source,
		token:   strings.TrimSpace(d.ReloadToken),
		log:     log,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Get("/rates", s.handleGetRates)
	r.Post("/quotes", s.handlePostQuotes)
	r.Get("/ratecards", s.handleListRateCards)
	r.Post("/ratecards/reload", s.handleReload)
	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

// Reload reads the catalog from the source and installs it. The running catalog is kept
// when loading or validation fails.
func (s *Server) Reload(ctx context.Context) (string, error) {
	if s.source == nil {
		return "", errReloadDisabled
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cat, err := s.source.Load(ctx)
	if err != nil {
		return "", err
	}
	if err := cat.Apply(s.catalog); err != nil {
		return "", err
	}
	s.snapshot = uuid.NewString()
	s.loadedAt = time.Now().UTC()
	s.log.Info("rate cards loaded", "snapshot", s.snapshot, "tables", len(cat.Tables), "regions", len(cat.Regions))
	return s.snapshot, nil
}

var errReloadDisabled = errors.New("rate card reload is not configured")

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// Quotes

type quoteJSON struct {
	CarrierID       string `json:"carrier_id"`
	CarrierName     string `json:"carrier_name"`
	ServiceID       string `json:"service_id"`
	ServiceCategory string `json:"service_category"`
	Zone            string `json:"zone"`
	ZoneRank        int    `json:"zone_rank"`
	Version         string `json:"version"`
	ChargeableGrams int64  `json:"chargeable_grams"`
	SlabGrams       int64  `json:"slab_grams"`
	IncrementUnits  int64  `json:"increment_units"`
	BaseAmount      string `json:"base_amount"`
	CODSurcharge    string `json:"cod_surcharge"`
	FuelSurcharge   string `json:"fuel_surcharge"`
	TotalAmount     string `json:"total_amount"`
}

type skipJSON struct {
	Carrier string `json:"carrier"`
	Service string `json:"service,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type QuoteResponse struct {
	Quotes   []quoteJSON `json:"quotes"`
	Skipped  []skipJSON  `json:"skipped"`
	Cheapest *quoteJSON  `json:"cheapest,omitempty"`
}

func (s *Server) handleGetRates(w http.ResponseWriter, r *http.Request) {
	req, err := requestFromQuery(r)
	if err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	s.quote(w, req)
}

func (s *Server) handlePostQuotes(w http.ResponseWriter, r *http.Request) {
	var req rate.ShipmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "invalid_json", "invalid json")
		return
	}
	s.quote(w, req)
}

func (s *Server) quote(w http.ResponseWriter, req rate.ShipmentRequest) {
	res, err := s.engine.Quote(req)
	if err != nil {
		code, status := errorCode(err)
		writeErrorJSON(w, status, code, err.Error())
		return
	}
	resp := QuoteResponse{Quotes: make([]quoteJSON, 0, len(res.Quotes)), Skipped: make([]skipJSON, 0, len(res.Skipped))}
	for _, q := range res.Quotes {
		resp.Quotes = append(resp.Quotes, toQuoteJSON(q))
	}
	for _, sk := range res.Skipped {
		code, _ := errorCode(sk.Reason)
		resp.Skipped = append(resp.Skipped, skipJSON{Carrier: sk.Carrier, Service: sk.Service, Code: code, Message: sk.Reason.Error()})
	}
	if best, ok := rate.CompareCheapest(res.Quotes); ok {
		b := toQuoteJSON(best)
		resp.Cheapest = &b
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func toQuoteJSON(q rate.Quote) quoteJSON {
	return quoteJSON{
		CarrierID:       q.Carrier.ID,
		CarrierName:     q.Carrier.Name,
		ServiceID:       q.Service.ID,
		ServiceCategory: q.Service.Category,
		Zone:            q.Zone.Code,
		ZoneRank:        q.Zone.Rank,
		Version:         q.Version,
		ChargeableGrams: q.ChargeableGrams,
		SlabGrams:       q.SlabGrams,
		IncrementUnits:  q.IncrementUnits,
		BaseAmount:      q.BaseAmount.StringFixed(2),
		CODSurcharge:    q.CODSurcharge.StringFixed(2),
		FuelSurcharge:   q.FuelSurcharge.StringFixed(2),
		TotalAmount:     q.TotalAmount.StringFixed(2),
	}
}

// requestFromQuery reads a shipment request from /rates query parameters.
func requestFromQuery(r *http.Request) (rate.ShipmentRequest, error) {
	q := r.URL.Query()
	req := rate.ShipmentRequest{
		Origin:      q.Get("origin"),
		Destination: q.Get("destination"),
		ServiceType: q.Get("service_type"),
	}
	if v := q.Get("weight_grams"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return req, fmt.Errorf("weight_grams must be an integer")
		}
		req.WeightGrams = n
	}
	if v := q.Get("cod"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return req, fmt.Errorf("cod must be a boolean")
		}
		req.IsCOD = b
	}
	if v := q.Get("declared_value"); v != "" {
		dv, err := decimal.NewFromString(v)
		if err != nil {
			return req, fmt.Errorf("declared_value must be a number")
		}
		req.DeclaredValue = dv
	}
	if v := q.Get("carriers"); v != "" {
		req.Carriers = strings.Split(v, ",")
	}

	l, wd, h := q.Get("length_cm"), q.Get("width_cm"), q.Get("height_cm")
	if l != "" || wd != "" || h != "" {
		var dims rate.Dimensions
		for _, p := range []struct {
			name string
			raw  string
			dst  *decimal.Decimal
		}{{"length_cm", l, &dims.LengthCm}, {"width_cm", wd, &dims.WidthCm}, {"height_cm", h, &dims.HeightCm}} {
			v, err := decimal.NewFromString(p.raw)
			if err != nil {
				return req, fmt.Errorf("%s must be a number", p.name)
			}
			*p.dst = v
		}
		req.Dimensions = &dims
	}
	return req, nil
}

// Rate cards

type rateCardJSON struct {
	CarrierID   string   `json:"carrier_id"`
	CarrierName string   `json:"carrier_name"`
	ServiceID   string   `json:"service_id"`
	Category    string   `json:"category"`
	Version     string   `json:"version"`
	Zones       []string `json:"zones"`
}

type rateCardsResponse struct {
	Snapshot string         `json:"snapshot,omitempty"`
	LoadedAt string         `json:"loaded_at,omitempty"`
	Cards    []rateCardJSON `json:"rate_cards"`
}

func (s *Server) handleListRateCards(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	resp := rateCardsResponse{Snapshot: s.snapshot, Cards: []rateCardJSON{}}
	if !s.loadedAt.IsZero() {
		resp.LoadedAt = s.loadedAt.Format(time.RFC3339)
	}
	s.mu.Unlock()

	tables := s.catalog.Tables()
	for _, k := range tables.Keys() {
		t, err := tables.Lookup(k.Carrier, k.Service)
		if err != nil {
			continue
		}
		resp.Cards = append(resp.Cards, rateCardJSON{
			CarrierID:   t.Carrier.ID,
			CarrierName: t.Carrier.Name,
			ServiceID:   t.Service.ID,
			Category:    t.Service.Category,
			Version:     t.Version,
			Zones:       t.ZoneCodes(),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if s.source == nil || s.token == "" {
		writeErrorJSON(w, http.StatusForbidden, "reload_disabled", errReloadDisabled.Error())
		return
	}
	provided := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	if provided == "" {
		writeErrorJSON(w, http.StatusUnauthorized, "missing_token", "missing reload token")
		return
	}
	claims, err := s.parseReloadToken(provided)
	if err != nil {
		s.log.Warn("reload token rejected", "error", err.Error())
		writeErrorJSON(w, http.StatusUnauthorized, "invalid_token", "invalid or expired reload token")
		return
	}

	snapshot, err := s.Reload(r.Context())
	if err != nil {
		s.log.Error("rate card reload failed", "subject", claims.Subject, "error", err.Error())
		writeErrorJSON(w, http.StatusUnprocessableEntity, "reload_failed", err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"snapshot": snapshot, "tables": s.catalog.Tables().Len()})
}

// parseReloadToken verifies an HS256 token signed with the reload secret. Tokens must
// carry an expiry.
func (s *Server) parseReloadToken(raw string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(s.token), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("parse reload token: %w", err)
	}
	if !tok.Valid {
		return nil, errors.New("reload token is not valid")
	}
	return claims, nil
}

// errorCode maps an engine error to its wire code and the HTTP status used when it fails
// the whole request.
func errorCode(err error) (string, int) {
	switch {
	case errors.Is(err, rate.ErrInvalidWeight):
		return "invalid_weight", http.StatusBadRequest
	case errors.Is(err, rate.ErrInvalidRequest):
		return "invalid_request", http.StatusBadRequest
	case errors.Is(err, zone.ErrUnresolvableZone):
		return "unresolvable_zone", http.StatusUnprocessableEntity
	case errors.Is(err, ratecard.ErrNotFound):
		return "rate_card_not_found", http.StatusNotFound
	case errors.Is(err, rate.ErrZoneNotPriced):
		return "zone_not_priced", http.StatusUnprocessableEntity
	case errors.Is(err, ratecard.ErrMalformedTable):
		return "malformed_rate_card", http.StatusInternalServerError
	case errors.Is(err, rate.ErrQuoteFault):
		return "quote_fault", http.StatusInternalServerError
	default:
		return "internal_error", http.StatusInternalServerError
	}
}

// writeErrorJSON writes a standardized JSON error response:
// {"error": {"code": string, "message": string}}
func writeErrorJSON(w http.ResponseWriter, status int, code string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

// requestIDMiddleware ensures X-Request-ID is set on the response.
// If provided in the request header, it is propagated; otherwise a UUID is generated.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if rid == "" {
			rid = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", rid)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", w.Header().Get("X-Request-ID"),
		)
	})
}
