// Package httpapi is the HTTP intake/query adapter: it turns the
// design's two read endpoints and one write endpoint into gin routes
// over internal/intake and internal/queryapi.
package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"cex/internal/domain"
	"cex/internal/intake"
	"cex/internal/queryapi"
)

// defaultUserID stands in for authentication, which is out of scope;
// every order placed through this adapter is attributed to the same
// trader, matching the original implementation's unauthenticated MVP.
const defaultUserID = "default_user"

// Server builds the gin engine wiring the routes to their handlers.
type Server struct {
	Intake *intake.Intake
	Query  *queryapi.QueryAPI
	engine *gin.Engine
}

func New(in *intake.Intake, q *queryapi.QueryAPI) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{Intake: in, Query: q, engine: gin.New()}
	s.engine.Use(gin.Recovery())
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() {
	s.engine.POST("/api/exchange/orders", s.createOrder)
	s.engine.GET("/api/order_books", s.orderBook)
	s.engine.GET("/api/order_books/executed", s.executedOrders)
}

type createOrderResponse struct {
	OrderID string `json:"order_id"`
	Success bool   `json:"success"`
}

func (s *Server) createOrder(c *gin.Context) {
	var req intake.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	orderID, err := s.Intake.PlaceOrder(c.Request.Context(), defaultUserID, req)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			log.Error().Err(err).Msg("place order failed")
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, createOrderResponse{OrderID: orderID.String(), Success: true})
}

func (s *Server) orderBook(c *gin.Context) {
	snapshot, err := s.Query.OrderBookSnapshot(c.Request.Context(), domain.SupportedPair)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			log.Error().Err(err).Msg("order book query failed")
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (s *Server) executedOrders(c *gin.Context) {
	limit := atoiOr(c.Query("limit"), 0)
	offset := atoiOr(c.Query("offset"), 0)

	orders, err := s.Query.ExecutedOrders(c.Request.Context(), limit, offset)
	if err != nil {
		log.Error().Err(err).Msg("executed orders query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, orders)
}

func atoiOr(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

// statusFor maps the design's error kinds onto HTTP status codes:
// malformed input and insufficient balance are client errors (400),
// everything else is an infrastructure fault (500).
func statusFor(err error) int {
	if errors.Is(err, domain.ErrMalformedMessage) || errors.Is(err, domain.ErrInsufficientFunds) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
