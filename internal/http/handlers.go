package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"storefront/internal/domain"
	"storefront/internal/service"
)

// Options настройки транспорта
type Options struct {
	CookieName   string
	CookieSecure bool
	Logger       *slog.Logger
	// Health проверка зависимостей для /healthz; nil — всегда ок
	Health func(ctx context.Context) error
}

type Server struct {
	engine   *gin.Engine
	products *service.ProductService
	orders   *service.OrderService
	points   *service.PointsService
	auth     *service.AuthService
	opts     Options
	log      *slog.Logger
}

func NewServer(products *service.ProductService, orders *service.OrderService, points *service.PointsService, auth *service.AuthService, opts Options) *Server {
	if opts.CookieName == "" {
		opts.CookieName = "token"
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	r := gin.New()
	r.Use(requestID(), requestLogger(log), gin.Recovery())
	s := &Server{engine: r, products: products, orders: orders, points: points, auth: auth, opts: opts, log: log}
	s.registerRoutes()
	return s
}

func (s *Server) Engine() *gin.Engine { return s.engine }

func (s *Server) registerRoutes() {
	// Swagger UI
	s.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	s.engine.GET("/healthz", s.health)
	s.engine.NoRoute(func(c *gin.Context) {
		abortWithError(c, http.StatusNotFound, "Not Found")
	})

	authed := s.authenticate()
	supplier := requireRole(domain.RoleSupplier)

	v1 := s.engine.Group("/api/v1")
	{
		a := v1.Group("/auth")
		a.POST("/register", s.register)
		a.POST("/login", s.login)
		a.POST("/logout", s.logout)
		a.GET("/me", authed, s.me)
		a.DELETE("/me", authed, s.deleteMe)

		v1.GET("/products", s.listProducts)
		v1.GET("/product/:id", s.getProduct)
		v1.POST("/products", authed, supplier, s.createProduct)
		v1.PATCH("/product/:id", authed, supplier, s.updateProduct)
		v1.DELETE("/product/:id", authed, supplier, s.deleteProduct)
		v1.PATCH("/product/:id/restore", authed, supplier, s.restoreProduct)

		v1.POST("/orders", authed, s.createOrder)
		v1.GET("/orders/me", authed, s.myOrders)
		v1.GET("/orders", authed, supplier, s.allOrders)
		v1.GET("/orders/summary", authed, supplier, s.ordersSummary)

		v1.POST("/transfer-point", authed, s.transferPoints)
		v1.GET("/transfer-point/history", authed, s.transferHistory)
	}
}

// @Summary Health check
// @Tags system
// @Produce json
// @Success 200 {object} successBody
// @Failure 503 {object} errorBody
// @Router /healthz [get]
func (s *Server) health(c *gin.Context) {
	if s.opts.Health != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.opts.Health(ctx); err != nil {
			s.log.WarnContext(ctx, "health check failed", "error", err)
			abortWithError(c, http.StatusServiceUnavailable, "unavailable")
			return
		}
	}
	respond(c, http.StatusOK, "ok", nil)
}

// Order handlers
type createOrderReq struct {
	ProductID int64 `json:"productId" binding:"required,gt=0"`
	Quantity  int64 `json:"quantity" binding:"required,gt=0"`
}

// @Summary Create order
// @Description Atomically checks stock, snapshots the price, decrements stock and credits floor(total/1000) points.
// @Tags orders
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param input body createOrderReq true "Order"
// @Success 201 {object} successBody{data=domain.Order}
// @Failure 400 {object} errorBody
// @Failure 401 {object} errorBody
// @Failure 404 {object} errorBody
// @Router /orders [post]
func (s *Server) createOrder(c *gin.Context) {
	var req createOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	o, err := s.orders.PlaceOrder(c.Request.Context(), actorFrom(c), req.ProductID, req.Quantity)
	if err != nil {
		s.writeError(c, err)
		return
	}
	respond(c, http.StatusCreated, "order created", o)
}

type orderListQuery struct {
	UserID    *int64 `form:"userId" binding:"omitempty,gt=0"`
	ProductID *int64 `form:"productId" binding:"omitempty,gt=0"`
	MinTotal  *int64 `form:"minTotal" binding:"omitempty,min=0"`
	MaxTotal  *int64 `form:"maxTotal" binding:"omitempty,min=0"`
	From      string `form:"from" binding:"omitempty,datetime=2006-01-02"`
	To        string `form:"to" binding:"omitempty,datetime=2006-01-02"`
	SortBy    string `form:"sortBy" binding:"omitempty,oneof=createdAt totalPrice quantity"`
	Order     string `form:"order" binding:"omitempty,oneof=asc desc"`
	Limit     *int   `form:"limit"`
	Offset    *int   `form:"offset"`
}

func (q orderListQuery) toService() service.OrderQuery {
	return service.OrderQuery{
		UserID:    q.UserID,
		ProductID: q.ProductID,
		MinTotal:  q.MinTotal,
		MaxTotal:  q.MaxTotal,
		From:      q.From,
		To:        q.To,
		SortBy:    q.SortBy,
		Order:     q.Order,
		Limit:     q.Limit,
		Offset:    q.Offset,
	}
}

// @Summary My orders
// @Tags orders
// @Produce json
// @Security BearerAuth
// @Param productId query int false "Product ID"
// @Param minTotal query int false "Min total price"
// @Param maxTotal query int false "Max total price"
// @Param from query string false "From date (YYYY-MM-DD)"
// @Param to query string false "To date (YYYY-MM-DD)"
// @Param sortBy query string false "createdAt | totalPrice | quantity"
// @Param order query string false "asc | desc"
// @Param limit query int false "1..100, default 10"
// @Param offset query int false "default 0"
// @Success 200 {object} successBody{data=[]domain.OrderView}
// @Failure 400 {object} errorBody
// @Failure 401 {object} errorBody
// @Router /orders/me [get]
func (s *Server) myOrders(c *gin.Context) {
	var q orderListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindError(c, err)
		return
	}
	sq := q.toService()
	sq.UserID = nil
	p, err := s.orders.ListMine(c.Request.Context(), actorFrom(c), sq)
	if err != nil {
		s.writeError(c, err)
		return
	}
	respondPage(c, "my orders", p.Items, meta{Total: p.Total, Limit: p.Limit, Offset: p.Offset})
}

// @Summary All orders
// @Tags orders
// @Produce json
// @Security BearerAuth
// @Param userId query int false "Buyer ID"
// @Param productId query int false "Product ID"
// @Param minTotal query int false "Min total price"
// @Param maxTotal query int false "Max total price"
// @Param from query string false "From date (YYYY-MM-DD)"
// @Param to query string false "To date (YYYY-MM-DD)"
// @Param sortBy query string false "createdAt | totalPrice | quantity"
// @Param order query string false "asc | desc"
// @Param limit query int false "1..100, default 10"
// @Param offset query int false "default 0"
// @Success 200 {object} successBody{data=[]domain.OrderView}
// @Failure 400 {object} errorBody
// @Failure 401 {object} errorBody
// @Failure 403 {object} errorBody
// @Router /orders [get]
func (s *Server) allOrders(c *gin.Context) {
	var q orderListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindError(c, err)
		return
	}
	p, err := s.orders.ListAll(c.Request.Context(), actorFrom(c), q.toService())
	if err != nil {
		s.writeError(c, err)
		return
	}
	respondPage(c, "all orders", p.Items, meta{Total: p.Total, Limit: p.Limit, Offset: p.Offset})
}

// @Summary Orders summary by user
// @Tags orders
// @Produce json
// @Security BearerAuth
// @Success 200 {object} successBody{data=[]domain.UserSummary}
// @Failure 401 {object} errorBody
// @Failure 403 {object} errorBody
// @Router /orders/summary [get]
func (s *Server) ordersSummary(c *gin.Context) {
	sum, err := s.orders.Summary(c.Request.Context(), actorFrom(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "orders summary by user", sum)
}

// Points handlers
type transferReq struct {
	ReceiverID int64 `json:"receiverId" binding:"required,gt=0"`
	Amount     int64 `json:"amount" binding:"required,min=1"`
}

// @Summary Transfer points
// @Tags points
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param input body transferReq true "Transfer"
// @Success 200 {object} successBody{data=domain.Transfer}
// @Failure 400 {object} errorBody
// @Failure 401 {object} errorBody
// @Failure 404 {object} errorBody
// @Router /transfer-point [post]
func (s *Server) transferPoints(c *gin.Context) {
	var req transferReq
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	t, err := s.points.Transfer(c.Request.Context(), actorFrom(c), req.ReceiverID, req.Amount)
	if err != nil {
		s.writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "points transferred successfully", t)
}

// @Summary Transfer history
// @Tags points
// @Produce json
// @Security BearerAuth
// @Param limit query int false "1..100, default 10"
// @Param offset query int false "default 0"
// @Success 200 {object} successBody{data=[]domain.Transfer}
// @Failure 401 {object} errorBody
// @Router /transfer-point/history [get]
func (s *Server) transferHistory(c *gin.Context) {
	limit, err := optionalInt(c.Query("limit"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid limit")
		return
	}
	offset, err := optionalInt(c.Query("offset"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid offset")
		return
	}
	p, err := s.points.History(c.Request.Context(), actorFrom(c), limit, offset)
	if err != nil {
		s.writeError(c, err)
		return
	}
	respondPage(c, "transfer history", p.Items, meta{Total: p.Total, Limit: p.Limit, Offset: p.Offset})
}

func parseID(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

func optionalInt(s string) (*int, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
