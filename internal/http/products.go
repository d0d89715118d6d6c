package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront/internal/service"
)

type createProductReq struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Price       int64  `json:"price" binding:"min=0"`
	Stock       int64  `json:"stock" binding:"min=0"`
	ImageURL    string `json:"imageUrl"`
}

type updateProductReq struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Price       *int64  `json:"price" binding:"omitempty,min=0"`
	Stock       *int64  `json:"stock" binding:"omitempty,min=0"`
	ImageURL    *string `json:"imageUrl"`
}

type productListQuery struct {
	Q        string `form:"q"`
	MinPrice *int64 `form:"minPrice" binding:"omitempty,min=0"`
	MaxPrice *int64 `form:"maxPrice" binding:"omitempty,min=0"`
	SortBy   string `form:"sortBy" binding:"omitempty,oneof=id name price stock createdAt"`
	Order    string `form:"order" binding:"omitempty,oneof=asc desc"`
	Limit    *int   `form:"limit"`
	Offset   *int   `form:"offset"`
}

// @Summary List products
// @Tags products
// @Produce json
// @Param q query string false "Name substring (case-insensitive)"
// @Param minPrice query int false "Min price"
// @Param maxPrice query int false "Max price"
// @Param sortBy query string false "id | name | price | stock | createdAt"
// @Param order query string false "asc | desc"
// @Param limit query int false "1..100, default 10"
// @Param offset query int false "default 0"
// @Success 200 {object} successBody{data=[]domain.Product}
// @Failure 400 {object} errorBody
// @Router /products [get]
func (s *Server) listProducts(c *gin.Context) {
	var q productListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindError(c, err)
		return
	}
	p, err := s.products.List(c.Request.Context(), service.ProductQuery{
		Q:        q.Q,
		MinPrice: q.MinPrice,
		MaxPrice: q.MaxPrice,
		SortBy:   q.SortBy,
		Order:    q.Order,
		Limit:    q.Limit,
		Offset:   q.Offset,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	respondPage(c, "products", p.Items, meta{Total: p.Total, Limit: p.Limit, Offset: p.Offset})
}

// @Summary Get product
// @Tags products
// @Produce json
// @Param id path int true "Product ID"
// @Success 200 {object} successBody{data=domain.Product}
// @Failure 400 {object} errorBody
// @Failure 404 {object} errorBody
// @Router /product/{id} [get]
func (s *Server) getProduct(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid id")
		return
	}
	p, err := s.products.GetByID(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "product", p)
}

// @Summary Create product
// @Tags products
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param input body createProductReq true "Product"
// @Success 201 {object} successBody{data=domain.Product}
// @Failure 400 {object} errorBody
// @Failure 401 {object} errorBody
// @Failure 403 {object} errorBody
// @Router /products [post]
func (s *Server) createProduct(c *gin.Context) {
	var req createProductReq
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	p, err := s.products.Create(c.Request.Context(), actorFrom(c), service.ProductInput{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Stock:       req.Stock,
		ImageURL:    req.ImageURL,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	respond(c, http.StatusCreated, "product created", p)
}

// @Summary Update product
// @Description Partial update. Only the owning supplier may change a product.
// @Tags products
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Product ID"
// @Param input body updateProductReq true "Fields to change"
// @Success 200 {object} successBody{data=domain.Product}
// @Failure 400 {object} errorBody
// @Failure 403 {object} errorBody
// @Failure 404 {object} errorBody
// @Router /product/{id} [patch]
func (s *Server) updateProduct(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid id")
		return
	}
	var req updateProductReq
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	p, err := s.products.Update(c.Request.Context(), actorFrom(c), id, service.ProductPatch{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Stock:       req.Stock,
		ImageURL:    req.ImageURL,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "product updated", p)
}

// @Summary Soft delete product
// @Tags products
// @Produce json
// @Security BearerAuth
// @Param id path int true "Product ID"
// @Success 200 {object} successBody{data=domain.Product}
// @Failure 403 {object} errorBody
// @Failure 404 {object} errorBody
// @Router /product/{id} [delete]
func (s *Server) deleteProduct(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid id")
		return
	}
	p, err := s.products.Delete(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "product deleted", p)
}

// @Summary Restore soft deleted product
// @Tags products
// @Produce json
// @Security BearerAuth
// @Param id path int true "Product ID"
// @Success 200 {object} successBody{data=domain.Product}
// @Failure 403 {object} errorBody
// @Failure 404 {object} errorBody
// @Router /product/{id}/restore [patch]
func (s *Server) restoreProduct(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid id")
		return
	}
	p, err := s.products.Restore(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "product restored", p)
}
