package inventory

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Tsukikage7/inventory-service/broker"
	"github.com/Tsukikage7/inventory-service/jsoncodec"
	"github.com/Tsukikage7/inventory-service/response"
)

// CodeInsufficientStock 库存不足.
var CodeInsufficientStock = response.NewCode(40010, "库存不足", http.StatusConflict)

// updateStockRequest PATCH /inventory/{productId} 请求体.
type updateStockRequest struct {
	Quantity        *int            `json:"quantity"`
	TransactionType TransactionType `json:"transactionType,omitempty"`
}

// createStockRequest POST /inventory 请求体.
type createStockRequest struct {
	ProductID   string `json:"productId"`
	WarehouseID string `json:"warehouseId"`
	Quantity    int    `json:"quantity"`
}

// Handler 库存 HTTP 处理器.
type Handler struct {
	service *Service
}

// NewHandler 创建库存 HTTP 处理器.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes 注册库存路由.
//
//	PATCH /inventory/{productId}  变更库存，默认扣减
//	GET   /inventory/{productId}  查询库存
//	POST  /inventory              新增库存记录
func (h *Handler) Routes(r chi.Router) {
	r.Route("/inventory", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/{productId}", h.Get)
		r.Patch("/{productId}", h.Update)
	})
}

// Update 变更库存.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateStockRequest
	if err := jsoncodec.Decode(r.Body, &req); err != nil {
		_ = response.WriteError(w, response.WrapWithMessage(response.CodeInvalidParam, "请求体格式错误", err))
		return
	}
	if req.Quantity == nil {
		_ = response.WriteError(w, response.NewErrorWithMessage(response.CodeMissingParam, "quantity 为必填项"))
		return
	}

	stock, err := h.service.UpdateStock(r.Context(), UpdateStockInput{
		ProductID:       chi.URLParam(r, "productId"),
		Quantity:        *req.Quantity,
		TransactionType: req.TransactionType,
	})
	if err != nil {
		_ = response.WriteError(w, mapError(err))
		return
	}
	_ = response.WriteSuccess(w, stock)
}

// Get 查询库存.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	stock, err := h.service.GetStock(r.Context(), chi.URLParam(r, "productId"))
	if err != nil {
		_ = response.WriteError(w, mapError(err))
		return
	}
	_ = response.WriteSuccess(w, stock)
}

// Create 新增库存记录.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createStockRequest
	if err := jsoncodec.Decode(r.Body, &req); err != nil {
		_ = response.WriteError(w, response.WrapWithMessage(response.CodeInvalidParam, "请求体格式错误", err))
		return
	}

	stock := &Stock{
		ProductID:   req.ProductID,
		WarehouseID: req.WarehouseID,
		Quantity:    req.Quantity,
	}
	if err := h.service.AddStock(r.Context(), stock); err != nil {
		_ = response.WriteError(w, mapError(err))
		return
	}
	_ = response.WriteJSON(w, http.StatusCreated, response.OK(stock))
}

// mapError 将领域与消息代理错误转换为业务错误码.
func mapError(err error) error {
	switch {
	case errors.Is(err, ErrEmptyProductID),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInvalidTransactionType):
		return response.WrapWithMessage(response.CodeValidationFailed, err.Error(), err)
	case errors.Is(err, ErrStockNotFound):
		return response.WrapWithMessage(response.CodeNotFound, "商品库存不存在", err)
	case errors.Is(err, ErrInsufficientStock):
		return response.Wrap(CodeInsufficientStock, err)
	case errors.Is(err, ErrStockExists):
		return response.WrapWithMessage(response.CodeConflict, "商品库存已存在", err)
	case errors.Is(err, broker.ErrConnect), errors.Is(err, broker.ErrPublish):
		return response.Wrap(response.CodeServiceUnavailable, err)
	default:
		return response.Wrap(response.CodeInternal, err)
	}
}
