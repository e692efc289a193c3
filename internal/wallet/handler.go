package wallet

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/congo_save/internal/ledger"
	"github.com/congo-pay/congo_save/internal/middleware"
	"github.com/congo-pay/congo_save/internal/savings"
)

const defaultHistoryLimit = 50

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type postingRequest struct {
	Amount             decimal.Decimal `json:"amount"`
	Reference          string          `json:"reference"`
	Description        string          `json:"description"`
	DestinationAccount string          `json:"destination_account"`
}

// Deposit credits the wallet.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	in, err := h.postingInput(c)
	if err != nil {
		return err
	}
	res, err := h.service.Deposit(c.UserContext(), in)
	if err != nil {
		return httpError(err)
	}
	return c.Status(postingStatus(res)).JSON(res)
}

// Withdraw debits the wallet.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	in, err := h.postingInput(c)
	if err != nil {
		return err
	}
	res, err := h.service.Withdraw(c.UserContext(), in)
	if err != nil {
		return httpError(err)
	}
	return c.Status(postingStatus(res)).JSON(res)
}

// Balance returns the wallet balance.
func (h *Handler) Balance(c *fiber.Ctx) error {
	uid, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	walletID, err := walletParam(c)
	if err != nil {
		return err
	}
	balance, err := h.service.Balance(c.UserContext(), uid, walletID)
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusOK).JSON(balance)
}

// Transactions lists the newest wallet entries. ?limit caps the page.
func (h *Handler) Transactions(c *fiber.Ctx) error {
	uid, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	walletID, err := walletParam(c)
	if err != nil {
		return err
	}
	txs, err := h.service.Transactions(c.UserContext(), uid, walletID, c.QueryInt("limit", defaultHistoryLimit))
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"wallet_id": walletID, "transactions": txs})
}

// Me returns the caller's default wallet.
func (h *Handler) Me(c *fiber.Ctx) error {
	uid, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	w, err := h.service.Mine(c.UserContext(), uid)
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusOK).JSON(w)
}

func (h *Handler) postingInput(c *fiber.Ctx) (PostingInput, error) {
	uid, err := middleware.UserID(c)
	if err != nil {
		return PostingInput{}, err
	}
	walletID, err := walletParam(c)
	if err != nil {
		return PostingInput{}, err
	}
	var req postingRequest
	if err := c.BodyParser(&req); err != nil {
		return PostingInput{}, fiber.NewError(http.StatusBadRequest, err.Error())
	}
	in := PostingInput{
		WalletID:           walletID,
		UserID:             uid,
		Amount:             req.Amount,
		Reference:          req.Reference,
		Description:        req.Description,
		DestinationAccount: req.DestinationAccount,
	}
	if in.Reference == "" {
		in.Reference = middleware.IdempotencyKey(c)
	}
	return in, nil
}

func walletParam(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("walletId"))
	if err != nil {
		return uuid.Nil, fiber.NewError(http.StatusBadRequest, "invalid wallet id")
	}
	return id, nil
}

func postingStatus(res Result) int {
	if res.Transaction.Replayed {
		return http.StatusOK
	}
	return http.StatusCreated
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ledger.ErrWalletNotFound), errors.Is(err, ErrNotOwner):
		return fiber.NewError(http.StatusNotFound, "wallet not found")
	case errors.Is(err, ledger.ErrInvalidAmount):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return fiber.NewError(http.StatusUnprocessableEntity, "insufficient balance")
	case errors.Is(err, savings.ErrLocked):
		return fiber.NewError(http.StatusConflict, "saving is locked")
	case errors.Is(err, ledger.ErrReferenceConflict):
		return fiber.NewError(http.StatusConflict, "reference already used")
	case errors.Is(err, ledger.ErrConcurrentModification):
		return fiber.NewError(http.StatusConflict, "wallet busy, retry")
	default:
		return fiber.NewError(http.StatusInternalServerError, "wallet operation failed")
	}
}
