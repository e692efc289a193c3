package transfer

import (
	"context"
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/congo_save/internal/identity"
	"github.com/congo-pay/congo_save/internal/ledger"
	"github.com/congo-pay/congo_save/internal/middleware"
	"github.com/congo-pay/congo_save/internal/savings"
)

// PINVerifier checks a user's transaction PIN.
type PINVerifier interface {
	VerifyPIN(ctx context.Context, userID uuid.UUID, pin string) error
}

// Handler exposes the transfer endpoint.
type Handler struct {
	service *Service
	pins    PINVerifier
}

// NewHandler constructs a transfer handler.
func NewHandler(service *Service, pins PINVerifier) *Handler {
	return &Handler{service: service, pins: pins}
}

type transferRequest struct {
	FromWalletID string          `json:"from_wallet_id"`
	ToWalletID   string          `json:"to_wallet_id"`
	ToUserID     string          `json:"to_user_id"`
	Amount       decimal.Decimal `json:"amount"`
	PIN          string          `json:"pin"`
	Reference    string          `json:"reference"`
	Description  string          `json:"description"`
}

// Create verifies the PIN and performs a transfer.
func (h *Handler) Create(c *fiber.Ctx) error {
	uid, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	in := Input{
		Amount:          req.Amount,
		Reference:       req.Reference,
		RequestorUserID: uid,
		Description:     req.Description,
	}
	if in.FromWalletID, err = uuid.Parse(req.FromWalletID); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid from_wallet_id")
	}
	if req.ToWalletID != "" {
		if in.ToWalletID, err = uuid.Parse(req.ToWalletID); err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid to_wallet_id")
		}
	}
	if req.ToUserID != "" {
		if in.ToUserID, err = uuid.Parse(req.ToUserID); err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid to_user_id")
		}
	}
	if in.Reference == "" {
		in.Reference = middleware.IdempotencyKey(c)
	}

	if err := h.pins.VerifyPIN(c.UserContext(), uid, req.PIN); err != nil {
		switch {
		case errors.Is(err, identity.ErrInvalidPIN):
			return fiber.NewError(http.StatusForbidden, "invalid pin")
		case errors.Is(err, identity.ErrUserNotFound):
			return fiber.NewError(http.StatusUnauthorized, "user not found")
		default:
			return fiber.NewError(http.StatusInternalServerError, "pin verification failed")
		}
	}

	res, err := h.service.Transfer(c.UserContext(), in)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrInsufficientBalance):
			return fiber.NewError(http.StatusUnprocessableEntity, "insufficient balance")
		case errors.Is(err, ledger.ErrWalletNotFound):
			return fiber.NewError(http.StatusNotFound, err.Error())
		case errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, ErrNoDestination),
			errors.Is(err, ErrAmbiguousDestination), errors.Is(err, ErrSameWallet):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrNotOwner):
			return fiber.NewError(http.StatusForbidden, "not owner of source wallet")
		case errors.Is(err, savings.ErrLocked):
			return fiber.NewError(http.StatusConflict, "saving is locked")
		case errors.Is(err, ledger.ErrReferenceConflict):
			return fiber.NewError(http.StatusConflict, "reference already used")
		case errors.Is(err, ledger.ErrConcurrentModification):
			return fiber.NewError(http.StatusConflict, "wallet busy, retry")
		default:
			return fiber.NewError(http.StatusInternalServerError, "transfer failed")
		}
	}

	status := http.StatusCreated
	if res.Transfer.Replayed {
		status = http.StatusOK
	}
	return c.Status(status).JSON(res)
}
