package funding

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/congo-pay/congo_save/internal/ledger"
)

// Handler exposes the payment gateway webhook.
type Handler struct {
	service *Service
	secret  []byte
}

// NewHandler constructs a webhook handler verifying bodies with secret.
func NewHandler(service *Service, secret string) *Handler {
	return &Handler{service: service, secret: []byte(secret)}
}

// Webhook verifies and applies a gateway settlement notification.
func (h *Handler) Webhook(c *fiber.Ctx) error {
	body := c.Body()
	if err := VerifySignature(h.secret, body, c.Get(SignatureHeader)); err != nil {
		return fiber.NewError(http.StatusUnauthorized, err.Error())
	}

	var req SettlementRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	walletID, err := uuid.Parse(req.WalletID)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid wallet_id")
	}

	res, err := h.service.Settle(c.UserContext(), Settlement{
		Reference: req.Reference,
		WalletID:  walletID,
		Amount:    req.Amount,
		Status:    req.Status,
		Channel:   req.Channel,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrNotSettled):
			return c.Status(http.StatusAccepted).JSON(fiber.Map{"status": "ignored"})
		case errors.Is(err, ErrInvalidSettlement), errors.Is(err, ledger.ErrInvalidAmount):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		case errors.Is(err, ledger.ErrWalletNotFound):
			return fiber.NewError(http.StatusNotFound, "wallet not found")
		case errors.Is(err, ledger.ErrReferenceConflict):
			return fiber.NewError(http.StatusConflict, "reference already used")
		default:
			return fiber.NewError(http.StatusInternalServerError, "settlement failed")
		}
	}

	status := http.StatusCreated
	if res.Transaction.Replayed {
		status = http.StatusOK
	}
	return c.Status(status).JSON(SettlementResponse{Status: "posted", Transaction: res.Transaction, Balance: res.Balance})
}
