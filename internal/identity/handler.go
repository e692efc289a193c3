package identity

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/congo-pay/congo_save/internal/ledger"
)

// Handler exposes identity endpoints.
type Handler struct {
	service *Service
	wallets ledger.Ledger
	logger  logrus.FieldLogger
}

// NewHandler constructs an identity HTTP handler.
func NewHandler(service *Service, wallets ledger.Ledger, logger logrus.FieldLogger) *Handler {
	return &Handler{service: service, wallets: wallets, logger: logger}
}

type registerRequest struct {
	Email string `json:"email"`
	PIN   string `json:"pin"`
}

// Register onboards a user and opens their default wallet.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	user, err := h.service.Register(c.UserContext(), Credentials{Email: req.Email, PIN: req.PIN})
	if err != nil {
		switch {
		case errors.Is(err, ErrUserExists):
			return fiber.NewError(http.StatusConflict, err.Error())
		case errors.Is(err, ErrInvalidEmail), errors.Is(err, ErrWeakPIN):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		default:
			return fiber.NewError(http.StatusInternalServerError, "registration failed")
		}
	}

	w, err := h.wallets.EnsureWallet(c.UserContext(), ledger.UserOwner(user.ID), ledger.WalletSpec{Name: "Main"})
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, "open wallet failed")
	}

	h.logger.WithFields(logrus.Fields{
		"user_id":   user.ID,
		"wallet_id": w.ID,
	}).Info("identity.register completed")
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"user":   user,
		"wallet": w,
	})
}
