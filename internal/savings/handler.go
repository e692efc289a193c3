package savings

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/congo_save/internal/ledger"
	"github.com/congo-pay/congo_save/internal/middleware"
)

// Handler exposes savings HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a savings HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	PlanID        string          `json:"plan_id"`
	Name          string          `json:"name"`
	Target        decimal.Decimal `json:"target"`
	Deadline      *time.Time      `json:"deadline"`
	Contributions *int            `json:"contributions"`
	Interval      string          `json:"interval"`
}

type savingResponse struct {
	Saving Saving        `json:"saving"`
	Wallet ledger.Wallet `json:"wallet"`
}

// Create opens a saving for the authenticated user.
func (h *Handler) Create(c *fiber.Ctx) error {
	uid, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	planID, err := uuid.Parse(req.PlanID)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid plan_id")
	}

	saving, wallet, err := h.service.CreateSaving(c.UserContext(), CreateInput{
		UserID:        uid,
		PlanID:        planID,
		Name:          req.Name,
		Target:        req.Target,
		Deadline:      req.Deadline,
		Contributions: req.Contributions,
		Interval:      Interval(req.Interval),
	})
	if err != nil {
		return h.httpError(err)
	}
	return c.Status(http.StatusCreated).JSON(savingResponse{Saving: saving, Wallet: wallet})
}

// Join enrols the authenticated user in a challenge.
func (h *Handler) Join(c *fiber.Ctx) error {
	uid, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	savingID, err := uuid.Parse(c.Params("savingId"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid saving id")
	}

	uc, wallet, err := h.service.JoinChallenge(c.UserContext(), uid, savingID)
	if err != nil {
		return h.httpError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"challenge": uc,
		"wallet":    wallet,
	})
}

// Get returns a saving with its balance.
func (h *Handler) Get(c *fiber.Ctx) error {
	uid, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	savingID, err := uuid.Parse(c.Params("savingId"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid saving id")
	}

	details, err := h.service.Get(c.UserContext(), uid, savingID)
	if err != nil {
		return h.httpError(err)
	}
	return c.Status(http.StatusOK).JSON(details)
}

func (h *Handler) httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidSaving), errors.Is(err, ErrNotChallenge):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrPlanNotFound), errors.Is(err, ErrSavingNotFound), errors.Is(err, ledger.ErrWalletNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrAlreadyJoined), errors.Is(err, ErrAlreadyMatured):
		return fiber.NewError(http.StatusConflict, err.Error())
	default:
		h.service.logger.WithError(err).Error("savings request failed")
		return fiber.NewError(http.StatusInternalServerError, "savings operation failed")
	}
}
