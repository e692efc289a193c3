package transfer

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/congo_save/internal/identity"
)

type pinStub string

func (p pinStub) VerifyPIN(_ context.Context, _ uuid.UUID, pin string) error {
	if pin != string(p) {
		return identity.ErrInvalidPIN
	}
	return nil
}

func newTestApp(h *Handler, user uuid.UUID) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", user.String())
		return c.Next()
	})
	app.Post("/transfers", h.Create)
	return app
}

func postTransfer(t *testing.T, app *fiber.App, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, "/transfers", strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestHandlerCreate(t *testing.T) {
	f := newFixture(t, FlatFee(d("1"), 0, decimal.Zero))
	alice, bob := uuid.New(), uuid.New()
	a := f.wallet(t, alice, "100")
	b := f.wallet(t, bob, "0")
	app := newTestApp(NewHandler(f.svc, pinStub("1234")), alice)

	body := func(amount, pin, ref string) string {
		return `{"from_wallet_id":"` + a.ID.String() + `","to_wallet_id":"` + b.ID.String() +
			`","amount":"` + amount + `","pin":"` + pin + `","reference":"` + ref + `"}`
	}

	status, _ := postTransfer(t, app, body("10", "0000", "r1"))
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.True(t, f.balance(t, a.ID).Equal(d("100")))

	status, _ = postTransfer(t, app, body("10", "1234", "r1"))
	assert.Equal(t, fiber.StatusCreated, status)
	assert.True(t, f.balance(t, a.ID).Equal(d("89")))
	assert.True(t, f.balance(t, b.ID).Equal(d("10")))

	status, _ = postTransfer(t, app, body("10", "1234", "r1"))
	assert.Equal(t, fiber.StatusOK, status)
	assert.True(t, f.balance(t, a.ID).Equal(d("89")))

	status, _ = postTransfer(t, app, body("500", "1234", "r2"))
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
}

func TestHandlerCreateRejectsForeignWallet(t *testing.T) {
	f := newFixture(t, FlatFee(decimal.Zero, 0, decimal.Zero))
	alice, mallory := uuid.New(), uuid.New()
	a := f.wallet(t, alice, "100")
	m := f.wallet(t, mallory, "0")
	app := newTestApp(NewHandler(f.svc, pinStub("1234")), mallory)

	status, _ := postTransfer(t, app, `{"from_wallet_id":"`+a.ID.String()+`","to_wallet_id":"`+m.ID.String()+`","amount":"5","pin":"1234"}`)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, _ = postTransfer(t, app, `{"from_wallet_id":"nope","amount":"5","pin":"1234"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestHandlerCreateRejectsTwoDestinations(t *testing.T) {
	f := newFixture(t, FlatFee(decimal.Zero, 0, decimal.Zero))
	alice, bob := uuid.New(), uuid.New()
	a := f.wallet(t, alice, "100")
	b := f.wallet(t, bob, "0")
	app := newTestApp(NewHandler(f.svc, pinStub("1234")), alice)

	status, _ := postTransfer(t, app, `{"from_wallet_id":"`+a.ID.String()+`","to_wallet_id":"`+b.ID.String()+
		`","to_user_id":"`+alice.String()+`","amount":"5","pin":"1234"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.True(t, f.balance(t, a.ID).Equal(d("100")))
	assert.True(t, f.balance(t, b.ID).IsZero())
}
